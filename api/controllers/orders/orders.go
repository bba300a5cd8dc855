package orders

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/api/controllers/vendorcontext"
	"github.com/vendorisland/vendorisland-backend/api/responses"
	"github.com/vendorisland/vendorisland-backend/api/validators"
	internalorders "github.com/vendorisland/vendorisland-backend/internal/orders"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

type createOrderRequest struct {
	StoreID         *uuid.UUID          `json:"store_id"`
	CustomerName    string              `json:"customer_name" validate:"required,max=255"`
	CustomerEmail   string              `json:"customer_email" validate:"required,email"`
	ShippingAddress json.RawMessage     `json:"shipping_address"`
	Notes           *string             `json:"notes" validate:"omitempty,max=2000"`
	Items           []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createItemRequest struct {
	CatalogProductID *uuid.UUID      `json:"catalog_product_id"`
	ProductName      string          `json:"product_name" validate:"required,max=255"`
	UnitPrice        string          `json:"unit_price" validate:"required,money"`
	CostPrice        string          `json:"cost_price" validate:"required,money"`
	ShippingCost     *string         `json:"shipping_cost" validate:"omitempty,money"`
	Quantity         int             `json:"quantity" validate:"required,min=1"`
	VariantInfo      json.RawMessage `json:"variant_info"`
}

type transitionRequest struct {
	To              string  `json:"to" validate:"required"`
	TotalPaid       *string `json:"total_paid" validate:"omitempty,money"`
	SupplierOrderID string  `json:"supplier_order_id" validate:"omitempty,max=255"`
	TrackingNumber  string  `json:"tracking_number" validate:"omitempty,max=255"`
	TrackingURL     string  `json:"tracking_url" validate:"omitempty,url,max=2048"`
	RefundAmount    *string `json:"refund_amount" validate:"omitempty,money"`
	Reason          string  `json:"reason" validate:"omitempty,max=1000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}

type refundRequest struct {
	Amount *string `json:"amount" validate:"omitempty,money"`
	Reason string  `json:"reason" validate:"omitempty,max=1000"`
}

type markPaidRequest struct {
	TotalPaid string `json:"total_paid" validate:"required,money"`
}

// Create lands a storefront checkout as a pending_payment order.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput(vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// List returns the caller's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		filters, err := buildFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), vendorID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns the order after ensuring the caller may see it.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderScope(svc, logg, func(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, scope internalorders.Scope) {
		order, err := svc.Get(r.Context(), orderID, scope)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

// Transition moves an order to the requested status. Business outcomes such as
// needs_topup are reported in the body with a 200.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderScope(svc, logg, func(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, scope internalorders.Scope) {
		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(strings.TrimSpace(body.To))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}
		totalPaid, err := validators.ParseOptionalAmount("total_paid", body.TotalPaid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refund, err := validators.ParseOptionalAmount("refund_amount", body.RefundAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalorders.TransitionInput{
			OrderID:         orderID,
			Target:          target,
			Scope:           scope,
			SupplierOrderID: strings.TrimSpace(body.SupplierOrderID),
			TrackingNumber:  strings.TrimSpace(body.TrackingNumber),
			TrackingURL:     strings.TrimSpace(body.TrackingURL),
			Reason:          validators.SanitizeString(body.Reason, 1000),
		}
		if totalPaid != nil {
			input.TotalPaidCents = *totalPaid
		}
		if refund != nil {
			input.RefundCents = *refund
		}
		result, err := svc.TransitionOrder(r.Context(), input)
		writeTransition(w, r, logg, result, err)
	})
}

func Settle(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderScope(svc, logg, func(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, scope internalorders.Scope) {
		result, err := svc.SettleOrder(r.Context(), orderID, scope)
		writeTransition(w, r, logg, result, err)
	})
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderScope(svc, logg, func(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, scope internalorders.Scope) {
		var body cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.CancelOrder(r.Context(), orderID, scope, validators.SanitizeString(body.Reason, 1000))
		writeTransition(w, r, logg, result, err)
	})
}

// Refund refunds the order. An omitted amount refunds the full total paid.
func Refund(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderScope(svc, logg, func(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, scope internalorders.Scope) {
		var body refundRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseOptionalAmount("amount", body.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var cents int64
		if amount != nil {
			cents = *amount
		}
		result, err := svc.RefundOrder(r.Context(), orderID, cents, scope, validators.SanitizeString(body.Reason, 1000))
		writeTransition(w, r, logg, result, err)
	})
}

// MarkPaid records payment capture and attempts the reservation immediately.
func MarkPaid(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrderScope(svc, logg, func(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, scope internalorders.Scope) {
		var body markPaidRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		totalPaid, err := validators.ParseAmount("total_paid", body.TotalPaid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.MarkPaid(r.Context(), orderID, totalPaid, scope)
		writeTransition(w, r, logg, result, err)
	})
}

// RetryTopup re-attempts the caller's blocked reservations and queued refunds.
func RetryTopup(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RetryTopup(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminRetryTopup runs the same pass for any vendor.
func AdminRetryTopup(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		if _, err := vendorcontext.AdminScope(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RetryTopup(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type scopedHandler func(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, scope internalorders.Scope)

// withOrderScope resolves the order id and the caller's scope. Admin callers get
// the unrestricted scope; vendors are confined to their own orders.
func withOrderScope(svc internalorders.Service, logg *logger.Logger, next scopedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		scope, err := resolveScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrder(ctx, orderID.String(), "")
		}
		next(w, r.WithContext(ctx), orderID, scope)
	}
}

func resolveScope(r *http.Request) (internalorders.Scope, error) {
	if scope, err := vendorcontext.AdminScope(r); err == nil {
		return scope, nil
	}
	_, scope, err := vendorcontext.VendorScope(r)
	return scope, err
}

func writeTransition(w http.ResponseWriter, r *http.Request, logg *logger.Logger, result *internalorders.TransitionResult, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if logg != nil && (result.NeedsTopup || result.RefundQueued) {
		ctx := logg.WithFields(r.Context(), map[string]any{
			"from":            string(result.From),
			"to":              string(result.To),
			"needs_topup":     result.NeedsTopup,
			"refund_queued":   result.RefundQueued,
			"shortfall_cents": result.ShortfallCents,
		})
		logg.Info(ctx, "order.transition.blocked_on_funds")
	}
	responses.WriteSuccess(w, result)
}

func buildFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status")
		}
		filters.Status = &status
	}
	storeID, err := validators.ParseOptionalUUIDQuery(r, "store_id")
	if err != nil {
		return filters, err
	}
	filters.StoreID = storeID
	if filters.CreatedFrom, err = validators.ParseOptionalTimeQuery(r, "created_from"); err != nil {
		return filters, err
	}
	if filters.CreatedTo, err = validators.ParseOptionalTimeQuery(r, "created_to"); err != nil {
		return filters, err
	}
	if filters.CreatedFrom != nil && filters.CreatedTo != nil && filters.CreatedTo.Before(*filters.CreatedFrom) {
		return filters, pkgerrors.New(pkgerrors.CodeValidation, "created_to must not precede created_from")
	}
	return filters, nil
}

func (req createOrderRequest) toInput(vendorID uuid.UUID) (internalorders.CreateOrderInput, error) {
	input := internalorders.CreateOrderInput{
		VendorID:        vendorID,
		StoreID:         req.StoreID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		unit, err := validators.ParseAmount("unit_price", item.UnitPrice)
		if err != nil {
			return input, err
		}
		cost, err := validators.ParseAmount("cost_price", item.CostPrice)
		if err != nil {
			return input, err
		}
		shipping, err := validators.ParseOptionalAmount("shipping_cost", item.ShippingCost)
		if err != nil {
			return input, err
		}
		line := internalorders.CreateOrderItem{
			CatalogProductID: item.CatalogProductID,
			ProductName:      strings.TrimSpace(item.ProductName),
			UnitPriceCents:   unit,
			CostPriceCents:   cost,
			Quantity:         item.Quantity,
			VariantInfo:      item.VariantInfo,
		}
		if shipping != nil {
			line.ShippingCostCents = *shipping
		}
		input.Items = append(input.Items, line)
	}
	return input, nil
}
