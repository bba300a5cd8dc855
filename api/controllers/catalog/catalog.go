package catalog

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/api/controllers/vendorcontext"
	"github.com/vendorisland/vendorisland-backend/api/responses"
	"github.com/vendorisland/vendorisland-backend/api/validators"
	internalcatalog "github.com/vendorisland/vendorisland-backend/internal/catalog"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

type importRequest struct {
	SupplierProductID   *string         `json:"supplier_product_id" validate:"omitempty,max=255"`
	SupplierURL         *string         `json:"supplier_url" validate:"omitempty,url,max=2048"`
	Name                string          `json:"name" validate:"required,max=255"`
	Description         *string         `json:"description" validate:"omitempty,max=10000"`
	Category            *string         `json:"category" validate:"omitempty,max=100"`
	ShippingZone        *string         `json:"shipping_zone" validate:"omitempty,max=100"`
	CostPrice           string          `json:"cost_price" validate:"required,money"`
	ShippingCost        *string         `json:"shipping_cost" validate:"omitempty,money"`
	CountryRestrictions []string        `json:"country_restrictions" validate:"omitempty,dive,len=2"`
	Images              []string        `json:"images" validate:"omitempty,max=20,dive,url"`
	Variants            json.RawMessage `json:"variants"`
}

type priceCheckRequest struct {
	ObservedCost string `json:"observed_cost" validate:"required,money"`
	Accept       bool   `json:"accept"`
}

// Import creates a draft product from supplier data and prices it right away.
func Import(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body importRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Import(r.Context(), vendorID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func List(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
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
		var status *enums.CatalogStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseCatalogStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid catalog status"))
				return
			}
			status = &parsed
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		list, err := svc.List(r.Context(), vendorID, params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Detail(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return withProduct(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, productID uuid.UUID) {
		product, err := svc.Get(r.Context(), vendorID, productID)
		write(w, r, logg, product, err)
	})
}

// Reprice runs the vendor's rules against one product. A product with no
// applicable rule comes back with priced=false rather than an error.
func Reprice(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return withProduct(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, productID uuid.UUID) {
		result, err := svc.Reprice(r.Context(), vendorID, productID)
		write(w, r, logg, result, err)
	})
}

func RepriceAll(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.RepriceAll(r.Context(), vendorID)
		write(w, r, logg, summary, err)
	}
}

func Publish(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return withProduct(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, productID uuid.UUID) {
		product, err := svc.Publish(r.Context(), vendorID, productID)
		write(w, r, logg, product, err)
	})
}

func Unpublish(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return withProduct(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, productID uuid.UUID) {
		product, err := svc.Unpublish(r.Context(), vendorID, productID)
		write(w, r, logg, product, err)
	})
}

func Archive(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return withProduct(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, productID uuid.UUID) {
		product, err := svc.Archive(r.Context(), vendorID, productID)
		write(w, r, logg, product, err)
	})
}

// Delete hard-deletes a product without order history and archives the rest.
func Delete(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return withProduct(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, productID uuid.UUID) {
		result, err := svc.Delete(r.Context(), vendorID, productID)
		write(w, r, logg, result, err)
	})
}

func PriceCheck(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return withProduct(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, productID uuid.UUID) {
		var body priceCheckRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		observed, err := validators.ParseAmount("observed_cost", body.ObservedCost)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RecordPriceCheck(r.Context(), vendorID, productID, internalcatalog.PriceCheckInput{
			ObservedCostCents: observed,
			Accept:            body.Accept,
		})
		write(w, r, logg, result, err)
	})
}

type productHandler func(w http.ResponseWriter, r *http.Request, vendorID, productID uuid.UUID)

func withProduct(svc internalcatalog.Service, logg *logger.Logger, next productHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "product_id", productID.String())
		}
		next(w, r.WithContext(ctx), vendorID, productID)
	}
}

func write(w http.ResponseWriter, r *http.Request, logg *logger.Logger, data any, err error) {
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, data)
}

func (req importRequest) toInput() (internalcatalog.ImportInput, error) {
	cost, err := validators.ParseAmount("cost_price", req.CostPrice)
	if err != nil {
		return internalcatalog.ImportInput{}, err
	}
	shipping, err := validators.ParseOptionalAmount("shipping_cost", req.ShippingCost)
	if err != nil {
		return internalcatalog.ImportInput{}, err
	}
	input := internalcatalog.ImportInput{
		SupplierProductID:   req.SupplierProductID,
		SupplierURL:         req.SupplierURL,
		Name:                strings.TrimSpace(req.Name),
		Description:         req.Description,
		Category:            req.Category,
		ShippingZone:        req.ShippingZone,
		CostPriceCents:      cost,
		CountryRestrictions: normalizeCountries(req.CountryRestrictions),
		Images:              req.Images,
		Variants:            req.Variants,
	}
	if shipping != nil {
		input.ShippingCostCents = *shipping
	}
	return input, nil
}

func normalizeCountries(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		out = append(out, strings.ToUpper(strings.TrimSpace(code)))
	}
	return out
}
