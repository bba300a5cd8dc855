package deposits

import (
	"net/http"
	"strings"

	"github.com/vendorisland/vendorisland-backend/api/controllers/vendorcontext"
	"github.com/vendorisland/vendorisland-backend/api/responses"
	"github.com/vendorisland/vendorisland-backend/api/validators"
	internaldeposits "github.com/vendorisland/vendorisland-backend/internal/deposits"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

type submitRequest struct {
	Amount     string  `json:"amount" validate:"required,money"`
	CryptoType string  `json:"crypto_type" validate:"required"`
	ReceiptURL *string `json:"receipt_url" validate:"omitempty,url,max=2048"`
	TxHash     *string `json:"tx_hash" validate:"omitempty,max=255"`
}

type reviewRequest struct {
	Notes string `json:"notes" validate:"omitempty,max=1000"`
}

// Submit files a pending crypto deposit for admin review.
func Submit(svc internaldeposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body submitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount("amount", body.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cryptoType, err := enums.ParseCryptoType(strings.ToLower(strings.TrimSpace(body.CryptoType)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid crypto type"))
			return
		}
		deposit, err := svc.Submit(r.Context(), internaldeposits.SubmitInput{
			VendorID:    vendorID,
			AmountCents: amount,
			CryptoType:  cryptoType,
			ReceiptURL:  body.ReceiptURL,
			TxHash:      body.TxHash,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, deposit)
	}
}

// VendorList pages through the caller's own deposit requests.
func VendorList(svc internaldeposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.VendorID = &vendorID
		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// VendorDetail returns one of the caller's deposit requests. Other vendors'
// requests are reported as not found.
func VendorDetail(svc internaldeposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "depositID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deposit, err := svc.Get(r.Context(), requestID, &vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}

// AdminList pages through deposit requests of every vendor, optionally filtered.
func AdminList(svc internaldeposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := validators.ParseOptionalUUIDQuery(r, "vendor_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.VendorID = vendorID
		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminDetail(svc internaldeposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "depositID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deposit, err := svc.Get(r.Context(), requestID, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}

// Approve credits the vendor's wallet and retries any orders waiting on funds.
func Approve(svc internaldeposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}
		input, err := parseReview(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Approve(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Reject(svc internaldeposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}
		input, err := parseReview(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deposit, err := svc.Reject(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}

func parseReview(r *http.Request) (internaldeposits.ReviewInput, error) {
	scope, err := vendorcontext.AdminScope(r)
	if err != nil {
		return internaldeposits.ReviewInput{}, err
	}
	requestID, err := validators.ParseUUIDParam(r, "depositID")
	if err != nil {
		return internaldeposits.ReviewInput{}, err
	}
	var body reviewRequest
	if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
		return internaldeposits.ReviewInput{}, err
	}
	return internaldeposits.ReviewInput{
		RequestID: requestID,
		AdminID:   scope.UserID,
		Notes:     validators.SanitizeString(body.Notes, 1000),
	}, nil
}

func parseListParams(r *http.Request) (internaldeposits.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return internaldeposits.ListParams{}, err
	}
	params := internaldeposits.ListParams{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseDepositStatus(raw)
		if err != nil {
			return params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid deposit status")
		}
		params.Status = &status
	}
	return params, nil
}

