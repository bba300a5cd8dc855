package stores

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/api/controllers/vendorcontext"
	"github.com/vendorisland/vendorisland-backend/api/responses"
	"github.com/vendorisland/vendorisland-backend/api/validators"
	internalstores "github.com/vendorisland/vendorisland-backend/internal/stores"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

type createStoreRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// An empty description clears it.
type updateStoreRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

func Create(svc internalstores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createStoreRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := svc.Create(r.Context(), vendorID, internalstores.CreateStoreInput{
			Name:        strings.TrimSpace(body.Name),
			Description: body.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, store)
	}
}

func List(svc internalstores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"stores": list})
	}
}

func Detail(svc internalstores.Service, logg *logger.Logger) http.HandlerFunc {
	return withStore(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, storeID uuid.UUID) {
		store, err := svc.GetByID(r.Context(), vendorID, storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store)
	})
}

func Update(svc internalstores.Service, logg *logger.Logger) http.HandlerFunc {
	return withStore(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, storeID uuid.UUID) {
		var body updateStoreRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := svc.Update(r.Context(), vendorID, storeID, internalstores.UpdateStoreInput{
			Name:        body.Name,
			Description: body.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store)
	})
}

// Delete refuses stores that orders still refer to.
func Delete(svc internalstores.Service, logg *logger.Logger) http.HandlerFunc {
	return withStore(svc, logg, func(w http.ResponseWriter, r *http.Request, vendorID, storeID uuid.UUID) {
		if err := svc.Delete(r.Context(), vendorID, storeID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": storeID, "deleted": true})
	})
}

type storeHandler func(w http.ResponseWriter, r *http.Request, vendorID, storeID uuid.UUID)

func withStore(svc internalstores.Service, logg *logger.Logger, next storeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := validators.ParseUUIDParam(r, "storeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "store_id", storeID.String())
		}
		next(w, r.WithContext(ctx), vendorID, storeID)
	}
}
