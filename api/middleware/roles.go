package middleware

import (
	"net/http"

	"github.com/vendorisland/vendorisland-backend/api/responses"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

// RequireRole rejects callers whose token carries a different role. Vendor
// routes also need a vendor id, since every wallet and catalog query is
// scoped by it.
func RequireRole(role enums.UserRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var denied *pkgerrors.Error
			switch {
			case RoleFromContext(ctx) != string(role):
				denied = pkgerrors.Newf(pkgerrors.CodeForbidden, "%s role required", role)
			case role == enums.RoleVendor && VendorIDFromContext(ctx) == "":
				denied = pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required")
			}
			if denied != nil {
				responses.WriteError(ctx, logg, w, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
