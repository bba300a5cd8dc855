package vendorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/api/middleware"
	"github.com/vendorisland/vendorisland-backend/internal/orders"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

// ResolveVendorID extracts the caller's vendor and enforces vendor access.
func ResolveVendorID(r *http.Request) (uuid.UUID, error) {
	ctx := r.Context()
	if middleware.RoleFromContext(ctx) != string(enums.RoleVendor) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor access required")
	}
	vendorID := middleware.VendorIDFromContext(ctx)
	if vendorID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required")
	}
	id, err := uuid.Parse(vendorID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id")
	}
	return id, nil
}

// ResolveUserID returns the authenticated user.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// VendorScope builds the order scope for a vendor caller.
func VendorScope(r *http.Request) (uuid.UUID, orders.Scope, error) {
	vendorID, err := ResolveVendorID(r)
	if err != nil {
		return uuid.Nil, orders.Scope{}, err
	}
	userID, err := ResolveUserID(r)
	if err != nil {
		return uuid.Nil, orders.Scope{}, err
	}
	return vendorID, orders.VendorScope(vendorID, userID), nil
}

// AdminScope builds the order scope for a platform operator.
func AdminScope(r *http.Request) (orders.Scope, error) {
	if middleware.RoleFromContext(r.Context()) != string(enums.RoleAdmin) {
		return orders.Scope{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	userID, err := ResolveUserID(r)
	if err != nil {
		return orders.Scope{}, err
	}
	return orders.AdminScope(userID), nil
}
