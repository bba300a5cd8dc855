package middleware

import "context"

type principalKey struct{}

// Principal is the authenticated caller as the Auth middleware saw it.
// VendorID is empty for admins.
type Principal struct {
	UserID   string
	Role     string
	VendorID string
}

func PrincipalFromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Principal{}
	}
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func UserIDFromContext(ctx context.Context) string   { return PrincipalFromContext(ctx).UserID }
func RoleFromContext(ctx context.Context) string     { return PrincipalFromContext(ctx).Role }
func VendorIDFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).VendorID }

// The single-field setters exist for tests and handlers that seed one
// attribute at a time; each keeps the rest of the principal.

func WithUserID(ctx context.Context, userID string) context.Context {
	p := PrincipalFromContext(ctx)
	p.UserID = userID
	return WithPrincipal(ctx, p)
}

func WithRole(ctx context.Context, role string) context.Context {
	p := PrincipalFromContext(ctx)
	p.Role = role
	return WithPrincipal(ctx, p)
}

func WithVendorID(ctx context.Context, vendorID string) context.Context {
	p := PrincipalFromContext(ctx)
	p.VendorID = vendorID
	return WithPrincipal(ctx, p)
}
