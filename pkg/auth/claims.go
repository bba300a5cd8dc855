package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

var (
	ErrVendorRequired = errors.New("vendor role requires vendor_id")
	errUserRequired   = errors.New("user id is required")
)

// AccessTokenPayload is the identity a bearer token asserts.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	VendorID *uuid.UUID
	Role     enums.UserRole
	JTI      string
}

// AccessTokenClaims is the typed JWT body. Vendor tokens must carry
// vendor_id; admin tokens may omit it.
type AccessTokenClaims struct {
	UserID   uuid.UUID      `json:"user_id"`
	VendorID *uuid.UUID     `json:"vendor_id,omitempty"`
	Role     enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

var _ jwt.ClaimsValidator = (*AccessTokenClaims)(nil)

// Validate runs after the registered claims pass. Minting uses it too, so
// a token that would be rejected is never issued.
func (c *AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errUserRequired
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid user role %q", c.Role)
	}
	if c.Role == enums.RoleVendor && (c.VendorID == nil || *c.VendorID == uuid.Nil) {
		return ErrVendorRequired
	}
	return nil
}
