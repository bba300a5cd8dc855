package stores

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
)

// StoreDTO exposes a vendor storefront in API responses.
type StoreDTO struct {
	ID          uuid.UUID `json:"id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateStoreInput holds creation-time data for a new store.
type CreateStoreInput struct {
	Name        string
	Description *string
}

// UpdateStoreInput captures the mutable store fields. Nil leaves a field
// untouched; an empty description clears it.
type UpdateStoreInput struct {
	Name        *string
	Description *string
}

// FromModel maps the persisted store into a DTO.
func FromModel(m *models.Store) *StoreDTO {
	if m == nil {
		return nil
	}
	return &StoreDTO{
		ID:          m.ID,
		VendorID:    m.VendorID,
		Name:        m.Name,
		Description: cloneStringPtr(m.Description),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
