package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

const (
	maxNameLen        = 255
	maxDescriptionLen = 2000
)

type storeRepository interface {
	Create(ctx context.Context, store *models.Store) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Store, error)
	Update(ctx context.Context, store *models.Store) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountOrders(ctx context.Context, id uuid.UUID) (int64, error)
}

// Service exposes vendor-scoped store operations. A store owned by another
// vendor is reported as not found.
type Service interface {
	Create(ctx context.Context, vendorID uuid.UUID, input CreateStoreInput) (*StoreDTO, error)
	GetByID(ctx context.Context, vendorID, storeID uuid.UUID) (*StoreDTO, error)
	List(ctx context.Context, vendorID uuid.UUID) ([]StoreDTO, error)
	Update(ctx context.Context, vendorID, storeID uuid.UUID, input UpdateStoreInput) (*StoreDTO, error)
	Delete(ctx context.Context, vendorID, storeID uuid.UUID) error
}

type service struct {
	repo storeRepository
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds a store service with the provided repository. logg may be nil.
func NewService(repo storeRepository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	return &service{
		repo: repo,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, vendorID uuid.UUID, input CreateStoreInput) (*StoreDTO, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, err
	}
	description, err := normalizeDescription(input.Description)
	if err != nil {
		return nil, err
	}

	now := s.now()
	store := &models.Store{
		ID:          uuid.New(),
		VendorID:    vendorID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, store); err != nil {
		return nil, db.Classify(err, "create store")
	}
	s.logStore(ctx, store, "store created")
	return FromModel(store), nil
}

func (s *service) GetByID(ctx context.Context, vendorID, storeID uuid.UUID) (*StoreDTO, error) {
	store, err := s.load(ctx, vendorID, storeID)
	if err != nil {
		return nil, err
	}
	return FromModel(store), nil
}

func (s *service) List(ctx context.Context, vendorID uuid.UUID) ([]StoreDTO, error) {
	rows, err := s.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stores")
	}
	out := make([]StoreDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, vendorID, storeID uuid.UUID, input UpdateStoreInput) (*StoreDTO, error) {
	store, err := s.load(ctx, vendorID, storeID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name, err := normalizeName(*input.Name)
		if err != nil {
			return nil, err
		}
		store.Name = name
	}
	if input.Description != nil {
		description, err := normalizeDescription(input.Description)
		if err != nil {
			return nil, err
		}
		store.Description = description
	}

	store.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, store); err != nil {
		return nil, db.Classify(err, "update store")
	}
	s.logStore(ctx, store, "store updated")
	return FromModel(store), nil
}

// Delete removes a store that no order refers to. Stores with order history
// are kept so settled orders stay attributable.
func (s *service) Delete(ctx context.Context, vendorID, storeID uuid.UUID) error {
	store, err := s.load(ctx, vendorID, storeID)
	if err != nil {
		return err
	}
	count, err := s.repo.CountOrders(ctx, store.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count store orders")
	}
	if count > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "store has orders and cannot be deleted").
			WithDetails(map[string]any{"order_count": count})
	}
	if err := s.repo.Delete(ctx, store.ID); err != nil {
		return db.Classify(err, "delete store")
	}
	s.logStore(ctx, store, "store deleted")
	return nil
}

func (s *service) load(ctx context.Context, vendorID, storeID uuid.UUID) (*models.Store, error) {
	store, err := s.repo.FindByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	if store.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return store, nil
}

func (s *service) logStore(ctx context.Context, store *models.Store, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"vendor_id": store.VendorID.String(),
		"store_id":  store.ID.String(),
	}), msg)
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		return "", pkgerrors.New(pkgerrors.CodeValidation, "store name is required")
	case utf8.RuneCountInString(name) > maxNameLen:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "store name is too long").
			WithDetails(map[string]any{"max": maxNameLen})
	}
	return name, nil
}

func normalizeDescription(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	description := strings.TrimSpace(*raw)
	if description == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store description is too long").
			WithDetails(map[string]any{"max": maxDescriptionLen})
	}
	return &description, nil
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	cpy := *value
	return &cpy
}
