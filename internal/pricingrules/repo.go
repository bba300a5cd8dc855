package pricingrules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
)

// Repository persists vendor pricing rules.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rule *models.PricingRule) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PricingRule, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, vendorID uuid.UUID, activeOnly bool) ([]models.PricingRule, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, rule *models.PricingRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PricingRule, error) {
	var rule models.PricingRule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&models.PricingRule{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns the vendor's rules in evaluation order.
func (r *repository) List(ctx context.Context, vendorID uuid.UUID, activeOnly bool) ([]models.PricingRule, error) {
	q := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rules []models.PricingRule
	err := q.Order("priority DESC").Order("updated_at DESC").Order("id ASC").Find(&rules).Error
	return rules, err
}
