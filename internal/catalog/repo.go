package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

// Repository persists catalog products.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.CatalogProduct) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CatalogProduct, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int, status *enums.CatalogStatus) ([]models.CatalogProduct, error)
	ListPriceable(ctx context.Context, vendorID uuid.UUID) ([]models.CatalogProduct, error)
	HasOrderHistory(ctx context.Context, productID uuid.UUID) (bool, error)
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

func (r *repository) Create(ctx context.Context, product *models.CatalogProduct) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CatalogProduct, error) {
	var product models.CatalogProduct
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&models.CatalogProduct{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.CatalogProduct{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int, status *enums.CatalogStatus) ([]models.CatalogProduct, error) {
	q := r.db.WithContext(ctx).Model(&models.CatalogProduct{}).Where("vendor_id = ?", vendorID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var products []models.CatalogProduct
	err := pagination.Keyset(q, cursor, limit).Find(&products).Error
	return products, err
}

// ListPriceable returns every product of the vendor that repricing applies to.
func (r *repository) ListPriceable(ctx context.Context, vendorID uuid.UUID) ([]models.CatalogProduct, error) {
	var products []models.CatalogProduct
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND status <> ?", vendorID, enums.CatalogStatusArchived).
		Order("created_at ASC").
		Order("id ASC").
		Find(&products).Error
	return products, err
}

func (r *repository) HasOrderHistory(ctx context.Context, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("catalog_product_id = ?", productID).
		Count(&count).Error
	return count > 0, err
}
