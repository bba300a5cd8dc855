package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

// Repository persists orders and their item snapshots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int, filters ListFilters) ([]models.Order, error)
	ListBlocked(ctx context.Context, vendorID uuid.UUID) ([]models.Order, error)
	ListBlockedVendors(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds an orders repository to the provided connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int, filters ListFilters) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("vendor_id = ?", vendorID)
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.StoreID != nil {
		q = q.Where("store_id = ?", *filters.StoreID)
	}
	if filters.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *filters.CreatedFrom)
	}
	if filters.CreatedTo != nil {
		q = q.Where("created_at <= ?", *filters.CreatedTo)
	}
	var orders []models.Order
	err := pagination.Keyset(q, cursor, limit).Find(&orders).Error
	return orders, err
}

// ListBlocked returns the vendor's orders waiting on funds, oldest first.
func (r *repository) ListBlocked(ctx context.Context, vendorID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Where("status = ? OR refund_pending = ?", enums.OrderStatusNeedsTopup, true).
		Order("created_at ASC").
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) ListBlockedVendors(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? OR refund_pending = ?", enums.OrderStatusNeedsTopup, true).
		Distinct().
		Order("vendor_id ASC").
		Pluck("vendor_id", &ids).Error
	return ids, err
}
