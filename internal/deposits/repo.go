package deposits

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

// Repository persists crypto deposit requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.DepositRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, vendorID *uuid.UUID, status *enums.DepositStatus, cursor *pagination.Cursor, limit int) ([]models.DepositRequest, error)
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

func (r *repository) Create(ctx context.Context, request *models.DepositRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error) {
	var request models.DepositRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error) {
	var request models.DepositRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&models.DepositRequest{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List pages requests newest first. A nil vendorID lists every vendor.
func (r *repository) List(ctx context.Context, vendorID *uuid.UUID, status *enums.DepositStatus, cursor *pagination.Cursor, limit int) ([]models.DepositRequest, error) {
	q := r.db.WithContext(ctx).Model(&models.DepositRequest{})
	if vendorID != nil {
		q = q.Where("vendor_id = ?", *vendorID)
	}
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var rows []models.DepositRequest
	err := pagination.Keyset(q, cursor, limit).Find(&rows).Error
	return rows, err
}
