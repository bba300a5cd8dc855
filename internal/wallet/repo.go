package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// Repository persists wallets and their append-only transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wallet *models.Wallet) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByVendorID(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	UpdateBalances(ctx context.Context, wallet *models.Wallet) error
	AppendEntry(ctx context.Context, entry *models.WalletTransaction) error
	LastEntry(ctx context.Context, walletID uuid.UUID) (*models.WalletTransaction, error)
	EntriesForOrder(ctx context.Context, walletID, orderID uuid.UUID) ([]models.WalletTransaction, error)
	FindByReference(ctx context.Context, walletID uuid.UUID, txType enums.TransactionType, referenceID string) (*models.WalletTransaction, error)
	ListEntries(ctx context.Context, walletID uuid.UUID, filter EntryFilter) ([]models.WalletTransaction, error)
	AllEntries(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error)
	ListWalletIDs(ctx context.Context) ([]uuid.UUID, error)
}

// EntryFilter narrows a newest-first transaction listing.
type EntryFilter struct {
	BeforeSequence int64
	Type           *enums.TransactionType
	OrderID        *uuid.UUID
	Limit          int
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a wallet repository to the provided connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByVendorID(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// LockByID reads the wallet row with FOR UPDATE so concurrent ledger writers
// on other instances serialize behind the caller's transaction.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) UpdateBalances(ctx context.Context, wallet *models.Wallet) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", wallet.ID).
		Updates(map[string]any{
			"available_balance_cents": wallet.AvailableBalanceCents,
			"reserved_balance_cents":  wallet.ReservedBalanceCents,
			"last_sequence":           wallet.LastSequence,
			"updated_at":              now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	wallet.UpdatedAt = now
	return nil
}

func (r *repository) AppendEntry(ctx context.Context, entry *models.WalletTransaction) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// LastEntry returns the highest-sequence entry, or nil for an empty ledger.
func (r *repository) LastEntry(ctx context.Context, walletID uuid.UUID) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("sequence DESC").
		Limit(1).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) EntriesForOrder(ctx context.Context, walletID, orderID uuid.UUID) ([]models.WalletTransaction, error) {
	var entries []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND order_id = ?", walletID, orderID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}

// FindByReference returns nil when no entry of the type carries the reference.
func (r *repository) FindByReference(ctx context.Context, walletID uuid.UUID, txType enums.TransactionType, referenceID string) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND type = ? AND reference_id = ?", walletID, txType, referenceID).
		Order("sequence ASC").
		Limit(1).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListEntries(ctx context.Context, walletID uuid.UUID, filter EntryFilter) ([]models.WalletTransaction, error) {
	q := r.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if filter.BeforeSequence > 0 {
		q = q.Where("sequence < ?", filter.BeforeSequence)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	var entries []models.WalletTransaction
	err := q.Order("sequence DESC").Limit(filter.Limit).Find(&entries).Error
	return entries, err
}

func (r *repository) AllEntries(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	var entries []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) ListWalletIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
