package deposits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/internal/orders"
	"github.com/vendorisland/vendorisland-backend/internal/wallet"
	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox"
	"github.com/vendorisland/vendorisland-backend/pkg/outbox/payloads"
	"github.com/vendorisland/vendorisland-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type walletCredits interface {
	Provision(ctx context.Context, vendorID uuid.UUID, currency string) (*wallet.WalletDTO, error)
	WithWalletLock(ctx context.Context, walletID uuid.UUID, fn func(ctx context.Context) error) error
	DepositTx(ctx context.Context, tx *gorm.DB, input wallet.DepositInput) (*models.WalletTransaction, error)
}

type topupRetrier interface {
	RetryTopup(ctx context.Context, vendorID uuid.UUID) (*orders.TopupRetryResult, error)
}

// Service manages vendor crypto deposit requests and their admin review.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*DepositDTO, error)
	Approve(ctx context.Context, input ReviewInput) (*ApproveResult, error)
	Reject(ctx context.Context, input ReviewInput) (*DepositDTO, error)
	Get(ctx context.Context, requestID uuid.UUID, vendorID *uuid.UUID) (*DepositDTO, error)
	List(ctx context.Context, params ListParams) (*DepositList, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	wallets walletCredits
	topups  topupRetrier
	retry   db.RetryPolicy
	logg    *logger.Logger
	now     func() time.Time
}

type Option func(*service)

func WithLogger(l *logger.Logger) Option {
	return func(s *service) { s.logg = l }
}

func WithRetryPolicy(p db.RetryPolicy) Option {
	return func(s *service) { s.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, wallets walletCredits, topups topupRetrier, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("deposits repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if topups == nil {
		return nil, fmt.Errorf("topup retrier required")
	}
	s := &service{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		wallets: wallets,
		topups:  topups,
		retry:   db.RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*DepositDTO, error) {
	switch {
	case input.VendorID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	case input.AmountCents <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit amount must be positive")
	case !input.CryptoType.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported crypto type")
	}
	w, err := s.wallets.Provision(ctx, input.VendorID, "")
	if err != nil {
		return nil, err
	}
	now := s.now()
	request := &models.DepositRequest{
		ID:          uuid.New(),
		VendorID:    input.VendorID,
		WalletID:    w.ID,
		AmountCents: input.AmountCents,
		CryptoType:  input.CryptoType,
		ReceiptURL:  trimmed(input.ReceiptURL),
		TxHash:      trimmed(input.TxHash),
		Status:      enums.DepositStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, db.Classify(err, "create deposit request")
	}
	s.logRequest(ctx, request, "deposit request submitted")
	return toDepositDTO(request), nil
}

// Approve credits the wallet once per request, then retries the vendor's
// blocked orders outside the wallet lock.
func (s *service) Approve(ctx context.Context, input ReviewInput) (*ApproveResult, error) {
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	request, err := s.find(ctx, input.RequestID, nil)
	if err != nil {
		return nil, err
	}
	if request.Status == enums.DepositStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "deposit request already rejected")
	}

	result := &ApproveResult{}
	err = s.wallets.WithWalletLock(ctx, request.WalletID, func(ctx context.Context) error {
		return db.Retry(ctx, s.retry, func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				return s.approveTx(ctx, tx, input, result)
			})
		})
	})
	if err != nil {
		return nil, err
	}

	topup, err := s.topups.RetryTopup(ctx, request.VendorID)
	if err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"vendor_id":          request.VendorID.String(),
				"deposit_request_id": request.ID.String(),
			})
			s.logg.Error(logCtx, "topup retry after deposit failed", err)
		}
	}
	result.Topup = topup
	return result, nil
}

func (s *service) approveTx(ctx context.Context, tx *gorm.DB, input ReviewInput, result *ApproveResult) error {
	repo := s.repo.WithTx(tx)
	request, err := repo.LockByID(ctx, input.RequestID)
	if err != nil {
		return requestLookupError(err)
	}
	switch request.Status {
	case enums.DepositStatusRejected:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit request already rejected")
	case enums.DepositStatusApproved:
		result.Replayed = true
	}

	// The request id is the ledger reference, so a replay returns the original entry.
	entry, err := s.wallets.DepositTx(ctx, tx, wallet.DepositInput{
		WalletID:    request.WalletID,
		AmountCents: request.AmountCents,
		ReferenceID: request.ID.String(),
		Description: fmt.Sprintf("%s deposit", strings.ToUpper(string(request.CryptoType))),
	})
	if err != nil {
		return err
	}
	result.Transaction = wallet.ToTransactionDTO(entry)
	if result.Replayed {
		result.Deposit = toDepositDTO(request)
		return nil
	}

	now := s.now()
	adminID := input.AdminID
	request.Status = enums.DepositStatusApproved
	request.ReviewedBy = &adminID
	request.ReviewedAt = &now
	request.AdminNotes = trimmed(&input.Notes)
	request.UpdatedAt = now
	if err := repo.Update(ctx, request.ID, map[string]any{
		"status":      request.Status,
		"reviewed_by": request.ReviewedBy,
		"reviewed_at": request.ReviewedAt,
		"admin_notes": request.AdminNotes,
		"updated_at":  request.UpdatedAt,
	}); err != nil {
		return requestLookupError(err)
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDepositApproved,
		AggregateType: enums.AggregateDepositRequest,
		AggregateID:   request.ID,
		OccurredAt:    now,
		Actor:         &outbox.ActorRef{UserID: adminID, Role: string(enums.RoleAdmin)},
		Data: payloads.DepositApprovedEvent{
			DepositRequestID: request.ID,
			VendorID:         request.VendorID,
			WalletID:         request.WalletID,
			AmountCents:      request.AmountCents,
			CryptoType:       request.CryptoType,
		},
	})
	if err != nil {
		return err
	}
	result.Deposit = toDepositDTO(request)
	s.logRequest(ctx, request, "deposit request approved")
	return nil
}

func (s *service) Reject(ctx context.Context, input ReviewInput) (*DepositDTO, error) {
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	reason := strings.TrimSpace(input.Notes)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}
	var out *DepositDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.LockByID(ctx, input.RequestID)
		if err != nil {
			return requestLookupError(err)
		}
		if request.Status != enums.DepositStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("deposit request already %s", request.Status))
		}
		now := s.now()
		adminID := input.AdminID
		request.Status = enums.DepositStatusRejected
		request.ReviewedBy = &adminID
		request.ReviewedAt = &now
		request.AdminNotes = &reason
		request.UpdatedAt = now
		if err := repo.Update(ctx, request.ID, map[string]any{
			"status":      request.Status,
			"reviewed_by": request.ReviewedBy,
			"reviewed_at": request.ReviewedAt,
			"admin_notes": request.AdminNotes,
			"updated_at":  request.UpdatedAt,
		}); err != nil {
			return requestLookupError(err)
		}
		out = toDepositDTO(request)
		s.logRequest(ctx, request, "deposit request rejected")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, requestID uuid.UUID, vendorID *uuid.UUID) (*DepositDTO, error) {
	request, err := s.find(ctx, requestID, vendorID)
	if err != nil {
		return nil, err
	}
	return toDepositDTO(request), nil
}

func (s *service) List(ctx context.Context, params ListParams) (*DepositList, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, params.VendorID, params.Status, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, db.Classify(err, "list deposit requests")
	}
	rows, next := pagination.Trim(rows, limit, func(d *models.DepositRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	list := &DepositList{Deposits: make([]DepositDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		list.Deposits = append(list.Deposits, *toDepositDTO(&rows[i]))
	}
	return list, nil
}

// find hides other vendors' requests behind not found.
func (s *service) find(ctx context.Context, requestID uuid.UUID, vendorID *uuid.UUID) (*models.DepositRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit request id required")
	}
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, requestLookupError(err)
	}
	if vendorID != nil && request.VendorID != *vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deposit request not found")
	}
	return request, nil
}

func (s *service) logRequest(ctx context.Context, request *models.DepositRequest, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"vendor_id":          request.VendorID.String(),
		"wallet_id":          request.WalletID.String(),
		"deposit_request_id": request.ID.String(),
		"amount_cents":       request.AmountCents,
	}), msg)
}

func requestLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "deposit request not found")
	}
	return db.Classify(err, "deposit request storage")
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
