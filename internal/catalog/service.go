package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/internal/pricing"
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

// ruleSource supplies the vendor's active rules in engine form.
type ruleSource interface {
	EngineRules(ctx context.Context, vendorID uuid.UUID) ([]pricing.Rule, error)
}

// Service manages the vendor catalog and keeps selling prices in step with
// the vendor's pricing rules.
type Service interface {
	Import(ctx context.Context, vendorID uuid.UUID, input ImportInput) (*RepriceResult, error)
	Get(ctx context.Context, vendorID, productID uuid.UUID) (*ProductDTO, error)
	List(ctx context.Context, vendorID uuid.UUID, params pagination.Params, status *enums.CatalogStatus) (*ProductList, error)
	Reprice(ctx context.Context, vendorID, productID uuid.UUID) (*RepriceResult, error)
	RepriceAll(ctx context.Context, vendorID uuid.UUID) (*RepriceSummary, error)
	Publish(ctx context.Context, vendorID, productID uuid.UUID) (*ProductDTO, error)
	Unpublish(ctx context.Context, vendorID, productID uuid.UUID) (*ProductDTO, error)
	Archive(ctx context.Context, vendorID, productID uuid.UUID) (*ProductDTO, error)
	Delete(ctx context.Context, vendorID, productID uuid.UUID) (*DeleteResult, error)
	RecordPriceCheck(ctx context.Context, vendorID, productID uuid.UUID, input PriceCheckInput) (*RepriceResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	rules   ruleSource
	workers int
	logg    *logger.Logger
	now     func() time.Time
}

type Option func(*service)

func WithLogger(l *logger.Logger) Option {
	return func(s *service) { s.logg = l }
}

// WithWorkers bounds the parallelism of RepriceAll.
func WithWorkers(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, rules ruleSource, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if rules == nil {
		return nil, fmt.Errorf("pricing rule source required")
	}
	s := &service{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		rules:   rules,
		workers: 4,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Import lands supplier data as a draft and prices it against the current rules.
func (s *service) Import(ctx context.Context, vendorID uuid.UUID, input ImportInput) (*RepriceResult, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	case input.CostPriceCents <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cost price must be positive")
	case input.ShippingCostCents < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping cost cannot be negative")
	}
	rules, err := s.rules.EngineRules(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	product := &models.CatalogProduct{
		ID:                  uuid.New(),
		VendorID:            vendorID,
		SupplierProductID:   input.SupplierProductID,
		SupplierURL:         input.SupplierURL,
		Name:                name,
		Description:         input.Description,
		Category:            input.Category,
		ShippingZone:        trimmedZone(input.ShippingZone),
		CostPriceCents:      input.CostPriceCents,
		ShippingCostCents:   input.ShippingCostCents,
		Status:              enums.CatalogStatusDraft,
		CountryRestrictions: pq.StringArray(input.CountryRestrictions),
		Images:              pq.StringArray(input.Images),
		Variants:            input.Variants,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	priced := pricing.ComputeSellingPrice(basisOf(product), rules)
	if priced.Found {
		price, ruleID := priced.PriceCents, priced.RuleID
		product.SellingPriceCents = &price
		product.PricingRuleID = &ruleID
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, product); err != nil {
			return db.Classify(err, "create catalog product")
		}
		if !priced.Found {
			return nil
		}
		return s.emitRepriced(ctx, tx, product, nil)
	})
	if err != nil {
		return nil, err
	}
	s.logProduct(ctx, product, "catalog product imported")
	return &RepriceResult{
		Product:    toProductDTO(product),
		Priced:     priced.Found,
		Changed:    priced.Found,
		Rejections: priced.Rejections,
	}, nil
}

func (s *service) Get(ctx context.Context, vendorID, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, s.repo, vendorID, productID)
	if err != nil {
		return nil, err
	}
	return toProductDTO(product), nil
}

func (s *service) List(ctx context.Context, vendorID uuid.UUID, params pagination.Params, status *enums.CatalogStatus) (*ProductList, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, vendorID, cursor, pagination.LimitWithBuffer(params.Limit), status)
	if err != nil {
		return nil, db.Classify(err, "list catalog products")
	}
	rows, next := pagination.Trim(rows, limit, func(p *models.CatalogProduct) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	list := &ProductList{Products: make([]ProductDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		list.Products = append(list.Products, *toProductDTO(&rows[i]))
	}
	return list, nil
}

func (s *service) Reprice(ctx context.Context, vendorID, productID uuid.UUID) (*RepriceResult, error) {
	rules, err := s.rules.EngineRules(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	var result *RepriceResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.load(ctx, s.repo.WithTx(tx), vendorID, productID)
		if err != nil {
			return err
		}
		if product.Status == enums.CatalogStatusArchived {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "archived products are not repriced")
		}
		result, err = s.applyPrice(ctx, tx, product, pricing.ComputeSellingPrice(basisOf(product), rules))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RepriceAll evaluates every non-archived product against one rule snapshot
// in parallel, then writes each product in its own transaction. A product
// whose write fails is listed in Failed and the pass moves on; the pass only
// errors when no write succeeded.
func (s *service) RepriceAll(ctx context.Context, vendorID uuid.UUID) (*RepriceSummary, error) {
	rules, err := s.rules.EngineRules(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListPriceable(ctx, vendorID)
	if err != nil {
		return nil, db.Classify(err, "list priceable products")
	}
	bases := make([]pricing.Basis, len(products))
	for i := range products {
		bases[i] = basisOf(&products[i])
	}
	results, err := pricing.EvaluateAll(ctx, bases, rules, s.workers)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "evaluate catalog prices")
	}

	summary := &RepriceSummary{VendorID: vendorID, Evaluated: len(products)}
	var errs error
	for i := range products {
		product := &products[i]
		var res *RepriceResult
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			res, err = s.applyPrice(ctx, tx, product, results[i])
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %s: %w", product.ID, err))
			summary.Failed = append(summary.Failed, product.ID)
			continue
		}
		if res.Priced {
			summary.Priced++
		} else {
			summary.Unpriced = append(summary.Unpriced, product.ID)
		}
		if res.Changed {
			summary.Changed++
		}
		if res.Unpublished {
			summary.Unpublished = append(summary.Unpublished, product.ID)
		}
	}
	if errs != nil && len(summary.Failed) == len(products) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "reprice catalog")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"vendor_id":   vendorID.String(),
			"evaluated":   summary.Evaluated,
			"priced":      summary.Priced,
			"changed":     summary.Changed,
			"unpublished": len(summary.Unpublished),
			"failed":      len(summary.Failed),
		})
		if errs != nil {
			s.logg.Error(logCtx, "catalog reprice partially failed", errs)
		} else {
			s.logg.Info(logCtx, "catalog repriced")
		}
	}
	return summary, nil
}

// Publish requires a selling price; an unpriced product stays a draft.
func (s *service) Publish(ctx context.Context, vendorID, productID uuid.UUID) (*ProductDTO, error) {
	return s.setStatus(ctx, vendorID, productID, func(p *models.CatalogProduct) error {
		switch p.Status {
		case enums.CatalogStatusArchived:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "archived products cannot be published")
		case enums.CatalogStatusPublished:
			return nil
		}
		if p.SellingPriceCents == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no applicable pricing rule").
				WithDetails(map[string]any{"product_id": p.ID})
		}
		p.Status = enums.CatalogStatusPublished
		return nil
	})
}

func (s *service) Unpublish(ctx context.Context, vendorID, productID uuid.UUID) (*ProductDTO, error) {
	return s.setStatus(ctx, vendorID, productID, func(p *models.CatalogProduct) error {
		switch p.Status {
		case enums.CatalogStatusArchived:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "archived products cannot be unpublished")
		case enums.CatalogStatusPublished:
			p.Status = enums.CatalogStatusDraft
		}
		return nil
	})
}

func (s *service) Archive(ctx context.Context, vendorID, productID uuid.UUID) (*ProductDTO, error) {
	return s.setStatus(ctx, vendorID, productID, func(p *models.CatalogProduct) error {
		p.Status = enums.CatalogStatusArchived
		return nil
	})
}

// Delete removes a product outright only when no order references it;
// otherwise it is archived so order snapshots keep a valid origin.
func (s *service) Delete(ctx context.Context, vendorID, productID uuid.UUID) (*DeleteResult, error) {
	result := &DeleteResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := s.load(ctx, repo, vendorID, productID)
		if err != nil {
			return err
		}
		used, err := repo.HasOrderHistory(ctx, product.ID)
		if err != nil {
			return db.Classify(err, "check order history")
		}
		if !used {
			if err := repo.Delete(ctx, product.ID); err != nil {
				return productLookupError(err)
			}
			result.Deleted = true
			return nil
		}
		if product.Status != enums.CatalogStatusArchived {
			product.Status = enums.CatalogStatusArchived
			product.UpdatedAt = s.now()
			if err := repo.Update(ctx, product.ID, map[string]any{"status": product.Status, "updated_at": product.UpdatedAt}); err != nil {
				return productLookupError(err)
			}
		}
		result.Archived = true
		result.Product = toProductDTO(product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordPriceCheck stores what the supplier currently charges. A divergent
// cost raises price_changed until the vendor accepts it.
func (s *service) RecordPriceCheck(ctx context.Context, vendorID, productID uuid.UUID, input PriceCheckInput) (*RepriceResult, error) {
	if input.ObservedCostCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "observed cost must be positive")
	}
	var rules []pricing.Rule
	if input.Accept {
		var err error
		if rules, err = s.rules.EngineRules(ctx, vendorID); err != nil {
			return nil, err
		}
	}

	var result *RepriceResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := s.load(ctx, repo, vendorID, productID)
		if err != nil {
			return err
		}
		now := s.now()
		observed := input.ObservedCostCents
		product.ObservedCostCents = &observed
		product.LastPriceCheck = &now
		product.PriceChanged = observed != product.CostPriceCents
		if input.Accept {
			product.CostPriceCents = observed
			product.PriceChanged = false
		}
		product.UpdatedAt = now
		if err := repo.Update(ctx, product.ID, map[string]any{
			"observed_cost_cents": product.ObservedCostCents,
			"last_price_check":    product.LastPriceCheck,
			"price_changed":       product.PriceChanged,
			"cost_price_cents":    product.CostPriceCents,
			"updated_at":          product.UpdatedAt,
		}); err != nil {
			return productLookupError(err)
		}
		if !input.Accept || product.Status == enums.CatalogStatusArchived {
			result = &RepriceResult{Product: toProductDTO(product), Priced: product.SellingPriceCents != nil}
			return nil
		}
		result, err = s.applyPrice(ctx, tx, product, pricing.ComputeSellingPrice(basisOf(product), rules))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyPrice persists an engine result. A published product that loses its
// price drops back to draft.
func (s *service) applyPrice(ctx context.Context, tx *gorm.DB, product *models.CatalogProduct, priced pricing.Result) (*RepriceResult, error) {
	previous := product.SellingPriceCents
	result := &RepriceResult{Priced: priced.Found, Rejections: priced.Rejections}

	var (
		nextPrice *int64
		nextRule  *uuid.UUID
	)
	if priced.Found {
		price, ruleID := priced.PriceCents, priced.RuleID
		nextPrice, nextRule = &price, &ruleID
	}
	result.Changed = !sameCents(previous, nextPrice) || !sameID(product.PricingRuleID, nextRule)
	if !priced.Found && product.Status == enums.CatalogStatusPublished {
		product.Status = enums.CatalogStatusDraft
		result.Unpublished = true
	}

	if result.Changed || result.Unpublished {
		product.SellingPriceCents = nextPrice
		product.PricingRuleID = nextRule
		product.UpdatedAt = s.now()
		if err := s.repo.WithTx(tx).Update(ctx, product.ID, map[string]any{
			"selling_price_cents": product.SellingPriceCents,
			"pricing_rule_id":     product.PricingRuleID,
			"status":              product.Status,
			"updated_at":          product.UpdatedAt,
		}); err != nil {
			return nil, productLookupError(err)
		}
	}
	if !sameCents(previous, nextPrice) {
		if err := s.emitRepriced(ctx, tx, product, previous); err != nil {
			return nil, err
		}
	}
	result.Product = toProductDTO(product)
	return result, nil
}

func (s *service) setStatus(ctx context.Context, vendorID, productID uuid.UUID, mutate func(p *models.CatalogProduct) error) (*ProductDTO, error) {
	var out *ProductDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := s.load(ctx, repo, vendorID, productID)
		if err != nil {
			return err
		}
		before := product.Status
		if err := mutate(product); err != nil {
			return err
		}
		if product.Status != before {
			product.UpdatedAt = s.now()
			if err := repo.Update(ctx, product.ID, map[string]any{"status": product.Status, "updated_at": product.UpdatedAt}); err != nil {
				return productLookupError(err)
			}
			s.logProduct(ctx, product, "catalog product status changed")
		}
		out = toProductDTO(product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) emitRepriced(ctx context.Context, tx *gorm.DB, product *models.CatalogProduct, previous *int64) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProductRepriced,
		AggregateType: enums.AggregateCatalogProduct,
		AggregateID:   product.ID,
		OccurredAt:    s.now(),
		Data: payloads.ProductRepricedEvent{
			ProductID:         product.ID,
			VendorID:          product.VendorID,
			PreviousCents:     previous,
			SellingPriceCents: product.SellingPriceCents,
			PricingRuleID:     product.PricingRuleID,
		},
	})
}

func (s *service) load(ctx context.Context, repo Repository, vendorID, productID uuid.UUID) (*models.CatalogProduct, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := repo.FindByID(ctx, productID)
	if err != nil {
		return nil, productLookupError(err)
	}
	if product.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *service) logProduct(ctx context.Context, product *models.CatalogProduct, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"vendor_id":  product.VendorID.String(),
		"product_id": product.ID.String(),
		"status":     product.Status,
	}), msg)
}

func productLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
	}
	return db.Classify(err, "catalog product storage")
}

// trimmedZone drops blank zones so they match every rule.
func trimmedZone(zone *string) *string {
	if zone == nil {
		return nil
	}
	value := strings.TrimSpace(*zone)
	if value == "" {
		return nil
	}
	return &value
}

func sameCents(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
