package deposits

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/api/middleware"
	internaldeposits "github.com/vendorisland/vendorisland-backend/internal/deposits"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

type stubDepositService struct {
	internaldeposits.Service
	submitted []internaldeposits.SubmitInput
	approved  []internaldeposits.ReviewInput
	getVendor *uuid.UUID
	listed    *internaldeposits.ListParams
}

func (s *stubDepositService) Submit(ctx context.Context, input internaldeposits.SubmitInput) (*internaldeposits.DepositDTO, error) {
	s.submitted = append(s.submitted, input)
	return &internaldeposits.DepositDTO{ID: uuid.New(), VendorID: input.VendorID, AmountCents: input.AmountCents, Status: enums.DepositStatusPending}, nil
}

func (s *stubDepositService) Approve(ctx context.Context, input internaldeposits.ReviewInput) (*internaldeposits.ApproveResult, error) {
	s.approved = append(s.approved, input)
	return &internaldeposits.ApproveResult{Deposit: &internaldeposits.DepositDTO{ID: input.RequestID, Status: enums.DepositStatusApproved}}, nil
}

func (s *stubDepositService) Get(ctx context.Context, requestID uuid.UUID, vendorID *uuid.UUID) (*internaldeposits.DepositDTO, error) {
	s.getVendor = vendorID
	return &internaldeposits.DepositDTO{ID: requestID}, nil
}

func (s *stubDepositService) List(ctx context.Context, params internaldeposits.ListParams) (*internaldeposits.DepositList, error) {
	s.listed = &params
	return &internaldeposits.DepositList{}, nil
}

func withRole(req *http.Request, role enums.UserRole, vendorID string) *http.Request {
	ctx := middleware.WithRole(req.Context(), string(role))
	ctx = middleware.WithUserID(ctx, uuid.NewString())
	if vendorID != "" {
		ctx = middleware.WithVendorID(ctx, vendorID)
	}
	return req.WithContext(ctx)
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSubmitParsesAmountAndCrypto(t *testing.T) {
	svc := &stubDepositService{}
	vendorID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendor/deposits", strings.NewReader(`{"amount":"100.00","crypto_type":"USDT","tx_hash":"0xabc"}`))
	rec := httptest.NewRecorder()
	Submit(svc, nil).ServeHTTP(rec, withRole(req, enums.RoleVendor, vendorID.String()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	got := svc.submitted[0]
	if got.VendorID != vendorID || got.AmountCents != 10000 || got.CryptoType != enums.CryptoTypeUSDT {
		t.Fatalf("unexpected submit input %+v", got)
	}
	if got.TxHash == nil || *got.TxHash != "0xabc" {
		t.Fatalf("expected tx hash to pass through")
	}
}

func TestSubmitRejectsUnknownCrypto(t *testing.T) {
	svc := &stubDepositService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendor/deposits", strings.NewReader(`{"amount":"1.00","crypto_type":"doge"}`))
	rec := httptest.NewRecorder()
	Submit(svc, nil).ServeHTTP(rec, withRole(req, enums.RoleVendor, uuid.NewString()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.submitted) != 0 {
		t.Fatal("submit should not be called")
	}
}

func TestVendorDetailScopesToCaller(t *testing.T) {
	svc := &stubDepositService{}
	vendorID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = withParam(withRole(req, enums.RoleVendor, vendorID.String()), "depositID", uuid.NewString())
	rec := httptest.NewRecorder()
	VendorDetail(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.getVendor == nil || *svc.getVendor != vendorID {
		t.Fatalf("expected vendor scope %s, got %v", vendorID, svc.getVendor)
	}
}

func TestApproveCarriesAdminAndNotes(t *testing.T) {
	svc := &stubDepositService{}
	requestID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"notes":"  verified on chain  "}`))
	req = withParam(withRole(req, enums.RoleAdmin, ""), "depositID", requestID.String())
	rec := httptest.NewRecorder()
	Approve(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := svc.approved[0]
	if got.RequestID != requestID || got.AdminID == uuid.Nil || got.Notes != "verified on chain" {
		t.Fatalf("unexpected review input %+v", got)
	}
}

func TestApproveRequiresAdmin(t *testing.T) {
	svc := &stubDepositService{}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = withParam(withRole(req, enums.RoleVendor, uuid.NewString()), "depositID", uuid.NewString())
	rec := httptest.NewRecorder()
	Approve(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAdminListFilters(t *testing.T) {
	svc := &stubDepositService{}
	vendorID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/?status=pending&vendor_id="+vendorID.String(), nil)
	rec := httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(rec, withRole(req, enums.RoleAdmin, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.listed.Status == nil || *svc.listed.Status != enums.DepositStatusPending {
		t.Fatalf("expected pending filter, got %+v", svc.listed)
	}
	if svc.listed.VendorID == nil || *svc.listed.VendorID != vendorID {
		t.Fatalf("expected vendor filter, got %+v", svc.listed)
	}
}
