package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vendorisland/vendorisland-backend/internal/deposits"
	"github.com/vendorisland/vendorisland-backend/internal/wallet"
	pkgAuth "github.com/vendorisland/vendorisland-backend/pkg/auth"
	"github.com/vendorisland/vendorisland-backend/pkg/config"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
	"github.com/vendorisland/vendorisland-backend/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubWalletService struct {
	wallet.Service
}

func (stubWalletService) GetByVendor(ctx context.Context, vendorID uuid.UUID) (*wallet.WalletDTO, error) {
	return &wallet.WalletDTO{ID: uuid.New(), VendorID: vendorID, AvailableBalance: "10.00"}, nil
}

type stubDepositService struct {
	deposits.Service
	approved []deposits.ReviewInput
}

func (s *stubDepositService) Approve(ctx context.Context, input deposits.ReviewInput) (*deposits.ApproveResult, error) {
	s.approved = append(s.approved, input)
	return &deposits.ApproveResult{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "8080"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{
			Window:      time.Minute,
			VendorLimit: 120,
			AdminLimit:  300,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestRouter(cfg *config.Config, dbP stubPinger, svc Services) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	reg := prometheus.NewRegistry()
	return NewRouter(cfg, logg, dbP, nil, metrics.NewHTTPMetrics(reg), reg, svc)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole, vendorID *uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:   uuid.New(),
		VendorID: vendorID,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig(), stubPinger{}, Services{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-VendorIsland-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(testConfig(), stubPinger{err: errors.New("down")}, Services{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "postgres") {
		t.Fatalf("expected failing dependency in body: %s", resp.Body.String())
	}
}

func TestVendorRoutesRequireToken(t *testing.T) {
	router := newTestRouter(testConfig(), stubPinger{}, Services{Wallets: stubWalletService{}})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/vendor/wallet", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestVendorWalletWithVendorToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubPinger{}, Services{Wallets: stubWalletService{}})
	vendorID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendor/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleVendor, &vendorID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), vendorID.String()) {
		t.Fatalf("expected vendor wallet in body: %s", resp.Body.String())
	}
}

func TestAdminRoutesRejectVendorToken(t *testing.T) {
	cfg := testConfig()
	svc := &stubDepositService{}
	router := newTestRouter(cfg, stubPinger{}, Services{Deposits: svc})
	vendorID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/deposits/"+uuid.NewString()+"/approve", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleVendor, &vendorID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if len(svc.approved) != 0 {
		t.Fatalf("service should not be reached")
	}
}

func TestAdminApproveDeposit(t *testing.T) {
	cfg := testConfig()
	svc := &stubDepositService{}
	router := newTestRouter(cfg, stubPinger{}, Services{Deposits: svc})
	depositID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/deposits/"+depositID.String()+"/approve", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleAdmin, nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.approved) != 1 || svc.approved[0].RequestID != depositID {
		t.Fatalf("unexpected approvals %+v", svc.approved)
	}
}

func TestUnwiredServiceIsInternalError(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubPinger{}, Services{})
	vendorID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendor/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleVendor, &vendorID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	router := newTestRouter(testConfig(), stubPinger{}, Services{})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "vendorisland_http_requests_total") {
		t.Fatalf("expected http counter in metrics output")
	}
}
