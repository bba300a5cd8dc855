package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

type depositBody struct {
	Amount     string `json:"amount" validate:"required,money"`
	CryptoType string `json:"crypto_type" validate:"required,oneof=USDT BTC ETH"`
}

func TestDecodeJSONBodyValidatesMoney(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.505","crypto_type":"USDT"}`))
	var body depositBody
	err := DecodeJSONBody(req, &body)
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["amount"] == "" {
		t.Fatalf("expected amount detail keyed by json name, got %#v", typed.Details())
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.50","crypto_type":"USDT","extra":1}`))
	var body depositBody
	if err := DecodeJSONBody(req, &body); err == nil {
		t.Fatal("expected unknown field rejection")
	}
}

func TestDecodeJSONBodyAccepts(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.50","crypto_type":"BTC"}`))
	var body depositBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Amount != "12.50" {
		t.Fatalf("unexpected amount %s", body.Amount)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderID", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "orderID")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ParseUUIDParam(req, "walletID"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing param, got %v", err)
	}
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&store_id=nope&created_from=2026-01-02T03:04:05Z", nil)
	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); err == nil {
		t.Fatal("expected out of range limit")
	}
	if _, err := ParseOptionalUUIDQuery(req, "store_id"); err == nil {
		t.Fatal("expected uuid parse error")
	}
	from, err := ParseOptionalTimeQuery(req, "created_from")
	if err != nil || from == nil || from.Year() != 2026 {
		t.Fatalf("unexpected created_from %v (%v)", from, err)
	}
	if to, err := ParseOptionalTimeQuery(req, "created_to"); err != nil || to != nil {
		t.Fatalf("expected absent created_to, got %v (%v)", to, err)
	}
}

func TestParseAmount(t *testing.T) {
	cents, err := ParseAmount("amount", "19.99")
	if err != nil || cents != 1999 {
		t.Fatalf("expected 1999, got %d (%v)", cents, err)
	}
	if _, err := ParseAmount("amount", "abc"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	blank := " "
	if got, err := ParseOptionalAmount("cap", &blank); err != nil || got != nil {
		t.Fatalf("expected absent amount, got %v (%v)", got, err)
	}
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1.00","crypto_type":"BTC"}{"amount":"2.00"}`))
	var body depositBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for concatenated objects, got %v", err)
	}
}

func TestDecodeOptionalJSONBodyAcceptsEmpty(t *testing.T) {
	var body struct {
		Reason string `json:"reason" validate:"max=10"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeOptionalJSONBody(req, &body); err != nil {
		t.Fatalf("empty body should be accepted, got %v", err)
	}
	if err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &body); err == nil {
		t.Fatalf("required body should reject empty input")
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{in: "  buyer changed mind  ", max: 100, want: "buyer changed mind"},
		{in: "line\x00one\tx", max: 0, want: "lineonex"},
		{in: "café crème", max: 4, want: "café"},
		{in: "keep\nnewline", max: 0, want: "keep\nnewline"},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.in, tt.max); got != tt.want {
			t.Fatalf("SanitizeString(%q, %d) = %q want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
