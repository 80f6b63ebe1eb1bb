package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/viveroverde/vivero/internal/config"
	"github.com/viveroverde/vivero/internal/gateway/domain"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (domain.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		GatewayBaseURL:     srv.URL,
		GatewayAccessToken: "token-123",
		GatewayTimeout:     2 * time.Second,
	}
	return NewClient(cfg, zap.NewNop()), srv
}

func TestFetchPaymentInfoNormalizesPayload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/12345678" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 12345678,
			"status": "accredited",
			"payment_method_id": "visa",
			"payment_type_id": "credit_card",
			"transaction_amount": 149.90,
			"date_approved": "2026-08-01T10:30:00Z",
			"external_reference": "01J3ZK8E2JD0V4E8YB2M6P7Q9S",
			"receipt_url": "https://gateway.example/receipts/12345678",
			"live_mode": true,
			"payer": {"email": "cliente@example.com"}
		}`))
	})

	info, err := client.FetchPaymentInfo(t.Context(), "12345678")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.ID != "12345678" {
		t.Fatalf("unexpected id %q", info.ID)
	}
	if info.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", info.Status)
	}
	if info.RawStatus != "accredited" {
		t.Fatalf("expected raw status preserved, got %q", info.RawStatus)
	}
	if info.TransactionAmount != 14990 {
		t.Fatalf("expected amount in cents, got %d", info.TransactionAmount)
	}
	if info.ApprovedAt == nil {
		t.Fatalf("expected approval timestamp")
	}
	if info.ExternalReference != "01J3ZK8E2JD0V4E8YB2M6P7Q9S" {
		t.Fatalf("unexpected external reference %q", info.ExternalReference)
	}
}

func TestFetchPaymentInfoNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchPaymentInfo(t.Context(), "999")
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected payment_not_found, got %v", err)
	}
}

func TestFetchPaymentInfoServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchPaymentInfo(t.Context(), "999")
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway_unavailable, got %v", err)
	}
}

func TestNormalizeStatusUnknownFallsBackToPending(t *testing.T) {
	if got := domain.NormalizeStatus("something_new"); got != domain.StatusPending {
		t.Fatalf("expected pending for unknown status, got %s", got)
	}
	if got := domain.NormalizeStatus("Charged_Back"); got != domain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", got)
	}
}
