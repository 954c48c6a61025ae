package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"langexam/internal/models"
	"langexam/internal/services"
)

func TestBalanceReturnsCredits(t *testing.T) {
	users := stubUserStore{
		getCreditsFn: func(ctx context.Context, userID string) (int64, error) {
			return 7, nil
		},
	}
	handler := newTestHandler(testDeps{users: users})
	rr := routedRequest(t, handler, http.MethodGet, "/credits/balance", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp["credits"] != float64(7) {
		t.Fatalf("unexpected credits: %v", resp)
	}
}

func TestListLedgerRequiresAuth(t *testing.T) {
	handler := newTestHandler(testDeps{})
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/credits/ledger", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestCheckoutReturnsProviderURL(t *testing.T) {
	handler := newTestHandler(testDeps{
		billing: stubBillingService{
			checkoutFn: func(ctx context.Context, userID, packID string) (string, error) {
				if packID != "standard" {
					t.Fatalf("unexpected pack: %s", packID)
				}
				return "https://pay.example.com/cs_1", nil
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodPost, "/credits/checkout", bytes.NewBufferString(`{"pack_id":"standard"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp["checkout_url"] != "https://pay.example.com/cs_1" {
		t.Fatalf("unexpected url: %v", resp)
	}
}

func TestCheckoutUnknownPack(t *testing.T) {
	handler := newTestHandler(testDeps{
		billing: stubBillingService{
			checkoutFn: func(ctx context.Context, userID, packID string) (string, error) {
				return "", services.ErrUnknownPack
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodPost, "/credits/checkout", bytes.NewBufferString(`{"pack_id":"nope"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestListPacks(t *testing.T) {
	handler := newTestHandler(testDeps{
		billing: stubBillingService{
			listPacksFn: func(ctx context.Context) ([]models.CreditPack, error) {
				return []models.CreditPack{{ID: "starter", Credits: 1, PriceCents: 990, Active: true}}, nil
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodGet, "/credits/packs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookAppliesEvent(t *testing.T) {
	var seen services.PaymentEvent
	handler := newTestHandler(testDeps{
		billing: stubBillingService{
			reconcileFn: func(ctx context.Context, event services.PaymentEvent) error {
				seen = event
				return nil
			},
		},
	})
	body := []byte(`{"user_id":"user-1","pack_id":"standard","payment_ref":"pi_abc"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Payment-Signature", signWebhook(body))
	handler.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	if seen.PaymentRef != "pi_abc" || seen.UserID != "user-1" {
		t.Fatalf("event not delivered: %+v", seen)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	called := false
	handler := newTestHandler(testDeps{
		billing: stubBillingService{
			reconcileFn: func(ctx context.Context, event services.PaymentEvent) error {
				called = true
				return nil
			},
		},
	})
	body := []byte(`{"user_id":"user-1","pack_id":"standard","payment_ref":"pi_abc"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Payment-Signature", "deadbeef")
	handler.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if called {
		t.Fatal("reconcile must not run for a forged signature")
	}
}

func TestWebhookAcksMalformedEvent(t *testing.T) {
	handler := newTestHandler(testDeps{
		billing: stubBillingService{
			reconcileFn: func(ctx context.Context, event services.PaymentEvent) error {
				return services.ErrMalformedEvent
			},
		},
	})
	body := []byte(`{"pack_id":"standard"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Payment-Signature", signWebhook(body))
	handler.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("malformed events must be acked, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp["status"] != "ignored" {
		t.Fatalf("unexpected response: %s", rr.Body.String())
	}
}

func TestWebhookRetriesOnTransientError(t *testing.T) {
	handler := newTestHandler(testDeps{
		billing: stubBillingService{
			reconcileFn: func(ctx context.Context, event services.PaymentEvent) error {
				return errors.New("db down")
			},
		},
	})
	body := []byte(`{"user_id":"user-1","pack_id":"standard","payment_ref":"pi_abc"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Payment-Signature", signWebhook(body))
	handler.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("transient failures must ask for a retry, got %d", rr.Code)
	}
}
