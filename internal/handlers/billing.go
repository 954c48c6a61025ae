package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"langexam/internal/middleware"
	"langexam/internal/services"

	"go.uber.org/zap"
)

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	credits, err := h.users.GetCredits(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load balance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"credits": credits})
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := paginate(r)
	entries, err := h.ledger.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load ledger")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) ListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.billing.ListPacks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load packs")
		return
	}
	respondJSON(w, http.StatusOK, packs)
}

type checkoutRequest struct {
	PackID string `json:"pack_id" validate:"required"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req checkoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	checkoutURL, err := h.billing.Checkout(r.Context(), userID, req.PackID)
	if err != nil {
		respondServiceError(w, err, "unable to start checkout")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"checkout_url": checkoutURL})
}

// PaymentWebhook ingests provider confirmations. The signature gate rejects
// forgeries; past it, malformed events are acknowledged with 200 so the
// provider stops retrying something that will never parse, and transient
// failures return 500 to request a retry.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !h.verifyWebhookSignature(body, r.Header.Get("X-Payment-Signature")) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	var event services.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("webhook payload did not parse", zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err := h.billing.Reconcile(r.Context(), event); err != nil {
		if errors.Is(err, services.ErrMalformedEvent) || errors.Is(err, services.ErrUnknownPack) {
			h.logger.Warn("webhook event rejected",
				zap.String("payment_ref", event.PaymentRef),
				zap.Error(err))
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		respondError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) verifyWebhookSignature(body []byte, signature string) bool {
	if h.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
