package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"langexam/internal/models"
)

var ErrProvider = errors.New("payment provider error")

// Provider is the payment-processor boundary. Checkout is a pass-through;
// ReverseCharge is consumed by the refund flow and must be called before any
// local ledger mutation.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, userID string, pack models.CreditPack, returnURL string) (string, error)
	ReverseCharge(ctx context.Context, paymentRef string) (string, error)
}

type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type checkoutRequest struct {
	ClientReference string `json:"client_reference"`
	PackID          string `json:"pack_id"`
	AmountCents     int64  `json:"amount_cents"`
	Description     string `json:"description"`
	ReturnURL       string `json:"return_url"`
	Metadata        struct {
		UserID string `json:"user_id"`
		PackID string `json:"pack_id"`
	} `json:"metadata"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

func (p *HTTPProvider) CreateCheckoutSession(ctx context.Context, userID string, pack models.CreditPack, returnURL string) (string, error) {
	payload := checkoutRequest{
		ClientReference: userID,
		PackID:          pack.ID,
		AmountCents:     pack.PriceCents,
		Description:     fmt.Sprintf("%s (%d credits)", pack.Name, pack.Credits),
		ReturnURL:       returnURL,
	}
	payload.Metadata.UserID = userID
	payload.Metadata.PackID = pack.ID

	var resp checkoutResponse
	if err := p.post(ctx, "/v1/checkout/sessions", payload, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", ErrProvider
	}
	return resp.URL, nil
}

type reversalRequest struct {
	PaymentRef string `json:"payment_ref"`
}

type reversalResponse struct {
	ReversalID string `json:"reversal_id"`
}

func (p *HTTPProvider) ReverseCharge(ctx context.Context, paymentRef string) (string, error) {
	var resp reversalResponse
	if err := p.post(ctx, "/v1/charges/reverse", reversalRequest{PaymentRef: paymentRef}, &resp); err != nil {
		return "", err
	}
	if resp.ReversalID == "" {
		return "", ErrProvider
	}
	return resp.ReversalID, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
