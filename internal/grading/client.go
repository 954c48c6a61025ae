package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnavailable = errors.New("grading service unavailable")

// Task is one grading request for a subjectively-scored exam. Writing sends a
// single response; speaking sends one response per part.
type Task struct {
	SessionID string            `json:"session_id"`
	ExamType  string            `json:"exam_type"`
	Prompt    string            `json:"prompt"`
	Responses map[string]string `json:"responses"`
}

type Result struct {
	Band      decimal.Decimal            `json:"band"`
	SubScores map[string]decimal.Decimal `json:"sub_scores"`
	Feedback  string                     `json:"feedback"`
	CostCents decimal.Decimal            `json:"cost_cents"`
}

// Client scores writing and speaking tasks. Implementations must return
// ErrUnavailable (possibly wrapped) on transport or service failure so callers
// can fall back to heuristic scoring.
type Client interface {
	Grade(ctx context.Context, task Task) (Result, error)
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) Grade(ctx context.Context, task Task) (Result, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/grade", bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, nil
}
