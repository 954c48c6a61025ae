package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type stubLimiter struct {
	allowed bool
	err     error
	lastID  string
}

func (s *stubLimiter) Allow(ctx context.Context, identifier, action string) (bool, error) {
	s.lastID = identifier
	return s.allowed, s.err
}

func TestRateLimitBlocks(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	handler := RateLimit(limiter, "exam_start", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, requestWithUser("user-1"))
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if limiter.lastID != "user-1" {
		t.Fatalf("expected user id as identifier, got %s", limiter.lastID)
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limiter := &stubLimiter{allowed: true}
	handler := RateLimit(limiter, "login", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if limiter.lastID != "10.1.2.3" {
		t.Fatalf("expected client ip as identifier, got %s", limiter.lastID)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &stubLimiter{allowed: true, err: errors.New("redis down")}
	called := false
	handler := RateLimit(limiter, "login", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), requestWithUser("user-1"))
	if !called {
		t.Fatal("limiter errors must fail open")
	}
}
