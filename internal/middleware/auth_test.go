package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"langexam/internal/auth"
)

type stubDisabledChecker struct {
	disabled bool
	err      error
}

func (s stubDisabledChecker) IsDisabled(ctx context.Context, userID string) (bool, error) {
	return s.disabled, s.err
}

func authedRequest(t *testing.T, secret, userID string) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken(secret, userID, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthSetsUserID(t *testing.T) {
	var seenUserID string
	handler := Auth("secret", stubDisabledChecker{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID, _ = UserIDFromContext(r.Context())
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(t, "secret", "user-1"))
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if seenUserID != "user-1" {
		t.Fatalf("unexpected user id: %s", seenUserID)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	handler := Auth("secret", stubDisabledChecker{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestAuthRejectsBadToken(t *testing.T) {
	handler := Auth("secret", stubDisabledChecker{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(t, "wrong-secret", "user-1"))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestAuthBlocksDisabledAccount(t *testing.T) {
	handler := Auth("secret", stubDisabledChecker{disabled: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a disabled account")
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(t, "secret", "user-1"))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
