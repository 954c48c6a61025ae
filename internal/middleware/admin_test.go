package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubAdminStore struct {
	isAdmin bool
	isSuper bool
	hasRole bool
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	return s.isAdmin, s.isSuper, nil
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	return s.hasRole, nil
}

func requestWithUser(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(context.WithValue(req.Context(), userIDKey, userID))
}

func TestRequireAdminForbidsNonAdmin(t *testing.T) {
	handler := RequireAdmin(stubAdminStore{}, "CanRefund")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, requestWithUser("user-1"))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireAdminRoleCheck(t *testing.T) {
	handler := RequireAdmin(stubAdminStore{isAdmin: true}, "CanRefund")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without the role")
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, requestWithUser("user-1"))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireAdminSuperBypassesRole(t *testing.T) {
	called := false
	handler := RequireAdmin(stubAdminStore{isAdmin: true, isSuper: true}, "CanRefund")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, requestWithUser("user-1"))
	if !called {
		t.Fatal("expected handler to run for super admin")
	}
}

func TestRequireAdminMissingContext(t *testing.T) {
	handler := RequireAdmin(stubAdminStore{isAdmin: true}, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
