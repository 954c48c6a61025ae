package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"langexam/internal/auth"
	"langexam/internal/config"
	"langexam/internal/exam"
	"langexam/internal/middleware"
	"langexam/internal/models"
	"langexam/internal/services"
	"langexam/internal/store"
	"langexam/internal/websocket"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubSelecter struct {
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubSelecter) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

type stubUserStore struct {
	createFn      func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn  func(ctx context.Context, email string) (models.User, error)
	getByIDFn     func(ctx context.Context, userID string) (models.User, error)
	getCreditsFn  func(ctx context.Context, userID string) (int64, error)
	isDisabledFn  func(ctx context.Context, userID string) (bool, error)
	setDisabledFn func(ctx context.Context, tx store.Execer, userID string, disabled bool) error
	listFn        func(ctx context.Context, limit, offset int) ([]models.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) GetCredits(ctx context.Context, userID string) (int64, error) {
	if s.getCreditsFn == nil {
		return 0, nil
	}
	return s.getCreditsFn(ctx, userID)
}

func (s stubUserStore) IsDisabled(ctx context.Context, userID string) (bool, error) {
	if s.isDisabledFn == nil {
		return false, nil
	}
	return s.isDisabledFn(ctx, userID)
}

func (s stubUserStore) SetDisabled(ctx context.Context, tx store.Execer, userID string, disabled bool) error {
	if s.setDisabledFn == nil {
		return nil
	}
	return s.setDisabledFn(ctx, tx, userID, disabled)
}

func (s stubUserStore) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubLedgerStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
}

func (s stubLedgerStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubSessionStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]models.ExamSession, error)
}

func (s stubSessionStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.ExamSession, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubContentStore struct {
	createFn       func(ctx context.Context, tx store.Execer, input store.ContentInput) error
	updateFn       func(ctx context.Context, tx store.Execer, input store.ContentInput) error
	setPublishedFn func(ctx context.Context, tx store.Execer, contentID string, published bool) error
	deleteFn       func(ctx context.Context, tx store.Execer, contentID string) error
	getByIDFn      func(ctx context.Context, contentID string) (models.ContentItem, error)
	listFn         func(ctx context.Context, examType string, limit, offset int) ([]models.ContentItem, error)
}

func (s stubContentStore) Create(ctx context.Context, tx store.Execer, input store.ContentInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubContentStore) Update(ctx context.Context, tx store.Execer, input store.ContentInput) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, tx, input)
}

func (s stubContentStore) SetPublished(ctx context.Context, tx store.Execer, contentID string, published bool) error {
	if s.setPublishedFn == nil {
		return nil
	}
	return s.setPublishedFn(ctx, tx, contentID, published)
}

func (s stubContentStore) Delete(ctx context.Context, tx store.Execer, contentID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, tx, contentID)
}

func (s stubContentStore) GetByID(ctx context.Context, contentID string) (models.ContentItem, error) {
	if s.getByIDFn == nil {
		return models.ContentItem{}, nil
	}
	return s.getByIDFn(ctx, contentID)
}

func (s stubContentStore) List(ctx context.Context, examType string, limit, offset int) ([]models.ContentItem, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, examType, limit, offset)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return false, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditLog, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubExamService struct {
	startFn  func(ctx context.Context, userID, examType string) (services.StartResult, error)
	submitFn func(ctx context.Context, userID, sessionID string, req services.SubmitRequest) (services.SubmitResult, error)
	getFn    func(ctx context.Context, userID, sessionID string) (models.ExamSession, exam.Payload, error)
}

func (s stubExamService) StartExam(ctx context.Context, userID, examType string) (services.StartResult, error) {
	if s.startFn == nil {
		return services.StartResult{}, nil
	}
	return s.startFn(ctx, userID, examType)
}

func (s stubExamService) SubmitExam(ctx context.Context, userID, sessionID string, req services.SubmitRequest) (services.SubmitResult, error) {
	if s.submitFn == nil {
		return services.SubmitResult{}, nil
	}
	return s.submitFn(ctx, userID, sessionID, req)
}

func (s stubExamService) GetSession(ctx context.Context, userID, sessionID string) (models.ExamSession, exam.Payload, error) {
	if s.getFn == nil {
		return models.ExamSession{}, exam.Payload{}, nil
	}
	return s.getFn(ctx, userID, sessionID)
}

type stubBillingService struct {
	listPacksFn func(ctx context.Context) ([]models.CreditPack, error)
	checkoutFn  func(ctx context.Context, userID, packID string) (string, error)
	reconcileFn func(ctx context.Context, event services.PaymentEvent) error
	refundFn    func(ctx context.Context, adminID, entryID string) (services.RefundResult, error)
	grantFn     func(ctx context.Context, adminID, userID string, amount int64, reason string) (int64, error)
}

func (s stubBillingService) ListPacks(ctx context.Context) ([]models.CreditPack, error) {
	if s.listPacksFn == nil {
		return nil, nil
	}
	return s.listPacksFn(ctx)
}

func (s stubBillingService) Checkout(ctx context.Context, userID, packID string) (string, error) {
	if s.checkoutFn == nil {
		return "", nil
	}
	return s.checkoutFn(ctx, userID, packID)
}

func (s stubBillingService) Reconcile(ctx context.Context, event services.PaymentEvent) error {
	if s.reconcileFn == nil {
		return nil
	}
	return s.reconcileFn(ctx, event)
}

func (s stubBillingService) Refund(ctx context.Context, adminID, entryID string) (services.RefundResult, error) {
	if s.refundFn == nil {
		return services.RefundResult{}, nil
	}
	return s.refundFn(ctx, adminID, entryID)
}

func (s stubBillingService) Grant(ctx context.Context, adminID, userID string, amount int64, reason string) (int64, error) {
	if s.grantFn == nil {
		return 0, nil
	}
	return s.grantFn(ctx, adminID, userID, amount, reason)
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, identifier, action string) (bool, error) {
	return true, nil
}

type testDeps struct {
	reconcileDB stubSelecter
	txRunner    fakeTxRunner
	users       stubUserStore
	ledger      stubLedgerStore
	sessions    stubSessionStore
	content     stubContentStore
	admin       stubAdminStore
	audit       stubAuditStore
	exams       stubExamService
	billing     stubBillingService
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		WebhookSecret:  "whsec",
	}
	return New(deps.reconcileDB, deps.txRunner, cfg, zap.NewNop(), deps.users, deps.ledger, deps.sessions, deps.content, deps.admin, deps.audit, deps.exams, deps.billing, websocket.NewHub(), allowAllLimiter{})
}

func serveWithAuth(t *testing.T, handler http.HandlerFunc, users stubUserStore, userID, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	middleware.Auth("secret", users)(handler).ServeHTTP(rr, req)
	return rr
}
