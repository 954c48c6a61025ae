package handlers

import (
	"context"

	"langexam/internal/exam"
	"langexam/internal/models"
	"langexam/internal/services"
	"langexam/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
	GetCredits(ctx context.Context, userID string) (int64, error)
	IsDisabled(ctx context.Context, userID string) (bool, error)
	SetDisabled(ctx context.Context, tx store.Execer, userID string, disabled bool) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type LedgerStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
}

type SessionStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.ExamSession, error)
}

type ContentStore interface {
	Create(ctx context.Context, tx store.Execer, input store.ContentInput) error
	Update(ctx context.Context, tx store.Execer, input store.ContentInput) error
	SetPublished(ctx context.Context, tx store.Execer, contentID string, published bool) error
	Delete(ctx context.Context, tx store.Execer, contentID string) error
	GetByID(ctx context.Context, contentID string) (models.ContentItem, error)
	List(ctx context.Context, examType string, limit, offset int) ([]models.ContentItem, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]store.AuditLog, error)
}

type ExamService interface {
	StartExam(ctx context.Context, userID, examType string) (services.StartResult, error)
	SubmitExam(ctx context.Context, userID, sessionID string, req services.SubmitRequest) (services.SubmitResult, error)
	GetSession(ctx context.Context, userID, sessionID string) (models.ExamSession, exam.Payload, error)
}

type BillingService interface {
	ListPacks(ctx context.Context) ([]models.CreditPack, error)
	Checkout(ctx context.Context, userID, packID string) (string, error)
	Reconcile(ctx context.Context, event services.PaymentEvent) error
	Refund(ctx context.Context, adminID, entryID string) (services.RefundResult, error)
	Grant(ctx context.Context, adminID, userID string, amount int64, reason string) (int64, error)
}
