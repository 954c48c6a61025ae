package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Credits      int64     `db:"credits" json:"credits"`
	Disabled     bool      `db:"disabled" json:"disabled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Ledger entry kinds. Amount sign follows the kind: USAGE and REFUND are
// negative, the rest positive.
const (
	KindPurchase  = "PURCHASE"
	KindUsage     = "USAGE"
	KindUsageFail = "USAGE_FAIL"
	KindGrant     = "GRANT"
	KindRefund    = "REFUND"
)

type LedgerEntry struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Amount      int64     `db:"amount" json:"amount"`
	Kind        string    `db:"kind" json:"kind"`
	ExternalRef *string   `db:"external_ref" json:"external_ref,omitempty"`
	Reason      string    `db:"reason" json:"reason"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

const (
	ExamReading   = "READING"
	ExamListening = "LISTENING"
	ExamWriting   = "WRITING"
	ExamSpeaking  = "SPEAKING"
)

const (
	SessionInProgress = "IN_PROGRESS"
	SessionCompleted  = "COMPLETED"
	SessionFailed     = "FAILED"
)

type ExamSession struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	ExamType    string          `db:"exam_type" json:"exam_type"`
	Status      string          `db:"status" json:"status"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Score       *string         `db:"score" json:"score,omitempty"`
	SubScores   *string         `db:"sub_scores" json:"sub_scores,omitempty"`
	AICost      *string         `db:"ai_cost" json:"ai_cost,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

type ContentItem struct {
	ID        string          `db:"id" json:"id"`
	ExamType  string          `db:"exam_type" json:"exam_type"`
	Part      int             `db:"part" json:"part"`
	Title     string          `db:"title" json:"title"`
	Body      json.RawMessage `db:"body" json:"body"`
	Published bool            `db:"published" json:"published"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type CreditPack struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Credits    int64  `db:"credits" json:"credits"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
	Active     bool   `db:"active" json:"active"`
}
