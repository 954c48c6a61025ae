package store

import (
	"context"
	"database/sql"
	"errors"

	"langexam/internal/models"
)

var ErrNotFound = errors.New("not found")

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type LedgerEntryInput struct {
	ID          string
	UserID      string
	Amount      int64
	Kind        string
	ExternalRef *string
	Reason      string
}

// Append inserts one immutable entry. Entries are never updated in amount or
// kind; corrections are new compensating entries.
func (s *LedgerStore) Append(ctx context.Context, tx Execer, input LedgerEntryInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, amount, kind, external_ref, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, input.ID, input.UserID, input.Amount, input.Kind, input.ExternalRef, input.Reason)
	return err
}

func (s *LedgerStore) SumByUser(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1
	`, userID)
	return sum, err
}

// FindByExternalRef is the idempotency lookup: a hit for (ref, kind) means the
// event was already applied.
func (s *LedgerStore) FindByExternalRef(ctx context.Context, ref, kind string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT id, user_id, amount, kind, external_ref, reason, created_at
		FROM ledger_entries
		WHERE external_ref = $1 AND kind = $2
	`, ref, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, ErrNotFound
	}
	return entry, err
}

func (s *LedgerStore) GetByID(ctx context.Context, entryID string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT id, user_id, amount, kind, external_ref, reason, created_at
		FROM ledger_entries
		WHERE id = $1
	`, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, ErrNotFound
	}
	return entry, err
}

// AnnotateReason appends a note to an entry's reason. The only permitted
// mutation of a committed entry.
func (s *LedgerStore) AnnotateReason(ctx context.Context, tx Execer, entryID, note string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET reason = CASE WHEN reason = '' THEN $1 ELSE reason || '; ' || $1 END
		WHERE id = $2
	`, note, entryID)
	return err
}

func (s *LedgerStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, amount, kind, external_ref, reason, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return entries, err
}
