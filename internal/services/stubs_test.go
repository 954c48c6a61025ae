package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"langexam/internal/grading"
	"langexam/internal/models"
	"langexam/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memBackend is an in-memory users+ledger+sessions store that mirrors the
// database constraints the services rely on: the credits guard and the
// partial unique index on (kind, external_ref).
type memBackend struct {
	credits  map[string]int64
	entries  []models.LedgerEntry
	sessions map[string]models.ExamSession
}

func newMemBackend() *memBackend {
	return &memBackend{
		credits:  make(map[string]int64),
		sessions: make(map[string]models.ExamSession),
	}
}

func (m *memBackend) AdjustCredits(ctx context.Context, tx store.Tx, userID string, delta int64) (int64, error) {
	if m.credits[userID]+delta < 0 {
		return 0, store.ErrCreditsExhausted
	}
	m.credits[userID] += delta
	return m.credits[userID], nil
}

func (m *memBackend) AdjustCreditsUnchecked(ctx context.Context, tx store.Tx, userID string, delta int64) (int64, error) {
	m.credits[userID] += delta
	return m.credits[userID], nil
}

func (m *memBackend) GetCredits(ctx context.Context, userID string) (int64, error) {
	return m.credits[userID], nil
}

func (m *memBackend) Append(ctx context.Context, tx store.Execer, input store.LedgerEntryInput) error {
	if input.ExternalRef != nil {
		for _, entry := range m.entries {
			if entry.Kind == input.Kind && entry.ExternalRef != nil && *entry.ExternalRef == *input.ExternalRef {
				// Same signal the partial unique index produces.
				return &pq.Error{Code: "23505"}
			}
		}
	}
	m.entries = append(m.entries, models.LedgerEntry{
		ID:          input.ID,
		UserID:      input.UserID,
		Amount:      input.Amount,
		Kind:        input.Kind,
		ExternalRef: input.ExternalRef,
		Reason:      input.Reason,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (m *memBackend) FindByExternalRef(ctx context.Context, ref, kind string) (models.LedgerEntry, error) {
	for _, entry := range m.entries {
		if entry.Kind == kind && entry.ExternalRef != nil && *entry.ExternalRef == ref {
			return entry, nil
		}
	}
	return models.LedgerEntry{}, store.ErrNotFound
}

func (m *memBackend) GetByID(ctx context.Context, entryID string) (models.LedgerEntry, error) {
	for _, entry := range m.entries {
		if entry.ID == entryID {
			return entry, nil
		}
	}
	return models.LedgerEntry{}, store.ErrNotFound
}

func (m *memBackend) AnnotateReason(ctx context.Context, tx store.Execer, entryID, note string) error {
	for i, entry := range m.entries {
		if entry.ID == entryID {
			if entry.Reason == "" {
				m.entries[i].Reason = note
			} else {
				m.entries[i].Reason = entry.Reason + "; " + note
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memBackend) ledgerSum(userID string) int64 {
	var sum int64
	for _, entry := range m.entries {
		if entry.UserID == userID {
			sum += entry.Amount
		}
	}
	return sum
}

func (m *memBackend) entriesOfKind(kind string) []models.LedgerEntry {
	var matched []models.LedgerEntry
	for _, entry := range m.entries {
		if entry.Kind == kind {
			matched = append(matched, entry)
		}
	}
	return matched
}

func (m *memBackend) Create(ctx context.Context, tx store.Execer, input store.SessionInput) error {
	m.sessions[input.ID] = models.ExamSession{
		ID:        input.ID,
		UserID:    input.UserID,
		ExamType:  input.ExamType,
		Status:    models.SessionInProgress,
		Payload:   json.RawMessage(input.Payload),
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *memBackend) GetByIDSession(ctx context.Context, sessionID string) (models.ExamSession, error) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return models.ExamSession{}, store.ErrNotFound
	}
	return session, nil
}

func (m *memBackend) Complete(ctx context.Context, tx store.Execer, input store.CompletionInput) (bool, error) {
	session, ok := m.sessions[input.SessionID]
	if !ok || session.Status != models.SessionInProgress {
		return false, nil
	}
	now := time.Now()
	session.Status = models.SessionCompleted
	session.Payload = json.RawMessage(input.Payload)
	score := input.Score
	session.Score = &score
	session.SubScores = input.SubScores
	session.AICost = input.AICost
	session.CompletedAt = &now
	m.sessions[input.SessionID] = session
	return true, nil
}

// sessionStoreView adapts memBackend to the SessionStore interface, whose
// GetByID collides with the ledger's.
type sessionStoreView struct {
	backend *memBackend
}

func (v sessionStoreView) Create(ctx context.Context, tx store.Execer, input store.SessionInput) error {
	return v.backend.Create(ctx, tx, input)
}

func (v sessionStoreView) GetByID(ctx context.Context, sessionID string) (models.ExamSession, error) {
	return v.backend.GetByIDSession(ctx, sessionID)
}

func (v sessionStoreView) Complete(ctx context.Context, tx store.Execer, input store.CompletionInput) (bool, error) {
	return v.backend.Complete(ctx, tx, input)
}

func storeEntry(userID string, amount int64, kind string, ref *string) store.LedgerEntryInput {
	return store.LedgerEntryInput{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		ExternalRef: ref,
	}
}

// racingLedger simulates the window where a concurrent duplicate delivery
// commits between the idempotency lookup and the insert: the lookup always
// misses, the insert hits the unique index.
type racingLedger struct {
	*memBackend
}

func (r racingLedger) FindByExternalRef(ctx context.Context, ref, kind string) (models.LedgerEntry, error) {
	return models.LedgerEntry{}, store.ErrNotFound
}

type fakeContentStore struct {
	items map[string][]models.ContentItem
}

func contentKey(examType string, part int) string {
	return fmt.Sprintf("%s/%d", examType, part)
}

func (f fakeContentStore) ListPublished(ctx context.Context, examType string, part int) ([]models.ContentItem, error) {
	return f.items[contentKey(examType, part)], nil
}

type fakeGrader struct {
	result grading.Result
	err    error
	calls  int
}

func (f *fakeGrader) Grade(ctx context.Context, task grading.Task) (grading.Result, error) {
	f.calls++
	if f.err != nil {
		return grading.Result{}, f.err
	}
	return f.result, nil
}

type fakeHub struct {
	broadcasts []int64
}

func (f *fakeHub) BroadcastBalance(userID string, credits int64) {
	f.broadcasts = append(f.broadcasts, credits)
}

type fakePackStore struct {
	packs map[string]models.CreditPack
}

func (f fakePackStore) GetByID(ctx context.Context, packID string) (models.CreditPack, error) {
	pack, ok := f.packs[packID]
	if !ok {
		return models.CreditPack{}, store.ErrNotFound
	}
	return pack, nil
}

func (f fakePackStore) ListActive(ctx context.Context) ([]models.CreditPack, error) {
	var active []models.CreditPack
	for _, pack := range f.packs {
		if pack.Active {
			active = append(active, pack)
		}
	}
	return active, nil
}

type fakeAuditStore struct {
	actions []string
}

func (f *fakeAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	f.actions = append(f.actions, action)
	return nil
}

type fakeProvider struct {
	reversalID    string
	reverseErr    error
	checkoutURL   string
	checkoutErr   error
	reverseCalls  int
	checkoutCalls int
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, userID string, pack models.CreditPack, returnURL string) (string, error) {
	f.checkoutCalls++
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return f.checkoutURL, nil
}

func (f *fakeProvider) ReverseCharge(ctx context.Context, paymentRef string) (string, error) {
	f.reverseCalls++
	if f.reverseErr != nil {
		return "", f.reverseErr
	}
	return f.reversalID, nil
}
