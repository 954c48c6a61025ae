package store

import (
	"context"
	"database/sql"
	"errors"

	"langexam/internal/models"
)

type SessionStore struct {
	db DB
}

func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

type SessionInput struct {
	ID       string
	UserID   string
	ExamType string
	Payload  []byte
}

func (s *SessionStore) Create(ctx context.Context, tx Execer, input SessionInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO exam_sessions (id, user_id, exam_type, status, payload)
		VALUES ($1, $2, $3, 'IN_PROGRESS', $4)
	`, input.ID, input.UserID, input.ExamType, input.Payload)
	return err
}

func (s *SessionStore) GetByID(ctx context.Context, sessionID string) (models.ExamSession, error) {
	var session models.ExamSession
	err := s.db.GetContext(ctx, &session, `
		SELECT id, user_id, exam_type, status, payload, score::text, sub_scores::text, ai_cost::text, created_at, completed_at
		FROM exam_sessions
		WHERE id = $1
	`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ExamSession{}, ErrNotFound
	}
	return session, err
}

type CompletionInput struct {
	SessionID string
	Payload   []byte
	Score     string
	SubScores *string
	AICost    *string
}

// Complete transitions IN_PROGRESS to COMPLETED, persisting answers and score
// in one statement. Returns false when the session was not IN_PROGRESS, which
// is how a losing double-submit racer finds out.
func (s *SessionStore) Complete(ctx context.Context, tx Execer, input CompletionInput) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE exam_sessions
		SET status = 'COMPLETED', payload = $1, score = $2::numeric, sub_scores = $3::jsonb, ai_cost = $4::numeric, completed_at = now()
		WHERE id = $5 AND status = 'IN_PROGRESS'
	`, input.Payload, input.Score, input.SubScores, input.AICost, input.SessionID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.ExamSession, error) {
	sessions := []models.ExamSession{}
	err := s.db.SelectContext(ctx, &sessions, `
		SELECT id, user_id, exam_type, status, payload, score::text, sub_scores::text, ai_cost::text, created_at, completed_at
		FROM exam_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return sessions, err
}
