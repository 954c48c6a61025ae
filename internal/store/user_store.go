package store

import (
	"context"
	"database/sql"
	"errors"

	"langexam/internal/models"
)

var ErrCreditsExhausted = errors.New("credits exhausted")

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Execer, id, username, email, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, id, username, email, passwordHash)
	return err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `
		SELECT id, username, email, password_hash, credits, disabled, created_at
		FROM users
		WHERE email = $1
	`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return user, err
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `
		SELECT id, username, email, password_hash, credits, disabled, created_at
		FROM users
		WHERE id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return user, err
}

func (s *UserStore) GetCredits(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := s.db.GetContext(ctx, &credits, `SELECT credits FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return credits, err
}

// AdjustCredits applies delta atomically and returns the resulting balance.
// A negative delta that would take the balance below zero returns
// ErrCreditsExhausted without mutating the row. Callers must pair every call
// with a ledger append in the same transaction.
func (s *UserStore) AdjustCredits(ctx context.Context, tx Tx, userID string, delta int64) (int64, error) {
	var credits int64
	err := tx.GetContext(ctx, &credits, `
		UPDATE users
		SET credits = credits + $1
		WHERE id = $2 AND credits + $1 >= 0
		RETURNING credits
	`, delta, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCreditsExhausted
	}
	return credits, err
}

// AdjustCreditsUnchecked applies delta without the non-negative guard. Used by
// compensations and refunds, where the ledger sum is authoritative even when
// it dips below zero.
func (s *UserStore) AdjustCreditsUnchecked(ctx context.Context, tx Tx, userID string, delta int64) (int64, error) {
	var credits int64
	err := tx.GetContext(ctx, &credits, `
		UPDATE users
		SET credits = credits + $1
		WHERE id = $2
		RETURNING credits
	`, delta, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return credits, err
}

func (s *UserStore) SetDisabled(ctx context.Context, tx Execer, userID string, disabled bool) error {
	result, err := tx.ExecContext(ctx, `UPDATE users SET disabled = $1 WHERE id = $2`, disabled, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserStore) IsDisabled(ctx context.Context, userID string) (bool, error) {
	var disabled bool
	err := s.db.GetContext(ctx, &disabled, `SELECT disabled FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return disabled, err
}

func (s *UserStore) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT id, username, email, password_hash, credits, disabled, created_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return users, err
}
