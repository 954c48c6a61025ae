package store

import (
	"context"
	"database/sql"
	"errors"

	"langexam/internal/models"
)

type PackStore struct {
	db DB
}

func NewPackStore(db DB) *PackStore {
	return &PackStore{db: db}
}

func (s *PackStore) ListActive(ctx context.Context) ([]models.CreditPack, error) {
	packs := []models.CreditPack{}
	err := s.db.SelectContext(ctx, &packs, `
		SELECT id, name, credits, price_cents, active
		FROM credit_packs
		WHERE active
		ORDER BY price_cents
	`)
	return packs, err
}

func (s *PackStore) GetByID(ctx context.Context, packID string) (models.CreditPack, error) {
	var pack models.CreditPack
	err := s.db.GetContext(ctx, &pack, `
		SELECT id, name, credits, price_cents, active
		FROM credit_packs
		WHERE id = $1
	`, packID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CreditPack{}, ErrNotFound
	}
	return pack, err
}

func (s *PackStore) Upsert(ctx context.Context, tx Execer, pack models.CreditPack) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_packs (id, name, credits, price_cents, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = $2, credits = $3, price_cents = $4, active = $5
	`, pack.ID, pack.Name, pack.Credits, pack.PriceCents, pack.Active)
	return err
}
