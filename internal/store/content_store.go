package store

import (
	"context"
	"database/sql"
	"errors"

	"langexam/internal/models"
)

type ContentStore struct {
	db DB
}

func NewContentStore(db DB) *ContentStore {
	return &ContentStore{db: db}
}

// ListPublished returns every published item for the exam type and part.
// Part 0 means "no part filter" for the non-speaking types. An empty result is
// the caller's signal to run the content-unavailability compensation.
func (s *ContentStore) ListPublished(ctx context.Context, examType string, part int) ([]models.ContentItem, error) {
	items := []models.ContentItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, exam_type, part, title, body, published, created_at, updated_at
		FROM content_items
		WHERE exam_type = $1 AND part = $2 AND published
	`, examType, part)
	return items, err
}

type ContentInput struct {
	ID       string
	ExamType string
	Part     int
	Title    string
	Body     []byte
}

func (s *ContentStore) Create(ctx context.Context, tx Execer, input ContentInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO content_items (id, exam_type, part, title, body)
		VALUES ($1, $2, $3, $4, $5)
	`, input.ID, input.ExamType, input.Part, input.Title, input.Body)
	return err
}

func (s *ContentStore) Update(ctx context.Context, tx Execer, input ContentInput) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE content_items
		SET exam_type = $1, part = $2, title = $3, body = $4, updated_at = now()
		WHERE id = $5
	`, input.ExamType, input.Part, input.Title, input.Body, input.ID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *ContentStore) SetPublished(ctx context.Context, tx Execer, contentID string, published bool) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE content_items SET published = $1, updated_at = now() WHERE id = $2
	`, published, contentID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *ContentStore) Delete(ctx context.Context, tx Execer, contentID string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM content_items WHERE id = $1`, contentID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *ContentStore) GetByID(ctx context.Context, contentID string) (models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.GetContext(ctx, &item, `
		SELECT id, exam_type, part, title, body, published, created_at, updated_at
		FROM content_items
		WHERE id = $1
	`, contentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ContentItem{}, ErrNotFound
	}
	return item, err
}

func (s *ContentStore) List(ctx context.Context, examType string, limit, offset int) ([]models.ContentItem, error) {
	items := []models.ContentItem{}
	query := `
		SELECT id, exam_type, part, title, body, published, created_at, updated_at
		FROM content_items
	`
	args := []any{}
	if examType != "" {
		query += ` WHERE exam_type = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, examType, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	err := s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
