package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examquest-backend/internal/model"
)

// ExamRepository handles exam document access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam document. Missing exams return model.ErrNotFound.
func (r *ExamRepository) GetByID(ctx context.Context, id string) (*model.Exam, error) {
	var doc []byte
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT doc, created_at, updated_at FROM exams WHERE id = $1`, id,
	).Scan(&doc, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	createdAt, updatedAt := e.CreatedAt, e.UpdatedAt
	if err := json.Unmarshal(doc, e); err != nil {
		return nil, fmt.Errorf("decode exam %s: %w", id, err)
	}
	e.ID, e.CreatedAt, e.UpdatedAt = id, createdAt, updatedAt
	return e, nil
}

// ListActiveIDs returns the IDs of all active exams.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exams WHERE is_active ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
