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

// QuestionRepository handles question document access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByID retrieves a question document. Missing questions return model.ErrNotFound.
func (r *QuestionRepository) GetByID(ctx context.Context, id string) (*model.Question, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT doc FROM questions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	q := &model.Question{}
	if err := json.Unmarshal(doc, q); err != nil {
		return nil, fmt.Errorf("decode question %s: %w", id, err)
	}
	q.ID = id
	return q, nil
}
