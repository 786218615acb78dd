package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examquest-backend/internal/model"
)

// ResultRepository handles exam result records. Results are append-only.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

const resultColumns = `id, exam_id, exam_title, student_id, student_name, answers,
	score, total_points, percentage, time_taken_seconds, completed_at`

// Create inserts a result and returns its generated ID.
func (r *ResultRepository) Create(ctx context.Context, res *model.Result) (string, error) {
	answers := res.Answers
	if answers == nil {
		answers = []model.ResultAnswer{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}

	id := uuid.New()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO results (id, exam_id, exam_title, student_id, student_name, answers,
		                      score, total_points, percentage, time_taken_seconds, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, res.ExamID, res.ExamTitle, res.StudentID, res.StudentName, answersJSON,
		res.Score, res.TotalPoints, res.Percentage, res.TimeTakenSeconds, res.CompletedAt,
	)
	if err != nil {
		return "", err
	}
	res.ID = id.String()
	return res.ID, nil
}

// GetByID retrieves a single result. Missing results return model.ErrNotFound.
func (r *ResultRepository) GetByID(ctx context.Context, id string) (*model.Result, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, model.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM results WHERE id = $1`, rid)
	res, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return res, err
}

// ListByStudentPaginated returns a student's results, newest first, with the total count.
func (r *ResultRepository) ListByStudentPaginated(ctx context.Context, studentID string, limit, offset int) ([]model.Result, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE student_id = $1`, studentID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM results
		 WHERE student_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2 OFFSET $3`, studentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := []model.Result{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, *res)
	}
	return results, total, rows.Err()
}

func scanResult(row pgx.Row) (*model.Result, error) {
	var (
		res     model.Result
		id      uuid.UUID
		answers []byte
	)
	if err := row.Scan(&id, &res.ExamID, &res.ExamTitle, &res.StudentID, &res.StudentName, &answers,
		&res.Score, &res.TotalPoints, &res.Percentage, &res.TimeTakenSeconds, &res.CompletedAt); err != nil {
		return nil, err
	}
	res.ID = id.String()
	if err := json.Unmarshal(answers, &res.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of result %s: %w", res.ID, err)
	}
	return &res, nil
}
