package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examquest-backend/internal/model"
)

// ProfileRepository handles the gamification fields of student profiles.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// GetByUserID retrieves a profile. Missing profiles return model.ErrNotFound.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, display_name, role, points, level FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.DisplayName, &p.Role, &p.Points, &p.Level)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateGamification credits the points of one result in a single statement. The credit is
// recorded in profile_credits first; a result that was already credited changes nothing, so a
// queued retry and a client retry can both run safely. The profile row is created when missing.
func (r *ProfileRepository) UpdateGamification(ctx context.Context, userID string, u model.ProfileUpdate) error {
	if u.ResultID == "" {
		return errors.New("profile credit needs a result id")
	}
	_, err := r.pool.Exec(ctx,
		`WITH credit AS (
			INSERT INTO profile_credits (result_id, user_id, points)
			VALUES ($1, $2, GREATEST($3, 0))
			ON CONFLICT (result_id) DO NOTHING
			RETURNING user_id, points
		)
		INSERT INTO profiles (user_id, points, level, updated_at)
		SELECT user_id, points, points / $4 + 1, NOW() FROM credit
		ON CONFLICT (user_id) DO UPDATE
		SET points = profiles.points + EXCLUDED.points,
		    level = (profiles.points + EXCLUDED.points) / $4 + 1,
		    updated_at = NOW()`,
		u.ResultID, userID, u.PointsEarned, model.PointsPerLevel)
	return err
}
