package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/config"
	"github.com/stemsi/examquest-backend/internal/model"
)

// ProfileWriter merge-writes the gamification fields of a profile.
type ProfileWriter interface {
	UpdateGamification(ctx context.Context, userID string, update model.ProfileUpdate) error
}

// ProfileSyncWorker consumes persist_profile_queue and applies profile writes that failed
// during submission.
type ProfileSyncWorker struct {
	profiles   ProfileWriter
	rdb        *redis.Client
	queue      string
	retryAfter time.Duration
	log        zerolog.Logger
}

// NewProfileSyncWorker creates a new ProfileSyncWorker.
func NewProfileSyncWorker(profiles ProfileWriter, rdb *redis.Client, retryAfter time.Duration, log zerolog.Logger) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		profiles:   profiles,
		rdb:        rdb,
		queue:      config.WorkerKey.PersistProfileQueue,
		retryAfter: retryAfter,
		log:        log.With().Str("component", "profile_sync_worker").Logger(),
	}
}

// errMalformedJob marks payloads that can never be applied.
var errMalformedJob = errors.New("malformed profile job")

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ProfileSyncWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, w.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	err = w.apply(ctx, result[1])
	switch {
	case err == nil:
	case errors.Is(err, errMalformedJob):
		w.log.Error().Err(err).Str("payload", result[1]).Msg("Dropping job")
	default:
		w.log.Error().Err(err).
			Dur("retry_after", w.retryAfter).
			Msg("Profile write failed, requeueing")
		// Push back to queue for retry.
		w.rdb.RPush(context.Background(), w.queue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(w.retryAfter):
		}
	}
}

// apply decodes one queued job and writes it.
func (w *ProfileSyncWorker) apply(ctx context.Context, raw string) error {
	var job model.ProfileSyncJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("%w: %w", errMalformedJob, err)
	}
	if job.UserID == "" {
		return fmt.Errorf("%w: missing user_id", errMalformedJob)
	}

	if job.ResultID == "" {
		return fmt.Errorf("%w: missing result_id", errMalformedJob)
	}

	if err := w.profiles.UpdateGamification(ctx, job.UserID, job.Update()); err != nil {
		return fmt.Errorf("update profile %s: %w", job.UserID, err)
	}

	w.log.Info().
		Str("student_id", job.UserID).
		Str("result_id", job.ResultID).
		Int("points_earned", job.PointsEarned).
		Msg("Profile synced")
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *ProfileSyncWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, w.queue).Result()
		if err != nil {
			break
		}

		if err := w.apply(ctx, result); err != nil {
			if errors.Is(err, errMalformedJob) {
				w.log.Error().Err(err).Msg("Drain dropped job")
				continue
			}
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, w.queue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
