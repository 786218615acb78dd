package service

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

// ExamStore is the persistent source of exam documents.
type ExamStore interface {
	GetByID(ctx context.Context, id string) (*model.Exam, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// QuestionStore is the persistent source of question documents.
type QuestionStore interface {
	GetByID(ctx context.Context, id string) (*model.Question, error)
}

// Catalog serves exam and question documents through a Redis cache-aside layer.
// Cache failures are logged and fall through to PostgreSQL.
type Catalog struct {
	exams     ExamStore
	questions QuestionStore
	rdb       *redis.Client
	ttl       time.Duration
	log       zerolog.Logger
}

// NewCatalog creates a new Catalog.
func NewCatalog(exams ExamStore, questions QuestionStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Catalog {
	return &Catalog{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		ttl:       ttl,
		log:       log.With().Str("component", "catalog").Logger(),
	}
}

// FetchExam returns an exam document. Missing exams return model.ErrNotFound.
func (s *Catalog) FetchExam(ctx context.Context, examID string) (*model.Exam, error) {
	key := config.CacheKey.ExamDocKey(examID)

	var exam model.Exam
	if s.readCache(ctx, key, &exam) {
		return &exam, nil
	}

	e, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	// Inactive exams are not cached so reactivating one takes effect immediately.
	if e.IsActive {
		s.writeCache(ctx, key, e)
	}
	return e, nil
}

// FetchQuestion returns a question document. Missing questions return model.ErrNotFound.
func (s *Catalog) FetchQuestion(ctx context.Context, questionID string) (*model.Question, error) {
	key := config.CacheKey.QuestionDocKey(questionID)

	var q model.Question
	if s.readCache(ctx, key, &q) {
		return &q, nil
	}

	fetched, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, key, fetched)
	return fetched, nil
}

// PrewarmActiveExams loads all active exams into Redis on application startup.
func (s *Catalog) PrewarmActiveExams(ctx context.Context) error {
	ids, err := s.exams.ListActiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No active exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(ids)).Msg("Prewarming active exams...")

	warmed := 0
	for _, id := range ids {
		exam, err := s.exams.GetByID(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", id).Msg("Failed to warm exam, skipping")
			continue
		}
		s.writeCache(ctx, config.CacheKey.ExamDocKey(id), exam)
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

func (s *Catalog) readCache(ctx context.Context, key string, dst any) bool {
	if s.rdb == nil {
		return false
	}

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to database")
		}
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, falling back to database")
		return false
	}
	return true
}

func (s *Catalog) writeCache(ctx context.Context, key string, v any) {
	if s.rdb == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache encode failed")
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
