package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/model"
)

type fakeExamStore struct {
	get   func(ctx context.Context, id string) (*model.Exam, error)
	calls int
}

func (f *fakeExamStore) GetByID(ctx context.Context, id string) (*model.Exam, error) {
	f.calls++
	return f.get(ctx, id)
}

func (f *fakeExamStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	return []string{"exam-1", "gone"}, nil
}

type fakeQuestionStore struct {
	get func(ctx context.Context, id string) (*model.Question, error)
}

func (f *fakeQuestionStore) GetByID(ctx context.Context, id string) (*model.Question, error) {
	return f.get(ctx, id)
}

// unreachableRedis returns a client whose every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestCatalog(rdb *redis.Client) (*Catalog, *fakeExamStore) {
	exams := &fakeExamStore{get: func(ctx context.Context, id string) (*model.Exam, error) {
		if id != "exam-1" {
			return nil, model.ErrNotFound
		}
		return &model.Exam{ID: "exam-1", Title: "Geography", IsActive: true}, nil
	}}
	questions := &fakeQuestionStore{get: func(ctx context.Context, id string) (*model.Question, error) {
		if id != "q1" {
			return nil, model.ErrNotFound
		}
		return &model.Question{ID: "q1", Type: model.QuestionTypeShortAnswer, CorrectText: "Seine", Points: 5}, nil
	}}
	return NewCatalog(exams, questions, rdb, time.Minute, zerolog.Nop()), exams
}

func TestCatalog_FallsBackToStore(t *testing.T) {
	tests := []struct {
		name string
		rdb  func(t *testing.T) *redis.Client
	}{
		{"no cache configured", func(t *testing.T) *redis.Client { return nil }},
		{"cache unreachable", unreachableRedis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, exams := newTestCatalog(tt.rdb(t))
			ctx := context.Background()

			exam, err := cat.FetchExam(ctx, "exam-1")
			if err != nil || exam.Title != "Geography" {
				t.Fatalf("FetchExam = %+v, %v", exam, err)
			}
			if exams.calls != 1 {
				t.Fatalf("store calls = %d, want 1", exams.calls)
			}

			q, err := cat.FetchQuestion(ctx, "q1")
			if err != nil || q.CorrectText != "Seine" {
				t.Fatalf("FetchQuestion = %+v, %v", q, err)
			}

			if _, err := cat.FetchExam(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("missing exam err = %v, want ErrNotFound", err)
			}
			if _, err := cat.FetchQuestion(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("missing question err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCatalog_PrewarmSkipsFailures(t *testing.T) {
	cat, exams := newTestCatalog(nil)
	if err := cat.PrewarmActiveExams(context.Background()); err != nil {
		t.Fatalf("prewarm: %v", err)
	}
	if exams.calls != 2 {
		t.Fatalf("store calls = %d, want 2", exams.calls)
	}
}
