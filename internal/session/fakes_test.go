package session

import (
	"context"
	"sync"
	"time"

	"github.com/stemsi/examquest-backend/internal/model"
)

// manualScheduler queues callbacks until the test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *manualTask) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *manualTask) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{delay: d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// fireNext runs the oldest live callback and reports whether there was one.
func (s *manualScheduler) fireNext() bool {
	s.mu.Lock()
	var next *manualTask
	for len(s.tasks) > 0 {
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		if !t.isStopped() {
			next = t
			break
		}
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}

// fire runs up to n callbacks.
func (s *manualScheduler) fire(n int) int {
	fired := 0
	for fired < n && s.fireNext() {
		fired++
	}
	return fired
}

func (s *manualScheduler) live() []*manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTask
	for _, t := range s.tasks {
		if !t.isStopped() {
			out = append(out, t)
		}
	}
	return out
}

type fakeExams struct {
	fetch func(ctx context.Context, examID string) (*model.Exam, error)
}

func (f *fakeExams) FetchExam(ctx context.Context, examID string) (*model.Exam, error) {
	return f.fetch(ctx, examID)
}

type fakeQuestions struct {
	fetch func(ctx context.Context, questionID string) (*model.Question, error)
}

func (f *fakeQuestions) FetchQuestion(ctx context.Context, questionID string) (*model.Question, error) {
	return f.fetch(ctx, questionID)
}

type fakeResults struct {
	create func(ctx context.Context, result *model.Result) (string, error)
}

func (f *fakeResults) CreateResult(ctx context.Context, result *model.Result) (string, error) {
	return f.create(ctx, result)
}

type fakeProfiles struct {
	update func(ctx context.Context, userID string, update model.ProfileUpdate) error
}

func (f *fakeProfiles) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error {
	return f.update(ctx, userID, update)
}

// questionBank serves questions by ID and reports misses as model.ErrNotFound.
func questionBank(qs ...model.Question) QuestionLookup {
	byID := make(map[string]model.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	return func(_ context.Context, id string) (*model.Question, error) {
		q, ok := byID[id]
		if !ok {
			return nil, model.ErrNotFound
		}
		return &q, nil
	}
}

func mcq(id, correct string, points int) model.Question {
	return model.Question{
		ID:          id,
		Type:        model.QuestionTypeMultipleChoice,
		Prompt:      "Pick one",
		Options:     []string{"A", "B", "C", "D"},
		CorrectText: correct,
		Points:      points,
	}
}

func shortAnswer(id, correct string, points int) model.Question {
	return model.Question{
		ID:          id,
		Type:        model.QuestionTypeShortAnswer,
		Prompt:      "Type it",
		CorrectText: correct,
		Points:      points,
	}
}

func dragDrop(id string, points int, pairs ...model.Pair) model.Question {
	return model.Question{
		ID:           id,
		Type:         model.QuestionTypeDragDrop,
		Prompt:       "Match them",
		CorrectPairs: pairs,
		Points:       points,
	}
}
