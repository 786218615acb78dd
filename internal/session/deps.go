package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/model"
)

// ExamFetcher loads an exam document. Missing exams return model.ErrNotFound.
type ExamFetcher interface {
	FetchExam(ctx context.Context, examID string) (*model.Exam, error)
}

// QuestionFetcher loads a question document. Missing questions return model.ErrNotFound.
type QuestionFetcher interface {
	FetchQuestion(ctx context.Context, questionID string) (*model.Question, error)
}

// ResultCreator appends a result record and returns its generated ID.
type ResultCreator interface {
	CreateResult(ctx context.Context, result *model.Result) (string, error)
}

// ProfileUpdater merge-writes the derived gamification fields of a profile.
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error
}

// Hooks receive events that happen outside a caller's request, such as timer ticks and
// expiry-driven submission. All fields are optional.
type Hooks struct {
	OnTick     func(remaining int)
	OnFinished func(summary model.Summary)
	OnError    func(err error)
}

// Deps are the collaborators a Controller is built with.
type Deps struct {
	Exams     ExamFetcher
	Questions QuestionFetcher
	Results   ResultCreator
	Profiles  ProfileUpdater

	// Scheduler drives the countdown. Defaults to the wall clock.
	Scheduler Scheduler
	// Now stamps results. Defaults to time.Now.
	Now func() time.Time
	// FetchConcurrency bounds parallel question lookups. Defaults to 8.
	FetchConcurrency int

	Hooks  Hooks
	Logger zerolog.Logger
}
