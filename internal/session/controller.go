package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/model"
)

// Phase is the lifecycle stage of a session.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseReady      Phase = "ready"
	PhaseInProgress Phase = "in-progress"
	PhaseSubmitting Phase = "submitting"
	PhaseTerminal   Phase = "terminal"
)

// EndReason tells why a session reached PhaseTerminal.
type EndReason string

const (
	EndUnavailable EndReason = "unavailable"
	EndNoQuestions EndReason = "no-questions"
	EndSubmitted   EndReason = "submitted"
	EndAbandoned   EndReason = "abandoned"
)

// expirySubmitTimeout bounds the writes of a timer-driven submission.
const expirySubmitTimeout = 30 * time.Second

// A timer-driven submission whose result write fails is retried with doubling delays.
const (
	expiryRetryBase = 5 * time.Second
	expiryRetryMax  = time.Minute
)

// SubmitOptions controls a manual submission.
type SubmitOptions struct {
	// Confirmed acknowledges that unanswered questions remain.
	Confirmed bool
}

// QuestionView is a question as shown to the student, without its correct answer.
type QuestionView struct {
	ID         string             `json:"id"`
	Type       model.QuestionType `json:"type"`
	Category   string             `json:"category"`
	Prompt     string             `json:"question"`
	Passage    string             `json:"passage,omitempty"`
	ImageURL   string             `json:"imageUrl,omitempty"`
	Options    []string           `json:"options,omitempty"`
	Items      []string           `json:"items,omitempty"`
	Matches    []string           `json:"matches,omitempty"`
	Points     int                `json:"points"`
	Difficulty model.Difficulty   `json:"difficulty,omitempty"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ExamID         string         `json:"examId"`
	ExamTitle      string         `json:"examTitle"`
	Duration       int            `json:"duration"`
	Phase          Phase          `json:"phase"`
	EndReason      EndReason      `json:"endReason,omitempty"`
	CurrentIndex   int            `json:"currentIndex"`
	Questions      []QuestionView `json:"questions"`
	Answers        []Entry        `json:"answers"`
	Answered       int            `json:"answered"`
	Remaining      int            `json:"remainingSeconds"`
	Summary        *model.Summary `json:"summary,omitempty"`
	ProfilePending bool           `json:"profilePending"`
}

// Controller runs one student's attempt at one exam. It is safe for concurrent use; no lock is
// held while talking to collaborators.
type Controller struct {
	mu   sync.Mutex
	deps Deps
	log  zerolog.Logger

	examID  string
	student model.Profile

	loadOnce sync.Once
	loadErr  error

	phase     Phase
	end       EndReason
	exam      *model.Exam
	questions []model.Question
	current   int
	answers   *AnswerStore
	timer     *Countdown

	summary        *model.Summary
	pendingProfile *model.ProfileUpdate

	retry      Stopper
	retryDelay time.Duration
}

// NewController prepares a session for student on examID. Call Load before anything else.
func NewController(examID string, student model.Profile, deps Deps) *Controller {
	if deps.Scheduler == nil {
		deps.Scheduler = WallClock{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.FetchConcurrency <= 0 {
		deps.FetchConcurrency = defaultFetchConcurrency
	}

	c := &Controller{
		deps:    deps,
		examID:  examID,
		student: student,
		phase:   PhaseLoading,
		answers: NewAnswerStore(),
		log: deps.Logger.With().
			Str("exam_id", examID).
			Str("student_id", student.UserID).
			Logger(),
	}
	c.timer = NewCountdown(deps.Scheduler, c.handleTick, c.handleExpiry)
	return c
}

func (c *Controller) ExamID() string    { return c.examID }
func (c *Controller) StudentID() string { return c.student.UserID }

// Load fetches the exam and resolves its questions. It runs once; later calls return the
// first outcome. An exam with no resolvable questions ends in EndNoQuestions without error.
func (c *Controller) Load(ctx context.Context) error {
	c.loadOnce.Do(func() {
		c.loadErr = c.load(ctx)
	})
	return c.loadErr
}

func (c *Controller) load(ctx context.Context) error {
	exam, err := c.deps.Exams.FetchExam(ctx, c.examID)
	if err != nil || exam == nil || !exam.IsActive {
		if err != nil {
			c.log.Warn().Err(err).Msg("Exam fetch failed")
		} else {
			c.log.Warn().Msg("Exam missing or inactive")
		}
		c.finish(EndUnavailable)
		return fmt.Errorf("load exam %s: %w", c.examID, ErrExamUnavailable)
	}

	questions, err := Resolve(ctx, exam.QuestionRefs, c.deps.Questions.FetchQuestion, c.deps.FetchConcurrency, c.log)
	if err != nil {
		c.log.Error().Err(err).Msg("Question resolution failed")
		c.finish(EndUnavailable)
		return fmt.Errorf("load exam %s: %w", c.examID, ErrExamUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.exam = exam
	if c.phase != PhaseLoading {
		return nil
	}
	if len(questions) == 0 {
		c.log.Info().Msg("Exam has no questions")
		c.phase, c.end = PhaseTerminal, EndNoQuestions
		return nil
	}
	c.questions = questions
	c.phase = PhaseReady
	c.log.Info().Int("questions", len(questions)).Msg("Exam loaded")
	return nil
}

func (c *Controller) finish(reason EndReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseLoading {
		c.phase, c.end = PhaseTerminal, reason
	}
}

// Start begins the countdown. Starting a session already in progress keeps its clock.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseInProgress:
		return nil
	case PhaseReady:
		c.phase = PhaseInProgress
		c.timer.Start(c.exam.DurationSeconds())
		c.log.Info().Int("duration_seconds", c.exam.DurationSeconds()).Msg("Exam started")
		return nil
	default:
		return ErrNotInProgress
	}
}

// Next, Previous and JumpTo move the cursor within the question bounds and return the new
// index. They never touch answers.
func (c *Controller) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(c.current + 1)
}

func (c *Controller) Previous() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(c.current - 1)
}

func (c *Controller) JumpTo(index int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(index)
}

func (c *Controller) moveTo(index int) int {
	if len(c.questions) == 0 {
		return 0
	}
	c.current = min(max(index, 0), len(c.questions)-1)
	return c.current
}

// SetAnswer records the answer at index.
func (c *Controller) SetAnswer(index int, value json.RawMessage) error {
	return c.mutate(index, func() { c.answers.SetAnswer(index, value) })
}

// PlaceItem drops a drag-drop item onto a target and returns the resulting pairs.
func (c *Controller) PlaceItem(index int, item, target string) ([]model.Pair, error) {
	var pairs []model.Pair
	err := c.mutate(index, func() {
		c.answers.PlaceItem(index, item, target)
		pairs = c.answers.Placements(index)
	})
	return pairs, err
}

// RemovePlacement clears a drag-drop target and returns the resulting pairs.
func (c *Controller) RemovePlacement(index int, target string) ([]model.Pair, error) {
	var pairs []model.Pair
	err := c.mutate(index, func() {
		c.answers.RemovePlacement(index, target)
		pairs = c.answers.Placements(index)
	})
	return pairs, err
}

func (c *Controller) mutate(index int, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseInProgress:
	case PhaseSubmitting:
		return ErrSubmissionInProgress
	case PhaseTerminal:
		if c.end == EndSubmitted {
			return ErrAlreadySubmitted
		}
		return ErrNotInProgress
	default:
		return ErrNotInProgress
	}
	if c.timer.State() == TimerExpired {
		return ErrTimeExpired
	}
	if index < 0 || index >= len(c.questions) {
		return ErrIndexOutOfRange
	}
	fn()
	return nil
}

// Submit grades and persists the attempt. While a submission is underway further triggers get
// ErrSubmissionInProgress; once submitted they get the existing summary.
//
// A failed result write returns the session to in-progress with the clock resumed and
// ErrPersistence. If time already ran out the answers stay frozen and the write is retried on
// the scheduler until it lands or the session is abandoned. A failed profile write after the
// result was saved ends the session with the update pending and ErrProfileUpdate; see
// RetryProfileUpdate.
func (c *Controller) Submit(ctx context.Context, opts SubmitOptions) (model.Summary, error) {
	return c.submit(ctx, opts.Confirmed, false)
}

// submit runs one submission. A timer-driven call (expired) on a session that is already
// submitted gets ErrAlreadySubmitted so the finish is not reported twice.
func (c *Controller) submit(ctx context.Context, confirmed, expired bool) (model.Summary, error) {
	c.mu.Lock()
	switch c.phase {
	case PhaseInProgress:
	case PhaseSubmitting:
		c.mu.Unlock()
		return model.Summary{}, ErrSubmissionInProgress
	case PhaseTerminal:
		defer c.mu.Unlock()
		if c.end == EndSubmitted && c.summary != nil {
			if expired {
				return *c.summary, ErrAlreadySubmitted
			}
			return *c.summary, nil
		}
		return model.Summary{}, ErrNotInProgress
	default:
		c.mu.Unlock()
		return model.Summary{}, ErrNotInProgress
	}

	timeLeft := c.timer.Remaining() > 0 && c.timer.State() != TimerExpired
	if !expired && timeLeft && !confirmed {
		if unanswered := len(c.questions) - c.answers.Answered(); unanswered > 0 {
			c.mu.Unlock()
			return model.Summary{}, &ConfirmationError{Unanswered: unanswered}
		}
	}

	c.phase = PhaseSubmitting
	c.timer.Cancel()

	remaining := c.timer.Remaining()
	outcome := Score(c.questions, c.answers)
	result := c.buildResult(outcome, remaining)
	c.mu.Unlock()

	log := c.log.With().Bool("expired", expired).Logger()

	resultID, err := c.deps.Results.CreateResult(ctx, result)
	if err != nil {
		c.mu.Lock()
		c.phase = PhaseInProgress
		c.timer.Resume()
		c.mu.Unlock()
		log.Error().Err(err).Msg("Result write failed")
		return model.Summary{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	summary := model.Summary{
		ResultID:     resultID,
		Score:        outcome.Earned,
		TotalPoints:  outcome.Total,
		Percentage:   result.Percentage,
		PointsEarned: outcome.Earned,
		Passed:       result.Percentage >= c.exam.EffectivePassingScore(),
	}

	newPoints := c.student.Points + summary.PointsEarned
	update := model.ProfileUpdate{
		ResultID:     resultID,
		PointsEarned: summary.PointsEarned,
		Points:       newPoints,
		Level:        model.LevelForPoints(newPoints),
	}
	profileErr := c.deps.Profiles.UpdateProfile(ctx, c.student.UserID, update)

	c.mu.Lock()
	c.phase, c.end = PhaseTerminal, EndSubmitted
	c.summary = &summary
	c.stopRetry()
	if profileErr != nil {
		c.pendingProfile = &update
	} else {
		c.student.Points, c.student.Level = update.Points, update.Level
	}
	c.mu.Unlock()

	log.Info().
		Str("result_id", resultID).
		Int("score", summary.Score).
		Int("total", summary.TotalPoints).
		Int("percentage", summary.Percentage).
		Msg("Exam submitted")

	if profileErr != nil {
		log.Error().Err(profileErr).
			Str("result_id", resultID).
			Int("points_earned", update.PointsEarned).
			Msg("Profile update failed")
		return summary, fmt.Errorf("%w: %w", ErrProfileUpdate, profileErr)
	}
	return summary, nil
}

// buildResult assembles the result record. Caller holds c.mu.
func (c *Controller) buildResult(outcome Outcome, remaining int) *model.Result {
	entries := c.answers.Entries()
	answers := make([]model.ResultAnswer, 0, len(entries))
	for _, e := range entries {
		answers = append(answers, model.ResultAnswer{
			QuestionIndex: e.Index,
			QuestionID:    c.questions[e.Index].ID,
			Answer:        e.Value,
		})
	}

	return &model.Result{
		ExamID:           c.exam.ID,
		ExamTitle:        c.exam.Title,
		StudentID:        c.student.UserID,
		StudentName:      c.student.DisplayName,
		Answers:          answers,
		Score:            outcome.Earned,
		TotalPoints:      outcome.Total,
		Percentage:       Percentage(outcome.Earned, outcome.Total),
		CompletedAt:      c.deps.Now().UTC(),
		TimeTakenSeconds: max(0, c.exam.DurationSeconds()-remaining),
	}
}

// RetryProfileUpdate re-sends the pending points credit of a submitted session. The credit is
// keyed by result, so it never adds the same points twice.
func (c *Controller) RetryProfileUpdate(ctx context.Context) error {
	update, ok := c.PendingProfileUpdate()
	if !ok {
		return ErrNoPendingProfileUpdate
	}

	if err := c.deps.Profiles.UpdateProfile(ctx, c.student.UserID, update); err != nil {
		c.log.Error().Err(err).Msg("Profile update retry failed")
		return fmt.Errorf("%w: %w", ErrProfileUpdate, err)
	}

	c.mu.Lock()
	c.pendingProfile = nil
	c.student.Points, c.student.Level = update.Points, update.Level
	c.mu.Unlock()
	return nil
}

// PendingProfileUpdate returns the profile write still owed by a submitted session.
func (c *Controller) PendingProfileUpdate() (model.ProfileUpdate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingProfile == nil {
		return model.ProfileUpdate{}, false
	}
	return *c.pendingProfile, true
}

// Abandon tears the session down without persisting anything. It reports whether the session
// was live; an in-flight submission is left to finish.
func (c *Controller) Abandon() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseLoading, PhaseReady, PhaseInProgress:
		c.timer.Cancel()
		c.stopRetry()
		c.phase, c.end = PhaseTerminal, EndAbandoned
		c.log.Info().Msg("Exam abandoned")
		return true
	default:
		return false
	}
}

func (c *Controller) Phase() (Phase, EndReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase, c.end
}

// Summary returns the session-exit payload once the session is submitted.
func (c *Controller) Summary() (model.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return model.Summary{}, false
	}
	return *c.summary, true
}

// Answers returns the captured answers ordered by question index.
func (c *Controller) Answers() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers.Entries()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ExamID:         c.examID,
		Phase:          c.phase,
		EndReason:      c.end,
		CurrentIndex:   c.current,
		Questions:      make([]QuestionView, 0, len(c.questions)),
		Answers:        c.answers.Entries(),
		Answered:       c.answers.Answered(),
		Remaining:      c.timer.Remaining(),
		ProfilePending: c.pendingProfile != nil,
	}
	if c.exam != nil {
		snap.ExamTitle = c.exam.Title
		snap.Duration = c.exam.Duration
		if c.phase == PhaseReady {
			snap.Remaining = c.exam.DurationSeconds()
		}
	}
	for _, q := range c.questions {
		snap.Questions = append(snap.Questions, QuestionView{
			ID:         q.ID,
			Type:       q.Type,
			Category:   q.Category,
			Prompt:     q.Prompt,
			Passage:    q.Passage,
			ImageURL:   q.ImageURL,
			Options:    q.Options,
			Items:      q.Items,
			Matches:    q.Matches,
			Points:     q.Points,
			Difficulty: q.Difficulty,
		})
	}
	if c.summary != nil {
		s := *c.summary
		snap.Summary = &s
	}
	return snap
}

func (c *Controller) handleTick(remaining int) {
	c.mu.Lock()
	live := c.phase == PhaseInProgress
	c.mu.Unlock()

	if live && c.deps.Hooks.OnTick != nil {
		c.deps.Hooks.OnTick(remaining)
	}
}

func (c *Controller) handleExpiry() {
	c.log.Info().Msg("Time is up, submitting")
	c.autoSubmit()
}

// autoSubmit runs the timer-driven submission and reports its outcome through the hooks.
// A manual submit that got there first owns the outcome, so this one stays quiet.
func (c *Controller) autoSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), expirySubmitTimeout)
	defer cancel()

	summary, err := c.submit(ctx, true, true)
	switch {
	case err == nil:
		if c.deps.Hooks.OnFinished != nil {
			c.deps.Hooks.OnFinished(summary)
		}
	case errors.Is(err, ErrProfileUpdate):
		if c.deps.Hooks.OnFinished != nil {
			c.deps.Hooks.OnFinished(summary)
		}
		if c.deps.Hooks.OnError != nil {
			c.deps.Hooks.OnError(err)
		}
	case errors.Is(err, ErrSubmissionInProgress),
		errors.Is(err, ErrAlreadySubmitted),
		errors.Is(err, ErrNotInProgress):
		c.log.Debug().Err(err).Msg("Expiry submit skipped")
	default:
		if errors.Is(err, ErrPersistence) {
			c.scheduleRetry()
		}
		if c.deps.Hooks.OnError != nil {
			c.deps.Hooks.OnError(err)
		}
	}
}

// scheduleRetry arms the next timer-driven submission attempt.
func (c *Controller) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseInProgress {
		return
	}

	c.retryDelay = min(max(c.retryDelay*2, expiryRetryBase), expiryRetryMax)
	c.log.Warn().Dur("retry_in", c.retryDelay).Msg("Expiry submit failed, retrying")
	c.retry = c.deps.Scheduler.AfterFunc(c.retryDelay, c.autoSubmit)
}

// stopRetry cancels a scheduled expiry retry. Caller holds c.mu.
func (c *Controller) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}
