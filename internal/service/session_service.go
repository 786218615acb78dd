package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/config"
	"github.com/stemsi/examquest-backend/internal/model"
	"github.com/stemsi/examquest-backend/internal/session"
)

// Domain Errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownMove     = errors.New("unknown navigation move")
)

// ResultStore persists and reads result records.
type ResultStore interface {
	Create(ctx context.Context, result *model.Result) (string, error)
	GetByID(ctx context.Context, id string) (*model.Result, error)
	ListByStudentPaginated(ctx context.Context, studentID string, limit, offset int) ([]model.Result, int, error)
}

// ProfileStore reads and merge-writes student profiles.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*model.Profile, error)
	UpdateGamification(ctx context.Context, userID string, update model.ProfileUpdate) error
}

// JobQueue hands work to the background workers.
type JobQueue interface {
	Enqueue(ctx context.Context, queue string, payload any) error
}

// DraftStore keeps a best-effort copy of a student's answers so they survive a restart.
type DraftStore interface {
	Save(ctx context.Context, studentID, examID string, entries []session.Entry) error
	Load(ctx context.Context, studentID, examID string) ([]session.Entry, error)
	Delete(ctx context.Context, studentID, examID string) error
}

// createResultFunc adapts a store method to session.ResultCreator.
type createResultFunc func(ctx context.Context, result *model.Result) (string, error)

func (f createResultFunc) CreateResult(ctx context.Context, result *model.Result) (string, error) {
	return f(ctx, result)
}

// updateProfileFunc adapts a store method to session.ProfileUpdater.
type updateProfileFunc func(ctx context.Context, userID string, update model.ProfileUpdate) error

func (f updateProfileFunc) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error {
	return f(ctx, userID, update)
}

// Move is a navigation request.
type Move string

const (
	MoveNext     Move = "next"
	MovePrevious Move = "previous"
	MoveJump     Move = "jump"
)

// SessionDeps are the collaborators of a SessionService.
type SessionDeps struct {
	Exams     session.ExamFetcher
	Questions session.QuestionFetcher
	Results   ResultStore
	Profiles  ProfileStore
	Queue     JobQueue
	Drafts    DraftStore

	// Scheduler drives every session countdown. Nil means the wall clock.
	Scheduler session.Scheduler
	Now       func() time.Time
}

type attemptKey struct {
	studentID string
	examID    string
}

type liveSession struct {
	id       string
	attempt  attemptKey
	ctrl     *session.Controller
	lastSeen time.Time
}

// SessionService owns the live exam sessions of this process.
// A student has at most one live session per exam; starting again returns it.
type SessionService struct {
	deps        SessionDeps
	concurrency int
	idleTimeout time.Duration
	log         zerolog.Logger

	mu        sync.Mutex
	sessions  map[string]*liveSession
	byAttempt map[attemptKey]string
	events    *eventHub
}

// NewSessionService creates a new SessionService.
func NewSessionService(deps SessionDeps, cfg *config.Config, log zerolog.Logger) *SessionService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SessionService{
		deps:        deps,
		concurrency: cfg.QuestionFetchConcurrency,
		idleTimeout: cfg.SessionIdleTimeout,
		log:         log.With().Str("component", "session_service").Logger(),
		sessions:    make(map[string]*liveSession),
		byAttempt:   make(map[attemptKey]string),
		events:      newEventHub(),
	}
}

// Start opens (or re-opens) the student's session for examID and starts its countdown.
// An unavailable exam returns session.ErrExamUnavailable. An exam without questions returns a
// terminal snapshot and nil error; such sessions are not kept.
func (s *SessionService) Start(ctx context.Context, student model.Profile, examID string) (string, session.Snapshot, error) {
	profile, err := s.loadProfile(ctx, student)
	if err != nil {
		return "", session.Snapshot{}, err
	}

	ls, created := s.attach(profile, examID)

	if err := ls.ctrl.Load(ctx); err != nil {
		s.remove(ls.id)
		return "", session.Snapshot{}, err
	}

	if phase, end := ls.ctrl.Phase(); phase == session.PhaseTerminal && end == session.EndNoQuestions {
		s.remove(ls.id)
		return ls.id, ls.ctrl.Snapshot(), nil
	}

	if err := ls.ctrl.Start(); err != nil {
		return "", session.Snapshot{}, err
	}
	if created {
		s.restoreDraft(ctx, ls)
	}

	return ls.id, ls.ctrl.Snapshot(), nil
}

// attach returns the live session of the attempt, registering a fresh one if there is none.
func (s *SessionService) attach(profile model.Profile, examID string) (*liveSession, bool) {
	key := attemptKey{studentID: profile.UserID, examID: examID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAttempt[key]; ok {
		ls := s.sessions[id]
		if phase, _ := ls.ctrl.Phase(); phase != session.PhaseTerminal {
			ls.lastSeen = s.deps.Now()
			return ls, false
		}
	}

	ls := &liveSession{id: uuid.New().String(), attempt: key, lastSeen: s.deps.Now()}
	ls.ctrl = session.NewController(examID, profile, session.Deps{
		Exams:            s.deps.Exams,
		Questions:        s.deps.Questions,
		Results:          createResultFunc(s.deps.Results.Create),
		Profiles:         updateProfileFunc(s.deps.Profiles.UpdateGamification),
		Scheduler:        s.deps.Scheduler,
		Now:              s.deps.Now,
		FetchConcurrency: s.concurrency,
		Hooks:            s.hooksFor(ls),
		Logger:           s.log.With().Str("session_id", ls.id).Logger(),
	})

	s.sessions[ls.id] = ls
	s.byAttempt[key] = ls.id
	return ls, true
}

func (s *SessionService) hooksFor(ls *liveSession) session.Hooks {
	return session.Hooks{
		OnTick: func(remaining int) {
			s.events.publish(ls.id, SessionEvent{Type: EventTick, Remaining: remaining})
		},
		OnFinished: func(summary model.Summary) {
			s.dropDraft(context.Background(), ls)
			s.events.publish(ls.id, SessionEvent{Type: EventFinished, Summary: &summary})
		},
		OnError: func(err error) {
			if errors.Is(err, session.ErrProfileUpdate) {
				s.enqueueProfileSync(context.Background(), ls)
			}
			s.events.publish(ls.id, SessionEvent{Type: EventFailed, Err: err})
		},
	}
}

func (s *SessionService) loadProfile(ctx context.Context, student model.Profile) (model.Profile, error) {
	p, err := s.deps.Profiles.GetByUserID(ctx, student.UserID)
	switch {
	case err == nil:
		if p.DisplayName == "" {
			p.DisplayName = student.DisplayName
		}
		return *p, nil
	case errors.Is(err, model.ErrNotFound):
		// First exam of a new student.
		return model.Profile{
			UserID:      student.UserID,
			DisplayName: student.DisplayName,
			Role:        "student",
			Points:      0,
			Level:       model.LevelForPoints(0),
		}, nil
	default:
		return model.Profile{}, fmt.Errorf("load profile %s: %w", student.UserID, err)
	}
}

// Get returns the controller of a session owned by studentID.
// Sessions of other students are reported as not found.
func (s *SessionService) Get(studentID, sessionID string) (*session.Controller, error) {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return nil, err
	}
	return ls.ctrl, nil
}

func (s *SessionService) lookup(studentID, sessionID string) (*liveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.sessions[sessionID]
	if !ok || ls.attempt.studentID != studentID {
		return nil, ErrSessionNotFound
	}
	ls.lastSeen = s.deps.Now()
	return ls, nil
}

// SetAnswer records an answer and refreshes the draft copy.
func (s *SessionService) SetAnswer(ctx context.Context, studentID, sessionID string, index int, value json.RawMessage) error {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return err
	}
	if err := ls.ctrl.SetAnswer(index, value); err != nil {
		return err
	}
	s.saveDraft(ctx, ls)
	return nil
}

// PlaceItem drops a drag-drop item on a target and returns the question's placements.
func (s *SessionService) PlaceItem(ctx context.Context, studentID, sessionID string, index int, item, target string) ([]model.Pair, error) {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return nil, err
	}
	pairs, err := ls.ctrl.PlaceItem(index, item, target)
	if err != nil {
		return nil, err
	}
	s.saveDraft(ctx, ls)
	return pairs, nil
}

// RemovePlacement clears a drag-drop target and returns the question's placements.
func (s *SessionService) RemovePlacement(ctx context.Context, studentID, sessionID string, index int, target string) ([]model.Pair, error) {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return nil, err
	}
	pairs, err := ls.ctrl.RemovePlacement(index, target)
	if err != nil {
		return nil, err
	}
	s.saveDraft(ctx, ls)
	return pairs, nil
}

// Navigate moves the current question and returns the new index.
func (s *SessionService) Navigate(studentID, sessionID string, move Move, index int) (int, error) {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return 0, err
	}
	switch move {
	case MoveNext:
		return ls.ctrl.Next(), nil
	case MovePrevious:
		return ls.ctrl.Previous(), nil
	case MoveJump:
		return ls.ctrl.JumpTo(index), nil
	default:
		return 0, ErrUnknownMove
	}
}

// Submit grades and persists the session. When only the profile write fails the summary is
// returned together with an error matching session.ErrProfileUpdate, and the write is queued
// for the profile sync worker.
func (s *SessionService) Submit(ctx context.Context, studentID, sessionID string, confirmed bool) (model.Summary, error) {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return model.Summary{}, err
	}

	summary, err := ls.ctrl.Submit(ctx, session.SubmitOptions{Confirmed: confirmed})
	switch {
	case err == nil:
		s.dropDraft(ctx, ls)
	case errors.Is(err, session.ErrProfileUpdate):
		s.dropDraft(ctx, ls)
		s.enqueueProfileSync(ctx, ls)
	}
	return summary, err
}

// RetryProfileUpdate re-sends the pending profile write of a submitted session.
func (s *SessionService) RetryProfileUpdate(ctx context.Context, studentID, sessionID string) error {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return err
	}
	return ls.ctrl.RetryProfileUpdate(ctx)
}

// Leave abandons a live session and forgets it. Submitted sessions are simply forgotten;
// a pending profile write stays on the queue.
func (s *SessionService) Leave(ctx context.Context, studentID, sessionID string) error {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return err
	}
	if ls.ctrl.Abandon() {
		s.dropDraft(ctx, ls)
	}
	s.remove(ls.id)
	return nil
}

// Subscribe streams the timer-driven events of a session. The returned function
// unsubscribes; the channel is closed when the session is forgotten.
func (s *SessionService) Subscribe(studentID, sessionID string) (<-chan SessionEvent, func(), error) {
	ls, err := s.lookup(studentID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.events.subscribe(ls.id)
	return ch, cancel, nil
}

// EvictIdle forgets sessions nobody touched within the idle timeout. Sessions still in
// progress are kept; their countdown submits them.
func (s *SessionService) EvictIdle() int {
	cutoff := s.deps.Now().Add(-s.idleTimeout)

	s.mu.Lock()
	var stale []*liveSession
	for _, ls := range s.sessions {
		if ls.lastSeen.After(cutoff) {
			continue
		}
		if phase, _ := ls.ctrl.Phase(); phase == session.PhaseInProgress || phase == session.PhaseSubmitting {
			continue
		}
		stale = append(stale, ls)
	}
	s.mu.Unlock()

	for _, ls := range stale {
		ls.ctrl.Abandon()
		s.remove(ls.id)
	}
	if len(stale) > 0 {
		s.log.Info().Int("count", len(stale)).Msg("Evicted idle sessions")
	}
	return len(stale)
}

// Run evicts idle sessions every interval until ctx is cancelled.
func (s *SessionService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle()
		}
	}
}

// Count reports how many sessions are held in memory.
func (s *SessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionService) remove(sessionID string) {
	s.mu.Lock()
	ls, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		if s.byAttempt[ls.attempt] == sessionID {
			delete(s.byAttempt, ls.attempt)
		}
	}
	s.mu.Unlock()

	s.events.close(sessionID)
}

// ─── Side channels ──────────────────────────────────────────────────

func (s *SessionService) enqueueProfileSync(ctx context.Context, ls *liveSession) {
	update, ok := ls.ctrl.PendingProfileUpdate()
	if !ok || s.deps.Queue == nil {
		return
	}

	job := model.ProfileSyncJob{
		UserID:       ls.attempt.studentID,
		ResultID:     update.ResultID,
		PointsEarned: update.PointsEarned,
		EnqueuedAt:   s.deps.Now().UTC(),
	}
	if err := s.deps.Queue.Enqueue(ctx, config.WorkerKey.PersistProfileQueue, job); err != nil {
		s.log.Error().Err(err).
			Str("session_id", ls.id).
			Str("student_id", job.UserID).
			Msg("Failed to queue profile sync")
		return
	}
	s.log.Info().
		Str("session_id", ls.id).
		Str("student_id", job.UserID).
		Str("result_id", job.ResultID).
		Msg("Profile update queued for retry")
}

func (s *SessionService) saveDraft(ctx context.Context, ls *liveSession) {
	if s.deps.Drafts == nil {
		return
	}
	if err := s.deps.Drafts.Save(ctx, ls.attempt.studentID, ls.attempt.examID, ls.ctrl.Answers()); err != nil {
		s.log.Warn().Err(err).Str("session_id", ls.id).Msg("Draft save failed")
	}
}

func (s *SessionService) dropDraft(ctx context.Context, ls *liveSession) {
	if s.deps.Drafts == nil {
		return
	}
	if err := s.deps.Drafts.Delete(ctx, ls.attempt.studentID, ls.attempt.examID); err != nil {
		s.log.Warn().Err(err).Str("session_id", ls.id).Msg("Draft delete failed")
	}
}

// restoreDraft replays answers left behind by a session this process no longer holds.
func (s *SessionService) restoreDraft(ctx context.Context, ls *liveSession) {
	if s.deps.Drafts == nil {
		return
	}
	entries, err := s.deps.Drafts.Load(ctx, ls.attempt.studentID, ls.attempt.examID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", ls.id).Msg("Draft load failed")
		return
	}

	restored := 0
	for _, e := range entries {
		if err := ls.ctrl.SetAnswer(e.Index, e.Value); err != nil {
			continue
		}
		restored++
	}
	if restored > 0 {
		s.log.Info().Str("session_id", ls.id).Int("answers", restored).Msg("Restored answer draft")
	}
}
