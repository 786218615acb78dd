package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/config"
	"github.com/stemsi/examquest-backend/internal/model"
	"github.com/stemsi/examquest-backend/internal/session"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type stepScheduler struct {
	mu    sync.Mutex
	tasks []*stepTask
}

type stepTask struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *stepTask) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *stepScheduler) AfterFunc(_ time.Duration, f func()) session.Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &stepTask{f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// drain runs callbacks until none are left.
func (s *stepScheduler) drain() {
	for {
		s.mu.Lock()
		var next *stepTask
		for len(s.tasks) > 0 && next == nil {
			t := s.tasks[0]
			s.tasks = s.tasks[1:]
			t.mu.Lock()
			if !t.stopped {
				next = t
			}
			t.mu.Unlock()
		}
		s.mu.Unlock()
		if next == nil {
			return
		}
		next.f()
	}
}

type fakeCatalog struct {
	exams     map[string]*model.Exam
	questions map[string]model.Question
}

func (f *fakeCatalog) FetchExam(_ context.Context, id string) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeCatalog) FetchQuestion(_ context.Context, id string) (*model.Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &q, nil
}

type fakeResultStore struct {
	create func(ctx context.Context, r *model.Result) (string, error)
	get    func(ctx context.Context, id string) (*model.Result, error)
	list   func(ctx context.Context, studentID string, limit, offset int) ([]model.Result, int, error)
}

func (f *fakeResultStore) Create(ctx context.Context, r *model.Result) (string, error) {
	return f.create(ctx, r)
}

func (f *fakeResultStore) GetByID(ctx context.Context, id string) (*model.Result, error) {
	return f.get(ctx, id)
}

func (f *fakeResultStore) ListByStudentPaginated(ctx context.Context, studentID string, limit, offset int) ([]model.Result, int, error) {
	return f.list(ctx, studentID, limit, offset)
}

type fakeProfileStore struct {
	get    func(ctx context.Context, userID string) (*model.Profile, error)
	update func(ctx context.Context, userID string, u model.ProfileUpdate) error
}

func (f *fakeProfileStore) GetByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	return f.get(ctx, userID)
}

func (f *fakeProfileStore) UpdateGamification(ctx context.Context, userID string, u model.ProfileUpdate) error {
	return f.update(ctx, userID, u)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs map[string][]any
}

func (q *recordingQueue) Enqueue(_ context.Context, queue string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.jobs == nil {
		q.jobs = make(map[string][]any)
	}
	q.jobs[queue] = append(q.jobs[queue], payload)
	return nil
}

func (q *recordingQueue) profileJobs() []model.ProfileSyncJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.ProfileSyncJob
	for _, j := range q.jobs[config.WorkerKey.PersistProfileQueue] {
		out = append(out, j.(model.ProfileSyncJob))
	}
	return out
}

type memoryDrafts struct {
	mu     sync.Mutex
	drafts map[attemptKey][]session.Entry
}

func (d *memoryDrafts) Save(_ context.Context, studentID, examID string, entries []session.Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drafts == nil {
		d.drafts = make(map[attemptKey][]session.Entry)
	}
	d.drafts[attemptKey{studentID, examID}] = entries
	return nil
}

func (d *memoryDrafts) Load(_ context.Context, studentID, examID string) ([]session.Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drafts[attemptKey{studentID, examID}], nil
}

func (d *memoryDrafts) Delete(_ context.Context, studentID, examID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drafts, attemptKey{studentID, examID})
	return nil
}

func (d *memoryDrafts) has(studentID, examID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.drafts[attemptKey{studentID, examID}]
	return ok
}

// ─── Harness ────────────────────────────────────────────────────────

type sessionHarness struct {
	sched      *stepScheduler
	queue      *recordingQueue
	drafts     *memoryDrafts
	now        time.Time
	profileErr error
	svc        *SessionService
}

var ayu = model.Profile{UserID: "stu-1", DisplayName: "Ayu"}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		sched:  &stepScheduler{},
		queue:  &recordingQueue{},
		drafts: &memoryDrafts{},
		now:    time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	catalog := &fakeCatalog{
		exams: map[string]*model.Exam{
			"exam-1": {ID: "exam-1", Title: "Geography", Duration: 1, IsActive: true, QuestionRefs: json.RawMessage(`["q1","q2"]`)},
			"empty":  {ID: "empty", Title: "Empty", Duration: 1, IsActive: true, QuestionRefs: json.RawMessage(`[]`)},
			"closed": {ID: "closed", Title: "Closed", Duration: 1, IsActive: false, QuestionRefs: json.RawMessage(`["q1"]`)},
		},
		questions: map[string]model.Question{
			"q1": {ID: "q1", Type: model.QuestionTypeMultipleChoice, Prompt: "Capital?", Options: []string{"Paris", "Rome"}, CorrectText: "Paris", Points: 10},
			"q2": {ID: "q2", Type: model.QuestionTypeShortAnswer, Prompt: "River?", CorrectText: "Seine", Points: 20},
		},
	}
	results := &fakeResultStore{create: func(ctx context.Context, r *model.Result) (string, error) { return "res-1", nil }}
	profiles := &fakeProfileStore{
		get: func(ctx context.Context, userID string) (*model.Profile, error) {
			return &model.Profile{UserID: userID, Points: 250, Level: 3}, nil
		},
		update: func(ctx context.Context, userID string, u model.ProfileUpdate) error { return h.profileErr },
	}

	cfg := &config.Config{QuestionFetchConcurrency: 2, SessionIdleTimeout: 15 * time.Minute}
	h.svc = NewSessionService(SessionDeps{
		Exams:     catalog,
		Questions: catalog,
		Results:   results,
		Profiles:  profiles,
		Queue:     h.queue,
		Drafts:    h.drafts,
		Scheduler: h.sched,
		Now:       func() time.Time { return h.now },
	}, cfg, zerolog.Nop())
	return h
}

func (h *sessionHarness) start(t *testing.T, examID string) (string, session.Snapshot) {
	t.Helper()
	id, snap, err := h.svc.Start(context.Background(), ayu, examID)
	if err != nil {
		t.Fatalf("start %s: %v", examID, err)
	}
	return id, snap
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestSessionService_StartReturnsLiveSession(t *testing.T) {
	h := newSessionHarness(t)

	id, snap := h.start(t, "exam-1")
	if snap.Phase != session.PhaseInProgress || len(snap.Questions) != 2 || snap.Remaining != 60 {
		t.Fatalf("snapshot = %+v", snap)
	}

	again, _ := h.start(t, "exam-1")
	if again != id {
		t.Fatalf("second start opened %s, want %s", again, id)
	}

	other, _, err := h.svc.Start(context.Background(), model.Profile{UserID: "stu-2"}, "exam-1")
	if err != nil || other == id {
		t.Fatalf("other student got %s (%v)", other, err)
	}
	if h.svc.Count() != 2 {
		t.Fatalf("count = %d, want 2", h.svc.Count())
	}
}

func TestSessionService_StartOutcomes(t *testing.T) {
	h := newSessionHarness(t)

	for _, examID := range []string{"missing", "closed"} {
		if _, _, err := h.svc.Start(context.Background(), ayu, examID); !errors.Is(err, session.ErrExamUnavailable) {
			t.Fatalf("%s: err = %v, want ErrExamUnavailable", examID, err)
		}
	}

	_, snap := h.start(t, "empty")
	if snap.Phase != session.PhaseTerminal || snap.EndReason != session.EndNoQuestions {
		t.Fatalf("empty exam snapshot = %s/%s", snap.Phase, snap.EndReason)
	}
	if h.svc.Count() != 0 {
		t.Fatalf("count = %d, want 0", h.svc.Count())
	}
}

func TestSessionService_OwnershipIsChecked(t *testing.T) {
	h := newSessionHarness(t)
	id, _ := h.start(t, "exam-1")

	if _, err := h.svc.Get("stu-2", id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign get err = %v, want ErrSessionNotFound", err)
	}
	if err := h.svc.SetAnswer(context.Background(), "stu-2", id, 0, json.RawMessage(`"Paris"`)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign answer err = %v, want ErrSessionNotFound", err)
	}
	if _, err := h.svc.Get(ayu.UserID, id); err != nil {
		t.Fatalf("owner get: %v", err)
	}
}

func TestSessionService_ProfileFailureIsQueued(t *testing.T) {
	h := newSessionHarness(t)
	h.profileErr = errors.New("profile store down")
	id, _ := h.start(t, "exam-1")
	ctx := context.Background()

	_ = h.svc.SetAnswer(ctx, ayu.UserID, id, 0, json.RawMessage(`"Paris"`))
	_ = h.svc.SetAnswer(ctx, ayu.UserID, id, 1, json.RawMessage(`"seine"`))

	summary, err := h.svc.Submit(ctx, ayu.UserID, id, false)
	if !errors.Is(err, session.ErrProfileUpdate) {
		t.Fatalf("err = %v, want ErrProfileUpdate", err)
	}
	if summary.ResultID != "res-1" || summary.Score != 30 {
		t.Fatalf("summary = %+v", summary)
	}

	jobs := h.queue.profileJobs()
	if len(jobs) != 1 {
		t.Fatalf("queued %d profile jobs, want 1", len(jobs))
	}
	want := model.ProfileSyncJob{UserID: "stu-1", ResultID: "res-1", PointsEarned: 30, EnqueuedAt: h.now}
	if jobs[0] != want {
		t.Fatalf("job = %+v, want %+v", jobs[0], want)
	}
	if h.drafts.has("stu-1", "exam-1") {
		t.Fatalf("draft kept after submission")
	}
}

func TestSessionService_ExpiryPublishesEvents(t *testing.T) {
	h := newSessionHarness(t)
	h.profileErr = errors.New("profile store down")
	id, _ := h.start(t, "exam-1")

	events, unsubscribe, err := h.svc.Subscribe(ayu.UserID, id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	h.sched.drain()

	var finished, failed, ticks int
	var last SessionEvent
	for done := false; !done; {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventTick:
				ticks++
			case EventFinished:
				finished++
				last = ev
			case EventFailed:
				failed++
				if !errors.Is(ev.Err, session.ErrProfileUpdate) {
					t.Fatalf("failed event err = %v", ev.Err)
				}
			}
		default:
			done = true
		}
	}

	if finished != 1 || failed != 1 {
		t.Fatalf("finished = %d failed = %d, want 1 and 1", finished, failed)
	}
	if ticks == 0 {
		t.Fatalf("no tick reached the subscriber")
	}
	if last.Summary == nil || last.Summary.Score != 0 || last.Summary.TotalPoints != 30 {
		t.Fatalf("finished summary = %+v", last.Summary)
	}
	if len(h.queue.profileJobs()) != 1 {
		t.Fatalf("expiry profile failure was not queued")
	}
}

func TestSessionService_DraftsSurviveAndRestore(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	_ = h.drafts.Save(ctx, "stu-1", "exam-1", []session.Entry{
		{Index: 1, Value: json.RawMessage(`"Seine"`)},
		{Index: 9, Value: json.RawMessage(`"stale"`)},
	})

	id, _ := h.start(t, "exam-1")
	ctrl, _ := h.svc.Get(ayu.UserID, id)
	answers := ctrl.Answers()
	if len(answers) != 1 || answers[0].Index != 1 {
		t.Fatalf("restored answers = %+v", answers)
	}

	if _, err := h.svc.PlaceItem(ctx, ayu.UserID, id, 0, "a", "1"); err != nil {
		t.Fatalf("place: %v", err)
	}
	if got, _ := h.drafts.Load(ctx, "stu-1", "exam-1"); len(got) != 2 {
		t.Fatalf("draft has %d entries, want 2", len(got))
	}

	if err := h.svc.Leave(ctx, ayu.UserID, id); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if h.drafts.has("stu-1", "exam-1") {
		t.Fatalf("draft kept after abandoning")
	}
	if _, err := h.svc.Get(ayu.UserID, id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("left session still reachable: %v", err)
	}
}

func TestSessionService_LeaveClosesSubscribers(t *testing.T) {
	h := newSessionHarness(t)
	id, _ := h.start(t, "exam-1")

	events, unsubscribe, _ := h.svc.Subscribe(ayu.UserID, id)
	_ = h.svc.Leave(context.Background(), ayu.UserID, id)
	unsubscribe()

	for range events {
	}
}

func TestSessionService_Navigate(t *testing.T) {
	h := newSessionHarness(t)
	id, _ := h.start(t, "exam-1")

	tests := []struct {
		move  Move
		index int
		want  int
	}{
		{MoveNext, 0, 1},
		{MoveNext, 0, 1},
		{MovePrevious, 0, 0},
		{MoveJump, 7, 1},
		{MoveJump, -3, 0},
	}
	for _, tt := range tests {
		got, err := h.svc.Navigate(ayu.UserID, id, tt.move, tt.index)
		if err != nil || got != tt.want {
			t.Fatalf("%s(%d) = %d, %v; want %d", tt.move, tt.index, got, err, tt.want)
		}
	}

	if _, err := h.svc.Navigate(ayu.UserID, id, "sideways", 0); !errors.Is(err, ErrUnknownMove) {
		t.Fatalf("err = %v, want ErrUnknownMove", err)
	}
}

func TestSessionService_EvictIdle(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	live, _ := h.start(t, "exam-1")
	done, _, _ := h.svc.Start(ctx, model.Profile{UserID: "stu-2"}, "exam-1")
	if _, err := h.svc.Submit(ctx, "stu-2", done, true); err != nil {
		t.Fatalf("submit: %v", err)
	}

	h.now = h.now.Add(16 * time.Minute)
	if n := h.svc.EvictIdle(); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, err := h.svc.Get("stu-2", done); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("submitted session not evicted")
	}
	if _, err := h.svc.Get(ayu.UserID, live); err != nil {
		t.Fatalf("in-progress session evicted: %v", err)
	}
}

func TestSessionService_NewAttemptAfterSubmit(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	first, _ := h.start(t, "exam-1")
	if _, err := h.svc.Submit(ctx, ayu.UserID, first, true); err != nil {
		t.Fatalf("submit: %v", err)
	}

	second, snap := h.start(t, "exam-1")
	if second == first {
		t.Fatalf("submitted session was reopened")
	}
	if snap.Phase != session.PhaseInProgress {
		t.Fatalf("new attempt phase = %s", snap.Phase)
	}
}

// creditLedger stores profiles the way the profile repository does: each result's points are
// added once, keyed by result ID.
type creditLedger struct {
	mu       sync.Mutex
	points   map[string]int
	applied  map[string]bool
	failNext bool
}

func (l *creditLedger) GetByUserID(_ context.Context, userID string) (*model.Profile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.points[userID]
	return &model.Profile{UserID: userID, Points: p, Level: model.LevelForPoints(p)}, nil
}

func (l *creditLedger) UpdateGamification(_ context.Context, userID string, u model.ProfileUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext {
		l.failNext = false
		return errors.New("profile store down")
	}
	if l.applied[u.ResultID] {
		return nil
	}
	l.applied[u.ResultID] = true
	l.points[userID] += u.PointsEarned
	return nil
}

func TestSessionService_QueuedCreditSurvivesLaterAttempt(t *testing.T) {
	ctx := context.Background()
	ledger := &creditLedger{points: map[string]int{"stu-1": 250}, applied: map[string]bool{}}
	queue := &recordingQueue{}
	var resultSeq int
	results := &fakeResultStore{create: func(ctx context.Context, r *model.Result) (string, error) {
		resultSeq++
		return fmt.Sprintf("res-%d", resultSeq), nil
	}}
	catalog := &fakeCatalog{
		exams: map[string]*model.Exam{
			"exam-a": {ID: "exam-a", Duration: 5, IsActive: true, QuestionRefs: json.RawMessage(`["q1","q2"]`)},
			"exam-b": {ID: "exam-b", Duration: 5, IsActive: true, QuestionRefs: json.RawMessage(`["q2"]`)},
		},
		questions: map[string]model.Question{
			"q1": {ID: "q1", Type: model.QuestionTypeMultipleChoice, Options: []string{"Paris", "Rome"}, CorrectText: "Paris", Points: 10},
			"q2": {ID: "q2", Type: model.QuestionTypeShortAnswer, CorrectText: "Seine", Points: 20},
		},
	}
	svc := NewSessionService(SessionDeps{
		Exams:     catalog,
		Questions: catalog,
		Results:   results,
		Profiles:  ledger,
		Queue:     queue,
		Drafts:    &memoryDrafts{},
		Scheduler: &stepScheduler{},
		Now:       time.Now,
	}, &config.Config{QuestionFetchConcurrency: 2}, zerolog.Nop())

	// Exam A earns 30 but its profile write fails and is queued.
	ledger.failNext = true
	idA, _, err := svc.Start(ctx, ayu, "exam-a")
	if err != nil {
		t.Fatalf("start A: %v", err)
	}
	_ = svc.SetAnswer(ctx, ayu.UserID, idA, 0, json.RawMessage(`"Paris"`))
	_ = svc.SetAnswer(ctx, ayu.UserID, idA, 1, json.RawMessage(`"Seine"`))
	if _, err := svc.Submit(ctx, ayu.UserID, idA, false); !errors.Is(err, session.ErrProfileUpdate) {
		t.Fatalf("submit A err = %v, want ErrProfileUpdate", err)
	}

	// Exam B earns 20 against the stored profile, which does not include A yet.
	idB, _, err := svc.Start(ctx, ayu, "exam-b")
	if err != nil {
		t.Fatalf("start B: %v", err)
	}
	_ = svc.SetAnswer(ctx, ayu.UserID, idB, 0, json.RawMessage(`"Seine"`))
	if _, err := svc.Submit(ctx, ayu.UserID, idB, false); err != nil {
		t.Fatalf("submit B: %v", err)
	}

	jobs := queue.profileJobs()
	if len(jobs) != 1 {
		t.Fatalf("queued %d jobs, want 1", len(jobs))
	}
	// The worker applies the job, and the client retry lands too.
	for range 2 {
		if err := ledger.UpdateGamification(ctx, jobs[0].UserID, jobs[0].Update()); err != nil {
			t.Fatalf("apply job: %v", err)
		}
	}
	if err := svc.RetryProfileUpdate(ctx, ayu.UserID, idA); err != nil {
		t.Fatalf("client retry: %v", err)
	}

	p, _ := ledger.GetByUserID(ctx, "stu-1")
	if p.Points != 300 || p.Level != 4 {
		t.Fatalf("profile = %d points level %d, want 300 (250+30+20) at level 4", p.Points, p.Level)
	}
}
