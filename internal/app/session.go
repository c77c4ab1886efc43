package app

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/domain"
)

// Phase is the state of an attempt.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

// Submitter grades a finished attempt. ScoringService implements it.
type Submitter interface {
	Grade(ctx context.Context, submission domain.Submission) (domain.SubmissionResult, error)
}

// Readiness gates the start of an attempt on media prefetch.
type Readiness interface {
	Ready() bool
}

// Ticker is the one-second clock driving elapsed time.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// SessionKey identifies one taker's attempt slots for a quiz.
type SessionKey struct {
	QuizID   string
	ClientID string
}

func (k SessionKey) slot(name string) string {
	return "attempt:" + k.QuizID + ":" + k.ClientID + ":" + name
}

// Slot names of the durable attempt record.
const (
	slotIdentity = "identity"
	slotProgress = "progress"
	slotResult   = "result"
)

type progressSlot struct {
	Order        []QuestionOrder `json:"order"`
	Answers      map[string]int  `json:"answers"`
	Index        int             `json:"index"`
	Elapsed      int             `json:"elapsed"`
	Finished     bool            `json:"finished"`
	SubmissionID string          `json:"submissionId,omitempty"`
}

type resultSlot struct {
	Submission *domain.SubmissionResult `json:"submission"`
}

// SessionConfig carries a session's collaborators.
type SessionConfig struct {
	Store     StateStore
	Submitter Submitter
	Readiness Readiness
	Rand      *rand.Rand
	NewTicker TickerFunc
	Now       func() time.Time
	NewID     func() string
	Log       *zap.Logger
}

// Snapshot is the client-facing view of a session.
type Snapshot struct {
	QuizID     string                   `json:"quizId"`
	Title      string                   `json:"title"`
	Phase      Phase                    `json:"phase"`
	Identity   domain.UserData          `json:"identity"`
	Ready      bool                     `json:"ready"`
	Index      int                      `json:"index"`
	Total      int                      `json:"total"`
	Question   *ShuffledQuestion        `json:"question,omitempty"`
	Elapsed    int                      `json:"elapsed"`
	Remaining  *int                     `json:"remaining,omitempty"`
	Submitting bool                     `json:"submitting"`
	Result     *domain.SubmissionResult `json:"result,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Session drives one taker through a quiz: Setup, InProgress, Finished.
// Every state change is written to the durable slots so Restore can rebuild
// the session after a restart.
type Session struct {
	key  SessionKey
	quiz domain.Quiz
	cfg  SessionConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	phase        Phase
	identity     domain.UserData
	shuffled     []ShuffledQuestion
	answers      map[string]int
	index        int
	elapsed      int
	submissionID string // reused when the attempt is submitted again
	result       *domain.SubmissionResult
	submitting   bool
	lastErr      error
	ticker       Ticker
	tickStop     chan struct{}
	closed       bool
	attached     int
	subscribers  map[chan Snapshot]struct{}
}

// NewSession builds a session in the Setup phase. Call Restore to load the
// persisted slots.
func NewSession(quiz domain.Quiz, key SessionKey, cfg SessionConfig) *Session {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewRealTicker
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		key:         key,
		quiz:        quiz,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		phase:       PhaseSetup,
		answers:     make(map[string]int),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Restore loads the durable slots. A stored result puts the session in
// Finished; stored progress resumes the attempt at the saved question. Slots
// that are missing or unreadable count as empty.
func (s *Session) Restore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}

	var identity domain.UserData
	if s.loadSlot(ctx, slotIdentity, &identity) {
		s.identity = identity
	}

	var rs resultSlot
	if s.loadSlot(ctx, slotResult, &rs) && rs.Submission != nil {
		s.phase = PhaseFinished
		s.result = rs.Submission
		s.broadcastLocked()
		s.mu.Unlock()
		return nil
	}

	var ps progressSlot
	if !s.loadSlot(ctx, slotProgress, &ps) {
		s.mu.Unlock()
		return nil
	}
	shuffled, ok := applyOrder(s.quiz.Questions, ps.Order)
	if !ok || ps.Index < 0 || ps.Index > len(shuffled) {
		s.cfg.Log.Warn("discarding stale attempt progress", zap.String("quizId", s.key.QuizID))
		s.clearSlot(ctx, slotProgress)
		s.mu.Unlock()
		return nil
	}

	s.shuffled = shuffled
	s.answers = ps.Answers
	if s.answers == nil {
		s.answers = make(map[string]int)
	}
	s.index = ps.Index
	s.elapsed = ps.Elapsed
	s.submissionID = ps.SubmissionID

	if ps.Finished || s.index == len(s.shuffled) || s.timeUpLocked() {
		// The attempt ended but its result was never stored: submit again.
		s.phase = PhaseFinished
		s.mu.Unlock()
		return s.submit(ctx)
	}

	s.phase = PhaseInProgress
	s.startTickerLocked()
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

// SetIdentity records the taker's name and roll number.
func (s *Session) SetIdentity(ctx context.Context, identity domain.UserData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.phase != PhaseSetup {
		return domain.ErrInvalidTransition
	}
	s.identity = identity
	s.saveSlot(ctx, slotIdentity, identity)
	s.broadcastLocked()
	return nil
}

// Start moves Setup to InProgress. Media must be ready and the identity
// complete. A fresh shuffle is drawn and the elapsed counter starts at zero.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.phase != PhaseSetup {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	if s.cfg.Readiness != nil && !s.cfg.Readiness.Ready() {
		s.mu.Unlock()
		return domain.ErrResourcesNotReady
	}
	if !s.identity.Complete() {
		s.mu.Unlock()
		return domain.ErrIdentityRequired
	}

	s.shuffled = Shuffle(s.quiz.Questions, s.cfg.Rand)
	s.answers = make(map[string]int)
	s.index = 0
	s.elapsed = 0
	s.submissionID = s.cfg.NewID()
	s.result = nil
	s.lastErr = nil
	s.phase = PhaseInProgress
	s.clearSlot(ctx, slotResult)
	s.saveProgressLocked(ctx, false)
	s.startTickerLocked()
	s.broadcastLocked()
	empty := len(s.shuffled) == 0
	s.mu.Unlock()

	s.cfg.Log.Info("attempt started", zap.String("quizId", s.key.QuizID), zap.String("rollNo", s.identity.RollNo))
	if empty {
		return s.Finish(ctx)
	}
	return nil
}

// Select answers the current question with the answer shown at position pos
// and advances to the next question. The original answer index is recorded.
// Answering the last question finishes the attempt.
func (s *Session) Select(ctx context.Context, pos int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.phase != PhaseInProgress || s.index >= len(s.shuffled) {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	question := s.shuffled[s.index]
	if pos < 0 || pos >= len(question.Answers) {
		s.mu.Unlock()
		return domain.ErrAnswerOutOfRange
	}
	s.answers[question.ID] = question.Answers[pos].OriginalIdx
	s.index++
	done := s.index == len(s.shuffled)
	s.saveProgressLocked(ctx, false)
	s.broadcastLocked()
	s.mu.Unlock()

	if done {
		return s.Finish(ctx)
	}
	return nil
}

// Finish ends the attempt and submits it. Calling it again while the
// submission is in flight, or after it succeeded, does nothing; after a
// failed submission it retries.
func (s *Session) Finish(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.phase == PhaseSetup:
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	case s.phase == PhaseFinished && (s.submitting || s.result != nil):
		s.mu.Unlock()
		return nil
	}
	s.phase = PhaseFinished
	s.mu.Unlock()
	return s.submit(ctx)
}

// submit assumes phase is Finished.
func (s *Session) submit(ctx context.Context) error {
	s.mu.Lock()
	if s.submitting || s.result != nil {
		s.mu.Unlock()
		return nil
	}
	s.stopTickerLocked()
	s.submitting = true
	s.lastErr = nil
	if s.submissionID == "" {
		s.submissionID = s.cfg.NewID()
	}
	s.saveProgressLocked(ctx, true)
	submission := s.buildSubmissionLocked()
	s.broadcastLocked()
	s.mu.Unlock()

	result, err := s.cfg.Submitter.Grade(ctx, submission)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		s.lastErr = err
		s.cfg.Log.Error("attempt submission failed", zap.String("quizId", s.key.QuizID), zap.Error(err))
		s.broadcastLocked()
		return err
	}
	s.result = &result
	s.saveSlot(ctx, slotResult, resultSlot{Submission: &result})
	s.broadcastLocked()
	return nil
}

// Retake clears the finished attempt and returns to Setup. The identity is kept.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.phase != PhaseFinished || s.submitting {
		return domain.ErrInvalidTransition
	}
	s.phase = PhaseSetup
	s.shuffled = nil
	s.answers = make(map[string]int)
	s.index = 0
	s.elapsed = 0
	s.submissionID = ""
	s.result = nil
	s.lastErr = nil
	s.clearSlot(ctx, slotProgress)
	s.clearSlot(ctx, slotResult)
	s.broadcastLocked()
	return nil
}

// Snapshot returns the current client-facing state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every change,
// starting with the current one. The caller must invoke cancel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close stops the timer and releases subscribers. No tick is applied after Close.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTickerLocked()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.cancel()
}

func (s *Session) attach() {
	s.mu.Lock()
	s.attached++
	s.mu.Unlock()
}

func (s *Session) detach() {
	s.mu.Lock()
	if s.attached > 0 {
		s.attached--
	}
	s.mu.Unlock()
}

// IsIdle reports whether no client is attached.
func (s *Session) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached == 0
}

func (s *Session) startTickerLocked() {
	s.stopTickerLocked()
	t := s.cfg.NewTicker(time.Second)
	stop := make(chan struct{})
	s.ticker = t
	s.tickStop = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				s.tick(stop)
			}
		}
	}()
}

func (s *Session) stopTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickStop)
	s.ticker = nil
	s.tickStop = nil
}

func (s *Session) tick(stop chan struct{}) {
	s.mu.Lock()
	select {
	case <-stop:
		s.mu.Unlock()
		return
	default:
	}
	if s.closed || s.phase != PhaseInProgress {
		s.mu.Unlock()
		return
	}
	s.elapsed++
	timeUp := s.timeUpLocked()
	s.saveProgressLocked(s.ctx, false)
	s.broadcastLocked()
	s.mu.Unlock()

	if timeUp {
		s.cfg.Log.Info("attempt time is up", zap.String("quizId", s.key.QuizID))
		_ = s.Finish(s.ctx)
	}
}

func (s *Session) timeUpLocked() bool {
	return s.quiz.Timed() && s.elapsed > s.quiz.MaxTime.TotalSeconds()
}

// buildSubmissionLocked lists one answer per original question, in original order.
func (s *Session) buildSubmissionLocked() domain.Submission {
	answers := make([]domain.SubmissionAnswer, len(s.quiz.Questions))
	for i, q := range s.quiz.Questions {
		answers[i] = domain.SubmissionAnswer{QueID: q.ID}
		if idx, ok := s.answers[q.ID]; ok {
			answers[i].SelectedIdx = domain.IntPtr(idx)
		}
	}
	return domain.Submission{
		ID:          s.submissionID,
		Name:        s.identity.Name,
		RollNo:      s.identity.RollNo,
		QuizID:      s.quiz.ID,
		SubmittedAt: s.cfg.Now().UnixMilli(),
		Answers:     answers,
		TimeTaken:   float64(s.elapsed),
	}
}

func (s *Session) saveProgressLocked(ctx context.Context, finished bool) {
	answers := make(map[string]int, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	s.saveSlot(ctx, slotProgress, progressSlot{
		Order:        orderOf(s.shuffled),
		Answers:      answers,
		Index:        s.index,
		Elapsed:      s.elapsed,
		Finished:     finished,
		SubmissionID: s.submissionID,
	})
}

func (s *Session) loadSlot(ctx context.Context, name string, v any) bool {
	raw, err := s.cfg.Store.Get(ctx, s.key.slot(name))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.cfg.Log.Warn("attempt slot unreadable", zap.String("slot", name), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.cfg.Log.Warn("attempt slot corrupt", zap.String("slot", name), zap.Error(err))
		return false
	}
	return true
}

func (s *Session) saveSlot(ctx context.Context, name string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.cfg.Log.Error("encode attempt slot", zap.String("slot", name), zap.Error(err))
		return
	}
	if err := s.cfg.Store.Set(ctx, s.key.slot(name), raw); err != nil {
		s.cfg.Log.Warn("persist attempt slot", zap.String("slot", name), zap.Error(err))
	}
}

func (s *Session) clearSlot(ctx context.Context, name string) {
	if err := s.cfg.Store.Clear(ctx, s.key.slot(name)); err != nil {
		s.cfg.Log.Warn("clear attempt slot", zap.String("slot", name), zap.Error(err))
	}
}

func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot so a slow reader never blocks the session
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		QuizID:     s.quiz.ID,
		Title:      s.quiz.Title,
		Phase:      s.phase,
		Identity:   s.identity,
		Ready:      s.cfg.Readiness == nil || s.cfg.Readiness.Ready(),
		Index:      s.index,
		Total:      len(s.quiz.Questions),
		Elapsed:    s.elapsed,
		Submitting: s.submitting,
		Result:     s.result,
	}
	if s.phase == PhaseInProgress && s.index < len(s.shuffled) {
		q := s.shuffled[s.index]
		snap.Question = &q
	}
	if s.quiz.Timed() {
		remaining := s.quiz.MaxTime.TotalSeconds() - s.elapsed
		if remaining < 0 {
			remaining = 0
		}
		snap.Remaining = &remaining
	}
	if s.lastErr != nil {
		snap.Error = "submission failed, please try again"
	}
	return snap
}
