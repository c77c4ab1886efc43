package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/infra/memory"
)

// fixture wires the in-memory stores the way the server does.
type fixture struct {
	docs    *memory.DocumentStore
	state   *memory.StateStore
	store   *app.QuizDocuments
	quizzes *memory.QuizRepository
	scoring *app.ScoringService
}

func newFixture(t *testing.T, quizzes ...domain.Quiz) *fixture {
	t.Helper()
	docs := memory.NewDocumentStore()
	store := app.NewQuizDocuments(docs)
	for _, q := range quizzes {
		if err := store.SaveQuiz(context.Background(), q); err != nil {
			t.Fatalf("seed quiz: %v", err)
		}
	}
	repo := memory.NewQuizRepository(store, time.Minute)
	ids := 0
	scoring := app.NewScoringService(repo, docs, zap.NewNop()).WithIDs(func() string {
		ids++
		return "result-" + string(rune('0'+ids))
	}, func() time.Time { return time.UnixMilli(1_700_000_000_000) })
	return &fixture{docs: docs, state: memory.NewStateStore(), store: store, quizzes: repo, scoring: scoring}
}

func fourQuestionQuiz() domain.Quiz {
	q := domain.Quiz{
		ID:             "quiz-1",
		Title:          "Capitals",
		MinSampleRate:  3,
		PassPercentage: 80,
	}
	for _, id := range []string{"q1", "q2", "q3", "q4"} {
		q.Questions = append(q.Questions, domain.Question{
			ID:         id,
			Title:      "Pick one",
			CorrectIdx: 2,
			Answers:    []domain.Answer{{Title: "A"}, {Title: "B"}, {Title: "C"}, {Title: "D"}},
		})
	}
	return q
}

// manualTicker is driven by the test instead of the wall clock.
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// fire delivers one tick, giving up after a short wait.
func (m *manualTicker) fire() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

type tickers struct {
	mu  sync.Mutex
	all []*manualTicker
}

func (f *tickers) New(time.Duration) app.Ticker {
	t := &manualTicker{ch: make(chan time.Time)}
	f.mu.Lock()
	f.all = append(f.all, t)
	f.mu.Unlock()
	return t
}

func (f *tickers) last() *manualTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.all) == 0 {
		return nil
	}
	return f.all[len(f.all)-1]
}

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

// gatedSubmitter counts Grade calls and blocks each one until released.
type gatedSubmitter struct {
	next app.Submitter
	gate chan struct{}

	mu    sync.Mutex
	calls int
	err   error
}

func (g *gatedSubmitter) Grade(ctx context.Context, s domain.Submission) (domain.SubmissionResult, error) {
	g.mu.Lock()
	g.calls++
	err := g.err
	g.mu.Unlock()
	if g.gate != nil {
		<-g.gate
	}
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	return g.next.Grade(ctx, s)
}

func (g *gatedSubmitter) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gatedSubmitter) setErr(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
