package app_test

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"go.uber.org/zap"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
)

var student = domain.UserData{Name: "Ada", RollNo: "17"}

func newSession(f *fixture, quiz domain.Quiz, ready bool, sub app.Submitter, tk *tickers, seed int64) *app.Session {
	return app.NewSession(quiz, app.SessionKey{QuizID: quiz.ID, ClientID: "c1"}, app.SessionConfig{
		Store:     f.state,
		Submitter: sub,
		Readiness: readiness(ready),
		Rand:      rand.New(rand.NewSource(seed)),
		NewTicker: tk.New,
		Log:       zap.NewNop(),
	})
}

func positionOf(q *app.ShuffledQuestion, originalIdx int) int {
	for i, a := range q.Answers {
		if a.OriginalIdx == originalIdx {
			return i
		}
	}
	return -1
}

func TestSessionStartGates(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)

	notReady := newSession(f, quiz, false, f.scoring, &tickers{}, 1)
	defer notReady.Close()
	_ = notReady.SetIdentity(ctx, student)
	if err := notReady.Start(ctx); !errors.Is(err, domain.ErrResourcesNotReady) {
		t.Fatalf("expected ErrResourcesNotReady, got %v", err)
	}

	anonymous := newSession(f, quiz, true, f.scoring, &tickers{}, 1)
	defer anonymous.Close()
	_ = anonymous.SetIdentity(ctx, domain.UserData{Name: "Ada"})
	if err := anonymous.Start(ctx); !errors.Is(err, domain.ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}

	if err := anonymous.SetIdentity(ctx, student); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	if err := anonymous.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := anonymous.Snapshot()
	if snap.Phase != app.PhaseInProgress || snap.Index != 0 || snap.Question == nil {
		t.Fatalf("expected first question in progress, got %+v", snap)
	}
	if err := anonymous.Start(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second start to be rejected, got %v", err)
	}
}

func TestSessionResumesAfterReload(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)

	first := newSession(f, quiz, true, f.scoring, &tickers{}, 11)
	_ = first.SetIdentity(ctx, student)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	picked := map[string]int{}
	for i := 0; i < 2; i++ {
		q := first.Snapshot().Question
		picked[q.ID] = q.Answers[0].OriginalIdx
		if err := first.Select(ctx, 0); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
	}
	before := first.Snapshot()
	first.Close()

	reloaded := newSession(f, quiz, true, f.scoring, &tickers{}, 99)
	defer reloaded.Close()
	if err := reloaded.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	after := reloaded.Snapshot()
	if after.Phase != app.PhaseInProgress || after.Index != 2 {
		t.Fatalf("expected to resume at question 2, got phase %s index %d", after.Phase, after.Index)
	}
	if after.Identity != student {
		t.Fatalf("identity not restored: %+v", after.Identity)
	}
	if after.Question.ID != before.Question.ID {
		t.Fatalf("expected question %s, got %s", before.Question.ID, after.Question.ID)
	}
	for i := range before.Question.Answers {
		if before.Question.Answers[i].OriginalIdx != after.Question.Answers[i].OriginalIdx {
			t.Fatalf("answer order changed across reload")
		}
	}

	for i := 0; i < 2; i++ {
		if err := reloaded.Select(ctx, 1); err != nil {
			t.Fatalf("select after reload %d: %v", i, err)
		}
	}
	result := reloaded.Snapshot().Result
	if result == nil || result.Answered != 4 {
		t.Fatalf("expected a result with 4 answers, got %+v", result)
	}
	for _, a := range result.Answers {
		want, ok := picked[a.QueID]
		if !ok {
			continue
		}
		if a.SelectedIdx == nil || *a.SelectedIdx != want {
			t.Fatalf("answer to %s lost across reload: got %v, want %d", a.QueID, a.SelectedIdx, want)
		}
	}
}

// resultlessStore fails every write of the result slot.
type resultlessStore struct {
	app.StateStore
}

func (s resultlessStore) Set(ctx context.Context, key string, value []byte) error {
	if strings.HasSuffix(key, ":result") {
		return errors.New("disk full")
	}
	return s.StateStore.Set(ctx, key, value)
}

func TestSessionResubmitAfterLostResultGradesOnce(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)
	store := resultlessStore{StateStore: f.state}
	key := app.SessionKey{QuizID: quiz.ID, ClientID: "c1"}
	open := func(seed int64) *app.Session {
		return app.NewSession(quiz, key, app.SessionConfig{
			Store:     store,
			Submitter: f.scoring,
			Readiness: readiness(true),
			Rand:      rand.New(rand.NewSource(seed)),
			NewTicker: (&tickers{}).New,
			Log:       zap.NewNop(),
		})
	}

	first := open(3)
	_ = first.SetIdentity(ctx, student)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < len(quiz.Questions); i++ {
		if err := first.Select(ctx, 0); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
	}
	graded := first.Snapshot().Result
	if graded == nil {
		t.Fatalf("expected the attempt to be graded")
	}
	first.Close()

	second := open(4)
	defer second.Close()
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	snap := second.Snapshot()
	if snap.Phase != app.PhaseFinished || snap.Result == nil || snap.Result.ID != graded.ID {
		t.Fatalf("expected the original result after restore, got %+v", snap.Result)
	}

	listed, err := f.scoring.ListSubmissions(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one persisted result for the attempt, got %d", len(listed))
	}
}

func TestSessionGradesOriginalIndices(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)

	session := newSession(f, quiz, true, f.scoring, &tickers{}, 5)
	defer session.Close()
	_ = session.SetIdentity(ctx, student)
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < len(quiz.Questions); i++ {
		q := session.Snapshot().Question
		if err := session.Select(ctx, positionOf(q, 2)); err != nil {
			t.Fatalf("select: %v", err)
		}
	}

	snap := session.Snapshot()
	if snap.Phase != app.PhaseFinished || snap.Result == nil {
		t.Fatalf("expected finished with result, got %+v", snap)
	}
	if snap.Result.Correct != 4 || snap.Result.Percentage != 100 {
		t.Fatalf("expected all correct, got %+v", snap.Result)
	}
	for i, a := range snap.Result.Answers {
		if a.QueID != quiz.Questions[i].ID {
			t.Fatalf("answers must follow original question order, got %s at %d", a.QueID, i)
		}
	}
}

func TestSessionFinishSubmitsOnce(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)
	sub := &gatedSubmitter{next: f.scoring, gate: make(chan struct{})}

	session := newSession(f, quiz, true, sub, &tickers{}, 5)
	defer session.Close()
	_ = session.SetIdentity(ctx, student)
	_ = session.Start(ctx)
	_ = session.Select(ctx, 0)

	done := make(chan error, 1)
	go func() { done <- session.Finish(ctx) }()
	waitFor(t, "submission in flight", func() bool { return sub.callCount() == 1 })

	if err := session.Finish(ctx); err != nil {
		t.Fatalf("finish while submitting: %v", err)
	}
	if !session.Snapshot().Submitting {
		t.Fatalf("expected submitting flag")
	}
	close(sub.gate)
	if err := <-done; err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := session.Finish(ctx); err != nil {
		t.Fatalf("finish after result: %v", err)
	}

	if sub.callCount() != 1 {
		t.Fatalf("expected a single submission, got %d", sub.callCount())
	}
	stored, _ := f.scoring.ListSubmissions(ctx, quiz.ID)
	if len(stored) != 1 {
		t.Fatalf("expected one persisted result, got %d", len(stored))
	}
	if stored[0].Answered != 1 {
		t.Fatalf("expected one answered question, got %d", stored[0].Answered)
	}
}

func TestSessionTimeoutFinishes(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	quiz.MaxTime = &domain.MaxTime{Seconds: 2}
	f := newFixture(t, quiz)
	tk := &tickers{}

	session := newSession(f, quiz, true, f.scoring, tk, 5)
	defer session.Close()
	_ = session.SetIdentity(ctx, student)
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r := session.Snapshot().Remaining; r == nil || *r != 2 {
		t.Fatalf("expected 2 seconds remaining, got %v", r)
	}

	ticker := tk.last()
	for i := 0; i < 3; i++ {
		if !ticker.fire() {
			t.Fatalf("tick %d not delivered", i)
		}
	}
	waitFor(t, "result after timeout", func() bool { return session.Snapshot().Result != nil })

	snap := session.Snapshot()
	if snap.Phase != app.PhaseFinished || snap.Result.TimeTaken != 3 {
		t.Fatalf("expected finished after 3s, got %+v", snap)
	}
	if !ticker.isStopped() {
		t.Fatalf("expected ticker stopped after finish")
	}
}

func TestSessionUntimedTracksElapsed(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)
	tk := &tickers{}

	session := newSession(f, quiz, true, f.scoring, tk, 5)
	defer session.Close()
	_ = session.SetIdentity(ctx, student)
	_ = session.Start(ctx)

	for i := 0; i < 5; i++ {
		tk.last().fire()
	}
	waitFor(t, "elapsed seconds", func() bool { return session.Snapshot().Elapsed == 5 })
	snap := session.Snapshot()
	if snap.Phase != app.PhaseInProgress || snap.Remaining != nil {
		t.Fatalf("untimed quiz must keep running, got %+v", snap)
	}
}

func TestSessionCloseStopsTimer(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)
	tk := &tickers{}

	session := newSession(f, quiz, true, f.scoring, tk, 5)
	_ = session.SetIdentity(ctx, student)
	_ = session.Start(ctx)
	ticker := tk.last()
	ticker.fire()
	waitFor(t, "first tick", func() bool { return session.Snapshot().Elapsed == 1 })

	session.Close()
	ticker.fire()
	ticker.fire()

	if got := session.Snapshot().Elapsed; got != 1 {
		t.Fatalf("expected no ticks after close, elapsed %d", got)
	}
	if !ticker.isStopped() {
		t.Fatalf("expected ticker stopped on close")
	}
	if err := session.Select(ctx, 0); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionSubmitFailureCanRetry(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)
	sub := &gatedSubmitter{next: f.scoring}
	sub.setErr(errors.New("network down"))

	session := newSession(f, quiz, true, sub, &tickers{}, 5)
	defer session.Close()
	_ = session.SetIdentity(ctx, student)
	_ = session.Start(ctx)

	if err := session.Finish(ctx); err == nil {
		t.Fatalf("expected submission error")
	}
	snap := session.Snapshot()
	if snap.Phase != app.PhaseFinished || snap.Error == "" || snap.Result != nil {
		t.Fatalf("expected finished with error, got %+v", snap)
	}

	sub.setErr(nil)
	if err := session.Finish(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if session.Snapshot().Result == nil || sub.callCount() != 2 {
		t.Fatalf("expected result after retry")
	}
}

func TestSessionRetakeClearsAttempt(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)

	session := newSession(f, quiz, true, f.scoring, &tickers{}, 5)
	_ = session.SetIdentity(ctx, student)
	_ = session.Start(ctx)
	_ = session.Finish(ctx)

	if err := session.Retake(ctx); err != nil {
		t.Fatalf("retake: %v", err)
	}
	snap := session.Snapshot()
	if snap.Phase != app.PhaseSetup || snap.Result != nil || snap.Identity != student {
		t.Fatalf("expected setup with identity kept, got %+v", snap)
	}
	session.Close()

	reloaded := newSession(f, quiz, true, f.scoring, &tickers{}, 5)
	defer reloaded.Close()
	_ = reloaded.Restore(ctx)
	if got := reloaded.Snapshot().Phase; got != app.PhaseSetup {
		t.Fatalf("expected setup after reload, got %s", got)
	}
}

func TestSessionRestoresFinishedResult(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)

	session := newSession(f, quiz, true, f.scoring, &tickers{}, 5)
	_ = session.SetIdentity(ctx, student)
	_ = session.Start(ctx)
	_ = session.Finish(ctx)
	want := session.Snapshot().Result
	session.Close()

	reloaded := newSession(f, quiz, true, f.scoring, &tickers{}, 5)
	defer reloaded.Close()
	_ = reloaded.Restore(ctx)
	snap := reloaded.Snapshot()
	if snap.Phase != app.PhaseFinished || snap.Result == nil || snap.Result.ID != want.ID {
		t.Fatalf("expected stored result, got %+v", snap)
	}
	stored, _ := f.scoring.ListSubmissions(ctx, quiz.ID)
	if len(stored) != 1 {
		t.Fatalf("restore must not resubmit, got %d results", len(stored))
	}
}

func TestSessionIgnoresCorruptSlots(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)
	_ = f.state.Set(ctx, "attempt:quiz-1:c1:progress", []byte("{not json"))
	_ = f.state.Set(ctx, "attempt:quiz-1:c1:result", []byte("[]"))

	session := newSession(f, quiz, true, f.scoring, &tickers{}, 5)
	defer session.Close()
	if err := session.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := session.Snapshot().Phase; got != app.PhaseSetup {
		t.Fatalf("expected setup, got %s", got)
	}
}

func TestSessionSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	quiz := fourQuestionQuiz()
	f := newFixture(t, quiz)

	session := newSession(f, quiz, true, f.scoring, &tickers{}, 5)
	ch, cancel := session.Subscribe()
	defer cancel()

	initial := <-ch
	if initial.Phase != app.PhaseSetup {
		t.Fatalf("expected setup snapshot, got %s", initial.Phase)
	}
	_ = session.SetIdentity(ctx, student)
	update := <-ch
	if update.Identity != student {
		t.Fatalf("expected identity in update, got %+v", update.Identity)
	}

	session.Close()
	for range ch {
	}
}
