package memory

import (
	"testing"

	"scorm-quiz-service/internal/app"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	key := app.SessionKey{QuizID: "quiz-1", ClientID: "c1"}

	created := 0
	create := func() *app.Session {
		created++
		return app.NewSession(sampleQuiz(), key, app.SessionConfig{Store: NewStateStore()})
	}

	session, isNew := store.GetOrCreate(key, create)
	if session == nil || !isNew {
		t.Fatalf("expected new session")
	}
	again, isNew := store.GetOrCreate(key, create)
	if again != session || isNew || created != 1 {
		t.Fatalf("expected the same session back")
	}
	if _, ok := store.Get(key); !ok {
		t.Fatalf("expected session present")
	}

	store.DeleteIfIdle(key)
	if _, ok := store.Get(key); ok {
		t.Fatalf("expected session removed when idle")
	}
}
