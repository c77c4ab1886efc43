package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"scorm-quiz-service/internal/domain"
)

func TestDocumentStoreQueryAndChildren(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	mustSet(t, store, "submissions/s1", `{"id":"s1","quizId":"quiz-1"}`)
	mustSet(t, store, "submissions/s2", `{"id":"s2","quizId":"quiz-2"}`)
	mustSet(t, store, "results/quiz-1/r1", `{"id":"r1"}`)
	mustSet(t, store, "results/quiz-1/r2", `{"id":"r2"}`)
	mustSet(t, store, "results/quiz-2/r3", `{"id":"r3"}`)

	subs, err := store.Query(ctx, "submissions", "quizId", "quiz-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(subs) != 1 || subs["s1"] == nil {
		t.Fatalf("expected only s1, got %v", keys(subs))
	}

	children, err := store.Children(ctx, "results/quiz-1")
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 2 || children["r1"] == nil || children["r2"] == nil {
		t.Fatalf("expected r1 and r2, got %v", keys(children))
	}
}

func TestDocumentStoreGetMissing(t *testing.T) {
	store := NewDocumentStore()
	if _, err := store.Get(context.Background(), "quizzes/none"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func mustSet(t *testing.T, store *DocumentStore, path, doc string) {
	t.Helper()
	if err := store.Set(context.Background(), path, json.RawMessage(doc)); err != nil {
		t.Fatalf("set %s: %v", path, err)
	}
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
