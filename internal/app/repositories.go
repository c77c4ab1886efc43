package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"scorm-quiz-service/internal/domain"
)

// DocumentStore is a path-addressed JSON document store. Paths look like
// "quizzes/{id}" or "results/{quizId}/{resultId}"; the first segment is the
// collection.
type DocumentStore interface {
	Get(ctx context.Context, path string) (json.RawMessage, error) // domain.ErrNotFound when absent
	Set(ctx context.Context, path string, doc json.RawMessage) error
	Delete(ctx context.Context, path string) error
	// Query returns the documents of a collection whose top-level field equals
	// value, keyed by document id.
	Query(ctx context.Context, collection, field, value string) (map[string]json.RawMessage, error)
	// Children returns the direct children of parent keyed by their last path segment.
	Children(ctx context.Context, parent string) (map[string]json.RawMessage, error)
}

// StateStore is the durable local state used by attempt sessions. Get must
// report domain.ErrNotFound for missing keys.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context, key string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string)
}

// Document paths.
func quizPath(id string) string       { return "quizzes/" + id }
func submissionPath(id string) string { return "submissions/" + id }
func resultsPath(quizID string) string {
	return "results/" + quizID
}

// SplitPath returns the collection, parent and id of a document path.
func SplitPath(path string) (collection, parent, id string) {
	path = strings.Trim(path, "/")
	collection, _, _ = strings.Cut(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return collection, path[:i], path[i+1:]
	}
	return collection, "", path
}

// QuizDocuments loads and stores quizzes in a DocumentStore. It is the
// backing loader for the cached QuizRepository implementations.
type QuizDocuments struct {
	docs DocumentStore
}

func NewQuizDocuments(docs DocumentStore) *QuizDocuments {
	return &QuizDocuments{docs: docs}
}

func (d *QuizDocuments) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	raw, err := d.docs.Get(ctx, quizPath(quizID))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func (d *QuizDocuments) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	raw, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	return d.docs.Set(ctx, quizPath(quiz.ID), raw)
}

func (d *QuizDocuments) DeleteQuiz(ctx context.Context, quizID string) error {
	return d.docs.Delete(ctx, quizPath(quizID))
}

func (d *QuizDocuments) ListByOwner(ctx context.Context, owner string) ([]domain.Quiz, error) {
	docs, err := d.docs.Query(ctx, "quizzes", "createdBy", owner)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	out := make([]domain.Quiz, 0, len(docs))
	for id, raw := range docs {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz %s: %w", id, err)
		}
		out = append(out, quiz)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
