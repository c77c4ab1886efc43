package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
)

// DocumentStore is an in-memory app.DocumentStore keyed by document path.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]json.RawMessage)}
}

func (s *DocumentStore) Get(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[clean(path)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append(json.RawMessage(nil), doc...), nil
}

func (s *DocumentStore) Set(_ context.Context, path string, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return fmt.Errorf("%w: document %s is not valid json", domain.ErrValidation, path)
	}
	s.mu.Lock()
	s.docs[clean(path)] = append(json.RawMessage(nil), doc...)
	s.mu.Unlock()
	return nil
}

func (s *DocumentStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	delete(s.docs, clean(path))
	s.mu.Unlock()
	return nil
}

func (s *DocumentStore) Query(_ context.Context, collection, field, value string) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage)
	for path, doc := range s.docs {
		coll, parent, id := app.SplitPath(path)
		if coll != collection || parent != collection {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(doc, &fields); err != nil {
			continue
		}
		var got string
		if err := json.Unmarshal(fields[field], &got); err != nil || got != value {
			continue
		}
		out[id] = append(json.RawMessage(nil), doc...)
	}
	return out, nil
}

func (s *DocumentStore) Children(_ context.Context, parent string) (map[string]json.RawMessage, error) {
	parent = clean(parent)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage)
	for path, doc := range s.docs {
		_, p, id := app.SplitPath(path)
		if p == parent {
			out[id] = append(json.RawMessage(nil), doc...)
		}
	}
	return out, nil
}

func clean(path string) string {
	return strings.Trim(path, "/")
}
