package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"scorm-quiz-service/internal/domain"
)

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps blobs in process memory. Used by tests and the default
// single-node setup.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = memObject{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Object
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Object{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) URL(key string) string {
	return "mem://" + key
}
