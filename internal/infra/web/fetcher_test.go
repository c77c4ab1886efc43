package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/storage"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clip.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	res, err := f.Fetch(context.Background(), srv.URL+"/clip.mp3")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(res.Data) != "mp3" || res.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected resource: %+v", res)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlobFirstFetcher(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryStore()
	_ = blobs.Put(ctx, "quizzes/pic.png", strings.NewReader("png"), 3, "image/png")

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	f := NewBlobFirstFetcher(blobs, NewHTTPFetcher(time.Second))
	res, err := f.Fetch(ctx, srv.URL+"/api/media/pic.png")
	if err != nil || string(res.Data) != "png" || calls != 0 {
		t.Fatalf("expected blob hit, got %q %v (remote calls %d)", res.Data, err, calls)
	}

	res, err = f.Fetch(ctx, srv.URL+"/elsewhere/other.png")
	if err != nil || string(res.Data) != "remote" || calls != 1 {
		t.Fatalf("expected remote fallback, got %q %v", res.Data, err)
	}
}
