package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/scorm"
	"scorm-quiz-service/internal/storage"
)

// MaxMediaBytes caps a single media download.
const MaxMediaBytes = 50 << 20

// HTTPFetcher downloads media over HTTP(S).
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (app.Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return app.Resource{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return app.Resource{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return app.Resource{}, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return app.Resource{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return app.Resource{}, err
	}
	if len(data) > MaxMediaBytes {
		return app.Resource{}, fmt.Errorf("fetch %s: larger than %d bytes", url, MaxMediaBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return app.Resource{ContentType: ct, Data: data}, nil
}

// BlobFirstFetcher serves upload URLs from the blob store directly and falls
// back to next for everything else.
type BlobFirstFetcher struct {
	blobs storage.BlobStore
	next  app.Fetcher
}

func NewBlobFirstFetcher(blobs storage.BlobStore, next app.Fetcher) *BlobFirstFetcher {
	return &BlobFirstFetcher{blobs: blobs, next: next}
}

func (f *BlobFirstFetcher) Fetch(ctx context.Context, url string) (app.Resource, error) {
	if key, err := scorm.SourceKey(url); err == nil {
		data, err := storage.ReadAll(ctx, f.blobs, key)
		if err == nil {
			return app.Resource{ContentType: mime.TypeByExtension(path.Ext(key)), Data: data}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return app.Resource{}, err
		}
	}
	if f.next == nil {
		return app.Resource{}, domain.ErrNotFound
	}
	return f.next.Fetch(ctx, url)
}
