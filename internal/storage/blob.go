package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidKey is returned for empty keys or keys escaping the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// Object describes a stored blob.
type Object struct {
	Key         string
	Size        int64
	ContentType string
}

// BlobStore holds quiz media, player templates and staged packages. Keys are
// slash separated; List matches by key prefix.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error) // domain.ErrNotFound when absent
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// CleanKey normalises a key and rejects traversal outside the store.
func CleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// ReadAll downloads a blob into memory.
func ReadAll(ctx context.Context, store BlobStore, key string) ([]byte, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Copy duplicates src to dst within the same store.
func Copy(ctx context.Context, store BlobStore, src, dst, contentType string) error {
	data, err := ReadAll(ctx, store, src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return store.Put(ctx, dst, bytes.NewReader(data), int64(len(data)), contentType)
}

// DeletePrefix removes every blob under prefix.
func DeletePrefix(ctx context.Context, store BlobStore, prefix string) error {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := store.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("delete %s: %w", obj.Key, err)
		}
	}
	return nil
}

// ProgressReader reports the fraction of size read so far.
type ProgressReader struct {
	r        io.Reader
	size     int64
	read     int64
	progress func(float64)
}

func NewProgressReader(r io.Reader, size int64, progress func(float64)) *ProgressReader {
	return &ProgressReader{r: r, size: size, progress: progress}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.progress != nil && p.size > 0 && n > 0 {
		frac := float64(p.read) / float64(p.size)
		if frac > 1 {
			frac = 1
		}
		p.progress(frac)
	}
	return n, err
}
