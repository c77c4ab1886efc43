package storage

import (
	"context"
	"fmt"
)

// Options selects and configures a BlobStore backend.
type Options struct {
	Type      string // memory, local or minio
	LocalPath string
	Minio     MinioOptions
}

// New builds the configured backend. Unknown types fall back to memory.
func New(ctx context.Context, opts Options) (BlobStore, error) {
	switch opts.Type {
	case "local", "fs":
		return NewFSStore(opts.LocalPath)
	case "minio":
		store, err := NewMinioStore(opts.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket: %w", err)
		}
		return store, nil
	default:
		return NewMemoryStore(), nil
	}
}
