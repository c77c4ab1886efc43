package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
)

// DocumentStore keeps path-addressed JSON documents in the documents table.
type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

func (s *DocumentStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE path=$1`, clean(path)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return raw, nil
}

func (s *DocumentStore) Set(ctx context.Context, path string, doc json.RawMessage) error {
	path = clean(path)
	collection, parent, _ := app.SplitPath(path)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (path, collection, parent, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		path, collection, parent, []byte(doc))
	if err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path=$1`, clean(path)); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, collection, field, value string) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path, data FROM documents WHERE collection=$1 AND parent=$1 AND data->>$2 = $3`,
		collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	return collect(rows)
}

func (s *DocumentStore) Children(ctx context.Context, parent string) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, `SELECT path, data FROM documents WHERE parent=$1`, clean(parent))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) (map[string]json.RawMessage, error) {
	defer rows.Close()
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			path string
			raw  []byte
		)
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		_, _, id := app.SplitPath(path)
		out[id] = raw
	}
	return out, rows.Err()
}

func clean(path string) string {
	return strings.Trim(path, "/")
}
