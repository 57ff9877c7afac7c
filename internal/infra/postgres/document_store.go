package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DocumentStore keeps documents in the documents table; a merge is a
// top-level JSONB concatenation done by the upsert itself.
type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

const (
	replaceDocumentSQL = `INSERT INTO documents (path, parent, id, data, updated_at)
VALUES ($1, $2, $3, $4::jsonb, now())
ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	mergeDocumentSQL = `INSERT INTO documents (path, parent, id, data, updated_at)
VALUES ($1, $2, $3, $4::jsonb, now())
ON CONFLICT (path) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()`
)

func (s *DocumentStore) Get(ctx context.Context, path string) (domain.Fields, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE path = $1`, path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &domain.StoreError{Op: "get", Path: path, Err: err}
	}
	var fields domain.Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false, &domain.StoreError{Op: "get", Path: path, Err: err}
	}
	return fields, true, nil
}

func (s *DocumentStore) Set(ctx context.Context, path string, fields domain.Fields, merge bool) error {
	if fields == nil {
		fields = domain.Fields{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return &domain.StoreError{Op: "set", Path: path, Err: err}
	}
	parent, id := app.SplitPath(path)
	query := replaceDocumentSQL
	if merge {
		query = mergeDocumentSQL
	}
	if _, err := s.pool.Exec(ctx, query, path, parent, id, string(raw)); err != nil {
		return &domain.StoreError{Op: "set", Path: path, Err: err}
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]domain.Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, path, data FROM documents WHERE parent = $1 ORDER BY id`, collection)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Path: collection, Err: err}
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var (
			doc domain.Document
			raw []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Path, &raw); err != nil {
			return nil, &domain.StoreError{Op: "list", Path: collection, Err: err}
		}
		if err := json.Unmarshal(raw, &doc.Fields); err != nil {
			return nil, &domain.StoreError{Op: "list", Path: doc.Path, Err: err}
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list", Path: collection, Err: err}
	}
	return out, nil
}
