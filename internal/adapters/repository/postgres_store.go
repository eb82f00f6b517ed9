package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/taskmaster/deptflow/internal/ports"
)

// PostgresStore keeps every document as one JSONB row of the documents table
// (see migrations/000001_create_documents.up.sql).
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new postgres-backed document store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type documentRow struct {
	Path string `db:"path"`
	Key  string `db:"key"`
	Data []byte `db:"data"`
}

func (r documentRow) toDocument() ports.Document {
	return ports.Document{Key: r.Key, Path: r.Path, Data: json.RawMessage(r.Data)}
}

func (s *PostgresStore) Get(ctx context.Context, path string) (*ports.Document, error) {
	query := `SELECT path, key, data FROM documents WHERE path = $1`

	var row documentRow
	err := s.db.GetContext(ctx, &row, query, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", path, err)
	}

	doc := row.toDocument()
	return &doc, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, data interface{}) error {
	query := `
		INSERT INTO documents (path, parent, key, data, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, CURRENT_TIMESTAMP)
		ON CONFLICT (path) DO UPDATE
		SET data = EXCLUDED.data, updated_at = CURRENT_TIMESTAMP`

	return s.write(ctx, "set", query, path, data)
}

func (s *PostgresStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	query := `
		INSERT INTO documents (path, parent, key, data, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, CURRENT_TIMESTAMP)
		ON CONFLICT (path) DO UPDATE
		SET data = documents.data || EXCLUDED.data, updated_at = CURRENT_TIMESTAMP`

	return s.write(ctx, "update", query, path, fields)
}

func (s *PostgresStore) write(ctx context.Context, op, query, path string, data interface{}) error {
	if _, err := CleanPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	parent, key := SplitPath(path)
	if _, err := s.db.ExecContext(ctx, query, path, parent, key, string(raw)); err != nil {
		return fmt.Errorf("%s document %s: %w", op, path, err)
	}
	return nil
}

func (s *PostgresStore) Push(ctx context.Context, parent string, data interface{}) (string, error) {
	key, err := NewKey()
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, JoinPath(parent, key), data); err != nil {
		return "", err
	}
	return key, nil
}

func (s *PostgresStore) List(ctx context.Context, parent string) ([]ports.Document, error) {
	query := `SELECT path, key, data FROM documents WHERE parent = $1 ORDER BY key`

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, parent); err != nil {
		return nil, fmt.Errorf("list documents under %s: %w", parent, err)
	}

	docs := make([]ports.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.toDocument())
	}
	return docs, nil
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	if _, err := CleanPath(path); err != nil {
		return err
	}
	query := `DELETE FROM documents WHERE path = $1 OR path LIKE $2 ESCAPE '\'`

	if _, err := s.db.ExecContext(ctx, query, path, escapeLike(path)+"/%"); err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
