package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// MySQLStore keeps documents as JSON values in the documents table.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	const query = `SELECT data FROM documents WHERE collection = ? AND id = ?`
	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w: %w", collection, id, ErrLookupFailed, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w: %w", collection, id, ErrLookupFailed, err)
	}
	return doc, nil
}

func (s *MySQLStore) Merge(ctx context.Context, collection, id string, patch Document) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	const query = `
INSERT INTO documents (collection, id, data)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE data = JSON_MERGE_PATCH(data, VALUES(data)), updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, collection, id, string(raw)); err != nil {
		return fmt.Errorf("merge %s/%s: %w: %w", collection, id, ErrWriteFailed, err)
	}
	return nil
}

func (s *MySQLStore) Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	if err := validField(field); err != nil {
		return nil, err
	}
	want, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}
	const query = `
SELECT id, data FROM documents
WHERE collection = ? AND JSON_EXTRACT(data, ?) = CAST(? AS JSON)
ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, collection, "$."+field, string(want))
	if err != nil {
		return nil, fmt.Errorf("query %s.%s: %w: %w", collection, field, ErrLookupFailed, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w: %w", collection, ErrLookupFailed, err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w: %w", collection, id, ErrLookupFailed, err)
		}
		out = append(out, Snapshot{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w: %w", collection, ErrLookupFailed, err)
	}
	return out, nil
}
