package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/daewon/plantops/internal/apperr"
	"github.com/daewon/plantops/internal/checksum"
)

// Document is one stored JSON document.
type Document struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	Checksum   string          `json:"checksum"`
	Origin     string          `json:"origin"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ListOptions narrows a List call.
type ListOptions struct {
	Prefix string // id prefix; empty matches all
	Limit  int    // 0 means no limit
	Offset int
}

func validBody(body json.RawMessage) error {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Errorf("docstore: body must be a JSON object: %w", apperr.ErrInvalid)
	}
	return nil
}

// Get returns a document or apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (*Document, error) {
	var d Document
	var body string
	err := s.conn.QueryRowContext(ctx, `
		SELECT collection, id, body, checksum, origin, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?`, collection, id).
		Scan(&d.Collection, &d.ID, &body, &d.Checksum, &d.Origin, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	d.Data = json.RawMessage(body)
	return &d, nil
}

// Set upserts a document written through the API.
// It reports whether the stored body changed.
func (s *Store) Set(ctx context.Context, collection, id string, body json.RawMessage) (bool, error) {
	return s.upsert(ctx, collection, id, body, OriginAPI)
}

// Import upserts a document read from a seed file.
func (s *Store) Import(ctx context.Context, collection, id string, body json.RawMessage) (bool, error) {
	return s.upsert(ctx, collection, id, body, OriginSeed)
}

func (s *Store) upsert(ctx context.Context, collection, id string, body json.RawMessage, origin string) (bool, error) {
	if err := validBody(body); err != nil {
		return false, err
	}
	cs := checksum.SumJSON(body)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var current string
	err = tx.QueryRowContext(ctx, `SELECT checksum FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("docstore: read checksum: %w", err)
	}
	if current == cs {
		return false, nil
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, checksum, origin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			body       = excluded.body,
			checksum   = excluded.checksum,
			origin     = excluded.origin,
			updated_at = excluded.updated_at
	`, collection, id, string(body), cs, origin, now, now)
	if err != nil {
		return false, fmt.Errorf("docstore: upsert %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("docstore: commit: %w", err)
	}

	s.feed.notify(collection, id)
	return true, nil
}

// Create inserts a new document with a server-assigned creation time.
// An existing document yields apperr.ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, collection, id string, body json.RawMessage) (*Document, error) {
	if err := validBody(body); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, checksum, origin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		collection, id, string(body), checksum.SumJSON(body), OriginAPI, now, now)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return nil, apperr.ErrAlreadyExists
		}
		return nil, fmt.Errorf("docstore: create %s/%s: %w", collection, id, err)
	}

	s.feed.notify(collection, id)
	return &Document{
		Collection: collection,
		ID:         id,
		Data:       body,
		Checksum:   checksum.SumJSON(body),
		Origin:     OriginAPI,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Delete removes a document. Deleting a missing document yields apperr.ErrNotFound.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	s.feed.notify(collection, id)
	return nil
}

// List returns documents of a collection ordered by id.
func (s *Store) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT collection, id, body, checksum, origin, created_at, updated_at
		FROM documents
		WHERE collection = ? AND substr(id, 1, length(?)) = ?
		ORDER BY id
		LIMIT ? OFFSET ?`, collection, opts.Prefix, opts.Prefix, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var body string
		if err := rows.Scan(&d.Collection, &d.ID, &body, &d.Checksum, &d.Origin, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Data = json.RawMessage(body)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SeedChecksums returns "collection/id" → checksum for every document that
// was imported from a seed file.
func (s *Store) SeedChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT collection, id, checksum FROM documents WHERE origin = ?`, OriginSeed)
	if err != nil {
		return nil, fmt.Errorf("docstore: seed checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var coll, id, cs string
		if err := rows.Scan(&coll, &id, &cs); err != nil {
			return nil, err
		}
		out[coll+"/"+id] = cs
	}
	return out, rows.Err()
}
