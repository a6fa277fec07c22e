package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"focusgarden/backend/internal/docstore"
)

// SQLiteStore implements docstore.Store on the documents table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *SQLiteStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT collection, id, data, created_at, updated_at
		 FROM documents
		 WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	return scanDocument(row)
}

func (r *SQLiteStore) Create(ctx context.Context, collection, id string, data any) (*docstore.Document, error) {
	body, err := docstore.Encode(data)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := r.now()
	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		collection,
		id,
		string(body),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, docstore.ErrAlreadyExists
		}
		return nil, fmt.Errorf("create document %s/%s: %w", collection, id, err)
	}

	return &docstore.Document{
		Collection: collection,
		ID:         id,
		Data:       body,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (r *SQLiteStore) Update(ctx context.Context, collection, id string, partial any) (*docstore.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(
		ctx,
		`SELECT collection, id, data, created_at, updated_at
		 FROM documents
		 WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}

	merged, err := docstore.Merge(doc.Data, partial)
	if err != nil {
		return nil, err
	}
	doc.Data = merged
	doc.UpdatedAt = r.now()

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE documents
		 SET data = ?,
		     updated_at = ?
		 WHERE collection = ? AND id = ?`,
		string(doc.Data),
		formatTime(doc.UpdatedAt),
		collection,
		id,
	); err != nil {
		return nil, fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (r *SQLiteStore) Replace(ctx context.Context, collection, id string, data any) (*docstore.Document, error) {
	body, err := docstore.Encode(data)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(
		ctx,
		`UPDATE documents
		 SET data = ?,
		     updated_at = ?
		 WHERE collection = ? AND id = ?
		 RETURNING collection, id, data, created_at, updated_at`,
		string(body),
		formatTime(r.now()),
		collection,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("replace document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (r *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := r.db.ExecContext(
		ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection,
		id,
	); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (r *SQLiteStore) Query(ctx context.Context, collection string, filter docstore.Filter, limit int) ([]docstore.Document, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT collection, id, data, created_at, updated_at
		 FROM documents
		 WHERE collection = ?
		 ORDER BY created_at DESC, rowid DESC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]docstore.Document, 0)
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		if !docstore.Match(doc.Data, filter) {
			continue
		}
		docs = append(docs, *doc)
		if limit > 0 && len(docs) >= limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents %s: %w", collection, err)
	}
	return docs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(s scanner) (*docstore.Document, error) {
	doc := docstore.Document{}
	var data string
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&doc.Collection,
		&doc.ID,
		&data,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Data = []byte(data)

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse document created_at: %w", err)
	}
	doc.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse document updated_at: %w", err)
	}
	doc.UpdatedAt = parsedUpdatedAt

	return &doc, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
