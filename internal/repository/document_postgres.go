package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusgarden/backend/internal/docstore"
)

const pgUniqueViolation = "23505"

// PostgresStore implements docstore.Store on a JSONB documents table.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *PostgresStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT collection, id, data, created_at, updated_at
		 FROM documents
		 WHERE collection = $1 AND id = $2`,
		collection, id)
	return scanPgDocument(row)
}

func (r *PostgresStore) Create(ctx context.Context, collection, id string, data any) (*docstore.Document, error) {
	body, err := docstore.Encode(data)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := r.now()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $4)
		 RETURNING collection, id, data, created_at, updated_at`,
		collection, id, string(body), now)
	doc, err := scanPgDocument(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, docstore.ErrAlreadyExists
		}
		return nil, fmt.Errorf("creating document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (r *PostgresStore) Update(ctx context.Context, collection, id string, partial any) (*docstore.Document, error) {
	patch, err := docstore.Encode(partial)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE documents
		 SET data = data || $3::jsonb, updated_at = $4
		 WHERE collection = $1 AND id = $2
		 RETURNING collection, id, data, created_at, updated_at`,
		collection, id, string(patch), r.now())
	doc, err := scanPgDocument(row)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (r *PostgresStore) Replace(ctx context.Context, collection, id string, data any) (*docstore.Document, error) {
	body, err := docstore.Encode(data)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE documents
		 SET data = $3::jsonb, updated_at = $4
		 WHERE collection = $1 AND id = $2
		 RETURNING collection, id, data, created_at, updated_at`,
		collection, id, string(body), r.now())
	doc, err := scanPgDocument(row)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("replacing document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (r *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id); err != nil {
		return fmt.Errorf("deleting document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (r *PostgresStore) Query(ctx context.Context, collection string, filter docstore.Filter, limit int) ([]docstore.Document, error) {
	if filter == nil {
		filter = docstore.Filter{}
	}
	contains, err := docstore.Encode(map[string]any(filter))
	if err != nil {
		return nil, err
	}

	query := `SELECT collection, id, data, created_at, updated_at
		 FROM documents
		 WHERE collection = $1 AND data @> $2::jsonb
		 ORDER BY created_at DESC, seq DESC`
	args := []any{collection, string(contains)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func scanPgDocument(row pgx.Row) (*docstore.Document, error) {
	var doc docstore.Document
	var data []byte
	if err := row.Scan(&doc.Collection, &doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, err
	}
	doc.Data = data
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}
