// Package docstore defines the document store contract the session core is
// built on: JSON documents keyed by collection and id.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)

type Document struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Filter matches documents whose top-level fields equal the given values.
type Filter map[string]any

// Store is implemented by the SQLite, Postgres and in-memory backends.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Create stores data under id, generating one when id is empty.
	Create(ctx context.Context, collection, id string, data any) (*Document, error)
	// Update merges the top-level fields of partial into the stored document.
	Update(ctx context.Context, collection, id string, partial any) (*Document, error)
	// Replace overwrites the whole body of an existing document.
	Replace(ctx context.Context, collection, id string, data any) (*Document, error)
	// Delete is idempotent.
	Delete(ctx context.Context, collection, id string) error
	// Query returns matching documents, newest first. limit <= 0 means no limit.
	Query(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)
}

// Put writes data with overwrite semantics: fields absent from data do not
// survive from a previous version of the document.
func Put(ctx context.Context, store Store, collection, id string, data any) (*Document, error) {
	doc, err := store.Replace(ctx, collection, id, data)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	doc, err = store.Create(ctx, collection, id, data)
	if errors.Is(err, ErrAlreadyExists) {
		// Lost a create race; the other writer's document is overwritten.
		return store.Replace(ctx, collection, id, data)
	}
	return doc, err
}

// Encode marshals data into a JSON object body.
func Encode(data any) (json.RawMessage, error) {
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		raw = encoded
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("encode document: body must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

// Merge applies the top-level fields of patch over base.
func Merge(base json.RawMessage, patch any) (json.RawMessage, error) {
	patchRaw, err := Encode(patch)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(base)) > 0 {
		if err := json.Unmarshal(base, &fields); err != nil {
			return nil, fmt.Errorf("decode stored document: %w", err)
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}

	var patchFields map[string]json.RawMessage
	if err := json.Unmarshal(patchRaw, &patchFields); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	for key, value := range patchFields {
		fields[key] = value
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode merged document: %w", err)
	}
	return merged, nil
}

// Match reports whether the document body satisfies every filter field.
func Match(data json.RawMessage, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}

	for key, want := range filter {
		got, ok := fields[key]
		if !ok {
			return false
		}
		normalized, err := normalize(want)
		if err != nil || !reflect.DeepEqual(got, normalized) {
			return false
		}
	}
	return true
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
