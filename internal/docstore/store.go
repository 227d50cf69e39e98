// Package docstore is a minimal document store with three operation shapes:
// read one document by key, merge-write one document, and query a collection
// by field equality.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrLookupFailed = errors.New("remote lookup failed")
	ErrWriteFailed  = errors.New("remote write failed")
)

type Document map[string]any

type Snapshot struct {
	ID   string
	Data Document
}

type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Merge creates the document or merges patch into it. Nested maps are
	// merged recursively; other values are replaced.
	Merge(ctx context.Context, collection, id string, patch Document) error
	// Query returns every document whose top-level field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error)
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

func validField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("invalid field name %q", field)
	}
	return nil
}

// MergeDocuments merges patch into dst in place and returns dst.
func MergeDocuments(dst, patch Document) Document {
	if dst == nil {
		dst = Document{}
	}
	for k, v := range patch {
		pm, ok := asMap(v)
		if !ok {
			dst[k] = v
			continue
		}
		dm, ok := asMap(dst[k])
		if !ok {
			dm = Document{}
		}
		dst[k] = map[string]any(MergeDocuments(dm, pm))
	}
	return dst
}

func asMap(v any) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return Document(m), true
	}
	return nil, false
}

// Normalize round-trips a document through JSON so numbers, nested maps and
// structs take the same shape every backend stores.
func Normalize(doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

// equalValue compares a stored JSON value with a query value by their JSON
// encoding.
func equalValue(stored, want any) bool {
	a, err := json.Marshal(stored)
	if err != nil {
		return false
	}
	b, err := json.Marshal(want)
	if err != nil {
		return false
	}
	return string(a) == string(b)
}
