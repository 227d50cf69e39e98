package docstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps documents in process memory. Values are stored and
// returned as JSON-normalised copies so callers never share maps with it.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	doc, ok := s.collections[collection][id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return Normalize(doc)
}

func (s *MemoryStore) Merge(_ context.Context, collection, id string, patch Document) error {
	normalized, err := Normalize(patch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		s.collections[collection] = docs
	}
	current := docs[id]
	if current != nil {
		if current, err = Normalize(current); err != nil {
			return err
		}
	}
	docs[id] = MergeDocuments(current, normalized)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection, field string, value any) ([]Snapshot, error) {
	if err := validField(field); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Snapshot
	for id, doc := range s.collections[collection] {
		v, ok := doc[field]
		if !ok || !equalValue(v, value) {
			continue
		}
		data, err := Normalize(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{ID: id, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len reports how many documents a collection holds.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Reset drops every collection.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	s.collections = make(map[string]map[string]Document)
	s.mu.Unlock()
}
