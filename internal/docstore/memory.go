package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. Used by tests and by the
// "memory" store driver.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]memoryEntry
	seq  uint64
	now  func() time.Time
}

type memoryEntry struct {
	doc Document
	seq uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]memoryEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := cloneDocument(entry.doc)
	return &copied, nil
}

func (s *MemoryStore) Create(_ context.Context, collection, id string, data any) (*Document, error) {
	body, err := Encode(data)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.docs[collection]
	if !ok {
		docs = make(map[string]memoryEntry)
		s.docs[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return nil, ErrAlreadyExists
	}

	now := s.now()
	doc := Document{
		Collection: collection,
		ID:         id,
		Data:       append([]byte(nil), body...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.seq++
	docs[id] = memoryEntry{doc: doc, seq: s.seq}
	copied := cloneDocument(doc)
	return &copied, nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, partial any) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}

	merged, err := Merge(entry.doc.Data, partial)
	if err != nil {
		return nil, err
	}
	doc := entry.doc
	doc.Data = merged
	doc.UpdatedAt = s.now()
	s.docs[collection][id] = memoryEntry{doc: doc, seq: entry.seq}

	copied := cloneDocument(doc)
	return &copied, nil
}

func (s *MemoryStore) Replace(_ context.Context, collection, id string, data any) (*Document, error) {
	body, err := Encode(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	doc := entry.doc
	doc.Data = append([]byte(nil), body...)
	doc.UpdatedAt = s.now()
	s.docs[collection][id] = memoryEntry{doc: doc, seq: entry.seq}

	copied := cloneDocument(doc)
	return &copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if docs, ok := s.docs[collection]; ok {
		delete(docs, id)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]memoryEntry, 0)
	for _, entry := range s.docs[collection] {
		if Match(entry.doc.Data, filter) {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq > matched[j].seq
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	result := make([]Document, 0, len(matched))
	for _, entry := range matched {
		result = append(result, cloneDocument(entry.doc))
	}
	return result, nil
}

func cloneDocument(doc Document) Document {
	doc.Data = append([]byte(nil), doc.Data...)
	return doc
}
