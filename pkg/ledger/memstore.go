package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDocumentNotFound is returned by Get when the id does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// MemStore is an in-memory DocumentStore used in tests and local development.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	docs   map[DocType]map[string]Fields
}

// NewMemStore creates an empty in-memory document store.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[DocType]map[string]Fields)}
}

// Create stores a copy of the fields and returns a generated id.
func (s *MemStore) Create(_ context.Context, docType DocType, fields Fields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("%s-%05d", docType, s.nextID)

	if s.docs[docType] == nil {
		s.docs[docType] = make(map[string]Fields)
	}
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.docs[docType][id] = copied
	return id, nil
}

// Find returns the id of the first document whose fields match the filter,
// or an empty id when none matches.
func (s *MemStore) Find(_ context.Context, docType DocType, filter Fields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, fields := range s.docs[docType] {
		match := true
		for k, want := range filter {
			if fmt.Sprint(fields[k]) != fmt.Sprint(want) {
				match = false
				break
			}
		}
		if match {
			return id, nil
		}
	}
	return "", nil
}

// Get returns the stored fields for an id.
func (s *MemStore) Get(_ context.Context, docType DocType, id string) (Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.docs[docType][id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied, nil
}

// Count returns the number of stored documents of a type.
func (s *MemStore) Count(docType DocType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[docType])
}
