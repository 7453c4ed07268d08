// Package memory provides in-process implementations of the persistence
// ports, used in tests and single-instance deployments.
package memory

import (
	"context"
	"sync"

	"github.com/kwindow/realtime/pkg/ports"
)

// WorkflowStore implements ports.WorkflowStore in memory.
// Safe for concurrent use.
type WorkflowStore struct {
	mu   sync.RWMutex
	data map[string]*ports.WorkflowRecord
}

// NewWorkflowStore creates an empty in-memory workflow store.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{data: make(map[string]*ports.WorkflowRecord)}
}

// Save persists the record in memory.
func (s *WorkflowStore) Save(ctx context.Context, rec *ports.WorkflowRecord) error {
	cp := *rec
	cp.Nodes = append(rec.Nodes[:0:0], rec.Nodes...)
	cp.Edges = append(rec.Edges[:0:0], rec.Edges...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.ID] = &cp
	return nil
}

// Load retrieves a record by ID.
func (s *WorkflowStore) Load(ctx context.Context, id string) (*ports.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, ports.ErrWorkflowNotFound
	}

	// Copy on read so the caller can't mutate stored state by pointer.
	ret := *rec
	ret.Nodes = append(rec.Nodes[:0:0], rec.Nodes...)
	ret.Edges = append(rec.Edges[:0:0], rec.Edges...)
	return &ret, nil
}

// Delete removes a record.
func (s *WorkflowStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns stored workflow IDs.
func (s *WorkflowStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// DocumentStore implements ports.DocumentStore in memory.
type DocumentStore struct {
	mu   sync.RWMutex
	data map[string]*ports.DocumentRecord
	seq  []string
}

// NewDocumentStore creates an empty in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{data: make(map[string]*ports.DocumentRecord)}
}

// Save persists a document record.
func (s *DocumentStore) Save(ctx context.Context, rec *ports.DocumentRecord) error {
	cp := *rec

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[rec.ID]; !ok {
		s.seq = append(s.seq, rec.ID)
	}
	s.data[rec.ID] = &cp
	return nil
}

// Load retrieves a document by ID.
func (s *DocumentStore) Load(ctx context.Context, id string) (*ports.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, ports.ErrDocumentNotFound
	}
	ret := *rec
	return &ret, nil
}

// List returns all documents in insertion order.
func (s *DocumentStore) List(ctx context.Context) ([]*ports.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ports.DocumentRecord, 0, len(s.seq))
	for _, id := range s.seq {
		rec := *s.data[id]
		out = append(out, &rec)
	}
	return out, nil
}
