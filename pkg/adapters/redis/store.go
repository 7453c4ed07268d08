// Package redis persists workflows and documents in Redis, and bridges
// server-side broadcasts across instances via pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kwindow/realtime/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const (
	workflowPrefix = "kw:workflow:"
	documentPrefix = "kw:document:"
	documentsIndex = "kw:documents"
)

// Store implements ports.WorkflowStore and ports.DocumentStore on Redis.
type Store struct {
	client *backend.Client
	ttl    time.Duration
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithTTL sets an expiry on stored records. Zero means no expiry.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// NewFromClient wraps an existing Redis client.
func NewFromClient(client *backend.Client, opts ...StoreOption) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists a workflow record as a JSON blob.
func (s *Store) Save(ctx context.Context, rec *ports.WorkflowRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}
	if err := s.client.Set(ctx, workflowPrefix+rec.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis error saving workflow: %w", err)
	}
	return nil
}

// Load retrieves a workflow record by ID.
func (s *Store) Load(ctx context.Context, id string) (*ports.WorkflowRecord, error) {
	data, err := s.client.Get(ctx, workflowPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ports.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("redis error loading workflow: %w", err)
	}

	var rec ports.WorkflowRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &rec, nil
}

// Delete removes a workflow record.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, workflowPrefix+id).Err()
}

// List scans for stored workflow IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, workflowPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error listing workflows: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, key[len(workflowPrefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

// SaveDocument persists a document record and indexes it for listing.
func (s *Store) SaveDocument(ctx context.Context, rec *ports.DocumentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, documentPrefix+rec.ID, data, s.ttl)
	pipe.RPush(ctx, documentsIndex, rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis error saving document: %w", err)
	}
	return nil
}

// LoadDocument retrieves a document record by ID.
func (s *Store) LoadDocument(ctx context.Context, id string) (*ports.DocumentRecord, error) {
	data, err := s.client.Get(ctx, documentPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ports.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("redis error loading document: %w", err)
	}

	var rec ports.DocumentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &rec, nil
}

// ListDocuments returns all documents in insertion order. Records whose key
// expired are skipped and lazily pruned from the index.
func (s *Store) ListDocuments(ctx context.Context) ([]*ports.DocumentRecord, error) {
	ids, err := s.client.LRange(ctx, documentsIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error listing documents: %w", err)
	}

	out := make([]*ports.DocumentRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.LoadDocument(ctx, id)
		if errors.Is(err, ports.ErrDocumentNotFound) {
			s.client.LRem(ctx, documentsIndex, 1, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Documents adapts the store to ports.DocumentStore.
func (s *Store) Documents() ports.DocumentStore {
	return documentStore{s}
}

type documentStore struct{ s *Store }

func (d documentStore) Save(ctx context.Context, rec *ports.DocumentRecord) error {
	return d.s.SaveDocument(ctx, rec)
}

func (d documentStore) Load(ctx context.Context, id string) (*ports.DocumentRecord, error) {
	return d.s.LoadDocument(ctx, id)
}

func (d documentStore) List(ctx context.Context) ([]*ports.DocumentRecord, error) {
	return d.s.ListDocuments(ctx)
}
