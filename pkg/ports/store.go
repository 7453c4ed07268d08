package ports

import (
	"context"
	"errors"

	"github.com/kwindow/realtime/pkg/envelope"
)

// ErrWorkflowNotFound is returned when a workflow ID cannot be found in the store.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrDocumentNotFound is returned when a document ID cannot be found in the store.
var ErrDocumentNotFound = errors.New("document not found")

// WorkflowRecord is the persisted form of a workflow graph.
type WorkflowRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Nodes     []envelope.Node `json:"nodes"`
	Edges     []envelope.Edge `json:"edges"`
	UpdatedAt int64           `json:"updatedAt"`
}

// WorkflowStore persists workflow graphs as the server observes them.
type WorkflowStore interface {
	// Save persists the record under its ID, overwriting any prior version.
	Save(ctx context.Context, rec *WorkflowRecord) error

	// Load retrieves a record by ID.
	// Returns ErrWorkflowNotFound if the workflow does not exist.
	Load(ctx context.Context, id string) (*WorkflowRecord, error)

	// Delete removes a record by ID. Deleting a missing record is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored workflows.
	List(ctx context.Context) ([]string, error)
}

// DocumentRecord is an ingested document as stored by the server.
type DocumentRecord struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	SourceType string            `json:"sourceType"`
	SourceURL  string            `json:"sourceUrl,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  int64             `json:"createdAt"`
}

// DocumentStore persists ingested documents for the search endpoint.
type DocumentStore interface {
	Save(ctx context.Context, rec *DocumentRecord) error
	Load(ctx context.Context, id string) (*DocumentRecord, error)
	List(ctx context.Context) ([]*DocumentRecord, error)
}
