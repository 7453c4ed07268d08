package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// PreviewRequest asks the server to compute a preview for a single node.
// RequestID is a client-side monotonic sequence; the server echoes it back so
// the client can discard responses to superseded requests.
type PreviewRequest struct {
	NodeID    string         `json:"nodeId" mapstructure:"nodeId"`
	NodeType  string         `json:"nodeType" mapstructure:"nodeType"`
	RequestID uint64         `json:"requestId" mapstructure:"requestId"`
	Config    map[string]any `json:"config,omitempty" mapstructure:"config"`
}

// PreviewResult carries a computed preview back to the client.
type PreviewResult struct {
	NodeID    string            `json:"nodeId" mapstructure:"nodeId"`
	RequestID uint64            `json:"requestId,omitempty" mapstructure:"requestId"`
	Preview   string            `json:"preview" mapstructure:"preview"`
	Metadata  map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
}

// ErrorPayload is the body of an `error` envelope. NodeID is set when the
// error concerns a specific preview request.
type ErrorPayload struct {
	NodeID    string `json:"nodeId,omitempty" mapstructure:"nodeId"`
	RequestID uint64 `json:"requestId,omitempty" mapstructure:"requestId"`
	Message   string `json:"message" mapstructure:"message"`
}

// NodeChange describes a single node mutation (add, move, update, delete).
// WorkflowID names the canvas the change belongs to; clients editing the
// same canvas stamp the same ID regardless of their session, so the server
// persists them into one record. Empty means the shared default workflow.
type NodeChange struct {
	Action     string `json:"action" mapstructure:"action"`
	WorkflowID string `json:"workflowId,omitempty" mapstructure:"workflowId"`
	Node       Node   `json:"node" mapstructure:"node"`
}

// Node change actions.
const (
	ActionNodeAdded   = "node_added"
	ActionNodeUpdated = "node_updated"
	ActionNodeDeleted = "node_deleted"
	ActionEdgeAdded   = "connection_added"
	ActionEdgeDeleted = "connection_deleted"
)

// Node is the wire shape of a workflow node.
type Node struct {
	ID          string         `json:"id" mapstructure:"id"`
	Type        string         `json:"type" mapstructure:"type"`
	Position    Position       `json:"position" mapstructure:"position"`
	Data        map[string]any `json:"data,omitempty" mapstructure:"data"`
	Connections []string       `json:"connections,omitempty" mapstructure:"connections"`
}

// Position is a canvas coordinate pair.
type Position struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
}

// Edge connects two nodes. Source and target must both exist in the graph.
type Edge struct {
	ID       string `json:"id" mapstructure:"id"`
	SourceID string `json:"sourceId" mapstructure:"sourceId"`
	TargetID string `json:"targetId" mapstructure:"targetId"`
}

// WorkflowSnapshot is the full graph, sent as a workflow_update payload.
// WorkflowID scopes the change the same way NodeChange.WorkflowID does.
type WorkflowSnapshot struct {
	Action     string `json:"action,omitempty" mapstructure:"action"`
	WorkflowID string `json:"workflowId,omitempty" mapstructure:"workflowId"`
	Edge       *Edge  `json:"edge,omitempty" mapstructure:"edge"`
	Nodes      []Node `json:"nodes,omitempty" mapstructure:"nodes"`
	Edges      []Edge `json:"edges,omitempty" mapstructure:"edges"`
}

// ProcessRequest asks the server to ingest a document, URL or page. Content
// arrives pre-fetched; the server stores and indexes it.
type ProcessRequest struct {
	ID      string `json:"id,omitempty" mapstructure:"id"`
	Title   string `json:"title,omitempty" mapstructure:"title"`
	Content string `json:"content" mapstructure:"content"`
	URL     string `json:"url,omitempty" mapstructure:"url"`
}

// ProcessStatus reports ingestion progress for documents, URLs and
// Notion/Confluence pages.
type ProcessStatus struct {
	ID       string `json:"id" mapstructure:"id"`
	Source   string `json:"source" mapstructure:"source"`
	Status   string `json:"status" mapstructure:"status"`
	Progress int    `json:"progress,omitempty" mapstructure:"progress"`
	Message  string `json:"message,omitempty" mapstructure:"message"`
}

// DecodePayload unmarshals an envelope payload into a typed struct. It
// tolerates the weakly-typed values a JSON origin produces (numbers arriving
// as float64, ints as strings), which is why this goes through mapstructure
// instead of a direct json.Unmarshal.
func DecodePayload(e Envelope, out any) error {
	var intermediate map[string]any
	if err := json.Unmarshal(e.Payload, &intermediate); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(intermediate); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
