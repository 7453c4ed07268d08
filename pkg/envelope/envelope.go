// Package envelope defines the wire format shared by the client and the
// server: every real-time frame is a JSON envelope carrying a type tag, an
// opaque payload, and a millisecond timestamp.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type constants. These are the only discriminants either side emits;
// anything else is routed to the dispatcher's unknown-type path.
const (
	TypeWorkflowUpdate    = "workflow_update"
	TypeNodeUpdate        = "node_update"
	TypePreviewRequest    = "preview_request"
	TypePreviewUpdate     = "preview_update"
	TypeError             = "error"
	TypeDocumentProcess   = "document_process"
	TypeURLProcess        = "url_process"
	TypeNotionProcess     = "notion_process"
	TypeConfluenceProcess = "confluence_process"
)

// Envelope is the canonical frame exchanged over the real-time channel.
// Payload stays raw until a consumer decodes it; intermediate layers
// (transport, channel, dispatch) never look inside it.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	SessionID string          `json:"sessionId,omitempty"`
}

// New constructs an envelope for the given type, marshalling the payload and
// stamping the current wall-clock time in milliseconds.
func New(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Envelope{
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Encode serializes the envelope to its wire form.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Parse decodes a wire frame back into an envelope. An unrecognized Type is
// not an error here; routing unknown types is the dispatcher's concern.
func Parse(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("envelope is missing a type")
	}
	return e, nil
}
