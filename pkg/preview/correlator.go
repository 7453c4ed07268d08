// Package preview matches UI-initiated preview requests for workflow nodes
// to the asynchronous results the server eventually sends back, tolerating
// out-of-order, duplicate, and missing responses.
package preview

import (
	"log/slog"
	"sync"

	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
)

// Status is the per-node preview lifecycle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is the tracked preview state for one node.
type State struct {
	Status    Status
	RequestID uint64
	Preview   string
	Metadata  map[string]string
	Err       string
}

// Correlator owns per-node preview state. It is the only writer to it.
//
// Every request carries a monotonically increasing RequestID which the
// server echoes back; a response whose RequestID does not match the latest
// outstanding one for its node is stale and is ignored. Responses that omit
// the RequestID (older servers echo only nodeId) are accepted for whatever
// request is currently outstanding.
type Correlator struct {
	sender ports.Sender
	logger *slog.Logger

	mu      sync.Mutex
	states  map[string]*State
	nextSeq uint64

	// OnChange, when set, fires after every state transition so the UI can
	// re-render the affected node.
	OnChange func(nodeID string, st State)
}

// NewCorrelator creates a correlator emitting requests through sender.
func NewCorrelator(sender ports.Sender, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		sender: sender,
		logger: logger,
		states: make(map[string]*State),
	}
}

// Request marks the node as loading and emits a preview_request envelope.
// Re-requesting while a request is outstanding supersedes it: only the most
// recent request's result will be honored.
func (c *Correlator) Request(nodeID, nodeType string, config map[string]any) error {
	c.mu.Lock()
	c.nextSeq++
	seq := c.nextSeq
	st := &State{Status: StatusLoading, RequestID: seq}
	c.states[nodeID] = st
	snapshot := *st
	c.mu.Unlock()

	c.notify(nodeID, snapshot)

	e, err := envelope.New(envelope.TypePreviewRequest, envelope.PreviewRequest{
		NodeID:    nodeID,
		NodeType:  nodeType,
		RequestID: seq,
		Config:    config,
	})
	if err != nil {
		return err
	}
	return c.sender.Send(e)
}

// HandleUpdate consumes a preview_update envelope. Wire it into the
// dispatch registry for envelope.TypePreviewUpdate.
func (c *Correlator) HandleUpdate(e envelope.Envelope) {
	var res envelope.PreviewResult
	if err := envelope.DecodePayload(e, &res); err != nil {
		c.logger.Warn("bad preview_update payload", "err", err)
		return
	}

	c.mu.Lock()
	st, ok := c.accept(res.NodeID, res.RequestID)
	if !ok {
		c.mu.Unlock()
		return
	}
	st.Status = StatusSuccess
	st.Preview = res.Preview
	st.Metadata = res.Metadata
	snapshot := *st
	c.mu.Unlock()

	c.notify(res.NodeID, snapshot)
}

// HandleError consumes an error envelope. Errors without a nodeId are not
// preview errors and are left to other subscribers.
func (c *Correlator) HandleError(e envelope.Envelope) {
	var res envelope.ErrorPayload
	if err := envelope.DecodePayload(e, &res); err != nil {
		c.logger.Warn("bad error payload", "err", err)
		return
	}
	if res.NodeID == "" {
		return
	}

	c.mu.Lock()
	st, ok := c.accept(res.NodeID, res.RequestID)
	if !ok {
		c.mu.Unlock()
		return
	}
	st.Status = StatusError
	st.Err = res.Message
	snapshot := *st
	c.mu.Unlock()

	c.notify(res.NodeID, snapshot)
}

// accept decides whether a response belongs to the latest outstanding
// request for the node. Caller holds c.mu.
func (c *Correlator) accept(nodeID string, requestID uint64) (*State, bool) {
	st, ok := c.states[nodeID]
	if !ok {
		// Node deleted or no request outstanding; drop without effect.
		c.logger.Debug("preview response for untracked node", "node_id", nodeID)
		return nil, false
	}
	if st.Status != StatusLoading {
		c.logger.Debug("preview response with no outstanding request", "node_id", nodeID)
		return nil, false
	}
	if requestID != 0 && requestID != st.RequestID {
		c.logger.Debug("stale preview response ignored",
			"node_id", nodeID, "got", requestID, "want", st.RequestID)
		return nil, false
	}
	return st, true
}

// Forget drops all tracking for a node. Called when the node is deleted; a
// late response must not resurrect state for it.
func (c *Correlator) Forget(nodeID string) {
	c.mu.Lock()
	delete(c.states, nodeID)
	c.mu.Unlock()
}

// Get returns the tracked state for a node, or an idle zero state if the
// node is untracked.
func (c *Correlator) Get(nodeID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[nodeID]; ok {
		return *st
	}
	return State{Status: StatusIdle}
}

func (c *Correlator) notify(nodeID string, st State) {
	if c.OnChange != nil {
		c.OnChange(nodeID, st)
	}
}
