// Package workflow holds the in-process node/edge graph as edited on the
// canvas. Mutations apply locally first (optimistic), then an envelope goes
// out so the server can persist and broadcast; no acknowledgment is awaited
// and there is no rollback path.
package workflow

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
)

// ErrNodeExists is returned when adding a node whose ID is already taken.
var ErrNodeExists = fmt.Errorf("node already exists")

// ErrNodeNotFound is returned when an operation references a missing node.
var ErrNodeNotFound = fmt.Errorf("node not found")

// ErrEdgeNotFound is returned when disconnecting an unknown edge.
var ErrEdgeNotFound = fmt.Errorf("edge not found")

// PreviewTracker is the slice of the preview correlator the store needs:
// deleting a node clears its outstanding preview state.
type PreviewTracker interface {
	Forget(nodeID string)
}

// Store is the client-authoritative graph model.
type Store struct {
	sender   ports.Sender
	previews PreviewTracker
	logger   *slog.Logger
	workflow string

	mu    sync.Mutex
	nodes map[string]envelope.Node
	edges map[string]envelope.Edge
}

// Option configures a Store.
type Option func(*Store)

// WithWorkflowID scopes every emitted change to a named workflow, so two
// clients editing the same canvas persist into the same server-side record.
// Empty (the default) targets the server's shared default workflow.
func WithWorkflowID(id string) Option {
	return func(s *Store) { s.workflow = id }
}

// NewStore creates an empty graph emitting change envelopes through sender.
// previews may be nil when no preview correlator is attached.
func NewStore(sender ports.Sender, previews PreviewTracker, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		sender:   sender,
		previews: previews,
		logger:   logger,
		nodes:    make(map[string]envelope.Node),
		edges:    make(map[string]envelope.Edge),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNode inserts a node and notifies the server.
func (s *Store) AddNode(n envelope.Node) error {
	s.mu.Lock()
	if _, ok := s.nodes[n.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeExists, n.ID)
	}
	s.nodes[n.ID] = n
	s.mu.Unlock()

	return s.emitNodeChange(envelope.ActionNodeAdded, n)
}

// UpdateNode replaces a node (position drag, data edit) and notifies the server.
func (s *Store) UpdateNode(n envelope.Node) error {
	s.mu.Lock()
	if _, ok := s.nodes[n.ID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, n.ID)
	}
	s.nodes[n.ID] = n
	s.mu.Unlock()

	return s.emitNodeChange(envelope.ActionNodeUpdated, n)
}

// DeleteNode removes a node, every edge touching it, and any outstanding
// preview state for it, then notifies the server.
func (s *Store) DeleteNode(id string) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(s.nodes, id)
	for edgeID, e := range s.edges {
		if e.SourceID == id || e.TargetID == id {
			delete(s.edges, edgeID)
		}
	}
	s.mu.Unlock()

	if s.previews != nil {
		s.previews.Forget(id)
	}
	return s.emitNodeChange(envelope.ActionNodeDeleted, n)
}

// Connect adds an edge between two existing nodes and notifies the server.
// The edge ID is generated when empty.
func (s *Store) Connect(e envelope.Edge) (envelope.Edge, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	s.mu.Lock()
	if _, ok := s.nodes[e.SourceID]; !ok {
		s.mu.Unlock()
		return envelope.Edge{}, fmt.Errorf("%w: source %s", ErrNodeNotFound, e.SourceID)
	}
	if _, ok := s.nodes[e.TargetID]; !ok {
		s.mu.Unlock()
		return envelope.Edge{}, fmt.Errorf("%w: target %s", ErrNodeNotFound, e.TargetID)
	}
	s.edges[e.ID] = e
	s.mu.Unlock()

	return e, s.emitEdgeChange(envelope.ActionEdgeAdded, e)
}

// Disconnect removes an edge and notifies the server.
func (s *Store) Disconnect(edgeID string) error {
	s.mu.Lock()
	e, ok := s.edges[edgeID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, edgeID)
	}
	delete(s.edges, edgeID)
	s.mu.Unlock()

	return s.emitEdgeChange(envelope.ActionEdgeDeleted, e)
}

// Node returns a node by ID.
func (s *Store) Node(id string) (envelope.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	return n, ok
}

// Snapshot returns a copy of the full graph.
func (s *Store) Snapshot() ([]envelope.Node, []envelope.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]envelope.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	edges := make([]envelope.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, e)
	}
	return nodes, edges
}

// ApplyRemote merges a node change broadcast by the server on behalf of
// another client. No envelope is emitted back (that would echo forever).
func (s *Store) ApplyRemote(change envelope.NodeChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch change.Action {
	case envelope.ActionNodeAdded, envelope.ActionNodeUpdated:
		s.nodes[change.Node.ID] = change.Node
	case envelope.ActionNodeDeleted:
		delete(s.nodes, change.Node.ID)
		for edgeID, e := range s.edges {
			if e.SourceID == change.Node.ID || e.TargetID == change.Node.ID {
				delete(s.edges, edgeID)
			}
		}
	default:
		s.logger.Debug("ignoring remote node change", "action", change.Action)
	}
}

// ApplyRemoteWorkflow merges an edge change or full snapshot broadcast by
// the server on behalf of another client.
func (s *Store) ApplyRemoteWorkflow(snap envelope.WorkflowSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case snap.Action == envelope.ActionEdgeAdded && snap.Edge != nil:
		s.edges[snap.Edge.ID] = *snap.Edge
	case snap.Action == envelope.ActionEdgeDeleted && snap.Edge != nil:
		delete(s.edges, snap.Edge.ID)
	case snap.Nodes != nil || snap.Edges != nil:
		s.nodes = make(map[string]envelope.Node, len(snap.Nodes))
		for _, n := range snap.Nodes {
			s.nodes[n.ID] = n
		}
		s.edges = make(map[string]envelope.Edge, len(snap.Edges))
		for _, e := range snap.Edges {
			s.edges[e.ID] = e
		}
	default:
		s.logger.Debug("ignoring remote workflow change", "action", snap.Action)
	}
}

func (s *Store) emitNodeChange(action string, n envelope.Node) error {
	e, err := envelope.New(envelope.TypeNodeUpdate, envelope.NodeChange{
		Action:     action,
		WorkflowID: s.workflow,
		Node:       n,
	})
	if err != nil {
		return err
	}
	return s.sender.Send(e)
}

func (s *Store) emitEdgeChange(action string, edge envelope.Edge) error {
	e, err := envelope.New(envelope.TypeWorkflowUpdate, envelope.WorkflowSnapshot{
		Action:     action,
		WorkflowID: s.workflow,
		Edge:       &edge,
	})
	if err != nil {
		return err
	}
	return s.sender.Send(e)
}
