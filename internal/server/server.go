// Package server is the real-time backend: it upgrades /ws connections into
// the hub, routes inbound envelopes (preview requests, node and workflow
// updates, ingestion messages), and serves the plain HTTP upload/search
// endpoints next to them.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kwindow/realtime/pkg/adapters/memory"
	redisadapter "github.com/kwindow/realtime/pkg/adapters/redis"
	"github.com/kwindow/realtime/pkg/channel"
	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
)

// defaultWorkflowID groups changes from clients that do not name a target
// workflow in their change payloads.
const defaultWorkflowID = "default"

// Server wires the hub, the stores, and the node processors together.
type Server struct {
	logger     *slog.Logger
	hub        *Hub
	metrics    *Metrics
	keys       ports.KeyProvider
	workflows  ports.WorkflowStore
	documents  ports.DocumentStore
	processors map[string]Processor
	bridge     *redisadapter.Bridge
	instanceID []byte
	upgrader   websocket.Upgrader
}

// Option configures the server.
type Option func(*Server)

// WithKeyProvider enables frame encryption on the WebSocket endpoint.
func WithKeyProvider(kp ports.KeyProvider) Option {
	return func(s *Server) { s.keys = kp }
}

// WithWorkflowStore replaces the default in-memory workflow store.
func WithWorkflowStore(st ports.WorkflowStore) Option {
	return func(s *Server) { s.workflows = st }
}

// WithDocumentStore replaces the default in-memory document store.
func WithDocumentStore(st ports.DocumentStore) Option {
	return func(s *Server) { s.documents = st }
}

// WithProcessor registers or overrides the processor for a node type.
func WithProcessor(nodeType string, p Processor) Option {
	return func(s *Server) { s.processors[nodeType] = p }
}

// WithBridge fans broadcasts out across server instances via Redis pub/sub.
func WithBridge(b *redisadapter.Bridge) Option {
	return func(s *Server) { s.bridge = b }
}

// WithRegisterer sets the Prometheus registry (default: the global one).
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.metrics = NewMetrics(reg) }
}

// New creates a server. Call Handler for the HTTP surface and Start to
// attach the cross-instance bridge, if any.
func New(logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:     logger,
		workflows:  memory.NewWorkflowStore(),
		documents:  memory.NewDocumentStore(),
		processors: defaultProcessors(),
		instanceID: []byte(uuid.NewString()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.DefaultRegisterer)
	}
	s.hub = NewHub(logger, s.metrics)
	return s
}

// Start subscribes to the cross-instance bridge until ctx is cancelled.
// A no-op without a bridge.
func (s *Server) Start(ctx context.Context) {
	if s.bridge == nil {
		return
	}
	s.bridge.Subscribe(ctx, func(payload []byte) {
		// Frames are prefixed with the publishing instance's ID so our own
		// publishes don't come back around as duplicates.
		origin, frame, ok := bytes.Cut(payload, []byte{'|'})
		if !ok || bytes.Equal(origin, s.instanceID) {
			return
		}
		s.hub.Broadcast(frame, "")
	})
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": s.hub.Count(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents/upload", s.handleUpload)
		r.Post("/search/similarity", s.handleSearch)
		r.Get("/workflows", s.handleListWorkflows)
		r.Get("/workflows/{id}", s.handleGetWorkflow)
	})

	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "err", err)
		return
	}

	clientID := uuid.NewString()
	s.hub.register(clientID, conn)
	defer s.hub.unregister(clientID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", "client_id", clientID, "err", err)
			}
			return
		}
		s.handleFrame(r.Context(), clientID, raw)
	}
}

func (s *Server) handleFrame(ctx context.Context, clientID string, raw []byte) {
	e, err := channel.Open(raw, s.keys)
	if err != nil {
		s.logger.Warn("dropping inbound frame", "client_id", clientID, "err", err)
		s.sendError(clientID, "", 0, "failed to process message")
		return
	}

	s.metrics.MessagesTotal.WithLabelValues(e.Type).Inc()

	switch e.Type {
	case envelope.TypePreviewRequest:
		go s.handlePreview(ctx, clientID, e)
	case envelope.TypeNodeUpdate:
		s.handleNodeUpdate(ctx, clientID, e, raw)
	case envelope.TypeWorkflowUpdate:
		s.handleWorkflowUpdate(ctx, clientID, e, raw)
	case envelope.TypeDocumentProcess, envelope.TypeURLProcess,
		envelope.TypeNotionProcess, envelope.TypeConfluenceProcess:
		go s.handleIngest(ctx, clientID, e)
	default:
		s.logger.Info("unhandled message type", "type", e.Type, "client_id", clientID)
	}
}

func (s *Server) handlePreview(ctx context.Context, clientID string, e envelope.Envelope) {
	var req envelope.PreviewRequest
	if err := envelope.DecodePayload(e, &req); err != nil {
		s.logger.Warn("bad preview_request payload", "err", err)
		s.sendError(clientID, "", 0, "malformed preview request")
		return
	}

	proc, ok := s.processors[req.NodeType]
	if !ok {
		s.sendError(clientID, req.NodeID, req.RequestID,
			fmt.Sprintf("unsupported node type: %s", req.NodeType))
		return
	}

	start := time.Now()
	text, meta, err := proc.Preview(ctx, req.Config)
	s.metrics.PreviewDuration.WithLabelValues(req.NodeType).Observe(time.Since(start).Seconds())

	if err != nil {
		s.sendError(clientID, req.NodeID, req.RequestID, err.Error())
		return
	}

	s.sendTo(clientID, envelope.TypePreviewUpdate, envelope.PreviewResult{
		NodeID:    req.NodeID,
		RequestID: req.RequestID,
		Preview:   text,
		Metadata:  meta,
	})
}

func (s *Server) handleNodeUpdate(ctx context.Context, clientID string, e envelope.Envelope, raw []byte) {
	var change envelope.NodeChange
	if err := envelope.DecodePayload(e, &change); err != nil {
		s.logger.Warn("bad node_update payload", "err", err)
		return
	}

	if err := s.applyNodeChange(ctx, workflowID(change.WorkflowID), change); err != nil {
		s.logger.Error("failed to persist node change", "err", err)
	}
	s.fanOut(ctx, raw, clientID)
}

func (s *Server) handleWorkflowUpdate(ctx context.Context, clientID string, e envelope.Envelope, raw []byte) {
	var snap envelope.WorkflowSnapshot
	if err := envelope.DecodePayload(e, &snap); err != nil {
		s.logger.Warn("bad workflow_update payload", "err", err)
		return
	}

	if err := s.applyWorkflowChange(ctx, workflowID(snap.WorkflowID), snap); err != nil {
		s.logger.Error("failed to persist workflow change", "err", err)
	}
	s.fanOut(ctx, raw, clientID)
}

func (s *Server) handleIngest(ctx context.Context, clientID string, e envelope.Envelope) {
	var req envelope.ProcessRequest
	if err := envelope.DecodePayload(e, &req); err != nil {
		s.logger.Warn("bad ingest payload", "type", e.Type, "err", err)
		s.sendError(clientID, "", 0, "malformed ingest request")
		return
	}

	source := map[string]string{
		envelope.TypeDocumentProcess:   "document",
		envelope.TypeURLProcess:        "url",
		envelope.TypeNotionProcess:     "notion",
		envelope.TypeConfluenceProcess: "confluence",
	}[e.Type]

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	rec := &ports.DocumentRecord{
		ID:         req.ID,
		Title:      req.Title,
		Content:    req.Content,
		SourceType: source,
		SourceURL:  req.URL,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if err := s.documents.Save(ctx, rec); err != nil {
		s.logger.Error("failed to store document", "err", err)
		s.sendError(clientID, "", 0, "failed to store document")
		return
	}

	status, err := envelope.New(e.Type, envelope.ProcessStatus{
		ID:       rec.ID,
		Source:   source,
		Status:   "completed",
		Progress: 100,
	})
	if err != nil {
		return
	}
	frame, err := channel.Seal(status, s.keys)
	if err != nil {
		return
	}
	s.hub.Broadcast(frame, "")
	s.publish(ctx, frame)
}

// applyNodeChange merges a single node mutation into the stored workflow.
func (s *Server) applyNodeChange(ctx context.Context, id string, change envelope.NodeChange) error {
	rec, err := s.loadOrCreate(ctx, id)
	if err != nil {
		return err
	}

	switch change.Action {
	case envelope.ActionNodeAdded, envelope.ActionNodeUpdated:
		replaced := false
		for i, n := range rec.Nodes {
			if n.ID == change.Node.ID {
				rec.Nodes[i] = change.Node
				replaced = true
				break
			}
		}
		if !replaced {
			rec.Nodes = append(rec.Nodes, change.Node)
		}
	case envelope.ActionNodeDeleted:
		nodes := rec.Nodes[:0]
		for _, n := range rec.Nodes {
			if n.ID != change.Node.ID {
				nodes = append(nodes, n)
			}
		}
		rec.Nodes = nodes
		edges := rec.Edges[:0]
		for _, edge := range rec.Edges {
			if edge.SourceID != change.Node.ID && edge.TargetID != change.Node.ID {
				edges = append(edges, edge)
			}
		}
		rec.Edges = edges
	default:
		return fmt.Errorf("unknown node action: %s", change.Action)
	}

	rec.UpdatedAt = time.Now().UnixMilli()
	return s.workflows.Save(ctx, rec)
}

// applyWorkflowChange merges an edge mutation or a full snapshot.
func (s *Server) applyWorkflowChange(ctx context.Context, id string, snap envelope.WorkflowSnapshot) error {
	rec, err := s.loadOrCreate(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case snap.Action == envelope.ActionEdgeAdded && snap.Edge != nil:
		rec.Edges = append(rec.Edges, *snap.Edge)
	case snap.Action == envelope.ActionEdgeDeleted && snap.Edge != nil:
		edges := rec.Edges[:0]
		for _, edge := range rec.Edges {
			if edge.ID != snap.Edge.ID {
				edges = append(edges, edge)
			}
		}
		rec.Edges = edges
	case snap.Nodes != nil || snap.Edges != nil:
		rec.Nodes = snap.Nodes
		rec.Edges = snap.Edges
	default:
		return fmt.Errorf("empty workflow update")
	}

	rec.UpdatedAt = time.Now().UnixMilli()
	return s.workflows.Save(ctx, rec)
}

func (s *Server) loadOrCreate(ctx context.Context, id string) (*ports.WorkflowRecord, error) {
	rec, err := s.workflows.Load(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ports.ErrWorkflowNotFound) {
		return nil, err
	}
	return &ports.WorkflowRecord{ID: id, Name: id}, nil
}

// fanOut re-broadcasts a client's frame to every other attached client and
// across the bridge. The originating client already applied the change
// optimistically; echoing it back would double-apply.
func (s *Server) fanOut(ctx context.Context, raw []byte, exceptID string) {
	s.hub.Broadcast(raw, exceptID)
	s.publish(ctx, raw)
}

func (s *Server) publish(ctx context.Context, frame []byte) {
	if s.bridge == nil {
		return
	}
	payload := append(append([]byte{}, s.instanceID...), '|')
	payload = append(payload, frame...)
	if err := s.bridge.Publish(ctx, payload); err != nil {
		s.logger.Warn("bridge publish failed", "err", err)
	}
}

func (s *Server) sendTo(clientID, msgType string, payload any) {
	e, err := envelope.New(msgType, payload)
	if err != nil {
		s.logger.Error("failed to build envelope", "type", msgType, "err", err)
		return
	}
	frame, err := channel.Seal(e, s.keys)
	if err != nil {
		s.logger.Error("failed to seal envelope", "type", msgType, "err", err)
		return
	}
	s.hub.SendTo(clientID, frame)
}

func (s *Server) sendError(clientID, nodeID string, requestID uint64, msg string) {
	s.sendTo(clientID, envelope.TypeError, envelope.ErrorPayload{
		NodeID:    nodeID,
		RequestID: requestID,
		Message:   msg,
	})
}

// workflowID resolves the canvas a change targets. The envelope's sessionId
// identifies the sender, never the workflow: two sessions editing one canvas
// must land in one record.
func workflowID(id string) string {
	if id == "" {
		return defaultWorkflowID
	}
	return id
}

// HTTP endpoints

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	rec := &ports.DocumentRecord{
		ID:         uuid.NewString(),
		Title:      title,
		Content:    string(content),
		SourceType: "upload",
		Metadata:   map[string]string{"filename": header.Filename},
		CreatedAt:  time.Now().UnixMilli(),
	}
	if err := s.documents.Save(r.Context(), rec); err != nil {
		s.logger.Error("failed to store upload", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}

	// Tell attached canvases a new document exists.
	if status, err := envelope.New(envelope.TypeDocumentProcess, envelope.ProcessStatus{
		ID:       rec.ID,
		Source:   "upload",
		Status:   "completed",
		Progress: 100,
		Message:  rec.Title,
	}); err == nil {
		if frame, err := channel.Seal(status, s.keys); err == nil {
			s.hub.Broadcast(frame, "")
			s.publish(r.Context(), frame)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": rec.ID, "title": rec.Title})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.workflows.Load(r.Context(), id)
	if errors.Is(err, ports.ErrWorkflowNotFound) {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load workflow")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	ids, err := s.workflows.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": ids})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
