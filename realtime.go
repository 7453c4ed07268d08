package realtime

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kwindow/realtime/pkg/channel"
	"github.com/kwindow/realtime/pkg/dispatch"
	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
	"github.com/kwindow/realtime/pkg/preview"
	"github.com/kwindow/realtime/pkg/transport"
	"github.com/kwindow/realtime/pkg/workflow"
)

// Version is the library version, stamped at release time.
var Version = "0.3.0"

// Session is the high-level entry point for the client side of the sync
// layer. It owns the transport, the secure channel, the dispatch registry,
// the preview correlator and the workflow store, constructed once and torn
// down with Close. There is deliberately no package-level shared instance;
// consumers pass the Session to whoever needs it.
type Session struct {
	id     string
	logger *slog.Logger

	transport *transport.Client
	channel   *channel.Channel
	registry  *dispatch.Registry
	previews  *preview.Correlator
	store     *workflow.Store

	// construction-time settings
	keys       ports.KeyProvider
	dialer     *websocket.Dialer
	backoff    transport.Config
	workflowID string
	onStatus   func(connected bool)
	onError    func(err error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithKeyProvider enables channel encryption with the given key source.
func WithKeyProvider(kp ports.KeyProvider) Option {
	return func(s *Session) { s.keys = kp }
}

// WithSessionID fixes the session identifier stamped on outbound envelopes
// (default: a fresh UUID).
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithWorkflowID names the canvas this session edits. Sessions sharing a
// workflow ID persist into the same server-side record; the session ID only
// identifies the sender. Empty targets the server's shared default workflow.
func WithWorkflowID(id string) Option {
	return func(s *Session) { s.workflowID = id }
}

// WithBackoff tunes the reconnect delay sequence.
func WithBackoff(initial, max time.Duration, multiplier float64) Option {
	return func(s *Session) {
		s.backoff.InitialDelay = initial
		s.backoff.MaxDelay = max
		s.backoff.Multiplier = multiplier
	}
}

// WithDialer overrides the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithConnectionStateHandler observes connectivity transitions, for the
// UI's degraded-connection indicator.
func WithConnectionStateHandler(fn func(connected bool)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// WithErrorHandler observes non-fatal transport and channel errors.
func WithErrorHandler(fn func(err error)) Option {
	return func(s *Session) { s.onError = fn }
}

// New assembles a session against the given ws:// endpoint. It does not
// dial; call Connect.
func New(url string, opts ...Option) (*Session, error) {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}

	s.registry = dispatch.NewRegistry(s.logger)

	s.backoff.URL = url
	s.backoff.Dialer = s.dialer
	s.transport = transport.NewClient(s.backoff, transport.Callbacks{
		OnMessage:    func(data []byte) { s.channel.Receive(data) },
		OnConnect:    func() { s.reportStatus(true) },
		OnDisconnect: func() { s.reportStatus(false) },
		OnError:      func(err error) { s.reportError(err) },
	}, s.logger)

	ch, err := channel.New(s.transport, s.registry.Dispatch,
		channel.WithKeyProvider(s.keys),
		channel.WithLogger(s.logger),
		channel.WithErrorHandler(s.reportError),
	)
	if err != nil {
		return nil, err
	}
	s.channel = ch

	sender := ports.SenderFunc(func(e envelope.Envelope) error {
		if e.SessionID == "" {
			e.SessionID = s.id
		}
		return s.channel.Send(e)
	})

	s.previews = preview.NewCorrelator(sender, s.logger)
	s.store = workflow.NewStore(sender, s.previews, s.logger,
		workflow.WithWorkflowID(s.workflowID))

	// Inbound wiring: previews and remote graph changes.
	s.registry.On(envelope.TypePreviewUpdate, s.previews.HandleUpdate)
	s.registry.On(envelope.TypeError, s.previews.HandleError)
	s.registry.On(envelope.TypeNodeUpdate, func(e envelope.Envelope) {
		var change envelope.NodeChange
		if err := envelope.DecodePayload(e, &change); err != nil {
			s.logger.Warn("bad node_update payload", "err", err)
			return
		}
		// Broadcasts for other canvases are not ours to apply.
		if change.WorkflowID != s.workflowID {
			return
		}
		s.store.ApplyRemote(change)
	})
	s.registry.On(envelope.TypeWorkflowUpdate, func(e envelope.Envelope) {
		var snap envelope.WorkflowSnapshot
		if err := envelope.DecodePayload(e, &snap); err != nil {
			s.logger.Warn("bad workflow_update payload", "err", err)
			return
		}
		if snap.WorkflowID != s.workflowID {
			return
		}
		s.store.ApplyRemoteWorkflow(snap)
	})

	return s, nil
}

// Connect starts the connection lifecycle. Returns immediately; progress is
// observable through WithConnectionStateHandler.
func (s *Session) Connect() {
	s.transport.Connect()
}

// Close tears the session down: cancels any pending reconnect and closes
// the socket cleanly. The session may be reconnected later with Connect.
func (s *Session) Close() {
	s.transport.Disconnect()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// IsConnected reports whether the socket is currently open.
func (s *Session) IsConnected() bool { return s.transport.IsConnected() }

// Registry exposes the subscription registry for custom message handlers.
func (s *Session) Registry() *dispatch.Registry { return s.registry }

// Previews exposes the preview correlator.
func (s *Session) Previews() *preview.Correlator { return s.previews }

// Workflow exposes the optimistic graph store.
func (s *Session) Workflow() *workflow.Store { return s.store }

// Send pushes a custom envelope through the secure channel, stamping the
// session ID when unset.
func (s *Session) Send(msgType string, payload any) error {
	e, err := envelope.New(msgType, payload)
	if err != nil {
		return err
	}
	if e.SessionID == "" {
		e.SessionID = s.id
	}
	return s.channel.Send(e)
}

func (s *Session) reportStatus(connected bool) {
	if s.onStatus != nil {
		s.onStatus(connected)
	}
}

func (s *Session) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
