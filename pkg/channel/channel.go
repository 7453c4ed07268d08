// Package channel wraps the transport with transparent AES-256-GCM frame
// encryption. Plaintext envelopes never reach the transport layer and
// ciphertext never reaches application handlers; everything between the
// envelope codec and the socket is opaque bytes.
package channel

import (
	"fmt"
	"log/slog"

	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
)

// FrameSender is the slice of the transport client the channel needs.
type FrameSender interface {
	Send(data []byte)
}

// Channel encrypts outbound envelopes and decrypts inbound frames. With a
// nil key provider it passes JSON through unmodified (the unencrypted
// deployment variant).
type Channel struct {
	transport FrameSender
	keys      ports.KeyProvider
	onReceive func(envelope.Envelope)
	onError   func(error)
	logger    *slog.Logger
}

// Option configures a Channel.
type Option func(*Channel)

// WithKeyProvider enables encryption using the given key source. The active
// key must be 32 bytes.
func WithKeyProvider(kp ports.KeyProvider) Option {
	return func(c *Channel) { c.keys = kp }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// WithErrorHandler registers a callback for dropped-frame reports.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Channel) { c.onError = fn }
}

// New creates a channel writing to the given transport and delivering
// decoded envelopes to onReceive. Wire Receive as the transport's OnMessage.
func New(transport FrameSender, onReceive func(envelope.Envelope), opts ...Option) (*Channel, error) {
	c := &Channel{
		transport: transport,
		onReceive: onReceive,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.keys != nil && len(c.keys.ActiveKey()) != KeySize {
		return nil, fmt.Errorf("active key must be %d bytes (AES-256)", KeySize)
	}
	return c, nil
}

// Send serializes and (when keyed) encrypts an envelope, then hands the
// frame to the transport. Implements ports.Sender.
func (c *Channel) Send(e envelope.Envelope) error {
	frame, err := Seal(e, c.keys)
	if err != nil {
		return err
	}
	c.transport.Send(frame)
	return nil
}

// Receive processes a raw inbound frame. A frame that fails decryption or
// parsing is dropped: the error is reported once and the corrupt bytes are
// never exposed to handlers or retried.
func (c *Channel) Receive(raw []byte) {
	e, err := Open(raw, c.keys)
	if err != nil {
		c.drop(err)
		return
	}
	c.onReceive(e)
}

func (c *Channel) drop(cause error) {
	c.logger.Warn("dropping inbound frame", "err", cause)
	if c.onError != nil {
		c.onError(fmt.Errorf("failed to process message: %w", cause))
	}
}
