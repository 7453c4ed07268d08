package ports

import "github.com/kwindow/realtime/pkg/envelope"

// Sender pushes an envelope toward the server. The secure channel is the
// production implementation; tests substitute an in-memory recorder.
//
// Send never blocks: implementations either transmit immediately or queue
// for later delivery. A returned error means the envelope could not even be
// serialized or encrypted, not that delivery failed.
type Sender interface {
	Send(e envelope.Envelope) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(e envelope.Envelope) error

// Send calls f(e).
func (f SenderFunc) Send(e envelope.Envelope) error { return f(e) }
