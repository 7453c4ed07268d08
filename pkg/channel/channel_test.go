package channel_test

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwindow/realtime/internal/logging"
	"github.com/kwindow/realtime/pkg/channel"
	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
)

// frameRecorder captures frames handed to the transport layer.
type frameRecorder struct {
	frames [][]byte
}

func (r *frameRecorder) Send(data []byte) {
	r.frames = append(r.frames, data)
}

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, channel.KeySize)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func newTestEnvelope(t *testing.T) envelope.Envelope {
	t.Helper()
	e, err := envelope.New(envelope.TypePreviewUpdate, envelope.PreviewResult{
		NodeID:  "n1",
		Preview: "some text",
	})
	require.NoError(t, err)
	return e
}

func TestChannel_EncryptedRoundtrip(t *testing.T) {
	key := generateKey(t)
	recorder := &frameRecorder{}

	var received []envelope.Envelope
	ch, err := channel.New(recorder, func(e envelope.Envelope) { received = append(received, e) },
		channel.WithKeyProvider(ports.StaticKeys{Active: key}),
		channel.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)

	orig := newTestEnvelope(t)
	require.NoError(t, ch.Send(orig))
	require.Len(t, recorder.frames, 1)

	// The wire frame must not contain the plaintext.
	assert.NotContains(t, string(recorder.frames[0]), "some text")
	assert.NotContains(t, string(recorder.frames[0]), envelope.TypePreviewUpdate)

	// Feeding the ciphertext back in yields the original envelope.
	ch.Receive(recorder.frames[0])
	require.Len(t, received, 1)
	assert.Equal(t, orig.Type, received[0].Type)
	assert.JSONEq(t, string(orig.Payload), string(received[0].Payload))
}

func TestChannel_PlaintextModeRoundtrip(t *testing.T) {
	recorder := &frameRecorder{}

	var received []envelope.Envelope
	ch, err := channel.New(recorder, func(e envelope.Envelope) { received = append(received, e) },
		channel.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)

	orig := newTestEnvelope(t)
	require.NoError(t, ch.Send(orig))
	require.Len(t, recorder.frames, 1)
	assert.Contains(t, string(recorder.frames[0]), "some text")

	ch.Receive(recorder.frames[0])
	require.Len(t, received, 1)
	assert.Equal(t, orig.Type, received[0].Type)
}

func TestChannel_KeyRotationFallback(t *testing.T) {
	oldKey := generateKey(t)
	newKey := generateKey(t)

	// A frame sealed under the old key...
	sealed, err := channel.Seal(newTestEnvelope(t), ports.StaticKeys{Active: oldKey})
	require.NoError(t, err)

	// ...still opens on a channel whose active key has rotated.
	var received []envelope.Envelope
	ch, err := channel.New(&frameRecorder{}, func(e envelope.Envelope) { received = append(received, e) },
		channel.WithKeyProvider(ports.StaticKeys{Active: newKey, Fallback: [][]byte{oldKey}}),
		channel.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)

	ch.Receive(sealed)
	assert.Len(t, received, 1)
}

func TestChannel_CorruptFrameDroppedAndReported(t *testing.T) {
	key := generateKey(t)

	var received []envelope.Envelope
	var errs []error
	ch, err := channel.New(&frameRecorder{}, func(e envelope.Envelope) { received = append(received, e) },
		channel.WithKeyProvider(ports.StaticKeys{Active: key}),
		channel.WithErrorHandler(func(err error) { errs = append(errs, err) }),
		channel.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)

	ch.Receive([]byte("definitely not ciphertext"))

	assert.Empty(t, received)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "failed to process message")
}

func TestChannel_WrongKeyFrameDropped(t *testing.T) {
	sealed, err := channel.Seal(newTestEnvelope(t), ports.StaticKeys{Active: generateKey(t)})
	require.NoError(t, err)

	var received []envelope.Envelope
	ch, err := channel.New(&frameRecorder{}, func(e envelope.Envelope) { received = append(received, e) },
		channel.WithKeyProvider(ports.StaticKeys{Active: generateKey(t)}),
		channel.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)

	ch.Receive(sealed)
	assert.Empty(t, received)
}

func TestChannel_UnparseablePlaintextDropped(t *testing.T) {
	var received []envelope.Envelope
	var errs []error
	ch, err := channel.New(&frameRecorder{}, func(e envelope.Envelope) { received = append(received, e) },
		channel.WithErrorHandler(func(err error) { errs = append(errs, err) }),
		channel.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)

	ch.Receive([]byte("{broken json"))

	assert.Empty(t, received)
	assert.Len(t, errs, 1)
}

func TestChannel_RejectsShortKey(t *testing.T) {
	_, err := channel.New(&frameRecorder{}, func(envelope.Envelope) {},
		channel.WithKeyProvider(ports.StaticKeys{Active: []byte("too short")}),
	)
	assert.Error(t, err)
}
