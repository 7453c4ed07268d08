package realtime_test

import (
	"crypto/rand"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwindow/realtime"
	"github.com/kwindow/realtime/internal/logging"
	"github.com/kwindow/realtime/internal/server"
	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
	"github.com/kwindow/realtime/pkg/preview"
)

// startBackend brings up a full backend and returns its ws:// endpoint plus
// the shared encryption keys.
func startBackend(t *testing.T) (string, ports.KeyProvider) {
	t.Helper()

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		t.Fatal(err)
	}
	keys := ports.StaticKeys{Active: key}

	s := server.New(logging.NewNop(),
		server.WithRegisterer(prometheus.NewRegistry()),
		server.WithKeyProvider(keys),
	)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", keys
}

func newSession(t *testing.T, url string, keys ports.KeyProvider, opts ...realtime.Option) *realtime.Session {
	t.Helper()
	opts = append([]realtime.Option{
		realtime.WithLogger(logging.NewNop()),
		realtime.WithKeyProvider(keys),
		realtime.WithBackoff(20*time.Millisecond, 200*time.Millisecond, 1.5),
	}, opts...)
	sess, err := realtime.New(url, opts...)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func TestSession_PreviewRequestedOfflineCompletesAfterConnect(t *testing.T) {
	url, keys := startBackend(t)
	sess := newSession(t, url, keys)

	// Request before any connection exists: the frame queues and the
	// transport dials on its own.
	err := sess.Previews().Request("n1", "url", map[string]any{
		"url":     "https://example.com",
		"content": "Example article body",
	})
	require.NoError(t, err)
	assert.Equal(t, preview.StatusLoading, sess.Previews().Get("n1").Status)

	require.Eventually(t, func() bool {
		return sess.Previews().Get("n1").Status == preview.StatusSuccess
	}, 3*time.Second, 10*time.Millisecond)

	st := sess.Previews().Get("n1")
	assert.Equal(t, "Example article body", st.Preview)
	assert.Equal(t, "url", st.Metadata["source"])
	assert.True(t, sess.IsConnected())
}

func TestSession_UnsupportedNodeTypeEndsInError(t *testing.T) {
	url, keys := startBackend(t)
	sess := newSession(t, url, keys)
	sess.Connect()

	require.NoError(t, sess.Previews().Request("n2", "hologram", nil))

	require.Eventually(t, func() bool {
		return sess.Previews().Get("n2").Status == preview.StatusError
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, sess.Previews().Get("n2").Err, "hologram")
}

func TestSession_NodeChangesReachOtherSessions(t *testing.T) {
	url, keys := startBackend(t)
	a := newSession(t, url, keys)
	b := newSession(t, url, keys)
	a.Connect()
	b.Connect()
	require.Eventually(t, func() bool {
		return a.IsConnected() && b.IsConnected()
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Workflow().AddNode(envelope.Node{
		ID:       "n1",
		Type:     "pdf",
		Position: envelope.Position{X: 10, Y: 20},
	}))

	require.Eventually(t, func() bool {
		_, ok := b.Workflow().Node("n1")
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	got, _ := b.Workflow().Node("n1")
	assert.Equal(t, "pdf", got.Type)
	assert.Equal(t, 10.0, got.Position.X)

	// The change must not bounce back and duplicate on the originator.
	nodes, _ := a.Workflow().Snapshot()
	assert.Len(t, nodes, 1)
}

func TestSession_EdgeChangesReachOtherSessions(t *testing.T) {
	url, keys := startBackend(t)
	a := newSession(t, url, keys)
	b := newSession(t, url, keys)
	a.Connect()
	b.Connect()
	require.Eventually(t, func() bool {
		return a.IsConnected() && b.IsConnected()
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Workflow().AddNode(envelope.Node{ID: "src", Type: "url"}))
	require.NoError(t, a.Workflow().AddNode(envelope.Node{ID: "dst", Type: "processor"}))
	edge, err := a.Workflow().Connect(envelope.Edge{SourceID: "src", TargetID: "dst"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, edges := b.Workflow().Snapshot()
		return len(edges) == 1
	}, 3*time.Second, 10*time.Millisecond)

	_, edges := b.Workflow().Snapshot()
	assert.Equal(t, edge.ID, edges[0].ID)
}

func TestSession_IgnoresChangesForOtherCanvases(t *testing.T) {
	url, keys := startBackend(t)
	a := newSession(t, url, keys)
	b := newSession(t, url, keys, realtime.WithWorkflowID("canvas-7"))
	a.Connect()
	b.Connect()
	require.Eventually(t, func() bool {
		return a.IsConnected() && b.IsConnected()
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Workflow().AddNode(envelope.Node{ID: "n1", Type: "url"}))

	// a edits the default canvas; b is scoped elsewhere and must not apply it.
	assert.Never(t, func() bool {
		_, ok := b.Workflow().Node("n1")
		return ok
	}, 300*time.Millisecond, 25*time.Millisecond)
}

func TestSession_ConnectionStateHandlerObservesLifecycle(t *testing.T) {
	url, keys := startBackend(t)

	var mu sync.Mutex
	var transitions []bool
	sess := newSession(t, url, keys,
		realtime.WithConnectionStateHandler(func(connected bool) {
			mu.Lock()
			transitions = append(transitions, connected)
			mu.Unlock()
		}),
	)

	sess.Connect()
	require.Eventually(t, sess.IsConnected, 3*time.Second, 10*time.Millisecond)

	sess.Close()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, transitions)
}

func TestSession_StampsSessionIDOnOutboundEnvelopes(t *testing.T) {
	url, keys := startBackend(t)
	sess := newSession(t, url, keys, realtime.WithSessionID("canvas-7"))
	assert.Equal(t, "canvas-7", sess.ID())
}
