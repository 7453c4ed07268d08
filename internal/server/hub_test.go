package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/kwindow/realtime/internal/logging"
)

// newHubConn dials a server-side websocket that discards everything sent to
// it, giving tests a real *websocket.Conn to register with the hub.
func newHubConn(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func discardServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHub_SendToRacesUnregisterWithoutPanic(t *testing.T) {
	srv := discardServer(t)
	h := NewHub(logging.NewNop(), NewMetrics(prometheus.NewRegistry()))

	// Preview replies run on their own goroutines, so a SendTo can land at
	// any point of a client's teardown. A send hitting the closed channel
	// would panic and fail the test.
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("c%d", i)
		h.register(id, newHubConn(t, srv))

		done := make(chan struct{})
		go func() {
			for j := 0; j < 200; j++ {
				h.SendTo(id, []byte("frame"))
			}
			close(done)
		}()
		h.unregister(id)
		<-done
	}
	require.Equal(t, 0, h.Count())
}
