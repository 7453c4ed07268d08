// Package realtime implements the Knowledge Window real-time sync layer:
// an encrypted WebSocket session with reconnect backoff, a type-keyed
// subscription registry, preview request/response correlation, and an
// optimistic workflow graph store.
//
// A minimal client looks like:
//
//	sess, err := realtime.New("wss://example.com/ws",
//		realtime.WithKeyProvider(ports.StaticKeys{Active: key}),
//		realtime.WithLogger(logger),
//	)
//	if err != nil { ... }
//	sess.Connect()
//	defer sess.Close()
//
//	sess.Previews().OnChange = func(nodeID string, st preview.State) { ... }
//	sess.Previews().Request("n1", "url", map[string]any{"url": u, "content": body})
//
// The server counterpart lives in internal/server and is started with the
// kwindow CLI.
package realtime
