package realtime_test

import (
	"fmt"
	"log"

	"github.com/kwindow/realtime"
	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
	"github.com/kwindow/realtime/pkg/preview"
)

// ExampleNew demonstrates assembling a session, subscribing to messages, and
// driving the optimistic workflow store. Compiled but not run: it needs a
// live backend at the given endpoint.
func ExampleNew() {
	sess, err := realtime.New("ws://localhost:8080/ws",
		realtime.WithConnectionStateHandler(func(connected bool) {
			fmt.Println("connected:", connected)
		}),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Close()

	// React to preview results as they are correlated back to their nodes.
	sess.Previews().OnChange = func(nodeID string, st preview.State) {
		fmt.Println(nodeID, st.Status)
	}

	// Custom message types can be observed through the registry.
	sub := sess.Registry().On(envelope.TypeDocumentProcess, func(e envelope.Envelope) {
		var status envelope.ProcessStatus
		if err := envelope.DecodePayload(e, &status); err == nil {
			fmt.Println("document", status.ID, status.Status)
		}
	})
	defer sub.Cancel()

	sess.Connect()

	// Changes apply locally first and replicate to every other session.
	if err := sess.Workflow().AddNode(envelope.Node{ID: "n1", Type: "url"}); err != nil {
		log.Fatal(err)
	}
	if err := sess.Previews().Request("n1", "url", map[string]any{
		"url": "https://example.com",
	}); err != nil {
		log.Fatal(err)
	}
}

// ExampleNew_encrypted enables frame encryption with a static 32-byte key
// shared with the backend.
func ExampleNew_encrypted() {
	key := make([]byte, 32) // distribute out of band
	sess, err := realtime.New("ws://localhost:8080/ws",
		realtime.WithKeyProvider(ports.StaticKeys{Active: key}),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Close()

	sess.Connect()
}
