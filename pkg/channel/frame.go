package channel

import (
	"fmt"

	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
)

// Seal serializes an envelope into a wire frame, encrypting it when kp is
// non-nil. The server uses this directly; the client goes through Channel.
func Seal(e envelope.Envelope, kp ports.KeyProvider) ([]byte, error) {
	frame, err := e.Encode()
	if err != nil {
		return nil, err
	}
	if kp == nil {
		return frame, nil
	}
	sealed, err := encrypt(frame, kp.ActiveKey())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt frame: %w", err)
	}
	return sealed, nil
}

// Open parses a wire frame back into an envelope, decrypting it first when
// kp is non-nil.
func Open(raw []byte, kp ports.KeyProvider) (envelope.Envelope, error) {
	frame := raw
	if kp != nil {
		plain, err := decryptWithRotation(raw, kp.ActiveKey(), kp.FallbackKeys())
		if err != nil {
			return envelope.Envelope{}, err
		}
		frame = plain
	}
	return envelope.Parse(frame)
}
