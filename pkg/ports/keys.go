package ports

// KeyProvider supplies the symmetric key material for the secure channel.
// Key management (provisioning, rotation, exchange) is the caller's concern;
// the channel only consumes whatever this returns at construction time.
type KeyProvider interface {
	// ActiveKey returns the key used to encrypt new frames.
	// Must be 32 bytes for AES-256.
	ActiveKey() []byte

	// FallbackKeys returns older keys to try when decryption with the
	// active key fails. Enables zero-downtime key rotation.
	FallbackKeys() [][]byte
}

// StaticKeys is a KeyProvider backed by fixed byte slices.
type StaticKeys struct {
	Active   []byte
	Fallback [][]byte
}

// ActiveKey returns the active key.
func (s StaticKeys) ActiveKey() []byte { return s.Active }

// FallbackKeys returns the fallback keys.
func (s StaticKeys) FallbackKeys() [][]byte { return s.Fallback }
