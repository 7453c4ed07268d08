package transport

import "time"

// Backoff computes the geometric reconnect delay sequence. The delay grows
// by Multiplier after every failed cycle, is capped at Max, and is reset to
// Initial after a successful open.
//
// Growth is deterministic (no jitter): a single client reconnecting to a
// single endpoint does not need thundering-herd smearing, and tests assert
// the exact sequence.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	current time.Duration
}

// Next returns the delay for the upcoming attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	}
	d := b.current

	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.Max {
		next = b.Max
	}
	b.current = next

	return d
}

// Reset returns the sequence to its initial floor.
func (b *Backoff) Reset() {
	b.current = b.Initial
}

// Current reports the delay the next Next call would return.
func (b *Backoff) Current() time.Duration {
	if b.current == 0 {
		return b.Initial
	}
	return b.current
}
