package capture

import "time"

// Backoff produces the reconnect delay sequence: initial delay grown by a
// constant multiplier per failed attempt, capped at a maximum. With the
// defaults the sequence is 2s, 3s, 4.5s, ... capped at 30s.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	current time.Duration
}

// NewBackoff returns a Backoff with the reconnect defaults.
func NewBackoff() *Backoff {
	return &Backoff{
		Initial:    2 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 1.5,
	}
}

// Next returns the delay to wait before the next attempt and advances the
// sequence.
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

// Reset restarts the sequence from the initial delay. Called after a
// successful connection so a later failure is treated as a fresh attempt.
func (b *Backoff) Reset() {
	b.current = 0
}
