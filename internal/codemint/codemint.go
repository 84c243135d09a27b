// Package codemint generates short, unambiguous invite codes for lobbies.
package codemint

import (
	"crypto/rand"
	"sync/atomic"
)

// Alphabet excludes visually/phonetically ambiguous characters: I, O, 0, 1.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const defaultLength = 4

const maxAttempts = 10

// Mint draws random invite codes and falls back to a deterministic,
// collision-free code after repeated collisions within a single process.
// The registry, not Mint, owns the final uniqueness check under lock.
type Mint struct {
	length   int
	fallback atomic.Uint64
}

// New returns a Mint producing codes of the given length. A length <= 0
// uses the default of 4 characters.
func New(length int) *Mint {
	if length <= 0 {
		length = defaultLength
	}
	return &Mint{length: length}
}

// Next draws a candidate code, retrying up to 10 times whenever isTaken
// reports a collision. On exhaustion it falls back to a monotonic
// counter mapped onto the alphabet, advanced until isTaken reports the
// code free, so a fallback never repeats within this Mint's lifetime
// and never shadows a code isTaken knows about. isTaken may be nil,
// meaning no known codes.
func (m *Mint) Next(isTaken func(code string) bool) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := randomCode(m.length)
		if err != nil {
			return "", err
		}
		if isTaken == nil || !isTaken(code) {
			return code, nil
		}
	}
	return m.fallbackCode(isTaken), nil
}

func randomCode(length int) (string, error) {
	idx := make([]byte, length)
	if _, err := rand.Read(idx); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range idx {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out), nil
}

// fallbackCode derives a code from a session-scoped monotonic counter so
// that repeated fallbacks within the same process never collide with
// each other, even though they are not drawn from crypto/rand. The
// counter keeps advancing past codes isTaken reports as live.
func (m *Mint) fallbackCode(isTaken func(code string) bool) string {
	for {
		n := m.fallback.Add(1)
		out := make([]byte, m.length)
		base := uint64(len(Alphabet))
		for i := m.length - 1; i >= 0; i-- {
			out[i] = Alphabet[n%base]
			n /= base
		}
		code := string(out)
		if isTaken == nil || !isTaken(code) {
			return code
		}
	}
}
