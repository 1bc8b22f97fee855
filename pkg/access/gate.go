// Package access implements the optional password gate in front of the chat.
package access

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"
	"unicode"
)

const DefaultMaxAttempts = 3

// Normalize keeps letters and digits only, lower-cased.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Gate checks passwords and counts failures.
type Gate struct {
	mu          sync.Mutex
	digest      [32]byte
	maxAttempts int
	failures    int
}

// NewGate returns nil when password is empty after normalisation.
func NewGate(password string, maxAttempts int) *Gate {
	norm := Normalize(password)
	if norm == "" {
		return nil
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Gate{digest: sha256.Sum256([]byte(norm)), maxAttempts: maxAttempts}
}

// Check compares in constant time. Both sides are hashed so the comparison
// does not leak the password length.
func (g *Gate) Check(candidate string) bool {
	sum := sha256.Sum256([]byte(Normalize(candidate)))
	ok := subtle.ConstantTimeCompare(sum[:], g.digest[:]) == 1
	g.mu.Lock()
	defer g.mu.Unlock()
	if !ok {
		g.failures++
	}
	return ok
}

// Exhausted reports whether the failure limit was reached.
func (g *Gate) Exhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures >= g.maxAttempts
}

func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.maxAttempts - g.failures; n > 0 {
		return n
	}
	return 0
}
