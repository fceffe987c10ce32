package sessionid

import (
	"crypto/rand"
	"encoding/base64"
)

// tokenBytes is the amount of CSPRNG entropy per identifier. 48 bytes encode
// to a 64-character URL-safe string, keeping identifiers compatible with
// systems that expect a 64-character session key.
const tokenBytes = 48

// Generator produces a unique session identifier. Implementations must be
// safe for concurrent use and must return identifiers with enough entropy
// that collisions are not a practical concern.
type Generator func() string

// New returns a cryptographically random, URL-safe session identifier.
// crypto/rand never fails on supported platforms; an unreadable entropy
// source is a process-level fault and panics.
func New() string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("sessionid: entropy source unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Prefixed returns a Generator that prepends prefix to every identifier,
// for visually distinguishing keys in the backend.
func Prefixed(prefix string) Generator {
	return func() string {
		return prefix + New()
	}
}
