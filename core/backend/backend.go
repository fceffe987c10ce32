package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent from the backend, whether it
// never existed, expired, or was evicted.
var ErrNotFound = errors.New("session key not found in backend")

// Store is the key-value contract required by the session engine. A ttl of
// zero (or less) means "persist without expiry", used when the backend runs
// in LRU-delegated mode and governs eviction itself.
//
// Implementations must be safe for concurrent use. No retries are expected
// at this layer; transient errors propagate to the engine as-is.
type Store interface {
	// Get returns the stored bytes, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. ttl > 0 sets expiry, otherwise the value
	// is stored without one.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent stores value only when key does not exist, reporting
	// whether the write happened. Used to reserve freshly generated
	// session identifiers.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Touch resets the expiry of key without reading or rewriting it.
	Touch(ctx context.Context, key string, ttl time.Duration) error

	// GetAndTouch returns the stored bytes and resets the key expiry in a
	// single backend round trip, or ErrNotFound.
	GetAndTouch(ctx context.Context, key string, ttl time.Duration) ([]byte, error)
}
