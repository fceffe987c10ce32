package session

import (
	"errors"
	"fmt"
)

var (
	// ErrBackend wraps connectivity or I/O failures talking to the backend.
	// Unlike the recoverable invalid-session reasons this is never silently
	// converted into a fresh session: losing a write because the cache was
	// unreachable must surface as a request failure.
	ErrBackend = errors.New("session backend failure")

	// ErrTriggerWithReadHeavy is returned at construction when both the
	// timeout trigger and the read-heavy TTL refresh are configured. The two
	// optimizations are mutually exclusive.
	ErrTriggerWithReadHeavy = errors.New("timeout trigger and read-heavy TTL refresh are mutually exclusive")

	// ErrReadHeavyRequiresTTL is returned at construction when the read-heavy
	// TTL refresh is enabled without a timeout and backend TTLs, or together
	// with application-side expiry tracking.
	ErrReadHeavyRequiresTTL = errors.New("read-heavy TTL refresh requires a timeout and backend TTLs, without expiry tracking")

	// ErrPrefixWithGenerator is returned at construction when both a key
	// prefix and a custom identifier generator are configured. The prefix is
	// implemented as a generator, so only one can be supplied.
	ErrPrefixWithGenerator = errors.New("cannot combine a key prefix with a custom identifier generator")
)

// Reason is the closed set of recoverable causes for which an incoming
// session reference failed to resolve. Every reason results in a fresh empty
// session; the reason itself exists for observability.
type Reason int

const (
	// ReasonNoSessionCookie: no cookie was presented, or its signature did
	// not verify. Indistinguishable from a new visitor.
	ReasonNoSessionCookie Reason = iota + 1
	// ReasonNotInBackend: the identifier was well-formed and signed but the
	// backend has no record (expired, evicted, or the backend restarted).
	ReasonNotInBackend
	// ReasonDeserialization: the stored payload bytes did not decode.
	ReasonDeserialization
	// ReasonPayloadTimeout: the application-level expiry passed even though
	// the backend TTL did not evict the record (LRU-mode edge case).
	ReasonPayloadTimeout
	// ReasonPayloadLegacy: the payload carries an unsupported schema version.
	ReasonPayloadLegacy
)

// String returns a stable machine-friendly label for the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNoSessionCookie:
		return "no_session_cookie"
	case ReasonNotInBackend:
		return "not_in_backend"
	case ReasonDeserialization:
		return "deserialization_error"
	case ReasonPayloadTimeout:
		return "payload_timeout"
	case ReasonPayloadLegacy:
		return "payload_legacy"
	default:
		return "unknown"
	}
}

// InvalidSessionError describes why an incoming session reference was
// discarded. It is passed to the configured observer and never escapes the
// engine: the caller receives a fresh session instead.
type InvalidSessionError struct {
	Reason    Reason
	SessionID string
	Err       error
}

func (e *InvalidSessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid session (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid session (%s)", e.Reason)
}

func (e *InvalidSessionError) Unwrap() error { return e.Err }

// RawDeserializationError escapes the engine when a stored payload is
// corrupted and recovering with a fresh session has not been opted into
// (see WithDeserializedFailsNew). It carries the decode failure unmodified.
type RawDeserializationError struct {
	Err error
}

func (e *RawDeserializationError) Error() string {
	return fmt.Sprintf("session payload did not deserialize: %v", e.Err)
}

func (e *RawDeserializationError) Unwrap() error { return e.Err }
