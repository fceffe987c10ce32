package session

import (
	"context"
	"time"

	"github.com/dmitrymomot/redisession/core/payload"
	"github.com/dmitrymomot/redisession/core/sessionid"
)

// Config holds session manager configuration. Use the functional options to
// modify it; the zero value is completed by defaultConfig.
type Config struct {
	// Timing
	Timeout        time.Duration // Idle timeout; zero delegates expiry entirely to the backend
	TimeoutTrigger time.Duration // Deferred-write window; zero refreshes on every write

	// Backend TTL policy
	SetRedisTTL          bool // Send TTLs to the backend (false = LRU-delegated mode)
	SetRedisTTLReadHeavy bool // Refresh TTL via pipelined GET+EXPIRE during load
	TrackExpires         bool // Track absolute expiry in the payload (implied by TimeoutTrigger)

	// Behavior
	DetectChanges          bool // Fingerprint payloads to catch untracked nested mutations
	DeserializedFailsNew   bool // Recover from corrupt payloads with a fresh session
	InvalidateEmptySession bool // Drop sessions whose managed dict is empty at finalize

	// Identifiers
	Prefix      string              // Key prefix, mutually exclusive with IDGenerator
	IDGenerator sessionid.Generator // Custom identifier generator

	// Serialization
	Serialize   payload.SerializeFunc
	Deserialize payload.DeserializeFunc

	// InvalidLogger observes every recoverable invalid-session event, once,
	// before the replacement session is handed out.
	InvalidLogger func(ctx context.Context, err *InvalidSessionError)

	clock func() time.Time
}

// defaultConfig returns default configuration.
func defaultConfig() Config {
	return Config{
		Timeout:       20 * time.Minute,
		SetRedisTTL:   true,
		DetectChanges: true,
		clock:         time.Now,
	}
}

// Option is a functional option for configuring the session manager.
type Option func(*Config)

// WithTimeout sets the idle timeout. Zero disables timeout handling in both
// the payload and the backend.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithTimeoutTrigger defers expiry-refresh writes until the session is
// within the given window of expiring. Implies expiry tracking in the
// payload. Mutually exclusive with WithReadHeavyRefresh.
func WithTimeoutTrigger(window time.Duration) Option {
	return func(c *Config) {
		c.TimeoutTrigger = window
	}
}

// WithRedisTTL controls whether TTLs are sent to the backend. Pass false
// when the backend runs as an LRU cache and governs eviction itself.
func WithRedisTTL(enabled bool) Option {
	return func(c *Config) {
		c.SetRedisTTL = enabled
	}
}

// WithReadHeavyRefresh folds the per-read TTL refresh into the load-phase
// GET as a single pipelined round trip, suppressing the separate finalize
// refresh. Requires a timeout and backend TTLs; mutually exclusive with
// WithTimeoutTrigger and WithTrackExpires.
func WithReadHeavyRefresh() Option {
	return func(c *Config) {
		c.SetRedisTTLReadHeavy = true
	}
}

// WithTrackExpires records an absolute expiry timestamp in the payload so
// sessions time out correctly even when the backend never evicts (LRU
// mode). Enabled automatically by WithTimeoutTrigger.
func WithTrackExpires() Option {
	return func(c *Config) {
		c.TrackExpires = true
	}
}

// WithDetectChanges controls fingerprint-based change detection, which
// catches mutations of nested structures that bypassed the tracked mapping
// interface. Enabled by default.
func WithDetectChanges(enabled bool) Option {
	return func(c *Config) {
		c.DetectChanges = enabled
	}
}

// WithDeserializedFailsNew recovers from corrupt payloads by handing out a
// fresh session instead of failing the request.
func WithDeserializedFailsNew() Option {
	return func(c *Config) {
		c.DeserializedFailsNew = true
	}
}

// WithInvalidateEmptySession drops sessions whose managed dict is empty at
// finalize: the backend record is deleted and the cookie removed, so empty
// sessions never accumulate.
func WithInvalidateEmptySession() Option {
	return func(c *Config) {
		c.InvalidateEmptySession = true
	}
}

// WithPrefix namespaces generated identifiers (and therefore backend keys).
// Mutually exclusive with WithIDGenerator.
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
	}
}

// WithIDGenerator replaces the default identifier generator.
func WithIDGenerator(gen sessionid.Generator) Option {
	return func(c *Config) {
		c.IDGenerator = gen
	}
}

// WithSerializer replaces the payload (de)serializers. Nil arguments keep
// the JSON defaults.
func WithSerializer(serialize payload.SerializeFunc, deserialize payload.DeserializeFunc) Option {
	return func(c *Config) {
		c.Serialize = serialize
		c.Deserialize = deserialize
	}
}

// WithInvalidLogger installs the invalid-session observer.
func WithInvalidLogger(fn func(ctx context.Context, err *InvalidSessionError)) Option {
	return func(c *Config) {
		c.InvalidLogger = fn
	}
}

// WithClock replaces the time source, for deterministic tests of timeout
// behavior.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.clock = now
		}
	}
}
