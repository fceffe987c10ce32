package session

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/redisession/core/backend"
	"github.com/dmitrymomot/redisession/core/payload"
	"github.com/dmitrymomot/redisession/core/sessionid"
)

// Manager orchestrates the session lifecycle: load-or-create at request
// start and the single persist/refresh/no-op decision at request end. One
// Manager serves many requests; every request gets its own Session.
type Manager struct {
	store backend.Store
	codec *payload.Codec
	cfg   Config
	idgen sessionid.Generator

	// refreshOnFinalize is precomputed: classic mode (timeout set, backend
	// TTLs on, no trigger, no expiry tracking, not read-heavy) refreshes the
	// TTL of every loaded session once at finalize.
	refreshOnFinalize bool
}

// New creates a session manager on top of the given backend store.
// Contradictory options are rejected here, never at request time.
func New(store backend.Store, opts ...Option) (*Manager, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.TimeoutTrigger > 0 {
		if cfg.SetRedisTTLReadHeavy {
			return nil, ErrTriggerWithReadHeavy
		}
		// Deferred writes need the expiry recorded in the payload.
		cfg.TrackExpires = true
	}
	if cfg.SetRedisTTLReadHeavy {
		if cfg.Timeout <= 0 || !cfg.SetRedisTTL || cfg.TrackExpires {
			return nil, ErrReadHeavyRequiresTTL
		}
	}
	if cfg.Prefix != "" && cfg.IDGenerator != nil {
		return nil, ErrPrefixWithGenerator
	}

	idgen := cfg.IDGenerator
	switch {
	case idgen != nil:
	case cfg.Prefix != "":
		idgen = sessionid.Prefixed(cfg.Prefix)
	default:
		idgen = sessionid.New
	}

	return &Manager{
		store: store,
		codec: payload.NewCodec(cfg.Serialize, cfg.Deserialize),
		cfg:   cfg,
		idgen: idgen,
		refreshOnFinalize: cfg.Timeout > 0 && cfg.SetRedisTTL &&
			cfg.TimeoutTrigger == 0 && !cfg.TrackExpires && !cfg.SetRedisTTLReadHeavy,
	}, nil
}

// Load resolves a session identifier to a Session. An empty id, a missing
// backend record, an expired or legacy payload, and (if configured) a
// corrupt payload all classify the reference as invalid: the observer is
// notified once and a fresh empty session is returned instead of an error.
//
// Backend connectivity failures and, without WithDeserializedFailsNew,
// corrupt payloads are not recoverable and return an error.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	now := m.now()

	if id == "" {
		return m.invalid(ctx, now, &InvalidSessionError{Reason: ReasonNoSessionCookie}), nil
	}

	// A single GET (optionally fused with the TTL refresh) replaces the
	// classic EXISTS-then-GET sequence.
	var raw []byte
	var err error
	if m.cfg.SetRedisTTLReadHeavy {
		raw, err = m.store.GetAndTouch(ctx, id, m.cfg.Timeout)
	} else {
		raw, err = m.store.Get(ctx, id)
	}
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return m.invalid(ctx, now, &InvalidSessionError{Reason: ReasonNotInBackend, SessionID: id}), nil
		}
		return nil, errors.Join(ErrBackend, err)
	}

	p, err := m.codec.Decode(raw)
	if err != nil {
		if m.cfg.DeserializedFailsNew {
			return m.invalid(ctx, now, &InvalidSessionError{Reason: ReasonDeserialization, SessionID: id, Err: err}), nil
		}
		return nil, &RawDeserializationError{Err: err}
	}

	if p.Expires != 0 && now > p.Expires {
		return m.invalid(ctx, now, &InvalidSessionError{Reason: ReasonPayloadTimeout, SessionID: id}), nil
	}
	if p.Version < payload.APIVersion {
		return m.invalid(ctx, now, &InvalidSessionError{Reason: ReasonPayloadLegacy, SessionID: id}), nil
	}

	if p.Data == nil {
		p.Data = make(map[string]any)
	}

	s := &Session{
		manager: m,
		id:      id,
		data:    p.Data,
		created: p.Created,
		timeout: p.Timeout,
		expires: p.Expires,
		loaded:  true,
	}
	if m.cfg.DetectChanges {
		s.fingerprint = payload.Fingerprint(raw)
		s.hasFingerprint = true
	}
	if m.cfg.SetRedisTTLReadHeavy {
		// The load already refreshed the TTL; finalize must not repeat it.
		s.dontRefresh = true
	}
	if m.refreshOnFinalize {
		s.pleaseRefresh = true
	}
	return s, nil
}

// invalid reports a classified invalid-session event and returns the fresh
// empty session that replaces it.
func (m *Manager) invalid(ctx context.Context, now int64, ierr *InvalidSessionError) *Session {
	if m.cfg.InvalidLogger != nil {
		m.cfg.InvalidLogger(ctx, ierr)
	}
	return m.blank(now)
}

// blank creates a fresh, identifier-less session.
func (m *Manager) blank(now int64) *Session {
	p := payload.Empty(now, m.timeoutSeconds(), m.cfg.TrackExpires)
	return &Session{
		manager: m,
		data:    p.Data,
		created: p.Created,
		timeout: p.Timeout,
		expires: p.Expires,
		isNew:   true,
	}
}

// Config returns a copy of the resolved configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

func (m *Manager) timeoutSeconds() int64 {
	return int64(m.cfg.Timeout / time.Second)
}

func (m *Manager) triggerSeconds() int64 {
	return int64(m.cfg.TimeoutTrigger / time.Second)
}

// now returns the current time in whole epoch seconds, rounded up so a
// session is never considered expired a fraction of a second early.
func (m *Manager) now() int64 {
	t := m.cfg.clock()
	s := t.Unix()
	if t.Nanosecond() > 0 {
		s++
	}
	return s
}
