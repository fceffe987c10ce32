package session

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/redisession/core/backend"
	"github.com/dmitrymomot/redisession/core/payload"
	"github.com/dmitrymomot/redisession/core/sessionid"
)

const (
	flashKeyPrefix = "_f_"
	csrfKey        = "_csrft_"
)

// CookieOverrides carries per-session cookie attribute adjustments requested
// by AdjustCookieExpires / AdjustCookieMaxAge. Transports apply them when a
// recookie is emitted.
type CookieOverrides struct {
	Expires   time.Time
	MaxAge    int
	HasMaxAge bool
}

// Session is the per-request session entity. It tracks mutations to decide
// at Finalize whether the backend needs a full write, a TTL refresh, or
// nothing at all. A Session is not safe for concurrent use; each request
// owns exactly one.
type Session struct {
	manager *Manager

	id      string
	data    map[string]any
	created int64
	timeout int64
	expires int64

	isNew       bool
	loaded      bool
	invalidated bool
	finalized   bool

	pleasePersist  bool
	pleaseRefresh  bool
	dontRefresh    bool
	pleaseRecookie bool

	fingerprint    uint64
	hasFingerprint bool

	cookieOverrides CookieOverrides
}

// touch marks the session dirty. A dirty invalidated session is reborn: it
// will be persisted under a fresh identifier at finalize.
func (s *Session) touch() {
	s.pleasePersist = true
	s.invalidated = false
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key and marks the session dirty.
func (s *Session) Set(key string, value any) {
	s.data[key] = value
	s.touch()
}

// Delete removes key and marks the session dirty. Deleting an absent key is
// a no-op and keeps the session clean.
func (s *Session) Delete(key string) {
	if _, ok := s.data[key]; !ok {
		return
	}
	delete(s.data, key)
	s.touch()
}

// Pop removes and returns the value stored under key.
func (s *Session) Pop(key string) (any, bool) {
	v, ok := s.data[key]
	if ok {
		delete(s.data, key)
		s.touch()
	}
	return v, ok
}

// Keys returns the keys of the managed dictionary.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// All returns a shallow copy of the managed dictionary. Nested values are
// shared; call Changed after mutating one through the copy.
func (s *Session) All() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Len returns the number of entries in the managed dictionary.
func (s *Session) Len() int {
	return len(s.data)
}

// Clear empties the managed dictionary and marks the session dirty.
func (s *Session) Clear() {
	if len(s.data) == 0 {
		return
	}
	s.data = make(map[string]any)
	s.touch()
}

// Changed marks the session dirty explicitly. Call it after mutating a
// nested value obtained by reference, which the tracked accessors cannot
// observe. With change detection enabled (the default) the fingerprint
// check catches such mutations anyway; Changed makes the write certain.
func (s *Session) Changed() {
	s.touch()
}

// Flash queues a message for later consumption by PopFlash. The empty queue
// name is the default queue.
func (s *Session) Flash(queue string, value any) {
	key := flashKeyPrefix + queue
	existing, _ := s.data[key].([]any)
	s.data[key] = append(existing, value)
	s.touch()
}

// PeekFlash returns queued messages without consuming them.
func (s *Session) PeekFlash(queue string) []any {
	msgs, _ := s.data[flashKeyPrefix+queue].([]any)
	return msgs
}

// PopFlash returns queued messages and removes them from the session.
func (s *Session) PopFlash(queue string) []any {
	key := flashKeyPrefix + queue
	msgs, ok := s.data[key].([]any)
	if ok {
		delete(s.data, key)
		s.touch()
	}
	return msgs
}

// NewCSRFToken generates, stores and returns a fresh CSRF token.
func (s *Session) NewCSRFToken() string {
	token := sessionid.New()
	s.Set(csrfKey, token)
	return token
}

// GetCSRFToken returns the session's CSRF token, creating one on first use.
func (s *Session) GetCSRFToken() string {
	if token, ok := s.data[csrfKey].(string); ok {
		return token
	}
	return s.NewCSRFToken()
}

// SessionID returns the session identifier, empty until one is materialized
// by EnsureID, a mutation followed by Finalize, or a backend load.
func (s *Session) SessionID() string {
	return s.id
}

// EnsureID materializes the session identifier before Finalize, for callers
// that need to hand it out mid-request. The identifier is reserved in the
// backend with an atomic set-if-absent so two racing requests can never
// mint the same id; collisions retry with a fresh candidate.
func (s *Session) EnsureID(ctx context.Context) (string, error) {
	if s.id != "" {
		return s.id, nil
	}
	raw, err := s.encode()
	if err != nil {
		return "", err
	}
	for {
		candidate := s.manager.idgen()
		ok, err := s.manager.store.SetIfAbsent(ctx, candidate, raw, s.ttl())
		if err != nil {
			return "", errors.Join(ErrBackend, err)
		}
		if ok {
			s.id = candidate
			return s.id, nil
		}
	}
}

// Invalidate deletes the session from the backend immediately and resets
// the entity to a fresh, identifier-less state. Any subsequent mutation
// begins a new session under a new identifier; without one, the transport
// deletes the session cookie at finalize.
func (s *Session) Invalidate(ctx context.Context) error {
	if s.id != "" {
		if err := s.manager.store.Delete(ctx, s.id); err != nil && !errors.Is(err, backend.ErrNotFound) {
			return errors.Join(ErrBackend, err)
		}
	}

	now := s.manager.now()
	p := payload.Empty(now, s.manager.timeoutSeconds(), s.manager.cfg.TrackExpires)
	s.id = ""
	s.data = p.Data
	s.created = p.Created
	s.timeout = p.Timeout
	s.expires = p.Expires
	s.isNew = true
	s.invalidated = true
	s.pleasePersist = false
	s.pleaseRefresh = false
	s.pleaseRecookie = false
	s.hasFingerprint = false
	s.fingerprint = 0
	return nil
}

// InvalidateIfEmpty applies the WithInvalidateEmptySession rule: a session
// restored from the backend that ends the request with no data left is
// invalidated, deleting the backend record. Transports call it before
// deciding cookie headers so the stale cookie is deleted in the same
// response; Finalize applies it as a fallback for engine-only callers. It
// reports whether the session is invalidated afterwards.
func (s *Session) InvalidateIfEmpty(ctx context.Context) (bool, error) {
	if s.invalidated {
		return true, nil
	}
	if !s.manager.cfg.InvalidateEmptySession || !s.loaded || len(s.data) != 0 {
		return false, nil
	}
	if err := s.Invalidate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// AdjustTimeout changes the session's idle timeout. The internal expiry
// moves to now+timeout in the same operation, so trigger comparisons and
// the persisted payload agree with the new value, and the next finalize
// writes both the payload and the backend TTL.
func (s *Session) AdjustTimeout(timeout time.Duration) {
	now := s.manager.now()
	s.timeout = int64(timeout / time.Second)
	if s.timeout > 0 {
		s.expires = now + s.timeout
	} else {
		s.expires = 0
	}
	s.touch()
	s.pleaseRecookie = true
}

// AdjustCookieExpires requests a recookie with the given Expires attribute.
// The backend record is untouched.
func (s *Session) AdjustCookieExpires(expires time.Time) {
	s.cookieOverrides.Expires = expires
	s.pleaseRecookie = true
}

// AdjustCookieMaxAge requests a recookie with the given Max-Age attribute.
// The backend record is untouched.
func (s *Session) AdjustCookieMaxAge(maxAge int) {
	s.cookieOverrides.MaxAge = maxAge
	s.cookieOverrides.HasMaxAge = true
	s.pleaseRecookie = true
}

// IsNew reports whether the session was created during this request rather
// than restored from the backend.
func (s *Session) IsNew() bool { return s.isNew }

// Loaded reports whether the request arrived with a valid session that was
// restored from the backend. It stays true across Invalidate, which is how
// transports know a stale cookie needs deleting.
func (s *Session) Loaded() bool { return s.loaded }

// Invalidated reports whether the session was invalidated and not reborn.
func (s *Session) Invalidated() bool { return s.invalidated }

// RecookieRequested reports whether a cookie refresh was requested for an
// already-cookied session.
func (s *Session) RecookieRequested() bool { return s.pleaseRecookie }

// Overrides returns the cookie attribute adjustments for this session.
func (s *Session) Overrides() CookieOverrides { return s.cookieOverrides }

// Created returns the session creation time.
func (s *Session) Created() time.Time { return time.Unix(s.created, 0) }

// Timeout returns the session's idle timeout, zero when expiry is delegated
// entirely to the backend.
func (s *Session) Timeout() time.Duration {
	return time.Duration(s.timeout) * time.Second
}

// Expires returns the absolute expiry, zero when expiry tracking is off.
func (s *Session) Expires() time.Time {
	if s.expires == 0 {
		return time.Time{}
	}
	return time.Unix(s.expires, 0)
}

// Finalize flushes the session to the backend: a full write when dirty (or
// when the deferred-write window or the fingerprint check demands one), a
// bare TTL refresh when clean in classic mode, nothing otherwise. It runs
// exactly once per request; repeated calls are no-ops.
func (s *Session) Finalize(ctx context.Context) error {
	if s.finalized {
		return nil
	}
	s.finalized = true

	// The backend delete already happened in Invalidate, whether called by
	// the handler, by the transport at emit time, or right here.
	invalidated, err := s.InvalidateIfEmpty(ctx)
	if err != nil {
		return err
	}
	if invalidated {
		return nil
	}

	persisted := false
	if s.pleasePersist {
		if err := s.persistRaw(ctx, nil); err != nil {
			return err
		}
		persisted = true
	} else if s.id != "" || len(s.data) > 0 {
		should, raw, err := s.shouldPersist()
		if err != nil {
			return err
		}
		if should {
			if err := s.persistRaw(ctx, raw); err != nil {
				return err
			}
			persisted = true
		}
	}

	if !persisted && !s.dontRefresh && s.pleaseRefresh && s.id != "" {
		if err := s.manager.store.Touch(ctx, s.id, s.Timeout()); err != nil &&
			!errors.Is(err, backend.ErrNotFound) {
			return errors.Join(ErrBackend, err)
		}
	}
	return nil
}

// shouldPersist decides whether a clean session still needs a full write:
// a new session that accumulated data, a session inside its deferred-write
// window, or a payload whose fingerprint no longer matches the one taken at
// load. It returns the encoded payload when it already computed one, so a
// positive fingerprint decision never encodes twice.
func (s *Session) shouldPersist() (bool, []byte, error) {
	now := s.manager.now()

	if s.isNew && len(s.data) > 0 {
		return true, nil, nil
	}

	if trigger := s.manager.triggerSeconds(); trigger > 0 && s.expires != 0 && now >= s.expires-trigger {
		return true, nil, nil
	}

	if s.manager.cfg.DetectChanges && s.hasFingerprint {
		raw, err := s.encode()
		if err != nil {
			return false, nil, err
		}
		if payload.Fingerprint(raw) != s.fingerprint {
			return true, raw, nil
		}
	}
	return false, nil, nil
}

// persistRaw writes the session to the backend, encoding first when raw is
// nil. A session without an identifier gets one via EnsureID, whose
// reservation doubles as the write.
func (s *Session) persistRaw(ctx context.Context, raw []byte) error {
	if s.id == "" {
		_, err := s.EnsureID(ctx)
		return err
	}
	if raw == nil {
		var err error
		if raw, err = s.encode(); err != nil {
			return err
		}
	}
	if err := s.manager.store.Set(ctx, s.id, raw, s.ttl()); err != nil {
		return errors.Join(ErrBackend, err)
	}
	return nil
}

// encode serializes the session, sliding the tracked expiry forward first
// so the in-memory bookkeeping matches what gets written.
func (s *Session) encode() ([]byte, error) {
	now := s.manager.now()
	if s.manager.cfg.TrackExpires && s.timeout != 0 {
		trigger := s.manager.triggerSeconds()
		if trigger == 0 || now >= s.expires-trigger {
			s.expires = now + s.timeout
		}
	}
	p := payload.Payload{
		Data:    s.data,
		Created: s.created,
		Version: payload.APIVersion,
		Timeout: s.timeout,
		Expires: s.expires,
	}
	return s.manager.codec.Encode(p, now, s.manager.triggerSeconds(), s.manager.cfg.TrackExpires)
}

// ttl returns the backend TTL for writes: the session timeout under the
// default policy, none when eviction is delegated to the backend's own
// policy.
func (s *Session) ttl() time.Duration {
	if s.timeout > 0 && s.manager.cfg.SetRedisTTL {
		return time.Duration(s.timeout) * time.Second
	}
	return 0
}
