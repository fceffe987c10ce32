package sessiontransport

import (
	"context"
	"net/http"
	"sync"

	"github.com/dmitrymomot/redisession/core/cookie"
	"github.com/dmitrymomot/redisession/core/session"
)

type sessionKey struct{}

// Cookie is the HTTP transport for the session engine. The browser cookie
// carries only the signed session identifier; the middleware resolves it to
// a Session lazily, finalizes exactly once after the handler, and emits
// Set-Cookie headers before the first byte of the response body.
type Cookie struct {
	manager   *session.Manager
	cookieMgr *cookie.Manager
	cfg       Config
}

// NewCookie creates a cookie transport for the given engine and signed
// cookie manager.
func NewCookie(mgr *session.Manager, cookieMgr *cookie.Manager, opts ...Option) *Cookie {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cookie{
		manager:   mgr,
		cookieMgr: cookieMgr,
		cfg:       cfg,
	}
}

// Load resolves the request's session cookie to a Session. A missing cookie
// or a bad signature is treated as no session at all; the engine hands out
// a fresh one.
func (c *Cookie) Load(r *http.Request) (*session.Session, error) {
	sess, _, err := c.load(r)
	return sess, err
}

// load additionally reports whether the request carried a validly signed
// cookie that no longer resolves to a live session. Such a cookie is ours
// to delete even though the session it named is gone.
func (c *Cookie) load(r *http.Request) (*session.Session, bool, error) {
	id, err := c.cookieMgr.GetSigned(r, c.cfg.CookieName)
	if err != nil {
		id = ""
	}
	sess, err := c.manager.Load(r.Context(), id)
	stale := err == nil && id != "" && !sess.Loaded()
	return sess, stale, err
}

// lazySession defers the backend lookup until the handler actually touches
// the session, so cookie-less static endpoints cost nothing.
type lazySession struct {
	transport *Cookie
	request   *http.Request

	once  sync.Once
	sess  *session.Session
	stale bool
	err   error
}

func (l *lazySession) load() (*session.Session, error) {
	l.once.Do(func() {
		l.sess, l.stale, l.err = l.transport.load(l.request)
	})
	return l.sess, l.err
}

// loaded returns the session only if a load already happened.
func (l *lazySession) loaded() *session.Session {
	return l.sess
}

// FromContext returns the request's session, loading it from the backend on
// first call. It fails with ErrNotWired when the middleware is not
// installed, and with the engine's load error when the backend is down.
func FromContext(ctx context.Context) (*session.Session, error) {
	lazy, ok := ctx.Value(sessionKey{}).(*lazySession)
	if !ok {
		return nil, ErrNotWired
	}
	return lazy.load()
}

// Middleware wires the transport into an http.Handler chain. Each request
// gets a lazily-loaded session reachable via FromContext; after the handler
// returns, the session is finalized exactly once. Cookie headers are
// decided just before the response commits, so mutations made after the
// first body write cannot recookie.
//
// A panicking handler skips finalization entirely: nothing is written to
// the backend and no cookie is emitted for an aborted request.
func (c *Cookie) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lazy := &lazySession{transport: c, request: r}
		r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, lazy))
		lazy.request = r

		cw := &cookieWriter{
			ResponseWriter: w,
			beforeCommit: func(status int) {
				c.emit(w, r, lazy, status)
			},
		}

		next.ServeHTTP(cw, r)

		// Handlers that never write still get their cookies; headers are
		// unsent until ServeHTTP returns.
		cw.commit(http.StatusOK)

		if sess := lazy.loaded(); sess != nil {
			if err := sess.Finalize(r.Context()); err != nil {
				c.cfg.Logger.ErrorContext(r.Context(), "session finalize failed",
					slogError(err))
			}
		}
	})
}

// emit writes the session cookie headers for this response. It runs at most
// once, right before the response commits.
func (c *Cookie) emit(w http.ResponseWriter, r *http.Request, lazy *lazySession, status int) {
	sess := lazy.loaded()
	if sess == nil {
		return
	}

	if c.cfg.CheckResponseAllowCookies != nil && !c.cfg.CheckResponseAllowCookies(w.Header()) {
		return
	}

	// The empty-session rule runs here, before the cookie decision, so the
	// deletion below covers sessions emptied during this request. Finalize
	// sees the session already invalidated and skips the write.
	if _, err := sess.InvalidateIfEmpty(r.Context()); err != nil {
		c.cfg.Logger.ErrorContext(r.Context(), "empty session invalidation failed",
			slogError(err))
	}

	if sess.Invalidated() {
		// Delete only cookies we know were validly signed; an unsigned or
		// garbage cookie was never ours to manage.
		if sess.Loaded() || lazy.stale {
			c.deleteCookie(w)
		}
		return
	}

	suppressed := status >= http.StatusInternalServerError && !c.cfg.CookieOnException

	switch {
	case sess.IsNew():
		// A new session earns a cookie only once it has something to keep.
		if sess.Len() == 0 && sess.SessionID() == "" {
			return
		}
		if suppressed {
			// No cookie for the new session, but the validly signed cookie
			// the request arrived with named a dead session and still has
			// to go.
			if lazy.stale {
				c.deleteCookie(w)
			}
			return
		}
		id, err := sess.EnsureID(r.Context())
		if err != nil {
			c.cfg.Logger.ErrorContext(r.Context(), "session id reservation failed",
				slogError(err))
			return
		}
		c.setCookie(w, r, id, sess.Overrides())
	case sess.RecookieRequested():
		if suppressed {
			return
		}
		c.setCookie(w, r, sess.SessionID(), sess.Overrides())
	}
}

func (c *Cookie) deleteCookie(w http.ResponseWriter) {
	c.cookieMgr.Delete(w, c.cfg.CookieName)
	w.Header().Add("Vary", "Cookie")
}

func (c *Cookie) setCookie(w http.ResponseWriter, r *http.Request, id string, overrides session.CookieOverrides) {
	opts := make([]cookie.Option, 0, len(c.cfg.CookieOptions)+2)
	opts = append(opts, c.cfg.CookieOptions...)
	if overrides.HasMaxAge {
		opts = append(opts, cookie.WithMaxAge(overrides.MaxAge))
	}
	if !overrides.Expires.IsZero() {
		opts = append(opts, cookie.WithExpires(overrides.Expires))
	}

	if err := c.cookieMgr.SetSigned(w, c.cfg.CookieName, id, opts...); err != nil {
		c.cfg.Logger.ErrorContext(r.Context(), "session cookie not set", slogError(err))
		return
	}
	w.Header().Add("Vary", "Cookie")
}

// AllowCookiesUnlessCacheable is a ready-made CheckResponseAllowCookies
// hook: it vetoes cookies on responses that declare themselves cacheable
// via Expires or Cache-Control, since a cached Set-Cookie would leak one
// user's session to another.
func AllowCookiesUnlessCacheable(h http.Header) bool {
	return h.Get("Expires") == "" && h.Get("Cache-Control") == ""
}

// cookieWriter intercepts the response commit so cookie headers can be
// written while they still can be.
type cookieWriter struct {
	http.ResponseWriter

	beforeCommit func(status int)
	committed    bool
}

func (w *cookieWriter) WriteHeader(status int) {
	w.commit(status)
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.commit(http.StatusOK)
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) commit(status int) {
	if w.committed {
		return
	}
	w.committed = true
	w.beforeCommit(status)
}

func (w *cookieWriter) Flush() {
	w.commit(http.StatusOK)
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap supports http.ResponseController.
func (w *cookieWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

var _ http.ResponseWriter = (*cookieWriter)(nil)
