package sessiontransport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/redisession/core/backend"
	"github.com/dmitrymomot/redisession/core/cookie"
	"github.com/dmitrymomot/redisession/core/session"
	"github.com/dmitrymomot/redisession/core/sessiontransport"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	store     *backend.Memory
	manager   *session.Manager
	cookieMgr *cookie.Manager
	transport *sessiontransport.Cookie
}

func newFixture(t *testing.T, sessOpts []session.Option, transportOpts ...sessiontransport.Option) *fixture {
	t.Helper()

	store := backend.NewMemory()
	mgr, err := session.New(store, sessOpts...)
	require.NoError(t, err)

	cookieMgr, err := cookie.New([]string{testSecret})
	require.NoError(t, err)

	return &fixture{
		store:     store,
		manager:   mgr,
		cookieMgr: cookieMgr,
		transport: sessiontransport.NewCookie(mgr, cookieMgr, transportOpts...),
	}
}

// do runs one request through the middleware-wrapped handler.
func (f *fixture) do(t *testing.T, req *http.Request, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	f.transport.Middleware(handler).ServeHTTP(rec, req)
	return rec
}

// sessionCookie returns the session cookie from a response, nil if absent.
func sessionCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func mustSession(t *testing.T, r *http.Request) *session.Session {
	t.Helper()

	sess, err := sessiontransport.FromContext(r.Context())
	require.NoError(t, err)
	return sess
}

// establish runs a request that stores data and returns the Set-Cookie it
// produced, for replay in follow-up requests.
func (f *fixture) establish(t *testing.T, data map[string]any) *http.Cookie {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		for k, v := range data {
			sess.Set(k, v)
		}
		w.WriteHeader(http.StatusOK)
	})

	c := sessionCookie(rec, "session")
	require.NotNil(t, c)
	return c
}

func TestFromContextWithoutMiddleware(t *testing.T) {
	t.Parallel()

	_, err := sessiontransport.FromContext(context.Background())
	require.ErrorIs(t, err, sessiontransport.ErrNotWired)
}

func TestUntouchedRequestStaysCookieless(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("static"))
	})

	assert.Nil(t, sessionCookie(rec, "session"))
	assert.NotContains(t, rec.Header().Values("Vary"), "Cookie")
}

func TestReadOnlyNewSessionStaysCookieless(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		_, ok := sess.Get("user")
		assert.False(t, ok)
		w.WriteHeader(http.StatusOK)
	})

	assert.Nil(t, sessionCookie(rec, "session"), "reads alone never earn a cookie")
}

func TestNewSessionWithDataSetsCookie(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.Set("user", "alice")
		w.Write([]byte("ok"))
	})

	c := sessionCookie(rec, "session")
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Contains(t, rec.Header().Values("Vary"), "Cookie")

	// The cookie value is the signed session id; verify and check the
	// backend record exists under it.
	verifyReq := httptest.NewRequest(http.MethodGet, "/", nil)
	verifyReq.AddCookie(c)
	id, err := f.cookieMgr.GetSigned(verifyReq, "session")
	require.NoError(t, err)
	require.Len(t, id, 64)

	_, err = f.store.Get(context.Background(), id)
	require.NoError(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	c := f.establish(t, map[string]any{"user": "alice"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		assert.True(t, sess.Loaded())
		user, ok := sess.Get("user")
		require.True(t, ok)
		assert.Equal(t, "alice", user)
		w.WriteHeader(http.StatusOK)
	})

	assert.Nil(t, sessionCookie(rec, "session"), "an existing session is not re-cookied")
}

func TestTamperedCookieMeansFreshSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	c := f.establish(t, map[string]any{"user": "alice"})
	c.Value += "tampered"

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		assert.True(t, sess.IsNew())
		assert.False(t, sess.Loaded())
		_, ok := sess.Get("user")
		assert.False(t, ok)
		w.WriteHeader(http.StatusOK)
	})
}

func TestInvalidateDeletesCookie(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	c := f.establish(t, map[string]any{"user": "alice"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	var id string
	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		id = sess.SessionID()
		require.NoError(t, sess.Invalidate(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	deleted := sessionCookie(rec, "session")
	require.NotNil(t, deleted)
	assert.Empty(t, deleted.Value)
	assert.Negative(t, deleted.MaxAge)

	_, err := f.store.Get(context.Background(), id)
	require.ErrorIs(t, err, backend.ErrNotFound)
}

func TestInvalidateWithoutInboundCookieDeletesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.Set("user", "alice")
		require.NoError(t, sess.Invalidate(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	assert.Nil(t, sessionCookie(rec, "session"),
		"no cookie arrived, so there is nothing to delete")
}

func TestInvalidateThenRebirthReplacesCookie(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	c := f.establish(t, map[string]any{"user": "alice"})

	verifyReq := httptest.NewRequest(http.MethodGet, "/", nil)
	verifyReq.AddCookie(c)
	oldID, err := f.cookieMgr.GetSigned(verifyReq, "session")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		require.NoError(t, sess.Invalidate(r.Context()))
		sess.Set("user", "bob")
		w.WriteHeader(http.StatusOK)
	})

	// Exactly one Set-Cookie for the session: the replacement, not a delete.
	cookies := rec.Result().Cookies()
	var sessionCookies []*http.Cookie
	for _, rc := range cookies {
		if rc.Name == "session" {
			sessionCookies = append(sessionCookies, rc)
		}
	}
	require.Len(t, sessionCookies, 1)
	assert.Positive(t, len(sessionCookies[0].Value))

	replayReq := httptest.NewRequest(http.MethodGet, "/", nil)
	replayReq.AddCookie(sessionCookies[0])
	newID, err := f.cookieMgr.GetSigned(replayReq, "session")
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)
}

func TestCookieSuppressedOnServerError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, sessiontransport.WithCookieOnException(false))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.Set("user", "alice")
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.Nil(t, sessionCookie(rec, "session"))
}

func TestCookieKeptOnServerErrorByDefault(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.Set("user", "alice")
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.NotNil(t, sessionCookie(rec, "session"))
}

func TestEmptiedSessionDeletesCookie(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []session.Option{session.WithInvalidateEmptySession()})
	c := f.establish(t, map[string]any{"user": "alice"})

	verifyReq := httptest.NewRequest(http.MethodGet, "/", nil)
	verifyReq.AddCookie(c)
	id, err := f.cookieMgr.GetSigned(verifyReq, "session")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.Delete("user")
		w.WriteHeader(http.StatusOK)
	})

	// Emptying the last key drops both the backend record and the cookie.
	deleted := sessionCookie(rec, "session")
	require.NotNil(t, deleted, "the emptied session's cookie must be deleted")
	assert.Empty(t, deleted.Value)
	assert.Negative(t, deleted.MaxAge)

	_, err = f.store.Get(context.Background(), id)
	require.ErrorIs(t, err, backend.ErrNotFound)
}

func TestStaleCookieDeletedOnSuppressedError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, sessiontransport.WithCookieOnException(false))
	c := f.establish(t, map[string]any{"user": "alice"})

	// Evict the backend record so the validly signed cookie now names a
	// dead session.
	verifyReq := httptest.NewRequest(http.MethodGet, "/", nil)
	verifyReq.AddCookie(c)
	id, err := f.cookieMgr.GetSigned(verifyReq, "session")
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(context.Background(), id))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		assert.True(t, sess.IsNew())
		sess.Set("user", "bob")
		w.WriteHeader(http.StatusInternalServerError)
	})

	// The replacement session gets no cookie on the error, but the dead
	// inbound cookie still has to go.
	deleted := sessionCookie(rec, "session")
	require.NotNil(t, deleted, "the dead session's cookie must be deleted")
	assert.Empty(t, deleted.Value)
	assert.Negative(t, deleted.MaxAge)
}

func TestCacheableResponseVetoesCookies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil,
		sessiontransport.WithAllowCookiesCheck(sessiontransport.AllowCookiesUnlessCacheable))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.Set("user", "alice")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write([]byte("cacheable"))
	})

	assert.Nil(t, sessionCookie(rec, "session"),
		"cacheable responses must not carry session cookies")
}

func TestRecookieOnMaxAgeAdjustment(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	c := f.establish(t, map[string]any{"user": "alice"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.AdjustCookieMaxAge(3600)
		w.WriteHeader(http.StatusOK)
	})

	rc := sessionCookie(rec, "session")
	require.NotNil(t, rc)
	assert.Equal(t, 3600, rc.MaxAge)
	assert.Equal(t, c.Value, rc.Value, "the id is unchanged, only the attributes move")
}

func TestRecookieOnExpiresAdjustment(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	c := f.establish(t, map[string]any{"user": "alice"})

	expires := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.AdjustCookieExpires(expires)
		w.WriteHeader(http.StatusOK)
	})

	rc := sessionCookie(rec, "session")
	require.NotNil(t, rc)
	assert.True(t, rc.Expires.Equal(expires))
}

func TestCustomCookieName(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, sessiontransport.WithCookieName("sid"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.Set("k", "v")
		w.WriteHeader(http.StatusOK)
	})

	assert.NotNil(t, sessionCookie(rec, "sid"))
	assert.Nil(t, sessionCookie(rec, "session"))
}

func TestMutationAfterBodyWriteStillPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	c := f.establish(t, map[string]any{"user": "alice"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	var id string
	rec := f.do(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		id = sess.SessionID()
		w.Write([]byte("early"))
		// Too late for cookie headers, but the backend write still happens.
		sess.Set("late", true)
	})

	assert.Nil(t, sessionCookie(rec, "session"))

	raw, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"late":true`)
}

func TestPanicSkipsFinalize(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler := f.transport.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := mustSession(t, r)
		sess.Set("user", "alice")
		panic("boom")
	}))

	assert.Panics(t, func() { handler.ServeHTTP(rec, req) })
	assert.Nil(t, sessionCookie(rec, "session"))
	assert.Empty(t, rec.Header().Get("Set-Cookie"))
}

func TestLoadDirect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	c := f.establish(t, map[string]any{"user": "alice"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	sess, err := f.transport.Load(req)
	require.NoError(t, err)
	assert.True(t, sess.Loaded())
	user, _ := sess.Get("user")
	assert.Equal(t, "alice", user)
}
