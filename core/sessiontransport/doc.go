// Package sessiontransport binds the session engine to net/http.
//
// The transport owns everything HTTP about a session: reading the signed
// identifier cookie, lazily resolving it through a session.Manager, running
// the end-of-request finalize exactly once, and emitting Set-Cookie or
// delete-cookie headers at the right moment. Handlers never see cookies,
// only sessions.
//
// # Usage
//
//	cookieMgr, _ := cookie.New([]string{secret})
//	mgr, _ := session.New(store)
//	transport := sessiontransport.NewCookie(mgr, cookieMgr,
//		sessiontransport.WithCookieName("sid"),
//	)
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
//		sess, err := sessiontransport.FromContext(r.Context())
//		if err != nil {
//			http.Error(w, "session unavailable", http.StatusInternalServerError)
//			return
//		}
//		sess.Set("last_seen", time.Now().Unix())
//	})
//
//	http.ListenAndServe(":8080", transport.Middleware(mux))
//
// The session loads from the backend on the first FromContext call, so
// handlers that never ask for it cost no backend round trip. All writes
// are deferred to a single finalize after the handler returns.
//
// # Cookie Rules
//
// Per response the transport emits at most one cookie header for the
// session cookie: a Set-Cookie when a new session materialized or an
// existing one requested new attributes, or a deletion when the session was
// invalidated and the inbound cookie had been valid. Responses above 499
// suppress Set-Cookie when configured with WithCookieOnException(false),
// and the WithAllowCookiesCheck hook can veto cookies on cacheable
// responses. Any cookie activity adds Vary: Cookie.
package sessiontransport
