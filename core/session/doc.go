// Package session implements server-side sessions backed by a key-value
// cache, with lazy creation, dirty tracking and write minimization.
//
// The browser cookie carries only an opaque identifier; all session state
// lives in the backend under that identifier. A Manager is built once per
// process and hands out one Session per request; at the end of the request
// exactly one Finalize call flushes the session with the cheapest operation
// that preserves correctness: a full write when something changed, a bare
// TTL refresh when the session is clean, nothing when it was never used.
//
// # Core Components
//
//   - Manager: validates configuration once, loads or creates sessions
//   - Session: per-request entity with tracked mutations and Finalize
//   - Config/Option: timeout and backend-TTL policy knobs
//   - InvalidSessionError: closed taxonomy of recoverable load failures
//
// # Basic Usage
//
//	import (
//		"github.com/dmitrymomot/redisession/core/backend"
//		"github.com/dmitrymomot/redisession/core/session"
//	)
//
//	mgr, err := session.New(store,
//		session.WithTimeout(30*time.Minute),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err := mgr.Load(ctx, idFromCookie)
//	if err != nil {
//		// backend down or corrupt payload without WithDeserializedFailsNew
//	}
//	sess.Set("user_id", 42)
//	if err := sess.Finalize(ctx); err != nil {
//		// single write happens here, not at Set
//	}
//
// An absent, expired or otherwise unusable inbound identifier is never an
// error: Load reports it to the WithInvalidLogger observer and returns a
// fresh empty session in its place.
//
// # Backend TTL Policies
//
// By default every write carries the session timeout as the backend TTL and
// each clean request refreshes it, so the backend evicts idle sessions on
// its own. Three options trade that behavior for fewer round trips:
//
//   - WithTimeoutTrigger defers refresh writes until the session is close
//     to expiring, turning read-mostly traffic into pure GETs.
//   - WithReadHeavyRefresh folds the refresh into the load as a pipelined
//     GET+EXPIRE, removing the finalize round trip entirely.
//   - WithRedisTTL(false) stops sending TTLs altogether for backends that
//     run as LRU caches; combine with WithTrackExpires so timeouts are
//     still enforced from the payload.
//
// For HTTP integration see core/sessiontransport, which wires a Manager to
// signed cookies and per-request finalization.
package session
