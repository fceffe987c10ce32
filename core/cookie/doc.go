// Package cookie provides signed HTTP cookie management for session
// identifiers, with strong security defaults and key rotation support.
//
// # Features
//
//   - HMAC-SHA256 signing for tamper detection
//   - Automatic key rotation support (first secret signs, all verify)
//   - 4KB size limit enforcement
//   - Secure defaults (HttpOnly, SameSite Lax)
//   - Environment-based configuration
//
// # Basic Usage
//
// Create a manager with secret key(s) and use it to manage cookies:
//
//	import "github.com/dmitrymomot/redisession/core/cookie"
//
//	manager, err := cookie.New([]string{"your-32-char-secret-key-here!!!!"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Set a signed cookie
//	err = manager.SetSigned(w, "session", sessionID, cookie.WithMaxAge(3600))
//
//	// Get and verify a signed cookie value
//	id, err := manager.GetSigned(r, "session")
//	if errors.Is(err, cookie.ErrCookieNotFound) {
//		// no cookie presented
//	}
//	if errors.Is(err, cookie.ErrInvalidSignature) {
//		// tampered or signed with an unknown key
//	}
//
//	// Delete a cookie
//	manager.Delete(w, "session")
//
// # Key Rotation
//
// Pass multiple secrets to support rotation. New cookies are signed with the
// first secret, while verification tries every secret in order, so sessions
// signed with an old key stay valid until they expire:
//
//	manager, err := cookie.New([]string{newSecret, oldSecret})
//
// # Configuration
//
// NewFromConfig builds a manager from an env-tagged Config, where secrets
// are provided comma-separated via COOKIE_SECRETS.
package cookie
