// Package sessionid generates cryptographically strong session identifiers.
//
// Identifiers are 48 bytes of CSPRNG entropy encoded as a 64-character
// URL-safe base64 string, suitable for use both as a backend key and as a
// signed cookie value.
//
// Use Prefixed to namespace identifiers per application:
//
//	gen := sessionid.Prefixed("session:")
//	id := gen() // "session:dGhpcyBpcyBub3Qg..."
package sessionid
