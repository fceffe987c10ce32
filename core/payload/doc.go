// Package payload implements the versioned wire format for stored sessions.
//
// A payload carries the managed session dictionary plus the metadata the
// session engine needs for expiry decisions: creation time, schema version,
// idle timeout and (optionally) an absolute expiry timestamp. The JSON
// encoding uses single-character keys to keep stored values compact:
//
//	{"m":{"user":"alice"},"c":1700000000,"v":1,"t":1200,"x":1700001200}
//
// Serialization is injectable; the JSON functions are used unless the
// session factory is configured otherwise. Fingerprint provides the content
// hash used for nested-change detection.
package payload
