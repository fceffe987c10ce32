// Package backend defines the key-value storage contract for session
// payloads and ships an in-memory implementation for tests and development.
//
// The production implementation backed by Redis lives in
// integration/database/redis. The engine only ever needs GET, SET with
// optional expiry, SET-if-absent, DELETE, EXPIRE and a combined GET+EXPIRE;
// connection pooling, pipelining and timeouts are the implementation's
// concern.
package backend
