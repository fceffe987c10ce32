package payload

import (
	"encoding/json"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// APIVersion is stamped into every persisted payload. Payloads carrying an
// older (or missing) version are treated as legacy and rejected by the
// session engine.
const APIVersion = 1

// Payload is the wire-level session record. Field tags are deliberately
// single characters to keep the stored value small; timestamps are whole
// epoch seconds for the same reason.
type Payload struct {
	// Data is the managed session dictionary.
	Data map[string]any `json:"m"`
	// Created is the creation time in epoch seconds, immutable for the
	// session's life.
	Created int64 `json:"c"`
	// Version is the payload schema version, see APIVersion.
	Version int `json:"v"`
	// Timeout is the idle timeout in seconds. Zero means timeout handling
	// is fully delegated to the backend TTL.
	Timeout int64 `json:"t,omitempty"`
	// Expires is the absolute expiry in epoch seconds. Only present when
	// application-side expiry tracking is active; never present without
	// Timeout.
	Expires int64 `json:"x,omitempty"`
}

// SerializeFunc converts a payload into bytes for backend storage.
type SerializeFunc func(Payload) ([]byte, error)

// DeserializeFunc is the dual of SerializeFunc.
type DeserializeFunc func([]byte) (Payload, error)

// JSONSerialize is the default SerializeFunc.
func JSONSerialize(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// JSONDeserialize is the default DeserializeFunc.
func JSONDeserialize(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Codec encodes and decodes session payloads and maintains the expiry
// bookkeeping embedded in them.
type Codec struct {
	serialize   SerializeFunc
	deserialize DeserializeFunc
}

// NewCodec creates a codec with the given (de)serializers. Nil arguments
// fall back to the JSON implementations.
func NewCodec(serialize SerializeFunc, deserialize DeserializeFunc) *Codec {
	if serialize == nil {
		serialize = JSONSerialize
	}
	if deserialize == nil {
		deserialize = JSONDeserialize
	}
	return &Codec{serialize: serialize, deserialize: deserialize}
}

// Encode recomputes the payload's expiry bookkeeping and serializes it.
//
// When expiry tracking is active, Expires slides to now+Timeout once the
// trigger window is entered (or on every encode when no trigger is set).
// Outside the window the previous Expires is carried forward unchanged, so
// a deferred-write configuration does not advance expiry on every request.
func (c *Codec) Encode(p Payload, now, trigger int64, trackExpires bool) ([]byte, error) {
	out := Payload{
		Data:    p.Data,
		Created: p.Created,
		Version: APIVersion,
	}
	// Expires never appears without Timeout.
	if p.Timeout != 0 {
		out.Timeout = p.Timeout
		if trackExpires {
			out.Expires = p.Expires
			if trigger == 0 || now >= p.Expires-trigger {
				out.Expires = now + p.Timeout
			}
		}
	}
	raw, err := c.serialize(out)
	if err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	return raw, nil
}

// Decode deserializes a stored payload. Malformed input is reported as
// ErrDeserialization with the underlying cause attached.
func (c *Codec) Decode(raw []byte) (Payload, error) {
	p, err := c.deserialize(raw)
	if err != nil {
		return Payload{}, errors.Join(ErrDeserialization, err)
	}
	return p, nil
}

// Empty returns a fresh payload created at now. Timeout of zero produces a
// payload with no timeout fields at all (backend-delegated expiry).
func Empty(now, timeout int64, trackExpires bool) Payload {
	p := Payload{
		Data:    make(map[string]any),
		Created: now,
		Version: APIVersion,
	}
	if timeout != 0 {
		p.Timeout = timeout
		if trackExpires {
			p.Expires = now + timeout
		}
	}
	return p
}

// Fingerprint hashes serialized payload bytes for change detection. The
// hash is content-based and stable across processes; it is only ever
// compared, never stored.
func Fingerprint(serialized []byte) uint64 {
	return xxhash.Sum64(serialized)
}
