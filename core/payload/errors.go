package payload

import "errors"

var (
	// ErrSerialization is returned when a payload cannot be serialized.
	ErrSerialization = errors.New("failed to serialize session payload")
	// ErrDeserialization is returned when stored bytes cannot be decoded
	// into a payload.
	ErrDeserialization = errors.New("failed to deserialize session payload")
)
