package sessiontransport

import "errors"

var (
	// ErrNotWired is returned by FromContext when the request did not pass
	// through the transport middleware.
	ErrNotWired = errors.New("sessiontransport: middleware not installed")
)
