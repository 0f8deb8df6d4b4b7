package publish

import "errors"

var (
	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid publish request")

	// ErrAsyncUnavailable is returned by RunAsync without a DBOS runtime
	ErrAsyncUnavailable = errors.New("durable publishing requires the DBOS runtime")
)
