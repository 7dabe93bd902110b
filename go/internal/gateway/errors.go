package gateway

import "errors"

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrShuttingDown     = errors.New("dispatcher is shutting down")
)
