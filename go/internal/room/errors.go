package room

import "errors"

var (
	// ErrInvalidSession is returned when a connection is not bound to the room named in a request.
	ErrInvalidSession = errors.New("invalid session")
	// ErrRoomNotFound is returned when a bound room no longer exists.
	ErrRoomNotFound = errors.New("room not found")
	// ErrValidation is returned when required request fields are missing.
	ErrValidation = errors.New("validation error")
)
