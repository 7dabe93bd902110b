package teamdefaults

import "errors"

// ErrPersistence is returned when team defaults cannot be read or written.
var ErrPersistence = errors.New("team defaults persistence failed")
