package replay

import "errors"

// ErrPositionNotClosed is returned when replaying a position that is not CLOSED.
var ErrPositionNotClosed = errors.New("position is not closed")
