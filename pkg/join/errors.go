package join

import "errors"

// ErrClosed is returned by RequestPage after Close.
var ErrClosed = errors.New("join engine closed")
