package repository

import "errors"

// Sentinel kinds for record source and sink errors.
var (
	ErrMissingColumn      = errors.New("required column missing from header")
	ErrIncompatibleHeader = errors.New("existing output header is incompatible")
	ErrRead               = errors.New("read records")
	ErrWrite              = errors.New("write record")
	ErrClosed             = errors.New("sink closed")
)
