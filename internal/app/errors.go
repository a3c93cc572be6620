package service

import "errors"

// Sentinel kinds for coordinator errors.
var (
	ErrNoSink        = errors.New("no result sink configured")
	ErrNoSessions    = errors.New("no lookup sessions configured")
	ErrLoadCompleted = errors.New("load completed records")
	ErrSinkWrite     = errors.New("append result row")
	ErrLookupTimeout = errors.New("tracking lookup timed out")
	ErrLookupPanic   = errors.New("tracking lookup panicked")
	ErrSessionsLost  = errors.New("every lookup session was lost")
)
