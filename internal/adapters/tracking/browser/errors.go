package browser

import "errors"

// Sentinel kinds for browser adapter errors.
var (
	ErrLaunch     = errors.New("launch browser")
	ErrOpen       = errors.New("open tracking page")
	ErrSubmit     = errors.New("submit tracking query")
	ErrNoResults  = errors.New("tracking results not shown")
	ErrNotStarted = errors.New("browser not started")
)
