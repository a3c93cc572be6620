package fixture

import "errors"

// Sentinel kinds for fixture errors.
var (
	ErrLoad          = errors.New("load tracking fixture")
	ErrInvalidSignal = errors.New("invalid weather value")
)
