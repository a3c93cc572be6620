package servicelevel

import "errors"

// Sentinel error kinds for the catalog.
var (
	ErrNotFound        = errors.New("service level not found")
	ErrInvalidContract = errors.New("invalid service level contract")
)
