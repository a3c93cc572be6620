package carriertime

import (
	"errors"
	"fmt"
)

// ErrUnparseableTimestamp is matched by every parse failure in this package.
var ErrUnparseableTimestamp = errors.New("unparseable timestamp")

// ParseError describes which value failed to parse and why.
type ParseError struct {
	Field  string // "date" or "time"
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrUnparseableTimestamp }
