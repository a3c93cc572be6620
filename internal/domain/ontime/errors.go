package ontime

import (
	"errors"

	"github.com/okian/shipaudit/internal/domain/carriertime"
)

// Sentinel error kinds for classification. These allow errors.Is from callers.
var (
	ErrInvalidServiceLevel  = errors.New("invalid service level")
	ErrUnparseableTimestamp = carriertime.ErrUnparseableTimestamp
)
