// Package ontime classifies a delivered shipment against its service-level
// delivery window.
package ontime

import (
	"fmt"
	"time"

	"github.com/okian/shipaudit/internal/domain/carriertime"
	"github.com/okian/shipaudit/internal/domain/model"
	"github.com/okian/shipaudit/internal/domain/servicelevel"
)

const day = 24 * time.Hour

// Classifier computes on-time verdicts from raw carrier timestamps.
type Classifier struct {
	catalog *servicelevel.Catalog
}

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithCatalog replaces the default service-level catalog.
func WithCatalog(c *servicelevel.Catalog) Option {
	return func(cl *Classifier) {
		if c != nil {
			cl.catalog = c
		}
	}
}

// New creates a classifier backed by the default catalog unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{catalog: servicelevel.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify resolves the contract for serviceLevel, parses the four carrier
// strings and evaluates the verdict. It fails with ErrInvalidServiceLevel or
// ErrUnparseableTimestamp.
func (c *Classifier) Classify(serviceLevel, shipDate, shipTime, deliveryDate, deliveryTime string) (model.Verdict, error) {
	contract, err := c.catalog.Get(serviceLevel)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidServiceLevel, err)
	}

	ship, err := carriertime.Parse(shipDate, shipTime)
	if err != nil {
		return "", fmt.Errorf("ship timestamp: %w", err)
	}
	delivered, err := carriertime.Parse(deliveryDate, deliveryTime)
	if err != nil {
		return "", fmt.Errorf("delivery timestamp: %w", err)
	}

	return Evaluate(contract, ship, delivered), nil
}

// AdjustedDaysLimit extends the contract limit for weekend dwell time: two
// extra days for a Friday ship date, one for Saturday.
func AdjustedDaysLimit(contract servicelevel.Contract, ship time.Time) int {
	limit := contract.DaysLimit
	switch ship.Weekday() {
	case time.Friday:
		limit += 2
	case time.Saturday:
		limit++
	}
	return limit
}

// ElapsedDays returns the whole days between ship and delivery, truncated.
func ElapsedDays(ship, delivered time.Time) int {
	return int(delivered.Sub(ship) / day)
}

// Evaluate applies the decision rules to parsed timestamps. The window is
// anchored on the delivery date. First match wins:
//
//	elapsed > adjusted limit    -> Late
//	delivered < earliest        -> OnTime
//	earliest <= delivered <= latest -> Research
//	delivered > latest          -> Late
func Evaluate(contract servicelevel.Contract, ship, delivered time.Time) model.Verdict {
	onDay := carriertime.Date{Year: delivered.Year(), Month: delivered.Month(), Day: delivered.Day()}
	earliest := contract.Earliest.On(onDay)
	latest := contract.Latest.On(onDay)

	switch {
	case ElapsedDays(ship, delivered) > AdjustedDaysLimit(contract, ship):
		return model.VerdictLate
	case delivered.Before(earliest):
		return model.VerdictOnTime
	case !delivered.Before(earliest) && !delivered.After(latest):
		return model.VerdictResearch
	case delivered.After(latest):
		return model.VerdictLate
	}
	return model.VerdictResearch
}
