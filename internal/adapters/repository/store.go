// Package repository reads shipment batches and persists enriched rows.
package repository

import (
	"context"

	"github.com/okian/shipaudit/internal/domain/model"
)

// Result column names appended to the input header.
const (
	ColumnShipDate     = "Ship Date"
	ColumnDeliveryDate = "Delivery Date"
	ColumnDeliveryTime = "Delivery Time"
	ColumnOnTime       = "On Time?"
	ColumnWeather      = "Weather?"
)

// ResultColumns returns the result column names in output order.
func ResultColumns() []string {
	return []string{ColumnShipDate, ColumnDeliveryDate, ColumnDeliveryTime, ColumnOnTime, ColumnWeather}
}

// Source provides the work batch in input order.
type Source interface {
	// Header returns the input column names in file order.
	Header() []string
	// Records returns every record of the batch in input order.
	Records(ctx context.Context) ([]model.ShipmentRecord, error)
}

// Sink is the append-only destination for enriched rows.
type Sink interface {
	// Append durably adds one row. Previously written rows are never touched.
	Append(ctx context.Context, rec model.EnrichedRecord) error
	// Completed returns the tracking ids that already have a result row.
	Completed(ctx context.Context) ([]string, error)
	// Count returns the number of result rows held.
	Count(ctx context.Context) (int, error)
	Close() error
}

// OutputHeader returns input extended with any result column it lacks.
func OutputHeader(input []string) []string {
	out := make([]string, 0, len(input)+len(ResultColumns()))
	out = append(out, input...)
	have := make(map[string]struct{}, len(input))
	for _, c := range input {
		have[c] = struct{}{}
	}
	for _, c := range ResultColumns() {
		if _, ok := have[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Row renders rec against header. Result columns take the enriched values,
// everything else comes from the input fields.
func Row(header []string, rec model.EnrichedRecord) []string {
	row := make([]string, len(header))
	for i, col := range header {
		switch col {
		case ColumnShipDate:
			row[i] = rec.ShipDate
		case ColumnDeliveryDate:
			row[i] = rec.DeliveryDate
		case ColumnDeliveryTime:
			row[i] = rec.DeliveryTime
		case ColumnOnTime:
			row[i] = rec.OnTime
		case ColumnWeather:
			row[i] = rec.Weather
		default:
			row[i] = rec.Fields[col]
		}
	}
	return row
}

func indexOf(header []string, name string) int {
	for i, c := range header {
		if c == name {
			return i
		}
	}
	return -1
}
