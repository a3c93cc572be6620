// Package model contains domain models passed between layers.
package model

import "fmt"

// ScriptError marks a result field whose real value could not be determined.
// A row carrying it still counts as processed for resume purposes.
const ScriptError = "SCRIPT_ERROR"

// Verdict is the on-time classification of a delivered shipment.
type Verdict string

// Verdict values as they appear in the output.
const (
	VerdictOnTime   Verdict = "Yes"
	VerdictLate     Verdict = "No"
	VerdictResearch Verdict = "Research"
)

// Mode selects how the next tracking query is submitted to a lookup session.
type Mode int

const (
	// ModeFresh is used for the first query and after a clean result.
	ModeFresh Mode = iota
	// ModeRecovery is used immediately after the source rejected a query.
	ModeRecovery
)

func (m Mode) String() string {
	switch m {
	case ModeFresh:
		return "fresh"
	case ModeRecovery:
		return "recovery"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// WeatherSignal is the weather-delay indicator reported by a lookup.
type WeatherSignal int

const (
	WeatherUnknown WeatherSignal = iota
	WeatherYes
	WeatherNo
)

// Field renders the signal as an output field value.
func (w WeatherSignal) Field() string {
	switch w {
	case WeatherYes:
		return "Yes"
	case WeatherNo:
		return "No"
	default:
		return ScriptError
	}
}

// ShipmentRecord is one row of the work batch.
type ShipmentRecord struct {
	TrackingID   string
	ServiceLevel string
	// Fields holds every input column verbatim, keyed by header name.
	Fields map[string]string
}

// TrackingResult is what a lookup returns for one tracking id. Empty
// strings mean the source did not report that value.
type TrackingResult struct {
	ShipDate     string // MM/DD/YYYY
	ShipTime     string // H:MM A.M./P.M.
	DeliveryDate string
	DeliveryTime string
	Weather      WeatherSignal
}

// EnrichedRecord is a ShipmentRecord plus the five result fields.
type EnrichedRecord struct {
	ShipmentRecord
	ShipDate     string
	DeliveryDate string
	DeliveryTime string
	OnTime       string
	Weather      string
}

// FailedRecord returns rec with every result field set to ScriptError.
func FailedRecord(rec ShipmentRecord) EnrichedRecord {
	return EnrichedRecord{
		ShipmentRecord: rec,
		ShipDate:       ScriptError,
		DeliveryDate:   ScriptError,
		DeliveryTime:   ScriptError,
		OnTime:         ScriptError,
		Weather:        ScriptError,
	}
}

// Failed reports whether every result field carries the sentinel.
func (e EnrichedRecord) Failed() bool {
	return e.ShipDate == ScriptError &&
		e.DeliveryDate == ScriptError &&
		e.DeliveryTime == ScriptError &&
		e.OnTime == ScriptError &&
		e.Weather == ScriptError
}

// LookupError is a carrier-reported refusal to resolve a tracking id, such
// as "invalid tracking number". It is not a fault of the lookup mechanism.
type LookupError struct {
	TrackingID string
	Message    string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s: %s", e.TrackingID, e.Message)
}

// Job is a record queued for a lookup session. Seq is its input position.
type Job struct {
	Seq    int
	Record ShipmentRecord
}
