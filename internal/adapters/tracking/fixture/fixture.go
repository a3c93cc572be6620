// Package fixture serves tracking results from a YAML file. It stands in
// for the carrier site in dry runs, demos and end-to-end tests.
package fixture

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/shipaudit/internal/domain/model"
)

// NotFoundMessage is reported for ids the fixture does not know.
const NotFoundMessage = "tracking number not found"

// Entry is the canned carrier answer for one tracking id.
type Entry struct {
	ShipDate     string `yaml:"ship_date,omitempty"`
	ShipTime     string `yaml:"ship_time,omitempty"`
	DeliveryDate string `yaml:"delivery_date,omitempty"`
	DeliveryTime string `yaml:"delivery_time,omitempty"`
	// Weather is "yes", "no" or empty for unknown.
	Weather string `yaml:"weather,omitempty"`
	// Error makes the lookup fail as a carrier rejection with this text.
	Error string `yaml:"error,omitempty"`
	// DelayMS holds the answer back, honouring cancellation.
	DelayMS int `yaml:"delay_ms,omitempty"`
}

// File is the on-disk layout.
type File struct {
	Shipments map[string]Entry `yaml:"shipments"`
}

// Call is one lookup as seen by the fixture.
type Call struct {
	TrackingID string
	Mode       model.Mode
}

// Lookup answers tracking queries from a fixed table.
type Lookup struct {
	entries map[string]Entry

	mu    sync.Mutex
	calls []Call
}

// New returns a Lookup over entries.
func New(entries map[string]Entry) *Lookup {
	cp := make(map[string]Entry, len(entries))
	for id, e := range entries {
		cp[strings.TrimSpace(id)] = e
	}
	return &Lookup{entries: cp}
}

// Load reads a fixture file from path.
func Load(path string) (*Lookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return Parse(data)
}

// Parse decodes fixture YAML and checks every weather value.
func Parse(data []byte) (*Lookup, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	for id, e := range f.Shipments {
		if _, err := weather(e.Weather); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoad, id, err)
		}
	}
	return New(f.Shipments), nil
}

// Marshal encodes entries in the layout Parse reads.
func Marshal(entries map[string]Entry) ([]byte, error) {
	return yaml.Marshal(File{Shipments: entries})
}

// Lookup implements the tracking lookup contract.
func (l *Lookup) Lookup(ctx context.Context, trackingID string, mode model.Mode) (model.TrackingResult, error) {
	l.mu.Lock()
	l.calls = append(l.calls, Call{TrackingID: trackingID, Mode: mode})
	l.mu.Unlock()

	e, ok := l.entries[trackingID]
	if !ok {
		return model.TrackingResult{}, &model.LookupError{TrackingID: trackingID, Message: NotFoundMessage}
	}

	if e.DelayMS > 0 {
		t := time.NewTimer(time.Duration(e.DelayMS) * time.Millisecond)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return model.TrackingResult{}, ctx.Err()
		case <-t.C:
		}
	}

	if e.Error != "" {
		return model.TrackingResult{}, &model.LookupError{TrackingID: trackingID, Message: e.Error}
	}

	w, err := weather(e.Weather)
	if err != nil {
		return model.TrackingResult{}, err
	}
	return model.TrackingResult{
		ShipDate:     e.ShipDate,
		ShipTime:     e.ShipTime,
		DeliveryDate: e.DeliveryDate,
		DeliveryTime: e.DeliveryTime,
		Weather:      w,
	}, nil
}

// Calls returns every lookup made so far, in call order.
func (l *Lookup) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// Len returns the number of known tracking ids.
func (l *Lookup) Len() int { return len(l.entries) }

func weather(v string) (model.WeatherSignal, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return model.WeatherUnknown, nil
	case "yes", "true":
		return model.WeatherYes, nil
	case "no", "false":
		return model.WeatherNo, nil
	default:
		return model.WeatherUnknown, fmt.Errorf("%w: %q", ErrInvalidSignal, v)
	}
}
