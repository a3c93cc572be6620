// Package samplebatch generates synthetic shipment batches together with a
// matching tracking fixture, for demos and end-to-end checks.
package samplebatch

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/shipaudit/internal/adapters/repository"
	"github.com/okian/shipaudit/internal/adapters/tracking/fixture"
	"github.com/okian/shipaudit/internal/domain/carriertime"
	"github.com/okian/shipaudit/internal/domain/model"
	"github.com/okian/shipaudit/internal/domain/servicelevel"
	"github.com/okian/shipaudit/pkg/logger"
)

// Output file names written by Write.
const (
	BatchFile   = "batch.csv"
	FixtureFile = "fixture.yaml"
)

// UnknownLevel is a service level no catalog defines.
const UnknownLevel = "Unknown Level"

const (
	dateLayout   = "01/02/2006"
	shipClock    = carriertime.Clock(6 * 60)
	earlyMargin  = 30
	lateExtraDay = 2
	filePerm     = 0o644
)

// Kind is the outcome a generated shipment is built to produce.
type Kind int

const (
	KindOnTime Kind = iota
	KindResearch
	KindLate
	KindRejected
	KindInTransit
	KindUnknownLevel
	kindCount
)

// Expected returns the On Time? value a run should write for the kind.
func (k Kind) Expected() string {
	switch k {
	case KindOnTime:
		return string(model.VerdictOnTime)
	case KindResearch:
		return string(model.VerdictResearch)
	case KindLate:
		return string(model.VerdictLate)
	default:
		return model.ScriptError
	}
}

// Config controls generation.
type Config struct {
	Count int
	// Seed makes the output reproducible.
	Seed uint64
	// Start is the first possible ship date. It is moved forward to a Monday.
	Start   time.Time
	Catalog *servicelevel.Catalog
}

// Sample is a generated batch plus the carrier answers that go with it.
type Sample struct {
	Records  []model.ShipmentRecord
	Fixture  map[string]fixture.Entry
	Kinds    map[string]Kind
	Expected map[string]string
}

// Generate builds a sample. Each kind appears in turn so small batches still
// cover every outcome.
func Generate(ctx context.Context, cfg Config) (*Sample, error) {
	if cfg.Count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", cfg.Count)
	}
	cat := cfg.Catalog
	if cat == nil {
		cat = servicelevel.Default()
	}
	levels := cat.Names()
	if len(levels) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	start := cfg.Start
	if start.IsZero() {
		start = time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	}
	for start.Weekday() != time.Monday {
		start = start.AddDate(0, 0, 1)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	idSource := rand.NewChaCha8(seedBytes(cfg.Seed))

	s := &Sample{
		Fixture:  make(map[string]fixture.Entry, cfg.Count),
		Kinds:    make(map[string]Kind, cfg.Count),
		Expected: make(map[string]string, cfg.Count),
	}
	for i := 0; i < cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u, err := uuid.NewRandomFromReader(idSource)
		if err != nil {
			return nil, fmt.Errorf("tracking id: %w", err)
		}
		id := trackingID(u)
		kind := Kind(i % int(kindCount))
		level := levels[rng.IntN(len(levels))]

		// Monday to Wednesday keeps weekend adjustment out of the picture.
		ship := start.AddDate(0, 0, 7*rng.IntN(8)+rng.IntN(3))
		contract, err := cat.Get(level)
		if err != nil {
			return nil, err
		}

		entry := entryFor(kind, contract, ship)
		if kind == KindUnknownLevel {
			level = UnknownLevel
		}

		s.Records = append(s.Records, model.ShipmentRecord{
			TrackingID:   id,
			ServiceLevel: level,
			Fields: map[string]string{
				repository.DefaultTrackingColumn:     id,
				repository.DefaultServiceLevelColumn: level,
				"Reference":                          fmt.Sprintf("REF-%05d", i+1),
			},
		})
		if kind != KindRejected {
			s.Fixture[id] = entry
		}
		s.Kinds[id] = kind
		s.Expected[id] = kind.Expected()
	}

	logger.Get().Debug(ctx, "sample generated",
		logger.Int("records", len(s.Records)),
		logger.Int("fixture_entries", len(s.Fixture)),
	)
	return s, nil
}

func entryFor(kind Kind, c servicelevel.Contract, ship time.Time) fixture.Entry {
	e := fixture.Entry{
		ShipDate: ship.Format(dateLayout),
		ShipTime: shipClock.String(),
		Weather:  "no",
	}
	day := ship.AddDate(0, 0, c.DaysLimit)
	switch kind {
	case KindOnTime, KindUnknownLevel:
		e.DeliveryDate = day.Format(dateLayout)
		e.DeliveryTime = (c.Earliest - earlyMargin).String()
	case KindResearch:
		e.DeliveryDate = day.Format(dateLayout)
		e.DeliveryTime = (c.Earliest + (c.Latest-c.Earliest)/2).String()
		e.Weather = "yes"
	case KindLate:
		e.DeliveryDate = day.AddDate(0, 0, lateExtraDay).Format(dateLayout)
		e.DeliveryTime = (c.Earliest - earlyMargin).String()
	case KindInTransit:
		e.Weather = ""
	}
	return e
}

// trackingID shapes a UUID like a carrier number: "1Z" plus 16 hex digits.
func trackingID(u uuid.UUID) string {
	return "1Z" + strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:16])
}

func seedBytes(seed uint64) [32]byte {
	var b [32]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(seed >> (8 * i))
	}
	return b
}

// Write stores the batch as CSV and the fixture as YAML in dir, returning
// both paths.
func (s *Sample) Write(dir string) (batchPath, fixturePath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create %s: %w", dir, err)
	}

	header := []string{repository.DefaultTrackingColumn, repository.DefaultServiceLevelColumn, "Reference"}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return "", "", err
	}
	for _, r := range s.Records {
		if err := w.Write(repository.Row(header, model.EnrichedRecord{ShipmentRecord: r})); err != nil {
			return "", "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", "", err
	}

	batchPath = filepath.Join(dir, BatchFile)
	if err := os.WriteFile(batchPath, buf.Bytes(), filePerm); err != nil {
		return "", "", fmt.Errorf("write batch: %w", err)
	}

	data, err := fixture.Marshal(s.Fixture)
	if err != nil {
		return "", "", fmt.Errorf("encode fixture: %w", err)
	}
	fixturePath = filepath.Join(dir, FixtureFile)
	if err := os.WriteFile(fixturePath, data, filePerm); err != nil {
		return "", "", fmt.Errorf("write fixture: %w", err)
	}
	return batchPath, fixturePath, nil
}
