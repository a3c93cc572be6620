package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/okian/shipaudit/internal/domain/model"
)

const utf8BOM = "\ufeff"

// CSVSource reads a work batch from CSV with a header row.
type CSVSource struct {
	header   []string
	rows     [][]string
	tracking int
	service  int
}

// OpenCSVSource loads the batch stored at path.
func OpenCSVSource(path string, opts ...Option) (*CSVSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return NewCSVSource(bytes.NewReader(data), opts...)
}

// NewCSVSource parses a batch from r. The header must name both the
// tracking and service level columns.
func NewCSVSource(r io.Reader, opts ...Option) (*CSVSource, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty input, no header", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrRead, err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)

	s := &CSVSource{
		header:   header,
		tracking: indexOf(header, o.trackingColumn),
		service:  indexOf(header, o.serviceLevelColumn),
	}
	if s.tracking < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, o.trackingColumn)
	}
	if s.service < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, o.serviceLevelColumn)
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		s.rows = append(s.rows, row)
	}
	return s, nil
}

// Header implements Source.
func (s *CSVSource) Header() []string {
	return append([]string(nil), s.header...)
}

// Records implements Source.
func (s *CSVSource) Records(ctx context.Context) ([]model.ShipmentRecord, error) {
	out := make([]model.ShipmentRecord, 0, len(s.rows))
	for _, row := range s.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(s.header))
		for i, col := range s.header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}
		out = append(out, model.ShipmentRecord{
			TrackingID:   strings.TrimSpace(fields[s.header[s.tracking]]),
			ServiceLevel: strings.TrimSpace(fields[s.header[s.service]]),
			Fields:       fields,
		})
	}
	return out, nil
}
