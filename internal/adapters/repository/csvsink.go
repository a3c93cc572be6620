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
	"sync"

	"github.com/okian/shipaudit/internal/domain/model"
	"github.com/okian/shipaudit/pkg/metrics"
)

// CSVSink appends enriched rows to a CSV file. Existing bytes are never
// rewritten; a run against an existing file continues it.
type CSVSink struct {
	mu        sync.Mutex
	f         *os.File
	header    []string
	opts      options
	completed []string
	count     int
	closed    bool
}

// OpenCSVSink opens or creates the output file at path. When the file
// already has a header it is kept as is; otherwise the input header plus the
// missing result columns is written first.
func OpenCSVSink(path string, inputHeader []string, opts ...Option) (*CSVSink, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrWrite, path, err)
	}

	s := &CSVSink{f: f, opts: o}
	if err := s.load(); err != nil {
		_ = f.Close()
		return nil, err
	}

	if s.header == nil {
		s.header = OutputHeader(inputHeader)
		if err := s.writeRow(s.header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// load reads rows already present and positions the file for appending.
func (s *CSVSink) load() error {
	data, err := io.ReadAll(s.f)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if len(data) > 0 {
			if err := s.f.Truncate(0); err != nil {
				return fmt.Errorf("%w: %w", ErrWrite, err)
			}
			if _, err := s.f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("%w: %w", ErrWrite, err)
			}
		}
		return nil
	}

	rows, keep, err := completeRows(data)
	if err != nil {
		return fmt.Errorf("%w: existing output: %w", ErrRead, err)
	}
	if keep < len(data) {
		// Drop the torn final line; its record has no row and is retried.
		if err := s.f.Truncate(int64(keep)); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
		if _, err := s.f.Seek(int64(keep), io.SeekStart); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	header := rows[0]
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	tracking := indexOf(header, s.opts.trackingColumn)
	shipDate := indexOf(header, ColumnShipDate)
	if tracking < 0 || shipDate < 0 {
		return fmt.Errorf("%w: need %q and %q", ErrIncompatibleHeader, s.opts.trackingColumn, ColumnShipDate)
	}
	s.header = header

	for _, row := range rows[1:] {
		s.count++
		if tracking >= len(row) || shipDate >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[tracking])
		if id != "" && row[shipDate] != "" {
			s.completed = append(s.completed, id)
		}
	}
	return nil
}

// completeRows parses the newline-terminated rows of data and returns them
// with the length of the prefix they occupy. Anything after that prefix is
// a final row whose write was cut short. A malformed row anywhere else is an
// error.
func completeRows(data []byte) ([][]string, int, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	var rows [][]string
	keep := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, keep, nil
		}
		if err != nil {
			// An open quote or a missing newline on the last row means it is torn.
			_, next := cr.Read()
			last := errors.Is(next, io.EOF)
			if last && (errors.Is(err, csv.ErrQuote) || data[len(data)-1] != '\n') {
				return rows, keep, nil
			}
			return nil, 0, err
		}
		end := int(cr.InputOffset())
		if data[end-1] != '\n' {
			return rows, keep, nil
		}
		rows = append(rows, row)
		keep = end
	}
}

// Header returns the output column names.
func (s *CSVSink) Header() []string {
	return append([]string(nil), s.header...)
}

// Append implements Sink.
func (s *CSVSink) Append(ctx context.Context, rec model.EnrichedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.writeRow(Row(s.header, rec)); err != nil {
		return err
	}
	s.count++
	if rec.ShipDate != "" && rec.TrackingID != "" {
		s.completed = append(s.completed, rec.TrackingID)
	}
	metrics.RecordSinkAppend()
	return nil
}

// writeRow encodes row in memory and hands it to the file in one write.
func (s *CSVSink) writeRow(row []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}

	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if s.opts.sync {
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("%w: sync: %w", ErrWrite, err)
		}
	}
	return nil
}

// Completed implements Sink.
func (s *CSVSink) Completed(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...), nil
}

// Count implements Sink.
func (s *CSVSink) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

// Close implements Sink. Closing twice is a no-op.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%w: close: %w", ErrWrite, err)
	}
	return nil
}
