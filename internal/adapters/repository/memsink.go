package repository

import (
	"context"
	"sync"

	"github.com/okian/shipaudit/internal/domain/model"
)

// MemorySink keeps enriched rows in memory. It is used for dry runs and
// tests.
type MemorySink struct {
	mu     sync.Mutex
	rows   []model.EnrichedRecord
	closed bool
}

// NewMemorySink returns a sink already holding seed rows.
func NewMemorySink(seed ...model.EnrichedRecord) *MemorySink {
	return &MemorySink{rows: append([]model.EnrichedRecord(nil), seed...)}
}

// Append implements Sink.
func (s *MemorySink) Append(ctx context.Context, rec model.EnrichedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.rows = append(s.rows, rec)
	return nil
}

// Completed implements Sink.
func (s *MemorySink) Completed(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rows))
	for _, r := range s.rows {
		if r.TrackingID != "" && r.ShipDate != "" {
			ids = append(ids, r.TrackingID)
		}
	}
	return ids, nil
}

// Count implements Sink.
func (s *MemorySink) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows), nil
}

// Rows returns a copy of every row appended so far, in append order.
func (s *MemorySink) Rows() []model.EnrichedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.EnrichedRecord(nil), s.rows...)
}

// Close implements Sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
