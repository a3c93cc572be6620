// Package service runs a shipment batch: one tracking lookup per record,
// classification, and an append-only result row, resumable after any stop.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/shipaudit/internal/adapters/mq/queue"
	"github.com/okian/shipaudit/internal/adapters/mq/worker"
	"github.com/okian/shipaudit/internal/adapters/repository"
	"github.com/okian/shipaudit/internal/domain/carriertime"
	"github.com/okian/shipaudit/internal/domain/checkpoint"
	"github.com/okian/shipaudit/internal/domain/model"
	"github.com/okian/shipaudit/internal/domain/ontime"
	"github.com/okian/shipaudit/pkg/logger"
	"github.com/okian/shipaudit/pkg/metrics"
)

// Default coordinator configuration.
const (
	defaultLookupTimeout = 60 * time.Second
	defaultLookupGrace   = 5 * time.Second
	defaultQueueSize     = 16
)

// Lookup resolves one tracking id. A *model.LookupError means the carrier
// refused the id; any other error is a fault of the lookup itself.
type Lookup interface {
	Lookup(ctx context.Context, trackingID string, mode model.Mode) (model.TrackingResult, error)
}

// Classifier computes the on-time verdict from raw carrier strings.
type Classifier interface {
	Classify(serviceLevel, shipDate, shipTime, deliveryDate, deliveryTime string) (model.Verdict, error)
}

// session is one lookup mechanism plus its submission mode. Only the
// session's own worker touches it. A lost session had a lookup outlive its
// deadline and grace period; it never gets another record.
type session struct {
	name   string
	lookup Lookup
	mode   model.Mode
	lost   bool
}

// Summary reports what a run did.
type Summary struct {
	RunID     string
	Total     int
	Skipped   int
	Processed int
	Succeeded int
	Failed    int
	Verdicts  map[model.Verdict]int
	Duration  time.Duration
}

// Remaining is the number of records neither skipped nor processed, which a
// later run will pick up.
func (s Summary) Remaining() int {
	return s.Total - s.Skipped - s.Processed
}

// Coordinator drives records through lookup sessions into the sink.
type Coordinator struct {
	sink          repository.Sink
	classifier    Classifier
	sessions      []*session
	lookupTimeout time.Duration
	lookupGrace   time.Duration
	pause         time.Duration
	queueSize     int
	logger        logger.Logger
}

// New constructs a Coordinator. A sink and at least one session are
// required before Run.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		classifier:    ontime.New(),
		lookupTimeout: defaultLookupTimeout,
		lookupGrace:   defaultLookupGrace,
		queueSize:     defaultQueueSize,
		logger:        logger.Get().Named("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run is the state of one Run call.
type run struct {
	id   string
	done checkpoint.Set

	mu      sync.Mutex
	summary Summary
}

// Run processes records in input order and returns once every record is
// skipped or written, ctx ends, or the sink fails. Record-level failures
// never abort the run; they become SCRIPT_ERROR rows.
func (c *Coordinator) Run(ctx context.Context, records []model.ShipmentRecord) (Summary, error) {
	if c.sink == nil {
		return Summary{}, ErrNoSink
	}
	if len(c.sessions) == 0 {
		return Summary{}, ErrNoSessions
	}
	live := c.liveSessions()
	if len(live) == 0 {
		return Summary{}, ErrSessionsLost
	}

	start := time.Now()
	ids, err := c.sink.Completed(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrLoadCompleted, err)
	}

	r := &run{
		id:   uuid.NewString(),
		done: checkpoint.NewInMemorySet(checkpoint.WithCompleted(ids)),
		summary: Summary{
			Total:    len(records),
			Verdicts: make(map[model.Verdict]int),
		},
	}
	r.summary.RunID = r.id
	metrics.UpdateCompleted(r.done.Size())

	c.logger.Info(ctx, "run started",
		logger.String("run_id", r.id),
		logger.Int("records", len(records)),
		logger.Int64("already_done", r.done.Size()),
		logger.Int("sessions", len(live)),
	)

	q := queue.NewInMemoryQueue(queue.WithCapacity(c.queueSize))
	procs := make([]worker.Processor, len(live))
	for i, s := range live {
		procs[i] = worker.ProcessorFunc(func(ctx context.Context, job model.Job) error {
			return c.process(ctx, r, s, job)
		})
	}
	pool := worker.NewPool(q, procs, worker.WithPoolLogger(c.logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Unblocks the producer if every session retired early.
		defer q.Close()
		return pool.Run(gctx)
	})
	g.Go(func() error {
		defer q.Close()
		for i, rec := range records {
			if err := q.Enqueue(gctx, model.Job{Seq: i, Record: rec}); err != nil {
				if errors.Is(err, queue.ErrClosed) || gctx.Err() != nil {
					return nil
				}
				return err
			}
		}
		return nil
	})
	err = g.Wait()
	queued := q.Len(ctx)

	summary := r.snapshot()
	summary.Duration = time.Since(start)
	metrics.UpdateRunDuration(summary.Duration.Seconds())
	metrics.UpdateCompleted(r.done.Size())

	fields := []logger.Field{
		logger.String("run_id", r.id),
		logger.Int("processed", summary.Processed),
		logger.Int("succeeded", summary.Succeeded),
		logger.Int("failed", summary.Failed),
		logger.Int("skipped", summary.Skipped),
		logger.Int("remaining", summary.Remaining()),
		logger.Duration("duration", summary.Duration),
	}
	if err == nil && ctx.Err() == nil && len(c.liveSessions()) == 0 && summary.Remaining() > 0 {
		err = ErrSessionsLost
		fields = append(fields, logger.Int("queued", queued))
	}
	switch {
	case err != nil:
		c.logger.Error(ctx, "run aborted", append(fields, logger.Error(err))...)
		return summary, err
	case ctx.Err() != nil:
		c.logger.Warn(ctx, "run interrupted, resumable", fields...)
		return summary, ctx.Err()
	default:
		c.logger.Info(ctx, "run finished", fields...)
		return summary, nil
	}
}

// process handles one record on session s. The only error it returns is a
// sink failure; everything else is captured in the row.
func (c *Coordinator) process(ctx context.Context, r *run, s *session, job model.Job) error {
	rec := job.Record
	log := c.logger.With(
		logger.String("run_id", r.id),
		logger.String("session", s.name),
		logger.Int("seq", job.Seq),
		logger.String("tracking_id", rec.TrackingID),
	)

	if rec.TrackingID == "" {
		r.skip()
		log.Debug(ctx, "record skipped, empty tracking id")
		return nil
	}
	if r.done.Claim(ctx, rec.TrackingID) {
		r.skip()
		log.Debug(ctx, "record skipped, already done")
		return nil
	}

	start := time.Now()
	out, ok := c.enrich(ctx, s, rec, log)
	if !ok {
		// Interrupted mid-lookup: leave the record for the next run.
		r.done.Release(ctx, rec.TrackingID)
		return nil
	}

	// The row is complete; write it even if cancellation arrived meanwhile.
	if err := c.sink.Append(context.WithoutCancel(ctx), out); err != nil {
		r.done.Release(ctx, rec.TrackingID)
		metrics.RecordSinkError()
		return fmt.Errorf("%w: %s: %w", ErrSinkWrite, rec.TrackingID, err)
	}
	metrics.RecordRecordLatency(float64(time.Since(start).Milliseconds()))
	metrics.UpdateCompleted(r.done.Size())
	r.record(out)

	if out.Failed() {
		metrics.RecordOutcome(metrics.OutcomeFailed)
	} else {
		metrics.RecordOutcome(metrics.OutcomeSucceeded)
	}
	if out.OnTime != model.ScriptError {
		metrics.RecordVerdict(out.OnTime)
	}
	log.Info(ctx, "record written",
		logger.String("on_time", out.OnTime),
		logger.String("weather", out.Weather),
		logger.String("next_mode", s.mode.String()),
	)

	if s.lost {
		return fmt.Errorf("%s: %w", s.name, worker.ErrRetire)
	}
	c.wait(ctx)
	return nil
}

// enrich looks rec up and builds its row. ok is false when ctx ended
// before the lookup produced anything usable.
func (c *Coordinator) enrich(ctx context.Context, s *session, rec model.ShipmentRecord, log logger.Logger) (model.EnrichedRecord, bool) {
	mode := s.mode
	lookupStart := time.Now()
	res, err := c.lookup(ctx, s, rec.TrackingID, mode)
	metrics.RecordLookupLatency(float64(time.Since(lookupStart).Milliseconds()))

	if err != nil {
		if ctx.Err() != nil {
			log.Warn(ctx, "lookup interrupted", logger.Error(err))
			return model.EnrichedRecord{}, false
		}

		// Only a carrier rejection changes how the next query is submitted.
		s.mode = model.ModeFresh
		var lookupErr *model.LookupError
		switch {
		case errors.As(err, &lookupErr):
			s.mode = model.ModeRecovery
			metrics.RecordLookupError(metrics.LookupRejected)
			log.Warn(ctx, "carrier rejected tracking id",
				logger.String("mode", mode.String()),
				logger.String("message", lookupErr.Message),
			)
		case errors.Is(err, ErrLookupTimeout):
			metrics.RecordLookupError(metrics.LookupTimeout)
			if s.lost {
				log.Error(ctx, "lookup still running after grace period, retiring session",
					logger.Duration("timeout", c.lookupTimeout),
					logger.Duration("grace", c.lookupGrace),
				)
			} else {
				log.Warn(ctx, "lookup timed out", logger.Duration("timeout", c.lookupTimeout))
			}
		default:
			metrics.RecordLookupError(metrics.LookupFault)
			log.Error(ctx, "lookup failed", logger.Error(err))
		}
		return model.FailedRecord(rec), true
	}

	s.mode = model.ModeFresh
	return c.classify(ctx, rec, res, log), true
}

// lookup calls the session's lookup under the per-lookup deadline; a panic
// inside it becomes an error. Past the deadline the call gets the grace
// period to return. If it does not, the session is marked lost, since the
// call may still be driving it.
func (c *Coordinator) lookup(ctx context.Context, s *session, id string, mode model.Mode) (model.TrackingResult, error) {
	lctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	type outcome struct {
		res model.TrackingResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("%w: %v", ErrLookupPanic, p)}
			}
		}()
		res, err := s.lookup.Lookup(lctx, id, mode)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && ctx.Err() == nil && errors.Is(o.err, context.DeadlineExceeded) {
			return o.res, fmt.Errorf("%w: %w", ErrLookupTimeout, o.err)
		}
		return o.res, o.err
	case <-lctx.Done():
		grace := time.NewTimer(c.lookupGrace)
		defer grace.Stop()
		select {
		case <-ch:
		case <-grace.C:
			s.lost = true
		}
		if ctx.Err() != nil {
			return model.TrackingResult{}, ctx.Err()
		}
		return model.TrackingResult{}, fmt.Errorf("%w after %s", ErrLookupTimeout, c.lookupTimeout)
	}
}

// classify fills the result fields from a successful lookup. Fields the
// carrier did not report, or reported in an unreadable form, become
// SCRIPT_ERROR individually; an unknown service level fails the whole row.
func (c *Coordinator) classify(ctx context.Context, rec model.ShipmentRecord, res model.TrackingResult, log logger.Logger) model.EnrichedRecord {
	out := model.EnrichedRecord{
		ShipmentRecord: rec,
		ShipDate:       dateField(res.ShipDate),
		DeliveryDate:   dateField(res.DeliveryDate),
		DeliveryTime:   clockField(res.DeliveryTime),
		Weather:        res.Weather.Field(),
	}

	verdict, err := c.classifier.Classify(rec.ServiceLevel, res.ShipDate, res.ShipTime, res.DeliveryDate, res.DeliveryTime)
	switch {
	case errors.Is(err, ontime.ErrInvalidServiceLevel):
		log.Warn(ctx, "unknown service level", logger.String("service_level", rec.ServiceLevel))
		return model.FailedRecord(rec)
	case err != nil:
		log.Warn(ctx, "timestamps incomplete, verdict unavailable", logger.Error(err))
		out.OnTime = model.ScriptError
	default:
		out.OnTime = string(verdict)
	}
	return out
}

func dateField(s string) string {
	if _, err := carriertime.ParseDate(s); err != nil {
		return model.ScriptError
	}
	return s
}

func clockField(s string) string {
	if _, err := carriertime.ParseClock(s); err != nil {
		return model.ScriptError
	}
	return s
}

func (c *Coordinator) liveSessions() []*session {
	live := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		if !s.lost {
			live = append(live, s)
		}
	}
	return live
}

func (c *Coordinator) wait(ctx context.Context) {
	if c.pause <= 0 {
		return
	}
	t := time.NewTimer(c.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *run) skip() {
	r.mu.Lock()
	r.summary.Skipped++
	r.mu.Unlock()
	metrics.RecordOutcome(metrics.OutcomeSkipped)
}

func (r *run) record(out model.EnrichedRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Processed++
	if out.Failed() {
		r.summary.Failed++
	} else {
		r.summary.Succeeded++
	}
	if out.OnTime != model.ScriptError {
		r.summary.Verdicts[model.Verdict(out.OnTime)]++
	}
}

func (r *run) snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.summary
	s.Verdicts = make(map[model.Verdict]int, len(r.summary.Verdicts))
	for k, v := range r.summary.Verdicts {
		s.Verdicts[k] = v
	}
	return s
}
