package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/okian/shipaudit/internal/adapters/repository"
	"github.com/okian/shipaudit/internal/adapters/tracking/fixture"
	"github.com/okian/shipaudit/internal/domain/model"
)

// scripted is a Lookup answering from a table and recording each call.
type scripted struct {
	mu      sync.Mutex
	results map[string]model.TrackingResult
	errs    map[string]error
	hang    map[string]bool
	panics  map[string]bool
	calls   []call
}

type call struct {
	ID   string
	Mode model.Mode
}

func newScripted() *scripted {
	return &scripted{
		results: map[string]model.TrackingResult{},
		errs:    map[string]error{},
		hang:    map[string]bool{},
		panics:  map[string]bool{},
	}
}

func (s *scripted) Lookup(ctx context.Context, id string, mode model.Mode) (model.TrackingResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{ID: id, Mode: mode})
	res, err, hang, boom := s.results[id], s.errs[id], s.hang[id], s.panics[id]
	s.mu.Unlock()

	if boom {
		panic("selector exploded")
	}
	if hang {
		<-ctx.Done()
		return model.TrackingResult{}, ctx.Err()
	}
	return res, err
}

func (s *scripted) seen() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func delivered(shipDate, shipTime, deliveryDate, deliveryTime string) model.TrackingResult {
	return model.TrackingResult{
		ShipDate:     shipDate,
		ShipTime:     shipTime,
		DeliveryDate: deliveryDate,
		DeliveryTime: deliveryTime,
		Weather:      model.WeatherNo,
	}
}

func shipment(id, level string) model.ShipmentRecord {
	return model.ShipmentRecord{
		TrackingID:   id,
		ServiceLevel: level,
		Fields: map[string]string{
			repository.DefaultTrackingColumn:     id,
			repository.DefaultServiceLevelColumn: level,
		},
	}
}

// failingSink fails every append after the first n.
type failingSink struct {
	*repository.MemorySink
	n int
}

func (f *failingSink) Append(ctx context.Context, rec model.EnrichedRecord) error {
	if count, _ := f.Count(ctx); count >= f.n {
		return errors.New("disk full")
	}
	return f.MemorySink.Append(ctx, rec)
}

func TestCoordinatorScenarios(t *testing.T) {
	ctx := context.Background()

	Convey("Given a batch covering the documented scenarios", t, func() {
		lookup := newScripted()
		lookup.results["1ZRES"] = delivered("01/06/2025", "10:00 A.M.", "01/08/2025", "2:00 P.M.")
		lookup.results["1ZLATE"] = delivered("01/03/2025", "9:00 A.M.", "01/08/2025", "9:00 A.M.")
		lookup.results["1ZUNK"] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		lookup.errs["1Z999"] = &model.LookupError{TrackingID: "1Z999", Message: "invalid tracking number"}

		sink := repository.NewMemorySink()
		c := New(WithSink(sink), WithSessions(lookup))

		records := []model.ShipmentRecord{
			shipment("1ZRES", "2nd Day Air"),
			shipment("1ZLATE", "2nd Day Air"),
			shipment("1Z999", "2nd Day Air"),
			shipment("1ZUNK", "Unknown Level"),
		}

		Convey("When the run completes", func() {
			summary, err := c.Run(ctx, records)
			So(err, ShouldBeNil)
			rows := sink.Rows()
			So(len(rows), ShouldEqual, 4)

			Convey("Then the in-window delivery needs research", func() {
				want := model.EnrichedRecord{
					ShipmentRecord: records[0],
					ShipDate:       "01/06/2025",
					DeliveryDate:   "01/08/2025",
					DeliveryTime:   "2:00 P.M.",
					OnTime:         "Research",
					Weather:        "No",
				}
				So(cmp.Diff(want, rows[0]), ShouldBeEmpty)
			})

			Convey("Then the day limit makes the Friday shipment late", func() {
				So(rows[1].OnTime, ShouldEqual, "No")
			})

			Convey("Then the rejected id gets a full sentinel row", func() {
				So(rows[2].TrackingID, ShouldEqual, "1Z999")
				So(rows[2].Failed(), ShouldBeTrue)
			})

			Convey("Then the unknown service level gets a full sentinel row", func() {
				So(rows[3].TrackingID, ShouldEqual, "1ZUNK")
				So(rows[3].Failed(), ShouldBeTrue)
			})

			Convey("Then the summary adds up", func() {
				So(summary.RunID, ShouldNotBeEmpty)
				So(summary.Total, ShouldEqual, 4)
				So(summary.Processed, ShouldEqual, 4)
				So(summary.Succeeded, ShouldEqual, 2)
				So(summary.Failed, ShouldEqual, 2)
				So(summary.Skipped, ShouldEqual, 0)
				So(summary.Remaining(), ShouldEqual, 0)
				So(summary.Verdicts, ShouldResemble, map[model.Verdict]int{
					model.VerdictResearch: 1,
					model.VerdictLate:     1,
				})
			})

			Convey("Then the query after a rejection is submitted in recovery mode", func() {
				So(lookup.seen(), ShouldResemble, []call{
					{ID: "1ZRES", Mode: model.ModeFresh},
					{ID: "1ZLATE", Mode: model.ModeFresh},
					{ID: "1Z999", Mode: model.ModeFresh},
					{ID: "1ZUNK", Mode: model.ModeRecovery},
				})
			})

			Convey("And the same batch is run again", func() {
				again, err := New(WithSink(sink), WithSessions(lookup)).Run(ctx, records)
				So(err, ShouldBeNil)

				Convey("Then every record is skipped and no row is added", func() {
					So(again.Skipped, ShouldEqual, 4)
					So(again.Processed, ShouldEqual, 0)
					n, _ := sink.Count(ctx)
					So(n, ShouldEqual, 4)
					So(len(lookup.seen()), ShouldEqual, 4)
				})
			})
		})
	})
}

func TestCoordinatorModes(t *testing.T) {
	ctx := context.Background()

	Convey("Given consecutive rejections then a success", t, func() {
		lookup := newScripted()
		lookup.errs["A"] = &model.LookupError{TrackingID: "A", Message: "bad"}
		lookup.errs["B"] = &model.LookupError{TrackingID: "B", Message: "bad"}
		lookup.results["C"] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		lookup.results["D"] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")

		sink := repository.NewMemorySink()
		_, err := New(WithSink(sink), WithSessions(lookup)).Run(ctx, []model.ShipmentRecord{
			shipment("A", "Next Day Air"),
			shipment("B", "Next Day Air"),
			shipment("C", "Next Day Air"),
			shipment("D", "Next Day Air"),
		})
		So(err, ShouldBeNil)

		Convey("Then recovery lasts until a submission succeeds", func() {
			So(lookup.seen(), ShouldResemble, []call{
				{ID: "A", Mode: model.ModeFresh},
				{ID: "B", Mode: model.ModeRecovery},
				{ID: "C", Mode: model.ModeRecovery},
				{ID: "D", Mode: model.ModeFresh},
			})
			So(sink.Rows()[2].OnTime, ShouldEqual, "Yes")
		})
	})

	Convey("Given a lookup fault and a panic", t, func() {
		lookup := newScripted()
		lookup.errs["F"] = errors.New("page crashed")
		lookup.panics["P"] = true
		lookup.results["OK"] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")

		sink := repository.NewMemorySink()
		summary, err := New(WithSink(sink), WithSessions(lookup)).Run(ctx, []model.ShipmentRecord{
			shipment("F", "Next Day Air"),
			shipment("P", "Next Day Air"),
			shipment("OK", "Next Day Air"),
		})

		Convey("Then both become sentinel rows and the run continues", func() {
			So(err, ShouldBeNil)
			rows := sink.Rows()
			So(len(rows), ShouldEqual, 3)
			So(rows[0].Failed(), ShouldBeTrue)
			So(rows[1].Failed(), ShouldBeTrue)
			So(rows[2].Failed(), ShouldBeFalse)
			So(summary.Failed, ShouldEqual, 2)
		})

		Convey("Then neither switches the session to recovery", func() {
			So(lookup.seen(), ShouldResemble, []call{
				{ID: "F", Mode: model.ModeFresh},
				{ID: "P", Mode: model.ModeFresh},
				{ID: "OK", Mode: model.ModeFresh},
			})
		})
	})

	Convey("Given a rejection followed by a fault", t, func() {
		lookup := newScripted()
		lookup.errs["R"] = &model.LookupError{TrackingID: "R", Message: "invalid"}
		lookup.errs["F"] = errors.New("modal close failed")
		lookup.results["OK"] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")

		_, err := New(WithSink(repository.NewMemorySink()), WithSessions(lookup)).Run(ctx, []model.ShipmentRecord{
			shipment("R", "Next Day Air"),
			shipment("F", "Next Day Air"),
			shipment("OK", "Next Day Air"),
		})
		So(err, ShouldBeNil)

		Convey("Then the recovery submission is spent and the next query is fresh", func() {
			So(lookup.seen(), ShouldResemble, []call{
				{ID: "R", Mode: model.ModeFresh},
				{ID: "F", Mode: model.ModeRecovery},
				{ID: "OK", Mode: model.ModeFresh},
			})
		})
	})
}

func TestCoordinatorPartialResults(t *testing.T) {
	ctx := context.Background()

	Convey("Given a lookup missing the delivery milestone", t, func() {
		lookup := newScripted()
		lookup.results["X"] = model.TrackingResult{ShipDate: "01/06/2025", ShipTime: "10:00 A.M.", Weather: model.WeatherYes}
		sink := repository.NewMemorySink()

		_, err := New(WithSink(sink), WithSessions(lookup)).Run(ctx, []model.ShipmentRecord{shipment("X", "2nd Day Air")})
		So(err, ShouldBeNil)

		Convey("Then only the unknown fields carry the sentinel", func() {
			row := sink.Rows()[0]
			So(row.ShipDate, ShouldEqual, "01/06/2025")
			So(row.DeliveryDate, ShouldEqual, model.ScriptError)
			So(row.DeliveryTime, ShouldEqual, model.ScriptError)
			So(row.OnTime, ShouldEqual, model.ScriptError)
			So(row.Weather, ShouldEqual, "Yes")
			So(row.Failed(), ShouldBeFalse)
		})
	})

	Convey("Given an unknown weather signal", t, func() {
		lookup := newScripted()
		res := delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		res.Weather = model.WeatherUnknown
		lookup.results["W"] = res
		sink := repository.NewMemorySink()

		_, err := New(WithSink(sink), WithSessions(lookup)).Run(ctx, []model.ShipmentRecord{shipment("W", "Next Day Air")})
		So(err, ShouldBeNil)
		So(sink.Rows()[0].Weather, ShouldEqual, model.ScriptError)
		So(sink.Rows()[0].OnTime, ShouldEqual, "Yes")
	})
}

func TestCoordinatorSkips(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sink that already holds some rows", t, func() {
		lookup := newScripted()
		for _, id := range []string{"A", "B", "C"} {
			lookup.results[id] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		}
		done := model.FailedRecord(shipment("B", "Next Day Air"))
		sink := repository.NewMemorySink(done)
		before, _ := sink.Count(ctx)

		records := []model.ShipmentRecord{
			shipment("A", "Next Day Air"),
			shipment("", "Next Day Air"),
			shipment("B", "Next Day Air"),
			shipment("C", "Next Day Air"),
			shipment("A", "Next Day Air"),
		}
		summary, err := New(WithSink(sink), WithSessions(lookup)).Run(ctx, records)
		So(err, ShouldBeNil)

		Convey("Then done, empty and repeated ids are skipped", func() {
			So(summary.Skipped, ShouldEqual, 3)
			So(summary.Processed, ShouldEqual, 2)
			ids := []string{}
			for _, c := range lookup.seen() {
				ids = append(ids, c.ID)
			}
			So(ids, ShouldResemble, []string{"A", "C"})
		})

		Convey("Then the row count grows by the records not skipped", func() {
			after, _ := sink.Count(ctx)
			So(after, ShouldEqual, before+summary.Processed)
		})
	})
}

func TestCoordinatorTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	Convey("Given a lookup that never answers", t, func() {
		lookup := newScripted()
		lookup.hang["SLOW"] = true
		lookup.results["NEXT"] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		sink := repository.NewMemorySink()

		c := New(WithSink(sink), WithSessions(lookup), WithLookupTimeout(30*time.Millisecond))
		summary, err := c.Run(ctx, []model.ShipmentRecord{
			shipment("SLOW", "Next Day Air"),
			shipment("NEXT", "Next Day Air"),
		})

		Convey("Then the lookup is abandoned and the batch moves on", func() {
			So(err, ShouldBeNil)
			rows := sink.Rows()
			So(len(rows), ShouldEqual, 2)
			So(rows[0].Failed(), ShouldBeTrue)
			So(rows[1].OnTime, ShouldEqual, "Yes")
			So(summary.Failed, ShouldEqual, 1)
			So(lookup.seen()[1].Mode, ShouldEqual, model.ModeFresh)
		})
	})
}

// stubborn is a Lookup that ignores ctx and holds the session for a fixed
// time, tracking how many calls overlap.
type stubborn struct {
	hold time.Duration

	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
}

func (s *stubborn) Lookup(_ context.Context, _ string, _ model.Mode) (model.TrackingResult, error) {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(s.hold)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M."), nil
}

func (s *stubborn) stats() (calls, maxSeen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.maxSeen
}

func TestCoordinatorOverdueLookup(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	records := []model.ShipmentRecord{
		shipment("A", "Next Day Air"),
		shipment("B", "Next Day Air"),
		shipment("C", "Next Day Air"),
	}

	Convey("Given a lookup that ignores cancellation and returns within the grace period", t, func() {
		lookup := &stubborn{hold: 60 * time.Millisecond}
		sink := repository.NewMemorySink()
		summary, err := New(WithSink(sink), WithSessions(lookup),
			WithLookupTimeout(20*time.Millisecond), WithLookupGrace(time.Second)).Run(ctx, records)

		Convey("Then the session is reused only after the call returns", func() {
			So(err, ShouldBeNil)
			calls, maxSeen := lookup.stats()
			So(calls, ShouldEqual, 3)
			So(maxSeen, ShouldEqual, 1)
			So(summary.Failed, ShouldEqual, 3)
		})
	})

	Convey("Given a lookup that outlives the grace period", t, func() {
		lookup := &stubborn{hold: 200 * time.Millisecond}
		sink := repository.NewMemorySink()
		c := New(WithSink(sink), WithSessions(lookup),
			WithLookupTimeout(20*time.Millisecond), WithLookupGrace(20*time.Millisecond))
		summary, err := c.Run(ctx, records)

		Convey("Then the session is retired after writing the overdue row", func() {
			So(errors.Is(err, ErrSessionsLost), ShouldBeTrue)
			calls, maxSeen := lookup.stats()
			So(calls, ShouldEqual, 1)
			So(maxSeen, ShouldEqual, 1)
			rows := sink.Rows()
			So(len(rows), ShouldEqual, 1)
			So(rows[0].Failed(), ShouldBeTrue)
			So(summary.Remaining(), ShouldEqual, 2)
		})

		Convey("Then the coordinator refuses to run it again", func() {
			_, err := c.Run(ctx, records)
			So(errors.Is(err, ErrSessionsLost), ShouldBeTrue)
		})

		// Let the abandoned call finish before the leak check.
		time.Sleep(250 * time.Millisecond)
	})

	Convey("Given one stuck session and one healthy session", t, func() {
		stuck := &stubborn{hold: 200 * time.Millisecond}
		healthy := newScripted()
		for _, r := range records {
			healthy.results[r.TrackingID] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		}
		sink := repository.NewMemorySink()
		summary, err := New(WithSink(sink), WithSessions(stuck, healthy),
			WithLookupTimeout(20*time.Millisecond), WithLookupGrace(20*time.Millisecond)).Run(ctx, records)

		Convey("Then the healthy session finishes the batch", func() {
			So(err, ShouldBeNil)
			So(summary.Processed, ShouldEqual, 3)
			So(summary.Remaining(), ShouldEqual, 0)
			calls, _ := stuck.stats()
			So(calls, ShouldBeLessThanOrEqualTo, 1)
		})

		time.Sleep(250 * time.Millisecond)
	})
}

func TestCoordinatorInterrupt(t *testing.T) {
	defer goleak.VerifyNone(t)

	Convey("Given a run cancelled while a lookup is in flight", t, func() {
		lookup := newScripted()
		lookup.results["A"] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		lookup.hang["B"] = true
		lookup.results["C"] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		sink := repository.NewMemorySink()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			for len(lookup.seen()) < 2 {
				time.Sleep(time.Millisecond)
			}
			cancel()
		}()

		summary, err := New(WithSink(sink), WithSessions(lookup)).Run(ctx, []model.ShipmentRecord{
			shipment("A", "Next Day Air"),
			shipment("B", "Next Day Air"),
			shipment("C", "Next Day Air"),
		})

		Convey("Then completed rows stay and the rest is left for the next run", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			rows := sink.Rows()
			So(len(rows), ShouldEqual, 1)
			So(rows[0].TrackingID, ShouldEqual, "A")
			So(summary.Remaining(), ShouldEqual, 2)
		})
	})
}

func TestCoordinatorSinkFailure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sink that fails on the second append", t, func() {
		lookup := newScripted()
		for _, id := range []string{"A", "B", "C"} {
			lookup.results[id] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
		}
		sink := &failingSink{MemorySink: repository.NewMemorySink(), n: 1}

		summary, err := New(WithSink(sink), WithSessions(lookup)).Run(ctx, []model.ShipmentRecord{
			shipment("A", "Next Day Air"),
			shipment("B", "Next Day Air"),
			shipment("C", "Next Day Air"),
		})

		Convey("Then the run aborts with ErrSinkWrite", func() {
			So(errors.Is(err, ErrSinkWrite), ShouldBeTrue)
			So(summary.Processed, ShouldEqual, 1)
			So(len(sink.Rows()), ShouldEqual, 1)
			So(len(lookup.seen()), ShouldEqual, 2)
		})
	})
}

func TestCoordinatorConfiguration(t *testing.T) {
	ctx := context.Background()

	Convey("Run refuses to start without a sink or sessions", t, func() {
		_, err := New(WithSessions(newScripted())).Run(ctx, nil)
		So(errors.Is(err, ErrNoSink), ShouldBeTrue)

		_, err = New(WithSink(repository.NewMemorySink()), WithSessions(nil)).Run(ctx, nil)
		So(errors.Is(err, ErrNoSessions), ShouldBeTrue)
	})

	Convey("An empty batch finishes immediately", t, func() {
		summary, err := New(WithSink(repository.NewMemorySink()), WithSessions(newScripted())).Run(ctx, nil)
		So(err, ShouldBeNil)
		So(summary.Total, ShouldEqual, 0)
	})
}

func TestCoordinatorParallelSessions(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	Convey("Given three sessions sharing a batch", t, func() {
		lookups := []Lookup{newScripted(), newScripted(), newScripted()}
		var records []model.ShipmentRecord
		for i := 0; i < 30; i++ {
			id := "1Z" + strings.Repeat("0", 3) + string(rune('a'+i%26)) + string(rune('A'+i/26))
			for _, l := range lookups {
				l.(*scripted).results[id] = delivered("01/06/2025", "10:00 A.M.", "01/07/2025", "9:00 A.M.")
			}
			records = append(records, shipment(id, "Next Day Air"))
		}
		sink := repository.NewMemorySink()

		summary, err := New(WithSink(sink), WithSessions(lookups...), WithQueueSize(4)).Run(ctx, records)

		Convey("Then every record is written exactly once", func() {
			So(err, ShouldBeNil)
			So(summary.Processed, ShouldEqual, 30)
			seen := map[string]int{}
			for _, r := range sink.Rows() {
				seen[r.TrackingID]++
			}
			So(len(seen), ShouldEqual, 30)
			for _, n := range seen {
				So(n, ShouldEqual, 1)
			}
		})
	})
}

func TestCoordinatorEndToEnd(t *testing.T) {
	ctx := context.Background()

	Convey("Given a CSV batch, a fixture lookup and a CSV sink", t, func() {
		dir := t.TempDir()
		in := filepath.Join(dir, "in.csv")
		out := filepath.Join(dir, "out.csv")
		So(os.WriteFile(in, []byte("Airbill Number/BOL Number,Service Level\n"+
			"1ZRES,2nd Day Air\n1Z999,2nd Day Air\n"), 0o600), ShouldBeNil)

		lookup := fixture.New(map[string]fixture.Entry{
			"1ZRES": {ShipDate: "01/06/2025", ShipTime: "10:00 A.M.", DeliveryDate: "01/08/2025", DeliveryTime: "2:00 P.M.", Weather: "no"},
		})

		runOnce := func() Summary {
			src, err := repository.OpenCSVSource(in)
			So(err, ShouldBeNil)
			records, err := src.Records(ctx)
			So(err, ShouldBeNil)
			sink, err := repository.OpenCSVSink(out, src.Header())
			So(err, ShouldBeNil)
			defer sink.Close()

			summary, err := New(WithSink(sink), WithSessions(lookup), WithPause(time.Millisecond)).Run(ctx, records)
			So(err, ShouldBeNil)
			return summary
		}

		first := runOnce()
		So(first.Processed, ShouldEqual, 2)

		Convey("Then the output holds one row per record", func() {
			data, err := os.ReadFile(out)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual,
				"Airbill Number/BOL Number,Service Level,Ship Date,Delivery Date,Delivery Time,On Time?,Weather?\n"+
					"1ZRES,2nd Day Air,01/06/2025,01/08/2025,2:00 P.M.,Research,No\n"+
					"1Z999,2nd Day Air,SCRIPT_ERROR,SCRIPT_ERROR,SCRIPT_ERROR,SCRIPT_ERROR,SCRIPT_ERROR\n")
		})

		Convey("Then a second run skips everything", func() {
			second := runOnce()
			So(second.Skipped, ShouldEqual, 2)
			data, _ := os.ReadFile(out)
			So(strings.Count(string(data), "\n"), ShouldEqual, 3)
		})
	})
}
