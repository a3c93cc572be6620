package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/shipaudit/internal/adapters/repository"
	"github.com/okian/shipaudit/internal/adapters/tracking/browser"
	"github.com/okian/shipaudit/internal/adapters/tracking/fixture"
	service "github.com/okian/shipaudit/internal/app"
	"github.com/okian/shipaudit/internal/config"
	"github.com/okian/shipaudit/internal/domain/model"
	"github.com/okian/shipaudit/internal/domain/ontime"
	"github.com/okian/shipaudit/pkg/logger"
	"github.com/okian/shipaudit/pkg/metrics"
)

type runFlags struct {
	input       string
	output      string
	lookup      string
	fixture     string
	sessions    int
	headless    bool
	debuggerURL string
	metrics     string
	dryRun      bool
}

func newRunCmd(c *cli) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a batch, appending results to the output CSV",
		Example: `  shipaudit run --input batch.csv --output results.csv
  shipaudit run --input batch.csv --output results.csv --lookup fixture --fixture fixture.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.apply(cmd, c.cfg)
			if err := c.cfg.Validate(cmd.Context()); err != nil {
				return err
			}
			return runBatch(cmd.Context(), c.cfg, f.dryRun, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.input, "input", "", "input CSV batch")
	fl.StringVar(&f.output, "output", "", "output CSV, appended to")
	fl.StringVar(&f.lookup, "lookup", "", "tracking backend: browser or fixture")
	fl.StringVar(&f.fixture, "fixture", "", "fixture YAML for --lookup fixture")
	fl.IntVar(&f.sessions, "sessions", 0, "parallel lookup sessions")
	fl.BoolVar(&f.headless, "headless", true, "run Chrome headless")
	fl.StringVar(&f.debuggerURL, "debugger-url", "", "attach to a running Chrome")
	fl.StringVar(&f.metrics, "metrics", "", "write Prometheus textfile here after the run")
	fl.BoolVar(&f.dryRun, "dry-run", false, "keep results in memory and print them")
	return cmd
}

// apply overlays explicitly set flags on the loaded config.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("input") {
		cfg.InputPath = f.input
	}
	if fl.Changed("output") {
		cfg.OutputPath = f.output
	}
	if fl.Changed("lookup") {
		cfg.Lookup = f.lookup
	}
	if fl.Changed("fixture") {
		cfg.FixturePath = f.fixture
		if !fl.Changed("lookup") {
			cfg.Lookup = config.LookupFixture
		}
	}
	if fl.Changed("sessions") {
		cfg.Sessions = f.sessions
	}
	if fl.Changed("headless") {
		cfg.Headless = f.headless
	}
	if fl.Changed("debugger-url") {
		cfg.DebuggerURL = f.debuggerURL
	}
	if fl.Changed("metrics") {
		cfg.MetricsPath = f.metrics
	}
}

func runBatch(ctx context.Context, cfg *config.Config, dryRun bool, out io.Writer) error {
	log := logger.Named("run")

	if cfg.InputPath == "" {
		return fmt.Errorf("%w: input_path is required", config.ErrInvalidConfig)
	}
	if cfg.OutputPath == "" && !dryRun {
		return fmt.Errorf("%w: output_path is required", config.ErrInvalidConfig)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	columns := []repository.Option{
		repository.WithTrackingColumn(cfg.TrackingColumn),
		repository.WithServiceLevelColumn(cfg.ServiceLevelColumn),
	}

	src, err := repository.OpenCSVSource(cfg.InputPath, columns...)
	if err != nil {
		return err
	}
	records, err := src.Records(ctx)
	if err != nil {
		return err
	}

	var (
		sink   repository.Sink
		memory *repository.MemorySink
	)
	if dryRun {
		memory = repository.NewMemorySink()
		sink = memory
	} else {
		csvSink, err := repository.OpenCSVSink(cfg.OutputPath, src.Header(), columns...)
		if err != nil {
			return err
		}
		sink = csvSink
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error(ctx, "closing sink", logger.Error(err))
		}
	}()

	lookups, closeLookups, err := openLookups(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLookups()

	coordinator := service.New(
		service.WithLogger(logger.Named("coordinator")),
		service.WithSink(sink),
		service.WithClassifier(ontime.New(ontime.WithCatalog(catalog))),
		service.WithSessions(lookups...),
		service.WithLookupTimeout(cfg.LookupTimeout()),
		service.WithLookupGrace(cfg.LookupGrace()),
		service.WithPause(cfg.Pause()),
		service.WithQueueSize(cfg.QueueSize),
	)
	summary, runErr := coordinator.Run(ctx, records)

	if memory != nil {
		printRows(out, src.Header(), memory.Rows())
	}
	printSummary(out, summary)

	if cfg.MetricsPath != "" {
		if err := metrics.WriteTextfile(cfg.MetricsPath); err != nil {
			log.Error(ctx, "writing metrics", logger.Error(err))
		}
	}

	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(out, "interrupted; rerun the same command to resume")
	}
	return runErr
}

// openLookups builds one lookup per session. Browser sessions share one
// Chrome, each in its own tab.
func openLookups(ctx context.Context, cfg *config.Config) ([]service.Lookup, func(), error) {
	switch cfg.Lookup {
	case config.LookupFixture:
		fx, err := fixture.Load(cfg.FixturePath)
		if err != nil {
			return nil, nil, err
		}
		lookups := make([]service.Lookup, cfg.Sessions)
		for i := range lookups {
			lookups[i] = fx
		}
		return lookups, func() {}, nil

	case config.LookupBrowser:
		bcfg := browser.DefaultConfig()
		bcfg.URL = cfg.TrackingURL
		bcfg.Headless = cfg.Headless
		bcfg.Bin = cfg.BrowserBin
		bcfg.DebuggerURL = cfg.DebuggerURL

		b, err := browser.Launch(ctx, bcfg)
		if err != nil {
			return nil, nil, err
		}
		sessions := make([]*browser.Session, 0, cfg.Sessions)
		closeAll := func() {
			for _, s := range sessions {
				_ = s.Close()
			}
			_ = b.Close()
		}
		lookups := make([]service.Lookup, 0, cfg.Sessions)
		for i := 0; i < cfg.Sessions; i++ {
			s, err := b.Open(ctx)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			sessions = append(sessions, s)
			lookups = append(lookups, s)
		}
		return lookups, closeAll, nil

	default:
		return nil, nil, fmt.Errorf("%w: lookup %q", config.ErrInvalidConfig, cfg.Lookup)
	}
}

func printSummary(w io.Writer, s service.Summary) {
	fmt.Fprintf(w, "run %s: %d records, %d processed (%d ok, %d failed), %d skipped, %d remaining in %s\n",
		s.RunID, s.Total, s.Processed, s.Succeeded, s.Failed, s.Skipped, s.Remaining(), s.Duration.Round(time.Millisecond))

	verdicts := make([]string, 0, len(s.Verdicts))
	for v := range s.Verdicts {
		verdicts = append(verdicts, string(v))
	}
	sort.Strings(verdicts)
	for _, v := range verdicts {
		fmt.Fprintf(w, "  %-8s %d\n", v, s.Verdicts[model.Verdict(v)])
	}
}

func printRows(w io.Writer, inputHeader []string, rows []model.EnrichedRecord) {
	header := repository.OutputHeader(inputHeader)
	cw := csv.NewWriter(w)
	_ = cw.Write(header)
	for _, r := range rows {
		_ = cw.Write(repository.Row(header, r))
	}
	cw.Flush()
}
