// Command shipaudit enriches shipment batches with carrier tracking data and
// on-time verdicts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/shipaudit/internal/config"
	"github.com/okian/shipaudit/pkg/logger"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM. A cancelled run keeps its
	// rows and resumes on the next invocation.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "shipaudit",
		Short: "Audit shipment batches for on-time delivery",
		Long: `shipaudit looks up every shipment of a CSV batch on the carrier tracking
site, classifies the delivery against its service-level window and appends
the result to an output CSV.

Runs are resumable: rows already in the output are never looked up again.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML config file (default $"+config.EnvFile+")")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&c.logFile, "log-file", "", "also append logs to this file")

	root.AddCommand(
		newRunCmd(c),
		newClassifyCmd(c),
		newCatalogCmd(c),
		newSampleCmd(c),
	)
	return root
}

// setup loads configuration, applies global flags and starts logging.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx, c.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = c.logFormat
	}
	if flags.Changed("log-file") {
		cfg.LogFile = c.logFile
	}
	if err := cfg.Validate(ctx); err != nil {
		return err
	}

	if err := logger.InitWithOptions(logger.Options{
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Output: cmd.ErrOrStderr(),
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	c.cfg = cfg
	return nil
}
