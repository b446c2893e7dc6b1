package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/scenario"
	"github.com/pthm-cable/vectorsim/storage"
	"github.com/pthm-cable/vectorsim/telemetry"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vectorsim",
		Short: "Mosquito population dynamics simulator",
		Long: `vectorsim simulates mosquito populations with a stage-structured
Leslie matrix model and an individual-based agent model whose agents
consult a rule engine for their daily decisions.

Runs write CSV series, a summary and the effective configuration to a
per-run directory under --output-dir, and can be saved as named
checkpoints in a SQLite database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to config.yaml (empty = embedded defaults)")
	pf.String("log-level", "", "trace, debug, info, warn or error (empty = telemetry.log_level)")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("output-dir", "", "Root directory for run outputs (empty = telemetry.output_dir)")
	pf.String("db", "", "Checkpoint database path (empty = storage.path)")
	pf.Uint64("seed", 0, "RNG seed (unset = simulation.random_seed, then time)")
	pf.Bool("perf", false, "Time pipeline phases and write perf.csv")
	pf.Bool("json", false, "Print results as JSON")

	root.AddCommand(
		newRunCmd(),
		newEigenCmd(),
		newEnvironmentCmd(),
		newCheckpointCmd(),
		newConfigCmd(),
	)
	return root
}

// app is the state shared by every command: configuration, logger, and the
// runner with its optional checkpoint store.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *storage.Store
	runner *scenario.Runner
	out    io.Writer
	json   bool
	seed   *uint64
}

// newApp loads configuration and builds the runner. The checkpoint store is
// only opened when withStore is set so plain runs never create a database.
func newApp(cmd *cobra.Command, withStore bool) (*app, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, _ := flags.GetString("log-level")
	if level == "" {
		level = cfg.Telemetry.LogLevel
	}
	format, _ := flags.GetString("log-format")
	logger, err := telemetry.NewLogger(level, format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, out: cmd.OutOrStdout()}
	a.json, _ = flags.GetBool("json")
	if flags.Changed("seed") {
		s, _ := flags.GetUint64("seed")
		a.seed = &s
	}

	if withStore {
		path, _ := flags.GetString("db")
		if path == "" {
			path = cfg.Storage.Path
		}
		if a.store, err = storage.Open(path); err != nil {
			return nil, err
		}
		logger.Debug("checkpoint store open", "path", path)
	}

	outputDir, _ := flags.GetString("output-dir")
	perf, _ := flags.GetBool("perf")
	a.runner = scenario.NewRunner(cfg, scenario.Options{
		Store:     a.store,
		OutputDir: outputDir,
		Perf:      perf,
		Logger:    logger,
	})
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing checkpoint store", "error", err)
		}
	}
}

// print writes v as JSON when --json is set and calls text otherwise.
func (a *app) print(v any, text func(w io.Writer)) error {
	if a.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}
