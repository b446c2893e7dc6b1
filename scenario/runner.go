// Package scenario wires configuration, environment, rule engine and the two
// simulation engines into the runs the command line offers, and persists
// their outputs and checkpoints.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/environment"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/simerr"
	"github.com/pthm-cable/vectorsim/stochastic"
	"github.com/pthm-cable/vectorsim/storage"
	"github.com/pthm-cable/vectorsim/telemetry"
)

// ErrNoStore is returned by checkpoint operations when no store is open.
var ErrNoStore = errors.New("no checkpoint store configured")

// bookmarkHistory is the rolling window used for bookmark detection.
const bookmarkHistory = 7

// BackendFactory builds a fresh rule-engine backend for one run.
type BackendFactory func(cfg *config.Config) rules.Backend

// KnowledgeBackend returns the in-process knowledge base.
func KnowledgeBackend(cfg *config.Config) rules.Backend {
	return rules.NewKnowledgeBase(cfg)
}

// Options configures a Runner.
type Options struct {
	Store     *storage.Store // nil disables checkpoints
	OutputDir string         // overrides telemetry.output_dir
	Backend   BackendFactory // nil = KnowledgeBackend
	Perf      bool           // time pipeline phases and write perf.csv
	Logger    *slog.Logger
}

// Runner executes runs against one loaded configuration.
type Runner struct {
	cfg       *config.Config
	store     *storage.Store
	outputDir string
	backend   BackendFactory
	perf      bool
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *config.Config, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Backend == nil {
		opts.Backend = KnowledgeBackend
	}
	dir := cfg.Telemetry.OutputDir
	if opts.OutputDir != "" {
		dir = opts.OutputDir
	}
	return &Runner{
		cfg:       cfg,
		store:     opts.Store,
		outputDir: dir,
		backend:   opts.Backend,
		perf:      opts.Perf,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Config returns the configuration the runner was built with.
func (r *Runner) Config() *config.Config { return r.cfg }

// seed resolves the request seed, then the configured seed, then the clock.
func (r *Runner) seed(s *uint64) uint64 {
	if s != nil {
		return *s
	}
	if r.cfg.Simulation.RandomSeed != nil {
		return *r.cfg.Simulation.RandomSeed
	}
	return uint64(r.now().UnixNano())
}

// environmentConfig applies habitat overrides to the configured environment.
// Water availability is recorded as given; capacity scaling happens in
// buildEnvironment.
func (r *Runner) environmentConfig(h Habitat) config.EnvironmentConfig {
	ec := r.cfg.Environment
	if h.Temperature != nil {
		ec.Temperature = *h.Temperature
	}
	if h.Humidity != nil {
		ec.Humidity = *h.Humidity
	}
	if h.WaterAvailability != nil {
		ec.WaterAvailability = *h.WaterAvailability
	}
	return ec
}

// buildEnvironment generates days+1 conditions so day indices 0..days are
// all valid.
func (r *Runner) buildEnvironment(ec config.EnvironmentConfig, days int, gen *stochastic.Generator) (*environment.Model, error) {
	ec.CarryingCapacity = int(math.Round(float64(ec.CarryingCapacity) * ec.WaterAvailability))
	return environment.New(ec, days+1, gen, r.logger)
}

// Environment generates the series a run with this habitat and seed would
// see, without running a model.
func (r *Runner) Environment(h Habitat, days int, seed *uint64) (*EnvironmentResult, error) {
	var v simerr.Collector
	v.Range("days", float64(days), config.MinDays, config.MaxDays)
	h.validate(&v, "habitat.")
	if err := v.Err(); err != nil {
		return nil, err
	}
	s := r.seed(seed)
	ec := r.environmentConfig(h)
	env, err := r.buildEnvironment(ec, days, stochastic.NewStreams(s).Environmental)
	if err != nil {
		return nil, err
	}
	res := &EnvironmentResult{
		Seed:          s,
		Conditions:    env.All(),
		Statistics:    env.Statistics(),
		FavorableDays: env.FavorableDays(),
	}

	out, err := r.outputs("environment", "")
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if err := out.WriteSeries("environment", res.Conditions); err != nil {
		return nil, err
	}
	if err := out.WriteJSON("summary", res.summary()); err != nil {
		return nil, err
	}
	res.OutputDir = out.Dir()
	return res, nil
}

// EnvironmentResult is a generated environment series.
type EnvironmentResult struct {
	Seed          uint64                   `json:"seed"`
	Conditions    []environment.Conditions `json:"conditions,omitempty"`
	Statistics    environment.Statistics   `json:"statistics"`
	FavorableDays int                      `json:"favorable_days"`
	OutputDir     string                   `json:"output_dir,omitempty"`
}

func (e *EnvironmentResult) summary() *EnvironmentResult {
	s := *e
	s.Conditions = nil
	return &s
}

// rulesClient builds a client over a fresh backend so facts from one run
// never leak into another.
func (r *Runner) rulesClient(logger *slog.Logger) *rules.Client {
	var backend rules.Backend
	if r.cfg.Rules.Enabled {
		backend = r.backend(r.cfg)
	}
	return rules.NewClient(backend, r.cfg.Rules, logger)
}

func (r *Runner) perfCollector() *telemetry.PerfCollector {
	if !r.perf {
		return nil
	}
	return telemetry.NewPerfCollector()
}

// outputs opens a per-run directory under the output root named after kind
// and name. A nil manager (output disabled) discards every write.
func (r *Runner) outputs(kind, name string) (*telemetry.OutputManager, error) {
	if r.outputDir == "" {
		return nil, nil
	}
	if name == "" {
		name = uuid.NewString()[:8]
	}
	dir := filepath.Join(r.outputDir, fmt.Sprintf("%s_%s_%s", kind, r.now().Format("20060102_150405"), name))
	return telemetry.NewOutputManager(dir)
}

// writeConfig snapshots the effective configuration for a run.
func (r *Runner) writeConfig(out *telemetry.OutputManager, ec config.EnvironmentConfig) error {
	if out == nil || !r.cfg.Telemetry.WriteConfig {
		return nil
	}
	eff := *r.cfg
	eff.Environment = ec
	return out.WriteConfig(&eff)
}

// detectBookmarks replays a daily census through the bookmark detector.
func detectBookmarks(census []telemetry.Census, logger *slog.Logger) []telemetry.Bookmark {
	bd := telemetry.NewBookmarkDetector(bookmarkHistory)
	var out []telemetry.Bookmark
	for _, c := range census {
		for _, b := range bd.Check(c) {
			b.Log(logger)
			out = append(out, b)
		}
	}
	return out
}

func writeBookmarks(out *telemetry.OutputManager, bms []telemetry.Bookmark) error {
	for _, b := range bms {
		if err := out.WriteBookmark(b); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint saves a run when a name was requested and a store is open.
func (r *Runner) checkpoint(ctx context.Context, name, kind, species string, days int, req, res any) (string, error) {
	if name == "" {
		return "", nil
	}
	if r.store == nil {
		return "", ErrNoStore
	}
	cp, err := storage.NewCheckpoint(name, kind, species, days, req, res)
	if err != nil {
		return "", err
	}
	saved, err := r.store.Save(ctx, cp)
	if err != nil {
		return "", fmt.Errorf("saving checkpoint: %w", err)
	}
	r.logger.Info("checkpoint saved", "name", saved.Name, "id", saved.ID, "kind", kind)
	return saved.ID, nil
}

// Checkpoints lists stored checkpoints, newest first.
func (r *Runner) Checkpoints(ctx context.Context, f storage.Filter) ([]storage.Checkpoint, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.List(ctx, f)
}

// Checkpoint loads one checkpoint by id or name.
func (r *Runner) Checkpoint(ctx context.Context, idOrName string) (storage.Checkpoint, error) {
	if r.store == nil {
		return storage.Checkpoint{}, ErrNoStore
	}
	return r.store.Get(ctx, idOrName)
}

// DeleteCheckpoint removes one checkpoint by id or name.
func (r *Runner) DeleteCheckpoint(ctx context.Context, idOrName string) error {
	if r.store == nil {
		return ErrNoStore
	}
	return r.store.Delete(ctx, idOrName)
}
