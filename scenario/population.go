package scenario

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/environment"
	"github.com/pthm-cable/vectorsim/leslie"
	"github.com/pthm-cable/vectorsim/population"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/stochastic"
	"github.com/pthm-cable/vectorsim/storage"
	"github.com/pthm-cable/vectorsim/telemetry"
)

// PopulationResult is the outcome of an aggregate run.
type PopulationResult struct {
	Seed        uint64                        `json:"seed"`
	Trajectory  *population.Trajectory        `json:"trajectory,omitempty"`
	Summary     population.Summary            `json:"summary"`
	Equilibrium population.Equilibrium        `json:"equilibrium"`
	Outlook     population.Outlook            `json:"outlook"`
	Predation   *population.PredatorPreyStats `json:"predation,omitempty"`
	Environment environment.Statistics        `json:"environment"`
	Bookmarks   []telemetry.Bookmark          `json:"bookmarks,omitempty"`
	Rules       rules.Stats                   `json:"rules"`
	Perf        *telemetry.PerfStats          `json:"perf,omitempty"`

	OutputDir    string `json:"output_dir,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

func (p *PopulationResult) summary() *PopulationResult {
	s := *p
	s.Trajectory = nil
	return &s
}

// populationRun is everything one aggregate simulation produced.
type populationRun struct {
	seed       uint64
	ec         config.EnvironmentConfig
	env        *environment.Model
	model      *population.Model
	rules      *rules.Client
	perf       *telemetry.PerfCollector
	trajectory *population.Trajectory
}

// simulatePopulation builds the environment and model for req and runs it.
// pred == nil runs the prey alone.
func (r *Runner) simulatePopulation(ctx context.Context, req PopulationRequest, seed uint64, pred *population.PredatorOptions) (*populationRun, error) {
	sp, err := r.cfg.SpeciesByID(req.Species)
	if err != nil {
		return nil, err
	}
	streams := stochastic.NewStreams(seed)
	ec := r.environmentConfig(req.Habitat)
	env, err := r.buildEnvironment(ec, req.Days, streams.Environmental)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("seed", seed)
	stoch := r.cfg.Simulation.Stochastic
	if req.Stochastic != nil {
		stoch = *req.Stochastic
	}
	run := &populationRun{
		seed:  seed,
		ec:    ec,
		env:   env,
		rules: r.rulesClient(logger),
		perf:  r.perfCollector(),
	}
	run.model, err = population.New(sp, env, population.Options{
		Stochastic:      stoch,
		DynamicSurvival: r.cfg.Simulation.DynamicSurvival,
		Generator:       streams.Demographic,
		Rules:           run.rules,
		Predator:        pred,
		Logger:          logger,
		Perf:            run.perf,
	})
	if err != nil {
		return nil, err
	}
	run.trajectory, err = run.model.Simulate(ctx, req.Days, req.Initial)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *Runner) predatorOptions(req PredatorRequest) (*population.PredatorOptions, error) {
	sp, err := r.cfg.SpeciesByID(req.predatorID(r.cfg))
	if err != nil {
		return nil, err
	}
	return &population.PredatorOptions{
		Species:             sp,
		Initial:             req.predatorInitial(r.cfg),
		ConsumptionFraction: r.cfg.Predation.ConsumptionFraction,
		StarvationSurvival:  r.cfg.Predation.StarvationSurvival,
	}, nil
}

// result packages a finished run.
func (run *populationRun) result(ctx context.Context, logger *slog.Logger) *PopulationResult {
	t := run.trajectory
	res := &PopulationResult{
		Seed:        run.seed,
		Trajectory:  t,
		Summary:     t.Summarize(),
		Equilibrium: t.Equilibrium(),
		Outlook:     run.model.Outlook(ctx),
		Environment: run.env.Statistics(),
		Rules:       run.rules.Stats(),
	}
	if t.HasPredators() {
		st := t.PredatorPreyStatistics()
		res.Predation = &st
	}
	if run.perf != nil {
		ps := run.perf.Stats()
		res.Perf = &ps
	}

	census := make([]telemetry.Census, len(t.States))
	for i, s := range t.States {
		census[i] = telemetry.Census{Day: s.Day, Prey: s.Total}
		if i < len(t.PredatorStates) {
			census[i].Predators = t.PredatorStates[i].Total
		}
	}
	res.Bookmarks = detectBookmarks(census, logger)
	return res
}

// writePopulation writes the trajectory, environment and summary of a run.
func (r *Runner) writePopulation(out *telemetry.OutputManager, run *populationRun, res *PopulationResult) error {
	if out == nil {
		return nil
	}
	t := run.trajectory
	if err := out.WriteSeries("population", t.States); err != nil {
		return err
	}
	if t.HasPredators() {
		if err := out.WriteSeries("predators", t.PredatorStates); err != nil {
			return err
		}
	}
	if err := out.WriteSeries("environment", run.env.All()); err != nil {
		return err
	}
	if err := writeBookmarks(out, res.Bookmarks); err != nil {
		return err
	}
	if res.Perf != nil {
		if err := out.WritePerf(*res.Perf, t.Days); err != nil {
			return err
		}
	}
	if err := r.writeConfig(out, run.ec); err != nil {
		return err
	}
	return out.WriteJSON("summary", res.summary())
}

// RunPopulation runs one species through the aggregate model.
func (r *Runner) RunPopulation(ctx context.Context, req PopulationRequest) (*PopulationResult, error) {
	if err := req.Validate(r.cfg); err != nil {
		return nil, err
	}
	seed := r.seed(req.Seed)
	req.Seed = &seed

	run, err := r.simulatePopulation(ctx, req, seed, nil)
	if err != nil {
		return nil, err
	}
	return r.finishPopulation(ctx, storage.KindPopulation, req.Checkpoint, req.Species, req.Days, req, run)
}

// RunPredatorPrey runs the prey species coupled to a predator population.
func (r *Runner) RunPredatorPrey(ctx context.Context, req PredatorRequest) (*PopulationResult, error) {
	if err := req.Validate(r.cfg); err != nil {
		return nil, err
	}
	seed := r.seed(req.Seed)
	req.Seed = &seed

	pred, err := r.predatorOptions(req)
	if err != nil {
		return nil, err
	}
	run, err := r.simulatePopulation(ctx, req.PopulationRequest, seed, pred)
	if err != nil {
		return nil, err
	}
	return r.finishPopulation(ctx, storage.KindPredator, req.Checkpoint, req.Species, req.Days, req, run)
}

func (r *Runner) finishPopulation(ctx context.Context, kind, name, species string, days int, req any, run *populationRun) (*PopulationResult, error) {
	logger := r.logger.With("kind", kind, "species", species)
	res := run.result(ctx, logger)

	out, err := r.outputs(kind, name)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if err := r.writePopulation(out, run, res); err != nil {
		return nil, fmt.Errorf("writing outputs: %w", err)
	}
	res.OutputDir = out.Dir()

	if res.CheckpointID, err = r.checkpoint(ctx, name, kind, species, days, req, res); err != nil {
		return nil, err
	}

	logger.Info("run complete", "summary", res.Summary, "rules", res.Rules)
	if res.Predation != nil {
		logger.Info("predation", "prey_consumed", res.Predation.PreyConsumed,
			"predator_final", res.Predation.PredatorFinal)
	}
	return res, nil
}

// PredationComparison contrasts the same prey run with and without predators.
type PredationComparison struct {
	Seed    uint64                     `json:"seed"`
	With    *PopulationResult          `json:"with_predators"`
	Without *PopulationResult          `json:"without_predators"`
	Impact  population.PredationImpact `json:"impact"`

	OutputDir    string `json:"output_dir,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// ComparePredation runs req twice with the same seed and environment, once
// coupled to predators and once alone.
func (r *Runner) ComparePredation(ctx context.Context, req PredatorRequest) (*PredationComparison, error) {
	if err := req.Validate(r.cfg); err != nil {
		return nil, err
	}
	seed := r.seed(req.Seed)
	req.Seed = &seed
	logger := r.logger.With("kind", storage.KindComparison, "species", req.Species)

	pred, err := r.predatorOptions(req)
	if err != nil {
		return nil, err
	}
	with, err := r.simulatePopulation(ctx, req.PopulationRequest, seed, pred)
	if err != nil {
		return nil, fmt.Errorf("with predators: %w", err)
	}
	without, err := r.simulatePopulation(ctx, req.PopulationRequest, seed, nil)
	if err != nil {
		return nil, fmt.Errorf("without predators: %w", err)
	}

	cmp := &PredationComparison{
		Seed:    seed,
		With:    with.result(ctx, logger),
		Without: without.result(ctx, logger),
		Impact:  population.ComparePredation(with.trajectory, without.trajectory),
	}

	out, err := r.outputs(storage.KindComparison, req.Checkpoint)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if out != nil {
		if err := out.WriteSeries("with_predators", with.trajectory.States); err != nil {
			return nil, err
		}
		if err := out.WriteSeries("predators", with.trajectory.PredatorStates); err != nil {
			return nil, err
		}
		if err := out.WriteSeries("without_predators", without.trajectory.States); err != nil {
			return nil, err
		}
		if err := out.WriteSeries("environment", with.env.All()); err != nil {
			return nil, err
		}
		if err := r.writeConfig(out, with.ec); err != nil {
			return nil, err
		}
		summary := *cmp
		summary.With = cmp.With.summary()
		summary.Without = cmp.Without.summary()
		if err := out.WriteJSON("summary", &summary); err != nil {
			return nil, err
		}
	}
	cmp.OutputDir = out.Dir()

	if cmp.CheckpointID, err = r.checkpoint(ctx, req.Checkpoint, storage.KindComparison, req.Species, req.Days, req, cmp); err != nil {
		return nil, err
	}
	logger.Info("predation comparison complete",
		"prey_reduction", cmp.Impact.PreyReduction,
		"reduction_percent", cmp.Impact.ReductionPercent,
	)
	return cmp, nil
}

// EigenReport is the asymptotic analysis of one species' matrix.
type EigenReport struct {
	Species     string        `json:"species"`
	Report      leslie.Report `json:"report"`
	Sensitivity [][]float64   `json:"sensitivity,omitempty"`
	Elasticity  [][]float64   `json:"elasticity,omitempty"`
}

// Eigen analyses the static Leslie matrix of a species. Sensitivity and
// elasticity are omitted when the matrix is degenerate.
func (r *Runner) Eigen(species string) (*EigenReport, error) {
	m, err := r.matrix(species)
	if err != nil {
		return nil, err
	}
	rep, err := m.Report()
	if err != nil {
		return nil, err
	}
	out := &EigenReport{Species: species, Report: rep}
	sens, elas, err := m.Sensitivity()
	if err != nil {
		r.logger.Warn("sensitivity unavailable", "species", species, "error", err)
		return out, nil
	}
	out.Sensitivity = rows(sens)
	out.Elasticity = rows(elas)
	return out, nil
}

// CompareSpecies contrasts the asymptotic behaviour of two species.
func (r *Runner) CompareSpecies(a, b string) (leslie.Comparison, error) {
	ma, err := r.matrix(a)
	if err != nil {
		return leslie.Comparison{}, err
	}
	mb, err := r.matrix(b)
	if err != nil {
		return leslie.Comparison{}, err
	}
	return leslie.Compare(ma, mb, a, b)
}

func (r *Runner) matrix(species string) (*leslie.Matrix, error) {
	sp, err := r.cfg.SpeciesByID(species)
	if err != nil {
		return nil, err
	}
	return leslie.FromSpecies(sp)
}

func rows(m *mat.Dense) [][]float64 {
	n, _ := m.Dims()
	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
