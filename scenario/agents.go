package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/vectorsim/agents"
	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/environment"
	"github.com/pthm-cable/vectorsim/population"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/stochastic"
	"github.com/pthm-cable/vectorsim/storage"
	"github.com/pthm-cable/vectorsim/telemetry"
)

// AgentRunResult is the outcome of an individual-based run.
type AgentRunResult struct {
	Seed        uint64                 `json:"seed"`
	Result      *agents.Result         `json:"result"`
	Statistics  agents.Statistics      `json:"statistics"`
	Environment environment.Statistics `json:"environment"`
	Bookmarks   []telemetry.Bookmark   `json:"bookmarks,omitempty"`
	Rules       rules.Stats            `json:"rules"`
	Perf        *telemetry.PerfStats   `json:"perf,omitempty"`

	OutputDir    string `json:"output_dir,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

type agentRun struct {
	seed   uint64
	ec     config.EnvironmentConfig
	env    *environment.Model
	rules  *rules.Client
	perf   *telemetry.PerfCollector
	result *agents.Result
}

// simulateAgents runs the agent engine for req. env may be shared with an
// aggregate run; nil builds one from the request.
func (r *Runner) simulateAgents(ctx context.Context, req AgentRequest, seed uint64, env *environment.Model) (*agentRun, error) {
	vec, err := r.cfg.SpeciesByID(req.Species)
	if err != nil {
		return nil, err
	}
	var pred *config.SpeciesConfig
	if req.Predators > 0 {
		if pred, err = r.cfg.SpeciesByID(req.predatorID(r.cfg)); err != nil {
			return nil, err
		}
	}

	streams := stochastic.NewStreams(seed)
	ec := r.environmentConfig(req.Habitat)
	if env == nil {
		if env, err = r.buildEnvironment(ec, req.Days, streams.Environmental); err != nil {
			return nil, err
		}
	}

	parallel := r.cfg.Simulation.ParallelAgents
	if req.Parallel != nil {
		parallel = *req.Parallel
	}
	logger := r.logger.With("seed", seed)
	run := &agentRun{
		seed:  seed,
		ec:    ec,
		env:   env,
		rules: r.rulesClient(logger),
		perf:  r.perfCollector(),
	}
	engine, err := agents.New(env, agents.Options{
		Vectors:         req.Vectors,
		Predators:       req.Predators,
		VectorSpecies:   vec,
		PredatorSpecies: pred,
		Params:          r.cfg.Agents,
		Parallel:        parallel,
		Workers:         req.Workers,
		Generator:       streams.Demographic,
		Rules:           run.rules,
		Logger:          logger,
		Perf:            run.perf,
	})
	if err != nil {
		return nil, err
	}
	if run.result, err = engine.Run(ctx, req.Days); err != nil {
		return nil, err
	}
	return run, nil
}

func (run *agentRun) output(logger *slog.Logger) *AgentRunResult {
	res := &AgentRunResult{
		Seed:        run.seed,
		Result:      run.result,
		Statistics:  run.result.Statistics(),
		Environment: run.env.Statistics(),
		Rules:       run.rules.Stats(),
	}
	if run.perf != nil {
		ps := run.perf.Stats()
		res.Perf = &ps
	}
	census := make([]telemetry.Census, len(run.result.Daily))
	for i, d := range run.result.Daily {
		census[i] = telemetry.Census{Day: d.Day, Prey: d.VectorsAlive, Predators: d.PredatorsAlive}
	}
	res.Bookmarks = detectBookmarks(census, logger)
	return res
}

func (r *Runner) writeAgents(out *telemetry.OutputManager, run *agentRun, res *AgentRunResult) error {
	if out == nil {
		return nil
	}
	for _, d := range run.result.Daily {
		if err := out.WriteDay(d); err != nil {
			return err
		}
	}
	if err := out.WriteSeries("census", run.result.Census); err != nil {
		return err
	}
	if err := out.WriteSeries("environment", run.env.All()); err != nil {
		return err
	}
	if err := writeBookmarks(out, res.Bookmarks); err != nil {
		return err
	}
	if res.Perf != nil {
		if err := out.WritePerf(*res.Perf, len(run.result.Daily)-1); err != nil {
			return err
		}
	}
	if err := r.writeConfig(out, run.ec); err != nil {
		return err
	}
	return out.WriteJSON("summary", res)
}

// RunAgents runs the individual-based model.
func (r *Runner) RunAgents(ctx context.Context, req AgentRequest) (*AgentRunResult, error) {
	if err := req.Validate(r.cfg); err != nil {
		return nil, err
	}
	seed := r.seed(req.Seed)
	req.Seed = &seed
	logger := r.logger.With("kind", storage.KindAgents, "species", req.Species)

	run, err := r.simulateAgents(ctx, req, seed, nil)
	if err != nil {
		return nil, err
	}
	res := run.output(logger)

	out, err := r.outputs(storage.KindAgents, req.Checkpoint)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if err := r.writeAgents(out, run, res); err != nil {
		return nil, fmt.Errorf("writing outputs: %w", err)
	}
	res.OutputDir = out.Dir()

	if res.CheckpointID, err = r.checkpoint(ctx, req.Checkpoint, storage.KindAgents, req.Species, req.Days, req, res); err != nil {
		return nil, err
	}
	logger.Info("run complete", "statistics", res.Statistics, "rules", res.Rules)
	return res, nil
}

// ModelMetrics are the figures both models report.
type ModelMetrics struct {
	FinalPopulation int     `json:"final_population"`
	PeakPopulation  int     `json:"peak_population"`
	PeakDay         int     `json:"peak_day"`
	MeanPopulation  float64 `json:"mean_population"`
	ExtinctionDay   *int    `json:"extinction_day,omitempty"`
}

// HybridComparison sets the agent model beside the aggregate model. The
// aggregate figures count every stage; the agent figures count adults.
type HybridComparison struct {
	Population ModelMetrics `json:"population_model"`
	Agents     ModelMetrics `json:"agent_model"`

	FinalDifference float64 `json:"final_population_diff"` // agents - population
	PeakDifference  float64 `json:"peak_population_diff"`
	MeanDifference  float64 `json:"mean_population_diff"`

	// Daily agent count against the aggregate adult count.
	AdultRMSE float64 `json:"adult_rmse"`
}

// HybridDay is one row of the side-by-side daily series.
type HybridDay struct {
	Day              int `csv:"day" json:"day"`
	PopulationTotal  int `csv:"population_total" json:"population_total"`
	PopulationAdults int `csv:"population_adults" json:"population_adults"`
	AgentVectors     int `csv:"agent_vectors" json:"agent_vectors"`
	AgentPredators   int `csv:"agent_predators" json:"agent_predators"`
}

// HybridResult holds both runs and their comparison.
type HybridResult struct {
	Seed       uint64            `json:"seed"`
	Population *PopulationResult `json:"population"`
	Agents     *AgentRunResult   `json:"agents"`
	Comparison HybridComparison  `json:"comparison"`
	Daily      []HybridDay       `json:"daily,omitempty"`

	OutputDir    string `json:"output_dir,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// RunHybrid runs the aggregate model and the agent model over one
// environment series and compares them.
func (r *Runner) RunHybrid(ctx context.Context, req HybridRequest) (*HybridResult, error) {
	if err := req.Validate(r.cfg); err != nil {
		return nil, err
	}
	seed := r.seed(req.Seed)
	req.Seed = &seed
	logger := r.logger.With("kind", storage.KindHybrid, "species", req.Species)

	pop, err := r.simulatePopulation(ctx, req.PopulationRequest, seed, nil)
	if err != nil {
		return nil, fmt.Errorf("population model: %w", err)
	}
	ag, err := r.simulateAgents(ctx, req.agentRequest(), seed, pop.env)
	if err != nil {
		return nil, fmt.Errorf("agent model: %w", err)
	}

	res := &HybridResult{
		Seed:       seed,
		Population: pop.result(ctx, logger),
		Agents:     ag.output(logger),
		Daily:      hybridDays(pop.trajectory.States, ag.result.Daily),
	}
	res.Comparison = compareModels(res.Population.Summary, res.Agents.Statistics, res.Daily)

	out, err := r.outputs(storage.KindHybrid, req.Checkpoint)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if out != nil {
		if err := out.WriteSeries("hybrid", res.Daily); err != nil {
			return nil, err
		}
		if err := out.WriteSeries("population", pop.trajectory.States); err != nil {
			return nil, err
		}
		for _, d := range ag.result.Daily {
			if err := out.WriteDay(d); err != nil {
				return nil, err
			}
		}
		if err := out.WriteSeries("environment", pop.env.All()); err != nil {
			return nil, err
		}
		if err := r.writeConfig(out, pop.ec); err != nil {
			return nil, err
		}
		summary := *res
		summary.Population = res.Population.summary()
		summary.Daily = nil
		if err := out.WriteJSON("summary", &summary); err != nil {
			return nil, err
		}
	}
	res.OutputDir = out.Dir()

	if res.CheckpointID, err = r.checkpoint(ctx, req.Checkpoint, storage.KindHybrid, req.Species, req.Days, req, res); err != nil {
		return nil, err
	}
	logger.Info("hybrid run complete",
		"population_final", res.Comparison.Population.FinalPopulation,
		"agent_final", res.Comparison.Agents.FinalPopulation,
		"adult_rmse", res.Comparison.AdultRMSE,
	)
	return res, nil
}

func hybridDays(states []population.State, daily []telemetry.DayStats) []HybridDay {
	n := min(len(states), len(daily))
	out := make([]HybridDay, n)
	for i := range out {
		out[i] = HybridDay{
			Day:              states[i].Day,
			PopulationTotal:  states[i].Total,
			PopulationAdults: states[i].Adults,
			AgentVectors:     daily[i].VectorsAlive,
			AgentPredators:   daily[i].PredatorsAlive,
		}
	}
	return out
}

func compareModels(pop population.Summary, ag agents.Statistics, days []HybridDay) HybridComparison {
	c := HybridComparison{
		Population: ModelMetrics{
			FinalPopulation: pop.FinalPopulation,
			PeakPopulation:  pop.MaxPopulation,
			PeakDay:         pop.PeakDay,
			MeanPopulation:  pop.MeanPopulation,
			ExtinctionDay:   pop.ExtinctionDay,
		},
		Agents: ModelMetrics{
			FinalPopulation: ag.FinalVectors,
			PeakPopulation:  ag.PeakVectors,
			PeakDay:         ag.PeakDay,
			MeanPopulation:  ag.MeanVectors,
			ExtinctionDay:   ag.ExtinctionDay,
		},
	}
	c.FinalDifference = float64(c.Agents.FinalPopulation - c.Population.FinalPopulation)
	c.PeakDifference = float64(c.Agents.PeakPopulation - c.Population.PeakPopulation)
	c.MeanDifference = c.Agents.MeanPopulation - c.Population.MeanPopulation

	if len(days) > 0 {
		diffs := make([]float64, len(days))
		for i, d := range days {
			diffs[i] = float64(d.AgentVectors - d.PopulationAdults)
		}
		c.AdultRMSE = rmse(diffs)
	}
	return c
}

func rmse(diffs []float64) float64 {
	return floats.Norm(diffs, 2) / math.Sqrt(float64(len(diffs)))
}
