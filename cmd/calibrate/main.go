// Package main calibrates species parameters with CMA-ES so that a species'
// asymptotic growth rate and simulated growth match a target λ1.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/telemetry"
)

// formatDuration formats a duration as 1h02m03s or 2m03s.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// evalRow is one line of the calibration log.
type evalRow struct {
	Eval           int     `csv:"eval"`
	Fitness        float64 `csv:"fitness"`
	Lambda         float64 `csv:"lambda"`
	Growth         float64 `csv:"growth"`
	EggSurvival    float64 `csv:"egg_survival"`
	LarvalSurvival float64 `csv:"larval_survival"`
	PupalSurvival  float64 `csv:"pupal_survival"`
	EggsPerBatch   float64 `csv:"eggs_per_batch"`
}

// summary is written to summary.json at the end of a calibration.
type summary struct {
	Species     string             `json:"species"`
	Target      float64            `json:"target_lambda"`
	Evaluations int                `json:"evaluations"`
	Best        map[string]float64 `json:"best_parameters"`
	Initial     map[string]float64 `json:"initial_parameters"`
	Fitness     float64            `json:"best_fitness"`
	Lambda      float64            `json:"best_lambda"`
	Duration    string             `json:"duration"`
}

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
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit species survival and fecundity to a target growth rate",
		Long: `calibrate searches egg, larval and pupal survival and mean eggs per
batch with CMA-ES, minimising (λ1 − target)² plus a weighted mismatch
between the simulated daily log growth and ln(target).

It writes calibrate_log.csv, the best configuration as config.yaml and a
summary.json to --output.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runCalibrate,
	}
	f := cmd.Flags()
	f.String("config", "", "Base config YAML file (empty = embedded defaults)")
	f.String("species", "", "Species to calibrate (empty = predation.prey_species)")
	f.Float64("target", 1.05, "Target dominant eigenvalue λ1")
	f.Int("days", 60, "Days per trajectory simulation")
	f.Int("seeds", 3, "Stochastic simulations per evaluation (0 = eigenvalue only)")
	f.Float64("weight", 100, "Weight of the trajectory term")
	f.Int("max-evals", 200, "Maximum number of evaluations")
	f.Int("population", 0, "CMA-ES population size (0 = auto)")
	f.String("output", "", "Output directory for results (required)")
	f.String("log-level", "info", "trace, debug, info, warn or error")
	return cmd
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	outputDir, _ := flags.GetString("output")
	if outputDir == "" {
		return fmt.Errorf("--output is required")
	}
	level, _ := flags.GetString("log-level")
	logger, err := telemetry.NewLogger(level, "text", cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	configPath, _ := flags.GetString("config")
	baseCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	species, _ := flags.GetString("species")
	if species == "" {
		species = baseCfg.Predation.PreySpecies
	}
	sp, err := baseCfg.SpeciesByID(species)
	if err != nil {
		return err
	}

	target, _ := flags.GetFloat64("target")
	days, _ := flags.GetInt("days")
	nSeeds, _ := flags.GetInt("seeds")
	weight, _ := flags.GetFloat64("weight")
	maxEvals, _ := flags.GetInt("max-evals")
	popSize, _ := flags.GetInt("population")

	seeds := make([]uint64, nSeeds)
	for i := range seeds {
		seeds[i] = uint64(i*1000 + 42)
	}

	params := NewParamVector()
	// Simulation runs log at warn and above only.
	quiet := logger
	if l, _ := telemetry.ParseLevel(level); l > slog.LevelDebug {
		quiet, _ = telemetry.NewLogger("warn", "text", cmd.ErrOrStderr())
	}
	evaluator, err := NewFitnessEvaluator(params, baseCfg, species, target, days, seeds, weight, quiet)
	if err != nil {
		return err
	}

	out, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	defer out.Close()

	dim := params.Dim()
	initial := params.Extract(sp)
	if popSize == 0 {
		popSize = 4 + int(3*math.Log(float64(dim)))
	}

	ctx := cmd.Context()
	evalCount := 0
	bestFitness := math.Inf(1)
	var best []float64
	var bestEval Evaluation
	var writeErr error
	start := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if ctx.Err() != nil {
				return penalty
			}
			raw := params.Clamp(params.Denormalize(x))
			ev := evaluator.Evaluate(ctx, raw)
			evalCount++

			if ev.Fitness < bestFitness {
				bestFitness = ev.Fitness
				best = raw
				bestEval = ev
			}

			row := evalRow{
				Eval: evalCount, Fitness: ev.Fitness, Lambda: ev.Lambda, Growth: ev.Growth,
				EggSurvival: raw[0], LarvalSurvival: raw[1], PupalSurvival: raw[2], EggsPerBatch: raw[3],
			}
			if err := out.WriteSeries("calibrate_log", []evalRow{row}); err != nil && writeErr == nil {
				writeErr = err
			}

			elapsed := time.Since(start)
			remaining := time.Duration(maxEvals-evalCount) * (elapsed / time.Duration(evalCount))
			logger.Info("evaluation",
				"eval", fmt.Sprintf("%d/%d", evalCount, maxEvals),
				"fitness", ev.Fitness,
				"lambda", ev.Lambda,
				"growth", ev.Growth,
				"best", bestFitness,
				"elapsed", formatDuration(elapsed),
				"eta", formatDuration(remaining),
			)
			return ev.Fitness
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Concurrent:      0,
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	logger.Info("starting calibration",
		"species", species,
		"target", target,
		"parameters", dim,
		"population", popSize,
		"max_evals", maxEvals,
		"seeds", nSeeds,
		"days", days,
	)
	result, err := optimize.Minimize(problem, params.Normalize(initial), settings, method)
	if err != nil {
		logger.Warn("optimization ended", "error", err)
	}
	if writeErr != nil {
		return fmt.Errorf("writing calibration log: %w", writeErr)
	}
	if best == nil {
		if result == nil {
			return fmt.Errorf("no evaluations completed")
		}
		best = params.Clamp(params.Denormalize(result.X))
	}

	bestCfg := evaluator.Config(best)
	if err := out.WriteConfig(bestCfg); err != nil {
		return err
	}

	sum := summary{
		Species:     species,
		Target:      target,
		Evaluations: evalCount,
		Best:        make(map[string]float64, dim),
		Initial:     make(map[string]float64, dim),
		Fitness:     bestFitness,
		Lambda:      bestEval.Lambda,
		Duration:    formatDuration(time.Since(start)),
	}
	for i, spec := range params.Specs {
		sum.Best[spec.Name] = best[i]
		sum.Initial[spec.Name] = initial[i]
	}
	if err := out.WriteJSON("summary", sum); err != nil {
		return err
	}

	logger.Info("calibration complete",
		"evaluations", evalCount,
		"best_fitness", bestFitness,
		"best_lambda", bestEval.Lambda,
		"best", sum.Best,
		"output", out.Dir(),
	)
	return ctx.Err()
}
