package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/leslie"
	"github.com/pthm-cable/vectorsim/scenario"
)

// penalty is returned for parameter sets the model cannot analyse.
const penalty = 1e6

// FitnessEvaluator scores a parameter vector by how far the species' λ1
// and simulated growth sit from the target growth rate.
type FitnessEvaluator struct {
	params  *ParamVector
	species string
	base    *config.Config
	target  float64 // target λ1
	days    int
	seeds   []uint64
	weight  float64 // trajectory term weight
	logger  *slog.Logger

	mu   sync.Mutex
	last Evaluation
}

// Evaluation is the breakdown of one fitness value.
type Evaluation struct {
	Fitness      float64
	Lambda       float64
	Growth       float64 // mean simulated daily log growth across seeds
	LambdaTerm   float64
	TrackingTerm float64
}

// NewFitnessEvaluator creates an evaluator for one species of base.
func NewFitnessEvaluator(params *ParamVector, base *config.Config, species string, target float64, days int, seeds []uint64, weight float64, logger *slog.Logger) (*FitnessEvaluator, error) {
	if _, err := base.SpeciesByID(species); err != nil {
		return nil, err
	}
	if target <= 0 {
		return nil, fmt.Errorf("target lambda must be positive, got %v", target)
	}
	return &FitnessEvaluator{
		params:  params,
		species: species,
		base:    base,
		target:  target,
		days:    days,
		seeds:   seeds,
		weight:  weight,
		logger:  logger,
	}, nil
}

// Last returns the breakdown of the most recent evaluation.
func (fe *FitnessEvaluator) Last() Evaluation {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.last
}

// Config returns a copy of the base configuration with x applied.
func (fe *FitnessEvaluator) Config(x []float64) *config.Config {
	cfg := cloneConfig(fe.base)
	cfg.Telemetry.OutputDir = ""
	sp, _ := cfg.SpeciesByID(fe.species)
	fe.params.Apply(sp, x)
	return cfg
}

// Evaluate computes fitness for raw parameter values (lower = better):
// (λ1 − target)² plus weight × mean over seeds of (r_sim − ln target)²,
// where r_sim is the simulated mean daily log growth of the total.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) Evaluation {
	cfg := fe.Config(x)
	sp, _ := cfg.SpeciesByID(fe.species)

	ev := Evaluation{Fitness: penalty}
	m, err := leslie.FromSpecies(sp)
	if err != nil {
		fe.record(ev)
		return ev
	}
	a, err := m.Eigenanalysis()
	if err != nil {
		fe.record(ev)
		return ev
	}
	ev.Lambda = a.Lambda
	ev.LambdaTerm = (a.Lambda - fe.target) * (a.Lambda - fe.target)

	if fe.weight > 0 && len(fe.seeds) > 0 {
		growth := make([]float64, len(fe.seeds))
		errs := make([]error, len(fe.seeds))
		var wg sync.WaitGroup
		for i, seed := range fe.seeds {
			wg.Add(1)
			go func(idx int, s uint64) {
				defer wg.Done()
				growth[idx], errs[idx] = fe.simulate(ctx, cfg, s)
			}(i, seed)
		}
		wg.Wait()

		want := math.Log(fe.target)
		for i, g := range growth {
			if errs[i] != nil {
				fe.logger.Debug("simulation failed", "seed", fe.seeds[i], "error", errs[i])
				fe.record(ev)
				return ev
			}
			ev.Growth += g
			ev.TrackingTerm += (g - want) * (g - want)
		}
		n := float64(len(fe.seeds))
		ev.Growth /= n
		ev.TrackingTerm /= n
	}

	ev.Fitness = ev.LambdaTerm + fe.weight*ev.TrackingTerm
	fe.record(ev)
	return ev
}

func (fe *FitnessEvaluator) record(ev Evaluation) {
	fe.mu.Lock()
	fe.last = ev
	fe.mu.Unlock()
}

// simulate runs the aggregate model once and returns its mean daily log
// growth, (ln(N_T+1) − ln(N_0+1)) / T.
func (fe *FitnessEvaluator) simulate(ctx context.Context, cfg *config.Config, seed uint64) (float64, error) {
	r := scenario.NewRunner(cfg, scenario.Options{Logger: fe.logger})
	stochastic := true
	res, err := r.RunPopulation(ctx, scenario.PopulationRequest{
		Species:    fe.species,
		Days:       fe.days,
		Initial:    cfg.InitialFor(fe.species),
		Seed:       &seed,
		Stochastic: &stochastic,
	})
	if err != nil {
		return 0, err
	}
	s := res.Summary
	return (math.Log(float64(s.FinalPopulation)+1) - math.Log(float64(s.InitialPopulation)+1)) / float64(fe.days), nil
}
