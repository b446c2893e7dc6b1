// Package population implements the aggregate stage-structured population
// engine: a daily PROJECT, MODULATE, REGULATE, PERTURB, COMMIT pipeline
// over a Leslie matrix, with optional predator coupling.
package population

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/environment"
	"github.com/pthm-cable/vectorsim/leslie"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/simerr"
	"github.com/pthm-cable/vectorsim/stochastic"
	"github.com/pthm-cable/vectorsim/telemetry"
)

// ErrNotInitialized is returned by Step before Initialize.
var ErrNotInitialized = errors.New("population not initialized")

// transitions names the from/to pairs of the matrix subdiagonal.
var transitions = [leslie.NumStages - 1][2]string{
	{"egg", "larva"},
	{"larva", "pupa"},
	{"pupa", "adult"},
}

// Options configures a Model. Zero values are usable: no stochasticity, no
// rule engine, default logger.
type Options struct {
	Stochastic      bool
	DynamicSurvival bool                  // refresh transitions from the rule engine each day
	Generator       *stochastic.Generator // demographic stream; required when Stochastic
	Rules           *rules.Client
	Predator        *PredatorOptions
	Logger          *slog.Logger
	Perf            *telemetry.PerfCollector
}

// Model advances one species (and optionally a predator) day by day.
type Model struct {
	species *config.SpeciesConfig
	base    *leslie.Matrix // static rates; never modified
	current *leslie.Matrix // rates used for the last committed day
	env     *environment.Model
	rules   *rules.Client
	gen     *stochastic.Generator

	stochastic bool
	dynamic    bool

	predator *predator

	logger *slog.Logger
	perf   *telemetry.PerfCollector

	trajectory    []State
	extinctionDay *int
}

// New builds a model for species over env.
func New(species *config.SpeciesConfig, env *environment.Model, opts Options) (*Model, error) {
	if species == nil {
		return nil, simerr.Configuration("species", nil, "required")
	}
	if env == nil {
		return nil, simerr.Configuration("environment", nil, "required")
	}
	m0, err := leslie.FromSpecies(species)
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rules == nil {
		opts.Rules = rules.NewClient(nil, config.RulesConfig{}, opts.Logger)
	}
	if opts.Stochastic && opts.Generator == nil {
		return nil, simerr.Configuration("generator", nil, "required in stochastic mode")
	}

	m := &Model{
		species:    species,
		base:       m0,
		current:    m0,
		env:        env,
		rules:      opts.Rules,
		gen:        opts.Generator,
		stochastic: opts.Stochastic,
		dynamic:    opts.DynamicSurvival,
		logger:     opts.Logger.With("species", species.ID),
		perf:       opts.Perf,
	}

	if opts.Predator != nil {
		p, err := newPredator(*opts.Predator)
		if err != nil {
			return nil, err
		}
		m.predator = p
	}
	return m, nil
}

// Species returns the prey species id.
func (m *Model) Species() string { return m.species.ID }

// Matrix returns a copy of the matrix used for the most recent day.
func (m *Model) Matrix() *leslie.Matrix { return m.current.Clone() }

// Initialize resets the model and commits day 0 with the literal counts.
func (m *Model) Initialize(ctx context.Context, counts config.InitialCounts) (State, error) {
	if err := validateCounts("initial", counts); err != nil {
		return State{}, err
	}
	cond, err := m.env.Conditions(0)
	if err != nil {
		return State{}, err
	}

	s := State{
		Day:              0,
		Eggs:             counts.Eggs,
		Larvae:           counts.Larvae.Total(),
		Pupae:            counts.Pupae,
		Adults:           counts.Adults,
		Temperature:      cond.Temperature,
		Humidity:         cond.Humidity,
		CarryingCapacity: cond.CarryingCapacity,
	}
	s.Total = s.Eggs + s.Larvae + s.Pupae + s.Adults

	m.current = m.base
	m.trajectory = []State{s}
	m.extinctionDay = nil
	if m.predator != nil {
		m.predator.reset()
	}

	m.rules.AssertEnvironment(ctx, 0, cond.Temperature, cond.Humidity)
	m.assertPopulation(ctx, s)

	m.logger.Debug("initialized", "state", s)
	return s, nil
}

func validateCounts(field string, c config.InitialCounts) error {
	var v simerr.Collector
	v.Check(c.Eggs >= 0, field+".eggs", c.Eggs, "must be non-negative")
	v.Add(c.Larvae.Validate(field + ".larvae"))
	v.Check(c.Pupae >= 0, field+".pupae", c.Pupae, "must be non-negative")
	v.Check(c.Adults >= 0, field+".adults", c.Adults, "must be non-negative")
	return v.Err()
}

// Current returns the last committed state.
func (m *Model) Current() (State, bool) {
	if len(m.trajectory) == 0 {
		return State{}, false
	}
	return m.trajectory[len(m.trajectory)-1], true
}

// Step advances one day. day must follow the last committed day. The next
// state is computed in full before anything is committed, so a failed step
// leaves the trajectory unchanged.
func (m *Model) Step(ctx context.Context, day int) (State, error) {
	prev, ok := m.Current()
	if !ok {
		return State{}, ErrNotInitialized
	}
	if day != prev.Day+1 {
		return State{}, simerr.Validation("day", day, fmt.Sprintf("next day is %d", prev.Day+1))
	}

	m.perf.StartStep()
	defer m.perf.EndStep()

	m.perf.StartPhase(telemetry.PhaseEnvironment)
	cond, err := m.env.Conditions(day)
	if err != nil {
		return State{}, err
	}
	m.rules.AssertEnvironment(ctx, day, cond.Temperature, cond.Humidity)

	matrix := m.base
	if m.dynamic {
		matrix = m.refreshSurvival(ctx, cond)
	}

	// PROJECT
	m.perf.StartPhase(telemetry.PhaseProject)
	x, err := matrix.Apply(prev.Vector())
	if err != nil {
		return State{}, err
	}

	// MODULATE
	m.perf.StartPhase(telemetry.PhaseModulate)
	multiplier := m.environmentalMultiplier(ctx, cond)
	floats.Scale(multiplier, x)

	// Predators eat prey larvae before the prey is regulated.
	var pred predatorStep
	if m.predator != nil {
		m.perf.StartPhase(telemetry.PhasePredation)
		pred, err = m.predator.advance(ctx, m.rules, x, multiplier, cond)
		if err != nil {
			return State{}, err
		}
	}

	// REGULATE
	m.perf.StartPhase(telemetry.PhaseRegulate)
	Regulate(x, cond.CarryingCapacity)

	// PERTURB
	if m.stochastic {
		m.perf.StartPhase(telemetry.PhasePerturb)
		Perturb(m.gen, x, matrix)
		if m.predator != nil {
			Perturb(m.gen, pred.vector, m.predator.matrix)
		}
	}

	// COMMIT
	m.perf.StartPhase(telemetry.PhaseCommit)
	s := commit(day, x, cond)
	m.trajectory = append(m.trajectory, s)
	m.current = matrix
	if m.predator != nil {
		m.predator.commit(day, pred)
	}
	m.checkExtinction(s)
	m.assertPopulation(ctx, s)

	return s, nil
}

// Simulate initializes with counts and steps through days, returning a
// trajectory of days+1 states. Cancelling ctx stops the run between days.
func (m *Model) Simulate(ctx context.Context, days int, counts config.InitialCounts) (*Trajectory, error) {
	if days < 0 {
		return nil, simerr.Validation("days", days, "must be non-negative")
	}
	if days >= m.env.Days() {
		return nil, fmt.Errorf("%d days requested, environment covers %d: %w", days, m.env.Days()-1, simerr.ErrIndexOutOfRange)
	}
	if _, err := m.Initialize(ctx, counts); err != nil {
		return nil, err
	}

	for day := 1; day <= days; day++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := m.Step(ctx, day); err != nil {
			return nil, fmt.Errorf("day %d: %w", day, err)
		}
	}

	traj := m.Trajectory()
	final, _ := m.Current()
	m.logger.Info("population run complete",
		"days", days,
		"final", final,
		"rules", m.rules.Stats(),
	)
	return traj, nil
}

// Trajectory returns a copy of everything committed so far.
func (m *Model) Trajectory() *Trajectory {
	t := &Trajectory{
		Species: m.species.ID,
		States:  append([]State(nil), m.trajectory...),
	}
	if len(t.States) > 0 {
		t.Days = len(t.States) - 1
	}
	if m.predator != nil {
		t.Predator = m.predator.species.ID
		t.PredatorStates = append([]PredatorState(nil), m.predator.trajectory...)
	}
	if m.extinctionDay != nil {
		d := *m.extinctionDay
		t.ExtinctionDay = &d
	}
	return t
}

// environmentalMultiplier combines the temperature and humidity factors.
func (m *Model) environmentalMultiplier(ctx context.Context, cond environment.Conditions) float64 {
	tf, _ := m.rules.TemperatureFactor(ctx, cond.Temperature)
	hf, _ := m.rules.HumidityFactor(ctx, cond.Humidity)
	return tf * hf
}

// refreshSurvival derives today's matrix from the static rates adjusted by
// the rule engine. Any rejected rate keeps the static matrix.
func (m *Model) refreshSurvival(ctx context.Context, cond environment.Conditions) *leslie.Matrix {
	static := m.base.Survival()
	rates := make([]float64, len(static))
	for i, s := range static {
		rates[i], _ = m.rules.EffectiveSurvival(ctx, m.species.ID, transitions[i][0], transitions[i][1],
			cond.Temperature, cond.Humidity, s)
	}
	next := m.base.Clone()
	if err := next.UpdateSurvivalRates(rates); err != nil {
		m.logger.Warn("dynamic survival rejected", "day", cond.Day, "error", err)
		return m.base
	}
	return next
}

func (m *Model) checkExtinction(s State) {
	if m.extinctionDay != nil {
		return
	}
	extinct := s.Total == 0
	if m.predator != nil {
		if ps, ok := m.predator.current(); ok && ps.Total == 0 {
			extinct = true
		}
	}
	if extinct {
		d := s.Day
		m.extinctionDay = &d
		m.logger.Info("extinction", "day", d)
	}
}

func (m *Model) assertPopulation(ctx context.Context, s State) {
	var density float64
	if s.CarryingCapacity > 0 {
		density = float64(s.Total) / float64(s.CarryingCapacity)
	}
	m.rules.AssertPopulation(ctx, m.species.ID, s.Day, s.Total, density)
	if m.predator != nil {
		if ps, ok := m.predator.current(); ok {
			m.rules.AssertPopulation(ctx, m.predator.species.ID, ps.Day, ps.Total, 0)
		}
	}
}

// Regulate applies aquatic density dependence in place. When larvae plus
// pupae exceed capacity, larvae scale by capacity/load and pupae by
// (1+capacity/load)/2.
func Regulate(x []float64, capacity int) {
	load := x[leslie.Larva] + x[leslie.Pupa]
	k := math.Max(float64(capacity), 0)
	if !(load > k) {
		return
	}
	r := k / load
	x[leslie.Larva] *= r
	x[leslie.Pupa] *= (1 + r) / 2
}

// Perturb replaces each projected count with a random draw of the same
// mean: eggs ~ Poisson(x); later stages ~ Binomial(⌈x/p⌉, p) with p the
// stage's incoming transition (the adult diagonal for adults).
func Perturb(gen *stochastic.Generator, x []float64, matrix *leslie.Matrix) {
	if gen == nil {
		return
	}
	x[0] = float64(gen.Poisson(x[0]))
	survival := matrix.Survival()
	last := len(x) - 1
	for i := 1; i < len(x); i++ {
		p := survival[i-1]
		if i == last {
			p = matrix.AdultSurvival()
		}
		if !(x[i] > 0) || !(p > 0) {
			continue
		}
		n := int(math.Ceil(x[i] / p))
		x[i] = float64(gen.Binomial(n, p))
	}
}

// commit clamps, rounds and totals a projected vector.
func commit(day int, x []float64, cond environment.Conditions) State {
	c := roundCounts(x)
	return State{
		Day:              day,
		Eggs:             c[leslie.Egg],
		Larvae:           c[leslie.Larva],
		Pupae:            c[leslie.Pupa],
		Adults:           c[leslie.Adult],
		Total:            c[0] + c[1] + c[2] + c[3],
		Temperature:      cond.Temperature,
		Humidity:         cond.Humidity,
		CarryingCapacity: cond.CarryingCapacity,
	}
}

func roundCounts(x []float64) [leslie.NumStages]int {
	var c [leslie.NumStages]int
	for i := range c {
		v := x[i]
		if !(v > 0) || math.IsInf(v, 0) {
			v = 0
		}
		c[i] = int(math.Round(v))
	}
	return c
}
