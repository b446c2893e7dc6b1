package population

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/environment"
	"github.com/pthm-cable/vectorsim/leslie"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/simerr"
)

// PredatorOptions couples a predator population to the prey model.
type PredatorOptions struct {
	Species *config.SpeciesConfig
	Initial config.InitialCounts

	// ConsumptionFraction caps the share of projected prey larvae eaten per
	// day; StarvationSurvival multiplies predator larvae on days with none.
	ConsumptionFraction float64
	StarvationSurvival  float64
}

// PredatorOptionsFrom builds coupling options from the loaded configuration.
func PredatorOptionsFrom(cfg *config.Config) (*PredatorOptions, error) {
	sp, err := cfg.SpeciesByID(cfg.Predation.PredatorSpecies)
	if err != nil {
		return nil, err
	}
	return &PredatorOptions{
		Species:             sp,
		Initial:             cfg.InitialFor(sp.ID),
		ConsumptionFraction: cfg.Predation.ConsumptionFraction,
		StarvationSurvival:  cfg.Predation.StarvationSurvival,
	}, nil
}

type predator struct {
	species    *config.SpeciesConfig
	matrix     *leslie.Matrix
	initial    config.InitialCounts
	fraction   float64
	starvation float64

	trajectory []PredatorState
}

type predatorStep struct {
	vector   []float64
	consumed float64
}

func newPredator(o PredatorOptions) (*predator, error) {
	if o.Species == nil {
		return nil, simerr.Configuration("predator.species", nil, "required")
	}
	var v simerr.Collector
	v.Range("predation.consumption_fraction", o.ConsumptionFraction, 0, 1)
	v.Range("predation.starvation_survival", o.StarvationSurvival, 0, 1)
	v.Add(validateCounts("predator_initial", o.Initial))
	if err := v.Err(); err != nil {
		return nil, err
	}

	m, err := leslie.FromSpecies(o.Species)
	if err != nil {
		return nil, err
	}
	return &predator{
		species:    o.Species,
		matrix:     m,
		initial:    o.Initial,
		fraction:   o.ConsumptionFraction,
		starvation: o.StarvationSurvival,
	}, nil
}

func (p *predator) reset() {
	c := p.initial
	s := PredatorState{
		Eggs:   c.Eggs,
		Larvae: c.Larvae.Total(),
		Pupae:  c.Pupae,
		Adults: c.Adults,
	}
	s.Total = s.Eggs + s.Larvae + s.Pupae + s.Adults
	p.trajectory = []PredatorState{s}
}

func (p *predator) current() (PredatorState, bool) {
	if len(p.trajectory) == 0 {
		return PredatorState{}, false
	}
	return p.trajectory[len(p.trajectory)-1], true
}

// advance projects the predator one day and removes the eaten share from
// the prey larvae in place. Nothing is committed.
func (p *predator) advance(ctx context.Context, rc *rules.Client, prey []float64, multiplier float64, cond environment.Conditions) (predatorStep, error) {
	prev, _ := p.current()
	x, err := p.matrix.Apply(prev.Vector())
	if err != nil {
		return predatorStep{}, err
	}
	floats.Scale(multiplier, x)

	if !(prey[leslie.Larva] > 0) {
		x[leslie.Larva] *= p.starvation
		return predatorStep{vector: x}, nil
	}

	share := ConsumptionShare(ctx, rc, p.fraction, x[leslie.Larva], prey[leslie.Larva], cond.Temperature)
	consumed := prey[leslie.Larva] * share
	prey[leslie.Larva] -= consumed
	return predatorStep{vector: x, consumed: consumed}, nil
}

// ConsumptionShare returns the share of prey larvae eaten in a day. It is
// the configured fraction, lowered to the engine's predation rate when an
// engine answers with less. No predator larvae, no prey, or no engine
// answer all leave the fraction as the only input.
func ConsumptionShare(ctx context.Context, rc *rules.Client, fraction, predators, prey, temperature float64) float64 {
	if !(predators > 0) || !(prey > 0) {
		return 0
	}
	fraction = math.Min(math.Max(fraction, 0), 1)
	rate, ok := rc.PredationRate(ctx, "larva", predators/prey, 1, temperature)
	if !ok {
		return fraction
	}
	return math.Min(fraction, math.Max(rate, 0))
}

func (p *predator) commit(day int, step predatorStep) {
	c := roundCounts(step.vector)
	p.trajectory = append(p.trajectory, PredatorState{
		Day:          day,
		Eggs:         c[leslie.Egg],
		Larvae:       c[leslie.Larva],
		Pupae:        c[leslie.Pupa],
		Adults:       c[leslie.Adult],
		Total:        c[0] + c[1] + c[2] + c[3],
		PreyConsumed: int(math.Round(step.consumed)),
	})
}
