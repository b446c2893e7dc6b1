// Package agents implements the individual-based model: vectors and their
// predators live as entities in an ark ECS world and run a daily
// PERCEIVE, DECIDE, ACT, AGE cycle against the rule engine.
package agents

import (
	"context"
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/vectorsim/components"
	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/stochastic"
)

// Perception is the transient view an agent gets of its day.
type Perception struct {
	Temperature float64
	Humidity    float64 // percent
	Density     float64 // alive / initial of the agent's own cohort, 0 when the cohort started empty
	Prey        int     // alive vectors; predators only
}

// Agent is a handle on one entity's components. Exactly one of Vector and
// Predator is non-nil.
type Agent struct {
	Entity   ecs.Entity
	Identity *components.Identity
	Vitals   *components.Vitals
	Vector   *components.VectorLedger
	Predator *components.PredatorLedger
}

// Alive reports whether the agent is still cycling.
func (a Agent) Alive() bool { return a.Vitals != nil && a.Vitals.Alive }

// Outcome describes an executed action.
type Outcome struct {
	Action  rules.Action
	Success bool
	Eggs    int
	Prey    int
}

// Behavior holds the shared, read-only collaborators of the daily cycle.
// Perceive and Decide are safe to call concurrently for different agents
// when the rule client's backend is.
type Behavior struct {
	rules   *rules.Client
	gen     *stochastic.Generator
	params  config.AgentsConfig
	species map[string]*config.SpeciesConfig
}

// NewBehavior builds the cycle over the given species.
func NewBehavior(rc *rules.Client, gen *stochastic.Generator, params config.AgentsConfig, species ...*config.SpeciesConfig) *Behavior {
	b := &Behavior{
		rules:   rc,
		gen:     gen,
		params:  params,
		species: make(map[string]*config.SpeciesConfig, len(species)),
	}
	for _, sp := range species {
		if sp != nil {
			b.species[sp.ID] = sp
		}
	}
	return b
}

func (b *Behavior) fact(a Agent, p Perception) rules.AgentFact {
	v := a.Vitals
	return rules.AgentFact{
		ID:            a.Identity.ID,
		Species:       a.Identity.Species,
		Kind:          a.Identity.Kind.String(),
		Stage:         v.Stage,
		Age:           v.Age,
		Energy:        v.Energy,
		Reproduced:    v.Reproduced,
		Alive:         v.Alive,
		Temperature:   p.Temperature,
		Humidity:      p.Humidity,
		Density:       p.Density,
		PreyAvailable: p.Prey > 0,
	}
}

// Perceive pushes the agent's state and perception to the rule engine.
func (b *Behavior) Perceive(ctx context.Context, a Agent, p Perception) {
	if !a.Alive() {
		return
	}
	b.rules.AssertAgent(ctx, b.fact(a, p))
}

// Decide asks the rule engine for an action, falling back to the local
// rule and finally to rest.
func (b *Behavior) Decide(ctx context.Context, a Agent, p Perception) rules.Action {
	if !a.Alive() {
		return rules.ActionRest
	}
	if act, ok := b.rules.BestAction(ctx, a.Identity.ID); ok {
		return act
	}
	return b.localDecision(a, p)
}

func (b *Behavior) localDecision(a Agent, p Perception) rules.Action {
	v := a.Vitals
	if a.Identity.Kind == components.KindPredator {
		if b.predatoryStage(a) && p.Prey > 0 && v.Energy >= b.rules.StaticActionCost(rules.ActionHunt) {
			return rules.ActionHunt
		}
		return rules.ActionRest
	}

	minAge := 0
	if sp := b.species[a.Identity.Species]; sp != nil {
		minAge = sp.Reproduction.MinReproductiveAge
	}
	switch {
	case v.Energy < b.params.HungryThreshold:
		return rules.ActionFeed
	case !v.Reproduced && v.Age >= minAge && v.Energy >= b.rules.StaticActionCost(rules.ActionOviposit):
		return rules.ActionOviposit
	default:
		return rules.ActionRest
	}
}

func (b *Behavior) predatoryStage(a Agent) bool {
	sp := b.species[a.Identity.Species]
	if sp == nil {
		return false
	}
	st, ok := sp.Stage(a.Vitals.Stage)
	return ok && st.IsPredatory
}

// Act executes the action. For a hunt, p.Prey must be the number of prey
// alive at this moment; the caller removes Outcome.Prey victims.
func (b *Behavior) Act(ctx context.Context, a Agent, act rules.Action, p Perception, day int) Outcome {
	out := Outcome{Action: act}
	if !a.Alive() {
		return out
	}
	if act == rules.ActionDie {
		Kill(a, components.CauseDecided, day)
		out.Success = true
		return out
	}

	if a.Identity.Kind == components.KindPredator {
		switch act {
		case rules.ActionHunt:
			return b.hunt(ctx, a, p)
		case rules.ActionGrow:
			return b.grow(ctx, a)
		case rules.ActionRest:
			return b.rest(ctx, a, b.params.PredatorRestGain)
		}
		return out
	}

	switch act {
	case rules.ActionOviposit:
		return b.oviposit(ctx, a)
	case rules.ActionFeed:
		return b.feed(ctx, a)
	case rules.ActionRest:
		return b.rest(ctx, a, b.params.RestGain)
	}
	return out
}

func (b *Behavior) cost(ctx context.Context, act rules.Action) float64 {
	c, _ := b.rules.ActionEnergyCost(ctx, act)
	return c
}

func (b *Behavior) setEnergy(v *components.Vitals, e float64) {
	v.Energy = math.Min(math.Max(e, 0), b.params.MaxEnergy)
}

func (b *Behavior) oviposit(ctx context.Context, a Agent) Outcome {
	out := Outcome{Action: rules.ActionOviposit}
	v := a.Vitals
	c := b.cost(ctx, rules.ActionOviposit)
	if v.Reproduced || v.Energy < c {
		return out
	}

	eggs := b.params.DefaultEggs
	if sp := b.species[a.Identity.Species]; sp != nil && sp.Reproduction.EggsPerBatchMax > 0 {
		lo, hi, _ := b.rules.EggBatchRange(ctx, sp.ID, sp.Reproduction.EggsPerBatchMin, sp.Reproduction.EggsPerBatchMax)
		eggs = b.gen.IntRange(lo, hi)
	}

	b.setEnergy(v, v.Energy-c)
	v.Reproduced = true
	a.Vector.EggsLaid += eggs
	out.Success = true
	out.Eggs = eggs
	return out
}

func (b *Behavior) feed(ctx context.Context, a Agent) Outcome {
	v := a.Vitals
	b.setEnergy(v, v.Energy-b.cost(ctx, rules.ActionFeed)+b.params.FeedGain)
	a.Vector.BloodMeals++
	return Outcome{Action: rules.ActionFeed, Success: true}
}

func (b *Behavior) rest(ctx context.Context, a Agent, gain float64) Outcome {
	v := a.Vitals
	b.setEnergy(v, v.Energy-b.cost(ctx, rules.ActionRest)+gain)
	return Outcome{Action: rules.ActionRest, Success: true}
}

func (b *Behavior) hunt(ctx context.Context, a Agent, p Perception) Outcome {
	out := Outcome{Action: rules.ActionHunt}
	v := a.Vitals
	c := b.cost(ctx, rules.ActionHunt)
	if v.Energy < c {
		return out
	}

	static := 1
	if sp := b.species[a.Identity.Species]; sp != nil {
		if st, ok := sp.Stage(v.Stage); ok && st.PredationRate > 0 {
			static = st.PredationRate
		}
	}
	rate, _ := b.rules.StagePredationRate(ctx, a.Identity.Species, v.Stage, p.Prey, static)
	prey := min(rate, max(p.Prey, 0))

	b.setEnergy(v, v.Energy-c+b.params.HuntGainPerPrey*float64(prey))
	a.Predator.Hunts++
	a.Predator.PreyConsumed += prey
	out.Success = true
	out.Prey = prey
	return out
}

func (b *Behavior) grow(ctx context.Context, a Agent) Outcome {
	out := Outcome{Action: rules.ActionGrow}
	v := a.Vitals
	c := b.cost(ctx, rules.ActionGrow)
	if v.Energy < c {
		return out
	}

	static := v.Stage
	if sp := b.species[a.Identity.Species]; sp != nil {
		if next, ok := sp.NextStage(v.Stage); ok {
			static = next
		}
	}
	next, _ := b.rules.NextStage(ctx, a.Identity.Species, v.Stage, static)
	if next == v.Stage {
		return out
	}

	v.Stage = next
	b.setEnergy(v, v.Energy-c)
	a.Predator.Molts++
	out.Success = true
	return out
}

// Age advances the agent one day and pushes its state back to the rule
// engine. It reports whether the agent died of energy depletion.
func (b *Behavior) Age(ctx context.Context, a Agent, p Perception, day int) bool {
	if !a.Alive() {
		return false
	}
	v := a.Vitals
	v.Age++
	v.Energy = math.Max(0, v.Energy-b.params.DailyDecay)
	died := false
	if v.Energy <= 0 {
		Kill(a, components.CauseEnergyDepletion, day)
		died = true
	}
	b.Sync(ctx, a, p)
	return died
}

// Sync pushes the agent's current state to the rule engine, alive or not.
func (b *Behavior) Sync(ctx context.Context, a Agent, p Perception) {
	b.rules.AssertAgent(ctx, b.fact(a, p))
}

// Kill marks the agent dead. Dead agents are never revived.
func Kill(a Agent, cause components.DeathCause, day int) {
	v := a.Vitals
	if !v.Alive {
		return
	}
	v.Alive = false
	v.Cause = cause
	v.DeathDay = day
}
