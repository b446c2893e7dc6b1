package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/vectorsim/components"
	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/environment"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/simerr"
	"github.com/pthm-cable/vectorsim/stochastic"
	"github.com/pthm-cable/vectorsim/telemetry"
)

// ErrNotStarted is returned by Step before Start.
var ErrNotStarted = errors.New("agent engine not started")

// Options configures an Engine.
type Options struct {
	Vectors         int
	Predators       int
	VectorSpecies   *config.SpeciesConfig
	PredatorSpecies *config.SpeciesConfig // required when Predators > 0
	Params          config.AgentsConfig

	Parallel bool // run PERCEIVE/DECIDE on a worker pool
	Workers  int  // 0 = GOMAXPROCS

	Generator *stochastic.Generator // required
	Rules     *rules.Client
	Logger    *slog.Logger
	Perf      *telemetry.PerfCollector
}

// Engine owns the ECS world for one agent run.
type Engine struct {
	world *ecs.World

	vectorMapper *ecs.Map3[
		components.Identity,
		components.Vitals,
		components.VectorLedger,
	]
	predatorMapper *ecs.Map3[
		components.Identity,
		components.Vitals,
		components.PredatorLedger,
	]
	vectorFilter *ecs.Filter3[
		components.Identity,
		components.Vitals,
		components.VectorLedger,
	]
	predatorFilter *ecs.Filter3[
		components.Identity,
		components.Vitals,
		components.PredatorLedger,
	]

	// Handles in spawn order. The world is never structurally changed
	// after spawning, so component pointers stay valid.
	vectors   []Agent
	predators []Agent

	env         *environment.Model
	behavior    *Behavior
	rules       *rules.Client
	gen         *stochastic.Generator
	collector   *telemetry.Collector
	perf        *telemetry.PerfCollector
	parallel    *parallelState
	useParallel bool

	vectorSpecies   string
	predatorSpecies string
	runID           uuid.UUID
	logger          *slog.Logger

	day   int // last recorded day, -1 before Start
	daily []telemetry.DayStats
}

// New validates opts and spawns the initial cohorts.
func New(env *environment.Model, opts Options) (*Engine, error) {
	if err := validate(env, opts); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rules == nil {
		opts.Rules = rules.NewClient(nil, config.RulesConfig{}, opts.Logger)
	}

	world := ecs.NewWorld()
	e := &Engine{
		world: world,
		vectorMapper: ecs.NewMap3[
			components.Identity,
			components.Vitals,
			components.VectorLedger,
		](world),
		predatorMapper: ecs.NewMap3[
			components.Identity,
			components.Vitals,
			components.PredatorLedger,
		](world),
		vectorFilter: ecs.NewFilter3[
			components.Identity,
			components.Vitals,
			components.VectorLedger,
		](world),
		predatorFilter: ecs.NewFilter3[
			components.Identity,
			components.Vitals,
			components.PredatorLedger,
		](world),
		env:           env,
		behavior:      NewBehavior(opts.Rules, opts.Generator, opts.Params, opts.VectorSpecies, opts.PredatorSpecies),
		rules:         opts.Rules,
		gen:           opts.Generator,
		collector:     telemetry.NewCollector(),
		perf:          opts.Perf,
		useParallel:   opts.Parallel,
		vectorSpecies: opts.VectorSpecies.ID,
		runID:         uuid.New(),
		day:           -1,
	}
	if opts.PredatorSpecies != nil {
		e.predatorSpecies = opts.PredatorSpecies.ID
	}
	e.parallel = newParallelState(e.behavior, opts.Workers)
	e.logger = opts.Logger.With("run", e.runID.String()[:8])

	e.spawnVectors(opts)
	e.spawnPredators(opts)
	return e, nil
}

func validate(env *environment.Model, opts Options) error {
	v := simerr.Collector{Kind: simerr.ErrConfiguration}
	v.Check(env != nil, "environment", nil, "required")
	v.Check(opts.VectorSpecies != nil, "agents.vector_species", nil, "required")
	v.Check(opts.Predators == 0 || opts.PredatorSpecies != nil, "agents.predator_species", nil, "required when predators > 0")
	v.Check(opts.Generator != nil, "generator", nil, "required")
	v.Check(opts.Params.MaxEnergy > 0, "agents.max_energy", opts.Params.MaxEnergy, "must be positive")
	if err := v.Err(); err != nil {
		return err
	}

	var r simerr.Collector
	maxV, maxP := opts.Params.MaxVectors, opts.Params.MaxPredators
	if maxV <= 0 {
		maxV = 10000
	}
	if maxP <= 0 {
		maxP = 1000
	}
	r.Range("vectors", float64(opts.Vectors), 1, float64(maxV))
	r.Range("predators", float64(opts.Predators), 0, float64(maxP))
	return r.Err()
}

func (e *Engine) agentID(kind components.Kind, i int) string {
	return fmt.Sprintf("%s:%s_%d", e.runID.String()[:8], kind, i)
}

func (e *Engine) spawnVectors(opts Options) {
	p := opts.Params
	stage := "adult"
	if n := len(opts.VectorSpecies.Stages); n > 0 {
		stage = opts.VectorSpecies.Stages[n-1].Name
	}
	ents := make([]ecs.Entity, opts.Vectors)
	for i := range ents {
		id := components.Identity{
			ID:      e.agentID(components.KindVector, i),
			Index:   i,
			Species: opts.VectorSpecies.ID,
			Kind:    components.KindVector,
		}
		vit := components.Vitals{
			Stage:  stage,
			Age:    e.gen.IntRange(p.VectorAgeMin, p.VectorAgeMax),
			Energy: e.gen.FloatRange(p.VectorEnergyMin, p.VectorEnergyMax),
			Alive:  true,
		}
		ents[i] = e.vectorMapper.NewEntity(&id, &vit, &components.VectorLedger{})
	}
	e.vectors = make([]Agent, len(ents))
	for i, ent := range ents {
		id, vit, led := e.vectorMapper.Get(ent)
		e.vectors[i] = Agent{Entity: ent, Identity: id, Vitals: vit, Vector: led}
	}
}

func (e *Engine) spawnPredators(opts Options) {
	if opts.Predators == 0 {
		return
	}
	p := opts.Params
	stage := p.PredatorStage
	if _, ok := opts.PredatorSpecies.Stage(stage); !ok {
		if st := opts.PredatorSpecies.StagesMatching("larva"); len(st) > 0 {
			stage = st[len(st)-1].Name
		}
	}
	ents := make([]ecs.Entity, opts.Predators)
	for i := range ents {
		id := components.Identity{
			ID:      e.agentID(components.KindPredator, i),
			Index:   i,
			Species: opts.PredatorSpecies.ID,
			Kind:    components.KindPredator,
		}
		vit := components.Vitals{
			Stage:  stage,
			Age:    e.gen.IntRange(p.PredatorAgeMin, p.PredatorAgeMax),
			Energy: e.gen.FloatRange(p.PredatorEnergyMin, p.PredatorEnergyMax),
			Alive:  true,
		}
		ents[i] = e.predatorMapper.NewEntity(&id, &vit, &components.PredatorLedger{})
	}
	e.predators = make([]Agent, len(ents))
	for i, ent := range ents {
		id, vit, led := e.predatorMapper.Get(ent)
		e.predators[i] = Agent{Entity: ent, Identity: id, Vitals: vit, Predator: led}
	}
}

// RunID identifies this engine's agents in a shared rule engine.
func (e *Engine) RunID() string { return e.runID.String() }

// Day returns the last recorded day, or -1 before Start.
func (e *Engine) Day() int { return e.day }

// Vectors returns the vector handles in spawn order.
func (e *Engine) Vectors() []Agent { return e.vectors }

// Predators returns the predator handles in spawn order.
func (e *Engine) Predators() []Agent { return e.predators }

// Start pushes the initial agents to the rule engine and records day 0.
func (e *Engine) Start(ctx context.Context) (telemetry.DayStats, error) {
	if e.day >= 0 {
		return telemetry.DayStats{}, simerr.Validation("day", 0, "engine already started")
	}
	cond, err := e.env.Conditions(0)
	if err != nil {
		return telemetry.DayStats{}, err
	}
	e.rules.AssertEnvironment(ctx, 0, cond.Temperature, cond.Humidity)

	vp := Perception{Temperature: cond.Temperature, Humidity: cond.Humidity, Density: 1}
	for _, a := range e.vectors {
		e.behavior.Sync(ctx, a, vp)
	}
	pp := vp
	pp.Prey = len(e.vectors)
	for _, a := range e.predators {
		e.behavior.Sync(ctx, a, pp)
	}

	e.day = 0
	return e.census(0), nil
}

// Step runs the next day: every living vector's full cycle, then every
// living predator's on the post-vector state.
func (e *Engine) Step(ctx context.Context) (telemetry.DayStats, error) {
	if e.day < 0 {
		return telemetry.DayStats{}, ErrNotStarted
	}
	day := e.day + 1

	e.perf.StartStep()
	e.perf.StartPhase(telemetry.PhaseEnvironment)
	cond, err := e.env.Conditions(day)
	if err != nil {
		return telemetry.DayStats{}, err
	}
	e.rules.AssertEnvironment(ctx, day, cond.Temperature, cond.Humidity)

	alive := countAlive(e.vectors)
	vp := Perception{
		Temperature: cond.Temperature,
		Humidity:    cond.Humidity,
		Density:     density(alive, len(e.vectors)),
	}
	e.rules.AssertPopulation(ctx, e.vectorSpecies, day, alive, vp.Density)
	e.runCohort(ctx, day, e.vectors, vp)

	if len(e.predators) > 0 {
		alive := countAlive(e.predators)
		pp := Perception{
			Temperature: cond.Temperature,
			Humidity:    cond.Humidity,
			Density:     density(alive, len(e.predators)),
			Prey:        countAlive(e.vectors),
		}
		e.rules.AssertPopulation(ctx, e.predatorSpecies, day, alive, pp.Density)
		e.runCohort(ctx, day, e.predators, pp)
	}

	e.perf.StartPhase(telemetry.PhaseCensus)
	stats := e.census(day)
	e.day = day
	e.perf.EndStep()
	return stats, nil
}

// runCohort decides for every living agent of the cohort against the same
// snapshot, then acts and ages them serially in spawn order.
func (e *Engine) runCohort(ctx context.Context, day int, cohort []Agent, perc Perception) {
	e.perf.StartPhase(telemetry.PhaseDecide)
	e.parallel.reset()
	for _, a := range cohort {
		if a.Alive() {
			e.parallel.add(a, perc)
		}
	}
	intents := e.parallel.decide(ctx, e.useParallel)

	e.perf.StartPhase(telemetry.PhaseAct)
	var prey []int // indices of living vectors, built on the first hunt
	for i := range e.parallel.snapshots {
		a := e.parallel.snapshots[i].Agent
		kind := a.Identity.Kind
		pc := perc

		if kind == components.KindPredator && intents[i] == rules.ActionHunt {
			if prey == nil {
				prey = aliveIndices(e.vectors)
			}
			pc.Prey = len(prey)
		}

		out := e.behavior.Act(ctx, a, intents[i], pc, day)
		e.collector.RecordAction(kind, out.Action)
		if out.Eggs > 0 {
			e.collector.RecordEggs(out.Eggs)
		}
		if out.Prey > 0 {
			prey = e.predate(ctx, prey, out.Prey, day, perc)
			e.collector.RecordPrey(out.Prey)
		}
		if out.Action == rules.ActionDie && out.Success {
			e.collector.RecordDeath(components.CauseDecided)
			e.behavior.Sync(ctx, a, pc)
			continue
		}
		if e.behavior.Age(ctx, a, pc, day) {
			e.collector.RecordDeath(components.CauseEnergyDepletion)
		}
	}
}

// predate kills k distinct living vectors chosen uniformly from alive and
// returns the survivors' indices.
func (e *Engine) predate(ctx context.Context, alive []int, k, day int, perc Perception) []int {
	picks := e.gen.SampleIndices(len(alive), k)
	dead := make(map[int]bool, len(picks))
	for _, j := range picks {
		v := e.vectors[alive[j]]
		Kill(v, components.CausePredated, day)
		e.collector.RecordDeath(components.CausePredated)
		e.behavior.Sync(ctx, v, perc)
		dead[j] = true
	}
	kept := alive[:0]
	for j, idx := range alive {
		if !dead[j] {
			kept = append(kept, idx)
		}
	}
	return kept
}

// census flushes the day's counters with the energies of living agents.
func (e *Engine) census(day int) telemetry.DayStats {
	var vectorEnergy, predatorEnergy []float64

	vq := e.vectorFilter.Query()
	for vq.Next() {
		_, vit, _ := vq.Get()
		if vit.Alive {
			vectorEnergy = append(vectorEnergy, vit.Energy)
		}
	}
	pq := e.predatorFilter.Query()
	for pq.Next() {
		_, vit, _ := pq.Get()
		if vit.Alive {
			predatorEnergy = append(predatorEnergy, vit.Energy)
		}
	}

	stats := e.collector.Flush(day, vectorEnergy, predatorEnergy)
	e.daily = append(e.daily, stats)
	e.logger.Debug("agent day", "stats", stats)
	return stats
}

// Run starts the engine and steps through days. days must leave the
// environment series room for every day.
func (e *Engine) Run(ctx context.Context, days int) (*Result, error) {
	if days < 0 {
		return nil, simerr.Validation("days", days, "must be non-negative")
	}
	if days >= e.env.Days() {
		return nil, fmt.Errorf("%d days with a %d-day environment: %w", days, e.env.Days(), simerr.ErrIndexOutOfRange)
	}
	defer e.Close()

	if _, err := e.Start(ctx); err != nil {
		return nil, err
	}
	for d := 1; d <= days; d++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := e.Step(ctx); err != nil {
			return nil, fmt.Errorf("day %d: %w", d, err)
		}
	}

	res := e.Result()
	e.logger.Info("agent run complete",
		"days", days,
		"vectors", res.FinalVectors,
		"predators", res.FinalPredators,
		"eggs", res.TotalEggs,
		"prey", res.TotalPrey,
		"rules", e.rules.Stats(),
	)
	return res, nil
}

// Close stops the decide worker pool.
func (e *Engine) Close() {
	if e.parallel != nil {
		e.parallel.stopWorkers()
	}
}

func countAlive(cohort []Agent) int {
	n := 0
	for _, a := range cohort {
		if a.Alive() {
			n++
		}
	}
	return n
}

func aliveIndices(cohort []Agent) []int {
	out := make([]int, 0, len(cohort))
	for i, a := range cohort {
		if a.Alive() {
			out = append(out, i)
		}
	}
	return out
}

func density(alive, initial int) float64 {
	if initial <= 0 {
		return 0
	}
	return float64(alive) / float64(initial)
}
