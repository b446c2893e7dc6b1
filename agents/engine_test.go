package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/pthm-cable/vectorsim/components"
	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/environment"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/simerr"
	"github.com/pthm-cable/vectorsim/stochastic"
	"github.com/pthm-cable/vectorsim/telemetry"
)

func flatEnv(t *testing.T, days int) *environment.Model {
	t.Helper()
	temp := make([]float64, days)
	hum := make([]float64, days)
	for i := range temp {
		temp[i], hum[i] = 27, 75
	}
	env, err := environment.FromSeries(temp, hum, 10000)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func engineOptions(t *testing.T, cfg *config.Config, vectors, predators int, seed uint64, backend rules.Backend) Options {
	t.Helper()
	vec, err := cfg.SpeciesByID("aedes_aegypti")
	if err != nil {
		t.Fatal(err)
	}
	pred, err := cfg.SpeciesByID("toxorhynchites")
	if err != nil {
		t.Fatal(err)
	}
	return Options{
		Vectors:         vectors,
		Predators:       predators,
		VectorSpecies:   vec,
		PredatorSpecies: pred,
		Params:          cfg.Agents,
		Generator:       stochastic.New(seed),
		Rules:           rules.NewClient(backend, cfg.Rules, nil),
	}
}

func run(t *testing.T, env *environment.Model, opts Options, days int) *Result {
	t.Helper()
	e, err := New(env, opts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Run(context.Background(), days)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestRunRecordsEveryDay(t *testing.T) {
	cfg := config.Default()
	res := run(t, flatEnv(t, 21), engineOptions(t, cfg, 50, 5, 1, nil), 20)

	if len(res.Daily) != 21 {
		t.Fatalf("daily = %d, want 21", len(res.Daily))
	}
	d0 := res.Daily[0]
	if d0.Day != 0 || d0.VectorsAlive != 50 || d0.PredatorsAlive != 5 {
		t.Errorf("day 0 = %+v", d0)
	}
	if len(d0.VectorActions()) != 0 || len(d0.PredatorActions()) != 0 || d0.EggsLaid != 0 {
		t.Errorf("day 0 should record only the initial census: %+v", d0)
	}
	last := res.Daily[len(res.Daily)-1]
	if last.VectorsAlive != res.FinalVectors || last.PredatorsAlive != res.FinalPredators {
		t.Errorf("final census %d/%d, last day %d/%d", res.FinalVectors, res.FinalPredators, last.VectorsAlive, last.PredatorsAlive)
	}
	if len(res.Census) != 55 {
		t.Errorf("census rows = %d, want 55", len(res.Census))
	}
}

func TestRunIsReproducible(t *testing.T) {
	cfg := config.Default()
	a := run(t, flatEnv(t, 31), engineOptions(t, cfg, 80, 10, 9, rules.NewKnowledgeBase(cfg)), 30)
	b := run(t, flatEnv(t, 31), engineOptions(t, cfg, 80, 10, 9, rules.NewKnowledgeBase(cfg)), 30)

	for d := range a.Daily {
		if a.Daily[d] != b.Daily[d] {
			t.Fatalf("day %d differs:\n%+v\n%+v", d, a.Daily[d], b.Daily[d])
		}
	}
}

func TestParallelDecideMatchesSerial(t *testing.T) {
	cfg := config.Default()
	serial := engineOptions(t, cfg, 300, 30, 5, rules.NewKnowledgeBase(cfg))
	parallel := engineOptions(t, cfg, 300, 30, 5, rules.NewKnowledgeBase(cfg))
	parallel.Parallel = true
	parallel.Workers = 4

	a := run(t, flatEnv(t, 26), serial, 25)
	b := run(t, flatEnv(t, 26), parallel, 25)
	for d := range a.Daily {
		if a.Daily[d] != b.Daily[d] {
			t.Fatalf("day %d differs:\nserial   %+v\nparallel %+v", d, a.Daily[d], b.Daily[d])
		}
	}
}

func TestPredationKillsDistinctVectors(t *testing.T) {
	cfg := config.Default()
	res := run(t, flatEnv(t, 16), engineOptions(t, cfg, 200, 20, 3, nil), 15)

	if res.TotalPrey == 0 {
		t.Fatal("predators consumed nothing")
	}
	predated := 0
	for _, rec := range res.Census {
		if rec.Kind == components.KindVector.String() && rec.Cause == components.CausePredated.String() {
			predated++
		}
	}
	if predated != res.TotalPrey || res.Deaths["predated"] != res.TotalPrey {
		t.Errorf("predated vectors = %d, deaths = %d, prey consumed = %d", predated, res.Deaths["predated"], res.TotalPrey)
	}

	daily := 0
	for _, d := range res.Daily {
		daily += d.PreyConsumed
	}
	if daily != res.TotalPrey {
		t.Errorf("daily prey sum = %d, total = %d", daily, res.TotalPrey)
	}
}

func TestDeadAgentsStayDead(t *testing.T) {
	cfg := config.Default()
	e, err := New(flatEnv(t, 41), engineOptions(t, cfg, 100, 15, 11, rules.NewKnowledgeBase(cfg)))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	ctx := context.Background()
	if _, err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	frozen := make(map[string]components.Vitals)
	for day := 1; day <= 40; day++ {
		if _, err := e.Step(ctx); err != nil {
			t.Fatal(err)
		}
		for _, a := range append(e.Vectors(), e.Predators()...) {
			if prev, ok := frozen[a.Identity.ID]; ok {
				if *a.Vitals != prev {
					t.Fatalf("day %d: dead agent %s changed from %+v to %+v", day, a.Identity.ID, prev, *a.Vitals)
				}
				continue
			}
			if !a.Alive() {
				if a.Vitals.DeathDay != day {
					t.Errorf("agent %s death day %d, recorded on day %d", a.Identity.ID, a.Vitals.DeathDay, day)
				}
				frozen[a.Identity.ID] = *a.Vitals
			}
		}
	}
}

func TestRunWithoutRuleEngine(t *testing.T) {
	cfg := config.Default()
	opts := engineOptions(t, cfg, 60, 6, 2, rules.Unavailable{})
	res := run(t, flatEnv(t, 31), opts, 30)

	if opts.Rules.Available() {
		t.Fatal("client should report the engine unavailable")
	}
	if opts.Rules.Stats().Fallbacks == 0 {
		t.Error("expected fallbacks")
	}
	for _, d := range res.Daily {
		if d.VectorOther != 0 || d.PredatorOther != 0 {
			t.Errorf("day %d: unresolved actions %+v", d.Day, d)
		}
	}
	if res.TotalEggs == 0 {
		t.Error("local rule never oviposited")
	}
}

func TestDensityWithoutInitialCohort(t *testing.T) {
	if got := density(0, 0); got != 0 {
		t.Errorf("density(0, 0) = %v, want 0", got)
	}
	if got := density(3, 4); got != 0.75 {
		t.Errorf("density(3, 4) = %v, want 0.75", got)
	}
}

func TestEngineErrors(t *testing.T) {
	cfg := config.Default()
	env := flatEnv(t, 5)

	noVectors := engineOptions(t, cfg, 0, 0, 1, nil)
	if _, err := New(env, noVectors); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("zero vectors: err = %v, want validation", err)
	}

	tooMany := engineOptions(t, cfg, 10, cfg.Agents.MaxPredators+1, 1, nil)
	if _, err := New(env, tooMany); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("too many predators: err = %v, want validation", err)
	}

	noGen := engineOptions(t, cfg, 10, 0, 1, nil)
	noGen.Generator = nil
	if _, err := New(env, noGen); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("missing generator: err = %v, want configuration", err)
	}

	e, err := New(env, engineOptions(t, cfg, 10, 0, 1, nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Step(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Step before Start: err = %v", err)
	}
	if _, err := e.Run(context.Background(), 5); !errors.Is(err, simerr.ErrIndexOutOfRange) {
		t.Errorf("Run past environment: err = %v, want index out of range", err)
	}
}

func TestStatistics(t *testing.T) {
	res := &Result{
		InitialVectors:   10,
		InitialPredators: 2,
		FinalVectors:     0,
		FinalPredators:   1,
		TotalEggs:        300,
		TotalPrey:        6,
		Daily: []telemetry.DayStats{
			{Day: 0, VectorsAlive: 10, PredatorsAlive: 2},
			{Day: 1, VectorsAlive: 12, PredatorsAlive: 2},
			{Day: 2, VectorsAlive: 0, PredatorsAlive: 1},
			{Day: 3, VectorsAlive: 0, PredatorsAlive: 1},
		},
	}
	s := res.Statistics()
	if s.PeakVectors != 12 || s.PeakDay != 1 || s.PeakPredators != 2 {
		t.Errorf("peaks = %d on day %d, predators %d", s.PeakVectors, s.PeakDay, s.PeakPredators)
	}
	if s.ExtinctionDay == nil || *s.ExtinctionDay != 2 {
		t.Errorf("extinction day = %v, want 2", s.ExtinctionDay)
	}
	if s.EggsPerVector != 30 || s.PreyPerPredator != 3 || s.VectorSurvivalRate != 0 || s.PredatorSurvivalRate != 0.5 {
		t.Errorf("rates = %+v", s)
	}
	if s.MeanVectors != 5.5 || s.MeanPredators != 1.5 {
		t.Errorf("means = %v / %v, want 5.5 / 1.5", s.MeanVectors, s.MeanPredators)
	}
}
