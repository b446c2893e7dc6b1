package agents

import (
	"context"
	"testing"

	"github.com/pthm-cable/vectorsim/components"
	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/stochastic"
)

func testBehavior(t *testing.T, backend rules.Backend) (*Behavior, *config.Config) {
	t.Helper()
	cfg := config.Default()
	vec, err := cfg.SpeciesByID("aedes_aegypti")
	if err != nil {
		t.Fatal(err)
	}
	pred, err := cfg.SpeciesByID("toxorhynchites")
	if err != nil {
		t.Fatal(err)
	}
	rc := rules.NewClient(backend, cfg.Rules, nil)
	return NewBehavior(rc, stochastic.New(7), cfg.Agents, vec, pred), cfg
}

func vector(energy float64, age int) Agent {
	return Agent{
		Identity: &components.Identity{ID: "v", Species: "aedes_aegypti", Kind: components.KindVector},
		Vitals:   &components.Vitals{Stage: "adult_female", Age: age, Energy: energy, Alive: true},
		Vector:   &components.VectorLedger{},
	}
}

func predator(energy float64, stage string) Agent {
	return Agent{
		Identity: &components.Identity{ID: "p", Species: "toxorhynchites", Kind: components.KindPredator},
		Vitals:   &components.Vitals{Stage: stage, Age: 6, Energy: energy, Alive: true},
		Predator: &components.PredatorLedger{},
	}
}

func TestAgeDepletesEnergy(t *testing.T) {
	b, _ := testBehavior(t, nil)
	b.params.DailyDecay = 2
	ctx := context.Background()
	a := vector(5, 0)

	for call := 1; call <= 3; call++ {
		died := b.Age(ctx, a, Perception{}, call)
		if a.Vitals.Age != call {
			t.Fatalf("after AGE %d: age = %d", call, a.Vitals.Age)
		}
		if died != (call == 3) {
			t.Fatalf("AGE %d: died = %v, energy = %v", call, died, a.Vitals.Energy)
		}
	}
	if a.Vitals.Alive || a.Vitals.Cause != components.CauseEnergyDepletion || a.Vitals.DeathDay != 3 {
		t.Errorf("vitals = %+v, want dead of energy depletion on day 3", *a.Vitals)
	}
	if a.Vitals.Energy != 0 {
		t.Errorf("energy = %v, want clamped to 0", a.Vitals.Energy)
	}
}

func TestDeadAgentIsNotMutated(t *testing.T) {
	b, _ := testBehavior(t, nil)
	ctx := context.Background()
	a := vector(50, 4)
	Kill(a, components.CauseDecided, 2)
	before := *a.Vitals

	b.Perceive(ctx, a, Perception{})
	if got := b.Decide(ctx, a, Perception{}); got != rules.ActionRest {
		t.Errorf("Decide on dead agent = %v, want rest", got)
	}
	for _, act := range rules.Actions() {
		if out := b.Act(ctx, a, act, Perception{Prey: 10}, 3); out.Success {
			t.Errorf("Act(%v) on dead agent succeeded", act)
		}
	}
	if b.Age(ctx, a, Perception{}, 3) {
		t.Error("Age on dead agent reported a death")
	}
	Kill(a, components.CausePredated, 5)

	if *a.Vitals != before {
		t.Errorf("vitals changed: %+v, want %+v", *a.Vitals, before)
	}
	if a.Vector.EggsLaid != 0 || a.Vector.BloodMeals != 0 {
		t.Errorf("ledger changed: %+v", *a.Vector)
	}
}

func TestLocalDecision(t *testing.T) {
	b, _ := testBehavior(t, nil)

	reproduced := vector(80, 5)
	reproduced.Vitals.Reproduced = true

	tests := []struct {
		name  string
		agent Agent
		perc  Perception
		want  rules.Action
	}{
		{"hungry vector feeds", vector(20, 5), Perception{}, rules.ActionFeed},
		{"mature vector oviposits", vector(80, 5), Perception{}, rules.ActionOviposit},
		{"young vector rests", vector(80, 1), Perception{}, rules.ActionRest},
		{"reproduced vector rests", reproduced, Perception{}, rules.ActionRest},
		{"predator hunts prey", predator(50, "larva_l4"), Perception{Prey: 3}, rules.ActionHunt},
		{"predator without prey rests", predator(50, "larva_l4"), Perception{}, rules.ActionRest},
		{"weak predator rests", predator(10, "larva_l4"), Perception{Prey: 3}, rules.ActionRest},
		{"non-predatory stage rests", predator(50, "pupa"), Perception{Prey: 3}, rules.ActionRest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Decide(context.Background(), tt.agent, tt.perc); got != tt.want {
				t.Errorf("Decide = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecideUsesRuleEngine(t *testing.T) {
	cfg := config.Default()
	kb := rules.NewKnowledgeBase(cfg)
	b, _ := testBehavior(t, kb)
	ctx := context.Background()

	// The knowledge base kills vectors outside the lethal range; the local
	// rule would feed this one.
	a := vector(20, 5)
	perc := Perception{Temperature: 45, Humidity: 70}
	b.Perceive(ctx, a, perc)
	if got := b.Decide(ctx, a, perc); got != rules.ActionDie {
		t.Errorf("Decide = %v, want die from rule engine", got)
	}
	if b.rules.Stats().Fallbacks != 0 {
		t.Errorf("fallbacks = %d, want 0", b.rules.Stats().Fallbacks)
	}
}

func TestOviposit(t *testing.T) {
	b, cfg := testBehavior(t, nil)
	ctx := context.Background()
	a := vector(80, 5)

	out := b.Act(ctx, a, rules.ActionOviposit, Perception{}, 1)
	repro := cfg.Species[0].Reproduction
	if !out.Success || out.Eggs < repro.EggsPerBatchMin || out.Eggs > repro.EggsPerBatchMax {
		t.Fatalf("oviposit = %+v, want eggs in [%d, %d]", out, repro.EggsPerBatchMin, repro.EggsPerBatchMax)
	}
	if a.Vitals.Energy != 60 || !a.Vitals.Reproduced || a.Vector.EggsLaid != out.Eggs {
		t.Errorf("after oviposit: vitals %+v ledger %+v", *a.Vitals, *a.Vector)
	}
	if again := b.Act(ctx, a, rules.ActionOviposit, Perception{}, 2); again.Success || again.Eggs != 0 {
		t.Errorf("second oviposit = %+v, want failure", again)
	}

	weak := vector(10, 5)
	if out := b.Act(ctx, weak, rules.ActionOviposit, Perception{}, 1); out.Success || weak.Vitals.Energy != 10 {
		t.Errorf("oviposit below cost = %+v, energy %v", out, weak.Vitals.Energy)
	}
}

func TestEnergyActions(t *testing.T) {
	b, _ := testBehavior(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		agent Agent
		act   rules.Action
		want  float64
	}{
		{"feed", vector(50, 3), rules.ActionFeed, 80},
		{"feed capped", vector(90, 3), rules.ActionFeed, 100},
		{"vector rest", vector(50, 3), rules.ActionRest, 52},
		{"predator rest", predator(50, "larva_l4"), rules.ActionRest, 51},
		{"grow", predator(50, "larva_l4"), rules.ActionGrow, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := b.Act(ctx, tt.agent, tt.act, Perception{}, 1)
			if !out.Success {
				t.Fatalf("Act(%v) failed", tt.act)
			}
			if got := tt.agent.Vitals.Energy; got != tt.want {
				t.Errorf("energy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHunt(t *testing.T) {
	b, _ := testBehavior(t, nil)
	ctx := context.Background()

	// larva_l4 takes up to 12 prey per hunt.
	a := predator(20, "larva_l4")
	out := b.Act(ctx, a, rules.ActionHunt, Perception{Prey: 100}, 1)
	if !out.Success || out.Prey != 12 {
		t.Fatalf("hunt = %+v, want 12 prey", out)
	}
	if a.Vitals.Energy != 100 || a.Predator.PreyConsumed != 12 || a.Predator.Hunts != 1 {
		t.Errorf("after hunt: vitals %+v ledger %+v", *a.Vitals, *a.Predator)
	}

	few := predator(20, "larva_l4")
	if out := b.Act(ctx, few, rules.ActionHunt, Perception{Prey: 2}, 1); out.Prey != 2 || few.Vitals.Energy != 55 {
		t.Errorf("hunt with 2 prey = %+v, energy %v; want 2 prey, 55", out, few.Vitals.Energy)
	}

	tired := predator(10, "larva_l4")
	if out := b.Act(ctx, tired, rules.ActionHunt, Perception{Prey: 100}, 1); out.Success || out.Prey != 0 {
		t.Errorf("hunt below cost = %+v, want failure", out)
	}
}

func TestGrow(t *testing.T) {
	b, _ := testBehavior(t, nil)
	ctx := context.Background()

	a := predator(50, "larva_l4")
	if out := b.Act(ctx, a, rules.ActionGrow, Perception{}, 1); !out.Success || a.Vitals.Stage != "pupa" || a.Predator.Molts != 1 {
		t.Errorf("grow = %+v, stage %s", out, a.Vitals.Stage)
	}

	last := predator(50, "adult_female")
	if out := b.Act(ctx, last, rules.ActionGrow, Perception{}, 1); out.Success || last.Vitals.Energy != 50 {
		t.Errorf("grow from final stage = %+v, energy %v; want failure", out, last.Vitals.Energy)
	}
}

func TestWrongKindActionIsNoop(t *testing.T) {
	b, _ := testBehavior(t, nil)
	a := vector(50, 3)
	out := b.Act(context.Background(), a, rules.ActionHunt, Perception{Prey: 10}, 1)
	if out.Success || out.Action != rules.ActionHunt || a.Vitals.Energy != 50 {
		t.Errorf("vector hunt = %+v, energy %v", out, a.Vitals.Energy)
	}
}
