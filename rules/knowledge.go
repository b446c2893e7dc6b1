package rules

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/simerr"
)

// Thresholds used by the knowledge base's classification rules.
const (
	trendWindow       = 7
	trendTolerance    = 0.05
	riskCritical      = 10
	riskHigh          = 100
	riskModerate      = 1000
	maxHistoryPerSpec = 64
)

// KnowledgeBase is an in-process Backend holding facts and a fixed rule
// set over them. It is safe for concurrent use; each fact key is one row,
// last writer wins.
type KnowledgeBase struct {
	cfg *config.Config

	mu      sync.RWMutex
	facts   map[string]Fact
	history map[string][]int // species -> daily totals, oldest first
}

// NewKnowledgeBase builds a knowledge base over the loaded species and
// agent parameters.
func NewKnowledgeBase(cfg *config.Config) *KnowledgeBase {
	return &KnowledgeBase{
		cfg:     cfg,
		facts:   make(map[string]Fact),
		history: make(map[string][]int),
	}
}

// Assert stores f, replacing any fact with the same key.
func (kb *KnowledgeBase) Assert(ctx context.Context, f Fact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	kb.facts[f.FactKey()] = f
	if p, ok := f.(PopulationFact); ok {
		h := append(kb.history[p.Species], p.Total)
		if len(h) > maxHistoryPerSpec {
			h = h[len(h)-maxHistoryPerSpec:]
		}
		kb.history[p.Species] = h
	}
	return nil
}

// Retract removes the fact with key, if any.
func (kb *KnowledgeBase) Retract(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kb.mu.Lock()
	delete(kb.facts, key)
	kb.mu.Unlock()
	return nil
}

// Len returns the number of stored facts.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.facts)
}

// Query evaluates the named rule. Queries with no solution return no
// bindings and a nil error.
func (kb *KnowledgeBase) Query(ctx context.Context, q Query) ([]Binding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	switch q.Name {
	case QueryBestAction:
		return kb.bestAction(q.Args)
	case QueryActionCost:
		a, _ := ParseAction(str(q.Args, "action"))
		cost, ok := kb.cfg.Rules.ActionCosts[a.String()]
		if !ok {
			cost = DefaultActionCosts[a]
		}
		return one("cost", cost), nil
	case QueryEffectiveSurvival:
		return kb.effectiveSurvival(q.Args)
	case QueryPopulationTrend:
		t := kb.trend(str(q.Args, "species"))
		if t == TrendUnknown {
			return nil, nil
		}
		return one("trend", t.String()), nil
	case QueryExtinctionRisk:
		return kb.extinctionRisk(str(q.Args, "species"))
	case QueryEquilibrium:
		return kb.equilibrium(), nil
	case QueryTemperatureFactor:
		return one("factor", DefaultTemperatureFactor(num(q.Args, "temperature"))), nil
	case QueryHumidityFactor:
		return one("factor", DefaultHumidityFactor(num(q.Args, "humidity"))), nil
	case QueryPredationRate:
		return kb.predationRate(q.Args), nil
	case QueryStagePredationRate:
		return kb.stagePredationRate(q.Args)
	case QueryEggBatch:
		sp, err := kb.cfg.SpeciesByID(str(q.Args, "species"))
		if err != nil {
			return nil, nil
		}
		return []Binding{{"min": sp.Reproduction.EggsPerBatchMin, "max": sp.Reproduction.EggsPerBatchMax}}, nil
	case QueryNextStage:
		sp, err := kb.cfg.SpeciesByID(str(q.Args, "species"))
		if err != nil {
			return nil, nil
		}
		next, ok := sp.NextStage(str(q.Args, "stage"))
		if !ok {
			return nil, nil
		}
		return one("stage", next), nil
	default:
		return nil, fmt.Errorf("unknown query %q: %w", q.Name, simerr.ErrQueryFailed)
	}
}

func one(key string, v any) []Binding { return []Binding{{key: v}} }

func str(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func num(args map[string]any, key string) float64 {
	v, _ := Binding(args).Float(key)
	return v
}

// bestAction applies the decision rules to the agent's fact row, first
// matching rule wins.
func (kb *KnowledgeBase) bestAction(args map[string]any) ([]Binding, error) {
	f, ok := kb.facts[AgentKey(str(args, "agent_id"))].(AgentFact)
	if !ok {
		return nil, nil
	}
	if !f.Alive || f.Energy <= 0 {
		return one("action", ActionDie.String()), nil
	}
	sp, err := kb.cfg.SpeciesByID(f.Species)
	if err != nil {
		return nil, nil
	}
	st, _ := sp.Stage(f.Stage)
	cost := func(a Action) float64 {
		if c, ok := kb.cfg.Rules.ActionCosts[a.String()]; ok {
			return c
		}
		return DefaultActionCosts[a]
	}
	agents := kb.cfg.Agents

	if f.Kind == "predator" {
		switch {
		case st.IsPredatory && f.PreyAvailable && f.Energy >= cost(ActionHunt):
			return one("action", ActionHunt.String()), nil
		case st.DurationMax > 0 && f.Age >= st.DurationMax:
			if _, ok := sp.NextStage(f.Stage); ok && f.Energy >= cost(ActionGrow) {
				return one("action", ActionGrow.String()), nil
			}
			return one("action", ActionDie.String()), nil
		default:
			return one("action", ActionRest.String()), nil
		}
	}

	lethal := sp.Sensitivity.LethalTempMax > sp.Sensitivity.LethalTempMin &&
		(f.Temperature < sp.Sensitivity.LethalTempMin || f.Temperature > sp.Sensitivity.LethalTempMax)
	switch {
	case lethal || (st.DurationMax > 0 && f.Age > st.DurationMax):
		return one("action", ActionDie.String()), nil
	case f.Energy < agents.HungryThreshold:
		return one("action", ActionFeed.String()), nil
	case !f.Reproduced && f.Age >= sp.Reproduction.MinReproductiveAge && f.Energy >= cost(ActionOviposit):
		return one("action", ActionOviposit.String()), nil
	case f.Energy < agents.MaxEnergy/2:
		return one("action", ActionFeed.String()), nil
	default:
		return one("action", ActionRest.String()), nil
	}
}

// effectiveSurvival scales the static rate by the species' thermal window
// and humidity preference.
func (kb *KnowledgeBase) effectiveSurvival(args map[string]any) ([]Binding, error) {
	static := num(args, "static")
	sp, err := kb.cfg.SpeciesByID(str(args, "species"))
	if err != nil {
		return one("rate", static), nil
	}
	t, h := num(args, "temperature"), num(args, "humidity")
	s := sp.Sensitivity

	tf := 1.0
	switch {
	case t < s.LethalTempMin || t > s.LethalTempMax:
		tf = 0.5
	case t < s.OptimalTempMin && s.OptimalTempMin > s.LethalTempMin:
		tf = 0.5 + 0.5*(t-s.LethalTempMin)/(s.OptimalTempMin-s.LethalTempMin)
	case t > s.OptimalTempMax && s.LethalTempMax > s.OptimalTempMax:
		tf = 0.5 + 0.5*(s.LethalTempMax-t)/(s.LethalTempMax-s.OptimalTempMax)
	}
	hf := 1.0
	if s.OptimalHumidity > 0 && h < s.OptimalHumidity {
		hf = 0.8 + 0.2*math.Max(0, h)/s.OptimalHumidity
	}
	// Adult stages are less sensitive to conditions than aquatic ones.
	if strings.Contains(str(args, "from"), "adult") {
		tf = 1 - (1-tf)/2
		hf = 1 - (1-hf)/2
	}
	return one("rate", math.Min(1, math.Max(0, static*tf*hf))), nil
}

func (kb *KnowledgeBase) trend(species string) Trend {
	h := kb.history[species]
	if len(h) < 2 {
		return TrendUnknown
	}
	prev := h[max(0, len(h)-1-trendWindow)]
	last := h[len(h)-1]
	if prev == 0 {
		if last > 0 {
			return TrendGrowing
		}
		return TrendStable
	}
	change := float64(last-prev) / float64(prev)
	switch {
	case change > trendTolerance:
		return TrendGrowing
	case change < -trendTolerance:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func (kb *KnowledgeBase) extinctionRisk(species string) ([]Binding, error) {
	h := kb.history[species]
	if len(h) == 0 {
		return nil, nil
	}
	last := h[len(h)-1]
	r := RiskLow
	switch {
	case last < riskCritical:
		r = RiskCritical
	case last < riskHigh:
		r = RiskHigh
	case last < riskModerate:
		r = RiskModerate
	}
	if r == RiskLow && kb.trend(species) == TrendDeclining {
		r = RiskModerate
	}
	return one("risk", r.String()), nil
}

// equilibrium holds when every tracked species is stable.
func (kb *KnowledgeBase) equilibrium() []Binding {
	if len(kb.history) == 0 {
		return one("equilibrium", false)
	}
	for sp := range kb.history {
		if kb.trend(sp) != TrendStable {
			return one("equilibrium", false)
		}
	}
	return one("equilibrium", true)
}

// predationRate scales the base rate by predator activity at the current
// temperature.
func (kb *KnowledgeBase) predationRate(args map[string]any) []Binding {
	base := math.Max(0, num(args, "base"))
	activity := DefaultTemperatureFactor(num(args, "temperature"))
	return one("rate", base*activity)
}

// stagePredationRate applies a Holling type II response to the prey on
// offer, capped at the stage's configured rate.
func (kb *KnowledgeBase) stagePredationRate(args map[string]any) ([]Binding, error) {
	sp, err := kb.cfg.SpeciesByID(str(args, "species"))
	if err != nil {
		return nil, nil
	}
	st, ok := sp.Stage(str(args, "stage"))
	if !ok || !st.IsPredatory {
		return one("rate", 0), nil
	}
	rate := float64(st.PredationRate)
	if fr := sp.Predation; fr != nil && fr.AttackRate > 0 {
		n := math.Max(0, num(args, "prey"))
		holling := fr.AttackRate * n / (1 + fr.AttackRate*fr.HandlingTime*n)
		rate = math.Min(rate, holling)
	}
	return one("rate", int(math.Round(rate))), nil
}
