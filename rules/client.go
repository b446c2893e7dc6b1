package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/simerr"
)

// DefaultQueryTimeout bounds a single query when configuration sets none.
const DefaultQueryTimeout = 250 * time.Millisecond

// Client wraps a Backend so that every call yields a usable value. Methods
// return (value, true) when the engine answered and (fallback, false)
// otherwise. Client is safe for concurrent use if its Backend is.
type Client struct {
	backend Backend
	timeout time.Duration
	costs   map[Action]float64
	logger  *slog.Logger

	queries        atomic.Int64
	fallbacks      atomic.Int64
	assertFailures atomic.Int64
}

// NewClient builds a client. A disabled configuration or a nil backend
// yields a client that always falls back.
func NewClient(backend Backend, cfg config.RulesConfig, logger *slog.Logger) *Client {
	if backend == nil || !cfg.Enabled {
		backend = Unavailable{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.QueryTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	costs := make(map[Action]float64, len(DefaultActionCosts))
	for a, c := range DefaultActionCosts {
		costs[a] = c
	}
	for name, c := range cfg.ActionCosts {
		if a, ok := ParseAction(name); ok && c >= 0 {
			costs[a] = c
		}
	}

	return &Client{
		backend: backend,
		timeout: timeout,
		costs:   costs,
		logger:  logger,
	}
}

// Available reports whether a real engine is attached.
func (c *Client) Available() bool {
	_, down := c.backend.(Unavailable)
	return !down
}

// Stats counts queries and degradations since construction.
type Stats struct {
	Queries        int64 `json:"queries"`
	Fallbacks      int64 `json:"fallbacks"`
	AssertFailures int64 `json:"assert_failures"`
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("queries", s.Queries),
		slog.Int64("fallbacks", s.Fallbacks),
		slog.Int64("assert_failures", s.AssertFailures),
	)
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	return Stats{
		Queries:        c.queries.Load(),
		Fallbacks:      c.fallbacks.Load(),
		AssertFailures: c.assertFailures.Load(),
	}
}

// first runs q under the query timeout and returns its first binding.
func (c *Client) first(ctx context.Context, q Query) (Binding, error) {
	c.queries.Add(1)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	bs, err := c.backend.Query(ctx, q)
	if err != nil {
		if errors.Is(err, simerr.ErrRuleEngineUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %w", q.Name, simerr.ErrQueryFailed, err)
	}
	if len(bs) == 0 {
		return nil, fmt.Errorf("%s: no bindings: %w", q.Name, simerr.ErrQueryFailed)
	}
	return bs[0], nil
}

func (c *Client) fallback(query string, err error) {
	c.fallbacks.Add(1)
	c.logger.Debug("rule query fell back", "query", query, "error", err)
}

func badValue(query, key string, v any) error {
	return fmt.Errorf("%s: unusable %s=%v: %w", query, key, v, simerr.ErrQueryFailed)
}

func (c *Client) assert(ctx context.Context, f Fact) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.backend.Assert(ctx, f); err != nil {
		c.assertFailures.Add(1)
		c.logger.Debug("rule assert failed", "fact", f.FactKey(), "error", err)
	}
}

// AssertEnvironment pushes the day's conditions.
func (c *Client) AssertEnvironment(ctx context.Context, day int, temperature, humidity float64) {
	c.assert(ctx, EnvironmentFact{Day: day, Temperature: temperature, Humidity: humidity})
}

// AssertPopulation pushes a species census.
func (c *Client) AssertPopulation(ctx context.Context, species string, day, total int, density float64) {
	c.assert(ctx, PopulationFact{Species: species, Day: day, Total: total, Density: density})
}

// AssertAgent replaces the agent's fact row.
func (c *Client) AssertAgent(ctx context.Context, f AgentFact) {
	c.assert(ctx, f)
}

// RetractAgent removes the agent's fact row.
func (c *Client) RetractAgent(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.backend.Retract(ctx, AgentKey(id)); err != nil {
		c.assertFailures.Add(1)
		c.logger.Debug("rule retract failed", "agent", id, "error", err)
	}
}

// BestAction asks the engine what the agent should do. Fallback: rest.
func (c *Client) BestAction(ctx context.Context, agentID string) (Action, bool) {
	b, err := c.first(ctx, Query{Name: QueryBestAction, Args: map[string]any{"agent_id": agentID}})
	if err != nil {
		c.fallback(QueryBestAction, err)
		return ActionRest, false
	}
	sym, _ := b.String("action")
	a, ok := ParseAction(sym)
	if !ok {
		c.fallback(QueryBestAction, badValue(QueryBestAction, "action", b["action"]))
		return ActionRest, false
	}
	return a, true
}

// StaticActionCost returns the configured or default cost of a.
func (c *Client) StaticActionCost(a Action) float64 {
	return c.costs[a]
}

// ActionEnergyCost returns the energy an action costs. Fallback: the
// configured cost table.
func (c *Client) ActionEnergyCost(ctx context.Context, a Action) (float64, bool) {
	b, err := c.first(ctx, Query{Name: QueryActionCost, Args: map[string]any{"action": a.String()}})
	if err != nil {
		c.fallback(QueryActionCost, err)
		return c.costs[a], false
	}
	v, ok := b.Float("cost")
	if !ok || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		c.fallback(QueryActionCost, badValue(QueryActionCost, "cost", b["cost"]))
		return c.costs[a], false
	}
	return v, true
}

// EffectiveSurvival returns an environment-adjusted stage transition rate.
// Fallback: static.
func (c *Client) EffectiveSurvival(ctx context.Context, species, from, to string, temperature, humidity, static float64) (float64, bool) {
	b, err := c.first(ctx, Query{Name: QueryEffectiveSurvival, Args: map[string]any{
		"species":     species,
		"from":        from,
		"to":          to,
		"temperature": temperature,
		"humidity":    humidity,
		"static":      static,
	}})
	if err != nil {
		c.fallback(QueryEffectiveSurvival, err)
		return static, false
	}
	v, ok := b.Float("rate")
	if !ok || !(v >= 0 && v <= 1) {
		c.fallback(QueryEffectiveSurvival, badValue(QueryEffectiveSurvival, "rate", b["rate"]))
		return static, false
	}
	return v, true
}

// PopulationTrend classifies a species' recent movement. Fallback: unknown.
func (c *Client) PopulationTrend(ctx context.Context, species string, day int) (Trend, bool) {
	b, err := c.first(ctx, Query{Name: QueryPopulationTrend, Args: map[string]any{"species": species, "day": day}})
	if err != nil {
		c.fallback(QueryPopulationTrend, err)
		return TrendUnknown, false
	}
	sym, _ := b.String("trend")
	t, ok := ParseTrend(sym)
	if !ok {
		c.fallback(QueryPopulationTrend, badValue(QueryPopulationTrend, "trend", b["trend"]))
	}
	return t, ok
}

// ExtinctionRisk classifies a species' extinction risk. Fallback: unknown.
func (c *Client) ExtinctionRisk(ctx context.Context, species string, day int) (Risk, bool) {
	b, err := c.first(ctx, Query{Name: QueryExtinctionRisk, Args: map[string]any{"species": species, "day": day}})
	if err != nil {
		c.fallback(QueryExtinctionRisk, err)
		return RiskUnknown, false
	}
	sym, _ := b.String("risk")
	r, ok := ParseRisk(sym)
	if !ok {
		c.fallback(QueryExtinctionRisk, badValue(QueryExtinctionRisk, "risk", b["risk"]))
	}
	return r, ok
}

// EcologicalEquilibrium reports whether the system is at equilibrium.
// Fallback: false.
func (c *Client) EcologicalEquilibrium(ctx context.Context, day int) (bool, bool) {
	b, err := c.first(ctx, Query{Name: QueryEquilibrium, Args: map[string]any{"day": day}})
	if err != nil {
		c.fallback(QueryEquilibrium, err)
		return false, false
	}
	v, ok := b.Bool("equilibrium")
	if !ok {
		c.fallback(QueryEquilibrium, badValue(QueryEquilibrium, "equilibrium", b["equilibrium"]))
		return false, false
	}
	return v, true
}

// TemperatureFactor returns the development multiplier for a temperature.
// Fallback: DefaultTemperatureFactor.
func (c *Client) TemperatureFactor(ctx context.Context, temperature float64) (float64, bool) {
	return c.factor(ctx, QueryTemperatureFactor, "temperature", temperature, DefaultTemperatureFactor)
}

// HumidityFactor returns the development multiplier for a humidity.
// Fallback: DefaultHumidityFactor.
func (c *Client) HumidityFactor(ctx context.Context, humidity float64) (float64, bool) {
	return c.factor(ctx, QueryHumidityFactor, "humidity", humidity, DefaultHumidityFactor)
}

func (c *Client) factor(ctx context.Context, name, arg string, x float64, fb func(float64) float64) (float64, bool) {
	b, err := c.first(ctx, Query{Name: name, Args: map[string]any{arg: x}})
	if err != nil {
		c.fallback(name, err)
		return fb(x), false
	}
	v, ok := b.Float("factor")
	if !ok || !(v >= 0) || math.IsInf(v, 0) {
		c.fallback(name, badValue(name, "factor", b["factor"]))
		return fb(x), false
	}
	return v, true
}

// PredationRate returns a density-adjusted predation rate.
// Fallback: base / (1 + density).
func (c *Client) PredationRate(ctx context.Context, stage string, density, base, temperature float64) (float64, bool) {
	fb := base / (1 + math.Max(density, 0))
	b, err := c.first(ctx, Query{Name: QueryPredationRate, Args: map[string]any{
		"stage":       stage,
		"density":     density,
		"base":        base,
		"temperature": temperature,
	}})
	if err != nil {
		c.fallback(QueryPredationRate, err)
		return fb, false
	}
	v, ok := b.Float("rate")
	if !ok || !(v >= 0) || math.IsInf(v, 0) {
		c.fallback(QueryPredationRate, badValue(QueryPredationRate, "rate", b["rate"]))
		return fb, false
	}
	return v, true
}

// StagePredationRate returns how many prey one predator of the given stage
// takes in a hunt given the prey currently available. Fallback: static.
func (c *Client) StagePredationRate(ctx context.Context, species, stage string, prey, static int) (int, bool) {
	b, err := c.first(ctx, Query{Name: QueryStagePredationRate, Args: map[string]any{
		"species": species,
		"stage":   stage,
		"prey":    prey,
	}})
	if err != nil {
		c.fallback(QueryStagePredationRate, err)
		return static, false
	}
	v, ok := b.Int("rate")
	if !ok || v < 0 {
		c.fallback(QueryStagePredationRate, badValue(QueryStagePredationRate, "rate", b["rate"]))
		return static, false
	}
	return v, true
}

// EggBatchRange returns the [lo, hi] eggs per batch. Fallback: the given
// static range.
func (c *Client) EggBatchRange(ctx context.Context, species string, lo, hi int) (int, int, bool) {
	b, err := c.first(ctx, Query{Name: QueryEggBatch, Args: map[string]any{"species": species}})
	if err != nil {
		c.fallback(QueryEggBatch, err)
		return lo, hi, false
	}
	mn, ok1 := b.Int("min")
	mx, ok2 := b.Int("max")
	if !ok1 || !ok2 || mn < 0 || mx < mn {
		c.fallback(QueryEggBatch, badValue(QueryEggBatch, "range", [2]any{b["min"], b["max"]}))
		return lo, hi, false
	}
	return mn, mx, true
}

// NextStage returns the stage that follows stage. Fallback: static.
func (c *Client) NextStage(ctx context.Context, species, stage, static string) (string, bool) {
	b, err := c.first(ctx, Query{Name: QueryNextStage, Args: map[string]any{"species": species, "stage": stage}})
	if err != nil {
		c.fallback(QueryNextStage, err)
		return static, false
	}
	next, ok := b.String("stage")
	if !ok || next == "" {
		c.fallback(QueryNextStage, badValue(QueryNextStage, "stage", b["stage"]))
		return static, false
	}
	return next, true
}

// DefaultTemperatureFactor is the piecewise development response to
// temperature: full inside 25–30 °C, tapering on either side.
func DefaultTemperatureFactor(t float64) float64 {
	switch {
	case t >= 25 && t <= 30:
		return 1
	case t >= 20 && t < 25:
		return 0.7 + (t-20)*0.06
	case t > 30 && t <= 35:
		return 1 - (t-30)*0.1
	case t < 20:
		return math.Max(0.3, 0.7-(20-t)*0.08)
	default:
		return math.Max(0.2, 0.5-(t-35)*0.1)
	}
}

// DefaultHumidityFactor is the piecewise development response to humidity.
func DefaultHumidityFactor(h float64) float64 {
	switch {
	case h >= 70:
		return 1
	case h >= 50:
		return 0.7 + (h-50)*0.015
	default:
		return math.Max(0.4, 0.7-(50-h)*0.015)
	}
}
