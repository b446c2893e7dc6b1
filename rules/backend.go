// Package rules is the boundary to the declarative rule engine that drives
// agent decisions and rate adjustments. Every query goes through Client,
// which turns engine absence, errors and nonsense answers into documented
// fallback values.
package rules

import (
	"context"
	"fmt"

	"github.com/pthm-cable/vectorsim/simerr"
)

// Query names understood by a Backend.
const (
	QueryBestAction         = "best_action"
	QueryActionCost         = "action_energy_cost"
	QueryEffectiveSurvival  = "effective_survival"
	QueryPopulationTrend    = "population_trend"
	QueryExtinctionRisk     = "extinction_risk"
	QueryEquilibrium        = "ecological_equilibrium"
	QueryTemperatureFactor  = "temperature_factor"
	QueryHumidityFactor     = "humidity_factor"
	QueryPredationRate      = "predation_rate"
	QueryStagePredationRate = "stage_predation_rate"
	QueryEggBatch           = "egg_batch"
	QueryNextStage          = "next_stage"
)

// Fact is a unit of asserted state. Facts with the same Key replace each
// other, so every agent owns exactly one row.
type Fact interface {
	FactKey() string
}

// EnvironmentFact carries the current day's conditions.
type EnvironmentFact struct {
	Day         int
	Temperature float64
	Humidity    float64
}

func (EnvironmentFact) FactKey() string { return "environment" }

// PopulationFact carries one species' census for a day.
type PopulationFact struct {
	Species string
	Day     int
	Total   int
	Density float64
}

func (f PopulationFact) FactKey() string { return "population:" + f.Species }

// AgentFact carries one agent's state and its latest perception.
type AgentFact struct {
	ID         string
	Species    string
	Kind       string // vector or predator
	Stage      string
	Age        int
	Energy     float64
	Reproduced bool
	Alive      bool

	Temperature   float64
	Humidity      float64
	Density       float64
	PreyAvailable bool
}

func (f AgentFact) FactKey() string { return AgentKey(f.ID) }

// AgentKey is the fact key of an agent row.
func AgentKey(id string) string { return "agent:" + id }

// Query is a named request with arguments.
type Query struct {
	Name string
	Args map[string]any
}

// Binding is one solution to a query.
type Binding map[string]any

// Backend is an inference engine. Query returns zero or more bindings;
// callers use the first.
type Backend interface {
	Assert(ctx context.Context, f Fact) error
	Retract(ctx context.Context, key string) error
	Query(ctx context.Context, q Query) ([]Binding, error)
}

// Unavailable is a Backend for runs without an engine. Every call fails
// with ErrRuleEngineUnavailable.
type Unavailable struct{}

func (Unavailable) Assert(context.Context, Fact) error {
	return simerr.ErrRuleEngineUnavailable
}

func (Unavailable) Retract(context.Context, string) error {
	return simerr.ErrRuleEngineUnavailable
}

func (Unavailable) Query(_ context.Context, q Query) ([]Binding, error) {
	return nil, fmt.Errorf("%s: %w", q.Name, simerr.ErrRuleEngineUnavailable)
}

// Float reads a numeric binding value.
func (b Binding) Float(key string) (float64, bool) {
	switch v := b[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int reads an integral binding value.
func (b Binding) Int(key string) (int, bool) {
	switch v := b[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// String reads a symbol binding value.
func (b Binding) String(key string) (string, bool) {
	s, ok := b[key].(string)
	return s, ok
}

// Bool reads a boolean binding value.
func (b Binding) Bool(key string) (bool, bool) {
	v, ok := b[key].(bool)
	return v, ok
}
