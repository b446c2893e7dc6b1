package scenario

import (
	"fmt"
	"strings"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/simerr"
)

// Comparison limits.
const (
	MinScenarios = 2
	MaxScenarios = 20
)

// Comparison simulation types.
const (
	TypePopulation = "population"
	TypeAgent      = "agent"
)

// Ranking metrics.
const (
	MetricPeakPopulation  = "peak_population"
	MetricFinalPopulation = "final_population"
	MetricMeanPopulation  = "mean_population"
	MetricPeakDay         = "peak_day"
	MetricExtinctionDay   = "extinction_day"
)

// Metrics lists the accepted ranking metrics.
var Metrics = []string{
	MetricPeakPopulation,
	MetricFinalPopulation,
	MetricMeanPopulation,
	MetricPeakDay,
	MetricExtinctionDay,
}

// Habitat overrides the configured environment. Nil fields keep the
// configured value.
type Habitat struct {
	Temperature       *float64 `json:"temperature,omitempty"`
	Humidity          *float64 `json:"humidity,omitempty"`
	WaterAvailability *float64 `json:"water_availability,omitempty"` // scales carrying capacity
}

func (h Habitat) validate(v *simerr.Collector, prefix string) {
	if h.Temperature != nil {
		v.Range(prefix+"temperature", *h.Temperature, config.MinTemperature, config.MaxTemperature)
	}
	if h.Humidity != nil {
		v.Range(prefix+"humidity", *h.Humidity, config.MinHumidity, config.MaxHumidity)
	}
	if h.WaterAvailability != nil {
		v.Range(prefix+"water_availability", *h.WaterAvailability, 0, 1)
	}
}

// PopulationRequest describes an aggregate run of one species.
type PopulationRequest struct {
	Species    string               `json:"species"`
	Days       int                  `json:"days"`
	Initial    config.InitialCounts `json:"initial"`
	Habitat    Habitat              `json:"habitat"`
	Seed       *uint64              `json:"seed,omitempty"`       // nil = configured seed
	Stochastic *bool                `json:"stochastic,omitempty"` // nil = configured mode
	Checkpoint string               `json:"checkpoint,omitempty"` // save under this name when set
}

func (r PopulationRequest) validate(cfg *config.Config, v *simerr.Collector, prefix string) {
	_, err := cfg.SpeciesByID(r.Species)
	v.Check(err == nil, prefix+"species", r.Species, "unknown species; available: "+strings.Join(cfg.SpeciesIDs(), ", "))
	v.Range(prefix+"days", float64(r.Days), config.MinDays, config.MaxDays)
	validateCounts(v, prefix+"initial", r.Initial)
	v.Check(r.Initial.Total() > 0, prefix+"initial", r.Initial.Total(), "at least one life stage must be populated")
	r.Habitat.validate(v, prefix+"habitat.")
}

// Validate reports every problem with the request at once.
func (r PopulationRequest) Validate(cfg *config.Config) error {
	var v simerr.Collector
	r.validate(cfg, &v, "")
	return v.Err()
}

// PredatorRequest couples a predator population to a PopulationRequest.
type PredatorRequest struct {
	PopulationRequest
	Predator        string                `json:"predator,omitempty"`         // "" = configured predator
	PredatorInitial *config.InitialCounts `json:"predator_initial,omitempty"` // nil = configured counts
}

// Validate reports every problem with the request at once.
func (r PredatorRequest) Validate(cfg *config.Config) error {
	var v simerr.Collector
	r.PopulationRequest.validate(cfg, &v, "")
	id := r.predatorID(cfg)
	sp, err := cfg.SpeciesByID(id)
	v.Check(err == nil, "predator", id, "unknown species")
	if sp != nil {
		v.Check(sp.IsPredator(), "predator", id, "has no predatory stage")
	}
	if r.PredatorInitial != nil {
		validateCounts(&v, "predator_initial", *r.PredatorInitial)
	}
	return v.Err()
}

func (r PredatorRequest) predatorID(cfg *config.Config) string {
	if r.Predator != "" {
		return r.Predator
	}
	return cfg.Predation.PredatorSpecies
}

func (r PredatorRequest) predatorInitial(cfg *config.Config) config.InitialCounts {
	if r.PredatorInitial != nil {
		return *r.PredatorInitial
	}
	return cfg.InitialFor(r.predatorID(cfg))
}

// AgentRequest describes an individual-based run.
type AgentRequest struct {
	Species    string  `json:"species"`
	Predator   string  `json:"predator,omitempty"` // "" = configured predator
	Days       int     `json:"days"`
	Vectors    int     `json:"vectors"`
	Predators  int     `json:"predators"`
	Habitat    Habitat `json:"habitat"`
	Seed       *uint64 `json:"seed,omitempty"`
	Parallel   *bool   `json:"parallel,omitempty"` // nil = configured
	Workers    int     `json:"workers,omitempty"`  // 0 = GOMAXPROCS
	Checkpoint string  `json:"checkpoint,omitempty"`
}

func (r AgentRequest) validate(cfg *config.Config, v *simerr.Collector, prefix string) {
	_, err := cfg.SpeciesByID(r.Species)
	v.Check(err == nil, prefix+"species", r.Species, "unknown species; available: "+strings.Join(cfg.SpeciesIDs(), ", "))
	checkVectorSpecies(cfg, v, prefix+"species", r.Species)
	v.Range(prefix+"days", float64(r.Days), config.MinDays, config.MaxDays)
	v.Range(prefix+"vectors", float64(r.Vectors), 1, float64(cfg.Agents.MaxVectors))
	v.Range(prefix+"predators", float64(r.Predators), 0, float64(cfg.Agents.MaxPredators))
	v.Check(r.Workers >= 0, prefix+"workers", r.Workers, "must be non-negative")
	if r.Predators > 0 {
		id := r.predatorID(cfg)
		psp, err := cfg.SpeciesByID(id)
		v.Check(err == nil, prefix+"predator", id, "unknown species")
		if psp != nil {
			v.Check(psp.IsPredator(), prefix+"predator", id, "has no predatory stage")
		}
	}
	r.Habitat.validate(v, prefix+"habitat.")
}

// Validate reports every problem with the request at once.
func (r AgentRequest) Validate(cfg *config.Config) error {
	var v simerr.Collector
	r.validate(cfg, &v, "")
	return v.Err()
}

func (r AgentRequest) predatorID(cfg *config.Config) string {
	if r.Predator != "" {
		return r.Predator
	}
	return cfg.Predation.PredatorSpecies
}

// HybridRequest runs the aggregate and individual models over the same
// environment. The agent model starts with Initial.Adults vectors.
type HybridRequest struct {
	PopulationRequest
	Predator  string `json:"predator,omitempty"`
	Predators int    `json:"predators"` // agent model only
	Parallel  *bool  `json:"parallel,omitempty"`
	Workers   int    `json:"workers,omitempty"`
}

// Validate reports every problem with the request at once.
func (r HybridRequest) Validate(cfg *config.Config) error {
	var v simerr.Collector
	r.PopulationRequest.validate(cfg, &v, "")
	a := r.agentRequest()
	checkVectorSpecies(cfg, &v, "species", r.Species)
	v.Range("initial.adults", float64(a.Vectors), 1, float64(cfg.Agents.MaxVectors))
	v.Range("predators", float64(a.Predators), 0, float64(cfg.Agents.MaxPredators))
	if r.Predators > 0 {
		id := a.predatorID(cfg)
		psp, err := cfg.SpeciesByID(id)
		v.Check(err == nil, "predator", id, "unknown species")
		if psp != nil {
			v.Check(psp.IsPredator(), "predator", id, "has no predatory stage")
		}
	}
	return v.Err()
}

func (r HybridRequest) agentRequest() AgentRequest {
	return AgentRequest{
		Species:   r.Species,
		Predator:  r.Predator,
		Days:      r.Days,
		Vectors:   r.Initial.Adults,
		Predators: r.Predators,
		Habitat:   r.Habitat,
		Seed:      r.Seed,
		Parallel:  r.Parallel,
		Workers:   r.Workers,
	}
}

// Scenario is one named entry of a comparison.
type Scenario struct {
	Name string `json:"name"`
	PopulationRequest
}

// FromPreset builds a named scenario from a configured preset. The preset's
// habitat always overrides the configured environment.
func FromPreset(p config.PresetConfig) Scenario {
	return Scenario{
		Name: p.Name,
		PopulationRequest: PopulationRequest{
			Species: p.Species,
			Days:    p.Days,
			Initial: config.InitialCounts{
				Eggs:   p.Eggs,
				Larvae: config.TotalLarvae(p.Larvae),
				Pupae:  p.Pupae,
				Adults: p.Adults,
			},
			Habitat: Habitat{
				Temperature:       &p.Temperature,
				Humidity:          &p.Humidity,
				WaterAvailability: &p.WaterAvailability,
			},
		},
	}
}

// ComparisonRequest runs several scenarios and ranks them.
type ComparisonRequest struct {
	Scenarios  []Scenario `json:"scenarios"`
	Type       string     `json:"type"`   // population | agent
	Metric     string     `json:"metric"` // one of Metrics
	Checkpoint string     `json:"checkpoint,omitempty"`
}

// Validate reports every problem with the request at once.
func (r ComparisonRequest) Validate(cfg *config.Config) error {
	var v simerr.Collector
	n := len(r.Scenarios)
	v.Check(n >= MinScenarios && n <= MaxScenarios, "scenarios", n,
		fmt.Sprintf("between %d and %d scenarios are required", MinScenarios, MaxScenarios))
	v.Check(r.Type == TypePopulation || r.Type == TypeAgent, "type", r.Type,
		"must be "+TypePopulation+" or "+TypeAgent)
	v.Check(knownMetric(r.Metric), "metric", r.Metric, "must be one of "+strings.Join(Metrics, ", "))

	seen := make(map[string]bool, n)
	for i, sc := range r.Scenarios {
		prefix := fmt.Sprintf("scenarios[%d].", i)
		name := strings.TrimSpace(sc.Name)
		v.Check(name != "", prefix+"name", nil, "must be set")
		v.Check(!seen[name], prefix+"name", name, "duplicate scenario name")
		seen[name] = true

		sc.PopulationRequest.validate(cfg, &v, prefix)
		if r.Type == TypeAgent {
			checkVectorSpecies(cfg, &v, prefix+"species", sc.Species)
			v.Range(prefix+"initial.adults", float64(sc.Initial.Adults), 1, float64(cfg.Agents.MaxVectors))
		}
	}
	return v.Err()
}

func knownMetric(m string) bool {
	for _, k := range Metrics {
		if k == m {
			return true
		}
	}
	return false
}

func validateCounts(v *simerr.Collector, field string, c config.InitialCounts) {
	v.Check(c.Eggs >= 0, field+".eggs", c.Eggs, "must be non-negative")
	v.Add(c.Larvae.Validate(field + ".larvae"))
	v.Check(c.Pupae >= 0, field+".pupae", c.Pupae, "must be non-negative")
	v.Check(c.Adults >= 0, field+".adults", c.Adults, "must be non-negative")
}

// checkVectorSpecies rejects predator species where agents need vectors.
func checkVectorSpecies(cfg *config.Config, v *simerr.Collector, field, id string) {
	if sp, err := cfg.SpeciesByID(id); err == nil && sp.IsPredator() {
		v.Check(false, field, id, "agent runs need a vector species")
	}
}
