// Package config provides configuration loading and access for the simulator.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/vectorsim/simerr"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation  SimulationConfig         `yaml:"simulation"`
	Environment EnvironmentConfig        `yaml:"environment"`
	Species     []SpeciesConfig          `yaml:"species"`
	Initial     map[string]InitialCounts `yaml:"initial"`
	Predation   PredationConfig          `yaml:"predation"`
	Agents      AgentsConfig             `yaml:"agents"`
	Rules       RulesConfig              `yaml:"rules"`
	Telemetry   TelemetryConfig          `yaml:"telemetry"`
	Storage     StorageConfig            `yaml:"storage"`
	Presets     []PresetConfig           `yaml:"presets"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds run-wide settings.
type SimulationConfig struct {
	DefaultDays     int     `yaml:"default_days"`
	RandomSeed      *uint64 `yaml:"random_seed"` // nil = seed from time
	Stochastic      bool    `yaml:"stochastic"`
	DynamicSurvival bool    `yaml:"dynamic_survival"` // refresh transitions from rules each day
	ParallelAgents  bool    `yaml:"parallel_agents"`
}

// EnvironmentConfig holds the habitat description used to generate daily series.
type EnvironmentConfig struct {
	Temperature          float64 `yaml:"temperature"`           // Mean °C
	Humidity             float64 `yaml:"humidity"`              // Mean %
	TemperatureVariation float64 `yaml:"temperature_variation"` // Seasonal amplitude °C
	HumidityVariation    float64 `yaml:"humidity_variation"`    // AR(1) std %
	TemperatureStd       float64 `yaml:"temperature_std"`
	TemperatureAutocorr  float64 `yaml:"temperature_autocorr"`
	HumidityAutocorr     float64 `yaml:"humidity_autocorr"`
	HumidityMin          float64 `yaml:"humidity_min"`
	HumidityMax          float64 `yaml:"humidity_max"`
	CarryingCapacity     int     `yaml:"carrying_capacity"`
	WaterAvailability    float64 `yaml:"water_availability"` // 0..1

	Favorable FavorableConfig `yaml:"favorable"`
	Rainfall  RainfallConfig  `yaml:"rainfall"`
}

// FavorableConfig holds default thresholds for favorable-day queries.
type FavorableConfig struct {
	TemperatureMin float64 `yaml:"temperature_min"`
	TemperatureMax float64 `yaml:"temperature_max"`
	HumidityMin    float64 `yaml:"humidity_min"`
}

// RainfallConfig holds optional simplex-noise rainfall parameters.
type RainfallConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MeanMM      float64 `yaml:"mean_mm"`     // Mean daily rainfall
	Octaves     int     `yaml:"octaves"`     // FBM octaves
	Frequency   float64 `yaml:"frequency"`   // Base noise frequency per day
	Persistence float64 `yaml:"persistence"` // Amplitude multiplier per octave
}

// StageConfig describes one life stage. Survival is either survival_to_next
// (probability of completing the stage) or survival_daily (adults).
type StageConfig struct {
	Name           string   `yaml:"name"`
	DurationMin    int      `yaml:"duration_min"`
	DurationMax    int      `yaml:"duration_max"`
	SurvivalToNext *float64 `yaml:"survival_to_next,omitempty"`
	SurvivalDaily  *float64 `yaml:"survival_daily,omitempty"`
	IsPredatory    bool     `yaml:"is_predatory,omitempty"`
	PredationRate  int      `yaml:"predation_rate,omitempty"` // Prey per hunt
}

// MeanDuration is the midpoint of the stage's duration range.
func (s StageConfig) MeanDuration() float64 {
	return float64(s.DurationMin+s.DurationMax) / 2
}

// Survival returns survival_to_next, else survival_daily, else fallback.
func (s StageConfig) Survival(fallback float64) float64 {
	if s.SurvivalToNext != nil {
		return *s.SurvivalToNext
	}
	if s.SurvivalDaily != nil {
		return *s.SurvivalDaily
	}
	return fallback
}

// ReproductionConfig holds reproduction parameters.
type ReproductionConfig struct {
	EggsPerBatchMin    int `yaml:"eggs_per_batch_min"`
	EggsPerBatchMax    int `yaml:"eggs_per_batch_max"`
	OvipositionEvents  int `yaml:"oviposition_events"`
	MinReproductiveAge int `yaml:"min_reproductive_age"` // Days
}

// MeanEggsPerBatch is the midpoint of the batch size range.
func (r ReproductionConfig) MeanEggsPerBatch() float64 {
	return float64(r.EggsPerBatchMin+r.EggsPerBatchMax) / 2
}

// SensitivityConfig holds environmental tolerances.
type SensitivityConfig struct {
	OptimalTempMin  float64 `yaml:"optimal_temp_min"`
	OptimalTempMax  float64 `yaml:"optimal_temp_max"`
	LethalTempMin   float64 `yaml:"lethal_temp_min"`
	LethalTempMax   float64 `yaml:"lethal_temp_max"`
	OptimalHumidity float64 `yaml:"optimal_humidity"`
}

// FunctionalResponseConfig holds Holling type II parameters for predators.
type FunctionalResponseConfig struct {
	AttackRate   float64  `yaml:"attack_rate"`
	HandlingTime float64  `yaml:"handling_time"`
	PreyStages   []string `yaml:"prey_stages"`
}

// SpeciesConfig holds immutable per-species parameters.
type SpeciesConfig struct {
	ID           string                    `yaml:"id"`
	DisplayName  string                    `yaml:"display_name"`
	Stages       []StageConfig             `yaml:"stages"`
	Reproduction ReproductionConfig        `yaml:"reproduction"`
	Sensitivity  SensitivityConfig         `yaml:"sensitivity"`
	Predation    *FunctionalResponseConfig `yaml:"predation,omitempty"`
}

// Stage returns the named stage, or false.
func (s *SpeciesConfig) Stage(name string) (StageConfig, bool) {
	for _, st := range s.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return StageConfig{}, false
}

// StagesMatching returns every stage whose name contains substr, in order.
func (s *SpeciesConfig) StagesMatching(substr string) []StageConfig {
	var out []StageConfig
	for _, st := range s.Stages {
		if strings.Contains(strings.ToLower(st.Name), substr) {
			out = append(out, st)
		}
	}
	return out
}

// IsPredator reports whether any stage of the species is predatory.
func (s *SpeciesConfig) IsPredator() bool {
	for _, st := range s.Stages {
		if st.IsPredatory {
			return true
		}
	}
	return false
}

// NextStage returns the stage following name in declaration order.
func (s *SpeciesConfig) NextStage(name string) (string, bool) {
	for i, st := range s.Stages {
		if st.Name == name && i+1 < len(s.Stages) {
			return s.Stages[i+1].Name, true
		}
	}
	return "", false
}

// InitialCounts holds starting stage counts for one species.
type InitialCounts struct {
	Eggs   int         `yaml:"eggs" json:"eggs"`
	Larvae LarvaeCount `yaml:"larvae" json:"larvae"`
	Pupae  int         `yaml:"pupae" json:"pupae"`
	Adults int         `yaml:"adults" json:"adults"`
}

// Total sums every stage.
func (c InitialCounts) Total() int {
	return c.Eggs + c.Larvae.Total() + c.Pupae + c.Adults
}

// PredationConfig holds aggregate predator-prey coupling parameters.
type PredationConfig struct {
	PredatorSpecies     string  `yaml:"predator_species"`
	PreySpecies         string  `yaml:"prey_species"`
	ConsumptionFraction float64 `yaml:"consumption_fraction"` // Max share of prey larvae eaten per day
	StarvationSurvival  float64 `yaml:"starvation_survival"`  // Predator larvae multiplier on days without prey
}

// AgentsConfig holds individual-based model parameters.
type AgentsConfig struct {
	MaxEnergy        float64 `yaml:"max_energy"`
	DailyDecay       float64 `yaml:"daily_decay"`
	FeedGain         float64 `yaml:"feed_gain"`
	RestGain         float64 `yaml:"rest_gain"`
	PredatorRestGain float64 `yaml:"predator_rest_gain"`
	HuntGainPerPrey  float64 `yaml:"hunt_gain_per_prey"`
	HungryThreshold  float64 `yaml:"hungry_threshold"` // Local fallback feeds below this
	DefaultEggs      int     `yaml:"default_eggs"`     // Used when batch range cannot be resolved

	VectorAgeMin      int     `yaml:"vector_age_min"`
	VectorAgeMax      int     `yaml:"vector_age_max"`
	VectorEnergyMin   float64 `yaml:"vector_energy_min"`
	VectorEnergyMax   float64 `yaml:"vector_energy_max"`
	PredatorStage     string  `yaml:"predator_stage"`
	PredatorAgeMin    int     `yaml:"predator_age_min"`
	PredatorAgeMax    int     `yaml:"predator_age_max"`
	PredatorEnergyMin float64 `yaml:"predator_energy_min"`
	PredatorEnergyMax float64 `yaml:"predator_energy_max"`

	MaxVectors   int `yaml:"max_vectors"`
	MaxPredators int `yaml:"max_predators"`
}

// RulesConfig holds rule-engine client settings.
type RulesConfig struct {
	Enabled        bool               `yaml:"enabled"`
	QueryTimeoutMS int                `yaml:"query_timeout_ms"`
	ActionCosts    map[string]float64 `yaml:"action_costs"`
}

// TelemetryConfig holds output settings.
type TelemetryConfig struct {
	OutputDir   string `yaml:"output_dir"` // Empty disables file output
	LogLevel    string `yaml:"log_level"`
	WriteConfig bool   `yaml:"write_config"`
}

// StorageConfig holds checkpoint database settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// PresetConfig is a named, reusable run description.
type PresetConfig struct {
	Name              string  `yaml:"name"`
	Description       string  `yaml:"description"`
	Category          string  `yaml:"category"`
	Species           string  `yaml:"species"`
	Days              int     `yaml:"days"`
	Eggs              int     `yaml:"eggs"`
	Larvae            int     `yaml:"larvae"`
	Pupae             int     `yaml:"pupae"`
	Adults            int     `yaml:"adults"`
	Temperature       float64 `yaml:"temperature"`
	Humidity          float64 `yaml:"humidity"`
	WaterAvailability float64 `yaml:"water_availability"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	SpeciesIndex map[string]int // id -> index into Species
}

// Load reads configuration from path layered over the embedded defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w: %w", simerr.ErrConfiguration, err)
		}
	}

	cfg.computeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the embedded defaults. It panics if they are invalid,
// which only a broken build can cause.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.SpeciesIndex = make(map[string]int, len(c.Species))
	for i, sp := range c.Species {
		c.Derived.SpeciesIndex[sp.ID] = i
	}
	if c.Rules.ActionCosts == nil {
		c.Rules.ActionCosts = map[string]float64{}
	}
}

// SpeciesByID returns the species with the given id.
func (c *Config) SpeciesByID(id string) (*SpeciesConfig, error) {
	idx, ok := c.Derived.SpeciesIndex[id]
	if !ok {
		return nil, simerr.Configuration("species", id, "not found in loaded configuration")
	}
	return &c.Species[idx], nil
}

// SpeciesIDs lists configured species in declaration order.
func (c *Config) SpeciesIDs() []string {
	ids := make([]string, len(c.Species))
	for i, sp := range c.Species {
		ids[i] = sp.ID
	}
	return ids
}

// InitialFor returns the configured starting counts for a species.
func (c *Config) InitialFor(id string) InitialCounts {
	return c.Initial[id]
}

// Preset returns the named preset.
func (c *Config) Preset(name string) (PresetConfig, error) {
	for _, p := range c.Presets {
		if p.Name == name {
			return p, nil
		}
	}
	return PresetConfig{}, simerr.Configuration("presets", name, "no such preset")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
