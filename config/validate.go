package config

import (
	"fmt"

	"github.com/pthm-cable/vectorsim/simerr"
)

// Accepted input ranges shared by config validation and run requests.
const (
	MinDays        = 1
	MaxDays        = 3650
	MinTemperature = -10.0
	MaxTemperature = 50.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// Validate checks the loaded configuration. All problems are reported
// together, each wrapping simerr.ErrConfiguration.
func (c *Config) Validate() error {
	v := simerr.Collector{Kind: simerr.ErrConfiguration}

	v.Range("simulation.default_days", float64(c.Simulation.DefaultDays), MinDays, MaxDays)

	env := c.Environment
	v.Range("environment.temperature", env.Temperature, MinTemperature, MaxTemperature)
	v.Range("environment.humidity", env.Humidity, MinHumidity, MaxHumidity)
	v.Range("environment.water_availability", env.WaterAvailability, 0, 1)
	v.Range("environment.temperature_autocorr", env.TemperatureAutocorr, 0, 0.999)
	v.Range("environment.humidity_autocorr", env.HumidityAutocorr, 0, 0.999)
	v.Check(env.TemperatureVariation >= 0, "environment.temperature_variation", env.TemperatureVariation, "must be non-negative")
	v.Check(env.HumidityVariation >= 0, "environment.humidity_variation", env.HumidityVariation, "must be non-negative")
	v.Check(env.TemperatureStd >= 0, "environment.temperature_std", env.TemperatureStd, "must be non-negative")
	v.Check(env.CarryingCapacity >= 0, "environment.carrying_capacity", env.CarryingCapacity, "must be non-negative")
	v.Check(env.HumidityMin <= env.HumidityMax, "environment.humidity_min", env.HumidityMin, "must not exceed humidity_max")
	v.Check(env.Favorable.TemperatureMin <= env.Favorable.TemperatureMax, "environment.favorable.temperature_min", env.Favorable.TemperatureMin, "must not exceed temperature_max")
	if env.Rainfall.Enabled {
		v.Check(env.Rainfall.MeanMM >= 0, "environment.rainfall.mean_mm", env.Rainfall.MeanMM, "must be non-negative")
		v.Check(env.Rainfall.Octaves >= 1, "environment.rainfall.octaves", env.Rainfall.Octaves, "must be at least 1")
	}

	v.Check(len(c.Species) > 0, "species", nil, "at least one species must be configured")
	seen := make(map[string]bool, len(c.Species))
	for i := range c.Species {
		sp := &c.Species[i]
		v.Check(sp.ID != "", fmt.Sprintf("species[%d].id", i), nil, "must be set")
		v.Check(!seen[sp.ID], fmt.Sprintf("species[%d].id", i), sp.ID, "duplicate species id")
		seen[sp.ID] = true
		validateSpecies(&v, sp)
	}

	for id, counts := range c.Initial {
		prefix := "initial." + id
		_, known := c.Derived.SpeciesIndex[id]
		v.Check(known, prefix, nil, "initial counts for unknown species")
		v.Check(counts.Eggs >= 0, prefix+".eggs", counts.Eggs, "must be non-negative")
		v.Check(counts.Pupae >= 0, prefix+".pupae", counts.Pupae, "must be non-negative")
		v.Check(counts.Adults >= 0, prefix+".adults", counts.Adults, "must be non-negative")
		if err := counts.Larvae.Validate(prefix + ".larvae"); err != nil {
			v.Check(false, prefix+".larvae", counts.Larvae.Total(), "must be non-negative")
		}
	}

	p := c.Predation
	v.Range("predation.consumption_fraction", p.ConsumptionFraction, 0, 1)
	v.Range("predation.starvation_survival", p.StarvationSurvival, 0, 1)
	if p.PredatorSpecies != "" {
		_, ok := c.Derived.SpeciesIndex[p.PredatorSpecies]
		v.Check(ok, "predation.predator_species", p.PredatorSpecies, "unknown species")
	}
	if p.PreySpecies != "" {
		_, ok := c.Derived.SpeciesIndex[p.PreySpecies]
		v.Check(ok, "predation.prey_species", p.PreySpecies, "unknown species")
	}

	a := c.Agents
	v.Check(a.MaxEnergy > 0, "agents.max_energy", a.MaxEnergy, "must be positive")
	v.Check(a.DailyDecay >= 0, "agents.daily_decay", a.DailyDecay, "must be non-negative")
	v.Check(a.VectorAgeMin <= a.VectorAgeMax, "agents.vector_age_min", a.VectorAgeMin, "must not exceed vector_age_max")
	v.Check(a.PredatorAgeMin <= a.PredatorAgeMax, "agents.predator_age_min", a.PredatorAgeMin, "must not exceed predator_age_max")
	v.Check(a.VectorEnergyMin <= a.VectorEnergyMax && a.VectorEnergyMax <= a.MaxEnergy, "agents.vector_energy_max", a.VectorEnergyMax, "energy range must lie within [0, max_energy]")
	v.Check(a.PredatorEnergyMin <= a.PredatorEnergyMax && a.PredatorEnergyMax <= a.MaxEnergy, "agents.predator_energy_max", a.PredatorEnergyMax, "energy range must lie within [0, max_energy]")
	v.Check(a.MaxVectors > 0, "agents.max_vectors", a.MaxVectors, "must be positive")
	v.Check(a.MaxPredators >= 0, "agents.max_predators", a.MaxPredators, "must be non-negative")

	v.Check(c.Rules.QueryTimeoutMS >= 0, "rules.query_timeout_ms", c.Rules.QueryTimeoutMS, "must be non-negative")
	for name, cost := range c.Rules.ActionCosts {
		v.Check(cost >= 0, "rules.action_costs."+name, cost, "must be non-negative")
	}

	for i, pr := range c.Presets {
		prefix := fmt.Sprintf("presets[%d]", i)
		_, ok := c.Derived.SpeciesIndex[pr.Species]
		v.Check(ok, prefix+".species", pr.Species, "unknown species")
		v.Range(prefix+".days", float64(pr.Days), MinDays, MaxDays)
	}

	return v.Err()
}

func validateSpecies(v *simerr.Collector, sp *SpeciesConfig) {
	prefix := "species." + sp.ID

	if _, ok := sp.Stage("egg"); !ok {
		v.Check(false, prefix+".stages", nil, "missing egg stage")
	}
	if _, ok := sp.Stage("pupa"); !ok {
		v.Check(false, prefix+".stages", nil, "missing pupa stage")
	}
	if len(sp.StagesMatching("larva")) == 0 {
		v.Check(false, prefix+".stages", nil, "missing larval stages")
	}

	for _, st := range sp.Stages {
		field := prefix + ".stages." + st.Name
		v.Check(st.Name != "", prefix+".stages", nil, "stage name must be set")
		v.Check(st.DurationMin >= 0, field+".duration_min", st.DurationMin, "must be non-negative")
		v.Check(st.DurationMin <= st.DurationMax, field+".duration_min", st.DurationMin, "must not exceed duration_max")
		if st.SurvivalToNext != nil {
			v.Range(field+".survival_to_next", *st.SurvivalToNext, 0, 1)
		}
		if st.SurvivalDaily != nil {
			v.Range(field+".survival_daily", *st.SurvivalDaily, 0, 1)
		}
		v.Check(st.PredationRate >= 0, field+".predation_rate", st.PredationRate, "must be non-negative")
	}

	r := sp.Reproduction
	v.Check(r.EggsPerBatchMin >= 0, prefix+".reproduction.eggs_per_batch_min", r.EggsPerBatchMin, "must be non-negative")
	v.Check(r.EggsPerBatchMin <= r.EggsPerBatchMax, prefix+".reproduction.eggs_per_batch_min", r.EggsPerBatchMin, "must not exceed eggs_per_batch_max")
	v.Check(r.OvipositionEvents >= 0, prefix+".reproduction.oviposition_events", r.OvipositionEvents, "must be non-negative")

	s := sp.Sensitivity
	v.Check(s.OptimalTempMin <= s.OptimalTempMax, prefix+".sensitivity.optimal_temp_min", s.OptimalTempMin, "must not exceed optimal_temp_max")
	v.Check(s.LethalTempMin <= s.LethalTempMax, prefix+".sensitivity.lethal_temp_min", s.LethalTempMin, "must not exceed lethal_temp_max")

	if sp.Predation != nil {
		v.Check(sp.Predation.AttackRate >= 0, prefix+".predation.attack_rate", sp.Predation.AttackRate, "must be non-negative")
		v.Check(sp.Predation.HandlingTime >= 0, prefix+".predation.handling_time", sp.Predation.HandlingTime, "must be non-negative")
	}
}
