package telemetry

import (
	"log/slog"

	"github.com/pthm-cable/vectorsim/components"
	"github.com/pthm-cable/vectorsim/rules"
)

// DayStats is one day of the agent-based model.
type DayStats struct {
	Day            int `csv:"day" json:"day"`
	VectorsAlive   int `csv:"vectors_alive" json:"vectors_alive"`
	PredatorsAlive int `csv:"predators_alive" json:"predators_alive"`
	EggsLaid       int `csv:"eggs_laid" json:"eggs_laid"`
	PreyConsumed   int `csv:"prey_consumed" json:"prey_consumed"`

	VectorOviposit int `csv:"vector_oviposit" json:"vector_oviposit"`
	VectorFeed     int `csv:"vector_feed" json:"vector_feed"`
	VectorRest     int `csv:"vector_rest" json:"vector_rest"`
	VectorDie      int `csv:"vector_die" json:"vector_die"`
	VectorOther    int `csv:"vector_other" json:"vector_other"`

	PredatorHunt  int `csv:"predator_hunt" json:"predator_hunt"`
	PredatorGrow  int `csv:"predator_grow" json:"predator_grow"`
	PredatorRest  int `csv:"predator_rest" json:"predator_rest"`
	PredatorDie   int `csv:"predator_die" json:"predator_die"`
	PredatorOther int `csv:"predator_other" json:"predator_other"`

	DeathsPredated        int `csv:"deaths_predated" json:"deaths_predated"`
	DeathsEnergyDepletion int `csv:"deaths_energy_depletion" json:"deaths_energy_depletion"`
	DeathsDecided         int `csv:"deaths_decided" json:"deaths_decided"`

	VectorEnergyMean   float64 `csv:"vector_energy_mean" json:"vector_energy_mean"`
	VectorEnergyP10    float64 `csv:"vector_energy_p10" json:"vector_energy_p10"`
	VectorEnergyP50    float64 `csv:"vector_energy_p50" json:"vector_energy_p50"`
	VectorEnergyP90    float64 `csv:"vector_energy_p90" json:"vector_energy_p90"`
	PredatorEnergyMean float64 `csv:"predator_energy_mean" json:"predator_energy_mean"`
}

// VectorActions returns the day's vector action tallies by name.
func (s DayStats) VectorActions() map[string]int {
	return nonZero(map[string]int{
		rules.ActionOviposit.String(): s.VectorOviposit,
		rules.ActionFeed.String():     s.VectorFeed,
		rules.ActionRest.String():     s.VectorRest,
		rules.ActionDie.String():      s.VectorDie,
		"other":                       s.VectorOther,
	})
}

// PredatorActions returns the day's predator action tallies by name.
func (s DayStats) PredatorActions() map[string]int {
	return nonZero(map[string]int{
		rules.ActionHunt.String(): s.PredatorHunt,
		rules.ActionGrow.String(): s.PredatorGrow,
		rules.ActionRest.String(): s.PredatorRest,
		rules.ActionDie.String():  s.PredatorDie,
		"other":                   s.PredatorOther,
	})
}

func nonZero(m map[string]int) map[string]int {
	for k, v := range m {
		if v == 0 {
			delete(m, k)
		}
	}
	return m
}

// LogValue implements slog.LogValuer for structured logging.
func (s DayStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("day", s.Day),
		slog.Int("vectors", s.VectorsAlive),
		slog.Int("predators", s.PredatorsAlive),
		slog.Int("eggs", s.EggsLaid),
		slog.Int("prey", s.PreyConsumed),
		slog.Float64("vector_energy", s.VectorEnergyMean),
	)
}

// Collector accumulates agent events within a day and produces DayStats.
type Collector struct {
	current DayStats

	totalEggs int
	totalPrey int
	deaths    map[components.DeathCause]int
}

// NewCollector creates a new daily stats collector.
func NewCollector() *Collector {
	return &Collector{deaths: make(map[components.DeathCause]int)}
}

// RecordAction tallies an executed action.
func (c *Collector) RecordAction(kind components.Kind, a rules.Action) {
	s := &c.current
	if kind == components.KindPredator {
		switch a {
		case rules.ActionHunt:
			s.PredatorHunt++
		case rules.ActionGrow:
			s.PredatorGrow++
		case rules.ActionRest:
			s.PredatorRest++
		case rules.ActionDie:
			s.PredatorDie++
		default:
			s.PredatorOther++
		}
		return
	}
	switch a {
	case rules.ActionOviposit:
		s.VectorOviposit++
	case rules.ActionFeed:
		s.VectorFeed++
	case rules.ActionRest:
		s.VectorRest++
	case rules.ActionDie:
		s.VectorDie++
	default:
		s.VectorOther++
	}
}

// RecordEggs records eggs laid by one oviposition.
func (c *Collector) RecordEggs(n int) {
	c.current.EggsLaid += n
	c.totalEggs += n
}

// RecordPrey records prey taken by one hunt.
func (c *Collector) RecordPrey(n int) {
	c.current.PreyConsumed += n
	c.totalPrey += n
}

// RecordDeath records a death.
func (c *Collector) RecordDeath(cause components.DeathCause) {
	c.deaths[cause]++
	switch cause {
	case components.CausePredated:
		c.current.DeathsPredated++
	case components.CauseEnergyDepletion:
		c.current.DeathsEnergyDepletion++
	case components.CauseDecided:
		c.current.DeathsDecided++
	}
}

// Flush produces the day's stats from the end-of-day census and resets the
// daily counters. Alive counts are the lengths of the energy slices.
func (c *Collector) Flush(day int, vectorEnergies, predatorEnergies []float64) DayStats {
	s := c.current
	s.Day = day
	s.VectorsAlive = len(vectorEnergies)
	s.PredatorsAlive = len(predatorEnergies)

	s.VectorEnergyMean, s.VectorEnergyP10, s.VectorEnergyP50, s.VectorEnergyP90 = ComputeEnergyStats(vectorEnergies)
	s.PredatorEnergyMean, _, _, _ = ComputeEnergyStats(predatorEnergies)

	c.current = DayStats{}
	return s
}

// TotalEggs returns eggs laid since construction.
func (c *Collector) TotalEggs() int { return c.totalEggs }

// TotalPrey returns prey consumed since construction.
func (c *Collector) TotalPrey() int { return c.totalPrey }

// Deaths returns cumulative deaths by cause name.
func (c *Collector) Deaths() map[string]int {
	out := make(map[string]int, len(c.deaths))
	for cause, n := range c.deaths {
		out[cause.String()] = n
	}
	return out
}
