package agents

import (
	"log/slog"

	"github.com/pthm-cable/vectorsim/telemetry"
)

// AgentRecord is the terminal census row for one agent.
type AgentRecord struct {
	ID       string  `csv:"id" json:"id"`
	Species  string  `csv:"species" json:"species"`
	Kind     string  `csv:"kind" json:"kind"`
	Stage    string  `csv:"stage" json:"stage"`
	Age      int     `csv:"age" json:"age"`
	Energy   float64 `csv:"energy" json:"energy"`
	Alive    bool    `csv:"alive" json:"alive"`
	Cause    string  `csv:"death_cause" json:"death_cause,omitempty"`
	DeathDay int     `csv:"death_day" json:"death_day,omitempty"`

	EggsLaid     int `csv:"eggs_laid" json:"eggs_laid,omitempty"`
	BloodMeals   int `csv:"blood_meals" json:"blood_meals,omitempty"`
	PreyConsumed int `csv:"prey_consumed" json:"prey_consumed,omitempty"`
	Hunts        int `csv:"hunts" json:"hunts,omitempty"`
	Molts        int `csv:"molts" json:"molts,omitempty"`
}

func record(a Agent) AgentRecord {
	v := a.Vitals
	r := AgentRecord{
		ID:      a.Identity.ID,
		Species: a.Identity.Species,
		Kind:    a.Identity.Kind.String(),
		Stage:   v.Stage,
		Age:     v.Age,
		Energy:  v.Energy,
		Alive:   v.Alive,
	}
	if !v.Alive {
		r.Cause = v.Cause.String()
		r.DeathDay = v.DeathDay
	}
	if a.Vector != nil {
		r.EggsLaid = a.Vector.EggsLaid
		r.BloodMeals = a.Vector.BloodMeals
	}
	if a.Predator != nil {
		r.PreyConsumed = a.Predator.PreyConsumed
		r.Hunts = a.Predator.Hunts
		r.Molts = a.Predator.Molts
	}
	return r
}

// Result is the outcome of an agent run: daily counters plus the terminal
// census.
type Result struct {
	RunID           string `json:"run_id"`
	VectorSpecies   string `json:"vector_species"`
	PredatorSpecies string `json:"predator_species,omitempty"`

	InitialVectors   int `json:"initial_vectors"`
	InitialPredators int `json:"initial_predators"`
	FinalVectors     int `json:"final_vectors"`
	FinalPredators   int `json:"final_predators"`
	TotalEggs        int `json:"total_eggs"`
	TotalPrey        int `json:"total_prey_consumed"`

	Deaths map[string]int       `json:"deaths"`
	Daily  []telemetry.DayStats `json:"daily"`
	Census []AgentRecord        `json:"-"`
}

// Result snapshots the engine's state.
func (e *Engine) Result() *Result {
	r := &Result{
		RunID:            e.runID.String(),
		VectorSpecies:    e.vectorSpecies,
		PredatorSpecies:  e.predatorSpecies,
		InitialVectors:   len(e.vectors),
		InitialPredators: len(e.predators),
		FinalVectors:     countAlive(e.vectors),
		FinalPredators:   countAlive(e.predators),
		TotalEggs:        e.collector.TotalEggs(),
		TotalPrey:        e.collector.TotalPrey(),
		Deaths:           e.collector.Deaths(),
		Daily:            append([]telemetry.DayStats(nil), e.daily...),
		Census:           make([]AgentRecord, 0, len(e.vectors)+len(e.predators)),
	}
	for _, a := range e.vectors {
		r.Census = append(r.Census, record(a))
	}
	for _, a := range e.predators {
		r.Census = append(r.Census, record(a))
	}
	return r
}

// Statistics condenses an agent run.
type Statistics struct {
	PeakVectors   int     `json:"peak_vectors"`
	PeakDay       int     `json:"peak_day"`
	FinalVectors  int     `json:"final_vectors"`
	MeanVectors   float64 `json:"mean_vectors"`
	ExtinctionDay *int    `json:"extinction_day,omitempty"` // first day > 0 with no vectors

	PeakPredators  int     `json:"peak_predators"`
	FinalPredators int     `json:"final_predators"`
	MeanPredators  float64 `json:"mean_predators"`

	TotalEggs            int            `json:"total_eggs"`
	EggsPerVector        float64        `json:"eggs_per_vector"`
	VectorSurvivalRate   float64        `json:"vector_survival_rate"`
	PredatorSurvivalRate float64        `json:"predator_survival_rate"`
	TotalPreyConsumed    int            `json:"total_prey_consumed"`
	PreyPerPredator      float64        `json:"prey_per_predator"`
	DeathsByCause        map[string]int `json:"deaths_by_cause"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s Statistics) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("peak_vectors", s.PeakVectors),
		slog.Int("peak_day", s.PeakDay),
		slog.Int("final_vectors", s.FinalVectors),
		slog.Int("final_predators", s.FinalPredators),
		slog.Int("eggs", s.TotalEggs),
		slog.Int("prey", s.TotalPreyConsumed),
		slog.Float64("vector_survival", s.VectorSurvivalRate),
	}
	if s.ExtinctionDay != nil {
		attrs = append(attrs, slog.Int("extinction_day", *s.ExtinctionDay))
	}
	return slog.GroupValue(attrs...)
}

// Statistics computes run-level statistics from the daily counters.
func (r *Result) Statistics() Statistics {
	s := Statistics{
		FinalVectors:      r.FinalVectors,
		FinalPredators:    r.FinalPredators,
		TotalEggs:         r.TotalEggs,
		TotalPreyConsumed: r.TotalPrey,
		DeathsByCause:     r.Deaths,
	}
	if r.InitialVectors > 0 {
		s.EggsPerVector = float64(r.TotalEggs) / float64(r.InitialVectors)
		s.VectorSurvivalRate = float64(r.FinalVectors) / float64(r.InitialVectors)
	}
	if r.InitialPredators > 0 {
		s.PreyPerPredator = float64(r.TotalPrey) / float64(r.InitialPredators)
		s.PredatorSurvivalRate = float64(r.FinalPredators) / float64(r.InitialPredators)
	}
	if len(r.Daily) == 0 {
		return s
	}

	vectors := make([]float64, len(r.Daily))
	predators := make([]float64, len(r.Daily))
	for i, d := range r.Daily {
		vectors[i] = float64(d.VectorsAlive)
		predators[i] = float64(d.PredatorsAlive)
		if d.VectorsAlive > s.PeakVectors {
			s.PeakVectors, s.PeakDay = d.VectorsAlive, d.Day
		}
		if d.Day > 0 && d.VectorsAlive == 0 && s.ExtinctionDay == nil {
			day := d.Day
			s.ExtinctionDay = &day
		}
	}
	vs := telemetry.Summarize(vectors)
	ps := telemetry.Summarize(predators)
	s.MeanVectors = vs.Mean
	s.MeanPredators = ps.Mean
	s.PeakPredators = int(ps.Max)
	return s
}
