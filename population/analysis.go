package population

import (
	"context"
	"log/slog"

	"github.com/pthm-cable/vectorsim/rules"
	"github.com/pthm-cable/vectorsim/telemetry"
)

// ExtinctionThreshold is the final total below which a run counts as extinct.
const ExtinctionThreshold = 10

// Summary condenses a trajectory.
type Summary struct {
	InitialPopulation int     `json:"initial_population"`
	FinalPopulation   int     `json:"final_population"`
	MeanPopulation    float64 `json:"mean_population"`
	StdPopulation     float64 `json:"std_population"`
	MinPopulation     int     `json:"min_population"`
	MaxPopulation     int     `json:"max_population"`
	PeakDay           int     `json:"peak_day"`

	MeanEggs   float64 `json:"mean_eggs"`
	MeanLarvae float64 `json:"mean_larvae"`
	MeanPupae  float64 `json:"mean_pupae"`
	MeanAdults float64 `json:"mean_adults"`

	IsExtinct     bool `json:"is_extinct"`
	ExtinctionDay *int `json:"extinction_day,omitempty"` // first day > 0 with total 0
}

// LogValue implements slog.LogValuer for structured logging.
func (s Summary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("initial", s.InitialPopulation),
		slog.Int("final", s.FinalPopulation),
		slog.Int("peak", s.MaxPopulation),
		slog.Int("peak_day", s.PeakDay),
		slog.Float64("mean", s.MeanPopulation),
		slog.Bool("extinct", s.IsExtinct),
	}
	if s.ExtinctionDay != nil {
		attrs = append(attrs, slog.Int("extinction_day", *s.ExtinctionDay))
	}
	return slog.GroupValue(attrs...)
}

// Summarize computes the trajectory summary.
func (t *Trajectory) Summarize() Summary {
	if len(t.States) == 0 {
		return Summary{IsExtinct: true}
	}
	totals := telemetry.Summarize(telemetry.Ints(t.Totals()))
	peakDay, peak := t.Peak()

	s := Summary{
		InitialPopulation: t.States[0].Total,
		FinalPopulation:   t.States[len(t.States)-1].Total,
		MeanPopulation:    totals.Mean,
		StdPopulation:     totals.Std,
		MinPopulation:     int(totals.Min),
		MaxPopulation:     peak,
		PeakDay:           peakDay,
		IsExtinct:         t.IsExtinct(ExtinctionThreshold),
	}

	var eggs, larvae, pupae, adults float64
	for _, st := range t.States {
		eggs += float64(st.Eggs)
		larvae += float64(st.Larvae)
		pupae += float64(st.Pupae)
		adults += float64(st.Adults)
		if st.Day > 0 && st.Total == 0 && s.ExtinctionDay == nil {
			d := st.Day
			s.ExtinctionDay = &d
		}
	}
	n := float64(len(t.States))
	s.MeanEggs, s.MeanLarvae, s.MeanPupae, s.MeanAdults = eggs/n, larvae/n, pupae/n, adults/n
	return s
}

// PredatorPreyStats summarizes a coupled run. Predator fields are zero and
// ReductionPercent nil when the run had no predators.
type PredatorPreyStats struct {
	PreyInitial float64 `json:"prey_initial"`
	PreyFinal   float64 `json:"prey_final"`
	PreyPeak    float64 `json:"prey_peak"`
	PreyMean    float64 `json:"prey_mean"`
	PreyStd     float64 `json:"prey_std"`
	PreyPeakDay int     `json:"prey_peak_day"`

	PredatorInitial float64 `json:"predator_initial"`
	PredatorFinal   float64 `json:"predator_final"`
	PredatorPeak    float64 `json:"predator_peak"`
	PredatorMean    float64 `json:"predator_mean"`
	PredatorStd     float64 `json:"predator_std"`
	PredatorPeakDay int     `json:"predator_peak_day"`
	PreyConsumed    int     `json:"prey_consumed"`

	// (1 − final/initial)·100, only when predators are present and the
	// initial prey total is positive.
	ReductionPercent *float64 `json:"predation_reduction_percent,omitempty"`
}

// PredatorPreyStatistics computes prey and predator statistics.
func (t *Trajectory) PredatorPreyStatistics() PredatorPreyStats {
	var st PredatorPreyStats
	prey := t.Totals()
	if len(prey) == 0 {
		return st
	}
	ps := telemetry.Summarize(telemetry.Ints(prey))
	st.PreyInitial = float64(prey[0])
	st.PreyFinal = float64(prey[len(prey)-1])
	st.PreyPeak = ps.Max
	st.PreyMean = ps.Mean
	st.PreyStd = ps.Std
	st.PreyPeakDay, _ = t.Peak()

	if !t.HasPredators() {
		return st
	}
	pred := t.PredatorTotals()
	pd := telemetry.Summarize(telemetry.Ints(pred))
	st.PredatorInitial = float64(pred[0])
	st.PredatorFinal = float64(pred[len(pred)-1])
	st.PredatorPeak = pd.Max
	st.PredatorMean = pd.Mean
	st.PredatorStd = pd.Std
	for i, v := range pred {
		if float64(v) > float64(pred[st.PredatorPeakDay]) {
			st.PredatorPeakDay = i
		}
	}
	for _, s := range t.PredatorStates {
		st.PreyConsumed += s.PreyConsumed
	}
	if st.PreyInitial > 0 {
		r := (1 - st.PreyFinal/st.PreyInitial) * 100
		st.ReductionPercent = &r
	}
	return st
}

// Equilibrium status values.
const (
	StatusInsufficientData = "insufficient_data"
	StatusStable           = "stable"
	StatusOscillating      = "oscillating"
	StatusGrowing          = "growing"
	StatusDeclining        = "declining"
)

// Equilibrium describes the tail of a trajectory.
type Equilibrium struct {
	Status                 string  `json:"status"`
	Days                   int     `json:"days"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	MeanFinal              float64 `json:"mean_final"`
	PeakPopulation         int     `json:"peak_population"`
	ExtinctionRisk         string  `json:"extinction_risk"`
}

// Equilibrium classifies the last 20% of the prey trajectory: CV < 0.05 is
// stable, < 0.15 oscillating, otherwise growing or declining by the
// segment's endpoints. Fewer than 10 days is insufficient.
func (t *Trajectory) Equilibrium() Equilibrium {
	totals := t.Totals()
	if len(totals) < 10 {
		return Equilibrium{Status: StatusInsufficientData, Days: len(totals)}
	}

	segment := telemetry.Ints(totals[len(totals)*8/10:])
	mean := telemetry.Summarize(segment).Mean
	cv := telemetry.CoefficientOfVariation(segment, 1)

	status := StatusDeclining
	switch {
	case cv < 0.05:
		status = StatusStable
	case cv < 0.15:
		status = StatusOscillating
	case segment[len(segment)-1] > segment[0]:
		status = StatusGrowing
	}

	risk := "low"
	if segment[len(segment)-1] < ExtinctionThreshold {
		risk = "high"
	}
	_, peak := t.Peak()
	return Equilibrium{
		Status:                 status,
		Days:                   len(totals),
		CoefficientOfVariation: cv,
		MeanFinal:              mean,
		PeakPopulation:         peak,
		ExtinctionRisk:         risk,
	}
}

// PredationImpact compares final prey totals with and without predators.
type PredationImpact struct {
	PreyReduction    int     `json:"prey_reduction"`
	ReductionPercent float64 `json:"reduction_percent"`
}

// ComparePredation measures how much predators reduced the final prey
// total. The percentage is zero when the predator-free run ended empty.
func ComparePredation(with, without *Trajectory) PredationImpact {
	fw := final(with)
	fo := final(without)
	impact := PredationImpact{PreyReduction: fo - fw}
	if fo > 0 {
		impact.ReductionPercent = float64(fo-fw) / float64(fo) * 100
	}
	return impact
}

func final(t *Trajectory) int {
	if t == nil || len(t.States) == 0 {
		return 0
	}
	return t.States[len(t.States)-1].Total
}

// Outlook is the rule engine's view of the latest committed day.
type Outlook struct {
	Trend       rules.Trend `json:"-"`
	Risk        rules.Risk  `json:"-"`
	TrendName   string      `json:"trend"`
	RiskName    string      `json:"extinction_risk"`
	Equilibrium bool        `json:"ecological_equilibrium"`
}

// Outlook queries trend, extinction risk and equilibrium for the latest day.
// Unanswered queries report unknown / false.
func (m *Model) Outlook(ctx context.Context) Outlook {
	s, _ := m.Current()
	trend, _ := m.rules.PopulationTrend(ctx, m.species.ID, s.Day)
	risk, _ := m.rules.ExtinctionRisk(ctx, m.species.ID, s.Day)
	eq, _ := m.rules.EcologicalEquilibrium(ctx, s.Day)
	return Outlook{
		Trend:       trend,
		Risk:        risk,
		TrendName:   trend.String(),
		RiskName:    risk.String(),
		Equilibrium: eq,
	}
}
