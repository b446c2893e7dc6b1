package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for a simulated day.
const (
	PhaseEnvironment = "environment" // condition lookup and rule assertions
	PhaseProject     = "project"
	PhaseModulate    = "modulate"
	PhasePredation   = "predation"
	PhaseRegulate    = "regulate"
	PhasePerturb     = "perturb"
	PhaseCommit      = "commit"

	PhaseDecide = "decide" // agent perceive + decide
	PhaseAct    = "act"    // agent act + age
	PhaseCensus = "census"
)

// Phases lists every phase in pipeline order.
var Phases = []string{
	PhaseEnvironment, PhaseProject, PhaseModulate, PhasePredation,
	PhaseRegulate, PhasePerturb, PhaseCommit,
	PhaseDecide, PhaseAct, PhaseCensus,
}

// PerfCollector accumulates per-phase timing over every day of a run. A nil
// collector ignores every call.
type PerfCollector struct {
	days   int
	total  time.Duration
	lo, hi time.Duration
	phases map[string]time.Duration

	dayStart   time.Time
	phaseStart time.Time
	phase      string
}

// NewPerfCollector creates an empty collector.
func NewPerfCollector() *PerfCollector {
	return &PerfCollector{phases: make(map[string]time.Duration)}
}

// StartStep begins timing a simulated day.
func (p *PerfCollector) StartStep() {
	if p == nil {
		return
	}
	p.dayStart = time.Now()
	p.phase = ""
}

// StartPhase closes the running phase, if any, and opens phase.
func (p *PerfCollector) StartPhase(phase string) {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = phase
}

// EndStep closes the day and adds it to the totals.
func (p *PerfCollector) EndStep() {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.phase = ""

	d := now.Sub(p.dayStart)
	if p.days == 0 || d < p.lo {
		p.lo = d
	}
	p.hi = max(p.hi, d)
	p.total += d
	p.days++
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase != "" {
		p.phases[p.phase] += now.Sub(p.phaseStart)
	}
}

// Days returns how many days have been timed.
func (p *PerfCollector) Days() int {
	if p == nil {
		return 0
	}
	return p.days
}

// PerfStats holds per-day timing averaged over a run.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64 // share of the mean day

	StepsPerSecond float64
}

// Stats averages the timed days.
func (p *PerfCollector) Stats() PerfStats {
	st := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p == nil || p.days == 0 {
		return st
	}

	n := time.Duration(p.days)
	st.AvgStepDuration = p.total / n
	st.MinStepDuration = p.lo
	st.MaxStepDuration = p.hi
	for phase, sum := range p.phases {
		st.PhaseAvg[phase] = sum / n
		if p.total > 0 {
			st.PhasePct[phase] = float64(sum) / float64(p.total) * 100
		}
	}
	if st.AvgStepDuration > 0 {
		st.StepsPerSecond = float64(time.Second) / float64(st.AvgStepDuration)
	}
	return st
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Day            int     `csv:"day"`
	AvgStepUS      int64   `csv:"avg_step_us"`
	MinStepUS      int64   `csv:"min_step_us"`
	MaxStepUS      int64   `csv:"max_step_us"`
	StepsPerSec    float64 `csv:"steps_per_sec"`
	EnvironmentPct float64 `csv:"environment_pct"`
	ProjectPct     float64 `csv:"project_pct"`
	ModulatePct    float64 `csv:"modulate_pct"`
	PredationPct   float64 `csv:"predation_pct"`
	RegulatePct    float64 `csv:"regulate_pct"`
	PerturbPct     float64 `csv:"perturb_pct"`
	CommitPct      float64 `csv:"commit_pct"`
	DecidePct      float64 `csv:"decide_pct"`
	ActPct         float64 `csv:"act_pct"`
	CensusPct      float64 `csv:"census_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(day int) PerfStatsCSV {
	return PerfStatsCSV{
		Day:            day,
		AvgStepUS:      s.AvgStepDuration.Microseconds(),
		MinStepUS:      s.MinStepDuration.Microseconds(),
		MaxStepUS:      s.MaxStepDuration.Microseconds(),
		StepsPerSec:    s.StepsPerSecond,
		EnvironmentPct: s.PhasePct[PhaseEnvironment],
		ProjectPct:     s.PhasePct[PhaseProject],
		ModulatePct:    s.PhasePct[PhaseModulate],
		PredationPct:   s.PhasePct[PhasePredation],
		RegulatePct:    s.PhasePct[PhaseRegulate],
		PerturbPct:     s.PhasePct[PhasePerturb],
		CommitPct:      s.PhasePct[PhaseCommit],
		DecidePct:      s.PhasePct[PhaseDecide],
		ActPct:         s.PhasePct[PhaseAct],
		CensusPct:      s.PhasePct[PhaseCensus],
	}
}
