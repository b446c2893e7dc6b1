package population

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/vectorsim/leslie"
	"github.com/pthm-cable/vectorsim/simerr"
)

// State is one committed day of a population trajectory. States are plain
// values and are never modified after commit.
type State struct {
	Day              int     `csv:"day" json:"day"`
	Eggs             int     `csv:"eggs" json:"eggs"`
	Larvae           int     `csv:"larvae" json:"larvae"`
	Pupae            int     `csv:"pupae" json:"pupae"`
	Adults           int     `csv:"adults" json:"adults"`
	Total            int     `csv:"total" json:"total"`
	Temperature      float64 `csv:"temperature" json:"temperature"`
	Humidity         float64 `csv:"humidity" json:"humidity"`
	CarryingCapacity int     `csv:"carrying_capacity" json:"carrying_capacity"`
}

// Vector returns the stage counts in matrix order.
func (s State) Vector() []float64 {
	return []float64{float64(s.Eggs), float64(s.Larvae), float64(s.Pupae), float64(s.Adults)}
}

// LogValue implements slog.LogValuer for structured logging.
func (s State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("day", s.Day),
		slog.Int("eggs", s.Eggs),
		slog.Int("larvae", s.Larvae),
		slog.Int("pupae", s.Pupae),
		slog.Int("adults", s.Adults),
		slog.Int("total", s.Total),
	)
}

// PredatorState is one committed day of the coupled predator population.
type PredatorState struct {
	Day          int `csv:"day" json:"day"`
	Eggs         int `csv:"eggs" json:"eggs"`
	Larvae       int `csv:"larvae" json:"larvae"`
	Pupae        int `csv:"pupae" json:"pupae"`
	Adults       int `csv:"adults" json:"adults"`
	Total        int `csv:"total" json:"total"`
	PreyConsumed int `csv:"prey_consumed" json:"prey_consumed"`
}

// Vector returns the stage counts in matrix order.
func (s PredatorState) Vector() []float64 {
	return []float64{float64(s.Eggs), float64(s.Larvae), float64(s.Pupae), float64(s.Adults)}
}

// Trajectory is the full output of a run: Days+1 prey states and, for
// coupled runs, the same number of predator states.
type Trajectory struct {
	Species        string          `json:"species"`
	Predator       string          `json:"predator,omitempty"`
	Days           int             `json:"days"`
	States         []State         `json:"states"`
	PredatorStates []PredatorState `json:"predator_states,omitempty"`
	ExtinctionDay  *int            `json:"extinction_day,omitempty"`
}

// HasPredators reports whether the run was coupled.
func (t *Trajectory) HasPredators() bool { return len(t.PredatorStates) > 0 }

// State returns the committed state for day.
func (t *Trajectory) State(day int) (State, error) {
	if day < 0 || day >= len(t.States) {
		return State{}, fmt.Errorf("day %d outside trajectory [0, %d]: %w", day, len(t.States)-1, simerr.ErrIndexOutOfRange)
	}
	return t.States[day], nil
}

// Totals returns the prey total per day.
func (t *Trajectory) Totals() []int {
	out := make([]int, len(t.States))
	for i, s := range t.States {
		out[i] = s.Total
	}
	return out
}

// PredatorTotals returns the predator total per day.
func (t *Trajectory) PredatorTotals() []int {
	out := make([]int, len(t.PredatorStates))
	for i, s := range t.PredatorStates {
		out[i] = s.Total
	}
	return out
}

// Stage returns one stage's series by name (egg, larva, pupa, adult; plural
// forms are accepted).
func (t *Trajectory) Stage(name string) ([]int, error) {
	idx, ok := stageIndex(name)
	if !ok {
		return nil, simerr.Validation("stage", name, "must be one of eggs, larvae, pupae, adults")
	}
	out := make([]int, len(t.States))
	for i, s := range t.States {
		out[i] = int(s.Vector()[idx])
	}
	return out, nil
}

func stageIndex(name string) (int, bool) {
	switch name {
	case "egg", "eggs":
		return leslie.Egg, true
	case "larva", "larvae":
		return leslie.Larva, true
	case "pupa", "pupae":
		return leslie.Pupa, true
	case "adult", "adults":
		return leslie.Adult, true
	}
	return 0, false
}

// Peak returns the day and size of the largest prey total. Ties resolve to
// the earliest day.
func (t *Trajectory) Peak() (day, total int) {
	for i, s := range t.States {
		if i == 0 || s.Total > total {
			day, total = s.Day, s.Total
		}
	}
	return day, total
}

// IsExtinct reports whether the final prey total is below threshold.
func (t *Trajectory) IsExtinct(threshold int) bool {
	if len(t.States) == 0 {
		return true
	}
	return t.States[len(t.States)-1].Total < threshold
}
