// Package components defines ECS components for the agent-based model.
package components

// Kind separates disease vectors from their predators.
type Kind uint8

const (
	KindVector Kind = iota
	KindPredator
)

func (k Kind) String() string {
	if k == KindPredator {
		return "predator"
	}
	return "vector"
}

// DeathCause records why an agent stopped.
type DeathCause uint8

const (
	CauseNone DeathCause = iota
	CausePredated
	CauseEnergyDepletion
	CauseDecided // the agent's own DIE action
)

var causeNames = []string{"", "predated", "energy_depletion", "decided"}

func (c DeathCause) String() string {
	if int(c) < len(causeNames) {
		return causeNames[c]
	}
	return "unknown"
}

// Identity is fixed at spawn.
type Identity struct {
	ID      string // stable fact key for the rule engine
	Index   int    // spawn order within its cohort
	Species string
	Kind    Kind
}

// Vitals is the mutable life state of an agent.
// Energy is clamped to [0, max_energy].
type Vitals struct {
	Stage      string
	Age        int // days
	Energy     float64
	Reproduced bool
	Alive      bool
	Cause      DeathCause
	DeathDay   int
}

// VectorLedger accumulates a vector's lifetime activity.
type VectorLedger struct {
	EggsLaid   int
	BloodMeals int
}

// PredatorLedger accumulates a predator's lifetime activity.
type PredatorLedger struct {
	PreyConsumed int
	Hunts        int
	Molts        int
}
