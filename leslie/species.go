package leslie

import (
	"fmt"
	"math"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/simerr"
)

// Fallbacks for stage parameters a species leaves unset.
const (
	DefaultEggSurvival   = 0.8
	DefaultLarvaSurvival = 0.8
	DefaultPupaSurvival  = 0.9
	DefaultAdultDaily    = 0.95
	DefaultAdultLifespan = 22.0
	FemaleFraction       = 0.5
)

// DailyTransition converts a whole-stage survival S over a mean duration
// of D days into the daily probability of surviving and leaving the stage:
// S^(1/D) · (1/D). Durations below one day are treated as one day.
func DailyTransition(survival, days float64) float64 {
	if !(days >= 1) {
		days = 1
	}
	return math.Pow(survival, 1/days) / days
}

// FromSpecies builds the four-stage egg/larva/pupa/adult matrix. Larval
// instars collapse into one stage whose duration is the sum of the instar
// means and whose survival is the mean instar survival.
func FromSpecies(sp *config.SpeciesConfig) (*Matrix, error) {
	egg, okEgg := sp.Stage("egg")
	pupa, okPupa := sp.Stage("pupa")
	larvae := sp.StagesMatching("larva")
	if !okEgg || !okPupa || len(larvae) == 0 {
		return nil, fmt.Errorf("species %s: %w", sp.ID,
			simerr.Configuration("species."+sp.ID+".stages", nil, "egg, larval and pupa stages are required"))
	}

	var larvaSurvival, larvaDays float64
	for _, st := range larvae {
		larvaSurvival += st.Survival(DefaultLarvaSurvival)
		larvaDays += st.MeanDuration()
	}
	larvaSurvival /= float64(len(larvae))

	survival := []float64{
		DailyTransition(survivalToNext(egg, DefaultEggSurvival), egg.MeanDuration()),
		DailyTransition(larvaSurvival, larvaDays),
		DailyTransition(survivalToNext(pupa, DefaultPupaSurvival), pupa.MeanDuration()),
	}

	adultDaily := DefaultAdultDaily
	lifespan := DefaultAdultLifespan
	if adults := sp.StagesMatching("adult"); len(adults) > 0 {
		if adults[0].SurvivalDaily != nil {
			adultDaily = *adults[0].SurvivalDaily
		}
		lifespan = adults[0].MeanDuration()
	}
	if lifespan < 1 {
		lifespan = 1
	}

	r := sp.Reproduction
	daily := r.MeanEggsPerBatch() * float64(r.OvipositionEvents) * FemaleFraction * adultDaily / lifespan
	fecundity := []float64{0, 0, 0, daily}

	m, err := New(fecundity, survival, adultDaily, DefaultStageNames)
	if err != nil {
		return nil, fmt.Errorf("species %s: %w: %w", sp.ID, simerr.ErrConfiguration, err)
	}
	return m, nil
}

func survivalToNext(st config.StageConfig, fallback float64) float64 {
	if st.SurvivalToNext != nil {
		return *st.SurvivalToNext
	}
	return fallback
}
