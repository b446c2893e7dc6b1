package population

import (
	"math"
	"testing"
)

func trajectoryOf(totals ...int) *Trajectory {
	t := &Trajectory{Species: "test", Days: len(totals) - 1}
	for d, n := range totals {
		t.States = append(t.States, State{Day: d, Adults: n, Total: n})
	}
	return t
}

func repeat(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSummarize(t *testing.T) {
	s := trajectoryOf(10, 40, 30, 0, 0).Summarize()

	if s.InitialPopulation != 10 || s.FinalPopulation != 0 {
		t.Errorf("initial/final = %d/%d", s.InitialPopulation, s.FinalPopulation)
	}
	if s.MaxPopulation != 40 || s.PeakDay != 1 {
		t.Errorf("peak = %d on day %d, want 40 on day 1", s.MaxPopulation, s.PeakDay)
	}
	if math.Abs(s.MeanPopulation-16) > 1e-9 || math.Abs(s.MeanAdults-16) > 1e-9 {
		t.Errorf("mean = %v, adults mean = %v; want 16", s.MeanPopulation, s.MeanAdults)
	}
	if !s.IsExtinct || s.ExtinctionDay == nil || *s.ExtinctionDay != 3 {
		t.Errorf("extinct = %v, day = %v; want true, 3", s.IsExtinct, s.ExtinctionDay)
	}
}

func TestSummarizeZeroStartIsNotExtinctionDay(t *testing.T) {
	s := trajectoryOf(0, 5, 20).Summarize()
	if s.ExtinctionDay != nil {
		t.Errorf("ExtinctionDay = %d, want nil (day 0 does not count)", *s.ExtinctionDay)
	}
}

func TestEquilibrium(t *testing.T) {
	growing := make([]int, 50)
	declining := make([]int, 50)
	for i := range growing {
		growing[i] = int(100 * math.Pow(1.1, float64(i)))
		declining[i] = 5000 - i*102
	}
	oscillating := make([]int, 50)
	for i := range oscillating {
		oscillating[i] = 1000
		if i%2 == 1 {
			oscillating[i] = 1200
		}
	}

	tests := []struct {
		name   string
		totals []int
		status string
		risk   string
	}{
		{"short", repeat(9, 100), StatusInsufficientData, ""},
		{"flat", repeat(50, 100), StatusStable, "low"},
		{"oscillating", oscillating, StatusOscillating, "low"},
		{"growing", growing, StatusGrowing, "low"},
		{"declining", declining, StatusDeclining, "high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eq := trajectoryOf(tt.totals...).Equilibrium()
			if eq.Status != tt.status {
				t.Errorf("status = %s (cv %.3f), want %s", eq.Status, eq.CoefficientOfVariation, tt.status)
			}
			if tt.risk != "" && eq.ExtinctionRisk != tt.risk {
				t.Errorf("risk = %s, want %s", eq.ExtinctionRisk, tt.risk)
			}
		})
	}
}

func TestPredatorPreyStatistics(t *testing.T) {
	traj := trajectoryOf(100, 150, 50)
	if st := traj.PredatorPreyStatistics(); st.ReductionPercent != nil || st.PreyPeak != 150 {
		t.Errorf("single-species stats = %+v", st)
	}

	traj.Predator = "pred"
	traj.PredatorStates = []PredatorState{
		{Day: 0, Total: 10},
		{Day: 1, Total: 30, PreyConsumed: 4},
		{Day: 2, Total: 20, PreyConsumed: 6},
	}
	st := traj.PredatorPreyStatistics()
	if st.PredatorPeak != 30 || st.PredatorPeakDay != 1 || st.PreyConsumed != 10 {
		t.Errorf("predator stats = %+v", st)
	}
	if st.ReductionPercent == nil || math.Abs(*st.ReductionPercent-50) > 1e-9 {
		t.Errorf("reduction = %v, want 50", st.ReductionPercent)
	}
}

func TestComparePredation(t *testing.T) {
	with := trajectoryOf(100, 40)
	without := trajectoryOf(100, 160)
	got := ComparePredation(with, without)
	if got.PreyReduction != 120 || math.Abs(got.ReductionPercent-75) > 1e-9 {
		t.Errorf("ComparePredation = %+v, want 120 / 75%%", got)
	}
	if got := ComparePredation(trajectoryOf(0), trajectoryOf(0)); got.ReductionPercent != 0 {
		t.Errorf("empty baseline percent = %v, want 0", got.ReductionPercent)
	}
}
