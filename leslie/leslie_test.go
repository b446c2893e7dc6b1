package leslie

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/simerr"
)

func referenceMatrix(t *testing.T) *Matrix {
	t.Helper()
	m, err := New([]float64{0, 0, 0, 100}, []float64{0.7, 0.8, 0.9}, 0.95, DefaultStageNames)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestNewLayout(t *testing.T) {
	m := referenceMatrix(t)

	want := [][]float64{
		{0, 0, 0, 100},
		{0.7, 0, 0, 0},
		{0, 0.8, 0, 0},
		{0, 0, 0.9, 0.95},
	}
	for i := range want {
		for j := range want[i] {
			if got := m.At(i, j); got != want[i][j] {
				t.Errorf("At(%d, %d) = %v, want %v", i, j, got, want[i][j])
			}
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	tests := []struct {
		name      string
		fecundity []float64
		survival  []float64
		adult     float64
	}{
		{"single stage", []float64{1}, nil, 0.5},
		{"survival length", []float64{0, 0, 0, 1}, []float64{0.5, 0.5}, 0.5},
		{"survival above one", []float64{0, 0, 0, 1}, []float64{0.5, 1.5, 0.5}, 0.5},
		{"negative fecundity", []float64{0, 0, 0, -1}, []float64{0.5, 0.5, 0.5}, 0.5},
		{"adult survival", []float64{0, 0, 0, 1}, []float64{0.5, 0.5, 0.5}, 1.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fecundity, tt.survival, tt.adult, nil)
			if !errors.Is(err, simerr.ErrValidation) {
				t.Errorf("New() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestProjectReference(t *testing.T) {
	m := referenceMatrix(t)
	traj, err := m.Project([]float64{1000, 500, 200, 100}, 10)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(traj) != 11 {
		t.Fatalf("len(traj) = %d, want 11", len(traj))
	}

	// Hand-computed: x1 = [100·100, 0.7·1000, 0.8·500, 0.9·200 + 0.95·100]
	step1 := []float64{10000, 700, 400, 275}
	step2 := []float64{27500, 7000, 560, 621.25}
	step10 := []float64{137332354.74080732, 28272199.405068554, 5746358.383215625, 3822879.7120314194}

	check := func(day int, want []float64) {
		for i, w := range want {
			if math.Abs(traj[day][i]-w) > 1e-6*math.Max(1, w) {
				t.Errorf("traj[%d][%d] = %v, want %v", day, i, traj[day][i], w)
			}
		}
	}
	check(1, step1)
	check(2, step2)
	check(10, step10)
}

func TestProjectValidation(t *testing.T) {
	m := referenceMatrix(t)
	if _, err := m.Project([]float64{1, 2, 3}, 2); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("Project(short vector) error = %v, want ErrValidation", err)
	}
	if _, err := m.Project([]float64{1, 2, 3, 4}, -1); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("Project(steps=-1) error = %v, want ErrValidation", err)
	}
	traj, err := m.Project([]float64{1, 2, 3, 4}, 0)
	if err != nil || len(traj) != 1 {
		t.Errorf("Project(steps=0) = %v, %v; want one row", traj, err)
	}
}

func TestEigenanalysis(t *testing.T) {
	m := referenceMatrix(t)
	a, err := m.Eigenanalysis()
	if err != nil {
		t.Fatalf("Eigenanalysis() error = %v", err)
	}

	// λ solves λ⁴ − 0.95λ³ − 100·0.7·0.8·0.9 = 0
	l := a.Lambda
	if res := math.Pow(l, 4) - 0.95*math.Pow(l, 3) - 50.4; math.Abs(res) > 1e-8 {
		t.Errorf("characteristic residual at λ=%v = %v, want 0", l, res)
	}
	if math.Abs(a.R-math.Log(l)) > 1e-12 {
		t.Errorf("R = %v, want ln(λ) = %v", a.R, math.Log(l))
	}
	if !a.HasDoublingTime || math.Abs(a.DoublingTime-math.Ln2/a.R) > 1e-12 {
		t.Errorf("DoublingTime = %v (%v), want ln2/r", a.DoublingTime, a.HasDoublingTime)
	}

	var sum float64
	for _, w := range a.StableStage {
		if w < 0 {
			t.Errorf("stable stage share %v is negative", w)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("stable stage sum = %v, want 1", sum)
	}

	// Stable stage satisfies A·w = λ·w
	aw, _ := m.Apply(a.StableStage)
	for i := range aw {
		if math.Abs(aw[i]-l*a.StableStage[i]) > 1e-9 {
			t.Errorf("(A·w)[%d] = %v, want λ·w = %v", i, aw[i], l*a.StableStage[i])
		}
	}

	// Reproductive value: v0 = 1, v1 = λ/0.7
	if math.Abs(a.ReproductiveValue[0]-1) > 1e-12 {
		t.Errorf("ReproductiveValue[0] = %v, want 1", a.ReproductiveValue[0])
	}
	if want := l / 0.7; math.Abs(a.ReproductiveValue[1]-want) > 1e-9 {
		t.Errorf("ReproductiveValue[1] = %v, want %v", a.ReproductiveValue[1], want)
	}

	// Only the adult stage reproduces: T = 3
	if math.Abs(a.GenerationTime-3) > 1e-12 {
		t.Errorf("GenerationTime = %v, want 3", a.GenerationTime)
	}
}

func TestNetReproductiveRate(t *testing.T) {
	m := referenceMatrix(t)
	if got, want := m.NetReproductiveRate(), 100*0.7*0.8*0.9; math.Abs(got-want) > 1e-9 {
		t.Errorf("NetReproductiveRate() = %v, want %v", got, want)
	}
}

func TestDecliningMatrix(t *testing.T) {
	m, err := New([]float64{0, 0, 0, 0.01}, []float64{0.1, 0.1, 0.1}, 0.2, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := m.Eigenanalysis()
	if err != nil {
		t.Fatal(err)
	}
	if a.Lambda >= 1 || a.R >= 0 {
		t.Errorf("λ = %v, r = %v; want a declining population", a.Lambda, a.R)
	}
	if a.HasDoublingTime {
		t.Error("declining population should have no doubling time")
	}
	viable, _ := m.IsViable()
	if viable {
		t.Error("IsViable() = true, want false")
	}
}

func TestZeroMatrixDegeneracy(t *testing.T) {
	m, err := New([]float64{0, 0, 0, 0}, []float64{0, 0, 0}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := m.Eigenanalysis()
	if err != nil {
		t.Fatalf("Eigenanalysis() error = %v", err)
	}
	if !math.IsInf(a.R, -1) {
		t.Errorf("R = %v, want -Inf", a.R)
	}
	if a.GenerationTime != 0 {
		t.Errorf("GenerationTime = %v, want 0", a.GenerationTime)
	}
	var sum float64
	for _, w := range a.StableStage {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("stable stage sum = %v, want 1", sum)
	}

	rep, err := m.Report()
	if err != nil {
		t.Fatal(err)
	}
	if rep.R != nil || rep.DoublingTime != nil {
		t.Errorf("Report R = %v, DoublingTime = %v; want nil", rep.R, rep.DoublingTime)
	}
}

func TestSensitivityElasticity(t *testing.T) {
	m := referenceMatrix(t)
	sens, elas, err := m.Sensitivity()
	if err != nil {
		t.Fatalf("Sensitivity() error = %v", err)
	}

	// Elasticities of a primitive matrix sum to one
	var sum float64
	r, c := elas.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += elas.At(i, j)
			if m.At(i, j) == 0 && elas.At(i, j) != 0 {
				t.Errorf("elasticity(%d, %d) = %v for a zero entry", i, j, elas.At(i, j))
			}
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("elasticity sum = %v, want 1", sum)
	}

	if sens.At(0, 3) <= 0 {
		t.Errorf("sensitivity to adult fecundity = %v, want > 0", sens.At(0, 3))
	}
}

func TestUpdateRates(t *testing.T) {
	m := referenceMatrix(t)

	if err := m.UpdateSurvivalRates([]float64{0.5, 0.6, 0.7}); err != nil {
		t.Fatalf("UpdateSurvivalRates() error = %v", err)
	}
	got := m.Survival()
	for i, want := range []float64{0.5, 0.6, 0.7} {
		if got[i] != want {
			t.Errorf("Survival()[%d] = %v, want %v", i, got[i], want)
		}
	}

	if err := m.UpdateSurvivalRates([]float64{0.5, 2, 0.7}); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("UpdateSurvivalRates(out of range) error = %v, want ErrValidation", err)
	}
	if m.Survival()[1] != 0.6 {
		t.Errorf("failed update modified matrix: %v", m.Survival())
	}

	if err := m.UpdateFecundity([]float64{0, 0, 0, 50}); err != nil {
		t.Fatalf("UpdateFecundity() error = %v", err)
	}
	if m.Fecundity()[3] != 50 {
		t.Errorf("Fecundity()[3] = %v, want 50", m.Fecundity()[3])
	}
	if err := m.UpdateFecundity([]float64{0, 0, 50}); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("UpdateFecundity(short) error = %v, want ErrValidation", err)
	}
	if m.AdultSurvival() != 0.95 {
		t.Errorf("AdultSurvival() = %v, want 0.95", m.AdultSurvival())
	}
}

func TestStableDistribution(t *testing.T) {
	dist, err := referenceMatrix(t).StableDistribution()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range DefaultStageNames {
		if _, ok := dist[name]; !ok {
			t.Errorf("StableDistribution() missing %q", name)
		}
	}
}

func TestCompare(t *testing.T) {
	a := referenceMatrix(t)
	b := a.Clone()
	if err := b.UpdateFecundity([]float64{0, 0, 0, 10}); err != nil {
		t.Fatal(err)
	}

	c, err := Compare(a, b, "high", "low")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if c.Lambda[0] <= c.Lambda[1] {
		t.Errorf("λ(high) = %v should exceed λ(low) = %v", c.Lambda[0], c.Lambda[1])
	}
	if math.Abs(c.LambdaRatio-c.Lambda[0]/c.Lambda[1]) > 1e-12 {
		t.Errorf("LambdaRatio = %v, want %v", c.LambdaRatio, c.Lambda[0]/c.Lambda[1])
	}
	if math.Abs(c.RDifference-(c.R[0]-c.R[1])) > 1e-12 {
		t.Errorf("RDifference = %v, want %v", c.RDifference, c.R[0]-c.R[1])
	}
	// Clone is independent
	if a.Fecundity()[3] != 100 {
		t.Errorf("Clone shares storage: original fecundity %v", a.Fecundity())
	}
}

func TestDailyTransition(t *testing.T) {
	tests := []struct {
		s, d float64
		want float64
	}{
		{0.8, 4, math.Pow(0.8, 0.25) / 4},
		{1, 1, 1},
		{0.8, 0, 0.8}, // zero duration clamps to one day
		{0.8, 0.5, 0.8},
	}
	for _, tt := range tests {
		if got := DailyTransition(tt.s, tt.d); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("DailyTransition(%v, %v) = %v, want %v", tt.s, tt.d, got, tt.want)
		}
	}
}

func TestFromSpecies(t *testing.T) {
	cfg := config.Default()
	sp, err := cfg.SpeciesByID("aedes_aegypti")
	if err != nil {
		t.Fatal(err)
	}
	m, err := FromSpecies(sp)
	if err != nil {
		t.Fatalf("FromSpecies() error = %v", err)
	}

	// egg: 2-7 days, survival 0.75
	if want := DailyTransition(0.75, 4.5); math.Abs(m.At(1, 0)-want) > 1e-12 {
		t.Errorf("egg transition = %v, want %v", m.At(1, 0), want)
	}
	// larva: instar means 1.5+1.5+2+3 = 8 days, mean survival of 0.82/0.85/0.87/0.80
	larvaS := (0.82 + 0.85 + 0.87 + 0.80) / 4
	if want := DailyTransition(larvaS, 8); math.Abs(m.At(2, 1)-want) > 1e-12 {
		t.Errorf("larva transition = %v, want %v", m.At(2, 1), want)
	}
	// fecundity: 115 eggs · 3 events · 0.5 · 0.95 / 22 days
	if want := 115.0 * 3 * 0.5 * 0.95 / 22; math.Abs(m.At(0, 3)-want) > 1e-12 {
		t.Errorf("fecundity = %v, want %v", m.At(0, 3), want)
	}
	if m.AdultSurvival() != 0.95 {
		t.Errorf("adult survival = %v, want 0.95", m.AdultSurvival())
	}
}

func TestFromSpeciesDefaults(t *testing.T) {
	sp := &config.SpeciesConfig{
		ID: "sparse",
		Stages: []config.StageConfig{
			{Name: "egg", DurationMin: 0, DurationMax: 0},
			{Name: "larva", DurationMin: 4, DurationMax: 6},
			{Name: "pupa", DurationMin: 2, DurationMax: 2},
		},
		Reproduction: config.ReproductionConfig{EggsPerBatchMin: 100, EggsPerBatchMax: 100, OvipositionEvents: 1},
	}
	m, err := FromSpecies(sp)
	if err != nil {
		t.Fatalf("FromSpecies() error = %v", err)
	}
	// zero-duration egg stage clamps to one day
	if m.At(1, 0) != DefaultEggSurvival {
		t.Errorf("egg transition = %v, want %v", m.At(1, 0), DefaultEggSurvival)
	}
	if want := DailyTransition(DefaultPupaSurvival, 2); math.Abs(m.At(3, 2)-want) > 1e-12 {
		t.Errorf("pupa transition = %v, want %v", m.At(3, 2), want)
	}
	if want := 100 * 0.5 * DefaultAdultDaily / DefaultAdultLifespan; math.Abs(m.At(0, 3)-want) > 1e-12 {
		t.Errorf("fecundity = %v, want %v", m.At(0, 3), want)
	}

	sp.Stages = sp.Stages[1:]
	if _, err := FromSpecies(sp); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("FromSpecies(no egg) error = %v, want ErrConfiguration", err)
	}
}
