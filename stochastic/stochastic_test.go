package stochastic

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestSameSeedSameDraws(t *testing.T) {
	a := NewStreams(7).Demographic
	b := NewStreams(7).Demographic

	for i := 0; i < 50; i++ {
		va := a.VarySurvival(0.8, 0.1, 0, 1)
		vb := b.VarySurvival(0.8, 0.1, 0, 1)
		if va != vb {
			t.Fatalf("draw %d: %v != %v for identical seeds", i, va, vb)
		}
		if a.Binomial(100, 0.5) != b.Binomial(100, 0.5) {
			t.Fatalf("draw %d: binomial diverged for identical seeds", i)
		}
	}
}

func TestStreamsIndependent(t *testing.T) {
	s := NewStreams(7)
	same := 0
	for i := 0; i < 20; i++ {
		if s.Demographic.Float64() == s.Environmental.Float64() {
			same++
		}
	}
	if same == 20 {
		t.Error("demographic and environmental streams produced identical sequences")
	}
}

func TestVarySurvival(t *testing.T) {
	g := New(1)

	tests := []struct {
		name     string
		base, cv float64
		lo, hi   float64
		exact    bool
		want     float64
	}{
		{"zero cv returns base", 0.7, 0, 0, 1, true, 0.7},
		{"negative cv returns base", 0.7, -1, 0, 1, true, 0.7},
		{"base above one degrades", 1.5, 0.1, 0, 1, true, 1},
		{"base below zero degrades", -0.2, 0.1, 0, 1, true, 0},
		{"nan base degrades to min", math.NaN(), 0.1, 0.1, 0.9, true, 0.1},
		{"beta path", 0.5, 0.1, 0, 1, false, 0},
		{"normal path near one", 0.995, 0.1, 0, 1, false, 0},
		{"normal path large variance", 0.3, 3, 0, 1, false, 0},
		{"clamped to window", 0.5, 0.5, 0.45, 0.55, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				got := g.VarySurvival(tt.base, tt.cv, tt.lo, tt.hi)
				if tt.exact && got != tt.want {
					t.Fatalf("VarySurvival(%v, %v) = %v, want %v", tt.base, tt.cv, got, tt.want)
				}
				if got < tt.lo || got > tt.hi {
					t.Fatalf("VarySurvival(%v, %v) = %v, outside [%v, %v]", tt.base, tt.cv, got, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestVarySurvivalMean(t *testing.T) {
	g := New(2)
	n := 5000
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = g.VarySurvival(0.6, 0.1, 0, 1)
	}
	if mean := stat.Mean(xs, nil); math.Abs(mean-0.6) > 0.01 {
		t.Errorf("mean VarySurvival(0.6, 0.1) = %v, want ~0.6", mean)
	}
}

func TestVarySurvivalShapeFallback(t *testing.T) {
	tests := []struct {
		name     string
		base, cv float64
		normal   bool // implied Beta shape below 0.5
	}{
		// alpha = beta = 0.117
		{"wide spread falls back to normal", 0.5, 0.9, true},
		// alpha = 0.2, beta = 0.3
		{"one shape below half falls back", 0.4, 1.0, true},
		// alpha = beta = 1.5
		{"moderate spread stays beta", 0.5, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(9)
			atBounds := 0
			n := 5000
			for i := 0; i < n; i++ {
				if x := g.VarySurvival(tt.base, tt.cv, 0, 1); x == 0 || x == 1 {
					atBounds++
				}
			}
			// A clamped normal piles mass exactly on the bounds; a Beta
			// draw never lands there.
			if tt.normal && atBounds < n/20 {
				t.Errorf("VarySurvival(%v, %v): %d of %d draws at 0 or 1, want a clamped normal", tt.base, tt.cv, atBounds, n)
			}
			if !tt.normal && atBounds != 0 {
				t.Errorf("VarySurvival(%v, %v): %d draws at 0 or 1, want Beta draws", tt.base, tt.cv, atBounds)
			}
		})
	}
}

func TestVaryFecundity(t *testing.T) {
	g := New(3)

	if got := g.VaryFecundity(0, 0.2); got != 0 {
		t.Errorf("VaryFecundity(0, 0.2) = %d, want 0", got)
	}
	if got := g.VaryFecundity(-5, 0.2); got != 0 {
		t.Errorf("VaryFecundity(-5, 0.2) = %d, want 0", got)
	}
	if got := g.VaryFecundity(99.6, 0); got != 100 {
		t.Errorf("VaryFecundity(99.6, 0) = %d, want 100", got)
	}

	tests := []struct {
		name    string
		mean    float64
		cv      float64
		wantVar float64
		tol     float64
	}{
		// Poisson: variance equals the mean
		{"poisson", 50, 0.2, 50, 10},
		// Negative binomial: variance = (cv·mean)²
		{"negative binomial", 50, 0.6, 900, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := 6000
			xs := make([]float64, n)
			for i := range xs {
				v := g.VaryFecundity(tt.mean, tt.cv)
				if v < 0 {
					t.Fatalf("VaryFecundity returned negative %d", v)
				}
				xs[i] = float64(v)
			}
			mean, std := stat.MeanStdDev(xs, nil)
			if math.Abs(mean-tt.mean) > tt.mean*0.05 {
				t.Errorf("mean = %v, want ~%v", mean, tt.mean)
			}
			if math.Abs(std*std-tt.wantVar) > tt.tol {
				t.Errorf("variance = %v, want ~%v", std*std, tt.wantVar)
			}
		})
	}
}

func TestDevelopmentTime(t *testing.T) {
	g := New(4)

	if got := g.DevelopmentTime(5, 5, DevelopmentUniform); got != 5 {
		t.Errorf("DevelopmentTime(5, 5) = %d, want 5", got)
	}

	tests := []struct {
		name   string
		lo, hi int
		mode   DevelopmentMode
		spread int // distinct durations expected at least
	}{
		// reversed bounds are swapped
		{"uniform reversed", 8, 3, DevelopmentUniform, 6},
		{"triangular reversed", 8, 3, DevelopmentTriangular, 4},
		{"triangular narrow", 2, 4, DevelopmentTriangular, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := min(tt.lo, tt.hi), max(tt.lo, tt.hi)
			seen := map[int]int{}
			for i := 0; i < 10000; i++ {
				d := g.DevelopmentTime(tt.lo, tt.hi, tt.mode)
				if d < lo || d > hi {
					t.Fatalf("DevelopmentTime(%d, %d) = %d, outside [%d, %d]", tt.lo, tt.hi, d, lo, hi)
				}
				seen[d]++
			}
			if len(seen) < tt.spread {
				t.Errorf("only %d distinct durations drawn: %v", len(seen), seen)
			}
			if tt.mode == DevelopmentTriangular {
				mid := int(math.Round(float64(lo+hi) / 2))
				if seen[mid] < seen[lo] || seen[mid] < seen[hi] {
					t.Errorf("midpoint %d drawn less often than a bound: %v", mid, seen)
				}
			}
		})
	}
}

func TestBinomialEdges(t *testing.T) {
	g := New(5)

	tests := []struct {
		n    int
		p    float64
		want int
	}{
		{0, 0.5, 0},
		{-3, 0.5, 0},
		{10, 0, 0},
		{10, -0.1, 0},
		{10, 1, 10},
		{10, 1.2, 10},
	}
	for _, tt := range tests {
		if got := g.Binomial(tt.n, tt.p); got != tt.want {
			t.Errorf("Binomial(%d, %v) = %d, want %d", tt.n, tt.p, got, tt.want)
		}
	}

	for i := 0; i < 100; i++ {
		if got := g.Binomial(20, 0.4); got < 0 || got > 20 {
			t.Fatalf("Binomial(20, 0.4) = %d, outside [0, 20]", got)
		}
	}
}

func TestPoissonBirths(t *testing.T) {
	g := New(6)
	if got := g.PoissonBirths(0, 10); got != 0 {
		t.Errorf("PoissonBirths(0, 10) = %d, want 0", got)
	}
	if got := g.PoissonBirths(10, 0); got != 0 {
		t.Errorf("PoissonBirths(10, 0) = %d, want 0", got)
	}

	n := 2000
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(g.PoissonBirths(10, 5))
	}
	if mean := stat.Mean(xs, nil); math.Abs(mean-50) > 1.5 {
		t.Errorf("mean PoissonBirths(10, 5) = %v, want ~50", mean)
	}
}

func TestMortality(t *testing.T) {
	g := New(7)
	if got := g.Mortality(100, 0.9, 0); got != 100 {
		t.Errorf("Mortality(100, 0.9, 0) = %d, want 100", got)
	}
	if got := g.Mortality(100, 0, 3); got != 0 {
		t.Errorf("Mortality(100, 0, 3) = %d, want 0", got)
	}
	if got := g.Mortality(100, 1, 30); got != 100 {
		t.Errorf("Mortality(100, 1, 30) = %d, want 100", got)
	}
	if got := g.Mortality(1000, 0.5, 3); got > 1000 {
		t.Errorf("Mortality(1000, 0.5, 3) = %d, want <= 1000", got)
	}
}

func TestSampleRange(t *testing.T) {
	g := New(8)
	if got := g.SampleRange(2, 2, RangeUniform); got != 2 {
		t.Errorf("SampleRange(2, 2) = %v, want 2", got)
	}
	for _, dist := range []RangeDist{RangeUniform, RangeTriangular, RangeBeta} {
		for i := 0; i < 200; i++ {
			v := g.SampleRange(10, 4, dist)
			if v < 4 || v > 10 {
				t.Fatalf("dist %d: SampleRange(10, 4) = %v, outside [4, 10]", dist, v)
			}
		}
	}
}

func TestEnvironmentalNoise(t *testing.T) {
	g := New(9)
	if got := g.EnvironmentalNoise(25, 0); got != 25 {
		t.Errorf("EnvironmentalNoise(25, 0) = %v, want 25", got)
	}
	if got := g.EnvironmentalNoise(0, 0.5); got != 0 {
		t.Errorf("EnvironmentalNoise(0, 0.5) = %v, want 0", got)
	}
}

func TestSampleIndices(t *testing.T) {
	g := New(10)

	got := g.SampleIndices(10, 4)
	if len(got) != 4 {
		t.Fatalf("len(SampleIndices(10, 4)) = %d, want 4", len(got))
	}
	seen := map[int]bool{}
	for _, i := range got {
		if i < 0 || i >= 10 {
			t.Errorf("index %d out of range", i)
		}
		if seen[i] {
			t.Errorf("index %d drawn twice", i)
		}
		seen[i] = true
	}

	if got := g.SampleIndices(3, 10); len(got) != 3 {
		t.Errorf("len(SampleIndices(3, 10)) = %d, want 3", len(got))
	}
	if got := g.SampleIndices(3, 0); got != nil {
		t.Errorf("SampleIndices(3, 0) = %v, want nil", got)
	}
}
