// Package stochastic provides seeded random-variate generation for the
// demographic and environmental parts of the simulation.
//
// Every Generator owns one PCG source. distuv distributions draw from that
// source directly, so two generators built from the same seed and stream
// produce the same sequence of draws regardless of which distributions are
// used in between.
//
// Parameter problems never panic or return errors here: a bad variance or
// an out-of-range rate degrades to a deterministic value so the outer
// simulation keeps running.
package stochastic

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Stream identifiers keep demographic and environmental draws independent
// even when both are derived from one seed.
const (
	demographicStream   uint64 = 0x9e3779b97f4a7c15
	environmentalStream uint64 = 0xbf58476d1ce4e5b9
	generalStream       uint64 = 0x94d049bb133111eb
)

// Generator draws random variates from a single seeded source.
type Generator struct {
	src  *rand.PCG
	rng  *rand.Rand
	seed uint64
}

// New returns a general-purpose generator for seed.
func New(seed uint64) *Generator {
	return newStream(seed, generalStream)
}

func newStream(seed, stream uint64) *Generator {
	src := rand.NewPCG(seed, stream)
	return &Generator{src: src, rng: rand.New(src), seed: seed}
}

// Seed returns the seed the generator was built from.
func (g *Generator) Seed() uint64 { return g.seed }

// Streams pairs the two independent sources a run needs.
type Streams struct {
	Demographic   *Generator
	Environmental *Generator
}

// NewStreams derives demographic and environmental generators from seed.
func NewStreams(seed uint64) Streams {
	return Streams{
		Demographic:   newStream(seed, demographicStream),
		Environmental: newStream(seed, environmentalStream),
	}
}

// Float64 returns a uniform value in [0, 1).
func (g *Generator) Float64() float64 { return g.rng.Float64() }

// IntN returns a uniform value in [0, n). n <= 0 returns 0.
func (g *Generator) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return g.rng.IntN(n)
}

// IntRange returns a uniform integer in [lo, hi], swapping reversed bounds.
func (g *Generator) IntRange(lo, hi int) int {
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo + g.rng.IntN(hi-lo+1)
}

// FloatRange returns a uniform value in [lo, hi).
func (g *Generator) FloatRange(lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo + (hi-lo)*g.rng.Float64()
}

// Normal draws from N(mu, sigma). sigma <= 0 returns mu.
func (g *Generator) Normal(mu, sigma float64) float64 {
	if !(sigma > 0) {
		return mu
	}
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: g.src}.Rand()
}

// Poisson draws a count with mean lambda. lambda <= 0 returns 0.
func (g *Generator) Poisson(lambda float64) int {
	if !(lambda > 0) {
		return 0
	}
	return int(distuv.Poisson{Lambda: lambda, Src: g.src}.Rand())
}

// Binomial returns survivors of n independent trials with probability p.
func (g *Generator) Binomial(n int, p float64) int {
	switch {
	case n <= 0, !(p > 0):
		return 0
	case p >= 1:
		return n
	}
	return int(distuv.Binomial{N: float64(n), P: p, Src: g.src}.Rand())
}

// SampleIndices returns k distinct indices from [0, n) in random order.
// k is clamped to [0, n].
func (g *Generator) SampleIndices(n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// Partial Fisher-Yates: the first k slots end up a uniform sample.
	for i := 0; i < k; i++ {
		j := i + g.rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// VarySurvival perturbs a [0,1] rate with a Beta distribution matched to
// mean base and coefficient of variation cv. Rates near the boundaries, or
// a variance the Beta cannot represent, use a normal draw instead. The
// result is clamped to [lo, hi].
func (g *Generator) VarySurvival(base, cv, lo, hi float64) float64 {
	if math.IsNaN(base) {
		return lo
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if base < 0 || base > 1 {
		return clamp(clamp(base, 0, 1), lo, hi)
	}
	if !(cv > 0) {
		return base
	}

	if base < 0.01 || base > 0.99 {
		return clamp(g.Normal(base, cv*base), lo, hi)
	}

	variance := (cv * base) * (cv * base)
	k := base*(1-base)/variance - 1
	alpha := base * k
	beta := (1 - base) * k
	if alpha < 0.5 || beta < 0.5 {
		return clamp(g.Normal(base, cv*base), lo, hi)
	}
	return clamp(distuv.Beta{Alpha: alpha, Beta: beta, Src: g.src}.Rand(), lo, hi)
}

// VaryFecundity draws an egg count with the given mean. Low dispersion
// (cv <= 0.3, or variance not above the mean) is Poisson; higher dispersion
// is negative binomial with r = mean²/(var−mean), p = r/(r+mean), sampled
// as a Gamma-Poisson mixture.
func (g *Generator) VaryFecundity(mean, cv float64) int {
	if !(mean > 0) {
		return 0
	}
	if !(cv > 0) {
		return int(math.Round(mean))
	}
	if cv <= 0.3 {
		return g.Poisson(mean)
	}

	variance := (cv * mean) * (cv * mean)
	if variance <= mean {
		return g.Poisson(mean)
	}
	r := mean * mean / (variance - mean)
	p := r / (r + mean)
	lambda := distuv.Gamma{Alpha: r, Beta: p / (1 - p), Src: g.src}.Rand()
	return g.Poisson(lambda)
}

// DevelopmentMode selects the distribution for development times.
type DevelopmentMode uint8

const (
	DevelopmentUniform DevelopmentMode = iota
	DevelopmentTriangular
)

// DevelopmentTime samples a stage duration in days within [lo, hi].
// Triangular mode peaks at the midpoint and rounds to the nearest day.
func (g *Generator) DevelopmentTime(lo, hi int, mode DevelopmentMode) int {
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return lo
	}
	if mode == DevelopmentTriangular {
		a, b := float64(lo), float64(hi)
		d := int(math.Round(distuv.NewTriangle(a, b, (a+b)/2, g.src).Rand()))
		return min(max(d, lo), hi)
	}
	return g.IntRange(lo, hi)
}

// PoissonBirths draws the eggs laid by females with mean clutch meanEggs as
// a single Poisson draw.
func (g *Generator) PoissonBirths(females int, meanEggs float64) int {
	if females <= 0 || !(meanEggs > 0) {
		return 0
	}
	return g.Poisson(float64(females) * meanEggs)
}

// Mortality applies daily binomial survival to n individuals for days days.
func (g *Generator) Mortality(n int, dailySurvival float64, days int) int {
	if n <= 0 || days <= 0 {
		return n
	}
	survivors := n
	for range days {
		survivors = g.Binomial(survivors, dailySurvival)
		if survivors == 0 {
			break
		}
	}
	return survivors
}

// EnvironmentalNoise perturbs value by a normal error proportional to its
// magnitude.
func (g *Generator) EnvironmentalNoise(value, level float64) float64 {
	if !(level > 0) {
		return value
	}
	return g.Normal(value, math.Abs(value)*level)
}

// RangeDist selects the distribution used by SampleRange.
type RangeDist uint8

const (
	RangeUniform RangeDist = iota
	RangeTriangular
	RangeBeta // Beta(2,2) scaled onto the range
)

// SampleRange draws a value between lo and hi.
func (g *Generator) SampleRange(lo, hi float64, dist RangeDist) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return lo
	}
	switch dist {
	case RangeTriangular:
		return distuv.NewTriangle(lo, hi, (lo+hi)/2, g.src).Rand()
	case RangeBeta:
		return lo + (hi-lo)*distuv.Beta{Alpha: 2, Beta: 2, Src: g.src}.Rand()
	default:
		return distuv.Uniform{Min: lo, Max: hi, Src: g.src}.Rand()
	}
}
