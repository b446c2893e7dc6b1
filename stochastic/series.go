package stochastic

import "math"

// DaysPerYear is the default seasonal period.
const DaysPerYear = 365.0

// SeriesParams describes an AR(1) environmental series
//
//	X(t) = mean + ρ·(X(t−1) − mean) + ε(t),  ε ~ N(0, std·√(1−ρ²))
//
// with X(0) ~ N(mean, std), optionally followed by a seasonal term
// amplitude·sin(2πt/period + phase). When Clamp is set every sample is
// clamped into [Min, Max] before it feeds the next step.
type SeriesParams struct {
	Days              int
	Mean              float64
	Std               float64
	Autocorrelation   float64
	SeasonalAmplitude float64
	Period            float64 // 0 = DaysPerYear
	Phase             float64

	Clamp    bool
	Min, Max float64
}

// Series generates the series described by p. Autocorrelation is clamped
// into (−1, 1) so the innovation variance stays defined.
func (g *Generator) Series(p SeriesParams) []float64 {
	if p.Days <= 0 {
		return nil
	}
	rho := clamp(p.Autocorrelation, -0.999999, 0.999999)
	if math.IsNaN(rho) {
		rho = 0
	}
	innovation := p.Std * math.Sqrt(1-rho*rho)

	out := make([]float64, p.Days)
	out[0] = p.bound(g.Normal(p.Mean, p.Std))
	for t := 1; t < p.Days; t++ {
		v := p.Mean + rho*(out[t-1]-p.Mean) + g.Normal(0, innovation)
		out[t] = p.bound(v)
	}

	if p.SeasonalAmplitude != 0 {
		period := p.Period
		if period <= 0 {
			period = DaysPerYear
		}
		for t := range out {
			out[t] += p.SeasonalAmplitude * math.Sin(2*math.Pi*float64(t)/period+p.Phase)
		}
	}
	return out
}

func (p SeriesParams) bound(v float64) float64 {
	if !p.Clamp {
		return v
	}
	return clamp(v, p.Min, p.Max)
}

// TemperatureSeries is an AR(1) series with a yearly seasonal cycle.
func (g *Generator) TemperatureSeries(days int, mean, std, amplitude, rho float64) []float64 {
	return g.Series(SeriesParams{
		Days:              days,
		Mean:              mean,
		Std:               std,
		Autocorrelation:   rho,
		SeasonalAmplitude: amplitude,
	})
}

// HumiditySeries is an AR(1) series clamped into [lo, hi] at every step.
func (g *Generator) HumiditySeries(days int, mean, std, rho, lo, hi float64) []float64 {
	return g.Series(SeriesParams{
		Days:            days,
		Mean:            mean,
		Std:             std,
		Autocorrelation: rho,
		Clamp:           true,
		Min:             lo,
		Max:             hi,
	})
}

// GenerateEnvironmentalSeries builds a series from a fresh environmental
// stream for seed. Identical arguments give identical series.
func GenerateEnvironmentalSeries(p SeriesParams, seed uint64) []float64 {
	return NewStreams(seed).Environmental.Series(p)
}
