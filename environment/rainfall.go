package environment

import (
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/vectorsim/config"
)

// rainfallSeries draws a smooth daily rainfall series (mm) from octave
// simplex noise sampled along the time axis. Normalized noise lies in
// [0, 1], so the series averages roughly MeanMM.
func rainfallSeries(cfg config.RainfallConfig, days int, seed int64) []float64 {
	noise := opensimplex.NewNormalized(seed)
	octaves := max(cfg.Octaves, 1)
	freq := cfg.Frequency
	if freq <= 0 {
		freq = 0.05
	}

	out := make([]float64, days)
	for d := range out {
		n := octaveNoise(noise, float64(d), 0, octaves, freq, cfg.Persistence)
		out[d] = math.Max(0, 2*cfg.MeanMM*n)
	}
	return out
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for range octaves {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	if maxVal == 0 {
		return 0
	}
	return total / maxVal
}
