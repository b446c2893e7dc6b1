// Package environment generates and queries the daily habitat series that
// drive both simulation modes.
package environment

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/simerr"
	"github.com/pthm-cable/vectorsim/stochastic"
	"github.com/pthm-cable/vectorsim/telemetry"
)

// Capacity factor breakpoints.
const (
	OptimalTempMin     = 25.0
	OptimalTempMax     = 30.0
	OptimalHumidity    = 70.0
	MinCapacityFactor  = 0.5
	TempFactorPerDeg   = 0.05
	SeasonalPeriodDays = 365.0
)

// Conditions is one day of the environment series.
type Conditions struct {
	Day              int     `json:"day" csv:"day"`
	Temperature      float64 `json:"temperature" csv:"temperature"`
	Humidity         float64 `json:"humidity" csv:"humidity"`
	CarryingCapacity int     `json:"carrying_capacity" csv:"carrying_capacity"`
	Rainfall         float64 `json:"rainfall" csv:"rainfall"`
}

// Model holds the generated series. It is read-only after construction.
type Model struct {
	temperature []float64
	humidity    []float64
	capacity    []int
	rainfall    []float64

	baseCapacity int
	favorable    config.FavorableConfig
}

// New generates a series of the given length from cfg using gen. The
// temperature series is drawn first, then humidity, then rainfall, so a
// seeded generator always yields the same model.
func New(cfg config.EnvironmentConfig, days int, gen *stochastic.Generator, logger *slog.Logger) (*Model, error) {
	if days < 1 {
		return nil, simerr.Validation("days", days, "must be at least 1")
	}
	if cfg.CarryingCapacity < 0 {
		return nil, simerr.Validation("carrying_capacity", cfg.CarryingCapacity, "must be non-negative")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Model{
		baseCapacity: cfg.CarryingCapacity,
		favorable:    cfg.Favorable,
	}
	m.temperature = gen.TemperatureSeries(days, cfg.Temperature, cfg.TemperatureStd,
		cfg.TemperatureVariation, cfg.TemperatureAutocorr)
	m.humidity = gen.HumiditySeries(days, cfg.Humidity, cfg.HumidityVariation,
		cfg.HumidityAutocorr, cfg.HumidityMin, cfg.HumidityMax)

	m.capacity = make([]int, days)
	for d := range days {
		m.capacity[d] = Capacity(cfg.CarryingCapacity, m.temperature[d], m.humidity[d])
	}

	m.rainfall = make([]float64, days)
	if cfg.Rainfall.Enabled {
		m.rainfall = rainfallSeries(cfg.Rainfall, days, int64(gen.IntN(math.MaxInt32)))
	}

	logger.Debug("environment generated",
		"days", days,
		"temperature", telemetry.Summarize(m.temperature),
		"humidity", telemetry.Summarize(m.humidity),
	)
	return m, nil
}

// FromSeries builds a model from explicit series, e.g. a stored checkpoint
// or a fixed test fixture. Capacity is recomputed from base.
func FromSeries(temperature, humidity []float64, base int) (*Model, error) {
	if len(temperature) == 0 || len(temperature) != len(humidity) {
		return nil, simerr.Validation("series", len(temperature),
			fmt.Sprintf("temperature and humidity must be non-empty and equal length (humidity=%d)", len(humidity)))
	}
	m := &Model{
		temperature:  append([]float64(nil), temperature...),
		humidity:     append([]float64(nil), humidity...),
		capacity:     make([]int, len(temperature)),
		rainfall:     make([]float64, len(temperature)),
		baseCapacity: base,
		favorable:    config.FavorableConfig{TemperatureMin: 20, TemperatureMax: 32, HumidityMin: 60},
	}
	for d := range m.temperature {
		m.capacity[d] = Capacity(base, m.temperature[d], m.humidity[d])
	}
	return m, nil
}

// TemperatureCapacityFactor is 1 inside the optimal band and loses 0.05 per
// degree outside it, floored at 0.5.
func TemperatureCapacityFactor(t float64) float64 {
	var dist float64
	switch {
	case t < OptimalTempMin:
		dist = OptimalTempMin - t
	case t > OptimalTempMax:
		dist = t - OptimalTempMax
	default:
		return 1
	}
	return math.Max(MinCapacityFactor, 1-TempFactorPerDeg*dist)
}

// HumidityCapacityFactor is 1 at or above 70 % and h/70 below, floored at 0.5.
func HumidityCapacityFactor(h float64) float64 {
	if h >= OptimalHumidity {
		return 1
	}
	return math.Max(MinCapacityFactor, h/OptimalHumidity)
}

// Capacity scales base by both factors, truncating to an integer.
func Capacity(base int, temperature, humidity float64) int {
	return int(float64(base) * TemperatureCapacityFactor(temperature) * HumidityCapacityFactor(humidity))
}

// Days returns the series length.
func (m *Model) Days() int { return len(m.temperature) }

// BaseCapacity returns the unmodulated carrying capacity.
func (m *Model) BaseCapacity() int { return m.baseCapacity }

// Conditions returns the day's record. A day outside the series is a
// caller error.
func (m *Model) Conditions(day int) (Conditions, error) {
	if day < 0 || day >= len(m.temperature) {
		return Conditions{}, fmt.Errorf("day %d outside series [0, %d): %w",
			day, len(m.temperature), simerr.ErrIndexOutOfRange)
	}
	return Conditions{
		Day:              day,
		Temperature:      m.temperature[day],
		Humidity:         m.humidity[day],
		CarryingCapacity: m.capacity[day],
		Rainfall:         m.rainfall[day],
	}, nil
}

// All returns every day's conditions in order.
func (m *Model) All() []Conditions {
	out := make([]Conditions, len(m.temperature))
	for d := range out {
		out[d], _ = m.Conditions(d)
	}
	return out
}

// Temperatures returns a copy of the temperature series.
func (m *Model) Temperatures() []float64 { return append([]float64(nil), m.temperature...) }

// Humidities returns a copy of the humidity series.
func (m *Model) Humidities() []float64 { return append([]float64(nil), m.humidity...) }

// Capacities returns a copy of the carrying-capacity series.
func (m *Model) Capacities() []int { return append([]int(nil), m.capacity...) }

// Rainfall returns a copy of the rainfall series; all zero when disabled.
func (m *Model) Rainfall() []float64 { return append([]float64(nil), m.rainfall...) }

// Statistics summarizes each series.
type Statistics struct {
	Temperature telemetry.SeriesStats `json:"temperature"`
	Humidity    telemetry.SeriesStats `json:"humidity"`
	Capacity    CapacityStats         `json:"carrying_capacity"`
	Rainfall    telemetry.SeriesStats `json:"rainfall"`
}

// CapacityStats summarizes the capacity series.
type CapacityStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  int     `json:"min"`
	Max  int     `json:"max"`
}

// Statistics computes summary statistics for every series.
func (m *Model) Statistics() Statistics {
	c := telemetry.Summarize(telemetry.Ints(m.capacity))
	return Statistics{
		Temperature: telemetry.Summarize(m.temperature),
		Humidity:    telemetry.Summarize(m.humidity),
		Capacity: CapacityStats{
			Mean: c.Mean,
			Std:  c.Std,
			Min:  int(c.Min),
			Max:  int(c.Max),
		},
		Rainfall: telemetry.Summarize(m.rainfall),
	}
}

// IsFavorable reports whether tmin <= T <= tmax and H >= hmin on day.
func (m *Model) IsFavorable(day int, tmin, tmax, hmin float64) (bool, error) {
	c, err := m.Conditions(day)
	if err != nil {
		return false, err
	}
	return c.Temperature >= tmin && c.Temperature <= tmax && c.Humidity >= hmin, nil
}

// CountFavorableDays counts favorable days over the whole series.
func (m *Model) CountFavorableDays(tmin, tmax, hmin float64) int {
	n := 0
	for d := range m.temperature {
		if ok, _ := m.IsFavorable(d, tmin, tmax, hmin); ok {
			n++
		}
	}
	return n
}

// FavorableDays counts favorable days using the configured thresholds.
func (m *Model) FavorableDays() int {
	f := m.favorable
	return m.CountFavorableDays(f.TemperatureMin, f.TemperatureMax, f.HumidityMin)
}
