package main

import (
	"math"
	"slices"
	"strings"

	"github.com/pthm-cable/vectorsim/config"
)

// ParamSpec defines a single calibrated parameter.
type ParamSpec struct {
	Name string  // column name in the log
	Path string  // config path, for display
	Min  float64 // lower bound
	Max  float64 // upper bound
}

// ParamVector is the set of calibrated parameters for one species.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard parameter set: egg, larval and pupal
// transition survival and the mean eggs per batch.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "egg_survival", Path: "stages.egg.survival_to_next", Min: 0.3, Max: 0.99},
			{Name: "larval_survival", Path: "stages.larva_*.survival_to_next", Min: 0.3, Max: 0.99},
			{Name: "pupal_survival", Path: "stages.pupa.survival_to_next", Min: 0.5, Max: 0.99},
			{Name: "eggs_per_batch", Path: "reproduction.eggs_per_batch_{min,max}", Min: 10, Max: 250},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// Normalize converts raw parameter values to the [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		out[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return out
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		out[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return out
}

// Clamp bounds every value to its range.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		out[i] = math.Min(math.Max(v[i], spec.Min), spec.Max)
	}
	return out
}

// Extract reads the current parameter values of a species. Larval survival
// is the mean over the larval substages.
func (pv *ParamVector) Extract(sp *config.SpeciesConfig) []float64 {
	egg, _ := sp.Stage("egg")
	pupa, _ := sp.Stage("pupa")

	larval := 0.0
	larvae := sp.StagesMatching("larva")
	for _, st := range larvae {
		larval += st.Survival(0.8)
	}
	if len(larvae) > 0 {
		larval /= float64(len(larvae))
	} else {
		larval = 0.8
	}

	return pv.Clamp([]float64{
		egg.Survival(0.8),
		larval,
		pupa.Survival(0.9),
		sp.Reproduction.MeanEggsPerBatch(),
	})
}

// Apply writes clamped values into sp. The eggs-per-batch range keeps its
// width and is re-centred on the new mean.
func (pv *ParamVector) Apply(sp *config.SpeciesConfig, values []float64) {
	v := pv.Clamp(values)

	sp.Stages = slices.Clone(sp.Stages)
	for i := range sp.Stages {
		st := &sp.Stages[i]
		switch {
		case st.Name == "egg":
			st.SurvivalToNext = ptr(v[0])
		case strings.Contains(strings.ToLower(st.Name), "larva"):
			st.SurvivalToNext = ptr(v[1])
		case st.Name == "pupa":
			st.SurvivalToNext = ptr(v[2])
		}
	}

	r := &sp.Reproduction
	half := (r.EggsPerBatchMax - r.EggsPerBatchMin) / 2
	mean := int(math.Round(v[3]))
	r.EggsPerBatchMin = max(1, mean-half)
	r.EggsPerBatchMax = max(r.EggsPerBatchMin, mean+half)
}

func ptr[T any](v T) *T { return &v }

// cloneConfig copies cfg deeply enough that Apply on the copy never touches
// the original.
func cloneConfig(base *config.Config) *config.Config {
	cfg := *base
	cfg.Species = make([]config.SpeciesConfig, len(base.Species))
	for i, sp := range base.Species {
		sp.Stages = slices.Clone(sp.Stages)
		cfg.Species[i] = sp
	}
	return &cfg
}
