package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/vectorsim/simerr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.Simulation.DefaultDays != 365 {
		t.Errorf("DefaultDays = %d, want 365", cfg.Simulation.DefaultDays)
	}
	if cfg.Simulation.RandomSeed == nil || *cfg.Simulation.RandomSeed != 42 {
		t.Errorf("RandomSeed = %v, want 42", cfg.Simulation.RandomSeed)
	}

	aedes, err := cfg.SpeciesByID("aedes_aegypti")
	if err != nil {
		t.Fatalf("SpeciesByID(aedes_aegypti) error = %v", err)
	}
	if got := len(aedes.StagesMatching("larva")); got != 4 {
		t.Errorf("aedes larval stages = %d, want 4", got)
	}
	if aedes.IsPredator() {
		t.Error("aedes_aegypti should not be predatory")
	}

	toxo, err := cfg.SpeciesByID("toxorhynchites")
	if err != nil {
		t.Fatalf("SpeciesByID(toxorhynchites) error = %v", err)
	}
	if !toxo.IsPredator() {
		t.Error("toxorhynchites should be predatory")
	}
	l4, ok := toxo.Stage("larva_l4")
	if !ok || l4.PredationRate != 12 {
		t.Errorf("toxorhynchites larva_l4 = %+v, want predation rate 12", l4)
	}

	sub, ok := cfg.InitialFor("toxorhynchites").Larvae.Substages()
	if !ok || len(sub) != 4 {
		t.Errorf("toxorhynchites initial larvae substages = %v, %v; want 4 values", sub, ok)
	}
	if got := cfg.InitialFor("toxorhynchites").Larvae.Total(); got != 40 {
		t.Errorf("toxorhynchites larvae total = %d, want 40", got)
	}
}

func TestSpeciesByIDUnknown(t *testing.T) {
	cfg := Default()
	_, err := cfg.SpeciesByID("anopheles")
	if !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("SpeciesByID(anopheles) error = %v, want ErrConfiguration", err)
	}
}

func TestNextStage(t *testing.T) {
	toxo, _ := Default().SpeciesByID("toxorhynchites")

	tests := []struct {
		stage string
		want  string
		ok    bool
	}{
		{"larva_l3", "larva_l4", true},
		{"larva_l4", "pupa", true},
		{"adult_female", "", false},
		{"unknown", "", false},
	}

	for _, tt := range tests {
		got, ok := toxo.NextStage(tt.stage)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NextStage(%q) = %q, %v; want %q, %v", tt.stage, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	overlay := `
simulation:
  default_days: 30
environment:
  temperature: 22.5
`
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", path, err)
	}
	if cfg.Simulation.DefaultDays != 30 {
		t.Errorf("DefaultDays = %d, want 30", cfg.Simulation.DefaultDays)
	}
	if cfg.Environment.Temperature != 22.5 {
		t.Errorf("Temperature = %v, want 22.5", cfg.Environment.Temperature)
	}
	// Untouched keys keep their defaults
	if cfg.Environment.Humidity != 75 {
		t.Errorf("Humidity = %v, want default 75", cfg.Environment.Humidity)
	}
	if len(cfg.Species) != 2 {
		t.Errorf("len(Species) = %d, want 2", len(cfg.Species))
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		overlay string
		field   string
	}{
		{"days too long", "simulation: {default_days: 5000}", "simulation.default_days"},
		{"temperature", "environment: {temperature: 80}", "environment.temperature"},
		{"humidity", "environment: {humidity: -5}", "environment.humidity"},
		{"water", "environment: {water_availability: 1.5}", "environment.water_availability"},
		{"initial unknown species", "initial: {culex: {eggs: 10}}", "initial.culex"},
		{"negative eggs", "initial: {aedes_aegypti: {eggs: -1}}", "initial.aedes_aegypti.eggs"},
		{"consumption fraction", "predation: {consumption_fraction: 2}", "predation.consumption_fraction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.overlay), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, simerr.ErrConfiguration) {
				t.Fatalf("Load() error = %v, want ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestValidateSpeciesStages(t *testing.T) {
	cfg := Default()
	cfg.Species[0].Stages = cfg.Species[0].Stages[1:] // drop egg
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "missing egg stage") {
		t.Errorf("Validate() = %v, want missing egg stage", err)
	}
}

func TestLarvaeCountYAML(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTotal int
		wantSub   bool
		wantErr   bool
	}{
		{"scalar", "larvae: 120", 120, false, false},
		{"substages", "larvae: [1, 2, 3, 4]", 10, true, false},
		{"three substages", "larvae: [1, 2, 3]", 0, false, true},
		{"mapping", "larvae: {a: 1}", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				Larvae LarvaeCount `yaml:"larvae"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%q) error = %v", tt.input, err)
			}
			if got.Larvae.Total() != tt.wantTotal {
				t.Errorf("Total() = %d, want %d", got.Larvae.Total(), tt.wantTotal)
			}
			if _, ok := got.Larvae.Substages(); ok != tt.wantSub {
				t.Errorf("Substages() ok = %v, want %v", ok, tt.wantSub)
			}
		})
	}
}

func TestLarvaeCountJSON(t *testing.T) {
	var l LarvaeCount
	if err := l.UnmarshalJSON([]byte("[5,5,5,5]")); err != nil {
		t.Fatalf("UnmarshalJSON error = %v", err)
	}
	if l.Total() != 20 {
		t.Errorf("Total() = %d, want 20", l.Total())
	}
	out, err := l.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "[5,5,5,5]" {
		t.Errorf("MarshalJSON() = %s, want [5,5,5,5]", out)
	}

	if err := l.UnmarshalJSON([]byte(`"many"`)); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("UnmarshalJSON(string) error = %v, want ErrValidation", err)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load(written) error = %v", err)
	}
	if loaded.Environment.CarryingCapacity != cfg.Environment.CarryingCapacity {
		t.Errorf("CarryingCapacity = %d, want %d", loaded.Environment.CarryingCapacity, cfg.Environment.CarryingCapacity)
	}
	if got := loaded.InitialFor("toxorhynchites").Larvae.Total(); got != 40 {
		t.Errorf("larvae total after round trip = %d, want 40", got)
	}
}

func TestPreset(t *testing.T) {
	cfg := Default()
	p, err := cfg.Preset("drought")
	if err != nil {
		t.Fatalf("Preset(drought) error = %v", err)
	}
	if p.Humidity != 30 || p.Days != 60 {
		t.Errorf("drought preset = %+v", p)
	}
	if _, err := cfg.Preset("missing"); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("Preset(missing) error = %v, want ErrConfiguration", err)
	}
}
