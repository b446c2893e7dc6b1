package scenario

import (
	"errors"
	"strings"
	"testing"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/simerr"
)

func ptr[T any](v T) *T { return &v }

func baseline() PopulationRequest {
	return PopulationRequest{
		Species: "aedes_aegypti",
		Days:    30,
		Initial: config.InitialCounts{
			Eggs:   1000,
			Larvae: config.TotalLarvae(500),
			Pupae:  100,
			Adults: 50,
		},
	}
}

func TestPopulationRequestValidate(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name   string
		mutate func(*PopulationRequest)
		fields []string // substrings expected in the error; nil = valid
	}{
		{"baseline", func(*PopulationRequest) {}, nil},
		{"predator species allowed", func(r *PopulationRequest) { r.Species = "toxorhynchites" }, nil},
		{"unknown species", func(r *PopulationRequest) { r.Species = "culex" }, []string{"species"}},
		{"zero days", func(r *PopulationRequest) { r.Days = 0 }, []string{"days"}},
		{"too many days", func(r *PopulationRequest) { r.Days = config.MaxDays + 1 }, []string{"days"}},
		{"negative eggs", func(r *PopulationRequest) { r.Initial.Eggs = -1 }, []string{"initial.eggs"}},
		{"negative instar", func(r *PopulationRequest) {
			r.Initial.Larvae = config.SubstageLarvae(1, -2, 0, 0)
		}, []string{"initial.larvae[1]"}},
		{"empty population", func(r *PopulationRequest) { r.Initial = config.InitialCounts{} }, []string{"initial"}},
		{"habitat out of range", func(r *PopulationRequest) {
			r.Habitat = Habitat{Temperature: ptr(80.0), WaterAvailability: ptr(1.5)}
		}, []string{"habitat.temperature", "habitat.water_availability"}},
		{"every problem reported", func(r *PopulationRequest) {
			r.Species = "culex"
			r.Days = -3
		}, []string{"species", "days"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseline()
			tt.mutate(&req)
			err := req.Validate(cfg)
			if tt.fields == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, simerr.ErrValidation) {
				t.Fatalf("Validate() = %v, want ErrValidation", err)
			}
			for _, f := range tt.fields {
				if !strings.Contains(err.Error(), f) {
					t.Errorf("error %q does not mention %q", err, f)
				}
			}
		})
	}
}

func TestPredatorRequestValidate(t *testing.T) {
	cfg := config.Default()

	ok := PredatorRequest{PopulationRequest: baseline()}
	if err := ok.Validate(cfg); err != nil {
		t.Fatalf("configured predator: %v", err)
	}
	if got := ok.predatorID(cfg); got != cfg.Predation.PredatorSpecies {
		t.Errorf("predatorID = %q, want configured %q", got, cfg.Predation.PredatorSpecies)
	}
	if got := ok.predatorInitial(cfg); got.Total() != cfg.InitialFor(cfg.Predation.PredatorSpecies).Total() {
		t.Errorf("predatorInitial total = %d, want configured counts", got.Total())
	}

	notPredator := PredatorRequest{PopulationRequest: baseline(), Predator: "aedes_aegypti"}
	err := notPredator.Validate(cfg)
	if !errors.Is(err, simerr.ErrValidation) || !strings.Contains(err.Error(), "predatory") {
		t.Errorf("vector as predator: %v", err)
	}

	negative := PredatorRequest{
		PopulationRequest: baseline(),
		PredatorInitial:   &config.InitialCounts{Adults: -1},
	}
	if err := negative.Validate(cfg); !errors.Is(err, simerr.ErrValidation) {
		t.Errorf("negative predator counts: %v", err)
	}
}

func TestAgentRequestValidate(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name  string
		req   AgentRequest
		valid bool
	}{
		{"vectors only", AgentRequest{Species: "aedes_aegypti", Days: 10, Vectors: 20}, true},
		{"with predators", AgentRequest{Species: "aedes_aegypti", Days: 10, Vectors: 20, Predators: 5}, true},
		{"predator as vector", AgentRequest{Species: "toxorhynchites", Days: 10, Vectors: 20}, false},
		{"no vectors", AgentRequest{Species: "aedes_aegypti", Days: 10}, false},
		{"too many vectors", AgentRequest{Species: "aedes_aegypti", Days: 10, Vectors: cfg.Agents.MaxVectors + 1}, false},
		{"too many predators", AgentRequest{Species: "aedes_aegypti", Days: 10, Vectors: 1, Predators: cfg.Agents.MaxPredators + 1}, false},
		{"negative workers", AgentRequest{Species: "aedes_aegypti", Days: 10, Vectors: 1, Workers: -1}, false},
		{"vector predator", AgentRequest{Species: "aedes_aegypti", Predator: "aedes_aegypti", Days: 10, Vectors: 1, Predators: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(cfg)
			if tt.valid && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, simerr.ErrValidation) {
				t.Fatalf("Validate() = %v, want ErrValidation", err)
			}
		})
	}
}

func TestHybridRequestUsesAdultsAsVectors(t *testing.T) {
	cfg := config.Default()
	req := HybridRequest{PopulationRequest: baseline(), Predators: 3, Workers: 2}
	if err := req.Validate(cfg); err != nil {
		t.Fatal(err)
	}
	a := req.agentRequest()
	if a.Vectors != 50 || a.Predators != 3 || a.Workers != 2 || a.Days != 30 {
		t.Errorf("agentRequest = %+v", a)
	}

	req.Initial.Adults = 0
	if err := req.Validate(cfg); err == nil || !strings.Contains(err.Error(), "initial.adults") {
		t.Errorf("no adults: %v", err)
	}
}

func TestComparisonRequestValidate(t *testing.T) {
	cfg := config.Default()
	two := []Scenario{
		{Name: "a", PopulationRequest: baseline()},
		{Name: "b", PopulationRequest: baseline()},
	}

	tests := []struct {
		name  string
		req   ComparisonRequest
		field string // "" = valid
	}{
		{"valid", ComparisonRequest{Scenarios: two, Type: TypePopulation, Metric: MetricPeakPopulation}, ""},
		{"agent type", ComparisonRequest{Scenarios: two, Type: TypeAgent, Metric: MetricExtinctionDay}, ""},
		{"one scenario", ComparisonRequest{Scenarios: two[:1], Type: TypePopulation, Metric: MetricPeakPopulation}, "scenarios"},
		{"unknown type", ComparisonRequest{Scenarios: two, Type: "spatial", Metric: MetricPeakPopulation}, "type"},
		{"unknown metric", ComparisonRequest{Scenarios: two, Type: TypePopulation, Metric: "biomass"}, "metric"},
		{"duplicate names", ComparisonRequest{
			Scenarios: []Scenario{{Name: "a", PopulationRequest: baseline()}, {Name: "a", PopulationRequest: baseline()}},
			Type:      TypePopulation, Metric: MetricPeakPopulation,
		}, "duplicate"},
		{"blank name", ComparisonRequest{
			Scenarios: []Scenario{{Name: " ", PopulationRequest: baseline()}, {Name: "b", PopulationRequest: baseline()}},
			Type:      TypePopulation, Metric: MetricPeakPopulation,
		}, "scenarios[0].name"},
		{"invalid scenario", ComparisonRequest{
			Scenarios: []Scenario{{Name: "a", PopulationRequest: baseline()}, {Name: "b", PopulationRequest: PopulationRequest{Species: "aedes_aegypti"}}},
			Type:      TypePopulation, Metric: MetricPeakPopulation,
		}, "scenarios[1].days"},
		{"agent predator species", ComparisonRequest{
			Scenarios: []Scenario{{Name: "a", PopulationRequest: baseline()}, {Name: "b", PopulationRequest: PopulationRequest{
				Species: "toxorhynchites", Days: 10, Initial: config.InitialCounts{Adults: 5},
			}}},
			Type: TypeAgent, Metric: MetricPeakPopulation,
		}, "scenarios[1].species"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(cfg)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, simerr.ErrValidation) {
				t.Fatalf("Validate() = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %q", err, tt.field)
			}
		})
	}
}

func TestFromPreset(t *testing.T) {
	cfg := config.Default()
	p, err := cfg.Preset("drought")
	if err != nil {
		t.Fatal(err)
	}
	sc := FromPreset(p)
	if sc.Name != "drought" || sc.Species != "aedes_aegypti" || sc.Days != 60 {
		t.Errorf("scenario = %+v", sc)
	}
	if sc.Initial.Total() != 880 {
		t.Errorf("initial total = %d, want 880", sc.Initial.Total())
	}
	if *sc.Habitat.WaterAvailability != 0.2 || *sc.Habitat.Humidity != 30 {
		t.Errorf("habitat = %v/%v", *sc.Habitat.WaterAvailability, *sc.Habitat.Humidity)
	}
	if err := sc.Validate(cfg); err != nil {
		t.Errorf("preset scenario invalid: %v", err)
	}
}
