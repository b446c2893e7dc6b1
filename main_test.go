package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/leslie"
	"github.com/pthm-cable/vectorsim/scenario"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, logs bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunPopulationJSON(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "population", "--days", "20", "--seed", "3",
		"--output-dir", dir, "--json", "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	var res scenario.PopulationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if res.Seed != 3 {
		t.Errorf("Seed = %d, want 3", res.Seed)
	}
	if res.Trajectory == nil || len(res.Trajectory.States) != 21 {
		t.Fatalf("trajectory = %+v", res.Trajectory)
	}
	if !strings.HasPrefix(res.OutputDir, dir) {
		t.Errorf("OutputDir = %q, want under %q", res.OutputDir, dir)
	}
}

func TestRunPopulationOverridesPreset(t *testing.T) {
	out, err := execute(t, "run", "population", "--preset", "cold_snap", "--days", "5", "--adults", "7", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var res scenario.PopulationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	s0 := res.Trajectory.States[0]
	if s0.Adults != 7 || s0.Eggs != 1000 || len(res.Trajectory.States) != 6 {
		t.Errorf("day 0 = %+v, states = %d", s0, len(res.Trajectory.States))
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	_, err := execute(t, "run", "population", "--days", "0")
	if err == nil || !strings.Contains(err.Error(), "days") {
		t.Errorf("err = %v, want days validation error", err)
	}
	if _, err := execute(t, "run", "population", "--preset", "monsoon"); err == nil {
		t.Error("expected unknown preset error")
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	if _, err := execute(t, "run", "population", "--preset", "drought", "--days", "10",
		"--checkpoint", "dry", "--db", db); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "run", "agents", "--days", "5", "--vectors", "10",
		"--checkpoint", "swarm", "--db", db); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "checkpoint", "list", "--db", db, "--kind", "population", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var list []checkpointView
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decoding list: %v\n%s", err, out)
	}
	if len(list) != 1 || list[0].Name != "dry" || list[0].Days != 10 {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Request != nil {
		t.Error("list includes the stored request")
	}

	out, err = execute(t, "checkpoint", "show", "dry", "--db", db)
	if err != nil {
		t.Fatal(err)
	}
	var shown checkpointView
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatal(err)
	}
	var req scenario.PopulationRequest
	if err := json.Unmarshal(shown.Request, &req); err != nil {
		t.Fatal(err)
	}
	if req.Species != "aedes_aegypti" || req.Seed == nil || *req.Habitat.WaterAvailability != 0.2 {
		t.Errorf("stored request = %+v", req)
	}

	if _, err := execute(t, "checkpoint", "delete", "dry", "--db", db); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "checkpoint", "show", "dry", "--db", db); err == nil {
		t.Error("show after delete succeeded")
	}
	out, err = execute(t, "checkpoint", "list", "--db", db)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "swarm") || strings.Contains(out, "dry") {
		t.Errorf("list after delete:\n%s", out)
	}
}

func TestRunCompareFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scenarios.yaml")
	data := `type: population
metric: final_population
scenarios:
  - preset: baseline
    days: 15
  - name: wet
    preset: baseline
    days: 15
    humidity: 95
  - name: custom
    days: 15
    initial: {eggs: 100, larvae: [5, 5, 5, 5], pupae: 2, adults: 3}
`
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", "compare", "--file", file, "--preset", "ideal", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var res scenario.ComparisonResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Metric != scenario.MetricFinalPopulation || len(res.Ranking) != 4 {
		t.Fatalf("metric %q, ranking %v", res.Metric, res.Ranking)
	}
	names := map[string]bool{}
	for _, n := range res.Ranking {
		names[n] = true
	}
	for _, n := range []string{"baseline", "wet", "custom", "ideal"} {
		if !names[n] {
			t.Errorf("ranking %v missing %q", res.Ranking, n)
		}
	}
}

func TestLoadScenarios(t *testing.T) {
	cfg := config.Default()
	file := filepath.Join(t.TempDir(), "s.yaml")
	data := `scenarios:
  - name: hot
    preset: baseline
    temperature: 33
  - name: plain
`
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	_, scs, err := loadScenarios(file, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(scs) != 2 {
		t.Fatalf("got %d scenarios", len(scs))
	}
	hot := scs[0]
	if hot.Days != 90 || *hot.Habitat.Temperature != 33 || *hot.Habitat.Humidity != 75 {
		t.Errorf("hot = %+v", hot)
	}
	plain := scs[1]
	if plain.Species != cfg.Predation.PreySpecies || plain.Days != cfg.Simulation.DefaultDays {
		t.Errorf("plain = %+v", plain)
	}
	if plain.Initial.Total() != cfg.InitialFor(plain.Species).Total() {
		t.Errorf("plain initial = %d", plain.Initial.Total())
	}
	if plain.Habitat.Temperature != nil {
		t.Error("plain scenario overrides temperature")
	}
}

func TestEigenCommand(t *testing.T) {
	out, err := execute(t, "eigen", "aedes_aegypti")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Lambda:", "STAGE", "Elasticity:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "eigen", "--compare", "toxorhynchites", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var c speciesComparison
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatal(err)
	}
	if c.Names != [2]string{"aedes_aegypti", "toxorhynchites"} {
		t.Errorf("Names = %v", c.Names)
	}
}

func TestSpeciesComparisonInfiniteRatio(t *testing.T) {
	c := newSpeciesComparison(leslie.Comparison{LambdaRatio: math.Inf(1)})
	if c.LambdaRatio != nil {
		t.Errorf("LambdaRatio = %v, want nil", *c.LambdaRatio)
	}
	if _, err := json.Marshal(c); err != nil {
		t.Errorf("Marshal: %v", err)
	}
}

func TestEnvironmentCommand(t *testing.T) {
	out, err := execute(t, "environment", "--days", "30", "--water", "0.5", "--seed", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Favorable days:") {
		t.Errorf("output:\n%s", out)
	}
}

func TestConfigDump(t *testing.T) {
	out, err := execute(t, "config", "dump")
	if err != nil {
		t.Fatal(err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Species) != 2 || cfg.Species[0].ID != "aedes_aegypti" {
		t.Errorf("species = %+v", cfg.Species)
	}
}

func TestBadLogLevel(t *testing.T) {
	if _, err := execute(t, "config", "dump", "--log-level", "loud"); err == nil {
		t.Error("expected error for unknown log level")
	}
}
