package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/vectorsim/config"
	"github.com/pthm-cable/vectorsim/scenario"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		Long: `Run one of the simulation modes.

Examples:
  vectorsim run population --days 120 --temperature 29
  vectorsim run population --preset drought --checkpoint dry-season
  vectorsim run predator --compare
  vectorsim run agents --vectors 500 --predators 20 --parallel
  vectorsim run hybrid --preset baseline
  vectorsim run compare --preset baseline --preset drought --metric mean_population`,
	}
	cmd.AddCommand(
		newRunPopulationCmd(),
		newRunPredatorCmd(),
		newRunAgentsCmd(),
		newRunHybridCmd(),
		newRunCompareCmd(),
	)
	return cmd
}

func addHabitatFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("temperature", 0, "Mean temperature °C (unset = configured)")
	cmd.Flags().Float64("humidity", 0, "Mean relative humidity % (unset = configured)")
	cmd.Flags().Float64("water", 0, "Water availability 0..1, scales carrying capacity (unset = configured)")
}

func habitatFromFlags(cmd *cobra.Command, h *scenario.Habitat) {
	flags := cmd.Flags()
	if flags.Changed("temperature") {
		v, _ := flags.GetFloat64("temperature")
		h.Temperature = &v
	}
	if flags.Changed("humidity") {
		v, _ := flags.GetFloat64("humidity")
		h.Humidity = &v
	}
	if flags.Changed("water") {
		v, _ := flags.GetFloat64("water")
		h.WaterAvailability = &v
	}
}

func addPopulationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("preset", "", "Start from a configured preset")
	f.String("species", "", "Species id (empty = predation.prey_species)")
	f.Int("days", 0, "Days to simulate (0 = simulation.default_days)")
	f.Int("eggs", 0, "Initial eggs (unset = configured initial counts)")
	f.Int("larvae", 0, "Initial larvae")
	f.Int("pupae", 0, "Initial pupae")
	f.Int("adults", 0, "Initial adults")
	f.Bool("stochastic", false, "Sample transitions (unset = simulation.stochastic)")
	f.String("checkpoint", "", "Save the run under this checkpoint name")
	addHabitatFlags(cmd)
}

// populationRequest builds a request from the preset (if any), then the
// configured defaults, then explicit flags.
func populationRequest(cmd *cobra.Command, a *app) (scenario.PopulationRequest, error) {
	flags := cmd.Flags()
	var req scenario.PopulationRequest

	if name, _ := flags.GetString("preset"); name != "" {
		p, err := a.cfg.Preset(name)
		if err != nil {
			return req, err
		}
		req = scenario.FromPreset(p).PopulationRequest
	} else {
		req.Species, _ = flags.GetString("species")
		if req.Species == "" {
			req.Species = a.cfg.Predation.PreySpecies
		}
		req.Days = a.cfg.Simulation.DefaultDays
		req.Initial = a.cfg.InitialFor(req.Species)
	}

	if flags.Changed("species") {
		req.Species, _ = flags.GetString("species")
	}
	if flags.Changed("days") {
		req.Days, _ = flags.GetInt("days")
	}
	if flags.Changed("eggs") {
		req.Initial.Eggs, _ = flags.GetInt("eggs")
	}
	if flags.Changed("larvae") {
		n, _ := flags.GetInt("larvae")
		req.Initial.Larvae = config.TotalLarvae(n)
	}
	if flags.Changed("pupae") {
		req.Initial.Pupae, _ = flags.GetInt("pupae")
	}
	if flags.Changed("adults") {
		req.Initial.Adults, _ = flags.GetInt("adults")
	}
	if flags.Changed("stochastic") {
		v, _ := flags.GetBool("stochastic")
		req.Stochastic = &v
	}
	habitatFromFlags(cmd, &req.Habitat)
	req.Seed = a.seed
	req.Checkpoint, _ = flags.GetString("checkpoint")
	return req, nil
}

// openForRun opens the app, with a store only when the run is checkpointed.
func openForRun(cmd *cobra.Command) (*app, error) {
	name, _ := cmd.Flags().GetString("checkpoint")
	return newApp(cmd, name != "")
}

func newRunPopulationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "population",
		Short: "Run the aggregate stage-structured model",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openForRun(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := populationRequest(cmd, a)
			if err != nil {
				return err
			}
			res, err := a.runner.RunPopulation(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) { printPopulation(w, req.Species, res) })
		},
	}
	addPopulationFlags(cmd)
	return cmd
}

func newRunPredatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predator",
		Short: "Run prey coupled to a predator population",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openForRun(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			pop, err := populationRequest(cmd, a)
			if err != nil {
				return err
			}
			req := scenario.PredatorRequest{PopulationRequest: pop}
			req.Predator, _ = cmd.Flags().GetString("predator")

			if compare, _ := cmd.Flags().GetBool("compare"); compare {
				res, err := a.runner.ComparePredation(cmd.Context(), req)
				if err != nil {
					return err
				}
				return a.print(res, func(w io.Writer) { printPredationComparison(w, res) })
			}
			res, err := a.runner.RunPredatorPrey(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) { printPopulation(w, req.Species, res) })
		},
	}
	addPopulationFlags(cmd)
	cmd.Flags().String("predator", "", "Predator species id (empty = predation.predator_species)")
	cmd.Flags().Bool("compare", false, "Also run without predators and report the impact")
	return cmd
}

func addAgentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("predator", "", "Predator species id (empty = predation.predator_species)")
	f.Int("predators", 0, "Initial predator agents")
	f.Bool("parallel", false, "Run perceive and decide on a worker pool (unset = simulation.parallel_agents)")
	f.Int("workers", 0, "Worker count for --parallel (0 = GOMAXPROCS)")
}

func newRunAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Run the individual-based model",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openForRun(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			flags := cmd.Flags()
			req := scenario.AgentRequest{Seed: a.seed}
			req.Species, _ = flags.GetString("species")
			if req.Species == "" {
				req.Species = a.cfg.Predation.PreySpecies
			}
			req.Days, _ = flags.GetInt("days")
			if req.Days == 0 {
				req.Days = a.cfg.Simulation.DefaultDays
			}
			req.Vectors, _ = flags.GetInt("vectors")
			req.Predator, _ = flags.GetString("predator")
			req.Predators, _ = flags.GetInt("predators")
			req.Workers, _ = flags.GetInt("workers")
			req.Checkpoint, _ = flags.GetString("checkpoint")
			if flags.Changed("parallel") {
				v, _ := flags.GetBool("parallel")
				req.Parallel = &v
			}
			habitatFromFlags(cmd, &req.Habitat)

			res, err := a.runner.RunAgents(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) { printAgents(w, res) })
		},
	}
	f := cmd.Flags()
	f.String("species", "", "Vector species id (empty = predation.prey_species)")
	f.Int("days", 0, "Days to simulate (0 = simulation.default_days)")
	f.Int("vectors", 100, "Initial vector agents")
	f.String("checkpoint", "", "Save the run under this checkpoint name")
	addAgentFlags(cmd)
	addHabitatFlags(cmd)
	return cmd
}

func newRunHybridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hybrid",
		Short: "Run both models over one environment and compare them",
		Long: `Run the aggregate model and the agent model over the same environment
series. The agent model starts with one vector per initial adult.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openForRun(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			pop, err := populationRequest(cmd, a)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			req := scenario.HybridRequest{PopulationRequest: pop}
			req.Predator, _ = flags.GetString("predator")
			req.Predators, _ = flags.GetInt("predators")
			req.Workers, _ = flags.GetInt("workers")
			if flags.Changed("parallel") {
				v, _ := flags.GetBool("parallel")
				req.Parallel = &v
			}

			res, err := a.runner.RunHybrid(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) { printHybrid(w, res) })
		},
	}
	addPopulationFlags(cmd)
	addAgentFlags(cmd)
	return cmd
}

// scenarioFile is the YAML layout accepted by run compare --file.
type scenarioFile struct {
	Type      string `yaml:"type"`
	Metric    string `yaml:"metric"`
	Scenarios []struct {
		Name              string                `yaml:"name"`
		Preset            string                `yaml:"preset"`
		Species           string                `yaml:"species"`
		Days              int                   `yaml:"days"`
		Initial           *config.InitialCounts `yaml:"initial"`
		Temperature       *float64              `yaml:"temperature"`
		Humidity          *float64              `yaml:"humidity"`
		WaterAvailability *float64              `yaml:"water_availability"`
		Seed              *uint64               `yaml:"seed"`
	} `yaml:"scenarios"`
}

// loadScenarios reads a scenario file. Entries naming a preset start from it
// and override only the fields they set.
func loadScenarios(path string, cfg *config.Config) (scenarioFile, []scenario.Scenario, error) {
	var f scenarioFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, nil, fmt.Errorf("reading scenario file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, nil, fmt.Errorf("parsing scenario file: %w", err)
	}

	out := make([]scenario.Scenario, 0, len(f.Scenarios))
	for _, e := range f.Scenarios {
		var sc scenario.Scenario
		if e.Preset != "" {
			p, err := cfg.Preset(e.Preset)
			if err != nil {
				return f, nil, err
			}
			sc = scenario.FromPreset(p)
		} else {
			sc.Species = cfg.Predation.PreySpecies
			sc.Days = cfg.Simulation.DefaultDays
		}
		if e.Name != "" {
			sc.Name = e.Name
		}
		if e.Species != "" {
			sc.Species = e.Species
		}
		if e.Days != 0 {
			sc.Days = e.Days
		}
		switch {
		case e.Initial != nil:
			sc.Initial = *e.Initial
		case e.Preset == "":
			sc.Initial = cfg.InitialFor(sc.Species)
		}
		if e.Temperature != nil {
			sc.Habitat.Temperature = e.Temperature
		}
		if e.Humidity != nil {
			sc.Habitat.Humidity = e.Humidity
		}
		if e.WaterAvailability != nil {
			sc.Habitat.WaterAvailability = e.WaterAvailability
		}
		sc.Seed = e.Seed
		out = append(out, sc)
	}
	return f, out, nil
}

func newRunCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run several scenarios and rank them",
		Long: `Run named scenarios through one model and rank them by a metric.

Scenarios come from --preset (repeatable) and/or a YAML --file:

  type: population
  metric: peak_population
  scenarios:
    - preset: baseline
    - name: hot
      preset: baseline
      temperature: 33
    - name: custom
      days: 60
      initial: {eggs: 200, larvae: [10, 20, 30, 40], pupae: 5, adults: 10}
      water_availability: 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openForRun(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			flags := cmd.Flags()
			req := scenario.ComparisonRequest{}
			req.Type, _ = flags.GetString("type")
			req.Metric, _ = flags.GetString("metric")
			req.Checkpoint, _ = flags.GetString("checkpoint")

			if path, _ := flags.GetString("file"); path != "" {
				f, scenarios, err := loadScenarios(path, a.cfg)
				if err != nil {
					return err
				}
				if f.Type != "" && !flags.Changed("type") {
					req.Type = f.Type
				}
				if f.Metric != "" && !flags.Changed("metric") {
					req.Metric = f.Metric
				}
				req.Scenarios = append(req.Scenarios, scenarios...)
			}
			presets, _ := flags.GetStringSlice("preset")
			for _, name := range presets {
				p, err := a.cfg.Preset(name)
				if err != nil {
					return err
				}
				req.Scenarios = append(req.Scenarios, scenario.FromPreset(p))
			}
			if a.seed != nil {
				for i := range req.Scenarios {
					if req.Scenarios[i].Seed == nil {
						req.Scenarios[i].Seed = a.seed
					}
				}
			}

			res, err := a.runner.CompareScenarios(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) { printComparison(w, res) })
		},
	}
	f := cmd.Flags()
	f.StringSlice("preset", nil, "Add a configured preset as a scenario (repeatable)")
	f.String("file", "", "YAML file of scenarios")
	f.String("type", scenario.TypePopulation, "Model: population or agent")
	f.String("metric", scenario.MetricPeakPopulation, "Ranking metric")
	f.String("checkpoint", "", "Save the comparison under this checkpoint name")
	return cmd
}
