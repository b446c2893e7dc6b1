package main

import (
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/vectorsim/leslie"
	"github.com/pthm-cable/vectorsim/scenario"
)

// speciesComparison is leslie.Comparison with the λ ratio made JSON-safe.
type speciesComparison struct {
	Names          [2]string  `json:"species"`
	Lambda         [2]float64 `json:"lambda_1"`
	LambdaRatio    *float64   `json:"lambda_ratio"` // nil when the second λ1 is 0
	R              [2]float64 `json:"r"`
	RDifference    float64    `json:"r_difference"`
	GenerationTime [2]float64 `json:"generation_time"`
	R0             [2]float64 `json:"net_reproductive_rate"`
	Viable         [2]bool    `json:"is_viable"`
}

func newSpeciesComparison(c leslie.Comparison) speciesComparison {
	out := speciesComparison{
		Names:          c.Names,
		Lambda:         c.Lambda,
		R:              c.R,
		RDifference:    c.RDifference,
		GenerationTime: c.GenerationTime,
		R0:             c.R0,
		Viable:         c.Viable,
	}
	if !math.IsInf(c.LambdaRatio, 0) && !math.IsNaN(c.LambdaRatio) {
		ratio := c.LambdaRatio
		out.LambdaRatio = &ratio
	}
	return out
}

func newEigenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eigen [species]",
		Short: "Analyse a species' Leslie matrix",
		Long: `Report the dominant eigenvalue, growth rate, doubling and generation
time, net reproductive rate, stable stage distribution, reproductive
values, sensitivity and elasticity of a species' static Leslie matrix.

With --compare, contrast the asymptotic behaviour of two species.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			species := a.cfg.Predation.PreySpecies
			if len(args) == 1 {
				species = args[0]
			}

			if other, _ := cmd.Flags().GetString("compare"); other != "" {
				c, err := a.runner.CompareSpecies(species, other)
				if err != nil {
					return err
				}
				sc := newSpeciesComparison(c)
				return a.print(sc, func(w io.Writer) { printSpeciesComparison(w, sc) })
			}

			rep, err := a.runner.Eigen(species)
			if err != nil {
				return err
			}
			return a.print(rep, func(w io.Writer) { printEigen(w, rep) })
		},
	}
	cmd.Flags().String("compare", "", "Second species to compare against")
	return cmd
}

func newEnvironmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "environment",
		Short: "Generate an environment series without running a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			days, _ := cmd.Flags().GetInt("days")
			if days == 0 {
				days = a.cfg.Simulation.DefaultDays
			}
			var h scenario.Habitat
			habitatFromFlags(cmd, &h)

			res, err := a.runner.Environment(h, days, a.seed)
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) { printEnvironment(w, res) })
		},
	}
	cmd.Flags().Int("days", 0, "Days to generate (0 = simulation.default_days)")
	addHabitatFlags(cmd)
	return cmd
}
