package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pthm-cable/vectorsim/scenario"
	"github.com/pthm-cable/vectorsim/storage"
)

func optionalDay(d *int) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprint(*d)
}

func printOutputs(w io.Writer, dir, checkpoint string) {
	if dir != "" {
		fmt.Fprintf(w, "Outputs:     %s\n", dir)
	}
	if checkpoint != "" {
		fmt.Fprintf(w, "Checkpoint:  %s\n", checkpoint)
	}
}

func printPopulation(w io.Writer, species string, res *scenario.PopulationResult) {
	s := res.Summary
	fmt.Fprintf(w, "Species:     %s (seed %d)\n", species, res.Seed)
	fmt.Fprintf(w, "Population:  %d -> %d (peak %d on day %d, mean %.1f)\n",
		s.InitialPopulation, s.FinalPopulation, s.MaxPopulation, s.PeakDay, s.MeanPopulation)
	fmt.Fprintf(w, "Stages:      eggs %.1f  larvae %.1f  pupae %.1f  adults %.1f (means)\n",
		s.MeanEggs, s.MeanLarvae, s.MeanPupae, s.MeanAdults)
	fmt.Fprintf(w, "Extinction:  %s\n", optionalDay(s.ExtinctionDay))
	fmt.Fprintf(w, "Equilibrium: %s (cv %.3f, risk %s)\n",
		res.Equilibrium.Status, res.Equilibrium.CoefficientOfVariation, res.Equilibrium.ExtinctionRisk)
	fmt.Fprintf(w, "Outlook:     trend %s, risk %s\n", res.Outlook.TrendName, res.Outlook.RiskName)
	if p := res.Predation; p != nil {
		fmt.Fprintf(w, "Predators:   %.0f -> %.0f (peak %.0f), %d prey consumed\n",
			p.PredatorInitial, p.PredatorFinal, p.PredatorPeak, p.PreyConsumed)
	}
	for _, b := range res.Bookmarks {
		fmt.Fprintf(w, "  day %-4d %-18s %s\n", b.Day, b.Type, b.Description)
	}
	printOutputs(w, res.OutputDir, res.CheckpointID)
}

func printPredationComparison(w io.Writer, res *scenario.PredationComparison) {
	fmt.Fprintf(w, "Seed:        %d\n", res.Seed)
	fmt.Fprintf(w, "Without:     final %d, peak %d\n",
		res.Without.Summary.FinalPopulation, res.Without.Summary.MaxPopulation)
	fmt.Fprintf(w, "With:        final %d, peak %d\n",
		res.With.Summary.FinalPopulation, res.With.Summary.MaxPopulation)
	fmt.Fprintf(w, "Reduction:   %d (%.1f%%)\n", res.Impact.PreyReduction, res.Impact.ReductionPercent)
	printOutputs(w, res.OutputDir, res.CheckpointID)
}

func printAgents(w io.Writer, res *scenario.AgentRunResult) {
	st := res.Statistics
	fmt.Fprintf(w, "Run:         %s (seed %d)\n", res.Result.RunID, res.Seed)
	fmt.Fprintf(w, "Vectors:     %d -> %d (peak %d on day %d), survival %.2f\n",
		res.Result.InitialVectors, st.FinalVectors, st.PeakVectors, st.PeakDay, st.VectorSurvivalRate)
	fmt.Fprintf(w, "Predators:   %d -> %d, %d prey consumed\n",
		res.Result.InitialPredators, st.FinalPredators, st.TotalPreyConsumed)
	fmt.Fprintf(w, "Eggs:        %d (%.1f per vector)\n", st.TotalEggs, st.EggsPerVector)
	fmt.Fprintf(w, "Extinction:  %s\n", optionalDay(st.ExtinctionDay))

	causes := make([]string, 0, len(st.DeathsByCause))
	for c := range st.DeathsByCause {
		causes = append(causes, c)
	}
	sort.Strings(causes)
	for _, c := range causes {
		fmt.Fprintf(w, "  deaths %-18s %d\n", c, st.DeathsByCause[c])
	}
	fmt.Fprintf(w, "Rules:       %d queries, %d fallbacks\n", res.Rules.Queries, res.Rules.Fallbacks)
	printOutputs(w, res.OutputDir, res.CheckpointID)
}

func printHybrid(w io.Writer, res *scenario.HybridResult) {
	c := res.Comparison
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tFINAL\tPEAK\tPEAK DAY\tMEAN\tEXTINCT")
	for _, row := range []struct {
		name string
		m    scenario.ModelMetrics
	}{{"population", c.Population}, {"agents", c.Agents}} {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%s\n", row.name,
			row.m.FinalPopulation, row.m.PeakPopulation, row.m.PeakDay, row.m.MeanPopulation, optionalDay(row.m.ExtinctionDay))
	}
	tw.Flush()
	fmt.Fprintf(w, "Difference:  final %+.0f, peak %+.0f, mean %+.1f (agents - population)\n",
		c.FinalDifference, c.PeakDifference, c.MeanDifference)
	fmt.Fprintf(w, "Adult RMSE:  %.2f\n", c.AdultRMSE)
	printOutputs(w, res.OutputDir, res.CheckpointID)
}

func printComparison(w io.Writer, res *scenario.ComparisonResult) {
	fmt.Fprintf(w, "Ranked by %s (%s model)\n", res.Metric, res.Type)
	byName := make(map[string]scenario.ScenarioMetrics, len(res.Scenarios))
	for _, s := range res.Scenarios {
		byName[s.Name] = s
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCENARIO\tFINAL\tPEAK\tPEAK DAY\tMEAN\tEXTINCT")
	for i, name := range res.Ranking {
		s := byName[name]
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%.1f\t%s\n", i+1, name,
			s.FinalPopulation, s.PeakPopulation, s.PeakDay, s.MeanPopulation, optionalDay(s.ExtinctionDay))
	}
	tw.Flush()
	printOutputs(w, res.OutputDir, res.CheckpointID)
}

func printEigen(w io.Writer, rep *scenario.EigenReport) {
	r := rep.Report
	fmt.Fprintf(w, "Species:          %s\n", rep.Species)
	fmt.Fprintf(w, "Lambda:           %.4f (viable %t)\n", r.Lambda, r.Viable)
	if r.R != nil {
		fmt.Fprintf(w, "Growth rate r:    %.4f\n", *r.R)
	}
	if r.DoublingTime != nil {
		fmt.Fprintf(w, "Doubling time:    %.1f days\n", *r.DoublingTime)
	}
	fmt.Fprintf(w, "Generation time:  %.1f days\n", r.GenerationTime)
	fmt.Fprintf(w, "R0:               %.2f\n", r.R0)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTABLE\tREPRODUCTIVE VALUE")
	for _, st := range r.Stages {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", st, r.StableStage[st], r.ReproductiveValue[st])
	}
	tw.Flush()

	fmt.Fprintln(w, "Matrix:")
	for _, row := range r.Matrix {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%9.4f", v)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(cells, " "))
	}
	if rep.Elasticity != nil {
		fmt.Fprintln(w, "Elasticity:")
		for _, row := range rep.Elasticity {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = fmt.Sprintf("%9.4f", v)
			}
			fmt.Fprintf(w, "  %s\n", strings.Join(cells, " "))
		}
	}
}

func printSpeciesComparison(w io.Writer, c speciesComparison) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "\t%s\t%s\n", c.Names[0], c.Names[1])
	fmt.Fprintf(tw, "lambda\t%.4f\t%.4f\n", c.Lambda[0], c.Lambda[1])
	fmt.Fprintf(tw, "r\t%.4f\t%.4f\n", c.R[0], c.R[1])
	fmt.Fprintf(tw, "generation time\t%.1f\t%.1f\n", c.GenerationTime[0], c.GenerationTime[1])
	fmt.Fprintf(tw, "R0\t%.2f\t%.2f\n", c.R0[0], c.R0[1])
	fmt.Fprintf(tw, "viable\t%t\t%t\n", c.Viable[0], c.Viable[1])
	tw.Flush()
	if c.LambdaRatio != nil {
		fmt.Fprintf(w, "Lambda ratio: %.4f\n", *c.LambdaRatio)
	} else {
		fmt.Fprintln(w, "Lambda ratio: undefined (second lambda is 0)")
	}
	fmt.Fprintf(w, "r difference: %.4f\n", c.RDifference)
}

func printEnvironment(w io.Writer, res *scenario.EnvironmentResult) {
	st := res.Statistics
	fmt.Fprintf(w, "Seed:           %d, %d days\n", res.Seed, len(res.Conditions))
	fmt.Fprintf(w, "Temperature:    mean %.2f, std %.2f, range %.2f..%.2f\n",
		st.Temperature.Mean, st.Temperature.Std, st.Temperature.Min, st.Temperature.Max)
	fmt.Fprintf(w, "Humidity:       mean %.2f, std %.2f, range %.2f..%.2f\n",
		st.Humidity.Mean, st.Humidity.Std, st.Humidity.Min, st.Humidity.Max)
	fmt.Fprintf(w, "Capacity:       mean %.0f, range %d..%d\n", st.Capacity.Mean, st.Capacity.Min, st.Capacity.Max)
	if st.Rainfall.Max > 0 {
		fmt.Fprintf(w, "Rainfall:       mean %.2f mm, max %.2f mm\n", st.Rainfall.Mean, st.Rainfall.Max)
	}
	fmt.Fprintf(w, "Favorable days: %d\n", res.FavorableDays)
	printOutputs(w, res.OutputDir, "")
}

func printCheckpoints(w io.Writer, cps []storage.Checkpoint) {
	if len(cps) == 0 {
		fmt.Fprintln(w, "No checkpoints.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tSPECIES\tDAYS\tCREATED")
	for _, cp := range cps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", cp.ID[:8], cp.Name, cp.Kind, cp.Species, cp.Days,
			cp.Created().Local().Format(time.DateTime))
	}
	tw.Flush()
}
