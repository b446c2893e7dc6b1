package scenario

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/pthm-cable/vectorsim/storage"
)

// ScenarioMetrics are one scenario's comparable figures. The agent fields
// are only set for agent comparisons.
type ScenarioMetrics struct {
	Name string `json:"name"`
	Seed uint64 `json:"seed"`
	ModelMetrics

	SurvivalRate  *float64 `json:"survival_rate,omitempty"`
	TotalEggs     *int     `json:"total_eggs,omitempty"`
	EggsPerVector *float64 `json:"avg_eggs_per_vector,omitempty"`
}

// ComparisonResult ranks scenarios best first by the requested metric.
type ComparisonResult struct {
	Type      string            `json:"type"`
	Metric    string            `json:"metric"`
	Scenarios []ScenarioMetrics `json:"scenarios"`
	Ranking   []string          `json:"ranking"`
	Best      string            `json:"best"`
	Worst     string            `json:"worst"`

	OutputDir    string `json:"output_dir,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

type comparisonRow struct {
	Rank            int     `csv:"rank"`
	Name            string  `csv:"name"`
	FinalPopulation int     `csv:"final_population"`
	PeakPopulation  int     `csv:"peak_population"`
	PeakDay         int     `csv:"peak_day"`
	MeanPopulation  float64 `csv:"mean_population"`
	ExtinctionDay   string  `csv:"extinction_day"`
}

// CompareScenarios runs every scenario through the requested model and
// ranks them.
func (r *Runner) CompareScenarios(ctx context.Context, req ComparisonRequest) (*ComparisonResult, error) {
	if err := req.Validate(r.cfg); err != nil {
		return nil, err
	}
	logger := r.logger.With("kind", storage.KindScenarios, "type", req.Type, "metric", req.Metric)

	req.Scenarios = slices.Clone(req.Scenarios)
	res := &ComparisonResult{Type: req.Type, Metric: req.Metric}
	for i, sc := range req.Scenarios {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seed := r.seed(sc.Seed)
		req.Scenarios[i].Seed = &seed

		m, err := r.runScenario(ctx, req.Type, sc.PopulationRequest, seed)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
		m.Name = sc.Name
		res.Scenarios = append(res.Scenarios, m)
		logger.Debug("scenario complete", "name", sc.Name, "final", m.FinalPopulation, "peak", m.PeakPopulation)
	}

	res.Ranking = Rank(res.Scenarios, req.Metric)
	if len(res.Ranking) > 0 {
		res.Best = res.Ranking[0]
		res.Worst = res.Ranking[len(res.Ranking)-1]
	}

	out, err := r.outputs(storage.KindScenarios, req.Checkpoint)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if out != nil {
		if err := out.WriteSeries("comparison", res.rows()); err != nil {
			return nil, err
		}
		if err := out.WriteJSON("summary", res); err != nil {
			return nil, err
		}
	}
	res.OutputDir = out.Dir()

	species := ""
	if len(req.Scenarios) > 0 {
		species = req.Scenarios[0].Species
	}
	days := 0
	for _, sc := range req.Scenarios {
		days = max(days, sc.Days)
	}
	if res.CheckpointID, err = r.checkpoint(ctx, req.Checkpoint, storage.KindScenarios, species, days, req, res); err != nil {
		return nil, err
	}
	logger.Info("scenario comparison complete", "best", res.Best, "worst", res.Worst, "ranking", res.Ranking)
	return res, nil
}

func (r *Runner) runScenario(ctx context.Context, typ string, req PopulationRequest, seed uint64) (ScenarioMetrics, error) {
	m := ScenarioMetrics{Seed: seed}
	if typ == TypeAgent {
		run, err := r.simulateAgents(ctx, AgentRequest{
			Species: req.Species,
			Days:    req.Days,
			Vectors: req.Initial.Adults,
			Habitat: req.Habitat,
		}, seed, nil)
		if err != nil {
			return m, err
		}
		st := run.result.Statistics()
		m.ModelMetrics = ModelMetrics{
			FinalPopulation: st.FinalVectors,
			PeakPopulation:  st.PeakVectors,
			PeakDay:         st.PeakDay,
			MeanPopulation:  st.MeanVectors,
			ExtinctionDay:   st.ExtinctionDay,
		}
		m.SurvivalRate = &st.VectorSurvivalRate
		m.TotalEggs = &st.TotalEggs
		m.EggsPerVector = &st.EggsPerVector
		return m, nil
	}

	run, err := r.simulatePopulation(ctx, req, seed, nil)
	if err != nil {
		return m, err
	}
	s := run.trajectory.Summarize()
	m.ModelMetrics = ModelMetrics{
		FinalPopulation: s.FinalPopulation,
		PeakPopulation:  s.MaxPopulation,
		PeakDay:         s.PeakDay,
		MeanPopulation:  s.MeanPopulation,
		ExtinctionDay:   s.ExtinctionDay,
	}
	return m, nil
}

// Rank orders scenario names best first. Population metrics and peak day
// rank higher values first. For extinction day the earliest extinction
// ranks first and scenarios that never went extinct follow. Ties keep
// request order.
func Rank(scenarios []ScenarioMetrics, metric string) []string {
	sorted := slices.Clone(scenarios)
	if metric == MetricExtinctionDay {
		slices.SortStableFunc(sorted, func(a, b ScenarioMetrics) int {
			switch {
			case a.ExtinctionDay == nil && b.ExtinctionDay == nil:
				return 0
			case a.ExtinctionDay == nil:
				return 1
			case b.ExtinctionDay == nil:
				return -1
			}
			return *a.ExtinctionDay - *b.ExtinctionDay
		})
	} else {
		slices.SortStableFunc(sorted, func(a, b ScenarioMetrics) int {
			va, vb := metricValue(a, metric), metricValue(b, metric)
			switch {
			case va > vb:
				return -1
			case va < vb:
				return 1
			}
			return 0
		})
	}
	names := make([]string, len(sorted))
	for i, s := range sorted {
		names[i] = s.Name
	}
	return names
}

func metricValue(m ScenarioMetrics, metric string) float64 {
	switch metric {
	case MetricPeakPopulation:
		return float64(m.PeakPopulation)
	case MetricFinalPopulation:
		return float64(m.FinalPopulation)
	case MetricMeanPopulation:
		return m.MeanPopulation
	case MetricPeakDay:
		return float64(m.PeakDay)
	}
	return 0
}

func (c *ComparisonResult) rows() []comparisonRow {
	rank := make(map[string]int, len(c.Ranking))
	for i, name := range c.Ranking {
		rank[name] = i + 1
	}
	out := make([]comparisonRow, len(c.Scenarios))
	for i, s := range c.Scenarios {
		out[i] = comparisonRow{
			Rank:            rank[s.Name],
			Name:            s.Name,
			FinalPopulation: s.FinalPopulation,
			PeakPopulation:  s.PeakPopulation,
			PeakDay:         s.PeakDay,
			MeanPopulation:  s.MeanPopulation,
		}
		if s.ExtinctionDay != nil {
			out[i].ExtinctionDay = strconv.Itoa(*s.ExtinctionDay)
		}
	}
	return out
}
