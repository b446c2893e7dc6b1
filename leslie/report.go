package leslie

import "math"

// Report is a serializable summary of a matrix and its eigenanalysis.
// Undefined quantities (r for λ1 <= 0, doubling time for r <= 0) are nil.
type Report struct {
	Matrix            [][]float64        `json:"matrix"`
	Stages            []string           `json:"stages"`
	Lambda            float64            `json:"lambda_1"`
	R                 *float64           `json:"r"`
	DoublingTime      *float64           `json:"doubling_time"`
	GenerationTime    float64            `json:"generation_time"`
	R0                float64            `json:"net_reproductive_rate"`
	StableStage       map[string]float64 `json:"stable_stage_distribution"`
	ReproductiveValue map[string]float64 `json:"reproductive_value"`
	Viable            bool               `json:"is_viable"`
}

// Report analyses the matrix and packages the results.
func (m *Matrix) Report() (Report, error) {
	a, err := m.Eigenanalysis()
	if err != nil {
		return Report{}, err
	}

	rows := make([][]float64, m.n)
	for i := range rows {
		rows[i] = make([]float64, m.n)
		for j := range rows[i] {
			rows[i][j] = m.a.At(i, j)
		}
	}

	rep := Report{
		Matrix:            rows,
		Stages:            m.StageNames(),
		Lambda:            a.Lambda,
		GenerationTime:    a.GenerationTime,
		R0:                m.NetReproductiveRate(),
		StableStage:       make(map[string]float64, m.n),
		ReproductiveValue: make(map[string]float64, m.n),
		Viable:            a.Lambda >= 1,
	}
	if !math.IsInf(a.R, 0) {
		r := a.R
		rep.R = &r
	}
	if a.HasDoublingTime {
		d := a.DoublingTime
		rep.DoublingTime = &d
	}
	for i, name := range m.names {
		rep.StableStage[name] = a.StableStage[i]
		rep.ReproductiveValue[name] = a.ReproductiveValue[i]
	}
	return rep, nil
}
