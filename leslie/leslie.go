// Package leslie implements the stage-structured Leslie projection matrix
// used by the population engine, along with its eigenanalysis.
//
// Layout for n stages:
//
//	[F0  F1  ... Fn-1 ]   first row: fecundity (>= 0)
//	[P0  0   ...  0   ]   subdiagonal: daily stage transitions in [0,1]
//	[0   P1  ...  0   ]
//	[0   0   Pn-2 Sa  ]   last diagonal: adult daily survival in [0,1]
//
// Every other entry is zero.
package leslie

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/vectorsim/simerr"
)

// Stage indices of the four-stage mosquito matrix.
const (
	Egg = iota
	Larva
	Pupa
	Adult
	NumStages
)

// DefaultStageNames labels the four-stage matrix.
var DefaultStageNames = []string{"egg", "larva", "pupa", "adult"}

// Matrix is a Leslie projection matrix.
type Matrix struct {
	n     int
	a     *mat.Dense
	names []string
}

// New builds a matrix from n fecundities, n−1 transition rates and the
// adult self-survival. names may be nil.
func New(fecundity, survival []float64, adultSurvival float64, names []string) (*Matrix, error) {
	n := len(fecundity)
	if n < 2 {
		return nil, simerr.Validation("fecundity", n, "need at least two stages")
	}
	if names == nil {
		names = make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("stage_%d", i)
		}
	}
	if len(names) != n {
		return nil, simerr.Validation("stage_names", len(names), fmt.Sprintf("must match stage count %d", n))
	}
	if adultSurvival < 0 || adultSurvival > 1 {
		return nil, simerr.Validation("adult_survival", adultSurvival, "must be in [0, 1]")
	}

	m := &Matrix{
		n:     n,
		a:     mat.NewDense(n, n, nil),
		names: append([]string(nil), names...),
	}
	if err := m.UpdateFecundity(fecundity); err != nil {
		return nil, err
	}
	if err := m.UpdateSurvivalRates(survival); err != nil {
		return nil, err
	}
	m.a.Set(n-1, n-1, adultSurvival)
	return m, nil
}

// Dim returns the number of stages.
func (m *Matrix) Dim() int { return m.n }

// StageNames returns a copy of the stage labels.
func (m *Matrix) StageNames() []string {
	return append([]string(nil), m.names...)
}

// At returns entry (i, j).
func (m *Matrix) At(i, j int) float64 { return m.a.At(i, j) }

// Dense returns a copy of the underlying matrix.
func (m *Matrix) Dense() *mat.Dense {
	return mat.DenseCopyOf(m.a)
}

// Clone returns an independent copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{n: m.n, a: mat.DenseCopyOf(m.a), names: m.StageNames()}
}

// Survival returns the subdiagonal transition rates.
func (m *Matrix) Survival() []float64 {
	out := make([]float64, m.n-1)
	for i := range out {
		out[i] = m.a.At(i+1, i)
	}
	return out
}

// Fecundity returns the first row.
func (m *Matrix) Fecundity() []float64 {
	return mat.Row(nil, 0, m.a)
}

// AdultSurvival returns the last diagonal entry.
func (m *Matrix) AdultSurvival() float64 {
	return m.a.At(m.n-1, m.n-1)
}

// UpdateSurvivalRates replaces the subdiagonal. Rates must number n−1 and
// lie in [0, 1]; on error the matrix is unchanged.
func (m *Matrix) UpdateSurvivalRates(survival []float64) error {
	if len(survival) != m.n-1 {
		return simerr.Validation("survival", len(survival), fmt.Sprintf("need %d rates", m.n-1))
	}
	for i, s := range survival {
		if !(s >= 0 && s <= 1) {
			return simerr.Validation(fmt.Sprintf("survival[%d]", i), s, "must be in [0, 1]")
		}
	}
	for i, s := range survival {
		m.a.Set(i+1, i, s)
	}
	return nil
}

// UpdateFecundity replaces the first row. Values must number n and be
// non-negative; on error the matrix is unchanged.
func (m *Matrix) UpdateFecundity(fecundity []float64) error {
	if len(fecundity) != m.n {
		return simerr.Validation("fecundity", len(fecundity), fmt.Sprintf("need %d values", m.n))
	}
	for i, f := range fecundity {
		if !(f >= 0) {
			return simerr.Validation(fmt.Sprintf("fecundity[%d]", i), f, "must be non-negative")
		}
	}
	m.a.SetRow(0, fecundity)
	return nil
}

// Apply returns A·x.
func (m *Matrix) Apply(x []float64) ([]float64, error) {
	if len(x) != m.n {
		return nil, simerr.Validation("population", len(x), fmt.Sprintf("need %d stages", m.n))
	}
	var out mat.VecDense
	out.MulVec(m.a, mat.NewVecDense(m.n, append([]float64(nil), x...)))
	return out.RawVector().Data, nil
}

// Project applies the matrix steps times and returns the steps+1 vectors
// of the trajectory, starting with x.
func (m *Matrix) Project(x []float64, steps int) ([][]float64, error) {
	if steps < 0 {
		return nil, simerr.Validation("steps", steps, "must be non-negative")
	}
	if len(x) != m.n {
		return nil, simerr.Validation("population", len(x), fmt.Sprintf("need %d stages", m.n))
	}
	traj := make([][]float64, steps+1)
	traj[0] = append([]float64(nil), x...)
	for t := 1; t <= steps; t++ {
		next, _ := m.Apply(traj[t-1])
		traj[t] = next
	}
	return traj, nil
}

// Survivorship returns l(x), the cumulative product of transitions, with
// l(0) = 1.
func (m *Matrix) Survivorship() []float64 {
	l := make([]float64, m.n)
	l[0] = 1
	for i := 1; i < m.n; i++ {
		l[i] = l[i-1] * m.a.At(i, i-1)
	}
	return l
}

// NetReproductiveRate returns R0 = Σ l(x)·m(x).
func (m *Matrix) NetReproductiveRate() float64 {
	l := m.Survivorship()
	var r0 float64
	for i, f := range m.Fecundity() {
		r0 += l[i] * f
	}
	return r0
}

// GenerationTime returns Σ x·l(x)·m(x) / Σ l(x)·m(x), or 0 when nothing
// reproduces.
func (m *Matrix) GenerationTime() float64 {
	l := m.Survivorship()
	var num, den float64
	for i, f := range m.Fecundity() {
		num += float64(i) * l[i] * f
		den += l[i] * f
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func (m *Matrix) String() string {
	return fmt.Sprintf("Leslie(n=%d, stages=%v)", m.n, m.names)
}
