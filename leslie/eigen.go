package leslie

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/vectorsim/simerr"
)

const degenerateTol = 1e-12

// Analysis holds the asymptotic properties of a Leslie matrix.
type Analysis struct {
	Lambda            float64   // dominant eigenvalue λ1
	StableStage       []float64 // right eigenvector, sums to 1
	ReproductiveValue []float64 // left eigenvector, first entry 1
	GenerationTime    float64
	R                 float64 // ln λ1, −Inf when λ1 <= 0
	DoublingTime      float64 // ln2 / r, valid only when HasDoublingTime
	HasDoublingTime   bool
}

// Eigenanalysis computes λ1 and the associated stage vectors.
func (m *Matrix) Eigenanalysis() (Analysis, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(m.a, mat.EigenBoth); !ok {
		return Analysis{}, fmt.Errorf("eigen decomposition: %w", simerr.ErrNumericDegeneracy)
	}

	values := eig.Values(nil)
	dom := 0
	for i, v := range values {
		if cmplx.Abs(v) > cmplx.Abs(values[dom]) {
			dom = i
		}
	}
	lambda := real(values[dom])

	var right, left mat.CDense
	eig.VectorsTo(&right)
	eig.LeftVectorsTo(&left)

	w := make([]float64, m.n)
	v := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		w[i] = real(right.At(i, dom))
		v[i] = real(left.At(i, dom))
	}

	res := Analysis{
		Lambda:            lambda,
		StableStage:       normalizeSum(w),
		ReproductiveValue: normalizeFirst(v),
		GenerationTime:    m.GenerationTime(),
		R:                 math.Inf(-1),
	}
	if lambda > 0 {
		res.R = math.Log(lambda)
	}
	if res.R > 0 {
		res.DoublingTime = math.Ln2 / res.R
		res.HasDoublingTime = true
	}
	return res, nil
}

// normalizeSum scales x to sum to one. A zero-sum vector becomes uniform.
func normalizeSum(x []float64) []float64 {
	s := floats.Sum(x)
	if math.Abs(s) < degenerateTol {
		for i := range x {
			x[i] = 1 / float64(len(x))
		}
		return x
	}
	floats.Scale(1/s, x)
	return x
}

// normalizeFirst scales x so x[0] = 1, falling back to the largest
// magnitude entry when x[0] vanishes.
func normalizeFirst(x []float64) []float64 {
	d := x[0]
	if math.Abs(d) < degenerateTol {
		d = x[floats.MaxIdx(absAll(x))]
	}
	if math.Abs(d) < degenerateTol {
		return x
	}
	floats.Scale(1/d, x)
	return x
}

func absAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v)
	}
	return out
}

// IsViable reports whether λ1 >= 1.
func (m *Matrix) IsViable() (bool, error) {
	a, err := m.Eigenanalysis()
	if err != nil {
		return false, err
	}
	return a.Lambda >= 1, nil
}

// StableDistribution maps stage names to their stable-stage share.
func (m *Matrix) StableDistribution() (map[string]float64, error) {
	a, err := m.Eigenanalysis()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, m.n)
	for i, name := range m.names {
		out[name] = a.StableStage[i]
	}
	return out, nil
}

// Sensitivity returns the sensitivity matrix outer(v, w)/⟨v, w⟩ and the
// elasticity matrix (A/λ1) ∘ sensitivity.
func (m *Matrix) Sensitivity() (sens, elas *mat.Dense, err error) {
	a, err := m.Eigenanalysis()
	if err != nil {
		return nil, nil, err
	}
	v := mat.NewVecDense(m.n, a.ReproductiveValue)
	w := mat.NewVecDense(m.n, a.StableStage)
	dot := mat.Dot(v, w)
	if math.Abs(dot) < degenerateTol {
		return nil, nil, fmt.Errorf("sensitivity: ⟨v, w⟩ = %g: %w", dot, simerr.ErrNumericDegeneracy)
	}
	if math.Abs(a.Lambda) < degenerateTol {
		return nil, nil, fmt.Errorf("elasticity: λ1 = %g: %w", a.Lambda, simerr.ErrNumericDegeneracy)
	}

	sens = mat.NewDense(m.n, m.n, nil)
	sens.Outer(1/dot, v, w)

	elas = mat.NewDense(m.n, m.n, nil)
	elas.Scale(1/a.Lambda, m.a)
	elas.MulElem(elas, sens)
	return sens, elas, nil
}

// Comparison contrasts the asymptotic behaviour of two matrices.
type Comparison struct {
	Names          [2]string
	Lambda         [2]float64
	LambdaRatio    float64 // +Inf when the second λ1 is 0
	R              [2]float64
	RDifference    float64
	GenerationTime [2]float64
	R0             [2]float64
	Viable         [2]bool
}

// Compare analyses both matrices and reports their differences.
func Compare(a, b *Matrix, nameA, nameB string) (Comparison, error) {
	ra, err := a.Eigenanalysis()
	if err != nil {
		return Comparison{}, fmt.Errorf("%s: %w", nameA, err)
	}
	rb, err := b.Eigenanalysis()
	if err != nil {
		return Comparison{}, fmt.Errorf("%s: %w", nameB, err)
	}

	c := Comparison{
		Names:          [2]string{nameA, nameB},
		Lambda:         [2]float64{ra.Lambda, rb.Lambda},
		LambdaRatio:    math.Inf(1),
		R:              [2]float64{ra.R, rb.R},
		RDifference:    ra.R - rb.R,
		GenerationTime: [2]float64{ra.GenerationTime, rb.GenerationTime},
		R0:             [2]float64{a.NetReproductiveRate(), b.NetReproductiveRate()},
		Viable:         [2]bool{ra.Lambda >= 1, rb.Lambda >= 1},
	}
	if rb.Lambda != 0 {
		c.LambdaRatio = ra.Lambda / rb.Lambda
	}
	return c, nil
}
