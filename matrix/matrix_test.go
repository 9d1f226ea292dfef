package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func identity(n int, scale float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, scale)
	}
	return m
}

type term struct {
	idx []int
	a   []*mat.Dense
	b   *mat.VecDense
}

// chainTerms returns terms of a well posed system of blocks [3, 2, 3] chained by two terms.
func chainTerms() []term {
	return []term{
		{
			idx: []int{0},
			a:   []*mat.Dense{identity(3, 2.0)},
			b:   mat.NewVecDense(3, []float64{1, 2, 3}),
		},
		{
			idx: []int{0, 1},
			a: []*mat.Dense{
				mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 0}),
				mat.NewDense(2, 2, []float64{1, 0.5, 0, 1}),
			},
			b: mat.NewVecDense(2, []float64{0.5, -1}),
		},
		{
			idx: []int{2, 1},
			a: []*mat.Dense{
				identity(3, 1.0),
				mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1}),
			},
			b: mat.NewVecDense(3, []float64{1, 1, 1}),
		},
		{
			idx: []int{2},
			a:   []*mat.Dense{identity(3, 1.0)},
			b:   mat.NewVecDense(3, nil),
		},
	}
}

// chainSystem builds a well posed system of three blocks chained by two terms.
func chainSystem(t *testing.T) *System {
	s, err := NewSystem([]int{3, 2, 3})
	assert.NoError(t, err)

	for _, tc := range chainTerms() {
		assert.NoError(t, s.Add(tc.idx, tc.a, tc.b))
	}

	return s
}

func concat(v []*mat.VecDense) *mat.VecDense {
	var data []float64
	for _, b := range v {
		data = append(data, b.RawVector().Data...)
	}
	return mat.NewVecDense(len(data), data)
}

func TestNewSystem(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		dims []int
		ok   bool
	}{
		{[]int{3, 2}, true},
		{[]int{}, false},
		{[]int{3, 0}, false},
		{[]int{-1}, false},
	}

	for _, tc := range testCases {
		s, err := NewSystem(tc.dims)
		if !tc.ok {
			assert.Error(err)
			assert.Nil(s)
			continue
		}
		assert.NoError(err)
		assert.Equal(len(tc.dims), s.Len())
		for i, d := range tc.dims {
			assert.Equal(d, s.Dim(i))
		}
	}
}

func TestSystemAdd(t *testing.T) {
	assert := assert.New(t)

	s, err := NewSystem([]int{2, 1})
	assert.NoError(err)

	a := identity(2, 2.0)
	b := mat.NewVecDense(2, []float64{1, -1})
	assert.NoError(s.Add([]int{0}, []*mat.Dense{a}, b))

	h := s.Dense()
	assert.Equal(4.0, h.At(0, 0))
	assert.Equal(0.0, h.At(0, 1))
	assert.Equal(0.0, h.At(2, 2))

	g := s.Rhs()
	assert.Equal([]float64{2, -2}, g[0].RawVector().Data)
	assert.Equal([]float64{0}, g[1].RawVector().Data)

	// cross term fills symmetric off-diagonal blocks
	a0 := mat.NewDense(1, 2, []float64{1, 0})
	a1 := mat.NewDense(1, 1, []float64{3})
	assert.NoError(s.Add([]int{1, 0}, []*mat.Dense{a1, a0}, mat.NewVecDense(1, []float64{1})))
	h = s.Dense()
	assert.Equal(3.0, h.At(0, 2))
	assert.Equal(3.0, h.At(2, 0))
	assert.Equal(9.0, h.At(2, 2))

	// invalid terms
	assert.Error(s.Add([]int{0, 0}, []*mat.Dense{a, a}, b))
	assert.Error(s.Add([]int{0}, []*mat.Dense{a, a}, b))
	assert.Error(s.Add([]int{2}, []*mat.Dense{a}, b))
	assert.Error(s.Add([]int{1}, []*mat.Dense{a}, b))
	assert.Error(s.Add([]int{0}, []*mat.Dense{a}, mat.NewVecDense(3, nil)))
}

func TestFactorizeSolve(t *testing.T) {
	assert := assert.New(t)

	s := chainSystem(t)

	var dense mat.Cholesky
	assert.True(dense.Factorize(s.Dense()))
	var want mat.VecDense
	assert.NoError(dense.SolveVecTo(&want, concat(s.Rhs())))

	orders := [][]int{
		{0, 1, 2},
		{2, 1, 0},
		{1, 0, 2},
	}

	for _, order := range orders {
		c, err := s.Factorize(order, 1e12)
		assert.NoError(err)
		assert.Equal(3, c.Len())

		x, err := c.Solve(s.Rhs())
		assert.NoError(err)
		got := concat(x)
		assert.True(mat.EqualApprox(&want, got, 1e-10), "order: %v", order)

		for i := 0; i < s.Len(); i++ {
			assert.False(c.Held(i))
		}
	}
}

func TestFactorizeInvalidOrder(t *testing.T) {
	assert := assert.New(t)

	s := chainSystem(t)

	orders := [][]int{
		{0, 1},
		{0, 1, 1},
		{0, 1, 3},
		{-1, 1, 2},
	}

	for _, order := range orders {
		c, err := s.Factorize(order, 0)
		assert.Error(err)
		assert.Nil(c)
	}
}

func TestSolveInvalidRhs(t *testing.T) {
	assert := assert.New(t)

	s := chainSystem(t)
	c, err := s.Factorize([]int{0, 1, 2}, 0)
	assert.NoError(err)

	_, err = c.Solve(s.Rhs()[:2])
	assert.Error(err)

	g := s.Rhs()
	g[1] = mat.NewVecDense(3, nil)
	_, err = c.Solve(g)
	assert.Error(err)
}

func TestHeld(t *testing.T) {
	assert := assert.New(t)

	s, err := NewSystem([]int{3, 2, 2})
	assert.NoError(err)

	// block 1 is never constrained, block 2 is nearly singular
	assert.NoError(s.Add([]int{0}, []*mat.Dense{identity(3, 2.0)}, mat.NewVecDense(3, []float64{4, 2, -2})))
	assert.NoError(s.Add([]int{2}, []*mat.Dense{mat.NewDense(2, 2, []float64{1, 0, 0, 1e-8})}, mat.NewVecDense(2, []float64{1, 1})))

	c, err := s.Factorize([]int{2, 1, 0}, 1e12)
	assert.NoError(err)
	assert.False(c.Held(0))
	assert.True(c.Held(1))
	assert.True(c.Held(2))

	x, err := c.Solve(s.Rhs())
	assert.NoError(err)
	assert.InDeltaSlice([]float64{2, 1, -1}, x[0].RawVector().Data, 1e-12)
	assert.Equal([]float64{0, 0}, x[1].RawVector().Data)
	assert.Equal([]float64{0, 0}, x[2].RawVector().Data)

	_, err = c.Marginal(1)
	assert.ErrorIs(err, ErrSingular)

	// no condition limit keeps the nearly singular block
	c, err = s.Factorize([]int{0, 1, 2}, 0)
	assert.NoError(err)
	assert.False(c.Held(2))
	assert.True(c.Held(1))
}

func TestMarginal(t *testing.T) {
	assert := assert.New(t)

	s := chainSystem(t)

	var dense mat.Cholesky
	assert.True(dense.Factorize(s.Dense()))
	var inv mat.SymDense
	assert.NoError(dense.InverseTo(&inv))

	c, err := s.Factorize([]int{1, 2, 0}, 0)
	assert.NoError(err)

	offs := []int{0, 3, 5}
	for i := 0; i < s.Len(); i++ {
		cov, err := c.Marginal(i)
		assert.NoError(err)
		d := s.Dim(i)
		want := inv.SliceSym(offs[i], offs[i]+d)
		assert.True(mat.EqualApprox(want, cov, 1e-10), "block: %d", i)
	}

	_, err = c.Marginal(3)
	assert.Error(err)
}
