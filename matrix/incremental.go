package matrix

import (
	"fmt"
	"math"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
)

// Incremental is a block Cholesky factorization H = R'*R of a growing block-sparse
// system H*x = g. Blocks are eliminated in the order they were added.
// Changing the system invalidates the factor rows from the first changed block onward:
// Update re-eliminates only those rows and keeps the rows of all earlier blocks.
// Blocks which are not positive definite are held: they are removed from the system
// and solve to zero.
type Incremental struct {
	condLimit float64
	dims      []int
	// h stores blocks H[i][j] for i <= j
	h []map[int]*mat.Dense
	// g stores right hand side blocks
	g []*mat.VecDense
	// r stores off-diagonal factor blocks R[i][j] for i < j
	r []map[int]*mat.Dense
	// above stores for each block j the blocks i < j with non-nil R[i][j]
	above []map[int]struct{}
	// inv stores inverses of the upper triangular diagonal factor blocks
	inv  []*mat.TriDense
	held []bool
	// y stores forward substitution of g: R'*y = g
	y []*mat.VecDense
	// x stores the last solution
	x []*mat.VecDense
	// lost marks blocks whose solution was not finite
	lost []bool
	// valid is the number of leading blocks whose factor rows are up to date
	valid int
	// from is the first block re-eliminated since the last Solve
	from int
}

// NewIncremental creates new empty factorization which holds blocks whose
// condition number exceeds condLimit when condLimit is positive.
func NewIncremental(condLimit float64) *Incremental {
	return &Incremental{
		condLimit: condLimit,
	}
}

// Len returns the number of blocks
func (m *Incremental) Len() int {
	return len(m.dims)
}

// Dim returns the dimension of block i
func (m *Incremental) Dim(i int) int {
	return m.dims[i]
}

// Grow appends a new block of dimension dim to the system and returns its index.
func (m *Incremental) Grow(dim int) (int, error) {
	if dim <= 0 {
		return -1, fmt.Errorf("invalid block dimension: %d", dim)
	}

	m.dims = append(m.dims, dim)
	m.h = append(m.h, make(map[int]*mat.Dense))
	m.g = append(m.g, mat.NewVecDense(dim, nil))
	m.r = append(m.r, nil)
	m.above = append(m.above, make(map[int]struct{}))
	m.inv = append(m.inv, nil)
	m.held = append(m.held, false)
	m.y = append(m.y, mat.NewVecDense(dim, nil))
	m.x = append(m.x, mat.NewVecDense(dim, nil))
	m.lost = append(m.lost, false)

	return len(m.dims) - 1, nil
}

// Add adds the least-squares term ||sum(a[k]*x[idx[k]]) - b||^2 to the system.
// It returns error if the term dimensions do not match the system or idx repeats a block.
func (m *Incremental) Add(idx []int, a []*mat.Dense, b *mat.VecDense) error {
	return m.update(idx, a, b, 1)
}

// Remove removes the least-squares term previously added with Add.
func (m *Incremental) Remove(idx []int, a []*mat.Dense, b *mat.VecDense) error {
	return m.update(idx, a, b, -1)
}

func (m *Incremental) update(idx []int, a []*mat.Dense, b *mat.VecDense, sign float64) error {
	if err := checkTerm(m.dims, idx, a, b); err != nil {
		return err
	}

	accumulate(m.dims, m.h, m.g, idx, a, b, sign)

	for _, i := range idx {
		if i < m.valid {
			m.valid = i
		}
	}

	return nil
}

// Update re-eliminates the factor rows invalidated since the last Update
// and returns the number of re-eliminated blocks.
func (m *Incremental) Update() int {
	n := len(m.dims)
	start := m.valid

	for i := start; i < n; i++ {
		for j := range m.r[i] {
			delete(m.above[j], i)
		}
		m.r[i] = nil
		m.inv[i] = nil
		m.held[i] = false
	}

	for i := start; i < n; i++ {
		m.eliminate(i)
	}

	if start < m.from {
		m.from = start
	}
	m.valid = n

	return n - start
}

// eliminate computes factor row i from H row i and the factor rows above it.
func (m *Incremental) eliminate(i int) {
	dim := m.dims[i]

	d := mat.NewDense(dim, dim, nil)
	if h, ok := m.h[i][i]; ok {
		d.Copy(h)
	}
	rhs := mat.VecDenseCopyOf(m.g[i])

	acc := make(map[int]*mat.Dense)
	for j, h := range m.h[i] {
		if j > i {
			acc[j] = mat.DenseCopyOf(h)
		}
	}

	for _, k := range sorted(m.above[i]) {
		rki := m.r[k][i]

		upd := &mat.Dense{}
		upd.Mul(rki.T(), rki)
		d.Sub(d, upd)

		t := &mat.VecDense{}
		t.MulVec(rki.T(), m.y[k])
		rhs.SubVec(rhs, t)

		for j, rkj := range m.r[k] {
			if j <= i {
				continue
			}
			upd := &mat.Dense{}
			upd.Mul(rki.T(), rkj)
			blk, ok := acc[j]
			if !ok {
				blk = mat.NewDense(dim, m.dims[j], nil)
				acc[j] = blk
			}
			blk.Sub(blk, upd)
		}
	}

	uinv, ok := factorizeBlock(d, dim, m.condLimit)
	if !ok {
		m.held[i] = true
		m.y[i] = mat.NewVecDense(dim, nil)
		return
	}
	m.inv[i] = uinv

	m.r[i] = make(map[int]*mat.Dense, len(acc))
	for j, blk := range acc {
		rij := &mat.Dense{}
		rij.Mul(uinv.T(), blk)
		m.r[i][j] = rij
		m.above[j][i] = struct{}{}
	}

	y := &mat.VecDense{}
	y.MulVec(uinv.T(), rhs)
	m.y[i] = y
}

// Solve solves H*x = g by back substitution and returns the indices of the solved
// blocks in descending order. Blocks re-eliminated since the previous Solve are always
// solved. Any other block is solved again only if the solution of a block it depends on
// moved by more than threshold; otherwise it keeps its previous solution.
func (m *Incremental) Solve(threshold float64) []int {
	if m.valid < len(m.dims) {
		m.Update()
	}

	var solved []int
	pending := make(map[int]bool)

	for i := len(m.dims) - 1; i >= 0; i-- {
		if i < m.from {
			if len(pending) == 0 {
				break
			}
			if !pending[i] {
				continue
			}
			delete(pending, i)
		}

		x := m.solveBlock(i)
		moved := 0.0
		for k := 0; k < x.Len(); k++ {
			moved = math.Max(moved, math.Abs(x.AtVec(k)-m.x[i].AtVec(k)))
		}
		m.x[i] = x
		solved = append(solved, i)

		if moved > threshold {
			for k := range m.above[i] {
				if k < m.from {
					pending[k] = true
				}
			}
		}
	}
	m.from = len(m.dims)

	return solved
}

// solveBlock back substitutes block i given the solution of the blocks after it.
func (m *Incremental) solveBlock(i int) *mat.VecDense {
	dim := m.dims[i]
	m.lost[i] = false
	if m.held[i] {
		return mat.NewVecDense(dim, nil)
	}

	s := mat.VecDenseCopyOf(m.y[i])
	for _, j := range sorted(m.r[i]) {
		t := &mat.VecDense{}
		t.MulVec(m.r[i][j], m.x[j])
		s.SubVec(s, t)
	}

	x := &mat.VecDense{}
	x.MulVec(m.inv[i], s)
	for k := 0; k < dim; k++ {
		if v := x.AtVec(k); math.IsNaN(v) || math.IsInf(v, 0) {
			m.lost[i] = true
			return mat.NewVecDense(dim, nil)
		}
	}

	return x
}

// Solution returns a copy of the last solution of block i
func (m *Incremental) Solution(i int) []float64 {
	return append([]float64(nil), m.x[i].RawVector().Data...)
}

// Held returns true if block i was held during factorization
// or its last solution was not finite.
func (m *Incremental) Held(i int) bool {
	return m.held[i] || m.lost[i]
}

// Marginal returns block i of the inverse of H: the marginal covariance of block i.
// Only the blocks from i onward take part in the computation.
// It returns ErrSingular if block i is held.
func (m *Incremental) Marginal(i int) (*mat.SymDense, error) {
	n := len(m.dims)
	if i < 0 || i >= n {
		return nil, fmt.Errorf("invalid block index: %d", i)
	}
	if m.valid < n {
		m.Update()
	}
	if m.Held(i) {
		return nil, ErrSingular
	}

	dim := m.dims[i]
	cols := make([]*mat.VecDense, dim)
	for c := 0; c < dim; c++ {
		// forward substitution of the unit vector: y is zero above block i
		y := make([]*mat.VecDense, n)
		for p := i; p < n; p++ {
			w := mat.NewVecDense(m.dims[p], nil)
			if m.held[p] {
				y[p] = w
				continue
			}
			if p == i {
				w.SetVec(c, 1)
			}
			for _, k := range sorted(m.above[p]) {
				if k < i {
					continue
				}
				t := &mat.VecDense{}
				t.MulVec(m.r[k][p].T(), y[k])
				w.SubVec(w, t)
			}
			yp := &mat.VecDense{}
			yp.MulVec(m.inv[p].T(), w)
			y[p] = yp
		}

		x := make([]*mat.VecDense, n)
		for p := n - 1; p >= i; p-- {
			if m.held[p] {
				x[p] = mat.NewVecDense(m.dims[p], nil)
				continue
			}
			s := mat.VecDenseCopyOf(y[p])
			for _, j := range sorted(m.r[p]) {
				t := &mat.VecDense{}
				t.MulVec(m.r[p][j], x[j])
				s.SubVec(s, t)
			}
			xp := &mat.VecDense{}
			xp.MulVec(m.inv[p], s)
			x[p] = xp
		}
		cols[c] = x[i]
	}

	cov := mat.NewSymDense(dim, nil)
	for a := 0; a < dim; a++ {
		for b := a; b < dim; b++ {
			cov.SetSym(a, b, 0.5*(cols[b].AtVec(a)+cols[a].AtVec(b)))
		}
	}

	return cov, nil
}

// sorted returns the keys of m in ascending order
func sorted[V any](m map[int]V) []int {
	keys := maps.Keys(m)
	slices.Sort(keys)

	return keys
}
