package matrix

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a block can not be solved for
var ErrSingular = errors.New("singular block")

// System is a block-sparse symmetric linear system H*x = g assembled from
// whitened least-squares terms: H = sum(A'*A), g = sum(A'*b).
// Each block row/column corresponds to one variable.
type System struct {
	// dims stores block dimensions
	dims []int
	// upper stores blocks H[i][j] for i <= j
	upper []map[int]*mat.Dense
	// rhs stores g blocks
	rhs []*mat.VecDense
}

// NewSystem creates new empty System with blocks of dimensions dims.
// It returns error if any dimension is not positive.
func NewSystem(dims []int) (*System, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("invalid system size: %d", len(dims))
	}

	s := &System{
		dims:  make([]int, len(dims)),
		upper: make([]map[int]*mat.Dense, len(dims)),
		rhs:   make([]*mat.VecDense, len(dims)),
	}

	for i, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("invalid block %d dimension: %d", i, d)
		}
		s.dims[i] = d
		s.upper[i] = make(map[int]*mat.Dense)
		s.rhs[i] = mat.NewVecDense(d, nil)
	}

	return s, nil
}

// Len returns the number of blocks
func (s *System) Len() int {
	return len(s.dims)
}

// Dim returns the dimension of block i
func (s *System) Dim(i int) int {
	return s.dims[i]
}

// Add adds the least-squares term ||sum(a[k]*x[idx[k]]) - b||^2 to the system.
// It returns error if the term dimensions do not match the system or idx repeats a block.
func (s *System) Add(idx []int, a []*mat.Dense, b *mat.VecDense) error {
	if err := checkTerm(s.dims, idx, a, b); err != nil {
		return err
	}

	accumulate(s.dims, s.upper, s.rhs, idx, a, b, 1)

	return nil
}

// checkTerm verifies the least-squares term given by idx, a and b matches blocks of dims.
func checkTerm(dims []int, idx []int, a []*mat.Dense, b *mat.VecDense) error {
	if len(idx) != len(a) {
		return fmt.Errorf("invalid term: %d blocks, %d matrices", len(idx), len(a))
	}

	for k, i := range idx {
		if i < 0 || i >= len(dims) {
			return fmt.Errorf("invalid block index: %d", i)
		}
		r, c := a[k].Dims()
		if r != b.Len() || c != dims[i] {
			return fmt.Errorf("invalid block %d dimensions: [%d x %d]", i, r, c)
		}
		for l := k + 1; l < len(idx); l++ {
			if idx[l] == i {
				return fmt.Errorf("repeated block index: %d", i)
			}
		}
	}

	return nil
}

// accumulate adds sign*A'*A to the upper blocks and sign*A'*b to the rhs blocks.
func accumulate(dims []int, upper []map[int]*mat.Dense, rhs []*mat.VecDense, idx []int, a []*mat.Dense, b *mat.VecDense, sign float64) {
	for k, i := range idx {
		atb := &mat.VecDense{}
		atb.MulVec(a[k].T(), b)
		rhs[i].AddScaledVec(rhs[i], sign, atb)

		for l, j := range idx {
			if i > j {
				continue
			}
			ata := &mat.Dense{}
			ata.Mul(a[k].T(), a[l])
			blk, ok := upper[i][j]
			if !ok {
				blk = mat.NewDense(dims[i], dims[j], nil)
				upper[i][j] = blk
			}
			if sign < 0 {
				blk.Sub(blk, ata)
				continue
			}
			blk.Add(blk, ata)
		}
	}
}

// Rhs returns a copy of the right hand side blocks
func (s *System) Rhs() []*mat.VecDense {
	rhs := make([]*mat.VecDense, len(s.rhs))
	for i, g := range s.rhs {
		rhs[i] = mat.VecDenseCopyOf(g)
	}

	return rhs
}

// Dense returns H assembled into a dense symmetric matrix.
func (s *System) Dense() *mat.SymDense {
	offs := make([]int, len(s.dims))
	n := 0
	for i, d := range s.dims {
		offs[i] = n
		n += d
	}

	h := mat.NewSymDense(n, nil)
	for i, row := range s.upper {
		for j, blk := range row {
			r, c := blk.Dims()
			for a := 0; a < r; a++ {
				for b := 0; b < c; b++ {
					if i == j && b < a {
						continue
					}
					h.SetSym(offs[i]+a, offs[j]+b, blk.At(a, b))
				}
			}
		}
	}

	return h
}

// Cholesky is a sparse block Cholesky factorization H = R'*R computed in a given
// elimination order. Blocks which are not positive definite are held: they are
// removed from the system and solve to zero.
type Cholesky struct {
	dims []int
	// order maps elimination position to block index
	order []int
	// pos maps block index to elimination position
	pos []int
	// cols and blks store off-diagonal factor blocks R[p][cols[p][k]] of each position p
	cols [][]int
	blks [][]*mat.Dense
	// inv stores inverses of the upper triangular diagonal factor blocks
	inv  []*mat.TriDense
	held []bool
}

// Factorize computes the block Cholesky factorization of s, eliminating blocks in order.
// A diagonal block which is not positive definite, or whose condition number exceeds
// condLimit when condLimit is positive, is held.
// It returns error if order is not a permutation of block indices.
func (s *System) Factorize(order []int, condLimit float64) (*Cholesky, error) {
	n := len(s.dims)
	if len(order) != n {
		return nil, fmt.Errorf("invalid elimination order length: %d", len(order))
	}

	pos := make([]int, n)
	for i := range pos {
		pos[i] = -1
	}
	for p, i := range order {
		if i < 0 || i >= n || pos[i] != -1 {
			return nil, fmt.Errorf("invalid elimination order: %v", order)
		}
		pos[i] = p
	}

	c := &Cholesky{
		dims:  make([]int, n),
		order: append([]int(nil), order...),
		pos:   pos,
		cols:  make([][]int, n),
		blks:  make([][]*mat.Dense, n),
		inv:   make([]*mat.TriDense, n),
		held:  make([]bool, n),
	}
	for p, i := range order {
		c.dims[p] = s.dims[i]
	}

	// work stores the partially eliminated upper blocks indexed by position
	work := make([]map[int]*mat.Dense, n)
	for p := range work {
		work[p] = make(map[int]*mat.Dense)
	}
	for i, row := range s.upper {
		for j, blk := range row {
			pi, pj := pos[i], pos[j]
			if pi <= pj {
				work[pi][pj] = mat.DenseCopyOf(blk)
				continue
			}
			work[pj][pi] = mat.DenseCopyOf(blk.T())
		}
	}

	for p := 0; p < n; p++ {
		uinv, ok := factorizeBlock(work[p][p], c.dims[p], condLimit)
		if !ok {
			c.held[p] = true
			work[p] = nil
			continue
		}
		c.inv[p] = uinv

		cols := make([]int, 0, len(work[p]))
		for q := range work[p] {
			if q > p {
				cols = append(cols, q)
			}
		}
		sort.Ints(cols)

		blks := make([]*mat.Dense, len(cols))
		for k, q := range cols {
			r := &mat.Dense{}
			r.Mul(uinv.T(), work[p][q])
			blks[k] = r
		}
		c.cols[p] = cols
		c.blks[p] = blks

		// Schur complement update of the remaining blocks
		for k, q := range cols {
			for l := k; l < len(cols); l++ {
				t := cols[l]
				upd := &mat.Dense{}
				upd.Mul(blks[k].T(), blks[l])
				blk, ok := work[q][t]
				if !ok {
					blk = mat.NewDense(c.dims[q], c.dims[t], nil)
					work[q][t] = blk
				}
				blk.Sub(blk, upd)
			}
		}
		work[p] = nil
	}

	return c, nil
}

// factorizeBlock returns the inverse of the upper Cholesky factor of block d.
func factorizeBlock(d *mat.Dense, dim int, condLimit float64) (*mat.TriDense, bool) {
	if d == nil {
		return nil, false
	}

	sym := mat.NewSymDense(dim, nil)
	for a := 0; a < dim; a++ {
		for b := a; b < dim; b++ {
			sym.SetSym(a, b, 0.5*(d.At(a, b)+d.At(b, a)))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, false
	}
	if condLimit > 0 && chol.Cond() > condLimit {
		return nil, false
	}

	u := mat.NewTriDense(dim, mat.Upper, nil)
	chol.UTo(u)

	uinv := mat.NewTriDense(dim, mat.Upper, nil)
	if err := uinv.InverseTri(u); err != nil {
		return nil, false
	}

	return uinv, true
}

// Len returns the number of blocks
func (c *Cholesky) Len() int {
	return len(c.dims)
}

// Held returns true if block i was held during factorization
func (c *Cholesky) Held(i int) bool {
	return c.held[c.pos[i]]
}

// Solve solves H*x = g and returns x.
// Held blocks of x are zero.
// It returns error if g blocks do not match the factorized system.
func (c *Cholesky) Solve(g []*mat.VecDense) ([]*mat.VecDense, error) {
	n := len(c.dims)
	if len(g) != n {
		return nil, fmt.Errorf("invalid right hand side size: %d", len(g))
	}

	w := make([]*mat.VecDense, n)
	for p, i := range c.order {
		if g[i].Len() != c.dims[p] {
			return nil, fmt.Errorf("invalid right hand side block %d dimension: %d", i, g[i].Len())
		}
		w[p] = mat.VecDenseCopyOf(g[i])
	}

	// forward substitution: R'*y = g
	y := make([]*mat.VecDense, n)
	for p := 0; p < n; p++ {
		if c.held[p] {
			y[p] = mat.NewVecDense(c.dims[p], nil)
			continue
		}
		yp := &mat.VecDense{}
		yp.MulVec(c.inv[p].T(), w[p])
		y[p] = yp

		for k, q := range c.cols[p] {
			t := &mat.VecDense{}
			t.MulVec(c.blks[p][k].T(), yp)
			w[q].SubVec(w[q], t)
		}
	}

	// back substitution: R*x = y
	x := make([]*mat.VecDense, n)
	for p := n - 1; p >= 0; p-- {
		if c.held[p] {
			x[p] = mat.NewVecDense(c.dims[p], nil)
			continue
		}
		s := mat.VecDenseCopyOf(y[p])
		for k, q := range c.cols[p] {
			t := &mat.VecDense{}
			t.MulVec(c.blks[p][k], x[q])
			s.SubVec(s, t)
		}
		xp := &mat.VecDense{}
		xp.MulVec(c.inv[p], s)
		x[p] = xp
	}

	out := make([]*mat.VecDense, n)
	for p, i := range c.order {
		out[i] = x[p]
	}

	return out, nil
}

// Marginal returns block i of the inverse of H: the marginal covariance of block i.
// It returns ErrSingular if block i was held.
func (c *Cholesky) Marginal(i int) (*mat.SymDense, error) {
	if i < 0 || i >= len(c.dims) {
		return nil, fmt.Errorf("invalid block index: %d", i)
	}
	if c.Held(i) {
		return nil, ErrSingular
	}

	dim := c.dims[c.pos[i]]
	cols := make([]*mat.VecDense, dim)
	for k := 0; k < dim; k++ {
		g := make([]*mat.VecDense, len(c.dims))
		for p, j := range c.order {
			g[j] = mat.NewVecDense(c.dims[p], nil)
		}
		g[i].SetVec(k, 1)

		x, err := c.Solve(g)
		if err != nil {
			return nil, err
		}
		cols[k] = x[i]
	}

	cov := mat.NewSymDense(dim, nil)
	for a := 0; a < dim; a++ {
		for b := a; b < dim; b++ {
			cov.SetSym(a, b, 0.5*(cols[b].AtVec(a)+cols[a].AtVec(b)))
		}
	}

	return cov, nil
}
