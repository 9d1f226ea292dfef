package smooth

import (
	"fmt"
	"math"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/factor"
	"github.com/milosgajdos/go-slam/graph"
	"github.com/milosgajdos/go-slam/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Problem is a linear least-squares problem over a set of variables
// assembled from linearized factors.
type Problem struct {
	keys  []slam.Key
	kinds []slam.Kind
	index map[slam.Key]int
	sys   *matrix.System
}

// NewProblem creates a new empty problem over the variables in keys
// whose dimensions and kinds are read from vals.
// It returns error if any key has no value in vals.
func NewProblem(keys []slam.Key, vals *graph.Values) (*Problem, error) {
	dims := make([]int, len(keys))
	kinds := make([]slam.Kind, len(keys))
	index := make(map[slam.Key]int, len(keys))

	for i, k := range keys {
		v, err := vals.At(k)
		if err != nil {
			return nil, err
		}
		if _, ok := index[k]; ok {
			return nil, fmt.Errorf("%w: %v", slam.ErrDuplicateVariable, k)
		}
		dims[i] = v.Dim()
		kinds[i] = v.Kind()
		index[k] = i
	}

	sys, err := matrix.NewSystem(dims)
	if err != nil {
		return nil, err
	}

	return &Problem{
		keys:  append([]slam.Key(nil), keys...),
		kinds: kinds,
		index: index,
		sys:   sys,
	}, nil
}

// Add adds linear factor l to the problem.
// It returns error if l constrains a variable which is not part of the problem.
func (p *Problem) Add(l *factor.Linear) error {
	idx := make([]int, len(l.Keys))
	for i, k := range l.Keys {
		j, ok := p.index[k]
		if !ok {
			return fmt.Errorf("%w: %v", slam.ErrUnknownVariable, k)
		}
		idx[i] = j
	}

	return p.sys.Add(idx, l.A, l.B)
}

// Order returns the elimination order of the problem variables:
// landmarks are eliminated before poses, each in their problem order.
func (p *Problem) Order() []int {
	order := make([]int, 0, len(p.keys))
	for i, kind := range p.kinds {
		if kind == slam.KindLandmark {
			order = append(order, i)
		}
	}
	for i, kind := range p.kinds {
		if kind != slam.KindLandmark {
			order = append(order, i)
		}
	}

	return order
}

// Solve factorizes the problem and solves it for the variable corrections.
// Variables whose blocks are not positive definite, exceed condLimit
// or whose corrections are not finite are held with zero correction.
func (p *Problem) Solve(condLimit float64) (*Solution, error) {
	chol, err := p.sys.Factorize(p.Order(), condLimit)
	if err != nil {
		return nil, err
	}

	x, err := chol.Solve(p.sys.Rhs())
	if err != nil {
		return nil, err
	}

	s := &Solution{
		keys:  p.keys,
		index: p.index,
		chol:  chol,
		delta: make([][]float64, len(p.keys)),
		held:  make([]bool, len(p.keys)),
	}

	for i := range p.keys {
		d := x[i].RawVector().Data
		s.held[i] = chol.Held(i)
		if !finite(d) {
			s.held[i] = true
			d = make([]float64, len(d))
		}
		s.delta[i] = d
	}

	return s, nil
}

// Solution is the solution of a linear least-squares problem
type Solution struct {
	keys  []slam.Key
	index map[slam.Key]int
	chol  *matrix.Cholesky
	delta [][]float64
	held  []bool
}

// Keys returns solved variable keys
func (s *Solution) Keys() []slam.Key {
	return append([]slam.Key(nil), s.keys...)
}

// Delta returns the correction of variable k or nil if k is not part of the solution
func (s *Solution) Delta(k slam.Key) []float64 {
	i, ok := s.index[k]
	if !ok {
		return nil
	}

	return append([]float64(nil), s.delta[i]...)
}

// Held returns the keys of held variables
func (s *Solution) Held() []slam.Key {
	var held []slam.Key
	for i, k := range s.keys {
		if s.held[i] {
			held = append(held, k)
		}
	}

	return held
}

// Marginal returns the marginal covariance of variable k.
// It returns error wrapping slam.ErrUnderconstrained if k was held.
func (s *Solution) Marginal(k slam.Key) (*mat.SymDense, error) {
	i, ok := s.index[k]
	if !ok {
		return nil, fmt.Errorf("%w: %v", slam.ErrUnknownVariable, k)
	}
	if s.held[i] {
		return nil, fmt.Errorf("%w: %v", slam.ErrUnderconstrained, k)
	}

	return s.chol.Marginal(i)
}

// Retract applies the corrections of solution s to vals and returns the corrected values.
// Variables which are not part of s are copied unchanged.
func Retract(vals *graph.Values, s *Solution) (*graph.Values, error) {
	out := vals.Clone()
	for i, k := range s.keys {
		v, err := vals.At(k)
		if err != nil {
			return nil, err
		}
		if err := out.Update(k, v.Retract(s.delta[i])); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// MaxAbs returns the maximum absolute element of all corrections in s
func MaxAbs(s *Solution) float64 {
	max := 0.0
	for _, d := range s.delta {
		max = math.Max(max, floats.Norm(d, math.Inf(1)))
	}

	return max
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}
