package factor

import (
	"fmt"
	"math"

	slam "github.com/milosgajdos/go-slam"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear is a factor linearized around the linearization point of its variables.
// Its cost for a correction d of the variables is 0.5*||sum(A[i]*d[i]) - B||^2.
type Linear struct {
	// Keys are the keys of the linearized factor
	Keys []slam.Key
	// A stores whitened Jacobians, one per key
	A []*mat.Dense
	// B is the negated whitened residual
	B *mat.VecDense
}

// Error returns the cost of the linear factor at zero correction.
func (l *Linear) Error() float64 {
	return 0.5 * mat.Dot(l.B, l.B)
}

// Check verifies that factor f can be evaluated at vals.
// It returns error wrapping slam.ErrInvalidFactor if the factor keys are not unique,
// if its noise model dimension differs from the residual dimension or if the residual
// can not be computed for vals.
func Check(f slam.Factor, vals []slam.Value) error {
	keys := f.Keys()
	if len(keys) != len(vals) {
		return fmt.Errorf("%w: %d keys, %d values", slam.ErrInvalidFactor, len(keys), len(vals))
	}

	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[i] == keys[j] {
				return fmt.Errorf("%w: key %v repeated", slam.ErrInvalidFactor, keys[i])
			}
		}
	}

	if f.Noise() == nil || f.Noise().Dim() != f.Dim() {
		return fmt.Errorf("%w: noise model does not match factor dimension %d", slam.ErrInvalidFactor, f.Dim())
	}

	r, err := f.Residual(vals)
	if err != nil {
		return err
	}

	if len(r) != f.Dim() {
		return fmt.Errorf("%w: residual dimension %d, expected %d", slam.ErrInvalidFactor, len(r), f.Dim())
	}

	return nil
}

// Error returns the whitened cost 0.5*||Whiten(r)||^2 of factor f at vals.
func Error(f slam.Factor, vals []slam.Value) (float64, error) {
	r, err := f.Residual(vals)
	if err != nil {
		return 0, err
	}
	w := f.Noise().Whiten(r)

	return 0.5 * floats.Dot(w, w), nil
}

// Linearize linearizes factor f around vals and returns it.
// Analytic Jacobians are used when f implements slam.Jacobianer,
// otherwise the Jacobians are computed numerically.
// It returns error if the residual or the Jacobians can not be computed or are not finite.
func Linearize(f slam.Factor, vals []slam.Value) (*Linear, error) {
	r, err := f.Residual(vals)
	if err != nil {
		return nil, err
	}

	var jacs []*mat.Dense
	if j, ok := f.(slam.Jacobianer); ok {
		jacs, err = j.Jacobians(vals)
	} else {
		jacs, err = NumericalJacobians(f, vals)
	}
	if err != nil {
		return nil, err
	}

	nm := f.Noise()
	b := nm.Whiten(r)
	floats.Scale(-1, b)
	if !allFinite(b) {
		return nil, fmt.Errorf("%w: residual is not finite: %v", slam.ErrInvalidFactor, r)
	}

	a := make([]*mat.Dense, len(jacs))
	for i, jac := range jacs {
		a[i] = nm.WhitenMatrix(jac)
		if !allFinite(a[i].RawMatrix().Data) {
			return nil, fmt.Errorf("%w: Jacobian of %v is not finite", slam.ErrInvalidFactor, f.Keys()[i])
		}
	}

	return &Linear{
		Keys: f.Keys(),
		A:    a,
		B:    mat.NewVecDense(len(b), b),
	}, nil
}

// NumericalJacobians computes Jacobians of the residual of f at vals using central differences.
func NumericalJacobians(f slam.Factor, vals []slam.Value) ([]*mat.Dense, error) {
	jacs := make([]*mat.Dense, len(vals))

	for i, v := range vals {
		var ferr error
		vs := make([]slam.Value, len(vals))
		copy(vs, vals)

		fn := func(y, x []float64) {
			vs[i] = v.Retract(x)
			r, err := f.Residual(vs)
			if err != nil {
				ferr = err
				return
			}
			copy(y, r)
		}

		jac := mat.NewDense(f.Dim(), v.Dim(), nil)
		fd.Jacobian(jac, fn, make([]float64, v.Dim()), &fd.JacobianSettings{
			Formula: fd.Central,
		})
		if ferr != nil {
			return nil, ferr
		}
		jacs[i] = jac
	}

	return jacs, nil
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

func identity(n int, scale float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, scale)
	}

	return m
}
