package factor

import (
	"fmt"

	slam "github.com/milosgajdos/go-slam"
	"gonum.org/v1/gonum/mat"
)

// Prior anchors a single variable to a known value
type Prior struct {
	key   slam.Key
	val   slam.Value
	noise slam.NoiseModel
}

// NewPrior creates new prior factor on variable key and returns it.
func NewPrior(key slam.Key, val slam.Value, noise slam.NoiseModel) *Prior {
	return &Prior{
		key:   key,
		val:   val,
		noise: noise,
	}
}

// Keys returns the constrained variable key
func (p *Prior) Keys() []slam.Key { return []slam.Key{p.key} }

// Dim returns residual dimension
func (p *Prior) Dim() int { return p.val.Dim() }

// Noise returns factor noise model
func (p *Prior) Noise() slam.NoiseModel { return p.noise }

// Value returns prior value
func (p *Prior) Value() slam.Value { return p.val }

// Residual returns the prior value minus the estimate vals[0].
func (p *Prior) Residual(vals []slam.Value) ([]float64, error) {
	if len(vals) != 1 || vals[0] == nil || vals[0].Kind() != p.val.Kind() {
		return nil, fmt.Errorf("%w: prior on %v expects one %v value", slam.ErrInvalidFactor, p.key, p.val.Kind())
	}

	return vals[0].Local(p.val), nil
}

// Jacobians returns Jacobian of the residual.
func (p *Prior) Jacobians(vals []slam.Value) ([]*mat.Dense, error) {
	return []*mat.Dense{identity(p.val.Dim(), -1)}, nil
}

// String implements the Stringer interface.
func (p *Prior) String() string {
	return fmt.Sprintf("Prior{%v: %v}", p.key, p.val)
}
