package estimate

import (
	"fmt"

	slam "github.com/milosgajdos/go-slam"
	"gonum.org/v1/gonum/mat"
)

// Base is an estimate of a single variable with its marginal covariance
type Base struct {
	// key is the estimated variable key
	key slam.Key
	// val is estimated value
	val slam.Value
	// cov is estimated covariance
	cov *mat.SymDense
}

// NewBaseWithCov returns base estimate of variable key given val and covariance
func NewBaseWithCov(key slam.Key, val slam.Value, cov mat.Symmetric) (*Base, error) {
	if val == nil {
		return nil, fmt.Errorf("invalid value: %v", val)
	}

	rc := cov.SymmetricDim()
	if val.Dim() != rc {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", val.Dim(), rc, rc)
	}

	c := mat.NewSymDense(rc, nil)
	c.CopySym(cov)

	return &Base{
		key: key,
		val: val,
		cov: c,
	}, nil
}

// Key returns estimated variable key
func (b *Base) Key() slam.Key {
	return b.key
}

// Val returns estimated value
func (b *Base) Val() slam.Value {
	return b.val
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// String implements the Stringer interface.
func (b *Base) String() string {
	fc := mat.Formatted(b.cov, mat.Prefix("    "), mat.Squeeze())
	return fmt.Sprintf("Key: %v\nVal: %v\nCov:\n    %v", b.key, b.val, fc)
}
