package slam

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// PoseSymbol is the symbol character of pose keys
	PoseSymbol = 'x'
	// LandmarkSymbol is the symbol character of landmark keys
	LandmarkSymbol = 'l'

	indexBits = 56
	indexMask = 1<<indexBits - 1
)

// Key identifies a variable.
// The top byte stores a symbol character, the remaining bits store an index,
// so keys with different symbols never collide.
type Key uint64

// Symbol returns a key made of symbol character c and index i.
func Symbol(c byte, i uint64) Key {
	return Key(uint64(c)<<indexBits | i&indexMask)
}

// PoseKey returns the key of the i-th pose
func PoseKey(i int) Key {
	return Symbol(PoseSymbol, uint64(i))
}

// LandmarkKey returns the key of the i-th landmark
func LandmarkKey(i int) Key {
	return Symbol(LandmarkSymbol, uint64(i))
}

// Chr returns key symbol character
func (k Key) Chr() byte {
	return byte(k >> indexBits)
}

// Index returns key index
func (k Key) Index() uint64 {
	return uint64(k) & indexMask
}

// String implements the Stringer interface.
func (k Key) String() string {
	return fmt.Sprintf("%c%d", k.Chr(), k.Index())
}

// Kind is a variable type tag
type Kind int

const (
	// KindPose tags 2D pose variables
	KindPose Kind = iota
	// KindLandmark tags 2D landmark variables
	KindLandmark
)

// String implements the Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindPose:
		return "pose"
	case KindLandmark:
		return "landmark"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is an estimate of a variable
type Value interface {
	// Kind returns variable type tag
	Kind() Kind
	// Dim returns the number of degrees of freedom
	Dim() int
	// Retract applies correction delta and returns the corrected value
	Retract(delta []float64) Value
	// Local returns delta such that Retract(delta) yields v
	Local(v Value) []float64
}

// NoiseModel is a measurement noise model
type NoiseModel interface {
	// Dim returns noise model dimension
	Dim() int
	// Whiten converts raw residual to a statistically normalized residual
	Whiten(r []float64) []float64
	// WhitenMatrix whitens the rows of m
	WhitenMatrix(m mat.Matrix) *mat.Dense
	// Cov returns noise covariance
	Cov() mat.Symmetric
}

// Factor is a probabilistic constraint over one or more variables
type Factor interface {
	// Keys returns the keys of constrained variables
	Keys() []Key
	// Dim returns residual dimension
	Dim() int
	// Noise returns factor noise model
	Noise() NoiseModel
	// Residual returns measured minus predicted value given vals ordered as Keys
	Residual(vals []Value) ([]float64, error)
}

// Jacobianer is implemented by factors which provide analytic Jacobians.
// Factors which do not are linearized numerically.
type Jacobianer interface {
	// Jacobians returns raw (not whitened) Jacobians of the residual
	// with respect to each variable ordered as Keys
	Jacobians(vals []Value) ([]*mat.Dense, error)
}
