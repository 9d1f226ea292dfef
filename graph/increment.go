package graph

import (
	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/factor"
	"github.com/milosgajdos/go-slam/geom"
)

// Increment buffers the factors and initial estimates added since the last solver update.
// Factor keys are not checked when added: they are resolved by the solver, since
// their initial estimates may be supplied in the same increment.
type Increment struct {
	factors []slam.Factor
	values  *Values
}

// NewIncrement creates new empty Increment and returns it.
func NewIncrement() *Increment {
	return &Increment{
		values: NewValues(),
	}
}

// AddFactor appends factor f
func (inc *Increment) AddFactor(f slam.Factor) {
	inc.factors = append(inc.factors, f)
}

// AddPrior appends a prior factor on variable k
func (inc *Increment) AddPrior(k slam.Key, val slam.Value, noise slam.NoiseModel) {
	inc.AddFactor(factor.NewPrior(k, val, noise))
}

// AddBetween appends a between factor on poses from and to
func (inc *Increment) AddBetween(from, to slam.Key, rel geom.Pose2, noise slam.NoiseModel) {
	inc.AddFactor(factor.NewBetween(from, to, rel, noise))
}

// AddBearingRange appends a bearing-range factor between pose and landmark
func (inc *Increment) AddBearingRange(pose, landmark slam.Key, bearing, rng float64, noise slam.NoiseModel) {
	inc.AddFactor(factor.NewBearingRange(pose, landmark, bearing, rng, noise))
}

// SetInitialEstimate sets the initial estimate of a new variable k.
// It returns error wrapping slam.ErrDuplicateVariable if k already has an estimate in the increment.
func (inc *Increment) SetInitialEstimate(k slam.Key, val slam.Value) error {
	return inc.values.Insert(k, val)
}

// Factors returns the buffered factors
func (inc *Increment) Factors() []slam.Factor {
	factors := make([]slam.Factor, len(inc.factors))
	copy(factors, inc.factors)

	return factors
}

// Values returns the buffered initial estimates
func (inc *Increment) Values() *Values {
	return inc.values.Clone()
}

// Empty returns true if the increment holds neither factors nor estimates
func (inc *Increment) Empty() bool {
	return len(inc.factors) == 0 && inc.values.Len() == 0
}

// Clear drains the increment
func (inc *Increment) Clear() {
	inc.factors = nil
	inc.values = NewValues()
}
