package estimate

import (
	"fmt"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/geom"
	"github.com/milosgajdos/go-slam/graph"
)

// Estimate is a solver result: a snapshot of all variable estimates
type Estimate struct {
	// values stores variable estimates
	values *graph.Values
	// iterations is the number of solver iterations
	iterations int
	// converged is true if the solver converged
	converged bool
	// held stores keys of variables held at their estimates
	held []slam.Key
}

// New returns a new solver estimate.
// vals are copied so later changes to vals do not affect the estimate.
func New(vals *graph.Values, iterations int, converged bool, held []slam.Key) *Estimate {
	h := make([]slam.Key, len(held))
	copy(h, held)

	return &Estimate{
		values:     vals.Clone(),
		iterations: iterations,
		converged:  converged,
		held:       h,
	}
}

// Values returns a copy of all variable estimates
func (e *Estimate) Values() *graph.Values {
	return e.values.Clone()
}

// Keys returns estimated variable keys in creation order
func (e *Estimate) Keys() []slam.Key {
	return e.values.Keys()
}

// Len returns the number of estimated variables
func (e *Estimate) Len() int {
	return e.values.Len()
}

// At returns the estimate of variable k.
// It returns error wrapping slam.ErrUnknownVariable if k is not estimated.
func (e *Estimate) At(k slam.Key) (slam.Value, error) {
	return e.values.At(k)
}

// Pose returns the pose estimate of variable k.
// It returns error if k is not estimated or is not a pose.
func (e *Estimate) Pose(k slam.Key) (geom.Pose2, error) {
	v, err := e.values.At(k)
	if err != nil {
		return geom.Pose2{}, err
	}

	p, ok := v.(geom.Pose2)
	if !ok {
		return geom.Pose2{}, fmt.Errorf("variable %v is a %v", k, v.Kind())
	}

	return p, nil
}

// Point returns the landmark estimate of variable k.
// It returns error if k is not estimated or is not a landmark.
func (e *Estimate) Point(k slam.Key) (geom.Point2, error) {
	v, err := e.values.At(k)
	if err != nil {
		return geom.Point2{}, err
	}

	p, ok := v.(geom.Point2)
	if !ok {
		return geom.Point2{}, fmt.Errorf("variable %v is a %v", k, v.Kind())
	}

	return p, nil
}

// Iterations returns the number of solver iterations
func (e *Estimate) Iterations() int {
	return e.iterations
}

// Converged returns true if the solver converged
func (e *Estimate) Converged() bool {
	return e.converged
}

// Held returns the keys of variables which could not be solved for
// and were held at their estimates.
func (e *Estimate) Held() []slam.Key {
	h := make([]slam.Key, len(e.held))
	copy(h, e.held)

	return h
}

// Err returns error wrapping slam.ErrSolverDivergence if the solver did not converge.
func (e *Estimate) Err() error {
	if e.converged {
		return nil
	}

	return fmt.Errorf("%w: no convergence after %d iterations", slam.ErrSolverDivergence, e.iterations)
}
