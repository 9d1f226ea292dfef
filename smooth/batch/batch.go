package batch

import (
	"fmt"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/estimate"
	"github.com/milosgajdos/go-slam/factor"
	"github.com/milosgajdos/go-slam/graph"
	"github.com/milosgajdos/go-slam/smooth"
	"go.uber.org/zap"
)

// Params are batch solver parameters
type Params struct {
	// MaxIterations is the maximum number of Gauss-Newton iterations
	MaxIterations int `yaml:"max_iterations"`
	// ConvergenceThreshold is the largest correction considered converged
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	// CondLimit is the largest condition number of a solvable variable block
	CondLimit float64 `yaml:"cond_limit"`
}

// DefaultParams returns default batch solver parameters
func DefaultParams() Params {
	return Params{
		MaxIterations:        100,
		ConvergenceThreshold: 1e-10,
		CondLimit:            1e12,
	}
}

// Option configures Optimize
type Option func(*options)

type options struct {
	logger *zap.SugaredLogger
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Optimize runs Gauss-Newton iterations over all factors of g starting from init
// and returns the estimate of every variable in init.
// It returns error if any factor constrains a variable with no initial estimate,
// if any factor does not match its variables, or wrapping slam.ErrSolverDivergence
// together with the last estimate when the solver does not converge.
func Optimize(g *graph.Graph, init *graph.Values, p Params, opts ...Option) (*estimate.Estimate, error) {
	o := &options{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(o)
	}

	if p.MaxIterations <= 0 {
		return nil, fmt.Errorf("invalid iteration count: %d", p.MaxIterations)
	}

	for _, f := range g.Factors() {
		vals, err := init.Gather(f.Keys())
		if err != nil {
			return nil, err
		}
		if err := factor.Check(f, vals); err != nil {
			return nil, err
		}
	}

	if init.Len() == 0 {
		return estimate.New(init, 0, true, nil), nil
	}

	cur := init.Clone()
	converged := false
	iters := 0
	var held []slam.Key

	for iters < p.MaxIterations {
		iters++

		s, err := step(g, cur, p.CondLimit)
		if err != nil {
			return nil, err
		}

		cur, err = smooth.Retract(cur, s)
		if err != nil {
			return nil, err
		}
		held = s.Held()

		change := smooth.MaxAbs(s)
		o.logger.Debugw("batch iteration", "iteration", iters, "change", change, "held", len(held))

		if change < p.ConvergenceThreshold {
			converged = true
			break
		}
	}

	if len(held) > 0 {
		o.logger.Warnw("variables held", "keys", held)
	}

	est := estimate.New(cur, iters, converged, held)
	if !converged {
		o.logger.Warnw("batch solver did not converge", "iterations", iters)
		return est, est.Err()
	}

	return est, nil
}

// step linearizes all factors of g at vals and solves for the Gauss-Newton correction.
func step(g *graph.Graph, vals *graph.Values, condLimit float64) (*smooth.Solution, error) {
	prob, err := smooth.NewProblem(vals.Keys(), vals)
	if err != nil {
		return nil, err
	}

	for _, f := range g.Factors() {
		v, err := vals.Gather(f.Keys())
		if err != nil {
			return nil, err
		}
		l, err := factor.Linearize(f, v)
		if err != nil {
			return nil, err
		}
		if err := prob.Add(l); err != nil {
			return nil, err
		}
	}

	return prob.Solve(condLimit)
}
