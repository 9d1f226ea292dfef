package isam

import (
	"errors"
	"fmt"
	"math"
	"sort"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/estimate"
	"github.com/milosgajdos/go-slam/factor"
	"github.com/milosgajdos/go-slam/graph"
	"github.com/milosgajdos/go-slam/matrix"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Params are incremental solver parameters
type Params struct {
	// RelinearizeThreshold is the largest drift of a variable from its linearization point
	// which does not trigger relinearization of the factors touching the variable.
	RelinearizeThreshold float64 `yaml:"relinearize_threshold"`
	// WildfireThreshold is the largest change of a variable correction
	// which is not propagated to the variables eliminated before it.
	WildfireThreshold float64 `yaml:"wildfire_threshold"`
	// MaxIterations is the maximum number of iterations of a single update
	MaxIterations int `yaml:"max_iterations"`
	// ConvergenceThreshold is the largest change of the estimate considered converged
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	// CondLimit is the largest condition number of a solvable variable block
	CondLimit float64 `yaml:"cond_limit"`
}

// DefaultParams returns default incremental solver parameters
func DefaultParams() Params {
	return Params{
		RelinearizeThreshold: 1e-4,
		WildfireThreshold:    1e-9,
		MaxIterations:        10,
		ConvergenceThreshold: 1e-6,
		CondLimit:            1e12,
	}
}

// Option configures ISAM
type Option func(*ISAM)

// WithLogger sets the solver logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *ISAM) {
		s.logger = l
	}
}

// ISAM is an incremental smoothing and mapping solver.
// It keeps every factor it was given together with the factorization of their
// normal equations. Each update re-eliminates only the variables touched by new
// or relinearized factors, and the variables eliminated after them.
type ISAM struct {
	p Params
	// graph stores all factors
	graph *graph.Graph
	// lin stores variable linearization points
	lin *graph.Values
	// est stores current variable estimates
	est *graph.Values
	// delta stores variable corrections relative to their linearization points
	delta map[slam.Key][]float64
	// sys is the factorization of the linearized factors
	sys *matrix.Incremental
	// pos maps variables to their system blocks; keys maps blocks back to variables
	pos  map[slam.Key]int
	keys []slam.Key
	// linear stores linearized factors indexed by their graph position
	linear []*factor.Linear
	// adj maps variables to the graph positions of the factors touching them
	adj map[slam.Key][]int
	// moved stores variables whose corrections changed since they were last
	// checked for relinearization
	moved map[slam.Key]bool
	// held stores variables which can not be solved for
	held   map[slam.Key]bool
	logger *zap.SugaredLogger
}

// New creates new incremental solver with parameters p and returns it.
// It returns error if the parameters are invalid.
func New(p Params, opts ...Option) (*ISAM, error) {
	if p.MaxIterations <= 0 {
		return nil, fmt.Errorf("invalid iteration count: %d", p.MaxIterations)
	}
	if p.RelinearizeThreshold < 0 || p.ConvergenceThreshold < 0 || p.WildfireThreshold < 0 {
		return nil, fmt.Errorf("invalid thresholds: relinearize %v, wildfire %v, convergence %v",
			p.RelinearizeThreshold, p.WildfireThreshold, p.ConvergenceThreshold)
	}

	s := &ISAM{
		p:      p,
		graph:  graph.New(),
		lin:    graph.NewValues(),
		est:    graph.NewValues(),
		delta:  make(map[slam.Key][]float64),
		sys:    matrix.NewIncremental(p.CondLimit),
		pos:    make(map[slam.Key]int),
		adj:    make(map[slam.Key][]int),
		moved:  make(map[slam.Key]bool),
		held:   make(map[slam.Key]bool),
		logger: zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Update merges the factors and initial estimates of inc into the solver
// and re-estimates the variables affected by them.
// It returns error wrapping slam.ErrDuplicateVariable if inc estimates a known variable,
// slam.ErrUnknownVariable if a factor of inc constrains a variable with no estimate,
// or slam.ErrInvalidFactor if a factor does not match its variables; the solver is not
// modified in that case. If the solver does not converge within its iteration budget
// Update returns the estimate together with error wrapping slam.ErrSolverDivergence.
func (s *ISAM) Update(inc *graph.Increment) (*estimate.Estimate, error) {
	factors := inc.Factors()
	vals := inc.Values()

	linear, err := s.validate(factors, vals)
	if err != nil {
		return nil, err
	}

	if err := s.merge(factors, linear, vals); err != nil {
		return nil, err
	}
	s.logger.Debugw("update", "factors", len(factors), "variables", vals.Len(), "total", len(s.keys))

	return s.solve()
}

// validate checks factors and vals against the solver state without modifying it
// and returns the factors linearized at the linearization points of their variables.
func (s *ISAM) validate(factors []slam.Factor, vals *graph.Values) ([]*factor.Linear, error) {
	for _, k := range vals.Keys() {
		if s.lin.Has(k) {
			return nil, fmt.Errorf("%w: %v", slam.ErrDuplicateVariable, k)
		}
		v, err := vals.At(k)
		if err != nil {
			return nil, err
		}
		if v.Dim() <= 0 {
			return nil, fmt.Errorf("invalid variable %v dimension: %d", k, v.Dim())
		}
	}

	linear := make([]*factor.Linear, len(factors))
	for n, f := range factors {
		keys := f.Keys()
		v := make([]slam.Value, len(keys))
		for i, k := range keys {
			switch {
			case vals.Has(k):
				v[i], _ = vals.At(k)
			case s.lin.Has(k):
				v[i], _ = s.lin.At(k)
			default:
				return nil, fmt.Errorf("%w: %v constrained by %v", slam.ErrUnknownVariable, k, f)
			}
		}

		if err := factor.Check(f, v); err != nil {
			return nil, err
		}
		l, err := factor.Linearize(f, v)
		if err != nil {
			return nil, err
		}
		linear[n] = l
	}

	return linear, nil
}

// merge adds validated factors, their linearizations and new variables to the solver.
// New landmarks are ordered before new poses.
func (s *ISAM) merge(factors []slam.Factor, linear []*factor.Linear, vals *graph.Values) error {
	for _, k := range order(vals) {
		v, err := vals.At(k)
		if err != nil {
			return err
		}
		i, err := s.sys.Grow(v.Dim())
		if err != nil {
			return err
		}
		if err := s.lin.Insert(k, v); err != nil {
			return err
		}
		if err := s.est.Insert(k, v); err != nil {
			return err
		}
		s.pos[k] = i
		s.keys = append(s.keys, k)
		s.delta[k] = make([]float64, v.Dim())
	}

	for n, f := range factors {
		i := s.graph.Len()
		s.graph.Add(f)
		s.linear = append(s.linear, nil)
		for _, k := range f.Keys() {
			s.adj[k] = append(s.adj[k], i)
		}
		if err := s.replace(i, linear[n]); err != nil {
			return err
		}
	}

	return nil
}

// order returns keys of vals with landmarks before all other variables
func order(vals *graph.Values) []slam.Key {
	keys := vals.Keys()
	out := make([]slam.Key, 0, len(keys))
	for _, k := range keys {
		if v, _ := vals.At(k); v.Kind() == slam.KindLandmark {
			out = append(out, k)
		}
	}
	for _, k := range keys {
		if v, _ := vals.At(k); v.Kind() != slam.KindLandmark {
			out = append(out, k)
		}
	}

	return out
}

// replace swaps the linearization of the factor at graph position i for l.
func (s *ISAM) replace(i int, l *factor.Linear) error {
	if old := s.linear[i]; old != nil {
		if err := s.sys.Remove(s.blocks(old), old.A, old.B); err != nil {
			return err
		}
		s.linear[i] = nil
	}

	if err := s.sys.Add(s.blocks(l), l.A, l.B); err != nil {
		return err
	}
	s.linear[i] = l

	return nil
}

// blocks returns system blocks of the variables of l
func (s *ISAM) blocks(l *factor.Linear) []int {
	idx := make([]int, len(l.Keys))
	for i, k := range l.Keys {
		idx[i] = s.pos[k]
	}

	return idx
}

// relinearize folds corrections exceeding the relinearization threshold into
// the linearization points and relinearizes the factors touching them.
// Only variables whose corrections moved since the last check are considered.
// It returns the number of relinearized variables.
func (s *ISAM) relinearize() (int, error) {
	keys := make([]slam.Key, 0, len(s.moved))
	for k := range s.moved {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return s.pos[keys[i]] < s.pos[keys[j]] })
	s.moved = make(map[slam.Key]bool)

	count := 0
	for _, k := range keys {
		d := s.delta[k]
		if floats.Norm(d, inf) <= s.p.RelinearizeThreshold {
			continue
		}

		cur, err := s.est.At(k)
		if err != nil {
			return count, err
		}

		idx := s.adj[k]
		linear := make([]*factor.Linear, len(idx))
		ok := true
		for n, i := range idx {
			f := s.graph.At(i)
			vals, err := s.lin.Gather(f.Keys())
			if err != nil {
				return count, err
			}
			for j, fk := range f.Keys() {
				if fk == k {
					vals[j] = cur
				}
			}
			if linear[n], err = factor.Linearize(f, vals); err != nil {
				s.logger.Warnw("relinearization skipped", "key", k, "error", err)
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		if err := s.lin.Update(k, cur); err != nil {
			return count, err
		}
		s.delta[k] = make([]float64, len(d))
		for n, i := range idx {
			if err := s.replace(i, linear[n]); err != nil {
				return count, err
			}
		}
		count++
	}

	return count, nil
}

func (s *ISAM) solve() (*estimate.Estimate, error) {
	converged := false
	iters := 0

	for iters < s.p.MaxIterations {
		iters++

		relin, err := s.relinearize()
		if err != nil {
			return nil, err
		}

		eliminated := s.sys.Update()
		solved := s.sys.Solve(s.p.WildfireThreshold)

		change := 0.0
		for _, i := range solved {
			k := s.keys[i]
			d := s.sys.Solution(i)
			diff := make([]float64, len(d))
			floats.SubTo(diff, d, s.delta[k])
			if n := floats.Norm(diff, inf); n > change {
				change = n
			}

			lin, err := s.lin.At(k)
			if err != nil {
				return nil, err
			}
			if err := s.est.Update(k, lin.Retract(d)); err != nil {
				return nil, err
			}
			s.delta[k] = d
			s.moved[k] = true

			if s.sys.Held(i) {
				s.held[k] = true
				continue
			}
			delete(s.held, k)
		}

		s.logger.Debugw("iteration", "iteration", iters, "relinearized", relin,
			"eliminated", eliminated, "solved", len(solved), "change", change)

		if change < s.p.ConvergenceThreshold {
			converged = true
			break
		}
	}

	held := s.Held()
	if len(held) > 0 {
		s.logger.Warnw("variables held", "keys", held)
	}

	est := estimate.New(s.est, iters, converged, held)
	if !converged {
		s.logger.Warnw("solver did not converge", "iterations", iters)
		return est, est.Err()
	}

	return est, nil
}

// EstimateOf returns the current estimate of variable k.
// It returns error wrapping slam.ErrUnknownVariable if k has no estimate.
func (s *ISAM) EstimateOf(k slam.Key) (slam.Value, error) {
	if !s.est.Has(k) {
		return nil, fmt.Errorf("%w: %v", slam.ErrUnknownVariable, k)
	}

	return s.est.At(k)
}

// Estimate returns the current estimates of all variables
func (s *ISAM) Estimate() *graph.Values {
	return s.est.Clone()
}

// Factors returns a copy of the factor graph
func (s *ISAM) Factors() *graph.Graph {
	g := graph.New()
	for _, f := range s.graph.Factors() {
		g.Add(f)
	}

	return g
}

// Held returns keys of the variables which can not be solved for in their creation order
func (s *ISAM) Held() []slam.Key {
	var held []slam.Key
	for k := range s.held {
		held = append(held, k)
	}
	sort.Slice(held, func(i, j int) bool { return s.pos[held[i]] < s.pos[held[j]] })

	return held
}

// Marginal returns the current estimate of variable k with its marginal covariance
// computed from the factorization at the linearization points.
// It returns error wrapping slam.ErrUnknownVariable if k has no estimate
// or slam.ErrUnderconstrained if k can not be solved for.
func (s *ISAM) Marginal(k slam.Key) (*estimate.Base, error) {
	i, ok := s.pos[k]
	if !ok {
		return nil, fmt.Errorf("%w: %v", slam.ErrUnknownVariable, k)
	}

	cov, err := s.sys.Marginal(i)
	if err != nil {
		if errors.Is(err, matrix.ErrSingular) {
			return nil, fmt.Errorf("%w: %v", slam.ErrUnderconstrained, k)
		}
		return nil, err
	}

	v, err := s.est.At(k)
	if err != nil {
		return nil, err
	}

	return estimate.NewBaseWithCov(k, v, cov)
}

var inf = math.Inf(1)
