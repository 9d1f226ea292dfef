package session

import (
	"fmt"
	"math"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/estimate"
	"github.com/milosgajdos/go-slam/geom"
	"github.com/milosgajdos/go-slam/graph"
	"github.com/milosgajdos/go-slam/model"
	"github.com/milosgajdos/go-slam/noise"
	"github.com/milosgajdos/go-slam/smooth/isam"
	"go.uber.org/zap"
)

// Option configures Session
type Option func(*Session)

// WithLogger sets the session logger.
// The logger is shared with the session solver.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// StepResult is the outcome of a single session step
type StepResult struct {
	// PoseKey is the key of the pose created in the step
	PoseKey slam.Key
	// Pose is the posterior estimate of the new pose
	Pose geom.Pose2
	// LandmarkKeys are the keys of landmarks created in the step
	LandmarkKeys []slam.Key
	// Landmarks are the posterior estimates of landmarks created in the step
	Landmarks []geom.Point2
	// Converged is false if the solver did not converge
	Converged bool
}

// backend is the estimator behind a session
type backend interface {
	Update(inc *graph.Increment) (*estimate.Estimate, error)
	EstimateOf(k slam.Key) (slam.Value, error)
	Marginal(k slam.Key) (*estimate.Base, error)
}

// Session estimates the trajectory of a single agent and the landmarks it observes.
// Session is not safe for concurrent use.
type Session struct {
	cfg    Config
	solver backend
	obs    *noise.Diagonal
	// poses stores pose keys in creation order
	poses []slam.Key
	// landmarks stores landmark keys in creation order
	landmarks []slam.Key
	logger    *zap.SugaredLogger
}

// New creates new session with configuration cfg and returns it.
// It creates pose 0 anchored by a prior at cfg.InitialPose.
// It returns error wrapping slam.ErrInvalidNoiseModel if any noise parameter is not positive.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		logger: zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(s)
	}

	prior, err := noise.NewDiagonal(cfg.PriorSigmas[:]...)
	if err != nil {
		return nil, err
	}

	s.obs, err = noise.NewDiagonal(cfg.ObservationSigmas[:]...)
	if err != nil {
		return nil, err
	}

	solver, err := isam.New(cfg.Solver, isam.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.solver = solver

	k := slam.PoseKey(0)
	p0 := geom.NewPose2(cfg.InitialPose[0], cfg.InitialPose[1], cfg.InitialPose[2])

	inc := graph.NewIncrement()
	inc.AddPrior(k, p0, prior)
	if err := inc.SetInitialEstimate(k, p0); err != nil {
		return nil, err
	}

	if _, err := s.solver.Update(inc); err != nil {
		return nil, fmt.Errorf("anchoring initial pose: %w", err)
	}
	s.poses = append(s.poses, k)

	return s, nil
}

// Step adds a new pose reached by motion m from the latest pose and a new landmark
// for each measurement taken from the latest pose, then updates the estimate.
// It returns error wrapping slam.ErrInvalidMeasurement if m or any measurement is malformed;
// the session is not modified in that case. If the solver does not converge Step returns
// the result together with error wrapping slam.ErrSolverDivergence.
// Variables accepted by the solver stay part of the session even if the update fails.
func (s *Session) Step(m model.Motion, measurements []model.Measurement) (*StepResult, error) {
	if err := checkMotion(m); err != nil {
		return nil, err
	}
	for i, z := range measurements {
		if err := checkMeasurement(z); err != nil {
			return nil, fmt.Errorf("measurement %d: %w", i, err)
		}
	}

	prev := s.poses[len(s.poses)-1]
	latest, err := s.pose(prev)
	if err != nil {
		return nil, err
	}

	vars := model.MotionCovariance(m, s.cfg.Alphas())
	motionNoise, err := noise.NewFull(model.RelativeCovariance(m, vars, s.cfg.MotionVarianceFloor))
	if err != nil {
		return nil, err
	}

	inc := graph.NewIncrement()

	cur := slam.PoseKey(len(s.poses))
	inc.AddBetween(prev, cur, model.Relative(m), motionNoise)
	if err := inc.SetInitialEstimate(cur, model.Predict(latest, m)); err != nil {
		return nil, err
	}

	keys := make([]slam.Key, len(measurements))
	for i, z := range measurements {
		keys[i] = slam.LandmarkKey(len(s.landmarks) + i)
		inc.AddBearingRange(prev, keys[i], z.Bearing, z.Range, s.obs)
		if err := inc.SetInitialEstimate(keys[i], model.PredictLandmark(latest, z.Range, z.Bearing)); err != nil {
			return nil, err
		}
	}

	est, err := s.solver.Update(inc)
	// a failed update may still have merged the increment
	if _, serr := s.solver.EstimateOf(cur); serr == nil {
		s.poses = append(s.poses, cur)
		s.landmarks = append(s.landmarks, keys...)
	}
	if est == nil {
		return nil, err
	}

	res, rerr := result(est, cur, keys)
	if rerr != nil {
		return nil, rerr
	}

	s.logger.Debugw("step", "pose", cur, "estimate", res.Pose, "landmarks", len(keys),
		"iterations", est.Iterations(), "converged", est.Converged())

	return res, err
}

func result(est *estimate.Estimate, pose slam.Key, landmarks []slam.Key) (*StepResult, error) {
	p, err := est.Pose(pose)
	if err != nil {
		return nil, err
	}

	res := &StepResult{
		PoseKey:      pose,
		Pose:         p,
		LandmarkKeys: landmarks,
		Landmarks:    make([]geom.Point2, len(landmarks)),
		Converged:    est.Converged(),
	}

	for i, k := range landmarks {
		if res.Landmarks[i], err = est.Point(k); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func checkMotion(m model.Motion) error {
	for _, v := range []float64{m.Rot1, m.Trans, m.Rot2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: motion %v", slam.ErrInvalidMeasurement, m)
		}
	}

	return nil
}

func checkMeasurement(z model.Measurement) error {
	if math.IsNaN(z.Bearing) || math.IsInf(z.Bearing, 0) {
		return fmt.Errorf("%w: bearing %v", slam.ErrInvalidMeasurement, z.Bearing)
	}
	if !(z.Range >= 0) || math.IsInf(z.Range, 0) {
		return fmt.Errorf("%w: range %v", slam.ErrInvalidMeasurement, z.Range)
	}

	return nil
}

func (s *Session) pose(k slam.Key) (geom.Pose2, error) {
	v, err := s.solver.EstimateOf(k)
	if err != nil {
		return geom.Pose2{}, err
	}

	p, ok := v.(geom.Pose2)
	if !ok {
		return geom.Pose2{}, fmt.Errorf("variable %v is a %v", k, v.Kind())
	}

	return p, nil
}

func (s *Session) point(k slam.Key) (geom.Point2, error) {
	v, err := s.solver.EstimateOf(k)
	if err != nil {
		return geom.Point2{}, err
	}

	p, ok := v.(geom.Point2)
	if !ok {
		return geom.Point2{}, fmt.Errorf("variable %v is a %v", k, v.Kind())
	}

	return p, nil
}

// EstimateOf returns the current estimate of variable k.
// It returns error wrapping slam.ErrUnknownVariable if k was never created.
func (s *Session) EstimateOf(k slam.Key) (slam.Value, error) {
	return s.solver.EstimateOf(k)
}

// Marginal returns the current estimate of variable k with its marginal covariance
func (s *Session) Marginal(k slam.Key) (*estimate.Base, error) {
	return s.solver.Marginal(k)
}

// Trajectory returns current pose estimates in creation order
func (s *Session) Trajectory() []geom.Pose2 {
	poses := make([]geom.Pose2, 0, len(s.poses))
	for _, k := range s.poses {
		// every session key has an estimate
		p, _ := s.pose(k)
		poses = append(poses, p)
	}

	return poses
}

// Landmarks returns current landmark estimates in creation order
func (s *Session) Landmarks() []geom.Point2 {
	points := make([]geom.Point2, 0, len(s.landmarks))
	for _, k := range s.landmarks {
		p, _ := s.point(k)
		points = append(points, p)
	}

	return points
}

// PoseKeys returns pose keys in creation order
func (s *Session) PoseKeys() []slam.Key {
	return append([]slam.Key(nil), s.poses...)
}

// LandmarkKeys returns landmark keys in creation order
func (s *Session) LandmarkKeys() []slam.Key {
	return append([]slam.Key(nil), s.landmarks...)
}

// PoseCount returns the number of poses
func (s *Session) PoseCount() int {
	return len(s.poses)
}

// LandmarkCount returns the number of landmarks
func (s *Session) LandmarkCount() int {
	return len(s.landmarks)
}

// Config returns session configuration
func (s *Session) Config() Config {
	return s.cfg
}
