package session

import (
	"errors"
	"math"
	"testing"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/estimate"
	"github.com/milosgajdos/go-slam/geom"
	"github.com/milosgajdos/go-slam/graph"
	"github.com/milosgajdos/go-slam/model"
	"github.com/milosgajdos/go-slam/smooth/isam"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newSession(t *testing.T) *Session {
	cfg := DefaultConfig()
	cfg.PriorSigmas = [3]float64{0.1, 0.1, 0.1}

	s, err := New(cfg, WithLogger(zap.NewNop().Sugar()))
	assert.NoError(t, err)

	return s
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	s := newSession(t)
	assert.Equal(1, s.PoseCount())
	assert.Equal(0, s.LandmarkCount())
	assert.Len(s.Trajectory(), 1)
	assert.True(s.Trajectory()[0].Equal(geom.NewPose2(0, 0, 0), 1e-12))
	assert.Empty(s.Landmarks())

	cfg := DefaultConfig()
	cfg.InitialPose = [3]float64{1, 2, 3 * math.Pi / 2}
	s, err := New(cfg)
	assert.NoError(err)
	p := s.Trajectory()[0]
	assert.True(p.Equal(geom.NewPose2(1, 2, -math.Pi/2), 1e-9), "pose: %v", p)

	cfg = DefaultConfig()
	cfg.PriorSigmas[1] = 0.0
	s, err = New(cfg)
	assert.Nil(s)
	assert.ErrorIs(err, slam.ErrInvalidNoiseModel)

	cfg = DefaultConfig()
	cfg.ObservationSigmas[0] = 0.0
	_, err = New(cfg)
	assert.ErrorIs(err, slam.ErrInvalidNoiseModel)
}

func TestStepMotion(t *testing.T) {
	assert := assert.New(t)

	s := newSession(t)

	res, err := s.Step(model.Motion{Rot1: 0, Trans: 1.0, Rot2: 0}, nil)
	assert.NoError(err)
	assert.True(res.Converged)
	assert.Equal(slam.PoseKey(1), res.PoseKey)
	assert.True(res.Pose.Equal(geom.NewPose2(1, 0, 0), 1e-6), "pose: %v", res.Pose)
	assert.Empty(res.Landmarks)
	assert.Empty(res.LandmarkKeys)
}

func TestStepMeasurement(t *testing.T) {
	assert := assert.New(t)

	s := newSession(t)

	_, err := s.Step(model.Motion{Trans: 1.0}, nil)
	assert.NoError(err)

	res, err := s.Step(model.Motion{Trans: 1.0}, []model.Measurement{{Range: 1.0, Bearing: 0.0}})
	assert.NoError(err)
	assert.True(res.Converged)
	assert.Equal([]slam.Key{slam.LandmarkKey(0)}, res.LandmarkKeys)
	assert.Len(res.Landmarks, 1)
	assert.InDelta(2.0, res.Landmarks[0].X, 1e-6)
	assert.InDelta(0.0, res.Landmarks[0].Y, 1e-6)
	assert.True(res.Pose.Equal(geom.NewPose2(2, 0, 0), 1e-6), "pose: %v", res.Pose)

	v, err := s.EstimateOf(slam.LandmarkKey(0))
	assert.NoError(err)
	assert.Equal(res.Landmarks[0], v)

	m, err := s.Marginal(slam.LandmarkKey(0))
	assert.NoError(err)
	assert.Greater(m.Cov().At(0, 0), 0.0)
}

func TestStepCounters(t *testing.T) {
	assert := assert.New(t)

	s := newSession(t)

	steps := []struct {
		motion model.Motion
		meas   []model.Measurement
	}{
		{model.Motion{Rot1: 0.1, Trans: 1, Rot2: 0}, []model.Measurement{{Range: 2, Bearing: 0.3}}},
		{model.Motion{Rot1: 0, Trans: 0.5, Rot2: 0.2}, nil},
		{model.Motion{Rot1: -0.2, Trans: 1, Rot2: 0}, []model.Measurement{{Range: 1, Bearing: -0.5}, {Range: 3, Bearing: 1}}},
		{model.Motion{}, []model.Measurement{{Range: 1.5, Bearing: math.Pi / 2}}},
	}

	poses, landmarks := s.PoseCount(), s.LandmarkCount()
	for _, st := range steps {
		res, err := s.Step(st.motion, st.meas)
		assert.NoError(err)
		assert.Equal(poses+1, s.PoseCount())
		assert.Equal(landmarks+len(st.meas), s.LandmarkCount())
		assert.Equal(slam.PoseKey(poses), res.PoseKey)
		for i, k := range res.LandmarkKeys {
			assert.Equal(slam.LandmarkKey(landmarks+i), k)
		}
		poses, landmarks = s.PoseCount(), s.LandmarkCount()
	}

	assert.Len(s.Trajectory(), 5)
	assert.Len(s.Landmarks(), 4)
	assert.Len(s.PoseKeys(), 5)
	assert.Len(s.LandmarkKeys(), 4)

	for _, p := range s.Trajectory() {
		assert.True(p.Theta > -math.Pi && p.Theta <= math.Pi)
	}
}

func TestStepInvalid(t *testing.T) {
	assert := assert.New(t)

	s := newSession(t)
	_, err := s.Step(model.Motion{Trans: 1}, []model.Measurement{{Range: 1, Bearing: 0}})
	assert.NoError(err)

	before := s.FlatTrajectory()
	testCases := []struct {
		motion model.Motion
		meas   []model.Measurement
	}{
		{model.Motion{Trans: 1}, []model.Measurement{{Range: -1, Bearing: 0}}},
		{model.Motion{Trans: 1}, []model.Measurement{{Range: 1, Bearing: 0}, {Range: math.NaN(), Bearing: 0}}},
		{model.Motion{Trans: 1}, []model.Measurement{{Range: 1, Bearing: math.Inf(1)}}},
		{model.Motion{Trans: math.NaN()}, nil},
	}

	for _, tc := range testCases {
		res, err := s.Step(tc.motion, tc.meas)
		assert.Nil(res)
		assert.ErrorIs(err, slam.ErrInvalidMeasurement)
		assert.Equal(2, s.PoseCount())
		assert.Equal(1, s.LandmarkCount())
		assert.Equal(before, s.FlatTrajectory())
	}
}

// failing merges updates into the wrapped solver and then reports a failure
type failing struct {
	*isam.ISAM
	fail int
}

func (f *failing) Update(inc *graph.Increment) (*estimate.Estimate, error) {
	est, err := f.ISAM.Update(inc)
	if err != nil || f.fail == 0 {
		return est, err
	}
	f.fail--

	return nil, errors.New("factorization failed")
}

func TestStepMergedFailure(t *testing.T) {
	assert := assert.New(t)

	s := newSession(t)
	s.solver = &failing{ISAM: s.solver.(*isam.ISAM), fail: 1}

	z := []model.Measurement{{Range: 1, Bearing: 0}}
	res, err := s.Step(model.Motion{Trans: 1}, z)
	assert.Error(err)
	assert.Nil(res)

	// the solver kept the step so the session does too
	assert.Equal(2, s.PoseCount())
	assert.Equal(1, s.LandmarkCount())
	_, err = s.EstimateOf(slam.PoseKey(1))
	assert.NoError(err)

	res, err = s.Step(model.Motion{Trans: 1}, z)
	assert.NoError(err)
	assert.Equal(slam.PoseKey(2), res.PoseKey)
	assert.Equal([]slam.Key{slam.LandmarkKey(1)}, res.LandmarkKeys)
	assert.Equal(3, s.PoseCount())
	assert.Equal(2, s.LandmarkCount())
}

func TestEstimateOfUnknown(t *testing.T) {
	assert := assert.New(t)

	s := newSession(t)

	_, err := s.EstimateOf(slam.PoseKey(1))
	assert.ErrorIs(err, slam.ErrUnknownVariable)
	_, err = s.EstimateOf(slam.LandmarkKey(0))
	assert.ErrorIs(err, slam.ErrUnknownVariable)

	// idempotent query
	v1, err := s.EstimateOf(slam.PoseKey(0))
	assert.NoError(err)
	v2, err := s.EstimateOf(slam.PoseKey(0))
	assert.NoError(err)
	assert.Equal(v1, v2)
}

func TestViews(t *testing.T) {
	assert := assert.New(t)

	s := newSession(t)
	assert.Equal(orb.LineString{{0, 0}}, s.TrajectoryLine())
	assert.Empty(s.LandmarkPoints())
	assert.Empty(s.FlatLandmarks())

	_, err := s.Step(model.Motion{Trans: 1}, nil)
	assert.NoError(err)
	_, err = s.Step(model.Motion{Rot1: math.Pi / 2, Trans: 1}, []model.Measurement{{Range: 1, Bearing: 0}})
	assert.NoError(err)

	flat := s.FlatTrajectory()
	assert.Len(flat, 3)
	assert.InDeltaSlice([]float64{1, 0}, flat[1][:], 1e-6)
	assert.InDeltaSlice([]float64{1, 1}, flat[2][:], 1e-6)

	lms := s.FlatLandmarks()
	assert.Len(lms, 1)
	assert.InDeltaSlice([]float64{2, 0}, lms[0][:], 1e-6)

	line := s.TrajectoryLine()
	assert.Len(line, 3)
	assert.InDelta(1.0, line[2][1], 1e-6)

	mp := s.LandmarkPoints()
	assert.Len(mp, 1)

	b := s.Bound()
	assert.InDelta(0.0, b.Min[0], 1e-6)
	assert.InDelta(0.0, b.Min[1], 1e-6)
	assert.InDelta(2.0, b.Max[0], 1e-6)
	assert.InDelta(1.0, b.Max[1], 1e-6)
}
