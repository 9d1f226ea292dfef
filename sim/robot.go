package sim

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-slam/geom"
	"github.com/milosgajdos/go-slam/model"
	"github.com/milosgajdos/go-slam/noise"
	"gonum.org/v1/gonum/mat"
)

// Sampler samples noise
type Sampler interface {
	// Sample returns a noise sample
	Sample() mat.Vector
}

// Reading is what a robot senses in a single step
type Reading struct {
	// Motion is the noisy odometry of the step
	Motion model.Motion
	// Measurements are noisy measurements taken before the step motion
	Measurements []model.Measurement
	// Observed are the indices of the measured landmarks
	Observed []int
	// Truth is the true pose reached at the end of the step
	Truth geom.Pose2
}

// Robot drives through a world and senses it with noisy odometry and a bearing-range sensor
type Robot struct {
	world  *World
	truth  geom.Pose2
	alphas model.Alphas
	// motion samples standard normal odometry noise
	motion Sampler
	// obs samples bearing and range noise
	obs Sampler
}

// NewRobot creates new robot placed at start in world w and returns it.
// Odometry noise follows the motion noise coefficients alphas, measurement noise
// is Gaussian with bearing and range standard deviations obsSigmas; zero sigmas
// produce exact measurements. Noise is drawn from sources seeded with seed.
// It returns error if any noise parameter is negative.
func NewRobot(w *World, start geom.Pose2, alphas model.Alphas, obsSigmas [2]float64, seed uint64) (*Robot, error) {
	for _, a := range []float64{alphas.A1, alphas.A2, alphas.A3, alphas.A4} {
		if a < 0 || math.IsNaN(a) {
			return nil, fmt.Errorf("invalid motion noise coefficient: %v", a)
		}
	}

	motion, err := noise.NewGaussianWithSeed(make([]float64, 3), identity(3), seed)
	if err != nil {
		return nil, err
	}

	var obs Sampler
	switch b, r := obsSigmas[0], obsSigmas[1]; {
	case b == 0 && r == 0:
		obs, err = noise.NewZero(2)
	case b > 0 && r > 0:
		cov := mat.NewSymDense(2, []float64{b * b, 0, 0, r * r})
		obs, err = noise.NewGaussianWithSeed(make([]float64, 2), cov, seed+1)
	default:
		return nil, fmt.Errorf("invalid measurement noise: %v", obsSigmas)
	}
	if err != nil {
		return nil, err
	}

	return &Robot{
		world:  w,
		truth:  start,
		alphas: alphas,
		motion: motion,
		obs:    obs,
	}, nil
}

// Truth returns the true robot pose
func (r *Robot) Truth() geom.Pose2 {
	return r.truth
}

// Step senses the landmarks from the current pose, executes motion m and
// returns the noisy readings of the step.
func (r *Robot) Step(m model.Motion) Reading {
	exact, idx := r.world.Observe(r.truth)

	meas := make([]model.Measurement, len(exact))
	for i, z := range exact {
		n := r.obs.Sample()
		meas[i] = model.Measurement{
			Range:   math.Max(0, z.Range+n.AtVec(1)),
			Bearing: geom.WrapAngle(z.Bearing + n.AtVec(0)),
		}
	}

	r.truth = model.Predict(r.truth, m)

	vars := model.MotionCovariance(m, r.alphas)
	n := r.motion.Sample()
	odom := model.Motion{
		Rot1:  m.Rot1 + math.Sqrt(vars[0])*n.AtVec(0),
		Trans: m.Trans + math.Sqrt(vars[1])*n.AtVec(1),
		Rot2:  m.Rot2 + math.Sqrt(vars[2])*n.AtVec(2),
	}

	return Reading{
		Motion:       odom,
		Measurements: meas,
		Observed:     idx,
		Truth:        r.truth,
	}
}

func identity(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}

	return m
}
