package model

import (
	"math"
	"testing"

	"github.com/milosgajdos/go-slam/geom"
	"github.com/stretchr/testify/assert"
)

func TestPredictLandmark(t *testing.T) {
	assert := assert.New(t)

	l := PredictLandmark(geom.Pose2{X: 1}, 1, 0)
	assert.InDelta(2.0, l.X, 1e-12)
	assert.InDelta(0.0, l.Y, 1e-12)

	l = PredictLandmark(geom.Pose2{X: 1, Y: 1, Theta: math.Pi / 2}, 2, math.Pi/2)
	assert.InDelta(-1.0, l.X, 1e-12)
	assert.InDelta(1.0, l.Y, 1e-12)
}

func TestBearingRangeInverse(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		pose geom.Pose2
		meas Measurement
	}{
		{geom.Pose2{}, Measurement{Range: 1, Bearing: 0}},
		{geom.NewPose2(3, -2, 2.9), Measurement{Range: 4.5, Bearing: 0.8}},
		{geom.NewPose2(-1, 5, -3), Measurement{Range: 0.1, Bearing: -3.1}},
		{geom.NewPose2(0, 0, math.Pi), Measurement{Range: 10, Bearing: math.Pi}},
	} {
		l := PredictLandmark(test.pose, test.meas.Range, test.meas.Bearing)
		r := BearingRangeResidual(test.pose, l, test.meas.Bearing, test.meas.Range)
		assert.InDelta(0.0, r[0], 1e-9)
		assert.InDelta(0.0, r[1], 1e-9)
	}
}

func TestBearingRangeResidual(t *testing.T) {
	assert := assert.New(t)

	p := geom.Pose2{}
	l := geom.Point2{X: 0, Y: 2}

	b, rng := BearingRange(p, l)
	assert.InDelta(math.Pi/2, b, 1e-12)
	assert.InDelta(2.0, rng, 1e-12)

	r := BearingRangeResidual(p, l, math.Pi/2+0.1, 2.5)
	assert.InDelta(0.1, r[0], 1e-12)
	assert.InDelta(0.5, r[1], 1e-12)

	// bearing residual wraps around
	r = BearingRangeResidual(geom.Pose2{}, geom.Point2{X: -1, Y: -1e-9}, math.Pi, 1)
	assert.True(math.Abs(r[0]) < 1e-6)
}
