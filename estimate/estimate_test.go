package estimate

import (
	"testing"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/geom"
	"github.com/milosgajdos/go-slam/graph"
	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert := assert.New(t)

	vals := graph.NewValues()
	assert.NoError(vals.Insert(slam.PoseKey(0), geom.NewPose2(0, 0, 0)))
	assert.NoError(vals.Insert(slam.LandmarkKey(0), geom.Point2{X: 2, Y: 1}))

	e := New(vals, 3, true, []slam.Key{slam.LandmarkKey(0)})

	// the snapshot does not follow the source values
	assert.NoError(vals.Insert(slam.PoseKey(1), geom.NewPose2(1, 0, 0)))
	assert.Equal(2, e.Len())
	assert.Equal([]slam.Key{slam.PoseKey(0), slam.LandmarkKey(0)}, e.Keys())

	p, err := e.Pose(slam.PoseKey(0))
	assert.NoError(err)
	assert.Equal(geom.NewPose2(0, 0, 0), p)

	l, err := e.Point(slam.LandmarkKey(0))
	assert.NoError(err)
	assert.Equal(geom.Point2{X: 2, Y: 1}, l)

	_, err = e.Pose(slam.LandmarkKey(0))
	assert.Error(err)
	_, err = e.Point(slam.PoseKey(0))
	assert.Error(err)
	_, err = e.At(slam.PoseKey(1))
	assert.ErrorIs(err, slam.ErrUnknownVariable)

	assert.Equal(3, e.Iterations())
	assert.True(e.Converged())
	assert.NoError(e.Err())
	assert.Equal([]slam.Key{slam.LandmarkKey(0)}, e.Held())
	assert.Equal(2, e.Values().Len())
}

func TestEstimateDivergence(t *testing.T) {
	assert := assert.New(t)

	e := New(graph.NewValues(), 10, false, nil)
	assert.False(e.Converged())
	assert.ErrorIs(e.Err(), slam.ErrSolverDivergence)
	assert.Empty(e.Held())
}
