package estimate

import (
	"testing"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/geom"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewBaseWithCov(t *testing.T) {
	assert := assert.New(t)

	key := slam.PoseKey(0)
	val := geom.NewPose2(1, 2, 0.5)
	cov := mat.NewSymDense(3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})

	b, err := NewBaseWithCov(key, val, cov)
	assert.NotNil(b)
	assert.NoError(err)
	assert.Equal(3, b.Cov().SymmetricDim())

	b, err = NewBaseWithCov(key, nil, cov)
	assert.Nil(b)
	assert.Error(err)

	b, err = NewBaseWithCov(key, geom.Point2{X: 1}, cov)
	assert.Nil(b)
	assert.Error(err)
}

func TestBaseValCov(t *testing.T) {
	assert := assert.New(t)

	key := slam.LandmarkKey(3)
	val := geom.Point2{X: 1, Y: 2}
	cov := mat.NewSymDense(2, []float64{1.0, 2.0, 2.0, 4.0})

	b, err := NewBaseWithCov(key, val, cov)
	assert.NoError(err)

	assert.Equal(key, b.Key())
	assert.Equal(val, b.Val())

	c := b.Cov()
	assert.True(mat.Equal(cov, c))

	// returned covariance is a copy
	c.(*mat.SymDense).SetSym(0, 0, 10.0)
	assert.Equal(1.0, b.Cov().At(0, 0))

	assert.Contains(b.String(), "l3")
}
