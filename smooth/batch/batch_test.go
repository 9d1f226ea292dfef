package batch

import (
	"testing"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/factor"
	"github.com/milosgajdos/go-slam/geom"
	"github.com/milosgajdos/go-slam/graph"
	"github.com/milosgajdos/go-slam/noise"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func newDiagonal(t *testing.T, sigmas ...float64) *noise.Diagonal {
	n, err := noise.NewDiagonal(sigmas...)
	assert.NoError(t, err)
	return n
}

func chain(t *testing.T) (*graph.Graph, *graph.Values) {
	g := graph.New()
	g.Add(factor.NewPrior(slam.PoseKey(0), geom.NewPose2(0, 0, 0), newDiagonal(t, 0.1, 0.1, 0.05)))
	g.Add(factor.NewBetween(slam.PoseKey(0), slam.PoseKey(1), geom.NewPose2(1, 0, 0.5), newDiagonal(t, 0.1, 0.1, 0.05)))
	g.Add(factor.NewBearingRange(slam.PoseKey(1), slam.LandmarkKey(0), -0.5, 1, newDiagonal(t, 0.05, 0.1)))

	init := graph.NewValues()
	assert.NoError(t, init.Insert(slam.PoseKey(0), geom.NewPose2(0.2, -0.1, 0.1)))
	assert.NoError(t, init.Insert(slam.PoseKey(1), geom.NewPose2(1.3, 0.2, 0.3)))
	assert.NoError(t, init.Insert(slam.LandmarkKey(0), geom.Point2{X: 1.8, Y: 0.3}))

	return g, init
}

func TestOptimize(t *testing.T) {
	assert := assert.New(t)

	g, init := chain(t)

	est, err := Optimize(g, init, DefaultParams(), WithLogger(zap.NewNop().Sugar()))
	assert.NoError(err)
	assert.True(est.Converged())
	assert.Empty(est.Held())

	p0, err := est.Pose(slam.PoseKey(0))
	assert.NoError(err)
	assert.True(p0.Equal(geom.NewPose2(0, 0, 0), 1e-8), "pose: %v", p0)

	p1, err := est.Pose(slam.PoseKey(1))
	assert.NoError(err)
	assert.True(p1.Equal(geom.NewPose2(1, 0, 0.5), 1e-8), "pose: %v", p1)

	l, err := est.Point(slam.LandmarkKey(0))
	assert.NoError(err)
	assert.InDelta(2.0, l.X, 1e-8)
	assert.InDelta(0.0, l.Y, 1e-8)

	// consistent measurements leave no residual error
	e, err := g.Error(est.Values())
	assert.NoError(err)
	assert.InDelta(0.0, e, 1e-12)

	// initial values are not modified
	v, err := init.At(slam.PoseKey(0))
	assert.NoError(err)
	assert.Equal(geom.NewPose2(0.2, -0.1, 0.1), v)
}

func TestOptimizeErrors(t *testing.T) {
	assert := assert.New(t)

	g, init := chain(t)

	p := DefaultParams()
	p.MaxIterations = 0
	_, err := Optimize(g, init, p)
	assert.Error(err)

	g.Add(factor.NewPrior(slam.PoseKey(5), geom.NewPose2(0, 0, 0), newDiagonal(t, 1, 1, 1)))
	_, err = Optimize(g, init, DefaultParams())
	assert.ErrorIs(err, slam.ErrUnknownVariable)

	g, init = chain(t)
	g.Add(factor.NewPrior(slam.LandmarkKey(0), geom.NewPose2(0, 0, 0), newDiagonal(t, 1, 1, 1)))
	_, err = Optimize(g, init, DefaultParams())
	assert.ErrorIs(err, slam.ErrInvalidFactor)
}

func TestOptimizeDivergence(t *testing.T) {
	assert := assert.New(t)

	g, init := chain(t)

	p := DefaultParams()
	p.MaxIterations = 1
	est, err := Optimize(g, init, p)
	assert.ErrorIs(err, slam.ErrSolverDivergence)
	assert.NotNil(est)
	assert.False(est.Converged())
	assert.Equal(3, est.Len())
}

func TestOptimizeEmpty(t *testing.T) {
	assert := assert.New(t)

	est, err := Optimize(graph.New(), graph.NewValues(), DefaultParams())
	assert.NoError(err)
	assert.True(est.Converged())
	assert.Equal(0, est.Len())
}

func TestParamsYAML(t *testing.T) {
	assert := assert.New(t)

	data := []byte("max_iterations: 7\nconvergence_threshold: 1.0e-8\n")

	p := DefaultParams()
	assert.NoError(yaml.Unmarshal(data, &p))
	assert.Equal(7, p.MaxIterations)
	assert.Equal(1e-8, p.ConvergenceThreshold)
	assert.Equal(DefaultParams().CondLimit, p.CondLimit)

	out, err := yaml.Marshal(DefaultParams())
	assert.NoError(err)
	assert.Contains(string(out), "cond_limit:")
	assert.Contains(string(out), "max_iterations: 100")
}
