package factor

import (
	"fmt"
	"math"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/geom"
	"gonum.org/v1/gonum/mat"
)

// Between constrains the relative transform between two poses
type Between struct {
	from  slam.Key
	to    slam.Key
	rel   geom.Pose2
	noise slam.NoiseModel
}

// NewBetween creates new factor constraining pose to expressed in the frame of pose from to rel.
func NewBetween(from, to slam.Key, rel geom.Pose2, noise slam.NoiseModel) *Between {
	return &Between{
		from:  from,
		to:    to,
		rel:   rel,
		noise: noise,
	}
}

// Keys returns the keys of both poses
func (b *Between) Keys() []slam.Key { return []slam.Key{b.from, b.to} }

// Dim returns residual dimension
func (b *Between) Dim() int { return 3 }

// Noise returns factor noise model
func (b *Between) Noise() slam.NoiseModel { return b.noise }

// Relative returns the measured relative transform
func (b *Between) Relative() geom.Pose2 { return b.rel }

// Residual returns the measured relative transform minus the relative transform between vals.
func (b *Between) Residual(vals []slam.Value) ([]float64, error) {
	p1, p2, err := b.poses(vals)
	if err != nil {
		return nil, err
	}
	h := p1.Between(p2)

	return []float64{
		b.rel.X - h.X,
		b.rel.Y - h.Y,
		geom.WrapAngle(b.rel.Theta - h.Theta),
	}, nil
}

// Jacobians returns Jacobians of the residual with respect to both poses.
func (b *Between) Jacobians(vals []slam.Value) ([]*mat.Dense, error) {
	p1, p2, err := b.poses(vals)
	if err != nil {
		return nil, err
	}
	h := p1.Between(p2)
	c, s := math.Cos(p1.Theta), math.Sin(p1.Theta)

	j1 := mat.NewDense(3, 3, []float64{
		c, s, -h.Y,
		-s, c, h.X,
		0, 0, 1,
	})
	j2 := mat.NewDense(3, 3, []float64{
		-c, -s, 0,
		s, -c, 0,
		0, 0, -1,
	})

	return []*mat.Dense{j1, j2}, nil
}

func (b *Between) poses(vals []slam.Value) (geom.Pose2, geom.Pose2, error) {
	if len(vals) != 2 {
		return geom.Pose2{}, geom.Pose2{}, fmt.Errorf("%w: between expects 2 values, got %d", slam.ErrInvalidFactor, len(vals))
	}
	p1, ok1 := vals[0].(geom.Pose2)
	p2, ok2 := vals[1].(geom.Pose2)
	if !ok1 || !ok2 {
		return geom.Pose2{}, geom.Pose2{}, fmt.Errorf("%w: between %v-%v expects poses", slam.ErrInvalidFactor, b.from, b.to)
	}

	return p1, p2, nil
}

// String implements the Stringer interface.
func (b *Between) String() string {
	return fmt.Sprintf("Between{%v->%v: %v}", b.from, b.to, b.rel)
}
