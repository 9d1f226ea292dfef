package factor

import (
	"fmt"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/geom"
	"github.com/milosgajdos/go-slam/model"
	"gonum.org/v1/gonum/mat"
)

// MinRange is the range below which bearing is undefined.
// Bearing-range factors closer than MinRange do not constrain their variables.
const MinRange = 1e-9

// BearingRange relates a pose to a landmark through a bearing and range measurement
type BearingRange struct {
	pose     slam.Key
	landmark slam.Key
	bearing  float64
	rng      float64
	noise    slam.NoiseModel
}

// NewBearingRange creates new bearing-range factor and returns it.
// noise must be ordered as (bearing, range).
func NewBearingRange(pose, landmark slam.Key, bearing, rng float64, noise slam.NoiseModel) *BearingRange {
	return &BearingRange{
		pose:     pose,
		landmark: landmark,
		bearing:  bearing,
		rng:      rng,
		noise:    noise,
	}
}

// Keys returns pose and landmark keys
func (f *BearingRange) Keys() []slam.Key { return []slam.Key{f.pose, f.landmark} }

// Dim returns residual dimension
func (f *BearingRange) Dim() int { return 2 }

// Noise returns factor noise model
func (f *BearingRange) Noise() slam.NoiseModel { return f.noise }

// Measurement returns measured bearing and range
func (f *BearingRange) Measurement() model.Measurement {
	return model.Measurement{Range: f.rng, Bearing: f.bearing}
}

// Residual returns measured minus predicted bearing and range.
func (f *BearingRange) Residual(vals []slam.Value) ([]float64, error) {
	p, l, err := f.values(vals)
	if err != nil {
		return nil, err
	}
	r := model.BearingRangeResidual(p, l, f.bearing, f.rng)

	return r[:], nil
}

// Jacobians returns Jacobians of the residual with respect to the pose and the landmark.
// Both Jacobians are zero when the landmark is closer to the pose than MinRange.
func (f *BearingRange) Jacobians(vals []slam.Value) ([]*mat.Dense, error) {
	p, l, err := f.values(vals)
	if err != nil {
		return nil, err
	}

	jp := mat.NewDense(2, 3, nil)
	jl := mat.NewDense(2, 2, nil)

	dx, dy := l.X-p.X, l.Y-p.Y
	r2 := dx*dx + dy*dy
	if r2 < MinRange*MinRange {
		return []*mat.Dense{jp, jl}, nil
	}
	r := p.Point().Distance(l)

	jp.SetRow(0, []float64{-dy / r2, dx / r2, 1})
	jp.SetRow(1, []float64{dx / r, dy / r, 0})
	jl.SetRow(0, []float64{dy / r2, -dx / r2})
	jl.SetRow(1, []float64{-dx / r, -dy / r})

	return []*mat.Dense{jp, jl}, nil
}

func (f *BearingRange) values(vals []slam.Value) (geom.Pose2, geom.Point2, error) {
	if len(vals) != 2 {
		return geom.Pose2{}, geom.Point2{}, fmt.Errorf("%w: bearing-range expects 2 values, got %d", slam.ErrInvalidFactor, len(vals))
	}
	p, ok1 := vals[0].(geom.Pose2)
	l, ok2 := vals[1].(geom.Point2)
	if !ok1 || !ok2 {
		return geom.Pose2{}, geom.Point2{}, fmt.Errorf("%w: bearing-range %v-%v expects pose and landmark", slam.ErrInvalidFactor, f.pose, f.landmark)
	}

	return p, l, nil
}

// String implements the Stringer interface.
func (f *BearingRange) String() string {
	return fmt.Sprintf("BearingRange{%v->%v: bearing=%g range=%g}", f.pose, f.landmark, f.bearing, f.rng)
}
