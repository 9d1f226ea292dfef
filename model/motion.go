package model

import (
	"math"

	"github.com/milosgajdos/go-slam/geom"
	"gonum.org/v1/gonum/mat"
)

// Motion is a relative odometry command: rotate by Rot1, drive Trans forward, rotate by Rot2
type Motion struct {
	// Rot1 is the first rotation in radians
	Rot1 float64
	// Trans is the forward translation
	Trans float64
	// Rot2 is the second rotation in radians
	Rot2 float64
}

// Alphas are odometry noise coefficients
type Alphas struct {
	// A1 scales rotation variance by rotation magnitude
	A1 float64
	// A2 scales rotation variance by translation magnitude
	A2 float64
	// A3 scales translation variance by translation magnitude
	A3 float64
	// A4 scales translation variance by total rotation magnitude
	A4 float64
}

// Predict applies motion m to pose p and returns the resulting pose.
// Translation happens along the heading updated by the first rotation.
func Predict(p geom.Pose2, m Motion) geom.Pose2 {
	theta := p.Theta + m.Rot1
	x := p.X + m.Trans*math.Cos(theta)
	y := p.Y + m.Trans*math.Sin(theta)

	return geom.Pose2{X: x, Y: y, Theta: geom.WrapAngle(theta + m.Rot2)}
}

// MotionCovariance returns motion variances on the (Rot1, Trans, Rot2) axes.
// Rotation variance grows with rotation and a fraction of translation,
// translation variance grows with translation and a fraction of total rotation.
func MotionCovariance(m Motion, a Alphas) [3]float64 {
	r1, t, r2 := m.Rot1*m.Rot1, m.Trans*m.Trans, m.Rot2*m.Rot2

	return [3]float64{
		a.A1*r1 + a.A2*t,
		a.A3*t + a.A4*(r1+r2),
		a.A1*r2 + a.A2*t,
	}
}

// Relative returns motion m as a transform expressed in the frame of the pose it starts from.
// Predict(p, m) equals p.Compose(Relative(m)).
func Relative(m Motion) geom.Pose2 {
	return geom.Pose2{
		X:     m.Trans * math.Cos(m.Rot1),
		Y:     m.Trans * math.Sin(m.Rot1),
		Theta: geom.WrapAngle(m.Rot1 + m.Rot2),
	}
}

// RelativeCovariance propagates motion variances vars of motion m into the (x, y, theta)
// space of Relative(m) and adds floor to the diagonal.
// floor keeps the covariance positive definite when the motion is degenerate.
func RelativeCovariance(m Motion, vars [3]float64, floor float64) *mat.SymDense {
	c, s := math.Cos(m.Rot1), math.Sin(m.Rot1)

	// Jacobian of Relative with respect to (Rot1, Trans, Rot2)
	g := mat.NewDense(3, 3, []float64{
		-m.Trans * s, c, 0,
		m.Trans * c, s, 0,
		1, 0, 1,
	})

	cov := mat.NewSymDense(3, []float64{
		floor, 0, 0,
		0, floor, 0,
		0, 0, floor,
	})
	for k := 0; k < 3; k++ {
		cov.SymRankOne(cov, vars[k], g.ColView(k))
	}

	return cov
}
