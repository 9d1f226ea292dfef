package model

import (
	"math"

	"github.com/milosgajdos/go-slam/geom"
)

// Measurement is a range and bearing observation of a landmark
type Measurement struct {
	// Range is the distance to the landmark
	Range float64
	// Bearing is the landmark angle relative to the observer heading in radians
	Bearing float64
}

// PredictLandmark returns landmark position observed from pose p at range rng and bearing b.
func PredictLandmark(p geom.Pose2, rng, b float64) geom.Point2 {
	angle := geom.WrapAngle(p.Theta + b)

	return geom.Point2{
		X: p.X + rng*math.Cos(angle),
		Y: p.Y + rng*math.Sin(angle),
	}
}

// BearingRange returns bearing and range of landmark l observed from pose p.
func BearingRange(p geom.Pose2, l geom.Point2) (float64, float64) {
	dx, dy := l.X-p.X, l.Y-p.Y

	return geom.WrapAngle(math.Atan2(dy, dx) - p.Theta), math.Hypot(dx, dy)
}

// BearingRangeResidual returns the difference between measured bearing b, range rng
// and the bearing and range predicted from pose p to landmark l.
// The bearing component is normalized to (-Pi, Pi].
func BearingRangeResidual(p geom.Pose2, l geom.Point2, b, rng float64) [2]float64 {
	pb, pr := BearingRange(p, l)

	return [2]float64{
		geom.WrapAngle(geom.WrapAngle(b) - pb),
		rng - pr,
	}
}
