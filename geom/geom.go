package geom

import (
	"fmt"
	"math"

	slam "github.com/milosgajdos/go-slam"
)

// WrapAngle normalizes angle a to (-Pi, Pi]
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}

	return a - math.Pi
}

// Pose2 is a 2D pose: position and heading
type Pose2 struct {
	X     float64
	Y     float64
	Theta float64
}

// NewPose2 returns pose with normalized heading
func NewPose2(x, y, theta float64) Pose2 {
	return Pose2{X: x, Y: y, Theta: WrapAngle(theta)}
}

// Kind returns slam.KindPose
func (p Pose2) Kind() slam.Kind { return slam.KindPose }

// Dim returns pose degrees of freedom
func (p Pose2) Dim() int { return 3 }

// Retract applies correction delta to p.
// Position is corrected additively, heading is corrected and normalized.
func (p Pose2) Retract(delta []float64) slam.Value {
	return Pose2{
		X:     p.X + delta[0],
		Y:     p.Y + delta[1],
		Theta: WrapAngle(p.Theta + delta[2]),
	}
}

// Local returns correction which retracts p to v.
// It panics if v is not Pose2.
func (p Pose2) Local(v slam.Value) []float64 {
	q := v.(Pose2)

	return []float64{q.X - p.X, q.Y - p.Y, WrapAngle(q.Theta - p.Theta)}
}

// Compose returns p*q: q expressed in the frame of p, moved to the global frame
func (p Pose2) Compose(q Pose2) Pose2 {
	c, s := math.Cos(p.Theta), math.Sin(p.Theta)

	return Pose2{
		X:     p.X + c*q.X - s*q.Y,
		Y:     p.Y + s*q.X + c*q.Y,
		Theta: WrapAngle(p.Theta + q.Theta),
	}
}

// Between returns inverse(p)*q: pose q expressed in the frame of p
func (p Pose2) Between(q Pose2) Pose2 {
	c, s := math.Cos(p.Theta), math.Sin(p.Theta)
	dx, dy := q.X-p.X, q.Y-p.Y

	return Pose2{
		X:     c*dx + s*dy,
		Y:     -s*dx + c*dy,
		Theta: WrapAngle(q.Theta - p.Theta),
	}
}

// Point returns pose position
func (p Pose2) Point() Point2 {
	return Point2{X: p.X, Y: p.Y}
}

// Equal reports whether p and q are equal within tol.
func (p Pose2) Equal(q Pose2, tol float64) bool {
	return math.Abs(p.X-q.X) <= tol &&
		math.Abs(p.Y-q.Y) <= tol &&
		math.Abs(WrapAngle(p.Theta-q.Theta)) <= tol
}

// String implements the Stringer interface.
func (p Pose2) String() string {
	return fmt.Sprintf("Pose2{X=%g Y=%g Theta=%g}", p.X, p.Y, p.Theta)
}

// Point2 is a 2D point
type Point2 struct {
	X float64
	Y float64
}

// Kind returns slam.KindLandmark
func (p Point2) Kind() slam.Kind { return slam.KindLandmark }

// Dim returns point degrees of freedom
func (p Point2) Dim() int { return 2 }

// Retract applies correction delta to p
func (p Point2) Retract(delta []float64) slam.Value {
	return Point2{X: p.X + delta[0], Y: p.Y + delta[1]}
}

// Local returns correction which retracts p to v.
// It panics if v is not Point2.
func (p Point2) Local(v slam.Value) []float64 {
	q := v.(Point2)

	return []float64{q.X - p.X, q.Y - p.Y}
}

// Distance returns Euclidean distance between p and q
func (p Point2) Distance(q Point2) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// String implements the Stringer interface.
func (p Point2) String() string {
	return fmt.Sprintf("Point2{X=%g Y=%g}", p.X, p.Y)
}
