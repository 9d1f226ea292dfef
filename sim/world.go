package sim

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-slam/geom"
	"github.com/milosgajdos/go-slam/model"
)

// World is a simulated environment populated with landmarks
type World struct {
	// Landmarks are true landmark positions
	Landmarks []geom.Point2
	// MaxRange is the largest distance at which a landmark is observed
	MaxRange float64
}

// NewWorld creates new world with landmarks observable up to maxRange and returns it.
// It returns error if maxRange is not positive.
func NewWorld(landmarks []geom.Point2, maxRange float64) (*World, error) {
	if !(maxRange > 0) {
		return nil, fmt.Errorf("invalid range: %v", maxRange)
	}

	l := make([]geom.Point2, len(landmarks))
	copy(l, landmarks)

	return &World{
		Landmarks: l,
		MaxRange:  maxRange,
	}, nil
}

// Observe returns exact bearing-range measurements of every landmark within MaxRange
// of pose p together with the indices of the observed landmarks.
func (w *World) Observe(p geom.Pose2) ([]model.Measurement, []int) {
	var meas []model.Measurement
	var idx []int

	for i, l := range w.Landmarks {
		b, r := model.BearingRange(p, l)
		if r > w.MaxRange {
			continue
		}
		meas = append(meas, model.Measurement{Range: r, Bearing: b})
		idx = append(idx, i)
	}

	return meas, idx
}

// Loop returns a closed rectangular motion schedule with sides of the given
// lengths driven in steps of at most step distance units, turning left at each corner.
func Loop(width, height, step float64) ([]model.Motion, error) {
	if !(step > 0) || !(width > 0) || !(height > 0) {
		return nil, fmt.Errorf("invalid loop: width %v, height %v, step %v", width, height, step)
	}

	var motions []model.Motion
	for _, side := range []float64{width, height, width, height} {
		n := int(math.Ceil(side / step))
		for i := 0; i < n; i++ {
			m := model.Motion{Trans: side / float64(n)}
			if i == n-1 {
				m.Rot2 = math.Pi / 2
			}
			motions = append(motions, m)
		}
	}

	return motions, nil
}
