package session

import "github.com/paulmach/orb"

// TrajectoryLine returns current pose positions as a line in creation order
func (s *Session) TrajectoryLine() orb.LineString {
	poses := s.Trajectory()
	ls := make(orb.LineString, len(poses))
	for i, p := range poses {
		ls[i] = orb.Point{p.X, p.Y}
	}

	return ls
}

// LandmarkPoints returns current landmark positions in creation order
func (s *Session) LandmarkPoints() orb.MultiPoint {
	points := s.Landmarks()
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}

	return mp
}

// Bound returns the bounding box of the trajectory and the landmarks
func (s *Session) Bound() orb.Bound {
	return s.TrajectoryLine().Bound().Union(s.LandmarkPoints().Bound())
}

// FlatTrajectory returns current pose positions as flat x, y pairs
func (s *Session) FlatTrajectory() [][2]float64 {
	poses := s.Trajectory()
	flat := make([][2]float64, len(poses))
	for i, p := range poses {
		flat[i] = [2]float64{p.X, p.Y}
	}

	return flat
}

// FlatLandmarks returns current landmark positions as flat x, y pairs
func (s *Session) FlatLandmarks() [][2]float64 {
	points := s.Landmarks()
	flat := make([][2]float64, len(points))
	for i, p := range points {
		flat[i] = [2]float64{p.X, p.Y}
	}

	return flat
}
