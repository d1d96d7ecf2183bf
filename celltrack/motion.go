package celltrack

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// motionModel smooths centroid of one open track with a 2D constant velocity
// Kalman filter and provides predicted centroid for the next frame.
type motionModel struct {
	current   Point
	predicted Point
	tracker   *kalman_filter.Kalman2D
}

func newMotionModel(centroid Point) *motionModel {
	/* Kalman filter props */
	dt := 1.0
	ux := 0.0
	uy := 0.0
	stdDevA := 2.0
	stdDevMx := 0.5
	stdDevMy := 0.5
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(centroid.X, centroid.Y))
	return &motionModel{
		current:   centroid,
		predicted: centroid,
		tracker:   kf,
	}
}

// PredictNextPosition execute Kalman filter's first step but without re-evaluating state vector based on Kalman gain
func (m *motionModel) PredictNextPosition() Point {
	m.tracker.Predict()
	stateX, stateY := m.tracker.GetState()
	m.predicted = Point{X: stateX, Y: stateY}
	return m.predicted
}

// Update execute Kalman filter's second step with observed centroid
func (m *motionModel) Update(centroid Point) error {
	err := m.tracker.Update(centroid.X, centroid.Y)
	if err != nil {
		return errors.Wrap(err, "Can't update motion model")
	}
	stateX, stateY := m.tracker.GetState()
	m.current = Point{X: stateX, Y: stateY}
	return nil
}
