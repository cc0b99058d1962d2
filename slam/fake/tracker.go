package fake

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"

	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/spatialmath"
)

// DefaultConvergenceRadius is how far, in millimetres, an ICPTracker hypothesis may be from the
// true pose and still converge.
const DefaultConvergenceRadius = 150.

// ICPTracker mimics an ICP tracker: it snaps to the frame's true pose when the hypothesis is
// close enough and fails otherwise. Frames for which FailFrame returns true fail regardless, as
// if the depth were occluded.
type ICPTracker struct {
	ConvergenceRadius float64
	FailFrame         func(index int) bool

	mu       sync.Mutex
	prepared int
}

// NewICPTracker returns an ICP tracker with the default convergence radius.
func NewICPTracker() *ICPTracker {
	return &ICPTracker{ConvergenceRadius: DefaultConvergenceRadius}
}

// Prepare implements slam.Tracker.
func (t *ICPTracker) Prepare(ctx context.Context, pose spatialmath.Pose, view *slam.View, mode slam.TrackingMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prepared++
	return nil
}

// Prepared returns how many times Prepare was called.
func (t *ICPTracker) Prepared() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prepared
}

// Track implements slam.Tracker. A failed frame yields a pose that has drifted away from the
// hypothesis.
func (t *ICPTracker) Track(ctx context.Context, pose spatialmath.Pose, view *slam.View) (spatialmath.Pose, slam.TrackingQuality, error) {
	drifted := spatialmath.Compose(pose, spatialmath.NewPoseFromPoint(r3.Vector{X: t.ConvergenceRadius}))
	if view == nil || view.Frame == nil || view.Frame.GroundTruth == nil {
		return drifted, slam.TrackingFailed, nil
	}
	if t.FailFrame != nil && t.FailFrame(view.Frame.Index) {
		return drifted, slam.TrackingFailed, nil
	}
	truth := view.Frame.GroundTruth
	translation, _ := spatialmath.PoseDelta(pose, truth)
	switch {
	case translation > t.ConvergenceRadius:
		return drifted, slam.TrackingFailed, nil
	case translation > t.ConvergenceRadius/2:
		return truth, slam.TrackingPoor, nil
	default:
		return truth, slam.TrackingGood, nil
	}
}

// MocapTracker reads the pose reported by motion capture. It loses tracking on frames without a
// reported pose.
type MocapTracker struct {
	mu   sync.Mutex
	lost bool
}

// Prepare implements slam.Tracker.
func (t *MocapTracker) Prepare(ctx context.Context, pose spatialmath.Pose, view *slam.View, mode slam.TrackingMode) error {
	return nil
}

// Track implements slam.Tracker.
func (t *MocapTracker) Track(ctx context.Context, pose spatialmath.Pose, view *slam.View) (spatialmath.Pose, slam.TrackingQuality, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if view == nil || view.Frame == nil || view.Frame.GroundTruth == nil {
		t.lost = true
		return pose, slam.TrackingFailed, nil
	}
	t.lost = false
	return view.Frame.GroundTruth, slam.TrackingGood, nil
}

// LostTracking implements slam.FallibleTracker.
func (t *MocapTracker) LostTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lost
}

// RegisterTrackers registers synthetic backends for every tracker type. The returned function
// removes them again.
func RegisterTrackers(failFrame func(index int) bool) func() {
	slam.RegisterTracker(slam.TrackerInfiniTAM, func(ctx context.Context, cfg slam.Config, logger logging.Logger) (slam.Tracker, error) {
		tracker := NewICPTracker()
		tracker.FailFrame = failFrame
		return tracker, nil
	})
	mocap := func(ctx context.Context, cfg slam.Config, logger logging.Logger) (slam.Tracker, error) {
		return &MocapTracker{}, nil
	}
	slam.RegisterTracker(slam.TrackerVicon, mocap)
	slam.RegisterTracker(slam.TrackerRobustVicon, mocap)
	return func() {
		slam.DeregisterTracker(slam.TrackerInfiniTAM)
		slam.DeregisterTracker(slam.TrackerVicon)
		slam.DeregisterTracker(slam.TrackerRobustVicon)
	}
}
