// Package inject provides injectable versions of the SLAM collaborators for tests. Each method
// calls its injected function when set and the embedded implementation otherwise.
package inject

import (
	"context"

	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/spatialmath"
)

// Tracker is an injected tracker.
type Tracker struct {
	slam.FallibleTracker
	PrepareFunc      func(ctx context.Context, pose spatialmath.Pose, view *slam.View, mode slam.TrackingMode) error
	TrackFunc        func(ctx context.Context, pose spatialmath.Pose, view *slam.View) (spatialmath.Pose, slam.TrackingQuality, error)
	LostTrackingFunc func() bool
}

// Prepare calls the injected Prepare or the real version.
func (t *Tracker) Prepare(ctx context.Context, pose spatialmath.Pose, view *slam.View, mode slam.TrackingMode) error {
	if t.PrepareFunc == nil {
		if t.FallibleTracker == nil {
			return nil
		}
		return t.FallibleTracker.Prepare(ctx, pose, view, mode)
	}
	return t.PrepareFunc(ctx, pose, view, mode)
}

// Track calls the injected Track or the real version.
func (t *Tracker) Track(
	ctx context.Context,
	pose spatialmath.Pose,
	view *slam.View,
) (spatialmath.Pose, slam.TrackingQuality, error) {
	if t.TrackFunc == nil {
		return t.FallibleTracker.Track(ctx, pose, view)
	}
	return t.TrackFunc(ctx, pose, view)
}

// LostTracking calls the injected LostTracking or the real version. Without either, tracking is
// never lost.
func (t *Tracker) LostTracking() bool {
	if t.LostTrackingFunc == nil {
		if t.FallibleTracker == nil {
			return false
		}
		return t.FallibleTracker.LostTracking()
	}
	return t.LostTrackingFunc()
}
