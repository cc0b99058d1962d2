package inject

import (
	"context"

	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/spatialmath"
)

// Relocaliser is an injected relocaliser.
type Relocaliser struct {
	slam.Relocaliser
	ProcessFrameFunc func(ctx context.Context, depth *slam.DepthImage, considerKeyframe bool) (slam.RelocalisationResult, error)
}

// ProcessFrame calls the injected ProcessFrame or the real version.
func (r *Relocaliser) ProcessFrame(
	ctx context.Context,
	depth *slam.DepthImage,
	considerKeyframe bool,
) (slam.RelocalisationResult, error) {
	if r.ProcessFrameFunc == nil {
		return r.Relocaliser.ProcessFrame(ctx, depth, considerKeyframe)
	}
	return r.ProcessFrameFunc(ctx, depth, considerKeyframe)
}

// PoseDatabase is an injected pose database.
type PoseDatabase struct {
	slam.PoseDatabase
	StorePoseFunc    func(id int, pose spatialmath.Pose) error
	RetrievePoseFunc func(id int) (spatialmath.Pose, error)
}

// StorePose calls the injected StorePose or the real version.
func (db *PoseDatabase) StorePose(id int, pose spatialmath.Pose) error {
	if db.StorePoseFunc == nil {
		return db.PoseDatabase.StorePose(id, pose)
	}
	return db.StorePoseFunc(id, pose)
}

// RetrievePose calls the injected RetrievePose or the real version.
func (db *PoseDatabase) RetrievePose(id int) (spatialmath.Pose, error) {
	if db.RetrievePoseFunc == nil {
		return db.PoseDatabase.RetrievePose(id)
	}
	return db.RetrievePoseFunc(id)
}
