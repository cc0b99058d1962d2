package slam

import (
	"context"

	"go.viam.com/collabslam/spatialmath"
)

// An ImageSource produces the RGB-D frames an agent processes. A source may be a sequence of
// sub-sources, in which case CurrentSubsourceHasMoreImages reports on the active one only.
type ImageSource interface {
	HasMoreImages() bool
	NextFrame(ctx context.Context) (*Frame, error)
	CurrentSubsourceHasMoreImages() bool
}

// A ViewBuilder turns a raw frame into the view used for tracking and fusion. The returned view
// may be `view` itself, updated in place.
type ViewBuilder interface {
	UpdateView(ctx context.Context, view *View, frame *Frame, useBilateralFilter bool) (*View, error)
}

// A Tracker estimates the camera pose of a view from a pose hypothesis.
type Tracker interface {
	// Prepare renders whatever the tracker needs from the scene at `pose` so that the next call
	// to Track can align against it.
	Prepare(ctx context.Context, pose spatialmath.Pose, view *View, mode TrackingMode) error
	Track(ctx context.Context, pose spatialmath.Pose, view *View) (spatialmath.Pose, TrackingQuality, error)
}

// A FallibleTracker is a Tracker that can tell when it has lost track of the camera, independently
// of the quality it reports for individual frames.
type FallibleTracker interface {
	Tracker
	LostTracking() bool
}

// NoKeyframe marks the absence of a keyframe in a RelocalisationResult.
const NoKeyframe = -1

// RelocalisationResult is the outcome of offering a frame to a Relocaliser.
type RelocalisationResult struct {
	// NearestNeighbour is the id of the most similar stored keyframe, or NoKeyframe.
	NearestNeighbour int
	// KeyframeID is the id under which the frame was stored as a new keyframe, or NoKeyframe.
	KeyframeID int
}

// A Relocaliser indexes depth frames and finds the stored keyframe nearest to a new frame.
type Relocaliser interface {
	ProcessFrame(ctx context.Context, depth *DepthImage, considerKeyframe bool) (RelocalisationResult, error)
}

// A PoseDatabase stores keyframe poses by keyframe id.
type PoseDatabase interface {
	StorePose(id int, pose spatialmath.Pose) error
	RetrievePose(id int) (spatialmath.Pose, error)
}

// A DenseMapper fuses tracked views into a scene.
type DenseMapper interface {
	ResetScene(ctx context.Context) error
	// UpdateVisibleList refreshes the set of scene blocks visible from `pose` without writing to
	// the map. `reset` discards the previous list.
	UpdateVisibleList(ctx context.Context, view *View, pose spatialmath.Pose, reset bool) error
	ProcessFrame(ctx context.Context, view *View, pose spatialmath.Pose) error
}

// A SurfelMapper is a DenseMapper over a surfel scene that also maintains an index image used to
// associate new points with existing surfels.
type SurfelMapper interface {
	DenseMapper
	RenderIndex(ctx context.Context, pose spatialmath.Pose) error
}

// A Context is the shared store an agent publishes its trajectory to.
type Context interface {
	AppendPose(sceneID string, pose spatialmath.Pose) error
}

// A PoseWriter persists the raw and refined pose of each relocalised frame.
type PoseWriter interface {
	WritePoses(sceneID string, frameIndex int, raw, refined spatialmath.Pose)
	Close() error
}
