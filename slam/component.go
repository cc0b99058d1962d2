package slam

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/spatialmath"
)

// Dependencies are the external collaborators of a Component.
type Dependencies struct {
	// ViewBuilder defaults to DefaultViewBuilder.
	ViewBuilder ViewBuilder
	VoxelMapper DenseMapper
	// SurfelMapper is required when mapping both scene representations.
	SurfelMapper SurfelMapper
	// Relocaliser is required by the relocalising failure mode.
	Relocaliser Relocaliser
	// PoseDatabase defaults to an in-memory database.
	PoseDatabase PoseDatabase
	PoseWriter   PoseWriter
	// Tracker overrides the tracker built from the tracker registry.
	Tracker Tracker
}

// Component advances one agent frame by frame: it tracks the camera, applies the failure policy
// and decides whether the frame is fused into the agent's map.
type Component struct {
	sceneID   string
	cfg       Config
	source    ImageSource
	deps      Dependencies
	tracker   Tracker
	fallible  FallibleTracker
	policy    FailurePolicy
	state     *State
	sharedCtx Context
	logger    logging.Logger

	fusionEnabled    atomic.Bool
	fusedFramesCount int
	frameIndex       int
	pose             spatialmath.Pose
	view             *View
}

// NewComponent returns the SLAM component of agent `sceneID`. Processed poses are appended to
// the agent's trajectory in `sharedCtx`.
func NewComponent(
	ctx context.Context,
	sharedCtx Context,
	sceneID string,
	source ImageSource,
	cfg Config,
	deps Dependencies,
	logger logging.Logger,
) (*Component, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(sceneID); err != nil {
		return nil, err
	}
	if sharedCtx == nil {
		return nil, errors.New("shared context is required")
	}
	if source == nil {
		return nil, errors.New("image source is required")
	}
	if deps.VoxelMapper == nil {
		return nil, errors.New("voxel mapper is required")
	}
	if cfg.MappingMode == MapBoth && deps.SurfelMapper == nil {
		return nil, errors.New("surfel mapper is required when mapping both scene representations")
	}
	if deps.ViewBuilder == nil {
		deps.ViewBuilder = DefaultViewBuilder{}
	}
	if deps.PoseDatabase == nil {
		deps.PoseDatabase = NewMemoryPoseDatabase()
	}

	if err := deps.VoxelMapper.ResetScene(ctx); err != nil {
		return nil, errors.Wrap(err, "cannot reset voxel scene")
	}
	if cfg.MappingMode == MapBoth {
		if err := deps.SurfelMapper.ResetScene(ctx); err != nil {
			return nil, errors.Wrap(err, "cannot reset surfel scene")
		}
	}

	tracker := deps.Tracker
	if tracker == nil {
		var err error
		if tracker, err = NewTracker(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	fallible, _ := tracker.(FallibleTracker)

	policy, err := NewFailurePolicy(cfg.FailureMode, RelocaliseDependencies{
		SceneID:       sceneID,
		Relocaliser:   deps.Relocaliser,
		PoseDatabase:  deps.PoseDatabase,
		PoseWriter:    deps.PoseWriter,
		RecoveryDelay: cfg.RecoveryKeyframeDelay,
	}, logger)
	if err != nil {
		return nil, err
	}

	c := &Component{
		sceneID:   sceneID,
		cfg:       cfg,
		source:    source,
		deps:      deps,
		tracker:   tracker,
		fallible:  fallible,
		policy:    policy,
		state:     NewState(sceneID),
		sharedCtx: sharedCtx,
		logger:    logger,
		pose:      spatialmath.NewZeroPose(),
	}
	c.fusionEnabled.Store(!cfg.FusionDisabled)
	return c, nil
}

// ProcessFrame processes the next frame of the image source. It returns false only when no frame
// could be read. Tracking failures are absorbed: failed frames are not fused and do not move the
// pose.
func (c *Component) ProcessFrame(ctx context.Context) bool {
	if !c.source.HasMoreImages() {
		return false
	}

	frame, err := c.source.NextFrame(ctx)
	if err != nil {
		c.logger.Warnw("cannot read next frame", "error", err)
		return false
	}
	index := c.frameIndex
	c.frameIndex++

	view, err := c.deps.ViewBuilder.UpdateView(ctx, c.view, frame, c.cfg.TrackingMode == TrackSurfels)
	if err != nil {
		c.logger.Warnw("cannot build view, skipping frame", "frame", index, "error", err)
		c.publish(TrackingFailed)
		return true
	}
	c.view = view

	oldPose := c.pose
	quality := TrackingGood
	if c.fusedFramesCount > 0 {
		c.pose, quality = c.track(ctx, c.pose)
	}

	policyFrame := &PolicyFrame{
		Index:   index,
		Quality: quality,
		Pose:    c.pose,
		View:    view,
		Retrack: c.retrack,
	}
	quality = c.policy.Apply(ctx, policyFrame)
	c.pose = policyFrame.Pose

	if c.shouldFuse(quality) {
		c.fuse(ctx)
	} else if quality != TrackingFailed {
		if err := c.deps.VoxelMapper.UpdateVisibleList(ctx, view, c.pose, false); err != nil {
			c.logger.Warnw("cannot update visible list", "frame", index, "error", err)
		}
	} else {
		c.pose = oldPose
	}

	c.prepareForTracking(ctx, c.pose, c.cfg.TrackingMode)
	if c.cfg.MappingMode == MapBoth {
		if err := c.deps.SurfelMapper.RenderIndex(ctx, c.pose); err != nil {
			c.logger.Warnw("cannot render surfel index image", "frame", index, "error", err)
		}
	}

	if !c.source.CurrentSubsourceHasMoreImages() && c.fusionEnabled.Load() {
		c.logger.Info("image sequence finished, disabling fusion")
		c.fusionEnabled.Store(false)
	}

	c.publish(quality)
	return true
}

func (c *Component) shouldFuse(quality TrackingQuality) bool {
	if !c.fusionEnabled.Load() {
		return false
	}
	switch {
	case quality == TrackingFailed:
		return false
	case quality == TrackingPoor && c.fusedFramesCount >= c.cfg.InitialFramesToFuse:
		return false
	case c.fallible != nil && c.fallible.LostTracking():
		return false
	default:
		return true
	}
}

func (c *Component) fuse(ctx context.Context) {
	if err := c.deps.VoxelMapper.ProcessFrame(ctx, c.view, c.pose); err != nil {
		c.logger.Warnw("voxel fusion failed", "error", err)
	}
	if c.cfg.MappingMode == MapBoth {
		if err := c.deps.SurfelMapper.ProcessFrame(ctx, c.view, c.pose); err != nil {
			c.logger.Warnw("surfel fusion failed", "error", err)
		}
	}
	c.fusedFramesCount++
}

// track runs the tracker from `pose`. A tracker error counts as failed tracking.
func (c *Component) track(ctx context.Context, pose spatialmath.Pose) (spatialmath.Pose, TrackingQuality) {
	tracked, quality, err := c.tracker.Track(ctx, pose, c.view)
	if err != nil {
		c.logger.Warnw("tracking error", "error", err)
		return pose, TrackingFailed
	}
	return tracked, quality
}

func (c *Component) retrack(ctx context.Context, pose spatialmath.Pose) (spatialmath.Pose, TrackingQuality) {
	if err := c.deps.VoxelMapper.UpdateVisibleList(ctx, c.view, pose, true); err != nil {
		c.logger.Warnw("cannot reset visible list", "error", err)
	}
	c.prepareForTracking(ctx, pose, TrackVoxels)
	return c.track(ctx, pose)
}

// prepareForTracking readies the tracker to track the next frame from `pose`.
func (c *Component) prepareForTracking(ctx context.Context, pose spatialmath.Pose, mode TrackingMode) {
	if err := c.tracker.Prepare(ctx, pose, c.view, mode); err != nil {
		c.logger.Warnw("cannot prepare for tracking", "mode", mode, "error", err)
	}
}

func (c *Component) publish(quality TrackingQuality) {
	c.state.update(c.view, TrackingState{Pose: c.pose, Quality: quality}, c.fusedFramesCount)
	if err := c.sharedCtx.AppendPose(c.sceneID, c.pose); err != nil {
		c.logger.Warnw("cannot publish pose", "error", err)
	}
}

// SetFusionEnabled turns fusion on or off. It may be called from any goroutine.
func (c *Component) SetFusionEnabled(enabled bool) {
	c.fusionEnabled.Store(enabled)
}

// FusionEnabled reports whether fusion is enabled.
func (c *Component) FusionEnabled() bool {
	return c.fusionEnabled.Load()
}

// FusedFramesCount returns the number of frames fused so far.
func (c *Component) FusedFramesCount() int {
	return c.fusedFramesCount
}

// KeyframeDelay returns the remaining keyframe cool-down, which is always zero unless the agent
// relocalises.
func (c *Component) KeyframeDelay() int {
	if reloc, ok := c.policy.(*RelocalisePolicy); ok {
		return reloc.KeyframeDelay()
	}
	return 0
}

// Pose returns the current camera pose.
func (c *Component) Pose() spatialmath.Pose {
	return c.pose
}

// State returns the agent's SLAM state, safe to read from other goroutines.
func (c *Component) State() *State {
	return c.state
}

// SceneID returns the agent's scene id.
func (c *Component) SceneID() string {
	return c.sceneID
}

// Close flushes the pose writer, if any.
func (c *Component) Close() error {
	if c.deps.PoseWriter == nil {
		return nil
	}
	return c.deps.PoseWriter.Close()
}
