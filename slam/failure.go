package slam

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/spatialmath"
)

// DefaultRecoveryKeyframeDelay is the number of well-tracked frames that must pass after a
// relocalisation before the relocaliser may store a new keyframe.
const DefaultRecoveryKeyframeDelay = 10

// PolicyFrame is the per-frame input of a FailurePolicy. Policies may replace Pose.
type PolicyFrame struct {
	Index   int
	Quality TrackingQuality
	Pose    spatialmath.Pose
	View    *View
	// Retrack restarts tracking of the current view from `pose`, refreshing the visible list
	// first, and returns the new estimate.
	Retrack func(ctx context.Context, pose spatialmath.Pose) (spatialmath.Pose, TrackingQuality)
}

// A FailurePolicy turns the raw tracking quality of a frame into the quality used for the fusion
// decision.
type FailurePolicy interface {
	Mode() FailureMode
	Apply(ctx context.Context, frame *PolicyFrame) TrackingQuality
}

// RelocaliseDependencies are the collaborators of the relocalising failure policy.
type RelocaliseDependencies struct {
	SceneID      string
	Relocaliser  Relocaliser
	PoseDatabase PoseDatabase
	// PoseWriter is optional.
	PoseWriter    PoseWriter
	RecoveryDelay int
}

// NewFailurePolicy returns the policy implementing `mode`. Only the relocalising policy uses
// `deps`.
func NewFailurePolicy(mode FailureMode, deps RelocaliseDependencies, logger logging.Logger) (FailurePolicy, error) {
	switch mode {
	case FailureModeRelocalise:
		if deps.Relocaliser == nil {
			return nil, errors.New("relocalising failure mode requires a relocaliser")
		}
		if deps.PoseDatabase == nil {
			return nil, errors.New("relocalising failure mode requires a pose database")
		}
		if deps.RecoveryDelay < 0 {
			return nil, errors.Errorf("recovery keyframe delay must be non-negative, got %d", deps.RecoveryDelay)
		}
		return &RelocalisePolicy{deps: deps, logger: logger}, nil
	case FailureModeStopIntegration:
		return stopIntegrationPolicy{}, nil
	case FailureModeIgnore:
		return ignorePolicy{}, nil
	default:
		return nil, errors.Errorf("unknown failure mode %q", mode)
	}
}

type stopIntegrationPolicy struct{}

func (stopIntegrationPolicy) Mode() FailureMode { return FailureModeStopIntegration }

// Apply keeps integrating through failures, treating them as poor tracking.
func (stopIntegrationPolicy) Apply(ctx context.Context, frame *PolicyFrame) TrackingQuality {
	if frame.Quality == TrackingFailed {
		return TrackingPoor
	}
	return frame.Quality
}

type ignorePolicy struct{}

func (ignorePolicy) Mode() FailureMode { return FailureModeIgnore }

func (ignorePolicy) Apply(ctx context.Context, frame *PolicyFrame) TrackingQuality {
	return TrackingGood
}

// RelocalisePolicy offers every frame to a relocaliser. Well-tracked frames may become keyframes
// and failed frames are recovered from the nearest keyframe.
type RelocalisePolicy struct {
	deps          RelocaliseDependencies
	logger        logging.Logger
	keyframeDelay int
}

// Mode implements FailurePolicy.
func (p *RelocalisePolicy) Mode() FailureMode { return FailureModeRelocalise }

// KeyframeDelay returns the number of good frames left before keyframes are considered again.
func (p *RelocalisePolicy) KeyframeDelay() int {
	return p.keyframeDelay
}

// Apply implements FailurePolicy.
func (p *RelocalisePolicy) Apply(ctx context.Context, frame *PolicyFrame) TrackingQuality {
	frame.View.UpdateHostFromDevice()

	considerKeyframe := false
	if frame.Quality == TrackingGood {
		if p.keyframeDelay == 0 {
			considerKeyframe = true
		} else {
			p.keyframeDelay--
		}
	}

	result, err := p.deps.Relocaliser.ProcessFrame(ctx, frame.View.HostDepth, considerKeyframe)
	if err != nil {
		p.logger.Warnw("relocaliser failed to process frame", "frame", frame.Index, "error", err)
		return frame.Quality
	}

	switch {
	case result.KeyframeID >= 0:
		if err := p.deps.PoseDatabase.StorePose(result.KeyframeID, frame.Pose); err != nil {
			p.logger.Warnw("cannot store keyframe pose", "keyframe", result.KeyframeID, "error", err)
		} else {
			p.logger.Debugw("stored keyframe", "keyframe", result.KeyframeID, "frame", frame.Index)
		}
	case frame.Quality == TrackingFailed && result.NearestNeighbour != NoKeyframe:
		return p.recover(ctx, frame, result.NearestNeighbour)
	}
	return frame.Quality
}

func (p *RelocalisePolicy) recover(ctx context.Context, frame *PolicyFrame, keyframe int) TrackingQuality {
	keyframePose, err := p.deps.PoseDatabase.RetrievePose(keyframe)
	if err != nil {
		p.logger.Warnw("cannot retrieve keyframe pose", "keyframe", keyframe, "error", err)
		return frame.Quality
	}

	refined, quality := frame.Retrack(ctx, keyframePose)
	frame.Pose = refined
	p.keyframeDelay = p.deps.RecoveryDelay
	p.logger.Infow("relocalised", "frame", frame.Index, "keyframe", keyframe, "quality", quality.String())

	if p.deps.PoseWriter != nil {
		p.deps.PoseWriter.WritePoses(p.deps.SceneID, frame.Index, keyframePose, refined)
	}
	return quality
}
