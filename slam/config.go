package slam

import (
	"github.com/pkg/errors"

	"go.viam.com/collabslam/utils"
)

// DefaultInitialFramesToFuse is the number of fused frames during which poorly tracked frames
// are still fused.
const DefaultInitialFramesToFuse = 50

// Config configures one agent.
type Config struct {
	TrackerType           TrackerType  `json:"tracker_type"`
	FailureMode           FailureMode  `json:"failure_mode"`
	MappingMode           MappingMode  `json:"mapping_mode"`
	TrackingMode          TrackingMode `json:"tracking_mode"`
	InitialFramesToFuse   int          `json:"initial_frames_to_fuse"`
	RecoveryKeyframeDelay int          `json:"recovery_keyframe_delay"`
	// FusionDisabled starts the agent with fusion turned off.
	FusionDisabled bool `json:"fusion_disabled"`
}

// ApplyDefaults fills in unset fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.TrackerType == "" {
		cfg.TrackerType = TrackerInfiniTAM
	}
	if cfg.FailureMode == "" {
		cfg.FailureMode = FailureModeRelocalise
	}
	if cfg.MappingMode == "" {
		cfg.MappingMode = MapVoxelsOnly
	}
	if cfg.TrackingMode == "" {
		cfg.TrackingMode = TrackVoxels
	}
	if cfg.InitialFramesToFuse == 0 {
		cfg.InitialFramesToFuse = DefaultInitialFramesToFuse
	}
	if cfg.RecoveryKeyframeDelay == 0 {
		cfg.RecoveryKeyframeDelay = DefaultRecoveryKeyframeDelay
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	switch cfg.TrackerType {
	case TrackerInfiniTAM, TrackerRift, TrackerRobustVicon, TrackerVicon:
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "tracker_type")
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown tracker type %q", cfg.TrackerType))
	}
	if _, err := ParseFailureMode(string(cfg.FailureMode)); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if _, err := ParseMappingMode(string(cfg.MappingMode)); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if _, err := ParseTrackingMode(string(cfg.TrackingMode)); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if cfg.TrackingMode == TrackSurfels && cfg.MappingMode == MapVoxelsOnly {
		return utils.NewConfigValidationError(path, errors.New("surfel tracking requires mapping_mode \"both\""))
	}
	if cfg.InitialFramesToFuse < 0 {
		return utils.NewConfigValidationError(path, errors.New("initial_frames_to_fuse must be non-negative"))
	}
	if cfg.RecoveryKeyframeDelay < 0 {
		return utils.NewConfigValidationError(path, errors.New("recovery_keyframe_delay must be non-negative"))
	}
	return nil
}
