// Package slam implements the per-agent dense SLAM control loop: tracking, failure handling with
// keyframe-based relocalisation, and the decision of whether each frame is fused into the map.
//
// The dense mapper, the trackers, the relocaliser and the image source are collaborators supplied
// by the caller through the interfaces in this package.
package slam

import (
	"strings"

	"github.com/pkg/errors"
)

// TrackingQuality is the verdict a tracker gives for a single frame. Qualities are ordered, so the
// worse of two verdicts is the smaller one.
type TrackingQuality int

const (
	// TrackingFailed means the estimated pose cannot be trusted.
	TrackingFailed TrackingQuality = iota
	// TrackingPoor means the pose is usable but should not normally be fused.
	TrackingPoor
	// TrackingGood means the pose can be fused and the frame may become a keyframe.
	TrackingGood
)

func (q TrackingQuality) String() string {
	switch q {
	case TrackingFailed:
		return "failed"
	case TrackingPoor:
		return "poor"
	case TrackingGood:
		return "good"
	default:
		return "unknown"
	}
}

// WorseQuality returns the worse of two tracking qualities.
func WorseQuality(a, b TrackingQuality) TrackingQuality {
	if a < b {
		return a
	}
	return b
}

// FailureMode selects how failed or poor tracking is turned into fusion decisions.
type FailureMode string

const (
	// FailureModeRelocalise feeds every frame to the relocaliser and recovers failed frames from
	// the nearest keyframe.
	FailureModeRelocalise = FailureMode("relocalise")
	// FailureModeStopIntegration treats failed tracking as poor tracking.
	FailureModeStopIntegration = FailureMode("stop_integration")
	// FailureModeIgnore treats every frame as well tracked.
	FailureModeIgnore = FailureMode("ignore")
)

// MappingMode selects which scene representations are built.
type MappingMode string

const (
	// MapBoth produces both voxel and surfel maps.
	MapBoth = MappingMode("both")
	// MapVoxelsOnly produces only a voxel map.
	MapVoxelsOnly = MappingMode("voxels_only")
)

// TrackingMode selects which scene representation is rendered for tracking the next frame.
type TrackingMode string

const (
	// TrackSurfels tracks against the surfel map.
	TrackSurfels = TrackingMode("surfels")
	// TrackVoxels tracks against the voxel map.
	TrackVoxels = TrackingMode("voxels")
)

// TrackerType names a tracker backend.
type TrackerType string

const (
	// TrackerInfiniTAM is the ICP tracker that works directly on depth.
	TrackerInfiniTAM = TrackerType("infinitam")
	// TrackerRift uses a head-mounted display's pose, refined by ICP.
	TrackerRift = TrackerType("rift")
	// TrackerRobustVicon uses a motion capture system and detects when tracking is lost.
	TrackerRobustVicon = TrackerType("robustvicon")
	// TrackerVicon uses a motion capture system, refined by ICP.
	TrackerVicon = TrackerType("vicon")
)

// ParseFailureMode parses a failure mode name. The empty string selects relocalisation.
func ParseFailureMode(s string) (FailureMode, error) {
	switch mode := FailureMode(strings.ToLower(s)); mode {
	case "":
		return FailureModeRelocalise, nil
	case FailureModeRelocalise, FailureModeStopIntegration, FailureModeIgnore:
		return mode, nil
	default:
		return "", errors.Errorf("unknown failure mode %q", s)
	}
}

// ParseMappingMode parses a mapping mode name. The empty string selects voxels only.
func ParseMappingMode(s string) (MappingMode, error) {
	switch mode := MappingMode(strings.ToLower(s)); mode {
	case "":
		return MapVoxelsOnly, nil
	case MapBoth, MapVoxelsOnly:
		return mode, nil
	default:
		return "", errors.Errorf("unknown mapping mode %q", s)
	}
}

// ParseTrackingMode parses a tracking mode name. The empty string selects voxels.
func ParseTrackingMode(s string) (TrackingMode, error) {
	switch mode := TrackingMode(strings.ToLower(s)); mode {
	case "":
		return TrackVoxels, nil
	case TrackSurfels, TrackVoxels:
		return mode, nil
	default:
		return "", errors.Errorf("unknown tracking mode %q", s)
	}
}
