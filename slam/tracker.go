package slam

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/spatialmath"
)

// ErrTrackerUnavailable is returned when a tracker type has no registered backend.
var ErrTrackerUnavailable = errors.New("tracker backend not available")

// A TrackerConstructor creates a tracker for an agent.
type TrackerConstructor func(ctx context.Context, cfg Config, logger logging.Logger) (Tracker, error)

var (
	trackerRegistryMu sync.RWMutex
	trackerRegistry   = map[TrackerType]TrackerConstructor{}
)

// RegisterTracker registers a tracker backend for a tracker type.
func RegisterTracker(trackerType TrackerType, constructor TrackerConstructor) {
	trackerRegistryMu.Lock()
	defer trackerRegistryMu.Unlock()
	if _, old := trackerRegistry[trackerType]; old {
		panic(errors.Errorf("trying to register two trackers with the same type: %s", trackerType))
	}
	if constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for tracker: %s", trackerType))
	}
	trackerRegistry[trackerType] = constructor
}

// DeregisterTracker removes a previously registered tracker backend.
func DeregisterTracker(trackerType TrackerType) {
	trackerRegistryMu.Lock()
	defer trackerRegistryMu.Unlock()
	delete(trackerRegistry, trackerType)
}

// TrackerLookup looks up a tracker constructor by type. nil is returned if there is none.
func TrackerLookup(trackerType TrackerType) TrackerConstructor {
	trackerRegistryMu.RLock()
	defer trackerRegistryMu.RUnlock()
	return trackerRegistry[trackerType]
}

// RegisteredTrackers returns a copy of the registered tracker constructors.
func RegisteredTrackers() map[TrackerType]TrackerConstructor {
	trackerRegistryMu.RLock()
	defer trackerRegistryMu.RUnlock()
	return lo.Assign(trackerRegistry)
}

// needsICPRefinement reports whether a tracker type only gives a coarse pose that must be refined
// against the scene.
func needsICPRefinement(trackerType TrackerType) bool {
	return trackerType == TrackerRift || trackerType == TrackerVicon
}

// NewTracker builds the tracker for cfg.TrackerType. Rift and Vicon trackers are followed by the
// ICP tracker in a CompositeTracker.
func NewTracker(ctx context.Context, cfg Config, logger logging.Logger) (Tracker, error) {
	primary, err := newRegisteredTracker(ctx, cfg.TrackerType, cfg, logger)
	if err != nil {
		return nil, err
	}
	if !needsICPRefinement(cfg.TrackerType) {
		return primary, nil
	}
	icp, err := newRegisteredTracker(ctx, TrackerInfiniTAM, cfg, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot refine %s tracker", cfg.TrackerType)
	}
	return NewCompositeTracker(primary, icp), nil
}

func newRegisteredTracker(ctx context.Context, trackerType TrackerType, cfg Config, logger logging.Logger) (Tracker, error) {
	constructor := TrackerLookup(trackerType)
	if constructor == nil {
		return nil, errors.Wrapf(ErrTrackerUnavailable, "%s support not currently available", trackerType)
	}
	tracker, err := constructor(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot construct %s tracker", trackerType)
	}
	return tracker, nil
}

// CompositeTracker runs its trackers in order, each starting from the pose the previous one
// produced. The reported quality is the worst of all of them.
type CompositeTracker struct {
	trackers []Tracker
}

// NewCompositeTracker returns a tracker chaining `trackers`.
func NewCompositeTracker(trackers ...Tracker) *CompositeTracker {
	return &CompositeTracker{trackers: trackers}
}

// Prepare implements Tracker.
func (ct *CompositeTracker) Prepare(ctx context.Context, pose spatialmath.Pose, view *View, mode TrackingMode) error {
	for i, tracker := range ct.trackers {
		if err := tracker.Prepare(ctx, pose, view, mode); err != nil {
			return errors.Wrapf(err, "tracker %d", i)
		}
	}
	return nil
}

// Track implements Tracker.
func (ct *CompositeTracker) Track(
	ctx context.Context,
	pose spatialmath.Pose,
	view *View,
) (spatialmath.Pose, TrackingQuality, error) {
	quality := TrackingGood
	for i, tracker := range ct.trackers {
		next, q, err := tracker.Track(ctx, pose, view)
		if err != nil {
			return pose, TrackingFailed, errors.Wrapf(err, "tracker %d", i)
		}
		pose = next
		quality = WorseQuality(quality, q)
	}
	return pose, quality, nil
}

// LostTracking reports whether the first fallible tracker of the chain lost tracking.
func (ct *CompositeTracker) LostTracking() bool {
	for _, tracker := range ct.trackers {
		if fallible, ok := tracker.(FallibleTracker); ok {
			return fallible.LostTracking()
		}
	}
	return false
}
