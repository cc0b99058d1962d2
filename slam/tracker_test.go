package slam_test

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/slam/fake"
	"go.viam.com/collabslam/spatialmath"
	"go.viam.com/collabslam/testutils/inject"
)

func TestUnavailableTrackerIsConstructionError(t *testing.T) {
	for _, trackerType := range []slam.TrackerType{slam.TrackerRift, slam.TrackerVicon, slam.TrackerRobustVicon} {
		_, err := slam.NewComponent(context.Background(), &poseRecorder{}, "agent", fake.NewImageSource(nil),
			slam.Config{TrackerType: trackerType},
			slam.Dependencies{VoxelMapper: &fake.Mapper{}, Relocaliser: noRelocalisation()},
			logging.NewTestLogger(t))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, slam.ErrTrackerUnavailable), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, string(trackerType))
	}
}

func TestTrackerRegistry(t *testing.T) {
	deregister := fake.RegisterTrackers(nil)
	defer deregister()

	test.That(t, slam.RegisteredTrackers(), test.ShouldHaveLength, 3)
	test.That(t, func() {
		slam.RegisterTracker(slam.TrackerInfiniTAM, func(context.Context, slam.Config, logging.Logger) (slam.Tracker, error) {
			return nil, nil
		})
	}, test.ShouldPanic)

	logger := logging.NewTestLogger(t)
	icp, err := slam.NewTracker(context.Background(), slam.Config{TrackerType: slam.TrackerInfiniTAM}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, icp, test.ShouldHaveSameTypeAs, &fake.ICPTracker{})

	robust, err := slam.NewTracker(context.Background(), slam.Config{TrackerType: slam.TrackerRobustVicon}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, robust, test.ShouldHaveSameTypeAs, &fake.MocapTracker{})

	vicon, err := slam.NewTracker(context.Background(), slam.Config{TrackerType: slam.TrackerVicon}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, vicon, test.ShouldHaveSameTypeAs, &slam.CompositeTracker{})

	// rift has no backend even though the ICP refinement does
	_, err = slam.NewTracker(context.Background(), slam.Config{TrackerType: slam.TrackerRift}, logger)
	test.That(t, errors.Is(err, slam.ErrTrackerUnavailable), test.ShouldBeTrue)
}

func TestCompositeTracker(t *testing.T) {
	truth := spatialmath.NewPoseFromPoint(r3.Vector{X: 100})
	view := &slam.View{Frame: &slam.Frame{Index: 3, GroundTruth: truth}}

	mocap := &fake.MocapTracker{}
	icp := fake.NewICPTracker()
	composite := slam.NewCompositeTracker(mocap, icp)

	test.That(t, composite.Prepare(context.Background(), truth, view, slam.TrackVoxels), test.ShouldBeNil)
	test.That(t, icp.Prepared(), test.ShouldEqual, 1)

	// the mocap pose is good, the ICP refinement from it is too
	pose, quality, err := composite.Track(context.Background(), spatialmath.NewZeroPose(), view)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, quality, test.ShouldEqual, slam.TrackingGood)
	test.That(t, spatialmath.PoseAlmostEqual(pose, truth), test.ShouldBeTrue)
	test.That(t, composite.LostTracking(), test.ShouldBeFalse)

	// without motion capture the chain fails and reports lost tracking
	lost := &slam.View{Frame: &slam.Frame{Index: 4}}
	_, quality, err = composite.Track(context.Background(), truth, lost)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, quality, test.ShouldEqual, slam.TrackingFailed)
	test.That(t, composite.LostTracking(), test.ShouldBeTrue)

	poor := &inject.Tracker{
		TrackFunc: func(ctx context.Context, pose spatialmath.Pose, view *slam.View) (spatialmath.Pose, slam.TrackingQuality, error) {
			return pose, slam.TrackingPoor, nil
		},
	}
	_, quality, err = slam.NewCompositeTracker(poor, icp).Track(context.Background(), truth, view)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, quality, test.ShouldEqual, slam.TrackingPoor)

	broken := &inject.Tracker{
		TrackFunc: func(ctx context.Context, pose spatialmath.Pose, view *slam.View) (spatialmath.Pose, slam.TrackingQuality, error) {
			return nil, slam.TrackingGood, errors.New("no signal")
		},
	}
	pose, quality, err = slam.NewCompositeTracker(icp, broken).Track(context.Background(), truth, view)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "tracker 1")
	test.That(t, quality, test.ShouldEqual, slam.TrackingFailed)
	test.That(t, pose, test.ShouldNotBeNil)
	test.That(t, slam.NewCompositeTracker(icp).LostTracking(), test.ShouldBeFalse)
}

func TestICPTrackerConvergence(t *testing.T) {
	truth := spatialmath.NewPoseFromPoint(r3.Vector{X: 1000})
	view := &slam.View{Frame: &slam.Frame{GroundTruth: truth}}
	icp := fake.NewICPTracker()

	near := spatialmath.NewPoseFromPoint(r3.Vector{X: 1000 - fake.DefaultConvergenceRadius/4})
	pose, quality, err := icp.Track(context.Background(), near, view)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, quality, test.ShouldEqual, slam.TrackingGood)
	test.That(t, pose, test.ShouldEqual, truth)

	mid := spatialmath.NewPoseFromPoint(r3.Vector{X: 1000 - fake.DefaultConvergenceRadius*3/4})
	_, quality, _ = icp.Track(context.Background(), mid, view)
	test.That(t, quality, test.ShouldEqual, slam.TrackingPoor)

	_, quality, _ = icp.Track(context.Background(), spatialmath.NewZeroPose(), view)
	test.That(t, quality, test.ShouldEqual, slam.TrackingFailed)
}

func TestQualityOrdering(t *testing.T) {
	test.That(t, slam.WorseQuality(slam.TrackingGood, slam.TrackingPoor), test.ShouldEqual, slam.TrackingPoor)
	test.That(t, slam.WorseQuality(slam.TrackingFailed, slam.TrackingPoor), test.ShouldEqual, slam.TrackingFailed)
	test.That(t, slam.TrackingPoor.String(), test.ShouldEqual, "poor")
	test.That(t, slam.TrackingQuality(7).String(), test.ShouldEqual, "unknown")
}
