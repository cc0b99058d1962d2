package slam_test

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/collabslam/slam"
)

func TestDefaultViewBuilder(t *testing.T) {
	depth := slam.NewDepthImage(3, 3)
	for i := range depth.Data {
		depth.Data[i] = 1000
	}
	depth.Set(1, 1, 9000)
	frame := &slam.Frame{Depth: depth}

	var builder slam.DefaultViewBuilder
	view, err := builder.UpdateView(context.Background(), nil, frame, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, view.Depth.At(1, 1), test.ShouldEqual, 9000)
	test.That(t, view.HostDepth, test.ShouldBeNil)

	// the outlier is filtered away and the frame itself is untouched
	filtered, err := builder.UpdateView(context.Background(), view, frame, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filtered, test.ShouldEqual, view)
	test.That(t, filtered.Filtered, test.ShouldBeTrue)
	test.That(t, filtered.Depth.At(1, 1), test.ShouldEqual, 1000)
	test.That(t, depth.At(1, 1), test.ShouldEqual, 9000)

	filtered.UpdateHostFromDevice()
	test.That(t, filtered.HostDepth, test.ShouldResemble, filtered.Depth)
	filtered.HostDepth.Set(0, 0, 1)
	test.That(t, filtered.Depth.At(0, 0), test.ShouldEqual, 1000)

	_, err = builder.UpdateView(context.Background(), nil, &slam.Frame{}, false)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = builder.UpdateView(context.Background(), nil, &slam.Frame{Depth: &slam.DepthImage{Width: 2, Height: 2}}, false)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigValidation(t *testing.T) {
	var cfg slam.Config
	test.That(t, cfg.Validate("agents.0"), test.ShouldNotBeNil)
	cfg.ApplyDefaults()
	test.That(t, cfg.Validate("agents.0"), test.ShouldBeNil)
	test.That(t, cfg.InitialFramesToFuse, test.ShouldEqual, slam.DefaultInitialFramesToFuse)
	test.That(t, cfg.RecoveryKeyframeDelay, test.ShouldEqual, slam.DefaultRecoveryKeyframeDelay)
	test.That(t, cfg.FailureMode, test.ShouldEqual, slam.FailureModeRelocalise)

	bad := cfg
	bad.TrackerType = "lidar"
	err := bad.Validate("agents.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "agents.0")

	bad = cfg
	bad.TrackingMode = slam.TrackSurfels
	test.That(t, bad.Validate("agents.0"), test.ShouldNotBeNil)
	bad.MappingMode = slam.MapBoth
	test.That(t, bad.Validate("agents.0"), test.ShouldBeNil)

	bad = cfg
	bad.FailureMode = "panic"
	test.That(t, bad.Validate("agents.0"), test.ShouldNotBeNil)

	mode, err := slam.ParseFailureMode("STOP_INTEGRATION")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldEqual, slam.FailureModeStopIntegration)
	mapping, err := slam.ParseMappingMode("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mapping, test.ShouldEqual, slam.MapVoxelsOnly)
	_, err = slam.ParseTrackingMode("points")
	test.That(t, err, test.ShouldNotBeNil)
}
