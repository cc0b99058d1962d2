package collab_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/collabslam/collab"
	"go.viam.com/collabslam/slam/fake"
	"go.viam.com/collabslam/spatialmath"
)

func TestTrajectoryScorer(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	trajectoryB := fake.RandomWalkTrajectory(30, 100, rng)
	transform := spatialmath.NewPoseFromPoint(r3.Vector{X: 300, Y: 300})
	trajectoryA := fake.TransformTrajectory(trajectoryB, transform)
	scorer := collab.NewTrajectoryScorer(collab.ScorerConfig{})
	ctx := context.Background()

	confidence, err := scorer.Score(ctx, collab.Candidate{Pose: transform}, trajectoryA, trajectoryB)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, confidence, test.ShouldAlmostEqual, 1)

	// 20mm off: everything is an inlier but the residual costs confidence
	offset := spatialmath.Compose(spatialmath.NewPoseFromPoint(r3.Vector{Z: 20}), transform)
	confidence, err = scorer.Score(ctx, collab.Candidate{Pose: offset}, trajectoryA, trajectoryB)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, confidence, test.ShouldBeBetween, 0.7, 0.9)

	wrong := spatialmath.NewPoseFromPoint(r3.Vector{X: -5000})
	confidence, err = scorer.Score(ctx, collab.Candidate{Pose: wrong}, trajectoryA, trajectoryB)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, confidence, test.ShouldEqual, 0)

	_, err = scorer.Score(ctx, collab.Candidate{Pose: transform}, trajectoryA[:5], trajectoryB)
	test.That(t, errors.Is(err, collab.ErrInsufficientOverlap), test.ShouldBeTrue)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = scorer.Score(cancelled, collab.Candidate{Pose: transform}, trajectoryA, trajectoryB)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestConfigDefaults(t *testing.T) {
	var cfg collab.Config
	cfg.ApplyDefaults()
	test.That(t, cfg.Validate("collaborative"), test.ShouldBeNil)
	test.That(t, cfg.Mode, test.ShouldEqual, collab.ModeLive)
	test.That(t, cfg.AcceptanceThreshold, test.ShouldEqual, collab.DefaultAcceptanceThreshold)
	test.That(t, cfg.TriedPosesCapacity, test.ShouldEqual, collab.DefaultTriedPosesCapacity)
	test.That(t, cfg.Scorer.MinOverlap, test.ShouldEqual, collab.DefaultMinOverlap)

	cfg.LiveWindow = -1
	err := cfg.Validate("collaborative")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "live_window")

	cfg.LiveWindow = 1
	cfg.Scorer.InlierAngle = -1
	err = cfg.Validate("collaborative")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "collaborative.scorer")

	mode, err := collab.ParseMode("LIVE")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldEqual, collab.ModeLive)
	mode, err = collab.ParseMode("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldEqual, collab.ModeLive)
}
