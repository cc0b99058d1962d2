package collab_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/collabslam/collab"
	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/slam/fake"
	"go.viam.com/collabslam/spatialmath"
	"go.viam.com/collabslam/testutils/inject"
)

func newSharedContext(t *testing.T, trajectories map[string][]spatialmath.Pose) *collab.Context {
	t.Helper()
	sharedCtx := collab.NewContext()
	for id, trajectory := range trajectories {
		test.That(t, sharedCtx.AddAgent(id, nil, nil), test.ShouldBeNil)
		for _, pose := range trajectory {
			test.That(t, sharedCtx.AppendPose(id, pose), test.ShouldBeNil)
		}
	}
	return sharedCtx
}

func TestTwoAgentsConvergeToKnownTransform(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	trajectoryB := fake.RandomWalkTrajectory(40, 100, rng)
	transform := spatialmath.NewPoseFromPoint(r3.Vector{X: 1000, Y: -500, Z: 200})
	trajectoryA := fake.TransformTrajectory(trajectoryB, transform)
	sharedCtx := newSharedContext(t, map[string][]spatialmath.Pose{"a": trajectoryA, "b": trajectoryB})

	c, err := collab.NewComponent(sharedCtx, collab.Config{CandidatesPerCycle: 20}, nil,
		rand.New(rand.NewSource(5)), clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, c.Close(), test.ShouldBeNil)
	}()

	_, ok := c.Result("a", "b")
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, c.RunCollaborativePoseEstimation(context.Background()), test.ShouldBeNil)
	test.That(t, c.RunCollaborativePoseEstimation(context.Background()), test.ShouldBeError, collab.ErrAlreadyRunning)

	testutils.WaitForAssertionWithSleep(t, 5*time.Millisecond, 2000, func(tb testing.TB) {
		tb.Helper()
		c.TryScheduleRelocalisation()
		_, ok := c.Result("a", "b")
		test.That(tb, ok, test.ShouldBeTrue)
	})

	result, _ := c.Result("a", "b")
	test.That(t, spatialmath.PoseAlmostEqualEps(result.Pose, transform, 1e-6, 1e-6), test.ShouldBeTrue)
	reversed, _ := c.Result("b", "a")
	test.That(t, spatialmath.PoseAlmostEqualEps(reversed.Pose, spatialmath.PoseInverse(transform), 1e-6, 1e-6),
		test.ShouldBeTrue)
	test.That(t, c.Results(), test.ShouldHaveLength, 1)
	test.That(t, c.Cycles(), test.ShouldBeGreaterThan, 0)
}

func TestSchedulerTicker(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	trajectory := fake.RandomWalkTrajectory(20, 100, rng)
	sharedCtx := newSharedContext(t, map[string][]spatialmath.Pose{"a": trajectory, "b": trajectory})

	var scored sync.WaitGroup
	scored.Add(1)
	var once sync.Once
	scorer := &inject.Scorer{
		ScoreFunc: func(ctx context.Context, candidate collab.Candidate, trajectoryA, trajectoryB []spatialmath.Pose) (float64, error) {
			once.Do(scored.Done)
			return 0, nil
		},
	}
	mockClock := clock.NewMock()
	c, err := collab.NewComponent(sharedCtx, collab.Config{}, scorer, rand.New(rand.NewSource(1)), mockClock,
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close()
	test.That(t, c.RunCollaborativePoseEstimation(context.Background()), test.ShouldBeNil)

	// nobody calls the gate, the ticker does
	testutils.WaitForAssertionWithSleep(t, 5*time.Millisecond, 1000, func(tb testing.TB) {
		tb.Helper()
		mockClock.Add(collab.DefaultSchedulingInterval)
		test.That(tb, c.Cycles(), test.ShouldBeGreaterThan, 0)
	})
	scored.Wait()
}

func TestTryScheduleRelocalisationNeedsNewPoses(t *testing.T) {
	sharedCtx := newSharedContext(t, map[string][]spatialmath.Pose{"a": nil, "b": nil})
	c, err := collab.NewComponent(sharedCtx, collab.Config{MinNewPoses: 3}, nil, nil, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.TryScheduleRelocalisation(), test.ShouldBeFalse)
	test.That(t, sharedCtx.AppendPose("a", spatialmath.NewZeroPose()), test.ShouldBeNil)
	test.That(t, sharedCtx.AppendPose("b", spatialmath.NewZeroPose()), test.ShouldBeNil)
	test.That(t, c.TryScheduleRelocalisation(), test.ShouldBeFalse)
	for i := 0; i < 3; i++ {
		test.That(t, sharedCtx.AppendPose("b", spatialmath.NewZeroPose()), test.ShouldBeNil)
	}
	test.That(t, c.TryScheduleRelocalisation(), test.ShouldBeTrue)
	// the poses are consumed
	test.That(t, c.TryScheduleRelocalisation(), test.ShouldBeFalse)

	test.That(t, c.Close(), test.ShouldBeNil)
	test.That(t, c.TryScheduleRelocalisation(), test.ShouldBeFalse)
	test.That(t, c.RunCollaborativePoseEstimation(context.Background()), test.ShouldNotBeNil)
}

func TestCloseAbandonsScoring(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	trajectory := fake.RandomWalkTrajectory(20, 100, rng)
	sharedCtx := newSharedContext(t, map[string][]spatialmath.Pose{"a": trajectory, "b": trajectory})

	entered := make(chan struct{}, 100)
	var calls sync.Map
	scorer := &inject.Scorer{
		ScoreFunc: func(ctx context.Context, candidate collab.Candidate, trajectoryA, trajectoryB []spatialmath.Pose) (float64, error) {
			calls.Store(candidate.Generation, true)
			entered <- struct{}{}
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}
	c, err := collab.NewComponent(sharedCtx, collab.Config{}, scorer, rand.New(rand.NewSource(1)), clock.NewMock(),
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.RunCollaborativePoseEstimation(context.Background()), test.ShouldBeNil)
	test.That(t, c.TryScheduleRelocalisation(), test.ShouldBeTrue)
	<-entered

	// the gate refuses while a cycle is in flight
	test.That(t, c.TryScheduleRelocalisation(), test.ShouldBeFalse)

	closed := make(chan struct{})
	go func() {
		test.That(t, c.Close(), test.ShouldBeNil)
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	scoredCount := 0
	calls.Range(func(any, any) bool {
		scoredCount++
		return true
	})
	test.That(t, scoredCount, test.ShouldEqual, 1)
	test.That(t, c.Cycles(), test.ShouldEqual, 0)
}

func TestPanickingCycleIsAbandoned(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	trajectory := fake.RandomWalkTrajectory(20, 100, rng)
	sharedCtx := newSharedContext(t, map[string][]spatialmath.Pose{"a": trajectory, "b": trajectory})

	var mu sync.Mutex
	panicked := false
	scorer := &inject.Scorer{
		ScoreFunc: func(ctx context.Context, candidate collab.Candidate, trajectoryA, trajectoryB []spatialmath.Pose) (float64, error) {
			mu.Lock()
			defer mu.Unlock()
			if !panicked {
				panicked = true
				panic("scene consistency check crashed")
			}
			return 1, nil
		},
	}
	logger, observed := logging.NewObservedTestLogger(t)
	c, err := collab.NewComponent(sharedCtx, collab.Config{}, scorer, rand.New(rand.NewSource(1)), clock.NewMock(), logger)
	test.That(t, err, test.ShouldBeNil)
	defer c.Close()
	test.That(t, c.RunCollaborativePoseEstimation(context.Background()), test.ShouldBeNil)

	testutils.WaitForAssertionWithSleep(t, 5*time.Millisecond, 1000, func(tb testing.TB) {
		tb.Helper()
		c.TryScheduleRelocalisation()
		_, ok := c.Result("a", "b")
		test.That(tb, ok, test.ShouldBeTrue)
	})
	test.That(t, observed.FilterMessage("collaborative cycle abandoned").Len(), test.ShouldEqual, 1)
}

func TestScoringErrorsAreNotYet(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	trajectory := fake.RandomWalkTrajectory(20, 100, rng)
	sharedCtx := newSharedContext(t, map[string][]spatialmath.Pose{"a": trajectory, "b": trajectory})
	scorer := &inject.Scorer{
		ScoreFunc: func(ctx context.Context, candidate collab.Candidate, trajectoryA, trajectoryB []spatialmath.Pose) (float64, error) {
			return 0, errors.Wrap(collab.ErrInsufficientOverlap, "scene too small")
		},
	}
	c, err := collab.NewComponent(sharedCtx, collab.Config{}, scorer, rand.New(rand.NewSource(1)), clock.NewMock(),
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close()
	test.That(t, c.RunCollaborativePoseEstimation(context.Background()), test.ShouldBeNil)

	testutils.WaitForAssertionWithSleep(t, 5*time.Millisecond, 1000, func(tb testing.TB) {
		tb.Helper()
		c.TryScheduleRelocalisation()
		test.That(tb, c.Cycles(), test.ShouldBeGreaterThan, 2)
	})
	_, ok := c.BestCandidate()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, c.Results(), test.ShouldBeEmpty)
}

func TestInvalidConfig(t *testing.T) {
	_, err := collab.NewComponent(collab.NewContext(), collab.Config{Mode: "offline"}, nil, nil, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = collab.NewComponent(collab.NewContext(), collab.Config{AcceptanceThreshold: 2}, nil, nil, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = collab.NewComponent(nil, collab.Config{}, nil, nil, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCloseRacingStartLeavesNoWorker(t *testing.T) {
	sharedCtx := newSharedContext(t, map[string][]spatialmath.Pose{})
	for i := 0; i < 50; i++ {
		c, err := collab.NewComponent(sharedCtx, collab.Config{}, nil, nil, clock.NewMock(), logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)

		var (
			wg       sync.WaitGroup
			closeErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			// either outcome is fine, as long as a started worker is joined by Close
			_ = c.RunCollaborativePoseEstimation(context.Background())
		}()
		go func() {
			defer wg.Done()
			closeErr = c.Close()
		}()
		wg.Wait()
		test.That(t, closeErr, test.ShouldBeNil)

		test.That(t, c.Close(), test.ShouldBeNil)
		test.That(t, c.RunCollaborativePoseEstimation(context.Background()), test.ShouldNotBeNil)
	}
}
