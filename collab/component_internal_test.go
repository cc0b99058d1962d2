package collab

import (
	"context"
	"math/rand"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/slam/fake"
	"go.viam.com/collabslam/spatialmath"
)

type constantScorer float64

func (s constantScorer) Score(context.Context, Candidate, []spatialmath.Pose, []spatialmath.Pose) (float64, error) {
	return float64(s), nil
}

func newInternalComponent(t *testing.T, cfg Config, scorer Scorer, trajectories map[string][]spatialmath.Pose) *Component {
	t.Helper()
	sharedCtx := NewContext()
	for id, trajectory := range trajectories {
		test.That(t, sharedCtx.AddAgent(id, nil, nil), test.ShouldBeNil)
		for _, pose := range trajectory {
			test.That(t, sharedCtx.AppendPose(id, pose), test.ShouldBeNil)
		}
	}
	c, err := NewComponent(sharedCtx, cfg, scorer, rand.New(rand.NewSource(7)), clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	c.mu.Lock()
	c.updateTrajectories()
	c.mu.Unlock()
	return c
}

func TestGenerateRandomCandidatesSkipsTriedPoses(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := newInternalComponent(t, Config{MaxAttemptsPerCandidate: 20}, constantScorer(0), map[string][]spatialmath.Pose{
		"a": fake.RandomWalkTrajectory(5, 1000, rng),
		"b": fake.RandomWalkTrajectory(5, 1000, rng),
	})

	var all []Candidate
	for i := 0; i < 4; i++ {
		batch := c.generateRandomCandidates(10)
		for _, candidate := range batch {
			test.That(t, candidate.AgentA, test.ShouldEqual, "a")
			test.That(t, candidate.AgentB, test.ShouldEqual, "b")
			for _, previous := range all {
				near := spatialmath.PoseAlmostEqualEps(candidate.Pose, previous.Pose, c.cfg.DedupTranslation, c.cfg.DedupRotation)
				test.That(t, near, test.ShouldBeFalse)
			}
			all = append(all, candidate)
		}
	}
	// 5x5 pose combinations at most
	test.That(t, len(all), test.ShouldBeLessThanOrEqualTo, 25)
	test.That(t, len(all), test.ShouldBeGreaterThan, 10)
	test.That(t, c.tried[newAgentPair("a", "b")].Len(), test.ShouldEqual, len(all))
	for i := 1; i < len(all); i++ {
		test.That(t, all[i].Generation, test.ShouldBeGreaterThan, all[i-1].Generation)
	}
}

func TestGenerateRandomCandidatesNeedsTwoAgents(t *testing.T) {
	c := newInternalComponent(t, Config{}, constantScorer(0), map[string][]spatialmath.Pose{
		"a": {spatialmath.NewZeroPose()},
		"b": nil,
	})
	test.That(t, c.generateRandomCandidates(5), test.ShouldBeEmpty)
}

func TestLiveModeSamplesRecentPoses(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	trajectoryA := fake.RandomWalkTrajectory(50, 100, rng)
	trajectoryB := fake.RandomWalkTrajectory(50, 100, rng)
	const window = 5
	c := newInternalComponent(t, Config{Mode: ModeLive, LiveWindow: window}, constantScorer(0), map[string][]spatialmath.Pose{
		"a": trajectoryA,
		"b": trajectoryB,
	})

	candidates := c.generateRandomCandidates(10)
	test.That(t, candidates, test.ShouldNotBeEmpty)
	for _, candidate := range candidates {
		found := false
		for i := 50 - window; i < 50 && !found; i++ {
			for j := 50 - window; j < 50 && !found; j++ {
				expected := spatialmath.Compose(trajectoryA[i], spatialmath.PoseInverse(trajectoryB[j]))
				found = spatialmath.PoseAlmostEqualEps(candidate.Pose, expected, 1e-6, 1e-6)
			}
		}
		test.That(t, found, test.ShouldBeTrue)
	}
}

func TestSelectCandidate(t *testing.T) {
	c := newInternalComponent(t, Config{}, constantScorer(0), map[string][]spatialmath.Pose{
		"a": {spatialmath.NewZeroPose()},
		"b": {spatialmath.NewZeroPose()},
	})
	pose := spatialmath.NewPoseFromPoint(r3.Vector{X: 1})
	candidate := func(confidence float64, generation uint64) Candidate {
		return Candidate{AgentA: "a", AgentB: "b", Pose: pose, Confidence: confidence, Generation: generation}
	}

	c.selectCandidate(nil)
	_, ok := c.BestCandidate()
	test.That(t, ok, test.ShouldBeFalse)

	// ties go to the later candidate
	c.selectCandidate([]Candidate{candidate(0.5, 1), candidate(0.5, 2), candidate(0.2, 3)})
	best, ok := c.BestCandidate()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, best.Generation, test.ShouldEqual, 2)

	// near ties too
	c.selectCandidate([]Candidate{candidate(0.5-DefaultNearTieEpsilon/2, 4)})
	best, _ = c.BestCandidate()
	test.That(t, best.Generation, test.ShouldEqual, 4)

	c.selectCandidate([]Candidate{candidate(0.3, 5)})
	best, _ = c.BestCandidate()
	test.That(t, best.Generation, test.ShouldEqual, 4)

	c.triedPoses(newAgentPair("a", "b")).Add(pose)
	c.selectCandidate([]Candidate{candidate(DefaultAcceptanceThreshold, 6)})
	_, ok = c.BestCandidate()
	test.That(t, ok, test.ShouldBeFalse)
	result, ok := c.Result("a", "b")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, result.Generation, test.ShouldEqual, 6)
	test.That(t, c.tried[newAgentPair("a", "b")].Len(), test.ShouldEqual, 0)

	reversed, ok := c.Result("b", "a")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, reversed.AgentA, test.ShouldEqual, "b")
	test.That(t, reversed.Pose.Point().X, test.ShouldAlmostEqual, -1)

	// a later, less confident commit does not replace the result
	c.selectCandidate([]Candidate{candidate(0.95, 7)})
	c.selectCandidate([]Candidate{candidate(0.91, 8)})
	result, _ = c.Result("a", "b")
	test.That(t, result.Generation, test.ShouldEqual, 7)
	test.That(t, c.Results(), test.ShouldHaveLength, 1)
}

func TestAcceptanceIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	trajectoryB := fake.RandomWalkTrajectory(30, 100, rng)
	transform := spatialmath.NewPoseFromPoint(r3.Vector{X: 500, Y: 250, Z: -100})
	trajectoryA := fake.TransformTrajectory(trajectoryB, transform)

	c := newInternalComponent(t, Config{RefinementFrames: 10}, nil, map[string][]spatialmath.Pose{
		"a": trajectoryA,
		"b": trajectoryB,
	})

	ctx := context.Background()
	for i := 0; i < 500; i++ {
		if _, ok := c.Result("a", "b"); ok {
			break
		}
		c.runCycle(ctx)
	}
	committed, ok := c.Result("a", "b")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, spatialmath.PoseAlmostEqualEps(committed.Pose, transform, 1e-6, 1e-6), test.ShouldBeTrue)
	test.That(t, committed.Confidence, test.ShouldBeGreaterThanOrEqualTo, DefaultAcceptanceThreshold)

	cycles := c.Cycles()
	for i := 0; i < 20; i++ {
		c.runCycle(ctx)
	}
	test.That(t, c.Cycles(), test.ShouldEqual, cycles+20)
	again, ok := c.Result("a", "b")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, again, test.ShouldResemble, committed)
	test.That(t, c.exploring, test.ShouldBeFalse)

	// enough new poses make the pair eligible for refinement again
	for i := 0; i < 10; i++ {
		test.That(t, c.sharedCtx.AppendPose("b", trajectoryB[i]), test.ShouldBeNil)
	}
	c.mu.Lock()
	test.That(t, c.updateTrajectories(), test.ShouldBeTrue)
	test.That(t, c.eligiblePairs(), test.ShouldHaveLength, 1)
	c.mu.Unlock()
}

func TestTriedPosesIsBounded(t *testing.T) {
	tried := NewTriedPoses(3)
	for i := 0; i < 5; i++ {
		tried.Add(spatialmath.NewPoseFromPoint(r3.Vector{X: float64(i) * 100}))
	}
	test.That(t, tried.Len(), test.ShouldEqual, 3)
	test.That(t, tried.Contains(spatialmath.NewPoseFromPoint(r3.Vector{X: 5}), 10, 0.1), test.ShouldBeFalse)
	test.That(t, tried.Contains(spatialmath.NewPoseFromPoint(r3.Vector{X: 395}), 10, 0.1), test.ShouldBeTrue)
	tried.Reset()
	test.That(t, tried.Len(), test.ShouldEqual, 0)
	test.That(t, NewTriedPoses(0).capacity, test.ShouldEqual, DefaultTriedPosesCapacity)
}
