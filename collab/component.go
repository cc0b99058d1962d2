package collab

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/spatialmath"
	"go.viam.com/collabslam/utils"
)

// ErrAlreadyRunning is returned when collaborative pose estimation is started twice.
var ErrAlreadyRunning = errors.New("collaborative pose estimation already running")

var errClosed = errors.New("collaborative component is closed")

// Component searches for the relative poses between agents in the background. Each cycle samples
// candidate transforms from pairs of trajectories, scores them and commits the best one once it
// is confident enough. The agents are never blocked by a cycle.
type Component struct {
	sharedCtx *Context
	cfg       Config
	scorer    Scorer
	clk       clock.Clock
	logger    logging.Logger

	wake     chan struct{}
	stopped  atomic.Bool
	running  atomic.Bool
	inFlight atomic.Bool
	cycles   atomic.Int64

	workersMu sync.Mutex
	workers   utils.StoppableWorkers

	// mu guards everything below. It is never held while scoring.
	mu          sync.Mutex
	rng         *rand.Rand
	snapshots   map[string][]spatialmath.Pose
	tried       map[agentPair]*TriedPoses
	best        *Candidate
	results     map[agentPair]Candidate
	committedAt map[agentPair]int
	generation  uint64
	exploring   bool
}

// NewComponent returns a collaborative component over the agents of `sharedCtx`. All random
// sampling uses `rng`, so a seeded generator makes runs repeatable.
func NewComponent(
	sharedCtx *Context,
	cfg Config,
	scorer Scorer,
	rng *rand.Rand,
	clk clock.Clock,
	logger logging.Logger,
) (*Component, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate("collaborative"); err != nil {
		return nil, err
	}
	if sharedCtx == nil {
		return nil, errors.New("shared context is required")
	}
	if scorer == nil {
		scorer = NewTrajectoryScorer(cfg.Scorer)
	}
	if rng == nil {
		rng = utils.NewSeededRand(0)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Component{
		sharedCtx:   sharedCtx,
		cfg:         cfg,
		scorer:      scorer,
		clk:         clk,
		logger:      logger,
		wake:        make(chan struct{}, 1),
		rng:         rng,
		snapshots:   map[string][]spatialmath.Pose{},
		tried:       map[agentPair]*TriedPoses{},
		results:     map[agentPair]Candidate{},
		committedAt: map[agentPair]int{},
	}, nil
}

// RunCollaborativePoseEstimation starts the background worker. It returns immediately; the
// worker runs until Close is called or `ctx` is cancelled.
func (c *Component) RunCollaborativePoseEstimation(ctx context.Context) error {
	c.workersMu.Lock()
	defer c.workersMu.Unlock()
	if c.stopped.Load() {
		return errClosed
	}
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.workers = utils.NewStoppableWorkersWithContext(ctx, c.run)
	return nil
}

func (c *Component) run(ctx context.Context) {
	ticker := c.clk.Ticker(c.cfg.SchedulingInterval)
	defer ticker.Stop()
	c.logger.Debugw("collaborative worker started", "mode", c.cfg.Mode)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.TryScheduleRelocalisation()
			continue
		case <-c.wake:
		}
		if c.stopped.Load() || ctx.Err() != nil {
			return
		}
		c.runCycle(ctx)
	}
}

// TryScheduleRelocalisation asks the worker to run a cycle when there is something to do: enough
// new poses arrived, or the previous cycle still found untried candidates. It returns whether a
// cycle is now pending. It never blocks on a running cycle.
func (c *Component) TryScheduleRelocalisation() bool {
	if c.stopped.Load() || c.inFlight.Load() {
		return false
	}

	c.mu.Lock()
	enoughNewPoses := c.updateTrajectories()
	exploring := c.exploring
	c.mu.Unlock()

	if !enoughNewPoses && !exploring {
		return false
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// updateTrajectories pulls newly appended poses of every agent into the local snapshots and
// reports whether at least MinNewPoses arrived.
func (c *Component) updateTrajectories() bool {
	newPoses := 0
	for _, id := range c.sharedCtx.AgentIDs() {
		snapshot := c.snapshots[id]
		added, err := c.sharedCtx.TrajectoryFrom(id, len(snapshot))
		if err != nil {
			c.logger.Warnw("cannot read trajectory", "agent", id, "error", err)
			continue
		}
		c.snapshots[id] = append(snapshot, added...)
		newPoses += len(added)
	}
	return newPoses >= c.cfg.MinNewPoses
}

func (c *Component) runCycle(ctx context.Context) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("collaborative cycle abandoned", "panic", r)
		}
	}()

	start := c.clk.Now()
	candidates, trajectories := c.prepareCycle()
	scored := c.scoreCandidates(ctx, candidates, trajectories)
	if c.stopped.Load() || ctx.Err() != nil {
		return
	}
	c.selectCandidate(scored)
	c.cycles.Inc()
	c.logger.Debugw("collaborative cycle done",
		"candidates", len(candidates), "scored", len(scored), "duration", c.clk.Since(start))
}

func (c *Component) prepareCycle() ([]Candidate, map[string][]spatialmath.Pose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	candidates := c.generateRandomCandidates(c.cfg.CandidatesPerCycle)
	c.exploring = len(candidates) > 0

	// snapshots only ever grow, so these capped slices stay valid while new poses are appended
	trajectories := make(map[string][]spatialmath.Pose, len(c.snapshots))
	for id, snapshot := range c.snapshots {
		trajectories[id] = snapshot[:len(snapshot):len(snapshot)]
	}
	return candidates, trajectories
}

// eligiblePairs returns the agent pairs worth sampling: both agents have poses, and the pair has
// no committed result or its trajectories gained RefinementFrames poses since the commit.
func (c *Component) eligiblePairs() []agentPair {
	ids := make([]string, 0, len(c.snapshots))
	for id, snapshot := range c.snapshots {
		if len(snapshot) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var pairs []agentPair
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			pair := newAgentPair(ids[i], ids[j])
			if at, ok := c.committedAt[pair]; ok && c.pairLength(pair)-at < c.cfg.RefinementFrames {
				continue
			}
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

func (c *Component) pairLength(pair agentPair) int {
	return len(c.snapshots[pair.a]) + len(c.snapshots[pair.b])
}

func (c *Component) triedPoses(pair agentPair) *TriedPoses {
	tried, ok := c.tried[pair]
	if !ok {
		tried = NewTriedPoses(c.cfg.TriedPosesCapacity)
		c.tried[pair] = tried
	}
	return tried
}

// sampleIndex draws a pose index of a trajectory of length n according to the mode.
func (c *Component) sampleIndex(n int) int {
	if c.cfg.Mode == ModeLive && n > c.cfg.LiveWindow {
		return n - c.cfg.LiveWindow + c.rng.Intn(c.cfg.LiveWindow)
	}
	return c.rng.Intn(n)
}

// generateRandomCandidates returns up to k untried candidates. Each one pairs a random pose of
// agent A with a random pose of agent B, assuming both cameras were at the same place.
func (c *Component) generateRandomCandidates(k int) []Candidate {
	pairs := c.eligiblePairs()
	if len(pairs) == 0 {
		return nil
	}

	var candidates []Candidate
	for attempts := 0; len(candidates) < k && attempts < k*c.cfg.MaxAttemptsPerCandidate; attempts++ {
		pair := pairs[c.rng.Intn(len(pairs))]
		trajectoryA, trajectoryB := c.snapshots[pair.a], c.snapshots[pair.b]
		poseA := trajectoryA[c.sampleIndex(len(trajectoryA))]
		poseB := trajectoryB[c.sampleIndex(len(trajectoryB))]

		relative := spatialmath.Compose(poseA, spatialmath.PoseInverse(poseB))
		relative = spatialmath.PerturbPose(c.rng, relative, c.cfg.PerturbTranslation, c.cfg.PerturbRotation)

		tried := c.triedPoses(pair)
		if tried.Contains(relative, c.cfg.DedupTranslation, c.cfg.DedupRotation) {
			continue
		}
		tried.Add(relative)
		c.generation++
		candidates = append(candidates, Candidate{
			AgentA:     pair.a,
			AgentB:     pair.b,
			Pose:       relative,
			Generation: c.generation,
		})
	}
	return candidates
}

// scoreCandidates attaches a confidence to each candidate. Candidates the scorer cannot judge yet
// are dropped. Scoring stops early when the component is closed.
func (c *Component) scoreCandidates(
	ctx context.Context,
	candidates []Candidate,
	trajectories map[string][]spatialmath.Pose,
) []Candidate {
	scored := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if c.stopped.Load() || ctx.Err() != nil {
			return scored
		}
		confidence, err := c.scorer.Score(ctx, candidate, trajectories[candidate.AgentA], trajectories[candidate.AgentB])
		if err != nil {
			c.logger.Debugw("candidate not scored", "candidate", candidate.String(), "error", err)
			continue
		}
		candidate.Confidence = confidence
		scored = append(scored, candidate)
	}
	return scored
}

// selectCandidate keeps the best candidate seen so far, preferring fresher candidates on near
// ties, and commits it once its confidence reaches the acceptance threshold.
func (c *Component) selectCandidate(scored []Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cycleBest *Candidate
	for i := range scored {
		if cycleBest == nil || scored[i].Confidence >= cycleBest.Confidence {
			cycleBest = &scored[i]
		}
	}
	if cycleBest == nil {
		return
	}
	if c.best == nil || cycleBest.Confidence >= c.best.Confidence-c.cfg.NearTieEpsilon {
		best := *cycleBest
		c.best = &best
	}
	if c.best.Confidence >= c.cfg.AcceptanceThreshold {
		c.commit(*c.best)
		c.best = nil
	}
}

func (c *Component) commit(candidate Candidate) {
	pair := newAgentPair(candidate.AgentA, candidate.AgentB)
	c.committedAt[pair] = c.pairLength(pair)
	c.triedPoses(pair).Reset()

	if previous, ok := c.results[pair]; ok && previous.Confidence > candidate.Confidence {
		c.logger.Debugw("keeping more confident relative pose", "kept", previous.String(), "rejected", candidate.String())
		return
	}
	c.results[pair] = candidate
	c.logger.Infow("committed relative pose", "candidate", candidate.String())
}

// BestCandidate returns the best uncommitted candidate, if any.
func (c *Component) BestCandidate() (Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.best == nil {
		return Candidate{}, false
	}
	return *c.best, true
}

// Result returns the committed transform taking agent b's poses into agent a's frame.
func (c *Component) Result(a, b string) (Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.results[newAgentPair(a, b)]
	if !ok {
		return Candidate{}, false
	}
	if result.AgentA != a {
		result = result.Reversed()
	}
	return result, true
}

// Results returns every committed result ordered by agent pair.
func (c *Component) Results() []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make([]Candidate, 0, len(c.results))
	for _, result := range c.results {
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].AgentA != results[j].AgentA {
			return results[i].AgentA < results[j].AgentA
		}
		return results[i].AgentB < results[j].AgentB
	})
	return results
}

// Cycles returns the number of completed cycles.
func (c *Component) Cycles() int64 {
	return c.cycles.Load()
}

// Close stops the worker, abandoning any cycle in progress, and waits for it to exit.
func (c *Component) Close() error {
	c.workersMu.Lock()
	c.stopped.Store(true)
	workers := c.workers
	c.workersMu.Unlock()
	if workers != nil {
		workers.Stop()
	}
	return nil
}
