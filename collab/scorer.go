package collab

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/collabslam/spatialmath"
	"go.viam.com/collabslam/utils"
)

// ErrInsufficientOverlap is returned by a Scorer when the trajectories are too short to judge a
// candidate yet.
var ErrInsufficientOverlap = errors.New("insufficient trajectory overlap")

// A Scorer rates how consistent a candidate is with the evidence gathered by both agents. The
// confidence is in [0, 1].
type Scorer interface {
	Score(ctx context.Context, candidate Candidate, trajectoryA, trajectoryB []spatialmath.Pose) (float64, error)
}

// Defaults for ScorerConfig.
const (
	DefaultInlierDistance = 50.
	DefaultInlierAngle    = 0.1
	DefaultMinOverlap     = 10
	DefaultScorerSamples  = 50
)

// ScorerConfig configures a TrajectoryScorer.
type ScorerConfig struct {
	InlierDistance float64 `json:"inlier_distance"`
	InlierAngle    float64 `json:"inlier_angle"`
	MinOverlap     int     `json:"min_overlap"`
	Samples        int     `json:"samples"`
}

// ApplyDefaults fills in unset fields.
func (cfg *ScorerConfig) ApplyDefaults() {
	if cfg.InlierDistance == 0 {
		cfg.InlierDistance = DefaultInlierDistance
	}
	if cfg.InlierAngle == 0 {
		cfg.InlierAngle = DefaultInlierAngle
	}
	if cfg.MinOverlap == 0 {
		cfg.MinOverlap = DefaultMinOverlap
	}
	if cfg.Samples == 0 {
		cfg.Samples = DefaultScorerSamples
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *ScorerConfig) Validate(path string) error {
	if cfg.InlierDistance <= 0 || cfg.InlierAngle <= 0 {
		return utils.NewConfigValidationError(path, errors.New("inlier thresholds must be positive"))
	}
	if cfg.MinOverlap <= 0 || cfg.Samples <= 0 {
		return utils.NewConfigValidationError(path, errors.New("min_overlap and samples must be positive"))
	}
	return nil
}

// TrajectoryScorer checks a candidate by mapping poses of agent B into agent A's frame and
// matching each against the closest pose of agent A. The confidence is the fraction of matches
// within the inlier thresholds, scaled down as their median distance grows.
type TrajectoryScorer struct {
	cfg ScorerConfig
}

// NewTrajectoryScorer returns a scorer using `cfg`, with defaults applied.
func NewTrajectoryScorer(cfg ScorerConfig) *TrajectoryScorer {
	cfg.ApplyDefaults()
	return &TrajectoryScorer{cfg: cfg}
}

// Score implements Scorer.
func (s *TrajectoryScorer) Score(
	ctx context.Context,
	candidate Candidate,
	trajectoryA, trajectoryB []spatialmath.Pose,
) (float64, error) {
	if len(trajectoryA) < s.cfg.MinOverlap || len(trajectoryB) < s.cfg.MinOverlap {
		return 0, errors.Wrapf(ErrInsufficientOverlap, "have %d and %d poses, need %d",
			len(trajectoryA), len(trajectoryB), s.cfg.MinOverlap)
	}

	samples := sampleIndices(len(trajectoryB), s.cfg.Samples)
	var residuals []float64
	for _, i := range samples {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mapped := spatialmath.Compose(candidate.Pose, trajectoryB[i])
		translation, rotation := s.nearest(mapped, trajectoryA)
		if translation <= s.cfg.InlierDistance && rotation <= s.cfg.InlierAngle {
			residuals = append(residuals, translation)
		}
	}
	if len(residuals) == 0 {
		return 0, nil
	}

	median, err := stats.Median(residuals)
	if err != nil {
		return 0, err
	}
	inlierFraction := float64(len(residuals)) / float64(len(samples))
	return inlierFraction * (1 - 0.5*median/s.cfg.InlierDistance), nil
}

// nearest returns the residuals to the pose of `trajectory` closest to `pose`, weighing a
// rotation of InlierAngle like a translation of InlierDistance.
func (s *TrajectoryScorer) nearest(pose spatialmath.Pose, trajectory []spatialmath.Pose) (float64, float64) {
	bestCost := math.Inf(1)
	var bestTranslation, bestRotation float64
	for _, other := range trajectory {
		translation, rotation := spatialmath.PoseDelta(pose, other)
		cost := translation/s.cfg.InlierDistance + rotation/s.cfg.InlierAngle
		if cost < bestCost {
			bestCost, bestTranslation, bestRotation = cost, translation, rotation
		}
	}
	return bestTranslation, bestRotation
}

// sampleIndices returns at most k indices evenly spread over [0, n).
func sampleIndices(n, k int) []int {
	if k >= n {
		k = n
	}
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i * n / k
	}
	return indices
}
