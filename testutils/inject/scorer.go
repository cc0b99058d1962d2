package inject

import (
	"context"

	"go.viam.com/collabslam/collab"
	"go.viam.com/collabslam/spatialmath"
)

// Scorer is an injected collaborative scorer.
type Scorer struct {
	collab.Scorer
	ScoreFunc func(ctx context.Context, candidate collab.Candidate, trajectoryA, trajectoryB []spatialmath.Pose) (float64, error)
}

// Score calls the injected Score or the real version.
func (s *Scorer) Score(
	ctx context.Context,
	candidate collab.Candidate,
	trajectoryA, trajectoryB []spatialmath.Pose,
) (float64, error) {
	if s.ScoreFunc == nil {
		return s.Scorer.Score(ctx, candidate, trajectoryA, trajectoryB)
	}
	return s.ScoreFunc(ctx, candidate, trajectoryA, trajectoryB)
}
