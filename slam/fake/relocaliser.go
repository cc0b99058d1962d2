package fake

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/collabslam/slam"
)

// DefaultHarvestingThreshold is the mean absolute depth difference, in millimetres, above which a
// frame is different enough from every keyframe to become one.
const DefaultHarvestingThreshold = 40.

// Relocaliser matches depth images against the stored keyframes by mean absolute difference.
type Relocaliser struct {
	HarvestingThreshold float64

	mu        sync.Mutex
	keyframes []*slam.DepthImage
}

// NewRelocaliser returns a relocaliser with the default harvesting threshold.
func NewRelocaliser() *Relocaliser {
	return &Relocaliser{HarvestingThreshold: DefaultHarvestingThreshold}
}

// ProcessFrame implements slam.Relocaliser.
func (r *Relocaliser) ProcessFrame(ctx context.Context, depth *slam.DepthImage, considerKeyframe bool) (slam.RelocalisationResult, error) {
	result := slam.RelocalisationResult{NearestNeighbour: slam.NoKeyframe, KeyframeID: slam.NoKeyframe}
	if depth == nil {
		return result, errors.New("no depth image on host")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	best := math.Inf(1)
	for id, keyframe := range r.keyframes {
		dist, err := meanAbsDifference(depth, keyframe)
		if err != nil {
			return result, err
		}
		if dist < best {
			best = dist
			result.NearestNeighbour = id
		}
	}

	if considerKeyframe && best > r.HarvestingThreshold {
		result.KeyframeID = len(r.keyframes)
		r.keyframes = append(r.keyframes, depth.Clone())
	}
	return result, nil
}

// KeyframeCount returns the number of stored keyframes.
func (r *Relocaliser) KeyframeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keyframes)
}

func meanAbsDifference(a, b *slam.DepthImage) (float64, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return 0, errors.Errorf("depth size mismatch: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	var sum float64
	for i := range a.Data {
		sum += math.Abs(float64(a.Data[i]) - float64(b.Data[i]))
	}
	return sum / float64(len(a.Data)), nil
}
