// Package fake contains synthetic SLAM collaborators: an image source replaying a known
// trajectory, trackers that converge towards the true pose, a depth-matching relocaliser and a
// counting mapper.
package fake

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"go.viam.com/collabslam/spatialmath"
)

// LoopTrajectory returns n poses on a horizontal circle of the given radius, each camera facing
// the centre. Consecutive poses are 2π·radius/n apart.
func LoopTrajectory(n int, radius, height float64) []spatialmath.Pose {
	poses := make([]spatialmath.Pose, n)
	for i := range poses {
		theta := 2 * math.Pi * float64(i) / float64(n)
		pt := r3.Vector{X: radius * math.Cos(theta), Y: radius * math.Sin(theta), Z: height}
		yaw := &spatialmath.R4AA{Theta: theta + math.Pi, RZ: 1}
		poses[i] = spatialmath.NewPose(pt, yaw)
	}
	return poses
}

// TransformTrajectory expresses `poses` in another frame: every pose p becomes transform∘p.
func TransformTrajectory(poses []spatialmath.Pose, transform spatialmath.Pose) []spatialmath.Pose {
	out := make([]spatialmath.Pose, len(poses))
	for i, p := range poses {
		out[i] = spatialmath.Compose(transform, p)
	}
	return out
}

// RandomWalkTrajectory returns n poses of a planar walk taking steps of length `step` with a
// heading that drifts randomly. Unlike a loop it has no symmetry, so there is a single transform
// aligning it with a transformed copy of itself.
func RandomWalkTrajectory(n int, step float64, rng *rand.Rand) []spatialmath.Pose {
	poses := make([]spatialmath.Pose, n)
	var pt r3.Vector
	heading := 0.
	for i := range poses {
		poses[i] = spatialmath.NewPose(pt, &spatialmath.R4AA{Theta: heading, RZ: 1})
		heading += rng.NormFloat64() * 0.4
		pt = pt.Add(r3.Vector{X: step * math.Cos(heading), Y: step * math.Sin(heading), Z: step * 0.1 * rng.NormFloat64()})
	}
	return poses
}
