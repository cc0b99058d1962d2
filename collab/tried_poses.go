package collab

import (
	"go.viam.com/collabslam/spatialmath"
)

// DefaultTriedPosesCapacity is the number of hypotheses remembered per agent pair.
const DefaultTriedPosesCapacity = 128

// TriedPoses is a bounded history of the relative poses already tried for an agent pair. Once
// full, the oldest entry is forgotten first.
type TriedPoses struct {
	capacity int
	poses    []spatialmath.Pose
}

// NewTriedPoses returns an empty history holding at most `capacity` poses.
func NewTriedPoses(capacity int) *TriedPoses {
	if capacity <= 0 {
		capacity = DefaultTriedPosesCapacity
	}
	return &TriedPoses{capacity: capacity}
}

// Contains reports whether a tried pose lies within the given translation and rotation of `pose`.
func (tp *TriedPoses) Contains(pose spatialmath.Pose, translation, rotation float64) bool {
	for _, tried := range tp.poses {
		if spatialmath.PoseAlmostEqualEps(tried, pose, translation, rotation) {
			return true
		}
	}
	return false
}

// Add records a pose as tried.
func (tp *TriedPoses) Add(pose spatialmath.Pose) {
	if len(tp.poses) == tp.capacity {
		copy(tp.poses, tp.poses[1:])
		tp.poses = tp.poses[:len(tp.poses)-1]
	}
	tp.poses = append(tp.poses, pose)
}

// Reset forgets every tried pose.
func (tp *TriedPoses) Reset() {
	tp.poses = nil
}

// Len returns the number of remembered poses.
func (tp *TriedPoses) Len() int {
	return len(tp.poses)
}
