package slam

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/collabslam/spatialmath"
)

// Keyframe is a stored relocalisation anchor.
type Keyframe struct {
	ID   int
	Pose spatialmath.Pose
}

// MemoryPoseDatabase is an in-memory PoseDatabase. Keyframes are never removed or overwritten.
type MemoryPoseDatabase struct {
	mu    sync.RWMutex
	poses map[int]spatialmath.Pose
}

// NewMemoryPoseDatabase returns an empty pose database.
func NewMemoryPoseDatabase() *MemoryPoseDatabase {
	return &MemoryPoseDatabase{poses: map[int]spatialmath.Pose{}}
}

// StorePose implements PoseDatabase.
func (db *MemoryPoseDatabase) StorePose(id int, pose spatialmath.Pose) error {
	if id < 0 {
		return errors.Errorf("invalid keyframe id %d", id)
	}
	if pose == nil {
		return errors.New("cannot store a nil pose")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.poses[id]; ok {
		return errors.Errorf("keyframe %d already stored", id)
	}
	db.poses[id] = pose
	return nil
}

// RetrievePose implements PoseDatabase.
func (db *MemoryPoseDatabase) RetrievePose(id int) (spatialmath.Pose, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	pose, ok := db.poses[id]
	if !ok {
		return nil, errors.Errorf("no keyframe with id %d", id)
	}
	return pose, nil
}

// Keyframes returns every stored keyframe ordered by id.
func (db *MemoryPoseDatabase) Keyframes() []Keyframe {
	db.mu.RLock()
	defer db.mu.RUnlock()
	keyframes := make([]Keyframe, 0, len(db.poses))
	for id, pose := range db.poses {
		keyframes = append(keyframes, Keyframe{ID: id, Pose: pose})
	}
	sort.Slice(keyframes, func(i, j int) bool { return keyframes[i].ID < keyframes[j].ID })
	return keyframes
}
