package fake

import (
	"context"

	"go.uber.org/atomic"

	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/spatialmath"
)

// Mapper counts the calls made to it instead of building a scene. It can stand in for both the
// voxel and the surfel mapper.
type Mapper struct {
	Resets             atomic.Int64
	VisibleListUpdates atomic.Int64
	VisibleListResets  atomic.Int64
	Fused              atomic.Int64
	IndexRenders       atomic.Int64
}

var _ slam.SurfelMapper = (*Mapper)(nil)

// ResetScene implements slam.DenseMapper.
func (m *Mapper) ResetScene(ctx context.Context) error {
	m.Resets.Inc()
	return nil
}

// UpdateVisibleList implements slam.DenseMapper.
func (m *Mapper) UpdateVisibleList(ctx context.Context, view *slam.View, pose spatialmath.Pose, reset bool) error {
	if reset {
		m.VisibleListResets.Inc()
	} else {
		m.VisibleListUpdates.Inc()
	}
	return nil
}

// ProcessFrame implements slam.DenseMapper.
func (m *Mapper) ProcessFrame(ctx context.Context, view *slam.View, pose spatialmath.Pose) error {
	m.Fused.Inc()
	return nil
}

// RenderIndex implements slam.SurfelMapper.
func (m *Mapper) RenderIndex(ctx context.Context, pose spatialmath.Pose) error {
	m.IndexRenders.Inc()
	return nil
}
