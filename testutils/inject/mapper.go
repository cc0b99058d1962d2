package inject

import (
	"context"

	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/spatialmath"
)

// DenseMapper is an injected mapper. Unset functions are no-ops, which is what most tests want
// from a mapper.
type DenseMapper struct {
	ResetSceneFunc        func(ctx context.Context) error
	UpdateVisibleListFunc func(ctx context.Context, view *slam.View, pose spatialmath.Pose, reset bool) error
	ProcessFrameFunc      func(ctx context.Context, view *slam.View, pose spatialmath.Pose) error
	RenderIndexFunc       func(ctx context.Context, pose spatialmath.Pose) error
}

// ResetScene calls the injected ResetScene.
func (m *DenseMapper) ResetScene(ctx context.Context) error {
	if m.ResetSceneFunc == nil {
		return nil
	}
	return m.ResetSceneFunc(ctx)
}

// UpdateVisibleList calls the injected UpdateVisibleList.
func (m *DenseMapper) UpdateVisibleList(ctx context.Context, view *slam.View, pose spatialmath.Pose, reset bool) error {
	if m.UpdateVisibleListFunc == nil {
		return nil
	}
	return m.UpdateVisibleListFunc(ctx, view, pose, reset)
}

// ProcessFrame calls the injected ProcessFrame.
func (m *DenseMapper) ProcessFrame(ctx context.Context, view *slam.View, pose spatialmath.Pose) error {
	if m.ProcessFrameFunc == nil {
		return nil
	}
	return m.ProcessFrameFunc(ctx, view, pose)
}

// RenderIndex calls the injected RenderIndex.
func (m *DenseMapper) RenderIndex(ctx context.Context, pose spatialmath.Pose) error {
	if m.RenderIndexFunc == nil {
		return nil
	}
	return m.RenderIndexFunc(ctx, pose)
}
