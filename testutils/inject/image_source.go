package inject

import (
	"context"

	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/spatialmath"
)

// ImageSource is an injected image source.
type ImageSource struct {
	slam.ImageSource
	HasMoreImagesFunc                 func() bool
	NextFrameFunc                     func(ctx context.Context) (*slam.Frame, error)
	CurrentSubsourceHasMoreImagesFunc func() bool
}

// HasMoreImages calls the injected HasMoreImages or the real version.
func (s *ImageSource) HasMoreImages() bool {
	if s.HasMoreImagesFunc == nil {
		return s.ImageSource.HasMoreImages()
	}
	return s.HasMoreImagesFunc()
}

// NextFrame calls the injected NextFrame or the real version.
func (s *ImageSource) NextFrame(ctx context.Context) (*slam.Frame, error) {
	if s.NextFrameFunc == nil {
		return s.ImageSource.NextFrame(ctx)
	}
	return s.NextFrameFunc(ctx)
}

// CurrentSubsourceHasMoreImages calls the injected CurrentSubsourceHasMoreImages or the real
// version.
func (s *ImageSource) CurrentSubsourceHasMoreImages() bool {
	if s.CurrentSubsourceHasMoreImagesFunc == nil {
		return s.ImageSource.CurrentSubsourceHasMoreImages()
	}
	return s.CurrentSubsourceHasMoreImagesFunc()
}

// ViewBuilder is an injected view builder.
type ViewBuilder struct {
	slam.ViewBuilder
	UpdateViewFunc func(ctx context.Context, view *slam.View, frame *slam.Frame, useBilateralFilter bool) (*slam.View, error)
}

// UpdateView calls the injected UpdateView or the real version.
func (vb *ViewBuilder) UpdateView(
	ctx context.Context,
	view *slam.View,
	frame *slam.Frame,
	useBilateralFilter bool,
) (*slam.View, error) {
	if vb.UpdateViewFunc == nil {
		return vb.ViewBuilder.UpdateView(ctx, view, frame, useBilateralFilter)
	}
	return vb.UpdateViewFunc(ctx, view, frame, useBilateralFilter)
}

// SLAMContext is an injected shared context.
type SLAMContext struct {
	slam.Context
	AppendPoseFunc func(sceneID string, pose spatialmath.Pose) error
}

// AppendPose calls the injected AppendPose or the real version.
func (c *SLAMContext) AppendPose(sceneID string, pose spatialmath.Pose) error {
	if c.AppendPoseFunc == nil {
		return c.Context.AppendPose(sceneID, pose)
	}
	return c.AppendPoseFunc(sceneID, pose)
}
