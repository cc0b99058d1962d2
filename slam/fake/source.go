package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/spatialmath"
)

// Default synthetic image size.
const (
	DefaultWidth  = 16
	DefaultHeight = 12
)

// ImageSource replays frames rendered from a known trajectory. Each frame carries its true pose as
// ground truth.
type ImageSource struct {
	mu         sync.Mutex
	trajectory []spatialmath.Pose
	width      int
	height     int
	next       int
	start      time.Time
}

// NewImageSource returns a source producing one frame per pose of `trajectory`.
func NewImageSource(trajectory []spatialmath.Pose) *ImageSource {
	return &ImageSource{
		trajectory: trajectory,
		width:      DefaultWidth,
		height:     DefaultHeight,
		start:      time.Unix(0, 0).UTC(),
	}
}

// HasMoreImages implements slam.ImageSource.
func (s *ImageSource) HasMoreImages() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next < len(s.trajectory)
}

// CurrentSubsourceHasMoreImages implements slam.ImageSource. A plain source is its own only
// sub-source.
func (s *ImageSource) CurrentSubsourceHasMoreImages() bool {
	return s.HasMoreImages()
}

// NextFrame implements slam.ImageSource.
func (s *ImageSource) NextFrame(ctx context.Context) (*slam.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.trajectory) {
		return nil, errors.New("no more images")
	}
	pose := s.trajectory[s.next]
	frame := &slam.Frame{
		Index:       s.next,
		Timestamp:   s.start.Add(time.Duration(s.next) * time.Second / 30),
		Depth:       SyntheticDepth(pose, s.width, s.height),
		GroundTruth: pose,
	}
	s.next++
	return frame, nil
}

// SyntheticDepth renders a depth image that varies smoothly with the camera pose, so that nearby
// poses give similar images.
func SyntheticDepth(pose spatialmath.Pose, width, height int) *slam.DepthImage {
	depth := slam.NewDepthImage(width, height)
	pt := pose.Point()
	aa := pose.Orientation().AxisAngles()
	heading := aa.Theta * aa.RZ
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u := float64(x) / float64(width)
			v := float64(y) / float64(height)
			d := 2000 +
				300*math.Sin(2*math.Pi*u+pt.X/500+heading) +
				300*math.Cos(2*math.Pi*v+pt.Y/500) +
				pt.Z/10
			depth.Set(x, y, uint16(math.Max(d, 1)))
		}
	}
	return depth
}
