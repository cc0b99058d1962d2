package slam

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/collabslam/spatialmath"
)

// DepthImage is a row-major depth image in millimetres. Zero means no measurement.
type DepthImage struct {
	Width  int
	Height int
	Data   []uint16
}

// NewDepthImage returns a zeroed depth image of the given size.
func NewDepthImage(width, height int) *DepthImage {
	return &DepthImage{Width: width, Height: height, Data: make([]uint16, width*height)}
}

// At returns the depth at (x, y).
func (d *DepthImage) At(x, y int) uint16 {
	return d.Data[y*d.Width+x]
}

// Set sets the depth at (x, y).
func (d *DepthImage) Set(x, y int, depth uint16) {
	d.Data[y*d.Width+x] = depth
}

// Clone returns a deep copy of the image.
func (d *DepthImage) Clone() *DepthImage {
	if d == nil {
		return nil
	}
	data := make([]uint16, len(d.Data))
	copy(data, d.Data)
	return &DepthImage{Width: d.Width, Height: d.Height, Data: data}
}

// Frame is a single RGB-D capture.
type Frame struct {
	Index     int
	Timestamp time.Time
	RGB       image.Image
	Depth     *DepthImage
	// GroundTruth is the camera pose reported by an external system such as motion capture, or
	// nil when there is none.
	GroundTruth spatialmath.Pose
}

// View is the per-frame working representation shared by tracking and fusion. Depth lives in
// "device" memory; HostDepth is only valid after UpdateHostFromDevice.
type View struct {
	Frame     *Frame
	Depth     *DepthImage
	HostDepth *DepthImage
	Filtered  bool
}

// UpdateHostFromDevice copies the view's depth into host memory.
func (v *View) UpdateHostFromDevice() {
	v.HostDepth = v.Depth.Clone()
}

// DefaultViewBuilder builds views straight from frames. When asked to, it applies a 3x3 median
// filter to the depth, which stands in for the bilateral filter applied before surfel tracking.
type DefaultViewBuilder struct{}

// UpdateView implements ViewBuilder.
func (DefaultViewBuilder) UpdateView(ctx context.Context, view *View, frame *Frame, useBilateralFilter bool) (*View, error) {
	if frame == nil || frame.Depth == nil {
		return nil, errors.New("frame has no depth image")
	}
	if len(frame.Depth.Data) != frame.Depth.Width*frame.Depth.Height {
		return nil, errors.Errorf("depth image is %dx%d but has %d samples",
			frame.Depth.Width, frame.Depth.Height, len(frame.Depth.Data))
	}
	if view == nil {
		view = &View{}
	}
	view.Frame = frame
	view.Filtered = useBilateralFilter
	view.HostDepth = nil
	if useBilateralFilter {
		view.Depth = medianFilter(frame.Depth)
	} else {
		view.Depth = frame.Depth.Clone()
	}
	return view, nil
}

func medianFilter(src *DepthImage) *DepthImage {
	dst := src.Clone()
	window := make([]uint16, 0, 9)
	for y := 1; y < src.Height-1; y++ {
		for x := 1; x < src.Width-1; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if d := src.At(x+dx, y+dy); d != 0 {
						window = append(window, d)
					}
				}
			}
			if len(window) == 0 {
				continue
			}
			// insertion sort, the window is tiny
			for i := 1; i < len(window); i++ {
				for j := i; j > 0 && window[j] < window[j-1]; j-- {
					window[j], window[j-1] = window[j-1], window[j]
				}
			}
			dst.Set(x, y, window[len(window)/2])
		}
	}
	return dst
}

// TrackingState is the most recent tracking outcome of an agent.
type TrackingState struct {
	Pose    spatialmath.Pose
	Quality TrackingQuality
}

// State is the SLAM state of one agent. It is written by the agent's Component and may be read
// from other goroutines.
type State struct {
	SceneID string

	mu       sync.RWMutex
	view     *View
	tracking TrackingState
	fused    int
}

// NewState returns the state of an agent that has not processed any frame yet.
func NewState(sceneID string) *State {
	return &State{
		SceneID:  sceneID,
		tracking: TrackingState{Pose: spatialmath.NewZeroPose(), Quality: TrackingGood},
	}
}

// TrackingState returns the latest tracking state.
func (s *State) TrackingState() TrackingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracking
}

// View returns the latest view, or nil before the first frame.
func (s *State) View() *View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// FusedFramesCount returns how many frames have been fused into the agent's map.
func (s *State) FusedFramesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fused
}

func (s *State) update(view *View, tracking TrackingState, fused int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = view
	s.tracking = tracking
	s.fused = fused
}
