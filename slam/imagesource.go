package slam

import (
	"context"

	"github.com/pkg/errors"
)

// CompositeImageSource plays a sequence of image sources one after the other.
type CompositeImageSource struct {
	sources []ImageSource
	current int
}

// NewCompositeImageSource returns a source reading each of `sources` until it is exhausted.
func NewCompositeImageSource(sources ...ImageSource) *CompositeImageSource {
	cs := &CompositeImageSource{sources: sources}
	cs.advance()
	return cs
}

func (cs *CompositeImageSource) advance() {
	for cs.current < len(cs.sources) && !cs.sources[cs.current].HasMoreImages() {
		cs.current++
	}
}

// HasMoreImages implements ImageSource.
func (cs *CompositeImageSource) HasMoreImages() bool {
	cs.advance()
	return cs.current < len(cs.sources)
}

// NextFrame implements ImageSource.
func (cs *CompositeImageSource) NextFrame(ctx context.Context) (*Frame, error) {
	if !cs.HasMoreImages() {
		return nil, errors.New("no more images")
	}
	return cs.sources[cs.current].NextFrame(ctx)
}

// CurrentSubsourceHasMoreImages reports whether the source most recently read from still has
// images. It does not move on to the next source.
func (cs *CompositeImageSource) CurrentSubsourceHasMoreImages() bool {
	if cs.current >= len(cs.sources) {
		return false
	}
	return cs.sources[cs.current].HasMoreImages()
}
