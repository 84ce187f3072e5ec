package renderer

import "image"

type Renderer interface {
	// Render frame.
	Render() error

	// Get the latest tonemapped frame.
	Image() *image.RGBA

	// Shutdown renderer and any attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}
