package renderer

import "github.com/achilleasa/vega/tracer"

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of indirect bounces.
	NumBounces uint32

	// Min bounces before applying russian roulette for path elimination.
	MinBouncesForRR uint32

	// Number of samples. A zero value lets interactive renderers keep
	// refining the frame for as long as the camera stays still.
	SamplesPerPixel uint32

	// Exposure for tonemapping.
	Exposure float32

	// The tone-mapping operator applied to accumulated radiance.
	Tonemap tracer.Tonemap

	// The direct light sampling strategy.
	NeeMode tracer.NeeMode

	// Seed for the per-pixel sample sequences.
	Seed uint32
}
