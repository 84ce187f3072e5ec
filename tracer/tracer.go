package tracer

type ChangeType uint8

const (
	// Replace the tracer's scene data. The payload must be a *scene.Scene.
	SetScene ChangeType = iota

	// Update the tracer's camera state. The payload must be a *scene.Camera.
	UpdateCamera
)

// A unit of work that is processed by a tracer.
type BlockRequest struct {
	// Block start row and height.
	BlockY uint32
	BlockH uint32

	// The number of emitted rays per traced pixel.
	SamplesPerPixel uint32

	// The number of samples already accumulated per pixel since the last
	// time the accumulation buffer was reset.
	AccumulatedSamples uint32

	// Bounce limits for path elimination. Paths always survive for
	// MinBounces bounces; after that russian roulette decides whether a
	// path gets extended up to MaxBounces.
	MinBounces uint32
	MaxBounces uint32

	// The exposure value controls HDR -> LDR mapping.
	Exposure float32

	// The direct light sampling strategy used by the integrator.
	NeeMode NeeMode

	// The tone-mapping operator applied while generating frame buffer pixels.
	Tonemap Tonemap

	// A random seed value for the tracer's random number generator.
	Seed uint32

	// A channel to signal on block completion with the number of completed rows.
	DoneChan chan<- uint32

	// A channel to signal if an error occurs.
	ErrChan chan<- error
}

// Tracer statistics.
type Stats struct {
	// The rendered block height
	BlockH uint32

	// The time for rendering this block (in nanoseconds)
	BlockTime int64
}

type Tracer interface {
	// Get tracer id.
	Id() string

	// Shutdown and cleanup tracer.
	Close()

	// Get the tracer's computation speed estimate compared to a baseline
	// single-worker implementation.
	SpeedEstimate() float32

	// Setup the tracer.
	Setup(frameW, frameH uint32, accumBuffer []float32, frameBuffer []uint8) error

	// Enqueue block request.
	Enqueue(BlockRequest)

	// Append a change to the tracer's update buffer.
	AppendChange(ChangeType, interface{})

	// Apply all pending changes from the update buffer.
	ApplyPendingChanges() error

	// Retrieve last frame statistics.
	Stats() *Stats
}
