package renderer

import (
	"image"
	"time"

	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/log"
	"github.com/achilleasa/vega/tracer"
)

// The default renderer drives a pool of trace devices through the block
// scheduler, accumulating radiance into a shared buffer until the requested
// number of samples per pixel has been reached. Scene and camera changes
// bump a generation counter; the accumulation buffer is cleared before the
// first dispatch of a new generation so stale samples never mix with fresh
// ones.
type defaultRenderer struct {
	logger log.Logger

	options Options

	sc        *scene.Scene
	tracers   []tracer.Tracer
	scheduler tracer.BlockScheduler

	// Shared render targets. Each pixel owns 3 consecutive floats of the
	// accumulation buffer and 4 bytes of the frame buffer.
	accumBuffer []float32
	frameBuffer []uint8

	// The block row assignment from the last dispatch.
	blockAssignments []uint32

	// Completion signaling for in-flight block requests.
	doneChan chan uint32
	errChan  chan error

	// Samples accumulated per pixel since the last clear.
	accumulatedSamples uint32

	// Scene/camera generation tracking.
	generation      uint32
	accumGeneration uint32

	lastFrameTime int64
	stats         FrameStats
}

// Create a new renderer that schedules work across the supplied trace
// devices. The scene is uploaded to every tracer before returning.
func NewDefault(sc *scene.Scene, scheduler tracer.BlockScheduler, tracers []tracer.Tracer, opts Options) (Renderer, error) {
	if sc == nil {
		return nil, ErrSceneNotDefined
	}
	if sc.Camera == nil {
		return nil, ErrCameraNotDefined
	}
	if len(tracers) == 0 {
		return nil, ErrNoTracers
	}

	r := &defaultRenderer{
		logger:      log.New("renderer"),
		options:     opts,
		sc:          sc,
		tracers:     tracers,
		scheduler:   scheduler,
		accumBuffer: make([]float32, opts.FrameW*opts.FrameH*3),
		frameBuffer: make([]uint8, opts.FrameW*opts.FrameH*4),

		// Buffered to the pool size so a tracer that signals after the
		// frame already aborted on another tracer's error never blocks.
		doneChan: make(chan uint32, len(tracers)),
		errChan:  make(chan error, len(tracers)),
	}

	for _, tr := range r.tracers {
		if err := tr.Setup(opts.FrameW, opts.FrameH, r.accumBuffer, r.frameBuffer); err != nil {
			return nil, err
		}
		tr.AppendChange(tracer.SetScene, sc)
	}
	r.generation++

	return r, nil
}

// Render frame. Samples are committed one per dispatch so the scheduler can
// rebalance block assignments using per-device timings.
func (r *defaultRenderer) Render() error {
	for {
		if err := r.renderFrame(1); err != nil {
			return err
		}
		if r.accumulatedSamples >= r.options.SamplesPerPixel {
			return nil
		}
	}
}

// Get the latest tonemapped frame.
func (r *defaultRenderer) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(r.options.FrameW), int(r.options.FrameH)))
	copy(img.Pix, r.frameBuffer)
	return img
}

// Shutdown renderer and any attached tracer.
func (r *defaultRenderer) Close() {
	for _, tr := range r.tracers {
		tr.Close()
	}
}

// Get render statistics.
func (r *defaultRenderer) Stats() FrameStats {
	return r.stats
}

// Replace the rendered scene. The accumulation buffer is invalidated.
func (r *defaultRenderer) SetScene(sc *scene.Scene) {
	r.sc = sc
	for _, tr := range r.tracers {
		tr.AppendChange(tracer.SetScene, sc)
	}
	r.generation++
}

// Propagate a camera update to the attached tracers. The accumulation
// buffer is invalidated.
func (r *defaultRenderer) UpdateCamera(camera *scene.Camera) {
	for _, tr := range r.tracers {
		tr.AppendChange(tracer.UpdateCamera, camera)
	}
	r.generation++
}

// Dispatch one frame's worth of per-pixel integration and block until every
// tracer reports completion.
func (r *defaultRenderer) renderFrame(samplesPerPixel uint32) error {
	// Apply pending changes before rendering. BVH swaps and camera moves
	// only ever land between dispatches; traversal never observes them.
	for _, tr := range r.tracers {
		if err := tr.ApplyPendingChanges(); err != nil {
			return err
		}
	}

	if r.accumGeneration != r.generation {
		clear(r.accumBuffer)
		r.accumulatedSamples = 0
		r.accumGeneration = r.generation
	}

	start := time.Now()
	r.blockAssignments = r.scheduler.Schedule(r.tracers, r.options.FrameH, r.lastFrameTime)

	var blockY uint32
	for idx, tr := range r.tracers {
		tr.Enqueue(tracer.BlockRequest{
			BlockY:             blockY,
			BlockH:             r.blockAssignments[idx],
			SamplesPerPixel:    samplesPerPixel,
			AccumulatedSamples: r.accumulatedSamples,
			MinBounces:         r.options.MinBouncesForRR,
			MaxBounces:         r.options.NumBounces,
			Exposure:           r.options.Exposure,
			NeeMode:            r.options.NeeMode,
			Tonemap:            r.options.Tonemap,
			Seed:               r.options.Seed,
			DoneChan:           r.doneChan,
			ErrChan:            r.errChan,
		})
		blockY += r.blockAssignments[idx]
	}

	var pendingRows = r.options.FrameH
	for pendingRows > 0 {
		select {
		case rows := <-r.doneChan:
			pendingRows -= rows
		case err := <-r.errChan:
			return err
		}
	}

	r.accumulatedSamples += samplesPerPixel
	r.lastFrameTime = time.Since(start).Nanoseconds()
	r.collectStats(time.Since(start))
	return nil
}

func (r *defaultRenderer) collectStats(frameTime time.Duration) {
	r.stats.RenderTime = frameTime
	r.stats.Tracers = r.stats.Tracers[:0]
	for idx, tr := range r.tracers {
		stats := tr.Stats()
		r.stats.Tracers = append(r.stats.Tracers, TracerStat{
			Id:           tr.Id(),
			IsPrimary:    idx == 0,
			BlockH:       stats.BlockH,
			FramePercent: float32(stats.BlockH) * 100.0 / float32(r.options.FrameH),
			RenderTime:   time.Duration(stats.BlockTime),
		})
	}
}
