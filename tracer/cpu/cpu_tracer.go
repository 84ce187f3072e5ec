package cpu

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/log"
	"github.com/achilleasa/vega/tracer"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"
)

// The gamma value used when encoding frame buffer pixels for display.
const displayGamma float32 = 2.2

type pendingChange struct {
	changeType tracer.ChangeType
	payload    interface{}
}

// A trace device that runs the path integrator on the host using a bounded
// pool of goroutines. Each worker owns a span of block rows for the duration
// of a dispatch; rows never overlap so accumulation needs no locking.
type cpuTracer struct {
	sync.Mutex
	wg sync.WaitGroup

	logger log.Logger

	// The tracer's id.
	id string

	// Number of concurrent integrator workers.
	numWorkers int

	// The scene to be rendered and the camera generating primary rays.
	sc     *scene.Scene
	camera *scene.Camera

	// The output frame dimensions and the shared render targets. The
	// accumulation buffer stores 3 floats per pixel and the frame buffer
	// 4 bytes per pixel (RGBA).
	frameW      uint32
	frameH      uint32
	accumBuffer []float32
	frameBuffer []uint8

	// Queued state changes; applied between dispatches.
	updateBuffer []pendingChange

	stats tracer.Stats

	// A channel for receiving block requests from the renderer.
	blockReqChan chan tracer.BlockRequest

	// A channel for signaling the worker to exit.
	closeChan chan struct{}
}

// Create a new cpu tracer. A non-positive worker count selects one worker
// per available core.
func NewTracer(id string, numWorkers int) tracer.Tracer {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &cpuTracer{
		logger:       log.New(fmt.Sprintf("cpu tracer (%s)", id)),
		id:           id,
		numWorkers:   numWorkers,
		blockReqChan: make(chan tracer.BlockRequest),
		closeChan:    make(chan struct{}),
	}
}

// Get tracer id.
func (tr *cpuTracer) Id() string {
	return tr.id
}

// Get speed estimate.
func (tr *cpuTracer) SpeedEstimate() float32 {
	return float32(tr.numWorkers)
}

// Shutdown and cleanup tracer.
func (tr *cpuTracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	if tr.accumBuffer == nil {
		return
	}

	close(tr.closeChan)
	tr.wg.Wait()
	tr.accumBuffer = nil
	tr.frameBuffer = nil
}

// Attach tracer to its render targets and start processing block requests.
func (tr *cpuTracer) Setup(frameW, frameH uint32, accumBuffer []float32, frameBuffer []uint8) error {
	tr.Lock()
	defer tr.Unlock()

	if tr.accumBuffer != nil {
		return ErrAlreadySetup
	}
	if uint32(len(accumBuffer)) != frameW*frameH*3 || uint32(len(frameBuffer)) != frameW*frameH*4 {
		return ErrBufferMismatch
	}

	tr.frameW = frameW
	tr.frameH = frameH
	tr.accumBuffer = accumBuffer
	tr.frameBuffer = frameBuffer

	readyChan := make(chan struct{})
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		close(readyChan)
		for {
			select {
			case blockReq := <-tr.blockReqChan:
				if err := tr.process(blockReq); err != nil {
					blockReq.ErrChan <- err
					continue
				}
				blockReq.DoneChan <- blockReq.BlockH
			case <-tr.closeChan:
				return
			}
		}
	}()

	// Wait for worker goroutine to start
	<-readyChan
	return nil
}

// Enqueue block request. Blocks until the worker picks up the request so
// that callers waiting on the request's done channel never wait for a
// request that was silently lost. Requests enqueued while the tracer shuts
// down are discarded.
func (tr *cpuTracer) Enqueue(blockReq tracer.BlockRequest) {
	select {
	case tr.blockReqChan <- blockReq:
	case <-tr.closeChan:
	}
}

// Append a change to the tracer's update buffer.
func (tr *cpuTracer) AppendChange(changeType tracer.ChangeType, payload interface{}) {
	tr.Lock()
	defer tr.Unlock()
	tr.updateBuffer = append(tr.updateBuffer, pendingChange{changeType, payload})
}

// Apply all pending changes from the update buffer.
func (tr *cpuTracer) ApplyPendingChanges() error {
	tr.Lock()
	defer tr.Unlock()

	for _, change := range tr.updateBuffer {
		switch change.changeType {
		case tracer.SetScene:
			sc, ok := change.payload.(*scene.Scene)
			if !ok {
				return ErrInvalidChange
			}
			tr.sc = sc
			tr.camera = sc.Camera
			tr.logger.Infof("loaded scene data: %d triangles, %d bvh nodes", len(sc.MaterialIndex), len(sc.BvhNodeList))
		case tracer.UpdateCamera:
			camera, ok := change.payload.(*scene.Camera)
			if !ok {
				return ErrInvalidChange
			}
			tr.camera = camera
		default:
			return ErrInvalidChange
		}
	}
	tr.updateBuffer = tr.updateBuffer[:0]

	return nil
}

// Retrieve last frame statistics.
func (tr *cpuTracer) Stats() *tracer.Stats {
	return &tr.stats
}

// Process block request. Rows are handed to the worker pool one at a time;
// each row writes a disjoint slice of the shared buffers.
func (tr *cpuTracer) process(blockReq tracer.BlockRequest) error {
	tr.Lock()
	defer tr.Unlock()

	if tr.accumBuffer == nil {
		return ErrNotSetup
	}
	if tr.sc == nil || tr.camera == nil {
		return ErrNoSceneData
	}

	start := time.Now()

	var g errgroup.Group
	g.SetLimit(tr.numWorkers)
	for row := uint32(0); row < blockReq.BlockH; row++ {
		y := blockReq.BlockY + row
		g.Go(func() error {
			tr.processRow(y, &blockReq)
			return nil
		})
	}
	_ = g.Wait()

	tr.stats.BlockH = blockReq.BlockH
	tr.stats.BlockTime = time.Since(start).Nanoseconds()
	return nil
}

// Integrate every pixel of one frame row and refresh its frame buffer span.
func (tr *cpuTracer) processRow(y uint32, blockReq *tracer.BlockRequest) {
	// Use a camera snapshot so mid-dispatch updates cannot tear a ray basis.
	camera := *tr.camera
	sc := *tr.sc
	sc.Camera = &camera

	totalSamples := blockReq.AccumulatedSamples + blockReq.SamplesPerPixel

	for x := uint32(0); x < tr.frameW; x++ {
		pixelIndex := y*tr.frameW + x

		var radiance types.Vec3
		for s := uint32(0); s < blockReq.SamplesPerPixel; s++ {
			smp := newSampler(pixelIndex, blockReq.AccumulatedSamples+s, blockReq.Seed)
			sample := tracePixel(&sc, tr.frameW, tr.frameH, x, y, &smp, blockReq.MinBounces, blockReq.MaxBounces, blockReq.NeeMode)
			radiance = radiance.Add(maskNan(sample))
		}

		accumIndex := pixelIndex * 3
		tr.accumBuffer[accumIndex] += radiance[0]
		tr.accumBuffer[accumIndex+1] += radiance[1]
		tr.accumBuffer[accumIndex+2] += radiance[2]

		average := types.XYZ(
			tr.accumBuffer[accumIndex],
			tr.accumBuffer[accumIndex+1],
			tr.accumBuffer[accumIndex+2],
		).Mul(blockReq.Exposure / float32(totalSamples))

		color := applyTonemap(blockReq.Tonemap, average)

		fbIndex := pixelIndex * 4
		tr.frameBuffer[fbIndex] = encodeChannel(color[0])
		tr.frameBuffer[fbIndex+1] = encodeChannel(color[1])
		tr.frameBuffer[fbIndex+2] = encodeChannel(color[2])
		tr.frameBuffer[fbIndex+3] = 255
	}
}

// Gamma encode a tonemapped channel to a display byte.
func encodeChannel(v float32) uint8 {
	return uint8(clamp01(math32.Pow(v, 1/displayGamma))*255.0 + 0.5)
}
