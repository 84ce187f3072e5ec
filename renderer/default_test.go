package renderer

import (
	"errors"
	"testing"
	"time"

	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/tracer"
	"github.com/achilleasa/vega/tracer/cpu"
	"github.com/achilleasa/vega/types"
)

func TestNewDefaultValidation(t *testing.T) {
	opts := makeTestOptions()
	sc := makeTestScene()
	scheduler := tracer.NewPerfectScheduler()

	if _, err := NewDefault(nil, scheduler, []tracer.Tracer{newMockTracer()}, opts); err != ErrSceneNotDefined {
		t.Fatalf("expected ErrSceneNotDefined; got %v", err)
	}

	if _, err := NewDefault(&scene.Scene{}, scheduler, []tracer.Tracer{newMockTracer()}, opts); err != ErrCameraNotDefined {
		t.Fatalf("expected ErrCameraNotDefined; got %v", err)
	}

	if _, err := NewDefault(sc, scheduler, nil, opts); err != ErrNoTracers {
		t.Fatalf("expected ErrNoTracers; got %v", err)
	}

	setupErr := errors.New("device init failed")
	failing := newMockTracer()
	failing.setupErr = setupErr
	if _, err := NewDefault(sc, scheduler, []tracer.Tracer{failing}, opts); err != setupErr {
		t.Fatalf("expected tracer setup errors to propagate; got %v", err)
	}
}

func TestDefaultRendererAccumulatesRequestedSamples(t *testing.T) {
	opts := makeTestOptions()
	mock := newMockTracer()

	r, err := NewDefault(makeTestScene(), tracer.NewPerfectScheduler(), []tracer.Tracer{mock}, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = r.Render(); err != nil {
		t.Fatal(err)
	}

	// One sample per dispatch until the spp target is met.
	if len(mock.blockReqs) != int(opts.SamplesPerPixel) {
		t.Fatalf("expected %d block requests; got %d", opts.SamplesPerPixel, len(mock.blockReqs))
	}
	for idx, blockReq := range mock.blockReqs {
		if blockReq.SamplesPerPixel != 1 {
			t.Fatalf("expected request %d to carry 1 sample per pixel; got %d", idx, blockReq.SamplesPerPixel)
		}
		if blockReq.AccumulatedSamples != uint32(idx) {
			t.Fatalf("expected request %d to report %d accumulated samples; got %d", idx, idx, blockReq.AccumulatedSamples)
		}
		if blockReq.BlockY != 0 || blockReq.BlockH != opts.FrameH {
			t.Fatalf("expected a single tracer to get assigned the full frame; got row %d, height %d", blockReq.BlockY, blockReq.BlockH)
		}
	}

	stats := r.Stats()
	if len(stats.Tracers) != 1 {
		t.Fatalf("expected stats for 1 tracer; got %d", len(stats.Tracers))
	}
	if !stats.Tracers[0].IsPrimary || stats.Tracers[0].Id != mock.Id() {
		t.Fatalf("expected primary tracer stats for %q; got %+v", mock.Id(), stats.Tracers[0])
	}
}

func TestDefaultRendererResetsAccumulatorOnCameraUpdate(t *testing.T) {
	opts := makeTestOptions()
	mock := newMockTracer()

	sc := makeTestScene()
	r, err := NewDefault(sc, tracer.NewPerfectScheduler(), []tracer.Tracer{mock}, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = r.Render(); err != nil {
		t.Fatal(err)
	}

	// Taint the accumulation buffer; a camera change must invalidate it
	// before the next dispatch.
	mock.accumBuffer[0] = 42
	r.(*defaultRenderer).UpdateCamera(sc.Camera)

	if err = r.Render(); err != nil {
		t.Fatal(err)
	}

	if mock.accumBuffer[0] != 0 {
		t.Fatalf("expected the accumulation buffer to be cleared after a camera update; got %f", mock.accumBuffer[0])
	}

	// The sample counter restarts with the fresh accumulator.
	lastReq := mock.blockReqs[len(mock.blockReqs)-1]
	if lastReq.AccumulatedSamples != opts.SamplesPerPixel-1 {
		t.Fatalf("expected the accumulated sample counter to restart; got %d", lastReq.AccumulatedSamples)
	}

	if mock.appliedChanges == 0 {
		t.Fatal("expected the camera update to be flushed to the tracer")
	}
}

func TestDefaultRendererCompletesWithCpuTracer(t *testing.T) {
	opts := makeTestOptions()
	sc := makeTestScene()
	sc.Skybox = scene.Skybox{
		SunDirection: types.XYZW(0.5, 0.8, 0.5, 15),
		TextureIndex: -1,
	}

	r, err := NewDefault(sc, tracer.NewPerfectScheduler(), []tracer.Tracer{cpu.NewTracer("cpu-0", 2)}, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	// Drive consecutive dispatches against the real device; every block
	// request must be picked up or the frame never completes.
	renderDone := make(chan error, 1)
	go func() {
		renderDone <- r.Render()
	}()

	select {
	case err = <-renderDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("render never completed; a block request was lost")
	}
}

func TestDefaultRendererDrainsErrorsFromAllTracers(t *testing.T) {
	traceErr := errors.New("device lost")
	mock1 := newMockTracer()
	mock1.traceErr = traceErr
	mock2 := newMockTracer()
	mock2.traceErr = traceErr

	r, err := NewDefault(makeTestScene(), tracer.NewPerfectScheduler(), []tracer.Tracer{mock1, mock2}, makeTestOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = r.Render(); err != traceErr {
		t.Fatalf("expected trace errors to abort the frame; got %v", err)
	}

	// The frame aborts on the first error; the other tracer must still be
	// able to deliver its own error without a reader or its worker would
	// never shut down.
	for idx, mock := range []*mockTracer{mock1, mock2} {
		select {
		case <-mock.errSent:
		case <-time.After(5 * time.Second):
			t.Fatalf("expected tracer %d to deliver its error without blocking", idx)
		}
	}
}

func TestDefaultRendererPropagatesTraceErrors(t *testing.T) {
	traceErr := errors.New("device lost")
	mock := newMockTracer()
	mock.traceErr = traceErr

	r, err := NewDefault(makeTestScene(), tracer.NewPerfectScheduler(), []tracer.Tracer{mock}, makeTestOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = r.Render(); err != traceErr {
		t.Fatalf("expected trace errors to abort the frame; got %v", err)
	}
}

func TestDefaultRendererImageDimensions(t *testing.T) {
	opts := makeTestOptions()

	r, err := NewDefault(makeTestScene(), tracer.NewPerfectScheduler(), []tracer.Tracer{newMockTracer()}, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	img := r.Image()
	bounds := img.Bounds()
	if uint32(bounds.Dx()) != opts.FrameW || uint32(bounds.Dy()) != opts.FrameH {
		t.Fatalf("expected a %dx%d image; got %dx%d", opts.FrameW, opts.FrameH, bounds.Dx(), bounds.Dy())
	}
}

func makeTestOptions() Options {
	return Options{
		FrameW:          4,
		FrameH:          4,
		SamplesPerPixel: 3,
		NumBounces:      2,
		Exposure:        1,
	}
}

func makeTestScene() *scene.Scene {
	return &scene.Scene{
		Camera: scene.NewCamera(types.XYZ(0, 0, 0)),
	}
}

// A tracer that acknowledges block requests without doing any work.
type mockTracer struct {
	setupErr error
	traceErr error

	accumBuffer []float32
	frameBuffer []uint8

	blockReqs      []tracer.BlockRequest
	appliedChanges int
	pendingChanges int

	// Closed once traceErr has been delivered.
	errSent chan struct{}

	stats tracer.Stats
}

func newMockTracer() *mockTracer {
	return &mockTracer{
		errSent: make(chan struct{}),
	}
}

func (m *mockTracer) Id() string {
	return "mock"
}

func (m *mockTracer) Close() {
}

func (m *mockTracer) SpeedEstimate() float32 {
	return 1
}

func (m *mockTracer) Setup(frameW, frameH uint32, accumBuffer []float32, frameBuffer []uint8) error {
	if m.setupErr != nil {
		return m.setupErr
	}
	m.accumBuffer = accumBuffer
	m.frameBuffer = frameBuffer
	return nil
}

func (m *mockTracer) Enqueue(blockReq tracer.BlockRequest) {
	m.blockReqs = append(m.blockReqs, blockReq)
	m.stats.BlockH = blockReq.BlockH
	m.stats.BlockTime = 1

	go func() {
		if m.traceErr != nil {
			blockReq.ErrChan <- m.traceErr
			close(m.errSent)
			return
		}
		blockReq.DoneChan <- blockReq.BlockH
	}()
}

func (m *mockTracer) AppendChange(changeType tracer.ChangeType, payload interface{}) {
	m.pendingChanges++
}

func (m *mockTracer) ApplyPendingChanges() error {
	m.appliedChanges += m.pendingChanges
	m.pendingChanges = 0
	return nil
}

func (m *mockTracer) Stats() *tracer.Stats {
	return &m.stats
}
