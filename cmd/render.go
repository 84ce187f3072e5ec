package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"os"
	"runtime"
	"time"

	"github.com/achilleasa/vega/asset/scene/reader"
	"github.com/achilleasa/vega/renderer"
	"github.com/achilleasa/vega/tracer"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Parse renderer options shared by the frame and interactive commands.
func parseRenderOptions(ctx *cli.Context) (renderer.Options, error) {
	opts := renderer.Options{
		FrameW:          uint32(ctx.Int("width")),
		FrameH:          uint32(ctx.Int("height")),
		SamplesPerPixel: uint32(ctx.Int("spp")),
		Exposure:        float32(ctx.Float64("exposure")),
		NumBounces:      uint32(ctx.Int("num-bounces")),
		MinBouncesForRR: uint32(ctx.Int("rr-bounces")),
		Seed:            uint32(ctx.Int("seed")),
	}

	var err error
	if opts.NeeMode, err = tracer.ParseNeeMode(ctx.String("nee")); err != nil {
		return opts, err
	}
	if opts.Tonemap, err = tracer.ParseTonemap(ctx.String("tonemap")); err != nil {
		return opts, err
	}

	if opts.MinBouncesForRR == 0 || opts.MinBouncesForRR >= opts.NumBounces {
		logger.Notice("disabling RR for path elimination")
		opts.MinBouncesForRR = opts.NumBounces + 1
	}

	if ctx.Bool("denoise") {
		// The denoiser is an optional external collaborator; this build
		// does not link one so the toggle only surfaces its install path.
		logger.Warningf("no denoiser linked into this build; ignoring -denoise (%s=%q)", denoiserPathVar, os.Getenv(denoiserPathVar))
	}

	return opts, nil
}

// Render a still frame and save it as a PNG image.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := parseRenderOptions(ctx)
	if err != nil {
		return err
	}

	// Load scene
	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	sc, err := reader.ReadScene(ctx.Args().First())
	if err != nil {
		return err
	}

	tracers, err := makeTracers(ctx.Int("workers"))
	if err != nil {
		return err
	}

	// Create renderer
	r, err := renderer.NewDefault(sc, tracer.NewPerfectScheduler(), tracers, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	if err = r.Render(); err != nil {
		return err
	}
	logger.Noticef("rendered %d samples per pixel in %s", opts.SamplesPerPixel, time.Since(start))

	// Display stats
	displayFrameStats(r.Stats())

	// Export PNG
	imgFile := ctx.String("out")
	f, err := os.Create(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err = png.Encode(f, r.Image()); err != nil {
		return fmt.Errorf("render: error encoding png file: %s", err.Error())
	}
	logger.Noticef("wrote frame to %s", imgFile)

	return nil
}

// Render a continuously refined view of the scene in an opengl window.
func RenderInteractive(ctx *cli.Context) error {
	setupLogging(ctx)

	// The gl context and all event callbacks are bound to the main thread.
	runtime.LockOSThread()

	opts, err := parseRenderOptions(ctx)
	if err != nil {
		return err
	}

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	sc, err := reader.ReadScene(ctx.Args().First())
	if err != nil {
		return err
	}

	tracers, err := makeTracers(ctx.Int("workers"))
	if err != nil {
		return err
	}

	r, err := renderer.NewInteractive(sc, tracer.NewPerfectScheduler(), tracers, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Render()
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Device", "Primary", "Block height", "% of frame", "Render time"})
	for _, stat := range stats.Tracers {
		table.Append([]string{
			stat.Id,
			fmt.Sprintf("%t", stat.IsPrimary),
			fmt.Sprintf("%d", stat.BlockH),
			fmt.Sprintf("%02.1f %%", stat.FramePercent),
			stat.RenderTime.String(),
		})
	}
	table.SetFooter([]string{"", "", "", "TOTAL", stats.RenderTime.String()})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
