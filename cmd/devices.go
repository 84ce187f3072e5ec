package cmd

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"github.com/achilleasa/vega/tracer"
	"github.com/achilleasa/vega/tracer/cpu"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// The backend-selection environment variable. When set, only the named
// backend is considered when attaching trace devices.
const forceBackendVar = "VEGA_FORCE_BACKEND"

// The denoiser installation path variable. The value is handed verbatim to
// the denoiser collaborator when one is linked into the build; the core
// never interprets it.
const denoiserPathVar = "VEGA_DENOISER_PATH"

// List the trace devices available to the render commands.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Device", "Backend", "Workers", "Speed estimate"})

	tracers, err := makeTracers(ctx.Int("workers"))
	if err != nil {
		return err
	}
	for _, tr := range tracers {
		table.Append([]string{
			tr.Id(),
			"cpu",
			fmt.Sprintf("%d", runtime.NumCPU()),
			fmt.Sprintf("%3.1f", tr.SpeedEstimate()),
		})
		tr.Close()
	}
	table.Render()

	logger.Noticef("available trace devices\n%s", buf.String())
	return nil
}

// Instantiate the trace devices selected by the backend environment
// variable. An unknown forced backend degrades to the cpu device so that
// rendering can proceed with a diagnostic.
func makeTracers(numWorkers int) ([]tracer.Tracer, error) {
	backend := os.Getenv(forceBackendVar)
	switch backend {
	case "", "cpu":
	default:
		logger.Warningf("unsupported backend %q requested via %s; falling back to cpu", backend, forceBackendVar)
	}

	return []tracer.Tracer{cpu.NewTracer("cpu-0", numWorkers)}, nil
}
