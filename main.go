package main

import (
	"os"

	"github.com/achilleasa/vega/cmd"
	"github.com/achilleasa/vega/log"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	renderFlags := []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Value: 512,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 512,
			Usage: "frame height",
		},
		cli.IntFlag{
			Name:  "spp",
			Value: 16,
			Usage: "samples per pixel",
		},
		cli.IntFlag{
			Name:  "num-bounces",
			Value: 4,
			Usage: "number of indirect ray bounces",
		},
		cli.IntFlag{
			Name:  "rr-bounces",
			Value: 2,
			Usage: "number of bounces before applying russian roulette; 0 disables RR",
		},
		cli.Float64Flag{
			Name:  "exposure",
			Value: 1.0,
			Usage: "camera exposure for tone-mapping",
		},
		cli.StringFlag{
			Name:  "nee",
			Value: "mis",
			Usage: "direct light sampling mode (off, nee, mis)",
		},
		cli.StringFlag{
			Name:  "tonemap",
			Value: "aces",
			Usage: "tone-mapping operator (none, reinhard, aces, aces-overexposed, aces-hill, neutral, uncharted)",
		},
		cli.IntFlag{
			Name:  "workers",
			Value: 0,
			Usage: "number of integrator workers; 0 selects one per core",
		},
		cli.IntFlag{
			Name:  "seed",
			Value: 0,
			Usage: "seed for the per-pixel sample sequences",
		},
		cli.BoolFlag{
			Name:  "denoise",
			Usage: "denoise the accumulated frame using the external denoiser",
		},
	}

	app := cli.NewApp()
	app.Name = "vega"
	app.Usage = "render scenes using path tracing"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "compile",
			Usage: "compile text scene representation into a binary compressed format",
			Description: `
Parse a scene definition from a wavefront obj file, build a BVH tree to optimize
ray intersection tests and package scene elements in a renderer-friendly format.

The optimized scene data is then written to a zip archive which can be supplied
as an argument to the render commands.`,
			ArgsUsage: "scene_file1.obj scene_file2.obj ...",
			Action:    cmd.CompileScene,
		},
		{
			Name:      "info",
			Usage:     "show information about a compiled scene",
			ArgsUsage: "scene.zip",
			Action:    cmd.ShowSceneInfo,
		},
		{
			Name:   "devices",
			Usage:  "list available trace devices",
			Action: cmd.ListDevices,
		},
		{
			Name:        "render",
			Usage:       "render single frame",
			Description: `Render a single frame and save it as a PNG image.`,
			ArgsUsage:   "scene_file.obj|scene_file.zip",
			Flags: append(renderFlags,
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
			),
			Action: cmd.RenderFrame,
		},
		{
			Name:        "interactive",
			Usage:       "render interactive view of the scene",
			Description: `Progressively render the scene into an opengl window with camera controls.`,
			ArgsUsage:   "scene_file.obj|scene_file.zip",
			Flags:       renderFlags,
			Action:      cmd.RenderInteractive,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.New("vega").Errorf("%v", err)
		os.Exit(1)
	}
}
