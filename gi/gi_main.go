package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli"

	"github.com/gekko3d/gicache/gi/cmd"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	sceneFlags := []cli.Flag{
		cli.IntFlag{
			Name:  "boxes",
			Value: 64,
			Usage: "number of boxes in the demo scene",
		},
		cli.IntFlag{
			Name:  "lights",
			Value: 4,
			Usage: "number of orbiting point lights",
		},
		cli.Int64Flag{
			Name:  "seed",
			Value: 1,
			Usage: "random seed for the demo scene",
		},
	}

	app := cli.NewApp()
	app.Name = "gicache"
	app.Usage = "surface card and radiance probe cache for global illumination"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML configuration file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "simulate",
			Usage: "run the cache against a headless backend and report per-frame work",
			Description: `
Build a procedural scene, animate it for a number of frames and tick the cache
against a backend that accepts work without a GPU. The table shows how the
per-frame budgets drain the dirty card and probe sets.`,
			Flags: append([]cli.Flag{
				cli.IntFlag{
					Name:  "frames, n",
					Value: 120,
					Usage: "number of frames to simulate",
				},
				cli.IntFlag{
					Name:  "report-every",
					Value: 10,
					Usage: "add a table row every N frames",
				},
				cli.Float64Flag{
					Name:  "moving",
					Value: 0.1,
					Usage: "fraction of boxes that move every frame",
				},
				cli.IntFlag{
					Name:  "cards-per-frame",
					Usage: "override the card capture budget",
				},
				cli.IntFlag{
					Name:  "probes-per-frame",
					Usage: "override the probe update budget",
				},
				cli.IntFlag{
					Name:  "fail-every",
					Usage: "fail every Nth card capture",
				},
				cli.IntFlag{
					Name:  "width",
					Value: 1280,
					Usage: "viewport width used for probe placement",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 720,
					Usage: "viewport height used for probe placement",
				},
				cli.BoolFlag{
					Name:  "profile",
					Usage: "print scheduler scope timings",
				},
				cli.StringFlag{
					Name:  "dump, o",
					Usage: "write the atlas occupancy map (.png, .webp or .tga)",
				},
				cli.IntFlag{
					Name:  "dump-scale",
					Value: 8,
					Usage: "pixels per atlas tile in the occupancy map",
				},
			}, sceneFlags...),
			Action: cmd.Simulate,
		},
		{
			Name:  "view",
			Usage: "open a window showing the live card atlas",
			Flags: append([]cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 1280,
					Usage: "window width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 720,
					Usage: "window height",
				},
			}, sceneFlags...),
			Action: cmd.View,
		},
		{
			Name:   "config",
			Usage:  "print the effective configuration as YAML",
			Action: cmd.PrintConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
