package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func testApp() *cli.App {
	app := cli.NewApp()
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "v"},
		cli.BoolFlag{Name: "vv"},
		cli.StringFlag{Name: "config, c"},
	}
	app.Commands = []cli.Command{
		{
			Name: "simulate",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "frames, n", Value: 5},
				cli.IntFlag{Name: "report-every", Value: 1},
				cli.Float64Flag{Name: "moving", Value: 0.5},
				cli.IntFlag{Name: "cards-per-frame"},
				cli.IntFlag{Name: "probes-per-frame"},
				cli.IntFlag{Name: "fail-every"},
				cli.IntFlag{Name: "width", Value: 320},
				cli.IntFlag{Name: "height", Value: 180},
				cli.BoolFlag{Name: "profile"},
				cli.StringFlag{Name: "dump, o"},
				cli.IntFlag{Name: "dump-scale", Value: 2},
				cli.IntFlag{Name: "boxes", Value: 9},
				cli.IntFlag{Name: "lights", Value: 2},
				cli.Int64Flag{Name: "seed", Value: 1},
			},
			Action: Simulate,
		},
		{
			Name:   "config",
			Action: PrintConfig,
		},
	}
	return app
}

func TestSimulateWritesOccupancy(t *testing.T) {
	out := filepath.Join(t.TempDir(), "atlas.png")
	err := testApp().Run([]string{"gicache", "simulate", "--cards-per-frame", "4", "--fail-every", "3", "--dump", out})
	require.NoError(t, err)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSimulateRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("atlas:\n  tile_size: 0\n"), 0o644))

	err := testApp().Run([]string{"gicache", "--config", path, "simulate"})
	assert.Error(t, err)
}

func TestSimulateUnknownDumpFormat(t *testing.T) {
	out := filepath.Join(t.TempDir(), "atlas.bmp")
	err := testApp().Run([]string{"gicache", "simulate", "-n", "1", "--dump", out})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported occupancy format")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no file is left behind")
}

func TestPrintConfig(t *testing.T) {
	assert.NoError(t, testApp().Run([]string{"gicache", "-v", "config"}))
}
