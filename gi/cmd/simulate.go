package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	gicache "github.com/gekko3d/gicache"
	"github.com/gekko3d/gicache/gi/atlas"
	"github.com/gekko3d/gicache/gi/demo"
	"github.com/gekko3d/gicache/gi/scheduler"
)

// simTotals accumulates FrameStats over a run.
type simTotals struct {
	frames          int
	cardsSubmitted  int
	cardsFailed     int
	cardsDeferred   int
	probesSubmitted int
	probesRefreshed int
	probesFailed    int
	probesPlaced    int
	probesEvicted   int
	lightsUpdated   int
}

func (t *simTotals) add(st gicache.FrameStats) {
	t.frames++
	t.cardsSubmitted += st.CardsSubmitted
	t.cardsFailed += st.CardsFailed
	t.cardsDeferred += st.CardsDeferred
	t.probesSubmitted += st.ProbesSubmitted
	t.probesRefreshed += st.ProbesRefreshed
	t.probesFailed += st.ProbesFailed
	t.probesPlaced += st.Placement.Placed
	t.probesEvicted += st.Placement.Evicted
	t.lightsUpdated += st.LightsUpdated
}

// Simulate drives the demo scene against a GPU-less backend and reports how
// the per-frame budgets drain the dirty sets.
func Simulate(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.IsSet("cards-per-frame") {
		cfg.Budget.CardsPerFrame = ctx.Int("cards-per-frame")
	}
	if ctx.IsSet("probes-per-frame") {
		cfg.Budget.ProbesPerFrame = ctx.Int("probes-per-frame")
	}

	backend := scheduler.NewNullBackend()
	backend.Record = false
	backend.FailEvery = ctx.Int("fail-every")

	gi, err := gicache.NewContext(cfg, backend, logger)
	if err != nil {
		return err
	}

	opts := demo.DefaultOptions()
	opts.Boxes = ctx.Int("boxes")
	opts.Lights = ctx.Int("lights")
	opts.Seed = ctx.Int64("seed")
	opts.MovingFraction = float32(ctx.Float64("moving"))
	scene, err := demo.Build(gi, opts)
	if err != nil {
		return err
	}
	logger.Infof("demo scene: %d boxes, %d lights, %d cards", scene.Boxes(), opts.Lights, gi.Registry().CardCount())

	frames := ctx.Int("frames")
	every := max(ctx.Int("report-every"), 1)
	width, height := ctx.Int("width"), ctx.Int("height")

	var (
		buf    bytes.Buffer
		totals simTotals
	)
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Cards sent", "Cards pending", "Deferred", "Failed", "Probes sent", "Probes pending", "Probes live", "Atlas"})

	start := time.Now()
	for f := 1; f <= frames; f++ {
		if err := scene.Animate(gi.Frame() + 1); err != nil {
			return err
		}
		st := gi.Tick(gicache.FrameContext{
			Viewport: gicache.Viewport{Width: width, Height: height},
			Sampler:  scene.Sampler(width, height),
		})
		totals.add(st)

		if f%every == 0 || f == frames {
			table.Append([]string{
				fmt.Sprintf("%d", st.Frame),
				fmt.Sprintf("%d", st.CardsSubmitted),
				fmt.Sprintf("%d", st.PendingCardsAfter),
				fmt.Sprintf("%d", st.CardsDeferred),
				fmt.Sprintf("%d", st.CardsFailed),
				fmt.Sprintf("%d", st.ProbesSubmitted+st.ProbesRefreshed),
				fmt.Sprintf("%d", st.PendingProbesAfter),
				fmt.Sprintf("%d", gi.Probes().ActiveCount()),
				fmt.Sprintf("%02.1f %%", st.AtlasUsage*100),
			})
		}
	}
	elapsed := time.Since(start)

	table.SetFooter([]string{
		"TOTAL",
		fmt.Sprintf("%d", totals.cardsSubmitted),
		"",
		fmt.Sprintf("%d", totals.cardsDeferred),
		fmt.Sprintf("%d", totals.cardsFailed),
		fmt.Sprintf("%d", totals.probesSubmitted+totals.probesRefreshed),
		"",
		fmt.Sprintf("%d", totals.probesPlaced),
		elapsed.Round(time.Microsecond).String(),
	})
	table.Render()
	fmt.Print(buf.String())
	logger.Infof("%d frames: %d probe failures, %d probes evicted, %d light updates",
		totals.frames, totals.probesFailed, totals.probesEvicted, totals.lightsUpdated)

	if ctx.Bool("profile") {
		fmt.Println(gi.Scheduler().Profiler().GetStatsString())
	}

	if out := ctx.String("dump"); out != "" {
		if err := dumpOccupancy(gi, out, ctx.Int("dump-scale")); err != nil {
			return err
		}
		logger.Infof("atlas occupancy written to %s", out)
	}
	return nil
}

func dumpOccupancy(gi *gicache.Context, path string, scale int) (err error) {
	format := atlas.FormatFromPath(path)
	if err := atlas.CheckFormat(format); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	img := atlas.OccupancyImage(gi.Registry().Allocator(), scale)
	return atlas.WriteOccupancy(f, img, format)
}
