package scheduler

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"
)

type phaseTiming struct {
	last  time.Duration
	total time.Duration
	max   time.Duration
}

// Profiler times each scheduler phase from the state transitions and keeps
// per-frame counters next to running totals.
type Profiler struct {
	phases  [Submitted + 1]phaseTiming
	current State
	entered time.Time
	frames  int

	counts map[string]int
	totals map[string]int
}

func NewProfiler() *Profiler {
	return &Profiler{
		counts: make(map[string]int),
		totals: make(map[string]int),
	}
}

func (p *Profiler) beginFrame() {
	p.frames++
	for i := range p.phases {
		p.phases[i].last = 0
	}
	clear(p.counts)
}

// enter closes the running phase and starts timing s. Idle is not timed.
func (p *Profiler) enter(s State, now time.Time) {
	if p.current != Idle {
		ph := &p.phases[p.current]
		d := now.Sub(p.entered)
		ph.last += d
		ph.total += d
		ph.max = max(ph.max, ph.last)
	}
	p.current = s
	p.entered = now
}

// Count records a per-frame counter and adds it to the running total.
func (p *Profiler) Count(name string, n int) {
	p.counts[name] = n
	p.totals[name] += n
}

func (p *Profiler) Frames() int {
	return p.frames
}

// Last returns the phase timings of the most recent frame.
func (p *Profiler) Last() map[State]time.Duration {
	out := make(map[State]time.Duration, len(p.phases)-1)
	for s := CollectingDirty; s <= Submitted; s++ {
		out[s] = p.phases[s].last
	}
	return out
}

// Average is the mean time spent in s per frame.
func (p *Profiler) Average(s State) time.Duration {
	if p.frames == 0 || s > Submitted {
		return 0
	}
	return p.phases[s].total / time.Duration(p.frames)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d.Microseconds())/1000.0)
}

func (p *Profiler) GetStatsString() string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Phase", "Last", "Avg", "Max"})
	for s := CollectingDirty; s <= Submitted; s++ {
		ph := p.phases[s]
		table.Append([]string{s.String(), ms(ph.last), ms(p.Average(s)), ms(ph.max)})
	}
	table.SetFooter([]string{"", "", "FRAMES", fmt.Sprintf("%d", p.frames)})
	table.Render()

	keys := make([]string, 0, len(p.totals))
	for k := range p.totals {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	counters := tablewriter.NewWriter(&buf)
	counters.SetAutoFormatHeaders(false)
	counters.SetHeader([]string{"Counter", "Last", "Total"})
	for _, k := range keys {
		counters.Append([]string{k, fmt.Sprintf("%d", p.counts[k]), fmt.Sprintf("%d", p.totals[k])})
	}
	counters.Render()

	return buf.String()
}
