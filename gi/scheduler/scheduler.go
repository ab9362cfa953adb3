package scheduler

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gicache/gi/cards"
	"github.com/gekko3d/gicache/gi/core"
	"github.com/gekko3d/gicache/gi/log"
	"github.com/gekko3d/gicache/gi/probes"
)

// Weights shape the priority of pending work:
// Distance/(1+d) + Recency*min(age, RecencyHorizon)/RecencyHorizon, plus
// VisibleBonus when the bounds are inside the camera frustum.
type Weights struct {
	Distance       float32
	Recency        float32
	RecencyHorizon uint64
	VisibleBonus   float32
}

func DefaultWeights() Weights {
	return Weights{Distance: 1, Recency: 0.5, RecencyHorizon: 120, VisibleBonus: 0.25}
}

type Options struct {
	CardBudget  int
	ProbeBudget int
	Weights     Weights
	// RefreshCleanProbes spends leftover probe budget on clean probes so
	// radiance keeps converging.
	RefreshCleanProbes bool
	CaptureDepth       float32
}

// FrameInput is the per-frame context the scheduler needs for priorities.
type FrameInput struct {
	Frame  uint64
	Camera *core.CameraState
}

type FrameStats struct {
	Frame uint64

	PendingCardsBefore  int
	PendingCardsAfter   int
	PendingProbesBefore int
	PendingProbesAfter  int

	CardsSubmitted  int
	CardsFailed     int
	CardsDeferred   int
	ProbesSubmitted int
	ProbesRefreshed int
	ProbesFailed    int

	AtlasUsage   float32
	ActiveProbes int
	Timings      map[State]time.Duration
}

// Scheduler runs one Idle -> CollectingDirty -> Prioritizing -> Batching ->
// Submitted -> Idle cycle per Tick. Pending cards are the registry's dirty set
// and pending probes the cache's dirty probes; an id leaves pending only after
// the backend accepted it.
type Scheduler struct {
	logger  log.Logger
	opts    Options
	reg     *cards.Registry
	cache   *probes.Cache
	backend Backend

	state    State
	history  []State
	profiler *Profiler

	incomingCards  []core.CardId
	incomingProbes []probes.ProbeId
	swappers       []core.Swapper
}

func New(reg *cards.Registry, cache *probes.Cache, backend Backend, opts Options, logger log.Logger) *Scheduler {
	if opts.Weights.RecencyHorizon == 0 {
		opts.Weights.RecencyHorizon = DefaultWeights().RecencyHorizon
	}
	return &Scheduler{
		logger:   log.OrNop(logger),
		opts:     opts,
		reg:      reg,
		cache:    cache,
		backend:  backend,
		profiler: NewProfiler(),
		history:  make([]State, 0, 6),
	}
}

func (s *Scheduler) State() State {
	return s.state
}

// Transitions returns the states visited during the last Tick.
func (s *Scheduler) Transitions() []State {
	return append([]State(nil), s.history...)
}

func (s *Scheduler) Profiler() *Profiler {
	return s.profiler
}

func (s *Scheduler) Options() Options {
	return s.opts
}

func (s *Scheduler) transition(to State) {
	if s.state.next() != to {
		s.logger.Errorf("illegal transition %s -> %s", s.state, to)
	}
	s.state = to
	s.history = append(s.history, to)
	s.profiler.enter(to, time.Now())
}

// EnqueueCard queues a card for the next CollectingDirty phase.
func (s *Scheduler) EnqueueCard(id core.CardId) {
	s.incomingCards = append(s.incomingCards, id)
}

func (s *Scheduler) EnqueueProbe(id probes.ProbeId) {
	s.incomingProbes = append(s.incomingProbes, id)
}

// ReportCaptureFailure re-enqueues a card whose asynchronous capture did not complete.
func (s *Scheduler) ReportCaptureFailure(id core.CardId) {
	s.logger.Warnf("capture of %s failed asynchronously, re-enqueued", id)
	s.EnqueueCard(id)
}

// RegisterBuffered adds a double-buffered resource to the end-of-frame swap.
func (s *Scheduler) RegisterBuffered(sw core.Swapper) {
	for _, have := range s.swappers {
		if have == sw {
			return
		}
	}
	s.swappers = append(s.swappers, sw)
}

// Forget drops queued ids of destroyed cards.
func (s *Scheduler) Forget(ids []core.CardId) {
	if len(ids) == 0 || len(s.incomingCards) == 0 {
		return
	}
	gone := make(map[core.CardId]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}
	kept := s.incomingCards[:0]
	for _, id := range s.incomingCards {
		if _, ok := gone[id]; !ok {
			kept = append(kept, id)
		}
	}
	s.incomingCards = kept
}

// PendingCards counts dirty cards plus queued ids not yet merged.
func (s *Scheduler) PendingCards() int {
	n := s.reg.DirtyCount()
	seen := make(map[core.CardId]struct{}, len(s.incomingCards))
	for _, id := range s.incomingCards {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c, ok := s.reg.Card(id); ok && !c.PendingUpdate {
			n++
		}
	}
	return n
}

func (s *Scheduler) PendingProbes() int {
	n := len(s.cache.DirtyIds())
	seen := make(map[probes.ProbeId]struct{}, len(s.incomingProbes))
	for _, id := range s.incomingProbes {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := s.cache.Get(id); ok && !p.Dirty {
			n++
		}
	}
	return n
}

// Tick runs one full cycle and swaps every double-buffered resource once.
func (s *Scheduler) Tick(in FrameInput) FrameStats {
	s.history = s.history[:0]
	s.profiler.beginFrame()
	st := FrameStats{Frame: in.Frame}

	var planes [6]mgl32.Vec4
	if in.Camera != nil {
		planes = in.Camera.Frustum()
	}

	s.transition(CollectingDirty)
	s.collect()
	st.PendingCardsBefore = s.reg.DirtyCount()
	dirtyProbes := s.cache.DirtyIds()
	st.PendingProbesBefore = len(dirtyProbes)

	s.transition(Prioritizing)
	cardOrder := s.reg.BuildUpdateBatch(0, s.cardPriority(in, planes))
	probeOrder := s.cache.BuildUpdateQueue(0, s.probePriority(in, planes))

	s.transition(Batching)
	cardBatch := s.batchCards(cardOrder, &st)
	probeBatch, refreshed := s.batchProbes(probeOrder)
	st.ProbesRefreshed = refreshed

	s.transition(Submitted)
	s.submitCards(in.Frame, cardBatch, &st)
	written := s.submitProbes(in.Frame, probeBatch, &st)
	s.swap(written)

	s.transition(Idle)

	st.PendingCardsAfter = s.reg.DirtyCount()
	st.PendingProbesAfter = len(s.cache.DirtyIds())
	st.AtlasUsage = s.reg.AtlasUsage()
	st.ActiveProbes = s.cache.ActiveCount()

	s.profiler.Count("cards", st.CardsSubmitted)
	s.profiler.Count("cards_failed", st.CardsFailed)
	s.profiler.Count("cards_deferred", st.CardsDeferred)
	s.profiler.Count("probes", st.ProbesSubmitted)
	s.profiler.Count("probes_refreshed", st.ProbesRefreshed)
	st.Timings = s.profiler.Last()

	if st.CardsSubmitted > 0 || st.ProbesSubmitted > 0 {
		s.logger.Debugf("frame %d: %d cards (%d pending), %d probes (%d pending)",
			in.Frame, st.CardsSubmitted, st.PendingCardsAfter, st.ProbesSubmitted, st.PendingProbesAfter)
	}
	return st
}

// collect merges queued ids into the dirty sets. Stale ids are dropped.
func (s *Scheduler) collect() {
	for _, id := range s.incomingCards {
		s.reg.MarkDirty(id)
	}
	s.incomingCards = s.incomingCards[:0]
	for _, id := range s.incomingProbes {
		s.cache.MarkDirty(id)
	}
	s.incomingProbes = s.incomingProbes[:0]
}

func (s *Scheduler) score(camera *core.CameraState, planes [6]mgl32.Vec4, bounds core.AABB, age uint64) float32 {
	w := s.opts.Weights
	var p float32
	if camera != nil {
		p += w.Distance / (1 + camera.Distance(bounds.Center()))
		if w.VisibleBonus != 0 && core.AABBInFrustum(bounds, planes) {
			p += w.VisibleBonus
		}
	}
	h := w.RecencyHorizon
	p += w.Recency * float32(min(age, h)) / float32(h)
	return p
}

func age(frame, last uint64) uint64 {
	if frame < last {
		return 0
	}
	return frame - last
}

func (s *Scheduler) cardPriority(in FrameInput, planes [6]mgl32.Vec4) cards.PriorityFunc {
	return func(_ core.CardId, card *cards.SurfaceCard, inst *cards.CardInstanceData) float32 {
		if inst == nil {
			return 0
		}
		return s.score(in.Camera, planes, inst.Bounds, age(in.Frame, card.LastTouched))
	}
}

func (s *Scheduler) probePriority(in FrameInput, planes [6]mgl32.Vec4) probes.PriorityFunc {
	return func(_ probes.ProbeId, p *probes.RadianceProbe) float32 {
		return s.score(in.Camera, planes, core.SphereAABB(p.Position, p.Radius), age(in.Frame, p.LastUpdate))
	}
}

// batchCards takes cards in priority order up to the budget. Cards that still
// cannot get atlas space stay pending and do not use budget.
func (s *Scheduler) batchCards(order []core.CardId, st *FrameStats) []core.CardId {
	budget := s.opts.CardBudget
	batch := make([]core.CardId, 0, min(max(budget, 0), len(order)))
	for _, id := range order {
		if budget > 0 && len(batch) >= budget {
			break
		}
		if !s.reg.EnsureResident(id) {
			st.CardsDeferred++
			continue
		}
		batch = append(batch, id)
	}
	return batch
}

// batchProbes takes dirty probes first, then fills leftover budget with clean
// ones when refreshing is enabled.
func (s *Scheduler) batchProbes(order []probes.ProbeId) ([]probes.ProbeId, int) {
	budget := s.opts.ProbeBudget
	full := func(n int) bool { return budget > 0 && n >= budget }

	batch := make([]probes.ProbeId, 0, min(max(budget, 0), len(order)))
	for _, id := range order {
		if full(len(batch)) {
			break
		}
		if p, ok := s.cache.Get(id); ok && p.Dirty {
			batch = append(batch, id)
		}
	}
	refreshed := 0
	if s.opts.RefreshCleanProbes {
		for _, id := range order {
			if full(len(batch)) {
				break
			}
			if p, ok := s.cache.Get(id); ok && !p.Dirty {
				batch = append(batch, id)
				refreshed++
			}
		}
	}
	return batch, refreshed
}

func (s *Scheduler) submitCards(frame uint64, batch []core.CardId, st *FrameStats) {
	if len(batch) == 0 {
		return
	}
	atlasRes := s.backend.Atlas()
	for _, id := range batch {
		card, ok := s.reg.Card(id)
		if !ok {
			continue
		}
		inst, ok := s.reg.Instance(id)
		if !ok {
			continue
		}
		req := CaptureRequest{
			Card:      id,
			Frame:     frame,
			Atlas:     atlasRes,
			Rect:      [4]uint32{card.Alloc.PixelBase[0], card.Alloc.PixelBase[1], card.Resolution[0], card.Resolution[1]},
			Origin:    inst.Origin,
			Normal:    inst.Normal,
			AxisX:     inst.AxisX,
			AxisY:     inst.AxisY,
			Size:      inst.Size,
			LightMask: inst.LightMask,
			ViewProj:  CaptureViewProj(inst.Origin, inst.Normal, inst.AxisY, inst.Size, s.opts.CaptureDepth),
		}
		if err := s.backend.CaptureCard(req); err != nil {
			// Still dirty in the registry, so it stays pending.
			st.CardsFailed++
			s.logger.Warnf("capture of %s failed: %v", id, err)
			continue
		}
		s.reg.CompleteUpdate(id, frame)
		st.CardsSubmitted++
	}
}

// submitProbes dispatches the probe batch and reports whether Current was
// written. With double-buffered state the dispatch runs even for an empty batch
// so untouched probes carry Previous over before the swap.
func (s *Scheduler) submitProbes(frame uint64, batch []probes.ProbeId, st *FrameStats) bool {
	bufs := s.backend.ProbeBuffers()
	if len(batch) == 0 && bufs == nil {
		return false
	}
	records := make([]probes.GPUProbe, 0, len(batch))
	for _, id := range batch {
		if p, ok := s.cache.Get(id); ok {
			records = append(records, probes.ToGPU(id, p))
		}
	}
	req := ProbeUpdateRequest{Frame: frame, Atlas: s.backend.Atlas(), Probes: records}
	if bufs != nil {
		req.Current, req.Previous = bufs.Current(), bufs.Previous()
	}

	failed, err := s.backend.UpdateProbes(req)
	if err != nil {
		st.ProbesFailed += len(batch)
		s.logger.Warnf("probe update of %d probes failed: %v", len(batch), err)
		return false
	}
	bad := make(map[probes.ProbeId]struct{}, len(failed))
	for _, id := range failed {
		bad[id] = struct{}{}
	}
	for _, id := range batch {
		if _, ok := bad[id]; ok {
			s.cache.MarkDirty(id)
			st.ProbesFailed++
			continue
		}
		s.cache.CompleteUpdate(id, frame)
		st.ProbesSubmitted++
	}
	return true
}

// swap flips every registered resource once. The backend's probe buffers flip
// only when this frame's dispatch wrote Current; otherwise Previous still holds
// the last complete state.
func (s *Scheduler) swap(probesWritten bool) {
	bufs := s.backend.ProbeBuffers()
	for _, sw := range s.swappers {
		if bufs != nil && sw == core.Swapper(bufs) {
			continue
		}
		sw.Swap()
	}
	if bufs != nil && probesWritten {
		bufs.Swap()
	}
}
