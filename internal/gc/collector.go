package gc

import "sync/atomic"

// Collector is the policy layer (§4.8): it decides the CollectionType,
// drives the RC and (when cycle-collecting) tracing passes in order, sweeps
// every block afterward, and rebalances evacuation headroom.
type Collector struct {
	space  *ImmixSpace
	los    *LargeObjectSpace
	blocks *BlockAllocator
	rc     *RCCollector
	trace  *ImmixCollector
	cfg    *Config

	// markHistogram persists the previous sweep's Σ marked-lines-by-hole-count
	// histogram; establishHoleThreshold consults it to decide which blocks
	// are worth evacuating *this* round, mirroring the original's ordering
	// where candidacy is set before RC runs but reflects the last sweep.
	markHistogram []int

	headroom HeadroomEstimator
}

// HeadroomEstimator supplies the target evacuation headroom size the
// collector tops up to after each sweep (§9(b)'s "running estimator of
// post-sweep free-block surplus"). The default, ConstantHeadroomEstimator,
// just returns the configured constant; a host can install a different
// implementation via Collector.SetHeadroomEstimator without the policy
// layer itself needing to know how the target is produced.
type HeadroomEstimator interface {
	Headroom() int
}

// ConstantHeadroomEstimator is the default HeadroomEstimator: it reads
// Config.EvacHeadroom unchanged.
type ConstantHeadroomEstimator struct {
	cfg *Config
}

// NewConstantHeadroomEstimator wraps cfg's EvacHeadroom field.
func NewConstantHeadroomEstimator(cfg *Config) *ConstantHeadroomEstimator {
	return &ConstantHeadroomEstimator{cfg: cfg}
}

// Headroom returns the current configured target.
func (e *ConstantHeadroomEstimator) Headroom() int {
	return int(atomic.LoadInt32(&e.cfg.EvacHeadroom))
}

// NewCollector wires the policy layer over the given spaces and config.
func NewCollector(space *ImmixSpace, los *LargeObjectSpace, blocks *BlockAllocator, cfg *Config) *Collector {
	rc := NewRCCollector(space, los)
	tr := NewImmixCollector(space, los, rc)

	return &Collector{
		space:    space,
		los:      los,
		blocks:   blocks,
		rc:       rc,
		trace:    tr,
		cfg:      cfg,
		headroom: NewConstantHeadroomEstimator(cfg),
	}
}

// SetHeadroomEstimator installs a different HeadroomEstimator, e.g. one
// that adapts its target from sweep history instead of a fixed constant.
func (c *Collector) SetHeadroomEstimator(e HeadroomEstimator) {
	c.headroom = e
}

// decide picks the CollectionType for this invocation per §4.8's policy,
// given the caller's hints and current block accounting. It also marks
// evacuation-candidate blocks when evacuation is selected.
func (c *Collector) decide(wantEvac, wantCycle bool) CollectionType {
	total := c.blocks.TotalBlocks()
	available := c.blocks.AvailableBlocks()
	headroom := c.space.EvacHeadroomLen()

	numLines := NumLinesPerBlock(c.cfg.BlockSize, c.cfg.LineSize)

	evac := wantEvac || float64(available+headroom) < float64(total)*c.cfg.EvacTriggerThreshold.Load()
	if evac {
		threshold := c.establishHoleThreshold(numLines)
		evac = threshold > 0 && threshold < numLines

		if evac {
			for _, b := range c.space.GetAllBlocks() {
				b.SetEvacuationCandidate(threshold)
			}
		}
	}

	cycle := wantCycle || float64(available) < float64(total)*c.cfg.CycleTriggerThreshold.Load()

	switch {
	case evac && cycle:
		return ImmixEvacCollection
	case evac:
		return RCEvacCollection
	case cycle:
		return ImmixCollection
	default:
		return RCCollection
	}
}

// establishHoleThreshold finds the lowest hole count t at which the
// available free lines at headroom capacity no longer cover the lines
// required to keep everything at or below t live, accumulating both sides
// of the inequality in the same pass before comparing — the original's
// exact update-then-compare order (§D.2), not the more tempting
// compare-then-update reading of the prose alone. Returns numLines (i.e.
// "nothing qualifies") if the inequality never holds.
func (c *Collector) establishHoleThreshold(numLines int) int {
	if len(c.markHistogram) == 0 {
		return numLines
	}

	availableHistogram := c.availableLinesHistogram(numLines)

	headroomTopUp := c.headroom.Headroom() - c.space.EvacHeadroomLen()
	if headroomTopUp < 0 {
		headroomTopUp = 0
	}

	availableLines := headroomTopUp * (numLines - 1)
	requiredLines := 0

	for t := 0; t < len(c.markHistogram); t++ {
		requiredLines += c.markHistogram[t]

		if t < len(availableHistogram) {
			availableLines -= availableHistogram[t]
		}

		if availableLines <= requiredLines {
			return t
		}
	}

	return numLines
}

// availableLinesHistogram tallies, per hole count, the free lines currently
// sitting in blocks at that hole count — the "available[holes] = Σ
// free_lines" histogram §4.8 describes.
func (c *Collector) availableLinesHistogram(numLines int) []int {
	hist := make([]int, numLines+1)

	for _, b := range c.space.GetAllBlocks() {
		holes, available := b.CountHolesAndAvailableLines()
		if holes <= numLines {
			hist[holes] += available
		}
	}

	return hist
}

// Collect runs the full sequence from §4.8: pin roots, drop new-object
// provisional registrations, run RC, drain the LOS free buffer, optionally
// trace and sweep the LOS, sweep all blocks, rebalance headroom, and flip
// the live mark if a trace ran.
func (c *Collector) Collect(roots []uintptr, wantEvac, wantCycle bool) CollectionType {
	kind := c.decide(wantEvac, wantCycle)

	for _, r := range roots {
		heap, base, _, _ := c.rc.resolve(r)
		SetPinned(heap, r, base, true)
	}

	c.preserveNewObjects()

	c.rc.Collect(roots, kind.IsEvac())

	c.los.ProcessFreeBuffer()

	if kind.IsImmix() {
		c.clearForTrace()

		newLiveMark := c.trace.Trace(roots, kind.IsEvac())
		c.los.Sweep(newLiveMark)
	}

	c.sweepAllBlocks()

	for _, r := range roots {
		heap, base, _, _ := c.rc.resolve(r)
		SetPinned(heap, r, base, false)
	}

	if kind.IsImmix() {
		c.space.FlipLiveMark()
	}

	return kind
}

// preserveNewObjects removes every block's provisional new-object
// registrations before RC runs; RC's mod-buffer pass re-adds genuinely
// referenced objects via fresh increments (step 2 of §4.8's sequence).
func (c *Collector) preserveNewObjects() {
	for _, b := range c.space.GetAllBlocks() {
		b.RemoveNewObjectsFromMap()
	}
}

// clearForTrace zeroes every block's line counts and object map ahead of a
// tracing pass, since the trace re-establishes both from scratch as it
// walks reachable objects.
func (c *Collector) clearForTrace() {
	for _, b := range c.space.GetAllBlocks() {
		b.Reset()
	}
}

// sweepAllBlocks classifies every block after RC/trace: fully-free blocks
// are reset and returned to evacuation headroom (up to EVAC_HEADROOM) or the
// global free list; the rest are recounted for holes and split into
// unavailable (no holes) and recyclable (>=1 hole) sets, and their marked
// lines are folded into next cycle's hole histogram (§4.8.2).
func (c *Collector) sweepAllBlocks() {
	numLines := NumLinesPerBlock(c.cfg.BlockSize, c.cfg.LineSize)
	histogram := make([]int, numLines+1)

	var (
		free        []*BlockInfo
		recyclable  []*BlockInfo
		unavailable []*BlockInfo
	)

	for _, b := range c.space.GetAllBlocks() {
		if b.AllZero() {
			b.Reset()
			free = append(free, b)

			continue
		}

		b.CountHoles() // refreshes b.HoleCount() for the next decide()'s SetEvacuationCandidate

		holes, marked := b.CountHolesAndMarkedLines()
		if holes <= numLines {
			histogram[holes] += marked
		}

		if holes == 0 {
			unavailable = append(unavailable, b)
		} else {
			recyclable = append(recyclable, b)
		}
	}

	c.markHistogram = histogram

	needed := c.headroom.Headroom() - c.space.EvacHeadroomLen()

	var toHeadroom []*BlockInfo

	if needed > 0 {
		if needed > len(free) {
			needed = len(free)
		}

		toHeadroom, free = free[:needed], free[needed:]
	}

	c.space.ExtendEvacHeadroom(toHeadroom)
	c.space.SetRecyclableBlocks(recyclable)
	c.space.SetUnavailableBlocks(unavailable)
	c.space.ReturnBlocks(free)
}

// WriteBarrier delegates to the RC collector's write barrier.
func (c *Collector) WriteBarrier(obj uintptr) { c.rc.WriteBarrier(obj) }
