package gc

import "sync"

// Runtime is the single façade a host embeds: it owns the heap reservation,
// the three managed spaces, the collector policy, and root bookkeeping, and
// serializes every operation behind one mutex exactly as the original's
// embedded API is documented to require (§6: "the host must not call into
// the collector concurrently from multiple threads without its own
// synchronization" — this runtime instead takes on that synchronization
// itself, matching how the teacher's own allocators guard shared state).
type Runtime struct {
	mu sync.Mutex

	cfg    *Config
	blocks *BlockAllocator
	space  *ImmixSpace
	los    *LargeObjectSpace
	gc     *Collector
	stack  *Stack
	roots  *ExplicitRoots

	watcher *ConfigWatcher
}

// Create reserves the heap, wires every space and the collector, and
// negotiates hostABIConstraint against ABIVersion before anything else runs.
// frames may be nil, in which case only explicitly registered roots are ever
// scanned.
func Create(cfg *Config, hostABIConstraint string, frames FrameSource) (*Runtime, error) {
	if hostABIConstraint != "" {
		if err := NegotiateABI(hostABIConstraint); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	blocks, err := NewBlockAllocator(cfg.HeapSize, cfg.BlockSize, cfg.LineSize)
	if err != nil {
		return nil, err
	}

	space := NewImmixSpace(blocks, cfg.LineSize, cfg.LargeObject)
	los := NewLargeObjectSpace(space.liveMarkPtr())
	collector := NewCollector(space, los, blocks, cfg)
	roots := NewExplicitRoots()
	stack := NewStack(frames, roots)

	return &Runtime{
		cfg:    cfg,
		blocks: blocks,
		space:  space,
		los:    los,
		gc:     collector,
		stack:  stack,
		roots:  roots,
	}, nil
}

// Destroy stops any running config watcher and releases the heap reservation
// back to the OS. The Runtime must not be used afterward.
func (r *Runtime) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}

	return r.blocks.Release()
}

// WatchConfig starts hot-reloading the tuning subset of Config from path;
// Destroy stops it automatically. onError, if non-nil, receives reload
// failures without interrupting the running heap.
func (r *Runtime) WatchConfig(path string, onError func(error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := WatchConfig(path, r.cfg, onError)
	if err != nil {
		return err
	}

	r.watcher = w

	return nil
}

// isGCObject answers whether addr is a currently valid object address in
// either managed space, the predicate both root enumeration and the
// collector's tracing pass filter candidates through.
func (r *Runtime) isGCObject(addr uintptr) bool {
	if r.los.IsLive(addr) {
		return true
	}

	return r.space.IsGCObject(addr)
}

// Allocate dispatches by rtti.ObjectSize to the block-structured Immix space
// or the large-object free list (§4.5's LARGE_OBJECT threshold), running a
// collection and retrying once on failure before giving up.
func (r *Runtime) Allocate(rtti *GCRTTI) (uintptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if addr, ok := r.allocateOnce(rtti); ok {
		return addr, true
	}

	r.collectLocked(false, false)

	return r.allocateOnce(rtti)
}

func (r *Runtime) allocateOnce(rtti *GCRTTI) (uintptr, bool) {
	if rtti.ObjectSize >= r.cfg.LargeObject {
		rttiID := r.space.RegisterRTTI(rtti)

		return r.los.Allocate(rtti, rttiID)
	}

	return r.space.Allocate(rtti)
}

// WriteBarrier must be called before the mutator overwrites any of obj's
// member slots (§4.6). It is safe to call on an already-forwarded address.
func (r *Runtime) WriteBarrier(obj uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gc.WriteBarrier(obj)
}

// PushRoot registers addr as a root for the current dynamic scope.
func (r *Runtime) PushRoot(addr uintptr) { r.roots.PushRoot(addr) }

// PopRoot removes the most recently pushed root.
func (r *Runtime) PopRoot() { r.roots.PopRoot() }

// SetStaticRoot registers a slot whose dereferenced value is scanned on
// every future collection.
func (r *Runtime) SetStaticRoot(slot *uintptr) { r.roots.SetStaticRoot(slot) }

// Collect runs one collection, choosing its CollectionType per §4.8 policy
// unless wantEvac/wantCycle force a stronger one, and returns which kind ran.
func (r *Runtime) Collect(wantEvac, wantCycle bool) CollectionType {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collectLocked(wantEvac, wantCycle)
}

func (r *Runtime) collectLocked(wantEvac, wantCycle bool) CollectionType {
	roots := r.stack.EnumerateRoots(r.space.Heap(), r.space.Base(), r.isGCObject)

	return r.gc.Collect(roots, wantEvac, wantCycle)
}

// Stats reports a point-in-time snapshot of heap occupancy, used by the
// metrics surface.
func (r *Runtime) Stats() RuntimeStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RuntimeStats{
		TotalBlocks:     r.blocks.TotalBlocks(),
		AvailableBlocks: r.blocks.AvailableBlocks(),
		EvacHeadroom:    r.space.EvacHeadroomLen(),
		LargeObjects:    len(r.los.live),
	}
}

// RuntimeStats is a snapshot of heap occupancy counters.
type RuntimeStats struct {
	TotalBlocks     int
	AvailableBlocks int
	EvacHeadroom    int
	LargeObjects    int
}
