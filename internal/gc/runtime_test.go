package gc

import "testing"

func mustCreateTestRuntime(t *testing.T, heapSize uintptr) *Runtime {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HeapSize = heapSize

	rt, err := Create(cfg, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Cleanup(func() {
		if err := rt.Destroy(); err != nil {
			t.Errorf("Destroy: %v", err)
		}
	})

	return rt
}

// TestScenario_SingleAllocateAndCollect mirrors the simplest testable
// property: a rooted object survives a collection, and is reclaimed once
// its root is dropped.
func TestScenario_SingleAllocateAndCollect(t *testing.T) {
	rt := mustCreateTestRuntime(t, 8*DefaultBlockSize)

	rtti := &GCRTTI{ObjectSize: 64, Members: 0}

	addr, ok := rt.Allocate(rtti)
	if !ok {
		t.Fatal("allocate failed")
	}

	rt.PushRoot(addr)
	rt.Collect(false, false)

	if !rt.isGCObject(addr) {
		t.Fatal("rooted object should survive a collection")
	}

	rt.PopRoot()
	rt.Collect(false, false)

	if rt.isGCObject(addr) {
		t.Fatal("unrooted object should be collected")
	}
}

// TestScenario_FiveSmallAllocations checks that several independently
// rooted small objects all survive the same collection and never alias
// addresses.
func TestScenario_FiveSmallAllocations(t *testing.T) {
	rt := mustCreateTestRuntime(t, 8*DefaultBlockSize)

	rtti := &GCRTTI{ObjectSize: 64, Members: 0}

	var addrs []uintptr

	for i := 0; i < 5; i++ {
		addr, ok := rt.Allocate(rtti)
		if !ok {
			t.Fatalf("allocate %d failed", i)
		}

		rt.PushRoot(addr)
		addrs = append(addrs, addr)
	}

	seen := make(map[uintptr]bool, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			t.Fatalf("duplicate address %#x", a)
		}

		seen[a] = true
	}

	rt.Collect(false, false)

	for _, a := range addrs {
		if !rt.isGCObject(a) {
			t.Fatalf("rooted object %#x should survive a collection", a)
		}
	}
}

// TestScenario_RCDeath exercises the write barrier and the coalescing
// decrement path: a child reachable only through a rooted parent's member
// slot survives while referenced, and is collected on the cycle after the
// reference is overwritten.
func TestScenario_RCDeath(t *testing.T) {
	rt := mustCreateTestRuntime(t, 8*DefaultBlockSize)

	parentRTTI := &GCRTTI{ObjectSize: 64, Members: 1}
	childRTTI := &GCRTTI{ObjectSize: 64, Members: 0}

	parent, ok := rt.Allocate(parentRTTI)
	if !ok {
		t.Fatal("allocate parent failed")
	}

	child, ok := rt.Allocate(childRTTI)
	if !ok {
		t.Fatal("allocate child failed")
	}

	rt.PushRoot(parent)

	heap := rt.space.Heap()
	base := rt.space.Base()

	rt.WriteBarrier(parent)
	WriteMember(heap, parent, base, 0, child)

	rt.Collect(false, false)

	if RefCount(heap, child, base) == 0 {
		t.Fatal("child referenced by a rooted parent should survive with refcount > 0")
	}

	if !rt.isGCObject(parent) {
		t.Fatal("rooted parent should remain a registered GC object")
	}

	// Drop the only reference to child.
	rt.WriteBarrier(parent)
	WriteMember(heap, parent, base, 0, 0)

	rt.Collect(false, false)

	if got := RefCount(heap, child, base); got != 0 {
		t.Fatalf("child refcount = %d, want 0 after its only reference was dropped", got)
	}
}

// TestScenario_CycleCollection shows the property plain reference counting
// cannot provide on its own: an unreachable a<->b cycle survives an RC-only
// collection but is reclaimed by a tracing cycle collection.
func TestScenario_CycleCollection(t *testing.T) {
	rt := mustCreateTestRuntime(t, 8*DefaultBlockSize)

	aRTTI := &GCRTTI{ObjectSize: 64, Members: 1}
	bRTTI := &GCRTTI{ObjectSize: 64, Members: 1}

	a, ok := rt.Allocate(aRTTI)
	if !ok {
		t.Fatal("allocate a failed")
	}

	b, ok := rt.Allocate(bRTTI)
	if !ok {
		t.Fatal("allocate b failed")
	}

	heap := rt.space.Heap()
	base := rt.space.Base()

	rt.WriteBarrier(a)
	WriteMember(heap, a, base, 0, b)
	rt.WriteBarrier(b)
	WriteMember(heap, b, base, 0, a)

	// Neither object is rooted: a and b only reference each other.
	rt.Collect(false, false)

	if RefCount(heap, a, base) == 0 || RefCount(heap, b, base) == 0 {
		t.Fatal("a plain RC pass cannot see a reference cycle; both should still show refcount > 0")
	}

	rt.Collect(false, true) // force a tracing cycle collection

	if rt.isGCObject(a) || rt.isGCObject(b) {
		t.Fatal("a tracing cycle should reclaim the unreachable a<->b cycle")
	}
}

// TestScenario_NormalOverflowSplit checks that small and medium objects are
// routed to the Normal and Overflow allocators respectively (§4.3).
func TestScenario_NormalOverflowSplit(t *testing.T) {
	rt := mustCreateTestRuntime(t, 8*DefaultBlockSize)

	small := &GCRTTI{ObjectSize: DefaultLineSize - 8, Members: 0}
	medium := &GCRTTI{ObjectSize: DefaultLineSize + 8, Members: 0}

	smallAddr, ok := rt.Allocate(small)
	if !ok {
		t.Fatal("small allocate failed")
	}

	mediumAddr, ok := rt.Allocate(medium)
	if !ok {
		t.Fatal("medium allocate failed")
	}

	if smallAddr == mediumAddr {
		t.Fatal("expected distinct addresses")
	}

	if _, ok := rt.space.normal.CurrentBlock(); !ok {
		t.Fatal("expected the normal allocator to have claimed a block for the small object")
	}

	if _, ok := rt.space.overflow.CurrentBlock(); !ok {
		t.Fatal("expected the overflow allocator to have claimed a block for the medium object")
	}
}

// TestScenario_Evacuation drives a block into evacuation candidacy the way
// §4.8's decide() actually selects one — by starving evacuation headroom
// just enough that establishHoleThreshold resolves a real threshold and
// SetEvacuationCandidate marks the block that holds both a rooted parent and
// a freshly written child reference — then checks the result against §8's
// S6: the child is forwarded, the parent's member slot is rewritten to the
// new address, the old address drops out of the object map, and the line
// counters reflect exactly one live copy at the new location (finding #2's
// invariant, property 1/§8.1).
func TestScenario_Evacuation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeapSize = 8 * DefaultBlockSize
	cfg.EvacHeadroom = 2

	rt, err := Create(cfg, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Destroy(); err != nil {
			t.Errorf("Destroy: %v", err)
		}
	})

	heap := rt.space.Heap()
	base := rt.space.Base()

	// parent is allocated first so the normal allocator's bump cursor is
	// already seated in its own fresh block: later, once victim's block is
	// swept away, nothing ever refills the normal allocator from the
	// recyclable queue (its cursor still has room of its own), so parent and
	// the not-yet-allocated child are guaranteed to share a block untouched
	// by victim's reclamation.
	parentRTTI := &GCRTTI{ObjectSize: 64, Members: 1}

	parent, ok := rt.Allocate(parentRTTI)
	if !ok {
		t.Fatal("allocate parent failed")
	}

	rt.PushRoot(parent)

	// victim lands in its own overflow block (size == MediumObject) and is
	// rooted just long enough to be swept away on the collection after
	// next, handing its block to evacuation headroom with room still short
	// of cfg.EvacHeadroom's target of 2 — the gap establishHoleThreshold
	// needs to resolve a non-trivial threshold instead of the degenerate
	// t=0 it returns once headroom already meets its target.
	victim := &GCRTTI{ObjectSize: DefaultLineSize, Members: 0}

	victimAddr, ok := rt.Allocate(victim)
	if !ok {
		t.Fatal("allocate victim failed")
	}

	rt.PushRoot(victimAddr)
	rt.Collect(false, false) // establishes the mark histogram with both blocks live
	rt.PopRoot()             // drops victim's root; parent's stays pushed

	rt.Collect(false, false) // kills victim, frees its block into headroom

	victimBlock, ok := rt.space.BlockOf(victimAddr)
	if !ok {
		t.Fatal("victim's block should still be tracked after being swept")
	}

	if !victimBlock.AllZero() {
		t.Fatal("a dead object's lines should return to zero once its only reference is dropped")
	}

	// child is allocated only now, after the collections above, so it is
	// still "new" and lands right after parent in its block by the bump
	// allocator's own contiguity.
	childRTTI := &GCRTTI{ObjectSize: 64, Members: 0}

	child, ok := rt.Allocate(childRTTI)
	if !ok {
		t.Fatal("allocate child failed")
	}

	parentBlock, ok := rt.space.BlockOf(parent)
	if !ok {
		t.Fatal("parent's block should be tracked")
	}

	rt.WriteBarrier(parent)
	WriteMember(heap, parent, base, 0, child)

	kind := rt.Collect(true, false)

	if kind != RCEvacCollection {
		t.Fatalf("Collect kind = %v, want RCEvacCollection", kind)
	}

	if !IsForwarded(heap, child, base) {
		t.Fatal("child's old address should be marked forwarded after evacuation")
	}

	newChild := ForwardingAddress(heap, child, base)
	if newChild == child {
		t.Fatal("forwarding address should differ from the evacuated object's old address")
	}

	if parentBlock.IsGCObject(child) {
		t.Fatal("the evacuated object's old address should be removed from its block's object map")
	}

	if got := ReadMember(heap, parent, base, 0); got != newChild {
		t.Fatalf("parent's member slot = %#x, want the forwarded address %#x", got, newChild)
	}

	if !rt.space.IsGCObject(newChild) {
		t.Fatal("the evacuated object's new address should be a registered GC object")
	}

	newBlock, ok := rt.space.BlockOf(newChild)
	if !ok {
		t.Fatal("the evacuated object's new block should be tracked")
	}

	if newBlock.AllZero() {
		t.Fatal("a live object's lines should be counted at its new location")
	}

	if parentBlock.AllZero() {
		t.Fatal("parent is still live; its block should not read as all zero")
	}
}

// TestScenario_LargeObjectSpace checks that an object at or above
// LargeObject is routed to the LOS rather than a block, and is reclaimed by
// a plain RC collection once unrooted (§4.5).
func TestScenario_LargeObjectSpace(t *testing.T) {
	rt := mustCreateTestRuntime(t, 8*DefaultBlockSize)

	rtti := &GCRTTI{ObjectSize: DefaultLargeObject, Members: 0}

	addr, ok := rt.Allocate(rtti)
	if !ok {
		t.Fatal("allocate failed")
	}

	if !rt.los.IsLive(addr) {
		t.Fatal("expected the object to land in the large object space")
	}

	rt.PushRoot(addr)
	rt.Collect(false, false)

	if !rt.los.IsLive(addr) {
		t.Fatal("rooted large object should survive a collection")
	}

	rt.PopRoot()
	rt.Collect(false, false)

	if rt.los.IsLive(addr) {
		t.Fatal("unrooted large object should be collected")
	}
}
