package gc

// RCCollector is the coalescing, deferred reference-counting collector with
// its write barrier (§4.6). It owns three queues: the previous collection's
// pinned roots (old_root_buffer), objects the mutator modified since
// (modified_buffer), and objects whose reference count must be decremented
// (decrement_buffer).
type RCCollector struct {
	space *ImmixSpace
	los   *LargeObjectSpace

	oldRootBuffer   []uintptr
	modifiedBuffer  []uintptr
	decrementBuffer []uintptr
}

// NewRCCollector creates an RCCollector over the given spaces.
func NewRCCollector(space *ImmixSpace, los *LargeObjectSpace) *RCCollector {
	return &RCCollector{space: space, los: los}
}

// resolve returns the backing heap bytes, base address, and size for any
// managed object, whether it lives in a block or in the LOS.
func (rc *RCCollector) resolve(addr uintptr) (heap []byte, base uintptr, size uintptr, isLOS bool) {
	if buf, ok := rc.los.Heap(addr); ok {
		return buf, addr, uintptr(len(buf)), true
	}

	heap = rc.space.Heap()
	base = rc.space.Base()
	rttiID := RTTIAt(heap, addr, base)
	rtti := rc.space.RTTIFor(rttiID)

	if rtti == nil {
		return heap, base, 0, false
	}

	return heap, base, rtti.ObjectSize, false
}

// resolveForwarding follows the forwarding pointer when addr has already
// been evacuated, so decrement/destroy always operate on an object's
// current location rather than a stale copy left behind at its old address
// (§3: "forwarded ⇒ rtti field reinterpreted as forwarding pointer ...
// outgoing edges are redirected").
func (rc *RCCollector) resolveForwarding(addr uintptr) uintptr {
	if rc.los.IsLive(addr) {
		return addr // LOS objects are never evacuated
	}

	heap := rc.space.Heap()
	base := rc.space.Base()

	for IsForwarded(heap, addr, base) {
		addr = ForwardingAddress(heap, addr, base)
	}

	return addr
}

// members returns the object's reference-slot count. The rtti table is
// shared by both spaces, so isLOS does not change the lookup itself.
func (rc *RCCollector) members(heap []byte, addr, base uintptr, isLOS bool) int {
	rttiID := RTTIAt(heap, addr, base)
	rtti := rc.space.RTTIFor(rttiID)

	if rtti == nil {
		return 0
	}

	return rtti.Members
}

// WriteBarrier must be called before the mutator changes any of obj's
// member slots. If obj is already logged this is a no-op; otherwise it
// records obj for re-scanning and schedules every child it currently
// references for decrement, since those are the edges about to be
// overwritten (§4.6).
func (rc *RCCollector) WriteBarrier(obj uintptr) {
	obj = rc.resolveForwarding(obj)

	heap, base, _, isLOS := rc.resolve(obj)
	if IsLogged(heap, obj, base) {
		return
	}

	rc.modifiedBuffer = append(rc.modifiedBuffer, obj)

	n := rc.members(heap, obj, base, isLOS)
	for i := 0; i < n; i++ {
		child := ReadMember(heap, obj, base, i)
		if child != 0 {
			rc.decrementBuffer = append(rc.decrementBuffer, child)
		}
	}

	SetLogged(heap, obj, base, true)
}

// increment bumps obj's reference count, clearing its new flag on the first
// firing. attemptEvac requests evacuation but it is only ever honoured on
// that same first firing of a non-root child reference — never on roots,
// never on a second or later increment (§4.6, supplemented feature D.4) —
// and returns the object's (possibly new, post-evacuation) address.
func (rc *RCCollector) increment(obj uintptr, attemptEvac bool) uintptr {
	heap, base, size, isLOS := rc.resolve(obj)

	wasNew := IsNew(heap, obj, base)

	IncRef(heap, obj, base)

	if wasNew {
		ClearNew(heap, obj, base)
	}

	if isLOS || !attemptEvac || !wasNew {
		return obj
	}

	if newAddr, ok := rc.space.MaybeEvacuate(obj, size); ok {
		return newAddr
	}

	return obj
}

// processOldRoots moves the previous collection's pinned roots into the
// decrement buffer: an old root dies this cycle unless something else still
// references it (step 1).
func (rc *RCCollector) processOldRoots() {
	rc.decrementBuffer = append(rc.decrementBuffer, rc.oldRootBuffer...)
	rc.oldRootBuffer = rc.oldRootBuffer[:0]
}

// processCurrentRoots increments every currently live root without
// attempting evacuation (roots are pinned for the collection) and records
// them as this cycle's old roots for next time (step 2).
func (rc *RCCollector) processCurrentRoots(roots []uintptr) {
	for _, r := range roots {
		rc.increment(r, false)
		rc.reviveGCObject(r)
		rc.oldRootBuffer = append(rc.oldRootBuffer, r)
	}
}

// reviveGCObject re-registers obj in its block's object map, undoing
// preserveNewObjects' provisional removal for an object reached directly as
// a root rather than through some other object's write barrier. Without
// this a root held across RC-only collections with no write-barrier
// traffic of its own would drop out of EnumerateRoots' isGCObject filter
// after its first cycle and be decremented next time with no matching
// increment to balance it.
func (rc *RCCollector) reviveGCObject(addr uintptr) {
	if _, _, _, isLOS := rc.resolve(addr); isLOS {
		return
	}

	if block, ok := rc.space.BlockOf(addr); ok {
		block.SetGCObject(addr)
	}
}

// processLOSNewObjects balances new large objects with an increment and an
// immediate decrement so an object allocated and dropped before the next
// collection dies on this same RC pass instead of surviving an extra cycle
// (§4.6 supplemented feature D.5; not mentioned for block-space objects
// because ImmixSpace.Allocate's own new_objects bookkeeping already serves
// that role there).
func (rc *RCCollector) processLOSNewObjects() {
	for _, addr := range rc.los.GetNewObjects() {
		rc.increment(addr, false)
		rc.decrementBuffer = append(rc.decrementBuffer, addr)
	}
}

// processModBuffer drains the modified buffer: each object is re-marked
// live in its block, then each of its current children is either forwarded
// (if already evacuated) or incremented, with evacuation only attempted for
// block-space children (step 3). Lines are never counted here — Allocate
// already counted every object's lines once at birth, and MaybeEvacuate
// moves that count rather than adding to it — so this pass only restores
// objectMap membership that preserveNewObjects stripped ahead of this
// collection, for both the modified object itself and every live child it
// reaches, since a write-barriered child reached only through a member
// slot would otherwise never get re-added (§3/property 3).
func (rc *RCCollector) processModBuffer(evac bool) {
	buf := rc.modifiedBuffer
	rc.modifiedBuffer = nil

	for _, obj := range buf {
		heap, base, _, isLOS := rc.resolve(obj)

		SetLogged(heap, obj, base, false)
		rc.reviveGCObject(obj)

		n := rc.members(heap, obj, base, isLOS)

		for i := 0; i < n; i++ {
			child := ReadMember(heap, obj, base, i)
			if child == 0 {
				continue
			}

			childHeap, childBase, _, _ := rc.resolve(child)

			if IsForwarded(childHeap, child, childBase) {
				newAddr := ForwardingAddress(childHeap, child, childBase)
				WriteMember(heap, obj, base, i, newAddr)
				rc.increment(newAddr, false)
				rc.reviveGCObject(newAddr)

				continue
			}

			newAddr := rc.increment(child, evac)
			if newAddr != child {
				WriteMember(heap, obj, base, i, newAddr)
			}

			rc.reviveGCObject(newAddr)
		}
	}
}

// processDecrementBuffer drains the decrement buffer: each object is
// decremented; if its count reaches zero, every child it still references
// is pushed for decrement in turn, and the object itself is destroyed
// (step 4).
func (rc *RCCollector) processDecrementBuffer() {
	for len(rc.decrementBuffer) > 0 {
		n := len(rc.decrementBuffer)
		obj := rc.decrementBuffer[n-1]
		rc.decrementBuffer = rc.decrementBuffer[:n-1]

		obj = rc.resolveForwarding(obj)

		heap, base, size, isLOS := rc.resolve(obj)

		if !DecRef(heap, obj, base) {
			continue
		}

		numMembers := rc.members(heap, obj, base, isLOS)

		for i := 0; i < numMembers; i++ {
			child := ReadMember(heap, obj, base, i)
			if child != 0 {
				rc.decrementBuffer = append(rc.decrementBuffer, child)
			}
		}

		rc.destroy(obj, heap, base, size, isLOS)
	}
}

func (rc *RCCollector) destroy(obj uintptr, heap []byte, base, size uintptr, isLOS bool) {
	if isLOS {
		rc.los.EnqueueFree(obj)

		return
	}

	block, ok := rc.space.BlockOf(obj)
	if !ok {
		return
	}

	block.UnsetGCObject(obj)
	block.DecrementLines(obj, size)
}

// Collect runs one full RC pass given this cycle's current roots.
// evac requests that surviving first-referenced children be considered for
// evacuation (only meaningful on an *Evac collection type).
func (rc *RCCollector) Collect(currentRoots []uintptr, evac bool) {
	rc.processOldRoots()
	rc.processCurrentRoots(currentRoots)
	rc.processLOSNewObjects()
	rc.processModBuffer(evac)
	rc.processDecrementBuffer()
}
