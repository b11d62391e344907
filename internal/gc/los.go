package gc

// LargeObjectSpace is a free-list space for objects at or above
// LARGE_OBJECT, backed directly by the Go heap rather than the block
// reservation (§4.5). Host `malloc`/`free` in the original becomes plain Go
// byte slices here; Go's own GC is never asked to scan them for pointers
// because they are addressed and walked exactly like block-space objects,
// through the same header/member accessors in object.go.
type LargeObjectSpace struct {
	live       map[uintptr][]byte // address -> backing allocation
	newObjects []uintptr
	deferFree  []uintptr

	currentLiveMark *bool // shared with ImmixSpace so LOS objects track the same cycle colour
}

// NewLargeObjectSpace creates an empty LOS bound to the space-wide live
// mark.
func NewLargeObjectSpace(currentLiveMark *bool) *LargeObjectSpace {
	return &LargeObjectSpace{
		live:            make(map[uintptr][]byte),
		currentLiveMark: currentLiveMark,
	}
}

// Allocate host-allocates size bytes, initializes the header with the
// current live mark, and registers the address.
func (los *LargeObjectSpace) Allocate(rtti *GCRTTI, rttiID uintptr) (uintptr, bool) {
	size := rtti.ObjectSize
	if size == 0 {
		return 0, false
	}

	buf := make([]byte, size)
	addr := addrOfSlice(buf)

	los.live[addr] = buf

	// lineSize=1: a LOS object always exceeds a single conceptual line, so
	// SpansLines is always set, matching an object far larger than LINE_SIZE.
	writeHeader(buf, addr, addr, rttiID, size, 1, *los.currentLiveMark)
	los.newObjects = append(los.newObjects, addr)

	return addr, true
}

// Heap returns the backing slice for an address registered in this space,
// so header/member accessors (which take a heap+base pair) can operate on
// it the same way they operate on block-space objects.
func (los *LargeObjectSpace) Heap(addr uintptr) ([]byte, bool) {
	b, ok := los.live[addr]

	return b, ok
}

// IsLive reports whether addr is a currently registered large object.
func (los *LargeObjectSpace) IsLive(addr uintptr) bool {
	_, ok := los.live[addr]

	return ok
}

// EnqueueFree schedules obj to be freed on the next RC sweep.
func (los *LargeObjectSpace) EnqueueFree(addr uintptr) {
	los.deferFree = append(los.deferFree, addr)
}

// GetNewObjects drains the objects allocated since the last collection, so
// the RC collector can give each a balanced increment/decrement (§4.6
// supplemented feature D.5).
func (los *LargeObjectSpace) GetNewObjects() []uintptr {
	drained := los.newObjects
	los.newObjects = nil

	return drained
}

// ProcessFreeBuffer frees every address still queued after the RC pass.
func (los *LargeObjectSpace) ProcessFreeBuffer() {
	for _, addr := range los.deferFree {
		delete(los.live, addr)
	}

	los.deferFree = los.deferFree[:0]
}

// Sweep frees every live object whose mark bit does not match the new live
// mark, called after the trace pass.
func (los *LargeObjectSpace) Sweep(newLiveMark bool) {
	for addr, buf := range los.live {
		if IsMarked(buf, addr, addr) != newLiveMark {
			delete(los.live, addr)
		}
	}
}

// addrOfSlice returns the address of a slice's backing array.
func addrOfSlice(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}

	return addrOf(&b[0])
}
