package gc

import "sync"

// FrameSource supplies a conservative root range to scan — the Go-idiomatic
// seam standing in for §4.9's stack-region and callee-saved-register
// primitives, which Go gives no supported way to read directly from Go code
// (see SPEC_FULL.md §F). A host embedding this runtime via cgo can back this
// with the real stack/register bounds; a pure-Go mutator instead relies on
// ExplicitRoots below, the always-available default.
type FrameSource interface {
	// ScanRange returns a [lo, hi) range of pointer-aligned words to treat
	// as conservative roots, or ok=false if no such range is available.
	ScanRange() (lo, hi uintptr, ok bool)
}

// ExplicitRoots is the always-available root source: a caller-registered
// list of addresses whose *target* is scanned, satisfying §4.9's "static
// roots" bullet directly. It is the default when no FrameSource is
// configured.
type ExplicitRoots struct {
	mu     sync.Mutex
	pushed []uintptr
	static []*uintptr
}

// NewExplicitRoots creates an empty registration set.
func NewExplicitRoots() *ExplicitRoots {
	return &ExplicitRoots{}
}

// PushRoot registers addr as a root for every collection until PopRoot
// removes it. Used for roots with dynamic scope, mirroring how a
// mutator would hold a reference on its own call stack.
func (e *ExplicitRoots) PushRoot(addr uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pushed = append(e.pushed, addr)
}

// PopRoot removes the most recently pushed root.
func (e *ExplicitRoots) PopRoot() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := len(e.pushed); n > 0 {
		e.pushed = e.pushed[:n-1]
	}
}

// SetStaticRoot registers an address whose dereferenced value is treated as
// a root on every future collection, matching the embedded API's
// `set_static_root` (§6).
func (e *ExplicitRoots) SetStaticRoot(slot *uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.static = append(e.static, slot)
}

func (e *ExplicitRoots) candidates() []uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]uintptr, 0, len(e.pushed)+len(e.static))
	out = append(out, e.pushed...)

	for _, slot := range e.static {
		out = append(out, *slot)
	}

	return out
}

// Stack enumerates conservative roots from an optional FrameSource and the
// always-present ExplicitRoots, filters candidates through a live-object
// predicate, and de-duplicates the survivors (§4.9).
type Stack struct {
	frames   FrameSource
	explicit *ExplicitRoots
}

// NewStack creates a root enumerator. frames may be nil, in which case only
// ExplicitRoots contributes candidates.
func NewStack(frames FrameSource, explicit *ExplicitRoots) *Stack {
	return &Stack{frames: frames, explicit: explicit}
}

// IsGCObject is the predicate conservative candidates are filtered through;
// it is supplied by the façade, since only it can consult both ImmixSpace's
// block maps and the LOS live set.
type IsGCObject func(addr uintptr) bool

// EnumerateRoots reads every candidate word out of the FrameSource's range
// (if any) plus ExplicitRoots, filters through isGCObject, and returns the
// deduplicated survivors. Heap bytes let conservative stack words be read
// as raw memory exactly like managed object fields.
func (s *Stack) EnumerateRoots(heap []byte, base uintptr, isGCObject IsGCObject) []uintptr {
	seen := make(map[uintptr]struct{})

	var roots []uintptr

	consider := func(addr uintptr) {
		if addr == 0 {
			return
		}

		if _, dup := seen[addr]; dup {
			return
		}

		if !isGCObject(addr) {
			return
		}

		seen[addr] = struct{}{}
		roots = append(roots, addr)
	}

	if s.frames != nil {
		if lo, hi, ok := s.frames.ScanRange(); ok {
			for addr := lo; addr+Word <= hi; addr += Word {
				if addr < base || addr+Word > base+uintptr(len(heap)) {
					continue
				}

				word := *wordAt(heap, addr, base)
				consider(word)
			}
		}
	}

	for _, addr := range s.explicit.candidates() {
		consider(addr)
	}

	return roots
}
