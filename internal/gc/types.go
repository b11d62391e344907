// Package gc implements a conservative, reference-counting Immix garbage
// collector: a block-and-line structured heap with three cooperating bump
// allocators, a coalescing RC collector with a deferred write barrier, a
// tracing mark-sweep cycle collector sharing the same line-count machinery,
// and a free-list large-object space, fronted by a single Runtime façade.
package gc

import (
	"unsafe"
)

// ABIVersion is the object-layout ABI this runtime implements. Hosts declare
// the ABI range they were compiled against as a semver constraint string
// passed to Create; see config.go for the negotiation.
const ABIVersion = "1.0.0"

// Word is the platform pointer width in bytes.
const Word = unsafe.Sizeof(uintptr(0))

// Default configuration constants (§6). Config carries the live, possibly
// overridden values; these are the fallback defaults.
const (
	DefaultHeapSize  = 1 << 30 // 1 GiB
	DefaultBlockSize = 32 * 1024
	DefaultLineSize  = 256

	// MediumObject is defined to equal LineSize, per spec.
	// LargeObject is the LOS threshold.
	DefaultLargeObject = 8 * 1024

	DefaultEvacHeadroom           = 5
	DefaultEvacTriggerThreshold   = 0.01
	DefaultCycleTriggerThreshold  = 0.01
)

// NumLinesPerBlock returns BLOCK_SIZE / LINE_SIZE for the given sizes.
func NumLinesPerBlock(blockSize, lineSize uintptr) int {
	return int(blockSize / lineSize)
}

// GCHeader is the fixed layout preceding every managed object. It never
// straddles the boundary between metadata and payload: the object slots
// immediately following it in the conceptual layout are addressed relative
// to HeaderSize, not to Go struct field offsets, since real objects live in
// raw heap bytes, not as Go values.
type GCHeader struct {
	// ReferenceCount is a saturating count of incoming managed references.
	// Zero means unreferenced.
	ReferenceCount uint32

	// RTTI points at the object's GCRTTI when Forwarded is false; when
	// Forwarded is true this field is reinterpreted as the address the
	// object was evacuated to.
	RTTI uintptr

	// SpansLines is set at creation iff the object size exceeds LINE_SIZE.
	SpansLines bool

	// Forwarded is set once the object has been evacuated.
	Forwarded bool

	// Logged is set by the write barrier so the object is not queued twice
	// within one epoch.
	Logged bool

	// Marked's interpretation (live vs. dead) flips each tracing cycle via
	// the space-wide currentLiveMark flag.
	Marked bool

	// Pinned objects are never evacuated.
	Pinned bool

	// New is true until the object's first RC increment.
	New bool
}

// HeaderSize is the number of bytes the flat on-heap encoding of GCHeader
// occupies — reference count, packed flags, and the rtti/forwarding
// pointer — before the member slots begin. It is a fixed byte layout chosen
// by writeHeader/readers in object.go, independent of Go's own struct
// layout for the GCHeader bookkeeping type above.
const HeaderSize = 8 + Word // 4-byte refcount + 4-byte flags + one word for rtti/forwarding

// GCRTTI is immutable, mutator-supplied runtime type info.
type GCRTTI struct {
	// ObjectSize is the total object size in bytes, rounded up to pointer
	// alignment, including header, rtti pointer slot and member slots.
	ObjectSize uintptr

	// Members is the count of managed reference slots immediately
	// following the rtti pointer.
	Members int
}

// CollectionType enumerates the four ways a collection can run: reference
// counting alone, reference counting with evacuation, a full tracing cycle,
// or a tracing cycle with evacuation.
type CollectionType int

const (
	RCCollection CollectionType = iota
	RCEvacCollection
	ImmixCollection
	ImmixEvacCollection
)

// IsEvac reports whether this collection type evacuates.
func (c CollectionType) IsEvac() bool {
	return c == RCEvacCollection || c == ImmixEvacCollection
}

// IsImmix reports whether this collection type runs a tracing cycle.
func (c CollectionType) IsImmix() bool {
	return c == ImmixCollection || c == ImmixEvacCollection
}

func (c CollectionType) String() string {
	switch c {
	case RCCollection:
		return "rc"
	case RCEvacCollection:
		return "rc-evac"
	case ImmixCollection:
		return "immix"
	case ImmixEvacCollection:
		return "immix-evac"
	default:
		return "unknown"
	}
}
