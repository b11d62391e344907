package gc

import "unsafe"

// Object layout in raw heap bytes, relative to its address o:
//
//	[0:4)            reference count (uint32)
//	[4:8)            packed flags (one bit each)
//	[8:8+Word)       rtti pointer, or the forwarding address when forwarded
//	[HeaderSize:...)  Members contiguous reference slots (Word bytes each)
//	...               opaque payload up to rtti.ObjectSize
//
// This is the flat encoding the object-layout contract in §6 describes;
// Go's unsafe.Pointer/uintptr pair lets us address it directly without
// reinterpreting it as a Go struct value (which Go's own GC must never be
// asked to scan, since these bytes live outside any Go-managed allocation).

const (
	flagSpansLines = 1 << 0
	flagForwarded  = 1 << 1
	flagLogged     = 1 << 2
	flagMarked     = 1 << 3
	flagPinned     = 1 << 4
	flagNew        = 1 << 5
)

func ptrAt(heap []byte, addr uintptr, base uintptr) unsafe.Pointer {
	return unsafe.Pointer(&heap[addr-base])
}

// addrOf returns the address of a byte, used to derive a Go-heap-backed
// large object's identity from its backing slice.
func addrOf(b *byte) uintptr {
	return uintptr(unsafe.Pointer(b))
}

func wordAt(heap []byte, addr uintptr, base uintptr) *uintptr {
	return (*uintptr)(ptrAt(heap, addr, base))
}

func u32At(heap []byte, addr uintptr, base uintptr) *uint32 {
	return (*uint32)(ptrAt(heap, addr, base))
}

// writeHeader initializes a freshly allocated object's header: rc=0,
// new=true, marked=currentLiveMark, spansLines iff size > lineSize, and
// installs the rtti pointer.
func writeHeader(heap []byte, base, addr uintptr, rtti uintptr, size, lineSize uintptr, currentLiveMark bool) {
	*u32At(heap, addr, base) = 0

	flags := uint32(flagNew)
	if size > lineSize {
		flags |= flagSpansLines
	}

	if currentLiveMark {
		flags |= flagMarked
	}

	*u32At(heap, addr+4, base) = flags
	*wordAt(heap, addr+8, base) = rtti
}

func flagsAt(heap []byte, addr, base uintptr) *uint32 { return u32At(heap, addr+4, base) }

func hasFlag(heap []byte, addr, base uintptr, flag uint32) bool {
	return *flagsAt(heap, addr, base)&flag != 0
}

func setFlag(heap []byte, addr, base uintptr, flag uint32, v bool) {
	p := flagsAt(heap, addr, base)
	if v {
		*p |= flag
	} else {
		*p &^= flag
	}
}

// RefCount reads the object's reference count.
func RefCount(heap []byte, addr, base uintptr) uint32 { return *u32At(heap, addr, base) }

// IsForwarded reports whether the object has been evacuated.
func IsForwarded(heap []byte, addr, base uintptr) bool {
	return hasFlag(heap, addr, base, flagForwarded)
}

// ForwardingAddress reads the new address of a forwarded object; the rtti
// slot is reinterpreted as a plain address once Forwarded is set.
func ForwardingAddress(heap []byte, addr, base uintptr) uintptr {
	return *wordAt(heap, addr+8, base)
}

// SetForwarded marks the object forwarded and installs newAddr in its rtti
// slot, per §3's forwarded-implies-rtti-reinterpreted invariant.
func SetForwarded(heap []byte, addr, base, newAddr uintptr) {
	setFlag(heap, addr, base, flagForwarded, true)
	*wordAt(heap, addr+8, base) = newAddr
}

// RTTIAt reads the rtti pointer of a non-forwarded object.
func RTTIAt(heap []byte, addr, base uintptr) uintptr {
	return *wordAt(heap, addr+8, base)
}

// IsPinned reports whether the object must never be evacuated.
func IsPinned(heap []byte, addr, base uintptr) bool { return hasFlag(heap, addr, base, flagPinned) }

// SetPinned sets or clears the pinned flag.
func SetPinned(heap []byte, addr, base uintptr, v bool) { setFlag(heap, addr, base, flagPinned, v) }

// IsLogged reports whether the write barrier already queued this object in
// the current epoch.
func IsLogged(heap []byte, addr, base uintptr) bool { return hasFlag(heap, addr, base, flagLogged) }

// SetLogged sets or clears the logged flag.
func SetLogged(heap []byte, addr, base uintptr, v bool) { setFlag(heap, addr, base, flagLogged, v) }

// IsNew reports whether the object has not yet received its first RC
// increment.
func IsNew(heap []byte, addr, base uintptr) bool { return hasFlag(heap, addr, base, flagNew) }

// ClearNew clears the new flag; called on an object's first increment.
func ClearNew(heap []byte, addr, base uintptr) { setFlag(heap, addr, base, flagNew, false) }

// IsMarked reads the raw marked bit. Callers compare it against the space's
// currentLiveMark to interpret liveness, since the bit's meaning flips each
// cycle (§3).
func IsMarked(heap []byte, addr, base uintptr) bool { return hasFlag(heap, addr, base, flagMarked) }

// SetMarked sets or clears the raw marked bit.
func SetMarked(heap []byte, addr, base uintptr, v bool) { setFlag(heap, addr, base, flagMarked, v) }

// IncRef increments the reference count, saturating at the field's maximum
// (§7: RC saturation makes an object effectively immortal to RC; only the
// tracing cycle collector can then reclaim it).
func IncRef(heap []byte, addr, base uintptr) {
	p := u32At(heap, addr, base)
	if *p < ^uint32(0) {
		*p++
	}
}

// DecRef decrements the reference count; it is a no-op at zero (§3:
// "reference_count is non-negative and saturates"). It reports whether the
// count reached zero as a result of this call.
func DecRef(heap []byte, addr, base uintptr) (reachedZero bool) {
	p := u32At(heap, addr, base)
	if *p == 0 {
		return false
	}

	*p--

	return *p == 0
}

// memberSlotAddr returns the address of the i'th managed reference slot following
// the rtti pointer.
func memberSlotAddr(addr uintptr, i int) uintptr {
	return addr + HeaderSize + uintptr(i)*Word
}

// ReadMember reads the i'th member slot; a zero value means "null" (filtered
// by callers per §3).
func ReadMember(heap []byte, addr, base uintptr, i int) uintptr {
	return *wordAt(heap, memberSlotAddr(addr, i), base)
}

// WriteMember writes the i'th member slot. Callers must invoke the write
// barrier before calling this (§9: "write-barrier discipline").
func WriteMember(heap []byte, addr, base uintptr, i int, value uintptr) {
	*wordAt(heap, memberSlotAddr(addr, i), base) = value
}

// CopyObjectBytes memcpy's size bytes from src to dst within the same heap,
// used by evacuation.
func CopyObjectBytes(heap []byte, dst, src, base, size uintptr) {
	d := heap[dst-base : dst-base+size]
	s := heap[src-base : src-base+size]
	copy(d, s)
}
