package allocator

import "unsafe"

// addrOf returns the address a byte points at. Centralized so the one
// unsafe.Pointer-to-uintptr conversion the Region bookkeeping needs lives in
// a single, easily audited place.
func addrOf(b *byte) uintptr {
	return uintptr(unsafe.Pointer(b))
}
