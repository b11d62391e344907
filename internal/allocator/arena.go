package allocator

import (
	"fmt"
	"sync"
	"unsafe"
)

// ArenaAllocatorImpl is a bump allocator over a fixed buffer. The collector
// uses it to carve its per-block line-counter tables out of one
// reservation instead of allocating each one
// through the regular Go heap, keeping collector bookkeeping out of the
// mutator's own GC pressure.
type ArenaAllocatorImpl struct {
	config         *Config
	buffer         []byte
	current        uintptr
	size           uintptr
	allocations    uint64
	totalAllocated uintptr
	peakUsage      uintptr
	mu             sync.RWMutex
}

// NewArenaAllocator creates a new arena allocator.
func NewArenaAllocator(size uintptr, config *Config) (*ArenaAllocatorImpl, error) {
	if size == 0 {
		return nil, fmt.Errorf("arena size must be greater than 0")
	}

	if config == nil {
		config = DefaultConfig()
	}

	buffer := make([]byte, size)

	return &ArenaAllocatorImpl{
		config: config,
		buffer: buffer,
		size:   size,
	}, nil
}

// Alloc allocates memory from the arena.
func (aa *ArenaAllocatorImpl) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	alignedSize := alignUp(size, aa.config.AlignmentSize)

	aa.mu.Lock()
	defer aa.mu.Unlock()

	if aa.current+alignedSize > aa.size {
		return nil // out of arena space
	}

	ptr := unsafe.Pointer(&aa.buffer[aa.current])

	aa.current += alignedSize
	aa.allocations++
	aa.totalAllocated += alignedSize

	if aa.current > aa.peakUsage {
		aa.peakUsage = aa.current
	}

	return ptr
}

// AllocAligned allocates memory with a caller-specified alignment in place
// of the arena's default word alignment (the collector carves its byte-wide
// line-counter tables with alignment 1).
func (aa *ArenaAllocatorImpl) AllocAligned(size, alignment uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	alignedCurrent := alignUp(aa.current, alignment)
	alignedSize := alignUp(size, aa.config.AlignmentSize)

	if alignedCurrent+alignedSize > aa.size {
		return nil
	}

	ptr := unsafe.Pointer(&aa.buffer[alignedCurrent])

	aa.current = alignedCurrent + alignedSize
	aa.allocations++
	aa.totalAllocated += alignedSize

	if aa.current > aa.peakUsage {
		aa.peakUsage = aa.current
	}

	return ptr
}

// Free is a no-op; the arena only releases memory on Reset.
func (aa *ArenaAllocatorImpl) Free(ptr unsafe.Pointer) {}

// CanAlloc reports whether an allocation of size would succeed without
// performing it.
func (aa *ArenaAllocatorImpl) CanAlloc(size uintptr) bool {
	alignedSize := alignUp(size, aa.config.AlignmentSize)

	aa.mu.RLock()
	defer aa.mu.RUnlock()

	return aa.current+alignedSize <= aa.size
}

// Reset rewinds the arena, invalidating every pointer previously returned by
// Alloc/AllocAligned. Callers must guarantee nothing still references that
// memory before calling Reset.
func (aa *ArenaAllocatorImpl) Reset() {
	aa.mu.Lock()
	defer aa.mu.Unlock()

	aa.current = 0
	aa.allocations = 0
	aa.totalAllocated = 0
	aa.peakUsage = 0
}

// Available returns the amount of unused space in the arena.
func (aa *ArenaAllocatorImpl) Available() uintptr {
	aa.mu.RLock()
	defer aa.mu.RUnlock()

	return aa.size - aa.current
}

// Used returns the amount of space currently carved out.
func (aa *ArenaAllocatorImpl) Used() uintptr {
	aa.mu.RLock()
	defer aa.mu.RUnlock()

	return aa.current
}

// Size returns the total arena capacity.
func (aa *ArenaAllocatorImpl) Size() uintptr {
	return aa.size
}

// ArenaStats summarizes arena usage.
type ArenaStats struct {
	TotalAllocated  uintptr
	BytesInUse      uintptr
	PeakUsage       uintptr
	AllocationCount uint64
	Capacity        uintptr
}

// Stats returns allocation statistics.
func (aa *ArenaAllocatorImpl) Stats() ArenaStats {
	aa.mu.RLock()
	defer aa.mu.RUnlock()

	return ArenaStats{
		TotalAllocated:  aa.totalAllocated,
		BytesInUse:      aa.current,
		PeakUsage:       aa.peakUsage,
		AllocationCount: aa.allocations,
		Capacity:        aa.size,
	}
}
