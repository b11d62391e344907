package gc

import (
	"unsafe"

	"github.com/orizon-lang/rcimmix/internal/allocator"
	gcerrors "github.com/orizon-lang/rcimmix/internal/errors"
)

// BlockAllocator owns the one memory reservation of HEAP_SIZE+BLOCK_SIZE
// bytes and hands out BLOCK_SIZE-aligned blocks from it, either by popping a
// previously returned block off a LIFO free list or by carving the next
// unused block from the reservation. It never itself decides to collect;
// exhaustion is silent (§4.1), the caller (ImmixSpace/Collector) is
// responsible for triggering a collection and retrying.
type BlockAllocator struct {
	region    *allocator.Region
	blockSize uintptr
	lineSize  uintptr
	numLines  uintptr

	cursor   uintptr // next uncarved block, relative to region base
	freeList []uintptr
	blocks   map[uintptr]*BlockInfo

	// lineMeta is an arena bump allocator metadata records (line-counter
	// bytes) are carved from, one slice per block, so carving a block never
	// puts a fresh small Go-heap allocation in front of the mutator's own
	// GC: the counters are pure bytes with no pointers, a natural fit for
	// allocator.ArenaAllocatorImpl (see internal/allocator/arena.go).
	// Carving falls back to a plain make() if the arena is ever exhausted,
	// which it should not be: it is sized for every block the reservation
	// can ever carve.
	lineMeta *allocator.ArenaAllocatorImpl
}

// NewBlockAllocator reserves heapSize+blockSize bytes, aligned to blockSize,
// and validates blockSize against the OS page size (§9 open question (a)).
func NewBlockAllocator(heapSize, blockSize, lineSize uintptr) (*BlockAllocator, error) {
	if page := allocator.PageSize(); blockSize < page {
		return nil, gcerrors.BlockSizeTooSmall(blockSize, page)
	}

	region, err := allocator.NewRegion(heapSize+blockSize, blockSize)
	if err != nil {
		return nil, gcerrors.HeapReservationFailed(heapSize+blockSize, err)
	}

	numLines := blockSize / lineSize
	totalBlocks := region.Size() / blockSize
	lineMeta, err := allocator.NewArenaAllocator((totalBlocks+1)*numLines, nil)
	if err != nil {
		return nil, gcerrors.HeapReservationFailed((totalBlocks+1)*numLines, err)
	}

	return &BlockAllocator{
		region:    region,
		blockSize: blockSize,
		lineSize:  lineSize,
		numLines:  numLines,
		blocks:    make(map[uintptr]*BlockInfo),
		lineMeta:  lineMeta,
	}, nil
}

// carveLineCounters hands out a fresh numLines-byte buffer from the metadata
// arena, or nil if the arena is (unexpectedly) exhausted, in which case
// NewBlockInfo falls back to a plain Go-heap slice.
func (ba *BlockAllocator) carveLineCounters() []uint8 {
	ptr := ba.lineMeta.AllocAligned(ba.numLines, 1)
	if ptr == nil {
		return nil
	}

	return unsafe.Slice((*uint8)(ptr), ba.numLines)
}

// TotalBlocks returns the number of blocks the reservation can carve.
func (ba *BlockAllocator) TotalBlocks() int {
	return int(ba.region.Size() / ba.blockSize)
}

// AvailableBlocks returns the number of blocks still obtainable: those
// already on the free list plus those not yet carved.
func (ba *BlockAllocator) AvailableBlocks() int {
	uncarved := (ba.region.Size() - ba.cursor) / ba.blockSize

	return len(ba.freeList) + int(uncarved)
}

// GetBlock pops a block from the free list, or carves the next unused block,
// or returns (nil, false) if the reservation is exhausted.
func (ba *BlockAllocator) GetBlock() (*BlockInfo, bool) {
	if n := len(ba.freeList); n > 0 {
		base := ba.freeList[n-1]
		ba.freeList = ba.freeList[:n-1]

		return ba.blocks[base], true
	}

	if ba.cursor+ba.blockSize > ba.region.Size() {
		return nil, false
	}

	base := ba.region.Base() + ba.cursor
	ba.cursor += ba.blockSize

	info := NewBlockInfo(base, ba.blockSize, ba.lineSize, ba.carveLineCounters())
	info.SetAllocated()
	ba.blocks[base] = info

	return info, true
}

// ReturnBlocks pushes blocks back onto the free list after Reset.
func (ba *BlockAllocator) ReturnBlocks(blocks []*BlockInfo) {
	for _, b := range blocks {
		ba.freeList = append(ba.freeList, b.Base)
	}
}

// IsInSpace reports whether addr falls within the managed reservation.
func (ba *BlockAllocator) IsInSpace(addr uintptr) bool {
	base := ba.region.Base()

	return addr >= base && addr < base+ba.region.Size()
}

// BlockOf recovers the BlockInfo owning an interior pointer by masking it
// down to its BLOCK_SIZE-aligned base (§4.4 "block pointer recovery").
func (ba *BlockAllocator) BlockOf(addr uintptr) (*BlockInfo, bool) {
	base := addr - (addr-ba.region.Base())%ba.blockSize
	info, ok := ba.blocks[base]

	return info, ok
}

// Bytes exposes the raw backing storage, used by allocators to write
// object bytes and by the evacuator to memcpy between blocks.
func (ba *BlockAllocator) Bytes() []byte { return ba.region.Bytes() }

// BaseAddr returns the reservation's base address, for pointer arithmetic
// against Bytes().
func (ba *BlockAllocator) BaseAddr() uintptr { return ba.region.Base() }

// Release returns the entire reservation to the OS. Only called when the
// Runtime is destroyed.
func (ba *BlockAllocator) Release() error { return ba.region.Release() }
