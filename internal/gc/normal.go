package gc

// NormalAllocator bump-allocates small objects (size < MEDIUM_OBJECT). When
// its current block has no usable hole it first tries a recyclable block
// (one with at least one hole, returned by a previous sweep) before asking
// the BlockAllocator for a fresh one (§4.3).
type NormalAllocator struct {
	bumpBase
	recyclable []*BlockInfo
}

// NewNormalAllocator creates a NormalAllocator over the shared block pool.
func NewNormalAllocator(blocks *BlockAllocator, heap []byte, baseAddr, lineSize uintptr) *NormalAllocator {
	return &NormalAllocator{bumpBase: bumpBase{blocks: blocks, heap: heap, baseAddr: baseAddr, lineSize: lineSize}}
}

// Allocate bump-allocates size bytes, refilling from recyclables then the
// BlockAllocator as needed.
func (na *NormalAllocator) Allocate(size uintptr) (uintptr, bool) {
	return na.allocate(size, na.refill)
}

func (na *NormalAllocator) refill() bool {
	if n := len(na.recyclable); n > 0 {
		block := na.recyclable[n-1]
		na.recyclable = na.recyclable[:n-1]
		na.startRecyclable(block)

		return true
	}

	block, ok := na.blocks.GetBlock()
	if !ok {
		return false
	}

	na.startFresh(block)

	return true
}

// SetRecyclableBlocks replaces the recyclable queue, called by ImmixSpace
// after a sweep classifies blocks with at least one hole as recyclable.
func (na *NormalAllocator) SetRecyclableBlocks(blocks []*BlockInfo) {
	na.recyclable = blocks
}

// CurrentBlock returns the block the allocator is currently bumping into,
// if any (used when draining all blocks for a collection).
func (na *NormalAllocator) CurrentBlock() (*BlockInfo, bool) {
	if na.cur.empty() {
		return nil, false
	}

	return na.cur.block, true
}

// RecyclableBlocks returns the allocator's remaining recyclable queue.
func (na *NormalAllocator) RecyclableBlocks() []*BlockInfo { return na.recyclable }
