package gc

// OverflowAllocator bump-allocates medium objects (MEDIUM_OBJECT <= size <
// LARGE_OBJECT). It never touches recyclable blocks — mixing medium objects
// into a block already fragmented by small-object churn defeats the point
// of separating the two — so it always requests fresh blocks from the
// BlockAllocator (§4.3).
type OverflowAllocator struct {
	bumpBase
}

// NewOverflowAllocator creates an OverflowAllocator over the shared block
// pool.
func NewOverflowAllocator(blocks *BlockAllocator, heap []byte, baseAddr, lineSize uintptr) *OverflowAllocator {
	return &OverflowAllocator{bumpBase{blocks: blocks, heap: heap, baseAddr: baseAddr, lineSize: lineSize}}
}

// Allocate bump-allocates size bytes, refilling from the BlockAllocator only.
func (oa *OverflowAllocator) Allocate(size uintptr) (uintptr, bool) {
	return oa.allocate(size, oa.refill)
}

func (oa *OverflowAllocator) refill() bool {
	block, ok := oa.blocks.GetBlock()
	if !ok {
		return false
	}

	oa.startFresh(block)

	return true
}

// CurrentBlock returns the block the allocator is currently bumping into.
func (oa *OverflowAllocator) CurrentBlock() (*BlockInfo, bool) {
	if oa.cur.empty() {
		return nil, false
	}

	return oa.cur.block, true
}
