package gc

// ImmixSpace is the façade over the three bump allocators and the shared
// BlockAllocator (§4.4). It dispatches allocate by size, provides the
// evacuation primitive, and stages/destages the block lists at collection
// boundaries.
type ImmixSpace struct {
	blocks *BlockAllocator
	heap   []byte
	base   uintptr

	lineSize     uintptr
	mediumObject uintptr // MEDIUM_OBJECT == LINE_SIZE
	largeObject  uintptr

	normal   *NormalAllocator
	overflow *OverflowAllocator
	evac     *EvacAllocator

	// unavailable holds blocks the last sweep found to have zero holes;
	// they sit out of rotation until a future sweep finds them fully free
	// again and resets them.
	unavailable []*BlockInfo

	currentLiveMark bool

	// rttiTable maps the small integer id stored in an object's rtti slot
	// back to the GCRTTI the mutator registered it with. A raw Go pointer
	// address cannot be stored in the object's rtti slot directly: nothing
	// would keep the *GCRTTI alive for Go's own GC once only a uintptr
	// referenced it, so the slot holds a stable id into this table instead
	// (table entries are appended, never removed, for the runtime's
	// lifetime).
	rttiTable []*GCRTTI
}

// RegisterRTTI records rtti and returns the stable id to store in an
// object's rtti slot.
func (s *ImmixSpace) RegisterRTTI(rtti *GCRTTI) uintptr {
	s.rttiTable = append(s.rttiTable, rtti)

	return uintptr(len(s.rttiTable)) // 1-based; 0 is never a valid id
}

// RTTIFor looks up a previously registered GCRTTI by id.
func (s *ImmixSpace) RTTIFor(id uintptr) *GCRTTI {
	if id == 0 || int(id) > len(s.rttiTable) {
		return nil
	}

	return s.rttiTable[id-1]
}

// NewImmixSpace wires the three allocators to one BlockAllocator.
func NewImmixSpace(blocks *BlockAllocator, lineSize, largeObject uintptr) *ImmixSpace {
	heap := blocks.Bytes()
	base := blocks.BaseAddr()

	return &ImmixSpace{
		blocks:       blocks,
		heap:         heap,
		base:         base,
		lineSize:     lineSize,
		mediumObject: lineSize,
		largeObject:  largeObject,
		normal:       NewNormalAllocator(blocks, heap, base, lineSize),
		overflow:     NewOverflowAllocator(blocks, heap, base, lineSize),
		evac:         NewEvacAllocator(blocks, heap, base, lineSize),
	}
}

// CurrentLiveMark returns the space-wide live-mark colour.
func (s *ImmixSpace) CurrentLiveMark() bool { return s.currentLiveMark }

// liveMarkPtr exposes the live-mark field by address so LargeObjectSpace can
// track the same cycle colour without duplicating FlipLiveMark's state.
func (s *ImmixSpace) liveMarkPtr() *bool { return &s.currentLiveMark }

// FlipLiveMark flips the live-mark colour, called once a tracing cycle
// completes and its sweep is done (§3, §4.8 step 7).
func (s *ImmixSpace) FlipLiveMark() { s.currentLiveMark = !s.currentLiveMark }

// Heap exposes the raw backing bytes for object field access.
func (s *ImmixSpace) Heap() []byte { return s.heap }

// Base returns the reservation's base address.
func (s *ImmixSpace) Base() uintptr { return s.base }

// Allocate dispatches by size to the Normal or Overflow allocator, writes
// the header, and registers the object in its block (§4.4). This is the
// only place a freshly allocated object's lines are counted; RC's
// mod-buffer pass (processModBuffer) re-affirms the object map on every
// later pass but never increments lines again, and MaybeEvacuate moves the
// one increment from the old block to the new one rather than adding a
// second, so the count an object carries always matches exactly one live
// copy of it.
func (s *ImmixSpace) Allocate(rtti *GCRTTI) (uintptr, bool) {
	size := rtti.ObjectSize

	var (
		addr uintptr
		ok   bool
	)

	if size < s.mediumObject {
		addr, ok = s.normal.Allocate(size)
	} else {
		addr, ok = s.overflow.Allocate(size)
	}

	if !ok {
		return 0, false
	}

	rttiID := s.RegisterRTTI(rtti)
	writeHeader(s.heap, s.base, addr, rttiID, size, s.lineSize, s.currentLiveMark)

	block, found := s.blocks.BlockOf(addr)
	if found {
		block.SetGCObject(addr)
		block.SetNewObject(addr)
		block.IncrementLines(addr, size)
	}

	return addr, true
}

// MaybeEvacuate attempts to copy a live object into evacuation headroom. It
// returns (0, false) when the object is pinned, its block is not an
// evacuation candidate, or the EvacAllocator's headroom is exhausted — in
// every case the caller simply keeps using the object's current address
// (§4.4). On success the old block's line count for addr is handed off to
// the new block's count for newAddr rather than left standing, so a moved
// object is never counted live in two places at once.
func (s *ImmixSpace) MaybeEvacuate(addr uintptr, size uintptr) (uintptr, bool) {
	if IsPinned(s.heap, addr, s.base) {
		return 0, false
	}

	block, ok := s.blocks.BlockOf(addr)
	if !ok || !block.EvacuationCandidate() {
		return 0, false
	}

	newAddr, ok := s.evac.Allocate(size)
	if !ok {
		return 0, false
	}

	CopyObjectBytes(s.heap, newAddr, addr, s.base, size)
	SetForwarded(s.heap, addr, s.base, newAddr)
	block.UnsetGCObject(addr)
	block.DecrementLines(addr, size)

	if newBlock, found := s.blocks.BlockOf(newAddr); found {
		newBlock.SetGCObject(newAddr)
		newBlock.IncrementLines(newAddr, size)
	}

	return newAddr, true
}

// GetAllBlocks drains every block the three allocators currently hold —
// current bump blocks, the recyclable queue, the evac headroom, and the
// blocks parked as unavailable — into one flat slice, used to stage a
// collection (§4.4).
func (s *ImmixSpace) GetAllBlocks() []*BlockInfo {
	seen := make(map[uintptr]struct{})

	var all []*BlockInfo

	add := func(b *BlockInfo) {
		if b == nil {
			return
		}

		if _, dup := seen[b.Base]; dup {
			return
		}

		seen[b.Base] = struct{}{}
		all = append(all, b)
	}

	if b, ok := s.normal.CurrentBlock(); ok {
		add(b)
	}

	for _, b := range s.normal.RecyclableBlocks() {
		add(b)
	}

	if b, ok := s.overflow.CurrentBlock(); ok {
		add(b)
	}

	if b, ok := s.evac.CurrentBlock(); ok {
		add(b)
	}

	for _, b := range s.evac.headroom {
		add(b)
	}

	for _, b := range s.unavailable {
		add(b)
	}

	return all
}

// SetRecyclableBlocks installs the recyclable queue the last sweep produced.
func (s *ImmixSpace) SetRecyclableBlocks(blocks []*BlockInfo) {
	s.normal.SetRecyclableBlocks(blocks)
}

// SetUnavailableBlocks installs the unavailable list the last sweep produced.
func (s *ImmixSpace) SetUnavailableBlocks(blocks []*BlockInfo) {
	s.unavailable = blocks
}

// ExtendEvacHeadroom tops up the evacuation reserve.
func (s *ImmixSpace) ExtendEvacHeadroom(blocks []*BlockInfo) {
	s.evac.ExtendHeadroom(blocks)
}

// EvacHeadroomLen reports the current reserve size.
func (s *ImmixSpace) EvacHeadroomLen() int { return s.evac.HeadroomLen() }

// ReturnBlocks pushes blocks back onto the BlockAllocator's global free
// list (surplus after rebalancing headroom).
func (s *ImmixSpace) ReturnBlocks(blocks []*BlockInfo) {
	s.blocks.ReturnBlocks(blocks)
}

// BlockOf recovers a block's metadata from an interior pointer.
func (s *ImmixSpace) BlockOf(addr uintptr) (*BlockInfo, bool) {
	return s.blocks.BlockOf(addr)
}

// IsGCObject reports whether addr is a live object address in this space.
func (s *ImmixSpace) IsGCObject(addr uintptr) bool {
	block, ok := s.blocks.BlockOf(addr)
	if !ok {
		return false
	}

	return block.IsGCObject(addr)
}
