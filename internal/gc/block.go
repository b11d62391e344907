package gc

// BlockInfo is the per-block metadata §4.2 describes: line liveness
// counters, the set of valid object addresses in the block, the objects
// allocated since the last collection, and the evacuation-candidacy
// bookkeeping the collector's policy consults.
//
// The original keeps this struct in the block's own first line so that any
// interior pointer recovers its metadata by address-masking alone. Go gives
// no safe way to embed a value containing maps inside raw, GC-invisible heap
// bytes, so BlockInfo lives in a side table the BlockAllocator maintains,
// keyed by the block's base address; recovery from an interior pointer still
// goes through the same mask-to-base arithmetic, it just indexes the side
// table instead of dereferencing in place. The block's first line is still
// reserved and never handed to the bump allocators, preserving the
// (LINE_SIZE, BLOCK_SIZE-1) initial bump window §4.3 specifies.
type BlockInfo struct {
	Base     uintptr
	BlockSize uintptr
	LineSize  uintptr

	lineCounter []uint8 // per-line live count, saturating at 255
	objectMap   map[uintptr]struct{}
	newObjects  []uintptr

	holeCount            int
	evacuationCandidate  bool
	allocated            bool
}

// NewBlockInfo creates metadata for a freshly carved block. counters, if
// non-nil, is a pre-sized line-counter buffer carved from the
// BlockAllocator's metadata arena (see blockalloc.go); passing nil falls
// back to a plain Go-heap slice.
func NewBlockInfo(base, blockSize, lineSize uintptr, counters []uint8) *BlockInfo {
	if counters == nil {
		counters = make([]uint8, blockSize/lineSize)
	}

	return &BlockInfo{
		Base:        base,
		BlockSize:   blockSize,
		LineSize:    lineSize,
		lineCounter: counters,
		objectMap:   make(map[uintptr]struct{}),
	}
}

// NumLines returns the number of lines in this block.
func (b *BlockInfo) NumLines() int { return len(b.lineCounter) }

func (b *BlockInfo) lineOf(addr uintptr) int {
	return int((addr - b.Base) / b.LineSize)
}

// Reset zeroes counters and clears maps and flags, returning the block to
// its just-carved state.
func (b *BlockInfo) Reset() {
	for i := range b.lineCounter {
		b.lineCounter[i] = 0
	}

	b.objectMap = make(map[uintptr]struct{})
	b.newObjects = b.newObjects[:0]
	b.holeCount = 0
	b.evacuationCandidate = false
}

// SetAllocated marks the block as having been handed out at least once.
func (b *BlockInfo) SetAllocated() { b.allocated = true }

// Allocated reports whether the block has ever been handed out.
func (b *BlockInfo) Allocated() bool { return b.allocated }

// Hole is a contiguous run of zero-count lines, expressed as the absolute
// byte range [Low, High] within the block: High is the hole's last byte.
type Hole struct {
	Low, High uintptr
}

// ScanBlock finds the next hole of contiguous free lines strictly above
// lastHighOffset, an absolute address within this block (the same address
// space as the Hole.High this function returns, so callers can feed a
// previous result straight back in). It skips one line past the last
// high-water mark to tolerate objects that straddle a boundary, then looks
// for the first zero-count line (the hole's low) and the first subsequent
// non-zero line (one line before which is the hole's high). A single-line
// candidate not at the block's final line triggers a rescan starting at
// that line's end, since a straddling object may still consume it (§9(c):
// deliberate conservatism, not a bug).
func (b *BlockInfo) ScanBlock(lastHighOffset uintptr) (Hole, bool) {
	numLines := len(b.lineCounter)
	startLine := int((lastHighOffset-b.Base)/b.LineSize) + 1

	for startLine < numLines {
		// Find the first free line at or after startLine.
		lowLine := -1

		for i := startLine; i < numLines; i++ {
			if b.lineCounter[i] == 0 {
				lowLine = i

				break
			}
		}

		if lowLine == -1 {
			return Hole{}, false
		}

		// Find the first occupied line after lowLine.
		highLine := numLines

		for i := lowLine + 1; i < numLines; i++ {
			if b.lineCounter[i] != 0 {
				highLine = i

				break
			}
		}

		if highLine-lowLine == 1 && highLine != numLines {
			// Single-line hole not at the block's end: rescan past it.
			startLine = highLine + 1

			continue
		}

		low := b.Base + uintptr(lowLine)*b.LineSize
		high := b.Base + uintptr(highLine)*b.LineSize - 1

		return Hole{Low: low, High: high}, true
	}

	return Hole{}, false
}

// IncrementLines marks the lines an object of the given size occupies,
// starting at obj's offset within the block. One extra line is always
// touched beyond size/LineSize to cover the straddle case ScanBlock assumes.
func (b *BlockInfo) IncrementLines(obj uintptr, size uintptr) {
	start := b.lineOf(obj)
	count := int(size/b.LineSize) + 1

	for i := start; i < start+count && i < len(b.lineCounter); i++ {
		if b.lineCounter[i] < 255 {
			b.lineCounter[i]++
		}
	}
}

// DecrementLines is IncrementLines's inverse; it saturates at zero.
func (b *BlockInfo) DecrementLines(obj uintptr, size uintptr) {
	start := b.lineOf(obj)
	count := int(size/b.LineSize) + 1

	for i := start; i < start+count && i < len(b.lineCounter); i++ {
		if b.lineCounter[i] > 0 {
			b.lineCounter[i]--
		}
	}
}

// CountHoles folds the line counter array left to right, counting maximal
// runs of zero-count lines, and caches the result in holeCount.
func (b *BlockInfo) CountHoles() int {
	holes := 0
	inHole := false

	for _, c := range b.lineCounter {
		if c == 0 {
			if !inHole {
				holes++
				inHole = true
			}
		} else {
			inHole = false
		}
	}

	b.holeCount = holes

	return holes
}

// CountHolesAndMarkedLines returns the hole count and the number of
// non-zero (marked) lines, for the sweep's mark histogram.
func (b *BlockInfo) CountHolesAndMarkedLines() (holes, marked int) {
	inHole := false

	for _, c := range b.lineCounter {
		if c == 0 {
			if !inHole {
				holes++
				inHole = true
			}
		} else {
			inHole = false
			marked++
		}
	}

	return holes, marked
}

// CountHolesAndAvailableLines returns the hole count and the number of
// zero (available) lines, for the hole-threshold histogram.
func (b *BlockInfo) CountHolesAndAvailableLines() (holes, available int) {
	inHole := false

	for _, c := range b.lineCounter {
		if c == 0 {
			available++

			if !inHole {
				holes++
				inHole = true
			}
		} else {
			inHole = false
		}
	}

	return holes, available
}

// HoleCount returns the last computed hole count.
func (b *BlockInfo) HoleCount() int { return b.holeCount }

// SetEvacuationCandidate marks the block as a candidate iff its hole count
// meets or exceeds threshold.
func (b *BlockInfo) SetEvacuationCandidate(threshold int) {
	b.evacuationCandidate = b.holeCount >= threshold
}

// EvacuationCandidate reports whether this block was marked a candidate.
func (b *BlockInfo) EvacuationCandidate() bool { return b.evacuationCandidate }

// SetGCObject registers addr as a valid object address.
func (b *BlockInfo) SetGCObject(addr uintptr) { b.objectMap[addr] = struct{}{} }

// UnsetGCObject removes addr from the object map.
func (b *BlockInfo) UnsetGCObject(addr uintptr) { delete(b.objectMap, addr) }

// IsGCObject reports whether addr is a currently valid object address in
// this block.
func (b *BlockInfo) IsGCObject(addr uintptr) bool {
	_, ok := b.objectMap[addr]

	return ok
}

// SetNewObject records addr as allocated since the last collection.
func (b *BlockInfo) SetNewObject(addr uintptr) {
	b.newObjects = append(b.newObjects, addr)
}

// NewObjects returns the objects allocated since the last collection.
func (b *BlockInfo) NewObjects() []uintptr { return b.newObjects }

// RemoveNewObjectsFromMap removes every recorded new object from the object
// map (they are re-added by the RC mod-buffer pass once they are actually
// referenced) and clears the new-objects list.
func (b *BlockInfo) RemoveNewObjectsFromMap() {
	for _, addr := range b.newObjects {
		delete(b.objectMap, addr)
	}

	b.newObjects = b.newObjects[:0]
}

// AllZero reports whether every line counter in the block is zero.
func (b *BlockInfo) AllZero() bool {
	for _, c := range b.lineCounter {
		if c != 0 {
			return false
		}
	}

	return true
}
