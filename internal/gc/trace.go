package gc

// ImmixCollector is the classical mark/trace pass that drives the sweep
// (§4.7). It shares the RC collector's object/member accessors and
// ImmixSpace's evacuation primitive, but walks the heap transitively from
// roots instead of via reference counts.
type ImmixCollector struct {
	space *ImmixSpace
	los   *LargeObjectSpace
	rc    *RCCollector // reused only for its resolve/member helpers
}

// NewImmixCollector creates an ImmixCollector over the given spaces.
func NewImmixCollector(space *ImmixSpace, los *LargeObjectSpace, rc *RCCollector) *ImmixCollector {
	return &ImmixCollector{space: space, los: los, rc: rc}
}

// Trace runs one full mark phase from roots, returning the flipped
// next-live-mark value every survivor was stamped with.
func (ic *ImmixCollector) Trace(roots []uintptr, evac bool) bool {
	nextLiveMark := !ic.space.CurrentLiveMark()

	worklist := append([]uintptr(nil), roots...)

	for len(worklist) > 0 {
		n := len(worklist)
		obj := worklist[n-1]
		worklist = worklist[:n-1]

		heap, base, size, isLOS := ic.rc.resolve(obj)

		if IsMarked(heap, obj, base) == nextLiveMark {
			continue // already flipped this cycle
		}

		SetMarked(heap, obj, base, nextLiveMark)

		if !isLOS {
			if block, ok := ic.space.BlockOf(obj); ok {
				block.SetGCObject(obj)
				block.IncrementLines(obj, size)
			}
		}

		numMembers := ic.rc.members(heap, obj, base, isLOS)

		for i := 0; i < numMembers; i++ {
			child := ReadMember(heap, obj, base, i)
			if child == 0 {
				continue
			}

			childHeap, childBase, childSize, childIsLOS := ic.rc.resolve(child)

			if IsForwarded(childHeap, child, childBase) {
				newAddr := ForwardingAddress(childHeap, child, childBase)
				WriteMember(heap, obj, base, i, newAddr)

				continue
			}

			if IsMarked(childHeap, child, childBase) == nextLiveMark {
				continue
			}

			target := child

			if evac && !childIsLOS {
				if newAddr, ok := ic.space.MaybeEvacuate(child, childSize); ok {
					WriteMember(heap, obj, base, i, newAddr)
					target = newAddr
				}
			}

			worklist = append(worklist, target)
		}
	}

	return nextLiveMark
}
