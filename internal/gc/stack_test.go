package gc

import (
	"testing"

	"go.uber.org/mock/gomock"
)

func TestStack_EnumerateRootsViaFrameSource(t *testing.T) {
	ctrl := gomock.NewController(t)

	blocks, err := NewBlockAllocator(DefaultHeapSize, DefaultBlockSize, DefaultLineSize)
	if err != nil {
		t.Fatalf("NewBlockAllocator: %v", err)
	}
	defer blocks.Release()

	space := NewImmixSpace(blocks, DefaultLineSize, DefaultLargeObject)

	rtti := &GCRTTI{ObjectSize: 128, Members: 0}

	addr, ok := space.Allocate(rtti)
	if !ok {
		t.Fatal("allocate failed")
	}

	block, ok := space.BlockOf(addr)
	if !ok {
		t.Fatal("block not found")
	}

	heap := space.Heap()
	base := space.Base()

	// The block's reserved first line is never handed to a bump allocator
	// (§4.2/§4.3), so it is safe scratch space to stand in for a
	// conservative stack frame holding a pointer to addr.
	scratchLo := block.Base
	scratchHi := block.Base + DefaultLineSize
	*wordAt(heap, scratchLo, base) = addr

	mockFrames := NewMockFrameSource(ctrl)
	mockFrames.EXPECT().ScanRange().Return(scratchLo, scratchHi, true)

	stack := NewStack(mockFrames, NewExplicitRoots())

	roots := stack.EnumerateRoots(heap, base, space.IsGCObject)

	if len(roots) != 1 || roots[0] != addr {
		t.Fatalf("roots = %v, want [%#x]", roots, addr)
	}
}

func TestStack_EnumerateRootsExplicitOnly(t *testing.T) {
	blocks, err := NewBlockAllocator(DefaultHeapSize, DefaultBlockSize, DefaultLineSize)
	if err != nil {
		t.Fatalf("NewBlockAllocator: %v", err)
	}
	defer blocks.Release()

	space := NewImmixSpace(blocks, DefaultLineSize, DefaultLargeObject)

	rtti := &GCRTTI{ObjectSize: 128, Members: 0}

	addr, ok := space.Allocate(rtti)
	if !ok {
		t.Fatal("allocate failed")
	}

	roots := NewExplicitRoots()
	roots.PushRoot(addr)

	stack := NewStack(nil, roots)

	got := stack.EnumerateRoots(space.Heap(), space.Base(), space.IsGCObject)
	if len(got) != 1 || got[0] != addr {
		t.Fatalf("got %v, want [%#x]", got, addr)
	}

	roots.PopRoot()

	got2 := stack.EnumerateRoots(space.Heap(), space.Base(), space.IsGCObject)
	if len(got2) != 0 {
		t.Fatalf("expected no roots after pop, got %v", got2)
	}
}

func TestExplicitRoots_StaticRoot(t *testing.T) {
	blocks, err := NewBlockAllocator(DefaultHeapSize, DefaultBlockSize, DefaultLineSize)
	if err != nil {
		t.Fatalf("NewBlockAllocator: %v", err)
	}
	defer blocks.Release()

	space := NewImmixSpace(blocks, DefaultLineSize, DefaultLargeObject)

	rtti := &GCRTTI{ObjectSize: 128, Members: 0}

	addr, ok := space.Allocate(rtti)
	if !ok {
		t.Fatal("allocate failed")
	}

	var slot uintptr = addr

	roots := NewExplicitRoots()
	roots.SetStaticRoot(&slot)

	stack := NewStack(nil, roots)

	got := stack.EnumerateRoots(space.Heap(), space.Base(), space.IsGCObject)
	if len(got) != 1 || got[0] != addr {
		t.Fatalf("got %v, want [%#x]", got, addr)
	}

	slot = 0

	got2 := stack.EnumerateRoots(space.Heap(), space.Base(), space.IsGCObject)
	if len(got2) != 0 {
		t.Fatalf("expected no roots once the static slot is cleared, got %v", got2)
	}
}
