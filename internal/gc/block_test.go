package gc

import "testing"

func TestBlockInfo_ScanBlockSkipsSingleLineHoles(t *testing.T) {
	const blockSize, lineSize = 2560, 256

	base := uintptr(0x100000)
	b := NewBlockInfo(base, blockSize, lineSize, nil)

	// Occupy lines 0, 1, 5, 7, leaving a 3-line hole at 2-4, a single-line
	// hole at 6, and a hole running to the block's end at 8-9.
	for _, i := range []int{0, 1, 5, 7} {
		b.lineCounter[i] = 1
	}

	hole, ok := b.ScanBlock(base + lineSize) // resume past line 1
	if !ok {
		t.Fatal("expected a hole")
	}

	wantLow := base + 2*lineSize
	wantHigh := base + 5*lineSize - 1

	if hole.Low != wantLow || hole.High != wantHigh {
		t.Fatalf("hole = {%#x,%#x}, want {%#x,%#x}", hole.Low, hole.High, wantLow, wantHigh)
	}

	// Resuming from the end of that hole must skip the single-line hole at
	// line 6 (§9(c)) and return the larger hole at the block's tail.
	hole2, ok := b.ScanBlock(hole.High)
	if !ok {
		t.Fatal("expected a second hole")
	}

	wantLow2 := base + 8*lineSize
	wantHigh2 := base + blockSize - 1

	if hole2.Low != wantLow2 || hole2.High != wantHigh2 {
		t.Fatalf("hole2 = {%#x,%#x}, want {%#x,%#x}", hole2.Low, hole2.High, wantLow2, wantHigh2)
	}
}

func TestBlockInfo_ScanBlockExhausted(t *testing.T) {
	const blockSize, lineSize = 1024, 256

	base := uintptr(0x200000)
	b := NewBlockInfo(base, blockSize, lineSize, nil)

	for i := range b.lineCounter {
		b.lineCounter[i] = 1
	}

	if _, ok := b.ScanBlock(base); ok {
		t.Fatal("expected no hole in a fully occupied block")
	}
}

func TestBlockInfo_IncrementDecrementLinesAndHoles(t *testing.T) {
	const blockSize, lineSize = 2560, 256

	base := uintptr(0x300000)
	b := NewBlockInfo(base, blockSize, lineSize, nil)

	// A 300-byte object starting at line 2 touches size/lineSize+1 = 2
	// lines: 2 and 3, not 4.
	objAddr := base + 2*lineSize
	b.IncrementLines(objAddr, 300)

	if b.lineCounter[2] == 0 || b.lineCounter[3] == 0 {
		t.Fatalf("expected lines 2 and 3 marked, got %v", b.lineCounter)
	}

	if b.lineCounter[4] != 0 {
		t.Fatalf("line 4 should be untouched, got %d", b.lineCounter[4])
	}

	// Lines 0,1 free; 2,3 occupied; 4-9 free => 2 holes.
	if holes := b.CountHoles(); holes != 2 {
		t.Fatalf("hole count = %d, want 2", holes)
	}

	b.DecrementLines(objAddr, 300)

	if !b.AllZero() {
		t.Fatal("expected all lines zero after decrement")
	}
}

func TestBlockInfo_SaturatingCounters(t *testing.T) {
	const blockSize, lineSize = 256, 256

	b := NewBlockInfo(0x400000, blockSize, lineSize, nil)

	for i := 0; i < 300; i++ {
		b.IncrementLines(b.Base, 1)
	}

	if b.lineCounter[0] != 255 {
		t.Fatalf("counter = %d, want saturated at 255", b.lineCounter[0])
	}

	b.DecrementLines(b.Base, 1)

	if b.lineCounter[0] != 254 {
		t.Fatalf("counter = %d, want 254 after one decrement", b.lineCounter[0])
	}
}

func TestBlockInfo_ObjectMapAndNewObjects(t *testing.T) {
	b := NewBlockInfo(0x500000, 1024, 256, nil)

	addr1 := b.Base + 256
	addr2 := b.Base + 512

	b.SetGCObject(addr1)
	b.SetNewObject(addr1)
	b.SetGCObject(addr2)
	b.SetNewObject(addr2)

	if !b.IsGCObject(addr1) || !b.IsGCObject(addr2) {
		t.Fatal("expected both objects registered")
	}

	if got := b.NewObjects(); len(got) != 2 {
		t.Fatalf("new objects = %v, want 2 entries", got)
	}

	b.RemoveNewObjectsFromMap()

	if b.IsGCObject(addr1) || b.IsGCObject(addr2) {
		t.Fatal("expected provisional registrations removed")
	}

	if len(b.NewObjects()) != 0 {
		t.Fatal("expected new-objects list cleared")
	}

	b.UnsetGCObject(addr1)
	if b.IsGCObject(addr1) {
		t.Fatal("expected addr1 removed")
	}
}

func TestBlockInfo_EvacuationCandidate(t *testing.T) {
	b := NewBlockInfo(0x600000, 2560, 256, nil)

	b.lineCounter[2] = 1
	b.lineCounter[3] = 1

	holes := b.CountHoles() // 2 holes: lines 0-1, lines 4-9

	if holes != 2 {
		t.Fatalf("hole count = %d, want 2", holes)
	}

	b.SetEvacuationCandidate(2)
	if !b.EvacuationCandidate() {
		t.Fatal("expected candidacy at threshold")
	}

	b.SetEvacuationCandidate(3)
	if b.EvacuationCandidate() {
		t.Fatal("expected no candidacy below threshold")
	}
}
