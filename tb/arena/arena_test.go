package arena

import "testing"

func TestAllocReturnsDistinctZeroedSlices(t *testing.T) {
	a := New()
	x := a.Alloc(16)
	y := a.Alloc(16)
	for i := range x {
		if x[i] != 0 {
			t.Fatalf("expected zeroed bytes, got %v at %d", x[i], i)
		}
	}
	x[0] = 0xFF
	if y[0] == 0xFF {
		t.Fatal("Alloc returned overlapping slices")
	}
}

func TestAllocGrowsPastChunkSize(t *testing.T) {
	a := New()
	big := a.Alloc(defaultChunkSize + 1)
	if len(big) != defaultChunkSize+1 {
		t.Fatalf("expected %d bytes, got %d", defaultChunkSize+1, len(big))
	}
	if a.Bytes() < defaultChunkSize+1 {
		t.Fatalf("expected Bytes to account for the oversized chunk, got %d", a.Bytes())
	}
}

func TestResetKeepsFirstChunkOnly(t *testing.T) {
	a := New()
	a.Alloc(defaultChunkSize + 1) // forces a second chunk
	if len(a.chunks) < 2 {
		t.Fatal("expected Alloc to have grown a second chunk")
	}
	a.Reset()
	if len(a.chunks) != 1 {
		t.Fatalf("expected Reset to drop extra chunks, got %d remaining", len(a.chunks))
	}
	if a.Bytes() != defaultChunkSize {
		t.Fatalf("expected Bytes to report just the first chunk (%d), got %d", defaultChunkSize, a.Bytes())
	}
}
