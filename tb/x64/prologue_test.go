package x64

import "testing"

// TestComputeFrameExtractsCalleeSavedRegsInOrder checks that ComputeFrame
// only mentions the registers the allocator's mask actually dirtied, in
// ascending register-number order (bits.TrailingZeros32 walk).
func TestComputeFrameExtractsCalleeSavedRegsInOrder(t *testing.T) {
	mask := uint32(1<<RBX | 1<<R12 | 1<<R15)
	layout := ComputeFrame(mask, 0)

	if len(layout.CalleeSavedGPRs) != 3 {
		t.Fatalf("expected 3 callee-saved regs, got %v", layout.CalleeSavedGPRs)
	}
	for i := 1; i < len(layout.CalleeSavedGPRs); i++ {
		if layout.CalleeSavedGPRs[i-1] >= layout.CalleeSavedGPRs[i] {
			t.Fatalf("expected ascending register order, got %v", layout.CalleeSavedGPRs)
		}
	}
}

// TestComputeFrameNoCalleeSaved checks the empty-mask case produces no
// pushed registers.
func TestComputeFrameNoCalleeSaved(t *testing.T) {
	layout := ComputeFrame(0, 32)
	if len(layout.CalleeSavedGPRs) != 0 {
		t.Fatalf("expected no callee-saved regs, got %v", layout.CalleeSavedGPRs)
	}
}

// TestComputeFrameSizeIs16ByteAligned checks the frame layout's overall
// size (return address + saved rbp + pushed regs + locals) always lands on
// a 16-byte boundary at the point the first call instruction would execute.
func TestComputeFrameSizeIs16ByteAligned(t *testing.T) {
	cases := []struct {
		mask  uint32
		bytes int32
	}{
		{0, 0},
		{1 << RBX, 0},
		{1<<RBX | 1<<R12, 8},
		{1 << RBX, 40},
		{0, 1},
	}
	for _, c := range cases {
		layout := ComputeFrame(c.mask, c.bytes)
		pushed := int32(8 * len(layout.CalleeSavedGPRs))
		total := 16 + pushed + layout.FrameSize
		if total%16 != 0 {
			t.Fatalf("mask=%#x bytes=%d: total frame %d is not 16-byte aligned", c.mask, c.bytes, total)
		}
	}
}
