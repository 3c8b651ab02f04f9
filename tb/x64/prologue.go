package x64

import "math/bits"

// FrameLayout is the stack-frame shape computed once code emission for a
// function has finished (spec.md §4.3 Prologue/epilogue): rounded up to
// 16 bytes (counting the 8-byte return address already pushed by `call`
// and the saved rbp), with callee-saved GPRs pushed. Callee-saved XMM
// registers are not saved or restored.
type FrameLayout struct {
	CalleeSavedGPRs []int
	LocalsSize      int32 // locals + spills, pre-rounding
	FrameSize       int32 // sub rsp, FrameSize (16-byte aligned incl. return addr)
}

// ComputeFrame derives the frame layout from the register allocator's
// touched-callee-saved mask and the total bytes committed to locals and
// spill slots.
func ComputeFrame(calleeSavedMask uint32, localsAndSpills int32) FrameLayout {
	var saved []int
	mask := calleeSavedMask
	for mask != 0 {
		reg := bits.TrailingZeros32(mask)
		saved = append(saved, reg)
		mask &^= 1 << uint(reg)
	}

	pushed := int32(8 * len(saved))
	// Return address (8) + saved rbp (8) + pushed callee-saved regs +
	// locals must sum to a multiple of 16 at the call instruction
	// immediately following the prologue's `sub rsp, N`.
	raw := 16 + pushed + localsAndSpills
	pad := (16 - raw%16) % 16
	return FrameLayout{
		CalleeSavedGPRs: saved,
		LocalsSize:      localsAndSpills,
		FrameSize:       localsAndSpills + int32(pad),
	}
}

// EmitPrologue pushes rbp, establishes the new frame pointer, pushes
// callee-saved GPRs, and subtracts the frame size from rsp.
func EmitPrologue(e *Emitter, layout FrameLayout) {
	e.PushR(RBP)
	e.MovRR(W64, RBP, RSP)
	for _, reg := range layout.CalleeSavedGPRs {
		e.PushR(reg)
	}
	if layout.FrameSize > 0 {
		e.ALURI(opSub, W64, RSP, layout.FrameSize)
	}
}

// EmitEpilogue reverses EmitPrologue and emits `ret`. elideRet, when
// true, skips the trailing `ret` because the caller is about to emit one
// immediately after (spec.md §4.3 "ret-to-end elides a trailing jmp" —
// the converse case, a ret right before another ret, is handled by
// lower.go not re-emitting a redundant epilogue at all).
func EmitEpilogue(e *Emitter, layout FrameLayout, elideRet bool) {
	if layout.FrameSize > 0 {
		e.ALURI(opAdd, W64, RSP, layout.FrameSize)
	}
	for i := len(layout.CalleeSavedGPRs) - 1; i >= 0; i-- {
		e.PopR(layout.CalleeSavedGPRs[i])
	}
	e.PopR(RBP)
	if !elideRet {
		e.Ret()
	}
}
