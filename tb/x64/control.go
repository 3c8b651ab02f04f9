package x64

import "github.com/c3lang/tilde-backend/tb"

// ControlFlow tracks per-function label offsets and pending branch
// patches (spec.md §4.3 Control flow): each label records its byte
// offset once emitted; Jcc/JMP/switch targets are recorded as patch
// sites and back-filled once every label is known.
type ControlFlow struct {
	labelOffset map[tb.Reg]int
	pending     []pendingBranch
}

type pendingBranch struct {
	codeOffset int
	target     tb.Reg
}

func NewControlFlow() *ControlFlow {
	return &ControlFlow{labelOffset: map[tb.Reg]int{}}
}

// MarkLabel records label's byte offset the moment the emitter reaches it.
func (c *ControlFlow) MarkLabel(label tb.Reg, offset int) {
	c.labelOffset[label] = offset
}

// RecordBranch registers a patch site emitted by JccRel32/JmpRel32,
// pointing at target's eventual label offset.
func (c *ControlFlow) RecordBranch(codeOffset int, target tb.Reg) {
	c.pending = append(c.pending, pendingBranch{codeOffset, target})
}

// Resolve back-patches every recorded branch now that all labels have
// been emitted.
func (c *ControlFlow) Resolve(e *Emitter) {
	for _, p := range c.pending {
		target, ok := c.labelOffset[p.target]
		if !ok {
			panic("x64: branch target label was never emitted")
		}
		e.PatchRel32(p.codeOffset, target)
	}
}

// FallsThroughTo reports whether block's next node in program order is
// target's label — i.e. whether a branch to target needs no jmp at all
// (spec.md §4.3 "Reordering").
func FallsThroughTo(f *tb.Function, afterTerminator, target tb.Reg) bool {
	return afterTerminator == target
}

// PhiSlots assigns a stable spill slot to every phi reachable from f,
// keyed by the phi's own Reg (spec.md §4.3 "φ-resolution ... choose or
// allocate a stable spill slot"). Called once up front so every edge's
// resolving move, emitted just before each predecessor's terminator,
// targets the same slot the phi's block reads from.
func PhiSlots(f *tb.Function, a *Allocator) map[tb.Reg]int32 {
	slots := map[tb.Reg]int32{}
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		switch n.Kind {
		case tb.KindPhi1, tb.KindPhi2, tb.KindPhiN:
			size := int32(8)
			if n.Type.Size() > 8 {
				size = int32(n.Type.Size())
			}
			slots[r] = a.NewSpillSlot(size)
			d := a.Desc(r)
			d.Kind, d.Offset = DescSpill, slots[r]
		}
	}
	return slots
}

// PhiSourcesForEdge returns the (phi, sourceValue) pairs to resolve when
// control transfers from predecessor label `from` into a block whose
// phis are in `phis` (every phi node found in that successor block's
// body, collected by the caller while scanning forward).
func PhiSourcesForEdge(f *tb.Function, phis []tb.Reg, from tb.Reg) []struct {
	Phi   tb.Reg
	Value tb.Reg
} {
	var out []struct {
		Phi   tb.Reg
		Value tb.Reg
	}
	for _, phiReg := range phis {
		n := f.Node(phiReg)
		switch n.Kind {
		case tb.KindPhi2:
			// Phi2 stores (label1,v1,label2,v2) in Aux; A/B duplicate v1/v2
			// directly but don't carry the label, so Aux is authoritative.
			aux := f.AuxSlice(n.AuxStart, n.AuxEnd)
			for i := 0; i+1 < len(aux); i += 2 {
				if aux[i].Reg == from {
					out = append(out, struct {
						Phi   tb.Reg
						Value tb.Reg
					}{phiReg, aux[i+1].Reg})
				}
			}
		case tb.KindPhiN:
			aux := f.AuxSlice(n.AuxStart, n.AuxEnd)
			for i := 0; i+1 < len(aux); i += 2 {
				if aux[i].Reg == from {
					out = append(out, struct {
						Phi   tb.Reg
						Value tb.Reg
					}{phiReg, aux[i+1].Reg})
				}
			}
		}
	}
	return out
}
