package opt

import "github.com/c3lang/tilde-backend/tb"

// Compact implements spec.md §4.2: renumber Regs to eliminate nop/pass
// holes left by DCE and load elimination, updating every operand. Unlike
// Inline, it never injects new content — purely a dense renumbering of
// the surviving stream, following pass chains so downstream readers never
// see a pass-to-pass indirection.
func Compact(f *tb.Function) bool {
	remap := make(map[tb.Reg]tb.Reg, f.Count())
	remap[tb.NullReg] = tb.NullReg

	resolve := func(r tb.Reg) tb.Reg {
		return resolvePass(f, r)
	}

	kept := make([]tb.Reg, 0, f.Count())
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		if n.Kind == tb.KindNop || n.Kind == tb.KindPass {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == f.Count()-1 {
		return false // every node already survives and is already dense
	}

	for i, old := range kept {
		remap[old] = tb.Reg(i + 1)
	}
	remapReg := func(r tb.Reg) tb.Reg {
		if r == tb.NullReg {
			return tb.NullReg
		}
		return remap[resolve(r)]
	}

	var newAux []tb.AuxEntry
	newNodes := make([]tb.Node, len(kept)+1)
	newNodes[0] = tb.Node{Kind: tb.KindNop, Type: tb.TypeVoid()}
	for i, old := range kept {
		n := *f.Node(old)
		n.A = remapReg(n.A)
		n.B = remapReg(n.B)
		n.C = remapReg(n.C)
		if n.Kind.IsTerminator() {
			n.Label = remapReg(n.Label)
		}
		if n.Kind == tb.KindLabel {
			n.Terminator = remapReg(n.Terminator)
		}
		switch n.Kind {
		case tb.KindSwitch, tb.KindPhi1, tb.KindPhi2, tb.KindPhiN,
			tb.KindCall, tb.KindECall, tb.KindVCall:
			start := len(newAux)
			for _, e := range f.AuxSlice(n.AuxStart, n.AuxEnd) {
				if !e.IsKey {
					e.Reg = remapReg(e.Reg)
				}
				newAux = append(newAux, e)
			}
			n.AuxStart, n.AuxEnd = start, len(newAux)
		}
		newNodes[i+1] = n
	}

	f.Nodes = newNodes
	f.Aux = newAux
	if len(f.Attrs) > 0 {
		newAttrs := make(map[tb.Reg]tb.Attr, len(f.Attrs))
		for old, attr := range f.Attrs {
			if nr, ok := remap[old]; ok {
				newAttrs[nr] = attr
			}
		}
		f.Attrs = newAttrs
	}
	return true
}
