package opt

import "github.com/c3lang/tilde-backend/tb"

// MaxInlineNodes bounds callee size eligible for inlining (spec.md §4.2
// "small"), counted over the callee's node stream excluding the null
// sentinel.
const MaxInlineNodes = 32

// Inline implements spec.md §4.2: substitute call targets flagged
// inlineable and small with the callee's body, parameter-mapped, at the
// call site, with fresh label renumbering. Scoped to single-block callees
// (entry label straight through to one ret, no internal branches) — the
// shape a front end would actually flag inlineable for a leaf helper. A
// callee with internal control flow is left as a real call, the same
// conservative-skip spirit as LoadElim aborting its scan on an aliasing
// hazard rather than guessing.
//
// Unlike canonicalize/strength/loadelim (which rewrite an existing Reg's
// kind and payload without changing what any other Reg means) or
// mem2reg's trailing-phi append (which only ever introduces a value read
// through CFG-edge resolution, never linear scan), inlining must insert a
// callee's entire body *before* nodes that already reference the call's
// result, as ordinary Regs a single-pass code generator can read forward
// through. So this pass renumbers the whole function, the same as
// Compact, with extra nodes injected at call sites; the call site itself
// collapses into whichever spliced Reg now holds its result.
func Inline(f *tb.Function) bool {
	if f.Module == nil {
		return false
	}

	type splice struct {
		callee *tb.Function
		args   []tb.Reg
	}
	splices := map[tb.Reg]splice{}
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		if n.Kind != tb.KindCall {
			continue
		}
		if attr, ok := f.Attrs[r]; !ok || !attr.Inlineable {
			continue
		}
		callee := resolveCallee(f.Module, int(n.Imm))
		if callee == nil || callee == f || !inlineEligible(callee) {
			continue
		}
		splices[r] = splice{callee: callee, args: f.CallArgs(r)}
	}
	if len(splices) == 0 {
		return false
	}

	remap := map[tb.Reg]tb.Reg{tb.NullReg: tb.NullReg}
	var newAux []tb.AuxEntry
	var actions []func() tb.Node
	nextReg := func() tb.Reg { return tb.Reg(len(actions) + 1) } // +1: slot 0 is the sentinel

	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := *f.Node(r)

		if sc, ok := splices[r]; ok {
			local := map[tb.Reg]tb.Reg{tb.NullReg: tb.NullReg}
			paramIdx := 0
			var result tb.Reg = tb.NullReg
			for cr := tb.EntryReg; int(cr) < sc.callee.Count(); cr++ {
				cn := *sc.callee.Node(cr)
				switch cn.Kind {
				case tb.KindLabel:
					continue
				case tb.KindParam:
					if paramIdx < len(sc.args) {
						local[cr] = remap[sc.args[paramIdx]]
					}
					paramIdx++
					continue
				case tb.KindRet:
					result = remapVia(local, cn.A)
					continue
				}
				cnCopy := cn
				callee := sc.callee
				thisReg := nextReg()
				local[cr] = thisReg
				actions = append(actions, func() tb.Node {
					out := cnCopy
					out.A = remapVia(local, cnCopy.A)
					out.B = remapVia(local, cnCopy.B)
					out.C = remapVia(local, cnCopy.C)
					out.Terminator = tb.NullReg
					out.Uses = 0
					if cnCopy.Kind == tb.KindCall || cnCopy.Kind == tb.KindECall || cnCopy.Kind == tb.KindVCall {
						out.AuxStart, out.AuxEnd = remapAux(&newAux, callee.AuxSlice(cnCopy.AuxStart, cnCopy.AuxEnd), func(r tb.Reg) tb.Reg {
							return remapVia(local, r)
						})
					}
					return out
				})
			}
			remap[r] = result
			continue
		}

		nCopy := n
		thisReg := nextReg()
		remap[r] = thisReg
		actions = append(actions, func() tb.Node {
			out := nCopy
			out.A = remapVia(remap, nCopy.A)
			out.B = remapVia(remap, nCopy.B)
			out.C = remapVia(remap, nCopy.C)
			out.Uses = 0
			if nCopy.Kind.IsTerminator() {
				out.Label = remapVia(remap, nCopy.Label)
			}
			if nCopy.Kind == tb.KindLabel {
				out.Terminator = remapVia(remap, nCopy.Terminator)
			}
			switch nCopy.Kind {
			case tb.KindSwitch, tb.KindPhi1, tb.KindPhi2, tb.KindPhiN, tb.KindCall, tb.KindECall, tb.KindVCall:
				out.AuxStart, out.AuxEnd = remapAux(&newAux, f.AuxSlice(nCopy.AuxStart, nCopy.AuxEnd), func(r tb.Reg) tb.Reg {
					return remapVia(remap, r)
				})
			}
			return out
		})
	}

	newNodes := make([]tb.Node, len(actions)+1)
	newNodes[0] = tb.Node{Kind: tb.KindNop, Type: tb.TypeVoid()}
	for i, build := range actions {
		newNodes[i+1] = build()
	}
	f.Nodes = newNodes
	f.Aux = newAux

	if len(f.Attrs) > 0 {
		newAttrs := make(map[tb.Reg]tb.Attr, len(f.Attrs))
		for oldReg, attr := range f.Attrs {
			if _, wasSpliced := splices[oldReg]; wasSpliced {
				continue
			}
			if nr, ok := remap[oldReg]; ok {
				newAttrs[nr] = attr
			}
		}
		f.Attrs = newAttrs
	}

	return true
}

func resolveCallee(m *tb.Module, id int) *tb.Function {
	if id < 0 || id >= len(m.Functions) {
		return nil
	}
	return m.Functions[id]
}

// inlineEligible reports whether callee is a single-block, small-enough
// function: its only label is the entry, closed by a single ret (no
// internal branches to re-target during renumbering).
func inlineEligible(callee *tb.Function) bool {
	if callee.Count()-1 > MaxInlineNodes {
		return false
	}
	labels := 0
	for r := tb.EntryReg; int(r) < callee.Count(); r++ {
		n := callee.Node(r)
		if n.Kind == tb.KindLabel {
			labels++
		}
		if n.Kind.IsTerminator() && n.Kind != tb.KindRet {
			return false
		}
	}
	return labels == 1
}

func remapVia(table map[tb.Reg]tb.Reg, r tb.Reg) tb.Reg {
	if v, ok := table[r]; ok {
		return v
	}
	return r
}

// remapAux copies src into *newAux (remapping non-key Reg entries through
// lookup) and returns the resulting [start,end) slice bounds.
func remapAux(newAux *[]tb.AuxEntry, src []tb.AuxEntry, lookup func(tb.Reg) tb.Reg) (int, int) {
	start := len(*newAux)
	for _, e := range src {
		if !e.IsKey {
			e.Reg = lookup(e.Reg)
		}
		*newAux = append(*newAux, e)
	}
	return start, len(*newAux)
}
