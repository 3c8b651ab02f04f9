package opt

import "github.com/c3lang/tilde-backend/tb"

// block describes one basic block's extent and CFG edges, derived once
// per Mem2Reg call from the function's labels/terminators.
type block struct {
	label   tb.Reg
	first   tb.Reg // first non-label node, or label+1 if empty
	term    tb.Reg
	succs   []tb.Reg // successor labels
	preds   []tb.Reg
}

func buildCFG(f *tb.Function) (blocks map[tb.Reg]*block, order []tb.Reg) {
	blocks = map[tb.Reg]*block{}
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		if n.Kind != tb.KindLabel {
			continue
		}
		order = append(order, r)
		blocks[r] = &block{label: r, first: r + 1, term: n.Terminator}
	}
	for _, lr := range order {
		b := blocks[lr]
		if !f.InBounds(b.term) {
			continue
		}
		t := f.Node(b.term)
		switch t.Kind {
		case tb.KindGoto:
			b.succs = []tb.Reg{t.Label}
		case tb.KindIf:
			b.succs = []tb.Reg{t.B, t.C}
		case tb.KindSwitch:
			b.succs = append(b.succs, t.Label)
			for _, e := range f.AuxSlice(t.AuxStart, t.AuxEnd) {
				if !e.IsKey {
					b.succs = append(b.succs, e.Reg)
				}
			}
		}
	}
	for _, lr := range order {
		for _, s := range blocks[lr].succs {
			if sb, ok := blocks[s]; ok {
				sb.preds = append(sb.preds, lr)
			}
		}
	}
	return blocks, order
}

// reversePostorder computes an RPO traversal of the label graph starting
// at the entry label, so that (absent back-edges) every block is visited
// after all of its predecessors.
func reversePostorder(blocks map[tb.Reg]*block, entry tb.Reg) []tb.Reg {
	var post []tb.Reg
	visited := map[tb.Reg]bool{}
	var visit func(tb.Reg)
	visit = func(r tb.Reg) {
		if visited[r] {
			return
		}
		visited[r] = true
		if b, ok := blocks[r]; ok {
			for _, s := range b.succs {
				visit(s)
			}
		}
		post = append(post, r)
	}
	visit(entry)
	// also visit any unreachable blocks (builder allows trailing dead code
	// after unreachable/ret) so Mem2Reg still processes them deterministically
	for r := range blocks {
		visit(r)
	}
	rpo := make([]tb.Reg, len(post))
	for i, r := range post {
		rpo[len(post)-1-i] = r
	}
	return rpo
}

// isPromotable reports whether every use of local is a direct Load/Store
// of the same data type and alignment (no address-taken leak — spec.md
// §4.2 "Address-taken locals are left in memory").
func isPromotable(f *tb.Function, local tb.Reg, localType tb.DataType) bool {
	ok := true
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		uses := func(op tb.Reg) bool { return op == local }
		switch n.Kind {
		case tb.KindLoad:
			if uses(n.A) {
				if !n.Type.Equal(localType) {
					ok = false
				}
			}
		case tb.KindStore:
			if uses(n.A) {
				if !n.Type.Equal(localType) {
					ok = false
				}
			}
			if uses(n.B) {
				ok = false // local's address stored as a value elsewhere: it escapes
			}
		case tb.KindLocal:
			// the definition itself, not a use
		default:
			if n.A == local || n.B == local || n.C == local {
				ok = false
			}
			for _, e := range f.AuxSlice(n.AuxStart, n.AuxEnd) {
				if e.Reg == local {
					ok = false
				}
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// pendingPhi tracks a phi node awaiting operands from not-yet-processed
// (back-edge) predecessors.
type pendingPhi struct {
	reg      tb.Reg
	block    tb.Reg
	operands map[tb.Reg]tb.Reg // predecessor label -> value, filled in as preds resolve
}

// Mem2Reg promotes locals whose every use is a direct load/store to SSA
// values, inserting phi nodes at control-flow joins (spec.md §4.2).
func Mem2Reg(f *tb.Function) bool {
	changed := false
	blocks, order := buildCFG(f)
	if len(order) == 0 {
		return false
	}
	rpo := reversePostorder(blocks, tb.EntryReg)

	// Collect candidate locals.
	var locals []tb.Reg
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		if n.Kind == tb.KindLocal {
			locals = append(locals, r)
		}
	}

	for _, local := range locals {
		localType := inferLocalType(f, local)
		if localType.Family == tb.Void || !isPromotable(f, local, localType) {
			continue
		}
		promoteLocal(f, blocks, rpo, local, localType)
		changed = true
	}
	return changed
}

// inferLocalType picks the data type promoted loads/stores use; returns
// Void (unpromotable) if no load/store references the local at all, or if
// multiple incompatible types are used (handled conservatively by
// isPromotable's per-op check, this just needs one witness type).
func inferLocalType(f *tb.Function, local tb.Reg) tb.DataType {
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		if (n.Kind == tb.KindLoad || n.Kind == tb.KindStore) && n.A == local {
			return n.Type
		}
	}
	return tb.TypeVoid()
}

func promoteLocal(f *tb.Function, blocks map[tb.Reg]*block, rpo []tb.Reg, local tb.Reg, dt tb.DataType) {
	currentDef := map[tb.Reg]tb.Reg{} // block label -> value live at block exit
	var pendings []*pendingPhi
	undefCache := tb.NullReg

	// Walk blocks in RPO, rewriting loads/stores of `local` and tracking
	// the current definition as we go.
	for _, lr := range rpo {
		b, ok := blocks[lr]
		if !ok {
			continue
		}
		var live tb.Reg
		if len(b.preds) == 0 {
			if undefCache == tb.NullReg {
				// Reading a local before any store observed on this path:
				// treat as a zero value, matching the teacher's
				// "uninitialized local reads as zero" convention for
				// scalar locals.
				undefCache = f.IntConst(dt, 0, false)
			}
			live = undefCache
		} else if len(b.preds) == 1 {
			live = resolveAtExit(f, blocks, currentDef, b.preds[0], dt, &undefCache)
		} else {
			phiReg := f.NewTrailingPhi(dt)
			pend := &pendingPhi{reg: phiReg, block: lr, operands: map[tb.Reg]tb.Reg{}}
			for _, p := range b.preds {
				if definedBefore(rpo, p, lr) {
					pend.operands[p] = resolveAtExit(f, blocks, currentDef, p, dt, &undefCache)
				} else {
					pend.operands[p] = tb.NullReg
					pendings = append(pendings, pend)
				}
			}
			live = phiReg
			finalizePhiIfComplete(f, pend)
		}

		end, _ := blockBounds(f, lr)
		for r := b.first; r <= end; r++ {
			n := f.Node(r)
			if n.Kind == tb.KindLoad && n.A == local {
				rekindPass(f, r, live)
			} else if n.Kind == tb.KindStore && n.A == local {
				live = n.B
				n.Kind = tb.KindNop
				n.A, n.B, n.C = tb.NullReg, tb.NullReg, tb.NullReg
			}
		}
		currentDef[lr] = live

		// Resolve any pending back-edge phi operands whose predecessor is
		// this block.
		for _, pend := range pendings {
			if _, has := pend.operands[lr]; has && pend.operands[lr] == tb.NullReg {
				pend.operands[lr] = live
			}
		}
		for _, pend := range pendings {
			finalizePhiIfComplete(f, pend)
		}
	}
}

func definedBefore(order []tb.Reg, p, lr tb.Reg) bool {
	pi, li := indexOf(order, p), indexOf(order, lr)
	return pi >= 0 && li >= 0 && pi < li
}

func indexOf(s []tb.Reg, v tb.Reg) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func resolveAtExit(f *tb.Function, blocks map[tb.Reg]*block, currentDef map[tb.Reg]tb.Reg, p tb.Reg, dt tb.DataType, undefCache *tb.Reg) tb.Reg {
	if v, ok := currentDef[p]; ok {
		return v
	}
	if *undefCache == tb.NullReg {
		*undefCache = f.IntConst(dt, 0, false)
	}
	return *undefCache
}

// finalizePhiIfComplete writes the pending phi's operands into its aux
// slice once every predecessor operand is known (non-null).
func finalizePhiIfComplete(f *tb.Function, pend *pendingPhi) {
	for _, v := range pend.operands {
		if v == tb.NullReg {
			return
		}
	}
	entries := make([]tb.AuxEntry, 0, len(pend.operands)*2)
	for label, v := range pend.operands {
		entries = append(entries, tb.AuxEntry{Reg: label}, tb.AuxEntry{Reg: v})
	}
	n := f.Node(pend.reg)
	start, end := f.AppendAux(entries...)
	n.AuxStart, n.AuxEnd = start, end
}

// blockBounds returns (lastNodeInBlock, ok) for the block starting at
// label lr.
func blockBounds(f *tb.Function, lr tb.Reg) (tb.Reg, bool) {
	term := f.Node(lr).Terminator
	if !f.InBounds(term) {
		return lr, false
	}
	return term, true
}
