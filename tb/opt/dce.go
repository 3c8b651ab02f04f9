package opt

import "github.com/c3lang/tilde-backend/tb"

// DCE implements spec.md §4.2: remove nodes with zero uses that have no
// side effects. Labels, terminators, and params are never removed (labels
// and terminators are structural; a dropped param would shift argument
// positions). Recomputes use counts once up front, then sweeps backwards
// so that killing a node can cascade into killing its now-unused operands
// within the same call, rather than needing another driver iteration for
// every link of a dead chain.
func DCE(f *tb.Function) bool {
	f.RecomputeUses()
	changed := false
	for r := tb.Reg(f.Count() - 1); r >= tb.EntryReg; r-- {
		n := f.Node(r)
		if n.Kind == tb.KindNop || n.Kind == tb.KindLabel || n.Kind == tb.KindParam {
			continue
		}
		if n.Kind.IsSideEffecting() || n.Uses > 0 {
			continue
		}
		tb.WalkNodeOperands(f, r, func(op tb.Reg) {
			if f.InBounds(op) {
				f.Node(op).Uses--
			}
		})
		n.Kind = tb.KindNop
		n.A, n.B, n.C = tb.NullReg, tb.NullReg, tb.NullReg
		n.AuxStart, n.AuxEnd = 0, 0
		changed = true
	}
	return changed
}
