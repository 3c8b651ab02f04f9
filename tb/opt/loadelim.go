package opt

import "github.com/c3lang/tilde-backend/tb"

// LoadElim implements the load-elimination pass specified in spec.md
// §4.2: walk each basic block forward. For each load(dt, addr, align),
// scan the current block backwards until one of (a) a matching store of
// the same (dt, addr, align) → rewrite the load to a pass(stored_value),
// leaving the store untouched; (b) any side-effect-ful node or
// terminator — abort the scan for this load (conservative aliasing). The
// pass reports a change whenever any load is rewritten.
//
// This is distinct from the builder's block-local load/load value
// numbering (tb.Function.Load): that pass forwards load→load, this one
// forwards store→load.
func LoadElim(f *tb.Function) bool {
	changed := false
	blockStart := tb.EntryReg
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		if n.Kind == tb.KindLabel {
			blockStart = r + 1
			continue
		}
		if n.Kind != tb.KindLoad {
			continue
		}
		addr := resolvePass(f, n.A)
		for i := r - 1; i >= blockStart; i-- {
			cand := f.Node(i)
			if cand.Kind == tb.KindStore &&
				resolvePass(f, cand.A) == addr &&
				cand.Imm2 == n.Imm2 &&
				cand.Type.Equal(n.Type) {
				rekindPass(f, r, cand.B)
				changed = true
				break
			}
			if cand.Kind.IsSideEffecting() {
				break
			}
		}
	}
	return changed
}
