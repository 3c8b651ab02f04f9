package opt

import "github.com/c3lang/tilde-backend/tb"

// Canonicalize enforces the normalisations the builder applies inline
// (spec.md §4.1) across the whole function: constant folding, identity
// reductions, and commutative-operand normalisation. It is idempotent at
// a fixed point (spec.md §8: "canonicalise ∘ canonicalise = canonicalise"),
// since a node already in canonical form matches none of the rewrite
// conditions below.
func Canonicalize(f *tb.Function) bool {
	changed := false
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		if !n.Kind.IsArith() {
			continue
		}
		a, b := resolvePass(f, n.A), resolvePass(f, n.B)

		// Commutative normalisation: move the constant operand to the
		// right.
		if n.Kind.IsCommutative() {
			_, aConst := constInt(f, a)
			_, bConst := constInt(f, b)
			if aConst && !bConst {
				n.A, n.B = n.B, n.A
				a, b = b, a
				changed = true
			}
		}

		// Constant folding.
		if av, aok := constInt(f, a); aok {
			if bv, bok := constInt(f, b); bok {
				if result, folded := foldArith(n.Kind, n.Type, av, bv); folded {
					rekindConst(f, r, n.Type, result, f.Node(a).Signed || f.Node(b).Signed)
					changed = true
					continue
				}
			}
		}

		// Identity reductions.
		if bv, bok := constInt(f, b); bok {
			switch n.Kind {
			case tb.KindAdd, tb.KindSub, tb.KindOr, tb.KindXor, tb.KindShl, tb.KindShr, tb.KindSar:
				if bv == 0 {
					rekindPass(f, r, a)
					changed = true
					continue
				}
			case tb.KindMul, tb.KindUDiv, tb.KindSDiv:
				if bv == 1 {
					rekindPass(f, r, a)
					changed = true
					continue
				}
			case tb.KindAnd:
				if bv == n.Type.Mask() {
					rekindPass(f, r, a)
					changed = true
					continue
				}
				if bv == 0 {
					rekindConst(f, r, n.Type, 0, false)
					changed = true
					continue
				}
			}
		}
		if n.Kind == tb.KindSub && a == b {
			rekindConst(f, r, n.Type, 0, false)
			changed = true
			continue
		}
	}
	return changed
}

// Note: the "(a + b) + c → a + (b + c)" left-leaning re-association
// (spec.md §4.1) is applied only at builder time (tb.Function.Add), not
// repeated here: folding it post-construction would need a fresh register
// slot positioned before the rewritten node, which a single in-place
// re-kind pass over an already-built stream cannot produce without
// violating invariant 3 (operands must reference strictly earlier regs).
// Canonicalize instead covers the rewrites that stay within a single
// existing Reg: fold, identity reduction, and commutative normalisation.
