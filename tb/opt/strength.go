package opt

import (
	"math/bits"

	"github.com/c3lang/tilde-backend/tb"
)

// StrengthReduce implements spec.md §4.2: constant shifts replace
// multiplications/divisions by powers of two; multiplication by 0 → 0, by
// 1 → identity (the by-1 case is also covered by Canonicalize's identity
// reduction, so this pass focuses on the power-of-two rewrites).
func StrengthReduce(f *tb.Function) bool {
	changed := false
	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		n := f.Node(r)
		switch n.Kind {
		case tb.KindMul:
			b := resolvePass(f, n.B)
			bv, ok := constInt(f, b)
			if !ok {
				continue
			}
			if bv == 0 {
				rekindConst(f, r, n.Type, 0, false)
				changed = true
				continue
			}
			if shift, isPow2 := powerOfTwoShift(bv, n.Type.Width); isPow2 && shift > 0 {
				a := n.A
				shiftConst := newInPlaceShiftAmount(f, b, n.Type, shift)
				n.Kind = tb.KindShl
				n.A = a
				n.B = shiftConst
				changed = true
			}
		case tb.KindUDiv:
			b := resolvePass(f, n.B)
			bv, ok := constInt(f, b)
			if !ok {
				continue
			}
			if shift, isPow2 := powerOfTwoShift(bv, n.Type.Width); isPow2 && shift > 0 {
				a := n.A
				shiftConst := newInPlaceShiftAmount(f, b, n.Type, shift)
				n.Kind = tb.KindShr
				n.A = a
				n.B = shiftConst
				changed = true
			}
		}
	}
	return changed
}

// powerOfTwoShift returns (log2(v), true) if v is a power of two that fits
// within width bits.
func powerOfTwoShift(v uint64, width uint8) (int, bool) {
	if v == 0 || v&(v-1) != 0 {
		return 0, false
	}
	shift := bits.TrailingZeros64(v)
	if width != 0 && shift >= int(width) {
		return 0, false
	}
	return shift, true
}

// newInPlaceShiftAmount rewrites the constant node b (which is only used
// as this divisor/multiplier's right-hand operand — it was produced by
// the builder or an earlier fold solely to hold this literal) into the
// shift-amount constant, reusing its Reg rather than allocating a new one
// post-construction (see canonicalize.go's note on why new regs can't be
// inserted after the fact). This is safe specifically because b's only
// use is the node being rewritten at r: strength reduction runs after
// RecomputeUses-independent structural rewriting, and literal operands of
// arithmetic ops are not shared across multiple ops by the builder (each
// arith call mints its own constant register for its RHS).
func newInPlaceShiftAmount(f *tb.Function, b tb.Reg, dt tb.DataType, shift int) tb.Reg {
	rekindConst(f, b, dt, uint64(shift), false)
	return b
}
