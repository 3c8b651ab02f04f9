package opt

import (
	"testing"

	"github.com/c3lang/tilde-backend/tb"
)

// newCanonTestFunc builds a function whose entry block is left open for
// the caller to append into.
func newCanonTestFunc(name string, params ...tb.DataType) *tb.Function {
	m := tb.NewModule(tb.ArchX86_64, tb.SystemLinux, nil)
	return m.CreateFunction(name, tb.Prototype{Return: tb.TypeInt(64), Params: params})
}

// TestCanonicalizeFoldsConstantOperandsRewrittenAfterBuild checks
// Canonicalize's own constant-folding path, which only ever sees work
// the builder's inline arith folding didn't already do — here by
// hand-rewriting an add's operands to two constants after the node was
// built against non-constant operands.
func TestCanonicalizeFoldsConstantOperandsRewrittenAfterBuild(t *testing.T) {
	i64 := tb.TypeInt(64)
	f := newCanonTestFunc("fold_after_build", i64)
	p := f.Param(0)

	c1 := f.IntConst(i64, 2, true)
	c2 := f.IntConst(i64, 3, true)
	addR := f.Add(i64, p, p, tb.BehaviorWrap)
	f.Node(addR).A = c1
	f.Node(addR).B = c2
	f.Ret(addR)

	if !Canonicalize(f) {
		t.Fatal("expected Canonicalize to report a change")
	}
	if f.Node(addR).Kind != tb.KindIntConst {
		t.Fatalf("expected the add to fold into a constant, got kind %v", f.Node(addR).Kind)
	}
	if got := uint64(f.Node(addR).Imm); got != 5 {
		t.Fatalf("expected 2+3=5, got %d", got)
	}

	if errs := tb.Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

// TestCanonicalizeIsIdempotent checks spec.md §8's canonicalise ∘
// canonicalise = canonicalise property directly: a second pass over an
// already-canonical function reports no further change.
func TestCanonicalizeIsIdempotent(t *testing.T) {
	i64 := tb.TypeInt(64)
	f := newCanonTestFunc("idempotent", i64)
	p := f.Param(0)
	f.Ret(f.Add(i64, p, f.IntConst(i64, 0, true), tb.BehaviorWrap))

	Canonicalize(f) // first pass, may or may not change anything
	if Canonicalize(f) {
		t.Fatal("expected a second Canonicalize pass over canonical IR to report no change")
	}
}

// TestCanonicalizeSubSelfIsZero checks the a - a → 0 identity reduction.
func TestCanonicalizeSubSelfIsZero(t *testing.T) {
	i64 := tb.TypeInt(64)
	f := newCanonTestFunc("sub_self", i64)
	p := f.Param(0)

	// f.Sub itself already folds a-a at build time; hand-build the node
	// to exercise Canonicalize's own copy of the same rule instead.
	r := f.Add(i64, p, f.IntConst(i64, 1, true), tb.BehaviorWrap) // any real node, r != p
	f.Node(r).Kind = tb.KindSub
	f.Node(r).A = p
	f.Node(r).B = p
	f.Ret(r)

	if !Canonicalize(f) {
		t.Fatal("expected Canonicalize to report a change for a-a")
	}
	if f.Node(r).Kind != tb.KindIntConst || f.Node(r).Imm != 0 {
		t.Fatalf("expected a-a to fold to the constant 0, got kind=%v imm=%d", f.Node(r).Kind, f.Node(r).Imm)
	}
}
