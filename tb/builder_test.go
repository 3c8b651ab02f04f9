package tb

import "testing"

func newTestFunc(name string, params ...DataType) *Function {
	m := NewModule(ArchX86_64, SystemLinux, nil)
	return m.CreateFunction(name, Prototype{Return: TypeInt(64), Params: params})
}

// TestStraightLineValidates exercises the common case: no forward branch,
// every label placed with NewLabel as it's built.
func TestStraightLineValidates(t *testing.T) {
	f := newTestFunc("straight")
	f.Ret(f.IntConst(TypeInt(64), 7, true))

	if errs := Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

// TestForwardBranchIfElse exercises NewLabelID/PlaceLabel for an if/else
// whose arms are built after the branch that targets them.
func TestForwardBranchIfElse(t *testing.T) {
	f := newTestFunc("if_else", TypeBool())
	cond := f.Param(0)

	thenL := f.NewLabelID()
	elseL := f.NewLabelID()
	f.If(cond, thenL, elseL)

	f.PlaceLabel(thenL)
	f.Ret(f.IntConst(TypeInt(64), 1, true))

	f.PlaceLabel(elseL)
	f.Ret(f.IntConst(TypeInt(64), 0, true))

	if errs := Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

// TestBackwardBranchLoop exercises a loop header reached both by
// fallthrough from the entry and by a back edge from the body, the
// shape buildSumLoop in cmd/tbc relies on.
func TestBackwardBranchLoop(t *testing.T) {
	f := newTestFunc("loop", TypeInt(64))
	n := f.Param(0)

	exit := f.NewLabelID()
	head := f.NewLabel()
	cond := f.CmpSle(n, n)
	body := f.NewLabelID()
	f.If(cond, body, exit)

	f.PlaceLabel(body)
	f.Goto(head)

	f.PlaceLabel(exit)
	f.Ret(n)

	if errs := Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

// TestUnplacedLabelIDReportsValidationError checks that referencing a
// label id without ever placing it is a reported error, not a panic.
func TestUnplacedLabelIDReportsValidationError(t *testing.T) {
	f := newTestFunc("dangling", TypeBool())
	cond := f.Param(0)

	thenL := f.NewLabelID()
	elseL := f.NewLabelID()
	f.If(cond, thenL, elseL)
	f.PlaceLabel(thenL)
	f.Ret(f.IntConst(TypeInt(64), 1, true))
	// elseL is never placed.

	errs := Validate(f)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for the unplaced label id")
	}
}

// TestPlaceLabelClosesOpenBlockWithFallthroughGoto verifies that placing
// a new label while the previous block is still open inserts an explicit
// goto rather than leaving the block unterminated.
func TestPlaceLabelClosesOpenBlockWithFallthroughGoto(t *testing.T) {
	f := newTestFunc("fallthrough")
	entryLabel := EntryReg
	next := f.NewLabel()
	f.Ret(f.IntConst(TypeInt(64), 0, true))

	if f.Nodes[entryLabel].Terminator == NullReg {
		t.Fatal("entry block should have been closed by an implicit fallthrough goto")
	}
	termKind := f.Nodes[f.Nodes[entryLabel].Terminator].Kind
	if termKind != KindGoto {
		t.Fatalf("expected fallthrough terminator to be a goto, got %v", termKind)
	}
	if f.Nodes[f.Nodes[entryLabel].Terminator].Label != next {
		t.Fatalf("fallthrough goto should target the newly placed label")
	}

	if errs := Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

// TestFoldSignExt checks spec.md §9(c): sign-extending a constant folds
// immediately, under two's complement, to a canonically masked result of
// the destination width.
func TestFoldSignExt(t *testing.T) {
	f := newTestFunc("fold_sign_ext")
	i8, i64 := TypeInt(8), TypeInt(64)

	neg1 := f.IntConst(i8, 0xFF, true) // -1 as an int8
	ext := f.SignExt(i64, neg1)

	if f.Nodes[ext].Kind != KindIntConst {
		t.Fatalf("expected sign-extending a constant to fold immediately, got kind %v", f.Nodes[ext].Kind)
	}
	if got := uint64(f.Nodes[ext].Imm); got != 0xFFFFFFFFFFFFFFFF {
		t.Fatalf("expected -1 sign-extended to i64, got %#x", got)
	}

	f.Ret(ext)
	if errs := Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

func TestIntConstCanonicalMask(t *testing.T) {
	f := newTestFunc("mask")
	r := f.IntConst(TypeInt(8), 0xFF, false)
	f.Ret(r)

	if errs := Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	if f.Nodes[r].Imm&^0xFF != 0 {
		t.Fatalf("int_const payload %#x has bits set above width 8", uint64(f.Nodes[r].Imm))
	}
}
