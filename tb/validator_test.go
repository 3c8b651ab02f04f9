package tb

import "testing"

// TestValidateOpenBlockAtEnd checks that a function left with no trailing
// terminator is reported.
func TestValidateOpenBlockAtEnd(t *testing.T) {
	f := newTestFunc("open_end")
	f.IntConst(TypeInt(64), 1, true) // appended, block never closed

	errs := Validate(f)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for an unterminated trailing block")
	}
}

// TestValidateOperandOutOfBounds checks invariant 3 (operands reference
// only in-bounds, strictly earlier regs) by corrupting a node directly.
func TestValidateOperandOutOfBounds(t *testing.T) {
	f := newTestFunc("bad_operand")
	r := f.IntConst(TypeInt(64), 1, true)
	f.Ret(r)
	f.Node(r).A = Reg(len(f.Nodes) + 5)

	errs := Validate(f)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for an out-of-bounds operand")
	}
}

// TestValidateOperandNotEarlier checks invariant 3's ordering rule: a
// non-phi node may not reference a later register.
func TestValidateOperandNotEarlier(t *testing.T) {
	f := newTestFunc("bad_order")
	r := f.IntConst(TypeInt(64), 1, true)
	later := f.IntConst(TypeInt(64), 2, true)
	f.Ret(r)
	f.Node(r).A = later

	errs := Validate(f)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for a forward operand reference")
	}
}

// TestValidatePhiMayReferenceLaterReg checks invariant 3's documented
// exemption: an operand that names a phi node may point forward, since
// mem2reg appends trailing phis after the nodes that will reference them.
func TestValidatePhiMayReferenceLaterReg(t *testing.T) {
	f := newTestFunc("phi_forward")
	phi := f.NewTrailingPhi(TypeInt(64))
	f.Ret(phi)

	if errs := Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}

// TestValidateIntConstMask checks invariant 4 directly against a
// hand-corrupted payload (the builder itself always masks).
func TestValidateIntConstMask(t *testing.T) {
	f := newTestFunc("unmasked_const")
	r := f.IntConst(TypeInt(8), 0, true)
	f.Node(r).Imm = 0x1FF // bits set above an 8-bit width
	f.Ret(r)

	errs := Validate(f)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for an unmasked int_const payload")
	}
}

// TestValidateAuxBoundsOutOfRange checks invariant 6 by corrupting a
// node's aux slice bounds past the end of the function's aux VLA.
func TestValidateAuxBoundsOutOfRange(t *testing.T) {
	f := newTestFunc("bad_aux")
	r := f.IntConst(TypeInt(64), 0, true)
	f.Ret(r)
	f.Node(r).AuxStart = 0
	f.Node(r).AuxEnd = len(f.Aux) + 10

	errs := Validate(f)
	if len(errs) == 0 {
		t.Fatal("expected a validation error for an out-of-bounds aux slice")
	}
}

// TestValidateMultipleLabelsEachNeedOwnTerminator exercises the
// multi-block scan across NewLabel-placed blocks joined by real branches.
func TestValidateMultipleLabelsEachNeedOwnTerminator(t *testing.T) {
	f := newTestFunc("multi_block")
	// NewLabel on an already-open entry block closes it with an implicit
	// fallthrough goto before opening "mid" as the new current block.
	f.NewLabel()
	f.Ret(f.IntConst(TypeInt(64), 3, true))

	if errs := Validate(f); len(errs) > 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
}
