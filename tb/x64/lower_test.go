package x64

import (
	"bytes"
	"testing"

	"github.com/c3lang/tilde-backend/tb"
	"github.com/c3lang/tilde-backend/tb/opt"
)

// buildSumLoop mirrors cmd/tbc's demo module; duplicated here (rather than
// imported, since cmd/tbc is package main) to give the backend a realistic
// branchy function with a forward-referenced exit block.
func buildSumLoop(t *testing.T) (*tb.Function, int) {
	t.Helper()
	m := tb.NewModule(tb.ArchX86_64, tb.SystemLinux, nil)
	i64 := tb.TypeInt(64)
	f := m.CreateFunction("sum_to", tb.Prototype{Return: i64, Params: []tb.DataType{i64}})

	accSlot := f.Local(8, 8)
	iSlot := f.Local(8, 8)
	f.Store(i64, accSlot, f.IntConst(i64, 0, true), 8)
	f.Store(i64, iSlot, f.IntConst(i64, 1, true), 8)

	n := f.Param(0)
	body := f.NewLabelID()
	exit := f.NewLabelID()

	head := f.NewLabel()
	iVal := f.Load(i64, iSlot, 8)
	cond := f.CmpSle(iVal, n)
	f.If(cond, body, exit)

	f.PlaceLabel(body)
	accVal := f.Load(i64, accSlot, 8)
	iVal2 := f.Load(i64, iSlot, 8)
	f.Store(i64, accSlot, f.Add(i64, accVal, iVal2, tb.BehaviorWrap), 8)
	f.Store(i64, iSlot, f.Add(i64, iVal2, f.IntConst(i64, 1, true), tb.BehaviorWrap), 8)
	f.Goto(head)

	f.PlaceLabel(exit)
	f.Ret(f.Load(i64, accSlot, 8))

	if errs := tb.Validate(f); len(errs) > 0 {
		t.Fatalf("demo function failed to validate: %v", errs)
	}
	return f, m.FunctionID(f)
}

func TestGenerateProducesNonEmptyCode(t *testing.T) {
	f, fid := buildSumLoop(t)
	opt.Run(f, opt.Default)
	if errs := tb.Validate(f); len(errs) > 0 {
		t.Fatalf("function failed validation after optimisation: %v", errs)
	}

	out := Generate(f, fid)
	if len(out.CodeBytes()) == 0 {
		t.Fatal("expected non-empty generated code")
	}
}

func TestGenerateAtO0WithoutOptimisation(t *testing.T) {
	f, fid := buildSumLoop(t)
	out := Generate(f, fid)
	if len(out.CodeBytes()) == 0 {
		t.Fatal("expected non-empty generated code even without optimisation")
	}
}

// buildAndGenerate validates and generates body, failing the test on either
// a validation error or a panic during lowering (the scratch-register
// literal materialisation in memclr/atomic_test_and_set/atomic_clear used to
// panic-free but silently wrong, routing a stale null node through g.use).
func buildAndGenerate(t *testing.T, m *tb.Module, f *tb.Function) *Output {
	t.Helper()
	if errs := tb.Validate(f); len(errs) > 0 {
		t.Fatalf("%s failed to validate: %v", f.Name, errs)
	}
	out := Generate(f, m.FunctionID(f))
	if len(out.CodeBytes()) == 0 {
		t.Fatalf("%s: expected non-empty generated code", f.Name)
	}
	return out
}

func TestGenerateMemclr(t *testing.T) {
	m := tb.NewModule(tb.ArchX86_64, tb.SystemLinux, nil)
	f := m.CreateFunction("clear_buf", tb.Prototype{Return: tb.TypeVoid(), Params: []tb.DataType{tb.TypePtr(), tb.TypeInt(64)}})
	f.Memclr(f.Param(0), f.Param(1))
	f.Ret(tb.NullReg)

	out := buildAndGenerate(t, m, f)
	if !bytes.Contains(out.CodeBytes(), []byte{0xF3, 0xAA}) {
		t.Fatal("expected a rep stosb in memclr's generated code")
	}
}

func TestGenerateAtomicTestAndSet(t *testing.T) {
	m := tb.NewModule(tb.ArchX86_64, tb.SystemLinux, nil)
	f := m.CreateFunction("try_lock", tb.Prototype{Return: tb.TypeBool(), Params: []tb.DataType{tb.TypePtr()}})
	old := f.AtomicTestAndSet(f.Param(0), tb.OrderSeqCst)
	f.Ret(old)

	buildAndGenerate(t, m, f)
}

func TestGenerateAtomicClear(t *testing.T) {
	m := tb.NewModule(tb.ArchX86_64, tb.SystemLinux, nil)
	f := m.CreateFunction("unlock", tb.Prototype{Return: tb.TypeVoid(), Params: []tb.DataType{tb.TypePtr()}})
	f.AtomicClear(f.Param(0), tb.OrderSeqCst)
	f.Ret(tb.NullReg)

	buildAndGenerate(t, m, f)
}

// TestGenerateZeroExtFrom32 exercises zero_ext from a 32-bit source, which
// has no movzx encoding (movzx only narrows from 8/16 bits) and must fall
// back to a plain 32-bit mov, which hardware zero-extends into the full
// 64-bit destination register.
func TestGenerateZeroExtFrom32(t *testing.T) {
	m := tb.NewModule(tb.ArchX86_64, tb.SystemLinux, nil)
	f := m.CreateFunction("widen", tb.Prototype{Return: tb.TypeInt(64), Params: []tb.DataType{tb.TypeInt(32)}})
	f.Ret(f.ZeroExt(tb.TypeInt(64), f.Param(0)))

	buildAndGenerate(t, m, f)
}
