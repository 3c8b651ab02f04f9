package opt

import (
	"testing"

	"github.com/c3lang/tilde-backend/tb"
)

// buildSumLoop mirrors cmd/tbc's demo module: a local-backed accumulator
// loop with a forward-referenced exit block, built via NewLabelID/
// PlaceLabel. It exists here so mem2reg has a promotable-loop shape to
// exercise without depending on the cmd/tbc package.
func buildSumLoop(t *testing.T) *tb.Function {
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
		t.Fatalf("demo function failed to validate before optimisation: %v", errs)
	}
	return f
}

func TestRunReachesFixedPointOnSumLoop(t *testing.T) {
	f := buildSumLoop(t)

	sweeps := Run(f, Default)
	if sweeps == 0 {
		t.Fatal("expected at least one sweep to run")
	}
	if sweeps >= MaxIterations {
		t.Fatalf("pipeline did not reach a fixed point within %d sweeps", MaxIterations)
	}

	if errs := tb.Validate(f); len(errs) > 0 {
		t.Fatalf("function failed validation after optimisation: %v", errs)
	}

	// A second run from the already-fixed-point state makes exactly one
	// sweep, in which no pass reports a change.
	if Run(f, Default) != 1 {
		t.Fatal("expected exactly one no-change sweep once already at a fixed point")
	}
}

func TestRunStopsChangingOnSimpleConstantFold(t *testing.T) {
	m := tb.NewModule(tb.ArchX86_64, tb.SystemLinux, nil)
	i64 := tb.TypeInt(64)
	f := m.CreateFunction("fold", tb.Prototype{Return: i64})
	a := f.IntConst(i64, 2, true)
	b := f.IntConst(i64, 3, true)
	f.Ret(f.Add(i64, a, b, tb.BehaviorWrap))

	if sweeps := Run(f, Default); sweeps >= MaxIterations {
		t.Fatalf("pipeline did not stop changing within %d sweeps", MaxIterations)
	}

	if errs := tb.Validate(f); len(errs) > 0 {
		t.Fatalf("function failed validation after optimisation: %v", errs)
	}
}
