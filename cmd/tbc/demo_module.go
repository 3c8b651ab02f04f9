package main

import "github.com/c3lang/tilde-backend/tb"

// buildSumLoop constructs a small module with one function:
//
//	int64 sum_to(int64 n) {
//	    int64 acc = 0;
//	    int64 i = 1;
//	    while (i <= n) { acc += i; i += 1; }
//	    return acc;
//	}
//
// chosen to exercise a local, a promotable loop-carried accumulator
// (mem2reg turns acc/i into phis), a conditional branch, and a back
// edge — enough surface for every pipeline stage to do real work.
func buildSumLoop(system tb.System, features *tb.FeatureSet) *tb.Module {
	m := tb.NewModule(tb.ArchX86_64, system, features)
	i64 := tb.TypeInt(64)

	f := m.CreateFunction("sum_to", tb.Prototype{Return: i64, Params: []tb.DataType{i64}})

	accSlot := f.Local(8, 8)
	iSlot := f.Local(8, 8)
	f.Store(i64, accSlot, f.IntConst(i64, 0, true), 8)
	f.Store(i64, iSlot, f.IntConst(i64, 1, true), 8)

	n := f.Param(0)

	// body and exit are branched to from the loop header below, before
	// either block has been built, so their ids are reserved up front
	// and placed once their content is ready.
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

	return m
}
