package tb

import (
	"testing"
)

type fakeOutput struct{ id int }

func (o *fakeOutput) CodeBytes() []byte       { return []byte{0x90} }
func (o *fakeOutput) StackUsage() int         { return 0 }
func (o *fakeOutput) CalleeSavedMask() uint32 { return 0 }

type fakeBackend struct {
	todoFor map[int]bool
}

func (b fakeBackend) Generate(f *Function, functionID int) FunctionOutput {
	if b.todoFor[functionID] {
		panic(&TodoError{Func: f.Name, Reg: NullReg, Msg: "unsupported pattern"})
	}
	return &fakeOutput{id: functionID}
}

func buildTrivialFunc(m *Module, name string) *Function {
	f := m.CreateFunction(name, Prototype{Return: TypeInt(64)})
	f.Ret(f.IntConst(TypeInt(64), 1, true))
	return f
}

func TestCompileRunsEveryFunctionAcrossWorkers(t *testing.T) {
	m := NewModule(ArchX86_64, SystemLinux, nil)
	for i := 0; i < 8; i++ {
		buildTrivialFunc(m, "f")
	}

	errs := m.Compile(O0, nil, fakeBackend{}, 4)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(m.Outputs) != 8 {
		t.Fatalf("expected 8 outputs, got %d", len(m.Outputs))
	}
	for i, out := range m.Outputs {
		if out == nil {
			t.Fatalf("function %d has no output", i)
		}
	}
}

func TestCompileIsolatesOneFunctionsPanic(t *testing.T) {
	m := NewModule(ArchX86_64, SystemLinux, nil)
	buildTrivialFunc(m, "good_one")
	buildTrivialFunc(m, "bad_one")
	buildTrivialFunc(m, "good_two")

	errs := m.Compile(O0, nil, fakeBackend{todoFor: map[int]bool{1: true}}, 2)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %d: %v", len(errs), errs)
	}
	if _, ok := errs[0].(*TodoError); !ok {
		t.Fatalf("expected a *TodoError, got %T", errs[0])
	}
	if m.Outputs[0] == nil || m.Outputs[2] == nil {
		t.Fatal("expected the two good functions to still have published output")
	}
	if m.Outputs[1] != nil {
		t.Fatal("expected the failing function to have no published output")
	}
}

func TestCompileSingleThreadMatchesMultiThread(t *testing.T) {
	build := func() *Module {
		m := NewModule(ArchX86_64, SystemLinux, nil)
		for i := 0; i < 5; i++ {
			buildTrivialFunc(m, "f")
		}
		return m
	}

	m1 := build()
	if errs := m1.Compile(O0, nil, fakeBackend{}, 1); len(errs) != 0 {
		t.Fatalf("single-threaded compile failed: %v", errs)
	}
	m2 := build()
	if errs := m2.Compile(O0, nil, fakeBackend{}, 0); len(errs) != 0 {
		t.Fatalf("default-threaded compile failed: %v", errs)
	}
	if len(m1.Outputs) != len(m2.Outputs) {
		t.Fatalf("output count mismatch: %d vs %d", len(m1.Outputs), len(m2.Outputs))
	}
}
