package object

import (
	"bytes"
	"testing"

	"github.com/c3lang/tilde-backend/tb"
	"github.com/c3lang/tilde-backend/tb/opt"
	"github.com/c3lang/tilde-backend/tb/x64"
)

type stubOptimizer struct{}

func (stubOptimizer) Run(f *tb.Function) { opt.Run(f, opt.Default) }

type stubBackend struct{}

func (stubBackend) Generate(f *tb.Function, fid int) tb.FunctionOutput {
	return x64.Generate(f, fid)
}

func buildAddOne(t *testing.T) *tb.Module {
	t.Helper()
	m := tb.NewModule(tb.ArchX86_64, tb.SystemLinux, nil)
	i64 := tb.TypeInt(64)
	f := m.CreateFunction("add_one", tb.Prototype{Return: i64, Params: []tb.DataType{i64}})
	f.Ret(f.Add(i64, f.Param(0), f.IntConst(i64, 1, true), tb.BehaviorWrap))
	return m
}

func TestWriteELF64RelProducesValidHeader(t *testing.T) {
	m := buildAddOne(t)
	if errs := m.Compile(tb.O1, stubOptimizer{}, stubBackend{}, 1); len(errs) > 0 {
		t.Fatalf("compile failed: %v", errs)
	}

	img := BuildImage(m)
	if len(img.Funcs) != 1 || img.Funcs[0].Name != "add_one" {
		t.Fatalf("unexpected function symbol table: %+v", img.Funcs)
	}
	if len(img.Code) == 0 {
		t.Fatal("expected non-empty code section")
	}

	data := WriteELF64Rel(m, img)
	if len(data) < 4 || !bytes.Equal(data[:4], []byte{0x7f, 'E', 'L', 'F'}) {
		t.Fatal("expected a valid ELF magic number")
	}
}
