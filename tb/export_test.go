package tb

import "testing"

func TestExportRequiresEveryFunctionCompiled(t *testing.T) {
	m := NewModule(ArchX86_64, SystemLinux, nil)
	buildTrivialFunc(m, "uncompiled")

	_, err := m.Export(func(m *Module) []byte { return []byte{0x7f} })
	if err == nil {
		t.Fatal("expected Export to fail when Compile hasn't run")
	}
}

func TestExportCallsWriterAfterCompile(t *testing.T) {
	m := NewModule(ArchX86_64, SystemLinux, nil)
	buildTrivialFunc(m, "f")
	if errs := m.Compile(O0, nil, fakeBackend{}, 1); len(errs) != 0 {
		t.Fatalf("compile failed: %v", errs)
	}

	called := false
	data, err := m.Export(func(m *Module) []byte {
		called = true
		return []byte{1, 2, 3}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected the writer callback to run")
	}
	if len(data) != 3 {
		t.Fatalf("expected writer's bytes to pass through, got %v", data)
	}
}

func TestJITFuncRequiresCompiledOutput(t *testing.T) {
	m := NewModule(ArchX86_64, SystemLinux, nil)
	buildTrivialFunc(m, "f")

	if _, err := m.JITFunc(0); err == nil {
		t.Fatal("expected JITFunc to fail before Compile has run")
	}
}

func TestJITFuncRejectsOutOfRangeID(t *testing.T) {
	m := NewModule(ArchX86_64, SystemLinux, nil)
	buildTrivialFunc(m, "f")
	if errs := m.Compile(O0, nil, fakeBackend{}, 1); len(errs) != 0 {
		t.Fatalf("compile failed: %v", errs)
	}

	if _, err := m.JITFunc(5); err == nil {
		t.Fatal("expected JITFunc to reject an out-of-range function id")
	}
}
