package tb

import (
	"fmt"
	"syscall"
	"unsafe"
)

// ObjectWriter produces a relocatable object file from a compiled
// module's image; the concrete writers (ELF64, COFF) live in tb/object
// so core has no object-format dependency (spec.md §6 "Object file
// emission").
type ObjectWriter func(m *Module) []byte

// Export serialises m to a relocatable object file using writer, after
// checking every function has been compiled (spec.md §6
// tb_module_export). The caller picks the writer matching m.System
// (tb/object.WriteELF64Rel for Linux/macOS, tb/object.WriteCOFF64 for
// Windows) since core cannot import tb/object without a cycle.
func (m *Module) Export(writer ObjectWriter) ([]byte, error) {
	for i, f := range m.Functions {
		if i >= len(m.Outputs) || m.Outputs[i] == nil {
			return nil, fmt.Errorf("tb: function %q has no compiled output, call Compile first", f.Name)
		}
	}
	return writer(m), nil
}

// JITBlob is an executable mapping of one function's machine code,
// obtained from JITFunc. Callers must call Release when done to munmap
// the region (spec.md §6 tb_module_get_jit_func / tb_jit_cleanup).
type JITBlob struct {
	mem   []byte
	entry uintptr
}

// Entry returns the function's entry address as an unsafe.Pointer,
// ready to be cast to the appropriate Go func type via reflection or
// syscall-style trampolines.
func (j *JITBlob) Entry() unsafe.Pointer { return unsafe.Pointer(j.entry) }

// Release unmaps the executable region.
func (j *JITBlob) Release() error {
	if j.mem == nil {
		return nil
	}
	err := syscall.Munmap(j.mem)
	j.mem = nil
	return err
}

// JITFunc maps functionID's compiled code into an executable page and
// returns its entry point, for in-process execution without going
// through an object file and linker (spec.md §6 tb_module_get_jit_func).
// This is the one place the module touches the OS directly: no library
// in the retrieved pack wraps mmap/mprotect, so this uses stdlib
// syscall rather than fabricate a dependency (see DESIGN.md).
func (m *Module) JITFunc(functionID int) (*JITBlob, error) {
	if functionID < 0 || functionID >= len(m.Outputs) || m.Outputs[functionID] == nil {
		return nil, fmt.Errorf("tb: function %d has no compiled output, call Compile first", functionID)
	}
	code := m.Outputs[functionID].CodeBytes()
	if len(code) == 0 {
		return nil, fmt.Errorf("tb: function %d compiled to zero bytes", functionID)
	}

	pageSize := syscall.Getpagesize()
	size := (len(code) + pageSize - 1) &^ (pageSize - 1)
	mem, err := syscall.Mmap(-1, 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("tb: mmap jit page: %w", err)
	}
	copy(mem, code)
	if err := syscall.Mprotect(mem, syscall.PROT_READ|syscall.PROT_EXEC); err != nil {
		syscall.Munmap(mem)
		return nil, fmt.Errorf("tb: mprotect jit page exec: %w", err)
	}
	return &JITBlob{mem: mem, entry: uintptr(unsafe.Pointer(&mem[0]))}, nil
}
