package tb

import "sync"

// Arch is the target instruction set architecture.
type Arch uint8

const (
	ArchX86_64 Arch = iota
	ArchAArch64
)

// System is the target OS/ABI, selecting calling convention and object
// writer (spec.md §6).
type System uint8

const (
	SystemLinux System = iota
	SystemWindows
	SystemMacOS
)

// OptLevel is the optimisation level; at O0 the optimiser is skipped
// (spec.md §6).
type OptLevel uint8

const (
	O0 OptLevel = iota
	O1
)

// FeatureSet enumerates target CPU feature flags (spec.md §6 "features").
// Only the bits the x64 fast backend inspects are named; unknown feature
// names are accepted and stored but ignored, matching the C source's
// forward-compatible TB_FeatureSet bitset.
type FeatureSet struct {
	bits map[string]bool
}

func NewFeatureSet() *FeatureSet { return &FeatureSet{bits: map[string]bool{}} }

func (fs *FeatureSet) Set(name string, on bool) {
	if fs.bits == nil {
		fs.bits = map[string]bool{}
	}
	fs.bits[name] = on
}

func (fs *FeatureSet) Has(name string) bool {
	if fs == nil || fs.bits == nil {
		return false
	}
	return fs.bits[name]
}

// Global is a module-level data symbol resolved by the object writer via
// GlobalPatches (spec.md §3).
type Global struct {
	Name    string
	Size    int
	Align   int
	Initial []byte
	TLS     bool
}

// External is a symbol reference to a function or data object defined
// outside the module, resolved by the object writer/linker.
type External struct {
	Name string
}

// FunctionAddress refers to one of the module's own functions by id, used
// as an operand for func_addr constants and static calls.
type FunctionAddress struct {
	FunctionID int
}

// PatchKind distinguishes the three patch lists spec.md §3/§6 specify.
type PatchKind uint8

const (
	PatchConst32 PatchKind = iota
	PatchCall
	PatchGlobal
)

// Patch is one entry of a module's patch table: (function_id, code_offset,
// target). The same struct serves all three patch kinds via Kind, with
// Target interpreted per kind (rodata literal id, target function id, or
// global id).
type Patch struct {
	Kind       PatchKind
	FunctionID int
	CodeOffset int
	Target     int
}

// PatchTable holds the three append-only patch lists (spec.md §3).
type PatchTable struct {
	mu            sync.Mutex
	ConstPatches  []Patch
	CallPatches   []Patch
	GlobalPatches []Patch
}

// Append merges a worker's locally-accumulated patches into the table
// under a short critical section (spec.md §5).
func (pt *PatchTable) Append(consts, calls, globals []Patch) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.ConstPatches = append(pt.ConstPatches, consts...)
	pt.CallPatches = append(pt.CallPatches, calls...)
	pt.GlobalPatches = append(pt.GlobalPatches, globals...)
}

// Module is the top-level container: target arch/system/features, the
// function list, the compiled-output list, and the module's patch tables
// (spec.md §3).
type Module struct {
	Arch     Arch
	System   System
	Features *FeatureSet

	Functions []*Function
	Globals   []*Global
	Externs   []*External

	Patches PatchTable

	// Outputs is populated by Compile, indexed by function id (published
	// strictly after the owning worker finishes — spec.md §5).
	Outputs []FunctionOutput
}

// FunctionOutput is the emitted binary shape for one function (spec.md §6
// "Emitted binary shape per function"). Its concrete fields live in
// tb/x64 (Output); Module stores them as an opaque interface so the core
// package has no backend dependency.
type FunctionOutput interface {
	CodeBytes() []byte
	StackUsage() int
	CalleeSavedMask() uint32
}

// NewModule creates a module targeting (arch, system) with the given
// feature set (spec.md §6 module_create).
func NewModule(arch Arch, system System, features *FeatureSet) *Module {
	if features == nil {
		features = NewFeatureSet()
	}
	return &Module{Arch: arch, System: system, Features: features}
}

// CreateFunction allocates and registers a new function in the module
// (spec.md §6 function_create).
func (m *Module) CreateFunction(name string, proto Prototype) *Function {
	f := NewFunction(m, name, proto)
	m.Functions = append(m.Functions, f)
	return f
}

// FunctionID returns f's index within its owning module.
func (m *Module) FunctionID(f *Function) int {
	for i, g := range m.Functions {
		if g == f {
			return i
		}
	}
	return -1
}

// AddGlobal registers a module-level global and returns it.
func (m *Module) AddGlobal(g *Global) *Global {
	m.Globals = append(m.Globals, g)
	return g
}

// AddExtern registers an external symbol reference.
func (m *Module) AddExtern(e *External) *External {
	m.Externs = append(m.Externs, e)
	return e
}
