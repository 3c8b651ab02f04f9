package tb

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Backend lowers one validated, optimised Function to machine code. The
// concrete implementation lives in tb/x64 (x64.Generate); core stays
// backend-agnostic so a worker only ever calls through this interface
// (spec.md §5 "backend" is a free function of (Function, id), never a
// method living on Module).
type Backend interface {
	Generate(f *Function, functionID int) FunctionOutput
}

// optimizer runs a module's configured pass pipeline over one function;
// tb/opt.Default satisfies this via a small adapter in cmd/tbc (core
// cannot import tb/opt without an import cycle, since tb/opt imports tb).
type Optimizer interface {
	Run(f *Function)
}

// reservation hands out function indices to workers one at a time via an
// atomic counter, rather than a work channel, matching tb.c's
// tb_x64_compile_thread "claim the next reserved index" loop — cheaper
// than a channel when work items are pre-known and uniform.
type reservation struct {
	next atomic.Int64
	n    int
}

func (r *reservation) take() (int, bool) {
	i := r.next.Add(1) - 1
	if int(i) >= r.n {
		return 0, false
	}
	return int(i), true
}

// Compile lowers every function in m to machine code, optionally
// optimising first, spreading the work across maxThreads goroutines
// (spec.md §5 "Module.Compile"). maxThreads <= 0 defaults to
// runtime.NumCPU(); when only one worker results, it runs on the calling
// goroutine. Each worker compiles one function at a time; no scratch
// arena is used (per-function state is ordinary heap memory). A worker
// publishes its FunctionOutput into m.Outputs[id] only after the function
// is fully generated — no partial output is ever visible to another
// goroutine.
func (m *Module) Compile(opt OptLevel, optimizer Optimizer, backend Backend, maxThreads int) []error {
	if maxThreads <= 0 {
		maxThreads = runtime.NumCPU()
	}
	m.Outputs = make([]FunctionOutput, len(m.Functions))

	res := reservation{n: len(m.Functions)}
	var mu sync.Mutex
	var errs []error

	var wg sync.WaitGroup
	workers := maxThreads
	if workers > len(m.Functions) {
		workers = len(m.Functions)
	}
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		run := func() {
			defer wg.Done()
			var constPatches, callPatches, globalPatches []Patch
			for {
				id, ok := res.take()
				if !ok {
					break
				}
				f := m.Functions[id]
				out, err := compileOne(f, id, opt, optimizer, backend)
				if err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					continue
				}
				m.Outputs[id] = out
				if patched, ok := out.(patchSource); ok {
					c, ca, g := patched.Patches()
					constPatches = append(constPatches, c...)
					callPatches = append(callPatches, ca...)
					globalPatches = append(globalPatches, g...)
				}
			}
			m.Patches.Append(constPatches, callPatches, globalPatches)
		}
		if workers == 1 {
			run()
		} else {
			go run()
		}
	}
	wg.Wait()
	return errs
}

// patchSource is implemented by backend FunctionOutputs that carry their
// own const/call/global patch lists (x64.Output does); Compile drains
// them into the module's shared PatchTable under one lock per worker
// instead of one lock per function (spec.md §5 "short critical section").
type patchSource interface {
	Patches() (consts, calls, globals []Patch)
}

// compileOne validates, optionally optimises, then generates one
// function, converting a builder/validator panic into an error so one
// malformed function can't take the whole Compile call down (spec.md §4.1
// / §7 "panic/recover at the worker boundary").
func compileOne(f *Function, id int, opt OptLevel, optimizer Optimizer, backend Backend) (out FunctionOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if be, ok := rec.(*BuilderError); ok {
				err = be
				return
			}
			if te, ok := rec.(*TodoError); ok {
				err = te
				return
			}
			panic(rec)
		}
	}()

	if errs := Validate(f); len(errs) > 0 {
		return nil, errs[0]
	}
	if opt != O0 && optimizer != nil {
		optimizer.Run(f)
		if errs := Validate(f); len(errs) > 0 {
			return nil, errs[0]
		}
	}
	return backend.Generate(f, id), nil
}
