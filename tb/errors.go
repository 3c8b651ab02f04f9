package tb

import "fmt"

// BuilderError is raised (via panic) on builder contract violations:
// mismatched operand types, out-of-range parameter ids, or appends after
// a terminator that isn't a goto-after-ret elision (spec.md §4.1, §7).
type BuilderError struct {
	Func string
	Msg  string
	Dump string
}

func (e *BuilderError) Error() string {
	return fmt.Sprintf("tb: builder error in function %q: %s", e.Func, e.Msg)
}

// TodoError marks a code generator pattern the fast backend doesn't
// support yet (spec.md §7 "abort with a todo marker"; these are the
// documented growth points). compileOne in compile.go converts a panic
// carrying one of these into a plain error at the worker boundary so a
// single unsupported pattern doesn't take the whole Compile call down.
type TodoError struct {
	Func string
	Reg  Reg
	Msg  string
}

func (e *TodoError) Error() string {
	return fmt.Sprintf("tb: todo in function %q at r%d: %s", e.Func, e.Reg, e.Msg)
}
