// Package opt implements the local optimisation pipeline (spec.md §4.2):
// canonicalise, strength-reduce, load-elim, mem2reg, DCE, inline, compact, run to a
// local fixed point per function.
package opt

import (
	"fmt"
	"os"

	"github.com/c3lang/tilde-backend/tb"
)

// MaxIterations bounds the fixed-point loop as a safety cap against
// oscillation bugs, not a correctness requirement (spec.md §4.2).
const MaxIterations = 64

// Pass is a single optimisation pass: it mutates f in place and reports
// whether it changed anything.
type Pass = func(f *tb.Function) bool

// Default is the pass sequence the driver runs to a fixed point, in the
// order: canonicalise → strength-reduce → load-elim → mem2reg → DCE →
// inline → compact.
var Default = []Pass{
	Canonicalize,
	StrengthReduce,
	LoadElim,
	Mem2Reg,
	DCE,
	Inline,
	Compact,
}

// Run executes pass in order repeatedly until none reports a change, or
// MaxIterations is hit. It returns the number of full sweeps performed.
func Run(f *tb.Function, passes []Pass) int {
	for iter := 0; iter < MaxIterations; iter++ {
		changed := false
		for _, p := range passes {
			if p(f) {
				changed = true
			}
		}
		if !changed {
			return iter + 1
		}
	}
	fmt.Fprintf(os.Stderr, "tb/opt: function %q hit the %d-iteration fixed-point cap\n", f.Name, MaxIterations)
	return MaxIterations
}
