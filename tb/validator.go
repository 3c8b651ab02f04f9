package tb

import "fmt"

// ValidationError describes a single structural invariant violation found
// by Validate (spec.md §7 "Validator failures: tallied per module").
type ValidationError struct {
	Func string
	Reg  Reg
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: r%d: %s", e.Func, e.Reg, e.Msg)
}

// Validate checks every invariant in spec.md §3/§8 that must hold after
// every builder operation and every pass, returning every violation found
// (an empty slice means the function is structurally sound).
func Validate(f *Function) []*ValidationError {
	var errs []*ValidationError
	report := func(r Reg, format string, args ...any) {
		errs = append(errs, &ValidationError{Func: f.Name, Reg: r, Msg: fmt.Sprintf(format, args...)})
	}

	for _, id := range f.resolveLabels() {
		report(id, "label id was referenced but never placed")
	}
	if len(errs) > 0 {
		return errs
	}

	if f.currentLabel != NullReg {
		report(f.currentLabel, "function ends with an open basic block")
	}

	var openLabel Reg = NullReg
	for r := EntryReg; int(r) < len(f.Nodes); r++ {
		n := &f.Nodes[r]

		// Invariant 3: operands reference only earlier Regs. Three cases are
		// exempt: a phi node's own source operands (a phi's predecessors
		// may include back-edges), an if's B/C fields (branch-target labels,
		// not data, and free to name a block placed later), and any operand
		// that itself names a phi node — mem2reg appends phi
		// placeholders at the end of the stream once a join point is
		// discovered, so a node physically earlier in the stream may
		// legitimately reference a phi Reg greater than its own.
		if n.Kind != KindPhi1 && n.Kind != KindPhi2 && n.Kind != KindPhiN {
			operands := []Reg{n.A, n.B, n.C}
			if n.Kind == KindIf {
				operands = []Reg{n.A}
			}
			for _, opnd := range operands {
				if opnd != NullReg {
					if int(opnd) >= len(f.Nodes) {
						report(r, "operand r%d is out of bounds (node count %d)", opnd, len(f.Nodes))
						continue
					}
					if opnd >= r {
						refersPhi := f.Nodes[opnd].Kind == KindPhi1 || f.Nodes[opnd].Kind == KindPhi2 || f.Nodes[opnd].Kind == KindPhiN
						if !refersPhi {
							report(r, "operand r%d is not strictly earlier than its user", opnd)
						}
					}
				}
			}
		}

		if n.Kind == KindLabel {
			if openLabel != NullReg {
				report(openLabel, "label not closed by a terminator before next label r%d", r)
			}
			openLabel = r
			continue
		}

		if openLabel == NullReg && n.Kind != KindNop && n.Kind != KindPhiN {
			// Trailing code after a terminator with no new label is a
			// silent no-op per invariant 2 and is never appended by the
			// builder, so seeing one here means something bypassed the
			// builder's gate. The one sanctioned bypass is mem2reg's
			// trailing phi (Function.NewTrailingPhi), which is exempt.
			report(r, "node appended outside any basic block")
		}

		if n.Kind.IsTerminator() {
			if openLabel != NullReg {
				f.Nodes[openLabel].Terminator = r
			}
			openLabel = NullReg
		}

		// Invariant 4: integer constant payloads are canonically masked.
		if n.Kind == KindIntConst {
			if uint64(n.Imm)&^n.Type.Mask() != 0 {
				report(r, "int_const payload %#x has bits set above width %d", uint64(n.Imm), n.Type.Width)
			}
		}

		// Invariant 6: call/switch aux slices are well-formed.
		if n.AuxEnd < n.AuxStart || n.AuxEnd > len(f.Aux) {
			report(r, "aux slice [%d,%d) out of bounds (len %d)", n.AuxStart, n.AuxEnd, len(f.Aux))
		}
	}

	if openLabel != NullReg {
		report(openLabel, "label not closed by a terminator (function ends mid-block)")
	}

	// Invariant 1 restated globally: every label must have exactly one
	// terminator recorded.
	for r := EntryReg; int(r) < len(f.Nodes); r++ {
		if f.Nodes[r].Kind == KindLabel && f.Nodes[r].Terminator == NullReg {
			report(r, "basic block has no terminator")
		}
	}

	return errs
}
