package tb

import "fmt"

// Function is a single routine: name, prototype, owned node stream, the
// current basic-block cursor, the call/switch argument VLA, and the
// label count (spec.md §3 "Function").
type Function struct {
	Name   string
	Proto  Prototype
	Module *Module

	// Nodes is the node stream, indexed by Reg. Nodes[0] is the null
	// sentinel; Nodes[1] is the entry label. Array-of-structs (see
	// SPEC_FULL.md §3 representation decision).
	Nodes []Node

	// Aux is the append-only call/switch operand VLA (invariant 6).
	Aux []AuxEntry

	// currentLabel is the Reg of the most recently opened, still-open
	// label (0 if the current block has been closed by a terminator and
	// no new label has opened yet — trailing appends are then no-ops,
	// invariant 2).
	currentLabel Reg

	labelCount int

	// pendingLabels holds the resolved Reg for each outstanding label id
	// allocated by NewLabelID, indexed by pending id (NullReg until
	// PlaceLabel fills it in). A label id is encoded as a Reg <= -2 so it
	// can travel through the same Label/B/C fields a placed label's real
	// Reg uses, without a Node struct or downstream-consumer change; see
	// NewLabelID.
	pendingLabels []Reg

	// Attrs is a small pool of builder-assigned attributes (e.g. "this
	// call may be inlined"), keyed by Reg.
	Attrs map[Reg]Attr
}

// Attr holds optional per-node attributes set by the builder or front end.
type Attr struct {
	Inlineable bool
	Align      int
}

// NewFunction allocates a function with its null sentinel and entry label
// already in place, owned by m.
func NewFunction(m *Module, name string, proto Prototype) *Function {
	f := &Function{
		Name:   name,
		Proto:  proto,
		Module: m,
		Nodes:  make([]Node, 0, 64),
	}
	// Reg 0: null sentinel.
	f.Nodes = append(f.Nodes, Node{Kind: KindNop, Type: TypeVoid()})
	// Reg 1: entry label, implicitly opened.
	entry := f.rawAppend(Node{Kind: KindLabel, Type: TypeVoid()})
	if entry != EntryReg {
		panic("tb: entry label did not land on EntryReg")
	}
	f.currentLabel = EntryReg
	f.labelCount = 1

	// Params occupy registers 2..2+param_count (invariant 5).
	for i, pt := range proto.Params {
		f.rawAppend(Node{Kind: KindParam, Type: pt, Imm: int64(i)})
	}
	return f
}

// rawAppend appends n to the stream unconditionally and returns its Reg.
// Builder-level peephole logic lives in builder.go and calls this only
// after deciding a real node is needed.
func (f *Function) rawAppend(n Node) Reg {
	n.Ordinal = len(f.Nodes)
	r := Reg(len(f.Nodes))
	f.Nodes = append(f.Nodes, n)
	return r
}

// Node returns a pointer to the node at r, allowing in-place rewrites
// (kind/payload mutate; the Reg id is stable — spec.md §3 Lifecycles).
func (f *Function) Node(r Reg) *Node {
	return &f.Nodes[r]
}

// Count returns the number of nodes in the stream (including sentinel).
func (f *Function) Count() int { return len(f.Nodes) }

// InBounds reports whether r is a valid, already-produced register.
func (f *Function) InBounds(r Reg) bool {
	return r >= 0 && int(r) < len(f.Nodes)
}

// CurrentLabel returns the Reg of the open basic block, or NullReg if the
// current block has been terminated and no label has opened since.
func (f *Function) CurrentLabel() Reg { return f.currentLabel }

// HasOpenBlock reports whether a non-label node may currently be appended.
func (f *Function) HasOpenBlock() bool { return f.currentLabel != NullReg }

// abort prints the function and panics; builder contract violations are
// programmer errors (spec.md §4.1 Failure model / §7).
func (f *Function) abort(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	panic(&BuilderError{Func: f.Name, Msg: msg, Dump: f.String()})
}

// appendAux appends entries to the call/switch VLA and returns [start, end).
func (f *Function) appendAux(entries ...AuxEntry) (int, int) {
	start := len(f.Aux)
	f.Aux = append(f.Aux, entries...)
	return start, len(f.Aux)
}

// AuxSlice returns the [start,end) slice of the call/switch VLA.
func (f *Function) AuxSlice(start, end int) []AuxEntry {
	return f.Aux[start:end]
}

// NewTrailingPhi appends a brand-new phi node at the end of the stream,
// bypassing the builder's open-block gate (unlike tb.Function.PhiN, which
// is for use while a block is still open during construction). mem2reg is
// the only caller: once the function is fully built, SSA construction may
// still need to introduce new phi values at control-flow joins, and those
// placeholders necessarily land after every node that will come to
// reference them. Validate's invariant-3 check special-cases operands that
// name a phi node for exactly this reason.
func (f *Function) NewTrailingPhi(dt DataType) Reg {
	return f.rawAppend(Node{Kind: KindPhiN, Type: dt})
}

// NewLabelID reserves a label identifier that Goto/If/Switch may target
// before the block itself has been emitted, decoupling "name a branch
// target" from "append its block" the way the original tb_builder.c
// separates tb_inst_new_label_id from tb_inst_label. The id is a
// negative Reg (<= -2, never colliding with a real node Reg or with
// TempReg) that PlaceLabel later resolves to the block's actual Reg;
// resolveLabels rewrites every occurrence once the function is complete.
func (f *Function) NewLabelID() Reg {
	id := Reg(-2 - len(f.pendingLabels))
	f.pendingLabels = append(f.pendingLabels, NullReg)
	return id
}

func (f *Function) isPendingLabel(r Reg) bool { return r <= -2 }

func (f *Function) pendingIndex(r Reg) int { return int(-2 - r) }

// PlaceLabel emits the label node for a previously reserved id at the
// current append position, becoming the new open block. If a block is
// still open it is closed first by an explicit fallthrough goto to the
// new label; the x64 backend's fall-through elision (spec.md §4.3) then
// drops the jmp bytes whenever the label turns out to be physically
// next, so this costs nothing at the machine-code level.
func (f *Function) PlaceLabel(id Reg) Reg {
	if !f.isPendingLabel(id) {
		f.abort("PlaceLabel: r%d is not a pending label id", id)
	}
	idx := f.pendingIndex(id)
	if idx < 0 || idx >= len(f.pendingLabels) || f.pendingLabels[idx] != NullReg {
		f.abort("PlaceLabel: label id r%d is unknown or already placed", id)
	}
	if f.currentLabel != NullReg {
		next := Reg(len(f.Nodes) + 1)
		term := f.rawAppend(Node{Kind: KindGoto, Type: TypeVoid(), Label: next})
		f.closeBlock(term)
	}
	r := f.rawAppend(Node{Kind: KindLabel, Type: TypeVoid()})
	f.pendingLabels[idx] = r
	f.currentLabel = r
	f.labelCount++
	return r
}

// resolveLabels rewrites every pending label id left in a branch-target
// or phi-source field into the Reg PlaceLabel assigned it, reporting any
// id that was referenced but never placed via unresolved rather than
// panicking (Validate folds these into its normal error slice). Called
// by Validate before any other check, so every later pass only ever sees
// resolved Regs.
func (f *Function) resolveLabels() (unresolved []Reg) {
	if len(f.pendingLabels) == 0 {
		return nil
	}
	resolve := func(r Reg) Reg {
		if !f.isPendingLabel(r) {
			return r
		}
		idx := f.pendingIndex(r)
		if idx < 0 || idx >= len(f.pendingLabels) || f.pendingLabels[idx] == NullReg {
			unresolved = append(unresolved, r)
			return r
		}
		return f.pendingLabels[idx]
	}
	for i := range f.Nodes {
		n := &f.Nodes[i]
		switch n.Kind {
		case KindGoto, KindSwitch:
			n.Label = resolve(n.Label)
		case KindIf:
			n.B = resolve(n.B)
			n.C = resolve(n.C)
		}
	}
	for i := range f.Aux {
		f.Aux[i].Reg = resolve(f.Aux[i].Reg)
	}
	f.pendingLabels = nil
	return unresolved
}

// AppendAux is the exported form of appendAux, for passes outside this
// package that need to (re)populate a phi node's operand slice (e.g.
// tb/opt's mem2reg, finalising a phi once every predecessor is known).
func (f *Function) AppendAux(entries ...AuxEntry) (int, int) {
	return f.appendAux(entries...)
}

// RecomputeUses walks every node's operands and rebuilds Uses counts,
// used by DCE and the allocator's "use-count 1 → rename" decision
// (spec.md §4.3 Arithmetic lowering).
func (f *Function) RecomputeUses() {
	for i := range f.Nodes {
		f.Nodes[i].Uses = 0
	}
	walkOperands(f, func(r Reg) {
		if f.InBounds(r) && r != NullReg {
			f.Nodes[r].Uses++
		}
	})
}

// walkOperands invokes visit on every register operand of every node in
// the function, including phi source labels and aux-VLA call arguments.
func walkOperands(f *Function, visit func(Reg)) {
	for r := range f.Nodes {
		WalkNodeOperands(f, Reg(r), visit)
	}
}

// WalkNodeOperands invokes visit on every register operand of the single
// node at r (phi source values, aux-VLA call/switch arguments included).
// Exported for passes that need per-node operand access without
// recomputing use counts for the whole function (e.g. DCE's cascading
// dead-node sweep).
func WalkNodeOperands(f *Function, r Reg, visit func(Reg)) {
	n := &f.Nodes[r]
	switch n.Kind {
	case KindPhi1:
		visit(n.A)
	case KindPhi2:
		visit(n.A)
		visit(n.B)
	case KindPhiN:
		for _, e := range f.Aux[n.AuxStart:n.AuxEnd] {
			visit(e.Reg)
		}
	case KindCall, KindECall, KindVCall:
		if n.Kind == KindVCall {
			visit(n.A)
		}
		for _, e := range f.Aux[n.AuxStart:n.AuxEnd] {
			visit(e.Reg)
		}
	case KindSwitch:
		visit(n.A)
		for _, e := range f.Aux[n.AuxStart:n.AuxEnd] {
			if !e.IsKey {
				visit(e.Reg)
			}
		}
	default:
		if n.A != NullReg {
			visit(n.A)
		}
		if n.B != NullReg {
			visit(n.B)
		}
		if n.C != NullReg {
			visit(n.C)
		}
	}
}
