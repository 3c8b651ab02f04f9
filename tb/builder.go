package tb

// This file implements the IR builder (spec.md §4.1): append nodes,
// maintain the current-block cursor, perform local peepholes (constant
// folding, identity reductions, operand normalisation, block-local value
// numbering for load/store).

// append is the gate every non-terminator builder op passes through: it
// enforces invariant 2 (append only while a block is open) and invariant
// 7 (every node belongs to the most recently opened label).
func (f *Function) append(n Node) Reg {
	if f.currentLabel == NullReg {
		// Appending after a terminator without a new label is a silent
		// no-op (spec.md invariant 2) — used for unreachable trailing
		// code. We still need *some* Reg to hand back to a caller that
		// chains further (dead) builder calls, so we return NullReg and
		// callers must tolerate that only in this specific elision path.
		return NullReg
	}
	return f.rawAppend(n)
}

// NewLabel reserves and immediately places a new basic block, for the
// common case of a block whose only forward references are via backward
// branches from blocks emitted later (a loop header, straight-line
// fallthrough). A block that other, earlier-emitted blocks must branch
// forward into — an if/else arm, a loop's merge/exit block — needs its
// target named before it can be built: reserve the id with NewLabelID
// and defer placement to PlaceLabel once its content is ready.
func (f *Function) NewLabel() Reg {
	return f.PlaceLabel(f.NewLabelID())
}

// label returns the Node for a label Reg, validating its kind. A
// not-yet-placed label id (see NewLabelID) is accepted without
// dereferencing: it is checked for real once resolveLabels runs.
func (f *Function) label(r Reg) *Node {
	if f.isPendingLabel(r) {
		return nil
	}
	if !f.InBounds(r) || f.Nodes[r].Kind != KindLabel {
		f.abort("expected a label register, got r%d", r)
	}
	return &f.Nodes[r]
}

func (f *Function) closeBlock(term Reg) {
	if f.currentLabel != NullReg {
		f.label(f.currentLabel).Terminator = term
	}
	f.currentLabel = NullReg
}

// Goto writes an unconditional branch terminator.
func (f *Function) Goto(target Reg) Reg {
	f.label(target) // validate
	r := f.append(Node{Kind: KindGoto, Type: TypeVoid(), Label: target})
	f.closeBlock(r)
	return r
}

// If writes a conditional branch terminator.
func (f *Function) If(cond, ifTrue, ifFalse Reg) Reg {
	f.requireBool(cond)
	f.label(ifTrue)
	f.label(ifFalse)
	r := f.append(Node{Kind: KindIf, Type: TypeVoid(), A: cond, B: ifTrue, C: ifFalse})
	f.closeBlock(r)
	return r
}

// SwitchEntry is one (key → target label) case of a Switch.
type SwitchEntry struct {
	Key    int64
	Target Reg
}

// Switch writes a switch terminator with a default and a list of
// key/target entries, stored in the function's aux VLA (invariant 6).
func (f *Function) Switch(key, defaultLabel Reg, entries []SwitchEntry) Reg {
	f.label(defaultLabel)
	aux := make([]AuxEntry, 0, len(entries)*2)
	for _, e := range entries {
		f.label(e.Target)
		aux = append(aux, AuxEntry{Key: e.Key, IsKey: true}, AuxEntry{Reg: e.Target})
	}
	start, end := f.appendAux(aux...)
	r := f.append(Node{Kind: KindSwitch, Type: TypeVoid(), A: key, Label: defaultLabel, AuxStart: start, AuxEnd: end})
	f.closeBlock(r)
	return r
}

// Ret writes a return terminator. value may be NullReg for a void return.
func (f *Function) Ret(value Reg) Reg {
	r := f.append(Node{Kind: KindRet, Type: TypeVoid(), A: value})
	f.closeBlock(r)
	return r
}

// Unreachable marks the current block as provably unreachable past this
// point.
func (f *Function) Unreachable() Reg {
	r := f.append(Node{Kind: KindUnreachable, Type: TypeVoid()})
	f.closeBlock(r)
	return r
}

// === Constants ===

// IntConst builds a (signed or unsigned) integer constant, canonically
// masked to dt's width (invariant 4).
func (f *Function) IntConst(dt DataType, value uint64, signed bool) Reg {
	if !dt.IsInteger() {
		f.abort("IntConst requires an integer/bool type, got %s", dt)
	}
	masked := value & dt.Mask()
	return f.append(Node{Kind: KindIntConst, Type: dt, Imm: int64(masked), Signed: signed})
}

// FloatConst builds a float constant.
func (f *Function) FloatConst(dt DataType, value float64) Reg {
	if !dt.IsFloat() {
		f.abort("FloatConst requires a float type, got %s", dt)
	}
	return f.append(Node{Kind: KindFloatConst, Type: dt, FImm: value})
}

// StringConst builds a string literal reference.
func (f *Function) StringConst(s string) Reg {
	return f.append(Node{Kind: KindStringConst, Type: TypePtr(), Str: s})
}

// FuncAddr, ExternAddr, GlobalAddr build symbol-reference constants.
func (f *Function) FuncAddr(functionID int) Reg {
	return f.append(Node{Kind: KindFuncAddr, Type: TypePtr(), Imm: int64(functionID)})
}
func (f *Function) ExternAddr(name string) Reg {
	return f.append(Node{Kind: KindExternAddr, Type: TypePtr(), Str: name})
}
func (f *Function) GlobalAddr(name string) Reg {
	return f.append(Node{Kind: KindGlobalAddr, Type: TypePtr(), Str: name})
}

// === Memory ===

// Local reserves a stack-resident local of the given size/alignment.
func (f *Function) Local(size, align int) Reg {
	return f.append(Node{Kind: KindLocal, Type: TypePtr(), Imm: int64(size), Imm2: int64(align)})
}

// Param returns the Reg for parameter index i (invariant 5: registers
// 2..2+param_count, i.e. EntryReg+1+i).
func (f *Function) Param(i int) Reg {
	if i < 0 || i >= len(f.Proto.Params) {
		f.abort("parameter index %d out of range (have %d params)", i, len(f.Proto.Params))
	}
	return EntryReg + 1 + Reg(i)
}

// ParamAddr takes the address of a parameter (for address-taken params
// that mem2reg must then leave in memory).
func (f *Function) ParamAddr(i int) Reg {
	p := f.Param(i)
	return f.append(Node{Kind: KindParamAddr, Type: TypePtr(), A: p})
}

// blockStartBefore returns the Reg just after the most recent label at or
// before r, used to bound block-local backward scans.
func (f *Function) blockStartBefore(r Reg) Reg {
	for i := r; i >= EntryReg; i-- {
		if f.Nodes[i].Kind == KindLabel {
			return i + 1
		}
	}
	return EntryReg + 1
}

// Load emits a load, or returns a prior load's Reg if the same (dt, addr,
// align) was already loaded earlier in the current block (block-local
// value numbering, spec.md §4.1).
func (f *Function) Load(dt DataType, addr Reg, align int) Reg {
	if f.currentLabel != NullReg {
		start := f.blockStartBefore(f.currentLabel)
		for i := Reg(len(f.Nodes)) - 1; i >= start; i-- {
			n := &f.Nodes[i]
			if n.Kind == KindLoad && n.A == addr && n.Imm2 == int64(align) && n.Type.Equal(dt) {
				return i
			}
			if n.Kind.IsSideEffecting() && n.Kind != KindLoad {
				break // side effect in between: can't prove value numbering is still valid
			}
		}
	}
	return f.append(Node{Kind: KindLoad, Type: dt, A: addr, Imm2: int64(align)})
}

// Store emits a store, or is a no-op if the identical (dt, addr, val,
// align) tuple was already stored earlier in the current block.
func (f *Function) Store(dt DataType, addr, val Reg, align int) Reg {
	if f.currentLabel != NullReg {
		start := f.blockStartBefore(f.currentLabel)
		for i := Reg(len(f.Nodes)) - 1; i >= start; i-- {
			n := &f.Nodes[i]
			if n.Kind == KindStore && n.A == addr && n.B == val && n.Imm2 == int64(align) && n.Type.Equal(dt) {
				return NullReg
			}
			if n.Kind.IsSideEffecting() {
				break
			}
		}
	}
	return f.append(Node{Kind: KindStore, Type: dt, A: addr, B: val, Imm2: int64(align)})
}

// Initialize zero/value-initializes a freshly allocated local.
func (f *Function) Initialize(dt DataType, addr, val Reg, align int) Reg {
	return f.append(Node{Kind: KindInitialize, Type: dt, A: addr, B: val, Imm2: int64(align)})
}

// Memset/Memcpy/Memclr emit bulk memory operations; size may be a
// constant Reg (folded by the code generator into straight-line stores)
// or a dynamic one.
func (f *Function) Memset(dst, val, size Reg) Reg {
	return f.append(Node{Kind: KindMemset, Type: TypeVoid(), A: dst, B: val, C: size})
}
func (f *Function) Memcpy(dst, src, size Reg) Reg {
	return f.append(Node{Kind: KindMemcpy, Type: TypeVoid(), A: dst, B: src, C: size})
}
func (f *Function) Memclr(dst, size Reg) Reg {
	return f.append(Node{Kind: KindMemclr, Type: TypeVoid(), A: dst, C: size})
}

// ArrayAccess/MemberAccess produce addresses the code generator may tile
// into a memory operand (spec.md §4.3 Memory-operand tiling).
func (f *Function) ArrayAccess(base, index Reg, stride int) Reg {
	return f.append(Node{Kind: KindArrayAccess, Type: TypePtr(), A: base, B: index, Imm: int64(stride)})
}
func (f *Function) MemberAccess(base Reg, offset int) Reg {
	return f.append(Node{Kind: KindMemberAccess, Type: TypePtr(), A: base, Imm: int64(offset)})
}

// Restrict tags a pointer as non-aliasing (advisory to alias analysis).
func (f *Function) Restrict(ptr Reg) Reg {
	return f.append(Node{Kind: KindRestrict, Type: TypePtr(), A: ptr})
}

// === Integer arithmetic, with in-builder peepholes ===

func (f *Function) requireSameType(a, b Reg) DataType {
	ta, tb := f.Nodes[a].Type, f.Nodes[b].Type
	if !ta.Equal(tb) {
		f.abort("operand type mismatch: %s vs %s", ta, tb)
	}
	return ta
}

func (f *Function) requireBool(r Reg) {
	if !f.InBounds(r) || !f.Nodes[r].Type.Equal(TypeBool()) {
		f.abort("expected a bool-typed register, got r%d", r)
	}
}

func (f *Function) constInt(r Reg) (uint64, bool) {
	n := &f.Nodes[r]
	if n.Kind != KindIntConst {
		return 0, false
	}
	return uint64(n.Imm), true
}

// foldArith applies spec.md §8(c)/§9(b): integer constant folding always
// masks the result to the destination width, unconditionally, under
// two's-complement wraparound semantics; division by zero folds to 0.
func foldArith(kind Kind, dt DataType, a, b uint64) (uint64, bool) {
	mask := dt.Mask()
	switch kind {
	case KindAdd:
		return (a + b) & mask, true
	case KindSub:
		return (a - b) & mask, true
	case KindMul:
		return (a * b) & mask, true
	case KindAnd:
		return (a & b) & mask, true
	case KindOr:
		return (a | b) & mask, true
	case KindXor:
		return (a ^ b) & mask, true
	case KindUDiv:
		if b == 0 {
			return 0, true
		}
		return (a / b) & mask, true
	case KindUMod:
		if b == 0 {
			return 0, true
		}
		return (a % b) & mask, true
	case KindSDiv:
		if b == 0 {
			return 0, true
		}
		sa, sb := signExtendToI64(a, dt.Width), signExtendToI64(b, dt.Width)
		return uint64(sa/sb) & mask, true
	case KindSMod:
		if b == 0 {
			return 0, true
		}
		sa, sb := signExtendToI64(a, dt.Width), signExtendToI64(b, dt.Width)
		return uint64(sa%sb) & mask, true
	case KindShl:
		return (a << (b & 63)) & mask, true
	case KindShr:
		return (a >> (b & 63)) & mask, true
	case KindSar:
		sa := signExtendToI64(a, dt.Width)
		return uint64(sa>>(b&63)) & mask, true
	default:
		return 0, false
	}
}

func signExtendToI64(v uint64, width uint8) int64 {
	if width == 0 || width >= 64 {
		return int64(v)
	}
	shift := 64 - width
	return int64(v<<shift) >> shift
}

// arith is the shared implementation for every binary integer arithmetic
// builder: constant folding, identity reductions, and commutative operand
// normalisation (constant moves to the right), applied before inserting.
func (f *Function) arith(kind Kind, dt DataType, a, b Reg, behavior ArithBehavior) Reg {
	f.requireSameType(a, b)

	// Operand normalisation: commutative ops move the constant to the
	// right.
	if kind.IsCommutative() {
		_, aIsConst := f.constInt(a)
		_, bIsConst := f.constInt(b)
		if aIsConst && !bIsConst {
			a, b = b, a
		}
	}

	// Constant folding.
	if av, aok := f.constInt(a); aok {
		if bv, bok := f.constInt(b); bok {
			if result, folded := foldArith(kind, dt, av, bv); folded {
				return f.IntConst(dt, result, f.Nodes[a].Signed || f.Nodes[b].Signed)
			}
		}
	}

	// Identity reductions.
	if bv, bok := f.constInt(b); bok {
		switch kind {
		case KindAdd, KindSub, KindOr, KindXor, KindShl, KindShr, KindSar:
			if bv == 0 {
				return a
			}
		case KindMul, KindUDiv, KindSDiv:
			if bv == 1 {
				return a
			}
		case KindAnd:
			if bv == dt.Mask() {
				return a
			}
			if bv == 0 {
				return f.IntConst(dt, 0, false)
			}
		}
	}
	if kind == KindSub && a == b {
		return f.IntConst(dt, 0, false)
	}

	// (a + b) + c → a + (b + c), left-leaning canonical form: if a is
	// itself `add(x, const)` and b is a constant, refold into a single
	// add of x and the combined constant.
	if kind == KindAdd {
		an := &f.Nodes[a]
		if an.Kind == KindAdd {
			if cv, cok := f.constInt(an.B); cok {
				if bv, bok := f.constInt(b); bok {
					combined := (cv + bv) & dt.Mask()
					return f.arith(KindAdd, dt, an.A, f.IntConst(dt, combined, false), behavior)
				}
			}
		}
	}

	return f.append(Node{Kind: kind, Type: dt, A: a, B: b, Behavior: behavior})
}

func (f *Function) Add(dt DataType, a, b Reg, behavior ArithBehavior) Reg {
	return f.arith(KindAdd, dt, a, b, behavior)
}
func (f *Function) Sub(dt DataType, a, b Reg, behavior ArithBehavior) Reg {
	return f.arith(KindSub, dt, a, b, behavior)
}
func (f *Function) Mul(dt DataType, a, b Reg, behavior ArithBehavior) Reg {
	return f.arith(KindMul, dt, a, b, behavior)
}
func (f *Function) UDiv(dt DataType, a, b Reg) Reg { return f.arith(KindUDiv, dt, a, b, BehaviorWrap) }
func (f *Function) SDiv(dt DataType, a, b Reg) Reg { return f.arith(KindSDiv, dt, a, b, BehaviorWrap) }
func (f *Function) UMod(dt DataType, a, b Reg) Reg { return f.arith(KindUMod, dt, a, b, BehaviorWrap) }
func (f *Function) SMod(dt DataType, a, b Reg) Reg { return f.arith(KindSMod, dt, a, b, BehaviorWrap) }
func (f *Function) And(dt DataType, a, b Reg) Reg  { return f.arith(KindAnd, dt, a, b, BehaviorWrap) }
func (f *Function) Or(dt DataType, a, b Reg) Reg   { return f.arith(KindOr, dt, a, b, BehaviorWrap) }
func (f *Function) Xor(dt DataType, a, b Reg) Reg  { return f.arith(KindXor, dt, a, b, BehaviorWrap) }
func (f *Function) Shl(dt DataType, a, b Reg) Reg  { return f.arith(KindShl, dt, a, b, BehaviorWrap) }
func (f *Function) Shr(dt DataType, a, b Reg) Reg  { return f.arith(KindShr, dt, a, b, BehaviorWrap) }
func (f *Function) Sar(dt DataType, a, b Reg) Reg  { return f.arith(KindSar, dt, a, b, BehaviorWrap) }

// Div/Mod pick signed or unsigned based on the signed flag, matching the
// spec's representative-operation naming ("div/mod" generic builders).
func (f *Function) Div(dt DataType, a, b Reg, signed bool) Reg {
	if signed {
		return f.SDiv(dt, a, b)
	}
	return f.UDiv(dt, a, b)
}
func (f *Function) Mod(dt DataType, a, b Reg, signed bool) Reg {
	if signed {
		return f.SMod(dt, a, b)
	}
	return f.UMod(dt, a, b)
}

func (f *Function) Not(dt DataType, a Reg) Reg {
	if av, ok := f.constInt(a); ok {
		return f.IntConst(dt, (^av)&dt.Mask(), false)
	}
	return f.append(Node{Kind: KindNot, Type: dt, A: a})
}

func (f *Function) Neg(dt DataType, a Reg) Reg {
	if av, ok := f.constInt(a); ok {
		return f.IntConst(dt, uint64(-int64(av))&dt.Mask(), true)
	}
	return f.append(Node{Kind: KindNeg, Type: dt, A: a})
}

// === Float arithmetic ===

func (f *Function) foldFloat(kind Kind, dt DataType, a, b Reg) (Reg, bool) {
	an, bn := &f.Nodes[a], &f.Nodes[b]
	if an.Kind != KindFloatConst || bn.Kind != KindFloatConst {
		return NullReg, false
	}
	switch kind {
	case KindFAdd:
		return f.FloatConst(dt, an.FImm+bn.FImm), true
	case KindFSub:
		return f.FloatConst(dt, an.FImm-bn.FImm), true
	case KindFMul:
		return f.FloatConst(dt, an.FImm*bn.FImm), true
	case KindFDiv:
		return f.FloatConst(dt, an.FImm/bn.FImm), true
	}
	return NullReg, false
}

func (f *Function) FAdd(dt DataType, a, b Reg) Reg { return f.fbin(KindFAdd, dt, a, b) }
func (f *Function) FSub(dt DataType, a, b Reg) Reg { return f.fbin(KindFSub, dt, a, b) }
func (f *Function) FMul(dt DataType, a, b Reg) Reg { return f.fbin(KindFMul, dt, a, b) }
func (f *Function) FDiv(dt DataType, a, b Reg) Reg { return f.fbin(KindFDiv, dt, a, b) }

func (f *Function) fbin(kind Kind, dt DataType, a, b Reg) Reg {
	f.requireSameType(a, b)
	if r, ok := f.foldFloat(kind, dt, a, b); ok {
		return r
	}
	return f.append(Node{Kind: kind, Type: dt, A: a, B: b})
}

func (f *Function) X86Sqrt(dt DataType, a Reg) Reg  { return f.append(Node{Kind: KindX86Sqrt, Type: dt, A: a}) }
func (f *Function) X86Rsqrt(dt DataType, a Reg) Reg { return f.append(Node{Kind: KindX86Rsqrt, Type: dt, A: a}) }

// === Conversions ===

func (f *Function) Trunc(dt DataType, a Reg) Reg {
	return f.append(Node{Kind: KindTrunc, Type: dt, A: a})
}

// SignExt implements spec.md §9(c): result = sign_extend(src_value,
// src_width) under two's complement, constant-folded unconditionally.
func (f *Function) SignExt(dt DataType, a Reg) Reg {
	an := &f.Nodes[a]
	if an.Kind == KindIntConst {
		ext := signExtendToI64(uint64(an.Imm), an.Type.Width)
		return f.IntConst(dt, uint64(ext)&dt.Mask(), true)
	}
	return f.append(Node{Kind: KindSignExt, Type: dt, A: a, Signed: true})
}

func (f *Function) ZeroExt(dt DataType, a Reg) Reg {
	an := &f.Nodes[a]
	if an.Kind == KindIntConst {
		return f.IntConst(dt, uint64(an.Imm)&an.Type.Mask()&dt.Mask(), false)
	}
	return f.append(Node{Kind: KindZeroExt, Type: dt, A: a})
}

func (f *Function) FloatExt(dt DataType, a Reg) Reg {
	return f.append(Node{Kind: KindFloatExt, Type: dt, A: a})
}
func (f *Function) Int2Float(dt DataType, a Reg, signed bool) Reg {
	return f.append(Node{Kind: KindInt2Float, Type: dt, A: a, Signed: signed})
}
func (f *Function) Float2Int(dt DataType, a Reg, signed bool) Reg {
	return f.append(Node{Kind: KindFloat2Int, Type: dt, A: a, Signed: signed})
}
func (f *Function) Int2Ptr(a Reg) Reg {
	return f.append(Node{Kind: KindInt2Ptr, Type: TypePtr(), A: a})
}
func (f *Function) Ptr2Int(dt DataType, a Reg) Reg {
	return f.append(Node{Kind: KindPtr2Int, Type: dt, A: a})
}
func (f *Function) Bitcast(dt DataType, a Reg) Reg {
	return f.append(Node{Kind: KindBitcast, Type: dt, A: a})
}

// === Control/data fusion ===

// Phi1/Phi2/PhiN introduce SSA merge points. Operands carry an explicit
// source label; implementations must not attempt to order-eliminate phi
// operands during construction (spec.md §9 "Cyclic references").
func (f *Function) Phi2(dt DataType, label1 Reg, v1 Reg, label2 Reg, v2 Reg) Reg {
	r := f.append(Node{Kind: KindPhi2, Type: dt, A: v1, B: v2})
	start, end := f.appendAux(AuxEntry{Reg: label1}, AuxEntry{Reg: v1}, AuxEntry{Reg: label2}, AuxEntry{Reg: v2})
	f.Nodes[r].AuxStart, f.Nodes[r].AuxEnd = start, end
	return r
}

// PhiN takes any number of (label, value) pairs via the aux VLA.
func (f *Function) PhiN(dt DataType, pairs []struct {
	Label Reg
	Value Reg
}) Reg {
	aux := make([]AuxEntry, 0, len(pairs)*2)
	for _, p := range pairs {
		aux = append(aux, AuxEntry{Reg: p.Label}, AuxEntry{Reg: p.Value})
	}
	start, end := f.appendAux(aux...)
	return f.append(Node{Kind: KindPhiN, Type: dt, AuxStart: start, AuxEnd: end})
}

// Pass forwards a value under a new Reg (used as a rewrite target by
// load elimination and compact; spec.md §9 "pass nodes as rewrite
// targets").
func (f *Function) Pass(dt DataType, src Reg) Reg {
	return f.append(Node{Kind: KindPass, Type: dt, A: src})
}

func (f *Function) Select(dt DataType, cond, ifTrue, ifFalse Reg) Reg {
	f.requireBool(cond)
	return f.append(Node{Kind: KindSelect, Type: dt, A: cond, B: ifTrue, C: ifFalse})
}

// === Calls ===

// Call emits a static call to one of the module's own functions.
func (f *Function) Call(dt DataType, target int, args []Reg) Reg {
	entries := make([]AuxEntry, len(args))
	for i, a := range args {
		entries[i] = AuxEntry{Reg: a}
	}
	start, end := f.appendAux(entries...)
	return f.append(Node{Kind: KindCall, Type: dt, Imm: int64(target), AuxStart: start, AuxEnd: end})
}

// ECall emits a call to an extern symbol.
func (f *Function) ECall(dt DataType, name string, args []Reg) Reg {
	entries := make([]AuxEntry, len(args))
	for i, a := range args {
		entries[i] = AuxEntry{Reg: a}
	}
	start, end := f.appendAux(entries...)
	return f.append(Node{Kind: KindECall, Type: dt, Str: name, AuxStart: start, AuxEnd: end})
}

// VCall emits an indirect call through a function-pointer value.
func (f *Function) VCall(dt DataType, target Reg, args []Reg) Reg {
	entries := make([]AuxEntry, len(args))
	for i, a := range args {
		entries[i] = AuxEntry{Reg: a}
	}
	start, end := f.appendAux(entries...)
	return f.append(Node{Kind: KindVCall, Type: dt, A: target, AuxStart: start, AuxEnd: end})
}

// MarkInlineable flags a static call site as a candidate for tb/opt's
// Inline pass (spec.md §4.2 "call targets flagged inlineable"). A front
// end calls this right after Call when it knows the target is a small
// leaf helper worth substituting at the call site.
func (f *Function) MarkInlineable(call Reg) {
	if f.Attrs == nil {
		f.Attrs = map[Reg]Attr{}
	}
	a := f.Attrs[call]
	a.Inlineable = true
	f.Attrs[call] = a
}

// CallArgs returns the argument registers recorded for a call/ecall/vcall
// node.
func (f *Function) CallArgs(call Reg) []Reg {
	n := &f.Nodes[call]
	aux := f.Aux[n.AuxStart:n.AuxEnd]
	out := make([]Reg, len(aux))
	for i, e := range aux {
		out[i] = e.Reg
	}
	return out
}

// === Atomics ===

func (f *Function) AtomicLoad(dt DataType, addr Reg, order MemOrder) Reg {
	return f.append(Node{Kind: KindAtomicLoad, Type: dt, A: addr, Order: order})
}
func (f *Function) atomicRMW(kind Kind, dt DataType, addr, val Reg, order MemOrder) Reg {
	return f.append(Node{Kind: kind, Type: dt, A: addr, B: val, Order: order})
}
func (f *Function) AtomicXchg(dt DataType, addr, val Reg, order MemOrder) Reg {
	return f.atomicRMW(KindAtomicXchg, dt, addr, val, order)
}
func (f *Function) AtomicAdd(dt DataType, addr, val Reg, order MemOrder) Reg {
	return f.atomicRMW(KindAtomicAdd, dt, addr, val, order)
}
func (f *Function) AtomicSub(dt DataType, addr, val Reg, order MemOrder) Reg {
	return f.atomicRMW(KindAtomicSub, dt, addr, val, order)
}
func (f *Function) AtomicAnd(dt DataType, addr, val Reg, order MemOrder) Reg {
	return f.atomicRMW(KindAtomicAnd, dt, addr, val, order)
}
func (f *Function) AtomicOr(dt DataType, addr, val Reg, order MemOrder) Reg {
	return f.atomicRMW(KindAtomicOr, dt, addr, val, order)
}
func (f *Function) AtomicXor(dt DataType, addr, val Reg, order MemOrder) Reg {
	return f.atomicRMW(KindAtomicXor, dt, addr, val, order)
}
func (f *Function) AtomicCmpXchg(dt DataType, addr, expected, desired Reg, order MemOrder) Reg {
	return f.append(Node{Kind: KindAtomicCmpXchg, Type: dt, A: addr, B: expected, C: desired, Order: order})
}
func (f *Function) AtomicTestAndSet(addr Reg, order MemOrder) Reg {
	return f.append(Node{Kind: KindAtomicTestAndSet, Type: TypeBool(), A: addr, Order: order})
}
func (f *Function) AtomicClear(addr Reg, order MemOrder) Reg {
	return f.append(Node{Kind: KindAtomicClear, Type: TypeVoid(), A: addr, Order: order})
}

// === Comparisons ===
//
// cmp_XY compiles greater-than/greater-equal by swapping operands of
// their less-than/less-equal counterparts, producing a canonical
// comparison set (spec.md §4.1).

func (f *Function) cmp(kind Kind, a, b Reg) Reg {
	f.requireSameType(a, b)
	return f.append(Node{Kind: kind, Type: TypeBool(), A: a, B: b})
}

func (f *Function) CmpEq(a, b Reg) Reg { return f.cmp(KindCmpEq, a, b) }
func (f *Function) CmpNe(a, b Reg) Reg { return f.cmp(KindCmpNe, a, b) }

func (f *Function) CmpSlt(a, b Reg) Reg { return f.cmp(KindCmpSlt, a, b) }
func (f *Function) CmpSle(a, b Reg) Reg { return f.cmp(KindCmpSle, a, b) }
func (f *Function) CmpUlt(a, b Reg) Reg { return f.cmp(KindCmpUlt, a, b) }
func (f *Function) CmpUle(a, b Reg) Reg { return f.cmp(KindCmpUle, a, b) }
func (f *Function) CmpFlt(a, b Reg) Reg { return f.cmp(KindCmpFlt, a, b) }
func (f *Function) CmpFle(a, b Reg) Reg { return f.cmp(KindCmpFle, a, b) }

// CmpSgt and friends are not distinct node kinds: "greater" is built as
// the swapped "less" form, canonicalising the comparison set.
func (f *Function) CmpSgt(a, b Reg) Reg { return f.CmpSlt(b, a) }
func (f *Function) CmpSge(a, b Reg) Reg { return f.CmpSle(b, a) }
func (f *Function) CmpUgt(a, b Reg) Reg { return f.CmpUlt(b, a) }
func (f *Function) CmpUge(a, b Reg) Reg { return f.CmpUle(b, a) }
func (f *Function) CmpFgt(a, b Reg) Reg { return f.CmpFlt(b, a) }
func (f *Function) CmpFge(a, b Reg) Reg { return f.CmpFle(b, a) }

// === Debug ===

func (f *Function) LineInfo(fileID, line int) Reg {
	return f.append(Node{Kind: KindLineInfo, Type: TypeVoid(), Imm: int64(fileID), Imm2: int64(line)})
}
func (f *Function) DebugBreak() Reg {
	return f.append(Node{Kind: KindDebugBreak, Type: TypeVoid()})
}
