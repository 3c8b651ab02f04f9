package x64

import "github.com/c3lang/tilde-backend/tb"

// Output is the emitted binary shape for one function (spec.md §6), the
// concrete type behind tb.Module's opaque FunctionOutput interface.
type Output struct {
	Code            []byte
	Stack           int
	CalleeSaved     uint32
	ConstPatches    []tb.Patch
	CallPatches     []tb.Patch
	GlobalPatches   []tb.Patch
}

func (o *Output) CodeBytes() []byte       { return o.Code }
func (o *Output) StackUsage() int         { return o.Stack }
func (o *Output) CalleeSavedMask() uint32 { return o.CalleeSaved }

// Patches satisfies tb's patchSource interface, letting Module.Compile
// drain each worker's per-function patch lists into the module's shared
// PatchTable without tb importing tb/x64.
func (o *Output) Patches() (consts, calls, globals []tb.Patch) {
	return o.ConstPatches, o.CallPatches, o.GlobalPatches
}

// gen holds the per-function state threaded through lowering: the
// emitter, allocator, ABI, control-flow/patch bookkeeping, the pending
// memory-operand tile, and the function id (for call-target patches).
type gen struct {
	f   *tb.Function
	fid int
	abi ABI

	e    Emitter
	a    *Allocator
	cf   *ControlFlow
	tile Tile

	curLabel tb.Reg // label Reg of the block currently being lowered

	phiSlots map[tb.Reg]int32
	phiRegs  []tb.Reg // every phi Reg in the function, for PhiSourcesForEdge

	// epilogueJumps collects jmp patch sites from every non-final Ret;
	// the frame size, and so the epilogue itself, is only known once
	// every node has been lowered, so every ret but the last jumps
	// forward to one shared epilogue emitted after the main loop
	// (spec.md §4.3 "ret-to-end elides a trailing jmp").
	epilogueJumps []int

	constPatches  []tb.Patch
	callPatches   []tb.Patch
	globalPatches []tb.Patch
}

// Generate lowers f to machine code in a single linear pass over its node
// stream (spec.md §4.3): storage assignment and instruction emission
// happen together, node by node, with no separate scheduling or register
// allocation phase.
func Generate(f *tb.Function, fid int) *Output {
	g := &gen{
		f:        f,
		fid:      fid,
		abi:      ABIFor(f.Module.System),
		cf:       NewControlFlow(),
		phiSlots: nil,
	}
	g.a = NewAllocator(f, &g.e)
	f.RecomputeUses()
	g.collectPhis()
	g.phiSlots = PhiSlots(f, g.a)

	g.classifyParams()

	for r := tb.EntryReg; int(r) < f.Count(); r++ {
		g.lower(r)
	}

	// Every frame-dependent quantity (spill slots discovered by eviction,
	// locals) is final now. Emit the one shared epilogue and back-patch
	// every ret-site jump to land on it.
	layout := ComputeFrame(g.a.CalleeSavedMask(), g.a.SpillSize())
	epilogueOffset := g.e.Pos()
	EmitEpilogue(&g.e, layout, false)
	for _, site := range g.epilogueJumps {
		g.e.PatchRel32(site, epilogueOffset)
	}
	g.cf.Resolve(&g.e)

	g.e.Code = prependPrologue(&g.e, layout)

	return &Output{
		Code:          g.e.Code,
		Stack:         int(layout.FrameSize),
		CalleeSaved:   g.a.CalleeSavedMask(),
		ConstPatches:  g.constPatches,
		CallPatches:   g.callPatches,
		GlobalPatches: g.globalPatches,
	}
}

// prependPrologue re-emits the function with its prologue in front, since
// the frame size is only known once every node has been lowered (locals
// and spill slots are discovered along the way) — the teacher's backend
// makes the same two-pass-over-one-buffer tradeoff for its stack frame.
func prependPrologue(body *Emitter, layout FrameLayout) []byte {
	var head Emitter
	EmitPrologue(&head, layout)
	out := make([]byte, 0, len(head.Code)+len(body.Code))
	out = append(out, head.Code...)
	out = append(out, body.Code...)
	return out
}

func (g *gen) collectPhis() {
	for r := tb.EntryReg; int(r) < g.f.Count(); r++ {
		switch g.f.Node(r).Kind {
		case tb.KindPhi1, tb.KindPhi2, tb.KindPhiN:
			g.phiRegs = append(g.phiRegs, r)
		}
	}
}

// classifyParams assigns each parameter's incoming ABI slot and, for
// register-passed parameters, marks the allocator's owner table so the
// first reference to a param reuses the arg register instead of
// re-materialising it.
func (g *gen) classifyParams() {
	slots := ClassifyArgs(g.abi, g.f.Proto.Params)
	for i, slot := range slots {
		r := g.f.Param(i)
		d := g.a.Desc(r)
		if slot.Stack {
			d.Kind, d.Offset = DescStack, 16+slot.StackOff // return addr + saved rbp
			continue
		}
		if slot.IsFloat {
			g.a.xmmOwner[slot.Reg] = r
			d.Kind, d.Reg = DescXMM, slot.Reg
		} else {
			g.a.gprOwner[slot.Reg] = r
			d.Kind, d.Reg = DescGPR, slot.Reg
		}
	}
}

// width returns the encoder Width for a node's data type.
func width(dt tb.DataType) Width { return WidthFromBits(dt.Width) }

// use materialises r's current value into a GPR, loading from its
// stack/spill location if it isn't already resident, and decrements its
// remaining use count.
func (g *gen) use(r tb.Reg) int {
	d := g.a.Desc(r)
	n := g.f.Node(r)
	switch d.Kind {
	case DescGPR:
	case DescSpill, DescStack:
		reg := g.a.AllocGPR(r)
		g.e.MovRM(width(n.Type), reg, Mem(RBP, -1, 0, d.Offset))
	case DescNone:
		g.materialize(r)
	}
	n.Uses--
	return g.a.Desc(r).Reg
}

// useXMM is use's float counterpart.
func (g *gen) useXMM(r tb.Reg) int {
	d := g.a.Desc(r)
	n := g.f.Node(r)
	switch d.Kind {
	case DescXMM:
	case DescSpill, DescStack:
		reg := g.a.AllocXMM(r)
		g.e.MovScalar(n.Type.Width == tb.F32, reg, Mem(RBP, -1, 0, d.Offset), false)
	default:
		g.materialize(r)
	}
	n.Uses--
	return g.a.Desc(r).Reg
}

// materialize emits whatever instruction produces r's value the first
// time it's demanded without having been lowered yet (constants folded
// directly into a consumer, e.g.), and records its storage.
func (g *gen) materialize(r tb.Reg) {
	n := g.f.Node(r)
	switch n.Kind {
	case tb.KindIntConst:
		reg := g.a.AllocGPR(r)
		if n.Imm == 0 {
			g.e.ALURR(opXor, W32, reg, reg)
		} else if uint64(n.Imm) <= 0xFFFFFFFF {
			g.e.MovImm32(W32, reg, int32(n.Imm))
		} else {
			g.e.MovImm64(reg, uint64(n.Imm))
		}
	case tb.KindFloatConst:
		reg := g.a.AllocXMM(r)
		if n.FImm == 0 {
			g.e.Xorps(reg)
		} else {
			off := g.constPool(n)
			g.e.MovScalar(n.Type.Width == tb.F32, reg, RIPMem(0), false)
			g.constPatches = append(g.constPatches, tb.Patch{Kind: tb.PatchConst32, FunctionID: g.fid, CodeOffset: g.e.Pos() - 4, Target: off})
		}
	default:
		g.lower(r)
	}
}

// constPool is a placeholder id allocator for float-literal rodata; the
// object writer resolves Target to an actual rodata offset once every
// function in the module has been generated.
func (g *gen) constPool(n *tb.Node) int { return int(n.Ordinal) }

// lower dispatches on a single node's kind, emitting its instruction(s)
// and updating the node's AddressDesc so later consumers find it.
func (g *gen) lower(r tb.Reg) {
	n := g.f.Node(r)
	switch n.Kind {
	case tb.KindNop, tb.KindParam, tb.KindLineInfo:
		// no code; param storage was assigned up front by classifyParams.
	case tb.KindLabel:
		g.cf.MarkLabel(r, g.e.Pos())
		g.curLabel = r
	case tb.KindIntConst, tb.KindFloatConst:
		// Lowered lazily on first use via materialize, to avoid
		// pinning a register for a constant that's folded into an
		// immediate operand by its only consumer.
	case tb.KindLocal:
		off := g.a.NewSpillSlot(int32(n.Imm))
		d := g.a.Desc(r)
		d.Kind, d.Offset = DescStack, off
	case tb.KindParamAddr:
		d := g.a.Desc(r)
		pd := g.a.Desc(n.A)
		d.Kind, d.Offset = DescStack, pd.Offset
	case tb.KindArrayAccess:
		g.lowerArrayAccess(r, n)
	case tb.KindMemberAccess:
		g.lowerMemberAccess(r, n)
	case tb.KindLoad:
		g.lowerLoad(r, n)
	case tb.KindStore, tb.KindInitialize:
		g.lowerStore(r, n)
	case tb.KindMemset:
		g.lowerMemset(r, n)
	case tb.KindMemcpy:
		g.lowerMemcpy(r, n)
	case tb.KindMemclr:
		g.lowerMemclr(r, n)
	case tb.KindAdd, tb.KindSub, tb.KindAnd, tb.KindOr, tb.KindXor:
		g.lowerALU(r, n)
	case tb.KindMul:
		g.lowerMul(r, n)
	case tb.KindUDiv, tb.KindSDiv, tb.KindUMod, tb.KindSMod:
		g.lowerDivMod(r, n)
	case tb.KindShl, tb.KindShr, tb.KindSar:
		g.lowerShift(r, n)
	case tb.KindNot:
		g.lowerUnary(r, n, false)
	case tb.KindNeg:
		g.lowerUnary(r, n, true)
	case tb.KindFAdd, tb.KindFSub, tb.KindFMul, tb.KindFDiv:
		g.lowerFArith(r, n)
	case tb.KindX86Sqrt:
		g.lowerSqrt(r, n)
	case tb.KindTrunc, tb.KindBitcast, tb.KindInt2Ptr, tb.KindPtr2Int:
		g.lowerPassthrough(r, n)
	case tb.KindSignExt:
		g.lowerExtend(r, n, true)
	case tb.KindZeroExt:
		g.lowerExtend(r, n, false)
	case tb.KindFloatExt:
		g.lowerFloatExt(r, n)
	case tb.KindInt2Float:
		g.lowerInt2Float(r, n)
	case tb.KindFloat2Int:
		g.lowerFloat2Int(r, n)
	case tb.KindCmpEq, tb.KindCmpNe, tb.KindCmpSlt, tb.KindCmpSle,
		tb.KindCmpUlt, tb.KindCmpUle, tb.KindCmpFlt, tb.KindCmpFle:
		g.lowerCompare(r, n)
	case tb.KindSelect:
		g.lowerSelect(r, n)
	case tb.KindPhi1, tb.KindPhi2, tb.KindPhiN:
		// A phi's value is whatever the predecessor-edge resolving move
		// wrote into its spill slot (control.go PhiSlots/PhiSourcesForEdge);
		// reads from its own slot like any other DescSpill value.
	case tb.KindPass:
		g.lowerPassthroughFrom(r, n.A)
	case tb.KindCall:
		g.lowerCall(r, n)
	case tb.KindECall:
		g.lowerECall(r, n)
	case tb.KindVCall:
		g.lowerVCall(r, n)
	case tb.KindAtomicLoad:
		g.lowerAtomicLoad(r, n)
	case tb.KindAtomicXchg, tb.KindAtomicAdd, tb.KindAtomicSub,
		tb.KindAtomicAnd, tb.KindAtomicOr, tb.KindAtomicXor:
		g.lowerAtomicRMW(r, n)
	case tb.KindAtomicCmpXchg:
		g.lowerCmpXchg(r, n)
	case tb.KindAtomicTestAndSet:
		g.lowerTestAndSet(r, n)
	case tb.KindAtomicClear:
		g.lowerAtomicClear(r, n)
	case tb.KindGoto:
		g.lowerGoto(r, n)
	case tb.KindIf:
		g.lowerIf(r, n)
	case tb.KindSwitch:
		g.lowerSwitch(r, n)
	case tb.KindRet:
		g.lowerRet(r, n)
	case tb.KindUnreachable, tb.KindDebugBreak:
		g.e.EmitBytes(0x0F, 0x0B) // ud2
	case tb.KindRestrict:
		g.lowerPassthroughFrom(r, n.A)
	}
}

func (g *gen) addrOf(r tb.Reg) Val {
	if owner, ok := g.tile.Pending(); ok && owner == r {
		v, _ := g.tile.Consume(owner)
		return v
	}
	d := g.a.Desc(r)
	switch d.Kind {
	case DescStack, DescSpill:
		return Mem(RBP, -1, 0, d.Offset)
	case DescGPR:
		return Mem(d.Reg, -1, 0, 0)
	default:
		reg := g.use(r)
		return Mem(reg, -1, 0, 0)
	}
}

// lowerArrayAccess/lowerMemberAccess compute an address expression and
// hold it as a pending tile instead of materialising it into a register,
// so the immediately following load/store can fold it into its own
// ModR/M (spec.md §4.3 Memory-operand tiling).
func (g *gen) lowerArrayAccess(r tb.Reg, n *tb.Node) {
	base := g.addrOf(n.A)
	idxReg := g.use(n.B)
	if base.Kind != ValMem || base.Index >= 0 {
		reg := g.spillTileToReg(base)
		base = Mem(reg, -1, 0, 0)
	}
	v := Mem(base.Base, idxReg, int(n.Imm), base.Disp)
	g.tile.Set(r, v)
}

func (g *gen) lowerMemberAccess(r tb.Reg, n *tb.Node) {
	base := g.addrOf(n.A)
	if base.Kind != ValMem {
		reg := g.spillTileToReg(base)
		base = Mem(reg, -1, 0, 0)
	}
	v := Mem(base.Base, base.Index, base.Scale, base.Disp+int32(n.Imm))
	g.tile.Set(r, v)
}

// spillTileToReg materialises an address-expression Val into a scratch GPR via lea
// when a subsequent addressing mode can't represent it directly (e.g. a
// tile with both an index and a further index wanted). The scratch
// register stays pinned under tb.TempReg for the rest of the function,
// like rsp/rbp — an acceptable simplification at this tier since doubly
// nested addressing chains are rare and a function only pays this cost
// once per occurrence.
func (g *gen) spillTileToReg(v Val) int {
	scratch := g.a.AllocGPR(tb.TempReg)
	g.e.LeaRM(W64, scratch, v)
	return scratch
}

func (g *gen) lowerLoad(r tb.Reg, n *tb.Node) {
	addr := g.addrOf(n.A)
	if n.Type.IsFloat() {
		reg := g.a.AllocXMM(r)
		g.e.MovScalar(n.Type.Width == tb.F32, reg, addr, false)
		return
	}
	reg := g.a.AllocGPR(r)
	g.e.MovRM(width(n.Type), reg, addr)
}

func (g *gen) lowerStore(r tb.Reg, n *tb.Node) {
	addr := g.addrOf(n.A)
	if n.Type.IsFloat() {
		src := g.useXMM(n.B)
		g.e.MovScalar(n.Type.Width == tb.F32, src, addr, true)
		return
	}
	src := g.use(n.B)
	g.e.MovMR(width(n.Type), addr, src)
}

// lowerMemset/lowerMemcpy/lowerMemclr lower to the string-move idiom
// (rep stosb/movsb), the simplest correct encoding for the fast tier;
// a later optimisation tier could specialise small constant sizes into
// straight-line stores.
func (g *gen) lowerMemset(r tb.Reg, n *tb.Node) {
	g.stringOp(n.A, g.use(n.B), n.C, true)
}
func (g *gen) lowerMemcpy(r tb.Reg, n *tb.Node) {
	g.stringOp(n.A, g.use(n.B), n.C, false)
}
func (g *gen) lowerMemclr(r tb.Reg, n *tb.Node) {
	// memclr has no IR node to carry the fill byte, and code generation
	// runs after the function's node stream is closed (Function.append
	// is a no-op past the last block), so the zero has to be materialised
	// straight into a scratch register rather than built as an int_const.
	zero := g.a.AllocGPR(tb.TempReg)
	g.e.ALURR(opXor, W32, zero, zero)
	g.stringOp(n.A, zero, n.C, true)
}

func (g *gen) stringOp(dst tb.Reg, srcOrVal int, size tb.Reg, isSet bool) {
	dstReg := g.use(dst)
	g.e.MovRR(W64, RDI, dstReg)
	szReg := g.use(size)
	g.e.MovRR(W64, RCX, szReg)
	if isSet {
		g.e.MovRR(W8, RAX, srcOrVal)
		g.e.EmitBytes(0xF3, 0xAA) // rep stosb
	} else {
		g.e.MovRR(W64, RSI, srcOrVal)
		g.e.EmitBytes(0xF3, 0xA4) // rep movsb
	}
}

// lowerALU covers the commutative bitwise/add/sub family: if the left
// operand has exactly one remaining use, the op rewrites it in place
// (rename); otherwise the result is copied into a fresh register first
// (spec.md §4.3 Arithmetic lowering).
func (g *gen) lowerALU(r tb.Reg, n *tb.Node) {
	op := aluOpFor(n.Kind)
	a := g.use(n.A)
	dst := g.renameOrCopy(r, n.A, a)
	if bv, ok := g.constOperand(n.B); ok {
		g.e.ALURI(op, width(n.Type), dst, bv)
		return
	}
	b := g.use(n.B)
	g.e.ALURR(op, width(n.Type), dst, b)
}

func aluOpFor(k tb.Kind) arithOp {
	switch k {
	case tb.KindAdd:
		return opAdd
	case tb.KindSub:
		return opSub
	case tb.KindAnd:
		return opAnd
	case tb.KindOr:
		return opOr
	case tb.KindXor:
		return opXor
	default:
		panic("x64: aluOpFor: not an ALU kind")
	}
}

// renameOrCopy implements the "use-count 1 → rename" decision: if a's
// node has no other pending consumers, r simply takes over a's physical
// register; otherwise r gets a fresh register seeded with a's value.
func (g *gen) renameOrCopy(r, aReg tb.Reg, aPhysReg int) int {
	if g.f.Node(aReg).Uses == 0 {
		d := g.a.Desc(r)
		d.Kind, d.Reg = DescGPR, aPhysReg
		g.a.gprOwner[aPhysReg] = r
		return aPhysReg
	}
	dst := g.a.AllocGPR(r)
	g.e.MovRR(W64, dst, aPhysReg)
	return dst
}

// constOperand reports whether r names an int_const small enough to fold
// as an immediate, without allocating it a register (spec.md §4.3
// "constants fold directly into immediate operands").
func (g *gen) constOperand(r tb.Reg) (int32, bool) {
	n := g.f.Node(r)
	if n.Kind != tb.KindIntConst {
		return 0, false
	}
	if n.Imm < -2147483648 || n.Imm > 2147483647 {
		return 0, false
	}
	n.Uses--
	return int32(n.Imm), true
}

func (g *gen) lowerMul(r tb.Reg, n *tb.Node) {
	a := g.use(n.A)
	dst := g.renameOrCopy(r, n.A, a)
	b := g.use(n.B)
	g.e.ImulRR(width(n.Type), dst, b)
}

// lowerDivMod implements the rax/rdx-pinned division contract (spec.md
// §4.3): the dividend is forced into rax (evicting whatever else lives
// there), rdx is evicted and sign/zero-extended from rax, and the
// quotient (div/sdiv) or remainder (mod) is read from rax/rdx
// respectively.
func (g *gen) lowerDivMod(r tb.Reg, n *tb.Node) {
	g.forceInto(n.A, RAX)
	g.a.evictForced(RDX)
	signed := n.Kind == tb.KindSDiv || n.Kind == tb.KindSMod
	w := width(n.Type)
	if signed {
		g.e.Cqo(w)
	} else {
		g.e.ALURR(opXor, w, RDX, RDX)
	}
	b := g.use(n.B)
	if signed {
		g.e.IdivR(w, b)
	} else {
		g.e.DivR(w, b)
	}
	resultReg := RAX
	if n.Kind == tb.KindUMod || n.Kind == tb.KindSMod {
		resultReg = RDX
	}
	d := g.a.Desc(r)
	d.Kind, d.Reg = DescGPR, resultReg
	g.a.gprOwner[resultReg] = r
}

// forceInto moves r's value into physical GPR reg, evicting reg's
// current owner first if occupied by something else.
func (g *gen) forceInto(r tb.Reg, reg int) {
	g.a.evictForced(reg)
	cur := g.use(r)
	if cur != reg {
		g.e.MovRR(W64, reg, cur)
		g.a.FreeGPR(cur)
	}
	g.a.gprOwner[reg] = r
	d := g.a.Desc(r)
	d.Kind, d.Reg = DescGPR, reg
}

func (g *gen) lowerShift(r tb.Reg, n *tb.Node) {
	digit := byte(ShiftLeft)
	switch n.Kind {
	case tb.KindShr:
		digit = ShiftRightU
	case tb.KindSar:
		digit = ShiftRightS
	}
	a := g.use(n.A)
	dst := g.renameOrCopy(r, n.A, a)
	w := width(n.Type)
	if c, ok := g.constOperand(n.B); ok {
		g.e.ShiftImm(w, digit, dst, byte(c))
		return
	}
	g.forceInto(n.B, RCX)
	g.e.ShiftCL(w, digit, dst)
}

func (g *gen) lowerUnary(r tb.Reg, n *tb.Node, neg bool) {
	a := g.use(n.A)
	dst := g.renameOrCopy(r, n.A, a)
	if neg {
		g.e.NegR(width(n.Type), dst)
	} else {
		g.e.NotR(width(n.Type), dst)
	}
}

func (g *gen) lowerFArith(r tb.Reg, n *tb.Node) {
	single := n.Type.Width == tb.F32
	a := g.useXMM(n.A)
	dst := a
	if g.f.Node(n.A).Uses > 0 {
		dst = g.a.AllocXMM(r)
		g.e.MovScalar(single, dst, XMM(a), false)
	} else {
		d := g.a.Desc(r)
		d.Kind, d.Reg = DescXMM, a
		g.a.xmmOwner[a] = r
	}
	b := g.useXMM(n.B)
	switch n.Kind {
	case tb.KindFAdd:
		g.e.Addss(single, dst, XMM(b))
	case tb.KindFSub:
		g.e.Subss(single, dst, XMM(b))
	case tb.KindFMul:
		g.e.Mulss(single, dst, XMM(b))
	case tb.KindFDiv:
		g.e.Divss(single, dst, XMM(b))
	}
}

func (g *gen) lowerSqrt(r tb.Reg, n *tb.Node) {
	single := n.Type.Width == tb.F32
	a := g.useXMM(n.A)
	dst := g.a.AllocXMM(r)
	g.e.Sqrtss(single, dst, XMM(a))
}

// lowerPassthrough covers no-op-at-runtime conversions (truncation just
// narrows how later ops read the same bits; bitcast/int2ptr/ptr2int don't
// move data between register classes).
func (g *gen) lowerPassthrough(r tb.Reg, n *tb.Node) { g.lowerPassthroughFrom(r, n.A) }

func (g *gen) lowerPassthroughFrom(r, src tb.Reg) {
	reg := g.use(src)
	d := g.a.Desc(r)
	d.Kind, d.Reg = DescGPR, reg
	g.a.gprOwner[reg] = r
}

func (g *gen) lowerExtend(r tb.Reg, n *tb.Node, signed bool) {
	srcType := g.f.Node(n.A).Type
	a := g.use(n.A)
	dst := g.a.AllocGPR(r)
	if signed {
		if srcType.Width == 32 {
			g.e.MovsxdRR(dst, a)
		} else {
			g.e.MovzxRM(W64, WidthFromBits(srcType.Width), dst, GPR(a))
		}
	} else if srcType.Width == 32 {
		// movzx has no 32-bit source form; an ordinary 32-bit mov already
		// zero-extends into the full 64-bit destination on hardware.
		g.e.MovRR(W32, dst, a)
	} else {
		g.e.MovzxRM(width(n.Type), WidthFromBits(srcType.Width), dst, GPR(a))
	}
}

func (g *gen) lowerFloatExt(r tb.Reg, n *tb.Node) {
	a := g.useXMM(n.A)
	dst := g.a.AllocXMM(r)
	g.e.MovScalar(false, dst, XMM(a), false)
}

func (g *gen) lowerInt2Float(r tb.Reg, n *tb.Node) {
	a := g.use(n.A)
	dst := g.a.AllocXMM(r)
	g.e.Cvtsi2sX(n.Type.Width == tb.F32, width(g.f.Node(n.A).Type), dst, GPR(a))
}

func (g *gen) lowerFloat2Int(r tb.Reg, n *tb.Node) {
	a := g.useXMM(n.A)
	dst := g.a.AllocGPR(r)
	g.e.Cvttsx2si(g.f.Node(n.A).Type.Width == tb.F32, width(n.Type), dst, XMM(a))
}

// ccFor maps a comparison kind to its condition code. It swaps no
// operands: the builder already expresses gt/ge as lt/le with swapped
// operands, so only the kinds below reach this table.
func ccFor(k tb.Kind) byte {
	switch k {
	case tb.KindCmpEq:
		return CCZero
	case tb.KindCmpNe:
		return CCNotZero
	case tb.KindCmpSlt:
		return CCLess
	case tb.KindCmpSle:
		return CCLessEq
	case tb.KindCmpUlt:
		return CCBelow
	case tb.KindCmpUle:
		return CCBelowEq
	case tb.KindCmpFlt:
		return CCBelow
	case tb.KindCmpFle:
		return CCBelowEq
	default:
		panic("x64: ccFor: not a comparison kind")
	}
}

// lowerCompare leaves the result pending as DescFlags when its only
// consumer is the If immediately following it in the node stream
// (spec.md §4.3 "comparisons feeding a branch compile directly to
// cmp+jcc with no intervening setcc"); otherwise it materialises a 0/1
// byte via setcc. The adjacency check (not just n.Uses == 1) matters
// because nothing else invalidates a pending DescFlags (spec.md §9) —
// parking flags for a non-adjacent consumer would let an intervening
// instruction clobber them before condCodeOf ever reads d.CC.
func (g *gen) lowerCompare(r tb.Reg, n *tb.Node) {
	isFloat := g.f.Node(n.A).Type.IsFloat()
	if isFloat {
		a := g.useXMM(n.A)
		b := g.useXMM(n.B)
		single := g.f.Node(n.A).Type.Width == tb.F32
		g.e.Ucomiss(single, a, XMM(b))
	} else {
		a := g.use(n.A)
		if c, ok := g.constOperand(n.B); ok {
			g.e.ALURI(opCmp, width(g.f.Node(n.A).Type), a, c)
		} else {
			b := g.use(n.B)
			g.e.ALURR(opCmp, width(g.f.Node(n.A).Type), a, b)
		}
	}
	d := g.a.Desc(r)
	if n.Uses == 1 && g.nextIsConsumingIf(r) {
		d.Kind, d.CC = DescFlags, ccFor(n.Kind)
		return
	}
	reg := g.a.AllocGPR(r)
	g.e.Setcc(ccFor(n.Kind), reg)
	g.e.MovzxRM(W64, W8, reg, GPR(reg))
}

// nextIsConsumingIf reports whether the node immediately following r in
// the stream is the If that consumes r's value, the only shape in which
// a pending DescFlags is safe to leave unmaterialised: nothing sits
// between the cmp and the jcc to clobber the flags first.
func (g *gen) nextIsConsumingIf(r tb.Reg) bool {
	next := r + 1
	if int(next) >= g.f.Count() {
		return false
	}
	n := g.f.Node(next)
	return n.Kind == tb.KindIf && n.A == r
}

func (g *gen) lowerSelect(r tb.Reg, n *tb.Node) {
	cc := g.condCodeOf(n.A)
	b := g.use(n.B)
	dst := g.renameOrCopy(r, n.B, b)
	c := g.use(n.C)
	// cmovcc dst, c (0F 40+cc /r)
	g.e.rex(width(n.Type), dst, GPR(c))
	g.e.EmitBytes(0x0F, 0x40|cc)
	g.e.emitModRM(dst, GPR(c))
}

// condCodeOf evaluates cond (a comparison or boolean value) into a
// pending condition code, emitting a test if it's a plain bool register
// rather than an already-pending DescFlags.
func (g *gen) condCodeOf(cond tb.Reg) byte {
	d := g.a.Desc(cond)
	if d.Kind == DescFlags {
		return d.CC
	}
	// A literal bool condition reaching codegen means canonicalisation
	// didn't fold its branch away; test it at runtime like any other
	// bool value rather than special-casing it here.
	reg := g.use(cond)
	g.e.TestRR(W8, reg, reg)
	return CCNotZero
}

// lowerGoto resolves phi sources for the edge, then emits the branch
// unless the label it targets is the very next node (fall-through
// elision, spec.md §4.3 Reordering).
func (g *gen) lowerGoto(r tb.Reg, n *tb.Node) {
	g.resolvePhiEdge(g.curLabel, n.Label)
	if tb.Reg(int(r)+1) == n.Label {
		return
	}
	site := g.e.JmpRel32()
	g.cf.RecordBranch(site, n.Label)
}

// lowerIf emits cmp+jcc with no intervening setcc when its condition is a
// pending DescFlags value. When one successor is the next block, it emits
// a single jcc and no jmp: on the condition when the false target falls
// through, on the inverted condition when the true target falls through.
func (g *gen) lowerIf(r tb.Reg, n *tb.Node) {
	cc := g.condCodeOf(n.A)
	from := g.curLabel
	fallThrough := tb.Reg(int(r) + 1)
	if fallThrough == n.C {
		g.resolvePhiEdge(from, n.B)
		site := g.e.JccRel32(cc)
		g.cf.RecordBranch(site, n.B)
		g.resolvePhiEdge(from, n.C)
		return
	}
	if fallThrough == n.B {
		g.resolvePhiEdge(from, n.C)
		site := g.e.JccRel32(invertCC(cc))
		g.cf.RecordBranch(site, n.C)
		g.resolvePhiEdge(from, n.B)
		return
	}
	g.resolvePhiEdge(from, n.B)
	trueSite := g.e.JccRel32(cc)
	g.cf.RecordBranch(trueSite, n.B)
	g.resolvePhiEdge(from, n.C)
	elseSite := g.e.JmpRel32()
	g.cf.RecordBranch(elseSite, n.C)
}

func invertCC(cc byte) byte {
	switch cc {
	case CCZero:
		return CCNotZero
	case CCNotZero:
		return CCZero
	case CCLess:
		return CCGreaterEq
	case CCGreaterEq:
		return CCLess
	case CCLessEq:
		return CCGreater
	case CCGreater:
		return CCLessEq
	case CCBelow:
		return CCAboveEq
	case CCAboveEq:
		return CCBelow
	case CCBelowEq:
		return CCAbove
	case CCAbove:
		return CCBelowEq
	default:
		return cc
	}
}

func (g *gen) lowerSwitch(r tb.Reg, n *tb.Node) {
	key := g.use(n.A)
	from := g.curLabel
	aux := g.f.AuxSlice(n.AuxStart, n.AuxEnd)
	for i := 0; i+1 < len(aux); i += 2 {
		k := aux[i].Key
		target := aux[i+1].Reg
		if k >= -2147483648 && k <= 2147483647 {
			g.e.ALURI(opCmp, W64, key, int32(k))
		}
		// Phis on a case target must see this edge's values even though
		// the jump is conditional: cheapest correct option at this tier
		// is to resolve them unconditionally before testing the key,
		// since a case target can only be reached via this edge once.
		g.resolvePhiEdge(from, target)
		site := g.e.JccRel32(CCZero)
		g.cf.RecordBranch(site, target)
	}
	g.resolvePhiEdge(from, n.Label)
	site := g.e.JmpRel32()
	g.cf.RecordBranch(site, n.Label)
}

func (g *gen) lowerRet(r tb.Reg, n *tb.Node) {
	if n.A != tb.NullReg {
		reg, isFloat := ReturnReg(g.f.Node(n.A).Type)
		if isFloat {
			src := g.useXMM(n.A)
			if src != reg {
				g.e.MovScalar(g.f.Node(n.A).Type.Width == tb.F32, reg, XMM(src), false)
			}
		} else {
			src := g.use(n.A)
			if src != reg {
				g.e.MovRR(W64, reg, src)
			}
		}
	}
	if int(r) == g.f.Count()-1 {
		return // falls straight into the shared epilogue emitted right after
	}
	site := g.e.JmpRel32()
	g.epilogueJumps = append(g.epilogueJumps, site)
}

// resolvePhiEdge emits the moves that write every successor phi's slot
// from its value on the edge (r -> target), immediately before the
// branch that takes that edge (spec.md §4.3 φ-resolution).
func (g *gen) resolvePhiEdge(from tb.Reg, target tb.Reg) {
	pairs := PhiSourcesForEdge(g.f, g.phiRegs, from)
	for _, p := range pairs {
		slot := g.phiSlots[p.Phi]
		phiType := g.f.Node(p.Phi).Type
		if phiType.IsFloat() {
			v := g.useXMM(p.Value)
			g.e.MovScalar(phiType.Width == tb.F32, v, Mem(RBP, -1, 0, slot), true)
		} else {
			v := g.use(p.Value)
			g.e.MovMR(width(phiType), Mem(RBP, -1, 0, slot), v)
		}
	}
}

// lowerCall/lowerECall/lowerVCall place arguments per the ABI's
// classification, emit the call, and record the result's storage from
// the ABI's return register.
func (g *gen) lowerCall(r tb.Reg, n *tb.Node) {
	g.placeArgs(g.f.CallArgs(r))
	site := g.e.CallRel32()
	g.callPatches = append(g.callPatches, tb.Patch{Kind: tb.PatchCall, FunctionID: g.fid, CodeOffset: site, Target: int(n.Imm)})
	g.captureReturn(r, n.Type)
}

func (g *gen) lowerECall(r tb.Reg, n *tb.Node) {
	g.placeArgs(g.f.CallArgs(r))
	site := g.e.CallRel32()
	g.globalPatches = append(g.globalPatches, tb.Patch{Kind: tb.PatchCall, FunctionID: g.fid, CodeOffset: site})
	_ = n.Str // resolved by the object writer via the symbol table
	g.captureReturn(r, n.Type)
}

func (g *gen) lowerVCall(r tb.Reg, n *tb.Node) {
	g.placeArgs(g.f.CallArgs(r))
	target := g.use(n.A)
	g.e.CallRM(GPR(target))
	g.captureReturn(r, n.Type)
}

func (g *gen) placeArgs(args []tb.Reg) {
	types := make([]tb.DataType, len(args))
	for i, a := range args {
		types[i] = g.f.Node(a).Type
	}
	slots := ClassifyArgs(g.abi, types)
	for i, slot := range slots {
		if slot.Stack {
			v := g.use(args[i])
			g.e.MovMR(W64, Mem(RSP, -1, 0, slot.StackOff), v)
			continue
		}
		if slot.IsFloat {
			g.forceIntoXMM(args[i], slot.Reg)
		} else {
			g.forceInto(args[i], slot.Reg)
		}
	}
}

func (g *gen) forceIntoXMM(r tb.Reg, reg int) {
	g.a.evictXMMForced(reg)
	cur := g.useXMM(r)
	if cur != reg {
		g.e.MovScalar(g.f.Node(r).Type.Width == tb.F32, reg, XMM(cur), false)
		g.a.FreeXMM(cur)
	}
	g.a.xmmOwner[reg] = r
}

func (g *gen) captureReturn(r tb.Reg, dt tb.DataType) {
	if dt.Family == tb.Void {
		return
	}
	reg, isFloat := ReturnReg(dt)
	d := g.a.Desc(r)
	if isFloat {
		d.Kind, d.Reg = DescXMM, reg
		g.a.xmmOwner[reg] = r
	} else {
		d.Kind, d.Reg = DescGPR, reg
		g.a.gprOwner[reg] = r
	}
}

// === Atomics ===

func (g *gen) lowerAtomicLoad(r tb.Reg, n *tb.Node) {
	addr := g.addrOf(n.A)
	reg := g.a.AllocGPR(r)
	g.e.MovRM(width(n.Type), reg, addr)
}

func (g *gen) lowerAtomicRMW(r tb.Reg, n *tb.Node) {
	addr := g.addrOf(n.A)
	val := g.use(n.B)
	op := aluOpFor(atomicALUKind(n.Kind))
	g.e.Lock()
	g.e.ALUMR(op, width(n.Type), addr, val)
	reg := g.a.AllocGPR(r)
	g.e.MovRM(width(n.Type), reg, addr)
}

func atomicALUKind(k tb.Kind) tb.Kind {
	switch k {
	case tb.KindAtomicAdd:
		return tb.KindAdd
	case tb.KindAtomicSub:
		return tb.KindSub
	case tb.KindAtomicAnd:
		return tb.KindAnd
	case tb.KindAtomicOr:
		return tb.KindOr
	case tb.KindAtomicXor:
		return tb.KindXor
	default:
		return tb.KindXor
	}
}

func (g *gen) lowerCmpXchg(r tb.Reg, n *tb.Node) {
	addr := g.addrOf(n.A)
	g.forceInto(n.B, RAX)
	desired := g.use(n.C)
	g.e.Lock()
	g.e.CmpxchgMR(width(n.Type), addr, desired)
	reg := g.a.AllocGPR(r)
	g.e.MovRR(width(n.Type), reg, RAX)
}

func (g *gen) lowerTestAndSet(r tb.Reg, n *tb.Node) {
	// As in lowerMemclr, the literal 1 has no int_const to carry it here
	// (we're past the point where appending to the node stream works),
	// so it's materialised straight into r's own register: xchg leaves
	// the prior memory value in that register, which becomes r's value.
	addr := g.addrOf(n.A)
	reg := g.a.AllocGPR(r)
	g.e.MovImm32(W32, reg, 1)
	g.e.XchgRM(W8, addr, reg)
}

func (g *gen) lowerAtomicClear(r tb.Reg, n *tb.Node) {
	addr := g.addrOf(n.A)
	zero := g.a.AllocGPR(tb.TempReg)
	g.e.ALURR(opXor, W32, zero, zero)
	g.e.XchgRM(W8, addr, zero)
}
