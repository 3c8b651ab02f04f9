package x64

// Width selects the operand size for an encoded instruction (bits).
type Width int

const (
	W8 Width = 8
	W16 Width = 16
	W32 Width = 32
	W64 Width = 64
)

// WidthFromBits rounds an IR DataType's bit width up to the nearest
// machine size the encoder understands (i1/i8 share the byte encoding;
// wider non-power-of-two widths don't exist per tb.TypeInt's validation).
func WidthFromBits(bits uint8) Width {
	switch {
	case bits <= 8:
		return W8
	case bits <= 16:
		return W16
	case bits <= 32:
		return W32
	default:
		return W64
	}
}

func (e *Emitter) prefix16(w Width) {
	if w == W16 {
		e.Emit1(0x66)
	}
}

func (e *Emitter) rex(w Width, reg int, rm Val) {
	base, index := rmFields(rm)
	r := rexByte(w == W64, reg, index, base)
	if needsRex(r) || w == W64 || reg >= 8 || base >= 8 || index >= 8 {
		e.Emit1(r)
	}
}

// arithOp is the /digit or opcode-byte pair for a reg/rm-form ALU op.
type arithOp struct {
	rmReg  byte // opcode for "op rm, reg" (dst is memory/reg, src is reg)
	regRm  byte // opcode for "op reg, rm" (dst is reg, src is memory/reg)
	digit  byte // ModRM reg-field extension for the immediate form (0x80/0x81/0x83)
}

var (
	opAdd = arithOp{0x01, 0x03, 0}
	opOr  = arithOp{0x09, 0x0B, 1}
	opAnd = arithOp{0x21, 0x23, 4}
	opSub = arithOp{0x29, 0x2B, 5}
	opXor = arithOp{0x31, 0x33, 6}
	opCmp = arithOp{0x39, 0x3B, 7}
)

// ALURR emits `op dst, src` where both operands are GPRs (dst is rm, src
// is reg, per the x86 "op r/m, r" encoding the teacher's movRR/addRR/etc.
// family uses).
func (e *Emitter) ALURR(op arithOp, w Width, dst, src int) {
	e.prefix16(w)
	e.rex(w, src, GPR(dst))
	e.Emit1(op.rmReg)
	e.emitModRM(src, GPR(dst))
}

// ALURM emits `op dst_reg, [mem]`.
func (e *Emitter) ALURM(op arithOp, w Width, dst int, src Val) {
	e.prefix16(w)
	e.rex(w, dst, src)
	e.Emit1(op.regRm)
	e.emitModRM(dst, src)
}

// ALUMR emits `op [mem], src_reg`.
func (e *Emitter) ALUMR(op arithOp, w Width, dst Val, src int) {
	e.prefix16(w)
	e.rex(w, src, dst)
	e.Emit1(op.rmReg)
	e.emitModRM(src, dst)
}

// ALURI emits `op dst, imm` (auto-selects imm8 vs imm32, like the
// teacher's addRI/subRI/cmpRI).
func (e *Emitter) ALURI(op arithOp, w Width, dst int, imm int32) {
	e.prefix16(w)
	e.rex(w, 0, GPR(dst))
	if imm >= -128 && imm <= 127 {
		e.Emit1(0x83)
		e.emitModRM(int(op.digit), GPR(dst))
		e.Emit1(byte(imm))
		return
	}
	e.Emit1(0x81)
	e.emitModRM(int(op.digit), GPR(dst))
	if w == W16 {
		e.Emit2(uint16(imm))
	} else {
		e.Emit4(uint32(imm))
	}
}

// TestRR emits `test a, b`.
func (e *Emitter) TestRR(w Width, a, b int) {
	e.prefix16(w)
	e.rex(w, b, GPR(a))
	e.Emit1(0x85)
	e.emitModRM(b, GPR(a))
}

// MovRR emits `mov dst, src`.
func (e *Emitter) MovRR(w Width, dst, src int) {
	if dst == src {
		return
	}
	e.prefix16(w)
	e.rex(w, src, GPR(dst))
	e.Emit1(0x89)
	e.emitModRM(src, GPR(dst))
}

// MovRM emits `mov dst_reg, [mem]`.
func (e *Emitter) MovRM(w Width, dst int, src Val) {
	e.prefix16(w)
	e.rex(w, dst, src)
	op := byte(0x8B)
	if w == W8 {
		op = 0x8A
	}
	e.Emit1(op)
	e.emitModRM(dst, src)
}

// MovMR emits `mov [mem], src_reg`.
func (e *Emitter) MovMR(w Width, dst Val, src int) {
	e.prefix16(w)
	e.rex(w, src, dst)
	op := byte(0x89)
	if w == W8 {
		op = 0x88
	}
	e.Emit1(op)
	e.emitModRM(src, dst)
}

// MovzxRM emits a zero-extending load: movzx dst(64), [mem](w).
func (e *Emitter) MovzxRM(dstWidth Width, srcWidth Width, dst int, src Val) {
	e.rex(dstWidth, dst, src)
	switch srcWidth {
	case W8:
		e.Emit1(0x0F)
		e.Emit1(0xB6)
	case W16:
		e.Emit1(0x0F)
		e.Emit1(0xB7)
	default:
		panic("x64: movzx only narrows from 8/16 bits")
	}
	e.emitModRM(dst, src)
}

// MovsxdRR sign-extends a 32-bit register into a 64-bit one (`movsxd`).
func (e *Emitter) MovsxdRR(dst, src int) {
	e.rex(W64, dst, GPR(src))
	e.Emit1(0x63)
	e.emitModRM(dst, GPR(src))
}

// MovImm32 emits `mov reg, imm32` (zero/sign extended per width by the
// caller choosing W32 vs W64 — the generator only ever calls this for
// values that fit in 32 bits, wider constants use MovImm64/movabs).
func (e *Emitter) MovImm32(w Width, reg int, imm int32) {
	e.rex(w, 0, GPR(reg))
	e.Emit1(0xB8 + byte(reg&7))
	e.Emit4(uint32(imm))
}

// MovImm64 emits `movabs reg, imm64`.
func (e *Emitter) MovImm64(reg int, imm uint64) {
	e.rex(W64, 0, GPR(reg))
	e.Emit1(0xB8 + byte(reg&7))
	e.Emit8(imm)
}

// LeaRM emits `lea dst, [mem]`.
func (e *Emitter) LeaRM(w Width, dst int, src Val) {
	e.rex(w, dst, src)
	e.Emit1(0x8D)
	e.emitModRM(dst, src)
}

func (e *Emitter) PushR(reg int) {
	if reg >= 8 {
		e.Emit1(0x41)
	}
	e.Emit1(0x50 + byte(reg&7))
}

func (e *Emitter) PopR(reg int) {
	if reg >= 8 {
		e.Emit1(0x41)
	}
	e.Emit1(0x58 + byte(reg&7))
}

// NegR emits `neg reg`.
func (e *Emitter) NegR(w Width, reg int) {
	e.rex(w, 0, GPR(reg))
	e.Emit1(0xF7)
	e.emitModRM(3, GPR(reg))
}

// NotR emits `not reg`.
func (e *Emitter) NotR(w Width, reg int) {
	e.rex(w, 0, GPR(reg))
	e.Emit1(0xF7)
	e.emitModRM(2, GPR(reg))
}

// Cqo emits `cqo` (sign-extend rax into rdx:rax) or `cdq` for 32-bit.
func (e *Emitter) Cqo(w Width) {
	if w == W64 {
		e.Emit1(0x48)
	}
	e.Emit1(0x99)
}

// IdivR/DivR emit `idiv`/`div reg`.
func (e *Emitter) IdivR(w Width, reg int) {
	e.rex(w, 0, GPR(reg))
	e.Emit1(0xF7)
	e.emitModRM(7, GPR(reg))
}
func (e *Emitter) DivR(w Width, reg int) {
	e.rex(w, 0, GPR(reg))
	e.Emit1(0xF7)
	e.emitModRM(6, GPR(reg))
}

// ImulRR emits `imul dst, src` (two-byte opcode 0F AF).
func (e *Emitter) ImulRR(w Width, dst, src int) {
	e.rex(w, dst, GPR(src))
	e.Emit1(0x0F)
	e.Emit1(0xAF)
	e.emitModRM(dst, GPR(src))
}

// ShiftCL emits a CL-form shift/rotate; digit selects shl(4)/shr(5)/sar(7).
func (e *Emitter) ShiftCL(w Width, digit byte, reg int) {
	e.rex(w, 0, GPR(reg))
	e.Emit1(0xD3)
	e.emitModRM(int(digit), GPR(reg))
}

// ShiftImm emits an immediate-count shift/rotate.
func (e *Emitter) ShiftImm(w Width, digit byte, reg int, n byte) {
	e.rex(w, 0, GPR(reg))
	e.Emit1(0xC1)
	e.emitModRM(int(digit), GPR(reg))
	e.Emit1(n)
}

const (
	ShiftLeft    = 4
	ShiftRightU  = 5
	ShiftRightS  = 7
)

// Setcc emits `setCC reg_lo8`.
func (e *Emitter) Setcc(cc byte, reg int) {
	if reg >= 8 {
		e.Emit1(0x41)
	}
	e.Emit1(0x0F)
	e.Emit1(0x90 | cc)
	e.emitModRM(0, GPR(reg))
}

// JccRel32/JmpRel32 reserve a 32-bit displacement and return the patch
// site's code offset for the control-flow driver to back-patch once
// every label's final offset is known.
func (e *Emitter) JccRel32(cc byte) int {
	e.Emit1(0x0F)
	e.Emit1(0x80 | cc)
	site := e.Pos()
	e.Emit4(0)
	return site
}
func (e *Emitter) JmpRel32() int {
	e.Emit1(0xE9)
	site := e.Pos()
	e.Emit4(0)
	return site
}

// CallRel32 emits `call rel32`, returning the patch site.
func (e *Emitter) CallRel32() int {
	e.Emit1(0xE8)
	site := e.Pos()
	e.Emit4(0)
	return site
}

// CallRM emits an indirect `call r/m64`.
func (e *Emitter) CallRM(rm Val) {
	base, index := rmFields(rm)
	r := rexByte(false, 0, index, base)
	if needsRex(r) {
		e.Emit1(r)
	}
	e.Emit1(0xFF)
	e.emitModRM(2, rm)
}

func (e *Emitter) Ret() { e.Emit1(0xC3) }

func (e *Emitter) Syscall() { e.EmitBytes(0x0F, 0x05) }

// Lock prefixes the next instruction for an atomic RMW (spec.md §4.3).
func (e *Emitter) Lock() { e.Emit1(0xF0) }

// XchgRM emits `xchg [mem], reg` (implicitly locked by the bus when the
// destination is memory, so callers performing atomic xchg need no
// explicit Lock prefix per spec.md's note).
func (e *Emitter) XchgRM(w Width, dst Val, reg int) {
	e.prefix16(w)
	e.rex(w, reg, dst)
	e.Emit1(0x87)
	e.emitModRM(reg, dst)
}

// CmpxchgMR emits `cmpxchg [mem], reg` (rax holds the expected value,
// per spec.md's calling contract for this op).
func (e *Emitter) CmpxchgMR(w Width, dst Val, reg int) {
	e.prefix16(w)
	e.rex(w, reg, dst)
	e.EmitBytes(0x0F, 0xB1)
	e.emitModRM(reg, dst)
}

// === SSE scalar float ===

func (e *Emitter) sseRex(reg int, rm Val) {
	base, index := rmFields(rm)
	r := rexByte(false, reg, index, base)
	if needsRex(r) {
		e.Emit1(r)
	}
}

// MovScalar moves a scalar float between XMM registers or memory; single
// selects movss (0xF3) vs movsd (0xF2).
func (e *Emitter) MovScalar(single bool, dst int, src Val, storeDirection bool) {
	if single {
		e.Emit1(0xF3)
	} else {
		e.Emit1(0xF2)
	}
	e.sseRex(dst, src)
	e.EmitBytes(0x0F)
	if storeDirection {
		e.Emit1(0x11)
		e.emitModRM(dst, src)
	} else {
		e.Emit1(0x10)
		e.emitModRM(dst, src)
	}
}

// sseArith covers adds/subs/muls/divs/ucomis for scalar single/double.
func (e *Emitter) sseArith(prefix byte, op byte, single bool, dst int, src Val) {
	e.Emit1(prefix)
	e.sseRex(dst, src)
	e.EmitBytes(0x0F, op)
	e.emitModRM(dst, src)
}

func (e *Emitter) Addss(single bool, dst int, src Val) {
	p := byte(0xF2)
	if single {
		p = 0xF3
	}
	e.sseArith(p, 0x58, single, dst, src)
}
func (e *Emitter) Subss(single bool, dst int, src Val) {
	p := byte(0xF2)
	if single {
		p = 0xF3
	}
	e.sseArith(p, 0x5C, single, dst, src)
}
func (e *Emitter) Mulss(single bool, dst int, src Val) {
	p := byte(0xF2)
	if single {
		p = 0xF3
	}
	e.sseArith(p, 0x59, single, dst, src)
}
func (e *Emitter) Divss(single bool, dst int, src Val) {
	p := byte(0xF2)
	if single {
		p = 0xF3
	}
	e.sseArith(p, 0x5E, single, dst, src)
}
func (e *Emitter) Sqrtss(single bool, dst int, src Val) {
	p := byte(0xF2)
	if single {
		p = 0xF3
	}
	e.sseArith(p, 0x51, single, dst, src)
}
func (e *Emitter) Ucomiss(single bool, a int, b Val) {
	if single {
		e.sseRex(a, b)
		e.EmitBytes(0x0F, 0x2E)
		e.emitModRM(a, b)
		return
	}
	e.Emit1(0x66)
	e.sseRex(a, b)
	e.EmitBytes(0x0F, 0x2E)
	e.emitModRM(a, b)
}

// Xorps zeroes an XMM register (`xorps xmm, xmm`, the canonical float
// zero per spec.md §4.3 "the literal 0.0 uses xorps reg, reg").
func (e *Emitter) Xorps(reg int) {
	e.sseRex(reg, XMM(reg))
	e.EmitBytes(0x0F, 0x57)
	e.emitModRM(reg, XMM(reg))
}

// Cvtsi2sX converts a GPR integer to a scalar float.
func (e *Emitter) Cvtsi2sX(single bool, w Width, dst int, src Val) {
	if single {
		e.Emit1(0xF3)
	} else {
		e.Emit1(0xF2)
	}
	e.rex(w, dst, src)
	e.EmitBytes(0x0F, 0x2A)
	e.emitModRM(dst, src)
}

// Cvttsx2si converts (truncating) a scalar float to a GPR integer.
func (e *Emitter) Cvttsx2si(single bool, w Width, dst int, src Val) {
	if single {
		e.Emit1(0xF3)
	} else {
		e.Emit1(0xF2)
	}
	e.rex(w, dst, src)
	e.EmitBytes(0x0F, 0x2C)
	e.emitModRM(dst, src)
}
