package x64

import "github.com/c3lang/tilde-backend/tb"

// DescKind is the AddressDesc discriminant (spec.md §4.3 Storage model).
type DescKind uint8

const (
	DescNone DescKind = iota
	DescGPR
	DescXMM
	DescStack
	DescSpill
	DescFlags
)

// AddressDesc records where the live value for an IR Reg currently
// resides.
type AddressDesc struct {
	Kind   DescKind
	Reg    int   // DescGPR / DescXMM: physical register index
	Offset int32 // DescStack / DescSpill: rbp-relative byte offset
	CC     byte  // DescFlags: pending condition code
}

// gprPriority is the allocator's preferred free-register search order
// (spec.md §4.3 "rax, rcx, rdx, r8, r9, r10, r11, rdi, rsi, rbx, r12..r15"):
// caller-saved scratch first, callee-saved last so most functions never
// touch one and the prologue stays empty.
var gprPriority = []int{RAX, RCX, RDX, R8, R9, R10, R11, RDI, RSI, RBX, R12, R13, R14, R15}

// xmmPriority: all 16 XMM registers are caller-saved under both ABIs this
// generator targets, so straight numeric order is fine.
var xmmPriority = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

const noOwner = tb.NullReg
const tempOwner = tb.TempReg

// Allocator is the per-function register/spill-slot assignment state
// (spec.md §4.3's gpr_owner/xmm_owner tables plus the spill bump
// allocator and the "touched callee-saved" bitmask for the prologue).
type Allocator struct {
	f *tb.Function
	e *Emitter // eviction emits the spill store directly

	gprOwner [16]tb.Reg
	xmmOwner [16]tb.Reg

	gprAvailable int
	xmmAvailable int

	desc map[tb.Reg]*AddressDesc

	spillSize    int32 // bytes allocated to spill slots so far
	calleeSaved  uint32 // bitmask of GPRs (1<<idx) the function clobbers
}

func NewAllocator(f *tb.Function, e *Emitter) *Allocator {
	a := &Allocator{
		f:    f,
		e:    e,
		desc: make(map[tb.Reg]*AddressDesc, f.Count()),
	}
	for i := range a.gprOwner {
		a.gprOwner[i] = noOwner
	}
	for i := range a.xmmOwner {
		a.xmmOwner[i] = noOwner
	}
	// rsp/rbp are never allocator-managed GPRs.
	a.gprOwner[RSP] = tempOwner
	a.gprOwner[RBP] = tempOwner
	a.gprAvailable = len(gprPriority)
	a.xmmAvailable = len(xmmPriority)
	return a
}

// Desc returns r's current storage location, allocating a DescNone entry
// if this is the first time r is referenced.
func (a *Allocator) Desc(r tb.Reg) *AddressDesc {
	d, ok := a.desc[r]
	if !ok {
		d = &AddressDesc{Kind: DescNone}
		a.desc[r] = d
	}
	return d
}

// isCalleeSaved reports whether a physical GPR is callee-saved under
// both the System V and Win64 ABIs this generator targets (rbx, rbp, and
// r12-r15 are callee-saved on both; rdi/rsi are callee-saved only on
// Win64, but marking them callee-saved unconditionally is always safe,
// just occasionally over-conservative).
func isCalleeSaved(reg int) bool {
	switch reg {
	case RBX, R12, R13, R14, R15, RDI, RSI:
		return true
	default:
		return false
	}
}

// AllocGPR assigns r a free GPR, evicting the oldest live owner if none
// is free, and returns the physical register index.
func (a *Allocator) AllocGPR(r tb.Reg) int {
	for _, reg := range gprPriority {
		if a.gprOwner[reg] == noOwner {
			a.gprOwner[reg] = r
			a.gprAvailable--
			if isCalleeSaved(reg) {
				a.calleeSaved |= 1 << uint(reg)
			}
			d := a.Desc(r)
			d.Kind, d.Reg = DescGPR, reg
			return reg
		}
	}
	return a.evictGPR(r)
}

// evictGPR frees the GPR owned by the lowest-ordinal live value still
// referenced, spilling it if it has remaining uses, and hands the
// register to r (spec.md §4.3 Allocation policy).
func (a *Allocator) evictGPR(r tb.Reg) int {
	victimReg, victimOwner := -1, tb.Reg(noOwner)
	lowestOrdinal := int(^uint(0) >> 1)
	for _, reg := range gprPriority {
		owner := a.gprOwner[reg]
		if owner == noOwner || owner == tempOwner {
			continue
		}
		if ord := a.f.Node(owner).Ordinal; ord < lowestOrdinal {
			lowestOrdinal, victimReg, victimOwner = ord, reg, owner
		}
	}
	if victimReg < 0 {
		panic("x64: no GPR available to evict — every physical register is pinned")
	}
	if a.f.Node(victimOwner).Uses > 0 {
		w := WidthFromBits(a.f.Node(victimOwner).Type.Width)
		off := a.SpillToStack(victimOwner)
		a.e.MovMR(w, Mem(RBP, -1, 0, off), victimReg)
	} else {
		d := a.Desc(victimOwner)
		d.Kind = DescNone
	}
	a.gprOwner[victimReg] = r
	if isCalleeSaved(victimReg) {
		a.calleeSaved |= 1 << uint(victimReg)
	}
	d := a.Desc(r)
	d.Kind, d.Reg = DescGPR, victimReg
	return victimReg
}

// evictForced frees a specific physical GPR for a caller that needs that
// exact register (e.g. rax/rdx for division, a fixed ABI argument slot),
// spilling its current owner to a fresh stack slot if still live.
func (a *Allocator) evictForced(reg int) {
	owner := a.gprOwner[reg]
	if owner == noOwner || owner == tempOwner {
		return
	}
	if a.f.Node(owner).Uses > 0 {
		w := WidthFromBits(a.f.Node(owner).Type.Width)
		off := a.SpillToStack(owner)
		a.e.MovMR(w, Mem(RBP, -1, 0, off), reg)
	} else {
		a.Desc(owner).Kind = DescNone
	}
	a.gprOwner[reg] = noOwner
	a.gprAvailable++
}

// FreeGPR clears reg's owner slot, called once r's last use has been
// emitted (the allocator's consumer is expected to call this explicitly
// — there is no liveness analysis pass, only use-count bookkeeping).
func (a *Allocator) FreeGPR(reg int) {
	if a.gprOwner[reg] != noOwner && a.gprOwner[reg] != tempOwner {
		a.gprOwner[reg] = noOwner
		a.gprAvailable++
	}
}

func (a *Allocator) AllocXMM(r tb.Reg) int {
	for _, reg := range xmmPriority {
		if a.xmmOwner[reg] == noOwner {
			a.xmmOwner[reg] = r
			a.xmmAvailable--
			d := a.Desc(r)
			d.Kind, d.Reg = DescXMM, reg
			return reg
		}
	}
	return a.evictXMM(r)
}

func (a *Allocator) evictXMM(r tb.Reg) int {
	victimReg, victimOwner := -1, tb.Reg(noOwner)
	lowestOrdinal := int(^uint(0) >> 1)
	for _, reg := range xmmPriority {
		owner := a.xmmOwner[reg]
		if owner == noOwner {
			continue
		}
		if ord := a.f.Node(owner).Ordinal; ord < lowestOrdinal {
			lowestOrdinal, victimReg, victimOwner = ord, reg, owner
		}
	}
	if victimReg < 0 {
		panic("x64: no XMM register available to evict")
	}
	if a.f.Node(victimOwner).Uses > 0 {
		single := a.f.Node(victimOwner).Type.Width == tb.F32
		off := a.SpillToStack(victimOwner)
		a.e.MovScalar(single, victimReg, Mem(RBP, -1, 0, off), true)
	} else {
		a.Desc(victimOwner).Kind = DescNone
	}
	a.xmmOwner[victimReg] = r
	d := a.Desc(r)
	d.Kind, d.Reg = DescXMM, victimReg
	return victimReg
}

func (a *Allocator) FreeXMM(reg int) {
	if a.xmmOwner[reg] != noOwner {
		a.xmmOwner[reg] = noOwner
		a.xmmAvailable++
	}
}

// evictXMMForced is evictForced's XMM counterpart, used to clear a
// specific argument-passing XMM register before a call.
func (a *Allocator) evictXMMForced(reg int) {
	owner := a.xmmOwner[reg]
	if owner == noOwner {
		return
	}
	if a.f.Node(owner).Uses > 0 {
		single := a.f.Node(owner).Type.Width == tb.F32
		off := a.SpillToStack(owner)
		a.e.MovScalar(single, reg, Mem(RBP, -1, 0, off), true)
	} else {
		a.Desc(owner).Kind = DescNone
	}
	a.xmmOwner[reg] = noOwner
	a.xmmAvailable++
}

// SpillToStack moves r's value from its current physical register into a
// freshly allocated spill slot, recording the new DescSpill location.
// Callers are responsible for having already emitted the store.
func (a *Allocator) SpillToStack(r tb.Reg) int32 {
	d := a.Desc(r)
	size := int32(8)
	if a.f.Node(r).Type.Size() > 8 {
		size = int32(a.f.Node(r).Type.Size())
	}
	a.spillSize += size
	off := -a.spillSize
	d.Kind, d.Offset = DescSpill, off
	return off
}

// NewSpillSlot allocates a stable spill slot without an associated IR Reg
// (used for φ-resolution, where the slot is keyed by the phi itself but
// may be written from multiple predecessor edges).
func (a *Allocator) NewSpillSlot(size int32) int32 {
	if size < 8 {
		size = 8
	}
	a.spillSize += size
	return -a.spillSize
}

// CalleeSavedMask returns the bitmask of callee-saved GPRs touched by the
// function, for the prologue/epilogue.
func (a *Allocator) CalleeSavedMask() uint32 { return a.calleeSaved }

// SpillSize returns total bytes committed to spill slots so far.
func (a *Allocator) SpillSize() int32 { return a.spillSize }
