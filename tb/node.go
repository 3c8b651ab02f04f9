package tb

// Kind is the closed set of IR node kinds (spec.md §3 "Node kinds").
type Kind uint16

const (
	KindNop Kind = iota // compacted-away dead node (see opt.Compact)

	// Terminators
	KindLabel
	KindGoto
	KindIf
	KindSwitch
	KindRet
	KindUnreachable

	// Constants
	KindIntConst
	KindFloatConst
	KindStringConst
	KindFuncAddr
	KindExternAddr
	KindGlobalAddr

	// Memory
	KindLocal
	KindParam
	KindParamAddr
	KindLoad
	KindStore
	KindInitialize
	KindMemset
	KindMemcpy
	KindMemclr
	KindArrayAccess
	KindMemberAccess
	KindRestrict

	// Integer arithmetic
	KindAdd
	KindSub
	KindMul
	KindUDiv
	KindSDiv
	KindUMod
	KindSMod
	KindAnd
	KindOr
	KindXor
	KindShl
	KindShr
	KindSar
	KindNot
	KindNeg

	// Float arithmetic
	KindFAdd
	KindFSub
	KindFMul
	KindFDiv
	KindX86Sqrt
	KindX86Rsqrt

	// Conversions
	KindTrunc
	KindSignExt
	KindZeroExt
	KindFloatExt
	KindInt2Float
	KindFloat2Int
	KindInt2Ptr
	KindPtr2Int
	KindBitcast

	// Control/data fusion
	KindPhi1
	KindPhi2
	KindPhiN
	KindPass
	KindSelect

	// Calls
	KindCall
	KindECall
	KindVCall

	// Atomics
	KindAtomicLoad
	KindAtomicXchg
	KindAtomicAdd
	KindAtomicSub
	KindAtomicAnd
	KindAtomicOr
	KindAtomicXor
	KindAtomicCmpXchg
	KindAtomicCmpXchg2
	KindAtomicTestAndSet
	KindAtomicClear

	// Comparisons (produce bool)
	KindCmpEq
	KindCmpNe
	KindCmpSlt
	KindCmpSle
	KindCmpUlt
	KindCmpUle
	KindCmpFlt
	KindCmpFle

	// Debug
	KindLineInfo
	KindDebugBreak
)

// IsTerminator reports whether k ends a basic block.
func (k Kind) IsTerminator() bool {
	switch k {
	case KindGoto, KindIf, KindSwitch, KindRet, KindUnreachable:
		return true
	default:
		return false
	}
}

// IsArith reports whether k is one of the integer arithmetic ops that
// carry an ArithBehavior tag and participate in canonicalisation.
func (k Kind) IsArith() bool {
	switch k {
	case KindAdd, KindSub, KindMul, KindUDiv, KindSDiv, KindUMod, KindSMod,
		KindAnd, KindOr, KindXor, KindShl, KindShr, KindSar:
		return true
	default:
		return false
	}
}

// IsCommutative reports whether operand order doesn't affect the result,
// used by the builder/canonicaliser to move constants to the right.
func (k Kind) IsCommutative() bool {
	switch k {
	case KindAdd, KindMul, KindAnd, KindOr, KindXor,
		KindCmpEq, KindCmpNe, KindFAdd, KindFMul:
		return true
	default:
		return false
	}
}

// IsSideEffecting reports whether k must be preserved by DCE even with
// zero uses (spec.md §4.2 DCE: "loads and calls are side-effectful;
// stores always are").
func (k Kind) IsSideEffecting() bool {
	switch k {
	case KindStore, KindInitialize, KindMemset, KindMemcpy, KindMemclr,
		KindCall, KindECall, KindVCall, KindLoad,
		KindAtomicLoad, KindAtomicXchg, KindAtomicAdd, KindAtomicSub,
		KindAtomicAnd, KindAtomicOr, KindAtomicXor,
		KindAtomicCmpXchg, KindAtomicCmpXchg2,
		KindAtomicTestAndSet, KindAtomicClear,
		KindDebugBreak, KindLineInfo, KindRestrict:
		return true
	default:
		return k.IsTerminator()
	}
}

// ArithBehavior is the overflow-handling tag carried by integer arithmetic
// nodes (spec.md §3).
type ArithBehavior uint8

const (
	BehaviorWrap ArithBehavior = iota
	BehaviorNoWrapAssumed
	BehaviorSaturatedUnsigned
	BehaviorSaturatedSigned
)

// MemOrder is the memory-order tag carried by atomic nodes.
type MemOrder uint8

const (
	OrderRelaxed MemOrder = iota
	OrderAcquire
	OrderRelease
	OrderAcqRel
	OrderSeqCst
)

// Reg is a 32-bit index into a Function's node stream; both node id and
// SSA value name. Reg 0 is the null sentinel; Reg 1 is the implicit entry
// label (spec.md §3).
type Reg int32

const (
	NullReg  Reg = 0
	EntryReg Reg = 1
)

// TempReg is a sentinel owner value used transiently by the register
// allocator (spec.md §4.3 gpr_owner/xmm_owner tables); it is never a
// real node Reg because Reg 0 is reserved for NullReg and real function
// nodes start at EntryReg onward — -1 cannot collide with any Reg.
const TempReg Reg = -1

// Node is a single IR node: (kind, data type, payload). Payload fields
// are reused across kinds by convention, mirroring the teacher's flat
// Inst{Op,Arg,Width,Val,Name} struct (see DESIGN.md) rather than a C-style
// union or a Go interface hierarchy.
type Node struct {
	Kind Kind
	Type DataType

	// Generic operand registers. Meaning depends on Kind:
	//   arithmetic/cmp: A op B        select: A ? B : C
	//   load:           A=address     store: A=address, B=value
	//   if:             A=cond, B=true-label, C=false-label
	//   phi1/phi2:      A,B = source values (phiN uses Aux slice)
	//   vcall:          A=target address (call uses Imm, ecall uses Str)
	A, B, C Reg

	// Block label reference: goto target, switch default target (phi
	// source labels live in the Aux slice).
	Label Reg

	// Integer / pointer immediate payload: int_const value (canonically
	// masked per invariant 4), local size, call target function id, etc.
	Imm int64

	// Secondary immediate (e.g. store/load alignment, local alignment).
	Imm2 int64

	// Float immediate payload for float_const.
	FImm float64

	// String / symbol payload: string_const bytes, extern/global/func name.
	Str string

	// Aux indexes into Function.Aux, the append-only call/switch operand
	// VLA (spec.md invariant 6): [AuxStart, AuxEnd).
	AuxStart, AuxEnd int

	Behavior ArithBehavior
	Order    MemOrder
	Signed   bool // true for sdiv/smod/sign-extending ops vs unsigned counterparts

	// Terminator bookkeeping for KindLabel nodes: which node (goto/if/
	// switch/ret/unreachable) closes this block, and whether it's closed.
	Terminator Reg

	// Use-count, recomputed by analyses that need it (mem2reg, DCE, the
	// code generator's allocation policy). Not an invariant field; callers
	// must call Function.RecomputeUses before relying on it.
	Uses int

	// Ordinal is this node's position in the stream at the moment the
	// code generator begins (spec.md §4.3 "ordinal ... pre-computed
	// position in the node stream"), used by the eviction policy.
	Ordinal int
}

// AuxEntry is one element of a Function's call/switch operand VLA.
// For call/ecall/vcall: an argument Reg. For switch: a (key, target label)
// pair packed as two consecutive entries with IsKey alternating.
type AuxEntry struct {
	Reg   Reg
	Key   int64
	IsKey bool
}
