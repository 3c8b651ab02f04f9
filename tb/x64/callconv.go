package x64

import "github.com/c3lang/tilde-backend/tb"

// ABI selects the calling convention a function is lowered against
// (spec.md §4.3 Calling convention, driven by tb.System).
type ABI uint8

const (
	ABISystemV ABI = iota
	ABIWin64
)

func ABIFor(system tb.System) ABI {
	if system == tb.SystemWindows {
		return ABIWin64
	}
	return ABISystemV
}

// gprArgsSystemV / gprArgsWin64 are the integer/pointer argument
// registers in order, per spec.md §4.3.
var gprArgsSystemV = []int{RDI, RSI, RDX, RCX, R8, R9}
var gprArgsWin64 = []int{RCX, RDX, R8, R9}

// xmmArgCount is how many of the first N arguments (whichever family
// they are, Win64 shares the slot index across int/float; System V uses
// independent int/float counters) may be passed in XMM registers.
const xmmArgCountSystemV = 8
const xmmArgCountWin64 = 4

// ShadowSpaceWin64 is the number of stack bytes Win64 callers reserve for the
// callee to spill its register arguments into, whether or not the callee
// actually does.
const ShadowSpaceWin64 = 32 // 4 slots * 8 bytes

func (abi ABI) GPRArgs() []int {
	if abi == ABIWin64 {
		return gprArgsWin64
	}
	return gprArgsSystemV
}

func (abi ABI) XMMArgCount() int {
	if abi == ABIWin64 {
		return xmmArgCountWin64
	}
	return xmmArgCountSystemV
}

// ArgSlot describes where one call argument (or one parameter) is
// materialised: a physical register, or a byte offset from rsp for the
// overflow/varargs case.
type ArgSlot struct {
	IsFloat  bool
	Reg      int  // valid if !Stack
	Stack    bool
	StackOff int32
}

// ClassifyArgs assigns ABI slots to a parameter/argument list, one entry
// per DataType, following spec.md §4.3: Win64 shares one counter across
// int/float argument positions; System V uses independent int and float
// counters ("the next available register of the right class").
func ClassifyArgs(abi ABI, types []tb.DataType) []ArgSlot {
	out := make([]ArgSlot, len(types))
	gprs := abi.GPRArgs()
	maxXMM := abi.XMMArgCount()

	if abi == ABIWin64 {
		for i, dt := range types {
			isFloat := dt.IsFloat()
			if i < len(gprs) && (!isFloat || i < maxXMM) {
				if isFloat {
					out[i] = ArgSlot{IsFloat: true, Reg: i}
				} else {
					out[i] = ArgSlot{Reg: gprs[i]}
				}
				continue
			}
			out[i] = ArgSlot{IsFloat: isFloat, Stack: true, StackOff: int32(ShadowSpaceWin64 + 8*(i-len(gprs)))}
		}
		return out
	}

	gprIdx, xmmIdx, stackOff := 0, 0, int32(0)
	for i, dt := range types {
		if dt.IsFloat() {
			if xmmIdx < maxXMM {
				out[i] = ArgSlot{IsFloat: true, Reg: xmmIdx}
				xmmIdx++
				continue
			}
		} else if gprIdx < len(gprs) {
			out[i] = ArgSlot{Reg: gprs[gprIdx]}
			gprIdx++
			continue
		}
		out[i] = ArgSlot{IsFloat: dt.IsFloat(), Stack: true, StackOff: stackOff}
		stackOff += 8
	}
	return out
}

// ReturnReg is the register the ABI returns a value in: rax for
// integers/pointers, xmm0 for floats.
func ReturnReg(dt tb.DataType) (reg int, isFloat bool) {
	if dt.IsFloat() {
		return 0, true
	}
	return RAX, false
}

// CallerSavedGPRs lists GPRs a call clobbers under abi — everything not
// in isCalleeSaved's list, since this generator treats rdi/rsi as
// callee-saved unconditionally (see regalloc.go) to keep one clobber set
// valid for both ABIs.
var CallerSavedGPRs = []int{RAX, RCX, RDX, R8, R9, R10, R11}
