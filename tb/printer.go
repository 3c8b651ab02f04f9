package tb

import (
	"fmt"
	"strings"
)

// String renders a textual dump of the function, used by the optimiser to
// show progress and by Function.abort's builder-contract-violation dumps
// (spec.md §2 "textual dump used by the optimiser to show progress").
func (f *Function) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "function %s(", f.Name)
	for i, p := range f.Proto.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "r%d: %s", EntryReg+1+Reg(i), p)
	}
	fmt.Fprintf(&b, ") -> %s {\n", f.Proto.Return)
	for r := EntryReg; int(r) < len(f.Nodes); r++ {
		n := &f.Nodes[r]
		if n.Kind == KindNop {
			continue
		}
		if n.Kind == KindLabel {
			fmt.Fprintf(&b, "L%d:\n", r)
			continue
		}
		fmt.Fprintf(&b, "  r%d = %s\n", r, f.describeNode(r))
	}
	b.WriteString("}\n")
	return b.String()
}

func (f *Function) describeNode(r Reg) string {
	n := &f.Nodes[r]
	switch n.Kind {
	case KindParam:
		return fmt.Sprintf("param%d %s", n.Imm, n.Type)
	case KindParamAddr:
		return fmt.Sprintf("param_addr r%d", n.A)
	case KindLocal:
		return fmt.Sprintf("local size=%d align=%d", n.Imm, n.Imm2)
	case KindIntConst:
		return fmt.Sprintf("int_const %s %d", n.Type, n.Imm)
	case KindFloatConst:
		return fmt.Sprintf("float_const %s %g", n.Type, n.FImm)
	case KindStringConst:
		return fmt.Sprintf("string_const %q", n.Str)
	case KindFuncAddr:
		return fmt.Sprintf("func_addr #%d", n.Imm)
	case KindExternAddr:
		return fmt.Sprintf("extern_addr %s", n.Str)
	case KindGlobalAddr:
		return fmt.Sprintf("global_addr %s", n.Str)
	case KindLoad:
		return fmt.Sprintf("load %s [r%d] align=%d", n.Type, n.A, n.Imm2)
	case KindStore:
		return fmt.Sprintf("store %s [r%d] = r%d align=%d", n.Type, n.A, n.B, n.Imm2)
	case KindGoto:
		return fmt.Sprintf("goto L%d", n.Label)
	case KindIf:
		return fmt.Sprintf("if r%d then L%d else L%d", n.A, n.B, n.C)
	case KindSwitch:
		return fmt.Sprintf("switch r%d default=L%d (%d cases)", n.A, n.Label, (n.AuxEnd-n.AuxStart)/2)
	case KindRet:
		if n.A == NullReg {
			return "ret"
		}
		return fmt.Sprintf("ret r%d", n.A)
	case KindUnreachable:
		return "unreachable"
	case KindPass:
		return fmt.Sprintf("pass r%d", n.A)
	case KindPhi1:
		return fmt.Sprintf("phi1 r%d", n.A)
	case KindPhi2:
		return fmt.Sprintf("phi2 r%d, r%d", n.A, n.B)
	case KindPhiN:
		var parts []string
		aux := f.Aux[n.AuxStart:n.AuxEnd]
		for i := 0; i+1 < len(aux); i += 2 {
			parts = append(parts, fmt.Sprintf("[L%d: r%d]", aux[i].Reg, aux[i+1].Reg))
		}
		return "phiN " + strings.Join(parts, ", ")
	case KindSelect:
		return fmt.Sprintf("select r%d ? r%d : r%d", n.A, n.B, n.C)
	case KindCall, KindECall, KindVCall:
		var parts []string
		for _, e := range f.Aux[n.AuxStart:n.AuxEnd] {
			parts = append(parts, fmt.Sprintf("r%d", e.Reg))
		}
		switch n.Kind {
		case KindCall:
			return fmt.Sprintf("call #%d(%s)", n.Imm, strings.Join(parts, ", "))
		case KindECall:
			return fmt.Sprintf("ecall %s(%s)", n.Str, strings.Join(parts, ", "))
		default:
			return fmt.Sprintf("vcall r%d(%s)", n.A, strings.Join(parts, ", "))
		}
	case KindNot:
		return fmt.Sprintf("not r%d", n.A)
	case KindNeg:
		return fmt.Sprintf("neg r%d", n.A)
	default:
		if n.Kind.IsArith() {
			return fmt.Sprintf("%s r%d, r%d", kindName(n.Kind), n.A, n.B)
		}
		if n.B != NullReg || n.A != NullReg {
			return fmt.Sprintf("%s r%d, r%d", kindName(n.Kind), n.A, n.B)
		}
		return fmt.Sprintf("%s r%d", kindName(n.Kind), n.A)
	}
}

func kindName(k Kind) string {
	names := map[Kind]string{
		KindAdd: "add", KindSub: "sub", KindMul: "mul", KindUDiv: "udiv", KindSDiv: "sdiv",
		KindUMod: "umod", KindSMod: "smod", KindAnd: "and", KindOr: "or", KindXor: "xor",
		KindShl: "shl", KindShr: "shr", KindSar: "sar",
		KindFAdd: "fadd", KindFSub: "fsub", KindFMul: "fmul", KindFDiv: "fdiv",
		KindCmpEq: "cmp_eq", KindCmpNe: "cmp_ne", KindCmpSlt: "cmp_slt", KindCmpSle: "cmp_sle",
		KindCmpUlt: "cmp_ult", KindCmpUle: "cmp_ule", KindCmpFlt: "cmp_flt", KindCmpFle: "cmp_fle",
		KindTrunc: "trunc", KindSignExt: "sign_ext", KindZeroExt: "zero_ext", KindFloatExt: "float_ext",
		KindInt2Float: "int2float", KindFloat2Int: "float2int", KindInt2Ptr: "int2ptr",
		KindPtr2Int: "ptr2int", KindBitcast: "bitcast",
		KindAtomicLoad: "atomic_load", KindAtomicXchg: "atomic_xchg", KindAtomicAdd: "atomic_add",
		KindAtomicSub: "atomic_sub", KindAtomicAnd: "atomic_and", KindAtomicOr: "atomic_or",
		KindAtomicXor: "atomic_xor", KindAtomicCmpXchg: "atomic_cmpxchg",
		KindAtomicTestAndSet: "atomic_test_and_set", KindAtomicClear: "atomic_clear",
		KindMemset: "memset", KindMemcpy: "memcpy", KindMemclr: "memclr",
		KindArrayAccess: "array_access", KindMemberAccess: "member_access", KindRestrict: "restrict",
		KindX86Sqrt: "x86_sqrt", KindX86Rsqrt: "x86_rsqrt",
		KindLineInfo: "line_info", KindDebugBreak: "debugbreak",
	}
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", k)
}
