package tb

import "fmt"

// TypeFamily is the coarse classification of a DataType.
type TypeFamily uint8

const (
	Void TypeFamily = iota
	Bool
	Int
	Ptr
	Float
)

func (f TypeFamily) String() string {
	switch f {
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Ptr:
		return "ptr"
	case Float:
		return "float"
	default:
		return "?"
	}
}

// FloatWidth enumerates the two supported float widths.
const (
	F32 = 32
	F64 = 64
)

// DataType is (family, width, lane_count). Width is bit-width for Int
// (1, 8, 16, 32, 64), F32/F64 for Float, 1 for Bool and 64 for Ptr; it
// is unused (0) for Void. LaneCount is 1 for scalars, >1 for SIMD vectors.
type DataType struct {
	Family    TypeFamily
	Width     uint8
	LaneCount uint8
}

func TypeVoid() DataType { return DataType{Family: Void, LaneCount: 1} }
func TypeBool() DataType { return DataType{Family: Bool, Width: 1, LaneCount: 1} }
func TypePtr() DataType  { return DataType{Family: Ptr, Width: 64, LaneCount: 1} }

func TypeInt(width uint8) DataType {
	switch width {
	case 1, 8, 16, 32, 64:
	default:
		panic(fmt.Sprintf("tb: invalid integer width %d", width))
	}
	return DataType{Family: Int, Width: width, LaneCount: 1}
}

func TypeFloat(width uint8) DataType {
	if width != F32 && width != F64 {
		panic(fmt.Sprintf("tb: invalid float width %d", width))
	}
	return DataType{Family: Float, Width: width, LaneCount: 1}
}

// Vector returns dt widened to lanes lanes.
func (dt DataType) Vector(lanes uint8) DataType {
	dt.LaneCount = lanes
	return dt
}

// Size returns the size in bytes of a single lane's worth of this type,
// rounded up to the nearest byte (TB_BOOL/i1 report 1 byte of storage).
func (dt DataType) Size() int {
	switch dt.Family {
	case Void:
		return 0
	case Bool:
		return 1
	case Ptr:
		return 8
	case Int, Float:
		return (int(dt.Width) + 7) / 8
	default:
		return 0
	}
}

// Mask returns the canonical mask for an integer DataType: the low Width
// bits set, per spec.md invariant 4 ("only the low width bits are
// significant; the rest are zero").
func (dt DataType) Mask() uint64 {
	if dt.Family != Int && dt.Family != Bool {
		return ^uint64(0)
	}
	w := dt.Width
	if dt.Family == Bool {
		w = 1
	}
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << w) - 1
}

// IsInteger reports whether dt is an integer or bool family type.
func (dt DataType) IsInteger() bool { return dt.Family == Int || dt.Family == Bool }

// IsFloat reports whether dt is a float family type.
func (dt DataType) IsFloat() bool { return dt.Family == Float }

func (dt DataType) String() string {
	base := fmt.Sprintf("%s%d", dt.Family, dt.Width)
	if dt.Family == Void {
		base = "void"
	}
	if dt.LaneCount > 1 {
		return fmt.Sprintf("%sx%d", base, dt.LaneCount)
	}
	return base
}

// Equal reports whether two data types are identical.
func (dt DataType) Equal(other DataType) bool {
	return dt.Family == other.Family && dt.Width == other.Width && dt.LaneCount == other.LaneCount
}

// Prototype is a function's return type, parameter types, and varargs flag.
type Prototype struct {
	Return   DataType
	Params   []DataType
	VarArgs  bool
}
