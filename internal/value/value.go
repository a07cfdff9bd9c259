// Package value implements the NetworkTables value model: the closed type
// set, numeric conversion policy, and the binary/text wire codecs.
package value

import "fmt"

// Type is the closed tag of value types a topic can carry.
type Type uint8

const (
	Unassigned Type = iota
	Boolean
	Integer // i64
	Float   // f32
	Double  // f64
	String
	Raw
	RPC // byte string, legacy call payload; carried for wire parity only
	BooleanArray
	IntegerArray
	FloatArray
	DoubleArray
	StringArray
)

// TypeString returns the canonical type-string used on the wire and in
// topic metadata (e.g. "boolean", "int", "double[]").
func (t Type) TypeString() string {
	switch t {
	case Unassigned:
		return ""
	case Boolean:
		return "boolean"
	case Integer:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	case String:
		return "string"
	case Raw:
		return "raw"
	case RPC:
		return "rpc"
	case BooleanArray:
		return "boolean[]"
	case IntegerArray:
		return "int[]"
	case FloatArray:
		return "float[]"
	case DoubleArray:
		return "double[]"
	case StringArray:
		return "string[]"
	default:
		return "unknown"
	}
}

func (t Type) String() string { return t.TypeString() }

// TypeFromString maps a canonical type-string back to a Type. ok is false
// for an unrecognized string.
func TypeFromString(s string) (Type, bool) {
	switch s {
	case "":
		return Unassigned, true
	case "boolean":
		return Boolean, true
	case "int":
		return Integer, true
	case "float":
		return Float, true
	case "double":
		return Double, true
	case "string":
		return String, true
	case "raw":
		return Raw, true
	case "rpc":
		return RPC, true
	case "boolean[]":
		return BooleanArray, true
	case "int[]":
		return IntegerArray, true
	case "float[]":
		return FloatArray, true
	case "double[]":
		return DoubleArray, true
	case "string[]":
		return StringArray, true
	default:
		return 0, false
	}
}

// IsNumeric reports whether t is in the numeric-compatible set
// {Integer, Float, Double}. boolean is never numeric-compatible.
func (t Type) IsNumeric() bool {
	return t == Integer || t == Float || t == Double
}

func (t Type) isArray() bool {
	return t == BooleanArray || t == IntegerArray || t == FloatArray || t == StringArray || t == DoubleArray
}

// Value is (type, payload, client_time, server_time). The payload is stored
// as a tagged union of owned fields rather than interface{} so a Value never
// aliases caller-owned memory beyond what Go's slice semantics already
// share, following Design Notes §9's guidance to replace the C-layout
// NT_Value union with an owned tagged struct.
type Value struct {
	Type       Type
	Bool       bool
	Int        int64
	F32        float32
	F64        float64
	Str        string
	Raw        []byte
	BoolArray  []bool
	IntArray   []int64
	F32Array   []float32
	F64Array   []float64
	StrArray   []string
	ClientTime int64
	ServerTime int64
}

// Empty reports whether the value is empty (type is Unassigned).
func (v Value) Empty() bool { return v.Type == Unassigned }

// MakeBoolean, MakeInteger, ... construct single-field values at the given
// client time; ServerTime is left zero for the caller (typically the local
// storage layer or network layer) to stamp.
func MakeBoolean(b bool, t int64) Value   { return Value{Type: Boolean, Bool: b, ClientTime: t} }
func MakeInteger(i int64, t int64) Value  { return Value{Type: Integer, Int: i, ClientTime: t} }
func MakeFloat(f float32, t int64) Value  { return Value{Type: Float, F32: f, ClientTime: t} }
func MakeDouble(f float64, t int64) Value { return Value{Type: Double, F64: f, ClientTime: t} }
func MakeString(s string, t int64) Value  { return Value{Type: String, Str: s, ClientTime: t} }
func MakeRaw(b []byte, t int64) Value     { return Value{Type: Raw, Raw: b, ClientTime: t} }
func MakeBooleanArray(v []bool, t int64) Value {
	return Value{Type: BooleanArray, BoolArray: v, ClientTime: t}
}
func MakeIntegerArray(v []int64, t int64) Value {
	return Value{Type: IntegerArray, IntArray: v, ClientTime: t}
}
func MakeFloatArray(v []float32, t int64) Value {
	return Value{Type: FloatArray, F32Array: v, ClientTime: t}
}
func MakeDoubleArray(v []float64, t int64) Value {
	return Value{Type: DoubleArray, F64Array: v, ClientTime: t}
}
func MakeStringArray(v []string, t int64) Value {
	return Value{Type: StringArray, StrArray: v, ClientTime: t}
}

// Equal compares payload equality under the current type, ignoring times, as
// required for duplicate suppression (§4.3).
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case Unassigned:
		return true
	case Boolean:
		return v.Bool == o.Bool
	case Integer:
		return v.Int == o.Int
	case Float:
		return v.F32 == o.F32
	case Double:
		return v.F64 == o.F64
	case String:
		return v.Str == o.Str
	case Raw, RPC:
		return bytesEqual(v.Raw, o.Raw)
	case BooleanArray:
		return boolSliceEqual(v.BoolArray, o.BoolArray)
	case IntegerArray:
		return int64SliceEqual(v.IntArray, o.IntArray)
	case FloatArray:
		return f32SliceEqual(v.F32Array, o.F32Array)
	case DoubleArray:
		return f64SliceEqual(v.F64Array, o.F64Array)
	case StringArray:
		return strSliceEqual(v.StrArray, o.StrArray)
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func boolSliceEqual(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func f32SliceEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func f64SliceEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func strSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ErrIncompatible is returned by ConvertTo when the source and target types
// are not numerically compatible (or not equal, for non-numeric types).
var ErrIncompatible = fmt.Errorf("value: incompatible type conversion")

// ConvertTo converts v to the requested type following the numeric
// conversion policy in §4.1: integer/float/double are numerically
// compatible with lossy conversion; arrays convert element-wise only
// between equal-rank numeric array types; everything else requires an
// exact type match.
func (v Value) ConvertTo(want Type) (Value, error) {
	if v.Type == want {
		return v, nil
	}
	if v.Type.IsNumeric() && want.IsNumeric() {
		return v.convertNumeric(want), nil
	}
	if isNumericArray(v.Type) && isNumericArray(want) {
		return v.convertNumericArray(want), nil
	}
	return Value{}, ErrIncompatible
}

func isNumericArray(t Type) bool {
	return t == IntegerArray || t == FloatArray || t == DoubleArray
}

func (v Value) convertNumeric(want Type) Value {
	out := Value{Type: want, ClientTime: v.ClientTime, ServerTime: v.ServerTime}
	var f64 float64
	switch v.Type {
	case Integer:
		f64 = float64(v.Int)
	case Float:
		f64 = float64(v.F32)
	case Double:
		f64 = v.F64
	}
	switch want {
	case Integer:
		out.Int = int64(f64)
	case Float:
		out.F32 = float32(f64)
	case Double:
		out.F64 = f64
	}
	return out
}

func (v Value) convertNumericArray(want Type) Value {
	out := Value{Type: want, ClientTime: v.ClientTime, ServerTime: v.ServerTime}
	n := v.arrayLen()
	get := func(i int) float64 {
		switch v.Type {
		case IntegerArray:
			return float64(v.IntArray[i])
		case FloatArray:
			return float64(v.F32Array[i])
		case DoubleArray:
			return v.F64Array[i]
		}
		return 0
	}
	switch want {
	case IntegerArray:
		out.IntArray = make([]int64, n)
		for i := 0; i < n; i++ {
			out.IntArray[i] = int64(get(i))
		}
	case FloatArray:
		out.F32Array = make([]float32, n)
		for i := 0; i < n; i++ {
			out.F32Array[i] = float32(get(i))
		}
	case DoubleArray:
		out.F64Array = make([]float64, n)
		for i := 0; i < n; i++ {
			out.F64Array[i] = get(i)
		}
	}
	return out
}

func (v Value) arrayLen() int {
	switch v.Type {
	case BooleanArray:
		return len(v.BoolArray)
	case IntegerArray:
		return len(v.IntArray)
	case FloatArray:
		return len(v.F32Array)
	case DoubleArray:
		return len(v.F64Array)
	case StringArray:
		return len(v.StrArray)
	default:
		return 0
	}
}
