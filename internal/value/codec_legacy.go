package value

import "math"

// Legacy (NT3) wire type tags, preserved byte-for-byte from the original
// WireEncoder/WireDecoder so that a modern core can interoperate with a
// peer that only negotiates the legacy protocol version (§4.7). NT3 never
// had a distinct integer or float(f32) type: both collapse onto
// legacyTagDouble on the wire, which is why EncodeLegacy rejects Integer
// and Float directly and callers convert first.
const (
	legacyTagBoolean      byte = 0x00
	legacyTagDouble       byte = 0x01
	legacyTagString       byte = 0x02
	legacyTagRaw          byte = 0x03
	legacyTagBooleanArray byte = 0x10
	legacyTagDoubleArray  byte = 0x11
	legacyTagStringArray  byte = 0x12
	legacyTagRPC          byte = 0x20
)

func legacyTagFor(t Type) (byte, bool) {
	switch t {
	case Boolean:
		return legacyTagBoolean, true
	case Double:
		return legacyTagDouble, true
	case String:
		return legacyTagString, true
	case Raw:
		return legacyTagRaw, true
	case RPC:
		return legacyTagRPC, true
	case BooleanArray:
		return legacyTagBooleanArray, true
	case DoubleArray:
		return legacyTagDoubleArray, true
	case StringArray:
		return legacyTagStringArray, true
	default:
		return 0, false
	}
}

func legacyTypeFor(tag byte) (Type, bool) {
	switch tag {
	case legacyTagBoolean:
		return Boolean, true
	case legacyTagDouble:
		return Double, true
	case legacyTagString:
		return String, true
	case legacyTagRaw:
		return Raw, true
	case legacyTagRPC:
		return RPC, true
	case legacyTagBooleanArray:
		return BooleanArray, true
	case legacyTagDoubleArray:
		return DoubleArray, true
	case legacyTagStringArray:
		return StringArray, true
	default:
		return 0, false
	}
}

// NarrowForLegacy converts Integer/Float values to Double (and their array
// forms) since NT3 has no tag for them. Other types pass through unchanged.
func NarrowForLegacy(v Value) Value {
	switch v.Type {
	case Integer:
		nv, _ := v.ConvertTo(Double)
		return nv
	case Float:
		nv, _ := v.ConvertTo(Double)
		return nv
	case IntegerArray, FloatArray:
		nv, _ := v.ConvertTo(DoubleArray)
		return nv
	default:
		return v
	}
}

// EncodeLegacyType writes a single legacy type byte.
func EncodeLegacyType(t Type) ([]byte, error) {
	tag, ok := legacyTagFor(t)
	if !ok {
		return nil, ErrUnknownType
	}
	return []byte{tag}, nil
}

// EncodeLegacyValue encodes v's payload (without id/seq_num framing, which
// is the caller's concern, grounded on the entry wire format of §4.7) using
// NT3's layout: 16-bit big-endian string lengths, 1-byte array counts
// (truncated at 255 elements, matching the original encoder).
func EncodeLegacyValue(v Value) ([]byte, error) {
	switch v.Type {
	case Boolean:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case Double:
		return putUint64BE(nil, math.Float64bits(v.F64)), nil
	case String:
		return appendLegacyString(nil, v.Str), nil
	case Raw, RPC:
		return appendLegacyString(nil, string(v.Raw)), nil
	case BooleanArray:
		n := len(v.BoolArray)
		if n > 0xff {
			n = 0xff
		}
		buf := []byte{byte(n)}
		for i := 0; i < n; i++ {
			if v.BoolArray[i] {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
		return buf, nil
	case DoubleArray:
		n := len(v.F64Array)
		if n > 0xff {
			n = 0xff
		}
		buf := []byte{byte(n)}
		for i := 0; i < n; i++ {
			buf = putUint64BE(buf, math.Float64bits(v.F64Array[i]))
		}
		return buf, nil
	case StringArray:
		n := len(v.StrArray)
		if n > 0xff {
			n = 0xff
		}
		buf := []byte{byte(n)}
		for i := 0; i < n; i++ {
			buf = appendLegacyString(buf, v.StrArray[i])
		}
		return buf, nil
	default:
		return nil, ErrUnknownType
	}
}

func appendLegacyString(buf []byte, s string) []byte {
	n := len(s)
	if n > 0xffff {
		n = 0xffff
	}
	buf = append(buf, byte(n>>8), byte(n))
	return append(buf, s[:n]...)
}

// DecodeLegacyValue decodes a value of the given type starting at buf[off:]
// and returns the value plus the offset just past it.
func DecodeLegacyValue(buf []byte, off int, typ Type) (Value, int, error) {
	v := Value{Type: typ}
	switch typ {
	case Boolean:
		if off >= len(buf) {
			return Value{}, 0, ErrUnexpectedEOF
		}
		v.Bool = buf[off] != 0
		return v, off + 1, nil
	case Double:
		n, ok := getUint64BE(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		v.F64 = math.Float64frombits(n)
		return v, off + 8, nil
	case String:
		s, next, err := decodeLegacyString(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		v.Str = s
		return v, next, nil
	case Raw, RPC:
		s, next, err := decodeLegacyString(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		v.Raw = []byte(s)
		return v, next, nil
	case BooleanArray:
		if off >= len(buf) {
			return Value{}, 0, ErrUnexpectedEOF
		}
		n := int(buf[off])
		off++
		arr := make([]bool, n)
		for i := range arr {
			if off >= len(buf) {
				return Value{}, 0, ErrUnexpectedEOF
			}
			arr[i] = buf[off] != 0
			off++
		}
		v.BoolArray = arr
		return v, off, nil
	case DoubleArray:
		if off >= len(buf) {
			return Value{}, 0, ErrUnexpectedEOF
		}
		n := int(buf[off])
		off++
		arr := make([]float64, n)
		for i := range arr {
			val, ok := getUint64BE(buf, off)
			if !ok {
				return Value{}, 0, ErrUnexpectedEOF
			}
			arr[i] = math.Float64frombits(val)
			off += 8
		}
		v.F64Array = arr
		return v, off, nil
	case StringArray:
		if off >= len(buf) {
			return Value{}, 0, ErrUnexpectedEOF
		}
		n := int(buf[off])
		off++
		arr := make([]string, n)
		for i := range arr {
			s, next, err := decodeLegacyString(buf, off)
			if err != nil {
				return Value{}, 0, err
			}
			arr[i] = s
			off = next
		}
		v.StrArray = arr
		return v, off, nil
	default:
		return Value{}, 0, ErrUnknownType
	}
}

// DecodeLegacyType reads a single legacy type byte at buf[off].
func DecodeLegacyType(buf []byte, off int) (Type, int, error) {
	if off >= len(buf) {
		return 0, 0, ErrUnexpectedEOF
	}
	t, ok := legacyTypeFor(buf[off])
	if !ok {
		return 0, 0, ErrUnknownType
	}
	return t, off + 1, nil
}

func decodeLegacyString(buf []byte, off int) (string, int, error) {
	if off+2 > len(buf) {
		return "", 0, ErrUnexpectedEOF
	}
	n := int(buf[off])<<8 | int(buf[off+1])
	off += 2
	if off+n > len(buf) {
		return "", 0, ErrUnexpectedEOF
	}
	return string(buf[off : off+n]), off + n, nil
}
