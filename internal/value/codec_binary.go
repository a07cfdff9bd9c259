package value

import "math"

// Modern binary type tags (wire version 4.x). Stable across a connection's
// lifetime but never persisted, so they're free to differ from the legacy
// (NT3) byte values in codec_legacy.go.
const (
	tagUnassigned byte = iota
	tagBoolean
	tagInteger
	tagFloat
	tagDouble
	tagString
	tagRaw
	tagRPC
	tagBooleanArray
	tagIntegerArray
	tagFloatArray
	tagDoubleArray
	tagStringArray
)

func typeToTag(t Type) (byte, bool) {
	switch t {
	case Unassigned:
		return tagUnassigned, true
	case Boolean:
		return tagBoolean, true
	case Integer:
		return tagInteger, true
	case Float:
		return tagFloat, true
	case Double:
		return tagDouble, true
	case String:
		return tagString, true
	case Raw:
		return tagRaw, true
	case RPC:
		return tagRPC, true
	case BooleanArray:
		return tagBooleanArray, true
	case IntegerArray:
		return tagIntegerArray, true
	case FloatArray:
		return tagFloatArray, true
	case DoubleArray:
		return tagDoubleArray, true
	case StringArray:
		return tagStringArray, true
	default:
		return 0, false
	}
}

func tagToType(tag byte) (Type, bool) {
	switch tag {
	case tagUnassigned:
		return Unassigned, true
	case tagBoolean:
		return Boolean, true
	case tagInteger:
		return Integer, true
	case tagFloat:
		return Float, true
	case tagDouble:
		return Double, true
	case tagString:
		return String, true
	case tagRaw:
		return Raw, true
	case tagRPC:
		return RPC, true
	case tagBooleanArray:
		return BooleanArray, true
	case tagIntegerArray:
		return IntegerArray, true
	case tagFloatArray:
		return FloatArray, true
	case tagDoubleArray:
		return DoubleArray, true
	case tagStringArray:
		return StringArray, true
	default:
		return 0, false
	}
}

// EncodeBinary produces exactly one self-describing (id, time, value) tuple
// for the modern binary value channel (§4.1). id is the publisher's pubuid
// on egress from a client and the topic's id on egress from the server.
func EncodeBinary(id uint32, clientTime int64, v Value) ([]byte, error) {
	tag, ok := typeToTag(v.Type)
	if !ok {
		return nil, ErrUnknownType
	}
	buf := make([]byte, 0, 32)
	buf = putUleb128(buf, uint64(id))
	buf = putInt64BE(buf, clientTime)
	buf = append(buf, tag)
	buf = appendPayload(buf, v)
	return buf, nil
}

func appendPayload(buf []byte, v Value) []byte {
	switch v.Type {
	case Unassigned:
		return buf
	case Boolean:
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	case Integer:
		return putInt64BE(buf, v.Int)
	case Float:
		return putUint32BE(buf, math.Float32bits(v.F32))
	case Double:
		return putUint64BE(buf, math.Float64bits(v.F64))
	case String:
		return appendString(buf, v.Str)
	case Raw, RPC:
		return appendBytes(buf, v.Raw)
	case BooleanArray:
		buf = putUleb128(buf, uint64(len(v.BoolArray)))
		for _, b := range v.BoolArray {
			if b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
		return buf
	case IntegerArray:
		buf = putUleb128(buf, uint64(len(v.IntArray)))
		for _, e := range v.IntArray {
			buf = putInt64BE(buf, e)
		}
		return buf
	case FloatArray:
		buf = putUleb128(buf, uint64(len(v.F32Array)))
		for _, e := range v.F32Array {
			buf = putUint32BE(buf, math.Float32bits(e))
		}
		return buf
	case DoubleArray:
		buf = putUleb128(buf, uint64(len(v.F64Array)))
		for _, e := range v.F64Array {
			buf = putUint64BE(buf, math.Float64bits(e))
		}
		return buf
	case StringArray:
		buf = putUleb128(buf, uint64(len(v.StrArray)))
		for _, e := range v.StrArray {
			buf = appendString(buf, e)
		}
		return buf
	default:
		return buf
	}
}

func appendString(buf []byte, s string) []byte {
	buf = putUleb128(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = putUleb128(buf, uint64(len(b)))
	return append(buf, b...)
}

func putInt64BE(buf []byte, v int64) []byte { return putUint64BE(buf, uint64(v)) }

func putUint64BE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func putUint32BE(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// DecodeBinary parses exactly one (id, time, value) tuple, returning
// ErrUnexpectedEOF if buf ends mid-frame, ErrUnknownType on an unrecognized
// type tag, or ErrMalformed for any other structural inconsistency.
func DecodeBinary(buf []byte) (id uint32, clientTime int64, v Value, err error) {
	off := 0
	idv, n, ok := getUleb128(buf, off)
	if !ok {
		return 0, 0, Value{}, ErrUnexpectedEOF
	}
	off += n
	if idv > math.MaxUint32 {
		return 0, 0, Value{}, ErrMalformed
	}
	id = uint32(idv)

	t, ok := getInt64BE(buf, off)
	if !ok {
		return 0, 0, Value{}, ErrUnexpectedEOF
	}
	off += 8
	clientTime = t

	if off >= len(buf) {
		return 0, 0, Value{}, ErrUnexpectedEOF
	}
	tag := buf[off]
	off++

	typ, ok := tagToType(tag)
	if !ok {
		return 0, 0, Value{}, ErrUnknownType
	}

	v, _, err = decodePayload(buf, off, typ)
	if err != nil {
		return 0, 0, Value{}, err
	}
	v.ClientTime = clientTime
	return id, clientTime, v, nil
}

func decodePayload(buf []byte, off int, typ Type) (Value, int, error) {
	v := Value{Type: typ}
	switch typ {
	case Unassigned:
		return v, off, nil
	case Boolean:
		if off >= len(buf) {
			return Value{}, 0, ErrUnexpectedEOF
		}
		v.Bool = buf[off] != 0
		return v, off + 1, nil
	case Integer:
		n, ok := getInt64BE(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		v.Int = n
		return v, off + 8, nil
	case Float:
		n, ok := getUint32BE(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		v.F32 = math.Float32frombits(n)
		return v, off + 4, nil
	case Double:
		n, ok := getUint64BE(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		v.F64 = math.Float64frombits(n)
		return v, off + 8, nil
	case String:
		s, next, err := decodeString(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		v.Str = s
		return v, next, nil
	case Raw, RPC:
		b, next, err := decodeBytes(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		v.Raw = b
		return v, next, nil
	case BooleanArray:
		n, next, ok := getUleb128(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		off += next
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
	case IntegerArray:
		n, next, ok := getUleb128(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		off += next
		arr := make([]int64, n)
		for i := range arr {
			val, ok := getInt64BE(buf, off)
			if !ok {
				return Value{}, 0, ErrUnexpectedEOF
			}
			arr[i] = val
			off += 8
		}
		v.IntArray = arr
		return v, off, nil
	case FloatArray:
		n, next, ok := getUleb128(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		off += next
		arr := make([]float32, n)
		for i := range arr {
			val, ok := getUint32BE(buf, off)
			if !ok {
				return Value{}, 0, ErrUnexpectedEOF
			}
			arr[i] = math.Float32frombits(val)
			off += 4
		}
		v.F32Array = arr
		return v, off, nil
	case DoubleArray:
		n, next, ok := getUleb128(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		off += next
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
		n, next, ok := getUleb128(buf, off)
		if !ok {
			return Value{}, 0, ErrUnexpectedEOF
		}
		off += next
		arr := make([]string, n)
		for i := range arr {
			s, nx, err := decodeString(buf, off)
			if err != nil {
				return Value{}, 0, err
			}
			arr[i] = s
			off = nx
		}
		v.StrArray = arr
		return v, off, nil
	default:
		return Value{}, 0, ErrUnknownType
	}
}

func decodeString(buf []byte, off int) (string, int, error) {
	b, next, err := decodeBytes(buf, off)
	if err != nil {
		return "", 0, err
	}
	return string(b), next, nil
}

func decodeBytes(buf []byte, off int) ([]byte, int, error) {
	n, next, ok := getUleb128(buf, off)
	if !ok {
		return nil, 0, ErrUnexpectedEOF
	}
	off += next
	if off+int(n) > len(buf) {
		return nil, 0, ErrUnexpectedEOF
	}
	out := make([]byte, n)
	copy(out, buf[off:off+int(n)])
	return out, off + int(n), nil
}

func getInt64BE(buf []byte, off int) (int64, bool) {
	v, ok := getUint64BE(buf, off)
	return int64(v), ok
}

func getUint64BE(buf []byte, off int) (uint64, bool) {
	if off+8 > len(buf) {
		return 0, false
	}
	return uint64(buf[off])<<56 | uint64(buf[off+1])<<48 | uint64(buf[off+2])<<40 | uint64(buf[off+3])<<32 |
		uint64(buf[off+4])<<24 | uint64(buf[off+5])<<16 | uint64(buf[off+6])<<8 | uint64(buf[off+7]), true
}

func getUint32BE(buf []byte, off int) (uint32, bool) {
	if off+4 > len(buf) {
		return 0, false
	}
	return uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3]), true
}
