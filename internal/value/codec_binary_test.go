package value

import "testing"

func TestBinaryRoundTrip(t *testing.T) {
	cases := []Value{
		MakeBoolean(true, 5),
		MakeInteger(-42, 6),
		MakeFloat(3.5, 7),
		MakeDouble(2.718281828, 8),
		MakeString("hello, nt", 9),
		MakeRaw([]byte{0x00, 0xff, 0x10}, 10),
		MakeBooleanArray([]bool{true, false, true}, 11),
		MakeIntegerArray([]int64{1, 2, 3}, 12),
		MakeFloatArray([]float32{1.5, -2.5}, 13),
		MakeDoubleArray([]float64{1.1, 2.2, 3.3}, 14),
		MakeStringArray([]string{"a", "bb", "ccc"}, 15),
	}

	for _, v := range cases {
		buf, err := EncodeBinary(42, v.ClientTime, v)
		if err != nil {
			t.Fatalf("encode %v: %v", v.Type, err)
		}
		id, ct, got, err := DecodeBinary(buf)
		if err != nil {
			t.Fatalf("decode %v: %v", v.Type, err)
		}
		if id != 42 {
			t.Errorf("id = %d, want 42", id)
		}
		if ct != v.ClientTime {
			t.Errorf("time = %d, want %d", ct, v.ClientTime)
		}
		if !got.Equal(v) {
			t.Errorf("round trip mismatch for %v: got %+v want %+v", v.Type, got, v)
		}
	}
}

func TestDecodeBinaryUnexpectedEOF(t *testing.T) {
	buf, _ := EncodeBinary(1, 1, MakeString("truncate me", 1))
	for n := 0; n < len(buf)-1; n++ {
		if _, _, _, err := DecodeBinary(buf[:n]); err == nil {
			t.Fatalf("expected error decoding truncated buffer of length %d", n)
		}
	}
}

func TestDecodeBinaryUnknownType(t *testing.T) {
	buf, _ := EncodeBinary(1, 1, MakeBoolean(true, 1))
	buf[len(buf)-2] = 0xfe // corrupt the type tag
	if _, _, _, err := DecodeBinary(buf); err != ErrUnknownType {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestNumericConversion(t *testing.T) {
	d := MakeDouble(3.9, 1)
	i, err := d.ConvertTo(Integer)
	if err != nil || i.Int != 3 {
		t.Fatalf("double->int = %+v, %v", i, err)
	}

	b := MakeBoolean(true, 1)
	if _, err := b.ConvertTo(Double); err != ErrIncompatible {
		t.Fatalf("boolean->double should be incompatible, got %v", err)
	}

	arr := MakeIntegerArray([]int64{1, 2}, 1)
	darr, err := arr.ConvertTo(DoubleArray)
	if err != nil || !darr.Equal(MakeDoubleArray([]float64{1, 2}, 1)) {
		t.Fatalf("int[]->double[] = %+v, %v", darr, err)
	}

	sarr := MakeStringArray([]string{"x"}, 1)
	if _, err := sarr.ConvertTo(DoubleArray); err != ErrIncompatible {
		t.Fatalf("string[]->double[] should be incompatible, got %v", err)
	}
}

func TestLegacyRoundTrip(t *testing.T) {
	cases := []Value{
		MakeBoolean(false, 1),
		MakeDouble(1.5, 1),
		MakeString("nt3", 1),
		MakeRaw([]byte{1, 2, 3}, 1),
		MakeBooleanArray([]bool{true, true, false}, 1),
		MakeDoubleArray([]float64{1, 2, 3}, 1),
		MakeStringArray([]string{"x", "y"}, 1),
	}
	for _, v := range cases {
		payload, err := EncodeLegacyValue(v)
		if err != nil {
			t.Fatalf("encode %v: %v", v.Type, err)
		}
		got, _, err := DecodeLegacyValue(payload, 0, v.Type)
		if err != nil {
			t.Fatalf("decode %v: %v", v.Type, err)
		}
		got.ClientTime = v.ClientTime
		if !got.Equal(v) {
			t.Errorf("legacy round trip mismatch for %v: got %+v want %+v", v.Type, got, v)
		}
	}
}

func TestNarrowForLegacy(t *testing.T) {
	i := MakeInteger(7, 1)
	n := NarrowForLegacy(i)
	if n.Type != Double || n.F64 != 7 {
		t.Fatalf("narrow integer = %+v", n)
	}
}
