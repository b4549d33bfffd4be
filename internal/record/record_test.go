package record

import (
	"math"
	"testing"
)

func TestSerialTypeSize(t *testing.T) {
	cases := map[uint64]int{
		0: 0, 1: 1, 2: 2, 3: 3, 4: 4, 5: 6, 6: 8, 7: 8, 8: 0, 9: 0,
		12: 0, 13: 0, 14: 1, 15: 1, 22: 5, 23: 5,
	}
	for st, want := range cases {
		got, err := SerialTypeSize(st)
		if err != nil {
			t.Fatalf("serial type %d: unexpected error %v", st, err)
		}
		if got != want {
			t.Errorf("serial type %d: got %d, want %d", st, got, want)
		}
	}
	for _, reserved := range []uint64{10, 11} {
		if _, err := SerialTypeSize(reserved); err == nil {
			t.Errorf("serial type %d: expected error", reserved)
		}
	}
}

func TestDecodeRecordAllColumns(t *testing.T) {
	// header_size=5, serial types [0 (null), 1 (1-byte int), 17 (2-byte
	// text), 18 (3-byte blob)], bodies: 0xFB, "hi", {1,2,3}.
	buf := []byte{5, 0, 1, 17, 18, 0xFB, 'h', 'i', 1, 2, 3}
	vals, n, err := DecodeRecord(buf, 0, UTF8, nil)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	if len(vals) != 4 {
		t.Fatalf("got %d values, want 4", len(vals))
	}
	if vals[0].Type() != Null {
		t.Errorf("col0: got %v, want Null", vals[0].Type())
	}
	if vals[1].Type() != Integer || vals[1].Int() != -5 {
		t.Errorf("col1: got %v/%d, want Integer/-5", vals[1].Type(), vals[1].Int())
	}
	if vals[2].Type() != Text || vals[2].Text() != "hi" {
		t.Errorf("col2: got %v/%q, want Text/hi", vals[2].Type(), vals[2].Text())
	}
	if vals[3].Type() != Blob || string(vals[3].Blob()) != "\x01\x02\x03" {
		t.Errorf("col3: got %v/%v, want Blob/[1 2 3]", vals[3].Type(), vals[3].Blob())
	}
}

func TestDecodeRecordWantSubset(t *testing.T) {
	buf := []byte{5, 0, 1, 17, 18, 0xFB, 'h', 'i', 1, 2, 3}
	vals, n, err := DecodeRecord(buf, 0, UTF8, map[int]bool{2: true})
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	if vals[2].Text() != "hi" {
		t.Errorf("col2: got %q, want hi", vals[2].Text())
	}
	if vals[1].Type() != Null {
		t.Errorf("col1 should be skipped (zero Value), got %v", vals[1].Type())
	}
}

func TestSignExtendNegativeWidths(t *testing.T) {
	cases := []struct {
		body []byte
		want int64
	}{
		{[]byte{0xFF}, -1},
		{[]byte{0xFF, 0xFF}, -1},
		{[]byte{0x80, 0x00}, -32768},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF}, -1},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, -1},
	}
	for _, c := range cases {
		if got := signExtend(c.body); got != c.want {
			t.Errorf("signExtend(% x) = %d, want %d", c.body, got, c.want)
		}
	}
}

func TestDecodeFloat(t *testing.T) {
	bits := math.Float64bits(3.5)
	body := make([]byte, 8)
	for i := 0; i < 8; i++ {
		body[7-i] = byte(bits >> (8 * uint(i)))
	}
	v := decodeColumn(7, body, UTF8)
	if v.Type() != Float || v.Float() != 3.5 {
		t.Errorf("got %v/%v, want Float/3.5", v.Type(), v.Float())
	}
}

func TestTextDecodeFallsBackToRawBytesOnInvalidUTF8(t *testing.T) {
	invalid := []byte{0xFF, 0xFE}
	// serial type 13+2*2=17
	v := decodeColumn(17, invalid, UTF8)
	if v.Type() != Blob {
		t.Fatalf("got %v, want Blob (fallback)", v.Type())
	}
	if string(v.Blob()) != string(invalid) {
		t.Errorf("got %v, want raw bytes %v", v.Blob(), invalid)
	}
}

func TestDecodeRecordHeaderMismatchIsCorrupt(t *testing.T) {
	// header_size=2 claims the header ends right after one serial type
	// byte, but that serial type is itself a 2-byte varint (continuation
	// bit set), so decoding it overruns the declared header end.
	buf := []byte{2, 0x81, 0x00}
	if _, _, err := DecodeRecord(buf, 0, UTF8, nil); err == nil {
		t.Fatal("expected error on header/serial-type mismatch")
	}
}
