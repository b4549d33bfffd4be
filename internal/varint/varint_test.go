package varint

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []uint64{
		0, 1, 127, 128, 129, 16383, 16384,
		1 << 20, 1<<28 - 1, 1 << 28, 1 << 35,
		1<<56 - 1, 1 << 56, 1<<63 - 1, 1 << 63, ^uint64(0),
	}
	for _, v := range cases {
		buf := Append(nil, v)
		if len(buf) < 1 || len(buf) > 9 {
			t.Fatalf("encode(%d): length %d out of [1,9]", v, len(buf))
		}
		got, n, err := Read(buf, 0)
		if err != nil {
			t.Fatalf("decode(encode(%d)): %v", v, err)
		}
		if got != v || n != len(buf) {
			t.Fatalf("decode(encode(%d)) = (%d, %d), want (%d, %d)", v, got, n, v, len(buf))
		}
	}
}

func TestReadRespectsOffset(t *testing.T) {
	buf := append([]byte{0xAA, 0xBB}, Append(nil, 300)...)
	v, n, err := Read(buf, 2)
	if err != nil {
		t.Fatal(err)
	}
	if v != 300 {
		t.Fatalf("got %d, want 300", v)
	}
	if n != 2 {
		t.Fatalf("got n=%d, want 2", n)
	}
}

func TestReadNineByteForm(t *testing.T) {
	// Nine continuation-style bytes with the high bit set on the first
	// eight; the ninth contributes all 8 bits verbatim.
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x42}
	v, n, err := Read(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 9 {
		t.Fatalf("got n=%d, want 9", n)
	}
	want := uint64(0x42)
	for i := 0; i < 8; i++ {
		want |= uint64(0x7f) << (8 + uint(i)*7)
	}
	if v != want {
		t.Fatalf("got %#x, want %#x", v, want)
	}
}

func TestReadUnderrun(t *testing.T) {
	buf := []byte{0x80, 0x80}
	if _, _, err := Read(buf, 0); err == nil {
		t.Fatal("expected error on truncated varint")
	}
}
