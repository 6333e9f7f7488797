package bytesrepr

import (
	"bytes"
	"testing"
)

func TestScalarRoundTrip(t *testing.T) {
	w := NewWriter(32)
	w.PutU8(7)
	w.PutU32(1234)
	w.PutU64(9_999_999_999)
	w.PutBool(true)
	w.PutBytes([]byte("hello"))
	w.PutString("world")

	r := NewReader(w.Bytes())
	if v, err := r.U8(); err != nil || v != 7 {
		t.Fatalf("U8: got %d, %v", v, err)
	}
	if v, err := r.U32(); err != nil || v != 1234 {
		t.Fatalf("U32: got %d, %v", v, err)
	}
	if v, err := r.U64(); err != nil || v != 9_999_999_999 {
		t.Fatalf("U64: got %d, %v", v, err)
	}
	if v, err := r.Bool(); err != nil || !v {
		t.Fatalf("Bool: got %v, %v", v, err)
	}
	if v, err := r.Bytes(); err != nil || !bytes.Equal(v, []byte("hello")) {
		t.Fatalf("Bytes: got %q, %v", v, err)
	}
	if v, err := r.String(); err != nil || v != "world" {
		t.Fatalf("String: got %q, %v", v, err)
	}
	if !r.Done() {
		t.Fatalf("expected reader to be exhausted")
	}
}

func TestEarlyEndOfStream(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.U64(); err != ErrEarlyEndOfStream {
		t.Fatalf("expected ErrEarlyEndOfStream, got %v", err)
	}
}

func TestLeftOverBytes(t *testing.T) {
	w := NewWriter(8)
	w.PutU32(1)
	data := append(w.Bytes(), 0xFF)
	_, err := FromBytes(data, func(r *Reader) (uint32, error) { return r.U32() })
	if err != ErrLeftOverBytes {
		t.Fatalf("expected ErrLeftOverBytes, got %v", err)
	}
}

func TestFormattingErrorOnBadBool(t *testing.T) {
	r := NewReader([]byte{2})
	if _, err := r.Bool(); err != ErrFormatting {
		t.Fatalf("expected ErrFormatting, got %v", err)
	}
}

func TestCanonicalEncodingIsDeterministic(t *testing.T) {
	mk := func() []byte {
		w := NewWriter(16)
		w.PutU32(5)
		w.PutBytes([]byte("abc"))
		return w.Bytes()
	}
	a, b := mk(), mk()
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding the same value twice produced different bytes")
	}
}
