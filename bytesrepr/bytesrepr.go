// Package bytesrepr implements the canonical little-endian, length-prefixed
// byte encoding every on-chain value in the execution core uses. Unlike a
// general-purpose wire format (RLP, protobuf, gob), the format is
// deliberately rigid: every value has exactly one valid encoding, so that
// two distinct byte sequences never deserialize to equal values. Map-like
// structures must therefore always be encoded in ascending key-byte order
// at the call site; this package does not sort for you.
package bytesrepr

import (
	"encoding/binary"
	"errors"
)

// Sentinel decode failures. Wrapped with extra context by callers via %w.
var (
	ErrEarlyEndOfStream = errors.New("bytesrepr: early end of stream")
	ErrLeftOverBytes    = errors.New("bytesrepr: left-over bytes after decode")
	ErrFormatting       = errors.New("bytesrepr: formatting error")
)

// Writer accumulates a canonical encoding. Callers should pre-size it via
// NewWriter(serializedLength) where the length is cheap to compute, to avoid
// reallocation churn on large values.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given capacity hint.
func NewWriter(capHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capHint)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutI32(v int32) { w.PutU32(uint32(v)) }
func (w *Writer) PutI64(v int64) { w.PutU64(uint64(v)) }

func (w *Writer) PutBool(v bool) {
	if v {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
}

// PutBytes writes a length-prefixed byte slice: length:u32 || bytes.
func (w *Writer) PutBytes(b []byte) {
	w.PutU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// PutFixedBytes writes raw bytes with no length prefix; used for fixed-width
// fields (hashes, addresses) where the length is implicit in the type.
func (w *Writer) PutFixedBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// PutString writes a length-prefixed UTF-8 string.
func (w *Writer) PutString(s string) { w.PutBytes([]byte(s)) }

// Reader consumes a canonical encoding produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining returns the unconsumed tail of the buffer.
func (r *Reader) Remaining() []byte { return r.buf[r.pos:] }

// Done reports whether every byte has been consumed; callers that expect to
// fully consume a buffer should check this and return ErrLeftOverBytes if not.
func (r *Reader) Done() bool { return r.pos == len(r.buf) }

func (r *Reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return ErrEarlyEndOfStream
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrFormatting
	}
}

// Bytes reads a length-prefixed byte slice.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// FixedBytes reads exactly n raw bytes with no length prefix.
func (r *Reader) FixedBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToBytes is the interface every canonically-encodable value implements.
type ToBytes interface {
	ToBytes() []byte
	SerializedLength() int
}

// FromBytes decodes a value of type T using the supplied decode function and
// ensures there are no left-over bytes, matching the codec round-trip
// property every value must satisfy.
func FromBytes[T any](b []byte, decode func(*Reader) (T, error)) (T, error) {
	r := NewReader(b)
	v, err := decode(r)
	if err != nil {
		var zero T
		return zero, err
	}
	if !r.Done() {
		var zero T
		return zero, ErrLeftOverBytes
	}
	return v, nil
}
