// Package borsh implements the canonical little-endian serialization used
// as the signing preimage for NEAR transactions and NEP-413 messages.
// Encoding only: nothing in this repo decodes borsh.
package borsh

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

var maxU128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Writer accumulates canonically encoded fields. The zero value is ready to
// use. Range errors are sticky: once set, further writes are ignored and
// Err reports the first failure.
type Writer struct {
	buf []byte
	err error
}

// U8 writes a single byte.
func (w *Writer) U8(v byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

// U32 writes v as 4 little-endian bytes.
func (w *Writer) U32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// U64 writes v as 8 little-endian bytes.
func (w *Writer) U64(v uint64) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// U128 writes v as 16 little-endian bytes. A nil value encodes as zero.
func (w *Writer) U128(v *big.Int) {
	if w.err != nil {
		return
	}
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || v.Cmp(maxU128) >= 0 {
		w.err = fmt.Errorf("borsh: value %s out of u128 range", v)
		return
	}
	var be [16]byte
	v.FillBytes(be[:])
	for i := len(be) - 1; i >= 0; i-- {
		w.buf = append(w.buf, be[i])
	}
}

// String writes a u32 byte-length prefix followed by the raw bytes of s.
func (w *Writer) String(s string) {
	if w.err != nil {
		return
	}
	if len(s) > math.MaxUint32 {
		w.err = fmt.Errorf("borsh: string of %d bytes exceeds u32 length prefix", len(s))
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// VarBytes writes a u32 length prefix followed by b.
func (w *Writer) VarBytes(b []byte) {
	if w.err != nil {
		return
	}
	if len(b) > math.MaxUint32 {
		w.err = fmt.Errorf("borsh: byte slice of %d bytes exceeds u32 length prefix", len(b))
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Raw writes b with no length prefix. The caller guarantees the length is
// fixed by the schema.
func (w *Writer) Raw(b []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b...)
}

// OptionString writes 0x00 for nil, or 0x01 followed by the string.
func (w *Writer) OptionString(s *string) {
	if s == nil {
		w.U8(0)
		return
	}
	w.U8(1)
	w.String(*s)
}

// Bytes returns the encoded buffer. Check Err before using it.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first recording error, if any.
func (w *Writer) Err() error { return w.err }
