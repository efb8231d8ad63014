package wasm

import (
	"encoding/binary"

	"github.com/wippyai/wasm-interp/wast"
)

// Buffer accumulates binary output. Sections are built in a scratch Buffer
// first so the size prefix is known before the content is appended.
type Buffer struct {
	Bytes []byte
}

func (b *Buffer) AppendByte(v byte) {
	b.Bytes = append(b.Bytes, v)
}

func (b *Buffer) WriteBytes(v []byte) {
	b.Bytes = append(b.Bytes, v...)
}

// WriteU32 writes unsigned LEB128 encoding.
func (b *Buffer) WriteU32(v uint32) {
	b.Bytes = appendUleb128(b.Bytes, uint64(v))
}

// WriteI32 writes signed LEB128 encoding.
func (b *Buffer) WriteI32(v int32) {
	b.Bytes = appendSleb128(b.Bytes, int64(v))
}

// WriteI64 writes signed LEB128 encoding.
func (b *Buffer) WriteI64(v int64) {
	b.Bytes = appendSleb128(b.Bytes, v)
}

// WriteI33 writes signed LEB128 for block type indices (33-bit range).
func (b *Buffer) WriteI33(v int64) {
	b.Bytes = appendSleb128(b.Bytes, v)
}

// WriteF32Bits writes a little-endian float32 from its raw bit pattern.
// Writing bits rather than a float value keeps NaN payloads intact.
func (b *Buffer) WriteF32Bits(bits uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], bits)
	b.WriteBytes(buf[:])
}

// WriteF64Bits writes a little-endian float64 from its raw bit pattern.
func (b *Buffer) WriteF64Bits(bits uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits)
	b.WriteBytes(buf[:])
}

// WriteString writes a length-prefixed UTF-8 string.
func (b *Buffer) WriteString(s string) {
	b.WriteU32(uint32(len(s)))
	b.WriteBytes([]byte(s))
}

func (b *Buffer) WriteLimits(lim wast.Limits) {
	switch {
	case lim.Shared:
		b.AppendByte(LimitsShared)
		b.WriteU32(lim.Min)
		b.WriteU32(lim.Max)
	case lim.HasMax:
		b.AppendByte(LimitsHasMax)
		b.WriteU32(lim.Min)
		b.WriteU32(lim.Max)
	default:
		b.AppendByte(LimitsNoMax)
		b.WriteU32(lim.Min)
	}
}
