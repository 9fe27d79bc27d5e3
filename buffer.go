package jce

import (
	"encoding/binary"
	"math"
	"sync"
)

// Buffer accumulates encoded data during serialization. Supports only append
// operations for efficiency. The endian selection is fixed at construction.
type Buffer struct {
	Bytes  []byte
	little bool
}

// NewBuffer returns a Buffer configured from the option word.
func NewBuffer(opt Option) *Buffer {
	return &Buffer{little: opt.has(LittleEndian)}
}

// Reset clears the buffer contents but preserves allocated memory
func (b *Buffer) Reset() {
	b.Bytes = b.Bytes[:0]
	b.little = false
}

var bufpool = sync.Pool{
	New: func() any { return &Buffer{} },
}

// NewBufferFromPool obtains a reset Buffer from the pool, configured from the
// option word. Call ReturnToPool when finished.
func NewBufferFromPool(opt Option) *Buffer {
	b := bufpool.Get().(*Buffer)
	b.Reset()
	b.little = opt.has(LittleEndian)
	return b
}

// ReturnToPool releases the buffer back to the pool. Using the buffer after
// this call results in undefined behavior.
func (b *Buffer) ReturnToPool() {
	bufpool.Put(b)
}

// WriteHead emits a value prologue: one byte for tags below 15, two bytes
// otherwise.
func (b *Buffer) WriteHead(tag int, t TypeID) {
	if tag < 15 {
		b.Bytes = append(b.Bytes, byte(tag)<<4|byte(t))
		return
	}
	b.Bytes = append(b.Bytes, 0xF0|byte(t), byte(tag))
}

// WriteInt emits v in its smallest signed encoding: ZeroTag for 0, else
// Int1/2/4/8.
func (b *Buffer) WriteInt(tag int, v int64) {
	switch {
	case v == 0:
		b.WriteHead(tag, TypeZeroTag)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		b.WriteHead(tag, TypeInt1)
		b.Bytes = append(b.Bytes, byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		b.WriteHead(tag, TypeInt2)
		b.append16(uint16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		b.WriteHead(tag, TypeInt4)
		b.append32(uint32(v))
	default:
		b.WriteHead(tag, TypeInt8)
		b.append64(uint64(v))
	}
}

// WriteFloat32 emits a 4-byte IEEE-754 single.
func (b *Buffer) WriteFloat32(tag int, v float32) {
	b.WriteHead(tag, TypeFloat)
	b.append32(math.Float32bits(v))
}

// WriteFloat64 emits an 8-byte IEEE-754 double.
func (b *Buffer) WriteFloat64(tag int, v float64) {
	b.WriteHead(tag, TypeDouble)
	b.append64(math.Float64bits(v))
}

// WriteString emits s as String1 when its UTF-8 length fits a byte, else
// String4. The String4 length field is big-endian regardless of the endian
// selection.
func (b *Buffer) WriteString(tag int, s string) error {
	n := len(s)
	if n <= 255 {
		b.WriteHead(tag, TypeString1)
		b.Bytes = append(b.Bytes, byte(n))
		b.Bytes = append(b.Bytes, s...)
		return nil
	}
	if uint64(n) > math.MaxUint32 {
		return encodeErrorf("string too long for String4 length field: %d", n)
	}
	b.WriteHead(tag, TypeString4)
	b.Bytes = binary.BigEndian.AppendUint32(b.Bytes, uint32(n))
	b.Bytes = append(b.Bytes, s...)
	return nil
}

// WriteBytes emits raw as a SimpleList: head, nested Int1 head under tag 0,
// encoded-integer length, payload.
func (b *Buffer) WriteBytes(tag int, raw []byte) {
	b.WriteHead(tag, TypeSimpleList)
	b.WriteHead(0, TypeInt1)
	b.WriteInt(0, int64(len(raw)))
	b.Bytes = append(b.Bytes, raw...)
}

// WriteListHead emits a List head and element count. The caller follows with
// n headed values under tag 0.
func (b *Buffer) WriteListHead(tag, n int) {
	b.WriteHead(tag, TypeList)
	b.WriteInt(0, int64(n))
}

// WriteMapHead emits a Map head and pair count. The caller follows with n
// key/value pairs under tags 0 and 1.
func (b *Buffer) WriteMapHead(tag, n int) {
	b.WriteHead(tag, TypeMap)
	b.WriteInt(0, int64(n))
}

// WriteStructBegin opens a nested struct.
func (b *Buffer) WriteStructBegin(tag int) {
	b.WriteHead(tag, TypeStructBegin)
}

// WriteStructEnd closes the innermost struct.
func (b *Buffer) WriteStructEnd() {
	b.WriteHead(0, TypeStructEnd)
}

func (b *Buffer) append16(v uint16) {
	if b.little {
		b.Bytes = binary.LittleEndian.AppendUint16(b.Bytes, v)
		return
	}
	b.Bytes = binary.BigEndian.AppendUint16(b.Bytes, v)
}

func (b *Buffer) append32(v uint32) {
	if b.little {
		b.Bytes = binary.LittleEndian.AppendUint32(b.Bytes, v)
		return
	}
	b.Bytes = binary.BigEndian.AppendUint32(b.Bytes, v)
}

func (b *Buffer) append64(v uint64) {
	if b.little {
		b.Bytes = binary.LittleEndian.AppendUint64(b.Bytes, v)
		return
	}
	b.Bytes = binary.BigEndian.AppendUint64(b.Bytes, v)
}
