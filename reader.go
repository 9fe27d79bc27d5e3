package jce

import (
	"encoding/binary"
	"math"
)

// Reader provides sequential typed access to an encoded payload with position
// tracking. All reads are bounds checked; running out of input yields a
// partial-data error so stream callers can wait for more bytes.
type Reader struct {
	data        []byte
	pos         int
	little      bool
	zeroCopy    bool
	strictFloat bool
}

// NewReader wraps data in a cursor configured from the option word. The
// Reader never mutates data.
func NewReader(data []byte, opt Option) *Reader {
	return &Reader{
		data:        data,
		little:      opt.has(LittleEndian),
		zeroCopy:    opt.has(ZeroCopy),
		strictFloat: opt.has(StrictFloat),
	}
}

// ReadU8 extracts the next byte.
func (r *Reader) ReadU8() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, partialErrorf("not enough data to read u8")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// PeekU8 returns the next byte without moving the cursor.
func (r *Reader) PeekU8() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, partialErrorf("not enough data to peek u8")
	}
	return r.data[r.pos], nil
}

// Skip moves the cursor forward without extracting data.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return decodeErrorf("cannot skip negative bytes: %d", n)
	}
	if r.pos+n > len(r.data) {
		return partialErrorf("not enough data to skip %d bytes", n)
	}
	r.pos += n
	return nil
}

// ReadBytes extracts n bytes. In zero-copy mode the result is a subslice of
// the input and shares its lifetime; otherwise it is a copy.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, decodeErrorf("cannot read negative bytes: %d", n)
	}
	if r.pos+n > len(r.data) {
		return nil, partialErrorf("not enough data to read %d bytes", n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	if r.zeroCopy {
		return b, nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, partialErrorf("not enough data to read %d bytes", n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadInt1 extracts a signed 1-byte integer.
func (r *Reader) ReadInt1() (int64, error) {
	b, err := r.ReadU8()
	if err != nil {
		return 0, err
	}
	return int64(int8(b)), nil
}

// ReadInt2 extracts a signed 2-byte integer honoring the endian flag.
func (r *Reader) ReadInt2() (int64, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	if r.little {
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	}
	return int64(int16(binary.BigEndian.Uint16(b))), nil
}

// ReadInt4 extracts a signed 4-byte integer honoring the endian flag.
func (r *Reader) ReadInt4() (int64, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	if r.little {
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	}
	return int64(int32(binary.BigEndian.Uint32(b))), nil
}

// ReadInt8 extracts a signed 8-byte integer honoring the endian flag.
func (r *Reader) ReadInt8() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	if r.little {
		return int64(binary.LittleEndian.Uint64(b)), nil
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadLen4 extracts the 4-byte String4 length field, which is big-endian
// regardless of the endian option.
func (r *Reader) ReadLen4() (int, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int(int32(binary.BigEndian.Uint32(b))), nil
}

// ReadFloat32 extracts an IEEE-754 single. In big-endian mode a rescue
// heuristic may reinterpret the bytes little-endian to recover payloads from
// mis-configured senders. StrictFloat disables the heuristic.
func (r *Reader) ReadFloat32() (float32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	if r.little {
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	}
	be := math.Float32frombits(binary.BigEndian.Uint32(b))
	if r.strictFloat {
		return be, nil
	}
	le := math.Float32frombits(binary.LittleEndian.Uint32(b))
	if isNonFinite32(be) && !isNonFinite32(le) {
		return le, nil
	}
	if !isNonFinite32(le) && abs32(be) > 1e9 && abs32(le) <= 1e6 {
		return le, nil
	}
	return be, nil
}

// ReadFloat64 extracts an IEEE-754 double, with the same endian handling as
// ReadFloat32.
func (r *Reader) ReadFloat64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	if r.little {
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	}
	be := math.Float64frombits(binary.BigEndian.Uint64(b))
	if r.strictFloat {
		return be, nil
	}
	le := math.Float64frombits(binary.LittleEndian.Uint64(b))
	if isNonFinite(be) && !isNonFinite(le) {
		return le, nil
	}
	if !isNonFinite(le) {
		if math.Abs(be) > 1e18 && math.Abs(le) <= 1e12 {
			return le, nil
		}
		if be != 0 && math.Abs(be) < 1e-30 && math.Abs(le) <= 1e6 {
			return le, nil
		}
	}
	return be, nil
}

// EOF reports whether the cursor reached the end of the input.
func (r *Reader) EOF() bool {
	return r.pos >= len(r.data)
}

// Pos returns the cursor position.
func (r *Reader) Pos() int {
	return r.pos
}

// BytesLeft calculates remaining unread bytes.
func (r *Reader) BytesLeft() int {
	return len(r.data) - r.pos
}

// Remaining provides all unread data as a subslice of the input.
func (r *Reader) Remaining() []byte {
	return r.data[r.pos:]
}

func isNonFinite(f float64) bool {
	return math.IsInf(f, 0) || math.IsNaN(f)
}

func isNonFinite32(f float32) bool {
	return isNonFinite(float64(f))
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
