package jce

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestWriteHead(t *testing.T) {
	b := NewBuffer(0)
	b.WriteHead(0, TypeInt1)
	b.WriteHead(14, TypeZeroTag)
	b.WriteHead(15, TypeInt1)
	b.WriteHead(255, TypeDouble)
	assert.Equal(t, mustHex(t, "00ecf00ff5ff"), b.Bytes)
}

func TestWriteIntWidthSelection(t *testing.T) {
	cases := []struct {
		v   int64
		hex string
	}{
		{0, "0c"},
		{1, "0001"},
		{100, "0064"},
		{-1, "00ff"},
		{127, "007f"},
		{128, "010080"},
		{256, "010100"},
		{-32768, "018000"},
		{32768, "0200008000"},
		{math.MaxInt32, "027fffffff"},
		{int64(math.MaxInt32) + 1, "030000000080000000"},
		{math.MinInt64, "038000000000000000"},
	}
	for _, tc := range cases {
		b := NewBuffer(0)
		b.WriteInt(0, tc.v)
		assert.Equal(t, mustHex(t, tc.hex), b.Bytes, "value %d", tc.v)
	}
}

func TestWriteIntLittleEndian(t *testing.T) {
	b := NewBuffer(LittleEndian)
	b.WriteInt(0, 256)
	assert.Equal(t, mustHex(t, "010001"), b.Bytes)
}

func TestWriteStringBoundary(t *testing.T) {
	b := NewBuffer(0)
	require.NoError(t, b.WriteString(0, "你"))
	assert.Equal(t, mustHex(t, "0603e4bda0"), b.Bytes)

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	b = NewBuffer(0)
	require.NoError(t, b.WriteString(0, string(long)))
	want := append(mustHex(t, "0700000100"), long...)
	assert.Equal(t, want, b.Bytes)

	// the String4 length stays big-endian even with the endian flag set
	b = NewBuffer(LittleEndian)
	require.NoError(t, b.WriteString(0, string(long)))
	assert.Equal(t, want, b.Bytes)
}

func TestWriteBytesSimpleList(t *testing.T) {
	b := NewBuffer(0)
	b.WriteBytes(0, []byte{0xCA, 0xFE})
	assert.Equal(t, mustHex(t, "0d000002cafe"), b.Bytes)
}

func TestReaderPrimitives(t *testing.T) {
	r := NewReader(mustHex(t, "7f0100ffffffff"), 0)

	b, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, byte(0x7F), b)

	n, err := r.ReadInt2()
	require.NoError(t, err)
	assert.Equal(t, int64(256), n)

	n, err = r.ReadInt4()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	assert.True(t, r.EOF())
}

func TestReaderPartialData(t *testing.T) {
	r := NewReader([]byte{0x01}, 0)
	_, err := r.ReadInt4()
	assert.ErrorIs(t, err, ErrPartialData)

	r = NewReader(nil, 0)
	_, err = r.ReadU8()
	assert.ErrorIs(t, err, ErrPartialData)

	r = NewReader([]byte{1, 2, 3}, 0)
	err = r.Skip(4)
	assert.ErrorIs(t, err, ErrPartialData)
}

func TestReaderNegativeSkip(t *testing.T) {
	r := NewReader([]byte{1, 2, 3}, 0)
	err := r.Skip(-1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPartialData)
}

func TestReaderZeroCopy(t *testing.T) {
	data := []byte{1, 2, 3, 4}

	r := NewReader(data, ZeroCopy)
	b, err := r.ReadBytes(4)
	require.NoError(t, err)
	data[0] = 9
	assert.Equal(t, byte(9), b[0], "zero-copy read should alias the input")

	data[0] = 1
	r = NewReader(data, 0)
	b, err = r.ReadBytes(4)
	require.NoError(t, err)
	data[0] = 9
	assert.Equal(t, byte(1), b[0], "default read should copy")
}

func TestReadLen4IgnoresEndianFlag(t *testing.T) {
	r := NewReader([]byte{0x00, 0x00, 0x01, 0x00}, LittleEndian)
	n, err := r.ReadLen4()
	require.NoError(t, err)
	assert.Equal(t, 256, n)
}

func TestFloatHeuristicRescuesMisEndianDouble(t *testing.T) {
	// a little-endian 1.5 read as big-endian is a denormal near zero; the
	// heuristic flips it back
	le := binary.LittleEndian.AppendUint64(nil, math.Float64bits(1.5))

	r := NewReader(le, 0)
	f, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	r = NewReader(le, StrictFloat)
	f, err = r.ReadFloat64()
	require.NoError(t, err)
	assert.NotEqual(t, 1.5, f)

	// in little-endian mode the caller asserted the byte order; no rescue
	r = NewReader(le, LittleEndian)
	f, err = r.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)
}

func TestFloatHeuristicRescuesNonFinite(t *testing.T) {
	// big-endian NaN bits whose little-endian interpretation is finite
	raw := []byte{0x7F, 0xF0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	r := NewReader(raw, 0)
	f, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(f) || math.IsInf(f, 0))

	raw32 := []byte{0x7F, 0xC0, 0x00, 0x01}
	r = NewReader(raw32, 0)
	f32, err := r.ReadFloat32()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(float64(f32)))
}

func TestFloatHeuristicLosslessOnWellFormed(t *testing.T) {
	be := binary.BigEndian.AppendUint64(nil, math.Float64bits(3.25))
	r := NewReader(be, 0)
	f, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 3.25, f)

	be32 := binary.BigEndian.AppendUint32(nil, math.Float32bits(2.5))
	r = NewReader(be32, 0)
	f32, err := r.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(2.5), f32)
}
