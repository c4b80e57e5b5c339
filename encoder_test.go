package geotree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Expected byte layouts below are cross-checked against
// _examples/sftfjugg-mmdbwriter/tree.go's copyRecord, which emits left/right
// big-endian (most significant byte first), not the little-endian prose
// reading of spec.md 4.G's table.

func TestPackRecord24Bit(t *testing.T) {
	buf := make([]byte, 6)
	// 24-bit is a plain 3-byte big-endian encoding of each value.
	require.NoError(t, packRecord(buf, 24, 0x010203, 0x0a0b0c))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x0a, 0x0b, 0x0c}, buf)
}

func TestPackRecord32Bit(t *testing.T) {
	buf := make([]byte, 8)
	// 32-bit is a plain 4-byte big-endian encoding of each value.
	require.NoError(t, packRecord(buf, 32, 0x01020304, 0x0a0b0c0d))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x0a, 0x0b, 0x0c, 0x0d}, buf)
}

func TestPackRecord28BitNibbleSplit(t *testing.T) {
	buf := make([]byte, 7)
	// left = 0x00ABCDEF: low 24 bits 0xABCDEF big-endian, top nibble 0x0.
	// right = 0x00123456: low 24 bits 0x123456 big-endian, top nibble 0x0.
	// buf[3] = (left's top nibble)<<4 | (right's top nibble) = 0x00.
	require.NoError(t, packRecord(buf, 28, 0x0ABCDEF, 0x0123456))
	assert.Equal(t, []byte{0xAB, 0xCD, 0xEF, 0x00, 0x12, 0x34, 0x56}, buf)
}

func TestPackRecord28BitNibbleSplitWithNonZeroTopNibbles(t *testing.T) {
	buf := make([]byte, 7)
	// left = 0xFABCDEF: top nibble 0xF; right = 0xE123456: top nibble 0xE.
	require.NoError(t, packRecord(buf, 28, 0xFABCDEF, 0xE123456))
	assert.Equal(t, []byte{0xAB, 0xCD, 0xEF, 0xFE, 0x12, 0x34, 0x56}, buf)
}

func TestPackRecordSmallValuesAreNotConfusedWithEmpty(t *testing.T) {
	// A node/data value of 5 must not collapse to all-zero bytes, which
	// would be indistinguishable from the Empty sentinel (spec.md 4.G).
	buf := make([]byte, 6)
	require.NoError(t, packRecord(buf, 24, 5, 0))
	assert.Equal(t, []byte{0x00, 0x00, 0x05, 0x00, 0x00, 0x00}, buf)
	assert.NotEqual(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, buf)
}

func TestWriteTreePacksRealTreeBytesExactly(t *testing.T) {
	tree := newV4Tree(t, 24)
	require.NoError(t, tree.Insert("0.0.0.0", 1, "X", "X"))

	buf := &bytes.Buffer{}
	require.NoError(t, tree.WriteTree(buf, &fakeSerializer{}))

	// Single node, record size 24: left = Data(key "X") = node_count(1) +
	// dataSectionSeparatorWidth(16) + offset(0) = 17 = 0x000011, packed
	// big-endian as {0x00, 0x00, 0x11}; right = Empty = {0x00, 0x00, 0x00}.
	assert.Equal(t, []byte{0x00, 0x00, 0x11, 0x00, 0x00, 0x00}, buf.Bytes())
}

func TestCheckRecordRangeRejectsOverflow(t *testing.T) {
	assert.NoError(t, checkRecordRange(24, 1<<24-1, 0))
	assert.ErrorIs(t, checkRecordRange(24, 1<<24, 0), ErrRecordOverflow)
	assert.ErrorIs(t, checkRecordRange(28, 0, 1<<28), ErrRecordOverflow)
	assert.NoError(t, checkRecordRange(32, 1<<32-1, 1<<32-1))
}

type overflowingSerializer struct{}

func (overflowingSerializer) StoreData(interface{}) (uint32, error) {
	return 1 << 30, nil
}

func TestWriteTreeRejectsOverflowingRecordSize(t *testing.T) {
	tree := newV4Tree(t, 24)
	require.NoError(t, tree.Insert("1.1.1.0", 24, "A", "A"))

	err := tree.WriteTree(new(discardWriter), overflowingSerializer{})
	assert.ErrorIs(t, err, ErrRecordOverflow)
}

type discardWriter struct{}

func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }
