package geotree

import (
	"bufio"
	"io"
	"math"

	"github.com/pkg/errors"
)

// dataSectionSeparatorWidth is the fixed gap, in bytes, between the tree
// section and the data section in the outer database layout. The tree
// engine only needs its width for offset arithmetic (spec.md 4.G, GLOSSARY).
const dataSectionSeparatorWidth = 16

// WriteTree finalizes the tree and writes its bit-packed record stream to
// w, calling serializer exactly once per distinct Data record emission
// (spec.md 4.D, 4.G).
func (t *Tree) WriteTree(w io.Writer, serializer Serializer) error {
	t.Finalize()

	buf := bufio.NewWriter(w)
	enc := &encoder{tree: t, serializer: serializer, offsets: make(map[string]uint32)}

	var werr error
	t.traverse(func(_ nodeID, n *treeNode) {
		if werr != nil {
			return
		}
		werr = enc.writeNode(buf, n)
	})
	if werr != nil {
		return werr
	}
	return buf.Flush()
}

type encoder struct {
	tree       *Tree
	serializer Serializer
	offsets    map[string]uint32
}

// recordValue computes the unsigned integer a record encodes to, per
// spec.md 4.G: 0 for Empty, the child's assigned number for Node, and
// node_count + 16 + the serializer's offset for Data.
func (e *encoder) recordValue(r record) (uint32, error) {
	switch r.kind {
	case recordEmpty:
		return 0, nil
	case recordNode:
		return e.tree.arena.get(r.node).number, nil
	case recordData:
		if off, ok := e.offsets[r.key]; ok {
			return e.tree.nodeCount + dataSectionSeparatorWidth + off, nil
		}
		value, ok := e.tree.data.lookup(r.key)
		if !ok {
			return 0, errors.WithStack(ErrSerializerContract)
		}
		off, err := e.serializer.StoreData(value)
		if err != nil {
			return 0, err
		}
		e.offsets[r.key] = off
		return e.tree.nodeCount + dataSectionSeparatorWidth + off, nil
	default:
		return 0, errors.Errorf("unknown record kind %d", r.kind)
	}
}

func (e *encoder) writeNode(w *bufio.Writer, n *treeNode) error {
	left, err := e.recordValue(n.left)
	if err != nil {
		return err
	}
	right, err := e.recordValue(n.right)
	if err != nil {
		return err
	}
	if err := checkRecordRange(e.tree.recordSize, left, right); err != nil {
		return err
	}

	buf := make([]byte, 2*e.tree.recordSize/8)
	if err := packRecord(buf, e.tree.recordSize, left, right); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func checkRecordRange(recordSize int, left, right uint32) error {
	max := uint32(math.MaxUint32)
	switch recordSize {
	case 24:
		max = 1<<24 - 1
	case 28:
		max = 1<<28 - 1
	case 32:
		max = math.MaxUint32
	}
	if left > max || right > max {
		return errors.WithStack(ErrRecordOverflow)
	}
	return nil
}

// packRecord writes left and right as the bit-packed layout for
// recordSize, per spec.md 4.G and the teacher's copyRecord: left/right are
// decomposed into 32-bit little-endian byte arrays [l0,l1,l2,l3] with l0
// the least significant, but emitted big-endian (most significant byte
// first), matching _examples/sftfjugg-mmdbwriter/tree.go's copyRecord.
func packRecord(buf []byte, recordSize int, left, right uint32) error {
	l := [4]byte{byte(left), byte(left >> 8), byte(left >> 16), byte(left >> 24)}
	r := [4]byte{byte(right), byte(right >> 8), byte(right >> 16), byte(right >> 24)}

	switch recordSize {
	case 24:
		buf[0], buf[1], buf[2] = l[2], l[1], l[0]
		buf[3], buf[4], buf[5] = r[2], r[1], r[0]
	case 28:
		buf[0], buf[1], buf[2] = l[2], l[1], l[0]
		buf[3] = (l[3]&0x0F)<<4 | r[3]&0x0F
		buf[4], buf[5], buf[6] = r[2], r[1], r[0]
	case 32:
		buf[0], buf[1], buf[2], buf[3] = l[3], l[2], l[1], l[0]
		buf[4], buf[5], buf[6], buf[7] = r[3], r[2], r[1], r[0]
	default:
		return errors.Errorf("unsupported record size %d", recordSize)
	}
	return nil
}
