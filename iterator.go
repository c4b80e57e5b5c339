package geotree

// Direction identifies which child slot of a node a callback describes.
type Direction uint8

const (
	DirLeft Direction = iota
	DirRight
)

func (d Direction) String() string {
	if d == DirRight {
		return "R"
	}
	return "L"
}

// Visitor receives one callback per record position during Iterate. It
// must not mutate the tree; its return value, if any, is ignored (spec.md
// 4.H).
type Visitor interface {
	OnNodeRecord(nodeNumber uint32, dir Direction, currentNet, nextNet Network, nextNodeNumber uint32)
	OnEmptyRecord(nodeNumber uint32, dir Direction, currentNet, nextNet Network)
	OnDataRecord(nodeNumber uint32, dir Direction, currentNet, nextNet Network, value interface{})
}

// Iterate finalizes the tree and walks the DAG once, invoking exactly one
// Visitor method for every reachable record position (spec.md 4.H).
func (t *Tree) Iterate(v Visitor) {
	t.Finalize()
	root := Network{bytes: make([]byte, t.ipVersion.byteLen()), prefixLen: 0, family: t.ipVersion}
	seen := make(map[nodeID]bool)
	t.iterateFrom(t.root, root, seen, v)
}

func (t *Tree) iterateFrom(id nodeID, current Network, seen map[nodeID]bool, v Visitor) {
	if seen[id] {
		return
	}
	seen[id] = true
	n := t.arena.get(id)

	leftNet := extendNetwork(current, 0)
	rightNet := extendNetwork(current, 1)

	t.visitHalf(n.left, n.number, DirLeft, current, leftNet, seen, v)
	t.visitHalf(n.right, n.number, DirRight, current, rightNet, seen, v)
}

func (t *Tree) visitHalf(
	rec record,
	nodeNumber uint32,
	dir Direction,
	current, next Network,
	seen map[nodeID]bool,
	v Visitor,
) {
	switch rec.kind {
	case recordNode:
		child := t.arena.get(rec.node)
		v.OnNodeRecord(nodeNumber, dir, current, next, child.number)
		t.iterateFrom(rec.node, next, seen, v)
	case recordEmpty:
		v.OnEmptyRecord(nodeNumber, dir, current, next)
	case recordData:
		value, _ := t.data.lookup(rec.key)
		v.OnDataRecord(nodeNumber, dir, current, next, value)
	}
}

// extendNetwork returns the network one bit longer than current, with the
// new (most-deeply-nested) bit set to bitVal.
func extendNetwork(current Network, bitVal uint8) Network {
	maxDepth0 := current.maxDepth0()
	newPrefixLen := current.prefixLen + 1
	bitIndex := maxDepth0 - (newPrefixLen - 1)
	pos := maxDepth0 - bitIndex

	b := make([]byte, len(current.bytes))
	copy(b, current.bytes)
	byteIdx := pos >> 3
	shift := uint(^pos & 7)
	if bitVal == 1 {
		b[byteIdx] |= 1 << shift
	} else {
		b[byteIdx] &^= 1 << shift
	}
	return Network{bytes: b, prefixLen: newPrefixLen, family: current.family}
}
