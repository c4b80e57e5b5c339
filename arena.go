package geotree

// defaultArenaChunkSize is the number of nodes allocated per growth chunk,
// per spec.md 4.B.
const defaultArenaChunkSize = 1 << 18

// nodeID is a stable node identity. It survives arena growth, unlike a
// pointer into a single reallocating slice would.
type nodeID uint32

// nodeArena bulk-allocates treeNode values in fixed-size chunks. Once a
// chunk is allocated its backing array never moves, so a *treeNode handed
// out by get remains valid for the arena's lifetime.
type nodeArena struct {
	chunkSize int
	chunks    [][]treeNode
}

func newNodeArena(chunkSize int) *nodeArena {
	if chunkSize <= 0 {
		chunkSize = defaultArenaChunkSize
	}
	return &nodeArena{
		chunkSize: chunkSize,
		chunks:    [][]treeNode{make([]treeNode, 0, chunkSize)},
	}
}

// newNode allocates a fresh node with both records Empty and returns its
// stable id.
func (a *nodeArena) newNode() nodeID {
	chunkIdx := len(a.chunks) - 1
	if len(a.chunks[chunkIdx]) == cap(a.chunks[chunkIdx]) {
		a.chunks = append(a.chunks, make([]treeNode, 0, a.chunkSize))
		chunkIdx++
	}
	a.chunks[chunkIdx] = append(a.chunks[chunkIdx], treeNode{})
	localIdx := len(a.chunks[chunkIdx]) - 1
	return nodeID(chunkIdx*a.chunkSize + localIdx)
}

func (a *nodeArena) get(id nodeID) *treeNode {
	chunkIdx := int(id) / a.chunkSize
	localIdx := int(id) % a.chunkSize
	return &a.chunks[chunkIdx][localIdx]
}

// count returns the number of nodes allocated so far.
func (a *nodeArena) count() int {
	if len(a.chunks) == 0 {
		return 0
	}
	last := len(a.chunks) - 1
	return last*a.chunkSize + len(a.chunks[last])
}
