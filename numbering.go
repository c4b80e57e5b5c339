package geotree

// Finalize assigns dense ordinal numbers to every reachable node, in
// traversal order, so that the root (visited first) is numbered 0. It is
// idempotent; any subsequent mutating operation clears the finalized flag,
// requiring another call before the tree can be encoded again (spec.md
// 4.D, 4.F).
func (t *Tree) Finalize() {
	if t.finalized {
		return
	}
	var count uint32
	t.traverse(func(_ nodeID, n *treeNode) {
		n.number = count
		count++
	})
	t.nodeCount = count
	t.finalized = true
}
