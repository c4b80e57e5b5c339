package geotree

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"

	"github.com/pkg/errors"
)

// Options configures a Tree. Zero values are replaced with the defaults
// documented below, mirroring the teacher's Options-with-New-side-defaults
// shape.
type Options struct {
	// IPVersion is 4 or 6. Defaults to 6.
	IPVersion int

	// RecordSize is 24, 28, or 32 bits. Defaults to 28.
	RecordSize int

	// ArenaChunkSize is the number of nodes allocated per arena growth
	// chunk. Defaults to 2^18.
	ArenaChunkSize int

	// Merger, if non-nil, enables merge-on-collision: an insert whose own
	// target record already holds a Data record with a different key is
	// combined with it via Merger.Merge instead of the new value
	// unconditionally overriding. Only that one record is merged: when the
	// target record is a Node (more specific networks were inserted
	// earlier), the whole subtree is replaced by the new value and the
	// Data records beneath it are not merged.
	Merger Merger
}

// Tree is a binary search tree mapping IP networks to opaque data values,
// per spec.md 3 and 4.D.
type Tree struct {
	ipVersion             Family
	recordSize            int
	mergeRecordCollisions bool
	merger                Merger

	arena *nodeArena
	data  *dataTable
	root  nodeID

	finalized bool
	nodeCount uint32
}

// New creates a new Tree.
func New(opts Options) (*Tree, error) {
	family := Family(opts.IPVersion)
	if family == 0 {
		family = FamilyV6
	}
	if family != FamilyV4 && family != FamilyV6 {
		return nil, errors.Errorf("unsupported IP version: %d", opts.IPVersion)
	}

	recordSize := opts.RecordSize
	if recordSize == 0 {
		recordSize = 28
	}
	if recordSize != 24 && recordSize != 28 && recordSize != 32 {
		return nil, errors.Errorf("unsupported record size: %d", recordSize)
	}

	t := &Tree{
		ipVersion:             family,
		recordSize:            recordSize,
		mergeRecordCollisions: opts.Merger != nil,
		merger:                opts.Merger,
		arena:                 newNodeArena(opts.ArenaChunkSize),
		data:                  newDataTable(),
	}
	t.root = t.arena.newNode()
	return t, nil
}

func (t *Tree) IPVersion() Family   { return t.ipVersion }
func (t *Tree) RecordSize() int     { return t.recordSize }
func (t *Tree) NodeCount() uint32   { return t.nodeCount }

// descent is the result of findNodeForNetwork: the node whose record at
// bitVal (selected by the bit at absolute index bit) is the one the
// caller should inspect or mutate.
type descent struct {
	node    nodeID
	bit     int
	bitVal  uint8
	stopped bool
}

// descentMode selects how findNodeForNetwork treats a non-Node record that
// blocks descent before the target depth is reached.
type descentMode int

const (
	// descentRead never modifies the tree; it bails out at the first
	// non-Node record and reports it via descent.stopped.
	descentRead descentMode = iota
	// descentInsert always splits a blocking Empty or Data record into a
	// new node, so the target depth is always reached.
	descentInsert
	// descentDelete only splits a blocking Data record (to preserve the
	// coverage of the portion not being deleted); a blocking Empty record
	// means the target is already empty throughout, so descent stops
	// there without allocating.
	descentDelete
)

// findNodeForNetwork is the "find_node_for_network" descent of spec.md 4.D.
func (t *Tree) findNodeForNetwork(network Network, mode descentMode) descent {
	maxDepth0 := network.maxDepth0()
	target := maxDepth0 - (network.prefixLen - 1)
	id := t.root
	for b := maxDepth0; b > target; b-- {
		n := t.arena.get(id)
		bv := network.BitAt(b)
		rec := getRecord(n, bv)
		if rec.kind == recordNode {
			id = rec.node
			continue
		}
		if mode == descentRead || (mode == descentDelete && rec.kind == recordEmpty) {
			return descent{node: id, bit: b, bitVal: bv, stopped: true}
		}
		newID := t.arena.newNode()
		if rec.kind == recordData {
			nn := t.arena.get(newID)
			nn.left = dataRecordOf(rec.key)
			nn.right = dataRecordOf(rec.key)
			t.data.retain(rec.key, 2)
		}
		setRecord(n, bv, nodeRecordOf(newID))
		id = newID
	}
	return descent{node: id, bit: target, bitVal: network.BitAt(target), stopped: false}
}

// InsertNetwork inserts value under key for every address network covers.
// Later insertions override earlier ones for addresses they both cover
// (spec.md 4.D, "Insert semantics").
func (t *Tree) InsertNetwork(network Network, key string, value interface{}) error {
	if network.family != t.ipVersion {
		return errors.WithStack(ErrVersionMismatch)
	}
	if network.prefixLen <= 0 {
		return errors.New("cannot insert a value into the root of the tree")
	}

	t.data.intern(key, value)
	if err := t.insertRecordForNetwork(network, dataRecordOf(key)); err != nil {
		t.data.release(key, 1)
		return err
	}
	t.finalized = false
	return nil
}

// Insert parses ipText/prefixLen against the tree's own family (mapping a
// v4 address into a v6 tree automatically) and inserts value under key.
func (t *Tree) Insert(ipText string, prefixLen int, key string, value interface{}) error {
	network, err := ParseNetwork(ipText, prefixLen, t.ipVersion)
	if err != nil {
		return err
	}
	return t.InsertNetwork(network, key, value)
}

// insertRecordForNetwork writes newRec at the leaf position network
// resolves to, applying merge-on-collision and sibling coalescence first.
func (t *Tree) insertRecordForNetwork(network Network, newRec record) error {
	d := t.findNodeForNetwork(network, descentInsert)
	n := t.arena.get(d.node)
	existing := getRecord(n, d.bitVal)

	final := newRec
	if t.mergeRecordCollisions && existing.kind == recordData && newRec.kind == recordData && existing.key != newRec.key {
		existingVal, _ := t.data.lookup(existing.key)
		newVal, _ := t.data.lookup(newRec.key)
		mergedVal, err := t.merger.Merge(existingVal, newVal)
		if err != nil {
			return errors.Wrap(err, "merging overlapping records")
		}
		mergedKey := combineKeys(existing.key, newRec.key)
		t.data.intern(mergedKey, mergedVal)
		final = dataRecordOf(mergedKey)
	}

	var siblingBit uint8 = 1
	if d.bitVal == 1 {
		siblingBit = 0
	}
	sibling := getRecord(n, siblingBit)

	if network.prefixLen > 1 && sibling.sameData(final) {
		if err := t.insertRecordForNetwork(network.PrefixParent(), final); err != nil {
			return err
		}
	}

	setRecord(n, d.bitVal, final)
	return nil
}

// combineKeys derives a deterministic key for a merged record from the two
// keys it was merged from. It is not content-addressed to the merged
// value; see SPEC_FULL.md's Open Question resolution.
func combineKeys(existingKey, newKey string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(existingKey))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(newKey))
	return hex.EncodeToString(h.Sum(nil))
}

// DeleteNetwork removes the record network resolves to, if any. It is a
// no-op unless network currently resolves to a non-empty record along the
// matching descent (spec.md 4.D, "Delete").
func (t *Tree) DeleteNetwork(network Network) error {
	if network.family != t.ipVersion {
		return errors.WithStack(ErrVersionMismatch)
	}
	if network.prefixLen <= 0 {
		return nil
	}

	d := t.findNodeForNetwork(network, descentDelete)
	if d.stopped {
		return nil
	}
	n := t.arena.get(d.node)
	if getRecord(n, d.bitVal).kind == recordEmpty {
		return nil
	}
	setRecord(n, d.bitVal, emptyRecord())
	t.finalized = false
	return nil
}

// Delete parses ipText/prefixLen against the tree's family and deletes the
// resulting network.
func (t *Tree) Delete(ipText string, prefixLen int) error {
	network, err := ParseNetwork(ipText, prefixLen, t.ipVersion)
	if err != nil {
		return err
	}
	return t.DeleteNetwork(network)
}

// LookupIP returns the value associated with addr, or ok == false if no
// network covers it. It returns ErrUnexpectedNode if descent ends on a
// Node record at full depth, which indicates tree corruption (spec.md
// 4.D).
func (t *Tree) LookupIP(addr netip.Addr) (interface{}, bool, error) {
	network, err := t.networkForLookup(addr)
	if err != nil {
		return nil, false, err
	}
	d := t.findNodeForNetwork(network, descentRead)
	n := t.arena.get(d.node)
	rec := getRecord(n, d.bitVal)
	switch rec.kind {
	case recordData:
		v, _ := t.data.lookup(rec.key)
		return v, true, nil
	case recordEmpty:
		return nil, false, nil
	default:
		return nil, false, errors.WithStack(ErrUnexpectedNode)
	}
}

// Lookup parses ipText and calls LookupIP.
func (t *Tree) Lookup(ipText string) (interface{}, bool, error) {
	addr, err := netip.ParseAddr(ipText)
	if err != nil {
		return nil, false, &ParseError{Text: ipText, Cause: err}
	}
	return t.LookupIP(addr)
}

// LookupNetwork is like LookupIP but also returns the network (address
// masked to the matched prefix length) that produced the value. This is
// the richer form the teacher's own Get method exposes; see SPEC_FULL.md's
// "Supplemented features".
func (t *Tree) LookupNetwork(addr netip.Addr) (Network, interface{}, bool, error) {
	network, err := t.networkForLookup(addr)
	if err != nil {
		return Network{}, nil, false, err
	}
	d := t.findNodeForNetwork(network, descentRead)
	n := t.arena.get(d.node)
	rec := getRecord(n, d.bitVal)

	matchedLen := network.maxDepth0() - d.bit + 1
	matched := Network{bytes: maskedBytes(network.bytes, matchedLen), prefixLen: matchedLen, family: network.family}

	switch rec.kind {
	case recordData:
		v, _ := t.data.lookup(rec.key)
		return matched, v, true, nil
	case recordEmpty:
		return matched, nil, false, nil
	default:
		return Network{}, nil, false, errors.WithStack(ErrUnexpectedNode)
	}
}

func maskedBytes(b []byte, prefixLen int) []byte {
	out := append([]byte(nil), b...)
	fullBytes := prefixLen / 8
	remBits := prefixLen % 8
	for i := fullBytes; i < len(out); i++ {
		if i == fullBytes && remBits > 0 {
			out[i] &= ^byte(0) << uint(8-remBits)
			continue
		}
		out[i] = 0
	}
	return out
}

func (t *Tree) networkForLookup(addr netip.Addr) (Network, error) {
	if t.ipVersion == FamilyV4 {
		if !addr.Is4() {
			return Network{}, errors.WithStack(ErrVersionMismatch)
		}
		a4 := addr.As4()
		return Network{bytes: append([]byte(nil), a4[:]...), prefixLen: 32, family: FamilyV4}, nil
	}
	if addr.Is4() {
		a4 := addr.As4()
		return Network{bytes: embedV4InV6(a4), prefixLen: 128, family: FamilyV6}, nil
	}
	a16 := addr.As16()
	return Network{bytes: append([]byte(nil), a16[:]...), prefixLen: 128, family: FamilyV6}, nil
}

// aliasPrefixes are the two prefixes (v4-mapped ::ffff:0:0/96 and 6to4
// 2002::/16) alias_ipv4 attaches the native ::0.0.0.0/96 subtree under, per
// spec.md 4.D.
func aliasPrefixes() []Network {
	ffffMapped := make([]byte, 16)
	ffffMapped[10], ffffMapped[11] = 0xff, 0xff
	sixToFour := make([]byte, 16)
	sixToFour[0], sixToFour[1] = 0x20, 0x02
	return []Network{
		{bytes: ffffMapped, prefixLen: 96, family: FamilyV6},
		{bytes: sixToFour, prefixLen: 16, family: FamilyV6},
	}
}

// AliasIPv4 attaches the native IPv4 subtree (stored under ::0.0.0.0/96) as
// additional children of the v4-mapped (::ffff:0:0/96) and 6to4 (2002::/16)
// prefixes, reusing the same node identity rather than cloning it (spec.md
// 3, invariant 3; 4.D). It is a no-op on v4 trees, and a no-op if no IPv4
// data has been inserted yet.
func (t *Tree) AliasIPv4() error {
	if t.ipVersion != FamilyV6 {
		return nil
	}

	v4Root := Network{bytes: make([]byte, 16), prefixLen: 96, family: FamilyV6}
	d := t.findNodeForNetwork(v4Root, descentRead)
	if d.stopped {
		return nil
	}
	rec := getRecord(t.arena.get(d.node), d.bitVal)
	if rec.kind != recordNode {
		// No IPv4 data has created a real subtree root yet (a bare Empty or
		// Data record at the /96 boundary); nothing to alias.
		return nil
	}
	ipv4RootID := rec.node

	for _, alias := range aliasPrefixes() {
		ad := t.findNodeForNetwork(alias, descentInsert)
		n := t.arena.get(ad.node)
		setRecord(n, ad.bitVal, nodeRecordOf(ipv4RootID))
	}
	t.finalized = false
	return nil
}

// DeleteReservedNetworks removes the fixed reserved-network tables from the
// tree: the IPv4 table for a v4 tree, and both the v4-mapped (at +96) and
// native IPv6 reserved tables for a v6 tree (spec.md 4.D).
func (t *Tree) DeleteReservedNetworks() error {
	switch t.ipVersion {
	case FamilyV4:
		for _, r := range reservedIPv4Networks {
			if err := t.DeleteNetwork(r); err != nil {
				return err
			}
		}
	case FamilyV6:
		for _, r := range reservedIPv4Networks {
			var v4 [4]byte
			copy(v4[:], r.bytes)
			mapped := Network{bytes: embedV4InV6(v4), prefixLen: r.prefixLen + 96, family: FamilyV6}
			if err := t.DeleteNetwork(mapped); err != nil {
				return err
			}
		}
		for _, r := range reservedIPv6Networks {
			if err := t.DeleteNetwork(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close walks the reachable tree and re-establishes true liveness in the
// data table, dropping refcounts for any key no longer referenced by a
// reachable Data record (spec.md 4.C, 5).
func (t *Tree) Close() {
	live := make(map[string]int)
	t.traverse(func(_ nodeID, n *treeNode) {
		if n.left.kind == recordData {
			live[n.left.key]++
		}
		if n.right.kind == recordData {
			live[n.right.key]++
		}
	})
	t.data.recount(live)
}
