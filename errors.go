package geotree

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds. Callers may test for these with errors.Is.
var (
	// ErrVersionMismatch is returned when a network's family does not match
	// the tree it is being inserted into or looked up against.
	ErrVersionMismatch = errors.New("network family does not match the tree's IP version")

	// ErrUnexpectedNode is returned by a lookup whose descent ends on a
	// Node record at full depth. That can only happen if the tree's
	// invariants have been violated.
	ErrUnexpectedNode = errors.New("lookup descended into a node record at full depth")

	// ErrSerializerContract is returned when the external Serializer
	// behaves in a way the encoder cannot reconcile with the tree it is
	// encoding (for example, a stored key that vanished from the data
	// table between interning and encoding).
	ErrSerializerContract = errors.New("serializer returned an unexpected result")

	// ErrRecordOverflow is returned by WriteTree when a node number or data
	// offset does not fit in the configured record size. See the Open
	// Question resolution in SPEC_FULL.md.
	ErrRecordOverflow = errors.New("node or data offset exceeds the configured record size")
)

// ParseError reports that the external IP/CIDR parser rejected the text or
// mask length given to it.
type ParseError struct {
	Text  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid network %q: %s", e.Text, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
