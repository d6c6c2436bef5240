package pending

import "github.com/ledgerd-io/ledgerd/chaintypes"

// Accumulator is either a growing list of receipt digests (while building) or the
// already-committed root (once assembled).
type Accumulator struct {
	digests [][32]byte
	root    *[32]byte
}

// Append adds a receipt digest; it is only valid before the accumulator has a root.
func (a *Accumulator) Append(digest [32]byte) {
	if a.root != nil {
		panic("pending: cannot append to an accumulator that already has a root")
	}
	a.digests = append(a.digests, digest)
}

// Digests returns the raw digest list and true while the accumulator is still growing.
func (a *Accumulator) Digests() ([][32]byte, bool) {
	if a.root != nil {
		return nil, false
	}
	return a.digests, true
}

// Len reports how many digests have been appended so far.
func (a *Accumulator) Len() int { return len(a.digests) }

// Finalize commits the accumulator to a root, freezing it against further appends.
func (a *Accumulator) Finalize(root [32]byte) {
	a.root = &root
}

// Root returns the committed root and true once Finalize has been called.
func (a *Accumulator) Root() ([32]byte, bool) {
	if a.root == nil {
		return [32]byte{}, false
	}
	return *a.root, true
}

// receiptBundle is the building-stage record for one applied transaction: its receipt
// plus the action-receipt digests it produced.
type receiptBundle struct {
	receipt        chaintypes.TransactionReceipt
	actionDigests  [][32]byte
}
