// Package merkle computes the transaction- and action-receipt merkle roots a pending
// block commits to. Two algorithms coexist during the instant-finality
// protocol transition: a canonical power-of-two-padded tree before activation, and a
// Merkle Mountain Range after. The caller always selects the algorithm from the block's
// protocol-feature state, never from global configuration.
package merkle

import (
	"crypto/sha256"
	"errors"

	gomerkle "github.com/xsleonard/go-merkle"
)

// Algorithm identifies which merkle construction a block's protocol state mandates.
type Algorithm int

const (
	AlgorithmCanonical Algorithm = iota // pre-finality: power-of-two padding by leaf duplication
	AlgorithmMMR                       // post-finality: Merkle Mountain Range, no padding
)

var ErrEmptyLeaves = errors.New("merkle: cannot compute a root over zero leaves")

// CanonicalRoot computes the pre-finality root: a balanced binary tree where an odd
// level is completed by duplicating its last leaf.
func CanonicalRoot(leaves [][32]byte) ([32]byte, error) {
	if len(leaves) == 0 {
		return [32]byte{}, ErrEmptyLeaves
	}
	blocks := make([][]byte, len(leaves))
	for i, l := range leaves {
		b := make([]byte, 32)
		copy(b, l[:])
		blocks[i] = b
	}
	tree := gomerkle.NewTree()
	if err := tree.Generate(blocks, sha256.New()); err != nil {
		return [32]byte{}, err
	}
	root := tree.Root()
	var out [32]byte
	copy(out[:], root.Hash)
	return out, nil
}

// Root computes the protocol-selected merkle root over an ordered list of receipt
// digests.
func Root(algo Algorithm, leaves [][32]byte) ([32]byte, error) {
	switch algo {
	case AlgorithmMMR:
		return MMRRoot(leaves)
	default:
		return CanonicalRoot(leaves)
	}
}
