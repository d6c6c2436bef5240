package blockcodec

import (
	"bytes"
	"crypto/sha256"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// HeaderDigest is the SHA-256 of the header's wire encoding, the message a producer
// signature covers.
func HeaderDigest(h chaintypes.BlockHeader) [32]byte {
	var buf bytes.Buffer
	encodeHeader(&buf, h)
	return sha256.Sum256(buf.Bytes())
}

// ReceiptDigest is the SHA-256 of one receipt's wire encoding, the leaf fed to the
// transaction merkle root.
func ReceiptDigest(r chaintypes.TransactionReceipt) [32]byte {
	var buf bytes.Buffer
	encodeReceipt(&buf, r)
	return sha256.Sum256(buf.Bytes())
}

// BlockID derives a block's id: the header digest with the block number stitched into
// the leading four bytes so id -> num stays O(1).
func BlockID(num chaintypes.BlockNum, h chaintypes.BlockHeader) chaintypes.BlockID {
	digest := HeaderDigest(h)
	var tail [28]byte
	copy(tail[:], digest[4:])
	return chaintypes.MakeBlockID(num, tail)
}
