// Package chaintypes defines the wire- and memory-level vocabulary shared by every
// block-controller package: block identity, headers, receipts, block state, and the
// pending-block accumulator. Nothing in this package touches storage or networking.
package chaintypes

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BlockID is a 256-bit digest. Its first four bytes equal the big-endian block number,
// so id -> num is O(1).
type BlockID [32]byte

// Num extracts the block number embedded in the id's first four bytes.
func (id BlockID) Num() BlockNum {
	return BlockNum(binary.BigEndian.Uint32(id[:4]))
}

func (id BlockID) IsZero() bool {
	return id == BlockID{}
}

func (id BlockID) String() string {
	return fmt.Sprintf("%08x...%x", id[:4], id[28:])
}

// Less gives the byte-lexicographic order used as the final fork-db preference
// tie-break.
func (id BlockID) Less(other BlockID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// BlockNum is a 32-bit block height.
type BlockNum uint32

// MakeBlockID stitches a block number into the high bytes of a content digest.
func MakeBlockID(num BlockNum, digest [28]byte) BlockID {
	var id BlockID
	binary.BigEndian.PutUint32(id[:4], uint32(num))
	copy(id[4:], digest[:])
	return id
}

// AccountName is an opaque account identifier (the authorization checker and WASM
// engine give it meaning; here it is just a comparable key).
type AccountName uint64

// BlockTimestamp is a slot-quantized point in time (half-second or protocol-defined slots).
type BlockTimestamp uint32

func (t BlockTimestamp) Before(o BlockTimestamp) bool { return t < o }

// Extension is a generic (id, data) pair used by both header extensions and block
// extensions.
type Extension struct {
	ID   uint16
	Data []byte
}

// ProducerScheduleChange carries a new producer/proposer schedule proposed in a block
// header, pending activation once the proposing block becomes irreversible.
type ProducerScheduleChange struct {
	Version   uint32
	Producers []AccountName
}

// BlockHeader is the common header shape shared by both protocol flavors.
type BlockHeader struct {
	Timestamp        BlockTimestamp
	Producer         AccountName
	Confirmed        uint16
	Previous         BlockID
	TransactionMRoot [32]byte
	ActionMRoot      [32]byte
	ScheduleVersion  uint32
	NewProducers     *ProducerScheduleChange
	HeaderExtensions []Extension
}

// FeatureDigest identifies a protocol feature by the digest of its specification.
type FeatureDigest [32]byte

// FeatureSet is the ordered set of protocol features a pending block activates this round.
type FeatureSet []FeatureDigest

func (fs FeatureSet) Contains(f FeatureDigest) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}
