package scheduler

import (
	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// BuildOnBlockTrx constructs the implicit onblock transaction pushed as the first entry
// of every block, carrying the previous header so contracts can observe producer
// rotation. Its execution is never allowed to abort the block;
// the caller discards whatever chainerr.Kind it produces after logging it.
func BuildOnBlockTrx(prev chaintypes.BlockHeader) (*chaintypes.TransactionMeta, []chainapi.ActionContext) {
	meta := &chaintypes.TransactionMeta{
		Type:            chaintypes.TrxImplicit,
		FirstAuthorizer: prev.Producer,
	}
	actions := []chainapi.ActionContext{{
		Receiver: 0, // the system account; opaque to this module
		Data:     encodeOnBlockData(prev),
	}}
	return meta, actions
}

// encodeOnBlockData packs the previous header's timestamp, producer and previous id,
// little-endian, in that order. The confirmed count and the later header fields that
// blockcodec encodes are not included.
func encodeOnBlockData(prev chaintypes.BlockHeader) []byte {
	out := make([]byte, 0, 40)
	out = appendUint32(out, uint32(prev.Timestamp))
	out = appendUint64(out, uint64(prev.Producer))
	out = append(out, prev.Previous[:]...)
	return out
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
