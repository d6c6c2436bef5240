package blockcodec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

func fullBlock() Signed {
	return Signed{
		Header: chaintypes.BlockHeader{
			Timestamp:       1234,
			Producer:        42,
			Confirmed:       2,
			Previous:        chaintypes.MakeBlockID(9, [28]byte{7}),
			ScheduleVersion: 3,
			NewProducers: &chaintypes.ProducerScheduleChange{
				Version:   4,
				Producers: []chaintypes.AccountName{10, 11, 12},
			},
			HeaderExtensions: []chaintypes.Extension{{ID: 2, Data: []byte("qc-claim")}},
		},
		Signatures: [][]byte{[]byte("sig-one"), []byte("sig-two")},
		Receipts: []chaintypes.TransactionReceipt{
			{Status: chaintypes.ReceiptExecuted, CPUUsageUS: 100, NetUsageWords: 3, Trx: chaintypes.PackedTrx([]byte("packed-bytes"))},
			{Status: chaintypes.ReceiptDelayed, CPUUsageUS: 5, NetUsageWords: 1, Trx: chaintypes.RefTrx([32]byte{0xAA})},
		},
		BlockExtensions: []chaintypes.Extension{{ID: 3, Data: []byte("aggregated-qc")}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	blk := fullBlock()
	decoded, err := Decode(Encode(blk))
	require.NoError(t, err)

	require.Equal(t, blk.Header.Timestamp, decoded.Header.Timestamp)
	require.Equal(t, blk.Header.Producer, decoded.Header.Producer)
	require.Equal(t, blk.Header.Previous, decoded.Header.Previous)
	require.Equal(t, blk.Header.NewProducers.Producers, decoded.Header.NewProducers.Producers)
	require.Equal(t, blk.Header.HeaderExtensions, decoded.Header.HeaderExtensions)
	require.Equal(t, blk.Signatures, decoded.Signatures)
	require.Equal(t, blk.BlockExtensions, decoded.BlockExtensions)

	require.Len(t, decoded.Receipts, 2)
	require.False(t, decoded.Receipts[0].Trx.IsRef())
	require.True(t, decoded.Receipts[1].Trx.IsRef())
	decoded.Receipts[1].Trx.Match(
		func([]byte) { t.Fatal("expected the id-reference arm") },
		func(id [32]byte) { require.Equal(t, [32]byte{0xAA}, id) },
	)
}

func TestDecodeTruncatedErrors(t *testing.T) {
	full := Encode(fullBlock())
	for _, cut := range []int{1, len(full) / 2, len(full) - 1} {
		_, err := Decode(full[:cut])
		require.Error(t, err, "truncation at %d bytes must not decode", cut)
	}
}

func TestDecodeUnknownReceiptDiscriminant(t *testing.T) {
	blk := Signed{Receipts: []chaintypes.TransactionReceipt{
		{Status: chaintypes.ReceiptExecuted, Trx: chaintypes.PackedTrx([]byte("x"))},
	}}
	raw := Encode(blk)

	// Working back from the end of the stream: block-extension count, payload "x",
	// payload length, then the discriminant byte.
	idx := len(raw) - 4
	raw[idx] = 0x7F
	_, err := Decode(raw)
	require.ErrorIs(t, err, ErrUnknownReceipt)
}

func TestHeaderDigestCommitsToContents(t *testing.T) {
	a := fullBlock().Header
	b := a
	b.ScheduleVersion++
	require.NotEqual(t, HeaderDigest(a), HeaderDigest(b))
	require.Equal(t, HeaderDigest(a), HeaderDigest(a))
}

func TestBlockIDEmbedsNumber(t *testing.T) {
	h := fullBlock().Header
	id := BlockID(77, h)
	require.EqualValues(t, 77, id.Num())
	require.NotEqual(t, id, BlockID(78, h))
}
