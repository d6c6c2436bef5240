package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintest"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/forkdb"
	"github.com/ledgerd-io/ledgerd/pending"
	"github.com/ledgerd-io/ledgerd/pipeline"
	"github.com/ledgerd-io/ledgerd/unapplied"
)

func queuedMeta(tag byte, expiration chaintypes.BlockTimestamp) *chaintypes.TransactionMeta {
	return &chaintypes.TransactionMeta{
		ID:         [32]byte{tag},
		PackedTrx:  []byte{tag},
		Type:       chaintypes.TrxInput,
		Expiration: expiration,
	}
}

func okPush(applied *[][32]byte) PushFunc {
	return func(ctx context.Context, meta *chaintypes.TransactionMeta, actions []chainapi.ActionContext) (pipeline.Result, error) {
		*applied = append(*applied, meta.ID)
		return pipeline.Result{
			Receipt: chaintypes.TransactionReceipt{Status: chaintypes.ReceiptExecuted, Trx: chaintypes.PackedTrx(meta.PackedTrx)},
			Meta:    meta,
		}, nil
	}
}

func drainBuilder(t *testing.T) *pending.Builder {
	t.Helper()
	sess, err := chaintest.NewFakeKVStore().BeginSession(context.Background())
	require.NoError(t, err)
	return pending.NewBuilder(chaintypes.MakeBlockID(1, [28]byte{}), 2, 0, nil, pending.ModeProducing, sess, nil)
}

func TestDrainUnappliedAppliesInExpirationOrder(t *testing.T) {
	q := unapplied.NewQueue(1 << 20)
	require.NoError(t, q.Push(unapplied.Entry{Meta: queuedMeta(2, 200), SizeBytes: 1}))
	require.NoError(t, q.Push(unapplied.Entry{Meta: queuedMeta(1, 100), SizeBytes: 1}))

	var applied [][32]byte
	res := drainUnapplied(context.Background(), q, drainBuilder(t), okPush(&applied), func() bool { return false }, 50)

	require.Equal(t, 2, res.Applied)
	require.Equal(t, [][32]byte{{1}, {2}}, applied)
	require.Zero(t, q.Len())
}

func TestDrainUnappliedEvictsExpiredFirst(t *testing.T) {
	q := unapplied.NewQueue(1 << 20)
	require.NoError(t, q.Push(unapplied.Entry{Meta: queuedMeta(1, 10), SizeBytes: 1}))
	require.NoError(t, q.Push(unapplied.Entry{Meta: queuedMeta(2, 500), SizeBytes: 1}))

	var applied [][32]byte
	res := drainUnapplied(context.Background(), q, drainBuilder(t), okPush(&applied), func() bool { return false }, 100)

	require.Equal(t, 1, res.Expired)
	require.Equal(t, 1, res.Applied)
	require.Equal(t, [][32]byte{{2}}, applied)
}

func TestDrainUnappliedStopsAtSuspensionPoint(t *testing.T) {
	q := unapplied.NewQueue(1 << 20)
	require.NoError(t, q.Push(unapplied.Entry{Meta: queuedMeta(1, 100), SizeBytes: 1}))

	var applied [][32]byte
	res := drainUnapplied(context.Background(), q, drainBuilder(t), okPush(&applied), func() bool { return true }, 50)

	require.Zero(t, res.Applied)
	require.Equal(t, 1, q.Len(), "a suspended drain must leave the queue untouched")
}

func TestDrainUnappliedDropsExpiredFromPush(t *testing.T) {
	q := unapplied.NewQueue(1 << 20)
	require.NoError(t, q.Push(unapplied.Entry{Meta: queuedMeta(1, 100), SizeBytes: 1}))

	expiredPush := func(ctx context.Context, meta *chaintypes.TransactionMeta, actions []chainapi.ActionContext) (pipeline.Result, error) {
		return pipeline.Result{}, chainerr.New(chainerr.KindExpired, "stale")
	}
	res := drainUnapplied(context.Background(), q, drainBuilder(t), expiredPush, func() bool { return false }, 50)

	require.Equal(t, 1, res.Expired)
	require.Zero(t, q.Len())
}

func TestDrainScheduledHonorsSubDeadline(t *testing.T) {
	limits := chainapi.Limits{MaxScheduledTransactionTimePerBlockMS: 50}
	scheduled := []*chaintypes.TransactionMeta{queuedMeta(1, 100), queuedMeta(2, 100)}

	var applied [][32]byte
	// A block started long ago: the scheduled sub-deadline has already elapsed.
	res := drainScheduled(context.Background(), scheduled, drainBuilder(t), okPush(&applied), limits, time.Now().Add(-time.Second))
	require.Zero(t, res.Applied)

	res = drainScheduled(context.Background(), scheduled, drainBuilder(t), okPush(&applied), limits, time.Now())
	require.Equal(t, 2, res.Applied)
}

func TestDrainIncomingStopsWhenInterrupted(t *testing.T) {
	incoming := []*chaintypes.TransactionMeta{queuedMeta(1, 100), queuedMeta(2, 100)}

	interrupted := false
	stop := anyStop(interruptStop(&interrupted))

	var applied [][32]byte
	push := func(ctx context.Context, meta *chaintypes.TransactionMeta, actions []chainapi.ActionContext) (pipeline.Result, error) {
		interrupted = true // a higher-priority block arrives mid-drain
		return okPush(&applied)(ctx, meta, actions)
	}
	res := drainIncoming(context.Background(), incoming, drainBuilder(t), push, stop)
	require.Equal(t, 1, res.Applied)
}

func TestStartBlockBuildsOnPendingHead(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(chaintypes.MakeBlockID(1, [28]byte{}), chaintypes.BlockHeader{}, 0)
	fdb, err := forkdb.New(root, 16)
	require.NoError(t, err)

	store := chaintest.NewFakeKVStore()
	sess, err := store.BeginSession(context.Background())
	require.NoError(t, err)

	b, ps, onblockMeta, onblockActions, err := StartBlock(
		context.Background(), fdb, sess, 2, 0, nil, pending.ModeProducing, testFeatureConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, pending.StageBuilding, b.Stage())
	require.Equal(t, root.ID(), b.Header().Previous)
	require.Empty(t, ps.Active)
	require.Equal(t, chaintypes.TrxImplicit, onblockMeta.Type)
	require.Len(t, onblockActions, 1)
	require.NotEmpty(t, onblockActions[0].Data)
}

func TestStartBlockRejectsBadActivation(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(chaintypes.MakeBlockID(1, [28]byte{}), chaintypes.BlockHeader{}, 0)
	fdb, err := forkdb.New(root, 16)
	require.NoError(t, err)

	sess, err := chaintest.NewFakeKVStore().BeginSession(context.Background())
	require.NoError(t, err)

	_, _, _, _, err = StartBlock(
		context.Background(), fdb, sess, 2, 0,
		[]chaintypes.FeatureDigest{digestFor(2)}, // instant_finality without its dependency
		pending.ModeProducing, testFeatureConfig(), nil)
	require.Error(t, err)
	ce, ok := chainerr.As(err)
	require.True(t, ok)
	require.Equal(t, chainerr.KindProtocolFeatureBadBlock, ce.Kind)
}
