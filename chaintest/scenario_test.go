package chaintest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerd-io/ledgerd/blockcodec"
	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/forkdb"
	"github.com/ledgerd-io/ledgerd/pending"
	"github.com/ledgerd-io/ledgerd/pipeline"
	"github.com/ledgerd-io/ledgerd/resourcelimits"
	"github.com/ledgerd-io/ledgerd/scheduler"
	"github.com/ledgerd-io/ledgerd/signal"
	"github.com/ledgerd-io/ledgerd/unapplied"
)

func legacyFactory(num chaintypes.BlockNum) pending.BlockStateFactory {
	return func(h chaintypes.BlockHeader, sigs [][]byte) (chaintypes.BlockStateVariant, error) {
		return chaintypes.NewLegacyBlockState(blockcodec.BlockID(num, h), h, 0), nil
	}
}

func pipelineDeps(wasm chainapi.WASMEngine) pipeline.Deps {
	return pipeline.Deps{
		WASM:           wasm,
		Auth:           &FakeAuthChecker{},
		Subjective:     resourcelimits.NewSubjectiveLedger(1),
		FailureLimiter: resourcelimits.NewFailureLimiter(3, 10),
	}
}

// A producing node starts a block on an empty chain, pushes the implicit onblock
// transaction and one user transaction, assembles, signs, and completes; the new
// block state lands in the fork database as head and the undo session is committed.
func TestProduceBlockEndToEnd(t *testing.T) {
	ctx := context.Background()

	root := chaintypes.NewLegacyBlockState(chaintypes.MakeBlockID(1, [28]byte{1}), chaintypes.BlockHeader{}, 0)
	fdb, err := forkdb.New(root, 16)
	require.NoError(t, err)

	store := NewFakeKVStore()
	blockSess, err := store.BeginSession(ctx)
	require.NoError(t, err)

	cfg := scheduler.Config{KnownFeatures: map[chaintypes.FeatureDigest]string{}}
	b, ps, onblockMeta, onblockActions, err := scheduler.StartBlock(
		ctx, fdb, blockSess, 2, 0, nil, pending.ModeProducing, cfg, nil)
	require.NoError(t, err)

	bus := signal.NewBus(nil)
	var appliedSignals int
	bus.Register(signal.OnAppliedTransaction, func(any) { appliedSignals++ })
	var acceptedBlocks int
	bus.Register(signal.OnAcceptedBlock, func(any) { acceptedBlocks++ })

	deps := pipelineDeps(NewFakeWASMEngine(50))
	budget := pipeline.Budget{CPUUsageUS: 100_000, NetUsageBytes: 100_000}

	push := func(meta *chaintypes.TransactionMeta, actions []chainapi.ActionContext) {
		t.Helper()
		sess, err := store.BeginSession(ctx)
		require.NoError(t, err)
		res, err := pipeline.Push(ctx, deps, sess, &budget, pipeline.Options{BlockNum: 2}, meta, actions)
		require.NoError(t, err)
		require.NoError(t, b.AddReceipt(res.Receipt, res.ActionDigests, res.Meta))
		if !meta.IsTransient() {
			bus.Emit(signal.OnAppliedTransaction, res)
		}
	}

	push(onblockMeta, onblockActions)

	t1 := &chaintypes.TransactionMeta{
		PackedTrx:       []byte("hello-packed"),
		ID:              [32]byte{0x11},
		Type:            chaintypes.TrxInput,
		FirstAuthorizer: 7,
	}
	push(t1, []chainapi.ActionContext{{Receiver: 3, Data: []byte("hello")}})

	require.Equal(t, 2, b.ReceiptCount())
	require.Equal(t, 2, appliedSignals)

	asm, err := b.Assemble(scheduler.SelectMerkleAlgorithm(cfg, ps), 1, nil)
	require.NoError(t, err)

	comp, err := asm.Complete(ctx, FakeSigner, fdb, legacyFactory(2))
	require.NoError(t, err)
	bus.Emit(signal.OnAcceptedBlock, comp.BlockState)

	require.Equal(t, comp.BlockState.ID(), fdb.Head().ID())
	require.Len(t, comp.Receipts, 2)
	require.Equal(t, 1, acceptedBlocks)
	require.Zero(t, store.Revision(), "no fake writes happened, so the committed revision is unchanged")

	// The completed header commits to the receipts actually pushed.
	require.NotZero(t, comp.Header.TransactionMRoot)
	require.Equal(t, root.ID(), comp.Header.Previous)
}

// start_block followed by abort_block leaves the database revision and the unapplied
// queue exactly as they were, with the applied transaction requeued for retry.
func TestStartThenAbortIsANoop(t *testing.T) {
	ctx := context.Background()

	root := chaintypes.NewLegacyBlockState(chaintypes.MakeBlockID(1, [28]byte{1}), chaintypes.BlockHeader{}, 0)
	fdb, err := forkdb.New(root, 16)
	require.NoError(t, err)

	store := NewFakeKVStore()
	preRevision := store.Revision()
	blockSess, err := store.BeginSession(ctx)
	require.NoError(t, err)

	cfg := scheduler.Config{KnownFeatures: map[chaintypes.FeatureDigest]string{}}
	b, _, _, _, err := scheduler.StartBlock(
		ctx, fdb, blockSess, 2, 0, nil, pending.ModeProducing, cfg, nil)
	require.NoError(t, err)
	store.Write()

	t1 := &chaintypes.TransactionMeta{ID: [32]byte{0x22}, PackedTrx: []byte("retry-me"), Type: chaintypes.TrxInput}
	require.NoError(t, b.AddReceipt(chaintypes.TransactionReceipt{
		Status: chaintypes.ReceiptExecuted,
		Trx:    chaintypes.PackedTrx(t1.PackedTrx),
	}, nil, t1))

	q := unapplied.NewQueue(1 << 20)
	require.NoError(t, b.Abort(q))

	require.Equal(t, preRevision, store.Revision())
	require.Equal(t, 1, q.Len())
	require.Equal(t, root.ID(), fdb.Head().ID())
}

// A transaction that spins past its deadline is refused and subjectively billed, so
// repeated offenders are cheap to turn away.
func TestSpinningTransactionIsSubjectivelyBilled(t *testing.T) {
	store := NewFakeKVStore()
	deps := pipelineDeps(&SpinningWASMEngine{CPUUsedPerTickUS: 1000})
	budget := pipeline.Budget{CPUUsageUS: 1_000_000, NetUsageBytes: 1_000_000}

	meta := &chaintypes.TransactionMeta{
		PackedTrx:       []byte("spin"),
		ID:              [32]byte{0x33},
		Type:            chaintypes.TrxInput,
		FirstAuthorizer: 9,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sess, err := store.BeginSession(ctx)
	require.NoError(t, err)
	_, err = pipeline.Push(ctx, deps, sess, &budget, pipeline.Options{BlockNum: 2}, meta,
		[]chainapi.ActionContext{{Receiver: 1}})
	require.Error(t, err)

	ce, ok := chainerr.As(err)
	require.True(t, ok)
	require.Equal(t, chainerr.KindOther, ce.Kind)
	require.NotZero(t, deps.Subjective.Balance(9, time.Now()),
		"the offender's account must carry a subjective balance after the failure")
	require.Equal(t, pipeline.Budget{CPUUsageUS: 1_000_000, NetUsageBytes: 1_000_000}, budget,
		"a failed push must not consume block budget")
}
