// Package scheduler drives one pending block from start_block through the final drain
// of unapplied, scheduled, and incoming transactions, dispatching protocol-feature
// activations along the way.
package scheduler

import (
	"context"
	"time"

	log "github.com/erigontech/erigon-lib/log/v3"

	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/forkdb"
	"github.com/ledgerd-io/ledgerd/merkle"
	"github.com/ledgerd-io/ledgerd/pending"
)

// StartBlock opens a new pending block on top of the fork database's current head,
// activates any newly-proposed protocol features, and constructs the onblock
// transaction. Draining the unapplied/scheduled/incoming queues is driven
// separately by the caller via drainUnapplied/drainScheduled/drainIncoming, since it
// needs live access to the transaction sources (unapplied queue, API/P2P channels)
// that this package does not own.
func StartBlock(ctx context.Context, fdb *forkdb.Store, undo chainapi.UndoSession,
	when chaintypes.BlockTimestamp, confirmCount uint16,
	newFeatures []chaintypes.FeatureDigest, mode pending.Mode, cfg Config, logger log.Logger) (*pending.Builder, *ProtocolState, *chaintypes.TransactionMeta, []chainapi.ActionContext, error) {

	if logger == nil {
		logger = log.Root()
	}

	head := fdb.PendingHead()
	if head == nil {
		return nil, nil, nil, nil, chainerr.New(chainerr.KindForkDatabase, "StartBlock: fork database has no head")
	}

	ps := &ProtocolState{}
	if err := Activate(cfg, ps, newFeatures); err != nil {
		return nil, nil, nil, nil, chainerr.Wrap(chainerr.KindProtocolFeatureBadBlock, err, "StartBlock: activation failed")
	}

	features := append(chaintypes.FeatureSet{}, ps.Active...)
	b := pending.NewBuilder(head.ID(), when, confirmCount, features, mode, undo, logger)

	// Step 6: the onblock transaction is constructed here and handed back for the
	// caller to push through pipeline.Push before any user transaction. Its chainerr.Kind, if any, must be logged and discarded by the caller,
	// never propagated — this function only builds it.
	onblockMeta, onblockActions := BuildOnBlockTrx(head.Header())

	return b, ps, onblockMeta, onblockActions, nil
}

// SelectMerkleAlgorithm resolves which merkle construction the current block must use
// from its activated features, never from global configuration.
func SelectMerkleAlgorithm(cfg Config, ps *ProtocolState) merkle.Algorithm {
	if cfg.MerkleAlgoByFeature != nil {
		return cfg.MerkleAlgoByFeature(ps.Active)
	}
	if ps.InstantFinality {
		return merkle.AlgorithmMMR
	}
	return merkle.AlgorithmCanonical
}

// IsLastBlockOfSlot reports whether when is the final block this producer will build
// before rotation, used to select the tighter last-block deadline.
func IsLastBlockOfSlot(when chaintypes.BlockTimestamp, slotBlocks uint32, indexInSlot uint32) bool {
	if slotBlocks == 0 {
		return true
	}
	return indexInSlot == slotBlocks-1
}

// BlockStartTime converts a chaintypes.BlockTimestamp to a wall-clock reference point
// for deadline arithmetic; epoch and slot width are carried by the caller rather than
// hardcoded, since the timestamp's slot quantization is protocol-defined.
func BlockStartTime(epoch time.Time, slotWidth time.Duration, when chaintypes.BlockTimestamp) time.Time {
	return epoch.Add(time.Duration(when) * slotWidth)
}
