package pending

import (
	"context"

	log "github.com/erigontech/erigon-lib/log/v3"

	"github.com/ledgerd-io/ledgerd/blockcodec"
	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/merkle"
	"github.com/ledgerd-io/ledgerd/unapplied"
)

// Builder is the single pending-block slot; at most one exists at a time.
type Builder struct {
	stage Stage
	mode  Mode

	parentID chaintypes.BlockID
	header   chaintypes.BlockHeader
	features chaintypes.FeatureSet

	undo chainapi.UndoSession

	receipts      []receiptBundle
	trxDigests    Accumulator
	actionDigests Accumulator
	appliedMetas  []*chaintypes.TransactionMeta

	// set by Assemble
	algo       merkle.Algorithm
	assembled  bool

	log log.Logger
}

// NewBuilder opens a pending block on top of parent.
// It requires no pending slot occupied; that invariant is enforced by the caller
// (scheduler.StartBlock), which holds the single Builder instance.
func NewBuilder(parentID chaintypes.BlockID, when chaintypes.BlockTimestamp, confirmed uint16,
	features chaintypes.FeatureSet, mode Mode, undo chainapi.UndoSession, logger log.Logger) *Builder {
	if logger == nil {
		logger = log.Root()
	}
	return &Builder{
		stage:    StageBuilding,
		mode:     mode,
		parentID: parentID,
		header: chaintypes.BlockHeader{
			Timestamp: when,
			Previous:  parentID,
			Confirmed: confirmed,
		},
		features: features,
		undo:     undo,
		log:      logger,
	}
}

func (b *Builder) Stage() Stage           { return b.stage }
func (b *Builder) Mode() Mode             { return b.mode }
func (b *Builder) Header() chaintypes.BlockHeader { return b.header }

// SetHeaderExtensions lets the scheduler attach qc_claim / new-schedule extensions
// before assembly.
func (b *Builder) SetHeaderExtensions(ext []chaintypes.Extension) {
	b.header.HeaderExtensions = ext
}

// AddReceipt appends a transaction's receipt and its action-receipt digests. It is the
// pipeline's only write path into the pending block.
func (b *Builder) AddReceipt(receipt chaintypes.TransactionReceipt, actionDigests [][32]byte, meta *chaintypes.TransactionMeta) error {
	if b.stage != StageBuilding {
		return chainerr.New(chainerr.KindOther, "AddReceipt: "+ErrWrongStage.Error())
	}
	digest := receiptDigest(receipt)
	b.receipts = append(b.receipts, receiptBundle{receipt: receipt, actionDigests: actionDigests})
	b.trxDigests.Append(digest)
	for _, d := range actionDigests {
		b.actionDigests.Append(d)
	}
	if meta != nil && !meta.Type.IsTransient() {
		b.appliedMetas = append(b.appliedMetas, meta)
	}
	return nil
}

// ReceiptCount reports how many receipts the building block holds; it always equals
// the trx-receipt-digest count.
func (b *Builder) ReceiptCount() int { return len(b.receipts) }

// Assembled is the pending block once its header is complete and merkle roots are
// computed, but before it is signed.
type Assembled struct {
	b *Builder
}

// Assemble freezes receipt ordering and computes both merkle roots, selecting the
// algorithm the caller determined from the block's protocol-feature state.
func (b *Builder) Assemble(algo merkle.Algorithm, scheduleVersion uint32, newProducers *chaintypes.ProducerScheduleChange) (*Assembled, error) {
	if b.stage != StageBuilding {
		return nil, chainerr.New(chainerr.KindOther, "Assemble: "+ErrWrongStage.Error())
	}
	trxLeaves, _ := b.trxDigests.Digests()
	actionLeaves, _ := b.actionDigests.Digests()
	if len(trxLeaves) == 0 {
		// onblock is always pushed before any user trx, so this indicates a caller bug,
		// not a user-facing failure: guard with a real error rather than a panic since
		// a misconfigured caller (e.g. a test fake) is recoverable input, not a fork-db
		// invariant violation.
		return nil, chainerr.New(chainerr.KindOther, "Assemble: no receipts to commit to a merkle root")
	}
	trxRoot, actionRoot, err := merkle.ParallelRoots(algo, trxLeaves, actionLeaves)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.KindInvalidMerkleRoot, err, "Assemble: merkle computation failed")
	}
	b.trxDigests.Finalize(trxRoot)
	b.actionDigests.Finalize(actionRoot)
	b.header.TransactionMRoot = trxRoot
	b.header.ActionMRoot = actionRoot
	b.header.ScheduleVersion = scheduleVersion
	b.header.NewProducers = newProducers
	b.algo = algo
	b.assembled = true
	b.stage = StageAssembled
	return &Assembled{b: b}, nil
}

// Completed is a fully formed, signed block, already embedded in a new block-state
// node in the fork database.
type Completed struct {
	BlockState chaintypes.BlockStateVariant
	Header     chaintypes.BlockHeader
	Receipts   []chaintypes.TransactionReceipt
	AppliedMetas []*chaintypes.TransactionMeta
}

// ForkDBInserter is the narrow slice of forkdb.Store that Complete needs; kept as an
// interface here so pending never imports forkdb (avoiding a package cycle — forkdb
// does not need to know about pending at all).
type ForkDBInserter interface {
	Add(bs chaintypes.BlockStateVariant, validated bool) error
}

// BlockStateFactory builds the new block-state node from the assembled header plus a
// signature; it is supplied by the caller because only the caller knows which flavor
// (legacy vs finality) and irreversibility bookkeeping this block needs.
type BlockStateFactory func(header chaintypes.BlockHeader, signatures [][]byte) (chaintypes.BlockStateVariant, error)

// Complete signs the assembled header and atomically: constructs the new block-state,
// inserts it into the fork database, and commits its undo session. A
// failure at any point discards everything staged via the deferred rollback below.
func (a *Assembled) Complete(ctx context.Context, sign chainapi.SignerFunc, fdb ForkDBInserter, makeState BlockStateFactory) (c *Completed, err error) {
	b := a.b
	if b.stage != StageAssembled {
		return nil, chainerr.New(chainerr.KindOther, "Complete: "+ErrWrongStage.Error())
	}

	committed := false
	defer func() {
		if !committed {
			if uerr := b.undo.Undo(); uerr != nil {
				b.log.Warn("pending: undo after failed Complete also failed", "err", uerr)
			}
		}
	}()

	digest := headerDigest(b.header)
	sigs, err := sign(ctx, digest)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.KindOther, err, "Complete: signer failed")
	}

	bs, err := makeState(b.header, sigs)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.KindOther, err, "Complete: block-state construction failed")
	}

	if err := fdb.Add(bs, b.mode == ModeProducing); err != nil {
		return nil, chainerr.Wrap(chainerr.KindForkDatabase, err, "Complete: fork-db insert failed")
	}

	if err := b.undo.Commit(); err != nil {
		return nil, chainerr.Wrap(chainerr.KindDatabaseGuard, err, "Complete: undo-session commit failed")
	}
	committed = true

	receipts := make([]chaintypes.TransactionReceipt, len(b.receipts))
	for i, rb := range b.receipts {
		receipts[i] = rb.receipt
	}
	chaintypes.SetCachedTrxMetas(bs, b.appliedMetas)
	b.stage = StageCompleted

	return &Completed{
		BlockState:   bs,
		Header:       b.header,
		Receipts:     receipts,
		AppliedMetas: b.appliedMetas,
	}, nil
}

// Abort is total: it drops the pending slot, rolls back its undo session, and restores
// the transaction queue by re-inserting applied transactions into the unapplied queue
// to be retried next attempt. It is callable from any stage.
func (b *Builder) Abort(q *unapplied.Queue) error {
	if err := b.undo.Undo(); err != nil {
		return chainerr.Wrap(chainerr.KindDatabaseGuard, err, "Abort: undo failed")
	}
	for _, m := range b.appliedMetas {
		_ = q.Push(unapplied.Entry{
			Meta:      m,
			Origin:    unapplied.OriginAborted,
			SizeBytes: len(m.PackedTrx),
		})
	}
	b.stage = StageCompleted // slot is now vacated; caller drops this Builder entirely
	return nil
}

func receiptDigest(r chaintypes.TransactionReceipt) [32]byte {
	return blockcodec.ReceiptDigest(r)
}

func headerDigest(h chaintypes.BlockHeader) [32]byte {
	return blockcodec.HeaderDigest(h)
}
