// Package irreversibility implements the last-irreversible-block (LIB) advance loop:
// computing the newly-final branch, serializing it in parallel, appending it to the
// durable block log, committing DB revisions, and pruning the fork database's root.
package irreversibility

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	log "github.com/erigontech/erigon-lib/log/v3"

	"github.com/ledgerd-io/ledgerd/blockcodec"
	"github.com/ledgerd-io/ledgerd/blocklog"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/forkdb"
)

// ApplyFunc applies bs if it has not already been applied; used only when the read-mode
// is irreversible, where blocks on the soon-to-be-pruned branch may not yet have run
// through the pipeline.
type ApplyFunc func(ctx context.Context, bs chaintypes.BlockStateVariant) error

// MarshalFunc converts an already-applied block state into its wire form for the block
// log, given whatever receipts/signatures the pipeline produced for it.
type MarshalFunc func(bs chaintypes.BlockStateVariant) (blockcodec.Signed, error)

// CommitFunc commits bs's DB revision once it is irreversible.
type CommitFunc func(ctx context.Context, bs chaintypes.BlockStateVariant) error

// NotifyFunc is invoked once per appended block, carrying the irreversible_block
// signal to subscribers.
type NotifyFunc func(bs chaintypes.BlockStateVariant)

// Driver owns the block log and drives LIB advances against a fork database.
type Driver struct {
	Log      *blocklog.Log
	Marshal  MarshalFunc
	Apply    ApplyFunc
	Commit   CommitFunc
	Notify   NotifyFunc
	LogField log.Logger

	// irreversibleReadMode mirrors forkdb.Store's read-mode clamp; set by the window
	// controller.
	IrreversibleReadMode bool
}

// AdvanceLIB moves the last-irreversible block forward to newLIB:
//  1. compute the branch from the current head down to newLIB
//  2. for each block oldest-first: apply it first if in irreversible read-mode and not
//     already applied, else just use it as-is; serialize it (in parallel, at most
//     GOMAXPROCS blocks at a time); append to
//     the block log; commit its DB revision; advance the fork-db root to it
//  3. emit irreversible_block per appended block
//
// A failure partway through aborts the remaining blocks but leaves the already-appended
// prefix durable — it does not roll back prior appends.
func (d *Driver) AdvanceLIB(ctx context.Context, fdb *forkdb.Store, newLIB chaintypes.BlockID) error {
	head := fdb.Head()
	if head == nil {
		return fmt.Errorf("irreversibility: fork database has no head")
	}

	branch := fdb.FetchBranch(head.ID(), newLIB.Num())
	reverseBlockStates(branch) // FetchBranch is youngest-first; we need oldest-first

	if d.IrreversibleReadMode {
		for _, bs := range branch {
			if err := d.Apply(ctx, bs); err != nil {
				return fmt.Errorf("irreversibility: applying %s before append: %w", bs.ID(), err)
			}
		}
	}

	serialized := make([]blockcodec.Signed, len(branch))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, bs := range branch {
		i, bs := i, bs
		g.Go(func() error {
			blk, err := d.Marshal(bs)
			if err != nil {
				return fmt.Errorf("irreversibility: marshaling %s: %w", bs.ID(), err)
			}
			serialized[i] = blk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, bs := range branch {
		if err := d.Log.Append(bs.ID().Num(), bs.ID(), serialized[i]); err != nil {
			return fmt.Errorf("irreversibility: appending %s: %w", bs.ID(), err)
		}
		if err := d.Commit(ctx, bs); err != nil {
			return fmt.Errorf("irreversibility: committing %s: %w", bs.ID(), err)
		}
		if err := fdb.AdvanceRoot(bs.ID()); err != nil {
			return fmt.Errorf("irreversibility: advancing root to %s: %w", bs.ID(), err)
		}
		if d.Notify != nil {
			d.Notify(bs)
		}
	}

	return nil
}

func reverseBlockStates(bs []chaintypes.BlockStateVariant) {
	for i, j := 0, len(bs)-1; i < j; i, j = i+1, j-1 {
		bs[i], bs[j] = bs[j], bs[i]
	}
}
