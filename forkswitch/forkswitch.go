// Package forkswitch implements the fork-switch algorithm: given a new preferred head,
// unwind the current branch back to the common ancestor and replay the new branch,
// rolling back exception-safely if any replayed block fails to apply.
package forkswitch

import (
	"context"
	"fmt"

	log "github.com/erigontech/erigon-lib/log/v3"

	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/forkdb"
)

// ApplyFunc validates and applies bs's transactions against chain state, mirroring what
// the pipeline does during normal production.
type ApplyFunc func(ctx context.Context, bs chaintypes.BlockStateVariant) error

// UnwindFunc reverts bs's effect on chain state, the inverse of ApplyFunc.
type UnwindFunc func(ctx context.Context, bs chaintypes.BlockStateVariant) error

// Switch moves the fork database's effective chain state from its current head to
// newHead:
//  1. find the common ancestor of the current head and newHead
//  2. unwind the current branch down to the common ancestor, in reverse (youngest first)
//  3. apply the new branch's blocks in order (oldest first)
//  4. on an apply failure at block i: remove that block (and its descendants) from the
//     fork database, unwind whatever of the new branch was already applied (0..i-1, in
//     reverse), then reapply the original branch to restore the original head exactly
//     as it was
//  5. on success, the fork database's head naturally reflects newHead via its normal
//     preference recomputation
func Switch(ctx context.Context, fdb *forkdb.Store, newHead chaintypes.BlockID, apply ApplyFunc, unwind UnwindFunc, logger log.Logger) error {
	if logger == nil {
		logger = log.Root()
	}

	current := fdb.Head()
	if current == nil {
		return chainerr.New(chainerr.KindForkDatabase, "forkswitch: fork database has no head")
	}
	if current.ID() == newHead {
		return nil
	}

	toUnwind, toApply := fdb.FetchBranchFrom(current.ID(), newHead)
	// toUnwind is youngest-first down to (exclusive of) the common ancestor;
	// toApply is youngest-first too, so reverse it to apply oldest-first.
	reverse(toApply)

	for _, bs := range toUnwind {
		if err := unwind(ctx, bs); err != nil {
			return chainerr.Wrap(chainerr.KindForkDatabase, err, "forkswitch: unwind failed")
		}
	}

	for i, bs := range toApply {
		if err := apply(ctx, bs); err != nil {
			logger.Warn("forkswitch: apply failed mid-switch, rolling back", "block", bs.ID().String(), "err", err)
			fdb.RemoveSubtree(bs.ID())

			// Unwind whatever of the new branch was already applied, in reverse.
			for j := i - 1; j >= 0; j-- {
				if uerr := unwind(ctx, toApply[j]); uerr != nil {
					logger.Error("forkswitch: rollback unwind also failed; fork database may be inconsistent", "block", toApply[j].ID().String(), "err", uerr)
				}
			}

			// Reapply the original branch, oldest-first, to restore the original head.
			original := append([]chaintypes.BlockStateVariant(nil), toUnwind...)
			reverse(original)
			for _, obs := range original {
				if rerr := apply(ctx, obs); rerr != nil {
					logger.Error("forkswitch: could not restore original head after failed switch", "block", obs.ID().String(), "err", rerr)
					return fmt.Errorf("forkswitch: switch to %s failed (%w) and restoring original head also failed: %v", newHead, err, rerr)
				}
			}
			return fmt.Errorf("forkswitch: switch to %s failed, original head restored: %w", newHead, err)
		}
	}

	return nil
}

func reverse(bs []chaintypes.BlockStateVariant) {
	for i, j := 0, len(bs)-1; i < j; i, j = i+1, j-1 {
		bs[i], bs[j] = bs[j], bs[i]
	}
}
