// Package pipeline implements the transaction execution pipeline: deadline tracking,
// subjective-then-objective billing, the node-local whitelist/blacklist screen, and the
// exception-safe scope guard that rolls back a failed push without disturbing the
// pending block around it. It does not create or schedule deferred transactions.
package pipeline

import (
	"context"
	"time"

	log "github.com/erigontech/erigon-lib/log/v3"

	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/resourcelimits"
)

// Options gathers the per-push knobs the scheduler derives from chainapi.Limits and the
// current block's timing.
type Options struct {
	Deadline              time.Time
	SubjectiveCPULeewayUS uint64
	DisableSubjectiveBilling bool
	BlockNum              chaintypes.BlockNum
}

// Deps is the pipeline's fixed set of collaborators, all supplied from outside.
type Deps struct {
	WASM           chainapi.WASMEngine
	Auth           chainapi.AuthChecker
	Objective      resourcelimits.Manager
	Subjective     *resourcelimits.SubjectiveLedger
	FailureLimiter *resourcelimits.FailureLimiter
	Restrictions   *Restrictions
	Log            log.Logger
}

// Result is everything a successful push produces for the caller (pending.Builder) to
// fold into the block.
type Result struct {
	Receipt       chaintypes.TransactionReceipt
	Meta          *chaintypes.TransactionMeta
	ActionDigests [][32]byte
}

// Push executes one transaction end to end against budget, which it mutates on success.
// On any failure it returns a *chainerr.Error tagged with the exact
// kind from the chainerr taxonomy, and budget is left as it was on entry. Failures
// found before execution starts (failure limiter, restrictions, deadline, exhausted
// budget, subjective pre-check) return without touching session; any later failure
// undoes session through the scopeGuard's deferred rollback.
func Push(ctx context.Context, deps Deps, session chainapi.UndoSession, budget *Budget,
	opts Options, meta *chaintypes.TransactionMeta, actions []chainapi.ActionContext) (Result, error) {

	if deps.Log == nil {
		deps.Log = log.Root()
	}

	if opts.BlockNum > 0 {
		deps.FailureLimiter.RollWindow(opts.BlockNum)
	}
	if deps.FailureLimiter.Exceeded(meta.FirstAuthorizer) {
		return Result{}, chainerr.New(chainerr.KindCPUUsageExceededSubjective,
			"push: first authorizer over local failure ceiling")
	}

	// The whitelist/blacklist screen only ever refuses user-submitted input; implicit
	// and scheduled transactions were admitted by consensus, not by this node.
	if deps.Restrictions != nil && meta.Type == chaintypes.TrxInput {
		if err := deps.Restrictions.Check(meta, actions); err != nil {
			return Result{}, err
		}
	}

	now := time.Now()
	if !opts.Deadline.IsZero() && now.After(opts.Deadline) {
		return Result{}, chainerr.New(chainerr.KindDeadline, "push: deadline already elapsed")
	}

	if budget.Exhausted() {
		return Result{}, chainerr.New(chainerr.KindBlockCPUExhausted, "push: block budget exhausted")
	}

	// Step 2: subjective pre-check before any WASM execution is attempted, so a
	// repeatedly-failing account is refused cheaply.
	if !opts.DisableSubjectiveBilling {
		bal := deps.Subjective.Balance(meta.FirstAuthorizer, now)
		if bal > 0 && bal+opts.SubjectiveCPULeewayUS > uint64(budget.CPUUsageUS) {
			return Result{}, chainerr.New(chainerr.KindCPUUsageExceededSubjective,
				"push: subjective ledger balance exceeds remaining budget plus leeway")
		}
	}

	guard := newScopeGuard(session, *budget)
	committed := false
	defer func() {
		if !committed {
			if err := guard.rollback(); err != nil {
				deps.Log.Warn("pipeline: rollback after failed push also failed", "err", err)
			}
			*budget = guard.restoreBudget()
		}
	}()

	if err := deps.Auth.Check(ctx, actions, meta.RecoveredKeys, 0); err != nil {
		if !meta.Type.IsTransient() {
			deps.FailureLimiter.RecordFailure(meta.FirstAuthorizer)
		}
		return Result{}, chainerr.Wrap(chainerr.KindAuthorization, err, "push: authorization check failed")
	}

	var cpuUsedUS uint64
	var actionDigests [][32]byte
	status := chaintypes.ReceiptExecuted
	for _, act := range actions {
		res, err := deps.WASM.Execute(ctx, [32]byte{}, act)
		if err != nil {
			deps.FailureLimiter.RecordFailure(meta.FirstAuthorizer)
			if !opts.DisableSubjectiveBilling {
				deps.Subjective.Charge(meta.FirstAuthorizer, uint64(cpuUsedUS)+uint64(res.CPUUsedUS), now)
			}
			return Result{}, chainerr.Wrap(chainerr.KindOther, err, "push: action execution failed")
		}
		cpuUsedUS += uint64(res.CPUUsedUS)
		actionDigests = append(actionDigests, digestActionResult(res))

		if !opts.Deadline.IsZero() && time.Now().After(opts.Deadline) {
			status = ReceiptStatusForDeadline(meta.Type)
			break
		}
	}

	netUsageBytes := uint64(len(meta.PackedTrx))
	if !budget.Fits(cpuUsedUS, netUsageBytes) {
		return Result{}, chainerr.New(chainerr.KindBlockCPUExhausted,
			"push: transaction would exceed remaining block budget")
	}

	if deps.Objective != nil && !meta.Type.IsTransient() {
		deps.Objective.ChargeObjective(meta.FirstAuthorizer, cpuUsedUS, netWords(netUsageBytes))
	}

	budget.Reserve(cpuUsedUS, netUsageBytes)

	if err := guard.commit(); err != nil {
		return Result{}, chainerr.Wrap(chainerr.KindDatabaseGuard, err, "push: session squash failed")
	}
	committed = true

	meta.BilledCPUTimeUS = uint32(cpuUsedUS)
	meta.Accepted = true

	receipt := chaintypes.TransactionReceipt{
		Status:        status,
		CPUUsageUS:    uint32(cpuUsedUS),
		NetUsageWords: uint32(netWords(netUsageBytes)),
		Trx:           chaintypes.PackedTrx(meta.PackedTrx),
	}

	return Result{Receipt: receipt, Meta: meta, ActionDigests: actionDigests}, nil
}

// ReceiptStatusForDeadline picks soft-fail vs delayed depending on whether the
// transaction may be retried in a later block.
func ReceiptStatusForDeadline(t chaintypes.TrxType) chaintypes.ReceiptStatus {
	if t == chaintypes.TrxScheduled {
		return chaintypes.ReceiptDelayed
	}
	return chaintypes.ReceiptSoftFail
}

func digestActionResult(r chainapi.ExecResult) [32]byte {
	var out [32]byte
	copy(out[:], r.ReturnData)
	return out
}

func netWords(bytes uint64) uint64 {
	return (bytes + 7) / 8
}
