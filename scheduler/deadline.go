package scheduler

import (
	"time"

	"github.com/ledgerd-io/ledgerd/chainapi"
)

// Deadline computes the wall-clock point past which the producing node must stop
// pushing transactions into the current block, honoring the configured CPU-effort
// percentage and the produce/last-block time offsets.
func Deadline(limits chainapi.Limits, blockTime time.Time, isLastBlockInSlot bool) time.Time {
	effortPercent := limits.CPUEffortPercent
	offsetUS := limits.ProduceTimeOffsetUS
	if isLastBlockInSlot {
		effortPercent = limits.LastBlockCPUEffortPercent
		offsetUS = limits.LastBlockTimeOffsetUS
	}
	if effortPercent == 0 || effortPercent > 100 {
		effortPercent = 100
	}

	slotUS := int64(time.Duration(limits.MaxTransactionTimeMS) * time.Millisecond / time.Microsecond)
	budgetUS := slotUS * int64(effortPercent) / 100

	deadline := blockTime.Add(time.Duration(offsetUS) * time.Microsecond)
	deadline = deadline.Add(time.Duration(budgetUS) * time.Microsecond)
	return deadline
}

// BlockBudget derives the initial per-block CPU/NET budget from configured thresholds,
// before any transaction has been pushed.
func BlockBudget(limits chainapi.Limits) (cpuUS, netBytes uint64) {
	return uint64(limits.MaxBlockCPUUsageThresholdUS), uint64(limits.MaxBlockNetUsageThresholdBytes)
}

// scheduledDeadline bounds how long draining scheduled (deferred) transactions may run
// within a block, independent of the overall block deadline.
func scheduledDeadline(limits chainapi.Limits, start time.Time) time.Time {
	return start.Add(time.Duration(limits.MaxScheduledTransactionTimePerBlockMS) * time.Millisecond)
}
