// Package resourcelimits implements the node-local, non-consensus accounting the
// pipeline consults: the subjective billing ledger, the per-account failure limiter,
// and the Manager boundary for objective (consensus-critical) account budgets.
package resourcelimits

import (
	"math"
	"sync"
	"time"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// Manager is the objective, consensus-critical per-account CPU/NET budget boundary.
// Only the producing node charges it objectively; a concrete implementation lives alongside the chain-state KV database
// and is out of this module's scope — this is the seam chaintest fakes.
type Manager interface {
	ObjectiveCPUBudgetUS(account chaintypes.AccountName) uint64
	ObjectiveNetBudgetWords(account chaintypes.AccountName) uint64
	ChargeObjective(account chaintypes.AccountName, cpuUS uint64, netWords uint64)
}

// SubjectiveLedger is the per-account accumulator of CPU time attributed to failed or
// pending transactions, decaying exponentially over a configured window. It is never
// part of consensus.
type SubjectiveLedger struct {
	mu         sync.Mutex
	decayHalfLife time.Duration
	billed     map[chaintypes.AccountName]subjectiveEntry
}

type subjectiveEntry struct {
	cpuUS    uint64
	lastSeen time.Time
}

func NewSubjectiveLedger(decayTimeMinutes uint32) *SubjectiveLedger {
	if decayTimeMinutes == 0 {
		decayTimeMinutes = 1
	}
	return &SubjectiveLedger{
		decayHalfLife: time.Duration(decayTimeMinutes) * time.Minute,
		billed:        make(map[chaintypes.AccountName]subjectiveEntry),
	}
}

// Charge attributes cpuUS of failed/pending execution to account, decaying its
// existing balance to now first.
func (l *SubjectiveLedger) Charge(account chaintypes.AccountName, cpuUS uint64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decayLocked(account, now)
	e := l.billed[account]
	e.cpuUS += cpuUS
	e.lastSeen = now
	l.billed[account] = e
}

// Balance returns account's current subjectively-billed CPU time, decayed to now.
func (l *SubjectiveLedger) Balance(account chaintypes.AccountName, now time.Time) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decayLocked(account, now)
	return l.billed[account].cpuUS
}

// decayLocked applies exponential decay with half-life l.decayHalfLife; callers must
// hold l.mu.
func (l *SubjectiveLedger) decayLocked(account chaintypes.AccountName, now time.Time) {
	e, ok := l.billed[account]
	if !ok {
		return
	}
	elapsed := now.Sub(e.lastSeen)
	if elapsed <= 0 {
		return
	}
	halfLives := float64(elapsed) / float64(l.decayHalfLife)
	if halfLives > 64 { // avoid denormal float churn for long-idle accounts
		delete(l.billed, account)
		return
	}
	decayed := float64(e.cpuUS) * math.Pow(0.5, halfLives)
	e.cpuUS = uint64(decayed)
	e.lastSeen = now
	if e.cpuUS == 0 {
		delete(l.billed, account)
		return
	}
	l.billed[account] = e
}
