package resourcelimits

import (
	"testing"
	"time"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

func TestSubjectiveLedgerChargeAndDecay(t *testing.T) {
	l := NewSubjectiveLedger(1) // 1-minute half-life
	acct := chaintypes.AccountName(1)
	now := time.Now()

	l.Charge(acct, 1000, now)
	if got := l.Balance(acct, now); got != 1000 {
		t.Fatalf("Balance = %d, want 1000", got)
	}

	later := now.Add(time.Minute)
	if got := l.Balance(acct, later); got == 0 || got >= 1000 {
		t.Fatalf("Balance after one half-life = %d, want roughly half of 1000", got)
	}
}

func TestSubjectiveLedgerLongIdleClearsEntry(t *testing.T) {
	l := NewSubjectiveLedger(1)
	acct := chaintypes.AccountName(2)
	now := time.Now()
	l.Charge(acct, 5000, now)

	farFuture := now.Add(100 * time.Minute)
	if got := l.Balance(acct, farFuture); got != 0 {
		t.Fatalf("Balance after long idle = %d, want 0", got)
	}
}

func TestFailureLimiterExceeded(t *testing.T) {
	f := NewFailureLimiter(2, 10)
	acct := chaintypes.AccountName(1)
	if f.Exceeded(acct) {
		t.Fatal("should not be exceeded before any failures")
	}
	f.RecordFailure(acct)
	f.RecordFailure(acct)
	if !f.Exceeded(acct) {
		t.Fatal("should be exceeded after reaching max failures")
	}
}

func TestFailureLimiterRollWindowResets(t *testing.T) {
	f := NewFailureLimiter(1, 5)
	acct := chaintypes.AccountName(1)
	f.RollWindow(0)
	f.RecordFailure(acct)
	if !f.Exceeded(acct) {
		t.Fatal("expected exceeded after one failure with max 1")
	}
	f.RollWindow(10) // window size 5, elapsed 10 >= 5, should reset
	if f.Exceeded(acct) {
		t.Fatal("expected counters reset after window rolled")
	}
}
