// Package chainapi defines every boundary the block controller reaches through but
// never implements itself: the WASM execution engine, the authorization checker, the
// chain-state KV database's nested-undo sessions, and the signer callback. These are
// given collaborators — concrete implementations live outside this
// module; chaintest provides in-memory fakes for tests.
package chainapi

import (
	"context"
	"time"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// UndoSession is a nested database transaction that can be squashed into its parent or
// discarded. A dropped session without Squash or
// Undo is equivalent to Undo — callers enforce this with a defer, not a finalizer.
type UndoSession interface {
	// Squash merges this session's writes into its parent, keeping them pending.
	Squash() error
	// Commit makes this session's writes (and all ancestors' squashed writes) durable.
	Commit() error
	// Undo discards this session's writes.
	Undo() error
	// Revision returns the database's current revision counter. After a successful
	// block commit it equals the block number; after an abort it equals the
	// pre-start revision.
	Revision() uint64
}

// KVStore is the minimal shape the chain-state KV database exposes to the controller.
// The real implementation (ordered multi-indices, nested undo sessions) lives outside
// this module entirely; this interface is the seam.
type KVStore interface {
	BeginSession(ctx context.Context) (UndoSession, error)
	Revision() uint64
	UndoAll() error
}

// ActionContext is the opaque input the WASM engine consumes for one action invocation.
type ActionContext struct {
	Receiver  chaintypes.AccountName
	Data      []byte
	Authorizations []chaintypes.AccountName
}

// ExecResult is what the WASM engine returns for one action.
type ExecResult struct {
	ReturnData []byte
	CPUUsedUS  uint32
}

// WASMEngine executes one action's code.
type WASMEngine interface {
	Execute(ctx context.Context, codeHash [32]byte, actionCtx ActionContext) (ExecResult, error)
}

// AuthChecker validates that a set of actions is authorized by the recovered keys,
// honoring any declared delay.
type AuthChecker interface {
	Check(ctx context.Context, actions []ActionContext, recoveredKeys [][]byte, delay time.Duration) error
}

// SignerFunc receives a block header digest and returns one or more signatures,
// invoked by pending.Assembled.Complete.
type SignerFunc func(ctx context.Context, digest [32]byte) ([][]byte, error)

// ReadOnlySession is a read-only view of committed state, handed to a read-window
// worker; it must never be mutated.
type ReadOnlySession interface {
	KVStore
	Close() error
}

// KeyRecoveryPool recovers signing keys from a transaction's signatures, one of the
// controller's bounded worker pools.
type KeyRecoveryPool interface {
	Recover(ctx context.Context, packedTrx []byte) ([][]byte, error)
}

// Limits is the controller's full enumerated configuration surface. No file format is
// parsed by this module (configuration parsing is an explicit Non-goal); callers build
// this struct directly or bind it to CLI flags (see cmd/ledgerd).
type Limits struct {
	MaxTransactionTimeMS                   uint32
	MaxIrreversibleBlockAgeS               int32
	ProduceTimeOffsetUS                    int32
	LastBlockTimeOffsetUS                  int32
	CPUEffortPercent                       uint32
	LastBlockCPUEffortPercent              uint32
	MaxBlockCPUUsageThresholdUS            uint32
	MaxBlockNetUsageThresholdBytes         uint32
	MaxScheduledTransactionTimePerBlockMS  uint32
	SubjectiveCPULeewayUS                  uint32
	SubjectiveAccountMaxFailures           uint32
	SubjectiveAccountMaxFailuresWindowSize uint32
	SubjectiveAccountDecayTimeMinutes      uint32
	IncomingDeferRatio                     float64
	IncomingTransactionQueueSizeMB         uint32
	DisableSubjectiveBilling               bool
	DisableSubjectiveP2PBilling            bool
	DisableSubjectiveAPIBilling            bool
	ProducerThreads                        int
	ReadOnlyThreads                        int
	ReadOnlyWriteWindowTimeUS              uint32
	ReadOnlyReadWindowTimeUS               uint32
	TerminateAtBlock                       chaintypes.BlockNum
	SnapshotsDir                           string
	ActorWhitelist                         []chaintypes.AccountName
	ActorBlacklist                         []chaintypes.AccountName
	ContractWhitelist                      []chaintypes.AccountName
	ContractBlacklist                      []chaintypes.AccountName
	ActionBlacklist                        [][2]chaintypes.AccountName
	KeyBlacklist                           [][]byte
	TrustedProducers                       []chaintypes.AccountName
	TrxMetaCacheSize                       int
}
