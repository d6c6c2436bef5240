// Package chaintest provides in-memory fakes for every external collaborator the block
// controller reaches through but never implements: the chain-state KV
// store's nested undo sessions, the WASM engine, the authorization checker, and a
// signer. They exist solely to drive end-to-end scenarios without a real state
// database or WASM runtime.
package chaintest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ledgerd-io/ledgerd/chainapi"
)

// FakeKVStore is a minimal nested-undo-session tracker: it does not store actual
// key-value data (nothing in this module reads or writes chain state directly — that
// is the WASM engine's job), but it faithfully reproduces the revision-counter
// semantics the controller's commit/abort invariants depend on.
type FakeKVStore struct {
	mu       sync.Mutex
	revision uint64
	stack    []*FakeUndoSession
}

func NewFakeKVStore() *FakeKVStore { return &FakeKVStore{} }

func (s *FakeKVStore) BeginSession(ctx context.Context) (chainapi.UndoSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &FakeUndoSession{store: s, startRevision: s.revision}
	s.stack = append(s.stack, sess)
	return sess, nil
}

func (s *FakeKVStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// UndoAll discards every open session down to the root, used when a fatal error
// forces a full rollback.
func (s *FakeKVStore) UndoAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) > 0 {
		s.revision = s.stack[0].startRevision
	}
	s.stack = nil
	return nil
}

// Write simulates a mutation within the currently open session, advancing the global
// revision counter. Tests call this directly; it has no counterpart on the
// chainapi.UndoSession interface because nothing in the controller itself performs
// key-value writes.
func (s *FakeKVStore) Write() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++
}

var errSessionNotOnTop = errors.New("chaintest: session is not the innermost open session")

// FakeUndoSession is one nested session on a FakeKVStore's stack.
type FakeUndoSession struct {
	store         *FakeKVStore
	startRevision uint64
	closed        bool
}

// Squash merges this session into its parent: it simply pops itself off the stack,
// leaving the revision counter (and any writes it made) in place for the new top.
func (u *FakeUndoSession) Squash() error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if err := u.popLocked(); err != nil {
		return err
	}
	u.closed = true
	return nil
}

// Commit pops this session and every ancestor, making all writes durable.
func (u *FakeUndoSession) Commit() error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for len(u.store.stack) > 0 {
		top := u.store.stack[len(u.store.stack)-1]
		u.store.stack = u.store.stack[:len(u.store.stack)-1]
		if top == u {
			u.closed = true
			return nil
		}
	}
	return errSessionNotOnTop
}

// Undo discards this session's writes by restoring the revision counter to what it was
// when the session opened, then pops it.
func (u *FakeUndoSession) Undo() error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if err := u.popLocked(); err != nil {
		return err
	}
	u.store.revision = u.startRevision
	u.closed = true
	return nil
}

func (u *FakeUndoSession) popLocked() error {
	n := len(u.store.stack)
	if n == 0 || u.store.stack[n-1] != u {
		return errSessionNotOnTop
	}
	u.store.stack = u.store.stack[:n-1]
	return nil
}

func (u *FakeUndoSession) Revision() uint64 { return u.store.Revision() }

// FakeWASMEngine executes every action as an immediate success with a configurable CPU
// cost and an optional per-receiver hook, letting tests model specific contracts (e.g.
// Scenario D's infinite loop) without a real WASM runtime.
type FakeWASMEngine struct {
	mu        sync.Mutex
	CPUCostUS uint32
	Hook      func(ctx context.Context, actionCtx chainapi.ActionContext) (chainapi.ExecResult, error)
}

func NewFakeWASMEngine(cpuCostUS uint32) *FakeWASMEngine {
	return &FakeWASMEngine{CPUCostUS: cpuCostUS}
}

func (e *FakeWASMEngine) Execute(ctx context.Context, codeHash [32]byte, actionCtx chainapi.ActionContext) (chainapi.ExecResult, error) {
	e.mu.Lock()
	hook := e.Hook
	cost := e.CPUCostUS
	e.mu.Unlock()
	if hook != nil {
		return hook(ctx, actionCtx)
	}
	return chainapi.ExecResult{ReturnData: actionCtx.Data, CPUUsedUS: cost}, nil
}

// SpinningWASMEngine never returns until ctx is done, modeling Scenario D's
// indefinitely-looping transaction so the caller's deadline is what ends the call.
type SpinningWASMEngine struct {
	CPUUsedPerTickUS uint32
}

func (e *SpinningWASMEngine) Execute(ctx context.Context, codeHash [32]byte, actionCtx chainapi.ActionContext) (chainapi.ExecResult, error) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	var used uint32
	for {
		select {
		case <-ctx.Done():
			if used == 0 {
				used = e.CPUUsedPerTickUS // at least one tick is always attributed
			}
			return chainapi.ExecResult{CPUUsedUS: used}, ctx.Err()
		case <-ticker.C:
			used += e.CPUUsedPerTickUS
		}
	}
}

// FakeAuthChecker accepts everything unless AlwaysFail is set, letting tests exercise
// the authorization-kind failure path without a real key/permission graph.
type FakeAuthChecker struct {
	AlwaysFail bool
}

func (a *FakeAuthChecker) Check(ctx context.Context, actions []chainapi.ActionContext, recoveredKeys [][]byte, delay time.Duration) error {
	if a.AlwaysFail {
		return errors.New("chaintest: authorization always fails")
	}
	return nil
}

// FakeSigner returns a deterministic, test-only "signature" derived from the digest —
// not cryptographically meaningful, only distinguishable between blocks.
func FakeSigner(ctx context.Context, digest [32]byte) ([][]byte, error) {
	sig := append([]byte(nil), digest[:]...)
	return [][]byte{sig}, nil
}
