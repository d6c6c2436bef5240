// Package signal is the block controller's subscriber-callback bus: on_block_start,
// on_accepted_block_header, irreversible_block, and the rest of the controller's
// signal list, each fired synchronously with panicking subscribers recovered and
// logged rather than propagated.
package signal

import (
	"fmt"
	"sync"

	log "github.com/erigontech/erigon-lib/log/v3"
)

// Name identifies one signal channel.
type Name string

const (
	OnBlockStart           Name = "on_block_start"
	OnAcceptedBlockHeader  Name = "on_accepted_block_header"
	OnAcceptedBlock        Name = "on_accepted_block"
	OnIrreversibleBlock    Name = "on_irreversible_block"
	OnAppliedTransaction   Name = "on_applied_transaction"
	OnVotedBlock           Name = "on_voted_block"
	OnBadAlloc             Name = "on_bad_alloc"
)

// Handler receives whatever payload a signal carries; payloads are deliberately
// untyped (any) since each Name's payload shape is fixed by its emitter, not by this
// package.
type Handler func(payload any)

// Bus is a registry of handlers per signal name, safe for concurrent registration and
// emission.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Name][]Handler
	log      log.Logger
}

func NewBus(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.Root()
	}
	return &Bus{handlers: make(map[Name][]Handler), log: logger}
}

// Register adds h as a subscriber to name, returning nothing to unregister by — the
// block controller's signals are all process-lifetime subscriptions.
func (b *Bus) Register(name Name, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Emit fires every handler registered for name, in registration order. A handler that
// panics is recovered and logged; it never aborts the emitter or the remaining
// handlers.
func (b *Bus) Emit(name Name, payload any) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.safeCall(name, h, payload)
	}
}

func (b *Bus) safeCall(name Name, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("signal: subscriber panicked, swallowed", "signal", name, "panic", fmt.Sprint(r))
		}
	}()
	h(payload)
}
