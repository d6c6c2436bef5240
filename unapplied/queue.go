// Package unapplied implements the node-local ordered multi-index of transactions to
// retry in future blocks. It is indexed by id and by
// expiration, segmented by origin, and bounded by a configured byte budget.
package unapplied

import (
	"errors"
	"sync"

	"github.com/google/btree"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// Origin records where an unapplied entry came from, so a fork switch can
// distinguish forked-out transactions from ones the local node already had queued.
type Origin uint8

const (
	OriginForked Origin = iota
	OriginAborted
	OriginIncomingAPI
	OriginIncomingP2P
)

var ErrQueueFull = errors.New("unapplied: byte budget exceeded")

// Entry is one queued transaction plus queue bookkeeping.
type Entry struct {
	Meta      *chaintypes.TransactionMeta
	Origin    Origin
	SizeBytes int
}

type expirationKey struct {
	expiration chaintypes.BlockTimestamp
	id         [32]byte
}

func lessExpiration(a, b expirationKey) bool {
	if a.expiration != b.expiration {
		return a.expiration < b.expiration
	}
	for i := range a.id {
		if a.id[i] != b.id[i] {
			return a.id[i] < b.id[i]
		}
	}
	return false
}

// Queue is safe for concurrent use by a single writer (the app thread) and read-only
// inspection by others; the app thread is the sole mutator.
type Queue struct {
	mu         sync.Mutex
	byID       map[[32]byte]*Entry
	byExpiry   *btree.BTreeG[expirationKey]
	maxBytes   int
	usedBytes  int
}

func NewQueue(maxBytes int) *Queue {
	return &Queue{
		byID:     make(map[[32]byte]*Entry),
		byExpiry: btree.NewG(32, lessExpiration),
		maxBytes: maxBytes,
	}
}

// Push inserts a transaction into the queue. Overflow (byte budget exceeded) rejects
// the newcomer rather than evicting an existing entry.
func (q *Queue) Push(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[e.Meta.ID]; exists {
		return nil // duplicate push is a no-op, never an error
	}
	if q.usedBytes+e.SizeBytes > q.maxBytes {
		return ErrQueueFull
	}
	q.byID[e.Meta.ID] = &e
	q.byExpiry.ReplaceOrInsert(expirationKey{expiration: e.Meta.Expiration, id: e.Meta.ID})
	q.usedBytes += e.SizeBytes
	return nil
}

// Remove drops an entry by id, e.g. once it has been successfully re-applied.
func (q *Queue) Remove(id [32]byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[id]
	if !ok {
		return
	}
	q.byExpiry.Delete(expirationKey{expiration: e.Meta.Expiration, id: id})
	delete(q.byID, id)
	q.usedBytes -= e.SizeBytes
}

// EvictExpired drops every entry whose expiration is at or before now, returning how
// many were removed.
func (q *Queue) EvictExpired(now chaintypes.BlockTimestamp) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var toRemove []expirationKey
	q.byExpiry.Ascend(func(k expirationKey) bool {
		if k.expiration > now {
			return false
		}
		toRemove = append(toRemove, k)
		return true
	})
	for _, k := range toRemove {
		if e, ok := q.byID[k.id]; ok {
			q.usedBytes -= e.SizeBytes
			delete(q.byID, k.id)
		}
		q.byExpiry.Delete(k)
	}
	return len(toRemove)
}

// Drain calls f for each entry in expiration order until f returns false or the queue
// is exhausted; f returning false stops the scan without removing the current entry
// (the caller decides whether to Remove it on success). This backs scheduler's
// drainUnapplied.
func (q *Queue) Drain(f func(*Entry) (keepGoing bool)) {
	q.mu.Lock()
	keys := make([]expirationKey, 0, len(q.byID))
	q.byExpiry.Ascend(func(k expirationKey) bool {
		keys = append(keys, k)
		return true
	})
	q.mu.Unlock()

	for _, k := range keys {
		q.mu.Lock()
		e, ok := q.byID[k.id]
		q.mu.Unlock()
		if !ok {
			continue
		}
		if !f(e) {
			return
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}

func (q *Queue) UsedBytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.usedBytes
}
