// Package forkdb is the in-memory DAG of all known reversible block states, keyed by
// id, with indices by previous-id and by block number, branch traversal, and pruning.
package forkdb

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintypes"
)

var (
	ErrDuplicate      = errors.New("forkdb: duplicate block id")
	ErrUnlinkable     = errors.New("forkdb: previous_id not present and not root")
	ErrNotFound       = errors.New("forkdb: block not found")
	ErrBelowRoot      = errors.New("forkdb: new root must be the last-irreversible block or a successor")
	ErrRootInvariant  = errors.New("forkdb: operation would orphan a block reachable only through root")
)

// Store is the fork database. The app thread is its sole mutator.
type Store struct {
	mu sync.RWMutex

	byID       map[chaintypes.BlockID]chaintypes.BlockStateVariant
	byPrevious map[chaintypes.BlockID][]chaintypes.BlockID
	byNumber   map[chaintypes.BlockNum][]chaintypes.BlockID

	root chaintypes.BlockID
	head chaintypes.BlockID

	// irreversibleMode clamps Head() to root and treats PendingHead() as the longest
	// preferred tip.
	irreversibleMode bool

	trxMetaCache *lru.Cache[chaintypes.BlockID, []*chaintypes.TransactionMeta]
}

// New constructs an empty fork database rooted at root. The root block is always
// finalized; nothing below it may be added.
func New(root chaintypes.BlockStateVariant, trxMetaCacheSize int) (*Store, error) {
	if trxMetaCacheSize <= 0 {
		trxMetaCacheSize = 64
	}
	cache, err := lru.New[chaintypes.BlockID, []*chaintypes.TransactionMeta](trxMetaCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Store{
		byID:         map[chaintypes.BlockID]chaintypes.BlockStateVariant{root.ID(): root},
		byPrevious:   make(map[chaintypes.BlockID][]chaintypes.BlockID),
		byNumber:     map[chaintypes.BlockNum][]chaintypes.BlockID{root.ID().Num(): {root.ID()}},
		root:         root.ID(),
		head:         root.ID(),
		trxMetaCache: cache,
	}
	root.SetValidated(true)
	return s, nil
}

// Add inserts bs. It errors with ErrDuplicate if id is already present, ErrUnlinkable
// if previous_id is absent and not the root.
func (s *Store) Add(bs chaintypes.BlockStateVariant, validated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := bs.ID()
	if _, exists := s.byID[id]; exists {
		return chainerr.Wrap(chainerr.KindDuplicateBlock, ErrDuplicate, id.String())
	}
	prev := bs.PreviousID()
	if prev != s.root {
		if _, ok := s.byID[prev]; !ok {
			return chainerr.Wrap(chainerr.KindUnlinkableBlock, ErrUnlinkable, id.String())
		}
	}
	bs.SetValidated(validated)
	s.byID[id] = bs
	s.byPrevious[prev] = append(s.byPrevious[prev], id)
	s.byNumber[id.Num()] = append(s.byNumber[id.Num()], id)

	s.recomputeHeadLocked()
	return nil
}

// Get returns the block state for id.
func (s *Store) Get(id chaintypes.BlockID) (chaintypes.BlockStateVariant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bs, ok := s.byID[id]
	return bs, ok
}

// GetByPrevious returns every known block whose previous_id is prev.
func (s *Store) GetByPrevious(prev chaintypes.BlockID) []chaintypes.BlockStateVariant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPrevious[prev]
	out := make([]chaintypes.BlockStateVariant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out
}

// SearchOnBranch walks back from head looking for the block at num.
func (s *Store) SearchOnBranch(head chaintypes.BlockID, num chaintypes.BlockNum) (chaintypes.BlockStateVariant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.byID[head]
	if !ok {
		return nil, false
	}
	for {
		if cur.ID().Num() == num {
			return cur, true
		}
		if cur.ID().Num() < num || cur.ID() == s.root {
			return nil, false
		}
		next, ok := s.byID[cur.PreviousID()]
		if !ok {
			return nil, false
		}
		cur = next
	}
}

// MarkValid flips the validated bit, which can change head selection.
func (s *Store) MarkValid(id chaintypes.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs, ok := s.byID[id]
	if !ok {
		return chainerr.Wrap(chainerr.KindForkDatabase, ErrNotFound, id.String())
	}
	bs.SetValidated(true)
	s.recomputeHeadLocked()
	return nil
}

// FetchBranch returns the ancestors of "from" whose block number is at most toNum,
// youngest first, stopping short of the root. Advancing LIB uses this to enumerate
// exactly the newly-irreversible blocks between the old root and the new LIB.
func (s *Store) FetchBranch(from chaintypes.BlockID, toNum chaintypes.BlockNum) []chaintypes.BlockStateVariant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chaintypes.BlockStateVariant
	cur, ok := s.byID[from]
	for ok {
		if cur.ID() == s.root {
			break
		}
		if cur.ID().Num() <= toNum {
			out = append(out, cur)
		}
		cur, ok = s.byID[cur.PreviousID()]
	}
	return out
}

// FetchBranchFrom returns (branch_from_common_ancestor_to_a, branch_from_common_ancestor_to_b),
// each youngest-first.
func (s *Store) FetchBranchFrom(a, b chaintypes.BlockID) (toA, toB []chaintypes.BlockStateVariant) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ancestorsA := map[chaintypes.BlockID]int{}
	var chainA []chaintypes.BlockStateVariant
	cur, ok := s.byID[a]
	for i := 0; ok; i++ {
		ancestorsA[cur.ID()] = i
		chainA = append(chainA, cur)
		if cur.ID() == s.root {
			break
		}
		cur, ok = s.byID[cur.PreviousID()]
	}

	var chainB []chaintypes.BlockStateVariant
	cur, ok = s.byID[b]
	commonIdx := -1
	for ok {
		if idx, found := ancestorsA[cur.ID()]; found {
			commonIdx = idx
			break
		}
		chainB = append(chainB, cur)
		if cur.ID() == s.root {
			break
		}
		cur, ok = s.byID[cur.PreviousID()]
	}
	if commonIdx < 0 {
		commonIdx = len(chainA) // no common ancestor found short of root; treat whole chainA as toA
	}
	return chainA[:commonIdx], chainB
}

// AdvanceRoot prunes everything not on the branch ending at newRoot, then deletes the
// old root. Only permitted when newRoot is the last-irreversible block
// or a successor of it — enforced by the caller (irreversibility.AdvanceLIB), which is
// the only legitimate source of monotonically-advancing LIB ids.
func (s *Store) AdvanceRoot(newRoot chaintypes.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newRootState, ok := s.byID[newRoot]
	if !ok {
		return chainerr.Wrap(chainerr.KindForkDatabase, ErrNotFound, newRoot.String())
	}
	if newRootState.ID().Num() < s.byID[s.root].ID().Num() {
		return chainerr.Wrap(chainerr.KindForkDatabase, ErrBelowRoot, newRoot.String())
	}

	// Compute the retained set: everything reachable forward from newRoot.
	keep := map[chaintypes.BlockID]bool{newRoot: true}
	frontier := []chaintypes.BlockID{newRoot}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, child := range s.byPrevious[cur] {
			if !keep[child] {
				keep[child] = true
				frontier = append(frontier, child)
			}
		}
	}

	for id := range s.byID {
		if !keep[id] {
			s.removeLocked(id)
		}
	}
	newRootState.SetValidated(true)
	s.root = newRoot
	s.recomputeHeadLocked()
	return nil
}

// RemoveSubtree deletes id and every descendant reachable from it, used by
// forkswitch when a replayed block fails to apply.
func (s *Store) RemoveSubtree(id chaintypes.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frontier := []chaintypes.BlockID{id}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		frontier = append(frontier, s.byPrevious[cur]...)
		s.removeLocked(cur)
	}
	s.recomputeHeadLocked()
}

// removeLocked deletes a single id from all indices; callers hold s.mu.
func (s *Store) removeLocked(id chaintypes.BlockID) {
	bs, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	prev := bs.PreviousID()
	s.byPrevious[prev] = removeID(s.byPrevious[prev], id)
	if len(s.byPrevious[prev]) == 0 {
		delete(s.byPrevious, prev)
	}
	num := id.Num()
	s.byNumber[num] = removeID(s.byNumber[num], id)
	if len(s.byNumber[num]) == 0 {
		delete(s.byNumber, num)
	}
	s.trxMetaCache.Remove(id)
}

func removeID(ids []chaintypes.BlockID, target chaintypes.BlockID) []chaintypes.BlockID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// recomputeHeadLocked walks every known block and picks the most-preferred as head,
// under the head-preference order. Callers hold s.mu.
func (s *Store) recomputeHeadLocked() {
	var bestID chaintypes.BlockID
	var bestKey preferenceKey
	first := true
	for id, bs := range s.byID {
		k := keyOf(bs)
		if first || morePreferred(k, bestKey) {
			bestKey = k
			bestID = id
			first = false
		}
	}
	s.head = bestID
}

// Head returns the current head; in irreversible read mode it is clamped to the
// last-irreversible block.
func (s *Store) Head() chaintypes.BlockStateVariant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.irreversibleMode {
		return s.byID[s.root]
	}
	return s.byID[s.head]
}

// PendingHead is head in normal mode, or the longest-preferred tip in irreversible
// read mode.
func (s *Store) PendingHead() chaintypes.BlockStateVariant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[s.head]
}

// SetIrreversibleMode toggles the irreversible read-mode clamp on Head.
func (s *Store) SetIrreversibleMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.irreversibleMode = on
}

// Root returns the current root block state.
func (s *Store) Root() chaintypes.BlockStateVariant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[s.root]
}

// CacheTrxMetas stores recovered transaction metadata for id so a later fork switch
// can skip key recovery.
func (s *Store) CacheTrxMetas(id chaintypes.BlockID, metas []*chaintypes.TransactionMeta) {
	s.trxMetaCache.Add(id, metas)
}

// CachedTrxMetas returns any transaction metadata cached for id.
func (s *Store) CachedTrxMetas(id chaintypes.BlockID) ([]*chaintypes.TransactionMeta, bool) {
	return s.trxMetaCache.Get(id)
}

// Len reports how many blocks are currently tracked (for metrics/tests).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
