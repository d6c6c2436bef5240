package finality

import (
	"encoding/binary"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// FinalizerIndex identifies one local or remote finalizer within the active policy.
type FinalizerIndex uint32

// SafetyRecord is a finalizer's monotonic voting state, persisted durably before a vote
// is broadcast so a crash-and-restart can never double-vote.
// It survives a finalizer key rotation because it is keyed by FinalizerIndex, not by
// public key.
type SafetyRecord struct {
	LastVotedTimestamp chaintypes.BlockTimestamp
	LastVotedBlockNum  chaintypes.BlockNum
	LastLockedBlockNum chaintypes.BlockNum
}

var safetyBucket = []byte("finalizer_safety_records")

// SafetyStore is the durable, bbolt-backed home for every local finalizer's safety
// record. One bucket, keyed by finalizer index.
type SafetyStore struct {
	mu sync.Mutex
	db *bolt.DB
}

func OpenSafetyStore(path string) (*SafetyStore, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("finality: opening safety store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(safetyBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &SafetyStore{db: db}, nil
}

func (s *SafetyStore) Close() error { return s.db.Close() }

// Get returns the current safety record for idx, or the zero record if none exists yet.
func (s *SafetyStore) Get(idx FinalizerIndex) (SafetyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec SafetyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(safetyBucket).Get(idxKey(idx))
		if v == nil {
			return nil
		}
		rec = decodeSafetyRecord(v)
		return nil
	})
	return rec, err
}

// CheckAndAdvance validates the proposed vote against idx's current safety record and,
// if it passes, persists the advanced record durably before
// returning — the caller must not broadcast the vote until this call succeeds.
func (s *SafetyStore) CheckAndAdvance(idx FinalizerIndex, voteTimestamp chaintypes.BlockTimestamp, voteBlockNum, lastQCBlockNum chaintypes.BlockNum) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(safetyBucket)
		var rec SafetyRecord
		if v := bucket.Get(idxKey(idx)); v != nil {
			rec = decodeSafetyRecord(v)
		}

		if voteTimestamp < rec.LastVotedTimestamp {
			return ErrSafetyViolationTimestamp
		}
		if lastQCBlockNum < rec.LastLockedBlockNum {
			return ErrSafetyViolationLocked
		}

		rec.LastVotedTimestamp = voteTimestamp
		rec.LastVotedBlockNum = voteBlockNum
		if lastQCBlockNum > rec.LastLockedBlockNum {
			rec.LastLockedBlockNum = lastQCBlockNum
		}
		return bucket.Put(idxKey(idx), encodeSafetyRecord(rec))
	})
}

func idxKey(idx FinalizerIndex) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(idx))
	return b
}

func encodeSafetyRecord(r SafetyRecord) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], uint32(r.LastVotedTimestamp))
	binary.BigEndian.PutUint32(b[4:8], uint32(r.LastVotedBlockNum))
	binary.BigEndian.PutUint32(b[8:12], uint32(r.LastLockedBlockNum))
	return b
}

func decodeSafetyRecord(b []byte) SafetyRecord {
	if len(b) < 12 {
		return SafetyRecord{}
	}
	return SafetyRecord{
		LastVotedTimestamp: chaintypes.BlockTimestamp(binary.BigEndian.Uint32(b[0:4])),
		LastVotedBlockNum:  chaintypes.BlockNum(binary.BigEndian.Uint32(b[4:8])),
		LastLockedBlockNum: chaintypes.BlockNum(binary.BigEndian.Uint32(b[8:12])),
	}
}
