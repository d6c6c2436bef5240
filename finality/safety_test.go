package finality

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *SafetyStore {
	t.Helper()
	s, err := OpenSafetyStore(filepath.Join(t.TempDir(), "safety.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSafetyAdvancesMonotonically(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.CheckAndAdvance(0, 100, 10, 8))
	rec, err := s.Get(0)
	require.NoError(t, err)
	require.EqualValues(t, 100, rec.LastVotedTimestamp)
	require.EqualValues(t, 10, rec.LastVotedBlockNum)
	require.EqualValues(t, 8, rec.LastLockedBlockNum)

	require.NoError(t, s.CheckAndAdvance(0, 101, 11, 9))
	rec, err = s.Get(0)
	require.NoError(t, err)
	require.EqualValues(t, 9, rec.LastLockedBlockNum)
}

func TestSafetyRefusesEarlierTimestamp(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CheckAndAdvance(0, 100, 10, 8))
	err := s.CheckAndAdvance(0, 99, 11, 9)
	require.ErrorIs(t, err, ErrSafetyViolationTimestamp)

	// A refused vote must not have advanced the record.
	rec, err := s.Get(0)
	require.NoError(t, err)
	require.EqualValues(t, 100, rec.LastVotedTimestamp)
}

func TestSafetyRefusesQCOlderThanLock(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CheckAndAdvance(0, 100, 10, 8))
	err := s.CheckAndAdvance(0, 101, 11, 7)
	require.ErrorIs(t, err, ErrSafetyViolationLocked)
}

func TestSafetyRecordsAreIndependentPerFinalizer(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CheckAndAdvance(0, 100, 10, 8))

	// A different finalizer index starts from the zero record.
	require.NoError(t, s.CheckAndAdvance(1, 50, 5, 3))
	rec, err := s.Get(1)
	require.NoError(t, err)
	require.EqualValues(t, 50, rec.LastVotedTimestamp)
}
