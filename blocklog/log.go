// Package blocklog implements the durable, append-only block log: {block_size,
// block_bytes, block_id} records on disk plus a bbolt-backed block_num -> offset index,
// guarded against concurrent writers from another process by a file lock.
package blocklog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/ledgerd-io/ledgerd/blockcodec"
	"github.com/ledgerd-io/ledgerd/chaintypes"
)

const logFileName = "blocks.log"

// Log is the append-only block log file. The log head's block_num always equals the
// last-irreversible block number at the moment of append — callers must not append a
// block until irreversibility.AdvanceLIB has accepted it.
type Log struct {
	mu    sync.Mutex
	file  *os.File
	lock  *flock.Flock
	index *Index
}

// Open opens (creating if absent) the block log and its companion index under dir.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blocklog: mkdir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, logFileName+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("blocklog: acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("blocklog: %s is already open by another process", dir)
	}

	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("blocklog: open log file: %w", err)
	}

	idx, err := OpenIndex(filepath.Join(dir, "blocks.index"))
	if err != nil {
		f.Close()
		lock.Unlock()
		return nil, fmt.Errorf("blocklog: open index: %w", err)
	}

	return &Log{file: f, lock: lock, index: idx}, nil
}

// Close releases the log file, its index, and the process lock.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err1 := l.index.Close()
	err2 := l.file.Close()
	err3 := l.lock.Unlock()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}

// Append writes blk as the next record and indexes its offset under its block number.
// The caller guarantees num equals the current last-irreversible block.
func (l *Log) Append(num chaintypes.BlockNum, id chaintypes.BlockID, blk blockcodec.Signed) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	offset, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("blocklog: seek: %w", err)
	}

	body := blockcodec.Encode(blk)
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(body)))

	if _, err := l.file.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("blocklog: write size: %w", err)
	}
	if _, err := l.file.Write(body); err != nil {
		return fmt.Errorf("blocklog: write body: %w", err)
	}
	if _, err := l.file.Write(id[:]); err != nil {
		return fmt.Errorf("blocklog: write id: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("blocklog: fsync: %w", err)
	}

	return l.index.Put(num, id, uint64(offset))
}

// Get reads the block recorded at num, validating that its stored id matches expected.
func (l *Log) Get(num chaintypes.BlockNum) (blockcodec.Signed, chaintypes.BlockID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	offset, storedID, ok := l.index.Lookup(num)
	if !ok {
		return blockcodec.Signed{}, chaintypes.BlockID{}, fmt.Errorf("blocklog: block %d not found", num)
	}

	var sizeBuf [4]byte
	if _, err := l.file.ReadAt(sizeBuf[:], int64(offset)); err != nil {
		return blockcodec.Signed{}, chaintypes.BlockID{}, fmt.Errorf("blocklog: read size: %w", err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])

	body := make([]byte, size)
	if _, err := l.file.ReadAt(body, int64(offset)+4); err != nil {
		return blockcodec.Signed{}, chaintypes.BlockID{}, fmt.Errorf("blocklog: read body: %w", err)
	}

	var trailerID chaintypes.BlockID
	if _, err := l.file.ReadAt(trailerID[:], int64(offset)+4+int64(size)); err != nil {
		return blockcodec.Signed{}, chaintypes.BlockID{}, fmt.Errorf("blocklog: read trailer id: %w", err)
	}
	if trailerID != storedID {
		return blockcodec.Signed{}, chaintypes.BlockID{}, fmt.Errorf("blocklog: corrupt record at block %d: trailer id mismatch", num)
	}

	blk, err := blockcodec.Decode(body)
	if err != nil {
		return blockcodec.Signed{}, chaintypes.BlockID{}, fmt.Errorf("blocklog: decode: %w", err)
	}
	return blk, storedID, nil
}

// HeadBlockNum returns the highest block number recorded, or 0 if the log is empty.
func (l *Log) HeadBlockNum() chaintypes.BlockNum {
	return l.index.Head()
}

// FirstBlockNum returns the lowest block number recorded.
func (l *Log) FirstBlockNum() chaintypes.BlockNum {
	return l.index.First()
}
