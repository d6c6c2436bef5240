package blocklog

import (
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/schema"
)

// Index is the companion bbolt database mapping block_num -> file offset and
// block_id -> block_num, so a requested id can be validated against the record found
// at its expected offset.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens (creating if absent) the index database at path.
func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{schema.BlockNumToOffset, schema.BlockIDToNum, schema.LogMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error { return idx.db.Close() }

// Put records num's file offset and id, and updates the head/first-block meta keys.
// The BlockNumToOffset value is offset(8 bytes big-endian) || id(32 bytes), so a single
// lookup by number yields both the file position and the id to validate the record
// against.
func (idx *Index) Put(num chaintypes.BlockNum, id chaintypes.BlockID, offset uint64) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		numKey := numKey(num)

		val := make([]byte, 8+32)
		binary.BigEndian.PutUint64(val[:8], offset)
		copy(val[8:], id[:])
		if err := tx.Bucket([]byte(schema.BlockNumToOffset)).Put(numKey, val); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(schema.BlockIDToNum)).Put(id[:], numKey); err != nil {
			return err
		}

		meta := tx.Bucket([]byte(schema.LogMeta))
		if meta.Get([]byte(schema.MetaKeyFirstBlockNum)) == nil {
			if err := meta.Put([]byte(schema.MetaKeyFirstBlockNum), numKey); err != nil {
				return err
			}
		}
		return meta.Put([]byte(schema.MetaKeyHeadBlockNum), numKey)
	})
}

// Lookup returns the file offset and block id stored for num.
func (idx *Index) Lookup(num chaintypes.BlockNum) (offset uint64, id chaintypes.BlockID, ok bool) {
	_ = idx.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket([]byte(schema.BlockNumToOffset)).Get(numKey(num))
		if val == nil || len(val) != 8+32 {
			return nil
		}
		offset = binary.BigEndian.Uint64(val[:8])
		copy(id[:], val[8:])
		ok = true
		return nil
	})
	return offset, id, ok
}

// NumForID resolves a block id to its block number, if indexed.
func (idx *Index) NumForID(id chaintypes.BlockID) (chaintypes.BlockNum, bool) {
	var num chaintypes.BlockNum
	var found bool
	_ = idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(schema.BlockIDToNum)).Get(id[:])
		if v == nil {
			return nil
		}
		num = chaintypes.BlockNum(binary.BigEndian.Uint32(v))
		found = true
		return nil
	})
	return num, found
}

func (idx *Index) Head() chaintypes.BlockNum { return idx.metaNum(schema.MetaKeyHeadBlockNum) }
func (idx *Index) First() chaintypes.BlockNum { return idx.metaNum(schema.MetaKeyFirstBlockNum) }

func (idx *Index) metaNum(key string) chaintypes.BlockNum {
	var num chaintypes.BlockNum
	_ = idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(schema.LogMeta)).Get([]byte(key))
		if v == nil {
			return nil
		}
		num = chaintypes.BlockNum(binary.BigEndian.Uint32(v))
		return nil
	})
	return num
}

func numKey(num chaintypes.BlockNum) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(num))
	return b
}
