package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const keyPrefix = "audit:"

// LevelDBSink stores entries as JSON keyed by big-endian sequence number,
// so iteration order is append order.
type LevelDBSink struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the audit store at path.
func OpenLevelDB(path string) (*LevelDBSink, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return &LevelDBSink{db: db}, nil
}

func entryKey(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}

// Write stores e synchronously.
func (s *LevelDBSink) Write(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return s.db.Put(entryKey(e.Seq), data, nil)
}

// Replay calls fn for every stored entry in sequence order.
func (s *LevelDBSink) Replay(fn func(Entry) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return fmt.Errorf("failed to unmarshal audit entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastSeq returns the highest stored sequence number, zero when empty.
func (s *LevelDBSink) LastSeq() (uint64, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()

	if !iter.Last() {
		return 0, iter.Error()
	}
	key := iter.Key()
	if len(key) != len(keyPrefix)+8 {
		return 0, fmt.Errorf("unexpected audit key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(keyPrefix):]), nil
}

// Close closes the database.
func (s *LevelDBSink) Close() error {
	return s.db.Close()
}
