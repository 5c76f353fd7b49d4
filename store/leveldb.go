package store

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainmodel"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelStore is a github.com/syndtr/goleveldb-backed HeaderStore, grounded
// on the teacher's leveldb.go/corestore.go (same opt.Options idiom used
// there to open a LevelDB index). It implements
// the persisted keyspace sketched in spec.md §6: "H:<hash>", "M:<height>"
// and singleton "tip"/"gc_floor" keys (the fork keyspace "F:<hash>" is
// handled separately by the fork registry, which is small enough to stay
// entirely in memory - see forkregistry.go).
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (creating if necessary) a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb at %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Get(hash chainhash.Hash) (*chainmodel.HeaderRecord, bool, error) {
	val, err := s.db.Get(hashKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := decodeRecord(val)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *LevelStore) Insert(rec *chainmodel.HeaderRecord) error {
	key := hashKey(rec.BlockHash)
	existing, err := s.db.Get(key, nil)
	if err == nil {
		existingRec, derr := decodeRecord(existing)
		if derr != nil {
			return derr
		}
		if sameRecord(existingRec, rec) {
			return nil
		}
		return fmt.Errorf("%w: hash %s", ErrConflictingRecord, rec.BlockHash)
	}
	if err != leveldb.ErrNotFound {
		return err
	}

	encoded, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded, nil)
}

func (s *LevelStore) MainAt(height uint64) (chainhash.Hash, bool, error) {
	val, err := s.db.Get(heightKey(height), nil)
	if err == leveldb.ErrNotFound {
		return chainhash.Hash{}, false, nil
	}
	if err != nil {
		return chainhash.Hash{}, false, err
	}
	var h chainhash.Hash
	copy(h[:], val)
	return h, true, nil
}

func (s *LevelStore) SetMain(height uint64, hash chainhash.Hash) error {
	return s.db.Put(heightKey(height), hash[:], nil)
}

func (s *LevelStore) ClearMain(height uint64) error {
	return s.db.Delete(heightKey(height), nil)
}

func (s *LevelStore) Tip() (chainhash.Hash, bool, error) {
	val, err := s.db.Get(tipKey, nil)
	if err == leveldb.ErrNotFound {
		return chainhash.Hash{}, false, nil
	}
	if err != nil {
		return chainhash.Hash{}, false, err
	}
	var h chainhash.Hash
	copy(h[:], val)
	return h, true, nil
}

func (s *LevelStore) SetTip(hash chainhash.Hash) error {
	return s.db.Put(tipKey, hash[:], nil)
}

func (s *LevelStore) GCFloor() (uint64, error) {
	val, err := s.db.Get(gcFloorKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(val), nil
}

func (s *LevelStore) SetGCFloor(height uint64) error {
	current, err := s.GCFloor()
	if err != nil {
		return err
	}
	if height < current {
		return fmt.Errorf("store: gc floor cannot move backwards (%d -> %d)", current, height)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return s.db.Put(gcFloorKey, buf, nil)
}

// EvictHashes deletes exactly the given keys from the "H:" keyspace,
// skipping any hash keep() reports true for. Unlike a util.BytesPrefix scan
// over the whole keyspace, this touches only len(hashes) point lookups per
// call, keeping GC cost bounded by the caller's batch size rather than by
// total store size.
func (s *LevelStore) EvictHashes(hashes []chainhash.Hash, keep func(chainhash.Hash) bool) (int, error) {
	evicted := 0
	batch := new(leveldb.Batch)
	for _, hash := range hashes {
		if keep(hash) {
			continue
		}
		if _, err := s.db.Get(hashKey(hash), nil); err == leveldb.ErrNotFound {
			continue
		} else if err != nil {
			return evicted, err
		}
		batch.Delete(hashKey(hash))
		evicted++
	}
	if batch.Len() > 0 {
		if err := s.db.Write(batch, nil); err != nil {
			return evicted, err
		}
	}
	return evicted, nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
