package store

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainmodel"
)

// MemStore is the in-memory reference HeaderStore implementation, used by
// unit tests and anywhere a host already provides its own durable
// key-value layer and only needs the in-process working set.
type MemStore struct {
	records map[chainhash.Hash]*chainmodel.HeaderRecord
	heights map[uint64]chainhash.Hash
	tip     chainhash.Hash
	hasTip  bool
	gcFloor uint64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[chainhash.Hash]*chainmodel.HeaderRecord),
		heights: make(map[uint64]chainhash.Hash),
	}
}

func (s *MemStore) Get(hash chainhash.Hash) (*chainmodel.HeaderRecord, bool, error) {
	rec, ok := s.records[hash]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *MemStore) Insert(rec *chainmodel.HeaderRecord) error {
	if existing, ok := s.records[rec.BlockHash]; ok {
		if sameRecord(existing, rec) {
			return nil
		}
		return fmt.Errorf("%w: hash %s", ErrConflictingRecord, rec.BlockHash)
	}
	s.records[rec.BlockHash] = rec.Clone()
	return nil
}

func (s *MemStore) MainAt(height uint64) (chainhash.Hash, bool, error) {
	hash, ok := s.heights[height]
	return hash, ok, nil
}

func (s *MemStore) SetMain(height uint64, hash chainhash.Hash) error {
	s.heights[height] = hash
	return nil
}

func (s *MemStore) ClearMain(height uint64) error {
	delete(s.heights, height)
	return nil
}

func (s *MemStore) Tip() (chainhash.Hash, bool, error) {
	return s.tip, s.hasTip, nil
}

func (s *MemStore) SetTip(hash chainhash.Hash) error {
	s.tip = hash
	s.hasTip = true
	return nil
}

func (s *MemStore) GCFloor() (uint64, error) {
	return s.gcFloor, nil
}

func (s *MemStore) SetGCFloor(height uint64) error {
	if height < s.gcFloor {
		return fmt.Errorf("store: gc floor cannot move backwards (%d -> %d)", s.gcFloor, height)
	}
	s.gcFloor = height
	return nil
}

func (s *MemStore) EvictHashes(hashes []chainhash.Hash, keep func(chainhash.Hash) bool) (int, error) {
	evicted := 0
	for _, hash := range hashes {
		if keep(hash) {
			continue
		}
		rec, ok := s.records[hash]
		if !ok {
			continue
		}
		delete(s.records, hash)
		if h, ok := s.heights[rec.Height]; ok && h == hash {
			delete(s.heights, rec.Height)
		}
		evicted++
	}
	return evicted, nil
}

func (s *MemStore) Close() error { return nil }
