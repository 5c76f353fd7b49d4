package store_test

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainmodel"
	"github.com/nearlight/btcspv/store"
	"github.com/stretchr/testify/require"
)

func testRecord(height uint64, tipByte byte) *chainmodel.HeaderRecord {
	var hash chainhash.Hash
	hash[0] = tipByte
	return &chainmodel.HeaderRecord{
		Header:    chainmodel.Header{Bits: 0x1d00ffff, Time: uint32(height)},
		BlockHash: hash,
		ChainWork: big.NewInt(int64(height) + 1),
		Height:    height,
	}
}

func TestMemStoreInsertIsIdempotentForIdenticalRecord(t *testing.T) {
	s := store.NewMemStore()
	rec := testRecord(1, 0xaa)

	require.NoError(t, s.Insert(rec))
	require.NoError(t, s.Insert(rec)) // identical resubmission: no-op success

	got, ok, err := s.Get(rec.BlockHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.Height, got.Height)
}

func TestMemStoreInsertRejectsConflictingRecord(t *testing.T) {
	s := store.NewMemStore()
	rec := testRecord(1, 0xaa)
	require.NoError(t, s.Insert(rec))

	conflicting := testRecord(1, 0xaa)
	conflicting.Height = 2 // same hash, different height: a real conflict
	err := s.Insert(conflicting)
	require.ErrorIs(t, err, store.ErrConflictingRecord)
}

func TestMemStoreSetGCFloorRejectsBackwardMove(t *testing.T) {
	s := store.NewMemStore()
	require.NoError(t, s.SetGCFloor(10))
	require.Error(t, s.SetGCFloor(5))
}

func TestMemStoreEvictHashesRespectsKeepPredicate(t *testing.T) {
	s := store.NewMemStore()
	kept := testRecord(1, 0x01)
	dropped := testRecord(2, 0x02)
	require.NoError(t, s.Insert(kept))
	require.NoError(t, s.Insert(dropped))
	require.NoError(t, s.SetMain(1, kept.BlockHash))
	require.NoError(t, s.SetMain(2, dropped.BlockHash))

	evicted, err := s.EvictHashes([]chainhash.Hash{kept.BlockHash, dropped.BlockHash}, func(h chainhash.Hash) bool { return h == kept.BlockHash })
	require.NoError(t, err)
	require.Equal(t, 1, evicted)

	_, ok, err := s.Get(kept.BlockHash)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Get(dropped.BlockHash)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestMemStoreEvictHashesOnlyTouchesGivenKeys mirrors the caller's contract:
// runGC passes exactly the hashes it already knows fell below the GC floor,
// so a hash it never mentions must survive even if keep() would reject it.
func TestMemStoreEvictHashesOnlyTouchesGivenKeys(t *testing.T) {
	s := store.NewMemStore()
	untouched := testRecord(1, 0x01)
	dropped := testRecord(2, 0x02)
	require.NoError(t, s.Insert(untouched))
	require.NoError(t, s.Insert(dropped))

	evicted, err := s.EvictHashes([]chainhash.Hash{dropped.BlockHash}, func(chainhash.Hash) bool { return false })
	require.NoError(t, err)
	require.Equal(t, 1, evicted)

	_, ok, err := s.Get(untouched.BlockHash)
	require.NoError(t, err)
	require.True(t, ok)
}
