// Package store implements the header-store component (spec.md §4.4): a
// bounded, GC'd persistent mapping from block hash to HeaderRecord, plus a
// height-to-hash index for the main chain. HeaderStore is an interface
// because production persistence is genuinely the host chain's concern
// (spec.md §1, "host-chain plumbing ... persistence primitives ... are
// external collaborators"); this package ships two implementations for
// local testing and simulation: MemStore and, grounded on the teacher's
// leveldb.go/corestore.go, LevelStore.
package store

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainmodel"
)

// HeaderStore is the persistence interface the chain state machine and
// fork registry are built against (spec.md §4.4 operations: insert, get,
// main_at, set_main, evict_below).
type HeaderStore interface {
	// Get returns the record for hash, or ok=false if it is absent
	// (never inserted, or evicted by GC).
	Get(hash chainhash.Hash) (rec *chainmodel.HeaderRecord, ok bool, err error)

	// Insert stores rec. Inserting an identical record for a hash already
	// present is a no-op success (spec.md §7: "re-submission of an
	// identical record [is] no-op success"); inserting a conflicting
	// record for an existing hash returns ErrDuplicateHash.
	Insert(rec *chainmodel.HeaderRecord) error

	// MainAt returns the main-chain hash at height, or ok=false if height
	// is outside [GCFloor(), main tip height].
	MainAt(height uint64) (hash chainhash.Hash, ok bool, err error)

	// SetMain sets the main-chain height index entry for height to hash.
	SetMain(height uint64, hash chainhash.Hash) error

	// ClearMain removes the main-chain height index entry for height,
	// used when demoting blocks during a reorg (spec.md §4.6).
	ClearMain(height uint64) error

	// Tip returns the current main-chain tip hash. ok is false only
	// before Init has ever set one.
	Tip() (hash chainhash.Hash, ok bool, err error)

	// SetTip updates the main-chain tip pointer.
	SetTip(hash chainhash.Hash) error

	// GCFloor returns the height below which records may have been
	// evicted (spec.md §3 invariant 4).
	GCFloor() (uint64, error)

	// SetGCFloor advances the GC floor. Callers must not decrease it.
	SetGCFloor(height uint64) error

	// EvictHashes removes the stored records for exactly the given hashes,
	// skipping any hash keep(hash) reports true for (i.e. still referenced
	// as a live fork's ancestor). The caller already knows which hashes
	// fell below the GC floor from its own height walk, so this touches
	// only len(hashes) keys per call rather than scanning the keyspace -
	// the O(1)-amortized-per-submit bound spec.md §4.4/§5 requires. It
	// returns the number of records actually evicted.
	EvictHashes(hashes []chainhash.Hash, keep func(hash chainhash.Hash) bool) (evicted int, err error)

	// Close releases any underlying resources.
	Close() error
}

// ErrConflictingRecord is returned by Insert when a stored record for the
// same hash already exists with different contents.
var ErrConflictingRecord = fmt.Errorf("store: %w", chainmodel.ErrDuplicateHash)

// sameRecord reports whether two records are identical for the purposes of
// the "re-submission is a no-op success" rule: same header bytes, same
// height, and same chain work.
func sameRecord(a, b *chainmodel.HeaderRecord) bool {
	if a.Header != b.Header {
		return false
	}
	if a.Height != b.Height {
		return false
	}
	if (a.ChainWork == nil) != (b.ChainWork == nil) {
		return false
	}
	if a.ChainWork != nil && a.ChainWork.Cmp(b.ChainWork) != 0 {
		return false
	}
	return a.BlockHash == b.BlockHash && a.PrevHash == b.PrevHash
}
