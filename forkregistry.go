package btcspv

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Fork is a competing tip tracked alongside the main chain: its accumulated
// work, height, and distance back to the common ancestor with main. This is
// the flattened analogue of the teacher's blkNode/blkGraph tree (graph.go):
// where the teacher keeps the whole tree in memory to derive height and
// orphan status by walking children, this registry only needs to remember
// each fork's tip, since header ancestry itself already lives in the header
// store and is walked via prev_hash when a reorg needs it.
type Fork struct {
	TipHash   chainhash.Hash
	TipHeight uint64
	ChainWork *big.Int
	Length    uint64
}

func (f *Fork) clone() *Fork {
	return &Fork{
		TipHash:   f.TipHash,
		TipHeight: f.TipHeight,
		ChainWork: new(big.Int).Set(f.ChainWork),
		Length:    f.Length,
	}
}

// ForkRegistry tracks competing tip hashes with accumulated work, bounded by
// a maximum live-fork count and a maximum fork length, mirroring graph.go's
// bounded blkGraph but keyed by tip instead of by the full block tree.
type ForkRegistry struct {
	forks      map[chainhash.Hash]*Fork
	maxForks   int
	maxForkLen uint64
}

// NewForkRegistry returns an empty registry bounded to maxForks live tips,
// each at most maxForkLen headers past its common ancestor with main.
func NewForkRegistry(maxForks int, maxForkLen uint64) *ForkRegistry {
	return &ForkRegistry{
		forks:      make(map[chainhash.Hash]*Fork, maxForks),
		maxForks:   maxForks,
		maxForkLen: maxForkLen,
	}
}

// Get returns the fork with the given tip hash, if any.
func (r *ForkRegistry) Get(tip chainhash.Hash) (*Fork, bool) {
	f, ok := r.forks[tip]
	if !ok {
		return nil, false
	}
	return f.clone(), true
}

// Len reports the number of live forks.
func (r *ForkRegistry) Len() int { return len(r.forks) }

// Tips returns a snapshot of every live fork, in no particular order.
func (r *ForkRegistry) Tips() []*Fork {
	out := make([]*Fork, 0, len(r.forks))
	for _, f := range r.forks {
		out = append(out, f.clone())
	}
	return out
}

// Remove drops a fork, e.g. because it was promoted to main or fully
// dominated by a reorg (spec.md §4.5: "any fork fully dominated by the new
// main chain is discarded").
func (r *ForkRegistry) Remove(tip chainhash.Hash) {
	delete(r.forks, tip)
}

// RemoveByOldTip drops the fork whose tip is oldTip, for when a fork is
// extended and the old tip entry stops being a fork tip. It does not insert
// the new tip; that is a separate Put.
func (r *ForkRegistry) RemoveByOldTip(oldTip chainhash.Hash) {
	delete(r.forks, oldTip)
}

// Put inserts or replaces a fork entry. It enforces the fork-length bound
// (returning ErrForkTooLong) and, if inserting a brand new tip would exceed
// maxForks, evicts the weakest existing fork first using the tie-break
// order from spec.md §4.5: lowest chain_work, then smallest tip height,
// then lexicographically smallest tip hash.
func (r *ForkRegistry) Put(f *Fork) error {
	if f.Length > r.maxForkLen {
		return fmt.Errorf("%w: fork length %d exceeds limit %d", ErrForkTooLong, f.Length, r.maxForkLen)
	}

	if _, exists := r.forks[f.TipHash]; !exists && len(r.forks) >= r.maxForks && r.maxForks > 0 {
		r.evictWeakest()
	}

	r.forks[f.TipHash] = f.clone()
	return nil
}

// evictWeakest removes the single weakest fork by the spec's tie-break
// order. It is a no-op on an empty registry.
func (r *ForkRegistry) evictWeakest() {
	var weakest *Fork
	for _, f := range r.forks {
		if weakest == nil || forkIsWeaker(f, weakest) {
			weakest = f
		}
	}
	if weakest != nil {
		delete(r.forks, weakest.TipHash)
	}
}

// forkIsWeaker reports whether a should be evicted before b: lower
// chain_work first, then smaller tip height, then lexicographically
// smaller tip hash.
func forkIsWeaker(a, b *Fork) bool {
	if cmp := a.ChainWork.Cmp(b.ChainWork); cmp != 0 {
		return cmp < 0
	}
	if a.TipHeight != b.TipHeight {
		return a.TipHeight < b.TipHeight
	}
	return bytes.Compare(a.TipHash[:], b.TipHash[:]) < 0
}

// Heaviest returns the fork with the greatest accumulated chain_work, or
// false if the registry is empty. Ties are broken the same way as eviction,
// inverted (highest work, then tallest tip, then lexicographically
// greatest hash) so the choice is deterministic across nodes.
func (r *ForkRegistry) Heaviest() (*Fork, bool) {
	var best *Fork
	for _, f := range r.forks {
		if best == nil || forkIsWeaker(best, f) {
			best = f
		}
	}
	if best == nil {
		return nil, false
	}
	return best.clone(), true
}
