package chainmodel

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// AuxData carries a Dogecoin AuxPoW (merge-mining) proof attached to a
// header submission: the parent (Litecoin) block that actually satisfies
// PoW, the coinbase transaction committing to the child chain's block
// hash, and the two Merkle branches needed to verify that commitment.
// Grounded on original_source's btc-types/src/aux.rs::AuxData.
type AuxData struct {
	CoinbaseTx        []byte
	MerkleProof       []chainhash.Hash
	ChainMerkleProof  []chainhash.Hash
	ChainID           int
	ParentBlock       *Header
	ParentPowChain    bool // true if ParentBlock is itself scrypt-PoW (Litecoin)
}

// HeaderRecord is a header plus the metadata the chain state machine and
// fork registry need: its hash, cumulative work from genesis, height, and
// its parent's hash (spec.md §3).
type HeaderRecord struct {
	Header      Header
	BlockHash   chainhash.Hash
	ChainWork   *big.Int
	Height      uint64
	PrevHash    chainhash.Hash
	TxCount     uint64 // number of transactions in the block, for §4.7's duplicate-tx guard
	AuxParent   *chainhash.Hash
}

// Clone returns a deep-enough copy for safe storage: ChainWork is copied so
// callers holding a *HeaderRecord returned from a store can't accidentally
// mutate stored state through a shared big.Int.
func (r *HeaderRecord) Clone() *HeaderRecord {
	cp := *r
	if r.ChainWork != nil {
		cp.ChainWork = new(big.Int).Set(r.ChainWork)
	}
	if r.AuxParent != nil {
		h := *r.AuxParent
		cp.AuxParent = &h
	}
	return &cp
}
