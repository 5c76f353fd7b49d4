// Package merkle validates transaction-inclusion proofs against a stored
// block's merkle_root (component G): given a transaction hash, its index,
// and an ordered sibling path, fold up to a candidate root and compare.
// Grounded on merkle-tools/src/lib.rs's compute_root_from_merkle_proof and
// merkle_proof_calculator.
package merkle

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func computeHash(a, b chainhash.Hash) chainhash.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return chainhash.DoubleHashH(buf[:])
}

// VerifyInclusion folds txHash up through path (ordered leaf-to-root) using
// txIndex to choose, at each level, whether the sibling is hashed on the
// left or the right, and compares the resulting root to merkleRoot.
//
// txCount is the number of transactions the block actually had; it guards
// against Bitcoin's CVE-2012-2459 duplicate-transaction defect, where a
// crafted proof pairs a node with an identical copy of itself to forge
// membership for a transaction that only "exists" because of the
// duplication. A self-paired step is legitimate only when it reproduces
// the real odd-leaf-duplication done at tree-construction time: the
// current node must be the last, unpaired node at that level.
func VerifyInclusion(txHash chainhash.Hash, txIndex uint64, path []chainhash.Hash, txCount uint64, merkleRoot chainhash.Hash) (bool, error) {
	if txCount == 0 {
		return false, fmt.Errorf("merkle: tx_count must be positive")
	}
	if txIndex >= txCount {
		return false, fmt.Errorf("merkle: tx_index %d out of range for tx_count %d", txIndex, txCount)
	}

	current := txHash
	index := txIndex
	levelSize := txCount

	for _, sibling := range path {
		if levelSize == 0 {
			return false, fmt.Errorf("merkle: path longer than tree depth")
		}
		if sibling == current && (levelSize%2 == 0 || index != levelSize-1) {
			return false, nil
		}
		if index%2 == 0 {
			current = computeHash(current, sibling)
		} else {
			current = computeHash(sibling, current)
		}
		index /= 2
		levelSize = (levelSize + 1) / 2
	}

	return current == merkleRoot, nil
}

// ComputeRoot folds hash up through path the same way VerifyInclusion does,
// but without the CVE-2012-2459 guard or a tx_count bound: it is used for
// AuxPoW's coinbase and chain merkle-tree commitments, which are not
// standard Bitcoin transaction trees and carry no such duplicate-leaf
// trust boundary. Grounded on merkle-tools/src/lib.rs's
// compute_root_from_merkle_proof.
func ComputeRoot(hash chainhash.Hash, index uint64, path []chainhash.Hash) chainhash.Hash {
	current := hash
	for _, sibling := range path {
		if index%2 == 0 {
			current = computeHash(current, sibling)
		} else {
			current = computeHash(sibling, current)
		}
		index /= 2
	}
	return current
}

// ComputeProof builds the sibling path for the transaction at position
// within hashes, in the same leaf-to-root order VerifyInclusion expects.
// Not needed by the verifier itself, but useful to tests and to relayers
// constructing proofs to submit; grounded on merkle_proof_calculator.
func ComputeProof(hashes []chainhash.Hash, position int) []chainhash.Hash {
	current := append([]chainhash.Hash(nil), hashes...)
	proof := make([]chainhash.Hash, 0)

	for len(current) > 1 {
		if len(current)%2 == 1 {
			current = append(current, current[len(current)-1])
		}
		if position%2 == 1 {
			proof = append(proof, current[position-1])
		} else {
			proof = append(proof, current[position+1])
		}

		next := make([]chainhash.Hash, 0, len(current)/2)
		for i := 0; i < len(current)-1; i += 2 {
			next = append(next, computeHash(current[i], current[i+1]))
		}
		current = next
		position /= 2
	}

	return proof
}
