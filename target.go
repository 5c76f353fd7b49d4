package btcspv

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// maxTarget is 2^256 - 1, used to reject compact-form targets that would
// decode outside the 256-bit range spec.md §4.2 requires.
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TargetFromBits decodes a compact "bits" value into its 256-bit target,
// rejecting the sign-bit-set and zero-mantissa cases spec.md §4.2 calls out
// explicitly with ErrInvalidTarget (blockchain.CompactToBig does not fail on
// them: it decodes a set sign bit to a negative target and a zero mantissa
// to a target of zero).
func TargetFromBits(bits uint32) (*big.Int, error) {
	mantissa := bits & 0x007fffff
	if bits&0x00800000 != 0 {
		return nil, fmt.Errorf("%w: sign bit set in bits 0x%08x", ErrInvalidTarget, bits)
	}
	if mantissa == 0 {
		return nil, fmt.Errorf("%w: zero mantissa in bits 0x%08x", ErrInvalidTarget, bits)
	}
	target := blockchain.CompactToBig(bits)
	if target.Sign() < 0 || target.Cmp(maxTarget) > 0 {
		return nil, fmt.Errorf("%w: target out of range for bits 0x%08x", ErrInvalidTarget, bits)
	}
	return target, nil
}

// BitsFromTarget re-encodes a 256-bit target into its compact form.
func BitsFromTarget(target *big.Int) uint32 {
	return blockchain.BigToCompact(target)
}

// WorkFromTarget computes work = floor(2^256 / (target + 1)), the chain-work
// contribution of a block with the given target (spec.md §4.2).
func WorkFromTarget(target *big.Int) *big.Int {
	return blockchain.CalcWork(BitsFromTarget(target))
}

// WorkFromBits is the common-case shortcut used by the chain state machine:
// it decodes bits, validates the target, and returns its work in one call.
func WorkFromBits(bits uint32) (*big.Int, error) {
	target, err := TargetFromBits(bits)
	if err != nil {
		return nil, err
	}
	return WorkFromTarget(target), nil
}

// hashToWork interprets a pow_hash as the little-endian 256-bit integer
// Bitcoin-family consensus rules compare against a target (chainhash.Hash
// stores bytes in wire order, so this reverses them before treating the
// result as a number), delegating to btcsuite's own conversion.
func hashToWork(h chainhash.Hash) *big.Int {
	return blockchain.HashToBig(&h)
}

// addWork adds two chain-work values, rejecting the (practically
// unreachable, but spec-mandated) case where the sum would no longer fit in
// 256 bits — the Rust original's U256::overflowing_add surfaced this as
// BadDifficulty; a 256-bit chain_work overflow can only originate from a
// corrupt or adversarial bits field, so the same error kind applies here.
func addWork(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.BitLen() > 256 {
		return nil, fmt.Errorf("%w: chain_work overflowed 256 bits", ErrBadDifficulty)
	}
	return sum, nil
}
