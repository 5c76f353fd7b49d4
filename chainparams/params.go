// Package chainparams defines the per-chain constants that the difficulty
// engine and chain state machine need to validate headers for a tracked
// network. It mirrors the plain data-only NetworkConfig used by the
// original contract this core was distilled from: no behavior lives here,
// only numbers, so that the retarget dispatch in the root package can
// switch on a Chain tag instead of paying for an interface call on every
// block (see the "avoid dynamic dispatch in hot paths" design note).
package chainparams

import "math/big"

// Chain identifies which PoW-hash and retarget rule a Params value selects.
type Chain uint8

const (
	Bitcoin Chain = iota
	Litecoin
	Dogecoin
	Zcash
)

func (c Chain) String() string {
	switch c {
	case Bitcoin:
		return "bitcoin"
	case Litecoin:
		return "litecoin"
	case Dogecoin:
		return "dogecoin"
	case Zcash:
		return "zcash"
	default:
		return "unknown"
	}
}

// Params holds the immutable, chain-specific consensus constants needed by
// the difficulty engine and the chain state machine. A Params value is
// looked up once at contract Init time and never mutated afterwards.
type Params struct {
	Chain Chain
	// Testnet/regtest toggle the 20-minute minimum-difficulty allowance.
	Testnet bool

	// BlocksPerAdjustment is the retarget epoch length in blocks. Bitcoin
	// and Litecoin use 2016; Dogecoin uses 1 after its DigiShield
	// activation height; Zcash retargets every block (epoch of 1).
	BlocksPerAdjustment uint64

	// PowTargetSpacing is the expected number of seconds between blocks.
	PowTargetSpacingSecs int64

	// PowTargetTimespan is BlocksPerAdjustment * PowTargetSpacingSecs for
	// chains that retarget over a fixed window (Bitcoin/Litecoin/Dogecoin
	// pre-DigiShield). Zcash instead uses PowAveragingWindow below.
	PowTargetTimespanSecs int64

	// PowLimitBits is the compact-form minimum difficulty (maximum target).
	PowLimitBits uint32
	// PowLimit is the decoded form of PowLimitBits, cached to avoid
	// recomputing it on every retarget.
	PowLimit *big.Int

	// PowAllowMinDifficultyBlocks enables the "20-minute rule": if enabled
	// and the current block is more than 2x the target spacing after its
	// parent, bits may drop straight to PowLimitBits.
	PowAllowMinDifficultyBlocks bool

	// SupportsAuxPoW enables merge-mining validation (Dogecoin only).
	SupportsAuxPoW bool
	// AuxPoWStartHeight is the height at which AuxPoW headers become
	// acceptable; headers below it must carry standalone PoW.
	AuxPoWStartHeight uint64
	// DigishieldHeight is the height at which Dogecoin switched to
	// per-block DigiShield retargeting (BlocksPerAdjustment effectively 1).
	DigishieldHeight uint64
	// MinDifficultyResetHeight is the Dogecoin height after which the
	// min-difficulty testnet/regtest carve-out is honored at all.
	MinDifficultyResetHeight uint64

	// PowAveragingWindow is the number of blocks Zcash averages target
	// over (17 for both mainnet and testnet).
	PowAveragingWindow uint64
	// MedianTimeSpan is the window used to compute median-time-past (11
	// for Bitcoin-family timestamp checks, also reused by Zcash).
	MedianTimeSpan int
	// PowAllowMinDifficultyBlocksAfterHeight, if non-nil, is the Zcash
	// testnet height after which the min-difficulty carve-out applies.
	PowAllowMinDifficultyBlocksAfterHeight *uint64

	// MaxAdjustmentFactor bounds Bitcoin/Litecoin/pre-DigiShield Dogecoin
	// retargets (actual timespan is clamped to [timespan/factor,
	// timespan*factor]). Zcash uses its own percentage bounds instead.
	MaxAdjustmentFactor int64

	// MinConfirmations is the chain-specific default for
	// verify_transaction_inclusion when the caller does not override it.
	MinConfirmations uint64

	// BlocksPerAdjustment above is also what Chain.Init checks a genesis
	// height's epoch alignment against.
}

// mustBig parses a hex string into a *big.Int, panicking on malformed
// input. Only used for the package-level constant tables below, never on
// data that came from a submitted header.
func mustBig(hex string) *big.Int {
	n, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		panic("chainparams: invalid constant: " + hex)
	}
	return n
}

var (
	bitcoinPowLimit  = mustBig("00000000FFFF0000000000000000000000000000000000000000000000000000")
	litecoinPowLimit = mustBig("00000FFFFF000000000000000000000000000000000000000000000000000000")
	// Dogecoin (post-AuxPoW) pow limit.
	dogecoinPowLimit = mustBig("00000FFFFF000000000000000000000000000000000000000000000000000000")
	zcashPowLimit    = mustBig("0007FFFF00000000000000000000000000000000000000000000000000000000")
)

// ForChain returns the canonical Params for a tracked chain. testnet
// selects the network's min-difficulty-allowance variant where one exists.
func ForChain(chain Chain, testnet bool) *Params {
	switch chain {
	case Bitcoin:
		return &Params{
			Chain:                       Bitcoin,
			Testnet:                     testnet,
			BlocksPerAdjustment:         2016,
			PowTargetSpacingSecs:        600,
			PowTargetTimespanSecs:       2016 * 600,
			PowLimitBits:                0x1d00ffff,
			PowLimit:                    bitcoinPowLimit,
			PowAllowMinDifficultyBlocks: testnet,
			MedianTimeSpan:              11,
			MaxAdjustmentFactor:         4,
			MinConfirmations:            6,
		}
	case Litecoin:
		return &Params{
			Chain:                       Litecoin,
			Testnet:                     testnet,
			BlocksPerAdjustment:         2016,
			PowTargetSpacingSecs:        150,
			PowTargetTimespanSecs:       2016 * 150, // Litecoin retargets over 3.5 days of blocks
			PowLimitBits:                0x1e0fffff,
			PowLimit:                    litecoinPowLimit,
			PowAllowMinDifficultyBlocks: testnet,
			MedianTimeSpan:              11,
			MaxAdjustmentFactor:         4,
			MinConfirmations:            6,
		}
	case Dogecoin:
		return &Params{
			Chain:                       Dogecoin,
			Testnet:                     testnet,
			BlocksPerAdjustment:         240,
			PowTargetSpacingSecs:        60,
			PowTargetTimespanSecs:       4 * 60 * 60,
			PowLimitBits:                0x1e0fffff,
			PowLimit:                    dogecoinPowLimit,
			PowAllowMinDifficultyBlocks: testnet,
			SupportsAuxPoW:              true,
			AuxPoWStartHeight:           371337,
			DigishieldHeight:            145000,
			MinDifficultyResetHeight:    157500,
			MedianTimeSpan:              11,
			MaxAdjustmentFactor:         4,
			MinConfirmations:            40,
		}
	case Zcash:
		p := &Params{
			Chain:                       Zcash,
			Testnet:                     testnet,
			BlocksPerAdjustment:         1,
			PowTargetSpacingSecs:        150,
			PowLimitBits:                0x1f07ffff,
			PowLimit:                    zcashPowLimit,
			PowAllowMinDifficultyBlocks: testnet,
			PowAveragingWindow:          17,
			MedianTimeSpan:              11,
			MaxAdjustmentFactor:         4,
			MinConfirmations:            10,
		}
		if testnet {
			afterHeight := uint64(299187)
			p.PowAllowMinDifficultyBlocksAfterHeight = &afterHeight
		}
		return p
	default:
		return nil
	}
}
