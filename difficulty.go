package btcspv

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainmodel"
	"github.com/nearlight/btcspv/chainparams"
)

// ancestorLookup lets the retarget functions walk backward from the block
// currently being validated, either by exact height or by hash, without
// caring whether that walk runs along the main chain or an as-yet-unpromoted
// fork. chain.go supplies the concrete implementation (grounded on the
// Rust get_prev_header/get_header_by_height pair used throughout
// bitcoin.rs/litecoin.rs/dogecoin.rs/zcash.rs).
type ancestorLookup interface {
	AncestorByHeight(height uint64) (*chainmodel.HeaderRecord, error)
	AncestorByHash(hash chainhash.Hash) (*chainmodel.HeaderRecord, error)
}

// NextWorkRequired computes the bits field that header must carry to extend
// prev, given the chain's consensus params, dispatching on params.Chain
// (a plain switch rather than an interface, so the per-block hot path never
// pays for dynamic dispatch).
func NextWorkRequired(params *chainparams.Params, header *chainmodel.Header, prev *chainmodel.HeaderRecord, lookup ancestorLookup) (uint32, error) {
	switch params.Chain {
	case chainparams.Bitcoin:
		return bitcoinNextWork(params, header, prev, lookup)
	case chainparams.Litecoin:
		return litecoinNextWork(params, header, prev, lookup)
	case chainparams.Dogecoin:
		return dogecoinNextWork(params, header, prev, lookup)
	case chainparams.Zcash:
		return zcashNextWork(params, header, prev, lookup)
	default:
		return 0, fmt.Errorf("btcspv: unknown chain %d", params.Chain)
	}
}

// walkBackToNonMinDifficulty implements the "return the last non-special
// min-difficulty block" loop shared verbatim by bitcoin.rs, litecoin.rs and
// dogecoin.rs's get_next_work_required.
func walkBackToNonMinDifficulty(params *chainparams.Params, prev *chainmodel.HeaderRecord, adjustmentInterval uint64, lookup ancestorLookup) (uint32, error) {
	current := prev
	for current.Header.Bits == params.PowLimitBits && current.Height%adjustmentInterval != 0 {
		next, err := lookup.AncestorByHash(current.PrevHash)
		if err != nil {
			return 0, err
		}
		current = next
	}
	return current.Header.Bits, nil
}

func clampTimespan(actual, timespan, factor int64) int64 {
	if actual < timespan/factor {
		return timespan / factor
	}
	if actual > timespan*factor {
		return timespan * factor
	}
	return actual
}

// retarget computes floor(target * actualTimespan / powTargetTimespan),
// clamped to powLimit, then re-encodes it as compact bits. It is the shared
// tail of calculate_next_work_required across bitcoin.rs/litecoin.rs/
// dogecoin.rs (and, with an averaged target, zcash.rs).
func retarget(target *big.Int, actualTimespan, powTargetTimespan int64, powLimit *big.Int) (uint32, error) {
	if actualTimespan <= 0 || powTargetTimespan <= 0 {
		return 0, fmt.Errorf("%w: non-positive timespan", ErrBadDifficulty)
	}
	newTarget := new(big.Int).Mul(target, big.NewInt(actualTimespan))
	if newTarget.BitLen() > 256+64 {
		return 0, fmt.Errorf("%w: retarget multiplication overflow", ErrBadDifficulty)
	}
	newTarget.Div(newTarget, big.NewInt(powTargetTimespan))
	if newTarget.Cmp(powLimit) > 0 {
		newTarget = powLimit
	}
	return BitsFromTarget(newTarget), nil
}

// bitcoinNextWork is get_next_work_required/calculate_next_work_required
// from bitcoin.rs, itself a port of Bitcoin Core's pow.cpp.
func bitcoinNextWork(params *chainparams.Params, header *chainmodel.Header, prev *chainmodel.HeaderRecord, lookup ancestorLookup) (uint32, error) {
	if (prev.Height+1)%params.BlocksPerAdjustment != 0 {
		if params.PowAllowMinDifficultyBlocks {
			if int64(header.Time) > int64(prev.Header.Time)+2*params.PowTargetSpacingSecs {
				return params.PowLimitBits, nil
			}
			return walkBackToNonMinDifficulty(params, prev, params.BlocksPerAdjustment, lookup)
		}
		return prev.Header.Bits, nil
	}

	firstHeight := prev.Height - (params.BlocksPerAdjustment - 1)
	first, err := lookup.AncestorByHeight(firstHeight)
	if err != nil {
		return 0, err
	}

	target, err := TargetFromBits(prev.Header.Bits)
	if err != nil {
		return 0, err
	}
	actual := clampTimespan(int64(prev.Header.Time)-int64(first.Header.Time), params.PowTargetTimespanSecs, params.MaxAdjustmentFactor)
	return retarget(target, actual, params.PowTargetTimespanSecs, params.PowLimit)
}

// litecoinNextWork mirrors litecoin.rs, which differs from Bitcoin in two
// ways: the "go back the full period unless this is the first retarget"
// fix, and halving the target before scaling to avoid overflow headroom
// loss on Litecoin's shorter timespan.
func litecoinNextWork(params *chainparams.Params, header *chainmodel.Header, prev *chainmodel.HeaderRecord, lookup ancestorLookup) (uint32, error) {
	if (prev.Height+1)%params.BlocksPerAdjustment != 0 {
		if params.PowAllowMinDifficultyBlocks {
			if int64(header.Time) > int64(prev.Header.Time)+2*params.PowTargetSpacingSecs {
				return params.PowLimitBits, nil
			}
			return walkBackToNonMinDifficulty(params, prev, params.BlocksPerAdjustment, lookup)
		}
		return prev.Header.Bits, nil
	}

	blocksToGoBack := params.BlocksPerAdjustment - 1
	if prev.Height+1 != params.BlocksPerAdjustment {
		blocksToGoBack = params.BlocksPerAdjustment
	}
	firstHeight := prev.Height - blocksToGoBack
	first, err := lookup.AncestorByHeight(firstHeight)
	if err != nil {
		return 0, err
	}

	target, err := TargetFromBits(prev.Header.Bits)
	if err != nil {
		return 0, err
	}
	actual := clampTimespan(int64(prev.Header.Time)-int64(first.Header.Time), params.PowTargetTimespanSecs, params.MaxAdjustmentFactor)

	shift := target.Cmp(params.PowLimit) > 0
	if shift {
		target = new(big.Int).Rsh(target, 1)
	}
	bits, err := retarget(target, actual, params.PowTargetTimespanSecs, params.PowLimit)
	if err != nil {
		return 0, err
	}
	if shift {
		shifted, err := TargetFromBits(bits)
		if err != nil {
			return 0, err
		}
		shifted = new(big.Int).Lsh(shifted, 1)
		if shifted.Cmp(params.PowLimit) > 0 {
			shifted = params.PowLimit
		}
		bits = BitsFromTarget(shifted)
	}
	return bits, nil
}

// dogecoinAllowMinDifficulty is allow_min_difficulty_for_block in
// dogecoin.rs: the DigiShield min-difficulty carve-out only applies past
// MinDifficultyResetHeight and when the new block is more than two target
// spacings late.
func dogecoinAllowMinDifficulty(params *chainparams.Params, header *chainmodel.Header, prev *chainmodel.HeaderRecord) bool {
	if !params.PowAllowMinDifficultyBlocks {
		return false
	}
	if prev.Height < params.MinDifficultyResetHeight {
		return false
	}
	return int64(header.Time) > int64(prev.Header.Time)+2*params.PowTargetSpacingSecs
}

// dogecoinDigishieldTimespan implements the DigiShield damped clamp: the raw
// actual timespan is averaged three-quarters toward the target timespan,
// then bounded to [timespan*3/4, timespan*3/2]. This differs from Bitcoin/
// Litecoin's undamped clampTimespan([timespan/4, timespan*4]) and from the
// contract source's dogecoin.rs (which never applies the damping step at
// all); see DESIGN.md.
func dogecoinDigishieldTimespan(raw, timespan int64) int64 {
	actual := timespan + (raw-timespan)/4
	minSpan := timespan - timespan/4 // timespan * 3/4
	maxSpan := timespan + timespan/2 // timespan * 3/2
	if actual < minSpan {
		actual = minSpan
	}
	if actual > maxSpan {
		actual = maxSpan
	}
	return actual
}

// dogecoinNextWork mirrors dogecoin.rs's get_next_work_required, which
// switches to per-block DigiShield retargeting past DigishieldHeight. Unlike
// the legacy pre-fork cadence (Bitcoin-style clampTimespan every
// BlocksPerAdjustment blocks), the post-fork single-block cadence uses the
// damped DigiShield clamp above.
func dogecoinNextWork(params *chainparams.Params, header *chainmodel.Header, prev *chainmodel.HeaderRecord, lookup ancestorLookup) (uint32, error) {
	if dogecoinAllowMinDifficulty(params, header, prev) {
		return params.PowLimitBits, nil
	}

	digishield := prev.Height >= params.DigishieldHeight
	adjustmentInterval := params.BlocksPerAdjustment
	if digishield {
		adjustmentInterval = 1
	}

	if (prev.Height+1)%adjustmentInterval != 0 {
		if params.PowAllowMinDifficultyBlocks {
			if int64(header.Time) > int64(prev.Header.Time)+2*params.PowTargetSpacingSecs {
				return params.PowLimitBits, nil
			}
			return walkBackToNonMinDifficulty(params, prev, adjustmentInterval, lookup)
		}
		return prev.Header.Bits, nil
	}

	// Once every block retargets, the window is exactly the two blocks
	// immediately preceding the one being validated: time(h-1) - time(h-2),
	// i.e. one block further back than prev itself.
	blocksToGoBack := adjustmentInterval - 1
	if digishield {
		blocksToGoBack = 1
	} else if prev.Height+1 != adjustmentInterval {
		blocksToGoBack = adjustmentInterval
	}
	if blocksToGoBack > prev.Height {
		return 0, fmt.Errorf("%w: height underflow computing digishield window", ErrBadDifficulty)
	}
	firstHeight := prev.Height - blocksToGoBack
	first, err := lookup.AncestorByHeight(firstHeight)
	if err != nil {
		return 0, err
	}

	target, err := TargetFromBits(prev.Header.Bits)
	if err != nil {
		return 0, err
	}
	raw := int64(prev.Header.Time) - int64(first.Header.Time)
	var actual int64
	if digishield {
		actual = dogecoinDigishieldTimespan(raw, params.PowTargetTimespanSecs)
	} else {
		actual = clampTimespan(raw, params.PowTargetTimespanSecs, params.MaxAdjustmentFactor)
	}

	target = new(big.Int).Div(target, big.NewInt(params.PowTargetTimespanSecs))
	return retarget(target, actual, 1, params.PowLimit)
}

// zcashAveragingWindowTimespan/zcashMinActualTimespan/zcashMaxActualTimespan
// mirror CChainParams::AveragingWindowTimespan/MinActualTimespan/
// MaxActualTimespan from zcash's chainparams.cpp; the mainnet/testnet
// nPowMaxAdjustUp/nPowMaxAdjustDown values (16%/32%) are shared by both
// networks and unaffected by the Blossom halving this core does not model.
const (
	zcashMaxAdjustUpPct   = 16
	zcashMaxAdjustDownPct = 32
)

func zcashAveragingWindowTimespan(params *chainparams.Params) int64 {
	return int64(params.PowAveragingWindow) * params.PowTargetSpacingSecs
}

func zcashMinActualTimespan(params *chainparams.Params) int64 {
	return zcashAveragingWindowTimespan(params) * (100 - zcashMaxAdjustUpPct) / 100
}

func zcashMaxActualTimespan(params *chainparams.Params) int64 {
	return zcashAveragingWindowTimespan(params) * (100 + zcashMaxAdjustDownPct) / 100
}

func medianOf(times []uint32) uint32 {
	sorted := make([]uint32, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// zcashNextWork mirrors zcash_get_next_work_required/
// zcash_calculate_next_work_required from zcash.rs: an averaging-window
// target mean plus a median-time-past damped timespan, per ZIP-208's
// digital-shift-free variant of Zcash's original difficulty adjustment.
func zcashNextWork(params *chainparams.Params, header *chainmodel.Header, prev *chainmodel.HeaderRecord, lookup ancestorLookup) (uint32, error) {
	if params.PowAllowMinDifficultyBlocksAfterHeight != nil && prev.Height >= *params.PowAllowMinDifficultyBlocksAfterHeight {
		if int64(header.Time) > int64(prev.Header.Time)+params.PowTargetSpacingSecs*6 {
			return params.PowLimitBits, nil
		}
	}

	window := int(params.PowAveragingWindow)
	medianSpan := params.MedianTimeSpan

	current := prev
	totalTarget := new(big.Int)
	medianTime := make([]uint32, medianSpan)

	for i := 0; i < window; i++ {
		if i < medianSpan {
			medianTime[i] = current.Header.Time
		}
		target, err := TargetFromBits(current.Header.Bits)
		if err != nil {
			return 0, err
		}
		totalTarget.Add(totalTarget, target)
		if totalTarget.BitLen() > 256 {
			return 0, fmt.Errorf("%w: total_target overflowed 256 bits", ErrBadDifficulty)
		}
		next, err := lookup.AncestorByHash(current.PrevHash)
		if err != nil {
			return 0, err
		}
		current = next
	}
	prevMedianTimePast := medianOf(medianTime)

	for i := 0; i < medianSpan; i++ {
		medianTime[i] = current.Header.Time
		next, err := lookup.AncestorByHash(current.PrevHash)
		if err != nil {
			return 0, err
		}
		current = next
	}
	firstMedianTimePast := medianOf(medianTime)

	averageTarget := new(big.Int).Div(totalTarget, big.NewInt(int64(params.PowAveragingWindow)))

	averagingWindowTimespan := zcashAveragingWindowTimespan(params)
	actual := int64(prevMedianTimePast) - int64(firstMedianTimePast)
	actual = averagingWindowTimespan + (actual-averagingWindowTimespan)/4
	minSpan := zcashMinActualTimespan(params)
	maxSpan := zcashMaxActualTimespan(params)
	if actual < minSpan {
		actual = minSpan
	}
	if actual > maxSpan {
		actual = maxSpan
	}

	target := new(big.Int).Div(averageTarget, big.NewInt(averagingWindowTimespan))
	return retarget(target, actual, 1, params.PowLimit)
}
