package btcspv

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainmodel"
	"github.com/nearlight/btcspv/chainparams"
)

// fakeAncestors is a minimal ancestorLookup backed by two plain maps, keyed
// by height and by hash, for exercising the retarget functions without a
// real store.
type fakeAncestors struct {
	byHeight map[uint64]*chainmodel.HeaderRecord
	byHash   map[chainhash.Hash]*chainmodel.HeaderRecord
}

func newFakeAncestors() *fakeAncestors {
	return &fakeAncestors{
		byHeight: make(map[uint64]*chainmodel.HeaderRecord),
		byHash:   make(map[chainhash.Hash]*chainmodel.HeaderRecord),
	}
}

func (f *fakeAncestors) add(rec *chainmodel.HeaderRecord) {
	f.byHeight[rec.Height] = rec
	f.byHash[rec.BlockHash] = rec
}

func (f *fakeAncestors) AncestorByHeight(height uint64) (*chainmodel.HeaderRecord, error) {
	rec, ok := f.byHeight[height]
	if !ok {
		return nil, ErrPrevBlockNotFound
	}
	return rec, nil
}

func (f *fakeAncestors) AncestorByHash(hash chainhash.Hash) (*chainmodel.HeaderRecord, error) {
	rec, ok := f.byHash[hash]
	if !ok {
		return nil, ErrPrevBlockNotFound
	}
	return rec, nil
}

func recordAt(height uint64, bits uint32, t uint32) *chainmodel.HeaderRecord {
	h := chainmodel.Header{Bits: bits, Time: t}
	var hash chainhash.Hash
	hash[0] = byte(height)
	hash[1] = byte(height >> 8)
	return &chainmodel.HeaderRecord{Header: h, BlockHash: hash, Height: height}
}

// chainedRecord is recordAt plus an explicit PrevHash, for building chains
// long enough that walking back via AncestorByHash (rather than by height)
// reaches every ancestor a retarget function needs.
func chainedRecord(height uint64, bits uint32, t uint32, prevHash chainhash.Hash) *chainmodel.HeaderRecord {
	h := chainmodel.Header{Bits: bits, Time: t, PrevHash: prevHash}
	var hash chainhash.Hash
	hash[0] = byte(height)
	hash[1] = byte(height >> 8)
	hash[2] = byte(height >> 16)
	return &chainmodel.HeaderRecord{Header: h, BlockHash: hash, PrevHash: prevHash, Height: height}
}

func TestBitcoinNextWorkNonRetargetKeepsBits(t *testing.T) {
	params := chainparams.ForChain(chainparams.Bitcoin, false)
	prev := recordAt(100, 0x1d00ffff, 1000)
	header := &chainmodel.Header{Time: 1600}

	bits, err := NextWorkRequired(params, header, prev, newFakeAncestors())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bits != prev.Header.Bits {
		t.Fatalf("expected unchanged bits 0x%08x, got 0x%08x", prev.Header.Bits, bits)
	}
}

func TestBitcoinNextWorkRetargetsFaster(t *testing.T) {
	params := chainparams.ForChain(chainparams.Bitcoin, false)
	ancestors := newFakeAncestors()

	prevHeight := params.BlocksPerAdjustment - 1
	firstHeight := prevHeight - (params.BlocksPerAdjustment - 1) // == 0
	first := recordAt(firstHeight, 0x1d00ffff, 0)
	ancestors.add(first)

	// actual timespan is exactly a quarter of the target: blocks came in
	// four times faster than expected, so the new target should shrink
	// (difficulty rises, target falls).
	fastTimespan := uint32(params.PowTargetTimespanSecs / 4)
	prev := recordAt(prevHeight, 0x1d00ffff, fastTimespan)
	header := &chainmodel.Header{Time: uint32(int64(fastTimespan) + params.PowTargetSpacingSecs)}

	bits, err := NextWorkRequired(params, header, prev, ancestors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oldTarget, err := TargetFromBits(prev.Header.Bits)
	if err != nil {
		t.Fatal(err)
	}
	newTarget, err := TargetFromBits(bits)
	if err != nil {
		t.Fatal(err)
	}
	if newTarget.Cmp(oldTarget) >= 0 {
		t.Fatalf("expected target to shrink after a too-fast epoch, old=%s new=%s", oldTarget, newTarget)
	}
}

func TestRetargetClampsToPowLimit(t *testing.T) {
	params := chainparams.ForChain(chainparams.Bitcoin, false)
	// An enormous actual timespan should clamp to powLimit, not overflow
	// past it.
	bits, err := retarget(params.PowLimit, params.PowTargetTimespanSecs*1000, params.PowTargetTimespanSecs, params.PowLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target, err := TargetFromBits(bits)
	if err != nil {
		t.Fatal(err)
	}
	if target.Cmp(params.PowLimit) > 0 {
		t.Fatalf("target %s exceeds pow limit %s", target, params.PowLimit)
	}
}

func TestClampTimespanBounds(t *testing.T) {
	if got := clampTimespan(1, 100, 4); got != 25 {
		t.Fatalf("expected floor 25, got %d", got)
	}
	if got := clampTimespan(1000, 100, 4); got != 400 {
		t.Fatalf("expected ceiling 400, got %d", got)
	}
	if got := clampTimespan(150, 100, 4); got != 150 {
		t.Fatalf("expected unchanged 150, got %d", got)
	}
}

func TestMedianOfOddAndEven(t *testing.T) {
	if got := medianOf([]uint32{5, 1, 3}); got != 3 {
		t.Fatalf("expected median 3, got %d", got)
	}
	if got := medianOf([]uint32{1, 2, 3, 4}); got != 3 {
		t.Fatalf("expected median 3 (upper-middle of 4), got %d", got)
	}
}

// TestLitecoinNextWorkNoChangeAtRealWorldTimespan pins PowTargetTimespanSecs
// against Litecoin's real 302400-second (3.5-day) retarget window rather
// than reading it back out of chainparams: a misconfigured constant (e.g.
// accidentally divided by 4) would still be internally self-consistent with
// itself, but would show up here as a bits change where none is expected.
func TestLitecoinNextWorkNoChangeAtRealWorldTimespan(t *testing.T) {
	params := chainparams.ForChain(chainparams.Litecoin, false)
	ancestors := newFakeAncestors()

	const realWorldTimespan = 2016 * 150 // Litecoin's actual 3.5-day window
	const bits = 0x1e00ffff              // below PowLimit, so the halving shortcut never engages

	prevHeight := params.BlocksPerAdjustment - 1
	first := recordAt(0, bits, 0)
	ancestors.add(first)

	prev := recordAt(prevHeight, bits, uint32(realWorldTimespan))
	header := &chainmodel.Header{Time: uint32(realWorldTimespan) + uint32(params.PowTargetSpacingSecs)}

	got, err := NextWorkRequired(params, header, prev, ancestors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != bits {
		t.Fatalf("expected unchanged bits 0x%08x when the actual timespan matches Litecoin's real 3.5-day window, got 0x%08x", bits, got)
	}
}

func TestLitecoinNextWorkRetargetsFaster(t *testing.T) {
	params := chainparams.ForChain(chainparams.Litecoin, false)
	ancestors := newFakeAncestors()

	prevHeight := params.BlocksPerAdjustment - 1
	first := recordAt(0, params.PowLimitBits, 0)
	ancestors.add(first)

	fastTimespan := uint32(params.PowTargetTimespanSecs / 4)
	prev := recordAt(prevHeight, params.PowLimitBits, fastTimespan)
	header := &chainmodel.Header{Time: fastTimespan + uint32(params.PowTargetSpacingSecs)}

	bits, err := NextWorkRequired(params, header, prev, ancestors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oldTarget, err := TargetFromBits(prev.Header.Bits)
	if err != nil {
		t.Fatal(err)
	}
	newTarget, err := TargetFromBits(bits)
	if err != nil {
		t.Fatal(err)
	}
	if newTarget.Cmp(oldTarget) >= 0 {
		t.Fatalf("expected target to shrink after a too-fast epoch, old=%s new=%s", oldTarget, newTarget)
	}
}

// buildZcashAncestorChain constructs n height-linked records (0..n-1), each
// pointing back to the previous one's hash, spaced spacing seconds apart:
// enough for zcashNextWork to walk its averaging window plus median-time
// span purely by hash, the way a real fork walk would.
func buildZcashAncestorChain(n int, bits uint32, startTime, spacing uint32) []*chainmodel.HeaderRecord {
	chain := make([]*chainmodel.HeaderRecord, n)
	var prevHash chainhash.Hash
	for i := 0; i < n; i++ {
		rec := chainedRecord(uint64(i), bits, startTime+uint32(i)*spacing, prevHash)
		chain[i] = rec
		prevHash = rec.BlockHash
	}
	return chain
}

func TestZcashNextWorkShrinksTargetWhenBlocksComeFast(t *testing.T) {
	params := chainparams.ForChain(chainparams.Zcash, false)
	ancestors := newFakeAncestors()

	// PowAveragingWindow(17) records starting at prev itself, the
	// MedianTimeSpan(11) records before those, plus one more so the final
	// backward step always resolves.
	const n = 1 + 17 + 11
	spacing := uint32(params.PowTargetSpacingSecs) / 2 // blocks twice as fast as targeted
	chain := buildZcashAncestorChain(n, params.PowLimitBits, 1000, spacing)
	for _, rec := range chain {
		ancestors.add(rec)
	}
	prev := chain[n-1]
	header := &chainmodel.Header{Time: prev.Header.Time + spacing}

	bits, err := NextWorkRequired(params, header, prev, ancestors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oldTarget, err := TargetFromBits(params.PowLimitBits)
	if err != nil {
		t.Fatal(err)
	}
	newTarget, err := TargetFromBits(bits)
	if err != nil {
		t.Fatal(err)
	}
	if newTarget.Cmp(oldTarget) >= 0 {
		t.Fatalf("expected target to shrink when blocks arrive twice as fast as targeted, old=%s new=%s", oldTarget, newTarget)
	}
}

func TestDogecoinDigishieldSwitchesAdjustmentInterval(t *testing.T) {
	params := chainparams.ForChain(chainparams.Dogecoin, false)
	ancestors := newFakeAncestors()

	prevHeight := params.DigishieldHeight + 10
	first := recordAt(prevHeight-1, 0x1e0fffff, 0)
	ancestors.add(first)

	prev := recordAt(prevHeight, 0x1e0fffff, uint32(params.PowTargetSpacingSecs))
	header := &chainmodel.Header{Time: uint32(2 * params.PowTargetSpacingSecs)}

	// Past DigishieldHeight, every block retargets (adjustment interval 1),
	// so this must not fall into the "keep parent bits" branch.
	bits, err := NextWorkRequired(params, header, prev, ancestors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = bits // any successfully computed value confirms the retarget branch ran without underflow
}

// TestDogecoinDigishieldDampsAndClampsAsymmetrically pins the DigiShield
// clamp to spec.md's damped [timespan*3/4, timespan*3/2] bound rather than
// Bitcoin/Litecoin's undamped [timespan/4, timespan*4] bound: a raw actual
// timespan ten times the target would clamp to timespan*4 under the
// undamped rule, but must damp toward timespan first and then clamp to
// timespan*3/2 here.
func TestDogecoinDigishieldDampsAndClampsAsymmetrically(t *testing.T) {
	params := chainparams.ForChain(chainparams.Dogecoin, false)
	ancestors := newFakeAncestors()

	const bits = 0x1d00ffff // well below PowLimit, so the result never clamps to it
	prevHeight := params.DigishieldHeight + 10

	timespan := params.PowTargetTimespanSecs
	raw := timespan * 10 // ten times too slow

	first := recordAt(prevHeight-1, bits, 0)
	ancestors.add(first)
	prev := recordAt(prevHeight, bits, uint32(raw))
	header := &chainmodel.Header{Time: uint32(raw) + uint32(params.PowTargetSpacingSecs)}

	got, err := NextWorkRequired(params, header, prev, ancestors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dampedActual := dogecoinDigishieldTimespan(raw, timespan)
	maxSpan := timespan + timespan/2
	if dampedActual != maxSpan {
		t.Fatalf("expected damped actual to clamp to timespan*3/2 = %d, got %d", maxSpan, dampedActual)
	}

	oldTarget, err := TargetFromBits(bits)
	if err != nil {
		t.Fatal(err)
	}
	scaled := new(big.Int).Div(oldTarget, big.NewInt(timespan))
	wantTarget := new(big.Int).Mul(scaled, big.NewInt(dampedActual))
	wantBits := BitsFromTarget(wantTarget)
	if got != wantBits {
		t.Fatalf("expected damped-clamp bits 0x%08x, got 0x%08x", wantBits, got)
	}

	undampedActual := clampTimespan(raw, timespan, params.MaxAdjustmentFactor)
	if undampedActual == dampedActual {
		t.Fatalf("test setup does not distinguish damped from undamped clamping")
	}
}

func TestAddWorkRejectsOverflow(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	_, err := addWork(max, big.NewInt(1))
	if err == nil {
		t.Fatal("expected overflow error")
	}
}
