package btcspv_test

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv"
	"github.com/nearlight/btcspv/chainparams"
	"github.com/nearlight/btcspv/store"
	"github.com/stretchr/testify/require"
)

// buildHeader constructs and encodes a Bitcoin-family header extending
// prev, holding bits and target_spacing constant so it never crosses a
// difficulty-retarget boundary in these tests.
func buildHeader(prevHash chainhash.Hash, bits uint32, t uint32) []byte {
	h := btcspv.Header{
		Version:    1,
		PrevHash:   prevHash,
		MerkleRoot: chainhash.Hash{0x01},
		Time:       t,
		Bits:       bits,
		Nonce:      0,
	}
	return h.Encode()
}

func newTestClient(t *testing.T) (*btcspv.LightClient, uint32, chainhash.Hash) {
	t.Helper()
	st := store.NewMemStore()
	client := btcspv.NewLightClient(btcspv.Config{
		Chain:        chainparams.Bitcoin,
		MaxForks:     4,
		MaxForkLen:   50,
		GCThreshold:  1000,
		MaxBatchSize: 100,
		SkipPoW:      true,
	}, st)

	const bits = 0x1d00ffff
	const genesisTime = 1231006505
	genesisHeader := btcspv.Header{
		Version:    1,
		PrevHash:   chainhash.Hash{},
		MerkleRoot: chainhash.Hash{0x00},
		Time:       genesisTime,
		Bits:       bits,
	}
	work, err := btcspv.WorkFromBits(bits)
	require.NoError(t, err)
	genesis := &btcspv.HeaderRecord{
		Header:    genesisHeader,
		BlockHash: genesisHeader.BlockHash(),
		ChainWork: work,
		Height:    0,
	}
	require.NoError(t, client.Init(genesis))
	return client, bits, genesis.BlockHash
}

func TestSubmitBlocksExtendsMainChain(t *testing.T) {
	client, bits, genesisHash := newTestClient(t)

	prevHash := genesisHash
	items := make([]btcspv.HeaderSubmission, 0, 5)
	tstamp := uint32(1231006505)
	for i := 0; i < 5; i++ {
		tstamp += 600
		raw := buildHeader(prevHash, bits, tstamp)
		h, err := btcspv.DecodeHeader(raw)
		require.NoError(t, err)
		prevHash = h.BlockHash()
		items = append(items, btcspv.HeaderSubmission{Raw: raw})
	}

	accepted, err := client.SubmitBlocks(items)
	require.NoError(t, err)
	require.Equal(t, 5, accepted)

	tip, err := client.GetLastBlockHeader()
	require.NoError(t, err)
	require.Equal(t, uint64(5), tip.Height)
	require.Equal(t, prevHash, tip.BlockHash)
}

// newLitecoinTestClient wires a Litecoin client with genesis mined (in the
// test-fixture sense: no actual scrypt search) at genesisBits, so PoW/
// difficulty rejection paths can be exercised the way spec.md scenario 3
// describes for a scrypt-PoW chain.
func newLitecoinTestClient(t *testing.T, genesisBits uint32, skipPoW bool) (*btcspv.LightClient, chainhash.Hash) {
	t.Helper()
	st := store.NewMemStore()
	client := btcspv.NewLightClient(btcspv.Config{
		Chain:        chainparams.Litecoin,
		MaxForks:     4,
		MaxForkLen:   50,
		GCThreshold:  1000,
		MaxBatchSize: 100,
		SkipPoW:      skipPoW,
	}, st)

	genesisHeader := btcspv.Header{
		Version:    1,
		PrevHash:   chainhash.Hash{},
		MerkleRoot: chainhash.Hash{0x00},
		Time:       1317972665,
		Bits:       genesisBits,
	}
	work, err := btcspv.WorkFromBits(genesisBits)
	require.NoError(t, err)
	genesis := &btcspv.HeaderRecord{
		Header:    genesisHeader,
		BlockHash: genesisHeader.BlockHash(),
		ChainWork: work,
		Height:    0,
	}
	require.NoError(t, client.Init(genesis))
	return client, genesis.BlockHash
}

// TestSubmitBlocksLitecoinRejectsTamperedBits exercises spec.md §8's
// scenario 3 "invalid bits" half: at a non-retarget height the expected
// bits are just the parent's, so a header claiming a different value must
// fail with BadDifficulty before PoW is ever checked.
func TestSubmitBlocksLitecoinRejectsTamperedBits(t *testing.T) {
	client, genesisHash := newLitecoinTestClient(t, 0x1e0fffff, true)

	raw := buildHeader(genesisHash, 0x1d00ffff, 1317973265) // wrong bits: not the parent's
	_, err := client.SubmitBlocks([]btcspv.HeaderSubmission{{Raw: raw}})
	require.Error(t, err)
	require.ErrorIs(t, err, btcspv.ErrBadDifficulty)
}

// TestSubmitBlocksLitecoinRejectsInsufficientPoW exercises scenario 3's
// "tampered nonce" half: bits are correct (unchanged at a non-retarget
// height) but the target is set so tight that no untampered scrypt search
// backs the header, so any submitted nonce must fail PoW.
func TestSubmitBlocksLitecoinRejectsInsufficientPoW(t *testing.T) {
	const tinyTargetBits = 0x03000001 // target == 1: no real hash will satisfy it
	client, genesisHash := newLitecoinTestClient(t, tinyTargetBits, false)

	raw := buildHeader(genesisHash, tinyTargetBits, 1317973265)
	_, err := client.SubmitBlocks([]btcspv.HeaderSubmission{{Raw: raw}})
	require.Error(t, err)
	require.ErrorIs(t, err, btcspv.ErrInsufficientPoW)
}

func TestSubmitBlocksRejectsUnknownParent(t *testing.T) {
	client, bits, _ := newTestClient(t)

	orphanParent := chainhash.Hash{0xff}
	raw := buildHeader(orphanParent, bits, 1231007105)

	_, err := client.SubmitBlocks([]btcspv.HeaderSubmission{{Raw: raw}})
	require.Error(t, err)
	require.ErrorIs(t, err, btcspv.ErrPrevBlockNotFound)
}

func TestSubmitBlocksIsIdempotentForIdenticalResubmission(t *testing.T) {
	client, bits, genesisHash := newTestClient(t)

	raw := buildHeader(genesisHash, bits, 1231007105)
	accepted, err := client.SubmitBlocks([]btcspv.HeaderSubmission{{Raw: raw}})
	require.NoError(t, err)
	require.Equal(t, 1, accepted)

	accepted, err = client.SubmitBlocks([]btcspv.HeaderSubmission{{Raw: raw}})
	require.NoError(t, err)
	require.Equal(t, 1, accepted)

	tip, err := client.GetLastBlockHeader()
	require.NoError(t, err)
	require.Equal(t, uint64(1), tip.Height)
}

func TestReorgPromotesHeavierFork(t *testing.T) {
	client, bits, genesisHash := newTestClient(t)

	// Extend main chain by two blocks: A1 -> A2.
	rawA1 := buildHeader(genesisHash, bits, 1231007105)
	a1, err := btcspv.DecodeHeader(rawA1)
	require.NoError(t, err)
	rawA2 := buildHeader(a1.BlockHash(), bits, 1231007705)

	accepted, err := client.SubmitBlocks([]btcspv.HeaderSubmission{{Raw: rawA1}, {Raw: rawA2}})
	require.NoError(t, err)
	require.Equal(t, 2, accepted)

	// Build a competing fork off genesis: B1 -> B2 -> B3, longer so its
	// cumulative chain_work overtakes main once B3 lands.
	rawB1 := buildHeader(genesisHash, bits, 1231007106)
	b1, err := btcspv.DecodeHeader(rawB1)
	require.NoError(t, err)
	rawB2 := buildHeader(b1.BlockHash(), bits, 1231007706)
	b2, err := btcspv.DecodeHeader(rawB2)
	require.NoError(t, err)
	rawB3 := buildHeader(b2.BlockHash(), bits, 1231008306)
	b3, err := btcspv.DecodeHeader(rawB3)
	require.NoError(t, err)

	accepted, err = client.SubmitBlocks([]btcspv.HeaderSubmission{{Raw: rawB1}, {Raw: rawB2}, {Raw: rawB3}})
	require.NoError(t, err)
	require.Equal(t, 3, accepted)

	tip, err := client.GetLastBlockHeader()
	require.NoError(t, err)
	require.Equal(t, uint64(3), tip.Height)
	require.Equal(t, b3.BlockHash(), tip.BlockHash)

	hash, ok, err := client.GetBlockHash(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b1.BlockHash(), hash)
}

func TestVerifyTransactionInclusionRespectsConfirmations(t *testing.T) {
	client, bits, genesisHash := newTestClient(t)

	txHash := chainhash.Hash{0xaa}
	root := txHash // single-transaction block: merkle root is the tx hash itself

	raw := buildHeader(genesisHash, bits, 1231007105)
	h, err := btcspv.DecodeHeader(raw)
	require.NoError(t, err)
	h.MerkleRoot = root
	raw = h.Encode()

	accepted, err := client.SubmitBlocks([]btcspv.HeaderSubmission{{Raw: raw}})
	require.NoError(t, err)
	require.Equal(t, 1, accepted)

	zero := uint64(0)
	ok, err := client.VerifyTransactionInclusion(txHash, h.BlockHash(), 0, nil, 1, &zero)
	require.NoError(t, err)
	require.True(t, ok)

	high := uint64(100)
	ok, err = client.VerifyTransactionInclusion(txHash, h.BlockHash(), 0, nil, 1, &high)
	require.NoError(t, err)
	require.False(t, ok)
}
