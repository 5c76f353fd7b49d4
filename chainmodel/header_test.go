package chainmodel_test

import (
	"testing"

	"github.com/nearlight/btcspv/chainmodel"
	"github.com/nearlight/btcspv/chainparams"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTripsThroughEncodeDecode(t *testing.T) {
	h := chainmodel.Header{
		Version: 1,
		Time:    1231006505,
		Bits:    0x1d00ffff,
		Nonce:   2083236893,
	}
	h.MerkleRoot[0] = 0xab

	raw := h.Encode()
	require.Len(t, raw, chainmodel.HeaderSize)

	decoded, err := chainmodel.DecodeHeader(raw)
	require.NoError(t, err)
	require.Equal(t, h, *decoded)
}

func TestDecodeHeaderRejectsWrongLength(t *testing.T) {
	_, err := chainmodel.DecodeHeader(make([]byte, chainmodel.HeaderSize-1))
	require.ErrorIs(t, err, chainmodel.ErrMalformedHeader)
}

func TestPowHashMatchesBlockHashForBitcoin(t *testing.T) {
	h := &chainmodel.Header{Version: 1, Bits: 0x1d00ffff}
	powHash, err := h.PowHash(chainparams.Bitcoin)
	require.NoError(t, err)
	require.Equal(t, h.BlockHash(), powHash)
}

func TestPowHashDiffersForScryptChains(t *testing.T) {
	h := &chainmodel.Header{Version: 1, Bits: 0x1e0fffff}
	powHash, err := h.PowHash(chainparams.Litecoin)
	require.NoError(t, err)
	require.NotEqual(t, h.BlockHash(), powHash)
}

func TestZcashHeaderRoundTripsThroughEncodeDecode(t *testing.T) {
	z := chainmodel.ZcashHeader{
		Version:  4,
		Time:     1478403829,
		Bits:     0x1f07ffff,
		Solution: []byte{0x01, 0x02, 0x03, 0x04},
	}
	z.MerkleRoot[0] = 0xcd

	raw := z.Encode()
	decoded, err := chainmodel.DecodeZcashHeader(raw)
	require.NoError(t, err)
	require.Equal(t, z, *decoded)
	require.Equal(t, z.BlockHash(), decoded.BlockHash())
}

func TestZcashAsHeaderProjectsCommonFields(t *testing.T) {
	z := chainmodel.ZcashHeader{Version: 4, Time: 100, Bits: 0x1f07ffff}
	z.PrevHash[0] = 0x01
	z.MerkleRoot[0] = 0x02

	projected := z.AsHeader()
	require.Equal(t, z.Version, projected.Version)
	require.Equal(t, z.PrevHash, projected.PrevHash)
	require.Equal(t, z.MerkleRoot, projected.MerkleRoot)
	require.Equal(t, z.Time, projected.Time)
	require.Equal(t, z.Bits, projected.Bits)
}
