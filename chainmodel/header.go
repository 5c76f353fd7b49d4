// Package chainmodel defines the wire-level header formats and the derived
// HeaderRecord/AuxData shapes shared by the difficulty engine, the header
// store, and the chain state machine. It sits below all of those so that
// the header store package can depend on the record type without creating
// an import cycle back into the root package.
package chainmodel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainparams"
	"golang.org/x/crypto/scrypt"
)

// HeaderSize is the fixed wire size of a Bitcoin-family block header:
// version(4) + prev_hash(32) + merkle_root(32) + time(4) + bits(4) + nonce(4).
const HeaderSize = 4 + 32 + 32 + 4 + 4 + 4

// Header is the canonical 80-byte Bitcoin-family block header. Zcash's
// larger on-wire header is handled by ZcashHeader; downstream code only
// ever sees a Header plus the {block_hash, pow_hash} pair ZcashHeader
// reduces to (spec.md §4.1).
type Header struct {
	Version    int32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Time       uint32
	Bits       uint32
	Nonce      uint32
}

// BinRead implements the teacher's BinReader duck-type (binary.go) so a
// Header can be read with the same BinRead(&h, r) call used throughout the
// codebase for any fixed-size wire structure.
func (h *Header) BinRead(r io.Reader) error {
	return binary.Read(r, binary.LittleEndian, h)
}

// BinWrite implements BinWriter.
func (h *Header) BinWrite(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, h)
}

// DecodeHeader parses exactly HeaderSize bytes into a Header. Any other
// length is ErrMalformedHeader, matching spec.md §4.1.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) != HeaderSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedHeader, HeaderSize, len(b))
	}
	var h Header
	if err := h.BinRead(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return &h, nil
}

// Encode serializes the header to its canonical 80-byte little-endian form.
func (h *Header) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(HeaderSize)
	// BinWrite never fails against a bytes.Buffer.
	_ = h.BinWrite(buf)
	return buf.Bytes()
}

// BlockHash is the chain-identifying hash: double-SHA256 of the canonical
// serialization, regardless of chain variant (spec.md §4.1).
func (h *Header) BlockHash() chainhash.Hash {
	return chainhash.DoubleHashH(h.Encode())
}

// PowHash is the hash checked against the compact target. For
// Bitcoin/Zcash it is the same as BlockHash; for Litecoin/Dogecoin it is
// scrypt(header, N=1024, r=1, p=1, dkLen=32) with the header bytes used as
// both password and salt, per spec.md §4.1.
func (h *Header) PowHash(chain chainparams.Chain) (chainhash.Hash, error) {
	switch chain {
	case chainparams.Litecoin, chainparams.Dogecoin:
		return scryptPowHash(h.Encode())
	default:
		return h.BlockHash(), nil
	}
}

func scryptPowHash(header []byte) (chainhash.Hash, error) {
	digest, err := scrypt.Key(header, header, 1024, 1, 1, 32)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: scrypt: %v", ErrMalformedHeader, err)
	}
	var h chainhash.Hash
	copy(h[:], digest)
	return h, nil
}

// ZcashHeader is Zcash's larger header variant: it carries an extra
// hashReserved commitment, a 32-byte nonce, and a variable-length Equihash
// solution. spec.md §4.1 deliberately does not validate the solution; it is
// retained verbatim only so BlockHash() can be computed correctly.
type ZcashHeader struct {
	Version      int32
	PrevHash     chainhash.Hash
	MerkleRoot   chainhash.Hash
	HashReserved chainhash.Hash
	Time         uint32
	Bits         uint32
	Nonce        [32]byte
	Solution     []byte
}

// AsHeader projects the fields the downstream pipeline actually consumes
// (spec.md §4.1: "the downstream pipeline only needs {prev_hash,
// merkle_root, time, bits, block_hash, pow_hash}"). The projected Header's
// own Nonce/Version fields are not consensus-meaningful past this point;
// they exist only so callers that expect a Header can inspect the common
// subset.
func (z *ZcashHeader) AsHeader() *Header {
	return &Header{
		Version:    z.Version,
		PrevHash:   z.PrevHash,
		MerkleRoot: z.MerkleRoot,
		Time:       z.Time,
		Bits:       z.Bits,
	}
}

// Encode serializes the Zcash header in its canonical on-wire form:
// fixed 4+32+32+32+4+4+32 = 140 bytes, followed by a CompactSize-prefixed
// solution.
func (z *ZcashHeader) Encode() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, z.Version)
	buf.Write(z.PrevHash[:])
	buf.Write(z.MerkleRoot[:])
	buf.Write(z.HashReserved[:])
	_ = binary.Write(buf, binary.LittleEndian, z.Time)
	_ = binary.Write(buf, binary.LittleEndian, z.Bits)
	buf.Write(z.Nonce[:])
	writeCompactSize(buf, uint64(len(z.Solution)))
	buf.Write(z.Solution)
	return buf.Bytes()
}

// BlockHash is double-SHA256 of the full canonical serialization, including
// the Equihash solution commitment region (spec.md §4.1); the solution
// itself is never checked for validity here.
func (z *ZcashHeader) BlockHash() chainhash.Hash {
	return chainhash.DoubleHashH(z.Encode())
}

// zcashHeaderFixedSize is the fixed-width prefix of a ZcashHeader: version(4)
// + prev_hash(32) + merkle_root(32) + hash_reserved(32) + time(4) + bits(4)
// + nonce(32), before the CompactSize-prefixed Equihash solution.
const zcashHeaderFixedSize = 4 + 32 + 32 + 32 + 4 + 4 + 32

// DecodeZcashHeader parses Zcash's larger on-wire header: the fixed prefix
// above, followed by a CompactSize length and that many solution bytes.
func DecodeZcashHeader(b []byte) (*ZcashHeader, error) {
	if len(b) < zcashHeaderFixedSize {
		return nil, fmt.Errorf("%w: zcash header shorter than %d bytes", ErrMalformedHeader, zcashHeaderFixedSize)
	}
	r := bytes.NewReader(b)
	var z ZcashHeader
	if err := binary.Read(r, binary.LittleEndian, &z.Version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if _, err := io.ReadFull(r, z.PrevHash[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if _, err := io.ReadFull(r, z.MerkleRoot[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if _, err := io.ReadFull(r, z.HashReserved[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &z.Time); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &z.Bits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if _, err := io.ReadFull(r, z.Nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	solutionLen, err := readCompactSize(r)
	if err != nil {
		return nil, fmt.Errorf("%w: solution length: %v", ErrMalformedHeader, err)
	}
	z.Solution = make([]byte, solutionLen)
	if _, err := io.ReadFull(r, z.Solution); err != nil {
		return nil, fmt.Errorf("%w: solution: %v", ErrMalformedHeader, err)
	}
	return &z, nil
}

// readCompactSize reads Bitcoin's variable-length integer encoding, the
// inverse of writeCompactSize below.
func readCompactSize(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	switch prefix[0] {
	case 0xfd:
		var v uint16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 0xfe:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 0xff:
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, err
		}
		return v, nil
	default:
		return uint64(prefix[0]), nil
	}
}

// writeCompactSize writes Bitcoin's variable-length integer encoding, the
// same shape as the teacher's writeVarInt in binary.go, kept local here
// since ZcashHeader is this package's only variable-length wire structure.
func writeCompactSize(w io.Writer, n uint64) {
	switch {
	case n < 0xfd:
		w.Write([]byte{byte(n)})
	case n <= 0xffff:
		w.Write([]byte{0xfd})
		binary.Write(w, binary.LittleEndian, uint16(n))
	case n <= 0xffffffff:
		w.Write([]byte{0xfe})
		binary.Write(w, binary.LittleEndian, uint32(n))
	default:
		w.Write([]byte{0xff})
		binary.Write(w, binary.LittleEndian, n)
	}
}
