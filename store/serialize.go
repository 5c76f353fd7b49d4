package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainmodel"
)

// encodeRecord serializes a HeaderRecord for LevelDB storage. The layout
// follows the teacher's fixed-then-variable BinWrite convention
// (binary.go): the 80-byte header, then block_hash/prev_hash, height,
// chain_work as a fixed 32-byte big-endian field (per spec.md §9's design
// note that chain_work is "serialized as big-endian bytes"), tx_count, and
// an optional aux-parent hash.
func encodeRecord(rec *chainmodel.HeaderRecord) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(rec.Header.Encode())
	buf.Write(rec.BlockHash[:])
	buf.Write(rec.PrevHash[:])
	if err := binary.Write(buf, binary.BigEndian, rec.Height); err != nil {
		return nil, err
	}

	var workBytes [32]byte
	if rec.ChainWork != nil {
		rec.ChainWork.FillBytes(workBytes[:])
	}
	buf.Write(workBytes[:])

	if err := binary.Write(buf, binary.BigEndian, rec.TxCount); err != nil {
		return nil, err
	}

	if rec.AuxParent != nil {
		buf.WriteByte(1)
		buf.Write(rec.AuxParent[:])
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

func decodeRecord(b []byte) (*chainmodel.HeaderRecord, error) {
	r := bytes.NewReader(b)

	headerBytes := make([]byte, chainmodel.HeaderSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("store: decode header: %w", err)
	}
	header, err := chainmodel.DecodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	rec := &chainmodel.HeaderRecord{Header: *header}

	if _, err := io.ReadFull(r, rec.BlockHash[:]); err != nil {
		return nil, fmt.Errorf("store: decode block_hash: %w", err)
	}
	if _, err := io.ReadFull(r, rec.PrevHash[:]); err != nil {
		return nil, fmt.Errorf("store: decode prev_hash: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &rec.Height); err != nil {
		return nil, fmt.Errorf("store: decode height: %w", err)
	}

	var workBytes [32]byte
	if _, err := io.ReadFull(r, workBytes[:]); err != nil {
		return nil, fmt.Errorf("store: decode chain_work: %w", err)
	}
	rec.ChainWork = new(big.Int).SetBytes(workBytes[:])

	if err := binary.Read(r, binary.BigEndian, &rec.TxCount); err != nil {
		return nil, fmt.Errorf("store: decode tx_count: %w", err)
	}

	hasAux, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("store: decode aux flag: %w", err)
	}
	if hasAux == 1 {
		var h chainhash.Hash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, fmt.Errorf("store: decode aux_parent: %w", err)
		}
		rec.AuxParent = &h
	}

	return rec, nil
}

func heightKey(height uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'M'
	binary.BigEndian.PutUint64(key[1:], height)
	return key
}

func hashKey(hash chainhash.Hash) []byte {
	key := make([]byte, 33)
	key[0] = 'H'
	copy(key[1:], hash[:])
	return key
}

var (
	tipKey     = []byte("tip")
	gcFloorKey = []byte("gc_floor")
)
