package btcspv

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainparams"
	"github.com/nearlight/btcspv/store"
)

// Config bundles the per-deployment settings the host chooses once at
// Init time: which network to validate, how deep a fork may run before it
// is rejected outright, how many competing tips to remember, how long a
// history to retain before GC, and how large a submit_blocks batch may be.
// Grounded on lib.rs's NetworkConfig plus the contract-level constants
// (MAX_FORK_LEN, MAX_FORKS, GC_THRESHOLD) it hardcodes.
type Config struct {
	Chain        chainparams.Chain
	Testnet      bool
	MaxForks     int
	MaxForkLen   uint64
	GCThreshold  uint64
	MaxBatchSize int
	SkipPoW      bool
}

// LightClient is the external interface spec.md §6 names: a single
// entry point wrapping the chain state machine and its backing store, safe
// to call synchronously from a single-threaded host with no concurrent
// access (spec.md §5).
type LightClient struct {
	chain *Chain
	store store.HeaderStore
}

// NewLightClient wires a LightClient against a store the host has already
// opened (store.MemStore for tests/simulation, store.LevelStore for
// standalone deployments). Init must still be called once before any
// mutating operation.
func NewLightClient(cfg Config, st store.HeaderStore) *LightClient {
	params := chainparams.ForChain(cfg.Chain, cfg.Testnet)
	return &LightClient{
		chain: NewChain(params, st, cfg.MaxForks, cfg.MaxForkLen, cfg.GCThreshold, cfg.SkipPoW, cfg.MaxBatchSize),
		store: st,
	}
}

// Init bootstraps the client with its genesis record. It may be called
// exactly once (ErrAlreadyInitialized thereafter).
func (c *LightClient) Init(genesis *HeaderRecord) error {
	return c.chain.Init(genesis)
}

// SetPaused gates SubmitBlocks behind a host-controlled pause plugin
// (spec.md §5).
func (c *LightClient) SetPaused(paused bool) {
	c.chain.SetPaused(paused)
}

// SubmitBlocks validates and applies each header submission in order,
// returning how many were accepted before the first failure (spec.md §6:
// "partial-batch behavior: stop at first failure and surface its index").
// The host is responsible for rolling back all mutation on a returned
// error (spec.md §5); the core itself does not undo already-applied
// headers within a failed batch.
func (c *LightClient) SubmitBlocks(items []HeaderSubmission) (int, error) {
	return c.chain.SubmitBlocks(items)
}

// GetLastBlockHeader returns the record at the current main-chain tip.
func (c *LightClient) GetLastBlockHeader() (*HeaderRecord, error) {
	return c.chain.GetLastBlockHeader()
}

// GetBlockHash returns the main-chain hash at height, or ok=false if
// height has no main-chain entry (never reached, or reorged away).
func (c *LightClient) GetBlockHash(height uint64) (chainhash.Hash, bool, error) {
	return c.chain.GetBlockHash(height)
}

// GetHeader returns the record for hash from any tracked chain.
func (c *LightClient) GetHeader(hash chainhash.Hash) (*HeaderRecord, bool, error) {
	return c.chain.GetHeader(hash)
}

// VerifyTransactionInclusion answers a Merkle inclusion query against the
// header stored for blockHash. txCount is the caller-supplied transaction
// count for the block the proof was drawn from (spec.md §4.7); minConfirmations
// overrides the chain's default confirmation requirement when non-nil.
func (c *LightClient) VerifyTransactionInclusion(txHash, blockHash chainhash.Hash, txIndex uint64, path []chainhash.Hash, txCount uint64, minConfirmations *uint64) (bool, error) {
	return c.chain.VerifyTransactionInclusion(txHash, blockHash, txIndex, path, txCount, minConfirmations)
}

// GetForks returns a snapshot of every tracked competing tip.
func (c *LightClient) GetForks() []*Fork {
	return c.chain.GetForks()
}

// GetMainchainSize reports the number of headers currently retained on the
// main chain (supplemented from lib.rs's get_mainchain_size).
func (c *LightClient) GetMainchainSize() (uint64, error) {
	return c.chain.GetMainchainSize()
}

// GetLastNBlockHashes returns up to limit main-chain hashes ending skip
// blocks below the tip (supplemented from lib.rs's get_last_n_blocks_hashes).
func (c *LightClient) GetLastNBlockHashes(skip, limit uint64) ([]chainhash.Hash, error) {
	return c.chain.GetLastNBlockHashes(skip, limit)
}

// Close releases the underlying store's resources.
func (c *LightClient) Close() error {
	return c.store.Close()
}

// DecodeAndSubmit is a convenience wrapper for callers that keep a plain
// []byte per header rather than pre-building HeaderSubmission values (e.g.
// the newline-delimited hex format cmd/lightclientsim reads).
func DecodeAndSubmit(c *LightClient, headers [][]byte) (int, error) {
	items := make([]HeaderSubmission, len(headers))
	for i, raw := range headers {
		items[i] = HeaderSubmission{Raw: raw}
	}
	return c.SubmitBlocks(items)
}
