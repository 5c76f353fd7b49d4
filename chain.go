package btcspv

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nearlight/btcspv/chainmodel"
	"github.com/nearlight/btcspv/chainparams"
	"github.com/nearlight/btcspv/merkle"
	"github.com/nearlight/btcspv/store"
)

// HeaderSubmission pairs a raw wire-format header with its optional AuxPoW
// proof, mirroring submit_blocks_aux's (Header, Option<AuxData>) tuple in
// lib.rs. Aux is nil for every chain except Dogecoin past its AuxPoW
// activation height.
type HeaderSubmission struct {
	Raw []byte
	Aux *chainmodel.AuxData
}

// SubmitError reports which element of a submit_blocks batch failed, so the
// caller can tell the relayer where to resume (spec.md §6: "partial-batch
// behavior: stop at first failure and surface its index").
type SubmitError struct {
	Index int
	Err   error
}

func (e *SubmitError) Error() string { return fmt.Sprintf("btcspv: header %d: %v", e.Index, e.Err) }
func (e *SubmitError) Unwrap() error { return e.Err }

// Chain is the block-header state machine (component F): it validates
// incoming headers against the difficulty engine and PoW check, routes them
// to the main chain or a tracked fork, and executes reorgs when a fork
// overtakes main. It is grounded on lib.rs's BtcLightClient, generalized
// from a single hardcoded network to any chainparams.Params.
type Chain struct {
	params       *chainparams.Params
	store        store.HeaderStore
	forks        *ForkRegistry
	skipPoW      bool
	paused       bool
	gcThreshold  uint64
	maxBatchSize int

	// usedAuxParents tracks AuxPoW parent blocks already spent by some
	// submitted header, mirroring lib.rs's used_aux_parent_blocks
	// LookupSet: a merge-mined parent block may back only one Dogecoin
	// header.
	usedAuxParents map[chainhash.Hash]bool
}

// NewChain wires a Chain against its dependencies. Init must be called
// exactly once afterwards to bootstrap the genesis record.
func NewChain(params *chainparams.Params, st store.HeaderStore, maxForks int, maxForkLen uint64, gcThreshold uint64, skipPoW bool, maxBatchSize int) *Chain {
	return &Chain{
		params:         params,
		store:          st,
		forks:          NewForkRegistry(maxForks, maxForkLen),
		skipPoW:        skipPoW,
		gcThreshold:    gcThreshold,
		maxBatchSize:   maxBatchSize,
		usedAuxParents: make(map[chainhash.Hash]bool),
	}
}

// Init bootstraps genesis, matching lib.rs's init_genesis: the genesis
// height must align to a difficulty-adjustment boundary, and the record's
// declared block_hash must match its actual header hash.
func (c *Chain) Init(genesis *chainmodel.HeaderRecord) error {
	if _, ok, err := c.store.Tip(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}

	if c.params.BlocksPerAdjustment > 0 && genesis.Height%c.params.BlocksPerAdjustment != 0 {
		return fmt.Errorf("%w: genesis height %d not aligned to %d-block adjustment interval", ErrMalformedHeader, genesis.Height, c.params.BlocksPerAdjustment)
	}
	if genesis.Header.BlockHash() != genesis.BlockHash {
		return fmt.Errorf("%w: declared genesis block_hash does not match header", ErrMalformedHeader)
	}

	if err := c.store.Insert(genesis); err != nil {
		return err
	}
	if err := c.store.SetMain(genesis.Height, genesis.BlockHash); err != nil {
		return err
	}
	if err := c.store.SetTip(genesis.BlockHash); err != nil {
		return err
	}
	return c.store.SetGCFloor(genesis.Height)
}

// SetPaused gates mutating operations behind the host's pause plugin
// (spec.md §5): while paused, Submit* fails with ErrPaused and reads
// continue normally.
func (c *Chain) SetPaused(paused bool) { c.paused = paused }

// SubmitBlocks validates and applies each submission in order, stopping at
// the first failure and reporting its index via *SubmitError. It returns
// the number of headers accepted before that point (or all of them, on
// success).
func (c *Chain) SubmitBlocks(items []HeaderSubmission) (int, error) {
	if c.maxBatchSize > 0 && len(items) > c.maxBatchSize {
		return 0, fmt.Errorf("%w: batch of %d headers exceeds limit %d", ErrLimitExceeded, len(items), c.maxBatchSize)
	}

	for i, item := range items {
		if err := c.submitOne(item.Raw, item.Aux); err != nil {
			return i, &SubmitError{Index: i, Err: err}
		}
	}
	return len(items), nil
}

func decodeSubmittedHeader(params *chainparams.Params, raw []byte) (*chainmodel.Header, chainhash.Hash, chainhash.Hash, error) {
	if params.Chain == chainparams.Zcash {
		zh, err := chainmodel.DecodeZcashHeader(raw)
		if err != nil {
			return nil, chainhash.Hash{}, chainhash.Hash{}, err
		}
		hash := zh.BlockHash()
		// Equihash validation is out of scope (spec.md §4.1); the trust
		// assumption is the relayer plus the cumulative-work rule, so the
		// pow_hash checked against target is the same block hash.
		return zh.AsHeader(), hash, hash, nil
	}

	h, err := chainmodel.DecodeHeader(raw)
	if err != nil {
		return nil, chainhash.Hash{}, chainhash.Hash{}, err
	}
	powHash, err := h.PowHash(params.Chain)
	if err != nil {
		return nil, chainhash.Hash{}, chainhash.Hash{}, err
	}
	return h, h.BlockHash(), powHash, nil
}

func (c *Chain) submitOne(raw []byte, aux *chainmodel.AuxData) error {
	if c.paused {
		return ErrPaused
	}

	header, blockHash, powHash, err := decodeSubmittedHeader(c.params, raw)
	if err != nil {
		return err
	}

	// Re-submission of an identical record is a no-op success (spec.md
	// §4.6 step 1); a conflicting record for the same hash is impossible
	// here since blockHash is derived from the bytes themselves, so any
	// existing record for it is necessarily identical.
	if _, ok, err := c.store.Get(blockHash); err != nil {
		return err
	} else if ok {
		return nil
	}

	prev, ok, err := c.store.Get(header.PrevHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPrevBlockNotFound, header.PrevHash)
	}

	if err := c.checkTimestamp(header, prev); err != nil {
		return err
	}

	if aux != nil {
		if err := c.checkAux(header, blockHash, aux); err != nil {
			return err
		}
	} else {
		if err := c.checkDifficultyAndPoW(header, powHash, prev); err != nil {
			return err
		}
	}

	work, err := WorkFromBits(header.Bits)
	if err != nil {
		return err
	}
	chainWork, err := addWork(prev.ChainWork, work)
	if err != nil {
		return err
	}

	var auxParent *chainhash.Hash
	if aux != nil {
		h := aux.ParentBlock.BlockHash()
		auxParent = &h
	}

	record := &chainmodel.HeaderRecord{
		Header:    *header,
		BlockHash: blockHash,
		ChainWork: chainWork,
		Height:    prev.Height + 1,
		PrevHash:  header.PrevHash,
		AuxParent: auxParent,
	}

	if err := c.store.Insert(record); err != nil {
		return err
	}

	tipHash, _, err := c.store.Tip()
	if err != nil {
		return err
	}

	if header.PrevHash == tipHash {
		if err := c.store.SetMain(record.Height, record.BlockHash); err != nil {
			return err
		}
		if err := c.store.SetTip(record.BlockHash); err != nil {
			return err
		}
	} else {
		if err := c.submitForkHeader(record, tipHash); err != nil {
			return err
		}
	}

	return c.runGC(1)
}

// checkDifficultyAndPoW is the non-AuxPoW branch of submit_block_header:
// verify the retarget-derived bits, then require pow_hash <= target(bits).
func (c *Chain) checkDifficultyAndPoW(header *chainmodel.Header, powHash chainhash.Hash, prev *chainmodel.HeaderRecord) error {
	expected, err := NextWorkRequired(c.params, header, prev, &chainAncestorLookup{c: c, from: prev})
	if err != nil {
		return err
	}
	if expected != header.Bits {
		return fmt.Errorf("%w: expected bits 0x%08x, got 0x%08x", ErrBadDifficulty, expected, header.Bits)
	}

	if c.skipPoW {
		return nil
	}
	target, err := TargetFromBits(header.Bits)
	if err != nil {
		return err
	}
	if hashToWork(powHash).Cmp(target) > 0 {
		return ErrInsufficientPoW
	}
	return nil
}

// checkTimestamp enforces spec.md §4.6 step 3's median-time-past rule.
func (c *Chain) checkTimestamp(header *chainmodel.Header, prev *chainmodel.HeaderRecord) error {
	mtp, err := c.medianTimePast(prev, c.params.MedianTimeSpan)
	if err != nil {
		return err
	}
	if header.Time <= mtp {
		return fmt.Errorf("%w: time %d not after median-time-past %d", ErrBadTimestamp, header.Time, mtp)
	}
	return nil
}

func (c *Chain) medianTimePast(from *chainmodel.HeaderRecord, span int) (uint32, error) {
	if span <= 0 {
		span = 11
	}
	times := make([]uint32, 0, span)
	current := from
	for i := 0; i < span; i++ {
		times = append(times, current.Header.Time)
		if current.Height == 0 {
			break
		}
		parent, ok, err := c.store.Get(current.PrevHash)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		current = parent
	}
	return medianOf(times), nil
}

// checkAux validates a Dogecoin AuxPoW proof, grounded on dogecoin.rs's
// check_aux: the parent block must not have been spent by an earlier
// header, its coinbase transaction's merkle proof must resolve to the
// parent's merkle_root, the coinbase must commit to a chain-merkle-tree
// root of the child header's own hash, and (unless skipped) the parent
// block's own PoW hash must satisfy the child header's target.
func (c *Chain) checkAux(header *chainmodel.Header, headerHash chainhash.Hash, aux *chainmodel.AuxData) error {
	if !c.params.SupportsAuxPoW {
		return fmt.Errorf("%w: chain %s does not support AuxPoW", ErrMalformedHeader, c.params.Chain)
	}
	if aux.ParentBlock == nil {
		return fmt.Errorf("%w: aux data missing parent block", ErrMalformedHeader)
	}

	parentHash := aux.ParentBlock.BlockHash()
	if c.usedAuxParents[parentHash] {
		return fmt.Errorf("%w: aux parent block %s already used", ErrDuplicateHash, parentHash)
	}

	coinbaseHash := chainhash.DoubleHashH(aux.CoinbaseTx)
	if root := merkle.ComputeRoot(coinbaseHash, 0, aux.MerkleProof); root != aux.ParentBlock.MerkleRoot {
		return fmt.Errorf("%w: aux coinbase merkle proof does not resolve to parent merkle root", ErrMalformedHeader)
	}

	chainRoot := merkle.ComputeRoot(headerHash, uint64(aux.ChainID), aux.ChainMerkleProof)
	if !bytes.Contains(aux.CoinbaseTx, chainRoot[:]) {
		return fmt.Errorf("%w: aux coinbase transaction does not commit to chain merkle root", ErrMalformedHeader)
	}

	if !c.skipPoW {
		parentChain := chainparams.Litecoin
		if !aux.ParentPowChain {
			parentChain = chainparams.Bitcoin
		}
		parentPowHash, err := aux.ParentBlock.PowHash(parentChain)
		if err != nil {
			return err
		}
		target, err := TargetFromBits(header.Bits)
		if err != nil {
			return err
		}
		if hashToWork(parentPowHash).Cmp(target) > 0 {
			return ErrInsufficientPoW
		}
	}

	c.usedAuxParents[parentHash] = true
	return nil
}

// submitForkHeader handles the extend-fork and new-fork branches of
// spec.md §4.6 step 5, promoting the fork registry and, if the new tip now
// outweighs main, executing a reorg.
func (c *Chain) submitForkHeader(record *chainmodel.HeaderRecord, mainTipHash chainhash.Hash) error {
	if _, wasFork := c.forks.Get(record.PrevHash); wasFork {
		c.forks.Remove(record.PrevHash)
	}

	length, err := c.forkLength(record)
	if err != nil {
		return err
	}
	if err := c.forks.Put(&Fork{
		TipHash:   record.BlockHash,
		TipHeight: record.Height,
		ChainWork: record.ChainWork,
		Length:    length,
	}); err != nil {
		return err
	}

	mainTip, ok, err := c.store.Get(mainTipHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: main tip %s", ErrUnknownBlock, mainTipHash)
	}

	if record.ChainWork.Cmp(mainTip.ChainWork) > 0 {
		return c.reorgChain(record, mainTip.Height)
	}
	return nil
}

// forkLength walks back from tip via prev_hash until it reaches a hash that
// is on the current main-chain height index, returning the number of steps
// taken. It aborts early with ErrForkTooLong once that would exceed the
// registry's configured bound, so the walk itself is bounded regardless of
// how deep the true common ancestor lies.
func (c *Chain) forkLength(tip *chainmodel.HeaderRecord) (uint64, error) {
	var length uint64
	current := tip
	for {
		mainHash, ok, err := c.store.MainAt(current.Height)
		if err != nil {
			return 0, err
		}
		if ok && mainHash == current.BlockHash {
			return length, nil
		}
		length++
		if length > c.forks.maxForkLen {
			return 0, fmt.Errorf("%w: fork length exceeds %d", ErrForkTooLong, c.forks.maxForkLen)
		}
		parent, ok, err := c.store.Get(current.PrevHash)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrPrevBlockNotFound, current.PrevHash)
		}
		current = parent
	}
}

// reorgChain replaces the main chain's suffix above the common ancestor
// with newTip's ancestry, grounded on lib.rs's reorg_chain. It demotes the
// old main-chain blocks above the ancestor, promotes the fork path, moves
// the tip pointer, and records the demoted segment as a new fork so it
// remains a live competitor (and its ancestry stays GC-protected).
func (c *Chain) reorgChain(newTip *chainmodel.HeaderRecord, oldTipHeight uint64) error {
	if newTip.Height < oldTipHeight {
		for h := newTip.Height + 1; h <= oldTipHeight; h++ {
			if err := c.store.ClearMain(h); err != nil {
				return fmt.Errorf("%w: clearing demoted height %d: %v", ErrReorgFailed, h, err)
			}
		}
	}

	var oldMainTip *chainmodel.HeaderRecord
	cursor := newTip
	for {
		mainHash, ok, err := c.store.MainAt(cursor.Height)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrReorgFailed, err)
		}
		if ok && mainHash == cursor.BlockHash {
			break
		}
		if ok && oldMainTip == nil {
			oldRec, ok2, err := c.store.Get(mainHash)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrReorgFailed, err)
			}
			if ok2 {
				oldMainTip = oldRec
			}
		}
		if err := c.store.SetMain(cursor.Height, cursor.BlockHash); err != nil {
			return fmt.Errorf("%w: %v", ErrReorgFailed, err)
		}
		if cursor.Height == 0 {
			return fmt.Errorf("%w: reorg walked past genesis", ErrReorgFailed)
		}
		parent, ok, err := c.store.Get(cursor.PrevHash)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrReorgFailed, err)
		}
		if !ok {
			return fmt.Errorf("%w: missing ancestor %s", ErrReorgFailed, cursor.PrevHash)
		}
		cursor = parent
	}

	if err := c.store.SetTip(newTip.BlockHash); err != nil {
		return fmt.Errorf("%w: %v", ErrReorgFailed, err)
	}
	c.forks.Remove(newTip.BlockHash)

	keepTip := chainhash.Hash{}
	if oldMainTip != nil {
		length, err := c.forkLength(oldMainTip)
		if err == nil {
			_ = c.forks.Put(&Fork{
				TipHash:   oldMainTip.BlockHash,
				TipHeight: oldMainTip.Height,
				ChainWork: oldMainTip.ChainWork,
				Length:    length,
			})
			keepTip = oldMainTip.BlockHash
		}
	}

	// Any other fork whose tip now sits at or below the new main tip's
	// height is fully dominated by the promoted chain and is discarded
	// (spec.md §4.6).
	for _, f := range c.forks.Tips() {
		if f.TipHash == keepTip {
			continue
		}
		if f.TipHeight <= newTip.Height {
			c.forks.Remove(f.TipHash)
		}
	}

	return nil
}

// runGC evicts up to batchSize records below the GC horizon, mirroring
// run_mainchain_gc's amortized batch removal: the floor advances by at most
// batchSize heights per call, including heights whose record is kept
// because a live fork still references it. The evictable hash list
// is built from the exact [floor, newFloor) height range already being
// walked, so the store never has to rediscover it by scanning its keyspace.
func (c *Chain) runGC(batchSize int) error {
	tipHash, ok, err := c.store.Tip()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	tip, ok, err := c.store.Get(tipHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: main tip", ErrUnknownBlock)
	}

	floor, err := c.store.GCFloor()
	if err != nil {
		return err
	}
	if tip.Height < floor {
		return nil
	}
	stored := tip.Height - floor + 1
	if stored <= c.gcThreshold {
		return nil
	}

	toRemove := stored - c.gcThreshold
	if uint64(batchSize) < toRemove {
		toRemove = uint64(batchSize)
	}
	newFloor := floor + toRemove

	keep := c.liveForkAncestors(newFloor)
	evictable := make([]chainhash.Hash, 0, toRemove)
	for h := floor; h < newFloor; h++ {
		hash, ok, err := c.store.MainAt(h)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		evictable = append(evictable, hash)
		if !keep[hash] {
			if err := c.store.ClearMain(h); err != nil {
				return err
			}
		}
	}

	if _, err := c.store.EvictHashes(evictable, func(h chainhash.Hash) bool { return keep[h] }); err != nil {
		return err
	}
	return c.store.SetGCFloor(newFloor)
}

// liveForkAncestors returns the set of hashes referenced as prev_hash by
// some live fork's record at or above floor: these must survive GC even
// though their height may fall below it (spec.md §4.4/§4.5).
func (c *Chain) liveForkAncestors(floor uint64) map[chainhash.Hash]bool {
	keep := make(map[chainhash.Hash]bool)
	for _, f := range c.forks.Tips() {
		hash := f.TipHash
		for {
			rec, ok, err := c.store.Get(hash)
			if err != nil || !ok {
				break
			}
			keep[rec.PrevHash] = true
			if rec.Height <= floor {
				break
			}
			hash = rec.PrevHash
		}
	}
	return keep
}

// chainAncestorLookup implements the difficulty engine's ancestorLookup by
// walking prev_hash from the block currently being validated, so retarget
// computations work identically whether that block extends main or a fork.
type chainAncestorLookup struct {
	c    *Chain
	from *chainmodel.HeaderRecord
}

func (l *chainAncestorLookup) AncestorByHash(hash chainhash.Hash) (*chainmodel.HeaderRecord, error) {
	rec, ok, err := l.c.store.Get(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: ancestor %s", ErrPrevBlockNotFound, hash)
	}
	return rec, nil
}

func (l *chainAncestorLookup) AncestorByHeight(height uint64) (*chainmodel.HeaderRecord, error) {
	if height > l.from.Height {
		return nil, fmt.Errorf("btcspv: ancestor height %d ahead of %d", height, l.from.Height)
	}
	steps := l.from.Height - height
	current := l.from
	for i := uint64(0); i < steps; i++ {
		next, err := l.AncestorByHash(current.PrevHash)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// GetLastBlockHeader returns the record at the current main-chain tip.
func (c *Chain) GetLastBlockHeader() (*chainmodel.HeaderRecord, error) {
	tipHash, ok, err := c.store.Tip()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	rec, ok, err := c.store.Get(tipHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: main tip", ErrUnknownBlock)
	}
	return rec, nil
}

// GetBlockHash returns the main-chain hash at height.
func (c *Chain) GetBlockHash(height uint64) (chainhash.Hash, bool, error) {
	floor, err := c.store.GCFloor()
	if err != nil {
		return chainhash.Hash{}, false, err
	}
	if height < floor {
		return chainhash.Hash{}, false, ErrPruned
	}
	return c.store.MainAt(height)
}

// GetHeader returns the record for hash, from any tracked chain (main or
// fork), or ok=false if it is unknown.
func (c *Chain) GetHeader(hash chainhash.Hash) (*chainmodel.HeaderRecord, bool, error) {
	return c.store.Get(hash)
}

// GetForks returns a snapshot of every tracked competing tip.
func (c *Chain) GetForks() []*Fork {
	return c.forks.Tips()
}

// GetMainchainSize returns the number of headers currently retained on the
// main chain, mirroring lib.rs's get_mainchain_size.
func (c *Chain) GetMainchainSize() (uint64, error) {
	tip, err := c.GetLastBlockHeader()
	if err != nil {
		return 0, err
	}
	floor, err := c.store.GCFloor()
	if err != nil {
		return 0, err
	}
	if tip.Height < floor {
		return 0, nil
	}
	return tip.Height - floor + 1, nil
}

// GetLastNBlockHashes returns up to limit main-chain hashes ending skip
// blocks below the tip, mirroring lib.rs's get_last_n_blocks_hashes.
func (c *Chain) GetLastNBlockHashes(skip, limit uint64) ([]chainhash.Hash, error) {
	tip, err := c.GetLastBlockHeader()
	if err != nil {
		return nil, err
	}
	if skip > tip.Height {
		return nil, nil
	}
	end := tip.Height - skip

	floor, err := c.store.GCFloor()
	if err != nil {
		return nil, err
	}
	start := floor
	if end+1 > limit && end+1-limit > start {
		start = end + 1 - limit
	}

	hashes := make([]chainhash.Hash, 0, end-start+1)
	for h := start; h <= end; h++ {
		hash, ok, err := c.store.MainAt(h)
		if err != nil {
			return nil, err
		}
		if ok {
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

// VerifyTransactionInclusion answers a Merkle inclusion query (component
// G, dispatched here because it needs the store to resolve block_hash to
// height and confirmations). txCount is caller-supplied per spec.md §4.7
// ("the verifier takes tx_count ... as an input from the caller or stores
// it in HeaderRecord"): a headers-only light client never observes a full
// block body, so it cannot fill in HeaderRecord.TxCount itself.
func (c *Chain) VerifyTransactionInclusion(txHash, blockHash chainhash.Hash, txIndex uint64, path []chainhash.Hash, txCount uint64, minConfirmations *uint64) (bool, error) {
	rec, ok, err := c.store.Get(blockHash)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownBlock, blockHash)
	}

	mainHash, onMain, err := c.store.MainAt(rec.Height)
	if err != nil {
		return false, err
	}
	if !onMain || mainHash != blockHash {
		return false, fmt.Errorf("%w: %s is not on the main chain", ErrUnknownBlock, blockHash)
	}

	tip, err := c.GetLastBlockHeader()
	if err != nil {
		return false, err
	}

	required := c.params.MinConfirmations
	if minConfirmations != nil {
		required = *minConfirmations
	}
	if tip.Height-rec.Height+1 < required {
		return false, nil
	}

	return merkle.VerifyInclusion(txHash, txIndex, path, txCount, rec.Header.MerkleRoot)
}
