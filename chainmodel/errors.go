package chainmodel

import "errors"

// Sentinel errors surfaced to the host. Every failure the chain state
// machine can produce wraps exactly one of these via fmt.Errorf("...: %w",
// ...), so callers can classify failures with errors.Is regardless of the
// contextual message attached to a particular occurrence.
var (
	ErrAlreadyInitialized = errors.New("btcspv: already initialized")
	ErrNotInitialized     = errors.New("btcspv: not initialized")
	ErrMalformedHeader    = errors.New("btcspv: malformed header")
	ErrDuplicateHash      = errors.New("btcspv: duplicate block hash")
	ErrPrevBlockNotFound  = errors.New("btcspv: previous block not found")
	ErrInvalidTarget      = errors.New("btcspv: invalid target")
	ErrInsufficientPoW    = errors.New("btcspv: insufficient proof of work")
	ErrBadDifficulty      = errors.New("btcspv: bad difficulty")
	ErrBadTimestamp       = errors.New("btcspv: bad timestamp")
	ErrForkTooLong        = errors.New("btcspv: fork too long")
	ErrLimitExceeded      = errors.New("btcspv: limit exceeded")
	ErrPruned             = errors.New("btcspv: height pruned below gc floor")
	ErrUnknownBlock       = errors.New("btcspv: unknown block")
	ErrPaused             = errors.New("btcspv: paused")
	ErrReorgFailed        = errors.New("btcspv: reorg failed")
)
