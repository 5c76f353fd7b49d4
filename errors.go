package btcspv

import "github.com/nearlight/btcspv/chainmodel"

// The error kinds live in chainmodel (the package the header store also
// depends on) and are re-exported here so callers of the root package's
// external interface (client.go) never need to import chainmodel directly.
var (
	ErrAlreadyInitialized = chainmodel.ErrAlreadyInitialized
	ErrNotInitialized     = chainmodel.ErrNotInitialized
	ErrMalformedHeader    = chainmodel.ErrMalformedHeader
	ErrDuplicateHash      = chainmodel.ErrDuplicateHash
	ErrPrevBlockNotFound  = chainmodel.ErrPrevBlockNotFound
	ErrInvalidTarget      = chainmodel.ErrInvalidTarget
	ErrInsufficientPoW    = chainmodel.ErrInsufficientPoW
	ErrBadDifficulty      = chainmodel.ErrBadDifficulty
	ErrBadTimestamp       = chainmodel.ErrBadTimestamp
	ErrForkTooLong        = chainmodel.ErrForkTooLong
	ErrLimitExceeded      = chainmodel.ErrLimitExceeded
	ErrPruned             = chainmodel.ErrPruned
	ErrUnknownBlock       = chainmodel.ErrUnknownBlock
	ErrPaused             = chainmodel.ErrPaused
	ErrReorgFailed        = chainmodel.ErrReorgFailed
)
