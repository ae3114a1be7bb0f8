package amm

import "errors"

var (
	// ErrPoolNotFound indicates no pool exists for the requested pair in
	// either orientation.
	ErrPoolNotFound = errors.New("amm: pool not found")
	// ErrPoolExists indicates a live pool already covers the unordered pair.
	ErrPoolExists = errors.New("amm: pool already exists")
	// ErrPoolNotEmpty indicates a removal was attempted while the pool still
	// holds balances.
	ErrPoolNotEmpty = errors.New("amm: pool balances must be zero before removal")
	// ErrTokenNotFound indicates the registry could not resolve a token
	// reference.
	ErrTokenNotFound = errors.New("amm: token not found")
	// ErrSameToken indicates both sides of a pair resolve to one token.
	ErrSameToken = errors.New("amm: pay and receive token must differ")
	// ErrZeroAmount indicates a zero amount where a positive one is required.
	ErrZeroAmount = errors.New("amm: amount is zero")
	// ErrZeroReceiveAmount indicates the priced receive amount net of fees is
	// zero.
	ErrZeroReceiveAmount = errors.New("amm: receive amount is zero")
	// ErrInsufficientReserve indicates the gross receive amount would exceed
	// the pool's reserve on the receive side. Never clamped.
	ErrInsufficientReserve = errors.New("amm: insufficient reserve in pool")
	// ErrInsufficientLPBalance indicates a burn larger than the caller's
	// recorded LP-share amount.
	ErrInsufficientLPBalance = errors.New("amm: insufficient LP share balance")
	// ErrIncorrectRatio indicates neither supplied deposit amount covers the
	// partner amount implied by the pool's current ratio.
	ErrIncorrectRatio = errors.New("amm: incorrect deposit ratio")
	// ErrSlippageExceeded indicates the executed price fell outside the
	// caller's slippage tolerance.
	ErrSlippageExceeded = errors.New("amm: slippage exceeded")
	// ErrMinimumReceive indicates the net receive amount fell below the
	// caller's stated minimum.
	ErrMinimumReceive = errors.New("amm: insufficient receive amount")
	// ErrDuplicateTransfer indicates the external transfer reference has
	// already been credited.
	ErrDuplicateTransfer = errors.New("amm: duplicate external transfer")
	// ErrStaleTransfer indicates the externally-submitted transfer settled
	// before the configured recency window.
	ErrStaleTransfer = errors.New("amm: external transfer expired")
	// ErrStaleQuote indicates pool state moved between quote and settlement
	// and the recomputed provisioning no longer matches.
	ErrStaleQuote = errors.New("amm: quote is stale")
	// ErrTransferFailed indicates an external pull or push did not complete.
	ErrTransferFailed = errors.New("amm: external transfer failed")
	// ErrPullUnsupported indicates the token's ledger cannot execute an
	// operator-initiated pull and a transfer reference must be supplied.
	ErrPullUnsupported = errors.New("amm: token does not support authorized pulls")
)
