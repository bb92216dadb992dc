package amm

import "errors"

var (
	// ErrInvalidAmount is returned for zero, negative or missing amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrEmptyPool is returned when a reserve needed for the operation is zero.
	ErrEmptyPool = errors.New("empty pool")
	// ErrInsufficientReserves is returned when a requested output is not below the reserve.
	ErrInsufficientReserves = errors.New("insufficient reserves")
	// ErrSlippageExceeded is returned when a caller's min-out or max-in bound is violated.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInvariantViolation signals that a swap would have decreased reserve_a*reserve_b.
	// It is never expected in correct operation.
	ErrInvariantViolation = errors.New("constant product invariant violated")
	// ErrInsufficientShares is returned when burning more shares than the holder owns.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInsufficientAmount is returned when the offered second asset is below the ratio-derived amount.
	ErrInsufficientAmount = errors.New("insufficient amount")
	// ErrUnknownAsset is returned for an asset side other than A or B.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrInvalidFee is returned for a fee that is not a fraction in (0, 1].
	ErrInvalidFee = errors.New("invalid fee")
	// ErrInsufficientRepayment is returned when a flash swap is not paid back with its fee.
	ErrInsufficientRepayment = errors.New("flash swap not repaid")
	// ErrPoolLocked is returned when a pool is re-entered for a swap during its own flash swap.
	ErrPoolLocked = errors.New("pool locked")
	// ErrUnknownPool is returned by the registry for an id it does not hold.
	ErrUnknownPool = errors.New("unknown pool")
)
