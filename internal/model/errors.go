package model

import "errors"

// Engine sentinel errors. Callers classify failures with errors.Is; the
// wrapped message carries the current-vs-requested detail.
var (
	// ErrPoolNotFound means no pool exists for the requested pair.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrInvalidTokenPair rejects empty or identical token identifiers.
	ErrInvalidTokenPair = errors.New("invalid token pair")

	// ErrInvalidSwapAmount rejects non-positive swap input.
	ErrInvalidSwapAmount = errors.New("invalid swap amount")

	// ErrInsufficientLiquidity means the pool cannot satisfy the requested trade.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrSlippageExceeded means the live price moved past the caller's minimum
	// acceptable output. Recoverable: re-quote and retry.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrInsufficientAmount rejects non-positive liquidity deposit amounts.
	ErrInsufficientAmount = errors.New("insufficient amount")

	// ErrInvalidLiquidityAmount rejects a burn of zero, negative, or more
	// units than the pool has outstanding.
	ErrInvalidLiquidityAmount = errors.New("invalid liquidity amount")

	// ErrInsufficientPosition means the provider holds fewer liquidity units
	// than it asked to burn.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrInvariantViolation signals an internal arithmetic inconsistency: the
	// constant product decreased across a mutation. Fatal, never a user error.
	ErrInvariantViolation = errors.New("pool invariant violation")
)
