package service

import "errors"

// Validation errors are user-correctable and never leave partial state behind.
var (
	ErrZeroQuantity         = errors.New("transaction quantity must be non-zero")
	ErrNegativePrice        = errors.New("unit price must be non-negative")
	ErrInsufficientHoldings = errors.New("not enough held")
	ErrOversoldSet          = errors.New("total disposals exceed total acquisitions")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrPositionNotFound     = errors.New("position not found")
)

// ErrUnavailable means upstream failed and no cached value has ever existed
// for the requested key.
var ErrUnavailable = errors.New("market data unavailable")
