package orderbook

import "errors"

var (
	// ErrInvalidQuantity rejects add or modify with a zero quantity.
	ErrInvalidQuantity = errors.New("orderbook: quantity must be positive")

	// ErrDuplicateOrderID rejects an add whose id is already live.
	ErrDuplicateOrderID = errors.New("orderbook: duplicate order id")

	// ErrUnknownOrderID rejects cancel or modify of a missing id.
	ErrUnknownOrderID = errors.New("orderbook: unknown order id")

	// ErrCapacity means the order pool is exhausted; the caller must
	// drain before retrying.
	ErrCapacity = errors.New("orderbook: order pool exhausted")

	// ErrInvariant indicates internal corruption, not user error. A
	// book that reports it must not be driven further.
	ErrInvariant = errors.New("orderbook: invariant violation")
)
