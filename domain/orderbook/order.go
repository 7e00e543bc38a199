package orderbook

import "fenrir/infra/memory"

// OrderID is caller-supplied and unique while the order is live.
type OrderID uint64

// Price is an unsigned tick value.
type Price uint32

// Qty is a share quantity.
type Qty uint32

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side an aggressor matches against.
func (s Side) Opposite() Side {
	return s ^ 1
}

type OrderType uint8

const (
	Limit OrderType = iota
	Market
	IOC
)

// Order is a pure domain entity. Storage belongs to the pool, linkage
// to the enclosing PriceLevel, the id to the caller.
type Order struct {
	ID        OrderID
	Timestamp uint64
	Price     Price
	Original  Qty
	Remaining Qty

	next memory.Handle

	Side Side
	Type OrderType
}

// Filled reports how much of the order has traded.
func (o *Order) Filled() Qty {
	return o.Original - o.Remaining
}

// Trade is a single fill. The resting order's id sits on its own
// side's leg; the aggressor leg is 0 when the aggressor has no durable
// id (market and IOC flow).
type Trade struct {
	BuyOrderID  OrderID
	SellOrderID OrderID
	Price       Price
	Qty         Qty
	Timestamp   uint64
}
