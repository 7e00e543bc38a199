package orderbook

import "fmt"

// Config is the policy surface of a book. Zero values are invalid;
// start from DefaultConfig and override.
type Config struct {
	// BasePrice is the tick at the center of the ladder.
	BasePrice Price
	// Tick is the price increment between adjacent ladder slots.
	Tick Price
	// Width is the number of slots per side. Power of two, at most
	// MaxWidth so the two-level directory stays a fixed struct.
	Width uint32
	// PoolCapacity is the number of pre-allocated order slots.
	PoolCapacity int
	// TradePoolRatio sizes the reusable trade sink at
	// PoolCapacity / TradePoolRatio entries.
	TradePoolRatio int
}

func DefaultConfig() Config {
	return Config{
		BasePrice:      50000,
		Tick:           1,
		Width:          4096,
		PoolCapacity:   1_000_000,
		TradePoolRatio: 10,
	}
}

func (c Config) Validate() error {
	if c.BasePrice == 0 {
		return fmt.Errorf("orderbook: base price must be positive")
	}
	if c.Tick == 0 {
		return fmt.Errorf("orderbook: tick must be positive")
	}
	if c.Width == 0 || c.Width > MaxWidth || c.Width&(c.Width-1) != 0 {
		return fmt.Errorf("orderbook: width %d must be a power of two in (0, %d]", c.Width, MaxWidth)
	}
	if c.PoolCapacity <= 0 {
		return fmt.Errorf("orderbook: pool capacity must be positive")
	}
	if c.TradePoolRatio <= 0 {
		return fmt.Errorf("orderbook: trade pool ratio must be positive")
	}
	half := uint64(c.Width/2) * uint64(c.Tick)
	if uint64(c.BasePrice) <= half {
		return fmt.Errorf("orderbook: base price %d leaves no room below for %d ticks", c.BasePrice, c.Width/2)
	}
	// Strictly below the Price maximum so the empty-ask sentinel can
	// never collide with a real level.
	if uint64(c.BasePrice)+half-uint64(c.Tick) >= uint64(^Price(0)) {
		return fmt.Errorf("orderbook: ladder top overflows the price type")
	}
	return nil
}

// MinPrice is the lowest representable tick on either ladder:
// BASE - (W/2)*TICK.
func (c Config) MinPrice() Price {
	return c.BasePrice - Price(c.Width/2)*c.Tick
}

// MaxPrice is the highest representable tick: BASE + (W/2 - 1)*TICK.
func (c Config) MaxPrice() Price {
	return c.BasePrice + Price(c.Width/2-1)*c.Tick
}

// TradeSinkCap is the pre-sized capacity of a reusable trade sink.
func (c Config) TradeSinkCap() int {
	n := c.PoolCapacity / c.TradePoolRatio
	if n < 1 {
		n = 1
	}
	return n
}
