package orderbook

import (
	"fmt"

	"fenrir/infra/memory"
)

// DepthLevel is one row of a market-depth snapshot.
type DepthLevel struct {
	Price Price
	Qty   Qty
}

// OrderBook is single-writer and deterministic. Each side is a fixed
// ladder of price levels indexed by tick offset plus a bit directory
// over level occupancy; both ladders put the best price at index 0, so
// best-to-worst is always an ascending directory scan. Limit orders
// only rest here — matching is driven exclusively by the market and
// IOC paths, which is why a transiently crossed book is legal and
// IsCrossed exists as a diagnostic.
type OrderBook struct {
	cfg      Config
	minPrice Price
	maxPrice Price

	pool *memory.Pool[Order]

	bids []PriceLevel // index 0 = highest representable bid
	asks []PriceLevel // index 0 = lowest representable ask

	bidDir BitDirectory
	askDir BitDirectory

	orders map[OrderID]memory.Handle

	bestBidIdx uint32
	bestAskIdx uint32
	bidCached  bool
	askCached  bool

	ordersProcessed uint64
	tradesExecuted  uint64
	volumeTraded    uint64
}

func NewOrderBook(cfg Config) (*OrderBook, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &OrderBook{
		cfg:      cfg,
		minPrice: cfg.MinPrice(),
		maxPrice: cfg.MaxPrice(),
		pool:     memory.NewPool[Order](cfg.PoolCapacity),
		bids:     make([]PriceLevel, cfg.Width),
		asks:     make([]PriceLevel, cfg.Width),
		bidDir:   NewBitDirectory(cfg.Width),
		askDir:   NewBitDirectory(cfg.Width),
		orders:   make(map[OrderID]memory.Handle, cfg.PoolCapacity),
	}
	for k := range b.bids {
		b.bids[k] = PriceLevel{Price: b.bidPrice(uint32(k)), head: memory.None, tail: memory.None}
		b.asks[k] = PriceLevel{Price: b.askPrice(uint32(k)), head: memory.None, tail: memory.None}
	}
	return b, nil
}

// Config returns the policy the book was built with.
func (b *OrderBook) Config() Config { return b.cfg }

//
// ──────────────────────────────────────────────────────────
// Price / index mapping
// ──────────────────────────────────────────────────────────
//

// Out-of-range prices clamp to the boundary index; the stored order
// price is canonicalized to the clamped tick so depth, trades and
// snapshots stay self-consistent.

func (b *OrderBook) buyIndex(p Price) uint32 {
	if p >= b.maxPrice {
		return 0
	}
	if p <= b.minPrice {
		return b.cfg.Width - 1
	}
	return uint32((b.maxPrice - p) / b.cfg.Tick)
}

func (b *OrderBook) sellIndex(p Price) uint32 {
	if p <= b.minPrice {
		return 0
	}
	if p >= b.maxPrice {
		return b.cfg.Width - 1
	}
	return uint32((p - b.minPrice) / b.cfg.Tick)
}

func (b *OrderBook) bidPrice(k uint32) Price {
	return b.maxPrice - Price(k)*b.cfg.Tick
}

func (b *OrderBook) askPrice(k uint32) Price {
	return b.minPrice + Price(k)*b.cfg.Tick
}

func (b *OrderBook) locate(side Side, p Price) (uint32, *PriceLevel, *BitDirectory) {
	if side == Buy {
		k := b.buyIndex(p)
		return k, &b.bids[k], &b.bidDir
	}
	k := b.sellIndex(p)
	return k, &b.asks[k], &b.askDir
}

//
// ──────────────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────────────
//

// AddLimit rests a limit order at its tick. It never matches; a book
// crossed by an aggressive add stays crossed until a market or IOC
// sweep consumes it. Returns a snapshot of the resting order.
func (b *OrderBook) AddLimit(id OrderID, side Side, price Price, qty Qty, ts uint64) (Order, error) {
	if qty == 0 {
		return Order{}, ErrInvalidQuantity
	}
	if _, live := b.orders[id]; live {
		return Order{}, ErrDuplicateOrderID
	}
	h, o, err := b.pool.Acquire()
	if err != nil {
		return Order{}, ErrCapacity
	}
	k, lvl, dir := b.locate(side, price)
	*o = Order{
		ID:        id,
		Timestamp: ts,
		Price:     lvl.Price,
		Original:  qty,
		Remaining: qty,
		next:      memory.None,
		Side:      side,
		Type:      Limit,
	}
	lvl.pushBack(b.pool, h, o)
	dir.Set(k)
	b.orders[id] = h
	b.invalidate(side)
	b.ordersProcessed++

	snap := *o
	snap.next = memory.None
	return snap, nil
}

// Cancel unlinks a resting order and releases its slot. Returns a
// snapshot of the order as of removal.
func (b *OrderBook) Cancel(id OrderID) (Order, error) {
	h, live := b.orders[id]
	if !live {
		return Order{}, ErrUnknownOrderID
	}
	o := b.pool.At(h)
	snap := *o
	snap.next = memory.None

	k, lvl, dir := b.locate(o.Side, o.Price)
	if !lvl.remove(b.pool, h) {
		return Order{}, fmt.Errorf("%w: order %d indexed but not linked at %d", ErrInvariant, id, o.Price)
	}
	if !lvl.HasOrders() {
		dir.Clear(k)
	}
	delete(b.orders, id)
	b.pool.Release(h)
	b.invalidate(snap.Side)
	return snap, nil
}

// Modify is cancel-replace: the order keeps its id and loses time
// priority, even when nothing but the timestamp changes. If the cancel
// succeeds and the re-add fails the order is gone; the two share
// preconditions, so that cannot happen for inputs that pass the
// quantity check.
func (b *OrderBook) Modify(id OrderID, newPrice Price, newQty Qty, ts uint64) (Order, error) {
	if newQty == 0 {
		return Order{}, ErrInvalidQuantity
	}
	prev, err := b.Cancel(id)
	if err != nil {
		return Order{}, err
	}
	return b.AddLimit(id, prev.Side, newPrice, newQty, ts)
}

//
// ──────────────────────────────────────────────────────────
// Matching
// ──────────────────────────────────────────────────────────
//

// ExecuteMarket fills up to qty against the side opposite the
// aggressor, best price outward, FIFO within a level. The unfilled
// remainder is discarded. Trades are appended to sink.
func (b *OrderBook) ExecuteMarket(side Side, qty Qty, ts uint64, sink *[]Trade) Qty {
	return b.sweep(side, 0, false, qty, ts, sink)
}

// ExecuteIOC is ExecuteMarket bounded by a limit price: a buy stops
// before a level above the limit, a sell before a level below it;
// equality matches on both sides.
func (b *OrderBook) ExecuteIOC(side Side, limit Price, qty Qty, ts uint64, sink *[]Trade) Qty {
	return b.sweep(side, limit, true, qty, ts, sink)
}

func (b *OrderBook) sweep(aggr Side, limit Price, limited bool, qty Qty, ts uint64, sink *[]Trade) Qty {
	resting := aggr.Opposite()
	levels, dir := b.asks, &b.askDir
	if resting == Buy {
		levels, dir = b.bids, &b.bidDir
	}

	var filled Qty
	for k := dir.LowestSet(); k != dir.Sentinel() && filled < qty; k = dir.NextHigher(k) {
		lvl := &levels[k]
		if limited {
			// The limit is compared against the raw tick price, so an
			// out-of-ladder limit behaves like the price it names, not
			// like the index it would clamp to.
			if aggr == Buy && lvl.Price > limit {
				break
			}
			if aggr == Sell && lvl.Price < limit {
				break
			}
		}
		filled += lvl.execute(b.pool, qty-filled, func(o *Order, f Qty) {
			t := Trade{Price: lvl.Price, Qty: f, Timestamp: ts}
			if resting == Buy {
				t.BuyOrderID = o.ID
			} else {
				t.SellOrderID = o.ID
			}
			*sink = append(*sink, t)
			b.tradesExecuted++
			b.volumeTraded += uint64(f)
			if o.Remaining == 0 {
				delete(b.orders, o.ID)
			}
		})
		if !lvl.HasOrders() {
			dir.Clear(k)
		}
	}
	if filled > 0 {
		b.invalidate(resting)
	}
	return filled
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// BestBid returns the best bid tick, or 0 when no bids rest.
func (b *OrderBook) BestBid() Price {
	b.refreshBid()
	if b.bestBidIdx == b.bidDir.Sentinel() {
		return 0
	}
	return b.bidPrice(b.bestBidIdx)
}

// BestAsk returns the best ask tick, or the Price maximum when no
// asks rest.
func (b *OrderBook) BestAsk() Price {
	b.refreshAsk()
	if b.bestAskIdx == b.askDir.Sentinel() {
		return ^Price(0)
	}
	return b.askPrice(b.bestAskIdx)
}

// BestBidQty returns the resting quantity at the best bid, 0 if none.
func (b *OrderBook) BestBidQty() Qty {
	b.refreshBid()
	if b.bestBidIdx == b.bidDir.Sentinel() {
		return 0
	}
	return b.bids[b.bestBidIdx].TotalQty
}

// BestAskQty returns the resting quantity at the best ask, 0 if none.
func (b *OrderBook) BestAskQty() Qty {
	b.refreshAsk()
	if b.bestAskIdx == b.askDir.Sentinel() {
		return 0
	}
	return b.asks[b.bestAskIdx].TotalQty
}

// IsCrossed reports best_bid >= best_ask with both sides occupied.
// A crossed book is legal between an aggressive add and the sweep
// that consumes it; it persisting after matching is a bug.
func (b *OrderBook) IsCrossed() bool {
	bb := b.BestBid()
	ba := b.BestAsk()
	return bb != 0 && ba != ^Price(0) && bb >= ba
}

// MarketDepth snapshots up to n best levels per side, best first.
func (b *OrderBook) MarketDepth(n int) (bids, asks []DepthLevel) {
	bids = make([]DepthLevel, 0, n)
	for k := b.bidDir.LowestSet(); k != b.bidDir.Sentinel() && len(bids) < n; k = b.bidDir.NextHigher(k) {
		bids = append(bids, DepthLevel{b.bids[k].Price, b.bids[k].TotalQty})
	}
	asks = make([]DepthLevel, 0, n)
	for k := b.askDir.LowestSet(); k != b.askDir.Sentinel() && len(asks) < n; k = b.askDir.NextHigher(k) {
		asks = append(asks, DepthLevel{b.asks[k].Price, b.asks[k].TotalQty})
	}
	return bids, asks
}

// OrderCount reports how many orders are resting.
func (b *OrderBook) OrderCount() int { return len(b.orders) }

//
// ──────────────────────────────────────────────────────────
// Cache
// ──────────────────────────────────────────────────────────
//

func (b *OrderBook) invalidate(side Side) {
	if side == Buy {
		b.bidCached = false
	} else {
		b.askCached = false
	}
}

func (b *OrderBook) refreshBid() {
	if !b.bidCached {
		b.bestBidIdx = b.bidDir.LowestSet()
		b.bidCached = true
	}
}

func (b *OrderBook) refreshAsk() {
	if !b.askCached {
		b.bestAskIdx = b.askDir.LowestSet()
		b.askCached = true
	}
}

//
// ──────────────────────────────────────────────────────────
// Lifecycle, stats, validation
// ──────────────────────────────────────────────────────────
//

// Clear releases every resting order and empties both sides. Counters
// survive; use ResetStats for those.
func (b *OrderBook) Clear() {
	for k := b.bidDir.LowestSet(); k != b.bidDir.Sentinel(); k = b.bidDir.NextHigher(k) {
		b.bids[k].clear(b.pool)
	}
	for k := b.askDir.LowestSet(); k != b.askDir.Sentinel(); k = b.askDir.NextHigher(k) {
		b.asks[k].clear(b.pool)
	}
	b.bidDir.ClearAll()
	b.askDir.ClearAll()
	clear(b.orders)
	b.invalidate(Buy)
	b.invalidate(Sell)
}

func (b *OrderBook) OrdersProcessed() uint64 { return b.ordersProcessed }
func (b *OrderBook) TradesExecuted() uint64  { return b.tradesExecuted }
func (b *OrderBook) VolumeTraded() uint64    { return b.volumeTraded }

func (b *OrderBook) ResetStats() {
	b.ordersProcessed = 0
	b.tradesExecuted = 0
	b.volumeTraded = 0
}

// Validate walks the whole structure and reports the first broken
// invariant: directory coherence, directory/level agreement, level
// aggregates, id-index consistency, and pool accounting.
func (b *OrderBook) Validate() error {
	if err := b.bidDir.Validate(); err != nil {
		return err
	}
	if err := b.askDir.Validate(); err != nil {
		return err
	}
	linked := 0
	for _, side := range []struct {
		levels []PriceLevel
		dir    *BitDirectory
	}{{b.bids, &b.bidDir}, {b.asks, &b.askDir}} {
		for k := range side.levels {
			lvl := &side.levels[k]
			if side.dir.Test(uint32(k)) != lvl.HasOrders() {
				return fmt.Errorf("%w: directory bit %d disagrees with level occupancy", ErrInvariant, k)
			}
			if err := lvl.validate(b.pool); err != nil {
				return err
			}
			for cur := lvl.head; cur != memory.None; cur = b.pool.At(cur).next {
				o := b.pool.At(cur)
				h, ok := b.orders[o.ID]
				if !ok || h != cur {
					return fmt.Errorf("%w: linked order %d missing from id index", ErrInvariant, o.ID)
				}
				linked++
			}
		}
	}
	if linked != len(b.orders) {
		return fmt.Errorf("%w: id index holds %d entries but %d orders are linked", ErrInvariant, len(b.orders), linked)
	}
	if b.pool.Live() != linked {
		return fmt.Errorf("%w: pool reports %d live slots but %d orders are linked", ErrInvariant, b.pool.Live(), linked)
	}
	return nil
}
