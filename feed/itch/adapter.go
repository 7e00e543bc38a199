package itch

import (
	"io"

	"github.com/shopspring/decimal"

	"fenrir/domain/orderbook"
)

// Adapter filters a tape to one symbol and rewrites its order flow as
// canonical engine messages. ITCH executions and partial cancels have
// no engine equivalent, so the adapter tracks live shares per order
// reference and expresses them as down-size modifies, or cancels when
// nothing remains. Replaces become cancel-plus-add under the new
// reference.
//
// Prices convert from 1/10000 dollars to cent ticks, rounding half up.
// Ticks outside the book's ladder are left to the book's clamp policy.
type Adapter struct {
	p      *Parser
	symbol string

	locate    uint16
	hasLocate bool

	live    map[uint64]liveOrder
	pending []orderbook.Message

	stats Stats
}

type liveOrder struct {
	price  orderbook.Price
	shares uint32
	side   orderbook.Side
}

// Stats summarizes what the adapter saw for its symbol.
type Stats struct {
	Adds     uint64
	Cancels  uint64
	Modifies uint64
	Trades   uint64 // off-book 'P' prints, not applied
	Skipped  uint64 // events for the symbol with no live reference

	tradeVolume   uint64
	tradeNotional decimal.Decimal
}

// VWAP is the volume-weighted average price of the 'P' prints seen,
// in dollars. Zero when no prints.
func (s Stats) VWAP() decimal.Decimal {
	if s.tradeVolume == 0 {
		return decimal.Zero
	}
	return s.tradeNotional.Div(decimal.NewFromInt(int64(s.tradeVolume)))
}

func NewAdapter(p *Parser, symbol string) *Adapter {
	return &Adapter{
		p:      p,
		symbol: symbol,
		live:   make(map[uint64]liveOrder, 1<<16),
	}
}

// Stats returns the running counters.
func (a *Adapter) Stats() Stats { return a.stats }

// PriceToTicks converts an ITCH 1e-4 dollar price to cent ticks,
// rounding half up.
func PriceToTicks(p uint32) orderbook.Price {
	return orderbook.Price((p + 50) / 100)
}

// Next yields the next canonical message for the symbol, io.EOF at
// end of tape.
func (a *Adapter) Next() (orderbook.Message, error) {
	for {
		if len(a.pending) > 0 {
			m := a.pending[0]
			a.pending = a.pending[1:]
			return m, nil
		}
		ev, err := a.p.Next()
		if err != nil {
			return orderbook.Message{}, err
		}
		if m, ok := a.apply(ev); ok {
			return m, nil
		}
	}
}

// Drain runs the whole tape through fn. Any error other than io.EOF
// is returned.
func (a *Adapter) Drain(fn func(orderbook.Message) error) error {
	for {
		m, err := a.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
}

func (a *Adapter) apply(ev Event) (orderbook.Message, bool) {
	switch ev.Type {
	case TypeStockDirectory:
		if ev.Stock == a.symbol {
			a.locate = ev.StockLocate
			a.hasLocate = true
		}
		return orderbook.Message{}, false

	case TypeAddOrder, TypeAddOrderMPID:
		if ev.Stock != a.symbol {
			return orderbook.Message{}, false
		}
		a.locate = ev.StockLocate
		a.hasLocate = true
		side := orderbook.Buy
		if ev.Side == 'S' {
			side = orderbook.Sell
		}
		ticks := PriceToTicks(ev.Price)
		a.live[ev.Ref] = liveOrder{price: ticks, shares: ev.Shares, side: side}
		a.stats.Adds++
		return orderbook.Message{
			Kind:      orderbook.MsgAdd,
			OrderID:   orderbook.OrderID(ev.Ref),
			Side:      side,
			Price:     ticks,
			Qty:       orderbook.Qty(ev.Shares),
			Timestamp: ev.Timestamp,
		}, true

	case TypeOrderDelete:
		if !a.forSymbol(ev) {
			return orderbook.Message{}, false
		}
		delete(a.live, ev.Ref)
		a.stats.Cancels++
		return orderbook.Message{
			Kind:      orderbook.MsgCancel,
			OrderID:   orderbook.OrderID(ev.Ref),
			Timestamp: ev.Timestamp,
		}, true

	case TypeOrderCancel, TypeOrderExecuted, TypeOrderExecutedPrice:
		// Book-side share reduction; executions against our book are
		// indistinguishable from partial cancels once canonicalized.
		if !a.forSymbol(ev) {
			return orderbook.Message{}, false
		}
		return a.downsize(ev.Ref, ev.Shares, ev.Timestamp)

	case TypeOrderReplace:
		if !a.forSymbol(ev) {
			return orderbook.Message{}, false
		}
		old, ok := a.live[ev.Ref]
		if !ok {
			a.stats.Skipped++
			return orderbook.Message{}, false
		}
		delete(a.live, ev.Ref)
		ticks := PriceToTicks(ev.Price)
		a.live[ev.NewRef] = liveOrder{price: ticks, shares: ev.Shares, side: old.side}
		a.stats.Cancels++
		a.stats.Adds++
		a.pending = append(a.pending, orderbook.Message{
			Kind:      orderbook.MsgAdd,
			OrderID:   orderbook.OrderID(ev.NewRef),
			Side:      old.side,
			Price:     ticks,
			Qty:       orderbook.Qty(ev.Shares),
			Timestamp: ev.Timestamp,
		})
		return orderbook.Message{
			Kind:      orderbook.MsgCancel,
			OrderID:   orderbook.OrderID(ev.Ref),
			Timestamp: ev.Timestamp,
		}, true

	case TypeTrade:
		if ev.Stock != a.symbol {
			return orderbook.Message{}, false
		}
		a.stats.Trades++
		a.stats.tradeVolume += uint64(ev.Shares)
		a.stats.tradeNotional = a.stats.tradeNotional.Add(
			PriceDecimal(ev.Price).Mul(decimal.NewFromInt(int64(ev.Shares))))
		return orderbook.Message{}, false
	}
	return orderbook.Message{}, false
}

func (a *Adapter) downsize(ref uint64, shares uint32, ts uint64) (orderbook.Message, bool) {
	o, ok := a.live[ref]
	if !ok {
		a.stats.Skipped++
		return orderbook.Message{}, false
	}
	if shares >= o.shares {
		delete(a.live, ref)
		a.stats.Cancels++
		return orderbook.Message{
			Kind:      orderbook.MsgCancel,
			OrderID:   orderbook.OrderID(ref),
			Timestamp: ts,
		}, true
	}
	o.shares -= shares
	a.live[ref] = o
	a.stats.Modifies++
	return orderbook.Message{
		Kind:      orderbook.MsgModify,
		OrderID:   orderbook.OrderID(ref),
		Side:      o.side,
		Price:     o.price,
		Qty:       orderbook.Qty(o.shares),
		Timestamp: ts,
	}, true
}

// forSymbol matches by stock locate, learned from the directory or
// from the symbol's first add.
func (a *Adapter) forSymbol(ev Event) bool {
	if !a.hasLocate {
		return false
	}
	return ev.StockLocate == a.locate
}
