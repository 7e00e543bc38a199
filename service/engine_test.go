package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/domain/orderbook"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := orderbook.DefaultConfig()
	cfg.PoolCapacity = 4096
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func add(id orderbook.OrderID, side orderbook.Side, price orderbook.Price, qty orderbook.Qty, ts uint64) orderbook.Message {
	return orderbook.Message{Kind: orderbook.MsgAdd, OrderID: id, Side: side, Price: price, Qty: qty, Timestamp: ts}
}

func cancel(id orderbook.OrderID) orderbook.Message {
	return orderbook.Message{Kind: orderbook.MsgCancel, OrderID: id}
}

func modify(id orderbook.OrderID, price orderbook.Price, qty orderbook.Qty, ts uint64) orderbook.Message {
	return orderbook.Message{Kind: orderbook.MsgModify, OrderID: id, Price: price, Qty: qty, Timestamp: ts}
}

func market(side orderbook.Side, qty orderbook.Qty, ts uint64) orderbook.Message {
	return orderbook.Message{Kind: orderbook.MsgMarket, Side: side, Qty: qty, Timestamp: ts}
}

func ioc(side orderbook.Side, limit orderbook.Price, qty orderbook.Qty, ts uint64) orderbook.Message {
	return orderbook.Message{Kind: orderbook.MsgIOC, Side: side, Price: limit, Qty: qty, Timestamp: ts}
}

func collectTrades(e *Engine) *[]orderbook.Trade {
	trades := &[]orderbook.Trade{}
	e.OnTrade(func(t *orderbook.Trade) {
		*trades = append(*trades, *t)
	})
	return trades
}

func TestBestUpdatesOnAddAndCancel(t *testing.T) {
	e := newTestEngine(t)
	b := e.Book()

	require.True(t, e.Process(add(1, orderbook.Buy, 50000, 100, 1000)))
	assert.Equal(t, orderbook.Price(50000), b.BestBid())
	assert.Equal(t, orderbook.Qty(100), b.BestBidQty())

	require.True(t, e.Process(add(2, orderbook.Sell, 50100, 150, 1001)))
	assert.Equal(t, orderbook.Price(50100), b.BestAsk())

	require.True(t, e.Process(cancel(1)))
	assert.Equal(t, orderbook.Price(0), b.BestBid())
	require.NoError(t, b.Validate())
}

func TestMarketSweepAcrossLevels(t *testing.T) {
	e := newTestEngine(t)
	trades := collectTrades(e)

	e.ProcessBatch([]orderbook.Message{
		add(10, orderbook.Sell, 50100, 100, 1),
		add(11, orderbook.Sell, 50200, 150, 2),
		add(12, orderbook.Sell, 50300, 200, 3),
	})
	require.True(t, e.Process(market(orderbook.Buy, 300, 4)))

	require.Len(t, *trades, 3)
	assert.Equal(t, orderbook.Price(50100), (*trades)[0].Price)
	assert.Equal(t, orderbook.Qty(100), (*trades)[0].Qty)
	assert.Equal(t, orderbook.Price(50200), (*trades)[1].Price)
	assert.Equal(t, orderbook.Qty(150), (*trades)[1].Qty)
	assert.Equal(t, orderbook.Price(50300), (*trades)[2].Price)
	assert.Equal(t, orderbook.Qty(50), (*trades)[2].Qty)

	assert.Equal(t, orderbook.Price(50300), e.Book().BestAsk())
	assert.Equal(t, orderbook.Qty(150), e.Book().BestAskQty())
	require.NoError(t, e.Book().Validate())
}

func TestIOCStopsAtLimit(t *testing.T) {
	e := newTestEngine(t)
	trades := collectTrades(e)

	e.ProcessBatch([]orderbook.Message{
		add(20, orderbook.Buy, 50000, 100, 1),
		add(21, orderbook.Buy, 49900, 200, 2),
	})
	require.True(t, e.Process(ioc(orderbook.Sell, 50000, 150, 3)))

	require.Len(t, *trades, 1)
	assert.Equal(t, orderbook.Price(50000), (*trades)[0].Price)
	assert.Equal(t, orderbook.Qty(100), (*trades)[0].Qty)
	assert.Equal(t, orderbook.Price(49900), e.Book().BestBid())
}

func TestFifoWithinLevel(t *testing.T) {
	e := newTestEngine(t)
	trades := collectTrades(e)

	e.ProcessBatch([]orderbook.Message{
		add(30, orderbook.Buy, 50000, 100, 1),
		add(31, orderbook.Buy, 50000, 200, 2),
		add(32, orderbook.Buy, 50000, 150, 3),
	})
	require.True(t, e.Process(market(orderbook.Sell, 250, 4)))

	require.Len(t, *trades, 2)
	assert.Equal(t, orderbook.OrderID(30), (*trades)[0].BuyOrderID)
	assert.Equal(t, orderbook.Qty(100), (*trades)[0].Qty)
	assert.Equal(t, orderbook.OrderID(31), (*trades)[1].BuyOrderID)
	assert.Equal(t, orderbook.Qty(150), (*trades)[1].Qty)

	// 50 left of id 31 plus 150 of id 32.
	assert.Equal(t, orderbook.Qty(200), e.Book().BestBidQty())
}

func TestModifyLosesTimePriority(t *testing.T) {
	e := newTestEngine(t)
	trades := collectTrades(e)

	e.ProcessBatch([]orderbook.Message{
		add(40, orderbook.Buy, 50000, 100, 1),
		add(41, orderbook.Buy, 50000, 200, 2),
	})
	// Same price, same size: still re-queues behind id 41.
	require.True(t, e.Process(modify(40, 50000, 100, 3)))
	require.True(t, e.Process(market(orderbook.Sell, 150, 4)))

	require.Len(t, *trades, 1)
	assert.Equal(t, orderbook.OrderID(41), (*trades)[0].BuyOrderID)
	assert.Equal(t, orderbook.Qty(150), (*trades)[0].Qty)
	assert.Equal(t, orderbook.Qty(50+100), e.Book().BestBidQty())
}

func TestDuplicateIDRejected(t *testing.T) {
	e := newTestEngine(t)

	require.True(t, e.Process(add(50, orderbook.Buy, 50000, 100, 1)))
	assert.False(t, e.Process(add(50, orderbook.Sell, 50100, 200, 2)))

	b := e.Book()
	assert.Equal(t, orderbook.Price(50000), b.BestBid())
	assert.Equal(t, orderbook.Price(^orderbook.Price(0)), b.BestAsk())
	assert.Equal(t, 1, b.OrderCount())
	assert.Len(t, e.History(), 1, "failed messages must not enter the history")
}

func TestCallbacksOnlyOnSuccess(t *testing.T) {
	e := newTestEngine(t)

	var events []OrderEventKind
	e.OnOrder(func(_ *orderbook.Order, kind OrderEventKind) {
		events = append(events, kind)
	})

	e.Process(add(1, orderbook.Buy, 50000, 100, 1))
	e.Process(add(1, orderbook.Buy, 50000, 100, 2)) // duplicate
	e.Process(cancel(99))                           // unknown
	e.Process(modify(1, 50001, 50, 3))
	e.Process(cancel(1))

	assert.Equal(t, []OrderEventKind{OrderAdded, OrderModified, OrderCancelled}, events)
}

func TestMarketAgainstEmptyBookFails(t *testing.T) {
	e := newTestEngine(t)
	trades := collectTrades(e)

	assert.False(t, e.Process(market(orderbook.Buy, 100, 1)))
	assert.Empty(t, *trades)
	assert.Empty(t, e.History())
}

func TestCountersTrackAllMessages(t *testing.T) {
	e := newTestEngine(t)

	e.Process(add(1, orderbook.Buy, 50000, 100, 1))
	e.Process(cancel(42)) // fails
	assert.Equal(t, uint64(2), e.MessagesProcessed())

	e.ResetCounters()
	assert.Equal(t, uint64(0), e.MessagesProcessed())
}

func TestReplayRebuildsIdenticalBook(t *testing.T) {
	e := newTestEngine(t)
	trades := collectTrades(e)

	e.ProcessBatch([]orderbook.Message{
		add(10, orderbook.Sell, 50100, 100, 1),
		add(11, orderbook.Sell, 50200, 150, 2),
		add(12, orderbook.Buy, 50000, 80, 3),
		market(orderbook.Buy, 120, 4),
		cancel(12),
	})

	b := e.Book()
	wantBid, wantAsk := b.BestBid(), b.BestAsk()
	wantBids, wantAsks := b.MarketDepth(int(b.Config().Width))
	wantTrades := append([]orderbook.Trade(nil), *trades...)

	*trades = (*trades)[:0]
	e.Replay()

	assert.Equal(t, wantBid, b.BestBid())
	assert.Equal(t, wantAsk, b.BestAsk())
	gotBids, gotAsks := b.MarketDepth(int(b.Config().Width))
	assert.Equal(t, wantBids, gotBids)
	assert.Equal(t, wantAsks, gotAsks)
	assert.Equal(t, wantTrades, *trades, "replay must reproduce the trade stream")
	assert.True(t, e.Recording(), "replay restores the recording flag")
	require.NoError(t, b.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.journal")

	a := newTestEngine(t)
	aTrades := collectTrades(a)
	a.ProcessBatch([]orderbook.Message{
		add(10, orderbook.Sell, 50100, 100, 1),
		add(11, orderbook.Sell, 50200, 150, 2),
		add(12, orderbook.Sell, 50300, 200, 3),
		market(orderbook.Buy, 300, 4),
	})
	require.NoError(t, a.Save(path))

	b := newTestEngine(t)
	bTrades := collectTrades(b)
	require.NoError(t, b.LoadAndReplay(path))

	assert.Equal(t, a.Book().BestBid(), b.Book().BestBid())
	assert.Equal(t, a.Book().BestAsk(), b.Book().BestAsk())
	aBids, aAsks := a.Book().MarketDepth(10)
	bBids, bAsks := b.Book().MarketDepth(10)
	assert.Equal(t, aBids, bBids)
	assert.Equal(t, aAsks, bAsks)
	assert.Equal(t, *aTrades, *bTrades)
}

func TestLoadTruncatedLeavesEngineUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.journal")

	a := newTestEngine(t)
	a.ProcessBatch([]orderbook.Message{
		add(1, orderbook.Buy, 50000, 100, 1),
		add(2, orderbook.Sell, 50100, 150, 2),
	})
	require.NoError(t, a.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-8], 0o644))

	b := newTestEngine(t)
	require.True(t, b.Process(add(7, orderbook.Buy, 49000, 10, 1)))
	preHistory := len(b.History())

	require.Error(t, b.LoadAndReplay(path))
	assert.Len(t, b.History(), preHistory, "failed load keeps the old history")
	assert.Equal(t, orderbook.Price(49000), b.Book().BestBid())
}

func TestRecordingToggle(t *testing.T) {
	e := newTestEngine(t)

	e.SetRecording(false)
	e.Process(add(1, orderbook.Buy, 50000, 100, 1))
	assert.Empty(t, e.History())

	e.SetRecording(true)
	e.Process(add(2, orderbook.Buy, 49900, 100, 2))
	assert.Len(t, e.History(), 1)
}

func TestProcessBatchCountsSuccesses(t *testing.T) {
	e := newTestEngine(t)
	n := e.ProcessBatch([]orderbook.Message{
		add(1, orderbook.Buy, 50000, 100, 1),
		add(1, orderbook.Buy, 50000, 100, 2), // duplicate
		cancel(1),
		cancel(1), // already gone
	})
	assert.Equal(t, 2, n)
}

func TestOrderEventKindString(t *testing.T) {
	assert.Equal(t, "added", OrderAdded.String())
	assert.Equal(t, "cancelled", OrderCancelled.String())
	assert.Equal(t, "modified", OrderModified.String())
}
