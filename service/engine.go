package service

import (
	"time"

	"fenrir/domain/orderbook"
	"fenrir/infra/journal"
)

// OrderEventKind tags order lifecycle notifications.
type OrderEventKind uint8

const (
	OrderAdded OrderEventKind = iota
	OrderCancelled
	OrderModified
)

func (k OrderEventKind) String() string {
	switch k {
	case OrderAdded:
		return "added"
	case OrderCancelled:
		return "cancelled"
	case OrderModified:
		return "modified"
	}
	return "unknown"
}

// TradeFunc observes each fill. The pointer is only valid for the
// duration of the callback.
type TradeFunc func(*orderbook.Trade)

// OrderFunc observes order lifecycle events with a snapshot of the
// order as of the event. Same lifetime rule as TradeFunc.
type OrderFunc func(*orderbook.Order, OrderEventKind)

/*
Engine is the ONLY write entry point into the book.

It owns dispatch, the reusable trade sink, the per-message latency
meters, and the in-memory history that makes a session replayable.
Callbacks run synchronously on the processing goroutine and MUST NOT
reenter the engine; doing so corrupts the pool and the best-price
cache.
*/
type Engine struct {
	book *orderbook.OrderBook

	onTrade TradeFunc
	onOrder OrderFunc

	history []orderbook.Message
	record  bool

	trades []orderbook.Trade

	messagesProcessed uint64
	processingTimeNs  uint64
}

// NewEngine builds an engine and its book from one policy struct.
// Recording starts enabled.
func NewEngine(cfg orderbook.Config) (*Engine, error) {
	book, err := orderbook.NewOrderBook(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		book:    book,
		record:  true,
		history: make([]orderbook.Message, 0, 1024),
		trades:  make([]orderbook.Trade, 0, cfg.TradeSinkCap()),
	}, nil
}

// Book exposes the underlying order book for queries and validation.
func (e *Engine) Book() *orderbook.OrderBook { return e.book }

// OnTrade installs the fill callback. Pass nil to remove it.
func (e *Engine) OnTrade(fn TradeFunc) { e.onTrade = fn }

// OnOrder installs the order-event callback. Pass nil to remove it.
func (e *Engine) OnOrder(fn OrderFunc) { e.onOrder = fn }

// SetRecording toggles history capture for subsequent messages.
func (e *Engine) SetRecording(on bool) { e.record = on }

// Recording reports whether successful messages are being captured.
func (e *Engine) Recording() bool { return e.record }

// History is the recorded message log. Read-only for callers.
func (e *Engine) History() []orderbook.Message { return e.history }

//
// ──────────────────────────────────────────────────────────
// Processing
// ──────────────────────────────────────────────────────────
//

// Process applies one message and reports whether it changed the book.
// Failed messages cost a latency sample and a messages-processed tick
// but never fire callbacks and never enter the history.
func (e *Engine) Process(msg orderbook.Message) bool {
	t0 := time.Now()
	ok := e.dispatch(msg)
	if ok && e.record {
		e.history = append(e.history, msg)
	}
	e.processingTimeNs += uint64(time.Since(t0).Nanoseconds())
	e.messagesProcessed++
	return ok
}

// ProcessBatch applies messages in order and returns how many
// succeeded.
func (e *Engine) ProcessBatch(msgs []orderbook.Message) int {
	n := 0
	for i := range msgs {
		if e.Process(msgs[i]) {
			n++
		}
	}
	return n
}

func (e *Engine) dispatch(msg orderbook.Message) bool {
	switch msg.Kind {
	case orderbook.MsgAdd:
		snap, err := e.book.AddLimit(msg.OrderID, msg.Side, msg.Price, msg.Qty, msg.Timestamp)
		if err != nil {
			return false
		}
		if e.onOrder != nil {
			e.onOrder(&snap, OrderAdded)
		}
		return true

	case orderbook.MsgCancel:
		snap, err := e.book.Cancel(msg.OrderID)
		if err != nil {
			return false
		}
		if e.onOrder != nil {
			e.onOrder(&snap, OrderCancelled)
		}
		return true

	case orderbook.MsgModify:
		snap, err := e.book.Modify(msg.OrderID, msg.Price, msg.Qty, msg.Timestamp)
		if err != nil {
			return false
		}
		if e.onOrder != nil {
			e.onOrder(&snap, OrderModified)
		}
		return true

	case orderbook.MsgMarket:
		e.trades = e.trades[:0]
		filled := e.book.ExecuteMarket(msg.Side, msg.Qty, msg.Timestamp, &e.trades)
		e.emitTrades()
		return filled > 0

	case orderbook.MsgIOC:
		e.trades = e.trades[:0]
		filled := e.book.ExecuteIOC(msg.Side, msg.Price, msg.Qty, msg.Timestamp, &e.trades)
		e.emitTrades()
		return filled > 0
	}
	return false
}

func (e *Engine) emitTrades() {
	if e.onTrade == nil {
		return
	}
	for i := range e.trades {
		e.onTrade(&e.trades[i])
	}
}

//
// ──────────────────────────────────────────────────────────
// Counters
// ──────────────────────────────────────────────────────────
//

// MessagesProcessed counts every Process call, including failures.
func (e *Engine) MessagesProcessed() uint64 { return e.messagesProcessed }

// ProcessingTime is the accumulated wall time spent inside Process.
func (e *Engine) ProcessingTime() time.Duration {
	return time.Duration(e.processingTimeNs)
}

// ResetCounters zeroes the engine meters. Book counters are reset
// separately via Book().ResetStats.
func (e *Engine) ResetCounters() {
	e.messagesProcessed = 0
	e.processingTimeNs = 0
}

//
// ──────────────────────────────────────────────────────────
// Replay
// ──────────────────────────────────────────────────────────
//

// Replay rebuilds the book from the recorded history: the book and its
// counters start fresh, recording is suspended, and every message is
// re-applied with callbacks active. Determinism of the input sequence
// makes the result byte-for-byte identical book state.
func (e *Engine) Replay() {
	wasRecording := e.record
	e.record = false
	defer func() { e.record = wasRecording }()

	e.book.Clear()
	e.book.ResetStats()
	for i := range e.history {
		e.Process(e.history[i])
	}
}

// Save writes the history as a binary journal.
func (e *Engine) Save(path string) error {
	return journal.Save(path, e.history)
}

// LoadAndReplay swaps in the journal at path and replays it. On any
// load failure — missing file, truncation, corrupt record — the engine
// keeps its pre-call history and book untouched.
func (e *Engine) LoadAndReplay(path string) error {
	msgs, err := journal.Load(path)
	if err != nil {
		return err
	}
	e.history = msgs
	e.Replay()
	return nil
}
