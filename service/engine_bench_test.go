package service

import (
	"testing"

	"fenrir/domain/orderbook"
)

func benchEngine(b *testing.B, capacity int) *Engine {
	b.Helper()
	cfg := orderbook.DefaultConfig()
	cfg.PoolCapacity = capacity
	e, err := NewEngine(cfg)
	if err != nil {
		b.Fatalf("engine: %v", err)
	}
	e.SetRecording(false)
	return e
}

func BenchmarkProcessAdd(b *testing.B) {
	e := benchEngine(b, max(b.N, 1<<22))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Process(orderbook.Message{
			Kind:      orderbook.MsgAdd,
			OrderID:   orderbook.OrderID(i + 1),
			Side:      orderbook.Side(i & 1),
			Price:     orderbook.Price(50000 + i%64 - 32),
			Qty:       100,
			Timestamp: uint64(i),
		})
	}
}

func BenchmarkProcessAddCancel(b *testing.B) {
	e := benchEngine(b, 1<<16)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := orderbook.OrderID(i + 1)
		e.Process(orderbook.Message{
			Kind:      orderbook.MsgAdd,
			OrderID:   id,
			Side:      orderbook.Buy,
			Price:     orderbook.Price(50000 - i%32),
			Qty:       100,
			Timestamp: uint64(i),
		})
		e.Process(orderbook.Message{Kind: orderbook.MsgCancel, OrderID: id})
	}
}

func BenchmarkProcessMarketSweep(b *testing.B) {
	e := benchEngine(b, 1<<16)
	e.OnTrade(func(*orderbook.Trade) {})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Re-arm a small ask stack, then sweep it.
		base := orderbook.OrderID(uint64(i) * 4)
		for j := 0; j < 3; j++ {
			e.Process(orderbook.Message{
				Kind:      orderbook.MsgAdd,
				OrderID:   base + orderbook.OrderID(j+1),
				Side:      orderbook.Sell,
				Price:     orderbook.Price(50100 + j*100),
				Qty:       100,
				Timestamp: uint64(i),
			})
		}
		e.Process(orderbook.Message{
			Kind:      orderbook.MsgMarket,
			Side:      orderbook.Buy,
			Qty:       300,
			Timestamp: uint64(i),
		})
	}
}
