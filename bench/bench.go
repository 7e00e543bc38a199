// Package bench generates synthetic order flow and measures engine
// latency per message. Workloads are seeded, so a scenario replays
// identically run to run.
package bench

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"time"

	"fenrir/domain/orderbook"
	"fenrir/service"
)

// Mix weights the message kinds of a workload. Weights are relative;
// a zero weight removes the kind.
type Mix struct {
	Add    int
	Cancel int
	Modify int
	Market int
	IOC    int
}

// Scenario is one benchmark run: a seeded message count over a mix.
type Scenario struct {
	Name     string
	Messages int
	Mix      Mix
	Seed     int64
}

// Scenarios is the standard suite.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "pure_add", Messages: 200_000, Mix: Mix{Add: 1}, Seed: 1},
		{Name: "add_cancel_churn", Messages: 200_000, Mix: Mix{Add: 5, Cancel: 4}, Seed: 2},
		{Name: "market_sweeps", Messages: 200_000, Mix: Mix{Add: 8, Market: 2}, Seed: 3},
		{Name: "mixed_flow", Messages: 200_000, Mix: Mix{Add: 50, Cancel: 25, Modify: 10, Market: 10, IOC: 5}, Seed: 4},
	}
}

// Result carries the timing outcome of one scenario.
type Result struct {
	Name      string
	Messages  int
	Applied   int
	Trades    uint64
	Elapsed   time.Duration
	samples   []time.Duration
	sorted    bool
}

// Throughput is messages per second over the whole run.
func (r *Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Messages) / r.Elapsed.Seconds()
}

// Percentile returns the latency at p in [0, 100].
func (r *Result) Percentile(p float64) time.Duration {
	if len(r.samples) == 0 {
		return 0
	}
	if !r.sorted {
		sort.Slice(r.samples, func(i, j int) bool { return r.samples[i] < r.samples[j] })
		r.sorted = true
	}
	if p <= 0 {
		return r.samples[0]
	}
	if p >= 100 {
		return r.samples[len(r.samples)-1]
	}
	idx := int(p / 100 * float64(len(r.samples)-1))
	return r.samples[idx]
}

// Run executes a scenario against a fresh engine.
func Run(sc Scenario, cfg orderbook.Config) (*Result, error) {
	eng, err := service.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	// History capture is engine overhead, not matching cost.
	eng.SetRecording(false)

	var trades uint64
	eng.OnTrade(func(*orderbook.Trade) { trades++ })

	gen := NewGenerator(sc, cfg)
	res := &Result{
		Name:     sc.Name,
		Messages: sc.Messages,
		samples:  make([]time.Duration, 0, sc.Messages),
	}

	start := time.Now()
	for i := 0; i < sc.Messages; i++ {
		msg := gen.Next()
		t0 := time.Now()
		ok := eng.Process(msg)
		res.samples = append(res.samples, time.Since(t0))
		if ok {
			res.Applied++
		}
	}
	res.Elapsed = time.Since(start)
	res.Trades = trades
	return res, nil
}

// WriteCSV emits one row per result for downstream plotting.
func WriteCSV(w io.Writer, results []*Result) error {
	if _, err := fmt.Fprintln(w, "scenario,messages,applied,trades,elapsed_ns,throughput_msg_s,p50_ns,p90_ns,p99_ns,p999_ns,max_ns"); err != nil {
		return err
	}
	for _, r := range results {
		_, err := fmt.Fprintf(w, "%s,%d,%d,%d,%d,%.0f,%d,%d,%d,%d,%d\n",
			r.Name, r.Messages, r.Applied, r.Trades, r.Elapsed.Nanoseconds(), r.Throughput(),
			r.Percentile(50).Nanoseconds(), r.Percentile(90).Nanoseconds(),
			r.Percentile(99).Nanoseconds(), r.Percentile(99.9).Nanoseconds(),
			r.Percentile(100).Nanoseconds())
		if err != nil {
			return err
		}
	}
	return nil
}

// Report renders a human-readable summary line.
func (r *Result) Report() string {
	return fmt.Sprintf("%-18s %8d msgs %8d applied %8d trades %10.0f msg/s p50=%v p90=%v p99=%v p99.9=%v max=%v",
		r.Name, r.Messages, r.Applied, r.Trades, r.Throughput(),
		r.Percentile(50), r.Percentile(90), r.Percentile(99),
		r.Percentile(99.9), r.Percentile(100))
}

// Generator produces the message stream of one scenario. The mid
// price wanders a few ticks per message; adds land within a small band
// around it, cancels and modifies pick random live ids.
type Generator struct {
	rng     *rand.Rand
	weights [5]int
	total   int
	cfg     orderbook.Config

	mid    orderbook.Price
	nextID uint64
	live   []orderbook.OrderID
	ts     uint64
}

func NewGenerator(sc Scenario, cfg orderbook.Config) *Generator {
	g := &Generator{
		rng:     rand.New(rand.NewSource(sc.Seed)),
		weights: [5]int{sc.Mix.Add, sc.Mix.Cancel, sc.Mix.Modify, sc.Mix.Market, sc.Mix.IOC},
		cfg:     cfg,
		mid:     cfg.BasePrice,
		live:    make([]orderbook.OrderID, 0, sc.Messages),
	}
	for _, w := range g.weights {
		g.total += w
	}
	if g.total == 0 {
		g.weights[0] = 1
		g.total = 1
	}
	return g
}

// Next returns the next message of the stream.
func (g *Generator) Next() orderbook.Message {
	g.ts++
	g.drift()

	kind := g.pick()
	// Without live orders, cancel and modify degrade to adds so the
	// stream keeps its length.
	if (kind == 1 || kind == 2) && len(g.live) == 0 {
		kind = 0
	}

	switch kind {
	case 1: // cancel
		id := g.takeLive()
		return orderbook.Message{Kind: orderbook.MsgCancel, OrderID: id, Timestamp: g.ts}
	case 2: // modify
		idx := g.rng.Intn(len(g.live))
		id := g.live[idx]
		return orderbook.Message{
			Kind:      orderbook.MsgModify,
			OrderID:   id,
			Price:     g.nearMid(),
			Qty:       g.qty(),
			Timestamp: g.ts,
		}
	case 3: // market
		return orderbook.Message{
			Kind:      orderbook.MsgMarket,
			Side:      g.side(),
			Qty:       g.qty() * 4,
			Timestamp: g.ts,
		}
	case 4: // ioc
		return orderbook.Message{
			Kind:      orderbook.MsgIOC,
			OrderID:   0,
			Side:      g.side(),
			Price:     g.nearMid(),
			Qty:       g.qty() * 2,
			Timestamp: g.ts,
		}
	default: // add
		g.nextID++
		id := orderbook.OrderID(g.nextID)
		g.live = append(g.live, id)
		return orderbook.Message{
			Kind:      orderbook.MsgAdd,
			OrderID:   id,
			Side:      g.side(),
			Price:     g.nearMid(),
			Qty:       g.qty(),
			Timestamp: g.ts,
		}
	}
}

func (g *Generator) pick() int {
	n := g.rng.Intn(g.total)
	for i, w := range g.weights {
		if n < w {
			return i
		}
		n -= w
	}
	return 0
}

func (g *Generator) drift() {
	lo, hi := g.cfg.MinPrice()+64, g.cfg.MaxPrice()-64
	switch g.rng.Intn(3) {
	case 0:
		if g.mid > lo {
			g.mid -= g.cfg.Tick
		}
	case 1:
		if g.mid < hi {
			g.mid += g.cfg.Tick
		}
	}
}

func (g *Generator) nearMid() orderbook.Price {
	off := orderbook.Price(g.rng.Intn(32)) * g.cfg.Tick
	if g.rng.Intn(2) == 0 {
		return g.mid - off
	}
	return g.mid + off
}

func (g *Generator) side() orderbook.Side {
	return orderbook.Side(g.rng.Intn(2))
}

func (g *Generator) qty() orderbook.Qty {
	return orderbook.Qty(g.rng.Intn(500) + 1)
}

// takeLive removes and returns a random live id. Cancelled ids may
// already be gone from the book (filled by a sweep); the engine
// rejects those messages, which is part of the workload's realism.
func (g *Generator) takeLive() orderbook.OrderID {
	idx := g.rng.Intn(len(g.live))
	id := g.live[idx]
	g.live[idx] = g.live[len(g.live)-1]
	g.live = g.live[:len(g.live)-1]
	return id
}
