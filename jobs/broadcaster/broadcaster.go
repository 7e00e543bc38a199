// Package broadcaster drains the trade outbox onto a Kafka topic.
// It runs on its own goroutine and only ever touches the outbox and
// the producer, never the engine, so the book stays single-owner.
//
// Delivery is at-least-once: a record is marked SENT before the
// produce call and ACKED after, so a crash in between re-sends it on
// the next sweep. Consumers must dedupe on the sequence key.
package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"fenrir/infra/outbox"
)

// DefaultInterval is how often the sweep loop scans for pending
// trades.
const DefaultInterval = 250 * time.Millisecond

// Event is the JSON payload published per trade.
type Event struct {
	Seq         uint64 `json:"seq"`
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Price       uint32 `json:"price"`
	Quantity    uint32 `json:"quantity"`
	Timestamp   uint64 `json:"timestamp"`
}

// Broadcaster periodically sweeps pending outbox records to Kafka.
type Broadcaster struct {
	ob       *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

// ProducerConfig is the sarama setup the broadcaster expects: full
// acks and surfaced successes, so SendMessage is synchronous.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return cfg
}

// New connects its own producer to brokers.
func New(ob *outbox.Outbox, brokers []string, topic string, log *zap.Logger) (*Broadcaster, error) {
	producer, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, err
	}
	return NewWithProducer(ob, producer, topic, log), nil
}

// NewWithProducer wires an externally built producer, which is how
// tests inject sarama mocks.
func NewWithProducer(ob *outbox.Outbox, producer sarama.SyncProducer, topic string, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		ob:       ob,
		producer: producer,
		topic:    topic,
		interval: DefaultInterval,
		log:      log,
	}
}

// SetInterval overrides the sweep cadence. Call before Run.
func (b *Broadcaster) SetInterval(d time.Duration) {
	b.interval = d
}

// Run sweeps until ctx is cancelled. Blocking; callers usually start
// it on its own goroutine.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started",
		zap.String("topic", b.topic),
		zap.Duration("interval", b.interval))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster stopped")
			return
		case <-ticker.C:
			if n, err := b.sweep(); err != nil {
				b.log.Warn("outbox sweep aborted", zap.Error(err))
			} else if n > 0 {
				b.log.Debug("published trades", zap.Int("count", n))
			}
		}
	}
}

// sweep publishes every pending record once, in sequence order.
// Produce failures mark the record failed-or-pending and move on; only
// outbox errors abort the scan.
func (b *Broadcaster) sweep() (int, error) {
	published := 0
	err := b.ob.ScanState(outbox.StatePending, func(rec outbox.Record) error {
		if err := b.ob.MarkSent(rec.Seq); err != nil {
			return err
		}

		payload, err := json.Marshal(Event{
			Seq:         rec.Seq,
			BuyOrderID:  uint64(rec.Trade.BuyOrderID),
			SellOrderID: uint64(rec.Trade.SellOrderID),
			Price:       uint32(rec.Trade.Price),
			Quantity:    uint32(rec.Trade.Qty),
			Timestamp:   rec.Trade.Timestamp,
		})
		if err != nil {
			return err
		}

		_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(fmt.Sprintf("%020d", rec.Seq)),
			Value: sarama.ByteEncoder(payload),
		})
		if err != nil {
			b.log.Warn("produce failed",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("attempts", rec.Attempts+1),
				zap.Error(err))
			return b.ob.Fail(rec.Seq)
		}

		published++
		return b.ob.MarkAcked(rec.Seq)
	})
	return published, err
}

// Close shuts down the producer. Call after Run has returned.
func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
