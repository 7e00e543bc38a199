// Package stream moves canonical order-entry messages over Kafka in
// the same 40-byte records the journal writes to disk, so a topic and
// a journal file are interchangeable replay sources.
package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"fenrir/domain/orderbook"
	"fenrir/infra/journal"
)

// Marshal packs one order message into a kafka message. The key is the
// big-endian order id so all flow for one id lands on one partition.
func Marshal(m orderbook.Message) kafka.Message {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(m.OrderID))
	val := make([]byte, journal.RecordSize)
	journal.Encode(val, m)
	return kafka.Message{Key: key, Value: val}
}

// Unmarshal unpacks a kafka message produced by Marshal.
func Unmarshal(km kafka.Message) (orderbook.Message, error) {
	if len(km.Value) != journal.RecordSize {
		return orderbook.Message{}, fmt.Errorf("stream: payload length %d, want %d", len(km.Value), journal.RecordSize)
	}
	return journal.Decode(km.Value)
}

// Sink publishes order messages to a topic.
type Sink struct {
	writer *kafka.Writer
}

func NewSink(brokers []string, topic string) *Sink {
	return &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes msgs in order. Blocking until the brokers ack.
func (s *Sink) Publish(ctx context.Context, msgs ...orderbook.Message) error {
	kms := make([]kafka.Message, len(msgs))
	for i := range msgs {
		kms[i] = Marshal(msgs[i])
	}
	return s.writer.WriteMessages(ctx, kms...)
}

func (s *Sink) Close() error {
	return s.writer.Close()
}

// Source consumes order messages from a topic.
type Source struct {
	reader *kafka.Reader
}

// NewSource subscribes as group on topic. An empty group reads the
// whole topic from the start, which is what a replay wants.
func NewSource(brokers []string, topic, group string) *Source {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	}
	if group == "" {
		cfg.StartOffset = kafka.FirstOffset
	}
	return &Source{reader: kafka.NewReader(cfg)}
}

// Next blocks for the next message. Returns ctx.Err() on cancellation.
func (s *Source) Next(ctx context.Context) (orderbook.Message, error) {
	km, err := s.reader.ReadMessage(ctx)
	if err != nil {
		return orderbook.Message{}, err
	}
	return Unmarshal(km)
}

func (s *Source) Close() error {
	return s.reader.Close()
}
