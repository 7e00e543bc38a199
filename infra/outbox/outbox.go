// Package outbox is the durable hand-off between the engine's trade
// callback and the Kafka broadcaster. The engine thread writes each
// fill under a monotonic sequence key; the broadcaster goroutine scans
// pending records and walks them through sent and acked. Pebble gives
// the cross-goroutine safety the book itself refuses to provide.
package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"fenrir/domain/orderbook"
)

// State is the delivery stage of one outbox record.
type State uint8

const (
	StatePending State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// DefaultMaxAttempts is how many delivery failures turn a record from
// pending into terminally failed.
const DefaultMaxAttempts = 5

// recordSize is the fixed value footprint:
// [state:1][attempts:4 BE][lastAttempt:8 BE] header, then the trade as
// buy id u64, sell id u64, price u32, qty u32, timestamp u64, all
// little-endian like the journal records.
const recordSize = 1 + 4 + 8 + 32

const keyPrefix = "trade/"

var ErrCorrupt = errors.New("outbox: corrupt record")

// Record is one trade awaiting (or past) delivery.
type Record struct {
	Seq         uint64
	State       State
	Attempts    uint32
	LastAttempt int64
	Trade       orderbook.Trade
}

func encode(r Record) []byte {
	buf := make([]byte, recordSize)
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Attempts)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.LittleEndian.PutUint64(buf[13:21], uint64(r.Trade.BuyOrderID))
	binary.LittleEndian.PutUint64(buf[21:29], uint64(r.Trade.SellOrderID))
	binary.LittleEndian.PutUint32(buf[29:33], uint32(r.Trade.Price))
	binary.LittleEndian.PutUint32(buf[33:37], uint32(r.Trade.Qty))
	binary.LittleEndian.PutUint64(buf[37:45], r.Trade.Timestamp)
	return buf
}

func decode(b []byte) (Record, error) {
	if len(b) != recordSize {
		return Record{}, fmt.Errorf("%w: value length %d", ErrCorrupt, len(b))
	}
	return Record{
		State:       State(b[0]),
		Attempts:    binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Trade: orderbook.Trade{
			BuyOrderID:  orderbook.OrderID(binary.LittleEndian.Uint64(b[13:21])),
			SellOrderID: orderbook.OrderID(binary.LittleEndian.Uint64(b[21:29])),
			Price:       orderbook.Price(binary.LittleEndian.Uint32(b[29:33])),
			Qty:         orderbook.Qty(binary.LittleEndian.Uint32(b[33:37])),
			Timestamp:   binary.LittleEndian.Uint64(b[37:45]),
		},
	}, nil
}

// Outbox is a pebble-backed trade store keyed by sequence number.
type Outbox struct {
	db          *pebble.DB
	maxAttempts uint32
}

// Open creates or reopens the store at dir. Pebble's own WAL stays on:
// a trade that reached the outbox must survive a crash.
func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db, maxAttempts: DefaultMaxAttempts}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// SetMaxAttempts overrides the failure threshold.
func (o *Outbox) SetMaxAttempts(n uint32) {
	o.maxAttempts = n
}

// Put stores a fresh pending trade under seq. Called from the engine's
// trade callback, so it is the one durable write on the matching path.
func (o *Outbox) Put(seq uint64, t orderbook.Trade) error {
	rec := Record{Seq: seq, State: StatePending, Trade: t}
	return o.db.Set(keyFor(seq), encode(rec), pebble.Sync)
}

// Get returns the record at seq.
func (o *Outbox) Get(seq uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	rec, err := decode(val)
	if err != nil {
		return Record{}, err
	}
	rec.Seq = seq
	return rec, nil
}

// MarkSent stamps the record before the producer call so a crash
// between send and ack is visible as a stuck SENT record.
func (o *Outbox) MarkSent(seq uint64) error {
	return o.transition(seq, func(r *Record) {
		r.State = StateSent
		r.LastAttempt = time.Now().UnixNano()
	})
}

// MarkAcked finalizes a delivered record.
func (o *Outbox) MarkAcked(seq uint64) error {
	return o.transition(seq, func(r *Record) {
		r.State = StateAcked
	})
}

// Fail counts a delivery failure. The record returns to pending for
// the next sweep until it exhausts its attempts, then parks as failed.
func (o *Outbox) Fail(seq uint64) error {
	return o.transition(seq, func(r *Record) {
		r.Attempts++
		r.LastAttempt = time.Now().UnixNano()
		if r.Attempts >= o.maxAttempts {
			r.State = StateFailed
		} else {
			r.State = StatePending
		}
	})
}

// Delete removes a record, normally after ack during cleanup.
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

func (o *Outbox) transition(seq uint64, mut func(*Record)) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	mut(&rec)
	return o.db.Set(keyFor(seq), encode(rec), pebble.Sync)
}

// ScanState visits every record in the given state in ascending
// sequence order. The zero-padded key format makes lexicographic and
// numeric order coincide.
func (o *Outbox) ScanState(state State, fn func(Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decode(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec.Seq = seq
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(b[len(keyPrefix):]), "%d", &seq)
	return seq, err
}
