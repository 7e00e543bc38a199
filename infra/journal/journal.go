// Package journal reads and writes the binary replay log: a u64
// record count followed by fixed 40-byte message records. The layout
// is stable and carries no checksum; truncation surfaces as a short
// read.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"fenrir/domain/orderbook"
)

// RecordSize is the fixed on-disk footprint of one message.
//
// Little-endian layout, padded to natural alignment:
//
//	off  0  tag byte ('A' 'C' 'M' 'X' 'I'), 7 pad
//	off  8  order id u64
//	off 16  side u8 (0 buy, 1 sell), 3 pad
//	off 20  price u32
//	off 24  quantity u32, 4 pad
//	off 32  timestamp u64
const RecordSize = 40

// ErrTruncated means the file ended before the declared record count.
var ErrTruncated = errors.New("journal: truncated file")

// ErrCorrupt means a record decoded to an impossible value.
var ErrCorrupt = errors.New("journal: corrupt record")

// Encode packs one message into buf, which must hold RecordSize bytes.
func Encode(buf []byte, m orderbook.Message) {
	_ = buf[RecordSize-1]
	clear(buf[:RecordSize])
	buf[0] = byte(m.Kind)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.OrderID))
	buf[16] = byte(m.Side)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(m.Price))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(m.Qty))
	binary.LittleEndian.PutUint64(buf[32:40], m.Timestamp)
}

// Decode unpacks one record, rejecting unknown tags and sides.
func Decode(buf []byte) (orderbook.Message, error) {
	_ = buf[RecordSize-1]
	m := orderbook.Message{
		Kind:      orderbook.MsgKind(buf[0]),
		OrderID:   orderbook.OrderID(binary.LittleEndian.Uint64(buf[8:16])),
		Side:      orderbook.Side(buf[16]),
		Price:     orderbook.Price(binary.LittleEndian.Uint32(buf[20:24])),
		Qty:       orderbook.Qty(binary.LittleEndian.Uint32(buf[24:28])),
		Timestamp: binary.LittleEndian.Uint64(buf[32:40]),
	}
	if !m.Kind.Valid() {
		return orderbook.Message{}, fmt.Errorf("%w: tag 0x%02x", ErrCorrupt, buf[0])
	}
	if buf[16] > 1 {
		return orderbook.Message{}, fmt.Errorf("%w: side 0x%02x", ErrCorrupt, buf[16])
	}
	return m, nil
}

// WriteAll streams the count header and every record to w.
func WriteAll(w io.Writer, msgs []orderbook.Message) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(msgs)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	var rec [RecordSize]byte
	for i := range msgs {
		Encode(rec[:], msgs[i])
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll decodes the full journal, all-or-nothing: a short read or a
// bad record fails without returning a partial slice.
func ReadAll(r io.Reader) ([]orderbook.Message, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	count := binary.LittleEndian.Uint64(hdr[:])

	// The count is untrusted input; cap the preallocation and let
	// append grow past it for genuinely huge journals.
	capHint := count
	if capHint > 1<<20 {
		capHint = 1 << 20
	}
	msgs := make([]orderbook.Message, 0, capHint)
	var rec [RecordSize]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, fmt.Errorf("%w: record %d of %d: %v", ErrTruncated, i, count, err)
		}
		m, err := Decode(rec[:])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Save writes the journal to path, replacing whatever is there.
func Save(path string, msgs []orderbook.Message) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := WriteAll(w, msgs); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads the journal at path.
func Load(path string) ([]orderbook.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(bufio.NewReader(f))
}
