// Package itch reads NASDAQ ITCH 5.0 tapes and canonicalizes the
// order flow of one symbol into engine messages.
//
// The wire format is length-prefixed: each frame is a 2-byte
// big-endian length followed by the message, whose first byte is the
// type tag. All integers are big-endian, timestamps are 48-bit
// nanoseconds since midnight, prices are unsigned 32-bit values in
// 1/10000 dollars.
package itch

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// Message type tags, the parsed subset of the 5.0 dictionary.
const (
	TypeSystemEvent        byte = 'S'
	TypeStockDirectory     byte = 'R'
	TypeAddOrder           byte = 'A'
	TypeAddOrderMPID       byte = 'F'
	TypeOrderExecuted      byte = 'E'
	TypeOrderExecutedPrice byte = 'C'
	TypeOrderCancel        byte = 'X'
	TypeOrderDelete        byte = 'D'
	TypeOrderReplace       byte = 'U'
	TypeTrade              byte = 'P'
)

// Minimum frame lengths per parsed type; a shorter frame is corrupt.
var minLen = map[byte]int{
	TypeSystemEvent:        12,
	TypeStockDirectory:     39,
	TypeAddOrder:           36,
	TypeAddOrderMPID:       40,
	TypeOrderExecuted:      31,
	TypeOrderExecutedPrice: 36,
	TypeOrderCancel:        23,
	TypeOrderDelete:        19,
	TypeOrderReplace:       35,
	TypeTrade:              44,
}

var ErrFrame = errors.New("itch: malformed frame")

// Event is one parsed tape message. Fields not used by a type stay
// zero; Stock is trimmed of its space padding.
type Event struct {
	Type        byte
	StockLocate uint16
	Timestamp   uint64
	Ref         uint64
	NewRef      uint64
	MatchNumber uint64
	Stock       string
	Shares      uint32
	Price       uint32
	Side        byte // 'B' or 'S'
	EventCode   byte
	Printable   byte
}

// PriceDecimal renders an ITCH price as exact dollars.
func PriceDecimal(p uint32) decimal.Decimal {
	return decimal.New(int64(p), -4)
}

// Parser walks a tape frame by frame. Types outside the parsed subset
// are counted and skipped.
type Parser struct {
	r      *bufio.Reader
	frame  []byte
	counts [256]uint64
}

func NewParser(r io.Reader) *Parser {
	return &Parser{
		r:     bufio.NewReaderSize(r, 1<<16),
		frame: make([]byte, 64),
	}
}

// Next returns the next parsed event, skipping unparsed types.
// io.EOF marks a clean end of tape; a tape ending mid-frame is
// ErrFrame wrapping io.ErrUnexpectedEOF.
func (p *Parser) Next() (Event, error) {
	for {
		var hdr [2]byte
		if _, err := io.ReadFull(p.r, hdr[:]); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("%w: length: %v", ErrFrame, err)
		}
		n := int(binary.BigEndian.Uint16(hdr[:]))
		if n == 0 {
			return Event{}, fmt.Errorf("%w: zero-length frame", ErrFrame)
		}
		if n > len(p.frame) {
			p.frame = make([]byte, n)
		}
		buf := p.frame[:n]
		if _, err := io.ReadFull(p.r, buf); err != nil {
			return Event{}, fmt.Errorf("%w: body: %v", ErrFrame, err)
		}

		typ := buf[0]
		p.counts[typ]++
		want, parsed := minLen[typ]
		if !parsed {
			continue
		}
		if n < want {
			return Event{}, fmt.Errorf("%w: type %q length %d < %d", ErrFrame, typ, n, want)
		}
		return parse(typ, buf), nil
	}
}

// Count reports how many frames of one type the parser has seen,
// parsed or skipped.
func (p *Parser) Count(typ byte) uint64 {
	return p.counts[typ]
}

func parse(typ byte, b []byte) Event {
	ev := Event{
		Type:        typ,
		StockLocate: binary.BigEndian.Uint16(b[1:3]),
		Timestamp:   ts48(b[5:11]),
	}
	switch typ {
	case TypeSystemEvent:
		ev.EventCode = b[11]
	case TypeStockDirectory:
		ev.Stock = stock(b[11:19])
	case TypeAddOrder, TypeAddOrderMPID:
		ev.Ref = binary.BigEndian.Uint64(b[11:19])
		ev.Side = b[19]
		ev.Shares = binary.BigEndian.Uint32(b[20:24])
		ev.Stock = stock(b[24:32])
		ev.Price = binary.BigEndian.Uint32(b[32:36])
	case TypeOrderExecuted:
		ev.Ref = binary.BigEndian.Uint64(b[11:19])
		ev.Shares = binary.BigEndian.Uint32(b[19:23])
		ev.MatchNumber = binary.BigEndian.Uint64(b[23:31])
	case TypeOrderExecutedPrice:
		ev.Ref = binary.BigEndian.Uint64(b[11:19])
		ev.Shares = binary.BigEndian.Uint32(b[19:23])
		ev.MatchNumber = binary.BigEndian.Uint64(b[23:31])
		ev.Printable = b[31]
		ev.Price = binary.BigEndian.Uint32(b[32:36])
	case TypeOrderCancel:
		ev.Ref = binary.BigEndian.Uint64(b[11:19])
		ev.Shares = binary.BigEndian.Uint32(b[19:23])
	case TypeOrderDelete:
		ev.Ref = binary.BigEndian.Uint64(b[11:19])
	case TypeOrderReplace:
		ev.Ref = binary.BigEndian.Uint64(b[11:19])
		ev.NewRef = binary.BigEndian.Uint64(b[19:27])
		ev.Shares = binary.BigEndian.Uint32(b[27:31])
		ev.Price = binary.BigEndian.Uint32(b[31:35])
	case TypeTrade:
		ev.Ref = binary.BigEndian.Uint64(b[11:19])
		ev.Side = b[19]
		ev.Shares = binary.BigEndian.Uint32(b[20:24])
		ev.Stock = stock(b[24:32])
		ev.Price = binary.BigEndian.Uint32(b[32:36])
		ev.MatchNumber = binary.BigEndian.Uint64(b[36:44])
	}
	return ev
}

func ts48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

func stock(b []byte) string {
	return strings.TrimRight(string(b), " ")
}
