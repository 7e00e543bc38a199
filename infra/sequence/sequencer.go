// Package sequence provides the monotonic counter that keys outbox
// records. The engine thread takes values, the broadcaster goroutine
// reads them, so the counter is atomic even though the book itself is
// single-owner.
package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing uint64 values.
type Sequencer struct {
	next atomic.Uint64
}

// New starts the sequencer so that the first Next returns start+1.
// Pass the highest previously issued value when resuming a session.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence value.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued value.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset rewinds the sequencer. Only safe while nothing is issuing.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
