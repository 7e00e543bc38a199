package orderbook

import (
	"fmt"

	"fenrir/infra/memory"
)

// PriceLevel is an intrusive FIFO of resting orders at one tick.
// Linkage runs through Order.next handles; the level owns head, tail
// and the aggregates. TotalQty sums REMAINING quantity.
//
// The zero value is not an empty level: head and tail must start at
// memory.None. The book initializes its ladders accordingly.
type PriceLevel struct {
	Price      Price
	head       memory.Handle
	tail       memory.Handle
	TotalQty   Qty
	OrderCount uint32
}

func (l *PriceLevel) HasOrders() bool {
	return l.OrderCount != 0
}

// Head returns the first resting order's handle, or memory.None.
func (l *PriceLevel) Head() memory.Handle {
	return l.head
}

// pushBack links an already-initialized order at the tail.
func (l *PriceLevel) pushBack(pool *memory.Pool[Order], h memory.Handle, o *Order) {
	o.next = memory.None
	if l.head == memory.None {
		l.head = h
	} else {
		pool.At(l.tail).next = h
	}
	l.tail = h
	l.TotalQty += o.Remaining
	l.OrderCount++
}

// remove unlinks h wherever it sits in the queue. Levels are singly
// linked, so this walks from the head; levels are typically a handful
// of orders deep. The slot is not released; that is the caller's call.
func (l *PriceLevel) remove(pool *memory.Pool[Order], h memory.Handle) bool {
	prev := memory.None
	for cur := l.head; cur != memory.None; cur = pool.At(cur).next {
		if cur != h {
			prev = cur
			continue
		}
		o := pool.At(cur)
		if prev == memory.None {
			l.head = o.next
		} else {
			pool.At(prev).next = o.next
		}
		if l.tail == cur {
			l.tail = prev
		}
		o.next = memory.None
		l.TotalQty -= o.Remaining
		l.OrderCount--
		return true
	}
	return false
}

// execute consumes orders from the head until want is exhausted or the
// queue empties. emit observes each fill while the order is still
// linked and its Remaining already decremented; fully filled orders
// are then unlinked and released. Returns the filled quantity.
func (l *PriceLevel) execute(pool *memory.Pool[Order], want Qty, emit func(o *Order, fill Qty)) Qty {
	var filled Qty
	for want > 0 && l.head != memory.None {
		h := l.head
		o := pool.At(h)
		f := min(want, o.Remaining)
		o.Remaining -= f
		l.TotalQty -= f
		want -= f
		filled += f
		emit(o, f)
		if o.Remaining == 0 {
			l.head = o.next
			if l.head == memory.None {
				l.tail = memory.None
			}
			l.OrderCount--
			pool.Release(h)
		}
	}
	return filled
}

// clear releases every linked order and empties the level.
func (l *PriceLevel) clear(pool *memory.Pool[Order]) {
	for cur := l.head; cur != memory.None; {
		next := pool.At(cur).next
		pool.Release(cur)
		cur = next
	}
	l.head = memory.None
	l.tail = memory.None
	l.TotalQty = 0
	l.OrderCount = 0
}

// validate walks the queue and checks the level invariants: the
// aggregates match the links, the tail terminates the chain, and no
// linked order is already filled.
func (l *PriceLevel) validate(pool *memory.Pool[Order]) error {
	var qty Qty
	var count uint32
	last := memory.None
	for cur := l.head; cur != memory.None; cur = pool.At(cur).next {
		o := pool.At(cur)
		if o.Remaining == 0 {
			return fmt.Errorf("%w: filled order %d still linked at %d", ErrInvariant, o.ID, l.Price)
		}
		qty += o.Remaining
		count++
		last = cur
		if count > l.OrderCount {
			return fmt.Errorf("%w: queue at %d longer than order count %d", ErrInvariant, l.Price, l.OrderCount)
		}
	}
	if qty != l.TotalQty || count != l.OrderCount {
		return fmt.Errorf("%w: level %d aggregates (qty %d count %d) vs walked (%d, %d)",
			ErrInvariant, l.Price, l.TotalQty, l.OrderCount, qty, count)
	}
	if last != l.tail {
		return fmt.Errorf("%w: level %d tail does not terminate the queue", ErrInvariant, l.Price)
	}
	if (l.head == memory.None) != (l.OrderCount == 0) || (l.OrderCount == 0) != (l.TotalQty == 0) {
		return fmt.Errorf("%w: level %d emptiness disagrees across head/count/qty", ErrInvariant, l.Price)
	}
	return nil
}
