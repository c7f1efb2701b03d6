package game

import (
	"sync/atomic"
)

// cacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const cacheLineSize = 64

// padding keeps hot counters on their own cache lines.
type padding [cacheLineSize]byte

type inboxCell[T any] struct {
	seq  atomic.Uint64
	item T
}

// Inbox is a bounded multi-producer single-consumer ring buffer.
// Network goroutines push; the tick goroutine drains it once per tick.
// Each cell carries a sequence number so the consumer never reads a slot
// a producer has claimed but not yet written.
type Inbox[T any] struct {
	_pad0 padding
	head  atomic.Uint64 // next slot to claim (producers)
	_pad1 padding
	tail  uint64 // next slot to read (consumer only)
	_pad2 padding

	mask    uint64
	cells   []inboxCell[T]
	dropped atomic.Uint64
}

// NewInbox creates an inbox; capacity is rounded up to a power of two.
func NewInbox[T any](capacity int) *Inbox[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}
	q := &Inbox[T]{
		mask:  uint64(n - 1),
		cells: make([]inboxCell[T], n),
	}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds item, returning false when the inbox is full.
// Safe for concurrent producers.
func (q *Inbox[T]) TryPush(item T) bool {
	for {
		pos := q.head.Load()
		cell := &q.cells[pos&q.mask]
		seq := cell.seq.Load()

		switch {
		case seq == pos:
			if q.head.CompareAndSwap(pos, pos+1) {
				cell.item = item
				cell.seq.Store(pos + 1)
				return true
			}
		case seq < pos:
			q.dropped.Add(1)
			return false
		}
		// Another producer claimed pos; retry with a fresh head.
	}
}

// TryPop removes the oldest item. Single consumer only.
func (q *Inbox[T]) TryPop() (T, bool) {
	var zero T
	cell := &q.cells[q.tail&q.mask]
	if cell.seq.Load() != q.tail+1 {
		return zero, false
	}
	item := cell.item
	cell.item = zero
	cell.seq.Store(q.tail + q.mask + 1)
	q.tail++
	return item, true
}

// Drain pops everything currently visible into fn, in push order.
func (q *Inbox[T]) Drain(fn func(T)) int {
	n := 0
	for {
		item, ok := q.TryPop()
		if !ok {
			return n
		}
		fn(item)
		n++
	}
}

// Cap returns the inbox capacity.
func (q *Inbox[T]) Cap() int {
	return int(q.mask + 1)
}

// Dropped returns how many pushes were rejected because the inbox was full.
func (q *Inbox[T]) Dropped() uint64 {
	return q.dropped.Load()
}
