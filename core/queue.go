package core

import (
	"sync/atomic"
)

// InstructionQueue is a fixed-capacity single-producer/single-consumer
// queue of instruction words. The protocol parser is the only writer and the
// dispatcher the only reader. The fill level is kept in an explicit counter,
// so full and empty never depend on index equality.
type InstructionQueue struct {
	buf   []uint32
	write int    // writer-owned
	read  int    // reader-owned
	count uint32 // shared, atomic

	pushed uint32 // words ever pushed, writer-owned, atomic
	popped uint32 // words ever removed, reader-owned
}

// NewInstructionQueue creates a queue holding depth words
func NewInstructionQueue(depth int) *InstructionQueue {
	if depth <= 0 {
		depth = 1
	}
	return &InstructionQueue{
		buf: make([]uint32, depth),
	}
}

// TryPush appends a word. It returns false without writing when the queue
// is full.
func (q *InstructionQueue) TryPush(w uint32) bool {
	if int(atomic.LoadUint32(&q.count)) == len(q.buf) {
		return false
	}
	q.buf[q.write] = w
	q.write = (q.write + 1) % len(q.buf)
	atomic.AddUint32(&q.count, 1)
	atomic.AddUint32(&q.pushed, 1)
	return true
}

// TryPop removes the oldest word. ok is false when the queue is empty.
func (q *InstructionQueue) TryPop() (w uint32, ok bool) {
	if atomic.LoadUint32(&q.count) == 0 {
		return 0, false
	}
	w = q.buf[q.read]
	q.read = (q.read + 1) % len(q.buf)
	q.popped++
	atomic.AddUint32(&q.count, ^uint32(0))
	return w, true
}

// Peek returns the word i positions behind the head without removing it.
// Reader side only.
func (q *InstructionQueue) Peek(i int) (uint32, bool) {
	if i < 0 || i >= int(atomic.LoadUint32(&q.count)) {
		return 0, false
	}
	return q.buf[(q.read+i)%len(q.buf)], true
}

// Discard drops the oldest n words. Reader side only.
func (q *InstructionQueue) Discard(n int) {
	avail := int(atomic.LoadUint32(&q.count))
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return
	}
	q.read = (q.read + n) % len(q.buf)
	q.popped += uint32(n)
	atomic.AddUint32(&q.count, ^uint32(n-1))
}

// Flush drops every word currently queued. Reader side only.
func (q *InstructionQueue) Flush() {
	q.Discard(q.Len())
}

// Pushed returns the running count of accepted words. It wraps.
func (q *InstructionQueue) Pushed() uint32 {
	return atomic.LoadUint32(&q.pushed)
}

// FlushTo drops the words pushed before the Pushed count mark and keeps
// anything pushed after it. Reader side only.
func (q *InstructionQueue) FlushTo(mark uint32) {
	if n := int32(mark - q.popped); n > 0 {
		q.Discard(int(n))
	}
}

// Len returns the number of queued words
func (q *InstructionQueue) Len() int {
	return int(atomic.LoadUint32(&q.count))
}

// SpaceAvailable returns the number of words that can be pushed
func (q *InstructionQueue) SpaceAvailable() int {
	return len(q.buf) - q.Len()
}

// Capacity returns the queue depth
func (q *InstructionQueue) Capacity() int {
	return len(q.buf)
}

// Full reports whether a push would be rejected
func (q *InstructionQueue) Full() bool {
	return q.Len() == len(q.buf)
}
