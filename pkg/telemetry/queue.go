package telemetry

import "sync/atomic"

// Queue is a fixed-capacity, power-of-two SPSC ring buffer of Snapshots,
// per spec §3/§4.4. One slot is sacrificed to distinguish empty from
// full, so a Queue built with capacity N holds at most N-1 unread
// snapshots. head is written only by the producer (Publish), tail only by
// the consumer (ReadLatest); Go's atomic Load/Store pair on the same
// variable gives the acquire/release ordering spec §4.4/§9 calls for:
// the payload write in Publish happens-before the head Store the reader
// observes, and the payload read in ReadLatest happens-after the head
// Load that revealed it.
type Queue struct {
	buf  []Snapshot
	mask uint32
	head atomic.Uint32
	tail atomic.Uint32
}

// NewQueue allocates a queue with the given power-of-two capacity
// (recommended 8-16 per spec §4.4). Panics if capacity is not a power of
// two >= 2, which is a construction-time programming error.
func NewQueue(capacity int) *Queue {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic("telemetry: capacity must be a power of two >= 2")
	}
	return &Queue{
		buf:  make([]Snapshot, capacity),
		mask: uint32(capacity - 1),
	}
}

// Publish stores s as the newest snapshot. Wait-free: no locks, no
// retries, bounded work. On a full queue the new snapshot is dropped
// (spec §4.4/§7: "the engine picks drop-new so that the consumer sees
// coherent history") and Publish returns false.
func (q *Queue) Publish(s Snapshot) bool {
	h := q.head.Load()
	t := q.tail.Load()
	next := (h + 1) & q.mask
	if next == t {
		return false
	}
	q.buf[h] = s
	q.head.Store(next)
	return true
}

// ReadLatest returns the most recently published snapshot and advances
// tail past any skipped, unread snapshots, so the consumer never
// accumulates backlog (spec §4.4). Returns false if nothing has been
// published since the last read.
func (q *Queue) ReadLatest() (Snapshot, bool) {
	h := q.head.Load()
	t := q.tail.Load()
	if h == t {
		return Snapshot{}, false
	}
	latest := (h - 1) & q.mask
	s := q.buf[latest]
	q.tail.Store(h)
	return s, true
}

// Empty reports whether there is nothing pending to read. Safe to call
// from the consumer only.
func (q *Queue) Empty() bool {
	return q.head.Load() == q.tail.Load()
}
