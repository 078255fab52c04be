// ============================================================================
// TRACE EVENT RING
// ============================================================================
//
// Single-producer/single-consumer ring of fixed 24-byte records. A simulated
// core produces lock events into its own ring; the trace collector drains
// every ring from one pinned thread.
//
// Slot availability is signalled through per-slot sequence numbers, so the
// producer and consumer never write the same word:
//   - slot free for position p:   seq == p
//   - slot filled for position p: seq == p + 1
//   - consumer frees it:          seq = p + size
//
// SPSC discipline is the caller's job. Push returns false when full.

package evring

import (
	"sync/atomic"
)

// RecordSize is the payload width of one slot.
const RecordSize = 24

type slot struct {
	val [RecordSize]byte
	seq atomic.Uint64
}

// Ring is a fixed-capacity SPSC queue. Cursors sit on separate cache lines.
type Ring struct {
	_    [64]byte
	head atomic.Uint64 // consumer

	_    [56]byte
	tail atomic.Uint64 // producer

	_ [56]byte

	mask uint64
	step uint64
	buf  []slot
}

// New creates a ring holding size records. size must be a power of two.
func New(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("evring: size must be >0 and power of two")
	}
	r := &Ring{
		mask: uint64(size - 1),
		step: uint64(size),
		buf:  make([]slot, size),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r
}

// Push copies val into the ring. Producer side only.
func (r *Ring) Push(val *[RecordSize]byte) bool {
	t := r.tail.Load()
	s := &r.buf[t&r.mask]
	if s.seq.Load() != t {
		return false
	}
	s.val = *val
	s.seq.Store(t + 1)
	r.tail.Store(t + 1)
	return true
}

// Pop returns the oldest record or nil when empty. Consumer side only. The
// pointer is valid until the next Pop.
func (r *Ring) Pop() *[RecordSize]byte {
	h := r.head.Load()
	s := &r.buf[h&r.mask]
	if s.seq.Load() != h+1 {
		return nil
	}
	val := s.val
	s.seq.Store(h + r.step)
	r.head.Store(h + 1)
	return &val
}

// Len is a snapshot of queued records. Exact only when both sides are idle.
func (r *Ring) Len() int {
	t := r.tail.Load()
	h := r.head.Load()
	if t < h {
		return 0
	}
	return int(t - h)
}

// Cap is the fixed capacity.
func (r *Ring) Cap() int { return int(r.step) }
