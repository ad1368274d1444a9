package comms

import "code.hybscloud.com/atomix"

// DefaultRingSize is the capacity used for both channel directions.
const DefaultRingSize = 32

// Ring is a fixed-capacity circular byte queue with exactly one producer
// and one consumer. The head and tail counters increase monotonically;
// the live count is head-tail and indexing is modulo the capacity.
//
// Push never rejects a byte. When the ring is full the oldest unread byte
// is reclaimed so that the most recent Cap() bytes are always retrievable
// in order. There is no back-pressure toward the producer; overflow is the
// documented loss mode of the outbound direction.
//
// The counters are atomic so the data write is ordered before the index
// advance on both push and pop.
type Ring struct {
	head atomix.Uint32
	tail atomix.Uint32
	mask uint32
	data []byte
}

// NewRing creates a ring. The capacity must be a power of two.
func NewRing(capacity int) *Ring {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("comms: ring capacity must be a power of two")
	}
	return &Ring{
		mask: uint32(capacity) - 1,
		data: make([]byte, capacity),
	}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() uint32 { return r.mask + 1 }

// Len returns the number of unread bytes.
func (r *Ring) Len() uint32 { return r.head.Load() - r.tail.Load() }

// Empty reports whether the ring holds no unread bytes.
func (r *Ring) Empty() bool { return r.Len() == 0 }

// Full reports whether the next Push will reclaim the oldest byte.
func (r *Ring) Full() bool { return r.Len() == r.Cap() }

// Clear discards all unread bytes. Only safe while both sides are quiescent,
// which the session controller guarantees.
func (r *Ring) Clear() { r.tail.Store(r.head.Load()) }

// Push appends a byte, reclaiming the oldest unread byte when full.
// A pop racing the reclaim costs at most one extra dropped byte; the
// counters stay consistent because both advances are atomic.
func (r *Ring) Push(v byte) {
	if r.Full() {
		r.tail.Add(1)
	}
	h := r.head.Load()
	r.data[h&r.mask] = v
	r.head.Store(h + 1)
}

// Pop removes and returns the oldest byte. Undefined when empty; callers
// check Len first, except the mailbox consumer whose availability the pump
// has already guaranteed through the pending flag.
func (r *Ring) Pop() byte {
	t := r.tail.Load()
	v := r.data[t&r.mask]
	r.tail.Store(t + 1)
	return v
}

// Peek returns the oldest byte without removing it.
func (r *Ring) Peek() byte {
	return r.data[r.tail.Load()&r.mask]
}
