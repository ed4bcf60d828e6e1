package audit

import "sync"

// RingBuffer is a bounded, thread-safe FIFO of entries.
// When full, the oldest entry is dropped to make room for a new one.
type RingBuffer struct {
	mu       sync.RWMutex
	entries  []Entry
	head     int // next write position
	tail     int // oldest entry
	count    int
	capacity int

	evicted int64
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Enqueue appends an entry and reports whether the oldest one was evicted.
func (b *RingBuffer) Enqueue(e Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueueLocked(e)
}

func (b *RingBuffer) enqueueLocked(e Entry) bool {
	evicted := false
	if b.count >= b.capacity {
		b.entries[b.tail] = Entry{}
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.evicted++
		evicted = true
	}

	b.entries[b.head] = e
	b.head = (b.head + 1) % b.capacity
	b.count++
	return evicted
}

// Snapshot returns a copy of the buffered entries, oldest first.
func (b *RingBuffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(b.tail+i)%b.capacity].clone()
	}
	return out
}

// Replace discards the contents and loads entries (oldest first). Only the
// newest capacity entries are kept; the rest count as evicted.
func (b *RingBuffer) Replace(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make([]Entry, b.capacity)
	b.head, b.tail, b.count = 0, 0, 0
	for _, e := range entries {
		b.enqueueLocked(e)
	}
}

// Len returns the current number of entries in the buffer.
func (b *RingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the maximum number of entries held.
func (b *RingBuffer) Cap() int { return b.capacity }

// Evicted returns the total number of evicted entries.
func (b *RingBuffer) Evicted() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}
