package spsc

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Channel is a bounded ring buffer for passing values between one
// producer goroutine and one consumer goroutine.
//
// The buffer has capacity+1 slots. One slot is always left unused so that
// read == write means empty and write+1 == read means full, without a
// shared item counter. Each index has a single writer: the producer owns
// write, the consumer owns read.
//
// A Channel must not be copied after first use.
type Channel[T any] struct {
	_        noCopy
	mask     uint64
	capacity int
	slots    []T
	split    atomic.Bool

	_     cpu.CacheLinePad
	write atomic.Uint64 // next slot to fill, updated by the producer only

	// diagnostics, single writer: the producer
	sendAttempts atomic.Uint64
	sendFull     atomic.Uint64

	_    cpu.CacheLinePad
	read atomic.Uint64 // next slot to drain, updated by the consumer only

	// diagnostics, single writer: the consumer
	receiveAttempts atomic.Uint64
	receiveEmpty    atomic.Uint64

	_ cpu.CacheLinePad
}

// Stats is a snapshot of the channel counters.
// The counters are diagnostics only. They are not part of the channel
// state: full, empty and the stored items depend on the indices alone,
// which a failed Send or Receive never touches.
type Stats struct {
	SendAttempts    uint64
	SendFull        uint64
	ReceiveAttempts uint64
	ReceiveEmpty    uint64
}

// New creates a channel that holds up to capacity items.
// capacity+1 must be a power of two: 0, 1, 3, 7, 15, ...
func New[T any](capacity int) (*Channel[T], error) {
	if !validCapacity(capacity) {
		return nil, fmt.Errorf("spsc: capacity %d: %w", capacity, ErrInvalidCapacity)
	}

	return &Channel[T]{
		mask:     uint64(capacity),
		capacity: capacity,
		slots:    make([]T, capacity+1),
	}, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew[T any](capacity int) *Channel[T] {
	c, err := New[T](capacity)
	if err != nil {
		panic(err)
	}
	return c
}

// Capacity returns the capacity passed to New.
func (c *Channel[T]) Capacity() int {
	return c.capacity
}

// Send puts item onto the channel.
// Returns false if the channel is full; nothing is changed in that case.
// IMPORTANT: must be called from a single producer goroutine.
func (c *Channel[T]) Send(item T) bool {
	inc(&c.sendAttempts)

	// we own write, the load only needs to be atomic
	w := c.write.Load()
	next := (w + 1) & c.mask

	// observe the latest slot freed by the consumer
	if next == c.read.Load() {
		inc(&c.sendFull)
		return false
	}

	c.slots[w] = item
	// publish the write: the slot is visible before the new index
	c.write.Store(next)
	return true
}

// Receive takes the oldest item from the channel.
// Returns (zero, false) if the channel is empty.
// IMPORTANT: must be called from a single consumer goroutine.
func (c *Channel[T]) Receive() (T, bool) {
	inc(&c.receiveAttempts)

	var zero T

	r := c.read.Load()
	// observe the latest item published by the producer
	if r == c.write.Load() {
		inc(&c.receiveEmpty)
		return zero, false
	}

	v := c.slots[r]
	// drop the reference so the slot does not pin garbage until reuse
	c.slots[r] = zero
	// publish the read: the producer may reuse the slot only after this
	c.read.Store((r + 1) & c.mask)
	return v, true
}

// Len returns the number of items in the channel.
// The value may be stale if the peer goroutine is active.
func (c *Channel[T]) Len() int {
	w := c.write.Load()
	r := c.read.Load()
	return int((w - r) & c.mask)
}

// Stats retrieves the current counters of the channel.
func (c *Channel[T]) Stats() Stats {
	return Stats{
		SendAttempts:    c.sendAttempts.Load(),
		SendFull:        c.sendFull.Load(),
		ReceiveAttempts: c.receiveAttempts.Load(),
		ReceiveEmpty:    c.receiveEmpty.Load(),
	}
}

// inc bumps a counter that has exactly one writer. A load and a store are
// enough, no read-modify-write is needed.
func inc(v *atomic.Uint64) {
	v.Store(v.Load() + 1)
}
