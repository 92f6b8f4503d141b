// Package chunkpool recycles a fixed set of buffers between a feeder
// goroutine and a realtime goroutine using two spsc channels: filled
// chunks go one way, empty chunks come back the other way.
package chunkpool

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aradilov/spsc"
	"github.com/valyala/fastrand"
)

var ErrInvalidSize = fmt.Errorf("pool size must be > 0")

// Pool owns n chunks. The feeder calls Acquire and Submit, the realtime
// side calls Next and Recycle. Each side must stay on one goroutine.
type Pool[T any] struct {
	size   int
	filled *spsc.Channel[T]
	empty  *spsc.Channel[T]
}

// New creates a pool of n chunks produced by alloc.
// Both channels can hold all n chunks, so Recycle never fails while
// the pool is used correctly.
func New[T any](n int, alloc func() T) (*Pool[T], error) {
	if n <= 0 {
		return nil, fmt.Errorf("chunkpool: size %d: %w", n, ErrInvalidSize)
	}

	capacity := spsc.CapacityFor(n)
	p := &Pool[T]{
		size:   n,
		filled: spsc.MustNew[T](capacity),
		empty:  spsc.MustNew[T](capacity),
	}

	for i := 0; i < n; i++ {
		if !p.empty.Send(alloc()) {
			panic("unreached")
		}
	}

	return p, nil
}

// Size returns the number of chunks owned by the pool.
func (p *Pool[T]) Size() int {
	return p.size
}

// Acquire takes an empty chunk for filling (feeder side).
func (p *Pool[T]) Acquire() (T, bool) {
	return p.empty.Receive()
}

// Submit hands a filled chunk to the realtime side (feeder side).
func (p *Pool[T]) Submit(chunk T) bool {
	return p.filled.Send(chunk)
}

// Next takes the oldest filled chunk (realtime side).
func (p *Pool[T]) Next() (T, bool) {
	return p.filled.Receive()
}

// Recycle returns a consumed chunk to the feeder (realtime side).
func (p *Pool[T]) Recycle(chunk T) bool {
	return p.empty.Send(chunk)
}

// Pending returns the number of filled chunks waiting for the realtime side.
func (p *Pool[T]) Pending() int {
	return p.filled.Len()
}

// Stats returns the counters of the filled and empty channels.
func (p *Pool[T]) Stats() (filled, empty spsc.Stats) {
	return p.filled.Stats(), p.empty.Stats()
}

// Reclaim collects every chunk back on the feeder side once the realtime
// side has stopped. Chunks still waiting in the filled channel are taken
// too, so the caller must own both sides at this point.
func (p *Pool[T]) Reclaim(ctx context.Context, interval time.Duration) ([]T, error) {
	chunks := make([]T, 0, p.size)
	for len(chunks) < p.size {
		err := Poll(ctx, interval, func() bool {
			if c, ok := p.empty.Receive(); ok {
				chunks = append(chunks, c)
				return true
			}
			if c, ok := p.filled.Receive(); ok {
				chunks = append(chunks, c)
				return true
			}
			return false
		})
		if err != nil {
			return chunks, fmt.Errorf("chunkpool: reclaimed %d of %d chunks: %w", len(chunks), p.size, err)
		}
	}
	return chunks, nil
}

// Poll calls fn until it returns true, sleeping about interval between
// attempts. A random jitter of up to a quarter of interval is added so
// two pollers do not fall into lockstep.
func Poll(ctx context.Context, interval time.Duration, fn func() bool) error {
	for !fn() {
		d := interval
		if q := min(interval/4, math.MaxUint32); q > 0 {
			d += time.Duration(fastrand.Uint32n(uint32(q)))
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
