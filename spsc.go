// Package spsc implements a bounded, wait-free single-producer,
// single-consumer channel.
//
// Exactly one goroutine may send and exactly one goroutine may receive
// over the lifetime of a Channel. Neither side ever blocks: a full or
// empty channel is reported by a false result and the caller decides
// how to wait.
package spsc

import (
	"errors"
	"math/bits"
)

// ErrInvalidCapacity is returned when capacity+1 is not a power of two.
var ErrInvalidCapacity = errors.New("capacity must be 2^k-1 and >= 0")

// validCapacity reports whether capacity+1 is a power of two.
func validCapacity(capacity int) bool {
	return capacity >= 0 && capacity&(capacity+1) == 0
}

// CapacityFor returns the smallest valid capacity (2^k-1) that holds n items.
func CapacityFor(n int) int {
	if n <= 0 {
		return 0
	}
	return 1<<bits.Len(uint(n)) - 1
}

// noCopy may be embedded into structs which must not be copied
// after the first use. See go vet -copylocks.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
