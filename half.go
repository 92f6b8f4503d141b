package spsc

// Sender is the producer half of a Channel. Hand it to the one goroutine
// that sends; it exposes no way to receive.
type Sender[T any] struct {
	c *Channel[T]
}

// Receiver is the consumer half of a Channel. Hand it to the one goroutine
// that receives; it exposes no way to send.
type Receiver[T any] struct {
	c *Channel[T]
}

// NewPair creates a channel and returns its producer and consumer halves.
func NewPair[T any](capacity int) (*Sender[T], *Receiver[T], error) {
	c, err := New[T](capacity)
	if err != nil {
		return nil, nil, err
	}
	s, r := c.Split()
	return s, r, nil
}

// Split returns the two halves of c. It panics if c was already split,
// so at most one Sender and one Receiver exist per channel.
func (c *Channel[T]) Split() (*Sender[T], *Receiver[T]) {
	if !c.split.CompareAndSwap(false, true) {
		panic("spsc: channel already split")
	}
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

// Send puts item onto the channel, see Channel.Send.
func (s *Sender[T]) Send(item T) bool { return s.c.Send(item) }

// Capacity returns the channel capacity.
func (s *Sender[T]) Capacity() int { return s.c.Capacity() }

// Len returns the number of items in the channel.
func (s *Sender[T]) Len() int { return s.c.Len() }

// Receive takes the oldest item from the channel, see Channel.Receive.
func (r *Receiver[T]) Receive() (T, bool) { return r.c.Receive() }

// Capacity returns the channel capacity.
func (r *Receiver[T]) Capacity() int { return r.c.Capacity() }

// Len returns the number of items in the channel.
func (r *Receiver[T]) Len() int { return r.c.Len() }
