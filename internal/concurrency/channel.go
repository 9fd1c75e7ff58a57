package concurrency

import (
	"sync"
	"time"

	"github.com/storylang/storylang/internal/runtime"
)

// Channel is a bounded, single-producer multi-consumer channel.
// Send/Receive block; TryReceive honors a fractional-second timeout and
// returns None on expiry without closing the channel.
type Channel struct {
	ch     chan runtime.Value
	mu     sync.Mutex
	closed bool
}

// NewChannel creates a Channel with the given buffer capacity.
func NewChannel(capacity int) *Channel {
	if capacity < 0 {
		capacity = 0
	}
	return &Channel{ch: make(chan runtime.Value, capacity)}
}

// Send blocks until the value is accepted, erroring if the channel is
// closed.
func (c *Channel) Send(v runtime.Value) (err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return runtime.NewError(runtime.KindLogic, "SendOnClosedChannel", "cannot send on a closed channel")
	}
	c.mu.Unlock()

	defer func() {
		// a Close racing with this send after the check above is the
		// only way to panic here; recover and report it as the same
		// closed-channel error rather than letting it escape.
		if r := recover(); r != nil {
			err = runtime.NewError(runtime.KindLogic, "SendOnClosedChannel", "cannot send on a closed channel")
		}
	}()
	c.ch <- v
	return nil
}

// Receive blocks until a value is available or the channel is closed and
// drained, in which case it returns an error.
func (c *Channel) Receive() (runtime.Value, error) {
	v, ok := <-c.ch
	if !ok {
		return nil, runtime.NewError(runtime.KindLogic, "ReceiveOnClosedChannel", "channel closed and drained")
	}
	return v, nil
}

// TryReceive waits up to timeoutSeconds for a value, returning
// Option(None) on expiry.
func (c *Channel) TryReceive(timeoutSeconds float64) (runtime.Value, error) {
	timer := time.NewTimer(time.Duration(timeoutSeconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case v, ok := <-c.ch:
		if !ok {
			return runtime.None(), nil
		}
		return runtime.Some(v), nil
	case <-timer.C:
		return runtime.None(), nil
	}
}

// Close marks the channel closed; pending buffered values remain
// receivable until drained.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
