// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import (
	"sync"
	"time"
)

// Channel is the hand-off queue between producer goroutines and the single
// owning goroutine: an unbounded FIFO with close semantics plus an advisory
// Waker so an external event loop can detect pending work without polling.
//
// Senders enqueue and return immediately, then wait on their own request's
// completion. This is what keeps a busy interpreter from deadlocking its
// producers: the queue itself never exerts backpressure.
type Channel struct {
	mu     sync.Mutex
	queue  []*Request
	closed bool

	// notEmpty carries a coalesced "queue became non-empty" signal; done is
	// closed on Close so every blocked receiver re-checks and exits.
	notEmpty chan struct{}
	done     chan struct{}

	waker Waker
}

// NewChannel creates a channel using the given waker for enqueue
// notifications. A nil waker behaves like NoopWaker.
func NewChannel(waker Waker) *Channel {
	if waker == nil {
		waker = NoopWaker{}
	}
	return &Channel{
		notEmpty: make(chan struct{}, 1),
		done:     make(chan struct{}),
		waker:    waker,
	}
}

// Waker returns the channel's waker.
func (c *Channel) Waker() Waker { return c.waker }

// Len returns the number of queued requests.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Send enqueues a request. It never blocks: the queue is unbounded and the
// wake signal is non-blocking. Returns ErrClosed (and does not enqueue) if
// the channel has been closed; the caller retains ownership of the request.
func (c *Channel) Send(req *Request) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	req.enqueued = time.Now()
	c.queue = append(c.queue, req)
	c.mu.Unlock()

	c.signalNotEmpty()
	// Advisory wake for an idle external event loop. Errors are ignored by
	// the waker itself; a blocked Receive does not depend on this.
	c.waker.Notify()
	return nil
}

// signalNotEmpty posts the coalesced in-process readiness signal.
func (c *Channel) signalNotEmpty() {
	select {
	case c.notEmpty <- struct{}{}:
	default:
	}
}

// Receive dequeues the oldest request. The wait parameter selects the mode:
// negative blocks until a request arrives or the channel closes, zero never
// blocks (ErrWouldBlock on empty), positive blocks up to that duration
// (ErrTimedOut on expiry). Once the channel is closed, queued requests are
// still drainable; after the queue empties, Receive returns ErrClosed.
func (c *Channel) Receive(wait time.Duration) (*Request, error) {
	var deadline time.Time
	if wait > 0 {
		deadline = time.Now().Add(wait)
	}

	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			req := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			remaining := len(c.queue)
			c.mu.Unlock()
			if remaining > 0 {
				// Keep the coalesced signal live for other receivers.
				c.signalNotEmpty()
			}
			return req, nil
		}
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}
		if wait == 0 {
			return nil, ErrWouldBlock
		}

		if wait < 0 {
			select {
			case <-c.notEmpty:
			case <-c.done:
			}
			continue
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, ErrTimedOut
		}
		timer := time.NewTimer(remain)
		select {
		case <-c.notEmpty:
			timer.Stop()
		case <-c.done:
			timer.Stop()
		case <-timer.C:
			return nil, ErrTimedOut
		}
	}
}

// TryReceive is the non-blocking variant of Receive.
func (c *Channel) TryReceive() (*Request, error) {
	return c.Receive(0)
}

// drain pops every queued request in FIFO order, so a single wake-up cycle
// processes the whole backlog instead of one item per wake. Draining in one
// batch prevents starvation under bursty producers.
func (c *Channel) drain() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	batch := c.queue
	c.queue = nil
	return batch
}

// Close marks the channel closed and wakes every blocked receiver so it
// returns ErrClosed instead of hanging. Idempotent. Requests already queued
// remain receivable until drained.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
