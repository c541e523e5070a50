package blocking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/birdisle/birdisle/protocol"
)

// Coordinator owns the waiter queues of one instance. Every method except
// Wait must be called with the instance lock held.
type Coordinator struct {
	queues  map[string][]*Waiter
	waiters map[uint64]*Waiter
	nextID  uint64
	clock   func() time.Time
}

// NewCoordinator creates an empty coordinator
func NewCoordinator() *Coordinator {
	return &Coordinator{
		queues:  make(map[string][]*Waiter),
		waiters: make(map[uint64]*Waiter),
		clock:   time.Now,
	}
}

// Register queues a new waiter on keys. timeout <= 0 means wait forever.
// The deadline is measured from registration.
func (c *Coordinator) Register(owner uint64, keys []string, timeout time.Duration, serve ServeFunc) *Waiter {
	c.nextID++
	w := &Waiter{
		id:        c.nextID,
		owner:     owner,
		keys:      dedupe(keys),
		serve:     serve,
		state:     Arrived,
		result:    make(chan protocol.Value, 1),
		cancelled: make(chan struct{}),
	}
	if timeout > 0 {
		w.deadline = c.clock().Add(timeout)
	}

	for _, key := range w.keys {
		c.queues[key] = append(c.queues[key], w)
	}
	c.waiters[w.id] = w
	w.state = Waiting
	return w
}

// Serve wakes waiters on keys that gained data, earliest registered first.
// A waiter that cannot take from the key, because it waits for another
// type or the key ran dry, is skipped and stays queued, so it never holds
// back the waiters behind it.
func (c *Coordinator) Serve(keys []string) {
	for _, key := range keys {
		queue := append([]*Waiter(nil), c.queues[key]...)
		for _, w := range queue {
			if w.state != Waiting {
				continue
			}
			reply, served, err := w.serve(key)
			if err == nil && !served {
				continue
			}
			c.unlink(w)
			w.deliver(reply, err)
		}
	}
}

// Expire moves a waiting waiter to TimedOut. It returns false when a
// producer already served it.
func (c *Coordinator) Expire(w *Waiter) bool {
	if w.state != Waiting {
		return false
	}
	c.unlink(w)
	w.state = TimedOut
	return true
}

// Cancel withdraws a waiting waiter without delivering a reply
func (c *Coordinator) Cancel(w *Waiter) bool {
	if w.state != Waiting {
		return false
	}
	c.unlink(w)
	w.state = Cancelled
	close(w.cancelled)
	return true
}

// CancelOwner cancels every waiter registered by the connection owner
func (c *Coordinator) CancelOwner(owner uint64) int {
	cancelled := 0
	for _, w := range c.snapshot() {
		if w.owner == owner && c.Cancel(w) {
			cancelled++
		}
	}
	return cancelled
}

// CancelAll cancels every waiter, used on instance shutdown
func (c *Coordinator) CancelAll() int {
	cancelled := 0
	for _, w := range c.snapshot() {
		if c.Cancel(w) {
			cancelled++
		}
	}
	return cancelled
}

// Len returns the number of waiting waiters
func (c *Coordinator) Len() int {
	return len(c.waiters)
}

// QueueLen returns the number of waiters queued on key
func (c *Coordinator) QueueLen(key string) int {
	return len(c.queues[key])
}

// Wait blocks the calling goroutine until w is woken, times out or is
// cancelled. mu is the instance lock; it must NOT be held by the caller.
// Cancelling ctx cancels the waiter.
func (c *Coordinator) Wait(ctx context.Context, mu sync.Locker, w *Waiter) (protocol.Value, State) {
	var timeout <-chan time.Time
	if deadline, ok := w.Deadline(); ok {
		timer := time.NewTimer(deadline.Sub(c.clock()))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case reply := <-w.result:
		return reply, Woken

	case <-w.cancelled:
		return protocol.Value{}, Cancelled

	case <-timeout:
		mu.Lock()
		expired := c.Expire(w)
		mu.Unlock()
		if expired {
			return protocol.Value{}, TimedOut
		}

	case <-ctx.Done():
		mu.Lock()
		cancelled := c.Cancel(w)
		mu.Unlock()
		if cancelled {
			return protocol.Value{}, Cancelled
		}
	}

	// Lost the race against a producer or a concurrent cancel; the state
	// was settled under the lock, so exactly one of these is ready.
	select {
	case reply := <-w.result:
		return reply, Woken
	case <-w.cancelled:
		return protocol.Value{}, Cancelled
	}
}

// unlink removes w from every queue it is on
func (c *Coordinator) unlink(w *Waiter) {
	for _, key := range w.keys {
		queue := c.queues[key]
		for i, queued := range queue {
			if queued == w {
				queue = append(queue[:i], queue[i+1:]...)
				break
			}
		}
		if len(queue) == 0 {
			delete(c.queues, key)
		} else {
			c.queues[key] = queue
		}
	}
	delete(c.waiters, w.id)
}

// snapshot returns the waiters in registration order
func (c *Coordinator) snapshot() []*Waiter {
	out := make([]*Waiter, 0, len(c.waiters))
	for _, w := range c.waiters {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
