package blocking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdisle/birdisle/protocol"
)

// queueStore is a minimal producer side: a map of FIFO queues
type queueStore struct {
	items map[string][]string
}

func (s *queueStore) push(key, value string) {
	s.items[key] = append(s.items[key], value)
}

func (s *queueStore) pop(key string) (protocol.Value, bool, error) {
	queue := s.items[key]
	if len(queue) == 0 {
		return protocol.Value{}, false, nil
	}
	s.items[key] = queue[1:]
	return protocol.Array(protocol.BulkFromString(key), protocol.BulkFromString(queue[0])), true, nil
}

// never is a waiter that can not take anything from any key
func never(string) (protocol.Value, bool, error) {
	return protocol.Value{}, false, nil
}

func newFixture() (*Coordinator, *queueStore, *sync.Mutex) {
	return NewCoordinator(), &queueStore{items: make(map[string][]string)}, &sync.Mutex{}
}

func TestCoordinator_FIFOServing(t *testing.T) {
	c, store, mu := newFixture()

	first := c.Register(1, []string{"foo"}, 0, store.pop)
	second := c.Register(2, []string{"foo"}, 0, store.pop)
	assert.Equal(t, 2, c.QueueLen("foo"))

	store.push("foo", "bar")
	c.Serve([]string{"foo"})

	reply, state := c.Wait(context.Background(), mu, first)
	assert.Equal(t, Woken, state)
	assert.Equal(t, "[foo, bar]", reply.String())

	assert.Equal(t, Waiting, second.state)
	assert.Equal(t, 1, c.QueueLen("foo"))
	assert.Equal(t, 1, c.Len())
}

func TestCoordinator_ServeStopsWhenKeyRunsDry(t *testing.T) {
	c, store, _ := newFixture()

	waiters := []*Waiter{
		c.Register(1, []string{"k"}, 0, store.pop),
		c.Register(2, []string{"k"}, 0, store.pop),
		c.Register(3, []string{"k"}, 0, store.pop),
	}

	store.push("k", "a")
	store.push("k", "b")
	c.Serve([]string{"k"})

	assert.Equal(t, Woken, waiters[0].state)
	assert.Equal(t, Woken, waiters[1].state)
	assert.Equal(t, Waiting, waiters[2].state)
	assert.Equal(t, "[k, a]", (<-waiters[0].result).String())
	assert.Equal(t, "[k, b]", (<-waiters[1].result).String())
}

func TestCoordinator_UnservableHeadDoesNotBlockQueue(t *testing.T) {
	c, store, mu := newFixture()

	head := c.Register(1, []string{"k"}, 0, never)
	behind := c.Register(2, []string{"k"}, 0, store.pop)

	store.push("k", "v")
	c.Serve([]string{"k"})

	reply, state := c.Wait(context.Background(), mu, behind)
	require.Equal(t, Woken, state)
	assert.Equal(t, "[k, v]", reply.String())
	assert.NoError(t, behind.Err())

	assert.Equal(t, Waiting, head.state, "unservable waiter stays queued")
	assert.Equal(t, 1, c.QueueLen("k"))
}

func TestCoordinator_ServeErrorCompletesWaiter(t *testing.T) {
	c, store, mu := newFixture()

	failure := errors.New("destination holds the wrong kind of value")
	failing := c.Register(1, []string{"k"}, 0, func(string) (protocol.Value, bool, error) {
		return protocol.Value{}, false, failure
	})
	next := c.Register(2, []string{"k"}, 0, store.pop)

	store.push("k", "v")
	c.Serve([]string{"k"})

	_, state := c.Wait(context.Background(), mu, failing)
	require.Equal(t, Woken, state)
	assert.ErrorIs(t, failing.Err(), failure)

	reply, state := c.Wait(context.Background(), mu, next)
	require.Equal(t, Woken, state)
	assert.Equal(t, "[k, v]", reply.String())
	assert.Equal(t, 0, c.Len())
}

func TestCoordinator_MultiKeyWaiterServedOnce(t *testing.T) {
	c, store, _ := newFixture()

	w := c.Register(1, []string{"a", "b", "a"}, 0, store.pop)
	assert.Equal(t, []string{"a", "b"}, w.Keys())

	store.push("a", "1")
	store.push("b", "2")
	c.Serve([]string{"b", "a"})

	assert.Equal(t, "[b, 2]", (<-w.result).String())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.QueueLen("a"))
	assert.Equal(t, []string{"1"}, store.items["a"], "second key must not be consumed")
}

func TestCoordinator_Timeout(t *testing.T) {
	c, store, mu := newFixture()

	start := time.Now()
	w := c.Register(1, []string{"k"}, 100*time.Millisecond, store.pop)
	_, state := c.Wait(context.Background(), mu, w)
	elapsed := time.Since(start)

	assert.Equal(t, TimedOut, state)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 0, c.Len())
}

func TestCoordinator_ContextCancel(t *testing.T) {
	c, store, mu := newFixture()

	w := c.Register(7, []string{"k"}, 0, store.pop)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan State, 1)
	go func() {
		_, state := c.Wait(ctx, mu, w)
		done <- state
	}()

	cancel()
	select {
	case state := <-done:
		assert.Equal(t, Cancelled, state)
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe cancellation")
	}

	mu.Lock()
	assert.Equal(t, 0, c.Len())
	store.push("k", "v")
	c.Serve([]string{"k"})
	mu.Unlock()
	assert.Equal(t, []string{"v"}, store.items["k"], "cancelled waiter must not consume data")
}

func TestCoordinator_CancelOwnerAndAll(t *testing.T) {
	c, store, mu := newFixture()

	a := c.Register(1, []string{"k"}, 0, store.pop)
	b := c.Register(2, []string{"k"}, 0, store.pop)
	d := c.Register(2, []string{"j"}, 0, store.pop)

	assert.Equal(t, 2, c.CancelOwner(2))
	assert.Equal(t, Cancelled, b.state)
	assert.Equal(t, Cancelled, d.state)

	_, state := c.Wait(context.Background(), mu, b)
	assert.Equal(t, Cancelled, state)

	assert.Equal(t, 1, c.CancelAll())
	assert.Equal(t, Cancelled, a.state)
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Cancel(a))
}

func TestCoordinator_ProducerFromAnotherGoroutine(t *testing.T) {
	c, store, mu := newFixture()

	mu.Lock()
	w := c.Register(1, []string{"foo"}, 5*time.Second, store.pop)
	mu.Unlock()

	go func() {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		store.push("foo", "bar")
		c.Serve([]string{"foo"})
		mu.Unlock()
	}()

	reply, state := c.Wait(context.Background(), mu, w)
	require.Equal(t, Woken, state)
	assert.Equal(t, "[foo, bar]", reply.String())
}

func TestCoordinator_ExpireAfterWake(t *testing.T) {
	c, store, _ := newFixture()

	w := c.Register(1, []string{"k"}, time.Minute, store.pop)
	store.push("k", "v")
	c.Serve([]string{"k"})

	assert.False(t, c.Expire(w), "a served waiter cannot time out")
	assert.Equal(t, Woken, w.state)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting", Waiting.String())
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "unknown", State(99).String())
}
