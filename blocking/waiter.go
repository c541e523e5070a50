package blocking

import (
	"time"

	"github.com/birdisle/birdisle/protocol"
)

// State is the lifecycle state of a Waiter
type State int

const (
	Arrived State = iota
	Waiting
	Woken
	TimedOut
	Cancelled
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Arrived:
		return "arrived"
	case Waiting:
		return "waiting"
	case Woken:
		return "woken"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ServeFunc tries to satisfy a waiter from key. It runs with the instance
// lock held and must re-check the keyspace. served false with a nil error
// leaves the waiter queued; a non-nil error completes the waiter with that
// error.
type ServeFunc func(key string) (reply protocol.Value, served bool, err error)

// Waiter is one suspended blocking request
type Waiter struct {
	id       uint64
	owner    uint64
	keys     []string
	serve    ServeFunc
	deadline time.Time // zero means no deadline

	// Mutated only under the instance lock
	state State

	result    chan protocol.Value
	err       error
	cancelled chan struct{}
}

// Keys returns the keys the waiter watches, in registration order
func (w *Waiter) Keys() []string {
	return w.keys
}

// Owner returns the id of the connection that registered the waiter
func (w *Waiter) Owner() uint64 {
	return w.owner
}

// Deadline returns the absolute deadline and whether one is set
func (w *Waiter) Deadline() (time.Time, bool) {
	return w.deadline, !w.deadline.IsZero()
}

// Err returns the error the waiter was completed with. It is only
// meaningful after Wait returned Woken.
func (w *Waiter) Err() error {
	return w.err
}

// deliver moves the waiter to Woken and hands over the reply
func (w *Waiter) deliver(reply protocol.Value, err error) {
	w.state = Woken
	w.err = err
	w.result <- reply
}
