// Package blocking coordinates commands that wait for data, such as BLPOP.
//
// A blocking command that finds nothing to pop registers a Waiter against
// one or more keys and releases the instance lock. Producers never call
// back into the waiting connection: after a producing command commits, the
// coordinator walks the FIFO queue of every key that gained data, runs the
// head waiter's serve function under the instance lock and hands the reply
// over the waiter's channel. A waiter is served at most once.
//
// Waiter lifecycle:
//
//	Arrived -> Waiting -> Woken     (a producer served it)
//	                   -> TimedOut  (deadline elapsed first)
//	                   -> Cancelled (connection closed or instance shut down)
package blocking
