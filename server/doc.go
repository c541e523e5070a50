// Package server serves the RESP protocol over TCP for one instance.
//
// Each connection gets a goroutine that reads requests, hands them to the
// command dispatcher and writes replies strictly in request order.
// Replies to pipelined requests are buffered and flushed once no further
// input is pending. Stop closes the listener and every connection and
// returns only after all connection goroutines have exited.
package server
