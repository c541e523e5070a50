// Package client is a small RESP client for talking to an instance over
// its socket. Conn is a single connection; Pool keeps a bounded set of
// connections for concurrent callers.
package client
