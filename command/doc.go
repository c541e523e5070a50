// Package command decodes requests into command executions against an
// instance's keyspace.
//
// Every command is described by a Spec in the command table: its name, its
// arity in the Redis convention (positive means exact, negative means at
// least, both counting the command name) and flags. The Dispatcher checks
// arity before the handler runs, executes the handler under the single
// instance lock and, once the command has committed, hands keys that
// gained data to the blocking coordinator.
//
// Failures are *Error values carrying their RESP error prefix; the
// connection layer writes them as error replies and the instance keeps
// serving.
package command
