package birdisle

import (
	"errors"
	"fmt"

	"github.com/birdisle/birdisle/command"
)

// Error types for specific failure scenarios
var (
	// ErrInstanceClosed is returned by every operation on a closed instance
	ErrInstanceClosed = errors.New("instance is closed")

	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Command failures. Every error reply returned by Do is a *CommandError
// that matches exactly one of these with errors.Is.
var (
	// ErrProtocol indicates a malformed request
	ErrProtocol = command.ErrProtocol

	// ErrArity indicates a command called with the wrong number of arguments
	ErrArity = command.ErrArity

	// ErrSyntax indicates an invalid option combination
	ErrSyntax = command.ErrSyntax

	// ErrTypeMismatch indicates an operation against a key holding the
	// wrong kind of value
	ErrTypeMismatch = command.ErrWrongType

	// ErrNotANumber indicates a value or argument that does not parse as
	// an integer or float, or an arithmetic result out of range
	ErrNotANumber = command.ErrNotANumber

	// ErrUnknownCommand indicates a command name missing from the table
	ErrUnknownCommand = command.ErrUnknownCommand

	// ErrNoScript indicates EVALSHA of a script that is not cached
	ErrNoScript = command.ErrNoScript

	// ErrScript indicates a script that failed to compile or raised
	ErrScript = command.ErrScript

	// ErrResourceExhausted indicates the process ran out of descriptors
	// or a similar resource
	ErrResourceExhausted = command.ErrResourceExhausted
)

// CommandError is the error returned for an error reply
type CommandError = command.Error

// ConfigError reports an invalid option value
type ConfigError struct {
	Option string
	Err    error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid option %s: %v", e.Option, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func invalidOption(option, format string, args ...interface{}) error {
	return &ConfigError{
		Option: option,
		Err:    fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...),
	}
}
