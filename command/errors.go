package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/birdisle/birdisle/protocol"
	"github.com/birdisle/birdisle/storage"
)

// Kind classifies command failures
type Kind int

const (
	KindGeneric Kind = iota
	KindProtocol
	KindArity
	KindSyntax
	KindWrongType
	KindNotANumber
	KindUnknownCommand
	KindNoScript
	KindScript
	KindClosed
	KindResourceExhausted
)

// String returns the kind name used in metrics
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindArity:
		return "arity"
	case KindSyntax:
		return "syntax"
	case KindWrongType:
		return "wrongtype"
	case KindNotANumber:
		return "not_a_number"
	case KindUnknownCommand:
		return "unknown_command"
	case KindNoScript:
		return "noscript"
	case KindScript:
		return "script"
	case KindClosed:
		return "closed"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "generic"
	}
}

// Error is a command failure. Message is the full RESP error text,
// including its prefix (ERR, WRONGTYPE, NOSCRIPT, ...).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Reply renders the error as a RESP error value
func (e *Error) Reply() protocol.Value {
	return protocol.ErrorValue(e.Message)
}

// Is matches errors of the same kind, so errors.Is(err, ErrWrongType) works
// for any wrong type failure
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrProtocol          = &Error{Kind: KindProtocol}
	ErrArity             = &Error{Kind: KindArity}
	ErrSyntax            = &Error{Kind: KindSyntax}
	ErrWrongType         = &Error{Kind: KindWrongType}
	ErrNotANumber        = &Error{Kind: KindNotANumber}
	ErrUnknownCommand    = &Error{Kind: KindUnknownCommand}
	ErrNoScript          = &Error{Kind: KindNoScript}
	ErrScript            = &Error{Kind: KindScript}
	ErrClosed            = &Error{Kind: KindClosed}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
)

// ErrWaitCancelled is returned by Exec when a blocking command was
// withdrawn because its connection or instance went away. No reply must
// be written for it.
var ErrWaitCancelled = errors.New("blocking wait cancelled")

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ArityError reports a wrong argument count for cmd
func ArityError(cmd string) *Error {
	return newError(KindArity, "ERR wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

// UnknownCommandError reports a command missing from the table
func UnknownCommandError(cmd string, args [][]byte) *Error {
	var b strings.Builder
	for i, arg := range args {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "'%s' ", arg)
	}
	return newError(KindUnknownCommand, "ERR unknown command '%s', with args beginning with: %s", cmd, b.String())
}

// ProtocolError wraps a request framing failure
func ProtocolError(err error) *Error {
	return &Error{Kind: KindProtocol, Message: "ERR " + err.Error(), Err: err}
}

// ClosedError is returned for commands issued after instance shutdown
func ClosedError() *Error {
	return newError(KindClosed, "ERR instance is closed")
}

// ResourceExhaustedError reports an exhausted OS resource
func ResourceExhaustedError(err error) *Error {
	return &Error{Kind: KindResourceExhausted, Message: "ERR max number of clients reached: " + err.Error(), Err: err}
}

func syntaxError() *Error {
	return newError(KindSyntax, "ERR syntax error")
}

func notIntegerError() *Error {
	return &Error{Kind: KindNotANumber, Message: "ERR value is not an integer or out of range", Err: storage.ErrNotInteger}
}

func notFloatError() *Error {
	return &Error{Kind: KindNotANumber, Message: "ERR value is not a valid float", Err: storage.ErrNotFloat}
}

func timeoutError() *Error {
	return newError(KindNotANumber, "ERR timeout is not a float or out of range")
}

// toError converts storage and other internal errors into *Error
func toError(err error) *Error {
	var cmdErr *Error
	switch {
	case errors.As(err, &cmdErr):
		return cmdErr
	case errors.Is(err, storage.ErrWrongType):
		return &Error{Kind: KindWrongType, Message: "WRONGTYPE Operation against a key holding the wrong kind of value", Err: err}
	case errors.Is(err, storage.ErrNotInteger):
		return notIntegerError()
	case errors.Is(err, storage.ErrNotFloat):
		return notFloatError()
	case errors.Is(err, storage.ErrNaNOrInfinity):
		return &Error{Kind: KindNotANumber, Message: "ERR increment would produce NaN or Infinity", Err: err}
	case errors.Is(err, storage.ErrScoreNaN):
		return &Error{Kind: KindNotANumber, Message: "ERR resulting score is not a number (NaN)", Err: err}
	case errors.Is(err, storage.ErrOverflow):
		return &Error{Kind: KindNotANumber, Message: "ERR increment or decrement would overflow", Err: err}
	case errors.Is(err, storage.ErrNoSuchKey):
		return &Error{Kind: KindGeneric, Message: "ERR no such key", Err: err}
	case errors.Is(err, storage.ErrIndexOutOfRange):
		return &Error{Kind: KindGeneric, Message: "ERR index out of range", Err: err}
	default:
		return &Error{Kind: KindGeneric, Message: "ERR " + err.Error(), Err: err}
	}
}
