package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// Value represents a RESP value. It is used both for parsed requests and
// for replies produced by command execution.
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// SimpleString returns a status reply
func SimpleString(s string) Value {
	return Value{Type: TypeSimpleString, Data: []byte(s)}
}

// OK is the canonical "+OK" status reply
func OK() Value {
	return SimpleString("OK")
}

// ErrorValue returns an error reply. The message should carry its RESP
// prefix (ERR, WRONGTYPE, ...).
func ErrorValue(msg string) Value {
	return Value{Type: TypeError, Data: []byte(msg)}
}

// Integer returns an integer reply
func Integer(n int64) Value {
	return Value{Type: TypeInteger, Integer: n}
}

// BulkString returns a bulk string reply
func BulkString(b []byte) Value {
	return Value{Type: TypeBulkString, Data: b}
}

// BulkFromString returns a bulk string reply from a Go string
func BulkFromString(s string) Value {
	return Value{Type: TypeBulkString, Data: []byte(s)}
}

// NullBulk returns the nil bulk string reply
func NullBulk() Value {
	return Value{Type: TypeBulkString, IsNull: true}
}

// NullArray returns the nil array reply, used by blocking commands on timeout
func NullArray() Value {
	return Value{Type: TypeArray, IsNull: true}
}

// Array returns an array reply
func Array(values ...Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{Type: TypeArray, Array: values}
}

// BulkArray returns an array of bulk strings
func BulkArray(items [][]byte) Value {
	values := make([]Value, len(items))
	for i, item := range items {
		values[i] = BulkString(item)
	}
	return Array(values...)
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString:
		return string(v.Data)
	case TypeError:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return string(v.Data)
	case TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// Bytes returns the byte representation of the value
func (v Value) Bytes() []byte {
	return v.Data
}

// Int returns the integer value, or 0 if not an integer
func (v Value) Int() int64 {
	return v.Integer
}

// IsNil reports whether the value is a nil bulk string or nil array
func (v Value) IsNil() bool {
	return v.IsNull && (v.Type == TypeBulkString || v.Type == TypeArray)
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Error returns the error message if this is an error value
func (v Value) Error() string {
	if v.Type == TypeError {
		return string(v.Data)
	}
	return ""
}

// Command represents a Redis command parsed from a RESP array
type Command struct {
	Name string
	Args [][]byte
}

// ParseCommand parses a RESP array value into a Command
func ParseCommand(v Value) (*Command, error) {
	if v.Type != TypeArray || v.IsNull || len(v.Array) == 0 {
		return nil, &Error{Message: "invalid command format"}
	}

	cmd := &Command{
		Args: make([][]byte, len(v.Array)-1),
	}

	// First element is the command name
	if v.Array[0].Type != TypeBulkString || v.Array[0].IsNull {
		return nil, &Error{Message: "command name must be bulk string"}
	}
	cmd.Name = strings.ToUpper(string(v.Array[0].Data))

	for i := 1; i < len(v.Array); i++ {
		if v.Array[i].Type != TypeBulkString || v.Array[i].IsNull {
			return nil, &Error{Message: "command arguments must be bulk strings"}
		}
		cmd.Args[i-1] = v.Array[i].Data
	}

	return cmd, nil
}

// String returns a string representation of the command
func (c *Command) String() string {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = string(arg)
	}
	return c.Name + " " + strings.Join(args, " ")
}

// Error is a malformed request framing error. A connection that produced
// one cannot be resynchronised and is closed after the error reply.
type Error struct {
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return "Protocol error: " + e.Message
}
