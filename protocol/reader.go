package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

const (
	// CRLF is the Redis protocol line terminator
	CRLF = "\r\n"

	// maxBulkSize is the maximum size for bulk strings (512MB, as Redis)
	maxBulkSize = 512 * 1024 * 1024

	// maxArraySize is the maximum size for arrays
	maxArraySize = 1024 * 1024

	// maxInlineSize bounds a single inline request line
	maxInlineSize = 64 * 1024
)

var (
	crlfBytes = []byte(CRLF)
)

// Reader is a streaming RESP protocol reader that parses one frame at a
// time from the underlying stream
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a new streaming RESP reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		br: bufio.NewReader(r),
	}
}

// Buffered returns the number of bytes already read from the stream but
// not yet consumed. Servers use it to batch replies of pipelined requests.
func (r *Reader) Buffered() int {
	return r.br.Buffered()
}

// Peek returns the next n bytes without consuming them. It blocks until
// they arrive or the stream fails, which lets a server notice a peer
// hanging up while no request is being read.
func (r *Reader) Peek(n int) ([]byte, error) {
	return r.br.Peek(n)
}

// ReadCommand reads the next request. Multibulk requests and inline
// requests (space separated words terminated by CRLF) are both accepted.
// Framing problems are reported as *Error; I/O errors are returned as is.
func (r *Reader) ReadCommand() (*Command, error) {
	for {
		peek, err := r.br.Peek(1)
		if err != nil {
			return nil, err
		}

		if ValueType(peek[0]) == TypeArray {
			value, err := r.ReadNext()
			if err != nil {
				return nil, err
			}
			return ParseCommand(value)
		}

		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		fields := bytes.Fields(line)
		if len(fields) == 0 {
			// Empty inline lines are ignored, as redis-server does
			continue
		}
		return &Command{
			Name: string(bytes.ToUpper(fields[0])),
			Args: fields[1:],
		}, nil
	}
}

// ReadNext reads the next RESP value from the stream
func (r *Reader) ReadNext() (Value, error) {
	typeByte, err := r.br.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch ValueType(typeByte) {
	case TypeSimpleString:
		return r.readSimpleString()
	case TypeError:
		return r.readError()
	case TypeInteger:
		return r.readInteger()
	case TypeBulkString:
		return r.readBulkString()
	case TypeArray:
		return r.readArray()
	default:
		return Value{}, &Error{Message: fmt.Sprintf("unknown RESP type: %q", typeByte)}
	}
}

// readSimpleString reads a simple string value
func (r *Reader) readSimpleString() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	return Value{
		Type: TypeSimpleString,
		Data: line,
	}, nil
}

// readError reads an error value
func (r *Reader) readError() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	return Value{
		Type: TypeError,
		Data: line,
	}, nil
}

// readInteger reads an integer value
func (r *Reader) readInteger() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	integer, err := parseInt64(line)
	if err != nil {
		return Value{}, &Error{Message: fmt.Sprintf("invalid integer: %s", line)}
	}

	return Value{
		Type:    TypeInteger,
		Integer: integer,
	}, nil
}

// parseInt64 parses an int64 from a byte slice without allocation
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	var neg bool
	var i int

	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	default:
		i = 0
	}

	if i >= len(b) {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, strconv.ErrSyntax
		}

		// Check for overflow
		if n > (1<<63-1)/10 {
			return 0, strconv.ErrRange
		}

		n = n*10 + int64(b[i]-'0')
	}

	if neg {
		return -n, nil
	}
	return n, nil
}

// readBulkString reads a bulk string value
func (r *Reader) readBulkString() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	length, err := parseInt64(line)
	if err != nil {
		return Value{}, &Error{Message: fmt.Sprintf("invalid bulk length: %s", line)}
	}

	// Handle null bulk string
	if length == -1 {
		return Value{
			Type:   TypeBulkString,
			IsNull: true,
		}, nil
	}

	if length < 0 || length > maxBulkSize {
		return Value{}, &Error{Message: fmt.Sprintf("invalid bulk length: %d", length)}
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.br, data); err != nil {
		return Value{}, err
	}

	if err := r.expectCRLF(); err != nil {
		return Value{}, err
	}

	return Value{
		Type: TypeBulkString,
		Data: data,
	}, nil
}

// readArray reads an array value
func (r *Reader) readArray() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}

	length, err := parseInt64(line)
	if err != nil {
		return Value{}, &Error{Message: fmt.Sprintf("invalid multibulk length: %s", line)}
	}

	// Handle null array
	if length == -1 {
		return Value{
			Type:   TypeArray,
			IsNull: true,
		}, nil
	}

	if length < 0 || length > maxArraySize {
		return Value{}, &Error{Message: fmt.Sprintf("invalid multibulk length: %d", length)}
	}

	array := make([]Value, length)
	for i := int64(0); i < length; i++ {
		value, err := r.ReadNext()
		if err != nil {
			return Value{}, err
		}
		array[i] = value
	}

	return Value{
		Type:  TypeArray,
		Array: array,
	}, nil
}

// readLine reads a line terminated by CRLF
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// Lines longer than the buffer are assembled the slow way
		full := append([]byte(nil), line...)
		for err == bufio.ErrBufferFull {
			if len(full) > maxInlineSize {
				return nil, &Error{Message: "too big inline request"}
			}
			line, err = r.br.ReadSlice('\n')
			full = append(full, line...)
		}
		line = full
	}
	if err != nil {
		return nil, err
	}

	if !bytes.HasSuffix(line, crlfBytes) {
		return nil, &Error{Message: "missing CRLF terminator"}
	}

	out := make([]byte, len(line)-2)
	copy(out, line)
	return out, nil
}

// expectCRLF reads and validates CRLF terminator
func (r *Reader) expectCRLF() error {
	var crlf [2]byte
	if _, err := io.ReadFull(r.br, crlf[:]); err != nil {
		return err
	}

	if !bytes.Equal(crlf[:], crlfBytes) {
		return &Error{Message: fmt.Sprintf("expected CRLF terminator, got [%d, %d]", crlf[0], crlf[1])}
	}

	return nil
}
