package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/birdisle/birdisle/protocol"
)

// ErrClosed is returned by operations on a closed connection or pool
var ErrClosed = errors.New("client: closed")

// ReplyError is an error reply sent by the server
type ReplyError struct {
	Message string
}

// Error implements the error interface
func (e *ReplyError) Error() string {
	return e.Message
}

// Prefix returns the error code, such as ERR or WRONGTYPE
func (e *ReplyError) Prefix() string {
	if i := strings.IndexByte(e.Message, ' '); i > 0 {
		return e.Message[:i]
	}
	return e.Message
}

// Conn is a single RESP connection. It is not safe for concurrent use.
type Conn struct {
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer

	// broken is set once the stream can no longer be trusted
	broken bool
	closed bool
}

// Dial connects to addr
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(conn), nil
}

// NewConn wraps an established connection
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		reader: protocol.NewReader(conn),
		writer: protocol.NewWriter(conn),
	}
}

// Close closes the connection
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed, c.broken = true, true
	return c.conn.Close()
}

// Broken reports whether the connection failed and must be discarded
func (c *Conn) Broken() bool {
	return c.broken
}

// Do sends one command and waits for its reply. An error reply is
// returned both as the value and as a *ReplyError. The context deadline
// bounds the round trip.
func (c *Conn) Do(ctx context.Context, args ...interface{}) (protocol.Value, error) {
	if c.broken {
		return protocol.Value{}, ErrClosed
	}
	encoded, err := EncodeArgs(args)
	if err != nil {
		return protocol.Value{}, err
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.broken = true
		return protocol.Value{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		// unblock pending I/O
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.writer.WriteCommand(encoded...); err != nil {
		c.broken = true
		return protocol.Value{}, err
	}
	if err := c.writer.Flush(); err != nil {
		c.broken = true
		return protocol.Value{}, err
	}

	reply, err := c.reader.ReadNext()
	if err != nil {
		c.broken = true
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Value{}, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && !deadline.IsZero() && !time.Now().Before(deadline) {
			return protocol.Value{}, context.DeadlineExceeded
		}
		return protocol.Value{}, err
	}
	if reply.IsError() {
		return reply, &ReplyError{Message: reply.Error()}
	}
	return reply, nil
}

// EncodeArgs converts command arguments to bulk strings. Durations are sent
// as milliseconds.
func EncodeArgs(args []interface{}) ([][]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("client: empty command")
	}
	out := make([][]byte, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			out[i] = []byte(v)
		case []byte:
			out[i] = v
		case int:
			out[i] = strconv.AppendInt(nil, int64(v), 10)
		case int64:
			out[i] = strconv.AppendInt(nil, v, 10)
		case uint64:
			out[i] = strconv.AppendUint(nil, v, 10)
		case float64:
			out[i] = strconv.AppendFloat(nil, v, 'f', -1, 64)
		case bool:
			if v {
				out[i] = []byte("1")
			} else {
				out[i] = []byte("0")
			}
		case time.Duration:
			out[i] = strconv.AppendInt(nil, int64(v/time.Millisecond), 10)
		case fmt.Stringer:
			out[i] = []byte(v.String())
		default:
			return nil, fmt.Errorf("client: unsupported argument type %T", arg)
		}
	}
	return out, nil
}
