package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/birdisle/birdisle/command"
	"github.com/birdisle/birdisle/protocol"
)

// Client represents a connected Redis client
type Client struct {
	conn    net.Conn
	reader  *protocol.Reader
	writer  *protocol.Writer
	server  *Server
	session *command.Session

	// Control
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Close closes the client connection and withdraws its blocked commands
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
		c.server.clients.Delete(c.conn)
		c.server.dispatcher.CloseSession(c.session)
	})
}

// handle serves requests until the peer disconnects, sends QUIT or the
// server stops
func (c *Client) handle() {
	defer c.server.wg.Done()
	defer c.Close()

	for {
		if c.server.idleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.server.idleTimeout))
		}

		cmd, err := c.reader.ReadCommand()
		if err != nil {
			var protoErr *protocol.Error
			if errors.As(err, &protoErr) {
				_ = c.writer.WriteError(command.ProtocolError(protoErr).Message)
				_ = c.writer.Flush()
			}
			return
		}

		args := make([][]byte, 0, len(cmd.Args)+1)
		args = append(args, []byte(cmd.Name))
		args = append(args, cmd.Args...)

		reply, err := c.execute(cmd.Name, args)
		if errors.Is(err, command.ErrWaitCancelled) {
			return
		}
		if err := c.writer.WriteValue(reply); err != nil {
			return
		}

		if c.session.QuitRequested() {
			_ = c.writer.Flush()
			return
		}
		if c.reader.Buffered() == 0 {
			if err := c.writer.Flush(); err != nil {
				return
			}
		}
	}
}

// execute runs one command. Commands that may block are watched for the
// peer hanging up so that a disconnected client stops waiting.
func (c *Client) execute(name string, args [][]byte) (protocol.Value, error) {
	spec, ok := c.server.dispatcher.Lookup(name)
	if !ok || spec.Flags&command.FlagBlocking == 0 {
		return c.server.dispatcher.Exec(c.ctx, c.session, args)
	}

	// pending replies must reach the client before it may block
	if err := c.writer.Flush(); err != nil {
		return protocol.Value{}, command.ErrWaitCancelled
	}

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	_ = c.conn.SetReadDeadline(time.Time{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		if _, err := c.reader.Peek(1); err != nil && !isTimeout(err) {
			cancel()
		}
	}()

	reply, err := c.server.dispatcher.Exec(ctx, c.session, args)

	// release the watcher before the connection is read again
	_ = c.conn.SetReadDeadline(time.Now())
	<-watching
	_ = c.conn.SetReadDeadline(time.Time{})
	return reply, err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
