package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdisle/birdisle/blocking"
	"github.com/birdisle/birdisle/command"
	"github.com/birdisle/birdisle/storage"
)

// Simple Redis client for testing
type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTestClient(addr string) (*testClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &testClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

func (c *testClient) Close() error {
	return c.conn.Close()
}

func encodeCommand(cmd string, args ...string) string {
	parts := append([]string{cmd}, args...)
	resp := "*" + strconv.Itoa(len(parts)) + "\r\n"
	for _, part := range parts {
		resp += "$" + strconv.Itoa(len(part)) + "\r\n" + part + "\r\n"
	}
	return resp
}

func (c *testClient) sendCommand(cmd string, args ...string) (string, error) {
	if _, err := c.conn.Write([]byte(encodeCommand(cmd, args...))); err != nil {
		return "", err
	}
	return c.readResponse()
}

func (c *testClient) readResponse() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return "", nil
	}

	switch line[0] {
	case '+': // Simple string
		return line[1:], nil
	case '-': // Error
		return line, nil
	case ':': // Integer
		return line[1:], nil
	case '$': // Bulk string
		size, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", err
		}
		if size == -1 {
			return "(nil)", nil
		}
		data := make([]byte, size+2) // +2 for CRLF
		if _, err := io.ReadFull(c.reader, data); err != nil {
			return "", err
		}
		return string(data[:size]), nil
	case '*': // Array
		size, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", err
		}
		if size == -1 {
			return "(nil)", nil
		}

		result := "["
		for i := 0; i < size; i++ {
			if i > 0 {
				result += ", "
			}
			item, err := c.readResponse()
			if err != nil {
				return "", err
			}
			result += item
		}
		result += "]"
		return result, nil
	default:
		return line, nil
	}
}

func startServer(t *testing.T, opts ...Option) (*Server, *command.Dispatcher) {
	t.Helper()
	ks := storage.New()
	d := command.NewDispatcher(&sync.Mutex{}, ks, blocking.NewCoordinator())
	server := NewServer("", d, opts...)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		_ = server.Stop()
		d.Close()
		_ = ks.Close()
	})
	return server, d
}

func dial(t *testing.T, server *Server) *testClient {
	t.Helper()
	client, err := newTestClient(server.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestServer_BasicCommands(t *testing.T) {
	server, _ := startServer(t)
	assert.True(t, strings.HasPrefix(server.Addr(), "127.0.0.1:"))
	assert.NotZero(t, server.Port())

	client := dial(t, server)

	tests := []struct {
		name     string
		cmd      string
		args     []string
		expected string
	}{
		{"PING", "PING", nil, "PONG"},
		{"PING with message", "PING", []string{"hello"}, "hello"},
		{"SET", "SET", []string{"key1", "value1"}, "OK"},
		{"GET", "GET", []string{"key1"}, "value1"},
		{"GET missing", "GET", []string{"nope"}, "(nil)"},
		{"RPUSH", "RPUSH", []string{"list", "a", "b"}, "2"},
		{"LRANGE", "LRANGE", []string{"list", "0", "-1"}, "[a, b]"},
		{"ZADD", "ZADD", []string{"z", "1", "one", "2", "two"}, "2"},
		{"ZRANGE WITHSCORES", "ZRANGE", []string{"z", "0", "-1", "WITHSCORES"}, "[one, 1, two, 2]"},
		{"INCRBYFLOAT", "INCRBYFLOAT", []string{"f", "1.5"}, "1.5"},
		{"wrong type", "LLEN", []string{"key1"}, "-WRONGTYPE Operation against a key holding the wrong kind of value"},
		{"arity", "GET", nil, "-ERR wrong number of arguments for 'get' command"},
		{"unknown", "FOO", nil, "-ERR unknown command 'FOO', with args beginning with:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.sendCommand(tt.cmd, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, resp)
		})
	}
}

func TestServer_Pipelining(t *testing.T) {
	server, _ := startServer(t)
	client := dial(t, server)

	batch := encodeCommand("SET", "a", "1") +
		encodeCommand("INCR", "a") +
		encodeCommand("GET", "a") +
		"PING\r\n" +
		encodeCommand("NOPE")
	_, err := client.conn.Write([]byte(batch))
	require.NoError(t, err)

	for _, want := range []string{"OK", "2", "2", "PONG"} {
		resp, err := client.readResponse()
		require.NoError(t, err)
		assert.Equal(t, want, resp)
	}
	resp, err := client.readResponse()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp, "-ERR unknown command"))
}

func TestServer_ProtocolErrorClosesConnection(t *testing.T) {
	server, _ := startServer(t)
	client := dial(t, server)

	_, err := client.conn.Write([]byte("*1\r\n$abc\r\n"))
	require.NoError(t, err)

	resp, err := client.readResponse()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp, "-ERR Protocol error"), resp)

	_, err = client.readResponse()
	assert.Error(t, err)
}

func TestServer_Quit(t *testing.T) {
	server, _ := startServer(t)
	client := dial(t, server)

	resp, err := client.sendCommand("QUIT")
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	_, err = client.readResponse()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_BlockingAcrossConnections(t *testing.T) {
	server, d := startServer(t)
	waiter := dial(t, server)
	producer := dial(t, server)

	result := make(chan string, 1)
	go func() {
		resp, err := waiter.sendCommand("BLPOP", "jobs", "0")
		assert.NoError(t, err)
		result <- resp
	}()

	require.Eventually(t, func() bool { return d.Stats().BlockedClients == 1 }, 2*time.Second, time.Millisecond)
	resp, err := producer.sendCommand("RPUSH", "jobs", "build")
	require.NoError(t, err)
	assert.Equal(t, "1", resp)

	select {
	case got := <-result:
		assert.Equal(t, "[jobs, build]", got)
	case <-time.After(2 * time.Second):
		t.Fatal("BLPOP was not woken")
	}

	// the connection is usable after the blocking command
	resp, err = waiter.sendCommand("PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", resp)
}

func TestServer_BlockingTimeoutKeepsConnection(t *testing.T) {
	server, _ := startServer(t)
	client := dial(t, server)

	resp, err := client.sendCommand("BRPOP", "nothing", "0.05")
	require.NoError(t, err)
	assert.Equal(t, "(nil)", resp)

	resp, err = client.sendCommand("ECHO", "still here")
	require.NoError(t, err)
	assert.Equal(t, "still here", resp)
}

func TestServer_DisconnectWhileBlocked(t *testing.T) {
	server, d := startServer(t)
	waiter := dial(t, server)
	producer := dial(t, server)

	_, err := waiter.conn.Write([]byte(encodeCommand("BLPOP", "q", "0")))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return d.Stats().BlockedClients == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, waiter.Close())
	require.Eventually(t, func() bool { return d.Stats().BlockedClients == 0 }, 2*time.Second, time.Millisecond)

	// nothing is consumed on behalf of the departed client
	_, err = producer.sendCommand("RPUSH", "q", "v")
	require.NoError(t, err)
	resp, err := producer.sendCommand("LLEN", "q")
	require.NoError(t, err)
	assert.Equal(t, "1", resp)
}

func TestServer_StopIsSynchronous(t *testing.T) {
	ks := storage.New()
	defer func() { _ = ks.Close() }()
	d := command.NewDispatcher(&sync.Mutex{}, ks, blocking.NewCoordinator())
	server := NewServer("", d)
	require.NoError(t, server.Start())

	idle, err := newTestClient(server.Addr())
	require.NoError(t, err)
	defer idle.Close()
	blocked, err := newTestClient(server.Addr())
	require.NoError(t, err)
	defer blocked.Close()

	_, err = idle.sendCommand("PING")
	require.NoError(t, err)
	_, err = blocked.conn.Write([]byte(encodeCommand("BLPOP", "never", "0")))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return d.Stats().BlockedClients == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 2, server.ClientCount())

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())

	// everything is released by the time Stop returns
	assert.Equal(t, 0, server.ClientCount())
	assert.Equal(t, 0, d.Stats().BlockedClients)
	assert.Equal(t, 0, d.Stats().ConnectedClients)

	_, err = idle.readResponse()
	assert.Error(t, err)
	_, err = blocked.readResponse()
	assert.Error(t, err)

	_, err = net.DialTimeout("tcp", server.Addr(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestServer_ConnectedClients(t *testing.T) {
	server, d := startServer(t)
	a := dial(t, server)
	b := dial(t, server)

	_, err := a.sendCommand("CLIENT", "SETNAME", "first")
	require.NoError(t, err)
	_, err = b.sendCommand("PING")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Stats().ConnectedClients)

	list, err := a.sendCommand("CLIENT", "LIST")
	require.NoError(t, err)
	assert.Contains(t, list, "name=first")

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return d.Stats().ConnectedClients == 1 }, 2*time.Second, time.Millisecond)
}

func TestServer_IdleTimeout(t *testing.T) {
	server, _ := startServer(t, WithIdleTimeout(50*time.Millisecond))
	client := dial(t, server)

	_, err := client.sendCommand("PING")
	require.NoError(t, err)

	_ = client.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = client.readResponse()
	assert.ErrorIs(t, err, io.EOF)
}

// exhaustedListener fails every Accept with EMFILE until closed
type exhaustedListener struct {
	net.Listener
	mu       sync.Mutex
	attempts int
}

func (l *exhaustedListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	l.attempts++
	l.mu.Unlock()
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	return nil, &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)}
}

func TestServer_ResourceExhaustedAccept(t *testing.T) {
	inner, err := net.Listen("tcp", DefaultAddr)
	require.NoError(t, err)
	l := &exhaustedListener{Listener: inner}

	reported := make(chan error, 16)
	server, d := startServer(t, WithListener(l), WithErrorHandler(func(err error) {
		select {
		case reported <- err:
		default:
		}
	}))

	// each dial produces one failed accept
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", server.Addr())
		require.NoError(t, err)
		_ = conn.Close()
	}

	select {
	case err := <-reported:
		assert.True(t, errors.Is(err, command.ErrResourceExhausted), "got %v", err)
		assert.True(t, errors.Is(err, syscall.EMFILE))
	case <-time.After(2 * time.Second):
		t.Fatal("resource exhaustion was not reported")
	}
	require.Eventually(t, func() bool { return d.Stats().RejectedConnections >= 1 }, 2*time.Second, time.Millisecond)
}
