package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/birdisle/birdisle/command"
	"github.com/birdisle/birdisle/protocol"
)

// DefaultAddr binds an ephemeral port on the loopback interface
const DefaultAddr = "127.0.0.1:0"

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// MetricsCollector receives connection level observations
type MetricsCollector interface {
	RecordConnection()
	RecordError(errorType string)
}

// Server provides Redis protocol server functionality
type Server struct {
	dispatcher *command.Dispatcher

	// Server configuration
	addr        string
	idleTimeout time.Duration
	logger      command.Logger
	metrics     MetricsCollector
	onError     func(error)

	// Connection management
	listener net.Listener
	clients  sync.Map // map[net.Conn]*Client

	// Control
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger command.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the connection metrics collector
func WithMetrics(metrics MetricsCollector) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithErrorHandler receives errors the server cannot report to a client,
// such as running out of file descriptors while accepting
func WithErrorHandler(fn func(error)) Option {
	return func(s *Server) {
		s.onError = fn
	}
}

// WithIdleTimeout closes connections that send nothing for d. Zero, the
// default, never times out. Blocked clients are exempt while they wait.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithListener serves on an existing listener instead of binding addr
func WithListener(l net.Listener) Option {
	return func(s *Server) {
		s.listener = l
	}
}

// NewServer creates a server for d listening on addr. An empty addr means
// DefaultAddr.
func NewServer(addr string, d *command.Dispatcher, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		dispatcher: d,
		addr:       addr,
		logger:     nopLogger{},
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and starts accepting connections
func (s *Server) Start() error {
	if s.listener == nil {
		l, err := net.Listen("tcp", s.addr)
		if err != nil {
			if isResourceExhausted(err) {
				return command.ResourceExhaustedError(err)
			}
			return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		}
		s.listener = l
	}

	s.logger.Debug("server listening", "addr", s.listener.Addr().String())
	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Stop closes the listener and every connection, cancelling blocked
// commands, and waits for all connection goroutines to exit. It is safe
// to call more than once.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			err = s.listener.Close()
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
		}
		s.clients.Range(func(_, value interface{}) bool {
			value.(*Client).Close()
			return true
		})
		s.wg.Wait()
		s.logger.Debug("server stopped", "addr", s.Addr())
	})
	return err
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Port returns the bound TCP port, or 0 before Start
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	_, port, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// ClientCount returns the number of open connections
func (s *Server) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// acceptConnections accepts new client connections until Stop. Accept
// failures back off exponentially so that running out of descriptors
// never turns into a busy loop.
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.reportAcceptError(err, backoff)

			select {
			case <-time.After(backoff):
				continue
			case <-s.ctx.Done():
				return
			}
		}
		backoff = 0

		s.handleNewClient(conn)
	}
}

func (s *Server) reportAcceptError(err error, backoff time.Duration) {
	if isResourceExhausted(err) {
		s.dispatcher.RecordRejected()
		err = command.ResourceExhaustedError(err)
		if s.metrics != nil {
			s.metrics.RecordError(command.KindResourceExhausted.String())
		}
	}
	s.logger.Error("accept failed", "error", err, "retry_in", backoff)
	if s.onError != nil {
		s.onError(err)
	}
}

// isResourceExhausted reports whether err means the process or system ran
// out of file descriptors
func isResourceExhausted(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}

// handleNewClient registers conn and starts its goroutine
func (s *Server) handleNewClient(conn net.Conn) {
	ctx, cancel := context.WithCancel(s.ctx)
	client := &Client{
		conn:    conn,
		reader:  protocol.NewReader(conn),
		writer:  protocol.NewWriter(conn),
		server:  s,
		session: s.dispatcher.OpenSession(conn.RemoteAddr().String()),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.clients.Store(conn, client)
	if s.metrics != nil {
		s.metrics.RecordConnection()
	}

	s.wg.Add(1)
	go client.handle()

	// Stop may have run between Accept and Store
	if s.ctx.Err() != nil {
		client.Close()
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
