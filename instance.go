package birdisle

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/birdisle/birdisle/blocking"
	"github.com/birdisle/birdisle/client"
	"github.com/birdisle/birdisle/command"
	"github.com/birdisle/birdisle/lua"
	"github.com/birdisle/birdisle/protocol"
	"github.com/birdisle/birdisle/server"
	"github.com/birdisle/birdisle/storage"
)

// State is the lifecycle state of an Instance
type State int

const (
	StateCreated State = iota
	StateListening
	StateShuttingDown
	StateClosed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting-down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const dialTimeout = 5 * time.Second

// Instance is one independent engine: a keyspace, its waiter queues and
// script cache, served over a loopback listener
type Instance struct {
	// Configuration
	config *config
	logger *loggerAdapter

	// Components. lock is the single mutual-exclusion domain shared by
	// the keyspace expiry cycle, the dispatcher and the script engine.
	lock       sync.Mutex
	keyspace   *storage.Keyspace
	dispatcher *command.Dispatcher
	scripts    *lua.Engine
	server     *server.Server
	runID      string

	// State
	mu        sync.RWMutex
	state     State
	closeOnce sync.Once
	closeErr  error
}

// Info is a structured snapshot of an instance, the same data INFO renders
type Info struct {
	RunID   string
	Version string
	Addr    string
	Port    int

	Uptime              time.Duration
	Keys                int64
	Expires             int64
	ConnectedClients    int
	BlockedClients      int
	TotalConnections    int64
	RejectedConnections int64
	CommandsProcessed   int64
	ErrorReplies        int64
	Scripts             int

	// Calls per command name, lowercased
	Commands map[string]int64
}

// New creates an instance and starts listening
//
// Example:
//
//	inst, err := birdisle.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Close()
//
//	rdb := redis.NewClient(&redis.Options{Addr: inst.Addr()})
func New(opts ...Option) (*Instance, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	inst := &Instance{
		config: cfg,
		logger: &loggerAdapter{logger: cfg.logger},
		runID:  uuid.NewString(),
		state:  StateCreated,
	}

	inst.keyspace = storage.New(
		storage.WithShardCount(cfg.shardCount),
		storage.WithLocker(&inst.lock, cfg.expiryInterval, cfg.expirySample),
	)

	dispatcherOpts := []command.DispatcherOption{
		command.WithLogger(inst.logger),
		command.WithServerInfo(command.ServerInfo{RunID: inst.runID, Version: Version}),
	}
	serverOpts := []server.Option{
		server.WithLogger(inst.logger),
		server.WithIdleTimeout(cfg.idleTimeout),
		server.WithErrorHandler(inst.reportError),
	}
	if cfg.metrics != nil {
		metrics := &metricsAdapter{metrics: cfg.metrics}
		dispatcherOpts = append(dispatcherOpts, command.WithMetrics(metrics))
		serverOpts = append(serverOpts, server.WithMetrics(metrics))
	}

	inst.dispatcher = command.NewDispatcher(&inst.lock, inst.keyspace, blocking.NewCoordinator(), dispatcherOpts...)
	if cfg.scripting {
		inst.scripts = lua.NewEngine(inst.dispatcher, lua.WithLogger(inst.logger))
		inst.dispatcher.SetScripting(inst.scripts)
	}

	inst.server = server.NewServer(cfg.addr, inst.dispatcher, serverOpts...)
	if err := inst.server.Start(); err != nil {
		_ = inst.keyspace.Close()
		inst.reportError(err)
		return nil, err
	}
	inst.dispatcher.SetServerInfo(command.ServerInfo{
		RunID:   inst.runID,
		Version: Version,
		Addr:    inst.server.Addr(),
		Port:    inst.server.Port(),
	})
	inst.setState(StateListening)

	inst.logger.Debug("instance listening", "addr", inst.server.Addr(), "run_id", inst.runID)
	return inst, nil
}

// Addr returns the host:port the instance listens on
func (i *Instance) Addr() string {
	return i.server.Addr()
}

// Port returns the listening port
func (i *Instance) Port() int {
	return i.server.Port()
}

// RunID returns the random identifier reported by INFO
func (i *Instance) RunID() string {
	return i.runID
}

// State returns the lifecycle state
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

func (i *Instance) listening() bool {
	return i.State() == StateListening
}

// Connect opens a new client connection to the instance. Descriptor
// exhaustion is reported as ErrResourceExhausted.
func (i *Instance) Connect() (net.Conn, error) {
	if !i.listening() {
		return nil, ErrInstanceClosed
	}
	conn, err := net.DialTimeout("tcp", i.Addr(), dialTimeout)
	if err != nil {
		if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
			err = command.ResourceExhaustedError(err)
			i.reportError(err)
		}
		return nil, err
	}
	return conn, nil
}

// NewPool returns a connection pool bound to the instance
func (i *Instance) NewPool(ctx context.Context, config client.PoolConfig) (*client.Pool, error) {
	if !i.listening() {
		return nil, ErrInstanceClosed
	}
	return client.NewPool(ctx, i.Addr(), config), nil
}

// Do runs one command in process, without a socket. args follow
// client.EncodeArgs. An error reply is returned as a *CommandError along
// with the reply itself. A blocking command waits until it is served,
// times out, or ctx is done.
func (i *Instance) Do(ctx context.Context, args ...interface{}) (protocol.Value, error) {
	if !i.listening() {
		return protocol.Value{}, ErrInstanceClosed
	}
	encoded, err := client.EncodeArgs(args)
	if err != nil {
		return protocol.Value{}, err
	}

	reply, err := i.dispatcher.Exec(ctx, i.dispatcher.TransientSession(), encoded)
	switch {
	case err == nil:
		return reply, nil
	case errors.Is(err, command.ErrClosed):
		return protocol.Value{}, ErrInstanceClosed
	case errors.Is(err, command.ErrWaitCancelled):
		if !i.listening() {
			return protocol.Value{}, ErrInstanceClosed
		}
		if ctx.Err() != nil {
			return protocol.Value{}, ctx.Err()
		}
		return protocol.Value{}, err
	default:
		return reply, err
	}
}

// Info returns a snapshot of the instance counters
func (i *Instance) Info() (Info, error) {
	if !i.listening() {
		return Info{}, ErrInstanceClosed
	}
	st := i.dispatcher.Stats()
	info := Info{
		RunID:               st.RunID,
		Version:             st.Version,
		Addr:                i.Addr(),
		Port:                st.Port,
		Uptime:              st.Uptime,
		Keys:                st.Keys,
		Expires:             st.Expires,
		ConnectedClients:    st.ConnectedClients,
		BlockedClients:      st.BlockedClients,
		TotalConnections:    st.TotalConnections,
		RejectedConnections: st.RejectedConnections,
		CommandsProcessed:   st.CommandsProcessed,
		ErrorReplies:        st.ErrorReplies,
		Scripts:             st.Scripts,
		Commands:            make(map[string]int64, len(st.Commands)),
	}
	for _, cs := range st.Commands {
		info.Commands[cs.Name] = cs.Calls
	}
	if i.config.metrics != nil {
		i.config.metrics.RecordKeyCount(st.Keys)
	}
	return info, nil
}

// FlushAll removes every key. Scripts stay cached.
func (i *Instance) FlushAll() error {
	_, err := i.Do(context.Background(), "FLUSHALL")
	return err
}

// Close stops the listener, closes every connection, cancels blocked
// commands and stops the expiry cycle. It returns once no goroutine of the
// instance is left running and is safe to call more than once.
func (i *Instance) Close() error {
	i.closeOnce.Do(func() {
		i.setState(StateShuttingDown)

		var errs []error
		if err := i.server.Stop(); err != nil {
			errs = append(errs, err)
		}
		i.dispatcher.Close()
		if err := i.keyspace.Close(); err != nil {
			errs = append(errs, err)
		}

		i.setState(StateClosed)
		i.closeErr = errors.Join(errs...)
		if i.closeErr != nil {
			i.logger.Error("instance closed with errors", "error", i.closeErr)
		} else {
			i.logger.Debug("instance closed", "run_id", i.runID)
		}
	})
	return i.closeErr
}

// reportError forwards failures that have no caller to the error hook
func (i *Instance) reportError(err error) {
	if i.config.onError != nil {
		i.config.onError(err)
	}
}
