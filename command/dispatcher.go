package command

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/birdisle/birdisle/blocking"
	"github.com/birdisle/birdisle/protocol"
	"github.com/birdisle/birdisle/storage"
)

// Logger is the logging interface used by the dispatcher
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector receives per-command observations
type MetricsCollector interface {
	RecordCommandProcessed(cmd string, duration time.Duration)
	RecordError(errorType string)
}

// Scripting runs Lua scripts on behalf of EVAL, EVALSHA and SCRIPT.
// Every method is called with the instance lock held.
type Scripting interface {
	Eval(c *Context, body []byte, keys, args [][]byte) (protocol.Value, error)
	EvalSHA(c *Context, sha string, keys, args [][]byte) (protocol.Value, error)
	Load(body []byte) string
	Exists(sha string) bool
	Flush()
	Len() int
}

// ServerInfo describes the hosting instance for INFO
type ServerInfo struct {
	RunID   string
	Version string
	Addr    string
	Port    int
}

// Dispatcher executes commands against one keyspace. All keyspace,
// coordinator and script state is guarded by the lock passed to
// NewDispatcher.
type Dispatcher struct {
	mu       sync.Locker
	ks       *storage.Keyspace
	coord    *blocking.Coordinator
	commands map[string]*Spec
	scripts  Scripting

	logger  Logger
	metrics MetricsCollector

	server   ServerInfo
	started  time.Time
	sessions map[uint64]*Session
	nextID   atomic.Uint64
	cmdStats map[string]*CommandStats
	total    int64
	errors   int64
	conns    int64
	rejected int64
	closed   bool
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger
func WithLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics MetricsCollector) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithServerInfo sets the identity reported by INFO
func WithServerInfo(info ServerInfo) DispatcherOption {
	return func(d *Dispatcher) {
		d.server = info
	}
}

// NewDispatcher creates a dispatcher over ks and coord. mu is the instance
// lock; the keyspace expiry cycle must share it.
func NewDispatcher(mu sync.Locker, ks *storage.Keyspace, coord *blocking.Coordinator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		mu:       mu,
		ks:       ks,
		coord:    coord,
		commands: make(map[string]*Spec),
		logger:   nopLogger{},
		started:  time.Now(),
		sessions: make(map[uint64]*Session),
		cmdStats: make(map[string]*CommandStats),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, spec := range builtinCommands() {
		d.Register(spec)
	}
	return d
}

// Register adds or replaces a command
func (d *Dispatcher) Register(spec *Spec) {
	d.commands[strings.ToUpper(spec.Name)] = spec
}

// SetScripting installs the script engine. Without one, script commands
// fail.
func (d *Dispatcher) SetScripting(s Scripting) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = s
}

// SetServerInfo updates the identity reported by INFO
func (d *Dispatcher) SetServerInfo(info ServerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.server = info
}

// Lookup returns the command table entry for name
func (d *Dispatcher) Lookup(name string) (*Spec, bool) {
	spec, ok := d.commands[strings.ToUpper(name)]
	return spec, ok
}

// Keyspace returns the keyspace. Access requires the instance lock.
func (d *Dispatcher) Keyspace() *storage.Keyspace {
	return d.ks
}

// Locker returns the instance lock
func (d *Dispatcher) Locker() sync.Locker {
	return d.mu
}

// OpenSession registers a client connection
func (d *Dispatcher) OpenSession(addr string) *Session {
	s := d.newSession(addr)
	d.mu.Lock()
	d.sessions[s.ID] = s
	d.conns++
	d.mu.Unlock()
	return s
}

// TransientSession returns a session that is not listed as a client, used
// for in-process execution
func (d *Dispatcher) TransientSession() *Session {
	return d.newSession("")
}

func (d *Dispatcher) newSession(addr string) *Session {
	return &Session{
		ID:      d.nextID.Add(1),
		Addr:    addr,
		Created: time.Now(),
	}
}

// CloseSession unregisters s and withdraws its blocked commands
func (d *Dispatcher) CloseSession(s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, s.ID)
	d.coord.CancelOwner(s.ID)
}

// Sessions returns a copy of the registered sessions ordered by id
func (d *Dispatcher) Sessions() []Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionList()
}

func (d *Dispatcher) sessionList() []Session {
	out := make([]Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordRejected counts a connection refused for lack of resources
func (d *Dispatcher) RecordRejected() {
	d.mu.Lock()
	d.rejected++
	d.mu.Unlock()
}

// Close rejects further commands and cancels every blocked command
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	cancelled := d.coord.CancelAll()
	if cancelled > 0 {
		d.logger.Debug("cancelled blocked clients", "count", cancelled)
	}
}

// Exec runs one command for session s. args[0] is the command name.
//
// A failed command returns its error reply together with the *Error. A
// blocking command suspends without holding the instance lock until it is
// served, times out or ctx is done; ErrWaitCancelled means no reply must
// be written.
func (d *Dispatcher) Exec(ctx context.Context, s *Session, args [][]byte) (protocol.Value, error) {
	if len(args) == 0 {
		err := newError(KindProtocol, "ERR empty command")
		return err.Reply(), err
	}
	name := strings.ToUpper(string(args[0]))
	start := time.Now()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		err := ClosedError()
		return err.Reply(), err
	}
	c := &Context{d: d, Session: s, ctx: ctx}
	reply, err := d.call(c, string(args[0]), args[1:])
	d.serveReady()
	waiter, timeoutReply := c.waiter, c.timeoutReply
	d.mu.Unlock()

	d.observe(name, time.Since(start), err)

	if waiter == nil {
		return reply, err
	}
	reply, state := d.coord.Wait(ctx, d.mu, waiter)
	switch state {
	case blocking.Woken:
		if err := waiter.Err(); err != nil {
			cmdErr := toError(err)
			d.mu.Lock()
			d.errors++
			d.mu.Unlock()
			if d.metrics != nil {
				d.metrics.RecordError(cmdErr.Kind.String())
			}
			return cmdErr.Reply(), cmdErr
		}
		return reply, nil
	case blocking.TimedOut:
		return timeoutReply, nil
	default:
		return protocol.Value{}, ErrWaitCancelled
	}
}

// Call runs a command from inside a script. The instance lock is already
// held and blocking commands behave as their non-blocking forms.
func (d *Dispatcher) Call(parent *Context, args [][]byte) (protocol.Value, error) {
	if len(args) == 0 {
		err := newError(KindScript, "ERR Please specify at least one argument for this redis lib call")
		return err.Reply(), err
	}
	c := &Context{d: d, Session: parent.Session, ctx: parent.ctx, inScript: true}
	start := time.Now()
	reply, err := d.call(c, string(args[0]), args[1:])
	d.observe(strings.ToUpper(string(args[0])), time.Since(start), err)
	return reply, err
}

func (d *Dispatcher) call(c *Context, rawName string, args [][]byte) (protocol.Value, error) {
	name := strings.ToUpper(rawName)
	spec, ok := d.commands[name]
	if !ok {
		err := UnknownCommandError(rawName, args)
		return err.Reply(), err
	}
	if !spec.arityOK(len(args) + 1) {
		err := ArityError(name)
		return err.Reply(), err
	}
	if c.inScript && spec.Flags&FlagNoScript != 0 {
		err := newError(KindScript, "ERR This Redis command is not allowed from script")
		return err.Reply(), err
	}

	d.count(name)
	if c.Session != nil {
		c.Session.LastCommand = strings.ToLower(name)
	}
	reply, err := spec.Handler(c, args)
	if err != nil {
		cmdErr := toError(err)
		d.errors++
		return cmdErr.Reply(), cmdErr
	}
	return reply, nil
}

// serveReady hands keys that gained data to the coordinator until no
// ready keys remain. Serving a waiter may make further keys ready
// (BRPOPLPUSH pushes to its destination).
func (d *Dispatcher) serveReady() {
	for keys := d.ks.TakeReady(); len(keys) > 0; keys = d.ks.TakeReady() {
		d.coord.Serve(keys)
	}
}

func (d *Dispatcher) count(name string) {
	st, ok := d.cmdStats[name]
	if !ok {
		st = &CommandStats{Name: strings.ToLower(name)}
		d.cmdStats[name] = st
	}
	st.Calls++
	d.total++
}

func (d *Dispatcher) observe(name string, elapsed time.Duration, err error) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordCommandProcessed(name, elapsed)
	if cmdErr, ok := err.(*Error); ok {
		d.metrics.RecordError(cmdErr.Kind.String())
	}
}

// Context is the execution context handed to command handlers
type Context struct {
	d        *Dispatcher
	ctx      context.Context
	Session  *Session
	inScript bool

	waiter       *blocking.Waiter
	timeoutReply protocol.Value
}

// NewScriptContext returns a context for running a script outside a
// command, for example when a script is evaluated in-process. The caller
// must hold the instance lock.
func (d *Dispatcher) NewScriptContext(ctx context.Context, s *Session) *Context {
	return &Context{d: d, ctx: ctx, Session: s}
}

// Dispatcher returns the dispatcher executing the command
func (c *Context) Dispatcher() *Dispatcher {
	return c.d
}

// Keyspace returns the instance keyspace
func (c *Context) Keyspace() *storage.Keyspace {
	return c.d.ks
}

// InScript reports whether the command was issued by a script
func (c *Context) InScript() bool {
	return c.inScript
}

// Context returns the request context
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// block registers the calling session as a waiter on keys. The waiter
// suspends once the command has released the instance lock; onTimeout is
// the reply sent if the deadline passes first.
func (c *Context) block(keys []string, timeout time.Duration, onTimeout protocol.Value, serve blocking.ServeFunc) {
	owner := uint64(0)
	if c.Session != nil {
		owner = c.Session.ID
	}
	c.waiter = c.d.coord.Register(owner, keys, timeout, serve)
	c.timeoutReply = onTimeout
}

// Session is the per-client state of a connection
type Session struct {
	ID          uint64
	Name        string
	Addr        string
	Created     time.Time
	LastCommand string

	quit bool
}

// QuitRequested reports whether the client sent QUIT
func (s *Session) QuitRequested() bool {
	return s.quit
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
