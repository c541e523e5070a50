package client

import (
	"context"
	"errors"
	"time"

	pool "github.com/jolestar/go-commons-pool/v2"

	"github.com/birdisle/birdisle/protocol"
)

// PoolConfig bounds a Pool
type PoolConfig struct {
	// MaxTotal caps open connections; borrowers wait when it is reached
	MaxTotal int
	// MaxIdle caps connections kept open while unused
	MaxIdle int
	// MinIdle connections are kept warm by the evictor
	MinIdle int
	// DialTimeout bounds establishing a connection
	DialTimeout time.Duration
	// PingOnBorrow checks a connection with PING before handing it out
	PingOnBorrow bool
}

// DefaultPoolConfig returns the pool defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxTotal:    8,
		MaxIdle:     8,
		DialTimeout: 5 * time.Second,
	}
}

// connectionFactory creates pooled connections to one address.
// It implements pool.PooledObjectFactory.
type connectionFactory struct {
	addr   string
	config PoolConfig
}

// MakeObject dials a new connection
func (f *connectionFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	if f.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.DialTimeout)
		defer cancel()
	}
	c, err := Dial(ctx, f.addr)
	if err != nil {
		return nil, err
	}
	return pool.NewPooledObject(c), nil
}

// DestroyObject closes a connection
func (f *connectionFactory) DestroyObject(ctx context.Context, object *pool.PooledObject) error {
	c, ok := object.Object.(*Conn)
	if !ok {
		return errors.New("client: pooled object type mismatch")
	}
	return c.Close()
}

// ValidateObject rejects broken connections and, when configured,
// connections that do not answer PING
func (f *connectionFactory) ValidateObject(ctx context.Context, object *pool.PooledObject) bool {
	c, ok := object.Object.(*Conn)
	if !ok || c.Broken() {
		return false
	}
	if !f.config.PingOnBorrow {
		return true
	}
	reply, err := c.Do(ctx, "PING")
	return err == nil && reply.String() == "PONG"
}

// ActivateObject prepares a connection for borrowing
func (f *connectionFactory) ActivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

// PassivateObject parks a returned connection
func (f *connectionFactory) PassivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

// Pool is a bounded pool of connections to one instance
type Pool struct {
	objects *pool.ObjectPool
}

// NewPool creates a pool for addr
func NewPool(ctx context.Context, addr string, config PoolConfig) *Pool {
	defaults := DefaultPoolConfig()
	if config.MaxTotal <= 0 {
		config.MaxTotal = defaults.MaxTotal
	}
	if config.MaxIdle <= 0 {
		config.MaxIdle = config.MaxTotal
	}

	poolConfig := pool.NewDefaultPoolConfig()
	poolConfig.MaxTotal = config.MaxTotal
	poolConfig.MaxIdle = config.MaxIdle
	poolConfig.MinIdle = config.MinIdle
	poolConfig.TestOnBorrow = true
	poolConfig.TestOnReturn = true

	return &Pool{
		objects: pool.NewObjectPool(ctx, &connectionFactory{addr: addr, config: config}, poolConfig),
	}
}

// Get borrows a connection. It must be handed back with Put.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	if p.objects.IsClosed() {
		return nil, ErrClosed
	}
	obj, err := p.objects.BorrowObject(ctx)
	if err != nil {
		return nil, err
	}
	return obj.(*Conn), nil
}

// Put returns a borrowed connection. Broken connections are discarded.
func (p *Pool) Put(ctx context.Context, c *Conn) error {
	if c.Broken() {
		return p.objects.InvalidateObject(ctx, c)
	}
	return p.objects.ReturnObject(ctx, c)
}

// Do borrows a connection, runs one command and returns the connection
func (p *Pool) Do(ctx context.Context, args ...interface{}) (protocol.Value, error) {
	c, err := p.Get(ctx)
	if err != nil {
		return protocol.Value{}, err
	}
	reply, err := c.Do(ctx, args...)
	if putErr := p.Put(context.Background(), c); putErr != nil && err == nil {
		err = putErr
	}
	return reply, err
}

// Active returns the number of borrowed connections
func (p *Pool) Active() int {
	return p.objects.GetNumActive()
}

// Idle returns the number of connections waiting in the pool
func (p *Pool) Idle() int {
	return p.objects.GetNumIdle()
}

// Close closes every pooled connection
func (p *Pool) Close(ctx context.Context) {
	p.objects.Close(ctx)
}
