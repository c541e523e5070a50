package birdisle

import (
	"time"

	"github.com/birdisle/birdisle/server"
)

// config holds the configuration for an Instance
type config struct {
	// Listener settings
	addr        string
	idleTimeout time.Duration

	// Keyspace settings
	shardCount     int
	expiryInterval time.Duration
	expirySample   int

	// Behavioral options
	scripting bool

	// Observability
	logger  Logger
	metrics MetricsCollector
	onError func(error)
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		addr:           server.DefaultAddr,
		shardCount:     16,
		expiryInterval: 100 * time.Millisecond,
		expirySample:   20,
		scripting:      true,
		logger:         defaultLogger(),
	}
}

// Option represents a configuration option for an Instance
type Option func(*config) error

// WithAddr sets the listening address. The default binds an ephemeral
// port on the loopback interface.
//
// Example:
//
//	WithAddr("127.0.0.1:6390")
func WithAddr(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return invalidOption("addr", "address is empty")
		}
		c.addr = addr
		return nil
	}
}

// WithIdleTimeout closes connections that send nothing for d. Blocked
// commands are not subject to it. Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return invalidOption("idle timeout", "%s is negative", d)
		}
		c.idleTimeout = d
		return nil
	}
}

// WithShardCount sets the number of keyspace partitions, rounded up to a
// power of 2
func WithShardCount(count int) Option {
	return func(c *config) error {
		if count <= 0 {
			return invalidOption("shard count", "%d is not positive", count)
		}
		c.shardCount = count
		return nil
	}
}

// WithExpiryCycle tunes active expiry: every interval, sample keys with a
// TTL are inspected and the expired ones reclaimed. A zero interval
// disables the cycle; expired keys are then only reclaimed on access.
//
// Example:
//
//	WithExpiryCycle(50*time.Millisecond, 20)
func WithExpiryCycle(interval time.Duration, sample int) Option {
	return func(c *config) error {
		if interval < 0 {
			return invalidOption("expiry interval", "%s is negative", interval)
		}
		if sample < 0 {
			return invalidOption("expiry sample", "%d is negative", sample)
		}
		c.expiryInterval = interval
		c.expirySample = sample
		return nil
	}
}

// WithScripting enables or disables EVAL, EVALSHA and SCRIPT (default: on)
func WithScripting(enabled bool) Option {
	return func(c *config) error {
		c.scripting = enabled
		return nil
	}
}

// WithLogger sets a custom logger for the instance
//
// Example:
//
//	WithLogger(NewSlogLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return invalidOption("logger", "logger is nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}

// WithErrorHandler registers a hook for failures that have no caller to
// return to, such as a refused connection when descriptors run out. The
// hook runs on the failing goroutine and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(c *config) error {
		c.onError = fn
		return nil
	}
}
