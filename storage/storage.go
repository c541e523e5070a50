package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Errors returned by keyspace operations. The command layer maps them to
// RESP error replies.
var (
	ErrWrongType       = errors.New("operation against a key holding the wrong kind of value")
	ErrNotInteger      = errors.New("value is not an integer or out of range")
	ErrNotFloat        = errors.New("value is not a valid float")
	ErrOverflow        = errors.New("increment or decrement would overflow")
	ErrNaNOrInfinity   = errors.New("increment would produce NaN or Infinity")
	ErrScoreNaN        = errors.New("resulting score is not a number (NaN)")
	ErrNoSuchKey       = errors.New("no such key")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// shard is one partition of the keyspace. Shards carry no lock of their
// own; the Keyspace caller serialises access.
type shard struct {
	data map[string]*Value
}

// Keyspace is the typed key to value mapping of one instance
type Keyspace struct {
	shards    []shard
	shardMask uint64

	// keys that gained list or zset elements since the last TakeReady
	ready      map[string]struct{}
	readyOrder []string

	journal *journal

	clock func() time.Time

	// background expiry
	locker         sync.Locker
	expiryInterval time.Duration
	expirySample   int
	cleanupStop    chan struct{}
	cleanupDone    chan struct{}
	closeOnce      sync.Once
}

// Option configures a Keyspace
type Option func(*Keyspace)

// WithShardCount sets the number of shards. The number is rounded up to the
// next power of 2.
func WithShardCount(count int) Option {
	return func(ks *Keyspace) {
		if count > 0 {
			n := nextPowerOf2(count)
			ks.shards = make([]shard, n)
			ks.shardMask = uint64(n - 1)
		}
	}
}

// WithClock overrides the time source used for expiry
func WithClock(clock func() time.Time) Option {
	return func(ks *Keyspace) {
		if clock != nil {
			ks.clock = clock
		}
	}
}

// WithLocker enables the background expiry cycle. The locker must be the
// mutex that guards every other call on the Keyspace.
func WithLocker(locker sync.Locker, interval time.Duration, sample int) Option {
	return func(ks *Keyspace) {
		ks.locker = locker
		ks.expiryInterval = interval
		ks.expirySample = sample
	}
}

// New creates an empty keyspace with 16 shards
func New(opts ...Option) *Keyspace {
	ks := &Keyspace{
		shards:    make([]shard, 16),
		shardMask: 15,
		ready:     make(map[string]struct{}),
		clock:     time.Now,
	}

	for _, opt := range opts {
		opt(ks)
	}

	for i := range ks.shards {
		ks.shards[i].data = make(map[string]*Value)
	}

	if ks.locker != nil && ks.expiryInterval > 0 {
		if ks.expirySample <= 0 {
			ks.expirySample = 20
		}
		ks.cleanupStop = make(chan struct{})
		ks.cleanupDone = make(chan struct{})
		go ks.expiryCycle()
	}

	return ks
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

func (ks *Keyspace) shardFor(key string) *shard {
	return &ks.shards[xxhash.Sum64String(key)&ks.shardMask]
}

// lookup returns the live value for key, deleting it first if it expired
func (ks *Keyspace) lookup(key string) *Value {
	sh := ks.shardFor(key)
	v, ok := sh.data[key]
	if !ok {
		return nil
	}
	if v.IsExpired(ks.clock()) {
		ks.record(key)
		delete(sh.data, key)
		return nil
	}
	return v
}

// store replaces the value for key
func (ks *Keyspace) store(key string, v *Value) {
	ks.record(key)
	ks.shardFor(key).data[key] = v
}

// remove deletes key and reports whether it existed
func (ks *Keyspace) remove(key string) bool {
	sh := ks.shardFor(key)
	if _, ok := sh.data[key]; !ok {
		return false
	}
	ks.record(key)
	delete(sh.data, key)
	return true
}

// settle enforces the non-empty invariant after an aggregate mutation
func (ks *Keyspace) settle(key string, v *Value) {
	if v.empty() {
		ks.remove(key)
	}
}

// markReady flags key as having gained elements
func (ks *Keyspace) markReady(key string) {
	if _, ok := ks.ready[key]; ok {
		return
	}
	ks.ready[key] = struct{}{}
	ks.readyOrder = append(ks.readyOrder, key)
}

// TakeReady returns, in the order they were produced, the keys that gained
// list or sorted set elements since the previous call
func (ks *Keyspace) TakeReady() []string {
	if len(ks.readyOrder) == 0 {
		return nil
	}
	keys := ks.readyOrder
	ks.readyOrder = nil
	ks.ready = make(map[string]struct{})
	return keys
}

// Del deletes one or more keys
func (ks *Keyspace) Del(keys ...string) int64 {
	deleted := int64(0)
	for _, key := range keys {
		if ks.lookup(key) != nil && ks.remove(key) {
			deleted++
		}
	}
	return deleted
}

// Exists counts the given keys that exist. Repeated keys count repeatedly.
func (ks *Keyspace) Exists(keys ...string) int64 {
	count := int64(0)
	for _, key := range keys {
		if ks.lookup(key) != nil {
			count++
		}
	}
	return count
}

// Type returns the type of the value at key
func (ks *Keyspace) Type(key string) ValueType {
	v := ks.lookup(key)
	if v == nil {
		return ValueTypeNone
	}
	return v.Type
}

// Keys returns all keys matching the glob pattern, sorted
func (ks *Keyspace) Keys(pattern string) []string {
	now := ks.clock()
	keys := make([]string, 0)
	for i := range ks.shards {
		for key, v := range ks.shards[i].data {
			if v.IsExpired(now) {
				continue
			}
			if pattern == "*" || MatchPattern(key, pattern) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// KeyCount returns the number of live keys. Expired keys still waiting to
// be reclaimed are not counted.
func (ks *Keyspace) KeyCount() int64 {
	now := ks.clock()
	count := int64(0)
	for i := range ks.shards {
		for _, v := range ks.shards[i].data {
			if !v.IsExpired(now) {
				count++
			}
		}
	}
	return count
}

// ExpiresCount returns the number of live keys carrying a TTL
func (ks *Keyspace) ExpiresCount() int64 {
	now := ks.clock()
	count := int64(0)
	for i := range ks.shards {
		for _, v := range ks.shards[i].data {
			if v.Expiry != nil && !v.IsExpired(now) {
				count++
			}
		}
	}
	return count
}

// storedKeys counts every stored entry, reclaimed or not
func (ks *Keyspace) storedKeys() int {
	count := 0
	for i := range ks.shards {
		count += len(ks.shards[i].data)
	}
	return count
}

// FlushAll removes every key
func (ks *Keyspace) FlushAll() {
	if ks.journal != nil {
		for i := range ks.shards {
			for key := range ks.shards[i].data {
				ks.record(key)
			}
		}
	}
	for i := range ks.shards {
		ks.shards[i].data = make(map[string]*Value)
	}
}

// Rename moves the value at src to dst, replacing dst
func (ks *Keyspace) Rename(src, dst string) error {
	v := ks.lookup(src)
	if v == nil {
		return ErrNoSuchKey
	}
	if src == dst {
		return nil
	}
	ks.remove(src)
	ks.store(dst, v)
	if v.Type == ValueTypeList || v.Type == ValueTypeZSet {
		ks.markReady(dst)
	}
	return nil
}

// Expire sets the absolute expiry of key. An expiry in the past deletes
// the key immediately.
func (ks *Keyspace) Expire(key string, at time.Time) bool {
	v := ks.lookup(key)
	if v == nil {
		return false
	}
	if !at.After(ks.clock()) {
		ks.remove(key)
		return true
	}
	ks.record(key)
	v.Expiry = &at
	return true
}

// Persist removes the expiry of key
func (ks *Keyspace) Persist(key string) bool {
	v := ks.lookup(key)
	if v == nil || v.Expiry == nil {
		return false
	}
	ks.record(key)
	v.Expiry = nil
	return true
}

// TTL returns the remaining time to live of key: -2 if the key does not
// exist and -1 if it has no expiry
func (ks *Keyspace) TTL(key string) time.Duration {
	v := ks.lookup(key)
	if v == nil {
		return -2
	}
	if v.Expiry == nil {
		return -1
	}
	ttl := v.Expiry.Sub(ks.clock())
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Now returns the keyspace clock reading used for expiry decisions
func (ks *Keyspace) Now() time.Time {
	return ks.clock()
}

// Close stops the background expiry cycle
func (ks *Keyspace) Close() error {
	ks.closeOnce.Do(func() {
		if ks.cleanupStop != nil {
			close(ks.cleanupStop)
			<-ks.cleanupDone
		}
	})
	return nil
}
