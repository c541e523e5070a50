package lua

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdisle/birdisle/blocking"
	"github.com/birdisle/birdisle/command"
	"github.com/birdisle/birdisle/protocol"
	"github.com/birdisle/birdisle/storage"
)

type fixture struct {
	d      *command.Dispatcher
	engine *Engine
	s      *command.Session
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	ks := storage.New()
	d := command.NewDispatcher(&sync.Mutex{}, ks, blocking.NewCoordinator())
	engine := NewEngine(d)
	d.SetScripting(engine)
	t.Cleanup(func() {
		d.Close()
		_ = ks.Close()
	})
	return &fixture{d: d, engine: engine, s: d.TransientSession()}
}

func (f *fixture) exec(args ...string) (protocol.Value, error) {
	argv := make([][]byte, len(args))
	for i, arg := range args {
		argv[i] = []byte(arg)
	}
	return f.d.Exec(context.Background(), f.s, argv)
}

func (f *fixture) eval(t *testing.T, script string, keysAndArgs ...string) protocol.Value {
	t.Helper()
	reply, err := f.exec(append([]string{"EVAL", script}, keysAndArgs...)...)
	require.NoError(t, err)
	return reply
}

func TestLuaEngine_BasicExecution(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		script   string
		params   []string
		expected protocol.Value
	}{
		{"simple return", "return 'hello'", []string{"0"}, protocol.BulkFromString("hello")},
		{"return number", "return 42", []string{"0"}, protocol.Integer(42)},
		{"number truncated", "return 3.99", []string{"0"}, protocol.Integer(3)},
		{"return true", "return true", []string{"0"}, protocol.Integer(1)},
		{"return false", "return false", []string{"0"}, protocol.NullBulk()},
		{"return nothing", "return", []string{"0"}, protocol.NullBulk()},
		{"access KEYS", "return KEYS[1]", []string{"1", "mykey"}, protocol.BulkFromString("mykey")},
		{"access ARGV", "return ARGV[1]", []string{"0", "myarg"}, protocol.BulkFromString("myarg")},
		{"concatenate KEYS and ARGV", "return KEYS[1] .. ':' .. ARGV[1]", []string{"1", "user", "123"}, protocol.BulkFromString("user:123")},
		{"status reply", "return redis.status_reply('FINE')", []string{"0"}, protocol.SimpleString("FINE")},
		{"table stops at nil", "return {1, 'two', nil, 4}", []string{"0"},
			protocol.Array(protocol.Integer(1), protocol.BulkFromString("two"))},
		{"nested table", "return {1, {2, 3}}", []string{"0"},
			protocol.Array(protocol.Integer(1), protocol.Array(protocol.Integer(2), protocol.Integer(3)))},
		{"sha1hex", "return redis.sha1hex('')", []string{"0"}, protocol.BulkFromString("da39a3ee5e6b4b0d3255bfef95601890afd80709")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.eval(t, tt.script, tt.params...))
		})
	}
}

func TestLuaEngine_RedisCommands(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, protocol.SimpleString("OK"), f.eval(t, "return redis.call('SET', KEYS[1], ARGV[1])", "1", "k", "v"))
	assert.Equal(t, protocol.BulkFromString("v"), f.eval(t, "return redis.call('get', KEYS[1])", "1", "k"))
	assert.Equal(t, protocol.NullBulk(), f.eval(t, "return redis.call('GET', 'missing')", "0"))
	assert.Equal(t, protocol.Integer(1), f.eval(t, "return redis.call('GET', 'missing') == false", "0"))

	// numbers are passed as their integer text
	assert.Equal(t, protocol.Integer(15), f.eval(t, "redis.call('SET', 'n', 10) return redis.call('INCRBY', 'n', 5)", "0"))

	f.eval(t, "redis.call('RPUSH', 'l', 'a', 'b', 'c')", "0")
	assert.Equal(t, protocol.Integer(3), f.eval(t, "return #redis.call('LRANGE', 'l', 0, -1)", "0"))

	// status replies arrive as {ok=...}
	assert.Equal(t, protocol.BulkFromString("OK"), f.eval(t, "return redis.call('SET', 'x', 'y').ok", "0"))
}

func TestLuaEngine_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec("SET", "str", "value")
	require.NoError(t, err)

	t.Run("redis.call raises", func(t *testing.T) {
		reply, err := f.exec("EVAL", "return redis.call('INCR', 'str')", "0")
		require.Error(t, err)
		assert.True(t, reply.IsError())
		assert.Contains(t, err.Error(), "ERR Error running script")
		assert.Contains(t, err.Error(), "ERR value is not an integer or out of range")
		assert.True(t, errors.Is(err, command.ErrScript))
		assert.True(t, errors.Is(err, command.ErrNotANumber))
	})

	t.Run("redis.pcall returns error table", func(t *testing.T) {
		reply := f.eval(t, "local r = redis.pcall('LPUSH', 'str', 'x') return r.err", "0")
		assert.Equal(t, "WRONGTYPE Operation against a key holding the wrong kind of value", reply.String())
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := f.exec("EVAL", "return redis.call('NOPE')", "0")
		require.Error(t, err)
		assert.True(t, errors.Is(err, command.ErrUnknownCommand))
	})

	t.Run("error_reply", func(t *testing.T) {
		reply, err := f.exec("EVAL", "return redis.error_reply('MY failure')", "0")
		require.Error(t, err)
		assert.Equal(t, "MY failure", reply.Error())
	})

	t.Run("compile error", func(t *testing.T) {
		_, err := f.exec("EVAL", "return +", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ERR Error compiling script")
	})

	t.Run("runtime error", func(t *testing.T) {
		_, err := f.exec("EVAL", "error('boom')", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("bad argument type", func(t *testing.T) {
		_, err := f.exec("EVAL", "return redis.call('GET', {})", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be strings or integers")
	})

	t.Run("scripts cannot nest", func(t *testing.T) {
		_, err := f.exec("EVAL", "return redis.call('EVAL', 'return 1', '0')", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not allowed from script")
	})

	t.Run("sandbox", func(t *testing.T) {
		_, err := f.exec("EVAL", "return dofile('/etc/passwd')", "0")
		require.Error(t, err)
	})

	t.Run("negative numkeys", func(t *testing.T) {
		_, err := f.exec("EVAL", "return 1", "-1")
		assert.EqualError(t, err, "ERR Number of keys can't be negative")
	})
}

func TestLuaEngine_FailedScriptRollsBack(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec("SET", "counter", "1")
	require.NoError(t, err)
	_, err = f.exec("SET", "str", "text")
	require.NoError(t, err)

	script := `
redis.call('INCR', 'counter')
redis.call('SET', 'created', 'yes')
redis.call('RPUSH', 'list', 'a')
redis.call('INCR', 'str')
return 'unreachable'`
	_, err = f.exec("EVAL", script, "0")
	require.Error(t, err)

	reply, _ := f.exec("GET", "counter")
	assert.Equal(t, "1", reply.String())
	reply, _ = f.exec("EXISTS", "created", "list")
	assert.Equal(t, int64(0), reply.Int())
}

func TestLuaEngine_BlockingCommandsDoNotBlock(t *testing.T) {
	f := newFixture(t)

	reply := f.eval(t, "return redis.call('BLPOP', 'empty', 0)", "0")
	assert.Equal(t, protocol.NullBulk(), reply)

	f.eval(t, "redis.call('RPUSH', 'q', 'job')", "0")
	reply = f.eval(t, "return redis.call('BLPOP', 'q', 0)", "0")
	assert.Equal(t, protocol.Array(protocol.BulkFromString("q"), protocol.BulkFromString("job")), reply)
}

func TestLuaEngine_ScriptCache(t *testing.T) {
	f := newFixture(t)
	script := "return ARGV[1] .. '!'"

	sha, err := f.exec("SCRIPT", "LOAD", script)
	require.NoError(t, err)
	assert.Equal(t, SHA1([]byte(script)), sha.String())

	reply, err := f.exec("EVALSHA", sha.String(), "0", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", reply.String())

	// digests are case-insensitive
	reply, err = f.exec("EVALSHA", strings.ToUpper(sha.String()), "0", "yo")
	require.NoError(t, err)
	assert.Equal(t, "yo!", reply.String())

	_, err = f.exec("EVALSHA", "ffffffffffffffffffffffffffffffffffffffff", "0")
	assert.True(t, errors.Is(err, command.ErrNoScript))

	exists, err := f.exec("SCRIPT", "EXISTS", sha.String(), "0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, protocol.Array(protocol.Integer(1), protocol.Integer(0)), exists)
	assert.Equal(t, 1, f.engine.Len())

	// EVAL caches the body too
	f.eval(t, "return 1", "0")
	assert.True(t, f.engine.Exists(SHA1([]byte("return 1"))))

	_, err = f.exec("SCRIPT", "FLUSH")
	require.NoError(t, err)
	_, err = f.exec("EVALSHA", sha.String(), "0")
	require.Error(t, err)
	assert.Equal(t, "NOSCRIPT No matching script. Please use EVAL.", err.Error())
}

func TestLuaEngine_Log(t *testing.T) {
	logger := &recordingLogger{}
	ks := storage.New()
	d := command.NewDispatcher(&sync.Mutex{}, ks, blocking.NewCoordinator())
	d.SetScripting(NewEngine(d, WithLogger(logger)))
	defer d.Close()

	_, err := d.Exec(context.Background(), d.TransientSession(),
		[][]byte{[]byte("EVAL"), []byte("redis.log(redis.LOG_WARNING, 'disk', 'full')"), []byte("0")})
	require.NoError(t, err)
	assert.Equal(t, []string{"disk full"}, logger.errors)
}

type recordingLogger struct {
	errors []string
}

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})  {}
func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}
