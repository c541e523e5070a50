package lua

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/birdisle/birdisle/command"
	"github.com/birdisle/birdisle/protocol"
)

// Engine provides Redis-compatible Lua script execution for one instance
type Engine struct {
	dispatcher *command.Dispatcher
	scripts    sync.Map // map[string]string - SHA1 -> script body
	logger     command.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger routes redis.log output and script failures to logger
func WithLogger(logger command.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a script engine that executes redis.call through d
func NewEngine(d *command.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		dispatcher: d,
		logger:     nopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SHA1 returns the lowercase hex digest identifying body
func SHA1(body []byte) string {
	sum := sha1.Sum(body)
	return hex.EncodeToString(sum[:])
}

// Load caches body and returns its digest
func (e *Engine) Load(body []byte) string {
	sha := SHA1(body)
	e.scripts.Store(sha, string(body))
	return sha
}

// Exists reports whether a script with digest sha is cached
func (e *Engine) Exists(sha string) bool {
	_, ok := e.scripts.Load(sha)
	return ok
}

// Flush removes all cached scripts
func (e *Engine) Flush() {
	e.scripts.Range(func(key, _ interface{}) bool {
		e.scripts.Delete(key)
		return true
	})
}

// Len returns the number of cached scripts
func (e *Engine) Len() int {
	n := 0
	e.scripts.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Eval runs body. The script is cached so later EVALSHA calls find it.
func (e *Engine) Eval(c *command.Context, body []byte, keys, args [][]byte) (protocol.Value, error) {
	sha := e.Load(body)
	return e.run(c, sha, string(body), keys, args)
}

// EvalSHA runs a cached script
func (e *Engine) EvalSHA(c *command.Context, sha string, keys, args [][]byte) (protocol.Value, error) {
	body, ok := e.scripts.Load(sha)
	if !ok {
		err := command.NoScriptError()
		return err.Reply(), err
	}
	return e.run(c, sha, body.(string), keys, args)
}

// execution is the state of one running script
type execution struct {
	engine *Engine
	ctx    *command.Context
	sha    string

	// last error returned by redis.call, kept so the failure can be
	// unwrapped to the command error that caused it
	callErr error
}

func (e *Engine) run(c *command.Context, sha, body string, keys, args [][]byte) (protocol.Value, error) {
	L := newState()
	defer L.Close()
	L.SetContext(c.Context())

	x := &execution{engine: e, ctx: c, sha: sha}
	x.setupRedisAPI(L, keys, args)

	fn, err := L.LoadString(body)
	if err != nil {
		cmdErr := command.ScriptError(fmt.Sprintf("ERR Error compiling script (new function): %s", firstLine(err.Error())), err)
		return cmdErr.Reply(), cmdErr
	}

	ks := c.Keyspace()
	ks.BeginJournal()
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		ks.Rollback()
		cmdErr := x.failure(err)
		e.logger.Debug("script failed", "sha", sha, "error", cmdErr.Message)
		return cmdErr.Reply(), cmdErr
	}
	ks.Commit()

	reply := toReply(L.Get(-1))
	if reply.IsError() {
		cmdErr := command.ScriptError(reply.Error(), nil)
		return reply, cmdErr
	}
	return reply, nil
}

// failure converts a Lua runtime error into a script error
func (x *execution) failure(err error) *command.Error {
	msg := err.Error()
	var cause error
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		if tbl, ok := apiErr.Object.(*lua.LTable); ok {
			if e, ok := tbl.RawGetString("err").(lua.LString); ok {
				msg = string(e)
				cause = x.callErr
			}
		} else if apiErr.Object != nil {
			msg = apiErr.Object.String()
		}
	}
	if cause == nil {
		cause = err
	}
	return command.ScriptError(
		fmt.Sprintf("ERR Error running script (call to f_%s): %s", x.sha, firstLine(msg)),
		cause,
	)
}

// newState creates an interpreter with the sandboxed standard libraries
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "print"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// setupRedisAPI installs KEYS, ARGV and the redis library
func (x *execution) setupRedisAPI(L *lua.LState, keys, args [][]byte) {
	L.SetGlobal("KEYS", stringTable(L, keys))
	L.SetGlobal("ARGV", stringTable(L, args))

	redis := L.NewTable()
	L.SetFuncs(redis, map[string]lua.LGFunction{
		"call":         x.redisCall,
		"pcall":        x.redisPCall,
		"error_reply":  errorReply,
		"status_reply": statusReply,
		"sha1hex":      sha1hex,
		"log":          x.redisLog,
	})
	for name, level := range logLevels {
		redis.RawSetString(name, lua.LNumber(level))
	}
	L.SetGlobal("redis", redis)
}

func stringTable(L *lua.LState, items [][]byte) *lua.LTable {
	tbl := L.CreateTable(len(items), 0)
	for i, item := range items {
		tbl.RawSetInt(i+1, lua.LString(item))
	}
	return tbl
}

// redisCall implements redis.call(): command errors are raised
func (x *execution) redisCall(L *lua.LState) int {
	reply, err := x.execute(L)
	if err != nil {
		x.callErr = err
		L.Error(errorTable(L, err.Error()), 1)
		return 0
	}
	L.Push(toLua(L, reply))
	return 1
}

// redisPCall implements redis.pcall(): command errors are returned as
// error tables
func (x *execution) redisPCall(L *lua.LState) int {
	reply, err := x.execute(L)
	if err != nil {
		L.Push(errorTable(L, err.Error()))
		return 1
	}
	L.Push(toLua(L, reply))
	return 1
}

func (x *execution) execute(L *lua.LState) (protocol.Value, error) {
	argc := L.GetTop()
	args := make([][]byte, 0, argc)
	for i := 1; i <= argc; i++ {
		arg, ok := toArg(L.Get(i))
		if !ok {
			return protocol.Value{}, command.ScriptError("ERR Lua redis lib command arguments must be strings or integers", nil)
		}
		args = append(args, arg)
	}
	return x.engine.dispatcher.Call(x.ctx, args)
}

func errorReply(L *lua.LState) int {
	L.Push(errorTable(L, L.CheckString(1)))
	return 1
}

func statusReply(L *lua.LState) int {
	tbl := L.NewTable()
	tbl.RawSetString("ok", lua.LString(L.CheckString(1)))
	L.Push(tbl)
	return 1
}

func sha1hex(L *lua.LState) int {
	L.Push(lua.LString(SHA1([]byte(L.CheckString(1)))))
	return 1
}

func errorTable(L *lua.LState, msg string) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("err", lua.LString(msg))
	return tbl
}

var logLevels = map[string]int{
	"LOG_DEBUG":   0,
	"LOG_VERBOSE": 1,
	"LOG_NOTICE":  2,
	"LOG_WARNING": 3,
}

func (x *execution) redisLog(L *lua.LState) int {
	level := L.CheckInt(1)
	parts := make([]string, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	msg := strings.Join(parts, " ")
	switch {
	case level >= logLevels["LOG_WARNING"]:
		x.engine.logger.Error(msg, "sha", x.sha)
	case level == logLevels["LOG_NOTICE"]:
		x.engine.logger.Info(msg, "sha", x.sha)
	default:
		x.engine.logger.Debug(msg, "sha", x.sha)
	}
	return 0
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
