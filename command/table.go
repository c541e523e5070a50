package command

import "github.com/birdisle/birdisle/protocol"

// Handler executes a command. args excludes the command name.
type Handler func(c *Context, args [][]byte) (protocol.Value, error)

// Flag describes command properties
type Flag uint

const (
	// FlagWrite marks commands that may modify the keyspace
	FlagWrite Flag = 1 << iota
	// FlagReadOnly marks commands that only read the keyspace
	FlagReadOnly
	// FlagBlocking marks commands that may suspend the client
	FlagBlocking
	// FlagNoScript marks commands refused inside scripts
	FlagNoScript
	// FlagAdmin marks instance-wide commands
	FlagAdmin
)

// Spec describes one command
type Spec struct {
	Name string
	// Arity counts the command name. A negative arity -N means at least N
	// arguments.
	Arity   int
	Flags   Flag
	Handler Handler
}

func (s *Spec) arityOK(argc int) bool {
	if s.Arity >= 0 {
		return argc == s.Arity
	}
	return argc >= -s.Arity
}

func builtinCommands() []*Spec {
	return []*Spec{
		// connection
		{Name: "PING", Arity: -1, Handler: cmdPing},
		{Name: "ECHO", Arity: 2, Handler: cmdEcho},
		{Name: "SELECT", Arity: 2, Handler: cmdSelect},
		{Name: "QUIT", Arity: -1, Flags: FlagNoScript, Handler: cmdQuit},
		{Name: "HELLO", Arity: -1, Flags: FlagNoScript, Handler: cmdHello},
		{Name: "CLIENT", Arity: -2, Flags: FlagNoScript, Handler: cmdClient},

		// server
		{Name: "INFO", Arity: -1, Handler: cmdInfo},
		{Name: "TIME", Arity: 1, Handler: cmdTime},
		{Name: "DBSIZE", Arity: 1, Flags: FlagReadOnly, Handler: cmdDBSize},
		{Name: "FLUSHALL", Arity: -1, Flags: FlagWrite | FlagAdmin, Handler: cmdFlushAll},
		{Name: "FLUSHDB", Arity: -1, Flags: FlagWrite | FlagAdmin, Handler: cmdFlushAll},

		// keys
		{Name: "DEL", Arity: -2, Flags: FlagWrite, Handler: cmdDel},
		{Name: "UNLINK", Arity: -2, Flags: FlagWrite, Handler: cmdDel},
		{Name: "EXISTS", Arity: -2, Flags: FlagReadOnly, Handler: cmdExists},
		{Name: "TYPE", Arity: 2, Flags: FlagReadOnly, Handler: cmdType},
		{Name: "KEYS", Arity: 2, Flags: FlagReadOnly, Handler: cmdKeys},
		{Name: "RENAME", Arity: 3, Flags: FlagWrite, Handler: cmdRename},
		{Name: "EXPIRE", Arity: 3, Flags: FlagWrite, Handler: cmdExpire},
		{Name: "PEXPIRE", Arity: 3, Flags: FlagWrite, Handler: cmdPExpire},
		{Name: "TTL", Arity: 2, Flags: FlagReadOnly, Handler: cmdTTL},
		{Name: "PTTL", Arity: 2, Flags: FlagReadOnly, Handler: cmdPTTL},
		{Name: "PERSIST", Arity: 2, Flags: FlagWrite, Handler: cmdPersist},

		// strings
		{Name: "GET", Arity: 2, Flags: FlagReadOnly, Handler: cmdGet},
		{Name: "SET", Arity: -3, Flags: FlagWrite, Handler: cmdSet},
		{Name: "SETNX", Arity: 3, Flags: FlagWrite, Handler: cmdSetNX},
		{Name: "GETSET", Arity: 3, Flags: FlagWrite, Handler: cmdGetSet},
		{Name: "MGET", Arity: -2, Flags: FlagReadOnly, Handler: cmdMGet},
		{Name: "MSET", Arity: -3, Flags: FlagWrite, Handler: cmdMSet},
		{Name: "APPEND", Arity: 3, Flags: FlagWrite, Handler: cmdAppend},
		{Name: "STRLEN", Arity: 2, Flags: FlagReadOnly, Handler: cmdStrlen},
		{Name: "INCR", Arity: 2, Flags: FlagWrite, Handler: cmdIncr},
		{Name: "DECR", Arity: 2, Flags: FlagWrite, Handler: cmdDecr},
		{Name: "INCRBY", Arity: 3, Flags: FlagWrite, Handler: cmdIncrBy},
		{Name: "DECRBY", Arity: 3, Flags: FlagWrite, Handler: cmdDecrBy},
		{Name: "INCRBYFLOAT", Arity: 3, Flags: FlagWrite, Handler: cmdIncrByFloat},

		// lists
		{Name: "LPUSH", Arity: -3, Flags: FlagWrite, Handler: cmdLPush},
		{Name: "RPUSH", Arity: -3, Flags: FlagWrite, Handler: cmdRPush},
		{Name: "LPUSHX", Arity: -3, Flags: FlagWrite, Handler: cmdLPushX},
		{Name: "RPUSHX", Arity: -3, Flags: FlagWrite, Handler: cmdRPushX},
		{Name: "LPOP", Arity: -2, Flags: FlagWrite, Handler: cmdLPop},
		{Name: "RPOP", Arity: -2, Flags: FlagWrite, Handler: cmdRPop},
		{Name: "LLEN", Arity: 2, Flags: FlagReadOnly, Handler: cmdLLen},
		{Name: "LRANGE", Arity: 4, Flags: FlagReadOnly, Handler: cmdLRange},
		{Name: "LINDEX", Arity: 3, Flags: FlagReadOnly, Handler: cmdLIndex},
		{Name: "LSET", Arity: 4, Flags: FlagWrite, Handler: cmdLSet},
		{Name: "LREM", Arity: 4, Flags: FlagWrite, Handler: cmdLRem},
		{Name: "LTRIM", Arity: 4, Flags: FlagWrite, Handler: cmdLTrim},
		{Name: "RPOPLPUSH", Arity: 3, Flags: FlagWrite, Handler: cmdRPopLPush},
		{Name: "BLPOP", Arity: -3, Flags: FlagWrite | FlagBlocking, Handler: cmdBLPop},
		{Name: "BRPOP", Arity: -3, Flags: FlagWrite | FlagBlocking, Handler: cmdBRPop},
		{Name: "BRPOPLPUSH", Arity: 4, Flags: FlagWrite | FlagBlocking, Handler: cmdBRPopLPush},

		// sorted sets
		{Name: "ZADD", Arity: -4, Flags: FlagWrite, Handler: cmdZAdd},
		{Name: "ZINCRBY", Arity: 4, Flags: FlagWrite, Handler: cmdZIncrBy},
		{Name: "ZREM", Arity: -3, Flags: FlagWrite, Handler: cmdZRem},
		{Name: "ZSCORE", Arity: 3, Flags: FlagReadOnly, Handler: cmdZScore},
		{Name: "ZCARD", Arity: 2, Flags: FlagReadOnly, Handler: cmdZCard},
		{Name: "ZRANK", Arity: 3, Flags: FlagReadOnly, Handler: cmdZRank},
		{Name: "ZREVRANK", Arity: 3, Flags: FlagReadOnly, Handler: cmdZRevRank},
		{Name: "ZRANGE", Arity: -4, Flags: FlagReadOnly, Handler: cmdZRange},
		{Name: "ZREVRANGE", Arity: -4, Flags: FlagReadOnly, Handler: cmdZRevRange},
		{Name: "ZRANGEBYSCORE", Arity: -4, Flags: FlagReadOnly, Handler: cmdZRangeByScore},
		{Name: "ZREVRANGEBYSCORE", Arity: -4, Flags: FlagReadOnly, Handler: cmdZRevRangeByScore},
		{Name: "ZCOUNT", Arity: 4, Flags: FlagReadOnly, Handler: cmdZCount},
		{Name: "ZPOPMIN", Arity: -2, Flags: FlagWrite, Handler: cmdZPopMin},
		{Name: "ZPOPMAX", Arity: -2, Flags: FlagWrite, Handler: cmdZPopMax},
		{Name: "BZPOPMIN", Arity: -3, Flags: FlagWrite | FlagBlocking, Handler: cmdBZPopMin},
		{Name: "BZPOPMAX", Arity: -3, Flags: FlagWrite | FlagBlocking, Handler: cmdBZPopMax},

		// scripting
		{Name: "EVAL", Arity: -3, Flags: FlagNoScript, Handler: cmdEval},
		{Name: "EVALSHA", Arity: -3, Flags: FlagNoScript, Handler: cmdEvalSHA},
		{Name: "SCRIPT", Arity: -2, Flags: FlagNoScript, Handler: cmdScript},
	}
}
