package command

import (
	"time"

	"github.com/birdisle/birdisle/protocol"
)

func cmdDel(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.Integer(c.Keyspace().Del(keyStrings(args)...)), nil
}

func cmdExists(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.Integer(c.Keyspace().Exists(keyStrings(args)...)), nil
}

func cmdType(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.SimpleString(c.Keyspace().Type(string(args[0])).String()), nil
}

func cmdKeys(c *Context, args [][]byte) (protocol.Value, error) {
	keys := c.Keyspace().Keys(string(args[0]))
	items := make([]protocol.Value, len(keys))
	for i, key := range keys {
		items[i] = protocol.BulkFromString(key)
	}
	return protocol.Array(items...), nil
}

func cmdRename(c *Context, args [][]byte) (protocol.Value, error) {
	if err := c.Keyspace().Rename(string(args[0]), string(args[1])); err != nil {
		return protocol.Value{}, err
	}
	return protocol.OK(), nil
}

func cmdExpire(c *Context, args [][]byte) (protocol.Value, error) {
	return expire(c, args, time.Second)
}

func cmdPExpire(c *Context, args [][]byte) (protocol.Value, error) {
	return expire(c, args, time.Millisecond)
}

func expire(c *Context, args [][]byte, unit time.Duration) (protocol.Value, error) {
	n, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	ks := c.Keyspace()
	if !ks.Expire(string(args[0]), ks.Now().Add(time.Duration(n)*unit)) {
		return protocol.Integer(0), nil
	}
	return protocol.Integer(1), nil
}

func cmdTTL(c *Context, args [][]byte) (protocol.Value, error) {
	return ttl(c, args, time.Second)
}

func cmdPTTL(c *Context, args [][]byte) (protocol.Value, error) {
	return ttl(c, args, time.Millisecond)
}

func ttl(c *Context, args [][]byte, unit time.Duration) (protocol.Value, error) {
	d := c.Keyspace().TTL(string(args[0]))
	if d < 0 {
		return protocol.Integer(int64(d)), nil
	}
	return protocol.Integer(int64((d + unit/2) / unit)), nil
}

func cmdPersist(c *Context, args [][]byte) (protocol.Value, error) {
	if c.Keyspace().Persist(string(args[0])) {
		return protocol.Integer(1), nil
	}
	return protocol.Integer(0), nil
}

func cmdDBSize(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.Integer(c.Keyspace().KeyCount()), nil
}

func cmdFlushAll(c *Context, args [][]byte) (protocol.Value, error) {
	if len(args) > 1 {
		return protocol.Value{}, syntaxError()
	}
	if len(args) == 1 && !isOption(args[0], "SYNC") && !isOption(args[0], "ASYNC") {
		return protocol.Value{}, syntaxError()
	}
	c.Keyspace().FlushAll()
	return protocol.OK(), nil
}
