package command

import (
	"github.com/birdisle/birdisle/blocking"
	"github.com/birdisle/birdisle/protocol"
	"github.com/birdisle/birdisle/storage"
)

func cmdLPush(c *Context, args [][]byte) (protocol.Value, error) {
	return push(c, args, true, false)
}

func cmdRPush(c *Context, args [][]byte) (protocol.Value, error) {
	return push(c, args, false, false)
}

func cmdLPushX(c *Context, args [][]byte) (protocol.Value, error) {
	return push(c, args, true, true)
}

func cmdRPushX(c *Context, args [][]byte) (protocol.Value, error) {
	return push(c, args, false, true)
}

func push(c *Context, args [][]byte, left, onlyExisting bool) (protocol.Value, error) {
	n, err := c.Keyspace().Push(string(args[0]), left, onlyExisting, args[1:]...)
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(n), nil
}

func cmdLPop(c *Context, args [][]byte) (protocol.Value, error) {
	return pop(c, args, true)
}

func cmdRPop(c *Context, args [][]byte) (protocol.Value, error) {
	return pop(c, args, false)
}

func pop(c *Context, args [][]byte, left bool) (protocol.Value, error) {
	if len(args) > 2 {
		return protocol.Value{}, syntaxError()
	}
	count, withCount, err := parseCount(args, 1)
	if err != nil {
		return protocol.Value{}, err
	}
	out, err := c.Keyspace().Pop(string(args[0]), left, count)
	if err != nil {
		return protocol.Value{}, err
	}
	if withCount {
		if out == nil {
			return protocol.NullArray(), nil
		}
		return protocol.BulkArray(out), nil
	}
	if len(out) == 0 {
		return protocol.NullBulk(), nil
	}
	return protocol.BulkString(out[0]), nil
}

func cmdLLen(c *Context, args [][]byte) (protocol.Value, error) {
	n, err := c.Keyspace().ListLen(string(args[0]))
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(n), nil
}

func cmdLRange(c *Context, args [][]byte) (protocol.Value, error) {
	start, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	stop, err := parseInt(args[2])
	if err != nil {
		return protocol.Value{}, err
	}
	items, err := c.Keyspace().ListRange(string(args[0]), start, stop)
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.BulkArray(items), nil
}

func cmdLIndex(c *Context, args [][]byte) (protocol.Value, error) {
	index, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	value, ok, err := c.Keyspace().ListIndex(string(args[0]), index)
	if err != nil {
		return protocol.Value{}, err
	}
	if !ok {
		return protocol.NullBulk(), nil
	}
	return protocol.BulkString(value), nil
}

func cmdLSet(c *Context, args [][]byte) (protocol.Value, error) {
	index, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	if err := c.Keyspace().ListSet(string(args[0]), index, args[2]); err != nil {
		return protocol.Value{}, err
	}
	return protocol.OK(), nil
}

func cmdLRem(c *Context, args [][]byte) (protocol.Value, error) {
	count, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	n, err := c.Keyspace().ListRem(string(args[0]), count, args[2])
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(n), nil
}

func cmdLTrim(c *Context, args [][]byte) (protocol.Value, error) {
	start, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	stop, err := parseInt(args[2])
	if err != nil {
		return protocol.Value{}, err
	}
	if err := c.Keyspace().ListTrim(string(args[0]), start, stop); err != nil {
		return protocol.Value{}, err
	}
	return protocol.OK(), nil
}

func cmdRPopLPush(c *Context, args [][]byte) (protocol.Value, error) {
	value, ok, err := c.Keyspace().ListMove(string(args[0]), string(args[1]), false, true)
	if err != nil {
		return protocol.Value{}, err
	}
	if !ok {
		return protocol.NullBulk(), nil
	}
	return protocol.BulkString(value), nil
}

func cmdBLPop(c *Context, args [][]byte) (protocol.Value, error) {
	return blockingPop(c, args, true)
}

func cmdBRPop(c *Context, args [][]byte) (protocol.Value, error) {
	return blockingPop(c, args, false)
}

// blockingPop pops from the first non-empty key. When every key is empty
// the client waits for a push, unless it runs inside a script.
func blockingPop(c *Context, args [][]byte, left bool) (protocol.Value, error) {
	timeout, err := parseTimeout(args[len(args)-1])
	if err != nil {
		return protocol.Value{}, err
	}
	keys := keyStrings(args[:len(args)-1])
	ks := c.Keyspace()

	// A key that now holds another type is left for the waiters of
	// that type
	serve := func(key string) (protocol.Value, bool, error) {
		if ks.Type(key) != storage.ValueTypeList {
			return protocol.Value{}, false, nil
		}
		out, err := ks.Pop(key, left, 1)
		if err != nil || len(out) == 0 {
			return protocol.Value{}, false, err
		}
		return protocol.Array(protocol.BulkFromString(key), protocol.BulkString(out[0])), true, nil
	}

	for _, key := range keys {
		if _, err := ks.ListLen(key); err != nil {
			return protocol.Value{}, err
		}
		if reply, ok, err := serve(key); err != nil || ok {
			return reply, err
		}
	}
	if c.InScript() {
		return protocol.NullArray(), nil
	}
	c.block(keys, timeout, protocol.NullArray(), serve)
	return protocol.Value{}, nil
}

func cmdBRPopLPush(c *Context, args [][]byte) (protocol.Value, error) {
	timeout, err := parseTimeout(args[2])
	if err != nil {
		return protocol.Value{}, err
	}
	src, dst := string(args[0]), string(args[1])
	ks := c.Keyspace()

	// The source type is re-checked so a non-list source keeps waiting; a
	// non-list destination fails the command like the unblocked form
	var serve blocking.ServeFunc = func(string) (protocol.Value, bool, error) {
		if ks.Type(src) != storage.ValueTypeList {
			return protocol.Value{}, false, nil
		}
		value, ok, err := ks.ListMove(src, dst, false, true)
		if err != nil || !ok {
			return protocol.Value{}, false, err
		}
		return protocol.BulkString(value), true, nil
	}

	if _, err := ks.ListLen(src); err != nil {
		return protocol.Value{}, err
	}
	value, ok, err := ks.ListMove(src, dst, false, true)
	if err != nil {
		return protocol.Value{}, err
	}
	if ok {
		return protocol.BulkString(value), nil
	}
	if c.InScript() {
		return protocol.NullBulk(), nil
	}
	c.block([]string{src}, timeout, protocol.NullBulk(), serve)
	return protocol.Value{}, nil
}
