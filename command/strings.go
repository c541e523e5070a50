package command

import (
	"time"

	"github.com/birdisle/birdisle/protocol"
)

func cmdGet(c *Context, args [][]byte) (protocol.Value, error) {
	value, ok, err := c.Keyspace().GetString(string(args[0]))
	if err != nil {
		return protocol.Value{}, err
	}
	if !ok {
		return protocol.NullBulk(), nil
	}
	return protocol.BulkString(value), nil
}

// setOptions are the parsed modifiers of SET
type setOptions struct {
	nx, xx, get, keepTTL bool
	expiry               *time.Time
}

func parseSetOptions(c *Context, args [][]byte) (setOptions, error) {
	var opts setOptions
	now := c.Keyspace().Now()
	for i := 0; i < len(args); i++ {
		switch {
		case isOption(args[i], "NX") && !opts.xx:
			opts.nx = true
		case isOption(args[i], "XX") && !opts.nx:
			opts.xx = true
		case isOption(args[i], "GET"):
			opts.get = true
		case isOption(args[i], "KEEPTTL") && opts.expiry == nil:
			opts.keepTTL = true
		case (isOption(args[i], "EX") || isOption(args[i], "PX") ||
			isOption(args[i], "EXAT") || isOption(args[i], "PXAT")) &&
			opts.expiry == nil && !opts.keepTTL && i+1 < len(args):
			n, err := parseInt(args[i+1])
			if err != nil {
				return opts, err
			}
			if n <= 0 {
				return opts, newError(KindSyntax, "ERR invalid expire time in 'set' command")
			}
			var at time.Time
			switch {
			case isOption(args[i], "EX"):
				at = now.Add(time.Duration(n) * time.Second)
			case isOption(args[i], "PX"):
				at = now.Add(time.Duration(n) * time.Millisecond)
			case isOption(args[i], "EXAT"):
				at = time.Unix(n, 0)
			default:
				at = time.UnixMilli(n)
			}
			opts.expiry = &at
			i++
		default:
			return opts, syntaxError()
		}
	}
	return opts, nil
}

func cmdSet(c *Context, args [][]byte) (protocol.Value, error) {
	opts, err := parseSetOptions(c, args[2:])
	if err != nil {
		return protocol.Value{}, err
	}
	ks := c.Keyspace()
	key := string(args[0])

	old, exists, err := ks.GetString(key)
	if err != nil {
		// without GET, SET overwrites a value of any type
		if opts.get {
			return protocol.Value{}, err
		}
		exists = true
	}
	reply := protocol.OK()
	if opts.get {
		reply = protocol.NullBulk()
		if exists {
			reply = protocol.BulkString(append([]byte(nil), old...))
		}
	}

	if (opts.nx && exists) || (opts.xx && !exists) {
		if opts.get {
			return reply, nil
		}
		return protocol.NullBulk(), nil
	}
	if opts.keepTTL {
		ks.SetKeepTTL(key, args[1])
	} else {
		ks.Set(key, args[1], opts.expiry)
	}
	return reply, nil
}

func cmdSetNX(c *Context, args [][]byte) (protocol.Value, error) {
	ks := c.Keyspace()
	if ks.Exists(string(args[0])) > 0 {
		return protocol.Integer(0), nil
	}
	ks.Set(string(args[0]), args[1], nil)
	return protocol.Integer(1), nil
}

func cmdGetSet(c *Context, args [][]byte) (protocol.Value, error) {
	ks := c.Keyspace()
	old, ok, err := ks.GetString(string(args[0]))
	if err != nil {
		return protocol.Value{}, err
	}
	reply := protocol.NullBulk()
	if ok {
		reply = protocol.BulkString(append([]byte(nil), old...))
	}
	ks.Set(string(args[0]), args[1], nil)
	return reply, nil
}

func cmdMGet(c *Context, args [][]byte) (protocol.Value, error) {
	items := make([]protocol.Value, len(args))
	for i, arg := range args {
		value, ok, err := c.Keyspace().GetString(string(arg))
		if err != nil || !ok {
			items[i] = protocol.NullBulk()
			continue
		}
		items[i] = protocol.BulkString(value)
	}
	return protocol.Array(items...), nil
}

func cmdMSet(c *Context, args [][]byte) (protocol.Value, error) {
	if len(args)%2 != 0 {
		return protocol.Value{}, ArityError("mset")
	}
	for i := 0; i < len(args); i += 2 {
		c.Keyspace().Set(string(args[i]), args[i+1], nil)
	}
	return protocol.OK(), nil
}

func cmdAppend(c *Context, args [][]byte) (protocol.Value, error) {
	n, err := c.Keyspace().Append(string(args[0]), args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(n), nil
}

func cmdStrlen(c *Context, args [][]byte) (protocol.Value, error) {
	value, _, err := c.Keyspace().GetString(string(args[0]))
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(int64(len(value))), nil
}

func cmdIncr(c *Context, args [][]byte) (protocol.Value, error) {
	return incrBy(c, args[0], 1)
}

func cmdDecr(c *Context, args [][]byte) (protocol.Value, error) {
	return incrBy(c, args[0], -1)
}

func cmdIncrBy(c *Context, args [][]byte) (protocol.Value, error) {
	delta, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	return incrBy(c, args[0], delta)
}

func cmdDecrBy(c *Context, args [][]byte) (protocol.Value, error) {
	delta, err := parseInt(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	if delta == -delta && delta != 0 {
		return protocol.Value{}, newError(KindNotANumber, "ERR decrement would overflow")
	}
	return incrBy(c, args[0], -delta)
}

func incrBy(c *Context, key []byte, delta int64) (protocol.Value, error) {
	n, err := c.Keyspace().IncrBy(string(key), delta)
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(n), nil
}

func cmdIncrByFloat(c *Context, args [][]byte) (protocol.Value, error) {
	out, err := c.Keyspace().IncrByFloat(string(args[0]), args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.BulkString(out), nil
}
