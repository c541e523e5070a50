package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/birdisle/birdisle/protocol"
)

// RedisVersion is the server version reported to clients
const RedisVersion = "7.0.0"

func cmdPing(c *Context, args [][]byte) (protocol.Value, error) {
	switch len(args) {
	case 0:
		return protocol.SimpleString("PONG"), nil
	case 1:
		return protocol.BulkString(args[0]), nil
	default:
		return protocol.Value{}, ArityError("ping")
	}
}

func cmdEcho(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.BulkString(args[0]), nil
}

func cmdSelect(c *Context, args [][]byte) (protocol.Value, error) {
	db, err := parseInt(args[0])
	if err != nil {
		return protocol.Value{}, err
	}
	if db != 0 {
		return protocol.Value{}, newError(KindGeneric, "ERR DB index is out of range")
	}
	return protocol.OK(), nil
}

func cmdQuit(c *Context, args [][]byte) (protocol.Value, error) {
	if c.Session != nil {
		c.Session.quit = true
	}
	return protocol.OK(), nil
}

func cmdHello(c *Context, args [][]byte) (protocol.Value, error) {
	if len(args) > 0 {
		proto, err := parseInt(args[0])
		if err != nil {
			return protocol.Value{}, newError(KindGeneric, "ERR Protocol version is not an integer or out of range")
		}
		if proto != 2 {
			return protocol.Value{}, newError(KindGeneric, "NOPROTO sorry, this protocol version is not supported")
		}
		for i := 1; i < len(args); i++ {
			switch {
			case isOption(args[i], "AUTH") && i+2 < len(args):
				i += 2
			case isOption(args[i], "SETNAME") && i+1 < len(args):
				if err := setName(c, args[i+1]); err != nil {
					return protocol.Value{}, err
				}
				i++
			default:
				return protocol.Value{}, syntaxError()
			}
		}
	}

	id := int64(0)
	if c.Session != nil {
		id = int64(c.Session.ID)
	}
	return protocol.Array(
		protocol.BulkFromString("server"), protocol.BulkFromString("redis"),
		protocol.BulkFromString("version"), protocol.BulkFromString(RedisVersion),
		protocol.BulkFromString("proto"), protocol.Integer(2),
		protocol.BulkFromString("id"), protocol.Integer(id),
		protocol.BulkFromString("mode"), protocol.BulkFromString("standalone"),
		protocol.BulkFromString("role"), protocol.BulkFromString("master"),
		protocol.BulkFromString("modules"), protocol.Array(),
	), nil
}

func cmdClient(c *Context, args [][]byte) (protocol.Value, error) {
	sub := strings.ToUpper(string(args[0]))
	switch {
	case sub == "ID" && len(args) == 1:
		if c.Session == nil {
			return protocol.Integer(0), nil
		}
		return protocol.Integer(int64(c.Session.ID)), nil
	case sub == "GETNAME" && len(args) == 1:
		if c.Session == nil || c.Session.Name == "" {
			return protocol.NullBulk(), nil
		}
		return protocol.BulkFromString(c.Session.Name), nil
	case sub == "SETNAME" && len(args) == 2:
		if err := setName(c, args[1]); err != nil {
			return protocol.Value{}, err
		}
		return protocol.OK(), nil
	case sub == "SETINFO" && len(args) == 3:
		return protocol.OK(), nil
	case sub == "LIST" && len(args) == 1:
		return protocol.BulkFromString(clientList(c.d.sessionList())), nil
	case sub == "ID" || sub == "GETNAME" || sub == "SETNAME" || sub == "SETINFO" || sub == "LIST":
		return protocol.Value{}, newError(KindArity, "ERR wrong number of arguments for 'client|%s' command", strings.ToLower(sub))
	default:
		return protocol.Value{}, newError(KindSyntax, "ERR unknown subcommand '%s'. Try CLIENT HELP.", args[0])
	}
}

func setName(c *Context, name []byte) error {
	for _, ch := range name {
		if ch <= ' ' || ch > '~' {
			return newError(KindSyntax, "ERR Client names cannot contain spaces, newlines or special characters.")
		}
	}
	if c.Session != nil {
		c.Session.Name = string(name)
	}
	return nil
}

func clientList(sessions []Session) string {
	var b strings.Builder
	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintf(&b, "id=%d addr=%s name=%s age=%d cmd=%s\n",
			s.ID, s.Addr, s.Name, int64(now.Sub(s.Created)/time.Second), s.LastCommand)
	}
	return b.String()
}

func cmdInfo(c *Context, args [][]byte) (protocol.Value, error) {
	return protocol.BulkFromString(renderInfo(c.d.snapshot(), keyStrings(args))), nil
}

func cmdTime(c *Context, args [][]byte) (protocol.Value, error) {
	now := time.Now()
	return protocol.Array(
		protocol.BulkString(formatInt(now.Unix())),
		protocol.BulkString(formatInt(int64(now.Nanosecond()/1000))),
	), nil
}
