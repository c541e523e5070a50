package command

import (
	"strings"

	"github.com/birdisle/birdisle/protocol"
)

// splitKeys separates the key and argument lists of EVAL and EVALSHA
func splitKeys(args [][]byte) (keys, argv [][]byte, err error) {
	n, err := parseInt(args[0])
	if err != nil {
		return nil, nil, err
	}
	if n < 0 {
		return nil, nil, newError(KindGeneric, "ERR Number of keys can't be negative")
	}
	if n > int64(len(args)-1) {
		return nil, nil, newError(KindGeneric, "ERR Number of keys can't be greater than number of args")
	}
	return args[1 : 1+n], args[1+n:], nil
}

func scripting(c *Context) (Scripting, error) {
	if c.d.scripts == nil {
		return nil, newError(KindScript, "ERR scripting is not available")
	}
	return c.d.scripts, nil
}

func cmdEval(c *Context, args [][]byte) (protocol.Value, error) {
	s, err := scripting(c)
	if err != nil {
		return protocol.Value{}, err
	}
	keys, argv, err := splitKeys(args[1:])
	if err != nil {
		return protocol.Value{}, err
	}
	return s.Eval(c, args[0], keys, argv)
}

func cmdEvalSHA(c *Context, args [][]byte) (protocol.Value, error) {
	s, err := scripting(c)
	if err != nil {
		return protocol.Value{}, err
	}
	keys, argv, err := splitKeys(args[1:])
	if err != nil {
		return protocol.Value{}, err
	}
	return s.EvalSHA(c, strings.ToLower(string(args[0])), keys, argv)
}

func cmdScript(c *Context, args [][]byte) (protocol.Value, error) {
	s, err := scripting(c)
	if err != nil {
		return protocol.Value{}, err
	}
	sub := strings.ToUpper(string(args[0]))
	switch {
	case sub == "LOAD" && len(args) == 2:
		return protocol.BulkFromString(s.Load(args[1])), nil
	case sub == "EXISTS" && len(args) >= 2:
		items := make([]protocol.Value, len(args)-1)
		for i, sha := range args[1:] {
			exists := int64(0)
			if s.Exists(strings.ToLower(string(sha))) {
				exists = 1
			}
			items[i] = protocol.Integer(exists)
		}
		return protocol.Array(items...), nil
	case sub == "FLUSH" && len(args) <= 2:
		if len(args) == 2 && !isOption(args[1], "SYNC") && !isOption(args[1], "ASYNC") {
			return protocol.Value{}, syntaxError()
		}
		s.Flush()
		return protocol.OK(), nil
	case sub == "LOAD" || sub == "EXISTS" || sub == "FLUSH":
		return protocol.Value{}, newError(KindArity, "ERR wrong number of arguments for 'script|%s' command", strings.ToLower(sub))
	default:
		return protocol.Value{}, newError(KindSyntax, "ERR unknown subcommand '%s'. Try SCRIPT HELP.", args[0])
	}
}

// NoScriptError reports an EVALSHA for an unknown digest
func NoScriptError() *Error {
	return newError(KindNoScript, "NOSCRIPT No matching script. Please use EVAL.")
}

// ScriptError wraps a failure raised while running a script
func ScriptError(msg string, cause error) *Error {
	return &Error{Kind: KindScript, Message: msg, Err: cause}
}
