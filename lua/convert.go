package lua

import (
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/birdisle/birdisle/protocol"
)

// toArg converts a redis.call argument. Only strings and numbers are
// accepted; numbers are formatted the way Redis formats them.
func toArg(lv lua.LValue) ([]byte, bool) {
	switch v := lv.(type) {
	case lua.LString:
		return []byte(v), true
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return strconv.AppendInt(nil, int64(f), 10), true
		}
		return strconv.AppendFloat(nil, f, 'g', 17, 64), true
	default:
		return nil, false
	}
}

// toLua converts a command reply into its Lua representation:
// integers become numbers, bulk strings become strings, nil replies
// become false, arrays become tables, status replies become {ok=...}
// and errors become {err=...}.
func toLua(L *lua.LState, v protocol.Value) lua.LValue {
	switch v.Type {
	case protocol.TypeInteger:
		return lua.LNumber(v.Integer)
	case protocol.TypeBulkString:
		if v.IsNull {
			return lua.LFalse
		}
		return lua.LString(v.Data)
	case protocol.TypeSimpleString:
		tbl := L.NewTable()
		tbl.RawSetString("ok", lua.LString(v.Data))
		return tbl
	case protocol.TypeError:
		return errorTable(L, string(v.Data))
	case protocol.TypeArray:
		if v.IsNull {
			return lua.LFalse
		}
		tbl := L.CreateTable(len(v.Array), 0)
		for i, item := range v.Array {
			tbl.RawSetInt(i+1, toLua(L, item))
		}
		return tbl
	default:
		return lua.LFalse
	}
}

// toReply converts a script result into a reply. Numbers are truncated
// to integers, true becomes 1, false and nil become a nil bulk string,
// tables become arrays up to their first nil unless they carry an err or
// ok field.
func toReply(lv lua.LValue) protocol.Value {
	switch v := lv.(type) {
	case lua.LNumber:
		return protocol.Integer(int64(v))
	case lua.LString:
		return protocol.BulkFromString(string(v))
	case lua.LBool:
		if v {
			return protocol.Integer(1)
		}
		return protocol.NullBulk()
	case *lua.LTable:
		if e, ok := v.RawGetString("err").(lua.LString); ok {
			return protocol.ErrorValue(string(e))
		}
		if s, ok := v.RawGetString("ok").(lua.LString); ok {
			return protocol.SimpleString(string(s))
		}
		items := make([]protocol.Value, 0, v.Len())
		for i := 1; ; i++ {
			item := v.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			items = append(items, toReply(item))
		}
		return protocol.Array(items...)
	default:
		return protocol.NullBulk()
	}
}
