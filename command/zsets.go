package command

import (
	"github.com/birdisle/birdisle/protocol"
	"github.com/birdisle/birdisle/storage"
)

func cmdZAdd(c *Context, args [][]byte) (protocol.Value, error) {
	var flags storage.ZAddFlags
	ch := false
	i := 1
options:
	for ; i < len(args); i++ {
		switch {
		case isOption(args[i], "NX"):
			flags.NX = true
		case isOption(args[i], "XX"):
			flags.XX = true
		case isOption(args[i], "GT"):
			flags.GT = true
		case isOption(args[i], "LT"):
			flags.LT = true
		case isOption(args[i], "CH"):
			ch = true
		case isOption(args[i], "INCR"):
			flags.Incr = true
		default:
			break options
		}
	}
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return protocol.Value{}, syntaxError()
	}
	if flags.NX && flags.XX {
		return protocol.Value{}, newError(KindSyntax, "ERR XX and NX options at the same time are not compatible")
	}
	if (flags.GT && flags.LT) || (flags.NX && (flags.GT || flags.LT)) {
		return protocol.Value{}, newError(KindSyntax, "ERR GT, LT, and/or NX options at the same time are not compatible")
	}
	if flags.Incr && len(rest) != 2 {
		return protocol.Value{}, newError(KindSyntax, "ERR INCR option supports a single increment-element pair")
	}

	members := make([]storage.ZSetMember, 0, len(rest)/2)
	for j := 0; j < len(rest); j += 2 {
		score, err := parseFloat(rest[j])
		if err != nil {
			return protocol.Value{}, err
		}
		members = append(members, storage.ZSetMember{Member: string(rest[j+1]), Score: score})
	}

	result, err := c.Keyspace().ZAdd(string(args[0]), members, flags)
	if err != nil {
		return protocol.Value{}, err
	}
	if flags.Incr {
		if result.Skipped {
			return protocol.NullBulk(), nil
		}
		return protocol.BulkFromString(storage.FormatScore(result.Score)), nil
	}
	if ch {
		return protocol.Integer(result.Added + result.Changed), nil
	}
	return protocol.Integer(result.Added), nil
}

func cmdZIncrBy(c *Context, args [][]byte) (protocol.Value, error) {
	delta, err := parseFloat(args[1])
	if err != nil {
		return protocol.Value{}, err
	}
	member := storage.ZSetMember{Member: string(args[2]), Score: delta}
	result, err := c.Keyspace().ZAdd(string(args[0]), []storage.ZSetMember{member}, storage.ZAddFlags{Incr: true})
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.BulkFromString(storage.FormatScore(result.Score)), nil
}

func cmdZRem(c *Context, args [][]byte) (protocol.Value, error) {
	n, err := c.Keyspace().ZRem(string(args[0]), keyStrings(args[1:])...)
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(n), nil
}

func cmdZScore(c *Context, args [][]byte) (protocol.Value, error) {
	score, ok, err := c.Keyspace().ZScore(string(args[0]), string(args[1]))
	if err != nil {
		return protocol.Value{}, err
	}
	if !ok {
		return protocol.NullBulk(), nil
	}
	return protocol.BulkFromString(storage.FormatScore(score)), nil
}

func cmdZCard(c *Context, args [][]byte) (protocol.Value, error) {
	n, err := c.Keyspace().ZCard(string(args[0]))
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(n), nil
}

func cmdZRank(c *Context, args [][]byte) (protocol.Value, error) {
	return zrank(c, args, false)
}

func cmdZRevRank(c *Context, args [][]byte) (protocol.Value, error) {
	return zrank(c, args, true)
}

func zrank(c *Context, args [][]byte, reverse bool) (protocol.Value, error) {
	rank, ok, err := c.Keyspace().ZRank(string(args[0]), string(args[1]), reverse)
	if err != nil {
		return protocol.Value{}, err
	}
	if !ok {
		return protocol.NullBulk(), nil
	}
	return protocol.Integer(rank), nil
}

// rangeQuery is a parsed ZRANGE family request
type rangeQuery struct {
	byScore    bool
	reverse    bool
	withScores bool
	limited    bool
	offset     int64
	count      int64
}

func (q *rangeQuery) parseOptions(args [][]byte, allowByScore, allowRev bool) error {
	for i := 0; i < len(args); i++ {
		switch {
		case isOption(args[i], "WITHSCORES"):
			q.withScores = true
		case isOption(args[i], "BYSCORE") && allowByScore:
			q.byScore = true
		case isOption(args[i], "REV") && allowRev:
			q.reverse = true
		case isOption(args[i], "LIMIT") && i+2 < len(args):
			offset, err := parseInt(args[i+1])
			if err != nil {
				return err
			}
			count, err := parseInt(args[i+2])
			if err != nil {
				return err
			}
			q.limited, q.offset, q.count = true, offset, count
			i += 2
		default:
			return syntaxError()
		}
	}
	return nil
}

func (q *rangeQuery) run(c *Context, key string, lo, hi []byte) (protocol.Value, error) {
	if q.limited && !q.byScore {
		return protocol.Value{}, newError(KindSyntax, "ERR syntax error, LIMIT is only supported in combination with either BYSCORE or BYLEX")
	}
	var (
		members []storage.ZSetMember
		err     error
	)
	if q.byScore {
		// reversed score ranges name the maximum first
		if q.reverse {
			lo, hi = hi, lo
		}
		min, perr := storage.ParseScoreBound(lo)
		if perr != nil {
			return protocol.Value{}, newError(KindNotANumber, "ERR min or max is not a float")
		}
		max, perr := storage.ParseScoreBound(hi)
		if perr != nil {
			return protocol.Value{}, newError(KindNotANumber, "ERR min or max is not a float")
		}
		count := int64(-1)
		offset := int64(0)
		if q.limited {
			offset, count = q.offset, q.count
			if offset < 0 {
				return protocol.Array(), nil
			}
		}
		members, err = c.Keyspace().ZRangeByScore(key, min, max, q.reverse, offset, count)
	} else {
		start, perr := parseInt(lo)
		if perr != nil {
			return protocol.Value{}, perr
		}
		stop, perr := parseInt(hi)
		if perr != nil {
			return protocol.Value{}, perr
		}
		members, err = c.Keyspace().ZRange(key, start, stop, q.reverse)
	}
	if err != nil {
		return protocol.Value{}, err
	}
	return membersReply(members, q.withScores), nil
}

func membersReply(members []storage.ZSetMember, withScores bool) protocol.Value {
	size := len(members)
	if withScores {
		size *= 2
	}
	items := make([]protocol.Value, 0, size)
	for _, m := range members {
		items = append(items, protocol.BulkFromString(m.Member))
		if withScores {
			items = append(items, protocol.BulkFromString(storage.FormatScore(m.Score)))
		}
	}
	return protocol.Array(items...)
}

func cmdZRange(c *Context, args [][]byte) (protocol.Value, error) {
	var q rangeQuery
	if err := q.parseOptions(args[3:], true, true); err != nil {
		return protocol.Value{}, err
	}
	return q.run(c, string(args[0]), args[1], args[2])
}

func cmdZRevRange(c *Context, args [][]byte) (protocol.Value, error) {
	q := rangeQuery{reverse: true}
	if err := q.parseOptions(args[3:], false, false); err != nil {
		return protocol.Value{}, err
	}
	return q.run(c, string(args[0]), args[1], args[2])
}

func cmdZRangeByScore(c *Context, args [][]byte) (protocol.Value, error) {
	q := rangeQuery{byScore: true}
	if err := q.parseOptions(args[3:], false, false); err != nil {
		return protocol.Value{}, err
	}
	return q.run(c, string(args[0]), args[1], args[2])
}

func cmdZRevRangeByScore(c *Context, args [][]byte) (protocol.Value, error) {
	q := rangeQuery{byScore: true, reverse: true}
	if err := q.parseOptions(args[3:], false, false); err != nil {
		return protocol.Value{}, err
	}
	return q.run(c, string(args[0]), args[1], args[2])
}

func cmdZCount(c *Context, args [][]byte) (protocol.Value, error) {
	min, err := storage.ParseScoreBound(args[1])
	if err != nil {
		return protocol.Value{}, newError(KindNotANumber, "ERR min or max is not a float")
	}
	max, err := storage.ParseScoreBound(args[2])
	if err != nil {
		return protocol.Value{}, newError(KindNotANumber, "ERR min or max is not a float")
	}
	n, err := c.Keyspace().ZCount(string(args[0]), min, max)
	if err != nil {
		return protocol.Value{}, err
	}
	return protocol.Integer(n), nil
}

func cmdZPopMin(c *Context, args [][]byte) (protocol.Value, error) {
	return zpop(c, args, false)
}

func cmdZPopMax(c *Context, args [][]byte) (protocol.Value, error) {
	return zpop(c, args, true)
}

func zpop(c *Context, args [][]byte, max bool) (protocol.Value, error) {
	if len(args) > 2 {
		return protocol.Value{}, syntaxError()
	}
	count, _, err := parseCount(args, 1)
	if err != nil {
		return protocol.Value{}, err
	}
	members, err := c.Keyspace().ZPop(string(args[0]), max, count)
	if err != nil {
		return protocol.Value{}, err
	}
	return membersReply(members, true), nil
}

func cmdBZPopMin(c *Context, args [][]byte) (protocol.Value, error) {
	return blockingZPop(c, args, false)
}

func cmdBZPopMax(c *Context, args [][]byte) (protocol.Value, error) {
	return blockingZPop(c, args, true)
}

func blockingZPop(c *Context, args [][]byte, max bool) (protocol.Value, error) {
	timeout, err := parseTimeout(args[len(args)-1])
	if err != nil {
		return protocol.Value{}, err
	}
	keys := keyStrings(args[:len(args)-1])
	ks := c.Keyspace()

	serve := func(key string) (protocol.Value, bool, error) {
		if ks.Type(key) != storage.ValueTypeZSet {
			return protocol.Value{}, false, nil
		}
		members, err := ks.ZPop(key, max, 1)
		if err != nil || len(members) == 0 {
			return protocol.Value{}, false, err
		}
		return protocol.Array(
			protocol.BulkFromString(key),
			protocol.BulkFromString(members[0].Member),
			protocol.BulkFromString(storage.FormatScore(members[0].Score)),
		), true, nil
	}

	for _, key := range keys {
		if _, err := ks.ZCard(key); err != nil {
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
