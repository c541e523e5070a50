package storage

import (
	"math"

	"github.com/tidwall/btree"
)

// ZSetMember represents a sorted set member with score
type ZSetMember struct {
	Member string
	Score  float64
}

// byScore orders members by (score, member)
func byScore(a, b ZSetMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// ZSetValue is a sorted set: a member to score map plus a B-tree ordered
// by (score, member) for rank and score range queries
type ZSetValue struct {
	scores map[string]float64
	tree   *btree.BTreeG[ZSetMember]
}

func newZSet() *ZSetValue {
	return &ZSetValue{
		scores: make(map[string]float64),
		tree: btree.NewBTreeGOptions[ZSetMember](byScore, btree.Options{
			NoLocks: true,
		}),
	}
}

// Len returns the number of members
func (z *ZSetValue) Len() int {
	return len(z.scores)
}

func (z *ZSetValue) clone() *ZSetValue {
	scores := make(map[string]float64, len(z.scores))
	for member, score := range z.scores {
		scores[member] = score
	}
	return &ZSetValue{scores: scores, tree: z.tree.Copy()}
}

// set inserts or updates member and reports whether it was new
func (z *ZSetValue) set(member string, score float64) bool {
	old, exists := z.scores[member]
	if exists {
		if old == score {
			return false
		}
		z.tree.Delete(ZSetMember{Member: member, Score: old})
	}
	z.scores[member] = score
	z.tree.Set(ZSetMember{Member: member, Score: score})
	return !exists
}

func (z *ZSetValue) delete(member string) bool {
	score, exists := z.scores[member]
	if !exists {
		return false
	}
	delete(z.scores, member)
	z.tree.Delete(ZSetMember{Member: member, Score: score})
	return true
}

// rangeByRank returns members whose rank lies in [from, to)
func (z *ZSetValue) rangeByRank(from, to int, reverse bool) []ZSetMember {
	out := make([]ZSetMember, 0, to-from)
	n := z.tree.Len()
	if reverse {
		pivot, _ := z.tree.GetAt(n - 1 - from)
		z.tree.Descend(pivot, func(item ZSetMember) bool {
			out = append(out, item)
			return len(out) < to-from
		})
		return out
	}
	pivot, _ := z.tree.GetAt(from)
	z.tree.Ascend(pivot, func(item ZSetMember) bool {
		out = append(out, item)
		return len(out) < to-from
	})
	return out
}

// rangeByScore walks members within [min, max] in score order, skipping
// offset matches and stopping after count matches (count < 0 means all)
func (z *ZSetValue) rangeByScore(min, max ScoreBound, reverse bool, offset, count int64, fn func(ZSetMember) bool) {
	visit := func(item ZSetMember) bool {
		if count == 0 {
			return false
		}
		if offset > 0 {
			offset--
			return true
		}
		if count > 0 {
			count--
		}
		return fn(item)
	}

	if !reverse {
		z.tree.Ascend(ZSetMember{Score: min.Value}, func(item ZSetMember) bool {
			if !min.aboveMin(item.Score) {
				return true
			}
			if !max.belowMax(item.Score) {
				return false
			}
			return visit(item)
		})
		return
	}

	iter := func(item ZSetMember) bool {
		if !max.belowMax(item.Score) {
			return true
		}
		if !min.aboveMin(item.Score) {
			return false
		}
		return visit(item)
	}
	if math.IsInf(max.Value, 1) {
		z.tree.Reverse(iter)
		return
	}
	// The pivot sorts after every member scored max.Value
	z.tree.Descend(ZSetMember{Score: math.Nextafter(max.Value, math.Inf(1))}, iter)
}

// zset returns the sorted set at key. With create set, a missing key
// yields a new, not yet stored, set.
func (ks *Keyspace) zset(key string, create bool) (*Value, *ZSetValue, error) {
	v := ks.lookup(key)
	if v == nil {
		if !create {
			return nil, nil, nil
		}
		z := newZSet()
		return &Value{Type: ValueTypeZSet, Data: z}, z, nil
	}
	z, ok := v.Data.(*ZSetValue)
	if !ok {
		return nil, nil, ErrWrongType
	}
	return v, z, nil
}

// ZAddFlags carries the ZADD modifiers
type ZAddFlags struct {
	NX   bool // only add new members
	XX   bool // only update existing members
	GT   bool // only update when the new score is greater
	LT   bool // only update when the new score is lower
	Incr bool // add the score to the current one (single member only)
}

// ZAddResult reports what ZAdd did
type ZAddResult struct {
	Added   int64
	Changed int64
	// Score is the resulting score in Incr mode; Skipped is set when the
	// flags prevented the increment
	Score   float64
	Skipped bool
}

// ZAdd adds or updates members of the sorted set at key
func (ks *Keyspace) ZAdd(key string, members []ZSetMember, flags ZAddFlags) (ZAddResult, error) {
	var result ZAddResult
	v, z, err := ks.zset(key, !flags.XX)
	if err != nil {
		return result, err
	}
	if v == nil {
		result.Skipped = true
		return result, nil
	}

	ks.record(key)
	for _, m := range members {
		old, exists := z.scores[m.Member]
		if (flags.NX && exists) || (flags.XX && !exists) {
			result.Skipped = true
			continue
		}
		score := m.Score
		if flags.Incr {
			if exists {
				score += old
			}
			if math.IsNaN(score) {
				return ZAddResult{}, ErrScoreNaN
			}
		}
		if exists && ((flags.GT && score <= old) || (flags.LT && score >= old)) {
			result.Skipped = true
			continue
		}
		if z.set(m.Member, score) {
			result.Added++
		} else if exists && old != score {
			result.Changed++
		}
		result.Score = score
	}

	if z.Len() > 0 {
		ks.shardFor(key).data[key] = v
		ks.markReady(key)
	}
	return result, nil
}

// ZRem removes members and returns how many existed
func (ks *Keyspace) ZRem(key string, members ...string) (int64, error) {
	v, z, err := ks.zset(key, false)
	if err != nil || v == nil {
		return 0, err
	}
	ks.record(key)
	removed := int64(0)
	for _, member := range members {
		if z.delete(member) {
			removed++
		}
	}
	ks.settle(key, v)
	return removed, nil
}

// ZScore returns the score of member
func (ks *Keyspace) ZScore(key, member string) (float64, bool, error) {
	_, z, err := ks.zset(key, false)
	if err != nil || z == nil {
		return 0, false, err
	}
	score, ok := z.scores[member]
	return score, ok, nil
}

// ZCard returns the number of members
func (ks *Keyspace) ZCard(key string) (int64, error) {
	_, z, err := ks.zset(key, false)
	if err != nil || z == nil {
		return 0, err
	}
	return int64(z.Len()), nil
}

// ZRank returns the 0-based rank of member, counted from the lowest score
// or, with reverse, from the highest
func (ks *Keyspace) ZRank(key, member string, reverse bool) (int64, bool, error) {
	_, z, err := ks.zset(key, false)
	if err != nil || z == nil {
		return 0, false, err
	}
	score, ok := z.scores[member]
	if !ok {
		return 0, false, nil
	}
	target := ZSetMember{Member: member, Score: score}
	rank := int64(0)
	z.tree.Scan(func(item ZSetMember) bool {
		if item == target {
			return false
		}
		rank++
		return true
	})
	if reverse {
		rank = int64(z.Len()) - 1 - rank
	}
	return rank, true, nil
}

// ZRange returns members with rank between start and stop inclusive
func (ks *Keyspace) ZRange(key string, start, stop int64, reverse bool) ([]ZSetMember, error) {
	_, z, err := ks.zset(key, false)
	if err != nil || z == nil {
		return []ZSetMember{}, err
	}
	from, to, ok := normalizeRange(start, stop, z.Len())
	if !ok {
		return []ZSetMember{}, nil
	}
	return z.rangeByRank(from, to, reverse), nil
}

// ZRangeByScore returns members whose score lies within [min, max]. With
// reverse, members are returned from the highest score. count < 0 means
// no limit.
func (ks *Keyspace) ZRangeByScore(key string, min, max ScoreBound, reverse bool, offset, count int64) ([]ZSetMember, error) {
	_, z, err := ks.zset(key, false)
	if err != nil || z == nil {
		return []ZSetMember{}, err
	}
	out := make([]ZSetMember, 0)
	z.rangeByScore(min, max, reverse, offset, count, func(m ZSetMember) bool {
		out = append(out, m)
		return true
	})
	return out, nil
}

// ZCount counts members whose score lies within [min, max]
func (ks *Keyspace) ZCount(key string, min, max ScoreBound) (int64, error) {
	_, z, err := ks.zset(key, false)
	if err != nil || z == nil {
		return 0, err
	}
	n := int64(0)
	z.rangeByScore(min, max, false, 0, -1, func(ZSetMember) bool {
		n++
		return true
	})
	return n, nil
}

// ZPop removes and returns up to count members with the lowest scores, or
// the highest with max set
func (ks *Keyspace) ZPop(key string, max bool, count int) ([]ZSetMember, error) {
	v, z, err := ks.zset(key, false)
	if err != nil || v == nil {
		return []ZSetMember{}, err
	}
	ks.record(key)
	out := make([]ZSetMember, 0, count)
	for len(out) < count {
		var item ZSetMember
		var ok bool
		if max {
			item, ok = z.tree.PopMax()
		} else {
			item, ok = z.tree.PopMin()
		}
		if !ok {
			break
		}
		delete(z.scores, item.Member)
		out = append(out, item)
	}
	ks.settle(key, v)
	return out, nil
}
