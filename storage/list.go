package storage

import "bytes"

// ListValue is an ordered sequence of byte strings
type ListValue struct {
	elements [][]byte
}

// Len returns the number of elements
func (l *ListValue) Len() int {
	return len(l.elements)
}

func (l *ListValue) clone() *ListValue {
	return &ListValue{elements: append([][]byte(nil), l.elements...)}
}

// normalizeRange converts Redis style inclusive indexes, where negative
// values count from the tail, into a half-open slice range
func normalizeRange(start, stop int64, length int) (int, int, bool) {
	n := int64(length)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if start >= n || start > stop {
		return 0, 0, false
	}
	if stop >= n {
		stop = n - 1
	}
	return int(start), int(stop) + 1, true
}

// list returns the list at key. With create set, a missing key yields a
// new, not yet stored, list.
func (ks *Keyspace) list(key string, create bool) (*Value, *ListValue, error) {
	v := ks.lookup(key)
	if v == nil {
		if !create {
			return nil, nil, nil
		}
		l := &ListValue{}
		return &Value{Type: ValueTypeList, Data: l}, l, nil
	}
	l, ok := v.Data.(*ListValue)
	if !ok {
		return nil, nil, ErrWrongType
	}
	return v, l, nil
}

// Push adds values to the head (left) or tail of the list at key and
// returns the new length. With onlyExisting set, a missing key is left
// alone and 0 is returned.
func (ks *Keyspace) Push(key string, left, onlyExisting bool, values ...[]byte) (int64, error) {
	v, l, err := ks.list(key, !onlyExisting)
	if err != nil || v == nil {
		return 0, err
	}
	ks.record(key)
	for _, value := range values {
		elem := append([]byte(nil), value...)
		if left {
			l.elements = append(l.elements, nil)
			copy(l.elements[1:], l.elements)
			l.elements[0] = elem
		} else {
			l.elements = append(l.elements, elem)
		}
	}
	ks.shardFor(key).data[key] = v
	ks.markReady(key)
	return int64(len(l.elements)), nil
}

// Pop removes up to count elements from the head or tail of the list at
// key. A missing key yields a nil slice.
func (ks *Keyspace) Pop(key string, left bool, count int) ([][]byte, error) {
	v, l, err := ks.list(key, false)
	if err != nil || v == nil {
		return nil, err
	}
	if count > len(l.elements) {
		count = len(l.elements)
	}
	ks.record(key)
	out := make([][]byte, count)
	for i := 0; i < count; i++ {
		if left {
			out[i] = l.elements[0]
			l.elements[0] = nil
			l.elements = l.elements[1:]
		} else {
			last := len(l.elements) - 1
			out[i] = l.elements[last]
			l.elements[last] = nil
			l.elements = l.elements[:last]
		}
	}
	ks.settle(key, v)
	return out, nil
}

// ListLen returns the length of the list at key
func (ks *Keyspace) ListLen(key string) (int64, error) {
	_, l, err := ks.list(key, false)
	if err != nil || l == nil {
		return 0, err
	}
	return int64(l.Len()), nil
}

// ListRange returns the elements between start and stop inclusive
func (ks *Keyspace) ListRange(key string, start, stop int64) ([][]byte, error) {
	_, l, err := ks.list(key, false)
	if err != nil || l == nil {
		return [][]byte{}, err
	}
	from, to, ok := normalizeRange(start, stop, l.Len())
	if !ok {
		return [][]byte{}, nil
	}
	return append([][]byte(nil), l.elements[from:to]...), nil
}

// ListIndex returns the element at index
func (ks *Keyspace) ListIndex(key string, index int64) ([]byte, bool, error) {
	_, l, err := ks.list(key, false)
	if err != nil || l == nil {
		return nil, false, err
	}
	if index < 0 {
		index += int64(l.Len())
	}
	if index < 0 || index >= int64(l.Len()) {
		return nil, false, nil
	}
	return l.elements[index], true, nil
}

// ListSet replaces the element at index
func (ks *Keyspace) ListSet(key string, index int64, value []byte) error {
	_, l, err := ks.list(key, false)
	if err != nil {
		return err
	}
	if l == nil {
		return ErrNoSuchKey
	}
	if index < 0 {
		index += int64(l.Len())
	}
	if index < 0 || index >= int64(l.Len()) {
		return ErrIndexOutOfRange
	}
	ks.record(key)
	l.elements[index] = append([]byte(nil), value...)
	return nil
}

// ListRem removes elements equal to value. count > 0 removes from head to
// tail, count < 0 from tail to head, 0 removes all. Returns the number
// removed.
func (ks *Keyspace) ListRem(key string, count int64, value []byte) (int64, error) {
	v, l, err := ks.list(key, false)
	if err != nil || v == nil {
		return 0, err
	}
	limit := count
	if limit < 0 {
		limit = -limit
	}

	ks.record(key)
	removed := int64(0)
	kept := make([][]byte, 0, l.Len())
	if count >= 0 {
		for _, elem := range l.elements {
			if (limit == 0 || removed < limit) && bytes.Equal(elem, value) {
				removed++
				continue
			}
			kept = append(kept, elem)
		}
	} else {
		for i := l.Len() - 1; i >= 0; i-- {
			elem := l.elements[i]
			if removed < limit && bytes.Equal(elem, value) {
				removed++
				continue
			}
			kept = append(kept, elem)
		}
		for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
			kept[i], kept[j] = kept[j], kept[i]
		}
	}
	l.elements = kept
	ks.settle(key, v)
	return removed, nil
}

// ListTrim keeps only the elements between start and stop inclusive
func (ks *Keyspace) ListTrim(key string, start, stop int64) error {
	v, l, err := ks.list(key, false)
	if err != nil || v == nil {
		return err
	}
	ks.record(key)
	from, to, ok := normalizeRange(start, stop, l.Len())
	if !ok {
		l.elements = nil
	} else {
		l.elements = append([][]byte(nil), l.elements[from:to]...)
	}
	ks.settle(key, v)
	return nil
}

// ListMove pops an element from one end of src and pushes it onto one end
// of dst. Both types are checked before anything is mutated.
func (ks *Keyspace) ListMove(src, dst string, fromLeft, toLeft bool) ([]byte, bool, error) {
	srcValue, _, err := ks.list(src, false)
	if err != nil {
		return nil, false, err
	}
	if srcValue == nil {
		return nil, false, nil
	}
	if _, _, err := ks.list(dst, false); err != nil {
		return nil, false, err
	}
	popped, err := ks.Pop(src, fromLeft, 1)
	if err != nil {
		return nil, false, err
	}
	if _, err := ks.Push(dst, toLeft, false, popped[0]); err != nil {
		return nil, false, err
	}
	return popped[0], true, nil
}
