package storage

import (
	"math"
	"math/big"
	"strconv"
	"time"
)

// GetString returns the string stored at key
func (ks *Keyspace) GetString(key string) ([]byte, bool, error) {
	v := ks.lookup(key)
	if v == nil {
		return nil, false, nil
	}
	sv, ok := v.Data.(*StringValue)
	if !ok {
		return nil, false, ErrWrongType
	}
	return sv.Data, true, nil
}

// Set stores a string, replacing any previous value of any type and its
// expiry
func (ks *Keyspace) Set(key string, value []byte, expiry *time.Time) {
	ks.store(key, &Value{
		Type:   ValueTypeString,
		Data:   &StringValue{Data: append([]byte(nil), value...)},
		Expiry: expiry,
	})
}

// SetKeepTTL stores a string but keeps the current expiry of key
func (ks *Keyspace) SetKeepTTL(key string, value []byte) {
	var expiry *time.Time
	if v := ks.lookup(key); v != nil {
		expiry = v.Expiry
	}
	ks.Set(key, value, expiry)
}

// Append appends to the string at key, creating it if needed. Returns the
// new length.
func (ks *Keyspace) Append(key string, value []byte) (int64, error) {
	current, ok, err := ks.GetString(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		ks.Set(key, value, nil)
		return int64(len(value)), nil
	}
	joined := make([]byte, 0, len(current)+len(value))
	joined = append(joined, current...)
	joined = append(joined, value...)
	ks.SetKeepTTL(key, joined)
	return int64(len(joined)), nil
}

// IncrBy adds delta to the integer stored at key
func (ks *Keyspace) IncrBy(key string, delta int64) (int64, error) {
	current, ok, err := ks.GetString(key)
	if err != nil {
		return 0, err
	}
	var n int64
	if ok {
		n, err = ParseInt(current)
		if err != nil {
			return 0, ErrNotInteger
		}
	}
	if (delta > 0 && n > math.MaxInt64-delta) || (delta < 0 && n < math.MinInt64-delta) {
		return 0, ErrOverflow
	}
	n += delta
	ks.SetKeepTTL(key, strconv.AppendInt(nil, n, 10))
	return n, nil
}

// IncrByFloat adds the decimal delta to the float stored at key and returns
// the new value in its canonical form. Both operands are parsed from their
// text and summed at long double precision, so adding a value and then its
// negation restores the original text.
func (ks *Keyspace) IncrByFloat(key string, delta []byte) ([]byte, error) {
	current, ok, err := ks.GetString(key)
	if err != nil {
		return nil, err
	}
	sum := new(big.Float).SetPrec(incrPrec)
	if ok {
		x, err := parseIncrFloat(current)
		if err != nil {
			return nil, ErrNotFloat
		}
		sum.Set(x)
	}
	d, err := parseIncrFloat(delta)
	if err != nil {
		return nil, err
	}
	sum.Add(sum, d)
	if f, _ := sum.Float64(); math.IsInf(f, 0) {
		return nil, ErrNaNOrInfinity
	}
	out := []byte(FormatFloat(sum))
	ks.SetKeepTTL(key, out)
	return out, nil
}
