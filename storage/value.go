package storage

import "time"

// ValueType represents the Redis data type
type ValueType int

const (
	ValueTypeNone ValueType = iota
	ValueTypeString
	ValueTypeList
	ValueTypeZSet
)

// String returns the Redis-compatible type name
func (vt ValueType) String() string {
	switch vt {
	case ValueTypeString:
		return "string"
	case ValueTypeList:
		return "list"
	case ValueTypeZSet:
		return "zset"
	default:
		return "none"
	}
}

// Value represents a stored value with metadata
type Value struct {
	Type   ValueType
	Data   interface{} // *StringValue, *ListValue or *ZSetValue
	Expiry *time.Time
}

// IsExpired reports whether the value has expired at now
func (v *Value) IsExpired(now time.Time) bool {
	return v.Expiry != nil && !now.Before(*v.Expiry)
}

// empty reports whether an aggregate value holds no elements
func (v *Value) empty() bool {
	switch d := v.Data.(type) {
	case *ListValue:
		return d.Len() == 0
	case *ZSetValue:
		return d.Len() == 0
	default:
		return false
	}
}

// clone returns a deep copy of the value for the script journal
func (v *Value) clone() *Value {
	c := &Value{Type: v.Type}
	if v.Expiry != nil {
		expiry := *v.Expiry
		c.Expiry = &expiry
	}
	switch d := v.Data.(type) {
	case *StringValue:
		c.Data = &StringValue{Data: append([]byte(nil), d.Data...)}
	case *ListValue:
		c.Data = d.clone()
	case *ZSetValue:
		c.Data = d.clone()
	}
	return c
}

// StringValue represents a string value
type StringValue struct {
	Data []byte
}
