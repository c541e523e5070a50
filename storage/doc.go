// Package storage implements the typed in-memory keyspace of a birdisle
// instance.
//
// A key maps to exactly one value: a string, a list or a sorted set.
// Commands that expect a different type fail with ErrWrongType and leave
// the keyspace untouched. Lists and sorted sets that become empty are
// removed, so a key exists iff it holds a non-empty value.
//
// A Keyspace is not safe for concurrent use on its own. The owning instance
// serialises every call behind a single mutex; the background expiry cycle
// takes the same mutex (see WithLocker).
//
// Basic usage:
//
//	ks := storage.New()
//	defer ks.Close()
//	ks.Set("key", []byte("value"), nil)
//	value, ok, err := ks.GetString("key")
package storage
