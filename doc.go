// Package birdisle provides an embeddable, in-process key-value engine
// that speaks the Redis protocol.
//
// Each Instance owns its own keyspace and listens on an ephemeral loopback
// port, so any Redis client can talk to it while tests and tools stay free
// of an external server. Many independent instances can live in one
// process.
//
// Basic usage:
//
//	inst, err := birdisle.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Close()
//
//	rdb := redis.NewClient(&redis.Options{Addr: inst.Addr()})
//	rdb.Set(ctx, "greeting", "hello", 0)
//
//	// Or skip the socket entirely
//	reply, err := inst.Do(ctx, "GET", "greeting")
//
// The engine supports:
//
//   - Strings, counters and INCRBYFLOAT with locale-independent formatting
//   - Lists with BLPOP, BRPOP and BRPOPLPUSH
//   - Sorted sets with BZPOPMIN and BZPOPMAX
//   - Key expiry, KEYS patterns, INFO and FLUSHALL
//   - Lua scripting through EVAL, EVALSHA and SCRIPT
//
// Blocked clients are served first-come first-served. Close releases every
// connection and blocked client before returning.
//
// Default returns a lazily created instance shared by the whole process.
package birdisle
