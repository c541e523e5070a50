// Package lua runs Redis-compatible Lua scripts on gopher-lua.
//
// Every script runs in a fresh interpreter with the base, table, string
// and math libraries, the KEYS and ARGV tables and the redis library:
// redis.call, redis.pcall, redis.error_reply, redis.status_reply,
// redis.sha1hex and redis.log. Commands issued by a script go through the
// same command table as client commands, inside the instance lock the
// EVAL already holds, so a script is atomic with respect to every other
// client.
//
// A script that raises an error leaves no partial writes behind: the
// keyspace journals every key the script touches and restores them.
package lua
