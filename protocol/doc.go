// Package protocol implements the Redis Serialization Protocol (RESP)
// used between birdisle instances and their clients.
//
// Requests are arrays of bulk strings (command name first); replies are
// simple strings, errors, integers, bulk strings, nulls or arrays of
// replies. Every frame is self-delimiting, so a streaming reader can frame
// successive requests on a connection without extra length prefixes.
//
// Basic usage:
//
//	reader := protocol.NewReader(conn)
//	writer := protocol.NewWriter(conn)
//	for {
//		cmd, err := reader.ReadCommand()
//		if err != nil {
//			break
//		}
//		writer.WriteValue(protocol.SimpleString("OK"))
//		writer.Flush()
//	}
package protocol
