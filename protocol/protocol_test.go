package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/birdisle/birdisle/protocol"
)

func TestRESPReader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected protocol.Value
	}{
		{
			name:     "simple string",
			input:    "+OK\r\n",
			expected: protocol.SimpleString("OK"),
		},
		{
			name:     "error",
			input:    "-ERR unknown command\r\n",
			expected: protocol.ErrorValue("ERR unknown command"),
		},
		{
			name:     "integer",
			input:    ":42\r\n",
			expected: protocol.Integer(42),
		},
		{
			name:     "negative integer",
			input:    ":-7\r\n",
			expected: protocol.Integer(-7),
		},
		{
			name:     "bulk string",
			input:    "$5\r\nhello\r\n",
			expected: protocol.BulkFromString("hello"),
		},
		{
			name:     "null bulk string",
			input:    "$-1\r\n",
			expected: protocol.NullBulk(),
		},
		{
			name:     "empty bulk string",
			input:    "$0\r\n\r\n",
			expected: protocol.BulkString([]byte{}),
		},
		{
			name:     "binary bulk string",
			input:    "$4\r\n\x00\r\n\xff\r\n",
			expected: protocol.BulkString([]byte{0, '\r', '\n', 0xff}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := protocol.NewReader(strings.NewReader(tt.input))
			value, err := reader.ReadNext()
			if err != nil {
				t.Fatalf("ReadNext() error = %v", err)
			}

			if value.Type != tt.expected.Type {
				t.Errorf("Type = %v, want %v", value.Type, tt.expected.Type)
			}

			if !bytes.Equal(value.Data, tt.expected.Data) {
				t.Errorf("Data = %v, want %v", value.Data, tt.expected.Data)
			}

			if value.Integer != tt.expected.Integer {
				t.Errorf("Integer = %v, want %v", value.Integer, tt.expected.Integer)
			}

			if value.IsNull != tt.expected.IsNull {
				t.Errorf("IsNull = %v, want %v", value.IsNull, tt.expected.IsNull)
			}
		})
	}
}

func TestReadCommand_Multibulk(t *testing.T) {
	input := "*3\r\n$3\r\nset\r\n$3\r\nkey\r\n$5\r\nvalue\r\n*1\r\n$4\r\nPING\r\n"

	reader := protocol.NewReader(strings.NewReader(input))
	cmd, err := reader.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand() error = %v", err)
	}

	if cmd.Name != "SET" {
		t.Errorf("Name = %s, want SET", cmd.Name)
	}
	expectedArgs := []string{"key", "value"}
	for i, expected := range expectedArgs {
		if string(cmd.Args[i]) != expected {
			t.Errorf("Args[%d] = %s, want %s", i, cmd.Args[i], expected)
		}
	}

	// Pipelined second request stays framed correctly
	cmd, err = reader.ReadCommand()
	if err != nil {
		t.Fatalf("second ReadCommand() error = %v", err)
	}
	if cmd.Name != "PING" || len(cmd.Args) != 0 {
		t.Errorf("second command = %v, want PING", cmd)
	}

	if _, err := reader.ReadCommand(); err != io.EOF {
		t.Errorf("expected io.EOF after last command, got %v", err)
	}
}

func TestReadCommand_Inline(t *testing.T) {
	reader := protocol.NewReader(strings.NewReader("\r\nget  foo\r\n"))
	cmd, err := reader.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand() error = %v", err)
	}
	if cmd.Name != "GET" || len(cmd.Args) != 1 || string(cmd.Args[0]) != "foo" {
		t.Errorf("inline command = %v, want GET foo", cmd)
	}
}

func TestReadCommand_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad multibulk length", "*x\r\n"},
		{"bad bulk length", "*1\r\n$abc\r\n"},
		{"missing CRLF after bulk", "*1\r\n$3\r\nGETxx"},
		{"integer as argument", "*2\r\n$3\r\nGET\r\n:1\r\n"},
		{"empty array", "*0\r\n"},
		{"unknown type inside array", "*1\r\n!3\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := protocol.NewReader(strings.NewReader(tt.input))
			_, err := reader.ReadCommand()
			var perr *protocol.Error
			if !errors.As(err, &perr) {
				t.Fatalf("expected *protocol.Error, got %v", err)
			}
			if !strings.HasPrefix(perr.Error(), "Protocol error: ") {
				t.Errorf("unexpected message %q", perr.Error())
			}
		})
	}
}

func TestRESPWriter(t *testing.T) {
	tests := []struct {
		name     string
		value    protocol.Value
		expected string
	}{
		{"simple string", protocol.OK(), "+OK\r\n"},
		{"error", protocol.ErrorValue("ERR boom"), "-ERR boom\r\n"},
		{"integer", protocol.Integer(42), ":42\r\n"},
		{"bulk string", protocol.BulkFromString("hello"), "$5\r\nhello\r\n"},
		{"null bulk", protocol.NullBulk(), "$-1\r\n"},
		{"null array", protocol.NullArray(), "*-1\r\n"},
		{"empty array", protocol.Array(), "*0\r\n"},
		{
			"nested array",
			protocol.Array(protocol.BulkFromString("a"), protocol.Integer(1), protocol.NullBulk()),
			"*3\r\n$1\r\na\r\n:1\r\n$-1\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writer := protocol.NewWriter(&buf)
			if err := writer.WriteValue(tt.value); err != nil {
				t.Fatalf("WriteValue() error = %v", err)
			}
			if buf.Len() != 0 {
				t.Errorf("data reached the stream before Flush")
			}
			if err := writer.Flush(); err != nil {
				t.Fatalf("Flush() error = %v", err)
			}
			if buf.String() != tt.expected {
				t.Errorf("WriteValue() = %q, want %q", buf.String(), tt.expected)
			}
		})
	}
}

func TestWriteErrorStripsNewlines(t *testing.T) {
	var buf bytes.Buffer
	writer := protocol.NewWriter(&buf)
	writer.WriteError("ERR line1\nline2\r")
	writer.Flush()

	if buf.String() != "-ERR line1 line2 \r\n" {
		t.Errorf("WriteError() = %q", buf.String())
	}
}

func TestWriteCommandRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writer := protocol.NewWriter(&buf)
	writer.WriteCommand([]byte("SET"), []byte("key"), []byte("value"))
	writer.Flush()

	expected := "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"
	if buf.String() != expected {
		t.Fatalf("WriteCommand() = %q, want %q", buf.String(), expected)
	}

	cmd, err := protocol.NewReader(&buf).ReadCommand()
	if err != nil {
		t.Fatal(err)
	}
	if cmd.String() != "SET key value" {
		t.Errorf("round trip = %q", cmd.String())
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		name     string
		value    protocol.Value
		expected string
	}{
		{"simple string", protocol.OK(), "OK"},
		{"integer", protocol.Integer(42), "42"},
		{"null bulk string", protocol.NullBulk(), "(nil)"},
		{"error", protocol.ErrorValue("ERR unknown command"), "ERR unknown command"},
		{"array", protocol.BulkArray([][]byte{[]byte("a"), []byte("b")}), "[a, b]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.value.String(); result != tt.expected {
				t.Errorf("String() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func BenchmarkReadCommand(b *testing.B) {
	input := "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader := protocol.NewReader(strings.NewReader(input))
		if _, err := reader.ReadCommand(); err != nil {
			b.Fatal(err)
		}
	}
}
