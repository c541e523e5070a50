package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Writer buffers RESP frames for an underlying stream. Nothing reaches the
// stream until Flush is called.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw: bufio.NewWriter(w),
	}
}

// WriteValue writes a RESP value to the output stream
func (w *Writer) WriteValue(v Value) error {
	switch v.Type {
	case TypeSimpleString:
		return w.writeLine('+', v.Data)
	case TypeError:
		return w.writeLine('-', v.Data)
	case TypeInteger:
		return w.WriteInteger(v.Integer)
	case TypeBulkString:
		if v.IsNull {
			return w.writeHeader('$', -1)
		}
		return w.WriteBulkString(v.Data)
	case TypeArray:
		if v.IsNull {
			return w.writeHeader('*', -1)
		}
		if err := w.writeHeader('*', int64(len(v.Array))); err != nil {
			return err
		}
		for _, item := range v.Array {
			if err := w.WriteValue(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type: %c", v.Type)
	}
}

// WriteError writes an error message. CR and LF would break framing, so
// they are replaced by spaces.
func (w *Writer) WriteError(msg string) error {
	clean := []byte(msg)
	for i, b := range clean {
		if b == '\r' || b == '\n' {
			clean[i] = ' '
		}
	}
	return w.writeLine('-', clean)
}

// WriteInteger writes an integer
func (w *Writer) WriteInteger(n int64) error {
	return w.writeHeader(':', n)
}

// WriteBulkString writes a bulk string
func (w *Writer) WriteBulkString(data []byte) error {
	if err := w.writeHeader('$', int64(len(data))); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteCommand writes a request as a RESP array of bulk strings
func (w *Writer) WriteCommand(args ...[]byte) error {
	if err := w.writeHeader('*', int64(len(args))); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.WriteBulkString(arg); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Buffered returns the number of bytes waiting for Flush
func (w *Writer) Buffered() int {
	return w.bw.Buffered()
}

func (w *Writer) writeLine(prefix byte, data []byte) error {
	if err := w.bw.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *Writer) writeHeader(prefix byte, n int64) error {
	if err := w.bw.WriteByte(prefix); err != nil {
		return err
	}
	var scratch [20]byte
	if _, err := w.bw.Write(strconv.AppendInt(scratch[:0], n, 10)); err != nil {
		return err
	}
	return w.writeCRLF()
}

// writeCRLF writes the CRLF terminator
func (w *Writer) writeCRLF() error {
	_, err := w.bw.WriteString(CRLF)
	return err
}
