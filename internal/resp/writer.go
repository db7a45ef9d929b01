package resp

import (
	"bufio"
	"io"
	"strconv"

	"github.com/eternalApril/moonview/internal/core"
)

// Encoder handles the serialization of values into an output stream
type Encoder struct {
	writer *bufio.Writer
}

// NewEncoder initializes an Encoder with a buffered writer
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		writer: bufio.NewWriter(w)}
}

// Write serializes v into the buffer. Strings are written as bulk strings,
// hashes and ordered sets as flat arrays of field/value or member/score
func (e *Encoder) Write(v core.Value) error {
	switch v.Type {
	case core.TypeInteger:
		return e.writeHeader(TypeInteger, v.Integer)

	case core.TypeError:
		return e.writeRaw(TypeError, v.Str)

	case core.TypeString:
		return e.writeBulk(v.Str)

	case core.TypeArray, core.TypeSet, core.TypeStream:
		if err := e.writeHeader(TypeArray, int64(len(v.Array))); err != nil {
			return err
		}
		for _, el := range v.Array {
			if err := e.Write(el); err != nil {
				return err
			}
		}
		return nil

	case core.TypeHash:
		if err := e.writeHeader(TypeArray, int64(len(v.Hash)*2)); err != nil {
			return err
		}
		for _, p := range v.Hash {
			if err := e.writeBulk(p.Field); err != nil {
				return err
			}
			if err := e.writeBulk(p.Value); err != nil {
				return err
			}
		}
		return nil

	case core.TypeZSet:
		if err := e.writeHeader(TypeArray, int64(len(v.ZSet)*2)); err != nil {
			return err
		}
		for _, m := range v.ZSet {
			if err := e.writeBulk(m.Member); err != nil {
				return err
			}
			if err := e.writeBulk(strconv.AppendFloat(nil, m.Score, 'g', -1, 64)); err != nil {
				return err
			}
		}
		return nil
	}

	_, err := e.writer.WriteString("$-1\r\n")
	return err
}

// Flush writes the buffered data to the underlying stream
func (e *Encoder) Flush() error {
	return e.writer.Flush()
}

// writeHeader writes the type prefix, numeric value, and CRLF
func (e *Encoder) writeHeader(prefix byte, n int64) error {
	if err := e.writer.WriteByte(prefix); err != nil {
		return err
	}
	e.appendInt(n)
	_, err := e.writer.WriteString("\r\n")
	return err
}

// writeRaw writes the type prefix, raw bytes, and CRLF (for SimpleString and Error)
func (e *Encoder) writeRaw(prefix byte, b []byte) error {
	if err := e.writer.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := e.writer.Write(b); err != nil {
		return err
	}
	_, err := e.writer.WriteString("\r\n")
	return err
}

func (e *Encoder) writeBulk(b []byte) error {
	if err := e.writeHeader(TypeBulkString, int64(len(b))); err != nil {
		return err
	}
	if _, err := e.writer.Write(b); err != nil {
		return err
	}
	_, err := e.writer.WriteString("\r\n")
	return err
}

// appendInt converts an integer to a string and writes it to the buffer
func (e *Encoder) appendInt(n int64) {
	b := e.writer.AvailableBuffer()
	b = strconv.AppendInt(b, n, 10)
	e.writer.Write(b) //nolint:errcheck
}
