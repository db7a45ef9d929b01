package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/eternalApril/moonview/internal/core"
)

// Decoder reads values from a RESP stream
type Decoder struct {
	rd *bufio.Reader
}

func NewDecoder(rd io.Reader) *Decoder {
	return &Decoder{rd: bufio.NewReader(rd)}
}

// Read decodes the next value. Simple and bulk strings become String values,
// nil bulk strings and nil arrays become Null. io.EOF is returned only
// between values
func (d *Decoder) Read() (core.Value, error) {
	typ, err := d.rd.ReadByte()
	if err != nil {
		return core.Value{}, err
	}

	switch typ {
	case TypeSimpleString, TypeError:
		line, err := d.readLine()
		if err != nil {
			return core.Value{}, unexpectedEOF(err)
		}
		if typ == TypeError {
			return core.MakeError(string(line)), nil
		}
		return core.MakeBytes(line), nil

	case TypeInteger:
		n, err := d.readInteger()
		if err != nil {
			return core.Value{}, unexpectedEOF(err)
		}
		return core.MakeInteger(n), nil

	case TypeBulkString:
		return d.readBulk()

	case TypeArray:
		return d.readArray()
	}

	return core.Value{}, fmt.Errorf("%w: %q", ErrUnexpectedType, typ)
}

// readLine reads up to CRLF and returns the line without it
func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.rd.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, ErrInvalidEnding
	}

	return line[:len(line)-2], nil
}

func (d *Decoder) readInteger() (int64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}

	// Command with integer cant be empty
	if len(line) == 0 {
		return 0, ErrInvalidEnding
	}

	return strconv.ParseInt(string(line), 10, 64)
}

func (d *Decoder) readBulk() (core.Value, error) {
	n, err := d.readInteger()
	if err != nil {
		return core.Value{}, unexpectedEOF(err)
	}
	if n == -1 {
		return core.MakeNull(), nil
	}
	if n < 0 || n > maxBulkLen {
		return core.Value{}, fmt.Errorf("%w: bulk %d", ErrInvalidLength, n)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(d.rd, buf); err != nil {
		return core.Value{}, unexpectedEOF(err)
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return core.Value{}, ErrInvalidEnding
	}
	return core.MakeBytes(buf[:n]), nil
}

func (d *Decoder) readArray() (core.Value, error) {
	n, err := d.readInteger()
	if err != nil {
		return core.Value{}, unexpectedEOF(err)
	}
	if n == -1 {
		return core.MakeNull(), nil
	}
	if n < 0 {
		return core.Value{}, fmt.Errorf("%w: array %d", ErrInvalidLength, n)
	}

	values := make([]core.Value, 0, min(n, 1024))
	for i := int64(0); i < n; i++ {
		v, err := d.Read()
		if err != nil {
			return core.Value{}, unexpectedEOF(err)
		}
		values = append(values, v)
	}
	return core.MakeArray(values), nil
}

// unexpectedEOF turns an EOF inside a value into io.ErrUnexpectedEOF
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Buffered returns the number of bytes that can be read from the current buffer
func (d *Decoder) Buffered() int {
	return d.rd.Buffered()
}
