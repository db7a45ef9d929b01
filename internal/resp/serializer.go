package resp

import (
	"bytes"

	"github.com/eternalApril/moonview/internal/core"
)

// Serialize encodes v into a standalone RESP payload
func Serialize(v core.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	if err := enc.Write(v); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// SerializeCommand encodes argv as an array of bulk strings
func SerializeCommand(argv ...string) ([]byte, error) {
	return Serialize(core.MakeStringArray(argv...))
}
