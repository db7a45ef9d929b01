package history

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/resp"
)

var (
	// ErrTruncated reports an incomplete last entry, usually left by a crash
	ErrTruncated = errors.New("history: truncated entry")
	ErrMalformed = errors.New("history: malformed entry")
)

// Load reads every entry of filename. A missing file is an empty history.
// On a truncated tail the complete entries are returned with ErrTruncated
func Load(filename string) ([]Entry, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck

	reader := resp.NewDecoder(file)
	var entries []Entry

	for {
		val, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return entries, ErrTruncated
			}
			return entries, err
		}

		e, err := decodeEntry(val)
		if err != nil {
			return entries, fmt.Errorf("entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// encodeEntry lays e out as [unix millis, connection, command, reply]
func encodeEntry(e Entry) core.Value {
	return core.MakeArray([]core.Value{
		core.MakeInteger(e.Time.UnixMilli()),
		core.MakeString(e.Connection),
		core.MakeString(e.Command),
		e.Reply,
	})
}

func decodeEntry(v core.Value) (Entry, error) {
	if v.Type != core.TypeArray || len(v.Array) != 4 {
		return Entry{}, ErrMalformed
	}

	ts := v.Array[0]
	conn, ok1 := v.Array[1].AsString()
	cmd, ok2 := v.Array[2].AsString()
	if ts.Type != core.TypeInteger || !ok1 || !ok2 {
		return Entry{}, ErrMalformed
	}

	return Entry{
		Time:       time.UnixMilli(ts.Integer),
		Connection: conn,
		Command:    cmd,
		Reply:      v.Array[3],
	}, nil
}
