// Package backend holds the reply conventions shared by the backend command tables
package backend

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
)

// DefaultScanCount is the number of keys examined by a scan page without COUNT
const DefaultScanCount = 10

// OK is the simple status reply of successful writes
var OK = core.MakeString("OK")

// Reply appends v under out
func Reply(out *result.Node, v core.Value) error {
	result.AppendChild(out, v)
	return nil
}

// ReplyError appends an error reply under out and returns it as a BackendError
func ReplyError(out *result.Node, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	result.AppendChild(out, core.MakeError(msg))
	return core.NewBackendError(msg)
}

// ScanArgs are the arguments of a SCAN command
type ScanArgs struct {
	Cursor  uint64
	Pattern string
	Count   int
}

// ParseScanArgs parses "cursor [MATCH pattern] [COUNT n]"
func ParseScanArgs(argv []string) (ScanArgs, error) {
	args := ScanArgs{Pattern: "*", Count: DefaultScanCount}
	if len(argv) == 0 {
		return args, errors.New("ERR missing cursor")
	}

	cursor, err := strconv.ParseUint(argv[0], 10, 64)
	if err != nil {
		return args, errors.New("ERR invalid cursor")
	}
	args.Cursor = cursor

	for i := 1; i < len(argv); i += 2 {
		if i+1 >= len(argv) {
			return args, errors.New("ERR syntax error")
		}
		switch strings.ToUpper(argv[i]) {
		case "MATCH":
			args.Pattern = argv[i+1]
		case "COUNT":
			n, err := strconv.Atoi(argv[i+1])
			if err != nil || n < 1 {
				return args, errors.New("ERR value is not an integer or out of range")
			}
			args.Count = n
		default:
			return args, errors.New("ERR syntax error")
		}
	}
	return args, nil
}

// ScanReply builds the two element reply of a scan page: next cursor and keys
func ScanReply(next uint64, keys []string) core.Value {
	return core.MakeArray([]core.Value{
		core.MakeString(strconv.FormatUint(next, 10)),
		core.MakeStringArray(keys...),
	})
}

// ParseScanReply reads a reply built like ScanReply
func ParseScanReply(v core.Value) (uint64, []core.Key, error) {
	if v.IsError() {
		return 0, nil, core.NewBackendError(string(v.Str))
	}
	if v.Type != core.TypeArray || len(v.Array) != 2 {
		return 0, nil, fmt.Errorf("%w: unexpected scan reply %q", core.ErrParse, v.String())
	}

	s, ok := v.Array[0].AsString()
	if !ok {
		return 0, nil, fmt.Errorf("%w: unexpected scan cursor", core.ErrParse)
	}
	next, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: scan cursor %q", core.ErrParse, s)
	}

	list := v.Array[1]
	keys := make([]core.Key, 0, len(list.Array))
	for _, el := range list.Array {
		name, ok := el.AsString()
		if !ok {
			continue
		}
		keys = append(keys, core.MakeKey(name))
	}
	return next, keys, nil
}

// TTLSeconds converts a remaining duration into the integer TTL reply
func TTLSeconds(seconds float64) int64 {
	if seconds < 0 {
		return 0
	}
	return int64(seconds + 0.5)
}
