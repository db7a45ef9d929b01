package local

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eternalApril/moonview/internal/backend"
	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"github.com/eternalApril/moonview/internal/storage"
)

// maxTTLSeconds is the largest ttl that fits a time.Duration
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// Command names of the embedded engines
const (
	SetCommand      = "SET"
	GetCommand      = "GET"
	DelCommand      = "DEL"
	RenameCommand   = "RENAME"
	ExpireCommand   = "EXPIRE"
	PersistCommand  = "PERSIST"
	TTLCommand      = "TTL"
	TypeCommand     = "TYPE"
	ScanCommand     = "SCAN"
	KeyCountCommand = "DBKCOUNT"
)

// NewTable returns the command table of the embedded engines
func NewTable(name string) *command.Table[*Session] {
	return command.NewTable(name, []command.Descriptor[*Session]{
		{Name: SetCommand, MinArgs: 2, MaxArgs: 4, Summary: "SET key value [EX seconds]", Func: set},
		{Name: GetCommand, MinArgs: 1, MaxArgs: 1, ReadOnly: true, Summary: "GET key", Func: get},
		{Name: "MGET", MinArgs: 1, MaxArgs: core.Unbounded, ReadOnly: true, Summary: "MGET key [key ...]", Func: mget},
		{Name: DelCommand, MinArgs: 1, MaxArgs: core.Unbounded, Summary: "DEL key [key ...]", Func: del},
		{Name: "EXISTS", MinArgs: 1, MaxArgs: core.Unbounded, ReadOnly: true, Summary: "EXISTS key [key ...]", Func: exists},
		{Name: RenameCommand, MinArgs: 2, MaxArgs: 2, Summary: "RENAME key newkey", Func: rename},
		{Name: ExpireCommand, MinArgs: 2, MaxArgs: 2, Summary: "EXPIRE key seconds", Func: expire},
		{Name: PersistCommand, MinArgs: 1, MaxArgs: 1, Summary: "PERSIST key", Func: persist},
		{Name: TTLCommand, MinArgs: 1, MaxArgs: 1, ReadOnly: true, Summary: "TTL key", Func: ttl},
		{Name: TypeCommand, MinArgs: 1, MaxArgs: 1, ReadOnly: true, Summary: "TYPE key", Func: typeOf},
		{Name: ScanCommand, MinArgs: 1, MaxArgs: 5, ReadOnly: true, Summary: "SCAN cursor [MATCH pattern] [COUNT count]", Func: scan},
		{Name: "KEYS", MinArgs: 1, MaxArgs: 1, ReadOnly: true, Summary: "KEYS pattern", Func: keys},
		{Name: KeyCountCommand, MinArgs: 0, MaxArgs: 0, ReadOnly: true, Summary: "DBKCOUNT", Func: keyCount},
		{Name: "DBSIZE", MinArgs: 0, MaxArgs: 0, ReadOnly: true, Summary: "DBSIZE", Func: keyCount},
		{Name: "FLUSHDB", MinArgs: 0, MaxArgs: 0, Summary: "FLUSHDB", Func: flushdb},
		{Name: "INFO", MinArgs: 0, MaxArgs: 1, ReadOnly: true, Summary: "INFO [section]", Func: info},
		{Name: "PING", MinArgs: 0, MaxArgs: 1, ReadOnly: true, Summary: "PING [message]", Func: ping},
	})
}

func set(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	var ttl time.Duration
	switch len(argv) {
	case 2:
	case 4:
		if !strings.EqualFold(argv[2], "EX") {
			return backend.ReplyError(out, "ERR syntax error")
		}
		seconds, err := strconv.ParseInt(argv[3], 10, 64)
		if err != nil || seconds <= 0 || seconds > maxTTLSeconds {
			return backend.ReplyError(out, "ERR invalid expire time in 'set' command")
		}
		ttl = time.Duration(seconds) * time.Second
	default:
		return backend.ReplyError(out, "ERR syntax error")
	}

	if err := e.Set([]byte(argv[0]), []byte(argv[1]), ttl); err != nil {
		return engineErr("set", err)
	}
	return backend.Reply(out, backend.OK)
}

func get(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	value, ok, err := e.Get([]byte(argv[0]))
	if err != nil {
		return engineErr("get", err)
	}
	if !ok {
		return backend.Reply(out, core.MakeNull())
	}
	return backend.Reply(out, core.MakeBytes(value))
}

func mget(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	values := make([]core.Value, len(argv))
	for i, key := range argv {
		value, ok, err := e.Get([]byte(key))
		if err != nil {
			return engineErr("mget", err)
		}
		if ok {
			values[i] = core.MakeBytes(value)
		} else {
			values[i] = core.MakeNull()
		}
	}
	return backend.Reply(out, core.MakeArray(values))
}

func del(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	var n int64
	for _, key := range argv {
		ok, err := e.Delete([]byte(key))
		if err != nil {
			return engineErr("del", err)
		}
		if ok {
			n++
		}
	}
	return backend.Reply(out, core.MakeInteger(n))
}

func exists(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	var n int64
	for _, key := range argv {
		_, ok, err := e.Get([]byte(key))
		if err != nil {
			return engineErr("exists", err)
		}
		if ok {
			n++
		}
	}
	return backend.Reply(out, core.MakeInteger(n))
}

func rename(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	ok, err := e.Rename([]byte(argv[0]), []byte(argv[1]))
	if err != nil {
		return engineErr("rename", err)
	}
	if !ok {
		return backend.ReplyError(out, "ERR no such key")
	}
	return backend.Reply(out, backend.OK)
}

func expire(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	seconds, err := strconv.ParseInt(argv[1], 10, 64)
	if err != nil {
		return backend.ReplyError(out, "ERR value is not an integer or out of range")
	}
	if seconds > maxTTLSeconds {
		return backend.ReplyError(out, "ERR invalid expire time in 'expire' command")
	}

	// a non positive ttl deletes the key
	ttl := time.Duration(max(seconds, 0)) * time.Second

	ok, err := e.Expire([]byte(argv[0]), ttl)
	if err != nil {
		return engineErr("expire", err)
	}
	return backend.Reply(out, boolReply(ok))
}

func persist(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	ok, err := e.Persist([]byte(argv[0]))
	if err != nil {
		return engineErr("persist", err)
	}
	return backend.Reply(out, boolReply(ok))
}

func ttl(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	d, status, err := e.Expiry([]byte(argv[0]))
	if err != nil {
		return engineErr("ttl", err)
	}

	switch status {
	case storage.ExpNotFound:
		return backend.Reply(out, core.MakeInteger(-2))
	case storage.ExpNoTimeout:
		return backend.Reply(out, core.MakeInteger(-1))
	}
	return backend.Reply(out, core.MakeInteger(backend.TTLSeconds(d.Seconds())))
}

// typeOf reports "string" for every existing key, the engines store opaque bytes
func typeOf(_ context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	_, ok, err := e.Get([]byte(argv[0]))
	if err != nil {
		return engineErr("type", err)
	}
	if !ok {
		return backend.Reply(out, core.MakeString(core.TypeNull.String()))
	}
	return backend.Reply(out, core.MakeString(core.TypeString.String()))
}

// scan walks the ordered keyspace. The cursor is the position of the next key
// to examine; a page examines at most Count keys
func scan(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	args, err := backend.ParseScanArgs(argv)
	if err != nil {
		return backend.ReplyError(out, "%s", err.Error())
	}

	var (
		pos     uint64
		next    uint64
		matched []string
		ctxErr  error
	)
	pattern := []byte(args.Pattern)

	err = e.Keys(func(key []byte) bool {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			return false
		}
		if pos < args.Cursor {
			pos++
			return true
		}
		if pos-args.Cursor >= uint64(args.Count) {
			next = pos
			return false
		}
		pos++
		if core.MatchPattern(pattern, key) {
			matched = append(matched, string(key))
		}
		return true
	})
	if ctxErr != nil {
		return fmt.Errorf("%w: %w", core.ErrInterrupted, ctxErr)
	}
	if err != nil {
		return engineErr("scan", err)
	}

	return backend.Reply(out, backend.ScanReply(next, matched))
}

func keys(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	var (
		matched []string
		ctxErr  error
	)
	pattern := []byte(argv[0])
	err = e.Keys(func(key []byte) bool {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			return false
		}
		if core.MatchPattern(pattern, key) {
			matched = append(matched, string(key))
		}
		return true
	})
	if ctxErr != nil {
		return fmt.Errorf("%w: %w", core.ErrInterrupted, ctxErr)
	}
	if err != nil {
		return engineErr("keys", err)
	}
	return backend.Reply(out, core.MakeStringArray(matched...))
}

func keyCount(_ context.Context, s *Session, _ []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	n, err := e.Count()
	if err != nil {
		return engineErr("dbkcount", err)
	}
	return backend.Reply(out, core.MakeInteger(n))
}

func flushdb(_ context.Context, s *Session, _ []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	if err := e.Flush(); err != nil {
		return engineErr("flushdb", err)
	}
	return backend.Reply(out, backend.OK)
}

func info(_ context.Context, s *Session, _ []string, out *result.Node) error {
	e, err := s.Engine()
	if err != nil {
		return err
	}

	n, err := e.Count()
	if err != nil {
		return engineErr("info", err)
	}

	var sb strings.Builder
	sb.WriteString("# Server\r\n")
	fmt.Fprintf(&sb, "engine:%s\r\n", e.Name())
	sb.WriteString("# Keyspace\r\n")
	fmt.Fprintf(&sb, "keys:%d\r\n", n)
	return backend.Reply(out, core.MakeString(sb.String()))
}

func ping(_ context.Context, s *Session, argv []string, out *result.Node) error {
	if _, err := s.Engine(); err != nil {
		return err
	}
	if len(argv) == 1 {
		return backend.Reply(out, core.MakeString(argv[0]))
	}
	return backend.Reply(out, core.MakeString("PONG"))
}

func boolReply(ok bool) core.Value {
	if ok {
		return core.MakeInteger(1)
	}
	return core.MakeInteger(0)
}
