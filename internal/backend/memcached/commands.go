package memcached

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/eternalApril/moonview/internal/backend"
	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
)

// Command names used by the grammar
const (
	SetCommand      = "SET"
	GetCommand      = "GET"
	DeleteCommand   = "DELETE"
	ExpireCommand   = "EXPIRE"
	ScanCommand     = "SCAN"
	TypeCommand     = "TYPE"
	TTLCommand      = "TTL"
	KeyCountCommand = "DBKCOUNT"
)

// NewTable returns the memcached command table
func NewTable() *command.Table[*Session] {
	return command.NewTable("memcached", []command.Descriptor[*Session]{
		{Name: GetCommand, MinArgs: 1, MaxArgs: core.Unbounded, ReadOnly: true, Summary: "GET key [key ...]", Func: get},
		{Name: SetCommand, MinArgs: 4, MaxArgs: 4, Summary: "SET key flags exptime value", Func: store("set")},
		{Name: "ADD", MinArgs: 4, MaxArgs: 4, Summary: "ADD key flags exptime value", Func: store("add")},
		{Name: "REPLACE", MinArgs: 4, MaxArgs: 4, Summary: "REPLACE key flags exptime value", Func: store("replace")},
		{Name: "APPEND", MinArgs: 2, MaxArgs: 2, Summary: "APPEND key value", Func: concat("append")},
		{Name: "PREPEND", MinArgs: 2, MaxArgs: 2, Summary: "PREPEND key value", Func: concat("prepend")},
		{Name: DeleteCommand, MinArgs: 1, MaxArgs: 1, Summary: "DELETE key", Func: del},
		{Name: "INCR", MinArgs: 2, MaxArgs: 2, Summary: "INCR key value", Func: counter("incr")},
		{Name: "DECR", MinArgs: 2, MaxArgs: 2, Summary: "DECR key value", Func: counter("decr")},
		{Name: "TOUCH", MinArgs: 2, MaxArgs: 2, Summary: "TOUCH key exptime", Func: touch},
		{Name: ExpireCommand, MinArgs: 2, MaxArgs: 2, Summary: "EXPIRE key seconds", Func: touch},
		{Name: "FLUSH_ALL", MinArgs: 0, MaxArgs: 1, Summary: "FLUSH_ALL [delay]", Func: flushAll},
		{Name: "VERSION", MinArgs: 0, MaxArgs: 0, ReadOnly: true, Summary: "VERSION", Func: version},
		{Name: "STATS", MinArgs: 0, MaxArgs: 3, ReadOnly: true, Summary: "STATS [items|slabs|sizes|cachedump slab limit]", Func: stats},
		{Name: "VERBOSITY", MinArgs: 1, MaxArgs: 1, Summary: "VERBOSITY level", Func: verbosity},
		{Name: ScanCommand, MinArgs: 1, MaxArgs: 5, ReadOnly: true, Summary: "SCAN cursor [MATCH pattern] [COUNT count]", Func: scan},
		{Name: "KEYS", MinArgs: 1, MaxArgs: 1, ReadOnly: true, Summary: "KEYS pattern", Func: keys},
		{Name: TypeCommand, MinArgs: 1, MaxArgs: 1, ReadOnly: true, Summary: "TYPE key", Func: typeOf},
		{Name: TTLCommand, MinArgs: 1, MaxArgs: 1, ReadOnly: true, Summary: "TTL key", Func: ttl},
		{Name: KeyCountCommand, MinArgs: 0, MaxArgs: 0, ReadOnly: true, Summary: "DBKCOUNT", Func: keyCount},
	})
}

// MaxKeyLen is the longest key the text protocol accepts
const MaxKeyLen = 250

// validKey reports whether key can be written as a single protocol token
func validKey(key string) bool {
	if key == "" || len(key) > MaxKeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if c := key[i]; c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}

// checkKeys rejects keys that would break the request line before any I/O
func checkKeys(out *result.Node, keys ...string) error {
	for _, key := range keys {
		if !validKey(key) {
			return backend.ReplyError(out, "CLIENT_ERROR bad key")
		}
	}
	return nil
}

// reply appends the value, backend errors are appended as error values
func reply(out *result.Node, v core.Value, err error) error {
	if err != nil {
		if errors.Is(err, core.ErrBackend) {
			result.AppendChild(out, core.MakeError(err.Error()))
		}
		return err
	}
	return backend.Reply(out, v)
}

func get(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	if err := checkKeys(out, argv...); err != nil {
		return err
	}
	items, err := s.Get(ctx, argv...)
	if err != nil {
		return reply(out, core.Value{}, err)
	}

	byKey := make(map[string][]byte, len(items))
	for _, it := range items {
		byKey[it.Key] = it.Value
	}

	if len(argv) == 1 {
		if v, ok := byKey[argv[0]]; ok {
			return backend.Reply(out, core.MakeBytes(v))
		}
		return backend.Reply(out, core.MakeNull())
	}

	values := make([]core.Value, len(argv))
	for i, key := range argv {
		if v, ok := byKey[key]; ok {
			values[i] = core.MakeBytes(v)
		} else {
			values[i] = core.MakeNull()
		}
	}
	return backend.Reply(out, core.MakeArray(values))
}

func store(verb string) command.HandlerFunc[*Session] {
	return func(ctx context.Context, s *Session, argv []string, out *result.Node) error {
		if err := checkKeys(out, argv[0]); err != nil {
			return err
		}
		flags, err := strconv.ParseUint(argv[1], 10, 32)
		if err != nil {
			return backend.ReplyError(out, "CLIENT_ERROR bad command line format")
		}
		exptime, err := strconv.ParseInt(argv[2], 10, 64)
		if err != nil {
			return backend.ReplyError(out, "CLIENT_ERROR bad command line format")
		}

		status, err := s.Store(ctx, verb, argv[0], uint32(flags), exptime, []byte(argv[3]))
		return reply(out, core.MakeString(status), err)
	}
}

func concat(verb string) command.HandlerFunc[*Session] {
	return func(ctx context.Context, s *Session, argv []string, out *result.Node) error {
		if err := checkKeys(out, argv[0]); err != nil {
			return err
		}
		status, err := s.Store(ctx, verb, argv[0], 0, 0, []byte(argv[1]))
		return reply(out, core.MakeString(status), err)
	}
}

func del(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	if err := checkKeys(out, argv[0]); err != nil {
		return err
	}
	status, err := s.Simple(ctx, "delete "+argv[0])
	return reply(out, core.MakeString(status), err)
}

func counter(verb string) command.HandlerFunc[*Session] {
	return func(ctx context.Context, s *Session, argv []string, out *result.Node) error {
		if err := checkKeys(out, argv[0]); err != nil {
			return err
		}
		if _, err := strconv.ParseUint(argv[1], 10, 64); err != nil {
			return backend.ReplyError(out, "CLIENT_ERROR invalid numeric delta argument")
		}

		status, err := s.Simple(ctx, verb+" "+argv[0]+" "+argv[1])
		if err != nil {
			return reply(out, core.Value{}, err)
		}
		if n, err := strconv.ParseInt(status, 10, 64); err == nil {
			return backend.Reply(out, core.MakeInteger(n))
		}
		return backend.Reply(out, core.MakeString(status))
	}
}

func touch(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	if err := checkKeys(out, argv[0]); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(argv[1], 10, 64); err != nil {
		return backend.ReplyError(out, "CLIENT_ERROR invalid exptime argument")
	}
	status, err := s.Simple(ctx, "touch "+argv[0]+" "+argv[1])
	return reply(out, core.MakeString(status), err)
}

func flushAll(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	line := "flush_all"
	if len(argv) == 1 {
		if _, err := strconv.ParseUint(argv[0], 10, 32); err != nil {
			return backend.ReplyError(out, "CLIENT_ERROR bad command line format")
		}
		line += " " + argv[0]
	}
	status, err := s.Simple(ctx, line)
	return reply(out, core.MakeString(status), err)
}

func version(ctx context.Context, s *Session, _ []string, out *result.Node) error {
	status, err := s.Simple(ctx, "version")
	return reply(out, core.MakeString(strings.TrimPrefix(status, "VERSION ")), err)
}

func verbosity(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	if _, err := strconv.ParseUint(argv[0], 10, 32); err != nil {
		return backend.ReplyError(out, "CLIENT_ERROR bad command line format")
	}
	status, err := s.Simple(ctx, "verbosity "+argv[0])
	return reply(out, core.MakeString(status), err)
}

func stats(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	for _, arg := range argv {
		if !validKey(arg) {
			return backend.ReplyError(out, "CLIENT_ERROR bad command line format")
		}
	}
	pairs, err := s.Stats(ctx, argv...)
	if err != nil {
		return reply(out, core.Value{}, err)
	}

	hash := make([]core.Pair, len(pairs))
	for i, p := range pairs {
		hash[i] = core.Pair{Field: []byte(p[0]), Value: []byte(p[1])}
	}
	return backend.Reply(out, core.MakeHash(hash))
}

// scan pages over the sorted dump of the cached keys
func scan(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	args, err := backend.ParseScanArgs(argv)
	if err != nil {
		return backend.ReplyError(out, "%s", err.Error())
	}

	all, err := s.Keys(ctx)
	if err != nil {
		return reply(out, core.Value{}, err)
	}
	sort.Strings(all)

	start := args.Cursor
	if start > uint64(len(all)) {
		start = uint64(len(all))
	}
	end := start + uint64(args.Count)
	var next uint64
	if end < uint64(len(all)) {
		next = end
	} else {
		end = uint64(len(all))
	}

	pattern := []byte(args.Pattern)
	var matched []string
	for _, key := range all[start:end] {
		if core.MatchPattern(pattern, []byte(key)) {
			matched = append(matched, key)
		}
	}
	return backend.Reply(out, backend.ScanReply(next, matched))
}

func keys(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	all, err := s.Keys(ctx)
	if err != nil {
		return reply(out, core.Value{}, err)
	}
	sort.Strings(all)

	pattern := []byte(argv[0])
	var matched []string
	for _, key := range all {
		if core.MatchPattern(pattern, []byte(key)) {
			matched = append(matched, key)
		}
	}
	return backend.Reply(out, core.MakeStringArray(matched...))
}

func typeOf(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	if err := checkKeys(out, argv[0]); err != nil {
		return err
	}
	items, err := s.Get(ctx, argv[0])
	if err != nil {
		return reply(out, core.Value{}, err)
	}
	if len(items) == 0 {
		return backend.Reply(out, core.MakeString(core.TypeNull.String()))
	}
	return backend.Reply(out, core.MakeString(core.TypeString.String()))
}

func ttl(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	if err := checkKeys(out, argv[0]); err != nil {
		return err
	}
	n, err := s.MetaTTL(ctx, argv[0])
	return reply(out, core.MakeInteger(n), err)
}

func keyCount(ctx context.Context, s *Session, _ []string, out *result.Node) error {
	pairs, err := s.Stats(ctx)
	if err != nil {
		return reply(out, core.Value{}, err)
	}
	for _, p := range pairs {
		if p[0] == "curr_items" {
			n, err := strconv.ParseInt(p[1], 10, 64)
			if err != nil {
				return backend.ReplyError(out, "SERVER_ERROR bad curr_items %q", p[1])
			}
			return backend.Reply(out, core.MakeInteger(n))
		}
	}
	return backend.ReplyError(out, "SERVER_ERROR curr_items not reported")
}
