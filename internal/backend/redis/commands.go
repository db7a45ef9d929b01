package redis

import (
	"context"
	"errors"
	"strings"

	"github.com/eternalApril/moonview/internal/backend"
	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
)

const many = core.Unbounded

// row is a compact descriptor; arities count the arguments after the name
type row struct {
	name     string
	min, max int
	readOnly bool
	summary  string
}

var rows = []row{
	// keys
	{"DEL", 1, many, false, "DEL key [key ...]"},
	{"UNLINK", 1, many, false, "UNLINK key [key ...]"},
	{"EXISTS", 1, many, true, "EXISTS key [key ...]"},
	{"EXPIRE", 2, 3, false, "EXPIRE key seconds [NX|XX|GT|LT]"},
	{"PEXPIRE", 2, 3, false, "PEXPIRE key milliseconds [NX|XX|GT|LT]"},
	{"EXPIREAT", 2, 3, false, "EXPIREAT key unix-time-seconds [NX|XX|GT|LT]"},
	{"PERSIST", 1, 1, false, "PERSIST key"},
	{"TTL", 1, 1, true, "TTL key"},
	{"PTTL", 1, 1, true, "PTTL key"},
	{"TYPE", 1, 1, true, "TYPE key"},
	{"RENAME", 2, 2, false, "RENAME key newkey"},
	{"RENAMENX", 2, 2, false, "RENAMENX key newkey"},
	{"KEYS", 1, 1, true, "KEYS pattern"},
	{"SCAN", 1, 7, true, "SCAN cursor [MATCH pattern] [COUNT count] [TYPE type]"},
	{"RANDOMKEY", 0, 0, true, "RANDOMKEY"},
	{"TOUCH", 1, many, true, "TOUCH key [key ...]"},
	{"COPY", 2, 5, false, "COPY source destination [DB destination-db] [REPLACE]"},
	{"MOVE", 2, 2, false, "MOVE key db"},
	{"DUMP", 1, 1, true, "DUMP key"},
	{"OBJECT ENCODING", 1, 1, true, "OBJECT ENCODING key"},
	{"OBJECT FREQ", 1, 1, true, "OBJECT FREQ key"},
	{"OBJECT IDLETIME", 1, 1, true, "OBJECT IDLETIME key"},

	// strings
	{"GET", 1, 1, true, "GET key"},
	{"SET", 2, 8, false, "SET key value [NX|XX] [GET] [EX seconds|PX milliseconds|KEEPTTL]"},
	{"SETEX", 3, 3, false, "SETEX key seconds value"},
	{"PSETEX", 3, 3, false, "PSETEX key milliseconds value"},
	{"SETNX", 2, 2, false, "SETNX key value"},
	{"MGET", 1, many, true, "MGET key [key ...]"},
	{"MSET", 2, many, false, "MSET key value [key value ...]"},
	{"GETSET", 2, 2, false, "GETSET key value"},
	{"GETDEL", 1, 1, false, "GETDEL key"},
	{"GETEX", 1, 3, false, "GETEX key [EX seconds|PX milliseconds|PERSIST]"},
	{"APPEND", 2, 2, false, "APPEND key value"},
	{"STRLEN", 1, 1, true, "STRLEN key"},
	{"INCR", 1, 1, false, "INCR key"},
	{"DECR", 1, 1, false, "DECR key"},
	{"INCRBY", 2, 2, false, "INCRBY key increment"},
	{"DECRBY", 2, 2, false, "DECRBY key decrement"},
	{"INCRBYFLOAT", 2, 2, false, "INCRBYFLOAT key increment"},
	{"GETRANGE", 3, 3, true, "GETRANGE key start end"},
	{"SETRANGE", 3, 3, false, "SETRANGE key offset value"},

	// lists
	{"LPUSH", 2, many, false, "LPUSH key element [element ...]"},
	{"RPUSH", 2, many, false, "RPUSH key element [element ...]"},
	{"LPOP", 1, 2, false, "LPOP key [count]"},
	{"RPOP", 1, 2, false, "RPOP key [count]"},
	{"LRANGE", 3, 3, true, "LRANGE key start stop"},
	{"LLEN", 1, 1, true, "LLEN key"},
	{"LINDEX", 2, 2, true, "LINDEX key index"},
	{"LSET", 3, 3, false, "LSET key index element"},
	{"LREM", 3, 3, false, "LREM key count element"},
	{"LTRIM", 3, 3, false, "LTRIM key start stop"},
	{"LINSERT", 4, 4, false, "LINSERT key BEFORE|AFTER pivot element"},

	// sets
	{"SADD", 2, many, false, "SADD key member [member ...]"},
	{"SREM", 2, many, false, "SREM key member [member ...]"},
	{"SMEMBERS", 1, 1, true, "SMEMBERS key"},
	{"SISMEMBER", 2, 2, true, "SISMEMBER key member"},
	{"SCARD", 1, 1, true, "SCARD key"},
	{"SPOP", 1, 2, false, "SPOP key [count]"},
	{"SRANDMEMBER", 1, 2, true, "SRANDMEMBER key [count]"},
	{"SINTER", 1, many, true, "SINTER key [key ...]"},
	{"SUNION", 1, many, true, "SUNION key [key ...]"},
	{"SDIFF", 1, many, true, "SDIFF key [key ...]"},
	{"SSCAN", 2, 6, true, "SSCAN key cursor [MATCH pattern] [COUNT count]"},

	// sorted sets
	{"ZADD", 3, many, false, "ZADD key [NX|XX] [GT|LT] [CH] [INCR] score member [score member ...]"},
	{"ZREM", 2, many, false, "ZREM key member [member ...]"},
	{"ZRANGE", 3, 8, true, "ZRANGE key start stop [BYSCORE|BYLEX] [REV] [LIMIT offset count] [WITHSCORES]"},
	{"ZREVRANGE", 3, 4, true, "ZREVRANGE key start stop [WITHSCORES]"},
	{"ZRANGEBYSCORE", 3, 7, true, "ZRANGEBYSCORE key min max [WITHSCORES] [LIMIT offset count]"},
	{"ZREVRANGEBYSCORE", 3, 7, true, "ZREVRANGEBYSCORE key max min [WITHSCORES] [LIMIT offset count]"},
	{"ZSCORE", 2, 2, true, "ZSCORE key member"},
	{"ZCARD", 1, 1, true, "ZCARD key"},
	{"ZCOUNT", 3, 3, true, "ZCOUNT key min max"},
	{"ZINCRBY", 3, 3, false, "ZINCRBY key increment member"},
	{"ZRANK", 2, 3, true, "ZRANK key member [WITHSCORE]"},
	{"ZSCAN", 2, 6, true, "ZSCAN key cursor [MATCH pattern] [COUNT count]"},

	// hashes
	{"HSET", 3, many, false, "HSET key field value [field value ...]"},
	{"HSETNX", 3, 3, false, "HSETNX key field value"},
	{"HGET", 2, 2, true, "HGET key field"},
	{"HMGET", 2, many, true, "HMGET key field [field ...]"},
	{"HGETALL", 1, 1, true, "HGETALL key"},
	{"HDEL", 2, many, false, "HDEL key field [field ...]"},
	{"HEXISTS", 2, 2, true, "HEXISTS key field"},
	{"HLEN", 1, 1, true, "HLEN key"},
	{"HKEYS", 1, 1, true, "HKEYS key"},
	{"HVALS", 1, 1, true, "HVALS key"},
	{"HINCRBY", 3, 3, false, "HINCRBY key field increment"},
	{"HSCAN", 2, 6, true, "HSCAN key cursor [MATCH pattern] [COUNT count]"},

	// pub/sub
	{"PUBLISH", 2, 2, false, "PUBLISH channel message"},
	{"PUBSUB CHANNELS", 0, 1, true, "PUBSUB CHANNELS [pattern]"},
	{"PUBSUB NUMSUB", 0, many, true, "PUBSUB NUMSUB [channel ...]"},

	// streams
	{"XADD", 4, many, false, "XADD key [NOMKSTREAM] [MAXLEN|MINID [=|~] threshold] *|id field value [field value ...]"},
	{"XRANGE", 3, 5, true, "XRANGE key start end [COUNT count]"},
	{"XREVRANGE", 3, 5, true, "XREVRANGE key end start [COUNT count]"},
	{"XLEN", 1, 1, true, "XLEN key"},
	{"XDEL", 2, many, false, "XDEL key id [id ...]"},
	{"XTRIM", 3, 6, false, "XTRIM key MAXLEN|MINID [=|~] threshold [LIMIT count]"},

	// server and connection
	{"PING", 0, 1, true, "PING [message]"},
	{"ECHO", 1, 1, true, "ECHO message"},
	{"DBSIZE", 0, 0, true, "DBSIZE"},
	{"INFO", 0, many, true, "INFO [section ...]"},
	{"FLUSHDB", 0, 1, false, "FLUSHDB [ASYNC|SYNC]"},
	{"FLUSHALL", 0, 1, false, "FLUSHALL [ASYNC|SYNC]"},
	{"CONFIG GET", 1, many, true, "CONFIG GET parameter [parameter ...]"},
	{"CONFIG SET", 2, many, false, "CONFIG SET parameter value [parameter value ...]"},
	{"CONFIG RESETSTAT", 0, 0, false, "CONFIG RESETSTAT"},
	{"CLIENT LIST", 0, many, true, "CLIENT LIST [TYPE type] [ID id ...]"},
	{"CLIENT GETNAME", 0, 0, true, "CLIENT GETNAME"},
	{"CLIENT SETNAME", 1, 1, false, "CLIENT SETNAME connection-name"},
	{"CLIENT ID", 0, 0, true, "CLIENT ID"},
	{"CLIENT KILL", 1, many, false, "CLIENT KILL ip:port | [ID client-id] ..."},
	{"SLOWLOG GET", 0, 1, true, "SLOWLOG GET [count]"},
	{"SLOWLOG LEN", 0, 0, true, "SLOWLOG LEN"},
	{"SLOWLOG RESET", 0, 0, false, "SLOWLOG RESET"},
	{"MEMORY USAGE", 1, 3, true, "MEMORY USAGE key [SAMPLES count]"},
	{"COMMAND COUNT", 0, 0, true, "COMMAND COUNT"},
	{"TIME", 0, 0, true, "TIME"},
	{"LASTSAVE", 0, 0, true, "LASTSAVE"},
	{"SAVE", 0, 0, false, "SAVE"},
	{"BGSAVE", 0, 1, false, "BGSAVE [SCHEDULE]"},
	{"ROLE", 0, 0, true, "ROLE"},
}

// NewTable returns the redis command table
func NewTable() *command.Table[*Session] {
	descriptors := make([]command.Descriptor[*Session], 0, len(rows)+1)
	for _, r := range rows {
		descriptors = append(descriptors, command.Descriptor[*Session]{
			Name:     r.name,
			MinArgs:  r.min,
			MaxArgs:  r.max,
			ReadOnly: r.readOnly,
			Summary:  r.summary,
			Func:     forward(r.name),
		})
	}

	descriptors = append(descriptors, command.Descriptor[*Session]{
		Name: "SELECT", MinArgs: 1, MaxArgs: 1, Summary: "SELECT index", Func: selectDB,
	})

	return command.NewTable("redis", descriptors)
}

// forward sends the command unchanged and appends the shaped reply
func forward(name string) command.HandlerFunc[*Session] {
	words := strings.Fields(name)
	return func(ctx context.Context, s *Session, argv []string, out *result.Node) error {
		full := make([]string, 0, len(words)+len(argv))
		full = append(full, words...)
		full = append(full, argv...)

		v, err := s.Do(ctx, full)
		if err != nil && !isBackend(err) {
			return err
		}
		result.AppendChild(out, v)
		return err
	}
}

func selectDB(ctx context.Context, s *Session, argv []string, out *result.Node) error {
	db, ok := parseDB(argv[0])
	if !ok {
		return backend.ReplyError(out, "ERR DB index is out of range")
	}
	if err := s.Select(ctx, db); err != nil {
		if isBackend(err) {
			result.AppendChild(out, core.MakeError(err.Error()))
		}
		return err
	}
	return backend.Reply(out, backend.OK)
}

func isBackend(err error) bool {
	return errors.Is(err, core.ErrBackend)
}
