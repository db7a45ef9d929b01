package redis

import (
	"strconv"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/translator"
)

// NewGrammar returns the redis command grammar
func NewGrammar() translator.Grammar {
	return translator.Grammar{
		Name:      "redis",
		CreateKey: createKey,
		LoadKey:   loadKey,
		DeleteKey: func(key core.NKey) []string {
			return []string{"DEL", key.Key().String()}
		},
		RenameKey: func(key core.NKey, newName core.Key) []string {
			return []string{"RENAME", key.Key().String(), newName.String()}
		},
		ChangeTTL: func(key core.NKey, ttl int64) []string {
			if ttl == core.NoTTL {
				return []string{"PERSIST", key.Key().String()}
			}
			return []string{"EXPIRE", key.Key().String(), translator.Itoa(ttl)}
		},
		Scan: func(cursor uint64, pattern string, count uint64) []string {
			return []string{"SCAN", translator.Utoa(cursor), "MATCH", pattern, "COUNT", translator.Utoa(count)}
		},
		TypeOf: func(key core.Key) []string {
			return []string{"TYPE", key.String()}
		},
		TTLOf: func(key core.Key) []string {
			return []string{"TTL", key.String()}
		},
		KeyCount: func() []string {
			return []string{"DBSIZE"}
		},
		Databases: func() []string {
			return []string{"CONFIG", "GET", "databases"}
		},
		Select: func(db int) []string {
			return []string{"SELECT", strconv.Itoa(db)}
		},
		Info: func() []string {
			return []string{"INFO"}
		},
		Flush: func() []string {
			return []string{"FLUSHDB"}
		},
		LoadCommands: []string{
			"GET", "MGET", "GETRANGE",
			"LRANGE", "LINDEX",
			"SMEMBERS", "SRANDMEMBER",
			"ZRANGE", "ZREVRANGE", "ZRANGEBYSCORE",
			"HGET", "HMGET", "HGETALL", "HKEYS", "HVALS",
			"XRANGE", "XREVRANGE",
		},
	}
}

// createKey picks the write command matching the value type.
// Only plain strings carry the expiration inline
func createKey(kv core.KeyValue) []string {
	key := kv.Key.Key().String()
	v := kv.Value

	switch v.Type {
	case core.TypeArray:
		argv := []string{"RPUSH", key}
		for _, el := range v.Array {
			argv = append(argv, el.Render(" "))
		}
		return argv
	case core.TypeSet:
		argv := []string{"SADD", key}
		for _, el := range v.Array {
			argv = append(argv, el.Render(" "))
		}
		return argv
	case core.TypeZSet:
		argv := []string{"ZADD", key}
		for _, m := range v.ZSet {
			argv = append(argv, strconv.FormatFloat(m.Score, 'g', -1, 64), string(m.Member))
		}
		return argv
	case core.TypeHash:
		argv := []string{"HSET", key}
		for _, p := range v.Hash {
			argv = append(argv, string(p.Field), string(p.Value))
		}
		return argv
	}

	argv := []string{"SET", key, kv.ValueString()}
	if ttl, ok := kv.Key.TTL(); ok && ttl != core.NoTTL {
		argv = append(argv, "EX", translator.Itoa(ttl))
	}
	return argv
}

func loadKey(key core.NKey, hint core.ValueType) []string {
	k := key.Key().String()
	switch hint {
	case core.TypeArray:
		return []string{"LRANGE", k, "0", "-1"}
	case core.TypeSet:
		return []string{"SMEMBERS", k}
	case core.TypeZSet:
		return []string{"ZRANGE", k, "0", "-1", "WITHSCORES"}
	case core.TypeHash:
		return []string{"HGETALL", k}
	case core.TypeStream:
		return []string{"XRANGE", k, "-", "+"}
	}
	return []string{"GET", k}
}
