package memcached

import (
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/translator"
)

// NewGrammar returns the memcached command grammar.
// memcached cannot rename keys, RenameKey is left nil
func NewGrammar() translator.Grammar {
	return translator.Grammar{
		Name: "memcached",
		CreateKey: func(kv core.KeyValue) []string {
			exptime := "0"
			if ttl, ok := kv.Key.TTL(); ok {
				exptime = translator.Itoa(ttl)
			}
			return []string{SetCommand, kv.Key.Key().String(), "0", exptime, kv.ValueString()}
		},
		LoadKey: func(key core.NKey, _ core.ValueType) []string {
			return []string{GetCommand, key.Key().String()}
		},
		DeleteKey: func(key core.NKey) []string {
			return []string{DeleteCommand, key.Key().String()}
		},
		ChangeTTL: func(key core.NKey, ttl int64) []string {
			return []string{ExpireCommand, key.Key().String(), translator.Itoa(ttl)}
		},
		Scan: func(cursor uint64, pattern string, count uint64) []string {
			return []string{ScanCommand, translator.Utoa(cursor), "MATCH", pattern, "COUNT", translator.Utoa(count)}
		},
		TypeOf: func(key core.Key) []string {
			return []string{TypeCommand, key.String()}
		},
		TTLOf: func(key core.Key) []string {
			return []string{TTLCommand, key.String()}
		},
		KeyCount: func() []string {
			return []string{KeyCountCommand}
		},
		Info: func() []string {
			return []string{"STATS"}
		},
		Flush: func() []string {
			return []string{"FLUSH_ALL"}
		},
		LoadCommands: []string{GetCommand},
	}
}
