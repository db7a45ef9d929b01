package local

import (
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/translator"
)

// NewGrammar returns the command grammar of an embedded engine
func NewGrammar(name string) translator.Grammar {
	return translator.Grammar{
		Name: name,
		CreateKey: func(kv core.KeyValue) []string {
			argv := []string{SetCommand, kv.Key.Key().String(), kv.ValueString()}
			if ttl, ok := kv.Key.TTL(); ok && ttl != core.NoTTL {
				argv = append(argv, "EX", translator.Itoa(ttl))
			}
			return argv
		},
		LoadKey: func(key core.NKey, _ core.ValueType) []string {
			return []string{GetCommand, key.Key().String()}
		},
		DeleteKey: func(key core.NKey) []string {
			return []string{DelCommand, key.Key().String()}
		},
		RenameKey: func(key core.NKey, newName core.Key) []string {
			return []string{RenameCommand, key.Key().String(), newName.String()}
		},
		ChangeTTL: func(key core.NKey, ttl int64) []string {
			if ttl == core.NoTTL {
				return []string{PersistCommand, key.Key().String()}
			}
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
			return []string{"INFO"}
		},
		Flush: func() []string {
			return []string{"FLUSHDB"}
		},
		LoadCommands: []string{GetCommand, "MGET"},
	}
}
