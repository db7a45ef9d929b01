package driver

import (
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
)

// Kind is the type of a driver request
type Kind int

const (
	LoadKeyspacePage Kind = iota + 1
	CreateKey
	LoadKey
	DeleteKey
	RenameKey
	ChangeTTL
	RunRawCommand

	LoadDatabases
	SelectDatabase
	ServerInfo
	FlushDatabase
)

var kindNames = map[Kind]string{
	LoadKeyspacePage: "load keyspace page",
	CreateKey:        "create key",
	LoadKey:          "load key",
	DeleteKey:        "delete key",
	RenameKey:        "rename key",
	ChangeTTL:        "change ttl",
	RunRawCommand:    "run raw command",
	LoadDatabases:    "load databases",
	SelectDatabase:   "select database",
	ServerInfo:       "server info",
	FlushDatabase:    "flush database",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown request"
}

// Request is one high level operation. Only the fields used by Kind are read
type Request struct {
	Kind Kind

	Key     core.NKey      // CreateKey, LoadKey, DeleteKey, RenameKey, ChangeTTL
	Value   core.Value     // CreateKey
	Hint    core.ValueType // LoadKey, TypeNull asks the backend
	NewName core.Key       // RenameKey
	TTL     int64          // ChangeTTL, NoTTL removes the expiration

	Command string // RunRawCommand

	Cursor  uint64 // LoadKeyspacePage
	Pattern string // LoadKeyspacePage, empty matches every key
	Count   uint64 // LoadKeyspacePage, 0 uses the driver page size

	Database int // SelectDatabase
}

// Property is a key attribute resolved by the keyspace page load
type Property uint8

const (
	PropertyType Property = 1 << iota
	PropertyTTL
)

// Page is one page of the keyspace
type Page struct {
	// Cursor continues the scan, 0 when the keyspace is exhausted
	Cursor uint64
	// Keys holds the discovered keys. The value of a key is an empty
	// container of its type, the key descriptor carries the TTL
	Keys []core.KeyValue
	// Missing flags, per key, the properties that could not be resolved
	Missing []Property
	// Total is the key count of the namespace, -1 when unknown
	Total int64
}

// Incomplete reports whether a property of some key is missing
func (p *Page) Incomplete() bool {
	for _, m := range p.Missing {
		if m != 0 {
			return true
		}
	}
	return false
}

// IsMissing reports whether property prop of key i could not be resolved
func (p *Page) IsMissing(i int, prop Property) bool {
	return i < len(p.Missing) && p.Missing[i]&prop != 0
}

// Response is the outcome of a request. Root is always set, even on error,
// and holds every command executed on behalf of the request
type Response struct {
	Root *result.Node

	Page      *Page          // LoadKeyspacePage
	KeyValue  *core.KeyValue // LoadKey
	Databases int            // LoadDatabases
}
