package core

import (
	"strconv"
	"strings"
)

// ValueType tags the variant held by a Value
type ValueType byte

const (
	TypeNull ValueType = iota
	TypeString
	TypeInteger
	TypeArray
	TypeSet
	TypeHash
	TypeZSet
	TypeError
	TypeStream
)

var valueTypeNames = map[ValueType]string{
	TypeNull:    "none",
	TypeString:  "string",
	TypeInteger: "integer",
	TypeArray:   "list",
	TypeSet:     "set",
	TypeHash:    "hash",
	TypeZSet:    "zset",
	TypeError:   "error",
	TypeStream:  "stream",
}

// String returns the name a backend uses for the type ("string", "list", "zset"...)
func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseValueType maps a type name reported by a backend (TYPE command) to a ValueType.
// Unknown or empty names map to TypeNull
func ParseValueType(name string) ValueType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string":
		return TypeString
	case "list":
		return TypeArray
	case "set":
		return TypeSet
	case "hash":
		return TypeHash
	case "zset":
		return TypeZSet
	case "stream":
		return TypeStream
	case "integer":
		return TypeInteger
	}
	return TypeNull
}

// Pair is a single field of a hash value
type Pair struct {
	Field []byte
	Value []byte
}

// Member is a single member of an ordered set
type Member struct {
	Member []byte
	Score  float64
}

// Value is a parsed backend value. It must not be modified once constructed
type Value struct {
	Str     []byte  // String, Error
	Array   []Value // Array, Set
	Hash    []Pair  // Hash, in reply order
	ZSet    []Member
	Integer int64
	Type    ValueType
}

// MakeNull construct the null Value
func MakeNull() Value {
	return Value{Type: TypeNull}
}

// MakeString construct String Value from string
func MakeString(s string) Value {
	return Value{Type: TypeString, Str: []byte(s)}
}

// MakeBytes construct String Value from raw bytes
func MakeBytes(b []byte) Value {
	return Value{Type: TypeString, Str: b}
}

// MakeInteger construct Integer Value from int64
func MakeInteger(n int64) Value {
	return Value{Type: TypeInteger, Integer: n}
}

// MakeError construct Error Value from string
func MakeError(s string) Value {
	return Value{Type: TypeError, Str: []byte(s)}
}

// MakeArray creates an array containing the provided elements
func MakeArray(values []Value) Value {
	return Value{Type: TypeArray, Array: values}
}

// MakeStringArray creates an array of string values
func MakeStringArray(items ...string) Value {
	vals := make([]Value, len(items))
	for i, s := range items {
		vals[i] = MakeString(s)
	}
	return MakeArray(vals)
}

// MakeSet creates a set from its members
func MakeSet(values []Value) Value {
	return Value{Type: TypeSet, Array: values}
}

// MakeStream creates a stream from its entries, each an [id, fields] array
func MakeStream(entries []Value) Value {
	return Value{Type: TypeStream, Array: entries}
}

// MakeHash creates a hash from field/value pairs
func MakeHash(pairs []Pair) Value {
	return Value{Type: TypeHash, Hash: pairs}
}

// MakeZSet creates an ordered set from scored members
func MakeZSet(members []Member) Value {
	return Value{Type: TypeZSet, ZSet: members}
}

// EmptyValue returns a value container of the given type without content.
// Used when only the type of a key is known
func EmptyValue(t ValueType) Value {
	switch t {
	case TypeString:
		return MakeString("")
	case TypeInteger:
		return MakeInteger(0)
	case TypeArray:
		return MakeArray(nil)
	case TypeSet:
		return MakeSet(nil)
	case TypeHash:
		return MakeHash(nil)
	case TypeZSet:
		return MakeZSet(nil)
	case TypeStream:
		return MakeStream(nil)
	}
	return MakeNull()
}

// IsNull reports whether v holds no value
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// IsError reports whether v is an error reply
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// IsContainer reports whether v holds several elements
func (v Value) IsContainer() bool {
	switch v.Type {
	case TypeArray, TypeSet, TypeHash, TypeZSet, TypeStream:
		return true
	}
	return false
}

// Len returns the number of elements of a container value, 0 otherwise
func (v Value) Len() int {
	switch v.Type {
	case TypeArray, TypeSet, TypeStream:
		return len(v.Array)
	case TypeHash:
		return len(v.Hash)
	case TypeZSet:
		return len(v.ZSet)
	}
	return 0
}

// AsString returns the scalar content of v as a string
func (v Value) AsString() (string, bool) {
	switch v.Type {
	case TypeString, TypeError:
		return string(v.Str), true
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10), true
	}
	return "", false
}

// AsInteger returns the content of v as an integer. String values are parsed
func (v Value) AsInteger() (int64, bool) {
	switch v.Type {
	case TypeInteger:
		return v.Integer, true
	case TypeString:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v.Str)), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Render converts v to text, joining container elements with delim
func (v Value) Render(delim string) string {
	switch v.Type {
	case TypeNull:
		return "(nil)"
	case TypeString, TypeError:
		return string(v.Str)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeArray, TypeSet, TypeStream:
		parts := make([]string, len(v.Array))
		for i, el := range v.Array {
			parts[i] = el.Render(delim)
		}
		return strings.Join(parts, delim)
	case TypeHash:
		parts := make([]string, 0, len(v.Hash)*2)
		for _, p := range v.Hash {
			parts = append(parts, string(p.Field), string(p.Value))
		}
		return strings.Join(parts, delim)
	case TypeZSet:
		parts := make([]string, 0, len(v.ZSet)*2)
		for _, m := range v.ZSet {
			parts = append(parts, string(m.Member), strconv.FormatFloat(m.Score, 'g', -1, 64))
		}
		return strings.Join(parts, delim)
	}
	return ""
}

// String renders v with a single space delimiter
func (v Value) String() string {
	return v.Render(" ")
}
