package translator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/core"
)

// Operation is a canonical key-value operation, independent of the backend
type Operation int

const (
	CreateKey Operation = iota + 1
	LoadKey
	DeleteKey
	RenameKey
	ChangeTTL
)

func (o Operation) String() string {
	switch o {
	case CreateKey:
		return "create key"
	case LoadKey:
		return "load key"
	case DeleteKey:
		return "delete key"
	case RenameKey:
		return "rename key"
	case ChangeTTL:
		return "change ttl"
	}
	return "unknown operation"
}

// Grammar is the literal command grammar of one backend.
// Every function returns the argument vector of one command; arguments are
// quoted by the Translator. A nil function means the backend has no such command
type Grammar struct {
	Name string

	CreateKey func(kv core.KeyValue) []string
	LoadKey   func(key core.NKey, hint core.ValueType) []string
	DeleteKey func(key core.NKey) []string
	RenameKey func(key core.NKey, newName core.Key) []string
	ChangeTTL func(key core.NKey, ttl int64) []string

	Scan     func(cursor uint64, pattern string, count uint64) []string
	TypeOf   func(key core.Key) []string
	TTLOf    func(key core.Key) []string
	KeyCount func() []string

	// Server level commands, nil when the backend has no equivalent
	Databases func() []string
	Select    func(db int) []string
	Info      func() []string
	Flush     func() []string

	// LoadCommands lists the command names that read a key value
	LoadCommands []string
}

// Translator converts canonical operations into command text for one backend.
// It holds no mutable state and is safe for concurrent use
type Translator struct {
	g     Grammar
	loads map[string]struct{}
}

// New creates a Translator over grammar g
func New(g Grammar) *Translator {
	loads := make(map[string]struct{}, len(g.LoadCommands))
	for _, name := range g.LoadCommands {
		loads[normalizeName(name)] = struct{}{}
	}
	return &Translator{g: g, loads: loads}
}

// Name returns the backend name
func (t *Translator) Name() string {
	return t.g.Name
}

// Params carries the optional inputs of Translate
type Params struct {
	Value   core.Value     // CreateKey
	Hint    core.ValueType // LoadKey
	NewName core.Key       // RenameKey
	TTL     int64          // ChangeTTL
}

// Translate produces the command text of op for key
func (t *Translator) Translate(op Operation, key core.NKey, p Params) (string, error) {
	switch op {
	case CreateKey:
		return t.CreateKeyCommand(core.NewKeyValue(key, p.Value))
	case LoadKey:
		return t.LoadKeyCommand(key, p.Hint)
	case DeleteKey:
		return t.DeleteKeyCommand(key)
	case RenameKey:
		return t.RenameKeyCommand(key, p.NewName)
	case ChangeTTL:
		return t.ChangeTTLCommand(key, p.TTL)
	}
	return "", fmt.Errorf("%w: unknown operation %d", core.ErrInvalidArgument, op)
}

// CreateKeyCommand returns the command that stores kv
func (t *Translator) CreateKeyCommand(kv core.KeyValue) (string, error) {
	if err := checkKey(kv.Key.Key()); err != nil {
		return "", err
	}
	if t.g.CreateKey == nil {
		return "", t.notSupported(CreateKey)
	}
	return command.Join(t.g.CreateKey(kv)...), nil
}

// LoadKeyCommand returns the command that reads key. hint is the expected
// value type; backends with self-describing replies ignore it
func (t *Translator) LoadKeyCommand(key core.NKey, hint core.ValueType) (string, error) {
	if err := checkKey(key.Key()); err != nil {
		return "", err
	}
	if t.g.LoadKey == nil {
		return "", t.notSupported(LoadKey)
	}
	return command.Join(t.g.LoadKey(key, hint)...), nil
}

// DeleteKeyCommand returns the command that removes key
func (t *Translator) DeleteKeyCommand(key core.NKey) (string, error) {
	if err := checkKey(key.Key()); err != nil {
		return "", err
	}
	if t.g.DeleteKey == nil {
		return "", t.notSupported(DeleteKey)
	}
	return command.Join(t.g.DeleteKey(key)...), nil
}

// RenameKeyCommand returns the command that renames key to newName
func (t *Translator) RenameKeyCommand(key core.NKey, newName core.Key) (string, error) {
	if err := checkKey(key.Key()); err != nil {
		return "", err
	}
	if len(newName) == 0 {
		return "", fmt.Errorf("%w: empty new key name", core.ErrInvalidArgument)
	}
	if t.g.RenameKey == nil {
		return "", t.notSupported(RenameKey)
	}
	return command.Join(t.g.RenameKey(key, newName)...), nil
}

// ChangeTTLCommand returns the command that sets the TTL of key.
// A ttl of core.NoTTL (or negative) removes the expiration
func (t *Translator) ChangeTTLCommand(key core.NKey, ttl int64) (string, error) {
	if err := checkKey(key.Key()); err != nil {
		return "", err
	}
	if t.g.ChangeTTL == nil {
		return "", t.notSupported(ChangeTTL)
	}
	if ttl < 0 {
		ttl = core.NoTTL
	}
	return command.Join(t.g.ChangeTTL(key, ttl)...), nil
}

// ScanCommand returns the keyspace scan command for one page
func (t *Translator) ScanCommand(cursor uint64, pattern string, count uint64) (string, error) {
	if t.g.Scan == nil {
		return "", fmt.Errorf("%w: %s keyspace scan", core.ErrNotSupported, t.g.Name)
	}
	if pattern == "" {
		pattern = "*"
	}
	return command.Join(t.g.Scan(cursor, pattern, count)...), nil
}

// TypeCommand returns the command that reports the value type of key
func (t *Translator) TypeCommand(key core.Key) (string, bool) {
	if t.g.TypeOf == nil {
		return "", false
	}
	return command.Join(t.g.TypeOf(key)...), true
}

// TTLCommand returns the command that reports the TTL of key
func (t *Translator) TTLCommand(key core.Key) (string, bool) {
	if t.g.TTLOf == nil {
		return "", false
	}
	return command.Join(t.g.TTLOf(key)...), true
}

// KeyCountCommand returns the command that counts the keys of the active namespace
func (t *Translator) KeyCountCommand() (string, bool) {
	if t.g.KeyCount == nil {
		return "", false
	}
	return command.Join(t.g.KeyCount()...), true
}

// DatabasesCommand returns the command that reports the number of databases
func (t *Translator) DatabasesCommand() (string, bool) {
	if t.g.Databases == nil {
		return "", false
	}
	return command.Join(t.g.Databases()...), true
}

// SelectCommand returns the command that switches the session to database db
func (t *Translator) SelectCommand(db int) (string, error) {
	if db < 0 {
		return "", fmt.Errorf("%w: database %d", core.ErrInvalidArgument, db)
	}
	if t.g.Select == nil {
		return "", fmt.Errorf("%w: select database on %s", core.ErrNotSupported, t.g.Name)
	}
	return command.Join(t.g.Select(db)...), nil
}

// InfoCommand returns the server information command
func (t *Translator) InfoCommand() (string, bool) {
	if t.g.Info == nil {
		return "", false
	}
	return command.Join(t.g.Info()...), true
}

// FlushCommand returns the command that removes every key of the active namespace
func (t *Translator) FlushCommand() (string, bool) {
	if t.g.Flush == nil {
		return "", false
	}
	return command.Join(t.g.Flush()...), true
}

// IsLoadCommand reports whether an already split command reads a key value
func (t *Translator) IsLoadCommand(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	_, ok := t.loads[normalizeName(argv[0])]
	return ok
}

// IsLoadCommandLine is IsLoadCommand for raw command text
func (t *Translator) IsLoadCommandLine(line string) bool {
	argv, err := command.SplitArgs(line)
	if err != nil {
		return false
	}
	return t.IsLoadCommand(argv)
}

// LoadCommands returns the command names classified as loads
func (t *Translator) LoadCommands() []string {
	return append([]string(nil), t.g.LoadCommands...)
}

func (t *Translator) notSupported(op Operation) error {
	return fmt.Errorf("%w: %s on %s", core.ErrNotSupported, op, t.g.Name)
}

func checkKey(key core.Key) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", core.ErrInvalidArgument)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Itoa formats integer arguments of grammars
func Itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// Utoa formats unsigned integer arguments of grammars
func Utoa(n uint64) string {
	return strconv.FormatUint(n, 10)
}
