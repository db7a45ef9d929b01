package command

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
)

// HandlerFunc executes a resolved command against a backend session T.
// argv holds the arguments after the command name. The handler performs the
// backend I/O and appends the parsed reply under out
type HandlerFunc[T any] func(ctx context.Context, target T, argv []string, out *result.Node) error

// Descriptor describes one command of a backend
type Descriptor[T any] struct {
	Name     string // canonical name, may contain several words ("CONFIG GET")
	MinArgs  int    // minimum number of arguments after the name
	MaxArgs  int    // maximum number of arguments after the name, core.Unbounded for variadic
	ReadOnly bool   // the command only queries backend state
	Summary  string
	Func     HandlerFunc[T]
}

// words returns the number of tokens of the command name
func (d *Descriptor[T]) words() int {
	return len(strings.Fields(d.Name))
}

// CheckArity validates the number of arguments after the name
func (d *Descriptor[T]) CheckArity(argc int) error {
	if argc < d.MinArgs || (d.MaxArgs != core.Unbounded && argc > d.MaxArgs) {
		return &core.ArityError{Name: d.Name, Min: d.MinArgs, Max: d.MaxArgs, Got: argc}
	}
	return nil
}

// Table is a read-only registry of the commands of one backend.
// It is safe for concurrent use once built
type Table[T any] struct {
	name    string
	byFirst map[string][]*Descriptor[T] // first word -> descriptors, longest names first
	all     []*Descriptor[T]
}

// NewTable builds a table from descriptors. It panics on duplicated names or
// inverted bounds, both are programming errors in a static table
func NewTable[T any](name string, descriptors []Descriptor[T]) *Table[T] {
	t := &Table[T]{
		name:    name,
		byFirst: make(map[string][]*Descriptor[T]),
	}

	seen := make(map[string]struct{}, len(descriptors))
	for i := range descriptors {
		d := &descriptors[i]
		d.Name = strings.ToUpper(strings.Join(strings.Fields(d.Name), " "))

		if _, ok := seen[d.Name]; ok {
			panic(fmt.Sprintf("%s: duplicated command %s", name, d.Name))
		}
		if d.MaxArgs != core.Unbounded && d.MinArgs > d.MaxArgs {
			panic(fmt.Sprintf("%s: command %s has min %d > max %d", name, d.Name, d.MinArgs, d.MaxArgs))
		}
		seen[d.Name] = struct{}{}

		first := strings.Fields(d.Name)[0]
		t.byFirst[first] = append(t.byFirst[first], d)
		t.all = append(t.all, d)
	}

	for _, list := range t.byFirst {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].words() > list[j].words()
		})
	}

	return t
}

// Name returns the backend name of the table
func (t *Table[T]) Name() string {
	return t.name
}

// Descriptors returns every command in registration order
func (t *Table[T]) Descriptors() []*Descriptor[T] {
	out := make([]*Descriptor[T], len(t.all))
	copy(out, t.all)
	return out
}

// Find returns the descriptor registered under the canonical name
func (t *Table[T]) Find(name string) (*Descriptor[T], bool) {
	name = strings.ToUpper(strings.Join(strings.Fields(name), " "))
	for _, d := range t.all {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Lookup resolves the command named by the leading arguments of argv.
// It returns the descriptor and the number of tokens its name consumed
func (t *Table[T]) Lookup(argv []string) (*Descriptor[T], int, error) {
	if len(argv) == 0 {
		return nil, 0, fmt.Errorf("%w: empty command", core.ErrInvalidArgument)
	}

	candidates := t.byFirst[strings.ToUpper(argv[0])]
	for _, d := range candidates {
		words := strings.Fields(d.Name)
		if len(words) > len(argv) {
			continue
		}
		match := true
		for i := 1; i < len(words); i++ {
			if !strings.EqualFold(words[i], argv[i]) {
				match = false
				break
			}
		}
		if match {
			return d, len(words), nil
		}
	}

	return nil, 0, &core.UnknownCommandError{Name: argv[0]}
}

// IsReadOnly reports whether argv resolves to a read-only command
func (t *Table[T]) IsReadOnly(argv []string) bool {
	d, _, err := t.Lookup(argv)
	return err == nil && d.ReadOnly
}
