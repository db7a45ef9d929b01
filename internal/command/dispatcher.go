package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
)

// Parsed is a command line resolved against a table
type Parsed[T any] struct {
	Descriptor *Descriptor[T]
	Argv       []string // full argument vector, command name included
	Offset     int      // number of tokens consumed by the command name
}

// Args returns the arguments after the command name
func (p *Parsed[T]) Args() []string {
	return p.Argv[p.Offset:]
}

// Dispatcher validates command lines and routes them to table handlers.
// It performs no backend I/O itself
type Dispatcher[T any] struct {
	table *Table[T]
}

// NewDispatcher creates a dispatcher over table
func NewDispatcher[T any](table *Table[T]) *Dispatcher[T] {
	return &Dispatcher[T]{table: table}
}

// Table returns the descriptor table of the dispatcher
func (d *Dispatcher[T]) Table() *Table[T] {
	return d.table
}

// Normalize trims the raw line and rejects an empty command
func Normalize(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%w: empty command", core.ErrInvalidArgument)
	}
	return line, nil
}

// Resolve parses line and validates it against the table without executing it
func (d *Dispatcher[T]) Resolve(line string) (*Parsed[T], error) {
	line, err := Normalize(line)
	if err != nil {
		return nil, err
	}

	argv, err := SplitArgs(line)
	if err != nil {
		return nil, err
	}

	return d.ResolveArgs(argv)
}

// ResolveArgs validates a pre-split argument vector
func (d *Dispatcher[T]) ResolveArgs(argv []string) (*Parsed[T], error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", core.ErrInvalidArgument)
	}

	desc, off, err := d.table.Lookup(argv)
	if err != nil {
		return nil, err
	}

	if err := desc.CheckArity(len(argv) - off); err != nil {
		return nil, err
	}

	return &Parsed[T]{Descriptor: desc, Argv: argv, Offset: off}, nil
}

// Execute parses, validates and runs a raw command line against target,
// appending the reply under out
func (d *Dispatcher[T]) Execute(ctx context.Context, target T, line string, out *result.Node) error {
	p, err := d.Resolve(line)
	if err != nil {
		return err
	}
	return d.Invoke(ctx, target, p, out)
}

// ExecuteArgs runs a pre-split argument vector against target
func (d *Dispatcher[T]) ExecuteArgs(ctx context.Context, target T, argv []string, out *result.Node) error {
	p, err := d.ResolveArgs(argv)
	if err != nil {
		return err
	}
	return d.Invoke(ctx, target, p, out)
}

// Invoke runs an already resolved command
func (d *Dispatcher[T]) Invoke(ctx context.Context, target T, p *Parsed[T], out *result.Node) error {
	return p.Descriptor.Func(ctx, target, p.Args(), out)
}
