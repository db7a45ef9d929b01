package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/driver"
	"github.com/urfave/cli/v2"
)

var (
	commandExec = &cli.Command{
		Name:      "exec",
		Usage:     "run a raw command",
		ArgsUsage: "<command> [args...]",
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() == 0 {
				return errors.New("exec: missing command")
			}
			return s.run(c, driver.Request{Kind: driver.RunRawCommand, Command: command.Join(c.Args().Slice()...)})
		}),
	}

	commandScan = &cli.Command{
		Name:  "scan",
		Usage: "list one page of the keyspace with key types and TTLs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "match", Usage: "glob pattern, the configured keyspace pattern when empty"},
			&cli.Uint64Flag{Name: "cursor", Usage: "cursor returned by the previous page"},
			&cli.Uint64Flag{Name: "count", Usage: "keys per page, the configured page size when 0"},
			&cli.BoolFlag{Name: "all", Usage: "follow the cursor until the keyspace is exhausted"},
			&cli.BoolFlag{Name: "group", Usage: "group keys by namespace, split on the connection namespace separator"},
		},
		Action: withSession(scanAction),
	}

	commandCreate = &cli.Command{
		Name:      "create",
		Usage:     "create a key",
		ArgsUsage: "<key> <value...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Value: "string", Usage: "string, list, set, hash or zset"},
			ttlFlag,
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() < 2 {
				return errors.New("create: expected a key and a value")
			}
			value, err := parseValue(c.String("type"), c.Args().Tail())
			if err != nil {
				return err
			}
			key := core.NewNKey(core.MakeKey(c.Args().First()))
			if ttl := c.Int64(ttlFlag.Name); ttl > 0 {
				key.SetTTL(ttl)
			}
			return s.run(c, driver.Request{Kind: driver.CreateKey, Key: key, Value: value})
		}),
	}

	commandLoad = &cli.Command{
		Name:      "load",
		Usage:     "load the value and TTL of a key",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "expected value type, looked up when empty"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() != 1 {
				return errors.New("load: expected one key")
			}
			resp, err := s.driver.ExecuteRequest(c.Context, driver.Request{
				Kind: driver.LoadKey,
				Key:  core.NewNKey(core.MakeKey(c.Args().First())),
				Hint: core.ParseValueType(c.String("type")),
			})
			if c.Bool(treeFlag.Name) {
				printTree(c.App.Writer, resp.Root)
			}
			if err != nil {
				return err
			}
			printKeyValue(c.App.Writer, resp.KeyValue)
			return nil
		}),
	}

	commandDelete = &cli.Command{
		Name:      "delete",
		Aliases:   []string{"del"},
		Usage:     "delete a key",
		ArgsUsage: "<key>",
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() != 1 {
				return errors.New("delete: expected one key")
			}
			return s.run(c, driver.Request{Kind: driver.DeleteKey, Key: core.NewNKey(core.MakeKey(c.Args().First()))})
		}),
	}

	commandRename = &cli.Command{
		Name:      "rename",
		Usage:     "rename a key",
		ArgsUsage: "<key> <new name>",
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() != 2 {
				return errors.New("rename: expected a key and its new name")
			}
			return s.run(c, driver.Request{
				Kind:    driver.RenameKey,
				Key:     core.NewNKey(core.MakeKey(c.Args().Get(0))),
				NewName: core.MakeKey(c.Args().Get(1)),
			})
		}),
	}

	commandTTL = &cli.Command{
		Name:      "ttl",
		Usage:     "set the time to live of a key, 0 or a negative value removes it",
		ArgsUsage: "<key> <seconds>",
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() != 2 {
				return errors.New("ttl: expected a key and a number of seconds")
			}
			ttl, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
			if err != nil {
				return fmt.Errorf("ttl: %w", err)
			}
			if ttl < 0 {
				ttl = core.NoTTL
			}
			return s.run(c, driver.Request{
				Kind: driver.ChangeTTL,
				Key:  core.NewNKey(core.MakeKey(c.Args().First())),
				TTL:  ttl,
			})
		}),
	}

	commandDatabases = &cli.Command{
		Name:  "databases",
		Usage: "print the number of logical databases",
		Action: withSession(func(c *cli.Context, s *session) error {
			resp, err := s.driver.ExecuteRequest(c.Context, driver.Request{Kind: driver.LoadDatabases})
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, resp.Databases)
			return nil
		}),
	}

	commandSelect = &cli.Command{
		Name:      "select",
		Usage:     "switch the logical database and list its first page",
		ArgsUsage: "<db>",
		Action: withSession(func(c *cli.Context, s *session) error {
			db, err := strconv.Atoi(c.Args().First())
			if err != nil {
				return fmt.Errorf("select: %w", err)
			}
			if err := s.run(c, driver.Request{Kind: driver.SelectDatabase, Database: db}); err != nil {
				return err
			}
			return s.scanPage(c, &driver.Request{Kind: driver.LoadKeyspacePage, Pattern: s.cfg.Keyspace.Pattern})
		}),
	}

	commandInfo = &cli.Command{
		Name:  "info",
		Usage: "print server information",
		Action: withSession(func(c *cli.Context, s *session) error {
			return s.run(c, driver.Request{Kind: driver.ServerInfo})
		}),
	}

	commandFlush = &cli.Command{
		Name:  "flush",
		Usage: "remove every key of the current database",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "do not ask for confirmation"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			if !c.Bool("yes") {
				return errors.New("flush: pass --yes to confirm")
			}
			return s.run(c, driver.Request{Kind: driver.FlushDatabase})
		}),
	}

	commandConnections = &cli.Command{
		Name:  "connections",
		Usage: "list the configured connections",
		Action: func(c *cli.Context) error {
			s, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer s.close()
			for _, conn := range s.cfg.Connections {
				marker := " "
				if conn.Name == s.cfg.DefaultConnection {
					marker = "*"
				}
				fmt.Fprintf(c.App.Writer, "%s %-16s %-10s %s\n", marker, conn.Name, conn.Type, endpoint(conn.Address, conn.Path))
			}
			return nil
		},
	}
)

// run executes req and prints its replies
func (s *session) run(c *cli.Context, req driver.Request) error {
	resp, err := s.driver.ExecuteRequest(c.Context, req)
	if c.Bool(treeFlag.Name) {
		printTree(c.App.Writer, resp.Root)
	} else {
		printReplies(c.App.Writer, resp.Root)
	}
	return err
}

func scanAction(c *cli.Context, s *session) error {
	pattern := c.String("match")
	if pattern == "" {
		pattern = s.cfg.Keyspace.Pattern
	}
	req := driver.Request{
		Kind:    driver.LoadKeyspacePage,
		Cursor:  c.Uint64("cursor"),
		Pattern: pattern,
		Count:   c.Uint64("count"),
	}

	for {
		if err := s.scanPage(c, &req); err != nil {
			return err
		}
		if !c.Bool("all") || req.Cursor == 0 {
			return nil
		}
	}
}

// scanPage prints one page and advances req.Cursor
func (s *session) scanPage(c *cli.Context, req *driver.Request) error {
	resp, err := s.driver.ExecuteRequest(c.Context, *req)
	if c.Bool(treeFlag.Name) {
		printTree(c.App.Writer, resp.Root)
	}
	if resp.Page != nil {
		if c.Bool("group") {
			printNamespaces(c.App.Writer, resp.Page, s.backend.Config.NamespaceSeparator)
		} else {
			printPage(c.App.Writer, resp.Page)
		}
		req.Cursor = resp.Page.Cursor
	}
	return err
}

// parseValue builds a value of type typ from command line arguments
func parseValue(typ string, args []string) (core.Value, error) {
	switch core.ParseValueType(typ) {
	case core.TypeString:
		if len(args) != 1 {
			return core.Value{}, errors.New("a string takes exactly one value")
		}
		return core.MakeString(args[0]), nil

	case core.TypeArray, core.TypeSet:
		values := make([]core.Value, len(args))
		for i, a := range args {
			values[i] = core.MakeString(a)
		}
		if core.ParseValueType(typ) == core.TypeSet {
			return core.MakeSet(values), nil
		}
		return core.MakeArray(values), nil

	case core.TypeHash:
		if len(args)%2 != 0 {
			return core.Value{}, errors.New("a hash takes field value pairs")
		}
		pairs := make([]core.Pair, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			pairs = append(pairs, core.Pair{Field: []byte(args[i]), Value: []byte(args[i+1])})
		}
		return core.MakeHash(pairs), nil

	case core.TypeZSet:
		if len(args)%2 != 0 {
			return core.Value{}, errors.New("an ordered set takes member score pairs")
		}
		members := make([]core.Member, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			score, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return core.Value{}, fmt.Errorf("score of %q: %w", args[i], err)
			}
			members = append(members, core.Member{Member: []byte(args[i]), Score: score})
		}
		return core.MakeZSet(members), nil
	}
	return core.Value{}, fmt.Errorf("unknown value type %q", typ)
}

func endpoint(address, path string) string {
	if address != "" {
		return address
	}
	if path != "" {
		return path
	}
	return "(in memory)"
}
