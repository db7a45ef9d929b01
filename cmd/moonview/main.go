package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Commonly used command line flags
var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "directory holding moonview.yaml",
		Value: ".",
	}
	connectionFlag = &cli.StringFlag{
		Name:    "connection",
		Aliases: []string{"c"},
		Usage:   "connection name, the default connection when empty",
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "log at debug level, including every result tree mutation",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "serve prometheus metrics on this address",
	}
	treeFlag = &cli.BoolFlag{
		Name:  "tree",
		Usage: "print the whole result tree instead of the replies",
	}
	ttlFlag = &cli.Int64Flag{
		Name:  "ttl",
		Usage: "time to live in seconds, 0 keeps the key forever",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "moonview",
		Usage: "browse and edit redis, memcached and embedded key value stores",
		Flags: []cli.Flag{
			configFlag,
			connectionFlag,
			verboseFlag,
			metricsAddrFlag,
			treeFlag,
		},
		Commands: []*cli.Command{
			commandExec,
			commandScan,
			commandCreate,
			commandLoad,
			commandDelete,
			commandRename,
			commandTTL,
			commandDatabases,
			commandSelect,
			commandInfo,
			commandFlush,
			commandRepl,
			commandPingAll,
			commandServe,
			commandHistory,
			commandConnections,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
