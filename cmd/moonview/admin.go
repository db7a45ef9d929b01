package main

import (
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/eternalApril/moonview/internal/backends"
	"github.com/eternalApril/moonview/internal/history"
	"github.com/eternalApril/moonview/internal/server"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	commandPingAll = &cli.Command{
		Name:  "ping-all",
		Usage: "connect every configured connection concurrently",
		Action: func(c *cli.Context) error {
			s, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer s.close()

			start := time.Now()
			all, err := backends.OpenAll(c.Context, s.cfg.Connections, s.log, s.metrics)
			if err != nil {
				return err
			}
			for _, b := range all {
				fmt.Fprintf(c.App.Writer, "%-16s %-10s ok\n", b.Config.Name, b.Config.Type)
				if err := b.Conn.Disconnect(); err != nil {
					s.log.Warn("disconnect failed", zap.String("connection", b.Config.Name), zap.Error(err))
				}
			}
			fmt.Fprintf(c.App.Writer, "-- %d connections in %s\n", len(all), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	commandHistory = &cli.Command{
		Name:  "history",
		Usage: "print the recorded commands",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of entries, 0 prints all"},
			&cli.StringFlag{Name: "file", Usage: "history file, the configured one when empty"},
		},
		Action: func(c *cli.Context) error {
			s, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer s.close()

			filename := c.String("file")
			if filename == "" {
				filename = s.cfg.History.Filename
			}

			entries, err := history.Load(filename)
			if err != nil && !errors.Is(err, history.ErrTruncated) {
				return err
			}
			if err != nil {
				s.log.Warn("history has a truncated tail", zap.String("file", filename))
			}

			if limit := c.Int("limit"); limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, e := range entries {
				fmt.Fprintf(c.App.Writer, "%s [%s] %s\n", e.Time.Format(time.DateTime), e.Connection, e.Command)
				printValue(c.App.Writer, e.Reply)
			}
			return nil
		},
	}

	commandServe = &cli.Command{
		Name:  "serve",
		Usage: "expose the connection to redis clients over RESP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: "127.0.0.1:6380", Usage: "listen address"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", c.String("listen"))
			if err != nil {
				return err
			}
			return server.New(s.backend.Conn, s.log).Serve(ctx, ln)
		}),
	}
)
