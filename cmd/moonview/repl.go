package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/driver"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var commandRepl = &cli.Command{
	Name:  "repl",
	Usage: "interactive console, Ctrl-C interrupts the running command",
	Action: withSession(func(c *cli.Context, s *session) error {
		return s.repl(c)
	}),
}

func (s *session) repl(c *cli.Context) error {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT)
	defer signal.Stop(interrupts)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	go func() {
		for {
			select {
			case <-interrupts:
				s.driver.Interrupt()
			case <-ctx.Done():
				return
			}
		}
	}()

	w := c.App.Writer
	scanner := bufio.NewScanner(c.App.Reader)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	prompt := fmt.Sprintf("%s> ", s.backend.Config.Name)
	for {
		fmt.Fprint(w, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "help":
			for _, h := range s.backend.Help() {
				fmt.Fprintln(w, h)
			}
			continue
		}

		resp, err := s.driver.ExecuteRequest(ctx, driver.Request{Kind: driver.RunRawCommand, Command: line})
		if c.Bool(treeFlag.Name) {
			printTree(w, resp.Root)
		} else {
			printReplies(w, resp.Root)
		}

		switch {
		case err == nil, errors.Is(err, core.ErrBackend):
		case errors.Is(err, core.ErrInterrupted):
			fmt.Fprintln(w, "(interrupted)")
		case errors.Is(err, core.ErrTransport):
			s.log.Warn("connection lost, reconnecting", zap.Error(err))
			if err := s.reconnect(ctx); err != nil {
				return err
			}
		default:
			fmt.Fprintf(w, "(error) %v\n", err)
		}
	}
}

func (s *session) reconnect(ctx context.Context) error {
	s.driver.Disconnect() //nolint:errcheck
	return s.driver.Connect(ctx)
}
