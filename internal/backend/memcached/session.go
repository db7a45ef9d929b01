// Package memcached drives memcached servers over the text protocol
package memcached

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eternalApril/moonview/internal/core"
	"go.uber.org/zap"
)

var crlf = []byte("\r\n")

// Item is one value returned by a retrieval command
type Item struct {
	Key   string
	Flags uint32
	Value []byte
}

// Session is a single memcached connection.
// A request interrupted mid-flight drops the connection, the stream would be out of sync
type Session struct {
	addr    string
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	conn net.Conn
	rw   *bufio.ReadWriter
}

// NewSession creates a session for addr. timeout bounds dialing and each request
func NewSession(addr string, timeout time.Duration, logger *zap.Logger) *Session {
	return &Session{addr: addr, timeout: timeout, logger: logger.Named("memcached")}
}

func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return core.NewTransportError("dial", err)
	}

	s.conn = conn
	s.rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	s.logger.Info("connected", zap.String("addr", s.addr))
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.rw = nil
	return err
}

// Authenticated is always false, the text protocol has no authentication
func (s *Session) Authenticated() bool {
	return false
}

// roundTrip writes one request and reads its reply with read.
// Deadlines come from ctx and the session timeout; cancelling ctx unblocks the I/O
func (s *Session) roundTrip(ctx context.Context, line string, data []byte, read func(r *bufio.Reader) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return core.NewTransportError("memcached", net.ErrClosed)
	}
	if strings.ContainsAny(line, "\r\n") {
		return core.NewBackendError("CLIENT_ERROR line break in request")
	}

	deadline := time.Time{}
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return s.fail(ctx, "deadline", err)
	}

	conn := s.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug("request", zap.String("line", line))
	}

	if _, err := s.rw.WriteString(line); err != nil {
		return s.fail(ctx, "write", err)
	}
	if _, err := s.rw.Write(crlf); err != nil {
		return s.fail(ctx, "write", err)
	}
	if data != nil {
		if _, err := s.rw.Write(data); err != nil {
			return s.fail(ctx, "write", err)
		}
		if _, err := s.rw.Write(crlf); err != nil {
			return s.fail(ctx, "write", err)
		}
	}
	if err := s.rw.Flush(); err != nil {
		return s.fail(ctx, "write", err)
	}

	if err := read(s.rw.Reader); err != nil {
		if errors.Is(err, core.ErrBackend) {
			return err
		}
		return s.fail(ctx, "read", err)
	}
	return nil
}

// fail drops the connection after an I/O error
func (s *Session) fail(ctx context.Context, op string, err error) error {
	s.closeLocked() //nolint:errcheck
	s.logger.Warn("connection dropped", zap.String("op", op), zap.Error(err))
	if ctx.Err() != nil {
		return core.NewTransportError(op, errors.Join(core.ErrInterrupted, err))
	}
	return core.NewTransportError(op, err)
}

// readLine reads one CRLF terminated line without the terminator
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// replyError maps the protocol error lines to a BackendError
func replyError(line string) error {
	switch {
	case line == "ERROR",
		strings.HasPrefix(line, "CLIENT_ERROR"),
		strings.HasPrefix(line, "SERVER_ERROR"):
		return core.NewBackendError(line)
	}
	return nil
}

// Get runs a retrieval command for keys
func (s *Session) Get(ctx context.Context, keys ...string) ([]Item, error) {
	var items []Item
	err := s.roundTrip(ctx, "get "+strings.Join(keys, " "), nil, func(r *bufio.Reader) error {
		for {
			line, err := readLine(r)
			if err != nil {
				return err
			}
			if line == "END" {
				return nil
			}
			if err := replyError(line); err != nil {
				return err
			}

			item, size, err := parseValueLine(line)
			if err != nil {
				return err
			}
			buf := make([]byte, size+2)
			if _, err := io.ReadFull(r, buf); err != nil {
				return err
			}
			item.Value = buf[:size]
			items = append(items, item)
		}
	})
	return items, err
}

// parseValueLine parses "VALUE <key> <flags> <bytes> [<cas>]"
func parseValueLine(line string) (Item, int, error) {
	f := strings.Fields(line)
	if len(f) < 4 || f[0] != "VALUE" {
		return Item{}, 0, fmt.Errorf("%w: unexpected line %q", core.ErrParse, line)
	}
	flags, err := strconv.ParseUint(f[2], 10, 32)
	if err != nil {
		return Item{}, 0, fmt.Errorf("%w: flags %q", core.ErrParse, f[2])
	}
	size, err := strconv.Atoi(f[3])
	if err != nil || size < 0 {
		return Item{}, 0, fmt.Errorf("%w: size %q", core.ErrParse, f[3])
	}
	return Item{Key: f[1], Flags: uint32(flags)}, size, nil
}

// Store runs a storage command (set, add, replace, append, prepend).
// It returns the status line: STORED, NOT_STORED, EXISTS or NOT_FOUND
func (s *Session) Store(ctx context.Context, verb, key string, flags uint32, exptime int64, value []byte) (string, error) {
	line := fmt.Sprintf("%s %s %d %d %d", verb, key, flags, exptime, len(value))
	return s.simple(ctx, line, value)
}

// Simple sends a command whose reply is a single status line
func (s *Session) Simple(ctx context.Context, line string) (string, error) {
	return s.simple(ctx, line, nil)
}

func (s *Session) simple(ctx context.Context, line string, data []byte) (string, error) {
	var status string
	err := s.roundTrip(ctx, line, data, func(r *bufio.Reader) error {
		l, err := readLine(r)
		if err != nil {
			return err
		}
		if err := replyError(l); err != nil {
			return err
		}
		status = l
		return nil
	})
	return status, err
}

// Stats runs "stats [args]" and returns the reported pairs in order
func (s *Session) Stats(ctx context.Context, args ...string) ([][2]string, error) {
	line := "stats"
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}

	var stats [][2]string
	err := s.roundTrip(ctx, line, nil, func(r *bufio.Reader) error {
		for {
			l, err := readLine(r)
			if err != nil {
				return err
			}
			if l == "END" {
				return nil
			}
			if err := replyError(l); err != nil {
				return err
			}

			// "STAT <name> <value>", "ITEM <key> [<size> b; <exp> s]"
			f := strings.SplitN(l, " ", 3)
			if len(f) < 2 {
				return fmt.Errorf("%w: unexpected stats line %q", core.ErrParse, l)
			}
			var value string
			if len(f) == 3 {
				value = f[2]
			}
			stats = append(stats, [2]string{f[1], value})
		}
	})
	return stats, err
}

// MetaTTL returns the remaining TTL of key through the meta get command:
// -2 for a missing key, -1 for a key without expiration
func (s *Session) MetaTTL(ctx context.Context, key string) (int64, error) {
	status, err := s.Simple(ctx, "mg "+key+" t")
	if err != nil {
		return 0, err
	}

	if status == "EN" {
		return -2, nil
	}
	f := strings.Fields(status)
	if len(f) == 0 || f[0] != "HD" {
		return 0, core.NewBackendError("unexpected meta reply: " + status)
	}
	for _, flag := range f[1:] {
		if strings.HasPrefix(flag, "t") {
			ttl, err := strconv.ParseInt(flag[1:], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: ttl flag %q", core.ErrParse, flag)
			}
			return ttl, nil
		}
	}
	return -1, nil
}

// Keys enumerates the cached keys through "stats items" and "stats cachedump"
func (s *Session) Keys(ctx context.Context) ([]string, error) {
	items, err := s.Stats(ctx, "items")
	if err != nil {
		return nil, err
	}

	slabs := make(map[string]struct{})
	var order []string
	for _, kv := range items {
		// items:<slab>:number
		parts := strings.Split(kv[0], ":")
		if len(parts) != 3 || parts[0] != "items" || parts[2] != "number" {
			continue
		}
		if _, ok := slabs[parts[1]]; !ok {
			slabs[parts[1]] = struct{}{}
			order = append(order, parts[1])
		}
	}

	var keys []string
	for _, slab := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInterrupted, err)
		}
		dump, err := s.Stats(ctx, "cachedump", slab, "0")
		if err != nil {
			return nil, err
		}
		for _, kv := range dump {
			keys = append(keys, kv[0])
		}
	}
	return keys, nil
}
