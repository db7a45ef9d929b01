// Package redis drives redis servers through go-redis
package redis

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Session is a stateful redis connection. The client is limited to a single
// pooled connection so SELECT, CLIENT SETNAME and friends stick to the session
type Session struct {
	logger *zap.Logger

	mu     sync.RWMutex
	opts   goredis.Options
	client *goredis.Client
}

// NewSession creates a session for opts. The session connects on Connect
func NewSession(opts goredis.Options, logger *zap.Logger) *Session {
	opts.PoolSize = 1
	if opts.Protocol == 0 {
		opts.Protocol = 2
	}
	return &Session{opts: opts, logger: logger.Named("redis")}
}

func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	client, err := s.dial(ctx, s.opts)
	if err != nil {
		return err
	}
	s.client = client
	s.logger.Info("connected", zap.String("addr", s.opts.Addr), zap.Int("db", s.opts.DB))
	return nil
}

// dial creates a client and checks it with PING
func (s *Session) dial(ctx context.Context, opts goredis.Options) (*goredis.Client, error) {
	client := goredis.NewClient(&opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, classify("connect", err)
	}
	return client, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Authenticated reports whether the session was opened with credentials
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.opts.Password != ""
}

// DB returns the selected database index
func (s *Session) DB() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.DB
}

func (s *Session) getClient() (*goredis.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, core.NewTransportError("redis", goredis.ErrClosed)
	}
	return s.client, nil
}

// Do sends argv and returns the shaped reply. Error replies are returned as
// an error value together with a BackendError
func (s *Session) Do(ctx context.Context, argv []string) (core.Value, error) {
	client, err := s.getClient()
	if err != nil {
		return core.Value{}, err
	}

	val, err := client.Do(ctx, toArgs(argv)...).Result()
	return reply(argv, val, err)
}

// Pipeline writes every command before reading the replies
func (s *Session) Pipeline(ctx context.Context, argvs [][]string, outs []*result.Node) (int, error) {
	client, err := s.getClient()
	if err != nil {
		return 0, err
	}

	pipe := client.Pipeline()
	cmds := make([]*goredis.Cmd, len(argvs))
	for i, argv := range argvs {
		cmds[i] = pipe.Do(ctx, toArgs(argv)...)
	}

	// per command errors are inspected below
	_, _ = pipe.Exec(ctx)

	for i, cmd := range cmds {
		val, err := cmd.Result()
		v, err := reply(argvs[i], val, err)
		if err != nil && !errors.Is(err, core.ErrBackend) {
			return i, err
		}
		result.AppendChild(outs[i], v)
	}
	return len(argvs), nil
}

// Select switches the session to database db. The single pooled connection
// is replaced by one opened on db
func (s *Session) Select(ctx context.Context, db int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return core.NewTransportError("redis", goredis.ErrClosed)
	}

	opts := s.opts
	opts.DB = db
	client, err := s.dial(ctx, opts)
	if err != nil {
		return err
	}

	s.client.Close() //nolint:errcheck
	s.client = client
	s.opts = opts
	s.logger.Info("database selected", zap.Int("db", db))
	return nil
}

// reply converts a go-redis result into a shaped value
func reply(argv []string, val interface{}, err error) (core.Value, error) {
	if errors.Is(err, goredis.Nil) {
		return core.MakeNull(), nil
	}
	if err != nil {
		err = classify("command", err)
		if errors.Is(err, core.ErrBackend) {
			return core.MakeError(err.Error()), err
		}
		return core.Value{}, err
	}
	return shape(argv, convert(val)), nil
}

// classify separates error replies from connection failures
func classify(op string, err error) error {
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return core.NewBackendError(rerr.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.NewTransportError(op, errors.Join(core.ErrInterrupted, err))
	}
	return core.NewTransportError(op, err)
}

func toArgs(argv []string) []interface{} {
	args := make([]interface{}, len(argv))
	for i, a := range argv {
		args[i] = a
	}
	return args
}

// parseDB validates a SELECT argument
func parseDB(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil && n >= 0
}
