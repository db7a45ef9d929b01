// Package server exposes a connection over the RESP protocol, so redis
// clients can reach embedded engines and other backends
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"go.uber.org/zap"
)

var errInvalidRequest = errors.New("invalid request")

// ShutdownTimeout bounds the wait for client connections on shutdown
const ShutdownTimeout = 5 * time.Second

// Executor runs one command line and appends the reply under out
type Executor interface {
	Execute(ctx context.Context, line string, out *result.Node) error
}

// Server forwards the requests of every client to one executor.
// Requests are serialized: the executor runs one command at a time
type Server struct {
	exec   Executor
	logger *zap.Logger

	mu sync.Mutex // serializes exec
	wg sync.WaitGroup

	connsMu sync.Mutex
	conns   map[*Peer]struct{}
}

// New creates a server in front of exec
func New(exec Executor, logger *zap.Logger) *Server {
	return &Server{
		exec:   exec,
		logger: logger.Named("server"),
		conns:  make(map[*Peer]struct{}),
	}
}

// Serve accepts clients on listener until ctx is done, then closes the
// listener and waits up to ShutdownTimeout for the clients to finish
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("listening on", zap.String("address", listener.Addr().String()))

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		listener.Close() //nolint:errcheck
	}()
	defer close(done)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept error", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.logger.Info("shutting down")
	return s.shutdown()
}

func (s *Server) shutdown() error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(ShutdownTimeout):
		s.logger.Warn("shutdown timed out, closing connections", zap.Duration("timeout", ShutdownTimeout))
	}

	s.connsMu.Lock()
	for p := range s.conns {
		p.Close() //nolint:errcheck
	}
	s.connsMu.Unlock()
	<-finished
	return nil
}

// handleConnection handles a connection for a single client
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	peer := NewPeer(conn)
	s.track(peer, true)
	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug("client connected", zap.String("addr", peer.RemoteAddr()))
	}

	defer func() {
		s.track(peer, false)
		peer.Close() //nolint:errcheck
		if s.logger.Core().Enabled(zap.DebugLevel) {
			s.logger.Debug("client disconnected", zap.String("addr", peer.RemoteAddr()))
		}
	}()

	// unblock the read when the server stops
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) }) //nolint:errcheck
	defer stop()

	for {
		argv, err := peer.ReadCommand()
		if err != nil {
			if errors.Is(err, errInvalidRequest) {
				s.logger.Warn("invalid request type", zap.String("addr", peer.RemoteAddr()))
				peer.Send(core.MakeError("ERR invalid request")) //nolint:errcheck
				peer.Flush()                                     //nolint:errcheck
				return
			}
			if err != io.EOF && ctx.Err() == nil {
				s.logger.Warn("read command failed", zap.Error(err))
			}
			return
		}

		if len(argv) == 0 {
			continue
		}

		quit := strings.EqualFold(argv[0], "QUIT")
		var reply core.Value
		if quit {
			reply = core.MakeString("OK")
		} else {
			reply = s.execute(ctx, argv)
		}

		if err := peer.Send(reply); err != nil {
			s.logger.Error("error writing response", zap.Error(err))
			return
		}

		if quit || peer.InputBuffered() == 0 {
			if err := peer.Flush(); err != nil {
				return
			}
		}
		if quit {
			return
		}
	}
}

// execute runs argv and converts the outcome into a reply
func (s *Server) execute(ctx context.Context, argv []string) core.Value {
	line := command.Join(argv...)
	root := result.NewRoot(line)

	s.mu.Lock()
	err := s.exec.Execute(ctx, line, root)
	s.mu.Unlock()

	if err != nil && !errors.Is(err, core.ErrBackend) {
		return core.MakeError("ERR " + err.Error())
	}
	v, ok := root.FirstValue()
	if !ok {
		return core.MakeNull()
	}
	return v
}

func (s *Server) track(p *Peer, add bool) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if add {
		s.conns[p] = struct{}{}
	} else {
		delete(s.conns, p)
	}
}
