// Package local drives the embedded engines (memory, leveldb, bolt, badger)
// through a redis-like command set
package local

import (
	"context"
	"errors"
	"sync"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/storage"
	"go.uber.org/zap"
)

// Opener opens the engine of a session
type Opener func() (storage.Engine, error)

// Session is a connection to an embedded engine
type Session struct {
	kind   string
	open   Opener
	logger *zap.Logger

	mu     sync.RWMutex
	engine storage.Engine
}

// NewSession creates a session that opens its engine on Connect
func NewSession(kind string, open Opener, logger *zap.Logger) *Session {
	return &Session{kind: kind, open: open, logger: logger.Named(kind)}
}

// Kind returns the engine kind
func (s *Session) Kind() string {
	return s.kind
}

func (s *Session) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return nil
	}

	engine, err := s.open()
	if err != nil {
		return core.NewTransportError("open "+s.kind, err)
	}
	s.engine = engine
	s.logger.Info("engine opened")
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	return err
}

// Authenticated is always false, embedded engines have no authentication
func (s *Session) Authenticated() bool {
	return false
}

// Engine returns the open engine
func (s *Session) Engine() (storage.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return nil, core.NewTransportError(s.kind, storage.ErrClosed)
	}
	return s.engine, nil
}

// engineErr classifies an engine failure as a transport error
func engineErr(op string, err error) error {
	var te *core.TransportError
	if errors.As(err, &te) || errors.Is(err, core.ErrInterrupted) {
		return err
	}
	return core.NewTransportError(op, err)
}
