package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for malformed input detected before any I/O
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrParse is returned for malformed raw command text
	ErrParse = errors.New("parse error")
	// ErrUnknownCommand is matched by UnknownCommandError
	ErrUnknownCommand = errors.New("unknown command")
	// ErrArity is matched by ArityError
	ErrArity = errors.New("wrong number of arguments")
	// ErrTransport is matched by TransportError
	ErrTransport = errors.New("transport error")
	// ErrBackend is matched by BackendError
	ErrBackend = errors.New("backend error")
	// ErrInterrupted is returned when an operation was abandoned cooperatively
	ErrInterrupted = errors.New("interrupted")
	// ErrNotSupported is returned when a backend has no command for an operation
	ErrNotSupported = errors.New("not supported")
	// ErrNotConnected is returned when a command is executed on a closed connection
	ErrNotConnected = errors.New("not connected")
)

// UnknownCommandError names the token that did not resolve to a command
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command '%s'", e.Name)
}

func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// Unbounded is the maximum argument count of variadic commands
const Unbounded = -1

// ArityError carries the expected argument bounds and the observed count
type ArityError struct {
	Name string
	Min  int
	Max  int // Unbounded for variadic commands
	Got  int
}

func (e *ArityError) Error() string {
	if e.Max == Unbounded {
		return fmt.Sprintf("wrong number of arguments for '%s' command: expected at least %d, got %d", e.Name, e.Min, e.Got)
	}
	if e.Min == e.Max {
		return fmt.Sprintf("wrong number of arguments for '%s' command: expected %d, got %d", e.Name, e.Min, e.Got)
	}
	return fmt.Sprintf("wrong number of arguments for '%s' command: expected %d..%d, got %d", e.Name, e.Min, e.Max, e.Got)
}

func (e *ArityError) Is(target error) bool {
	return target == ErrArity
}

// TransportError is a connection level failure: unreachable, reset, timeout
type TransportError struct {
	Op  string
	Err error
}

// NewTransportError wraps err as a transport failure of op
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// BackendError is a well formed reply in which the backend rejected the command
type BackendError struct {
	Message string
}

// NewBackendError creates a BackendError from the reply text
func NewBackendError(msg string) *BackendError {
	return &BackendError{Message: msg}
}

func (e *BackendError) Error() string {
	return e.Message
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// IsTransport reports whether err is a connection level failure or an interruption,
// the two kinds of failure that stop a pipeline
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrInterrupted)
}
