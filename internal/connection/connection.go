package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/metrics"
	"github.com/eternalApril/moonview/internal/result"
	"go.uber.org/zap"
)

// State is the lifecycle state of a connection
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Session is the backend specific transport a connection drives.
// Table handlers receive the session as their target
type Session interface {
	// Connect establishes the transport and authenticates where applicable
	Connect(ctx context.Context) error
	// Close releases the transport. Closing an in-flight operation must make
	// it fail with a transport error
	Close() error
	// Authenticated reports whether the session passed authentication
	Authenticated() bool
}

// Pipeliner is implemented by sessions whose protocol can write a whole batch
// before reading any reply.
//
// Pipeline appends the reply of argvs[i] under outs[i], in submission order.
// It returns len(argvs) and nil when every reply was read, otherwise the index
// of the first entry that could not be completed and the connection level error
type Pipeliner interface {
	Pipeline(ctx context.Context, argvs [][]string, outs []*result.Node) (int, error)
}

// Entry is one command of a pipeline batch with the node receiving its reply
type Entry struct {
	Command string
	Node    *result.Node
}

// Batch is an ordered list of commands executed as one pipeline
type Batch []Entry

// Connection is a stateful session with one backend.
//
// A connection is driven by one operation at a time; callers serialize
// concurrent requests. The interruption flag may be set from any goroutine
type Connection[S Session] struct {
	backend    string
	session    S
	dispatcher *command.Dispatcher[S]
	logger     *zap.Logger
	metrics    *metrics.Metrics

	state       atomic.Int32
	interrupted atomic.Bool

	mu        sync.Mutex // protects interrupt
	interrupt context.Context
	cancel    context.CancelFunc
}

// Option configures a Connection
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithLogger sets the logger of the connection
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink of the connection
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a disconnected connection executing table commands on session
func New[S Session](backend string, session S, table *command.Table[S], opts ...Option) *Connection[S] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Connection[S]{
		backend:    backend,
		session:    session,
		dispatcher: command.NewDispatcher(table),
		logger:     o.logger.Named("connection").With(zap.String("backend", backend)),
		metrics:    o.metrics,
	}
	c.interrupt, c.cancel = context.WithCancel(context.Background())
	return c
}

// Backend returns the backend name
func (c *Connection[S]) Backend() string {
	return c.backend
}

// Session returns the backend session
func (c *Connection[S]) Session() S {
	return c.session
}

// Dispatcher returns the command dispatcher of the connection
func (c *Connection[S]) Dispatcher() *command.Dispatcher[S] {
	return c.dispatcher
}

// IsReadOnly reports whether line names a command that does not modify data.
// Unparsable or unknown commands are not read-only
func (c *Connection[S]) IsReadOnly(line string) bool {
	argv, err := command.SplitArgs(line)
	if err != nil {
		return false
	}
	return c.dispatcher.Table().IsReadOnly(argv)
}

// State returns the current lifecycle state
func (c *Connection[S]) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the transport is established
func (c *Connection[S]) IsConnected() bool {
	s := c.State()
	return s == Connected || s == Authenticated
}

// IsAuthenticated reports whether the session passed authentication
func (c *Connection[S]) IsAuthenticated() bool {
	return c.State() == Authenticated
}

// IsInterrupted reports whether Interrupt was called since the last reset
func (c *Connection[S]) IsInterrupted() bool {
	return c.interrupted.Load()
}

// Interrupt asks the running operation to stop at its next checkpoint.
// The transport stays open
func (c *Connection[S]) Interrupt() {
	c.mu.Lock()
	c.interrupted.Store(true)
	c.cancel()
	c.mu.Unlock()
	c.logger.Info("interrupt requested")
}

// ResetInterrupted clears the interruption flag before a new request
func (c *Connection[S]) ResetInterrupted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.interrupted.Load() {
		return
	}
	c.interrupted.Store(false)
	c.interrupt, c.cancel = context.WithCancel(context.Background())
}

// Connect establishes the session. On failure the state is Disconnected
func (c *Connection[S]) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	c.state.Store(int32(Connecting))
	if err := c.session.Connect(ctx); err != nil {
		c.state.Store(int32(Disconnected))
		c.logger.Warn("connect failed", zap.Error(err))
		if errors.Is(err, core.ErrTransport) || errors.Is(err, core.ErrBackend) {
			return err
		}
		return core.NewTransportError("connect", err)
	}

	if c.session.Authenticated() {
		c.state.Store(int32(Authenticated))
	} else {
		c.state.Store(int32(Connected))
	}
	c.logger.Info("connected", zap.Stringer("state", c.State()))
	return nil
}

// Disconnect releases the session. It is a no-op on a closed connection
func (c *Connection[S]) Disconnect() error {
	if c.State() == Disconnected {
		return nil
	}
	c.state.Store(int32(Disconnected))
	if err := c.session.Close(); err != nil {
		return core.NewTransportError("close", err)
	}
	c.logger.Info("disconnected")
	return nil
}

// Execute runs one raw command line and appends the reply under out.
// Dispatch errors are returned before any I/O and leave out untouched
func (c *Connection[S]) Execute(ctx context.Context, line string, out *result.Node) error {
	p, err := c.dispatcher.Resolve(line)
	if err != nil {
		c.metrics.ObserveCommand(c.backend, 0, err)
		return err
	}

	if !c.IsConnected() {
		return core.ErrNotConnected
	}

	ctx, done := c.operation(ctx)
	defer done()

	if err := c.checkpoint(ctx); err != nil {
		out.SetError(err)
		return err
	}

	return c.invoke(ctx, p, out)
}

// ExecuteAsPipeline runs every command of batch, replies are delivered to the
// entry nodes in submission order.
//
// Dispatch errors of any entry are returned before any I/O. Backend error
// replies stay on their entry and do not stop the batch. A connection level
// failure at entry k marks entries k..n-1 with the error, keeps the replies of
// entries before k and is returned
func (c *Connection[S]) ExecuteAsPipeline(ctx context.Context, batch Batch) error {
	if len(batch) == 0 {
		return nil
	}

	parsed := make([]*command.Parsed[S], len(batch))
	for i, e := range batch {
		p, err := c.dispatcher.Resolve(e.Command)
		if err != nil {
			c.metrics.ObserveCommand(c.backend, 0, err)
			return fmt.Errorf("pipeline entry %d: %w", i, err)
		}
		parsed[i] = p
	}

	if !c.IsConnected() {
		return core.ErrNotConnected
	}

	ctx, done := c.operation(ctx)
	defer done()

	c.metrics.ObservePipeline(c.backend, len(batch))
	if c.logger.Core().Enabled(zap.DebugLevel) {
		c.logger.Debug("executing pipeline", zap.Int("commands", len(batch)))
	}

	if err := c.checkpoint(ctx); err != nil {
		markFailed(batch, 0, err)
		return err
	}

	if pl, ok := any(c.session).(Pipeliner); ok {
		argvs := make([][]string, len(parsed))
		outs := make([]*result.Node, len(batch))
		for i, p := range parsed {
			argvs[i] = p.Argv
			outs[i] = batch[i].Node
		}

		start := time.Now()
		k, err := pl.Pipeline(ctx, argvs, outs)
		c.metrics.ObserveCommand(c.backend, time.Since(start), err)
		if err != nil {
			c.logger.Warn("pipeline failed", zap.Int("entry", k), zap.Error(err))
			markFailed(batch, k, err)
			return err
		}
		return nil
	}

	for i, p := range parsed {
		if err := c.checkpoint(ctx); err != nil {
			markFailed(batch, i, err)
			return err
		}

		err := c.invoke(ctx, p, batch[i].Node)
		if err == nil || errors.Is(err, core.ErrBackend) {
			continue
		}

		c.logger.Warn("pipeline failed", zap.Int("entry", i), zap.Error(err))
		markFailed(batch, i+1, err)
		return err
	}
	return nil
}

// invoke runs a resolved command and records its outcome
func (c *Connection[S]) invoke(ctx context.Context, p *command.Parsed[S], out *result.Node) error {
	if c.logger.Core().Enabled(zap.DebugLevel) {
		c.logger.Debug("executing command",
			zap.String("cmd", p.Descriptor.Name),
			zap.Int("args_count", len(p.Args())),
		)
	}

	start := time.Now()
	err := c.dispatcher.Invoke(ctx, c.session, p, out)
	c.metrics.ObserveCommand(c.backend, time.Since(start), err)

	if err == nil {
		return nil
	}

	if c.interrupted.Load() && !errors.Is(err, core.ErrInterrupted) {
		err = fmt.Errorf("%w: %w", core.ErrInterrupted, err)
	}
	if !errors.Is(err, core.ErrBackend) {
		out.SetError(err)
	}
	return err
}

// operation derives the context of one operation: it is cancelled by the
// caller or by Interrupt
func (c *Connection[S]) operation(ctx context.Context) (context.Context, func()) {
	c.mu.Lock()
	interrupt := c.interrupt
	c.mu.Unlock()

	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(interrupt, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// checkpoint reports an interruption observed between steps
func (c *Connection[S]) checkpoint(ctx context.Context) error {
	if c.interrupted.Load() {
		return core.ErrInterrupted
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInterrupted, err)
	}
	return nil
}

// markFailed propagates err to the entries from index k on
func markFailed(batch Batch, from int, err error) {
	for i := from; i < len(batch); i++ {
		batch[i].Node.SetError(err)
	}
}
