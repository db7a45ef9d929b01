// Package driver turns high level key-value requests into backend commands
package driver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/connection"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"github.com/eternalApril/moonview/internal/translator"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const (
	DefaultPageSize  = 100
	DefaultCacheSize = 256
)

// Conn is the connection a driver runs its commands on.
// connection.Connection implements it for every backend session
type Conn interface {
	Backend() string
	Connect(ctx context.Context) error
	Disconnect() error
	Execute(ctx context.Context, line string, out *result.Node) error
	ExecuteAsPipeline(ctx context.Context, batch connection.Batch) error
	IsReadOnly(line string) bool

	Interrupt()
	ResetInterrupted()
	IsConnected() bool
	IsAuthenticated() bool
	IsInterrupted() bool
}

// Driver executes requests on one connection. Like the connection it drives,
// it serves one request at a time
type Driver struct {
	conn      Conn
	tr        *translator.Translator
	logger    *zap.Logger
	cache     *lru.ARCCache // key -> core.Value
	observers []result.Observer
	pageSize  uint64
}

// Option configures a Driver
type Option func(*config)

type config struct {
	logger    *zap.Logger
	observers []result.Observer
	cacheSize int
	pageSize  uint64
}

// WithLogger sets the driver logger
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithObservers attaches observers to the result tree of every request
func WithObservers(obs ...result.Observer) Option {
	return func(c *config) { c.observers = append(c.observers, obs...) }
}

// WithCacheSize sets the number of loaded key values kept in memory
func WithCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithPageSize sets the default number of keys of a keyspace page
func WithPageSize(n uint64) Option {
	return func(c *config) { c.pageSize = n }
}

// New creates a driver running the commands of tr on conn
func New(conn Conn, tr *translator.Translator, opts ...Option) (*Driver, error) {
	cfg := config{
		logger:    zap.NewNop(),
		cacheSize: DefaultCacheSize,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.pageSize == 0 {
		return nil, fmt.Errorf("%w: page size must be positive", core.ErrInvalidArgument)
	}

	cache, err := lru.NewARC(cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: cache size %d", core.ErrInvalidArgument, cfg.cacheSize)
	}

	return &Driver{
		conn:      conn,
		tr:        tr,
		logger:    cfg.logger.Named("driver").With(zap.String("backend", conn.Backend())),
		cache:     cache,
		observers: cfg.observers,
		pageSize:  cfg.pageSize,
	}, nil
}

// Translator returns the translator of the backend
func (d *Driver) Translator() *translator.Translator {
	return d.tr
}

func (d *Driver) Connect(ctx context.Context) error {
	return d.conn.Connect(ctx)
}

func (d *Driver) Disconnect() error {
	d.cache.Purge()
	return d.conn.Disconnect()
}

// Interrupt stops the running request at its next checkpoint
func (d *Driver) Interrupt() {
	d.conn.Interrupt()
}

func (d *Driver) IsConnected() bool {
	return d.conn.IsConnected()
}

func (d *Driver) IsAuthenticated() bool {
	return d.conn.IsAuthenticated()
}

func (d *Driver) IsInterrupted() bool {
	return d.conn.IsInterrupted()
}

// Cached returns the last loaded value of key
func (d *Driver) Cached(key core.Key) (core.Value, bool) {
	v, ok := d.cache.Get(string(key))
	if !ok {
		return core.Value{}, false
	}
	return v.(core.Value), true
}

// ExecuteRequest runs req and returns its response.
// The response is returned on error too, with the partial result tree
func (d *Driver) ExecuteRequest(ctx context.Context, req Request) (*Response, error) {
	d.conn.ResetInterrupted()

	root := result.NewRoot(d.describe(req), d.observers...)
	resp := &Response{Root: root}

	var err error
	switch req.Kind {
	case LoadKeyspacePage:
		resp.Page, err = d.loadPage(ctx, root, req)
	case CreateKey:
		err = d.createKey(ctx, root, req)
	case LoadKey:
		resp.KeyValue, err = d.loadKey(ctx, root, req)
	case DeleteKey:
		err = d.deleteKey(ctx, root, req)
	case RenameKey:
		err = d.renameKey(ctx, root, req)
	case ChangeTTL:
		err = d.changeTTL(ctx, root, req)
	case RunRawCommand:
		err = d.runRaw(ctx, root, req.Command)
	case LoadDatabases:
		resp.Databases, err = d.loadDatabases(ctx, root)
	case SelectDatabase:
		err = d.selectDatabase(ctx, root, req.Database)
	case ServerInfo:
		err = d.serverInfo(ctx, root)
	case FlushDatabase:
		err = d.flushDatabase(ctx, root)
	default:
		err = fmt.Errorf("%w: request kind %d", core.ErrInvalidArgument, req.Kind)
	}

	if err != nil {
		d.logger.Debug("request failed", zap.Stringer("kind", req.Kind), zap.Error(err))
	}
	return resp, err
}

func (d *Driver) describe(req Request) string {
	switch req.Kind {
	case RunRawCommand:
		return req.Command
	case CreateKey, LoadKey, DeleteKey, RenameKey, ChangeTTL:
		return req.Kind.String() + " " + command.Quote(req.Key.Key().String())
	}
	return req.Kind.String()
}

// exec runs line under a new command node of root
func (d *Driver) exec(ctx context.Context, root *result.Node, line string) (*result.Node, error) {
	node := result.NewCommand(root, line)
	return node, d.conn.Execute(ctx, line, node)
}

func (d *Driver) createKey(ctx context.Context, root *result.Node, req Request) error {
	kv := core.NewKeyValue(req.Key, req.Value)
	line, err := d.tr.CreateKeyCommand(kv)
	if err != nil {
		return err
	}

	d.cache.Remove(req.Key.Key().String())
	if _, err := d.exec(ctx, root, line); err != nil {
		return err
	}

	// container writes cannot carry the expiration
	if ttl, ok := req.Key.TTL(); ok && ttl != core.NoTTL && req.Value.IsContainer() {
		line, err := d.tr.ChangeTTLCommand(req.Key, ttl)
		if err != nil {
			return err
		}
		if _, err := d.exec(ctx, root, line); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) loadKey(ctx context.Context, root *result.Node, req Request) (*core.KeyValue, error) {
	key := req.Key
	if err := checkKey(key.Key()); err != nil {
		return nil, err
	}

	hint := req.Hint
	if hint == core.TypeNull {
		hint = d.lookupType(ctx, root, key.Key())
	}

	line, err := d.tr.LoadKeyCommand(key, hint)
	if err != nil {
		return nil, err
	}
	node, err := d.exec(ctx, root, line)
	if err != nil {
		return nil, err
	}

	value, _ := node.FirstValue()
	if !value.IsNull() {
		d.cache.Add(key.Key().String(), value)
	}

	if ttl, ok := d.lookupTTL(ctx, root, key.Key()); ok {
		key.SetTTL(ttl)
	}

	kv := core.NewKeyValue(key, value)
	return &kv, nil
}

// lookupType asks the backend for the type of key. Failures fall back to a string load
func (d *Driver) lookupType(ctx context.Context, root *result.Node, key core.Key) core.ValueType {
	line, ok := d.tr.TypeCommand(key)
	if !ok {
		return core.TypeString
	}
	node, err := d.exec(ctx, root, line)
	if err != nil {
		d.logger.Debug("type lookup failed", zap.Error(err))
		return core.TypeString
	}
	if t, ok := parseType(node); ok {
		return t
	}
	return core.TypeString
}

// lookupTTL asks the backend for the TTL of key
func (d *Driver) lookupTTL(ctx context.Context, root *result.Node, key core.Key) (int64, bool) {
	line, ok := d.tr.TTLCommand(key)
	if !ok {
		return 0, false
	}
	node, err := d.exec(ctx, root, line)
	if err != nil {
		d.logger.Debug("ttl lookup failed", zap.Error(err))
		return 0, false
	}
	return parseTTL(node)
}

func (d *Driver) deleteKey(ctx context.Context, root *result.Node, req Request) error {
	line, err := d.tr.DeleteKeyCommand(req.Key)
	if err != nil {
		return err
	}
	d.cache.Remove(req.Key.Key().String())
	_, err = d.exec(ctx, root, line)
	return err
}

func (d *Driver) renameKey(ctx context.Context, root *result.Node, req Request) error {
	line, err := d.tr.RenameKeyCommand(req.Key, req.NewName)
	if err != nil {
		return err
	}
	d.cache.Remove(req.Key.Key().String())
	d.cache.Remove(req.NewName.String())
	_, err = d.exec(ctx, root, line)
	return err
}

func (d *Driver) changeTTL(ctx context.Context, root *result.Node, req Request) error {
	line, err := d.tr.ChangeTTLCommand(req.Key, req.TTL)
	if err != nil {
		return err
	}
	d.cache.Remove(req.Key.Key().String())
	_, err = d.exec(ctx, root, line)
	return err
}

// runRaw executes a command typed by the user. Load commands feed the cache,
// other writes invalidate the keys they name
func (d *Driver) runRaw(ctx context.Context, root *result.Node, line string) error {
	argv, err := command.SplitArgs(line)
	if err != nil {
		return err
	}
	if len(argv) == 0 {
		return fmt.Errorf("%w: empty command", core.ErrInvalidArgument)
	}

	switch {
	case d.tr.IsLoadCommand(argv):
	case d.conn.IsReadOnly(line):
	case len(argv) == 1:
		d.cache.Purge()
	default:
		for _, arg := range argv[1:] {
			d.cache.Remove(arg)
		}
	}

	if err := d.conn.Execute(ctx, line, root); err != nil {
		return err
	}

	if d.tr.IsLoadCommand(argv) && len(argv) == 2 {
		if v, ok := root.FirstValue(); ok && !v.IsNull() && !v.IsError() {
			d.cache.Add(argv[1], v)
		}
	}
	return nil
}

func (d *Driver) loadDatabases(ctx context.Context, root *result.Node) (int, error) {
	line, ok := d.tr.DatabasesCommand()
	if !ok {
		return 0, fmt.Errorf("%w: databases on %s", core.ErrNotSupported, d.tr.Name())
	}
	node, err := d.exec(ctx, root, line)
	if err != nil {
		return 0, err
	}

	v, _ := node.FirstValue()
	n, err := parseDatabases(v)
	if err != nil {
		node.SetError(err)
		return 0, err
	}
	return n, nil
}

// parseDatabases reads a CONFIG GET reply: a [name, value] array or a one field hash
func parseDatabases(v core.Value) (int, error) {
	var raw string
	switch {
	case v.Type == core.TypeHash && len(v.Hash) == 1:
		raw = string(v.Hash[0].Value)
	case v.Type == core.TypeArray && len(v.Array) == 2:
		raw, _ = v.Array[1].AsString()
	default:
		return 0, fmt.Errorf("%w: unexpected databases reply %q", core.ErrParse, v.String())
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: databases %q", core.ErrParse, raw)
	}
	return n, nil
}

func (d *Driver) selectDatabase(ctx context.Context, root *result.Node, db int) error {
	line, err := d.tr.SelectCommand(db)
	if err != nil {
		return err
	}
	if _, err := d.exec(ctx, root, line); err != nil {
		return err
	}
	d.cache.Purge()
	return nil
}

func (d *Driver) serverInfo(ctx context.Context, root *result.Node) error {
	line, ok := d.tr.InfoCommand()
	if !ok {
		return fmt.Errorf("%w: server info on %s", core.ErrNotSupported, d.tr.Name())
	}
	_, err := d.exec(ctx, root, line)
	return err
}

func (d *Driver) flushDatabase(ctx context.Context, root *result.Node) error {
	line, ok := d.tr.FlushCommand()
	if !ok {
		return fmt.Errorf("%w: flush on %s", core.ErrNotSupported, d.tr.Name())
	}
	d.cache.Purge()
	_, err := d.exec(ctx, root, line)
	return err
}

func checkKey(key core.Key) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", core.ErrInvalidArgument)
	}
	return nil
}

// parseType reads the reply of a type command. "none" is a missing key
func parseType(node *result.Node) (core.ValueType, bool) {
	v, ok := node.FirstValue()
	if !ok || v.IsError() {
		return core.TypeNull, false
	}
	name, ok := v.AsString()
	if !ok {
		return core.TypeNull, false
	}
	t := core.ParseValueType(name)
	return t, t != core.TypeNull
}

// parseTTL reads the reply of a ttl command: seconds, -1 without
// expiration, -2 for a missing key
func parseTTL(node *result.Node) (int64, bool) {
	v, ok := node.FirstValue()
	if !ok || v.IsError() {
		return 0, false
	}
	n, ok := v.AsInteger()
	switch {
	case !ok, n < -1:
		return 0, false
	case n == -1:
		return core.NoTTL, true
	}
	return n, true
}

// absorb reports whether err of an auxiliary step can be downgraded to missing data
func absorb(err error) bool {
	return err != nil && !errors.Is(err, core.ErrInterrupted)
}
