package driver

import (
	"context"
	"fmt"

	"github.com/eternalApril/moonview/internal/backend"
	"github.com/eternalApril/moonview/internal/connection"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"go.uber.org/zap"
)

// loadPage scans one page of keys, then resolves their type and TTL in one
// pipeline and finally the namespace key count.
//
// Only the scan is fatal: it returns an empty page with the error. Property
// lookups that fail leave the key in the page with the property flagged missing
func (d *Driver) loadPage(ctx context.Context, root *result.Node, req Request) (*Page, error) {
	count := req.Count
	if count == 0 {
		count = d.pageSize
	}

	cursor, keys, err := d.scan(ctx, root, req.Cursor, req.Pattern, count)
	if err != nil {
		return &Page{Total: -1}, err
	}

	page := &Page{
		Cursor:  cursor,
		Keys:    make([]core.KeyValue, len(keys)),
		Missing: make([]Property, len(keys)),
		Total:   -1,
	}
	for i, k := range keys {
		page.Keys[i] = core.NewKeyValue(core.NewNKey(k), core.MakeNull())
	}

	if err := d.resolveProperties(ctx, root, page); err != nil {
		return page, err
	}

	if total, ok := d.keyCount(ctx, root); ok {
		page.Total = total
	}
	return page, nil
}

// scan runs scan commands from cursor until count keys were collected or the
// keyspace is exhausted. Interruption is checked between scan pages
func (d *Driver) scan(ctx context.Context, root *result.Node, cursor uint64, pattern string, count uint64) (uint64, []core.Key, error) {
	var (
		keys []core.Key
		seen = make(map[string]struct{})
	)

	for {
		line, err := d.tr.ScanCommand(cursor, pattern, count)
		if err != nil {
			return 0, nil, err
		}
		node, err := d.exec(ctx, root, line)
		if err != nil {
			return 0, nil, err
		}

		v, _ := node.FirstValue()
		next, found, err := backend.ParseScanReply(v)
		if err != nil {
			node.SetError(err)
			return 0, nil, err
		}

		for _, k := range found {
			if _, dup := seen[string(k)]; dup {
				continue
			}
			seen[string(k)] = struct{}{}
			keys = append(keys, k)
		}

		cursor = next
		if cursor == 0 || uint64(len(keys)) >= count {
			return cursor, keys, nil
		}

		if d.conn.IsInterrupted() || ctx.Err() != nil {
			return 0, nil, fmt.Errorf("%w: keyspace scan", core.ErrInterrupted)
		}
	}
}

// resolveProperties pipelines the type and TTL commands of every page key.
// Only an interruption is returned, other failures mark properties missing
func (d *Driver) resolveProperties(ctx context.Context, root *result.Node, page *Page) error {
	if len(page.Keys) == 0 {
		return nil
	}

	typeNodes := make([]*result.Node, len(page.Keys))
	ttlNodes := make([]*result.Node, len(page.Keys))
	batch := make(connection.Batch, 0, len(page.Keys)*2)

	for i, kv := range page.Keys {
		key := kv.Key.Key()
		if line, ok := d.tr.TypeCommand(key); ok {
			typeNodes[i] = result.NewCommand(root, line)
			batch = append(batch, connection.Entry{Command: line, Node: typeNodes[i]})
		}
		if line, ok := d.tr.TTLCommand(key); ok {
			ttlNodes[i] = result.NewCommand(root, line)
			batch = append(batch, connection.Entry{Command: line, Node: ttlNodes[i]})
		}
	}

	var pipeErr error
	if len(batch) > 0 {
		pipeErr = d.conn.ExecuteAsPipeline(ctx, batch)
		if absorb(pipeErr) {
			d.logger.Warn("key properties partially loaded", zap.Error(pipeErr))
		}
	}

	for i := range page.Keys {
		if typeNodes[i] != nil {
			if t, ok := parseType(typeNodes[i]); ok {
				page.Keys[i].Value = core.EmptyValue(t)
			} else {
				page.Missing[i] |= PropertyType
			}
		} else {
			page.Missing[i] |= PropertyType
		}

		if ttlNodes[i] != nil {
			if ttl, ok := parseTTL(ttlNodes[i]); ok {
				page.Keys[i].Key.SetTTL(ttl)
			} else {
				page.Missing[i] |= PropertyTTL
			}
		} else {
			page.Missing[i] |= PropertyTTL
		}
	}

	if pipeErr != nil && !absorb(pipeErr) {
		return pipeErr
	}
	return nil
}

// keyCount reads the advisory key count of the namespace
func (d *Driver) keyCount(ctx context.Context, root *result.Node) (int64, bool) {
	line, ok := d.tr.KeyCountCommand()
	if !ok {
		return 0, false
	}

	node, err := d.exec(ctx, root, line)
	if err != nil {
		d.logger.Warn("key count failed", zap.Error(err))
		return 0, false
	}

	v, _ := node.FirstValue()
	n, ok := v.AsInteger()
	if !ok || n < 0 {
		d.logger.Warn("unexpected key count reply", zap.String("reply", v.String()))
		return 0, false
	}
	return n, true
}
