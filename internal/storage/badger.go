package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Badger is an engine over a badger database with native TTL
type Badger struct {
	db     *badger.DB
	logger *zap.Logger
}

// BadgerOptions configures the badger engine
type BadgerOptions struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// OpenBadger opens the database at opts.Path, or an in-memory one
func OpenBadger(opts BadgerOptions, logger *zap.Logger) (*Badger, error) {
	var o badger.Options
	if opts.InMemory {
		o = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badger: path is required")
		}
		o = badger.DefaultOptions(opts.Path)
	}
	o = o.WithSyncWrites(opts.SyncWrites).WithLogger(&badgerLogger{logger: logger.Sugar()})

	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	return &Badger{db: db, logger: logger}, nil
}

func (b *Badger) Name() string {
	return "badger"
}

func (b *Badger) Get(key []byte) ([]byte, bool, error) {
	var value []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *Badger) Set(key, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// update runs fn on the existing item of key inside a write transaction
func (b *Badger) update(key []byte, fn func(txn *badger.Txn, value []byte, expiresAt uint64) error) (bool, error) {
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return fn(txn, value, item.ExpiresAt())
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *Badger) Delete(key []byte) (bool, error) {
	return b.update(key, func(txn *badger.Txn, _ []byte, _ uint64) error {
		return txn.Delete(key)
	})
}

func (b *Badger) Rename(key, newKey []byte) (bool, error) {
	return b.update(key, func(txn *badger.Txn, value []byte, expiresAt uint64) error {
		if err := txn.Delete(key); err != nil {
			return err
		}
		e := badger.NewEntry(newKey, value)
		e.ExpiresAt = expiresAt
		return txn.SetEntry(e)
	})
}

func (b *Badger) Expiry(key []byte) (time.Duration, ExpiryStatus, error) {
	var expiresAt uint64
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		expiresAt = item.ExpiresAt()
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ExpNotFound, nil
	}
	if err != nil {
		return 0, ExpNotFound, err
	}
	if expiresAt == 0 {
		return 0, ExpNoTimeout, nil
	}

	d := time.Until(time.Unix(int64(expiresAt), 0))
	if d < 0 {
		return 0, ExpNotFound, nil
	}
	return d, ExpActive, nil
}

func (b *Badger) Expire(key []byte, ttl time.Duration) (bool, error) {
	return b.update(key, func(txn *badger.Txn, value []byte, _ uint64) error {
		if ttl <= 0 {
			return txn.Delete(key)
		}
		return txn.SetEntry(badger.NewEntry(key, value).WithTTL(ttl))
	})
}

func (b *Badger) Persist(key []byte) (bool, error) {
	var had bool
	_, err := b.update(key, func(txn *badger.Txn, value []byte, expiresAt uint64) error {
		if expiresAt == 0 {
			return nil
		}
		had = true
		return txn.SetEntry(badger.NewEntry(key, value))
	})
	return had, err
}

func (b *Badger) Keys(fn func(key []byte) bool) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if !fn(it.Item().KeyCopy(nil)) {
				break
			}
		}
		return nil
	})
}

func (b *Badger) Count() (int64, error) {
	var n int64
	err := b.Keys(func([]byte) bool {
		n++
		return true
	})
	return n, err
}

func (b *Badger) Flush() error {
	return b.db.DropAll()
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger adapts zap to badger's Logger interface
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}
