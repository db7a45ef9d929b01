package storage

import (
	"errors"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDB is an engine over a goleveldb database. Values carry the entry
// expiration prefix, expired entries are deleted lazily on access
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates the database at path
func OpenLevelDB(path string, o *opt.Options) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, o)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// OpenLevelDBMemory opens a database kept in memory
func OpenLevelDBMemory() (*LevelDB, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Name() string {
	return "leveldb"
}

// load returns the decoded live entry of key
func (l *LevelDB) load(key []byte) ([]byte, int64, bool, error) {
	raw, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}

	value, exp, err := decodeEntry(raw)
	if err != nil {
		return nil, 0, false, err
	}
	if expired(exp, time.Now().UnixNano()) {
		if err := l.db.Delete(key, nil); err != nil {
			return nil, 0, false, err
		}
		return nil, 0, false, nil
	}
	return value, exp, true, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, bool, error) {
	value, _, ok, err := l.load(key)
	return value, ok, err
}

func (l *LevelDB) Set(key, value []byte, ttl time.Duration) error {
	return l.db.Put(key, encodeEntry(value, deadline(ttl)), nil)
}

func (l *LevelDB) Delete(key []byte) (bool, error) {
	_, _, ok, err := l.load(key)
	if err != nil || !ok {
		return false, err
	}
	return true, l.db.Delete(key, nil)
}

func (l *LevelDB) Rename(key, newKey []byte) (bool, error) {
	value, exp, ok, err := l.load(key)
	if err != nil || !ok {
		return false, err
	}

	batch := new(leveldb.Batch)
	batch.Delete(key)
	batch.Put(newKey, encodeEntry(value, exp))
	return true, l.db.Write(batch, nil)
}

func (l *LevelDB) Expiry(key []byte) (time.Duration, ExpiryStatus, error) {
	_, exp, ok, err := l.load(key)
	if err != nil || !ok {
		return 0, ExpNotFound, err
	}
	d, st := remaining(exp)
	return d, st, nil
}

func (l *LevelDB) Expire(key []byte, ttl time.Duration) (bool, error) {
	value, _, ok, err := l.load(key)
	if err != nil || !ok {
		return false, err
	}
	if ttl <= 0 {
		return true, l.db.Delete(key, nil)
	}
	return true, l.db.Put(key, encodeEntry(value, deadline(ttl)), nil)
}

func (l *LevelDB) Persist(key []byte) (bool, error) {
	value, exp, ok, err := l.load(key)
	if err != nil || !ok || exp == 0 {
		return false, err
	}
	return true, l.db.Put(key, encodeEntry(value, 0), nil)
}

func (l *LevelDB) Keys(fn func(key []byte) bool) error {
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()

	now := time.Now().UnixNano()
	for iter.Next() {
		_, exp, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if expired(exp, now) {
			continue
		}
		if !fn(append([]byte(nil), iter.Key()...)) {
			break
		}
	}
	return iter.Error()
}

func (l *LevelDB) Count() (int64, error) {
	var n int64
	err := l.Keys(func([]byte) bool {
		n++
		return true
	})
	return n, err
}

func (l *LevelDB) Flush() error {
	iter := l.db.NewIterator(nil, nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
