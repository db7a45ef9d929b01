package storage

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultBucket is the bucket used when none is configured
const DefaultBucket = "moonview"

// Bolt is an engine over one bucket of a bbolt file.
// Values carry the entry expiration prefix
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens or creates the file at path and its bucket
func OpenBolt(path, bucket string) (*Bolt, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	return &Bolt{db: db, bucket: []byte(bucket)}, nil
}

func (b *Bolt) Name() string {
	return "bolt"
}

// live decodes raw and reports whether it is still visible
func live(raw []byte, now int64) ([]byte, int64, bool, error) {
	if raw == nil {
		return nil, 0, false, nil
	}
	value, exp, err := decodeEntry(raw)
	if err != nil {
		return nil, 0, false, err
	}
	if expired(exp, now) {
		return nil, 0, false, nil
	}
	return value, exp, true, nil
}

func (b *Bolt) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		value, _, ok, err := live(tx.Bucket(b.bucket).Get(key), time.Now().UnixNano())
		if err != nil || !ok {
			return err
		}
		// bolt memory is valid only during the transaction
		out = append([]byte(nil), value...)
		found = true
		return nil
	})
	return out, found, err
}

func (b *Bolt) Set(key, value []byte, ttl time.Duration) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put(key, encodeEntry(value, deadline(ttl)))
	})
}

// update runs fn on the live entry of key inside a write transaction
func (b *Bolt) update(key []byte, fn func(bk *bolt.Bucket, value []byte, exp int64) error) (bool, error) {
	var found bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		raw := bk.Get(key)
		value, exp, ok, err := live(raw, time.Now().UnixNano())
		if err != nil {
			return err
		}
		if !ok {
			if raw != nil {
				return bk.Delete(key)
			}
			return nil
		}
		found = true
		return fn(bk, append([]byte(nil), value...), exp)
	})
	return found, err
}

func (b *Bolt) Delete(key []byte) (bool, error) {
	return b.update(key, func(bk *bolt.Bucket, _ []byte, _ int64) error {
		return bk.Delete(key)
	})
}

func (b *Bolt) Rename(key, newKey []byte) (bool, error) {
	return b.update(key, func(bk *bolt.Bucket, value []byte, exp int64) error {
		if err := bk.Delete(key); err != nil {
			return err
		}
		return bk.Put(newKey, encodeEntry(value, exp))
	})
}

func (b *Bolt) Expiry(key []byte) (time.Duration, ExpiryStatus, error) {
	var exp int64
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		_, exp, found, err = live(tx.Bucket(b.bucket).Get(key), time.Now().UnixNano())
		return err
	})
	if err != nil || !found {
		return 0, ExpNotFound, err
	}
	d, st := remaining(exp)
	return d, st, nil
}

func (b *Bolt) Expire(key []byte, ttl time.Duration) (bool, error) {
	return b.update(key, func(bk *bolt.Bucket, value []byte, _ int64) error {
		if ttl <= 0 {
			return bk.Delete(key)
		}
		return bk.Put(key, encodeEntry(value, deadline(ttl)))
	})
}

func (b *Bolt) Persist(key []byte) (bool, error) {
	var had bool
	_, err := b.update(key, func(bk *bolt.Bucket, value []byte, exp int64) error {
		if exp == 0 {
			return nil
		}
		had = true
		return bk.Put(key, encodeEntry(value, 0))
	})
	return had, err
}

func (b *Bolt) Keys(fn func(key []byte) bool) error {
	return b.db.View(func(tx *bolt.Tx) error {
		now := time.Now().UnixNano()
		c := tx.Bucket(b.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			_, _, ok, err := live(v, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if !fn(append([]byte(nil), k...)) {
				return nil
			}
		}
		return nil
	})
}

func (b *Bolt) Count() (int64, error) {
	var n int64
	err := b.Keys(func([]byte) bool {
		n++
		return true
	})
	return n, err
}

func (b *Bolt) Flush() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(b.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(b.bucket)
		return err
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
