package storage

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// entryHeader is the size of the expiration prefix of an encoded entry
const entryHeader = 8

var errShortEntry = errors.New("storage: corrupted entry")

// encodeEntry lays out a value for engines without native TTL:
// 8 bytes little endian deadline in unix nanoseconds (0 means no TTL), then the value
func encodeEntry(value []byte, expireAt int64) []byte {
	buf := make([]byte, entryHeader+len(value))
	binary.LittleEndian.PutUint64(buf[:entryHeader], uint64(expireAt))
	copy(buf[entryHeader:], value)
	return buf
}

// decodeEntry splits an encoded entry. The returned value aliases raw
func decodeEntry(raw []byte) ([]byte, int64, error) {
	if len(raw) < entryHeader {
		return nil, 0, errShortEntry
	}
	return raw[entryHeader:], int64(binary.LittleEndian.Uint64(raw[:entryHeader])), nil
}

// deadline converts a ttl into an absolute expiration, 0 for none.
// Deadlines past the unix nanosecond range saturate
func deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	now := time.Now().UnixNano()
	if int64(ttl) > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + int64(ttl)
}

func expired(expireAt, now int64) bool {
	return expireAt > 0 && now > expireAt
}

// remaining converts an absolute deadline into Expiry results
func remaining(expireAt int64) (time.Duration, ExpiryStatus) {
	if expireAt == 0 {
		return 0, ExpNoTimeout
	}
	now := time.Now().UnixNano()
	if now > expireAt {
		return 0, ExpNotFound
	}
	return time.Duration(expireAt - now), ExpActive
}
