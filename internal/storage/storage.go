package storage

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/leonardcser/kvnode/internal/clock"
	"github.com/leonardcser/kvnode/internal/compress"
)

// Storage is the capability set every backend provides. Keys and values are
// opaque bytes. Implementations must be safe for concurrent use by multiple
// goroutines and copy keys and values rather than retain caller memory.
type Storage interface {
	// Get returns the value for key, or ErrNotFound if it is absent or expired.
	Get(key []byte) ([]byte, error)
	// Set stores value with no expiry.
	Set(key, value []byte) error
	// SetWithExpire stores value expiring ttl from now; ttl <= 0 never expires.
	// It returns ErrCapacityExceeded, without changing anything, if the write
	// would exceed the size budget.
	SetWithExpire(key, value []byte, ttl time.Duration) error
	// Delete removes key and reports whether it was present.
	Delete(key []byte) (bool, error)
	// Has reports whether key is present and not expired.
	Has(key []byte) (bool, error)
	// Keys removes every expired entry and returns the remaining keys in no
	// particular order.
	Keys() ([][]byte, error)
	// Clear removes every entry.
	Clear() error
	// Close releases the backend.
	Close() error
}

// Kind selects a backend.
type Kind string

const (
	KindMemory Kind = "memory"
	// KindPersistent is a log-structured on-disk store. Not implemented.
	KindPersistent Kind = "persistent"
	// KindCompressible is a persistent store with block compression. Not implemented.
	KindCompressible Kind = "compressible"
	// KindBolt keeps entries in a bbolt file.
	KindBolt Kind = "bolt"
)

// ParseKind maps a config tag to a Kind. Empty means KindMemory.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "":
		return KindMemory, nil
	case KindMemory, KindPersistent, KindCompressible, KindBolt:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Options configures a backend. Fields a backend does not use are ignored.
type Options struct {
	// MaxSize caps the sum of len(key)+len(value) over stored entries.
	// Zero or negative means unbounded.
	MaxSize int64
	// Path is the database file for on-disk backends.
	Path string
	// Compression enables value compression on backends that support it.
	Compression bool
	// Codec picks the compression codec; defaults to snappy when Compression is set.
	Codec compress.Type
	// Clock defaults to the system clock.
	Clock clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Compression && (o.Codec == "" || o.Codec == compress.None) {
		o.Codec = compress.Snappy
	}
	if !o.Compression {
		o.Codec = compress.None
	}
	return o
}

// New constructs the backend named by kind.
func New(kind Kind, opts Options) (Storage, error) {
	switch kind {
	case KindMemory:
		return NewMemoryStore(opts), nil
	case KindBolt:
		s, err := OpenBolt(opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindPersistent, KindCompressible:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}

// entrySize is the budget charge for one entry.
func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

// expiryFor converts a ttl into an absolute expiry in unix milliseconds, or 0
// for entries that never expire. Sub-millisecond ttls round up to 1ms.
// MillisToDuration converts a millisecond TTL from an outer surface. Values
// <= 0 map to 0 (never expires); values past the Duration range saturate.
func MillisToDuration(ms int64) time.Duration {
	switch {
	case ms <= 0:
		return 0
	case ms > math.MaxInt64/int64(time.Millisecond):
		return math.MaxInt64
	}
	return time.Duration(ms) * time.Millisecond
}

func expiryFor(c clock.Clock, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	ms := ttl.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return clock.UnixMilli(c) + ms
}

// expired reports whether an absolute expiry has passed at now.
func expired(expiresAt, now int64) bool {
	return expiresAt > 0 && expiresAt <= now
}
