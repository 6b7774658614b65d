package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/leonardcser/kvnode/internal/clock"
	"github.com/leonardcser/kvnode/internal/compress"
	"github.com/leonardcser/kvnode/internal/logger"
)

var (
	dataBucket = []byte("kvnode")
	metaBucket = []byte("kvnode.meta")
	codecKey   = []byte("codec")
)

// Stored record layout:
//
//	8 bytes big endian expiresAt (unix millis, 0 = never)
//	4 bytes big endian length of the uncompressed value
//	encoded value
const headerLen = 12

// Bolt keys carry a one byte prefix so that empty caller keys are storable.
const keyPrefix = 'k'

var errCorruptRecord = errors.New("storage: corrupt bolt record")

// BoltStore keeps entries in a bbolt file with the same budget and expiry
// rules as MemoryStore. The budget is charged on uncompressed sizes. Close
// releases the file and keeps its contents.
type BoltStore struct {
	mu      sync.Mutex
	db      *bolt.DB
	codec   compress.Codec
	clock   clock.Clock
	maxSize int64
	size    int64
	closed  bool
}

var _ Storage = (*BoltStore)(nil)

// OpenBolt opens or creates the database at opts.Path. Reopening a file with
// a different codec than it was written with fails.
func OpenBolt(opts Options) (*BoltStore, error) {
	opts = opts.withDefaults()
	if opts.Path == "" {
		return nil, errors.New("storage: bolt backend needs a path")
	}
	codec, err := compress.New(opts.Codec, compress.LevelDefault)
	if err != nil {
		return nil, err
	}
	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", opts.Path, err)
	}
	s := &BoltStore{db: db, codec: codec, clock: opts.Clock, maxSize: opts.MaxSize}
	if err := db.Update(s.initBuckets); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Infof("[bolt] opened %s (codec=%s, entries=%d bytes)", opts.Path, codec.Type(), s.size)
	return s, nil
}

func (s *BoltStore) initBuckets(tx *bolt.Tx) error {
	meta, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}
	want := []byte(s.codec.Type())
	if have := meta.Get(codecKey); have == nil {
		if err := meta.Put(codecKey, want); err != nil {
			return err
		}
	} else if string(have) != string(want) {
		return fmt.Errorf("storage: file written with codec %q, opened with %q", have, want)
	}

	b, err := tx.CreateBucketIfNotExists(dataBucket)
	if err != nil {
		return err
	}
	s.size = 0
	return b.ForEach(func(k, v []byte) error {
		_, rawLen, _, err := decodeRecord(v)
		if err != nil {
			return err
		}
		s.size += int64(len(k)-1) + int64(rawLen)
		return nil
	})
}

func (s *BoltStore) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	now := clock.UnixMilli(s.clock)
	var out []byte
	var found, stale bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get(boltKey(key))
		if v == nil {
			return nil
		}
		found = true
		expiresAt, _, payload, err := decodeRecord(v)
		if err != nil {
			return err
		}
		if expired(expiresAt, now) {
			stale = true
			return nil
		}
		dec, err := s.codec.Decompress(payload)
		if err != nil {
			return err
		}
		out = append([]byte{}, dec...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: bolt get: %w", err)
	}
	if stale {
		if _, err := s.removeLocked(key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if !found {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *BoltStore) Set(key, value []byte) error {
	return s.SetWithExpire(key, value, 0)
}

func (s *BoltStore) SetWithExpire(key, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	payload, err := s.codec.Compress(value)
	if err != nil {
		return fmt.Errorf("storage: compress: %w", err)
	}
	rec := encodeRecord(expiryFor(s.clock, ttl), len(value), payload)

	next := s.size + int64(len(key)+len(value))
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		bk := boltKey(key)
		if old := b.Get(bk); old != nil {
			_, oldLen, _, err := decodeRecord(old)
			if err != nil {
				return err
			}
			next -= int64(len(key)) + int64(oldLen)
		}
		if s.maxSize > 0 && next > s.maxSize {
			return ErrCapacityExceeded
		}
		return b.Put(bk, rec)
	})
	if errors.Is(err, ErrCapacityExceeded) {
		return err
	}
	if err != nil {
		return fmt.Errorf("storage: bolt put: %w", err)
	}
	s.size = next
	return nil
}

func (s *BoltStore) Delete(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.removeLocked(key)
}

func (s *BoltStore) Has(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	now := clock.UnixMilli(s.clock)
	var found, stale bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get(boltKey(key))
		if v == nil {
			return nil
		}
		expiresAt, _, _, err := decodeRecord(v)
		if err != nil {
			return err
		}
		found = true
		stale = expired(expiresAt, now)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage: bolt has: %w", err)
	}
	if stale {
		if _, err := s.removeLocked(key); err != nil {
			return false, err
		}
		return false, nil
	}
	return found, nil
}

func (s *BoltStore) Keys() ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	now := clock.UnixMilli(s.clock)
	var keys [][]byte
	var freed int64
	swept := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		var dead [][]byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			expiresAt, rawLen, _, err := decodeRecord(v)
			if err != nil {
				return err
			}
			if expired(expiresAt, now) {
				dead = append(dead, append([]byte{}, k...))
				freed += int64(len(k)-1) + int64(rawLen)
				continue
			}
			keys = append(keys, append([]byte{}, k[1:]...))
		}
		for _, k := range dead {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		swept = len(dead)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: bolt keys: %w", err)
	}
	s.size -= freed
	if swept > 0 {
		logger.Infof("[bolt] swept %d expired entries, freed %d bytes", swept, freed)
	}
	if keys == nil {
		keys = [][]byte{}
	}
	return keys, nil
}

func (s *BoltStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(dataBucket); err != nil && !errors.Is(err, berrors.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(dataBucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: bolt clear: %w", err)
	}
	s.size = 0
	return nil
}

// Close closes the database file. Further calls fail with ErrClosed; closing
// twice is a no-op.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Size returns the running total of len(key)+len(value) over stored records.
func (s *BoltStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// removeLocked deletes key in its own transaction and updates the size total.
func (s *BoltStore) removeLocked(key []byte) (bool, error) {
	var existed bool
	var freed int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		bk := boltKey(key)
		v := b.Get(bk)
		if v == nil {
			return nil
		}
		_, rawLen, _, err := decodeRecord(v)
		if err != nil {
			return err
		}
		existed = true
		freed = int64(len(key)) + int64(rawLen)
		return b.Delete(bk)
	})
	if err != nil {
		return false, fmt.Errorf("storage: bolt delete: %w", err)
	}
	s.size -= freed
	return existed, nil
}

func boltKey(key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = keyPrefix
	copy(out[1:], key)
	return out
}

func encodeRecord(expiresAt int64, rawLen int, payload []byte) []byte {
	buf := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	binary.BigEndian.PutUint32(buf[8:12], uint32(rawLen))
	copy(buf[headerLen:], payload)
	return buf
}

func decodeRecord(v []byte) (expiresAt int64, rawLen uint32, payload []byte, err error) {
	if len(v) < headerLen {
		return 0, 0, nil, errCorruptRecord
	}
	expiresAt = int64(binary.BigEndian.Uint64(v[:8]))
	rawLen = binary.BigEndian.Uint32(v[8:12])
	return expiresAt, rawLen, v[headerLen:], nil
}
