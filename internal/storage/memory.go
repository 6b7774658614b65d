package storage

import (
	"sync"
	"time"

	"github.com/leonardcser/kvnode/internal/clock"
	"github.com/leonardcser/kvnode/internal/logger"
)

// MemoryStore is a size-bounded in-memory store with per-entry expiry.
//
// Expiry is never enforced by a timer. Get and Has drop the single expired
// key they touch; Keys sweeps every expired entry before listing. Expired
// entries keep counting against the size budget until one of those removes
// them.
//
// One mutex guards all state and is held for the whole of each exported
// method. Methods ending in Locked require the caller to hold it and never
// take it themselves; exported methods must not call each other.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	expiries map[string]int64 // unix millis; only keys that expire
	maxSize  int64
	size     int64
	clock    clock.Clock
}

var _ Storage = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store with the budget in opts.MaxSize.
func NewMemoryStore(opts Options) *MemoryStore {
	opts = opts.withDefaults()
	return &MemoryStore{
		data:     make(map[string][]byte),
		expiries: make(map[string]int64),
		maxSize:  opts.MaxSize,
		clock:    opts.Clock,
	}
}

func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	if s.expiredLocked(k, clock.UnixMilli(s.clock)) {
		s.removeLocked(k)
		return nil, ErrNotFound
	}
	v, ok := s.data[k]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, v...), nil
}

func (s *MemoryStore) Set(key, value []byte) error {
	return s.SetWithExpire(key, value, 0)
}

func (s *MemoryStore) SetWithExpire(key, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	next := s.size + entrySize(k, value)
	if old, ok := s.data[k]; ok {
		next -= entrySize(k, old)
	}
	if s.maxSize > 0 && next > s.maxSize {
		return ErrCapacityExceeded
	}

	s.size = next
	s.data[k] = append([]byte{}, value...)
	if at := expiryFor(s.clock, ttl); at > 0 {
		s.expiries[k] = at
	} else {
		delete(s.expiries, k)
	}
	return nil
}

func (s *MemoryStore) Delete(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(string(key)), nil
}

func (s *MemoryStore) Has(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	if s.expiredLocked(k, clock.UnixMilli(s.clock)) {
		s.removeLocked(k)
		return false, nil
	}
	_, ok := s.data[k]
	return ok, nil
}

func (s *MemoryStore) Keys() ([][]byte, error) {
	s.mu.Lock()
	swept, freed := s.sweepLocked(clock.UnixMilli(s.clock))
	keys := make([][]byte, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, []byte(k))
	}
	s.mu.Unlock()

	if swept > 0 {
		logger.Infof("[memory] swept %d expired entries, freed %d bytes", swept, freed)
	}
	return keys, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	return nil
}

// Close empties the store. There is nothing else to release.
func (s *MemoryStore) Close() error {
	return s.Clear()
}

// Size returns the running total of len(key)+len(value), including expired
// entries not yet removed.
func (s *MemoryStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Len returns the number of physically present entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *MemoryStore) MaxSize() int64 { return s.maxSize }

func (s *MemoryStore) expiredLocked(k string, now int64) bool {
	at, ok := s.expiries[k]
	return ok && expired(at, now)
}

// removeLocked drops k from both maps and the size total.
func (s *MemoryStore) removeLocked(k string) bool {
	v, ok := s.data[k]
	if !ok {
		return false
	}
	s.size -= entrySize(k, v)
	delete(s.data, k)
	delete(s.expiries, k)
	return true
}

// sweepLocked collects the expired keys in one pass, then removes each once.
func (s *MemoryStore) sweepLocked(now int64) (count int, freed int64) {
	var dead []string
	for k, at := range s.expiries {
		if expired(at, now) {
			dead = append(dead, k)
		}
	}
	for _, k := range dead {
		before := s.size
		if s.removeLocked(k) {
			count++
			freed += before - s.size
		}
	}
	return count, freed
}

func (s *MemoryStore) clearLocked() {
	s.data = make(map[string][]byte)
	s.expiries = make(map[string]int64)
	s.size = 0
}
