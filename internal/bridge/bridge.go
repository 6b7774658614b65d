// Package bridge exposes a storage backend to callers outside the Go runtime.
//
// A Handle wraps one backend. Calls never return Go errors: failures become a
// sentinel (nil result or false) and the error text is kept on the handle,
// retrievable through LastError. Each handle has its own diagnostic, so
// handles used from different threads do not overwrite each other's errors.
//
// Results that carry bytes (Get, Keys, LastErrorBuffer) are owned by the
// caller and must be released exactly once. The handle counts unreleased
// results, which lets tests and hosts detect leaks.
//
// The bridge adds no locking of its own; the backend serialises operations.
package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/leonardcser/kvnode/internal/storage"
)

// Kind is the integral backend selector used across the boundary.
type Kind int32

const (
	KindMemory Kind = iota
	KindPersistent
	KindCompressible
	KindBolt
)

func (k Kind) storageKind() (storage.Kind, bool) {
	switch k {
	case KindMemory:
		return storage.KindMemory, true
	case KindPersistent:
		return storage.KindPersistent, true
	case KindCompressible:
		return storage.KindCompressible, true
	case KindBolt:
		return storage.KindBolt, true
	}
	return "", false
}

// Config carries the construction parameters a foreign caller can pass.
type Config struct {
	MaxSize     int64
	Path        string
	Compression bool
}

var (
	ErrAlreadyReleased = errors.New("bridge: result already released")
	ErrFreed           = errors.New("bridge: handle freed")
	ErrInternal        = errors.New("bridge: internal failure")
)

// Handle is the opaque object a foreign caller holds.
type Handle struct {
	store       storage.Storage // nil when construction failed
	lastErr     atomic.Pointer[string]
	outstanding atomic.Int64
	freed       atomic.Bool
}

// Create builds a backend of the given kind. It always returns a handle; if
// construction fails the handle has no backend, every call on it returns its
// sentinel, and LastError describes the failure.
func Create(kind Kind, cfg Config) *Handle {
	h := &Handle{}
	sk, ok := kind.storageKind()
	if !ok {
		h.fail(fmt.Errorf("%w: %d", storage.ErrUnknownKind, kind))
		return h
	}
	s, err := storage.New(sk, storage.Options{
		MaxSize:     cfg.MaxSize,
		Path:        cfg.Path,
		Compression: cfg.Compression,
	})
	if err != nil {
		h.fail(err)
		return h
	}
	h.store = s
	return h
}

// Wrap puts an existing backend behind a handle.
func Wrap(s storage.Storage) *Handle {
	h := &Handle{store: s}
	if s == nil {
		h.fail(errors.New("bridge: nil backend"))
	}
	return h
}

// LastError returns the most recent failure recorded on h, or "".
func (h *Handle) LastError() string {
	if h == nil {
		return ""
	}
	if p := h.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

// LastErrorBuffer returns the diagnostic as an owned buffer, or nil if there
// is none.
func (h *Handle) LastErrorBuffer() *Buffer {
	msg := h.LastError()
	if msg == "" {
		return nil
	}
	return h.newBuffer([]byte(msg))
}

// ClearError resets the diagnostic.
func (h *Handle) ClearError() {
	if h != nil {
		h.lastErr.Store(nil)
	}
}

// Outstanding returns how many results from h have not been released.
func (h *Handle) Outstanding() int64 {
	if h == nil {
		return 0
	}
	return h.outstanding.Load()
}

// Get returns a copy of the value, or nil if the key is absent, expired, or
// the call failed.
func (h *Handle) Get(key []byte) *Buffer {
	var out *Buffer
	h.call("get", func(s storage.Storage) error {
		v, err := s.Get(bytes.Clone(key))
		if err != nil {
			return err
		}
		out = h.newBuffer(v)
		return nil
	})
	return out
}

func (h *Handle) Set(key, value []byte) bool {
	return h.call("set", func(s storage.Storage) error {
		return s.Set(bytes.Clone(key), bytes.Clone(value))
	})
}

// SetWithExpire stores value for ttlMs milliseconds; ttlMs <= 0 never expires.
func (h *Handle) SetWithExpire(key, value []byte, ttlMs int64) bool {
	return h.call("set_with_expire", func(s storage.Storage) error {
		return s.SetWithExpire(bytes.Clone(key), bytes.Clone(value), storage.MillisToDuration(ttlMs))
	})
}

// Delete reports whether the key existed. A missing key is not a failure and
// leaves the diagnostic alone.
func (h *Handle) Delete(key []byte) bool {
	var existed bool
	h.call("delete", func(s storage.Storage) error {
		var err error
		existed, err = s.Delete(bytes.Clone(key))
		return err
	})
	return existed
}

func (h *Handle) Has(key []byte) bool {
	var present bool
	h.call("has", func(s storage.Storage) error {
		var err error
		present, err = s.Has(bytes.Clone(key))
		return err
	})
	return present
}

// Keys returns the live keys, or nil if the call failed. An empty store
// yields an empty list, which must still be released.
func (h *Handle) Keys() *KeyList {
	var out *KeyList
	h.call("keys", func(s storage.Storage) error {
		keys, err := s.Keys()
		if err != nil {
			return err
		}
		out = h.newKeyList(keys)
		return nil
	})
	return out
}

func (h *Handle) Clear() bool {
	return h.call("clear", func(s storage.Storage) error { return s.Clear() })
}

func (h *Handle) Close() bool {
	return h.call("close", func(s storage.Storage) error { return s.Close() })
}

// Free closes the backend and retires the handle. Results already handed out
// stay valid until released. Free must not run concurrently with other calls
// on h; freeing twice is a no-op.
func (h *Handle) Free() {
	if h == nil || !h.freed.CompareAndSwap(false, true) {
		return
	}
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.fail(err)
		}
	}
}

// call runs fn against the backend and turns any error or panic into a false
// return plus a diagnostic.
func (h *Handle) call(op string, fn func(storage.Storage) error) (ok bool) {
	if h == nil {
		return false
	}
	if h.freed.Load() {
		h.fail(ErrFreed)
		return false
	}
	if h.store == nil {
		// Keep the construction failure readable.
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			h.fail(fmt.Errorf("%w: %s: %v", ErrInternal, op, r))
			ok = false
		}
	}()
	if err := fn(h.store); err != nil {
		h.fail(err)
		return false
	}
	return true
}

func (h *Handle) fail(err error) {
	msg := err.Error()
	h.lastErr.Store(&msg)
}
