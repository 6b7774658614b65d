package bridge

import "sync/atomic"

// Buffer is a byte result owned by the caller. Release must be called once.
type Buffer struct {
	data     []byte
	owner    *Handle
	released atomic.Bool
}

func (h *Handle) newBuffer(v []byte) *Buffer {
	data := make([]byte, len(v))
	copy(data, v)
	h.outstanding.Add(1)
	return &Buffer{data: data, owner: h}
}

// Bytes returns the contents, or nil once released.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.released.Load() {
		return nil
	}
	return b.data
}

func (b *Buffer) Len() int { return len(b.Bytes()) }

// Release hands the buffer back. A second call returns ErrAlreadyReleased.
func (b *Buffer) Release() error {
	if b == nil {
		return nil
	}
	if !b.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}
	b.data = nil
	b.owner.outstanding.Add(-1)
	return nil
}

// KeyList is a list of keys owned by the caller. Release must be called once
// and frees every key in the list.
type KeyList struct {
	keys     [][]byte
	owner    *Handle
	released atomic.Bool
}

func (h *Handle) newKeyList(keys [][]byte) *KeyList {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = append(make([]byte, 0, len(k)), k...)
	}
	h.outstanding.Add(1)
	return &KeyList{keys: out, owner: h}
}

// Len returns the number of keys, or 0 once released.
func (l *KeyList) Len() int {
	if l == nil || l.released.Load() {
		return 0
	}
	return len(l.keys)
}

// At returns key i. It panics if i is out of range.
func (l *KeyList) At(i int) []byte {
	if l.released.Load() {
		return nil
	}
	return l.keys[i]
}

// Release hands the list back. A second call returns ErrAlreadyReleased.
func (l *KeyList) Release() error {
	if l == nil {
		return nil
	}
	if !l.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}
	l.keys = nil
	l.owner.outstanding.Add(-1)
	return nil
}
