package main

/*
#include <stdlib.h>
#include "kvnode.h"
*/
import "C"

import (
	"unsafe"

	"github.com/leonardcser/kvnode/internal/bridge"
)

// Go-typed calls through the exported C entry points. Arguments are staged in
// C memory the way a C host would pass them.

func cArg(b []byte) (*C.char, C.size_t, func()) {
	if len(b) == 0 {
		return nil, 0, func() {}
	}
	p := (*C.char)(C.CBytes(b))
	return p, C.size_t(len(b)), func() { C.free(unsafe.Pointer(p)) }
}

func takeBuffer(p *C.char, n C.size_t) []byte {
	if p == nil {
		return nil
	}
	defer kvnode_free_value(p)
	return C.GoBytes(unsafe.Pointer(p), C.int(n))
}

func callCreate(kind bridge.Kind, maxSize int64, path string, compression bool) uintptr {
	p, n, free := cArg([]byte(path))
	defer free()
	var c C.int
	if compression {
		c = 1
	}
	return uintptr(kvnode_create(C.int(kind), C.longlong(maxSize), p, n, c))
}

func callLastError(h uintptr) string {
	var n C.size_t
	return string(takeBuffer(kvnode_last_error(C.uintptr_t(h), &n), n))
}

func callClearError(h uintptr) { kvnode_clear_error(C.uintptr_t(h)) }

// callGet returns nil when the lookup fails.
func callGet(h uintptr, key []byte) []byte {
	kp, kn, free := cArg(key)
	defer free()
	var n C.size_t
	return takeBuffer(kvnode_get(C.uintptr_t(h), kp, kn, &n), n)
}

func callSet(h uintptr, key, value []byte) bool {
	return callSetWithExpire(h, key, value, 0)
}

func callSetWithExpire(h uintptr, key, value []byte, ttlMs int64) bool {
	kp, kn, freeKey := cArg(key)
	defer freeKey()
	vp, vn, freeValue := cArg(value)
	defer freeValue()
	if ttlMs == 0 {
		return kvnode_set(C.uintptr_t(h), kp, kn, vp, vn) == 1
	}
	return kvnode_set_with_expire(C.uintptr_t(h), kp, kn, vp, vn, C.longlong(ttlMs)) == 1
}

func callDelete(h uintptr, key []byte) bool {
	kp, kn, free := cArg(key)
	defer free()
	return kvnode_delete(C.uintptr_t(h), kp, kn) == 1
}

func callHas(h uintptr, key []byte) bool {
	kp, kn, free := cArg(key)
	defer free()
	return kvnode_has(C.uintptr_t(h), kp, kn) == 1
}

// callKeys reports ok=false when kvnode_keys returned NULL.
func callKeys(h uintptr) (keys [][]byte, ok bool) {
	var n C.size_t
	arr := kvnode_keys(C.uintptr_t(h), &n)
	if arr == nil {
		return nil, false
	}
	defer kvnode_free_keys(arr, n)
	for _, item := range unsafe.Slice(arr, int(n)) {
		keys = append(keys, C.GoBytes(unsafe.Pointer(item.data), C.int(item.size)))
	}
	return keys, true
}

func callClear(h uintptr) bool { return kvnode_clear(C.uintptr_t(h)) == 1 }

func callClose(h uintptr) bool { return kvnode_close(C.uintptr_t(h)) == 1 }

func callFree(h uintptr) { kvnode_free(C.uintptr_t(h)) }
