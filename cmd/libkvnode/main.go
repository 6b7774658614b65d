// Command libkvnode builds the kvnode C library:
//
//	go build -buildmode=c-shared -o libkvnode.so ./cmd/libkvnode
//
// Every kvnode_create result is a non-zero handle, even when construction
// fails; read the reason with kvnode_last_error and release the handle with
// kvnode_free. A freed or unknown handle is rejected with the usual 0/NULL
// result, so freeing twice is harmless. Buffers returned by kvnode_get and
// kvnode_last_error are released with kvnode_free_value; arrays returned by
// kvnode_keys with kvnode_free_keys. Keys and values are length-delimited and
// may contain NUL.
//
// kvnode_keys returns NULL only on failure. An empty store yields a non-NULL
// array with *count == 0, which must still be passed to kvnode_free_keys.
package main

/*
#include <stdlib.h>
#include "kvnode.h"
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/leonardcser/kvnode/internal/bridge"
)

func main() {}

// Live handles. IDs are never reused, so a stale ID misses the map.
var (
	handlesMu  sync.Mutex
	handles    = make(map[uintptr]*bridge.Handle)
	lastHandle uintptr
)

func register(hd *bridge.Handle) C.uintptr_t {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	lastHandle++
	handles[lastHandle] = hd
	return C.uintptr_t(lastHandle)
}

func handleOf(h C.uintptr_t) *bridge.Handle {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	return handles[uintptr(h)]
}

func unregister(h C.uintptr_t) *bridge.Handle {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	hd := handles[uintptr(h)]
	delete(handles, uintptr(h))
	return hd
}

// goBytes views C memory without copying; the bridge copies before storing.
func goBytes(p *C.char, n C.size_t) []byte {
	if p == nil || n == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n))
}

func cBool(ok bool) C.int {
	if ok {
		return 1
	}
	return 0
}

// cBuffer copies an owned Go result into C memory and releases the Go side.
func cBuffer(buf *bridge.Buffer, n *C.size_t) *C.char {
	if n != nil {
		*n = 0
	}
	if buf == nil {
		return nil
	}
	defer buf.Release()
	if n != nil {
		*n = C.size_t(buf.Len())
	}
	return (*C.char)(C.CBytes(buf.Bytes()))
}

//export kvnode_create
func kvnode_create(kind C.int, maxSize C.longlong, path *C.char, pathLen C.size_t, compression C.int) C.uintptr_t {
	cfg := bridge.Config{MaxSize: int64(maxSize), Compression: compression != 0}
	if path != nil && pathLen > 0 {
		cfg.Path = string(goBytes(path, pathLen))
	}
	return register(bridge.Create(bridge.Kind(kind), cfg))
}

//export kvnode_last_error
func kvnode_last_error(h C.uintptr_t, n *C.size_t) *C.char {
	return cBuffer(handleOf(h).LastErrorBuffer(), n)
}

//export kvnode_clear_error
func kvnode_clear_error(h C.uintptr_t) {
	handleOf(h).ClearError()
}

//export kvnode_get
func kvnode_get(h C.uintptr_t, key *C.char, keyLen C.size_t, valueLen *C.size_t) *C.char {
	return cBuffer(handleOf(h).Get(goBytes(key, keyLen)), valueLen)
}

//export kvnode_free_value
func kvnode_free_value(p *C.char) {
	if p != nil {
		C.free(unsafe.Pointer(p))
	}
}

//export kvnode_set
func kvnode_set(h C.uintptr_t, key *C.char, keyLen C.size_t, value *C.char, valueLen C.size_t) C.int {
	return cBool(handleOf(h).Set(goBytes(key, keyLen), goBytes(value, valueLen)))
}

//export kvnode_set_with_expire
func kvnode_set_with_expire(h C.uintptr_t, key *C.char, keyLen C.size_t, value *C.char, valueLen C.size_t, ttlMs C.longlong) C.int {
	return cBool(handleOf(h).SetWithExpire(goBytes(key, keyLen), goBytes(value, valueLen), int64(ttlMs)))
}

//export kvnode_delete
func kvnode_delete(h C.uintptr_t, key *C.char, keyLen C.size_t) C.int {
	return cBool(handleOf(h).Delete(goBytes(key, keyLen)))
}

//export kvnode_has
func kvnode_has(h C.uintptr_t, key *C.char, keyLen C.size_t) C.int {
	return cBool(handleOf(h).Has(goBytes(key, keyLen)))
}

//export kvnode_keys
func kvnode_keys(h C.uintptr_t, count *C.size_t) *C.kvnode_buf {
	if count != nil {
		*count = 0
	}
	list := handleOf(h).Keys()
	if list == nil {
		return nil
	}
	defer list.Release()

	n := list.Len()
	// malloc(0) may return NULL, which would read as failure.
	size := C.size_t(n) * C.size_t(unsafe.Sizeof(C.kvnode_buf{}))
	if size == 0 {
		size = 1
	}
	arr := (*C.kvnode_buf)(C.malloc(size))
	if arr == nil {
		return nil
	}
	items := unsafe.Slice(arr, n)
	for i := 0; i < n; i++ {
		k := list.At(i)
		items[i].data = (*C.char)(C.CBytes(k))
		items[i].size = C.size_t(len(k))
	}
	if count != nil {
		*count = C.size_t(n)
	}
	return arr
}

//export kvnode_free_keys
func kvnode_free_keys(arr *C.kvnode_buf, count C.size_t) {
	if arr == nil {
		return
	}
	for _, item := range unsafe.Slice(arr, int(count)) {
		C.free(unsafe.Pointer(item.data))
	}
	C.free(unsafe.Pointer(arr))
}

//export kvnode_clear
func kvnode_clear(h C.uintptr_t) C.int {
	return cBool(handleOf(h).Clear())
}

//export kvnode_close
func kvnode_close(h C.uintptr_t) C.int {
	return cBool(handleOf(h).Close())
}

//export kvnode_free
func kvnode_free(h C.uintptr_t) {
	unregister(h).Free()
}
