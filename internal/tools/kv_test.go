package tools

import (
	"context"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/kvnode/internal/clock"
	"github.com/leonardcser/kvnode/internal/logger"
	"github.com/leonardcser/kvnode/internal/storage"
)

func TestMain(m *testing.M) {
	logger.InitWriter(io.Discard)
	os.Exit(m.Run())
}

func call(t *testing.T, h Handler, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestKVTools(t *testing.T) {
	fake := clock.NewFake(time.UnixMilli(5_000))
	store := storage.NewMemoryStore(storage.Options{MaxSize: 32, Clock: fake})

	out, isErr := call(t, KVSetHandler(store), map[string]any{"key": "greeting", "value": "hello"})
	require.False(t, isErr)
	require.Equal(t, `stored "greeting"`, out)

	out, isErr = call(t, KVGetHandler(store), map[string]any{"key": "greeting"})
	require.False(t, isErr)
	require.Equal(t, "hello", out)

	out, _ = call(t, KVHasHandler(store), map[string]any{"key": "greeting"})
	require.Equal(t, "true", out)

	out, isErr = call(t, KVSetHandler(store), map[string]any{"key": "tmp", "value": "x", "ttl_ms": float64(100)})
	require.False(t, isErr)
	require.Contains(t, out, "expires in 100ms")

	out, _ = call(t, KVKeysHandler(store), nil)
	require.Equal(t, "\"greeting\"\n\"tmp\"", out)

	fake.Advance(time.Second)
	out, _ = call(t, KVKeysHandler(store), nil)
	require.Equal(t, `"greeting"`, out)

	out, isErr = call(t, KVSetHandler(store), map[string]any{"key": "big", "value": string(make([]byte, 64))})
	require.True(t, isErr)
	require.Equal(t, storage.ErrCapacityExceeded.Error(), out)

	out, _ = call(t, KVDeleteHandler(store), map[string]any{"key": "greeting"})
	require.Equal(t, `deleted "greeting"`, out)
	out, _ = call(t, KVDeleteHandler(store), map[string]any{"key": "greeting"})
	require.Equal(t, `key "greeting" was not present`, out)

	out, isErr = call(t, KVGetHandler(store), map[string]any{"key": "greeting"})
	require.True(t, isErr)
	require.Equal(t, `key "greeting" not found`, out)

	require.NoError(t, store.Set([]byte("a"), []byte("1")))
	out, _ = call(t, KVClearHandler(store), nil)
	require.Equal(t, "cleared", out)
	out, _ = call(t, KVKeysHandler(store), nil)
	require.Equal(t, "No keys.", out)
}

func TestKVSetFractionalTTL(t *testing.T) {
	fake := clock.NewFake(time.UnixMilli(5_000))
	store := storage.NewMemoryStore(storage.Options{Clock: fake})

	_, isErr := call(t, KVSetHandler(store), map[string]any{"key": "k", "value": "v", "ttl_ms": 0.5})
	require.False(t, isErr)
	fake.Advance(time.Millisecond)
	out, _ := call(t, KVHasHandler(store), map[string]any{"key": "k"})
	require.Equal(t, "false", out)
}

func TestTTLFromMillis(t *testing.T) {
	require.Equal(t, 500*time.Microsecond, ttlFromMillis(0.5))
	require.Equal(t, 100*time.Millisecond, ttlFromMillis(100))
	require.Equal(t, time.Duration(0), ttlFromMillis(-3))
	require.Equal(t, time.Duration(math.MaxInt64), ttlFromMillis(1e300))
}

func TestKVToolsRequireKey(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	for _, h := range []Handler{KVGetHandler(store), KVSetHandler(store), KVDeleteHandler(store), KVHasHandler(store)} {
		_, isErr := call(t, h, map[string]any{})
		require.True(t, isErr)
	}
	_, isErr := call(t, KVSetHandler(store), map[string]any{"key": "k"})
	require.True(t, isErr)
}

func TestKVGetCancelled(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"key": "k"}
	res, err := KVGetHandler(store)(ctx, req)
	require.NoError(t, err)
	require.True(t, res.IsError)
}
