package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/kvnode/internal/storage"
)

// Handler is the mcp-go tool handler signature.
type Handler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// KVGetHandler returns the handler for the "kv-get" tool.
func KVGetHandler(store storage.Storage) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, err := store.Get([]byte(key))
		if errors.Is(err, storage.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("key %q not found", key)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(v)), nil
	}
}

// KVSetHandler returns the handler for the "kv-set" tool.
func KVSetHandler(store storage.Storage) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ttl := ttlFromMillis(req.GetFloat("ttl_ms", 0))
		if err := store.SetWithExpire([]byte(key), []byte(value), ttl); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if ttl > 0 {
			return mcp.NewToolResultText(fmt.Sprintf("stored %q (expires in %s)", key, ttl)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("stored %q", key)), nil
	}
}

// KVDeleteHandler returns the handler for the "kv-delete" tool.
func KVDeleteHandler(store storage.Storage) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		existed, err := store.Delete([]byte(key))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !existed {
			return mcp.NewToolResultText(fmt.Sprintf("key %q was not present", key)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("deleted %q", key)), nil
	}
}

// KVHasHandler returns the handler for the "kv-has" tool.
func KVHasHandler(store storage.Storage) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ok, err := store.Has([]byte(key))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%t", ok)), nil
	}
}

// KVKeysHandler returns the handler for the "kv-keys" tool.
func KVKeysHandler(store storage.Storage) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keys, err := store.Keys()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatKeys(keys)), nil
	}
}

// KVClearHandler returns the handler for the "kv-clear" tool.
func KVClearHandler(store storage.Storage) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := store.Clear(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("cleared"), nil
	}
}

// formatKeys renders one key per line in sorted order.
func formatKeys(keys [][]byte) string {
	if len(keys) == 0 {
		return "No keys."
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = fmt.Sprintf("%q", k)
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

// ttlFromMillis keeps fractional milliseconds and saturates at the largest
// Duration.
func ttlFromMillis(ms float64) time.Duration {
	ns := ms * float64(time.Millisecond)
	switch {
	case !(ns > 0):
		return 0
	case ns >= math.MaxInt64:
		return math.MaxInt64
	}
	return time.Duration(ns)
}
