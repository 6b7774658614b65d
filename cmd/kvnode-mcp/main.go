package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/kvnode/internal/config"
	"github.com/leonardcser/kvnode/internal/daemon"
	"github.com/leonardcser/kvnode/internal/logger"
	"github.com/leonardcser/kvnode/internal/tools"
)

const daemonBinary = "kvnode-daemon"

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting kvnode MCP server")

	sock := config.DefaultSocketPath()
	if s := os.Getenv(config.EnvSocket); s != "" {
		sock = s
	}
	logger.Infof("Attempting to connect to kvnode daemon at %s", sock)
	client := daemon.NewClient(sock)
	if err := client.Ping(); err != nil {
		logger.Warnf("Failed to connect to kvnode daemon: %v, attempting to start daemon", err)
		if startErr := startDaemon(); startErr != nil {
			logger.Errorf("Failed to start kvnode daemon: %v", startErr)
		} else {
			logger.Infof("kvnode daemon started successfully")
		}
		// wait for socket to appear
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if err = client.Ping(); err == nil {
				break
			}
			time.Sleep(200 * time.Millisecond)
		}
		if err != nil {
			logger.Errorf("Failed to connect to kvnode daemon after startup attempt: %v", err)
			panic(err)
		}
	}
	logger.Infof("Successfully connected to kvnode daemon")

	s := server.NewMCPServer(
		"kvnode",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	keyArg := mcp.WithString("key", mcp.Required(), mcp.Description("The key, as text"))

	s.AddTool(mcp.NewTool("kv-get",
		mcp.WithDescription("Returns the value stored under a key. Fails if the key is absent or expired."),
		keyArg,
	), tools.KVGetHandler(client))

	s.AddTool(mcp.NewTool("kv-set",
		mcp.WithDescription(multiline(
			"Stores a value under a key",
			"\nUsage notes:",
			"- ttl_ms > 0 makes the entry expire after that many milliseconds",
			"- Writes that would exceed the node's size budget are rejected; nothing is evicted",
		)),
		keyArg,
		mcp.WithString("value", mcp.Required(), mcp.Description("The value, as text")),
		mcp.WithNumber("ttl_ms", mcp.Description("Time to live in milliseconds; omit or 0 for no expiry")),
	), tools.KVSetHandler(client))

	s.AddTool(mcp.NewTool("kv-delete",
		mcp.WithDescription("Removes a key and reports whether it was present."),
		keyArg,
	), tools.KVDeleteHandler(client))

	s.AddTool(mcp.NewTool("kv-has",
		mcp.WithDescription("Reports whether a key is present and not expired."),
		keyArg,
	), tools.KVHasHandler(client))

	s.AddTool(mcp.NewTool("kv-keys",
		mcp.WithDescription("Drops expired entries and lists the remaining keys."),
	), tools.KVKeysHandler(client))

	s.AddTool(mcp.NewTool("kv-clear",
		mcp.WithDescription("Removes every entry from the node."),
	), tools.KVClearHandler(client))
	logger.Infof("Registered kv tools")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

func startDaemon() error {
	// 1) Try daemon binary next to this server executable (works with absolute invocation)
	if exePath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exePath), daemonBinary)
		if _, statErr := os.Stat(sibling); statErr == nil {
			return spawn(sibling)
		}
	}

	// 2) Try PATH binary
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return spawn(path)
	}

	// 3) Try local binary in current working directory (best-effort)
	if _, err := os.Stat("./" + daemonBinary); err == nil {
		return spawn("./" + daemonBinary)
	}

	return exec.ErrNotFound
}

func spawn(path string) error {
	cmd := exec.Command(path)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	return cmd.Start()
}
