package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leonardcser/kvnode/internal/compress"
	"github.com/leonardcser/kvnode/internal/storage"
)

// Environment variables read by FromEnv.
const (
	EnvSocket  = "KVNODE_SOCK"
	EnvBackend = "KVNODE_BACKEND"
	EnvMaxSize = "KVNODE_MAX_SIZE"
	EnvDB      = "KVNODE_DB"
	EnvCodec   = "KVNODE_CODEC"
	// EnvMetrics is a listen address for /metrics; empty disables it.
	EnvMetrics = "KVNODE_METRICS_ADDR"
)

// Config holds daemon and client settings.
type Config struct {
	Socket  string
	Backend storage.Kind
	// MaxSize is the store budget in bytes; 0 means unbounded.
	MaxSize int64
	DBPath  string
	Codec   compress.Type

	// MetricsAddr, when set, serves Prometheus metrics over HTTP.
	MetricsAddr string
}

// FromEnv reads the KVNODE_* variables, falling back to defaults under
// ~/.cache/kvnode.
func FromEnv() (Config, error) {
	cfg := Config{
		Socket: defaultString(os.Getenv(EnvSocket), DefaultSocketPath()),
		DBPath: defaultString(os.Getenv(EnvDB), DefaultDBPath()),

		MetricsAddr: strings.TrimSpace(os.Getenv(EnvMetrics)),
	}

	kind, err := storage.ParseKind(os.Getenv(EnvBackend))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", EnvBackend, err)
	}
	cfg.Backend = kind

	if raw := strings.TrimSpace(os.Getenv(EnvMaxSize)); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvMaxSize, err)
		}
		cfg.MaxSize = n
	}

	codec, err := compress.ParseType(os.Getenv(EnvCodec))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", EnvCodec, err)
	}
	cfg.Codec = codec
	return cfg, nil
}

// StorageOptions converts the config into backend options.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		MaxSize:     c.MaxSize,
		Path:        c.DBPath,
		Compression: c.Codec != compress.None,
		Codec:       c.Codec,
	}
}

func DefaultSocketPath() string {
	return filepath.Join(cacheDir(), "kvnode.sock")
}

func DefaultDBPath() string {
	return filepath.Join(cacheDir(), "kvnode.bolt")
}

func cacheDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "kvnode")
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
