package main

import (
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leonardcser/kvnode/internal/config"
	"github.com/leonardcser/kvnode/internal/daemon"
	"github.com/leonardcser/kvnode/internal/logger"
	"github.com/leonardcser/kvnode/internal/metrics"
	"github.com/leonardcser/kvnode/internal/storage"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Errorf("config: %v", err)
		panic(err)
	}

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(cfg.Socket), 0o755)
	_ = os.Remove(cfg.Socket)

	l, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		panic(err)
	}
	_ = os.Chmod(cfg.Socket, 0o600)

	if cfg.Backend == storage.KindBolt {
		_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	}
	store, err := storage.New(cfg.Backend, cfg.StorageOptions())
	if err != nil {
		logger.Errorf("open %s backend: %v", cfg.Backend, err)
		_ = l.Close()
		panic(err)
	}
	defer store.Close()

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		if sized, ok := store.(metrics.Sized); ok {
			if err := m.TrackSize(sized); err != nil {
				logger.Warnf("metrics: %v", err)
			}
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		defer srv.Close()
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		logger.Infof("serving metrics on http://%s/metrics", cfg.MetricsAddr)
	}

	// Closing the listener makes Serve return so deferred cleanup runs.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		logger.Infof("received %s, shutting down", s)
		_ = l.Close()
	}()

	logger.Infof("kvnode daemon serving %s backend (max size %d) on %s", cfg.Backend, cfg.MaxSize, cfg.Socket)
	if err := daemon.Serve(l, store, m); err != nil {
		logger.Errorf("serve: %v", err)
	}
	_ = os.Remove(cfg.Socket)
}
