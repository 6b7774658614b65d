package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Environment variable to configure log file path.
const envLogPath = "KVNODE_LOG"

var (
	mu            sync.Mutex
	std           *log.Logger
	logFile       *os.File
	isInitialized bool
)

// InitFromEnv initializes the logger using KVNODE_LOG or a default path.
// KVNODE_LOG=- sends output to stderr.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "-" {
		InitWriter(os.Stderr)
		return nil
	}
	if path == "" {
		// Default to the directory where the executable is located
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "kvnode.log")
		} else {
			path = "./kvnode.log"
		}
	}
	return Init(path)
}

// Init initializes the logger to write to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	std = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	isInitialized = true
	return nil
}

// InitWriter points the logger at w, replacing any previous destination.
// Tests use it with io.Discard or a buffer.
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	std = log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	isInitialized = true
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		std = nil
		isInitialized = false
		return err
	}
	return nil
}

// Printf logs a formatted message at info level.
func Printf(format string, args ...any) { write("INFO", format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { write("INFO", format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { write("WARN", format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { write("ERROR", format, args...) }

func write(level string, format string, args ...any) {
	mu.Lock()
	l := std
	mu.Unlock()
	if l == nil {
		// Fallback: initialize with default if not already.
		_ = InitFromEnv()
		mu.Lock()
		l = std
		mu.Unlock()
	}
	if l != nil {
		l.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
