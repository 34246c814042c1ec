// Package logger provides leveled logging for openindex.
// Debug output is gated behind verbose mode; Info and above are always
// printed to stderr so operators can follow sync and indexing progress.
package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "[DEBUG] "+format+"\n", args...)
	}
}

// Info prints an informational message.
func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	fmt.Fprintf(output, "[INFO] "+format+"\n", args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	fmt.Fprintf(output, "[WARN] "+format+"\n", args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	fmt.Fprintf(output, "[ERROR] "+format+"\n", args...)
}

// RedactToken renders a credential in a loggable form without exposing it.
// The output carries enough information to correlate tokens across log
// lines (length, textual prefix, hash prefix) but cannot be reversed.
func RedactToken(token string) string {
	if token == "" {
		return "len=0"
	}
	prefix := token
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("len=%d, prefix=%s, sha256_prefix=%s",
		len(token), prefix, hex.EncodeToString(sum[:])[:12])
}
