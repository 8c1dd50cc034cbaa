//go:build !unix
// +build !unix

package pcmsound

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

// LockFocus holds output focus by exclusively creating a lock file. A stale
// file left by a crashed process has to be removed by hand.
type LockFocus struct {
	path string

	mu   sync.Mutex
	held bool
}

// NewLockFocus creates a negotiator owning path.
func NewLockFocus(path string) *LockFocus {
	return &LockFocus{path: path}
}

// Request creates the lock file, declining if it already exists.
func (l *LockFocus) Request(ctx context.Context, req FocusRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		log.Debug("Focus lock held by another process", "path", l.path)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create lock file: %w", err)
	}
	if data := newLockContent(req); data != nil {
		_, _ = f.Write(data)
	}
	_ = f.Close()

	l.held = true
	return true, nil
}

// Abandon removes the lock file.
func (l *LockFocus) Abandon() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false
	return os.Remove(l.path)
}
