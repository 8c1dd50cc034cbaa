//go:build unix
// +build unix

package pcmsound

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// LockFocus holds output focus through an advisory flock on a shared file,
// so only one pcmfeed process on the host plays at a time. The kernel drops
// the lock if the holder dies.
type LockFocus struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewLockFocus creates a negotiator locking path.
func NewLockFocus(path string) *LockFocus {
	return &LockFocus{path: path}
}

// Request tries to take the lock without waiting. A lock held elsewhere is a
// decline, not an error.
func (l *LockFocus) Request(ctx context.Context, req FocusRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			log.Debug("Focus lock held by another process", "path", l.path)
			return false, nil
		}
		return false, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}

	if data := newLockContent(req); data != nil {
		_ = f.Truncate(0)
		_, _ = f.WriteAt(data, 0)
	}

	l.file = f
	log.Debug("Focus lock acquired", "path", l.path, "usage", req.Usage, "pid", os.Getpid())
	return true, nil
}

// Abandon unlocks and closes the lock file.
func (l *LockFocus) Abandon() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	log.Debug("Focus lock released", "path", l.path)
	return err
}
