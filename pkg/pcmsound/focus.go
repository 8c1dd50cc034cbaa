package pcmsound

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// FocusRequest describes the kind of output a session wants exclusive or
// ducked access for.
type FocusRequest struct {
	Usage   string `json:"usage"`    // e.g. "assistant", "media"
	Content string `json:"content"`  // e.g. "speech", "music"
	MayDuck bool   `json:"may_duck"` // other outputs may keep playing quietly
}

// DefaultFocusRequest is a transient, duckable request for speech.
func DefaultFocusRequest() FocusRequest {
	return FocusRequest{Usage: "assistant", Content: "speech", MayDuck: true}
}

// FocusNegotiator grants or declines output focus for a session.
type FocusNegotiator interface {
	// Request asks for focus. A false result with a nil error means the
	// request was declined.
	Request(ctx context.Context, req FocusRequest) (bool, error)
	// Abandon gives focus back. Calling it without focus is a no-op.
	Abandon() error
}

// NoopFocus always grants focus.
type NoopFocus struct{}

// Request grants every request.
func (NoopFocus) Request(context.Context, FocusRequest) (bool, error) { return true, nil }

// Abandon does nothing.
func (NoopFocus) Abandon() error { return nil }

// lockContent is written into the focus lock file so other processes can
// see who holds output.
type lockContent struct {
	PID       int          `json:"pid"`
	StartTime time.Time    `json:"start_time"`
	Hostname  string       `json:"hostname"`
	Request   FocusRequest `json:"request"`
}

func newLockContent(req FocusRequest) []byte {
	hostname, _ := os.Hostname()
	data, err := json.Marshal(lockContent{
		PID:       os.Getpid(),
		StartTime: time.Now(),
		Hostname:  hostname,
		Request:   req,
	})
	if err != nil {
		return nil
	}
	return data
}

// NewFocus returns the negotiator for a configured mode.
func NewFocus(cfg FocusConfig) FocusNegotiator {
	switch cfg.Mode {
	case FocusModeLock:
		log.Debug("Using lock file focus", "path", cfg.LockFile)
		return NewLockFocus(cfg.LockFile)
	default:
		return NoopFocus{}
	}
}

// MockFocus is a FocusNegotiator for tests.
type MockFocus struct {
	mu sync.Mutex

	Deny bool  // decline every request
	Err  error // fail every request

	Held         bool
	LastRequest  FocusRequest
	RequestCount int
	AbandonCount int
}

// Request records req and grants it unless Deny or Err is set.
func (m *MockFocus) Request(_ context.Context, req FocusRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RequestCount++
	m.LastRequest = req
	if m.Err != nil {
		return false, m.Err
	}
	if m.Deny {
		return false, nil
	}
	m.Held = true
	return true, nil
}

// Abandon releases focus.
func (m *MockFocus) Abandon() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AbandonCount++
	m.Held = false
	return nil
}

// IsHeld reports whether focus is currently held.
func (m *MockFocus) IsHeld() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Held
}
