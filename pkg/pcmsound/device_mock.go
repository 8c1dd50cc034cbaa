package pcmsound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
)

// MockDeviceOptions tunes the behaviour of a MockDevice.
type MockDeviceOptions struct {
	// Realtime paces writes to the audio clock. Otherwise writes return at once.
	Realtime bool
	// MinBufferMillis is the reported minimum buffer. Defaults to 20ms.
	MinBufferMillis int
	// WriteLimit caps the bytes accepted per Write, producing short writes.
	WriteLimit int

	// Failure injection.
	MinBufferErr error
	OpenErr      error
	StartErr     error
	WriteErrOnce error // first Write fails with this error
	RecoverErr   error
}

// MockDevice implements DeviceOutput without touching audio hardware. It
// records everything written for inspection by tests.
type MockDevice struct {
	opts MockDeviceOptions

	mu       sync.Mutex
	cond     *sync.Cond
	cfg      DeviceConfig
	open     bool
	playing  bool
	written  []byte
	writeErr error

	// Test helpers
	OpenCount    int
	StartCount   int
	StopCount    int
	FlushCount   int
	ReleaseCount int
	RecoverCount int
	WriteCount   int
}

// NewMockDevice creates a mock device.
func NewMockDevice(opts MockDeviceOptions) *MockDevice {
	if opts.MinBufferMillis <= 0 {
		opts.MinBufferMillis = 20
	}
	d := &MockDevice{opts: opts, writeErr: opts.WriteErrOnce}
	d.cond = sync.NewCond(&d.mu)
	log.Debug("Creating mock audio device", "realtime", opts.Realtime)
	return d
}

// MinBufferSize reports MinBufferMillis worth of audio.
func (d *MockDevice) MinBufferSize(sampleRate, channels int) (int, error) {
	if d.opts.MinBufferErr != nil {
		return 0, d.opts.MinBufferErr
	}
	f := pcm.Format{SampleRate: sampleRate, Channels: channels}
	if err := f.Validate(); err != nil {
		return 0, err
	}
	return f.BytesFor(time.Duration(d.opts.MinBufferMillis) * time.Millisecond), nil
}

// Open records the config.
func (d *MockDevice) Open(cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opts.OpenErr != nil {
		return d.opts.OpenErr
	}
	if d.open {
		return errors.New("mock device already open")
	}
	d.cfg = cfg
	d.open = true
	d.OpenCount++
	return nil
}

// Write accepts up to WriteLimit bytes, sleeping for their duration when
// realtime pacing is on.
func (d *MockDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return 0, ErrDeviceClosed
	}
	d.WriteCount++
	if err := d.writeErr; err != nil {
		d.writeErr = nil
		d.mu.Unlock()
		return 0, err
	}

	n := len(p)
	if d.opts.WriteLimit > 0 && n > d.opts.WriteLimit {
		n = d.opts.WriteLimit
	}
	d.written = append(d.written, p[:n]...)
	cfg := d.cfg
	d.cond.Broadcast()
	d.mu.Unlock()

	if d.opts.Realtime {
		f := pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
		time.Sleep(f.Duration(n))
	}
	return n, nil
}

// Start marks the device as playing.
func (d *MockDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opts.StartErr != nil {
		return d.opts.StartErr
	}
	if !d.open {
		return ErrDeviceClosed
	}
	d.playing = true
	d.StartCount++
	return nil
}

// Stop marks the device as stopped.
func (d *MockDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	d.StopCount++
	return nil
}

// Flush counts the call; the mock has nothing pending.
func (d *MockDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.FlushCount++
	return nil
}

// Drain returns at once since writes are accounted as played.
func (d *MockDevice) Drain(ctx context.Context) error {
	return ctx.Err()
}

// Recover implements Recoverer.
func (d *MockDevice) Recover(err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.RecoverCount++
	if d.opts.RecoverErr != nil {
		return fmt.Errorf("recover from %v: %w", err, d.opts.RecoverErr)
	}
	return nil
}

// Release closes the device. It can be opened again afterwards.
func (d *MockDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		d.ReleaseCount++
	}
	d.open = false
	d.playing = false
	d.cond.Broadcast()
	return nil
}

// IsOpen reports whether the device is open.
func (d *MockDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// IsPlaying reports whether Start was called since the last Stop.
func (d *MockDevice) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// Config returns the config the device was last opened with.
func (d *MockDevice) Config() DeviceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Written returns a copy of every byte accepted so far.
func (d *MockDevice) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...)
}

// WaitForBytes blocks until at least n bytes were written or the timeout
// expires, reporting whether the count was reached.
func (d *MockDevice) WaitForBytes(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer timer.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.written) < n {
		if time.Now().After(deadline) {
			return false
		}
		d.cond.Wait()
	}
	return true
}
