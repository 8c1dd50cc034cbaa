//go:build linux
// +build linux

package pcmsound

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/audio"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/jfreymuth/pulse"
)

const pulseSupported = true

// PulseDevice speaks the PulseAudio native protocol without cgo. The server
// pulls audio through an Int16Reader callback fed from a StreamBuffer; gaps
// are filled with silence.
type PulseDevice struct {
	mu      sync.Mutex
	client  *pulse.Client
	stream  *pulse.PlaybackStream
	buffer  *audio.StreamBuffer
	latency time.Duration
}

// NewPulseDevice connects to the PulseAudio server.
func NewPulseDevice() (*PulseDevice, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("pcmfeed"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PulseAudio: %w", err)
	}
	return &PulseDevice{client: client}, nil
}

// MinBufferSize returns 30ms, the latency PulseAudio handles comfortably.
func (d *PulseDevice) MinBufferSize(sampleRate, channels int) (int, error) {
	f := pcm.Format{SampleRate: sampleRate, Channels: channels}
	if err := f.Validate(); err != nil {
		return 0, err
	}
	return f.BytesFor(30 * time.Millisecond), nil
}

// Open creates the playback stream. It stays corked until Start.
func (d *PulseDevice) Open(cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return ErrDeviceClosed
	}
	if d.stream != nil {
		return errors.New("pulse device already open")
	}

	f := pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	buffer := audio.NewStreamBuffer(cfg.BufferBytes, cfg.BytesPerFrame())
	d.latency = f.Duration(cfg.MinBytes)

	layout := pulse.PlaybackMono
	if cfg.Layout == LayoutStereo {
		layout = pulse.PlaybackStereo
	}

	stream, err := d.client.NewPlayback(
		pulse.Int16Reader(newPulseFill(buffer)),
		pulse.PlaybackSampleRate(cfg.SampleRate),
		layout,
		pulse.PlaybackLatency(d.latency.Seconds()),
		pulse.PlaybackBufferSize(f.Frames(cfg.MinBytes)),
	)
	if err != nil {
		return fmt.Errorf("failed to create playback stream: %w", err)
	}
	d.buffer = buffer
	d.stream = stream

	log.Debug("Opened pulse device",
		"layout", cfg.Layout,
		"latency", d.latency,
		"buffer_bytes", cfg.BufferBytes)
	return nil
}

// newPulseFill returns the reader the pulse client goroutine pulls from. It
// only touches buffer, never the device fields guarded by mu.
func newPulseFill(buffer *audio.StreamBuffer) func([]int16) (int, error) {
	var scratch []byte
	return func(out []int16) (int, error) {
		need := len(out) * 2
		if cap(scratch) < need {
			scratch = make([]byte, need)
		}
		buf := scratch[:need]

		n := buffer.ReadAvailable(buf)
		for i := 0; i < n/2; i++ {
			out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
		}
		for i := n / 2; i < len(out); i++ {
			out[i] = 0
		}
		return len(out), nil
	}
}

// Write blocks until p is in the stream buffer.
func (d *PulseDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	buffer := d.buffer
	d.mu.Unlock()

	if buffer == nil {
		return 0, ErrDeviceClosed
	}
	n, err := buffer.Write(p)
	if err != nil {
		return n, ErrDeviceClosed
	}
	return n, nil
}

// Start uncorks the stream.
func (d *PulseDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return ErrDeviceClosed
	}
	d.stream.Start()
	return d.stream.Error()
}

// Stop corks the stream.
func (d *PulseDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		d.stream.Stop()
	}
	return nil
}

// Flush drops buffered audio not yet handed to the server.
func (d *PulseDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buffer != nil {
		d.buffer.Reset()
	}
	return nil
}

// Drain waits for the stream buffer to empty plus one latency period for the
// server to play what it already pulled.
func (d *PulseDevice) Drain(ctx context.Context) error {
	d.mu.Lock()
	buffer, latency := d.buffer, d.latency
	d.mu.Unlock()

	if buffer == nil {
		return nil
	}
	if err := buffer.WaitEmpty(ctx, 5*time.Millisecond); err != nil {
		return err
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Release closes the stream. The client connection stays open so the device
// can be reopened by the next session.
func (d *PulseDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return nil
	}

	_ = d.buffer.Close()
	underflow := d.stream.Underflow()
	d.stream.Close()

	stats := d.buffer.Stats()
	log.Debug("Released pulse device",
		"bytes_written", stats.BytesWritten,
		"bytes_played", stats.BytesRead,
		"underruns", stats.Underruns,
		"underflow", underflow)

	d.stream = nil
	d.buffer = nil
	return nil
}

// Close disconnects from the server.
func (d *PulseDevice) Close() error {
	if err := d.Release(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
	return nil
}
