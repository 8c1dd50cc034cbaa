//go:build !nocgo
// +build !nocgo

package pcmsound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/audio"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, fixed to one format.
var (
	otoMu       sync.Mutex
	otoContext  *oto.Context
	otoRate     int
	otoChannels int
)

// sharedOtoContext returns the process-wide oto context, creating it for
// the requested format on first use.
func sharedOtoContext(sampleRate, channels int, bufferSize time.Duration) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoContext != nil {
		if otoRate != sampleRate || otoChannels != channels {
			return nil, fmt.Errorf("oto context already running at %d Hz with %d channels, cannot switch to %d Hz with %d channels",
				otoRate, otoChannels, sampleRate, channels)
		}
		return otoContext, nil
	}

	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	}

	log.Debug("Initializing oto context",
		"sample_rate", options.SampleRate,
		"channels", options.ChannelCount,
		"buffer_size", options.BufferSize)

	ctx, ready, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		return nil, errors.New("audio context initialization timeout")
	}

	otoContext = ctx
	otoRate = sampleRate
	otoChannels = channels
	return ctx, nil
}

// OtoDevice plays through a persistent oto player that pulls from a bounded
// stream buffer. Writes block while the buffer is full.
type OtoDevice struct {
	platform *PlatformInfo

	mu     sync.Mutex
	cfg    DeviceConfig
	stream *audio.StreamBuffer
	player *oto.Player
}

// NewOtoDevice creates an unopened oto device.
func NewOtoDevice(platform *PlatformInfo) *OtoDevice {
	if platform == nil {
		platform = DetectPlatform()
	}
	return &OtoDevice{platform: platform}
}

// MinBufferSize returns the platform's minimum buffer for the format.
func (d *OtoDevice) MinBufferSize(sampleRate, channels int) (int, error) {
	f := pcm.Format{SampleRate: sampleRate, Channels: channels}
	if err := f.Validate(); err != nil {
		return 0, err
	}
	return f.BytesFor(time.Duration(d.platform.MinBufferMillis()) * time.Millisecond), nil
}

// Open creates the stream buffer and a paused player reading from it.
func (d *OtoDevice) Open(cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.player != nil {
		return errors.New("oto device already open")
	}

	f := pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	ctx, err := sharedOtoContext(cfg.SampleRate, cfg.Channels, f.Duration(cfg.MinBytes))
	if err != nil {
		return err
	}

	d.cfg = cfg
	d.stream = audio.NewStreamBuffer(cfg.BufferBytes, cfg.BytesPerFrame())
	d.player = ctx.NewPlayer(d.stream)
	d.player.SetBufferSize(cfg.MinBytes)

	log.Debug("Opened oto device",
		"layout", cfg.Layout,
		"buffer_bytes", cfg.BufferBytes,
		"player_buffer", cfg.MinBytes)
	return nil
}

// Write blocks until p has been copied into the stream buffer.
func (d *OtoDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()

	if stream == nil {
		return 0, ErrDeviceClosed
	}
	n, err := stream.Write(p)
	if err != nil {
		return n, ErrDeviceClosed
	}
	return n, nil
}

// Start resumes the player.
func (d *OtoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.player == nil {
		return ErrDeviceClosed
	}
	d.player.Play()
	return d.player.Err()
}

// Stop pauses the player.
func (d *OtoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.player == nil {
		return nil
	}
	d.player.Pause()
	return nil
}

// Flush drops anything still waiting in the stream buffer.
func (d *OtoDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		d.stream.Reset()
	}
	return nil
}

// Drain waits until the stream buffer and the player's own buffer are empty.
func (d *OtoDevice) Drain(ctx context.Context) error {
	d.mu.Lock()
	stream, player := d.stream, d.player
	d.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.WaitEmpty(ctx, 10*time.Millisecond); err != nil {
		return err
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() && player.BufferedSize() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Release closes the stream buffer and the player. The shared context stays
// alive for the next session.
func (d *OtoDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.player == nil {
		return nil
	}

	_ = d.stream.Close()
	err := d.player.Close()

	stats := d.stream.Stats()
	log.Debug("Released oto device",
		"bytes_written", stats.BytesWritten,
		"bytes_played", stats.BytesRead,
		"bytes_dropped", stats.BytesDropped)

	d.player = nil
	d.stream = nil
	return err
}
