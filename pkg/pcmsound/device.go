package pcmsound

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// DeviceOutput is a platform audio output that accepts 16-bit little-endian
// interleaved PCM. A device is opened once per session and may be reopened
// after Release.
type DeviceOutput interface {
	// MinBufferSize returns the smallest buffer, in bytes, the device can
	// run with for the given format.
	MinBufferSize(sampleRate, channels int) (int, error)

	// Open prepares the device for cfg. Nothing plays until Start.
	Open(cfg DeviceConfig) error

	// Write blocks until the device has accepted data and returns how many
	// bytes it took. A short count is not an error.
	Write(p []byte) (int, error)

	// Start begins playback.
	Start() error

	// Stop halts playback.
	Stop() error

	// Flush discards data the device has accepted but not yet played.
	Flush() error

	// Release frees the device. Blocked writes return.
	Release() error
}

// Drainer is implemented by devices that can wait for accepted audio to
// finish playing.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Recoverer is implemented by devices that can recover from a failed write,
// such as an underrun on ALSA.
type Recoverer interface {
	Recover(err error) error
}

// ChannelLayout is the speaker arrangement requested from the device.
type ChannelLayout int

const (
	// LayoutMono plays every channel count other than two.
	LayoutMono ChannelLayout = iota
	// LayoutStereo plays two-channel audio.
	LayoutStereo
)

// String returns the layout name.
func (l ChannelLayout) String() string {
	if l == LayoutStereo {
		return "stereo"
	}
	return "mono"
}

// LayoutFor returns the layout for a channel count.
func LayoutFor(channels int) ChannelLayout {
	if channels == 2 {
		return LayoutStereo
	}
	return LayoutMono
}

// DeviceConfig is the format and sizing a device is opened with.
type DeviceConfig struct {
	SampleRate  int
	Channels    int
	Layout      ChannelLayout
	BufferBytes int // target device buffer, frame aligned
	MinBytes    int // device minimum reported by MinBufferSize
}

// BytesPerFrame returns the frame size for the config.
func (c DeviceConfig) BytesPerFrame() int {
	return c.Channels * 2
}

// Backend names a DeviceOutput implementation.
type Backend string

const (
	// BackendAuto picks a backend from the detected platform.
	BackendAuto Backend = "auto"
	// BackendOto plays through ebitengine/oto (cgo on most platforms).
	BackendOto Backend = "oto"
	// BackendPulse talks the PulseAudio native protocol directly.
	BackendPulse Backend = "pulse"
	// BackendMock discards audio at real-time or instant pace.
	BackendMock Backend = "mock"
)

// Backends lists every selectable backend name.
var Backends = []string{string(BackendAuto), string(BackendOto), string(BackendPulse), string(BackendMock)}

// ParseBackend converts a configured name to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendAuto, BackendOto, BackendPulse, BackendMock:
		return b, nil
	case "":
		return BackendAuto, nil
	default:
		return "", fmt.Errorf("unknown audio backend %q", name)
	}
}

// NewDevice creates the output for backend. Auto mode probes the platform
// and falls back to the mock device when no output is usable.
func NewDevice(backend Backend) (DeviceOutput, error) {
	switch backend {
	case BackendOto:
		log.Debug("Creating oto device")
		return NewOtoDevice(DetectPlatform()), nil

	case BackendPulse:
		log.Debug("Creating pulse device")
		dev, err := NewPulseDevice()
		if err != nil {
			return nil, err
		}
		return dev, nil

	case BackendMock:
		log.Debug("Creating mock device")
		return NewMockDevice(MockDeviceOptions{Realtime: true}), nil

	case BackendAuto, "":
		platform := DetectPlatform()
		chosen := platform.PreferredBackend()
		if chosen == BackendMock {
			reason := "no audio devices"
			if platform.IsCI {
				reason = "CI environment"
			} else if platform.AudioSubsystem == AudioSubsystemNone {
				reason = "no audio subsystem"
			}
			log.Info("Using mock audio device", "reason", reason)
			return NewMockDevice(MockDeviceOptions{Realtime: true}), nil
		}

		log.Debug("Auto-selected audio backend", "backend", chosen, "platform", platform.OS)
		dev, err := NewDevice(chosen)
		if err != nil && chosen == BackendPulse {
			log.Warn("PulseAudio unavailable, falling back to oto", "error", err)
			return NewOtoDevice(platform), nil
		}
		return dev, err

	default:
		return nil, fmt.Errorf("unknown audio backend: %v", backend)
	}
}
