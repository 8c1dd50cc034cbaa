//go:build !linux
// +build !linux

package pcmsound

const pulseSupported = false

// NewPulseDevice is only available on Linux.
func NewPulseDevice() (DeviceOutput, error) {
	return nil, ErrDeviceUnavailable
}
