//go:build nocgo
// +build nocgo

package pcmsound

// OtoDevice stub for builds without cgo.
type OtoDevice struct{}

// NewOtoDevice creates a stub device that refuses to open.
func NewOtoDevice(platform *PlatformInfo) *OtoDevice {
	return &OtoDevice{}
}

func (d *OtoDevice) MinBufferSize(sampleRate, channels int) (int, error) {
	return 0, ErrDeviceUnavailable
}

func (d *OtoDevice) Open(cfg DeviceConfig) error {
	return ErrDeviceUnavailable
}

func (d *OtoDevice) Write(p []byte) (int, error) {
	return 0, ErrDeviceClosed
}

func (d *OtoDevice) Start() error {
	return ErrDeviceUnavailable
}

func (d *OtoDevice) Stop() error {
	return nil
}

func (d *OtoDevice) Flush() error {
	return nil
}

func (d *OtoDevice) Release() error {
	return nil
}
