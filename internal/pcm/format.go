package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Format describes signed 16-bit little-endian interleaved PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerFrame returns the size of one frame in this format.
func (f Format) BytesPerFrame() int {
	return BytesPerFrame(f.Channels)
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// Validate checks that the format can be played.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// Frames returns how many whole frames fit in n bytes.
func (f Format) Frames(n int) int {
	bpf := f.BytesPerFrame()
	if bpf <= 0 {
		return 0
	}
	return n / bpf
}

// Duration returns the playback time of n bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// BytesFor returns the frame-aligned byte count covering d.
func (f Format) BytesFor(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return AlignToFrameSize(n, f.BytesPerFrame())
}

// Silence returns d worth of zeroed samples.
func (f Format) Silence(d time.Duration) []byte {
	return make([]byte, f.BytesFor(d))
}

// ErrShortBuffer is returned when a destination cannot hold the converted samples.
var ErrShortBuffer = errors.New("destination buffer too small")

// PutInt16LE writes samples into dst as signed 16-bit little-endian values,
// scaling from sourceBitDepth. It returns the number of bytes written.
func PutInt16LE(dst []byte, samples []int, sourceBitDepth int) (int, error) {
	if len(dst) < len(samples)*BytesPerSample {
		return 0, ErrShortBuffer
	}
	shift := sourceBitDepth - 16
	for i, s := range samples {
		switch {
		case shift > 0:
			s >>= shift
		case shift < 0:
			s <<= -shift
		}
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(int16(s)))
	}
	return len(samples) * BytesPerSample, nil
}
