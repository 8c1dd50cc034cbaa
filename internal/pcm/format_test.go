package pcm

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestFormatArithmetic(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 1}

	if got := f.BytesPerSecond(); got != 32000 {
		t.Errorf("BytesPerSecond() = %d, want 32000", got)
	}
	if got := f.Frames(32000); got != 16000 {
		t.Errorf("Frames(32000) = %d, want 16000", got)
	}
	if got := f.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if got := f.BytesFor(20 * time.Millisecond); got != 640 {
		t.Errorf("BytesFor(20ms) = %d, want 640", got)
	}

	stereo := Format{SampleRate: 22050, Channels: 2}
	if got := stereo.BytesFor(10 * time.Millisecond); got%stereo.BytesPerFrame() != 0 {
		t.Errorf("BytesFor returned unaligned size %d", got)
	}
	if got := len(stereo.Silence(time.Second)); got != 88200 {
		t.Errorf("Silence(1s) length = %d, want 88200", got)
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"mono", Format{SampleRate: 16000, Channels: 1}, false},
		{"stereo", Format{SampleRate: 48000, Channels: 2}, false},
		{"no rate", Format{SampleRate: 0, Channels: 1}, true},
		{"no channels", Format{SampleRate: 16000, Channels: 0}, true},
		{"negative channels", Format{SampleRate: 16000, Channels: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestZeroFormatIsSafe(t *testing.T) {
	var f Format
	if f.Frames(100) != 0 {
		t.Error("Frames on zero format should be 0")
	}
	if f.Duration(100) != 0 {
		t.Error("Duration on zero format should be 0")
	}
}

func TestPutInt16LE(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int
		bitDepth int
		want     []int16
	}{
		{"16 bit passthrough", []int{0, 1, -1, 32767, -32768}, 16, []int16{0, 1, -1, 32767, -32768}},
		{"24 bit scaled down", []int{1 << 8, -(1 << 8), 8388607}, 24, []int16{1, -1, 32767}},
		{"clipped", []int{40000, -40000}, 16, []int16{32767, -32768}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, len(tt.samples)*2)
			n, err := PutInt16LE(dst, tt.samples, tt.bitDepth)
			if err != nil {
				t.Fatalf("PutInt16LE failed: %v", err)
			}
			if n != len(dst) {
				t.Fatalf("wrote %d bytes, want %d", n, len(dst))
			}
			for i, want := range tt.want {
				got := int16(binary.LittleEndian.Uint16(dst[i*2:]))
				if got != want {
					t.Errorf("sample %d = %d, want %d", i, got, want)
				}
			}
		})
	}
}

func TestPutInt16LEShortBuffer(t *testing.T) {
	if _, err := PutInt16LE(make([]byte, 3), []int{1, 2}, 16); err != ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}
