package pcm

const (
	// BytesPerSample is the size of one 16-bit sample.
	BytesPerSample = 2

	// TargetBufferMillis is the minimum amount of audio the device buffer
	// should hold.
	TargetBufferMillis = 160

	// BufferSizeMultiplier scales the platform minimum buffer.
	BufferSizeMultiplier = 4
)

// BytesPerFrame returns the size of one frame (one sample per channel).
func BytesPerFrame(numChannels int) int {
	return numChannels * BytesPerSample
}

// AlignToFrameSize rounds bytes up to the next multiple of bytesPerFrame.
// A non-positive frame size leaves the value untouched.
func AlignToFrameSize(bytes, bytesPerFrame int) int {
	if bytesPerFrame <= 0 {
		return bytes
	}
	remainder := bytes % bytesPerFrame
	if remainder == 0 {
		return bytes
	}
	return bytes + (bytesPerFrame - remainder)
}

// ComputeTargetBufferBytes returns the device buffer size to request. The
// result holds at least TargetBufferMillis of audio and at least
// BufferSizeMultiplier times the device minimum, and never less than the
// device minimum itself.
func ComputeTargetBufferBytes(minDeviceBufferBytes, sampleRateHz, bytesPerFrame int) int {
	target := AlignToFrameSize(sampleRateHz*bytesPerFrame*TargetBufferMillis/1000, bytesPerFrame)

	candidate := minDeviceBufferBytes * BufferSizeMultiplier
	if target > candidate {
		candidate = target
	}

	if candidate < minDeviceBufferBytes {
		return AlignToFrameSize(minDeviceBufferBytes, bytesPerFrame)
	}
	return candidate
}
