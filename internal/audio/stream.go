package audio

import (
	"context"
	"io"
	"sync"
	"time"
)

// StreamBuffer is a bounded ring of PCM bytes between the playback loop and
// a pull-based audio backend. Writes block while the ring is full, which
// paces the writer to the device clock. Reads block until data arrives.
type StreamBuffer struct {
	ring  []byte
	head  int // read position
	size  int // bytes stored
	align int // reads are trimmed to this many bytes when possible

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool

	stats StreamStats
}

// StreamStats tracks how the backend consumed the stream.
type StreamStats struct {
	BytesWritten int64
	BytesRead    int64
	BytesDropped int64
	Underruns    int64 // non-blocking reads that found the ring empty
}

// NewStreamBuffer creates a ring holding capacity bytes. Reads are trimmed
// to multiples of frameSize so a backend never sees half a frame.
func NewStreamBuffer(capacity, frameSize int) *StreamBuffer {
	if capacity <= 0 {
		capacity = 4096
	}
	if frameSize <= 0 {
		frameSize = 1
	}
	b := &StreamBuffer{
		ring:  make([]byte, capacity),
		align: frameSize,
	}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Write copies p into the ring, waiting for space as needed. It returns
// early with io.ErrClosedPipe if the buffer is closed mid-write.
func (b *StreamBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for written < len(p) {
		for b.size == len(b.ring) && !b.closed {
			b.notFull.Wait()
		}
		if b.closed {
			return written, io.ErrClosedPipe
		}

		n := b.put(p[written:])
		written += n
		b.stats.BytesWritten += int64(n)
		b.notEmpty.Signal()
	}
	return written, nil
}

// Read implements io.Reader for backends that pull in their own goroutine.
// It blocks until at least one frame is available and returns io.EOF once
// the buffer is closed.
func (b *StreamBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.size == 0 && !b.closed {
		b.notEmpty.Wait()
	}
	if b.closed {
		return 0, io.EOF
	}

	n := b.take(p)
	return n, nil
}

// ReadAvailable copies whatever is buffered into p without waiting. The
// remainder of p is left untouched.
func (b *StreamBuffer) ReadAvailable(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		if !b.closed {
			b.stats.Underruns++
		}
		return 0
	}
	return b.take(p)
}

// Len returns the number of buffered bytes.
func (b *StreamBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the ring capacity.
func (b *StreamBuffer) Cap() int {
	return len(b.ring)
}

// Reset discards buffered data and wakes blocked writers.
func (b *StreamBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.BytesDropped += int64(b.size)
	b.head = 0
	b.size = 0
	b.notFull.Broadcast()
}

// Close wakes every waiter; further writes fail and reads report io.EOF.
func (b *StreamBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		b.notEmpty.Broadcast()
		b.notFull.Broadcast()
	}
	return nil
}

// WaitEmpty polls until the ring has been consumed or ctx is done.
func (b *StreamBuffer) WaitEmpty(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if b.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of the stream counters.
func (b *StreamBuffer) Stats() StreamStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// put copies as much of p as fits. Caller holds mu.
func (b *StreamBuffer) put(p []byte) int {
	free := len(b.ring) - b.size
	if len(p) > free {
		p = p[:free]
	}
	tail := (b.head + b.size) % len(b.ring)
	n := copy(b.ring[tail:], p)
	if n < len(p) {
		n += copy(b.ring, p[n:])
	}
	b.size += n
	return n
}

// take moves buffered bytes into p, trimmed to whole frames when more than
// a frame is available. Caller holds mu.
func (b *StreamBuffer) take(p []byte) int {
	want := len(p)
	if want > b.size {
		want = b.size
	}
	if want >= b.align {
		want -= want % b.align
	}

	n := copy(p[:want], b.ring[b.head:])
	if n < want {
		n += copy(p[n:want], b.ring)
	}
	b.head = (b.head + n) % len(b.ring)
	b.size -= n
	b.stats.BytesRead += int64(n)

	b.notFull.Signal()
	return n
}
