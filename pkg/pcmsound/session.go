package pcmsound

import (
	"errors"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/queue"
	"github.com/google/uuid"
)

// Session describes one setup-to-release playback lifetime. It is immutable
// once setup returns.
type Session struct {
	ID                   uuid.UUID     `json:"id"`
	SampleRate           int           `json:"sample_rate"`
	NumChannels          int           `json:"num_channels"`
	Layout               ChannelLayout `json:"layout"`
	BytesPerFrame        int           `json:"bytes_per_frame"`
	MinDeviceBufferBytes int           `json:"min_device_buffer_bytes"`
	TargetBufferBytes    int           `json:"target_buffer_bytes"`
	WriteChunkBytes      int           `json:"write_chunk_bytes"`
	StartedAt            time.Time     `json:"started_at"`
}

var errNoProgress = errors.New("device accepted no data")

// session is the mutable state owned by a live Session. The counter and the
// armed flag are the only values shared between the control goroutines and
// the playback goroutine.
type session struct {
	info   Session
	device DeviceOutput
	queue  *queue.SampleQueue

	buffered atomic.Int64 // bytes fed but not yet accepted by the device
	armed    atomic.Bool  // a notification fired since the last feed
	stopping atomic.Bool

	done chan struct{}

	bytesFed      atomic.Int64
	bytesWritten  atomic.Int64
	bytesDropped  atomic.Int64
	writeErrors   atomic.Int64
	notifications atomic.Int64
	clamps        atomic.Int64
}

func newSession(info Session, device DeviceOutput) *session {
	return &session{
		info:   info,
		device: device,
		queue:  queue.New(),
		done:   make(chan struct{}),
	}
}

// add accounts for n freshly fed bytes.
func (s *session) add(n int) {
	s.buffered.Add(int64(n))
	s.bytesFed.Add(int64(n))
}

// subtract removes n bytes from the counter, clamping at zero. It reports the
// new value and how far below zero the plain subtraction would have gone.
func (s *session) subtract(n int) (remaining, deficit int64) {
	for {
		cur := s.buffered.Load()
		next := cur - int64(n)
		deficit = 0
		if next < 0 {
			deficit = -next
			next = 0
		}
		if s.buffered.CompareAndSwap(cur, next) {
			return next, deficit
		}
	}
}

// run is the playback loop. It reports the device start result on ready and
// then drains the queue until the queue is closed.
func (s *session) run(e *Engine, ready chan<- error) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Playback loop panicked",
				"session", s.info.ID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if e.opts.Realtime {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		raiseThreadPriority()
	}

	if err := s.device.Start(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	log.Debug("pcm-playback started", "session", s.info.ID, "chunk_bytes", s.info.WriteChunkBytes)

	for {
		buf, err := s.queue.PopBlocking()
		if err != nil || s.stopping.Load() {
			log.Debug("pcm-playback stopping", "session", s.info.ID)
			return
		}
		s.play(e, buf)
	}
}

// play writes buf to the device in chunks, blocking as the device paces it.
func (s *session) play(e *Engine, buf []byte) {
	chunk := s.info.WriteChunkBytes
	if chunk <= 0 {
		chunk = len(buf)
	}

	recovered := false
	for off := 0; off < len(buf); {
		if s.stopping.Load() {
			return
		}

		end := off + chunk
		if end > len(buf) {
			end = len(buf)
		}

		n, err := s.device.Write(buf[off:end])
		if n > 0 {
			off += n
			recovered = false
			s.bytesWritten.Add(int64(n))
			s.consumed(e, n)
		}

		switch {
		case err != nil:
			if s.stopping.Load() {
				return
			}
			s.writeErrors.Add(1)
			if r, ok := s.device.(Recoverer); ok && !recovered {
				rerr := r.Recover(err)
				if rerr == nil {
					log.Debug("Recovered from device write error", "session", s.info.ID, "error", err)
					recovered = true
					continue
				}
				err = rerr
			}
			s.drop(e, len(buf)-off, err)
			return
		case n == 0:
			s.drop(e, len(buf)-off, errNoProgress)
			return
		}
	}
}

// consumed accounts for n bytes leaving the engine and fires the low-buffer
// notification when the remainder falls to the threshold.
func (s *session) consumed(e *Engine, n int) {
	remaining, deficit := s.subtract(n)
	if deficit > 0 {
		total := s.clamps.Add(1)
		if e.clampLimit.Allow() {
			log.Warn("Buffered byte counter clamped at zero",
				"session", s.info.ID,
				"deficit", deficit,
				"clamps", total)
		}
	}

	s.notifyLow(e, remaining/int64(s.info.BytesPerFrame))
}

// notifyLow fires the low-buffer notification once per crossing. A Feed
// landing between the threshold check and arming moves the counter back
// above the threshold, so the counter is read again once armed.
func (s *session) notifyLow(e *Engine, frames int64) {
	threshold := e.threshold.Load()
	if frames > threshold || !s.armed.CompareAndSwap(false, true) {
		return
	}
	frames = s.buffered.Load() / int64(s.info.BytesPerFrame)
	if frames > threshold {
		s.armed.Store(false)
		return
	}
	s.notifications.Add(1)
	e.dispatch(FeedEvent{
		RemainingFrames: frames,
		Session:         s.info.ID,
		At:              time.Now(),
	})
}

func (s *session) drop(e *Engine, n int, cause error) {
	if n <= 0 {
		return
	}
	s.bytesDropped.Add(int64(n))
	log.Warn("Dropping audio after device write failure",
		"session", s.info.ID,
		"bytes", n,
		"error", cause)
	s.consumed(e, n)
}

// stats snapshots the session counters.
func (s *session) stats() sessionStats {
	return sessionStats{
		BytesFed:      s.bytesFed.Load(),
		BytesWritten:  s.bytesWritten.Load(),
		BytesDropped:  s.bytesDropped.Load(),
		WriteErrors:   s.writeErrors.Load(),
		Notifications: s.notifications.Load(),
		Clamps:        s.clamps.Load(),
	}
}

type sessionStats struct {
	BytesFed      int64
	BytesWritten  int64
	BytesDropped  int64
	WriteErrors   int64
	Notifications int64
	Clamps        int64
}
