package pcmsound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultFeedThreshold is the remaining-frame count that triggers a
// low-buffer notification when nothing else is configured.
const DefaultFeedThreshold = 8000

// EngineOptions configures a PlaybackEngine.
type EngineOptions struct {
	Device DeviceOutput     // required
	Focus  FocusNegotiator  // defaults to NoopFocus
	Sink   NotificationSink // optional, receives low-buffer events

	// Realtime locks the playback goroutine to an OS thread and raises its
	// scheduling priority.
	Realtime bool

	// DrainOnRelease lets queued device audio finish playing before the
	// device is released, waiting at most DrainTimeout.
	DrainOnRelease bool
	DrainTimeout   time.Duration
}

// SetupRequest carries the arguments of Setup.
type SetupRequest struct {
	SampleRate  int
	NumChannels int
	// Focus overrides DefaultFocusRequest when set.
	Focus *FocusRequest
}

// Status is a point-in-time view of the engine.
type Status struct {
	State          EngineState `json:"state"`
	Session        *Session    `json:"session,omitempty"`
	BufferedBytes  int64       `json:"buffered_bytes"`
	BufferedFrames int64       `json:"buffered_frames"`
	QueuedBuffers  int         `json:"queued_buffers"`
	FeedThreshold  int64       `json:"feed_threshold"`
	BytesFed       int64       `json:"bytes_fed"`
	BytesWritten   int64       `json:"bytes_written"`
	BytesDropped   int64       `json:"bytes_dropped"`
	Notifications  int64       `json:"notifications"`
	Clamps         int64       `json:"clamps"`
}

// Engine streams fed PCM buffers to a DeviceOutput from a dedicated playback
// goroutine and tells the caller when it is running low. At most one session
// is live at a time.
type Engine struct {
	opts EngineOptions
	sink *AsyncSink

	mu      sync.RWMutex // guards current; held for writing by lifecycle ops
	current *session

	state      atomic.Int32
	threshold  atomic.Int64
	clampLimit *rate.Limiter
}

// NewEngine creates an idle engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Device == nil {
		return nil, invalidArgs("new engine", "device is required")
	}
	if opts.Focus == nil {
		opts.Focus = NoopFocus{}
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 2 * time.Second
	}

	e := &Engine{
		opts:       opts,
		clampLimit: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	if opts.Sink != nil {
		e.sink = NewAsyncSink(opts.Sink)
	}
	e.threshold.Store(DefaultFeedThreshold)
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

func (e *Engine) setState(next EngineState) {
	prev := EngineState(e.state.Swap(int32(next)))
	if prev != next && !prev.CanTransition(next) {
		log.Warn("Unexpected engine state transition", "from", prev, "to", next)
	}
	log.Debug("Engine state", "from", prev, "to", next)
}

// Setup opens the device for the requested format and starts the playback
// goroutine. Any existing session is torn down first. Setup returns once the
// loop is running.
func (e *Engine) Setup(ctx context.Context, req SetupRequest) error {
	const op = "setup"

	if req.SampleRate <= 0 {
		return invalidArgs(op, "sample rate must be positive, got %d", req.SampleRate)
	}
	if req.NumChannels <= 0 {
		return invalidArgs(op, "number of channels must be positive, got %d", req.NumChannels)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		log.Info("Replacing active playback session", "session", e.current.info.ID)
		e.teardown(e.current)
	}

	device := e.opts.Device
	minBytes, err := device.MinBufferSize(req.SampleRate, req.NumChannels)
	if err != nil {
		return newError(KindDevice, op, fmt.Errorf("failed to query minimum buffer size: %w", err))
	}
	if minBytes <= 0 {
		return newError(KindDevice, op, fmt.Errorf("device reported invalid minimum buffer size %d", minBytes))
	}

	bpf := pcm.BytesPerFrame(req.NumChannels)
	info := Session{
		ID:                   uuid.New(),
		SampleRate:           req.SampleRate,
		NumChannels:          req.NumChannels,
		Layout:               LayoutFor(req.NumChannels),
		BytesPerFrame:        bpf,
		MinDeviceBufferBytes: minBytes,
		TargetBufferBytes:    pcm.ComputeTargetBufferBytes(minBytes, req.SampleRate, bpf),
		WriteChunkBytes:      pcm.AlignToFrameSize(minBytes, bpf),
	}

	cfg := DeviceConfig{
		SampleRate:  info.SampleRate,
		Channels:    info.NumChannels,
		Layout:      info.Layout,
		BufferBytes: info.TargetBufferBytes,
		MinBytes:    minBytes,
	}
	if err := device.Open(cfg); err != nil {
		return newError(KindDevice, op, fmt.Errorf("failed to open device: %w", err))
	}
	e.setState(StateConfigured)

	focusReq := DefaultFocusRequest()
	if req.Focus != nil {
		focusReq = *req.Focus
	}
	granted, err := e.opts.Focus.Request(ctx, focusReq)
	if err != nil || !granted {
		e.unwindDevice()
		if err == nil {
			err = errors.New("request declined")
		}
		return newError(KindFocus, op, err).WithContext("usage", focusReq.Usage)
	}

	s := newSession(info, device)
	ready := make(chan error, 1)
	go s.run(e, ready)

	select {
	case err = <-ready:
	case <-s.done:
		err = errors.New("playback loop exited during startup")
	}
	if err != nil {
		_ = s.queue.Close()
		<-s.done
		e.unwindDevice()
		if aerr := e.opts.Focus.Abandon(); aerr != nil {
			log.Debug("Failed to abandon focus", "error", aerr)
		}
		return newError(KindDevice, op, fmt.Errorf("failed to start device: %w", err))
	}

	s.info.StartedAt = time.Now()
	e.current = s
	e.setState(StateRunning)

	log.Info("Playback session started",
		"session", info.ID,
		"sample_rate", info.SampleRate,
		"channels", info.NumChannels,
		"layout", info.Layout,
		"min_buffer", info.MinDeviceBufferBytes,
		"target_buffer", info.TargetBufferBytes,
		"threshold", e.threshold.Load())
	return nil
}

// unwindDevice releases a device opened by a setup that failed midway.
func (e *Engine) unwindDevice() {
	e.setState(StateDraining)
	if err := e.opts.Device.Release(); err != nil {
		log.Debug("Failed to release device during setup unwind", "error", err)
	}
	e.setState(StateIdle)
}

// Feed queues buf for playback. The engine keeps a reference to buf; the
// caller must not modify it afterwards.
func (e *Engine) Feed(buf []byte) error {
	const op = "feed"

	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.current
	if s == nil || e.State() != StateRunning {
		return newError(KindSetupRequired, op, nil)
	}
	if len(buf) == 0 {
		return invalidArgs(op, "buffer is empty")
	}

	// Count before pushing so the loop never subtracts bytes it has not
	// seen added.
	s.add(len(buf))
	s.armed.Store(false)
	if err := s.queue.Push(buf); err != nil {
		s.subtract(len(buf))
		s.bytesFed.Add(-int64(len(buf)))
		return newError(KindSetupRequired, op, err)
	}
	return nil
}

// SetFeedThreshold sets the remaining-frame count at which the low-buffer
// notification fires. It applies from the loop's next write and persists
// across sessions.
func (e *Engine) SetFeedThreshold(frames int) error {
	if frames < 0 {
		return invalidArgs("set feed threshold", "threshold must not be negative, got %d", frames)
	}
	e.threshold.Store(int64(frames))
	log.Debug("Feed threshold updated", "frames", frames)
	return nil
}

// FeedThreshold returns the current threshold in frames.
func (e *Engine) FeedThreshold() int {
	return int(e.threshold.Load())
}

// Release ends the active session. It is a no-op when nothing is running.
// Failures while tearing down are logged rather than returned.
func (e *Engine) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		log.Debug("Release called with no active session")
		return nil
	}
	e.teardown(e.current)
	return nil
}

// teardown stops s and returns the engine to idle. The caller holds e.mu.
func (e *Engine) teardown(s *session) {
	e.setState(StateDraining)
	s.stopping.Store(true)

	_ = s.queue.Close()
	<-s.done

	device := s.device
	if d, ok := device.(Drainer); ok && e.opts.DrainOnRelease {
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.DrainTimeout)
		if err := d.Drain(ctx); err != nil {
			log.Warn("Device drain did not finish", "session", s.info.ID, "error", err)
		}
		cancel()
	}

	if err := device.Stop(); err != nil {
		log.Warn("Failed to stop device", "session", s.info.ID, "error", err)
	}
	if err := device.Flush(); err != nil {
		log.Warn("Failed to flush device", "session", s.info.ID, "error", err)
	}
	if err := device.Release(); err != nil {
		log.Warn("Failed to release device", "session", s.info.ID, "error", err)
	}

	s.queue.Clear()
	s.buffered.Store(0)

	if err := e.opts.Focus.Abandon(); err != nil {
		log.Warn("Failed to abandon focus", "session", s.info.ID, "error", err)
	}

	e.current = nil
	e.setState(StateIdle)
	logSessionSummary(s.info, s.stats())
}

// Status reports the engine state and the active session's counters.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Status{
		State:         e.State(),
		FeedThreshold: e.threshold.Load(),
	}
	s := e.current
	if s == nil {
		return st
	}

	info := s.info
	stats := s.stats()
	st.Session = &info
	st.BufferedBytes = s.buffered.Load()
	st.BufferedFrames = st.BufferedBytes / int64(info.BytesPerFrame)
	st.QueuedBuffers = s.queue.Len()
	st.BytesFed = stats.BytesFed
	st.BytesWritten = stats.BytesWritten
	st.BytesDropped = stats.BytesDropped
	st.Notifications = stats.Notifications
	st.Clamps = stats.Clamps
	return st
}

// isCurrent reports whether id names the live session.
func (e *Engine) isCurrent(id uuid.UUID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current != nil && e.current.info.ID == id
}

func (e *Engine) dispatch(ev FeedEvent) {
	if e.sink == nil {
		return
	}
	e.sink.Dispatch(ev)
}

// Close releases the active session and stops notification delivery.
func (e *Engine) Close() error {
	err := e.Release()
	if e.sink != nil {
		e.sink.Close()
	}
	return err
}
