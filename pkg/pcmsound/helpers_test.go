package pcmsound

import (
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

// eventRecorder collects feed events delivered by the engine.
type eventRecorder struct {
	events chan FeedEvent
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{events: make(chan FeedEvent, 64)}
}

func (r *eventRecorder) Deliver(ev FeedEvent) {
	r.events <- ev
}

func (r *eventRecorder) wait(t *testing.T) FeedEvent {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for feed notification")
		return FeedEvent{}
	}
}

func (r *eventRecorder) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected feed notification: %+v", ev)
	case <-time.After(within):
	}
}

func timeoutAfter() <-chan time.Time {
	return time.After(testTimeout)
}

type engineFixture struct {
	engine *Engine
	device *MockDevice
	focus  *MockFocus
	events *eventRecorder
}

func newEngineFixture(t *testing.T, opts MockDeviceOptions) *engineFixture {
	t.Helper()

	f := &engineFixture{
		device: NewMockDevice(opts),
		focus:  &MockFocus{},
		events: newEventRecorder(),
	}
	engine, err := NewEngine(EngineOptions{
		Device:         f.device,
		Focus:          f.focus,
		Sink:           f.events,
		DrainOnRelease: true,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	f.engine = engine
	t.Cleanup(func() { _ = engine.Close() })
	return f
}

// waitDrained waits until the engine counted every fed byte as written.
func waitDrained(t *testing.T, e *Engine) Status {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		st := e.Status()
		if st.BufferedBytes == 0 && st.QueuedBuffers == 0 {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	st := e.Status()
	t.Fatalf("engine never drained: %+v", st)
	return st
}

func pcmBytes(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}
