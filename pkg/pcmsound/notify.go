package pcmsound

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// FeedEvent reports that the buffered audio fell to or below the feed
// threshold.
type FeedEvent struct {
	RemainingFrames int64     `json:"remaining_frames"`
	Session         uuid.UUID `json:"session"`
	At              time.Time `json:"at"`
}

// NotificationSink receives low-buffer events. Deliver is never called on
// the playback goroutine.
type NotificationSink interface {
	Deliver(ev FeedEvent)
}

// SinkFunc adapts a function to NotificationSink.
type SinkFunc func(ev FeedEvent)

// Deliver calls f(ev).
func (f SinkFunc) Deliver(ev FeedEvent) { f(ev) }

const asyncSinkBacklog = 16

// AsyncSink hands events to a wrapped sink on its own goroutine. Dispatch
// never blocks, so it is safe to call from the playback loop.
type AsyncSink struct {
	sink   NotificationSink
	events chan FeedEvent

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewAsyncSink starts the delivery goroutine for sink.
func NewAsyncSink(sink NotificationSink) *AsyncSink {
	s := &AsyncSink{
		sink:   sink,
		events: make(chan FeedEvent, asyncSinkBacklog),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.events:
			s.deliver(ev)
		case <-s.done:
			return
		}
	}
}

func (s *AsyncSink) deliver(ev FeedEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Feed notification handler panicked", "panic", r, "session", ev.Session)
		}
	}()
	s.sink.Deliver(ev)
}

// Dispatch queues ev. If the backlog is full the event is delivered on a
// fresh goroutine instead of being dropped.
func (s *AsyncSink) Dispatch(ev FeedEvent) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.events <- ev:
	default:
		log.Debug("Notification backlog full, delivering on new goroutine", "session", ev.Session)
		go s.deliver(ev)
	}
}

// Close stops the delivery goroutine. Queued events are dropped.
func (s *AsyncSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}
