package queue

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned when operations are attempted on a closed queue.
var ErrQueueClosed = errors.New("queue is closed")

// SampleQueue is an unbounded FIFO of PCM buffers with a blocking pop.
// Producers never block; a single consumer waits in PopBlocking until a
// buffer arrives or the queue is closed.
type SampleQueue struct {
	items [][]byte
	bytes int

	// Synchronization
	mu       sync.Mutex
	notEmpty *sync.Cond

	// State
	closed bool
	stats  Stats
}

// Stats tracks queue throughput.
type Stats struct {
	TotalPushed  int64
	TotalPopped  int64
	TotalCleared int64
	BytesPushed  int64
	BytesPopped  int64
	CurrentSize  int
	CurrentBytes int
	PeakSize     int
	LastPush     time.Time
	LastPop      time.Time
}

// New creates an empty, open queue.
func New() *SampleQueue {
	q := &SampleQueue{
		items: make([][]byte, 0, 16),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends buf to the tail. It never blocks and never rejects an open
// queue. The caller must not modify buf afterwards.
func (q *SampleQueue) Push(buf []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, buf)
	q.bytes += len(buf)

	q.stats.TotalPushed++
	q.stats.BytesPushed += int64(len(buf))
	q.stats.LastPush = time.Now()
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}

	q.notEmpty.Signal()
	return nil
}

// PopBlocking removes and returns the head buffer, waiting as long as
// necessary. Once the queue is closed it returns ErrQueueClosed, even when
// buffers are still pending.
func (q *SampleQueue) PopBlocking() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}

	if q.closed {
		return nil, ErrQueueClosed
	}

	buf := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.bytes -= len(buf)

	q.stats.TotalPopped++
	q.stats.BytesPopped += int64(len(buf))
	q.stats.LastPop = time.Now()

	return buf, nil
}

// Clear drops every pending buffer.
func (q *SampleQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stats.TotalCleared += int64(len(q.items))
	for i := range q.items {
		q.items[i] = nil
	}
	q.items = q.items[:0]
	q.bytes = 0
}

// Close shuts the queue down and wakes any waiting consumer.
func (q *SampleQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	q.notEmpty.Broadcast()
	return nil
}

// Closed reports whether Close has been called.
func (q *SampleQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of pending buffers.
func (q *SampleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Bytes returns the total size of pending buffers.
func (q *SampleQueue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// GetStats returns current queue statistics.
func (q *SampleQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	stats.CurrentBytes = q.bytes
	return stats
}
