// Package broadcast fans encoded frames out from one producer to any
// number of independent consumers. The producer never blocks: each
// subscriber owns a bounded FIFO and the oldest frame is dropped when a
// slow consumer lets it fill.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/streetwatch/streamserver/internal/logger"
)

// SubscriberQueueSize bounds each subscriber's FIFO.
const SubscriberQueueSize = 100

// Subscriber is one consumer's private frame queue.
type Subscriber struct {
	id     string
	frames chan []byte
}

// ID returns the subscriber's opaque handle.
func (s *Subscriber) ID() string { return s.id }

// Frames returns the receive side of the subscriber's queue. The
// channel is closed when the subscriber detaches or the broadcaster
// shuts down.
func (s *Subscriber) Frames() <-chan []byte { return s.frames }

// Broadcaster distributes frames to the current subscriber set.
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[string]*Subscriber
	lastFrame []byte
	closed    bool

	dropped func()
}

// New returns an empty broadcaster. onDrop, if non-nil, is invoked once
// per frame discarded from a full subscriber queue.
func New(onDrop func()) *Broadcaster {
	return &Broadcaster{
		subs:    make(map[string]*Subscriber),
		dropped: onDrop,
	}
}

// Attach registers a new subscriber. If a frame has been published
// before, it is seeded into the new queue so the consumer gets a
// picture immediately instead of waiting for the next frame. On a
// closed broadcaster Attach reports false and the returned
// subscriber's queue is already closed.
func (b *Broadcaster) Attach() (*Subscriber, bool) {
	sub := &Subscriber{
		id:     uuid.NewString(),
		frames: make(chan []byte, SubscriberQueueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.frames)
		return sub, false
	}
	if b.lastFrame != nil {
		sub.frames <- b.lastFrame
	}
	b.subs[sub.id] = sub
	logger.Debug("Broadcast", "subscriber %s attached (%d total)", sub.id, len(b.subs))
	return sub, true
}

// Detach removes a subscriber and closes its queue, reporting whether
// the subscriber was still registered. Detaching an already detached
// subscriber is a no-op.
func (b *Broadcaster) Detach(sub *Subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return false
	}
	delete(b.subs, sub.id)
	close(sub.frames)
	logger.Debug("Broadcast", "subscriber %s detached (%d total)", sub.id, len(b.subs))
	return true
}

// Publish delivers a frame to every subscriber without blocking. When a
// queue is full the oldest entry is discarded to make room, so each
// consumer always sees a contiguous suffix of recent frames.
func (b *Broadcaster) Publish(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.lastFrame = frame
	for _, sub := range b.subs {
		select {
		case sub.frames <- frame:
		default:
			select {
			case <-sub.frames:
				if b.dropped != nil {
					b.dropped()
				}
			default:
			}
			sub.frames <- frame
		}
	}
}

// LastFrame returns the most recently published frame, or nil if
// nothing has been published yet. Used for status polling snapshots.
func (b *Broadcaster) LastFrame() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFrame
}

// Count reports the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches every subscriber and rejects future publishes.
// Consumers blocked on their queues observe the close and exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.frames)
	}
}
