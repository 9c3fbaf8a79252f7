// Package events carries in-process notifications about stream
// lifecycle and recording activity, so status surfaces and future
// upload hooks can react without coupling to the pipeline.
package events

import (
	"time"

	"github.com/kelindar/event"
)

// Event type identifiers for the dispatcher.
const (
	TypeStreamConnected uint32 = iota + 1
	TypeStreamLost
	TypeMotionStarted
	TypeMotionEnded
	TypeClipSaved
)

// Event is the contract every published event satisfies.
type Event interface {
	Type() uint32
}

// StreamConnectedEvent fires when a camera connection is established.
type StreamConnectedEvent struct {
	StreamID string
	Addr     string
	At       time.Time
}

func (e StreamConnectedEvent) Type() uint32 { return TypeStreamConnected }

// StreamLostEvent fires when a camera connection drops and a reconnect
// cycle begins.
type StreamLostEvent struct {
	StreamID string
	Addr     string
	Reason   string
	At       time.Time
}

func (e StreamLostEvent) Type() uint32 { return TypeStreamLost }

// MotionStartedEvent fires when debounced motion confirms and a clip
// starts recording.
type MotionStartedEvent struct {
	StreamID string
	At       time.Time
}

func (e MotionStartedEvent) Type() uint32 { return TypeMotionStarted }

// MotionEndedEvent fires when the recording episode closes.
type MotionEndedEvent struct {
	StreamID string
	At       time.Time
}

func (e MotionEndedEvent) Type() uint32 { return TypeMotionEnded }

// ClipSavedEvent fires after a clip has been encoded and verified on
// disk.
type ClipSavedEvent struct {
	StreamID string
	Path     string
	Duration time.Duration
	At       time.Time
}

func (e ClipSavedEvent) Type() uint32 { return TypeClipSaved }

// Bus wraps a dispatcher so call sites do not handle generics directly.
type Bus struct {
	dispatcher *event.Dispatcher
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers an event to all matching subscribers.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case StreamConnectedEvent:
		event.Publish(b.dispatcher, e)
	case StreamLostEvent:
		event.Publish(b.dispatcher, e)
	case MotionStartedEvent:
		event.Publish(b.dispatcher, e)
	case MotionEndedEvent:
		event.Publish(b.dispatcher, e)
	case ClipSavedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a typed handler and returns its unsubscribe
// function. The handler's parameter type selects which events it sees.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamConnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamLostEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MotionStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MotionEndedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ClipSavedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
