package events

import (
	"testing"
	"time"
)

func TestBusDeliversTypedEvents(t *testing.T) {
	bus := NewBus()

	got := make(chan ClipSavedEvent, 1)
	unsub := bus.Subscribe(func(e ClipSavedEvent) {
		got <- e
	})
	defer unsub()

	bus.Publish(ClipSavedEvent{
		StreamID: "cam1",
		Path:     "/var/clips/motion_20260826_093005.mp4",
		Duration: 4 * time.Second,
		At:       time.Now(),
	})

	select {
	case e := <-got:
		if e.StreamID != "cam1" || e.Duration != 4*time.Second {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never received the event")
	}
}

func TestBusFiltersByType(t *testing.T) {
	bus := NewBus()

	motion := make(chan MotionStartedEvent, 4)
	unsub := bus.Subscribe(func(e MotionStartedEvent) {
		motion <- e
	})
	defer unsub()

	bus.Publish(StreamLostEvent{StreamID: "cam1", Reason: "end of stream"})
	bus.Publish(MotionStartedEvent{StreamID: "cam2"})

	select {
	case e := <-motion:
		if e.StreamID != "cam2" {
			t.Fatalf("wrong event delivered: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("motion event not delivered")
	}

	select {
	case e := <-motion:
		t.Fatalf("unexpected extra event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	got := make(chan StreamConnectedEvent, 4)
	unsub := bus.Subscribe(func(e StreamConnectedEvent) {
		got <- e
	})
	unsub()

	bus.Publish(StreamConnectedEvent{StreamID: "cam1"})
	select {
	case e := <-got:
		t.Fatalf("event delivered after unsubscribe: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBusIgnoresUnknownHandler(t *testing.T) {
	bus := NewBus()
	unsub := bus.Subscribe(func(s string) {})
	unsub()
}
