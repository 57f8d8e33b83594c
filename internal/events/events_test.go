package events

import (
	"errors"
	"testing"
	"time"

	"github.com/mixtape/mixtape/internal/models"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferProgress)

	bus.PublishTransfer(EventTransferProgress, "s1", "song.mp3", models.StatusInProgress, NewProgress(50, 100), "", nil)

	select {
	case received := <-ch:
		ev, ok := received.(*TransferEvent)
		if !ok {
			t.Fatal("Expected TransferEvent")
		}
		if ev.SessionID != "s1" {
			t.Errorf("Expected session 's1', got '%s'", ev.SessionID)
		}
		if ev.Progress.Fraction != 0.5 {
			t.Errorf("Expected progress 0.5, got %f", ev.Progress.Fraction)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	all := bus.Subscribe()
	bus.PublishTransfer(EventTransferStarted, "s1", "a.mp3", models.StatusInProgress, Progress{}, "", nil)
	bus.Publish(&DestinationChangedEvent{BaseEvent: BaseEvent{EventType: EventDestinationChanged, Time: time.Now()}})

	for i := 0; i < 2; i++ {
		select {
		case <-all:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for event %d", i)
		}
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventTransferProgress)
	for i := 0; i < 5; i++ {
		bus.PublishTransfer(EventTransferProgress, "s1", "a.mp3", models.StatusInProgress, Progress{}, "", nil)
	}

	if got := bus.Dropped(); got != 4 {
		t.Errorf("Expected 4 dropped events, got %d", got)
	}
}

func TestEventBus_CloseIsIdempotent(t *testing.T) {
	bus := NewEventBus(1)
	ch := bus.Subscribe(EventTransferFailed)
	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("Expected closed channel")
	}
	// Publishing after close must not panic
	bus.PublishTransfer(EventTransferFailed, "s1", "a.mp3", models.StatusFailed, Progress{}, "", errors.New("x"))

	late := bus.Subscribe(EventTransferFailed)
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferCompleted)
	bus.Unsubscribe(ch)
	bus.PublishTransfer(EventTransferCompleted, "s1", "a.mp3", models.StatusCompleted, Progress{}, "", nil)

	if _, ok := <-ch; ok {
		t.Error("unsubscribed channel received an event")
	}
}

func TestEventBus_TypeFilter(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferCompleted, EventTransferFailed)
	bus.PublishTransfer(EventTransferProgress, "s1", "a.mp3", models.StatusInProgress, Progress{}, "", nil)
	bus.PublishTransfer(EventTransferFailed, "s1", "a.mp3", models.StatusFailed, Progress{}, "", errors.New("x"))

	select {
	case ev := <-ch:
		if ev.Type() != EventTransferFailed {
			t.Errorf("got %s, want only the subscribed types", ev.Type())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %s", ev.Type())
	default:
	}
}

func TestNilEventBusPublish(t *testing.T) {
	var bus *EventBus
	bus.PublishTransfer(EventTransferProgress, "s1", "a.mp3", models.StatusInProgress, Progress{}, "", nil)
}
