package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/models"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventTransferStarted   EventType = "transfer_started"   // Session bound and stream opened
	EventTransferProgress  EventType = "transfer_progress"  // Progress update
	EventTransferPaused    EventType = "transfer_paused"    // Stopped with resume state kept
	EventTransferCompleted EventType = "transfer_completed" // Artifact committed
	EventTransferFailed    EventType = "transfer_failed"    // Failed with error
	EventTransferCancelled EventType = "transfer_cancelled" // Cancelled by user, temp purged

	EventDestinationChanged EventType = "destination_changed" // Active storage destination switched
	EventArtifactDeleted    EventType = "artifact_deleted"    // Registry entry removed
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// TransferEvent represents a transfer session lifecycle change
type TransferEvent struct {
	BaseEvent
	SessionID string
	Name      string // final file name
	Status    models.SessionStatus
	Progress  Progress
	Locator   string // set on completion
	Error     error  // set on failure
}

// DestinationChangedEvent is published after the active destination is switched.
// Listings derived from the old destination should be refreshed.
type DestinationChangedEvent struct {
	BaseEvent
	Previous models.StorageDestination
	Current  models.StorageDestination
}

// ArtifactDeletedEvent is published after a registry entry is deleted.
type ArtifactDeletedEvent struct {
	BaseEvent
	Entry models.DownloadEntry
}

type subscription struct {
	ch    chan Event
	types map[EventType]bool // nil means every type
}

func (s *subscription) wants(t EventType) bool {
	return s.types == nil || s.types[t]
}

// EventBus fans events out to buffered subscriber channels. Publish never
// blocks: a subscriber whose buffer is full misses the event and the drop is
// counted.
type EventBus struct {
	mu         sync.RWMutex
	subs       []*subscription
	bufferSize int
	closed     bool
	dropped    atomic.Int64
}

// NewEventBus creates a bus whose subscriber channels hold bufferSize events.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	return &EventBus{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving the given event types, or every
// event when none are given. After Close it returns a closed channel.
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := &subscription{ch: make(chan Event, eb.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	eb.subs = append(eb.subs, sub)
	return sub.ch
}

// Unsubscribe stops delivery to ch and closes it.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, sub := range eb.subs {
		if sub.ch == ch {
			eb.subs = append(eb.subs[:i], eb.subs[i+1:]...)
			if !eb.closed {
				close(sub.ch)
			}
			return
		}
	}
}

// Publish delivers event to every interested subscriber. A nil bus is a no-op.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	for _, sub := range eb.subs {
		if !sub.wants(event.Type()) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
}

// PublishTransfer publishes a TransferEvent stamped with the current time.
func (eb *EventBus) PublishTransfer(eventType EventType, sessionID, name string, status models.SessionStatus, p Progress, locator string, err error) {
	eb.Publish(&TransferEvent{
		BaseEvent: BaseEvent{EventType: eventType, Time: time.Now()},
		SessionID: sessionID,
		Name:      name,
		Status:    status,
		Progress:  p,
		Locator:   locator,
		Error:     err,
	})
}

// Close closes every subscriber channel. Later calls do nothing.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for _, sub := range eb.subs {
		close(sub.ch)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}
