package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a room event.
type EventType string

const (
	// Membership events
	EventPlayerJoined EventType = "PLAYER_JOINED"
	EventPlayerLeft   EventType = "PLAYER_LEFT"

	// Game lifecycle events
	EventGameStarted EventType = "GAME_STARTED"
	EventTurnStarted EventType = "TURN_STARTED"
	EventGameOver    EventType = "GAME_OVER"

	// Action resolution events
	EventActionDeclared   EventType = "ACTION_DECLARED"
	EventActionChallenged EventType = "ACTION_CHALLENGED"
	EventActionBlocked    EventType = "ACTION_BLOCKED"
	EventActionSucceeded  EventType = "ACTION_SUCCEEDED"
	EventActionCompleted  EventType = "ACTION_COMPLETED"
	EventActionFailed     EventType = "ACTION_FAILED"

	// Card events
	EventCardLost       EventType = "CARD_LOST"
	EventCardsExchanged EventType = "CARDS_EXCHANGED"
	EventCoinsChanged   EventType = "COINS_CHANGED"
)

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type      EventType
	RoomCode  string
	ActionID  string            // Action the event belongs to, if any
	PlayerID  string            // Player who caused the event
	TargetID  string            // Player or card affected
	Amount    int               // Coins moved, cards lost, etc.
	Flag      bool              // Challenge outcome and similar yes/no results
	Data      string            // Action type, card type or winner name
	Timestamp time.Time         // When the event occurred
	Metadata  map[string]string // Additional metadata
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener              // All listeners
	typedListeners map[EventType][]TypedListener // Listeners filtered by event type
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle,
// whether it was registered with Subscribe or SubscribeTyped.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	bus.removeTypedLocked(handle)
}

// UnsubscribeTyped removes a typed listener by handle.
func (bus *EventBus) UnsubscribeTyped(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.removeTypedLocked(handle)
}

func (bus *EventBus) removeTypedLocked(handle int) {
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
// Listeners must not subscribe or unsubscribe from inside the callback.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.Callback(event)
	}
}

// PublishBatch publishes multiple events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, roomCode, playerID, targetID string) Event {
	return Event{
		Type:      eventType,
		RoomCode:  roomCode,
		PlayerID:  playerID,
		TargetID:  targetID,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
}

// NewEventWithAmount creates a new event with an amount value.
func NewEventWithAmount(eventType EventType, roomCode, playerID, targetID string, amount int) Event {
	evt := NewEvent(eventType, roomCode, playerID, targetID)
	evt.Amount = amount
	return evt
}

// NewEventWithFlag creates a new event with a flag value.
func NewEventWithFlag(eventType EventType, roomCode, playerID, targetID string, flag bool) Event {
	evt := NewEvent(eventType, roomCode, playerID, targetID)
	evt.Flag = flag
	return evt
}
