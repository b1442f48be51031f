package widget

import (
	"sync"

	"chatdesk-backend/internal/dto"
)

type EventKind int

const (
	EventReady EventKind = iota
	EventError
	EventConversationStarted
	EventMessageSent
	EventMessageReceived
	EventTyping
	EventOpened
	EventClosed
	EventIdentified
	EventTracked
	EventDestroyed
)

var eventNames = [...]string{
	EventReady:               "ready",
	EventError:               "error",
	EventConversationStarted: "conversation_started",
	EventMessageSent:         "message_sent",
	EventMessageReceived:     "message_received",
	EventTyping:              "typing",
	EventOpened:              "opened",
	EventClosed:              "closed",
	EventIdentified:          "identified",
	EventTracked:             "tracked",
	EventDestroyed:           "destroyed",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}

// Event carries the payload for one kind. Only the fields that kind uses
// are set.
type Event struct {
	Kind         EventKind
	Conversation *dto.Conversation
	Message      *dto.Message
	Typing       *dto.TypingIndicator
	Err          error
	Name         string
	Data         map[string]any
}

type Handler func(Event)

// Unsubscribe removes a handler registered with On. Calling it twice is
// harmless.
type Unsubscribe func()

type subscriber struct {
	id      uint64
	handler Handler
}

// emitter dispatches events to the handlers of the matching kind in
// registration order.
type emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[EventKind][]subscriber
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[EventKind][]subscriber)}
}

func (e *emitter) on(kind EventKind, handler Handler) Unsubscribe {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers[kind] = append(e.handlers[kind], subscriber{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			subs := e.handlers[kind]
			for i, sub := range subs {
				if sub.id == id {
					e.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// emit runs handlers outside the lock so they may register or remove
// handlers themselves.
func (e *emitter) emit(event Event) {
	e.mu.Lock()
	subs := append([]subscriber(nil), e.handlers[event.Kind]...)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.handler(event)
	}
}
