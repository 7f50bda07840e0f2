package listener

import (
	"context"
	"fmt"
	"sync"

	"github.com/relayq/relayq/lib/jobqueue/logger"
)

// EventName is one of the fixed server-broadcast event channels.
type EventName string

const (
	Canceled  EventName = "ql:canceled"
	Completed EventName = "ql:completed"
	Failed    EventName = "ql:failed"
	Popped    EventName = "ql:popped"
	Put       EventName = "ql:put"
	Stalled   EventName = "ql:stalled"
	Track     EventName = "ql:track"
	Untrack   EventName = "ql:untrack"
)

var allEvents = []EventName{Canceled, Completed, Failed, Popped, Put, Stalled, Track, Untrack}

// Callback receives a raw JSON payload (or a bare jid, for track/untrack).
type Callback func(payload string)

// Events wraps a Listener over the fixed ql: channel set and dispatches
// each inbound message to the callback registered for its channel.
type Events struct {
	l *Listener

	mu        sync.Mutex
	callbacks map[EventName]Callback
}

func NewEvents(sub Subscriber, log logger.StandardLogger) *Events {
	channels := make([]string, len(allEvents))
	for i, e := range allEvents {
		channels[i] = string(e)
	}
	return &Events{
		l:         New(sub, channels, log),
		callbacks: make(map[EventName]Callback),
	}
}

// On registers cb for event. Returns an error for an unknown event name.
func (e *Events) On(event EventName, cb Callback) error {
	if !isKnownEvent(event) {
		return fmt.Errorf("events: not implemented: %s", event)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks[event] = cb
	return nil
}

// Off removes any callback registered for event, returning it (and whether
// one was present).
func (e *Events) Off(event EventName) (Callback, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.callbacks[event]
	delete(e.callbacks, event)
	return cb, ok
}

func isKnownEvent(event EventName) bool {
	for _, e := range allEvents {
		if e == event {
			return true
		}
	}
	return false
}

// Thread starts the listener in a background goroutine, waits for the
// subscription to be confirmed, runs body, then unlistens and joins
// before returning — guaranteeing no message is missed for events that
// occur after Thread is entered.
func (e *Events) Thread(ctx context.Context, body func(ctx context.Context) error) error {
	msgs, listenErr := e.l.Listen(ctx)
	if listenErr != nil {
		return listenErr
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			e.dispatch(msg)
		}
	}()

	if err := e.l.WaitUntilListening(ctx); err != nil {
		_ = e.l.Unlisten()
		<-done
		return err
	}

	bodyErr := body(ctx)

	_ = e.l.Unlisten()
	<-done

	return bodyErr
}

func (e *Events) dispatch(msg Message) {
	e.mu.Lock()
	cb, ok := e.callbacks[EventName(msg.Channel)]
	e.mu.Unlock()
	if !ok {
		return
	}
	// track/untrack payloads are a bare jid; every other channel carries a
	// JSON record. Either way the callback receives the raw string and
	// decodes it itself — relayq does not interpret event payloads.
	cb(msg.Data)
}
