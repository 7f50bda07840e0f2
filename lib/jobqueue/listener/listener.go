// Package listener implements the pub/sub subscription primitive relayq
// uses both for the fixed ql: event channels (Events) and for a single
// worker's ownership-loss channel (ql:w:<name>).
package listener

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/lib/jobqueue/logger"
)

// ErrAlreadyListening is returned by Listen when the listener is already
// subscribed from a previous, unmatched Listen call.
var ErrAlreadyListening = errors.New("listener: already listening")

// Message is one inbound pub/sub event.
type Message struct {
	Channel string
	Type    string
	Data    string
}

// Subscriber is the subset of client.ScriptClient a Listener needs.
type Subscriber interface {
	RawSubscriber(ctx context.Context, channels ...string) *redis.PubSub
}

// Listener subscribes to a fixed set of channels and streams every inbound
// message until Unlisten is called. Listen and Unlisten are serialized by
// a single mutex; isListening is the authoritative flag.
type Listener struct {
	sub      Subscriber
	channels []string
	log      logger.StandardLogger

	mu              sync.Mutex
	listening       bool
	pendingUnlisten bool
	stop            chan struct{}
	ps              *redis.PubSub
	future          *Future[struct{}]
}

// New constructs a Listener bound to sub over the given channels.
func New(sub Subscriber, channels []string, log logger.StandardLogger) *Listener {
	if log == nil {
		log = &logger.DiscardLogger{}
	}
	return &Listener{
		sub:      sub,
		channels: channels,
		log:      log,
		future:   NewFuture[struct{}](),
	}
}

// WaitUntilListening blocks until a Listen call has confirmed its
// subscription (or returns ctx.Err() if ctx ends first). Callers on other
// goroutines use this to avoid racing Unlisten ahead of the subscribe.
func (l *Listener) WaitUntilListening(ctx context.Context) error {
	l.mu.Lock()
	fut := l.future
	l.mu.Unlock()
	_, err := fut.Result(ctx)
	return err
}

// IsListening reports the authoritative listening flag.
func (l *Listener) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// Listen atomically subscribes to all configured channels, signals the
// listening future, then returns a channel streaming every inbound message
// until Unlisten is called or ctx is done. Subscription is confirmed (via
// a single Receive call) before Listen returns, so WaitUntilListening
// callers never observe a false positive.
func (l *Listener) Listen(ctx context.Context) (<-chan Message, error) {
	l.mu.Lock()
	if l.listening {
		l.mu.Unlock()
		return nil, ErrAlreadyListening
	}

	if l.pendingUnlisten {
		// Unlisten arrived before this cycle started; honor it without
		// ever touching the network so this call still terminates cleanly.
		l.pendingUnlisten = false
		fut := l.future
		l.mu.Unlock()
		fut.SetResult(struct{}{})
		out := make(chan Message)
		close(out)
		return out, nil
	}
	l.mu.Unlock()

	ps := l.sub.RawSubscriber(ctx, l.channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	l.mu.Lock()
	stop := make(chan struct{})
	l.stop = stop
	l.ps = ps
	l.listening = true
	fut := l.future
	l.mu.Unlock()

	fut.SetResult(struct{}{})

	out := make(chan Message)
	go l.forward(ctx, ps, stop, out)
	return out, nil
}

func (l *Listener) forward(ctx context.Context, ps *redis.PubSub, stop chan struct{}, out chan<- Message) {
	defer close(out)
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case out <- Message{Channel: msg.Channel, Type: "message", Data: msg.Payload}:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// Unlisten idempotently stops the current Listen cycle (if any) and resets
// the listening future so the listener can be restarted with a fresh
// Listen call.
func (l *Listener) Unlisten() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listening {
		close(l.stop)
		l.stop = nil
		l.ps = nil
		l.listening = false
	} else {
		l.pendingUnlisten = true
	}
	l.future = NewFuture[struct{}]()
	return nil
}
