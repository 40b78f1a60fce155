package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ridha-boughediri/mys3/pkg/model"
)

// EventRequestFinished is published after an HTTP request completes.
const EventRequestFinished = "request-finished"

var (
	ErrClosed     = errors.New("bus is closed")
	ErrNilHandler = errors.New("handler must not be nil")
	ErrEmptyEvent = errors.New("event name must not be empty")
)

// Handler receives one event. It must not retain evt after returning.
type Handler func(ctx context.Context, evt *model.CompletionEvent)

// Bus is the page-level event bus the listener subscribes to.
type Bus interface {
	Subscribe(name string, h Handler) (*Subscription, error)
	Publish(ctx context.Context, name string, evt *model.CompletionEvent) error
}

// Subscription is returned by Subscribe. Unsubscribe is safe to call more than once.
type Subscription struct {
	id    uint64
	name  string
	once  sync.Once
	unsub func(name string, id uint64)
}

func (s *Subscription) Name() string {
	return s.name
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.unsub(s.name, s.id)
	})
}

type subscriber struct {
	id uint64
	h  Handler
}

// LocalBus delivers events in-process.
//
// Publish runs every handler for the event synchronously, in subscription
// order, before returning. Publishes are serialized, so handlers never overlap
// and events are handled in the order they were published. A handler must not
// publish on the same bus.
type LocalBus struct {
	log *slog.Logger

	// dispatch is held for the whole of a Publish call.
	dispatch sync.Mutex

	mu     sync.RWMutex
	subs   map[string][]subscriber
	nextID uint64
	closed bool
}

func NewLocalBus(log *slog.Logger) *LocalBus {
	if log == nil {
		log = slog.Default()
	}
	return &LocalBus{
		log:  log,
		subs: make(map[string][]subscriber),
	}
}

func (b *LocalBus) Subscribe(name string, h Handler) (*Subscription, error) {
	if name == "" {
		return nil, ErrEmptyEvent
	}
	if h == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscriber{id: id, h: h})

	return &Subscription{id: id, name: name, unsub: b.remove}, nil
}

func (b *LocalBus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[name]
	for i, s := range list {
		if s.id == id {
			// copy so an in-flight Publish keeps its snapshot intact
			next := make([]subscriber, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, name)
			} else {
				b.subs[name] = next
			}
			return
		}
	}
}

func (b *LocalBus) Publish(ctx context.Context, name string, evt *model.CompletionEvent) error {
	if name == "" {
		return ErrEmptyEvent
	}

	b.dispatch.Lock()
	defer b.dispatch.Unlock()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	snapshot := b.subs[name]
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.deliver(ctx, name, s, evt)
	}
	return nil
}

func (b *LocalBus) deliver(ctx context.Context, name string, s subscriber, evt *model.CompletionEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.ErrorContext(ctx, "subscriber panicked",
				"operation", "bus_publish",
				"outcome", "failure",
				"event", name,
				"subscriber", s.id,
				"panic", rec,
			)
		}
	}()
	s.h(ctx, evt)
}

// Subscribers reports how many handlers are registered for name.
func (b *LocalBus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Close drops every subscription. Later Subscribe and Publish calls return ErrClosed.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]subscriber)
}
